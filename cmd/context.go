package cmd

import (
	"fmt"
	"os"

	"github.com/emrgen/docvault"
	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	contextDir      = "./.tmp"
	configFileName  = "docvault"
	defaultEndpoint = "http://localhost:4021"
)

var contextCommand = &cobra.Command{
	Use:   "context",
	Short: "context commands",
}

func init() {
	contextCommand.AddCommand(setContextCommand())
	contextCommand.AddCommand(currentContextCommand())
	contextCommand.AddCommand(resetContextCommand())
}

// Context is who the cli acts as and which server it talks to.
type Context struct {
	Server string `mapstructure:"server" json:"server"`
	UserID string `mapstructure:"user_id" json:"user_id"`
	Token  string `mapstructure:"token" json:"token"`
}

// saves the context info to the config file in ./.tmp
func setContextCommand() *cobra.Command {
	var server string
	var userID string
	var token string

	command := &cobra.Command{
		Use:     "set",
		Short:   "set context",
		Example: "docvault context set -s http://localhost:4021 -u <user-id>\ndocvault context set -t <token>",
		Run: func(cmd *cobra.Command, args []string) {
			if userID == "" && token == "" {
				color.Red(`missing: --user-id or --token`)
				return
			}
			if userID != "" {
				if _, err := uuid.Parse(userID); err != nil {
					color.Red("invalid user id, expected a valid uuid")
					return
				}
			}

			current := readContext()
			if cmd.Flag("server").Changed || current.Server == "" {
				current.Server = server
			}
			current.UserID = userID
			current.Token = token

			if err := writeContext(current); err != nil {
				fmt.Println("error writing config file: ", err)
				return
			}
			fmt.Println("context saved")
		},
	}

	command.Flags().StringVarP(&server, "server", "s", defaultEndpoint, "server address")
	command.Flags().StringVarP(&userID, "user-id", "u", "", "user id, for servers in insecure mode")
	command.Flags().StringVarP(&token, "token", "t", "", "bearer token")

	return command
}

func currentContextCommand() *cobra.Command {
	command := &cobra.Command{
		Use:   "current",
		Short: "current context",
		Run: func(cmd *cobra.Command, args []string) {
			current := readContext()
			printField("Server", current.Server)
			printField("User", current.UserID)
			if current.Token != "" {
				printField("Token", "set")
			}
		},
	}

	return command
}

func resetContextCommand() *cobra.Command {
	command := &cobra.Command{
		Use:   "reset",
		Short: "reset context",
		Run: func(cmd *cobra.Command, args []string) {
			if err := writeContext(Context{Server: defaultEndpoint}); err != nil {
				fmt.Println("error writing config file: ", err)
				return
			}
			fmt.Println("context reset")
		},
	}

	return command
}

func contextFile() string {
	return contextDir + "/" + configFileName + ".yml"
}

func contextViper() *viper.Viper {
	v := viper.New()
	v.SetConfigName(configFileName)
	v.AddConfigPath(contextDir)
	v.SetConfigType("yml")
	return v
}

func writeContext(context Context) error {
	if err := os.MkdirAll(contextDir, os.ModePerm); err != nil {
		return err
	}

	v := contextViper()
	v.Set("context.server", context.Server)
	v.Set("context.user_id", context.UserID)
	v.Set("context.token", context.Token)

	return v.WriteConfigAs(contextFile())
}

func readContext() Context {
	ctx := Context{Server: defaultEndpoint}

	if _, err := os.Stat(contextFile()); os.IsNotExist(err) {
		return ctx
	}

	v := contextViper()
	if err := v.ReadInConfig(); err != nil {
		fmt.Println("error reading config file: ", err)
		return ctx
	}

	if err := v.UnmarshalKey("context", &ctx); err != nil {
		fmt.Println("error unmarshalling config file: ", err)
	}
	if ctx.Server == "" {
		ctx.Server = defaultEndpoint
	}

	return ctx
}

// newClient builds a client for the saved context.
func newClient() *docvault.Client {
	current := readContext()
	return docvault.NewClient(current.Server,
		docvault.WithUserID(current.UserID),
		docvault.WithToken(current.Token),
	)
}
