package cmd

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/emrgen/docvault/internal/config"
	"github.com/emrgen/docvault/internal/server"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "token commands",
}

func init() {
	tokenCmd.AddCommand(issueTokenCmd())
}

// issueTokenCmd signs a token with the configured hmac secret, for development setups.
func issueTokenCmd() *cobra.Command {
	var userID string
	var ttl time.Duration
	var save bool

	var required = []string{"user-id"}

	command := &cobra.Command{
		Use:     "issue",
		Short:   "issue a token for a user",
		Example: "docvault token issue -u <user-id> --ttl 24h --save",
		Run: func(cmd *cobra.Command, args []string) {
			if checkMissingFlags(cmd, required) {
				return
			}

			id, err := uuid.Parse(userID)
			if err != nil {
				color.Red("invalid user id, expected a valid uuid")
				return
			}

			cfg := config.LoadConfig()
			if cfg.Auth.HMACSecret == "" {
				color.Red("no hmac secret configured, set DOCVAULT_AUTH_HMAC_SECRET")
				return
			}

			token, err := server.IssueToken(cfg.Auth.HMACSecret, cfg.Auth.Issuer, id, ttl)
			if err != nil {
				color.Red("%v", err)
				return
			}

			if save {
				current := readContext()
				current.Token = token
				current.UserID = ""
				if err := writeContext(current); err != nil {
					fmt.Println("error writing config file: ", err)
					return
				}
				color.Green("token saved to context")
				return
			}

			fmt.Println(token)
		},
	}

	command.Flags().StringVarP(&userID, "user-id", "u", "", "user id (required)")
	command.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	command.Flags().BoolVar(&save, "save", false, "save the token into the current context")

	return command
}
