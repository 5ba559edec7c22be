package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "docvault",
	Short: "document version and permission tool",
	Example: `docvault serve
docvault context set -s http://localhost:4021 -u <user-id>
docvault create -f ./contract.docx
docvault list
docvault versions -d <doc-id>
docvault upload -d <doc-id> -f ./contract-signed.pdf -k signed
docvault share -d <doc-id> -u <user-id> -l editor
docvault download -v <version-id> -o ./contract.pdf
docvault delete -d <doc-id>`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(dbCmd)
	rootCmd.AddCommand(contextCommand)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.SetHelpCommand(&cobra.Command{Use: "no-help", Hidden: true})

	rootCmd.CompletionOptions.HiddenDefaultCmd = true
	cobra.EnableCommandSorting = false
}
