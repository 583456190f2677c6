// Package cmd provides the CLI commands for the go_cdm application.
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/cdmlab/go_cdm/internal/config"
	"github.com/cdmlab/go_cdm/internal/logging"
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "go_cdm",
	Short: "Content decryption module client and utilities",
	Long: `A client-side license acquisition tool for Widevine and PlayReady
protected content: builds signed challenges, talks to license servers, and
recovers content keys from their responses.`,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		if err := config.Initialize(); err != nil {
			return err
		}
		debug, _ := cmd.Flags().GetBool("debug")
		human, _ := cmd.Flags().GetBool("human")
		logging.InitLogger(debug, human)

		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().Bool("human", true, "Human-readable log output instead of JSON")
}
