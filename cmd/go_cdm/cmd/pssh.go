package cmd

import (
	"github.com/spf13/cobra"

	"github.com/cdmlab/go_cdm/internal/cli"
)

var psshCmd = &cobra.Command{
	Use:   "pssh <base64>",
	Short: "Inspect a protection system header box",
	Long: `Decode a base64 PSSH box and print its protection system, version,
and key identifiers. PlayReady boxes additionally show the embedded WRM
header details.`,
	Example: `  # Inspect a Widevine box
  go_cdm pssh AAAAW3Bzc2gAAAAA7e+LqXnWSs6jyCfc1R0h7QAAADsIARIQ...

  # Inspect a PlayReady box
  go_cdm pssh AAAD4nBzc2gAAAAAmgTweZhAQoarkuZb4IhflQAAA8LCAwAAAQAB...`,
	Args:          cobra.ExactArgs(1),
	SilenceErrors: true,
	SilenceUsage:  true,
	RunE: func(cmd *cobra.Command, args []string) error {
		box, err := loadBox(args[0])
		if err != nil {
			return err
		}
		cli.RenderBox(cmd.OutOrStdout(), box)

		return nil
	},
}

func init() {
	rootCmd.AddCommand(psshCmd)
}
