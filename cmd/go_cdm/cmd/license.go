package cmd

import (
	"encoding/base64"
	"encoding/hex"
	"time"

	"github.com/spf13/cobra"

	"github.com/cdmlab/go_cdm/pkg/xmr"
)

var licenseCmd = &cobra.Command{
	Use:   "license <base64>",
	Short: "Inspect a PlayReady XMR license",
	Long: `Decode a base64 XMR license and print its rights identifier, key
entries, and policy objects: validity window, issue date, minimum security
level, and output protection levels. No keys are decrypted.`,
	Example: `  # Inspect a license returned by a rights manager
  go_cdm license WE1SAAAAAAM...`,
	Args:          cobra.ExactArgs(1),
	SilenceErrors: true,
	SilenceUsage:  true,
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := base64.StdEncoding.DecodeString(args[0])
		if err != nil {
			return err
		}
		lic, err := xmr.Parse(raw)
		if err != nil {
			return err
		}

		cmd.Printf("Version:        %d\n", lic.Version)
		cmd.Printf("Rights ID:      %s\n", hex.EncodeToString(lic.RightsID[:]))

		if entries, err := lic.ContentKeys(); err == nil {
			for _, e := range entries {
				cmd.Printf(
					"Key entry:      kid=%s type=%d cipher=%d (%d bytes)\n",
					hex.EncodeToString(e.KeyID[:]), e.KeyType, e.CipherType,
					len(e.EncryptedKey),
				)
			}
		}
		if begin, end, ok := lic.Expiration(); ok {
			cmd.Printf(
				"Valid:          %s to %s\n",
				begin.UTC().Format(time.RFC3339), end.UTC().Format(time.RFC3339),
			)
		}
		if issued, ok := lic.IssueDate(); ok {
			cmd.Printf("Issued:         %s\n", issued.UTC().Format(time.RFC3339))
		}
		if level, ok := lic.SecurityLevel(); ok {
			cmd.Printf("Security level: %d\n", level)
		}
		if op, ok := lic.OutputProtectionLevels(); ok {
			cmd.Printf(
				"Output levels:  video %d/%d analog %d audio %d/%d\n",
				op.CompressedDigitalVideo, op.UncompressedDigitalVideo,
				op.AnalogVideo,
				op.CompressedDigitalAudio, op.UncompressedDigitalAudio,
			)
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(licenseCmd)
}
