package cmd

import (
	"encoding/base64"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cdmlab/go_cdm/internal/cli"
	"github.com/cdmlab/go_cdm/internal/config"
	"github.com/cdmlab/go_cdm/internal/logging"
	"github.com/cdmlab/go_cdm/pkg/cdm"
	"github.com/cdmlab/go_cdm/pkg/playready"
)

var playreadyCmd = &cobra.Command{
	Use:   "playready",
	Short: "Acquire content keys from a PlayReady license server",
	Long: `Build a signed PlayReady license challenge for the given PSSH box,
send it to the license server, and print the recovered content keys as
kid:key hex pairs.

The device needs three provisioning files: the ECC signing key, the ECC
encryption key, and the binary group certificate chain.`,
	Example: `  # Acquire keys
  go_cdm playready --pssh AAAD4nBzc2gA... --url https://license.example.com/rightsmanager.asmx

  # Only print the challenge XML, base64-encoded
  go_cdm playready --pssh AAAD4nBzc2gA... --challenge-only`,
	SilenceErrors: true,
	SilenceUsage:  true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		psshB64, _ := cmd.Flags().GetString("pssh")
		url, _ := cmd.Flags().GetString("url")
		signKeyPath, _ := cmd.Flags().GetString("group-key")
		encKeyPath, _ := cmd.Flags().GetString("encryption-key")
		certPath, _ := cmd.Flags().GetString("cert")
		challengeOnly, _ := cmd.Flags().GetBool("challenge-only")
		verbose, _ := cmd.Flags().GetBool("verbose")

		box, err := loadBox(psshB64)
		if err != nil {
			return err
		}

		dev, err := loadPlayReadyDevice(signKeyPath, encKeyPath, certPath)
		if err != nil {
			return err
		}
		client, err := playready.NewCDM(dev)
		if err != nil {
			return err
		}

		session, err := cdm.NewManager().Open()
		if err != nil {
			return err
		}
		challenge, err := client.BuildChallenge(session, box)
		if err != nil {
			return err
		}
		if challengeOnly {
			cmd.Println(base64.StdEncoding.EncodeToString(challenge))

			return nil
		}

		if url, err = resolveURL(url); err != nil {
			return err
		}
		logging.LogChallenge("playready", session.ID().String(), url, len(challenge))

		headers := map[string]string{
			"SOAPAction": `"http://schemas.microsoft.com/DRM/2007/03/protocols/AcquireLicense"`,
		}
		for k, v := range config.Get().License.Headers {
			headers[k] = v
		}
		response, err := postChallenge(
			cmd.Context(), url, "text/xml; charset=utf-8", headers, challenge,
		)
		if err != nil {
			return err
		}

		keys, err := client.ProcessResponse(session, response)
		if err != nil {
			return err
		}
		logging.LogLicense("playready", session.ID().String(), len(response), len(keys))

		if verbose {
			cli.RenderContentKeysVerbose(cmd.OutOrStdout(), keys)
		} else {
			cli.RenderContentKeys(cmd.OutOrStdout(), keys)
		}

		return nil
	},
}

func loadPlayReadyDevice(signKeyPath, encKeyPath, certPath string) (*playready.Device, error) {
	cfg := config.Get()
	if signKeyPath == "" {
		signKeyPath = cfg.Device.GroupKey
	}
	if encKeyPath == "" {
		encKeyPath = cfg.Device.EncryptionKey
	}
	if certPath == "" {
		certPath = cfg.Device.CertificateChain
	}

	signKey, err := os.ReadFile(signKeyPath)
	if err != nil {
		return nil, fmt.Errorf("signing key: %w", err)
	}
	encKey, err := os.ReadFile(encKeyPath)
	if err != nil {
		return nil, fmt.Errorf("encryption key: %w", err)
	}
	cert, err := os.ReadFile(certPath)
	if err != nil {
		return nil, fmt.Errorf("certificate chain: %w", err)
	}

	return playready.NewDevice(signKey, encKey, cert)
}

func init() {
	rootCmd.AddCommand(playreadyCmd)

	playreadyCmd.Flags().String("pssh", "", "Base64 PSSH box of the protected content")
	playreadyCmd.Flags().String("url", "", "License server URL")
	playreadyCmd.Flags().String("group-key", "", "Path to the ECC signing key (zgpriv.dat)")
	playreadyCmd.Flags().
		String("encryption-key", "", "Path to the ECC encryption key")
	playreadyCmd.Flags().String("cert", "", "Path to the group certificate chain (bgroupcert.dat)")
	playreadyCmd.Flags().Bool("challenge-only", false, "Print the challenge instead of sending it")
	playreadyCmd.Flags().Bool("verbose", false, "Show all key roles, not only content keys")
}
