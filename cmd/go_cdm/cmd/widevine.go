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
	"github.com/cdmlab/go_cdm/pkg/widevine"
)

var widevineCmd = &cobra.Command{
	Use:   "widevine",
	Short: "Acquire content keys from a Widevine license server",
	Long: `Build a signed Widevine license challenge for the given PSSH box,
send it to the license server, and print the recovered content keys as
kid:key hex pairs.

With --privacy the client identification travels encrypted under the
server's service certificate. Use --server-cert with a base64 certificate,
or the built-in "production" or "staging" certificates.`,
	Example: `  # Acquire keys
  go_cdm widevine --pssh AAAAW3Bzc2gA... --url https://license.example.com/wv

  # Privacy mode against the production service
  go_cdm widevine --pssh AAAAW3Bzc2gA... --url https://... --privacy --server-cert production

  # Only print the challenge, base64-encoded
  go_cdm widevine --pssh AAAAW3Bzc2gA... --challenge-only`,
	SilenceErrors: true,
	SilenceUsage:  true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		psshB64, _ := cmd.Flags().GetString("pssh")
		url, _ := cmd.Flags().GetString("url")
		keyPath, _ := cmd.Flags().GetString("device-key")
		clientIDPath, _ := cmd.Flags().GetString("client-id")
		deviceType, _ := cmd.Flags().GetString("device-type")
		licenseType, _ := cmd.Flags().GetString("license-type")
		privacy, _ := cmd.Flags().GetBool("privacy")
		serverCert, _ := cmd.Flags().GetString("server-cert")
		challengeOnly, _ := cmd.Flags().GetBool("challenge-only")
		verbose, _ := cmd.Flags().GetBool("verbose")

		box, err := loadBox(psshB64)
		if err != nil {
			return err
		}

		dev, err := loadWidevineDevice(keyPath, clientIDPath, deviceType)
		if err != nil {
			return err
		}

		opts := []widevine.Option{}
		switch licenseType {
		case "", "streaming":
		case "offline":
			opts = append(opts, widevine.WithLicenseType(widevine.LicenseOffline))
		case "automatic":
			opts = append(opts, widevine.WithLicenseType(widevine.LicenseAutomatic))
		default:
			return fmt.Errorf("unknown license type %q", licenseType)
		}
		if privacy {
			opts = append(opts, widevine.WithPrivacyMode())
		}
		client := widevine.NewCDM(dev, opts...)

		session, err := cdm.NewManager().Open()
		if err != nil {
			return err
		}
		if privacy {
			// "remote" asks the license server for its own certificate first.
			if serverCert == "remote" {
				if url, err = resolveURL(url); err != nil {
					return err
				}
				raw, err := postChallenge(
					cmd.Context(), url, "application/octet-stream",
					config.Get().License.Headers, widevine.ServiceCertificateRequest,
				)
				if err != nil {
					return fmt.Errorf("fetch service certificate: %w", err)
				}
				msg, err := widevine.UnmarshalSignedMessage(raw)
				if err != nil {
					return fmt.Errorf("service certificate response: %w", err)
				}
				if _, err := widevine.SetServiceCertificate(session, msg.Msg); err != nil {
					return err
				}
			} else if err := installServiceCertificate(session, serverCert); err != nil {
				return err
			}
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
		logging.LogChallenge("widevine", session.ID().String(), url, len(challenge))

		response, err := postChallenge(
			cmd.Context(), url, "application/octet-stream",
			config.Get().License.Headers, challenge,
		)
		if err != nil {
			return err
		}

		keys, err := client.ProcessResponse(session, response)
		if err != nil {
			return err
		}
		logging.LogLicense("widevine", session.ID().String(), len(response), len(keys))

		if verbose {
			cli.RenderContentKeysVerbose(cmd.OutOrStdout(), keys)
		} else {
			cli.RenderContentKeys(cmd.OutOrStdout(), keys)
		}

		return nil
	},
}

func loadWidevineDevice(keyPath, clientIDPath, deviceType string) (*widevine.Device, error) {
	cfg := config.Get()
	if keyPath == "" {
		keyPath = cfg.Device.PrivateKey
	}
	if clientIDPath == "" {
		clientIDPath = cfg.Device.ClientID
	}

	keyData, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("device key: %w", err)
	}
	clientID, err := os.ReadFile(clientIDPath)
	if err != nil {
		return nil, fmt.Errorf("client id: %w", err)
	}

	typ := widevine.DeviceAndroid
	switch deviceType {
	case "", "android":
	case "chrome":
		typ = widevine.DeviceChrome
	default:
		return nil, fmt.Errorf("unknown device type %q", deviceType)
	}

	return widevine.NewDevice(typ, keyData, clientID)
}

func installServiceCertificate(session *cdm.Session, serverCert string) error {
	switch serverCert {
	case "production":
		widevine.SetProductionServiceCertificate(session)
	case "staging":
		widevine.SetStagingServiceCertificate(session)
	case "":
		return fmt.Errorf("privacy mode needs --server-cert")
	default:
		raw, err := base64.StdEncoding.DecodeString(serverCert)
		if err != nil {
			return fmt.Errorf("server certificate base64: %w", err)
		}
		if _, err := widevine.SetServiceCertificate(session, raw); err != nil {
			return err
		}
	}

	return nil
}

func init() {
	rootCmd.AddCommand(widevineCmd)

	widevineCmd.Flags().String("pssh", "", "Base64 PSSH box of the protected content")
	widevineCmd.Flags().String("url", "", "License server URL")
	widevineCmd.Flags().
		String("device-key", "", "Path to the device RSA private key (PEM or DER)")
	widevineCmd.Flags().String("client-id", "", "Path to the serialized client identification")
	widevineCmd.Flags().String("device-type", "android", "Device type: android or chrome")
	widevineCmd.Flags().
		String("license-type", "streaming", "License type: streaming, offline, or automatic")
	widevineCmd.Flags().Bool("privacy", false, "Encrypt the client identification")
	widevineCmd.Flags().
		String("server-cert", "", `Service certificate: base64, "production", "staging", or "remote"`)
	widevineCmd.Flags().Bool("challenge-only", false, "Print the challenge instead of sending it")
	widevineCmd.Flags().Bool("verbose", false, "Show all key roles, not only content keys")
}
