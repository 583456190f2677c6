package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

var (
	configData Config
	v          *viper.Viper
)

// Config holds all configuration settings.
type Config struct {
	// License server configuration
	License struct {
		URL     string
		Headers map[string]string
	}
	// Device credential locations
	Device struct {
		// Widevine client
		PrivateKey string
		ClientID   string
		// PlayReady client
		GroupKey         string
		EncryptionKey    string
		CertificateChain string
	}
	// Logging configuration
	Log struct {
		Level  string
		Format string
	}
}

// Initialize sets up the configuration system.
func Initialize() error {
	v = viper.New()

	// Set config name and paths
	v.SetConfigName("config")        // name of config file (without extension)
	v.SetConfigType("yaml")          // config file type
	v.AddConfigPath(".")             // optionally look for config in working directory
	v.AddConfigPath("$HOME/.go_cdm") // look for config in .go_cdm directory in home
	v.AddConfigPath("/etc/go_cdm/")  // path to look for the config file in

	// Set default values
	setDefaults()

	// Environment variables
	v.SetEnvPrefix("GOCDM") // prefix for env vars
	v.AutomaticEnv()        // read in environment variables that match
	v.SetEnvKeyReplacer(    // replace dots with underscores in env vars
		strings.NewReplacer(".", "_"),
	)

	// Create config file if it doesn't exist
	if err := ensureConfig(); err != nil {
		return fmt.Errorf("error creating config file: %w", err)
	}

	// Read in config file
	if err := v.ReadInConfig(); err != nil {
		// It's okay if we can't find a config file, we'll use defaults
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	// Unmarshal config into struct
	if err := v.Unmarshal(&configData); err != nil {
		return fmt.Errorf("unable to decode into config struct: %w", err)
	}

	return nil
}

// setDefaults sets default values for all configuration options.
func setDefaults() {
	// Device credential defaults, relative to the config directory
	home := filepath.Join(os.Getenv("HOME"), ".go_cdm")
	v.SetDefault("device.privatekey", filepath.Join(home, "device_private_key.pem"))
	v.SetDefault("device.clientid", filepath.Join(home, "device_client_id.bin"))
	v.SetDefault("device.groupkey", filepath.Join(home, "zgpriv.dat"))
	v.SetDefault("device.encryptionkey", filepath.Join(home, "zgpriv_enc.dat"))
	v.SetDefault("device.certificatechain", filepath.Join(home, "bgroupcert.dat"))

	// Logging defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "human")
}

// ensureConfig creates a default config file if none exists.
func ensureConfig() error {
	// Check if config file exists
	if _, err := os.Stat(filepath.Join(os.Getenv("HOME"), ".go_cdm")); os.IsNotExist(err) {
		// Create directory
		if err := os.MkdirAll(filepath.Join(os.Getenv("HOME"), ".go_cdm"), 0o755); err != nil {
			return err
		}
	}

	configFile := filepath.Join(os.Getenv("HOME"), ".go_cdm", "config.yaml")
	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		// Create default config file
		defaultConfig := `# GO CDM Configuration File
license:
  url: ""

device:
  privatekey: ""
  clientid: ""
  groupkey: ""
  encryptionkey: ""
  certificatechain: ""

log:
  level: info
  format: human
`
		if err := os.WriteFile(configFile, []byte(defaultConfig), 0o644); err != nil {
			return err
		}
	}

	return nil
}

// Get returns the current configuration.
func Get() *Config {
	return &configData
}

// GetViper returns the viper instance.
func GetViper() *viper.Viper {
	return v
}
