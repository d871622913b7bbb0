package config

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// Config represents the modemprobe configuration.
type Config struct {
	Port            string `json:"port,omitempty"`            // serial device, e.g. /dev/ttyUSB2
	Baud            int    `json:"baud,omitempty"`            // serial baud rate
	BaseURL         string `json:"baseUrl,omitempty"`         // backend base URL
	DeviceID        string `json:"deviceId,omitempty"`        // device identity for OTA calls
	FirmwareVersion string `json:"firmwareVersion,omitempty"` // reported in OTA check requests
	ResponseTimeout int    `json:"responseTimeout,omitempty"` // milliseconds to wait for the request-finished notification
	CommandTimeout  int    `json:"commandTimeout,omitempty"`  // milliseconds per plain AT command
	Profile         string `json:"profile,omitempty"`         // builtin profile name or path to a .yaml profile
	Journal         string `json:"journal,omitempty"`         // sqlite journal path; empty disables journaling
	Verbose         *bool  `json:"verbose,omitempty"`
	NoColor         *bool  `json:"noColor,omitempty"`
}

func getBool(b *bool, defaultVal bool) bool {
	if b == nil {
		return defaultVal
	}
	return *b
}

// GetVerbose returns the verbose setting, defaulting to false.
func (c *Config) GetVerbose() bool {
	return getBool(c.Verbose, false)
}

// GetNoColor returns the no color setting, defaulting to false.
func (c *Config) GetNoColor() bool {
	return getBool(c.NoColor, false)
}

// ConfigFilenames contains the possible config file names.
var ConfigFilenames = []string{
	".modemprobe.json",
	"modemprobe.json",
}

// LoadConfig loads configuration from the specified path or searches for
// config files in the current directory.
func LoadConfig(path string) (*Config, error) {
	if path != "" {
		return loadConfigFromFile(path)
	}
	return FindAndLoadConfig(".")
}

// FindAndLoadConfig searches for a config file in the given directory.
func FindAndLoadConfig(dir string) (*Config, error) {
	for _, filename := range ConfigFilenames {
		configPath := filepath.Join(dir, filename)
		if _, err := os.Stat(configPath); err == nil {
			return loadConfigFromFile(configPath)
		}
	}
	return DefaultConfig(), nil
}

func loadConfigFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	config := DefaultConfig()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, err
	}
	return config, nil
}

// Merge merges another config into this one, with other taking precedence.
func (c *Config) Merge(other *Config) *Config {
	if other == nil {
		return c
	}

	result := *c

	if other.Port != "" {
		result.Port = other.Port
	}
	if other.Baud > 0 {
		result.Baud = other.Baud
	}
	if other.BaseURL != "" {
		result.BaseURL = other.BaseURL
	}
	if other.DeviceID != "" {
		result.DeviceID = other.DeviceID
	}
	if other.FirmwareVersion != "" {
		result.FirmwareVersion = other.FirmwareVersion
	}
	if other.ResponseTimeout > 0 {
		result.ResponseTimeout = other.ResponseTimeout
	}
	if other.CommandTimeout > 0 {
		result.CommandTimeout = other.CommandTimeout
	}
	if other.Profile != "" {
		result.Profile = other.Profile
	}
	if other.Journal != "" {
		result.Journal = other.Journal
	}
	if other.Verbose != nil {
		result.Verbose = other.Verbose
	}
	if other.NoColor != nil {
		result.NoColor = other.NoColor
	}

	return &result
}

// SaveConfig saves the configuration to a file.
func (c *Config) SaveConfig(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
