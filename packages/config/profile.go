package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Profile describes how a modem family spells the HTTP and SSL command
// surface. SIMCom's SIM76xx series uses the HTTPINIT/HTTPACTION family while
// the SIM70xx series uses SHCONN/SHREQ; a profile lets the same driver talk
// to either.
type Profile struct {
	Name       string          `yaml:"name"`
	URCPrefix  string          `yaml:"urc"`        // request-finished notification prefix
	Prompt     string          `yaml:"prompt"`     // body upload prompt
	SSLContext int             `yaml:"sslContext"` // SSL context index
	TLSVersion int             `yaml:"tlsVersion"` // module encoding; 3 selects TLS 1.2
	Commands   ProfileCommands `yaml:"commands"`
}

// ProfileCommands maps logical command slots to AT mnemonics.
type ProfileCommands struct {
	Init       string `yaml:"init"`
	Term       string `yaml:"term"`
	Param      string `yaml:"param"`
	Data       string `yaml:"data"`
	Action     string `yaml:"action"`
	Read       string `yaml:"read"`
	SSLConfig  string `yaml:"sslconfig"`
	SSLProfile string `yaml:"sslprofile"`
}

// SIM7600 is the default profile, matching the LTE CAT-4 modules the OTA
// firmware ships with.
func SIM7600() *Profile {
	return &Profile{
		Name:       "sim7600",
		URCPrefix:  "+HTTPACTION:",
		Prompt:     "DOWNLOAD",
		SSLContext: 0,
		TLSVersion: 3,
		Commands: ProfileCommands{
			Init:       "HTTPINIT",
			Term:       "HTTPTERM",
			Param:      "HTTPPARA",
			Data:       "HTTPDATA",
			Action:     "HTTPACTION",
			Read:       "HTTPREAD",
			SSLConfig:  "CSSLCFG",
			SSLProfile: "SHSSL",
		},
	}
}

// SIM7080 covers the CAT-M/NB-IoT family, which uses the SH* HTTP service.
func SIM7080() *Profile {
	return &Profile{
		Name:       "sim7080",
		URCPrefix:  "+SHREQ:",
		Prompt:     ">",
		SSLContext: 1,
		TLSVersion: 3,
		Commands: ProfileCommands{
			Init:       "SHCONN",
			Term:       "SHDISC",
			Param:      "SHCONF",
			Data:       "SHBOD",
			Action:     "SHREQ",
			Read:       "SHREAD",
			SSLConfig:  "CSSLCFG",
			SSLProfile: "SHSSL",
		},
	}
}

var builtinProfiles = map[string]func() *Profile{
	"sim7600": SIM7600,
	"sim7080": SIM7080,
}

// LoadProfile resolves a builtin profile name or loads a YAML profile file.
func LoadProfile(nameOrPath string) (*Profile, error) {
	if nameOrPath == "" {
		return SIM7600(), nil
	}
	if factory, ok := builtinProfiles[strings.ToLower(nameOrPath)]; ok {
		return factory(), nil
	}

	data, err := os.ReadFile(nameOrPath)
	if err != nil {
		return nil, fmt.Errorf("profile %q is not builtin and could not be read: %w", nameOrPath, err)
	}

	profile := SIM7600() // file overrides defaults field by field
	if err := yaml.Unmarshal(data, profile); err != nil {
		return nil, fmt.Errorf("parse profile %s: %w", nameOrPath, err)
	}
	return profile, nil
}
