package core

import (
	"fmt"
	"strings"
)

// Region selects the PingOne API hostname. Unknown values fall back to NA.
type Region string

const (
	RegionNA   Region = "NA"
	RegionEU   Region = "EU"
	RegionAsia Region = "ASIA"
	RegionCA   Region = "CA"
)

var regionBaseURLs = map[Region]string{
	RegionNA:   "https://api.pingone.com/v1",
	RegionEU:   "https://api.pingone.eu/v1",
	RegionAsia: "https://api.pingone.asia/v1",
	RegionCA:   "https://api.pingone.ca/v1",
}

// NormalizeRegion maps a raw region string to a supported Region,
// defaulting to NA when the value is empty or unrecognized.
func NormalizeRegion(raw string) Region {
	region := Region(strings.ToUpper(strings.TrimSpace(raw)))
	if _, ok := regionBaseURLs[region]; ok {
		return region
	}
	return RegionNA
}

// BaseURL returns the management API root for the region.
func (r Region) BaseURL() string {
	if url, ok := regionBaseURLs[r]; ok {
		return url
	}
	return regionBaseURLs[RegionNA]
}

// LoggingConfig holds the per-log-file severity thresholds.
type LoggingConfig struct {
	APILevel        string `koanf:"api_log_level" mapstructure:"api_log_level"`
	ConnectionLevel string `koanf:"connection_log_level" mapstructure:"connection_log_level"`
}

// Config is the persisted, non-secret portion of the tool settings. The
// client secret never appears here; it lives encrypted in the credential
// store and in memory only as Credential.ClientSecret.
type Config struct {
	FriendlyName    string            `koanf:"friendly_name" mapstructure:"friendly_name"`
	Region          string            `koanf:"region" mapstructure:"region"`
	EnvironmentID   string            `koanf:"environment_id" mapstructure:"environment_id"`
	ClientID        string            `koanf:"client_id" mapstructure:"client_id"`
	AttributePrefix string            `koanf:"attribute_prefix" mapstructure:"attribute_prefix"`
	Logging         LoggingConfig     `koanf:"logging" mapstructure:"logging"`
	AdditionalAttrs map[string]string `koanf:"additional_attributes" mapstructure:"additional_attributes"`
}

func DefaultConfig() Config {
	return Config{
		Region: string(RegionNA),
		Logging: LoggingConfig{
			APILevel:        "INFO",
			ConnectionLevel: "INFO",
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Region) == "" {
		return fmt.Errorf("core: region is required")
	}
	return nil
}

// Spec returns the attribute set this configuration manages: the default
// inetOrgPerson attributes plus any configured additions, with the optional
// prefix applied to every name.
func (c Config) Spec() AttributeSpec {
	spec := DefaultAttributeSpec()
	for name, description := range c.AdditionalAttrs {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		spec[name] = description
	}
	return spec.WithPrefix(c.AttributePrefix)
}
