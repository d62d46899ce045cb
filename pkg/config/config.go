// Package config defines runtime configuration and the rules file format.
package config

import (
	"os"
	"path/filepath"
)

// Defaults.
const (
	DefaultRegion = "us-east-1"
	DefaultOutput = "table"
)

// Config is the resolved runtime configuration, bound from flags, the
// config file and CLOUDTHRIFT_* environment variables.
type Config struct {
	// Region is the cloud region to scan.
	Region string `mapstructure:"region"`
	// DataDir holds the vault, the scan store and cached reports.
	DataDir string `mapstructure:"data_dir"`
	// Output selects table or json rendering.
	Output string `mapstructure:"output"`
	// JSONLogs switches log output from text to JSON.
	JSONLogs bool `mapstructure:"json_logs"`
	// Verbose lowers the log level to debug.
	Verbose bool `mapstructure:"verbose"`
	// RulesFile points to an optional YAML file tuning checks and rates.
	RulesFile string `mapstructure:"rules_file"`

	Slack   SlackConfig   `mapstructure:"slack"`
	Tracing TracingConfig `mapstructure:"tracing"`
}

// SlackConfig enables scan lifecycle notifications.
type SlackConfig struct {
	WebhookURL string `mapstructure:"webhook_url"`
	Channel    string `mapstructure:"channel"`
}

// TracingConfig selects the span exporter.
type TracingConfig struct {
	// Endpoint is an OTLP/HTTP collector URL.
	Endpoint string `mapstructure:"endpoint"`
}

// Default returns the stock configuration.
func Default() Config {
	return Config{
		Region:  DefaultRegion,
		DataDir: DefaultDataDir(),
		Output:  DefaultOutput,
	}
}

// DefaultDataDir resolves ~/.cloudthrift, falling back to a relative
// directory when the home directory is unknown.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".cloudthrift"
	}
	return filepath.Join(home, ".cloudthrift")
}
