package config

import "time"

// CLIConfig is the configuration for zephyrite-cli.
type CLIConfig struct {
	// Server is the base URL of the HTTP API.
	Server string `json:"server" yaml:"server"`

	// Output is the default output format: table, json or yaml.
	Output string `json:"output" yaml:"output"`

	// Timeout bounds each request.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`
}

// Default returns the default CLI configuration.
func Default() *CLIConfig {
	return &CLIConfig{
		Server:  "http://localhost:8080",
		Output:  "table",
		Timeout: 30 * time.Second,
	}
}
