// Package config defines the zephyrite-server configuration.
//
//   - spec.go: the ServerConfig tree and its koanf keys
//   - default.go: default values
//   - verify.go: validation run after every source is loaded
//   - sanitize.go: a copy safe to log
//
// Values are loaded by internal/infra/confloader in the order defaults,
// YAML file, ZEPHYRITE_* environment, command-line flags.
package config
