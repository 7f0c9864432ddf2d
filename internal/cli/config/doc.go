// Package config holds the zephyrite-cli settings file.
//
// The file lives at ~/.zephyrite/cli.yaml by default and stores the server
// address, the default output format and the request timeout. Flags and
// ZEPHYRITE_* environment variables override it per invocation.
package config
