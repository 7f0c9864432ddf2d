// Package command defines the zephyrite-cli commands.
//
// Each command resolves its settings from the CLI config file, ZEPHYRITE_*
// environment variables and global flags, calls the HTTP API through
// package connection and renders the result through package output.
package command
