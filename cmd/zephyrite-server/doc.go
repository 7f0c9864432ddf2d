// Command zephyrite-server runs the Zephyrite key-value store.
//
// It serves the HTTP API and, when enabled, the Redis protocol, over one
// of three storage backends: memory, wal or badger.
//
// Usage:
//
//	zephyrite-server [flags]
//	zephyrite-server --config /etc/zephyrite/config.yaml
//	zephyrite-server --persistent --wal-file /var/lib/zephyrite/zephyrite.wal
//
// Configuration is layered: built-in defaults, then the YAML file, then
// ZEPHYRITE_* environment variables, then flags given on the command line.
package main
