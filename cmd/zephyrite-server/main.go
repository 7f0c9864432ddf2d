package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/zephyrite/zephyrite/internal/infra/buildinfo"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "zephyrite-server",
		Usage:   "Zephyrite key-value store server",
		Version: buildinfo.String(),
		Flags:   serverFlags(),
		Action:  run,
	}
}

func serverFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "path to a YAML configuration file",
			EnvVars: []string{"ZEPHYRITE_CONFIG"},
		},
		&cli.IntFlag{
			Name:    "port",
			Aliases: []string{"p"},
			Usage:   "HTTP port; listens on all interfaces",
		},
		&cli.StringFlag{
			Name:  "log-level",
			Usage: "log level: debug, info, warn, error",
		},
		&cli.BoolFlag{
			Name:  "persistent",
			Usage: "keep data in a write-ahead log and recover it on start",
		},
		&cli.StringFlag{
			Name:  "wal-file",
			Usage: "write-ahead log location",
			Value: "zephyrite.wal",
		},
		&cli.StringFlag{
			Name:  "data-dir",
			Usage: "badger data directory",
		},
		&cli.IntFlag{
			Name:  "memory-capacity",
			Usage: "number of keys to preallocate for",
			Value: 1000,
		},
		&cli.BoolFlag{
			Name:  "no-checksums",
			Usage: "write log records without CRC32-C checksums",
		},
		&cli.StringFlag{
			Name:  "backend",
			Usage: "storage backend: memory, wal, badger",
		},
		&cli.BoolFlag{
			Name:  "strict-keys",
			Usage: "also reject separators and dots in keys",
		},
		&cli.BoolFlag{
			Name:  "redis",
			Usage: "serve the Redis protocol",
		},
		&cli.StringFlag{
			Name:  "redis-addr",
			Usage: "Redis protocol listen address",
		},
		&cli.BoolFlag{
			Name:  "print-config",
			Usage: "print the effective configuration and exit",
		},
	}
}

// overrides maps the flags set on the command line onto config keys.
// Flags left at their defaults do not override the file or environment.
func overrides(c *cli.Context) map[string]any {
	out := make(map[string]any)
	if c.IsSet("port") {
		out["server.http.address"] = fmt.Sprintf(":%d", c.Int("port"))
	}
	if c.IsSet("log-level") {
		out["log.level"] = c.String("log-level")
	}
	if c.IsSet("persistent") {
		out["storage.persistent"] = c.Bool("persistent")
	}
	if c.IsSet("wal-file") {
		out["storage.wal_file"] = c.String("wal-file")
	}
	if c.IsSet("data-dir") {
		out["storage.data_dir"] = c.String("data-dir")
	}
	if c.IsSet("memory-capacity") {
		out["storage.memory_capacity"] = c.Int("memory-capacity")
	}
	if c.IsSet("no-checksums") {
		out["storage.checksums"] = !c.Bool("no-checksums")
	}
	if c.IsSet("backend") {
		out["storage.backend"] = c.String("backend")
	}
	if c.IsSet("strict-keys") {
		out["storage.strict_keys"] = c.Bool("strict-keys")
	}
	if c.IsSet("redis") {
		out["server.redis.enabled"] = c.Bool("redis")
	}
	if c.IsSet("redis-addr") {
		out["server.redis.address"] = c.String("redis-addr")
	}
	return out
}
