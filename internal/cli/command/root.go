package command

import (
	"fmt"
	"io"

	"github.com/urfave/cli/v2"

	"github.com/zephyrite/zephyrite/internal/cli/config"
	"github.com/zephyrite/zephyrite/internal/cli/connection"
	"github.com/zephyrite/zephyrite/internal/cli/output"
	"github.com/zephyrite/zephyrite/internal/infra/buildinfo"
)

// App creates the CLI application.
func App() *cli.App {
	return &cli.App{
		Name:    "zephyrite-cli",
		Usage:   "Zephyrite key-value store client",
		Version: buildinfo.String(),
		Flags:   globalFlags(),
		Commands: []*cli.Command{
			GetCommand(),
			PutCommand(),
			DeleteCommand(),
			KeysCommand(),
			ClearCommand(),
			StatsCommand(),
			CompactCommand(),
			BackupCommand(),
			HealthCommand(),
			ConfigCommand(),
		},
	}
}

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Usage:   "CLI config file",
			EnvVars: []string{"ZEPHYRITE_CLI_CONFIG"},
			Value:   config.DefaultConfigPath(),
		},
		&cli.StringFlag{
			Name:    "server",
			Aliases: []string{"s"},
			Usage:   "server address, e.g. localhost:8080",
			EnvVars: []string{"ZEPHYRITE_SERVER"},
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "output format: table, json, yaml",
		},
		&cli.DurationFlag{
			Name:  "timeout",
			Usage: "request timeout",
		},
		&cli.BoolFlag{
			Name:  "no-headers",
			Usage: "omit table headers",
		},
	}
}

// settings loads the config file and applies the global flags over it.
func settings(c *cli.Context) (*config.CLIConfig, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	if c.IsSet("server") {
		cfg.Server = c.String("server")
	}
	if c.IsSet("output") {
		cfg.Output = c.String("output")
	}
	if c.IsSet("timeout") {
		cfg.Timeout = c.Duration("timeout")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// session bundles what a command needs to call the server and print.
type session struct {
	client    *connection.Client
	format    output.Format
	noHeaders bool
	w         io.Writer
}

func newSession(c *cli.Context) (*session, error) {
	cfg, err := settings(c)
	if err != nil {
		return nil, err
	}
	format, err := output.ParseFormat(cfg.Output)
	if err != nil {
		return nil, err
	}
	return &session{
		client:    connection.NewClient(cfg.Server, cfg.Timeout),
		format:    format,
		noHeaders: c.Bool("no-headers"),
		w:         c.App.Writer,
	}, nil
}

// render prints data in the session's format.
func (s *session) render(data any) error {
	f := output.NewFormatter(s.format)
	if tf, ok := f.(*output.TableFormatter); ok {
		tf.NoHeaders = s.noHeaders
	}
	return f.Format(s.w, data)
}

// report prints msg for table output and data otherwise.
func (s *session) report(msg string, data any) error {
	if s.format == output.FormatTable {
		_, err := fmt.Fprintln(s.w, msg)
		return err
	}
	return s.render(data)
}

func requireArgs(c *cli.Context, n int, usage string) error {
	if c.NArg() < n {
		return fmt.Errorf("usage: %s %s", c.Command.Name, usage)
	}
	return nil
}
