package command

import (
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

// StatsCommand returns the stats command.
func StatsCommand() *cli.Command {
	return &cli.Command{
		Name:   "stats",
		Usage:  "Show storage statistics",
		Action: showStats,
	}
}

func showStats(c *cli.Context) error {
	s, err := newSession(c)
	if err != nil {
		return err
	}
	st, err := s.client.Stats(c.Context)
	if err != nil {
		return err
	}
	return s.render(st)
}

// CompactCommand returns the compact command.
func CompactCommand() *cli.Command {
	return &cli.Command{
		Name:   "compact",
		Usage:  "Rewrite the server's log to one record per live key",
		Action: compact,
	}
}

func compact(c *cli.Context) error {
	s, err := newSession(c)
	if err != nil {
		return err
	}
	res, err := s.client.Compact(c.Context)
	if err != nil {
		return err
	}
	return s.report(fmt.Sprintf("compacted %d records to %d (%d -> %d bytes) in %s",
		res.EntriesBefore, res.EntriesAfter, res.BytesBefore, res.BytesAfter, res.Duration), res)
}

// BackupCommand returns the backup command.
func BackupCommand() *cli.Command {
	return &cli.Command{
		Name:  "backup",
		Usage: "Download a backup of the server's data",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "out",
				Aliases:  []string{"O"},
				Usage:    "destination file",
				Required: true,
			},
		},
		Action: backup,
	}
}

type backupResult struct {
	Path  string `json:"path" yaml:"path"`
	Bytes int64  `json:"bytes" yaml:"bytes"`
}

func backup(c *cli.Context) error {
	s, err := newSession(c)
	if err != nil {
		return err
	}

	path := c.String("out")
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return err
	}
	n, err := s.client.Backup(c.Context, f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return errors.Join(err, os.Remove(path))
	}
	return s.report(fmt.Sprintf("wrote %d bytes to %s", n, path), backupResult{Path: path, Bytes: n})
}

// HealthCommand returns the health command.
func HealthCommand() *cli.Command {
	return &cli.Command{
		Name:   "health",
		Usage:  "Check server health",
		Action: health,
	}
}

func health(c *cli.Context) error {
	s, err := newSession(c)
	if err != nil {
		return err
	}
	h, err := s.client.Health(c.Context)
	if err != nil {
		return err
	}
	return s.render(h)
}
