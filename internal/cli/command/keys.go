package command

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strconv"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/zephyrite/zephyrite/internal/cli/connection"
	"github.com/zephyrite/zephyrite/internal/cli/output"
	"github.com/zephyrite/zephyrite/internal/server/httpserver/handler"
)

// GetCommand returns the get command.
func GetCommand() *cli.Command {
	return &cli.Command{
		Name:      "get",
		Usage:     "Show a key and its value",
		ArgsUsage: "KEY",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "raw",
				Usage: "write only the value bytes",
			},
		},
		Action: getKey,
	}
}

// keyView renders a key as FIELD/VALUE rows.
type keyView struct {
	*handler.KeyResponse
}

func (v keyView) Table() *output.Table {
	t := output.NewTable("FIELD", "VALUE")
	value := v.Value
	if v.Encoding == handler.EncodingBase64 {
		value = fmt.Sprintf("(%d bytes, base64) %s", v.Size, v.Value)
	}
	t.AddRow("key", v.Key)
	t.AddRow("value", value)
	t.AddRow("size", strconv.Itoa(v.Size))
	t.AddRow("created_at", v.CreatedAt.Format(time.RFC3339))
	t.AddRow("updated_at", v.UpdatedAt.Format(time.RFC3339))
	return t
}

func (v keyView) Data() any {
	return v.KeyResponse
}

func getKey(c *cli.Context) error {
	if err := requireArgs(c, 1, "KEY"); err != nil {
		return err
	}
	s, err := newSession(c)
	if err != nil {
		return err
	}
	key := c.Args().First()

	if c.Bool("raw") {
		value, err := s.client.GetRaw(c.Context, key)
		if err != nil {
			return err
		}
		_, err = s.w.Write(value)
		return err
	}

	kr, err := s.client.Get(c.Context, key)
	if err != nil {
		return err
	}
	return s.render(keyView{kr})
}

// PutCommand returns the put command.
func PutCommand() *cli.Command {
	return &cli.Command{
		Name:      "put",
		Aliases:   []string{"set"},
		Usage:     "Store a value under a key",
		ArgsUsage: "KEY [VALUE|-]",
		Description: "The value comes from the second argument, from --file, " +
			"or from standard input when it is \"-\" or missing.",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "file",
				Aliases: []string{"f"},
				Usage:   "read the value from a file",
			},
		},
		Action: putKey,
	}
}

func readValue(c *cli.Context) ([]byte, error) {
	file := c.String("file")
	arg := c.Args().Get(1)
	switch {
	case file != "" && c.NArg() > 1:
		return nil, errors.New("give the value either as an argument or with --file")
	case file != "":
		return os.ReadFile(file)
	case c.NArg() > 1 && arg != "-":
		return []byte(arg), nil
	default:
		return io.ReadAll(c.App.Reader)
	}
}

func putKey(c *cli.Context) error {
	if err := requireArgs(c, 1, "KEY [VALUE|-]"); err != nil {
		return err
	}
	s, err := newSession(c)
	if err != nil {
		return err
	}
	value, err := readValue(c)
	if err != nil {
		return err
	}

	res, err := s.client.Put(c.Context, c.Args().First(), value)
	if err != nil {
		return err
	}
	verb := "updated"
	if res.Created {
		verb = "created"
	}
	return s.report(fmt.Sprintf("%s %s (%d bytes)", verb, res.Key, res.Size), res)
}

// DeleteCommand returns the delete command.
func DeleteCommand() *cli.Command {
	return &cli.Command{
		Name:      "delete",
		Aliases:   []string{"del", "rm"},
		Usage:     "Delete one or more keys",
		ArgsUsage: "KEY...",
		Action:    deleteKeys,
	}
}

type deleteResult struct {
	Deleted  []string `json:"deleted" yaml:"deleted"`
	NotFound []string `json:"not_found" yaml:"not_found"`
}

func deleteKeys(c *cli.Context) error {
	if err := requireArgs(c, 1, "KEY..."); err != nil {
		return err
	}
	s, err := newSession(c)
	if err != nil {
		return err
	}

	res := deleteResult{Deleted: []string{}, NotFound: []string{}}
	for _, key := range c.Args().Slice() {
		err := s.client.Delete(c.Context, key)
		switch {
		case err == nil:
			res.Deleted = append(res.Deleted, key)
		case connection.IsNotFound(err):
			res.NotFound = append(res.NotFound, key)
		default:
			return fmt.Errorf("delete %s: %w", key, err)
		}
	}

	if s.format == output.FormatTable {
		for _, k := range res.Deleted {
			fmt.Fprintf(s.w, "deleted %s\n", k)
		}
	} else if err := s.render(res); err != nil {
		return err
	}
	if len(res.NotFound) > 0 {
		return fmt.Errorf("not found: %v", res.NotFound)
	}
	return nil
}

// KeysCommand returns the keys command.
func KeysCommand() *cli.Command {
	return &cli.Command{
		Name:      "keys",
		Aliases:   []string{"ls"},
		Usage:     "List keys, optionally filtered by a glob pattern",
		ArgsUsage: "[PATTERN]",
		Action:    listKeys,
	}
}

type keyList struct {
	keys []string
}

func (l keyList) Table() *output.Table {
	t := output.NewTable("KEY")
	for _, k := range l.keys {
		t.AddRow(k)
	}
	return t
}

func (l keyList) Data() any {
	return handler.ListKeysResponse{Keys: l.keys, Count: len(l.keys)}
}

func listKeys(c *cli.Context) error {
	pattern := c.Args().First()
	if pattern != "" {
		if _, err := path.Match(pattern, ""); err != nil {
			return fmt.Errorf("bad pattern %q: %w", pattern, err)
		}
	}
	s, err := newSession(c)
	if err != nil {
		return err
	}

	list, err := s.client.Keys(c.Context)
	if err != nil {
		return err
	}
	keys := make([]string, 0, len(list.Keys))
	for _, k := range list.Keys {
		if pattern == "" {
			keys = append(keys, k)
			continue
		}
		if ok, _ := path.Match(pattern, k); ok {
			keys = append(keys, k)
		}
	}
	return s.render(keyList{keys: keys})
}

// ClearCommand returns the clear command.
func ClearCommand() *cli.Command {
	return &cli.Command{
		Name:  "clear",
		Usage: "Delete every key",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "force",
				Usage: "confirm removing all data",
			},
		},
		Action: clearKeys,
	}
}

func clearKeys(c *cli.Context) error {
	if !c.Bool("force") {
		return errors.New("clear removes every key; pass --force to confirm")
	}
	s, err := newSession(c)
	if err != nil {
		return err
	}
	n, err := s.client.Clear(c.Context)
	if err != nil {
		return err
	}
	return s.report(fmt.Sprintf("removed %d keys", n), handler.ClearResponse{Removed: n})
}
