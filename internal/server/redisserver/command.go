package redisserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"sort"
	"strings"

	"github.com/zephyrite/zephyrite/internal/core/domain"
	"github.com/zephyrite/zephyrite/internal/storage"
)

// errQuit tells the connection loop to close after flushing the reply.
var errQuit = errors.New("quit")

// command describes one supported command. arity follows the Redis
// convention: positive means exact, negative means at least -arity
// arguments, both counting the command name.
type command struct {
	arity int
	run   func(ctx context.Context, w *Writer, args [][]byte) error
}

// CommandHandler executes commands against a storage engine.
type CommandHandler struct {
	engine   storage.Engine
	logger   *slog.Logger
	commands map[string]command
}

// NewCommandHandler creates a handler over engine.
func NewCommandHandler(engine storage.Engine, logger *slog.Logger) *CommandHandler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &CommandHandler{engine: engine, logger: logger}
	h.commands = map[string]command{
		"PING":    {-1, h.ping},
		"ECHO":    {2, h.echo},
		"QUIT":    {1, h.quit},
		"GET":     {2, h.get},
		"SET":     {3, h.set},
		"DEL":     {-2, h.del},
		"EXISTS":  {-2, h.exists},
		"KEYS":    {2, h.keys},
		"DBSIZE":  {1, h.dbsize},
		"FLUSHDB": {-1, h.flushdb},
		"INFO":    {-1, h.info},
		"COMMAND": {-1, h.command},
	}
	return h
}

// Handle runs one command and writes its reply. It returns the command
// name for metrics, whether the reply was an error, and errQuit when the
// client asked to close the connection.
func (h *CommandHandler) Handle(ctx context.Context, w *Writer, args [][]byte) (string, bool, error) {
	if len(args) == 0 {
		w.Error("ERR no command")
		return "", true, nil
	}

	name := commandName(args[0])
	cmd, ok := h.commands[name]
	if !ok {
		w.Error(fmt.Sprintf("ERR unknown command '%s'", args[0]))
		return "unknown", true, nil
	}
	if (cmd.arity > 0 && len(args) != cmd.arity) || (cmd.arity < 0 && len(args) < -cmd.arity) {
		w.Error(fmt.Sprintf("ERR wrong number of arguments for '%s' command", strings.ToLower(name)))
		return name, true, nil
	}

	err := cmd.run(ctx, w, args)
	if err == nil || errors.Is(err, errQuit) {
		return name, false, err
	}
	w.Error(formatError(err))
	if code := domain.GetErrorCode(err); code == "" || strings.HasPrefix(code, "ZR-SYS-5") {
		h.logger.ErrorContext(ctx, "command failed", "command", name, "error", err)
	}
	return name, true, nil
}

// label returns the metric label for a command name.
func (h *CommandHandler) label(arg []byte) string {
	name := commandName(arg)
	if _, ok := h.commands[name]; !ok {
		return "unknown"
	}
	return name
}

// formatError renders err as "ERR <code> <message>" for domain errors.
func formatError(err error) string {
	var de *domain.DomainError
	if errors.As(err, &de) {
		msg := "ERR " + de.Code + " " + de.Message
		if de.Details != "" {
			msg += ": " + de.Details
		}
		return msg
	}
	return "ERR " + err.Error()
}

func (h *CommandHandler) ping(_ context.Context, w *Writer, args [][]byte) error {
	switch len(args) {
	case 1:
		w.SimpleString("PONG")
	case 2:
		w.Bulk(args[1])
	default:
		return domain.ErrInvalidArgument.WithDetails("ping takes at most one argument")
	}
	return nil
}

func (h *CommandHandler) echo(_ context.Context, w *Writer, args [][]byte) error {
	w.Bulk(args[1])
	return nil
}

func (h *CommandHandler) quit(_ context.Context, w *Writer, _ [][]byte) error {
	w.SimpleString("OK")
	return errQuit
}

func (h *CommandHandler) get(ctx context.Context, w *Writer, args [][]byte) error {
	key := string(args[1])
	if err := domain.ValidateKey(key); err != nil {
		return err
	}
	entry, err := h.engine.Get(ctx, key)
	if errors.Is(err, domain.ErrKeyNotFound) {
		w.Null()
		return nil
	}
	if err != nil {
		return err
	}
	w.Bulk(entry.Value)
	return nil
}

func (h *CommandHandler) set(ctx context.Context, w *Writer, args [][]byte) error {
	value := args[2]
	if value == nil {
		value = []byte{}
	}
	if _, err := h.engine.Put(ctx, string(args[1]), value); err != nil {
		return err
	}
	w.SimpleString("OK")
	return nil
}

func (h *CommandHandler) del(ctx context.Context, w *Writer, args [][]byte) error {
	var removed int64
	for _, k := range args[1:] {
		res, err := h.engine.Delete(ctx, string(k))
		if err != nil {
			return err
		}
		if res == domain.Deleted {
			removed++
		}
	}
	w.Integer(removed)
	return nil
}

func (h *CommandHandler) exists(ctx context.Context, w *Writer, args [][]byte) error {
	var n int64
	for _, k := range args[1:] {
		ok, err := h.engine.Exists(ctx, string(k))
		if err != nil {
			return err
		}
		if ok {
			n++
		}
	}
	w.Integer(n)
	return nil
}

func (h *CommandHandler) keys(ctx context.Context, w *Writer, args [][]byte) error {
	pattern := string(args[1])
	if _, err := path.Match(pattern, ""); err != nil {
		return domain.ErrInvalidArgument.WithDetails("bad pattern " + pattern)
	}

	all, err := h.engine.ListKeys(ctx)
	if err != nil {
		return err
	}
	matched := make([]string, 0, len(all))
	for _, k := range all {
		if ok, _ := path.Match(pattern, k); ok {
			matched = append(matched, k)
		}
	}
	sort.Strings(matched)
	w.StringArray(matched)
	return nil
}

func (h *CommandHandler) dbsize(ctx context.Context, w *Writer, _ [][]byte) error {
	st, err := h.engine.Stats(ctx)
	if err != nil {
		return err
	}
	w.Integer(int64(st.KeyCount))
	return nil
}

// flushdb accepts and ignores the ASYNC and SYNC modifiers.
func (h *CommandHandler) flushdb(ctx context.Context, w *Writer, args [][]byte) error {
	if len(args) > 2 {
		return domain.ErrInvalidArgument.WithDetails("flushdb takes at most one argument")
	}
	n, err := h.engine.Clear(ctx)
	if err != nil {
		return err
	}
	h.logger.InfoContext(ctx, "database flushed", "removed", n)
	w.SimpleString("OK")
	return nil
}

func (h *CommandHandler) info(ctx context.Context, w *Writer, _ [][]byte) error {
	var ds domain.DetailedStats
	if in, ok := h.engine.(storage.Inspector); ok {
		st, err := in.DetailedStats(ctx)
		if err != nil && !errors.Is(err, domain.ErrUnsupported) {
			return err
		}
		ds = st
	}
	if ds.Backend == "" {
		st, err := h.engine.Stats(ctx)
		if err != nil {
			return err
		}
		ds.Stats = st
		ds.Backend = "unknown"
		if b, ok := h.engine.(interface{ Backend() string }); ok {
			ds.Backend = b.Backend()
		}
	}

	var sb strings.Builder
	sb.WriteString("# Keyspace\r\n")
	fmt.Fprintf(&sb, "keys:%d\r\n", ds.KeyCount)
	fmt.Fprintf(&sb, "memory_usage:%d\r\n", ds.MemoryUsage)
	sb.WriteString("# Stats\r\n")
	fmt.Fprintf(&sb, "total_operations:%d\r\n", ds.TotalOperations)
	fmt.Fprintf(&sb, "reads:%d\r\nwrites:%d\r\ndeletes:%d\r\n", ds.Reads, ds.Writes, ds.Deletes)
	sb.WriteString("# Storage\r\n")
	fmt.Fprintf(&sb, "backend:%s\r\n", ds.Backend)
	if ds.WALPath != "" {
		fmt.Fprintf(&sb, "wal_path:%s\r\nwal_size:%d\r\nwal_records:%d\r\nsequence:%d\r\n",
			ds.WALPath, ds.WALSize, ds.WALRecords, ds.Sequence)
	}
	w.BulkString(sb.String())
	return nil
}

// command answers redis-cli's startup probe with an empty list.
func (h *CommandHandler) command(_ context.Context, w *Writer, _ [][]byte) error {
	w.ArrayHeader(0)
	return nil
}
