package storage

import (
	"context"
	"errors"
	"io"

	"github.com/zephyrite/zephyrite/internal/core/domain"
	"github.com/zephyrite/zephyrite/internal/telemetry/metric"
)

// Backuper is implemented by backends that can stream a full backup.
type Backuper interface {
	Backup(w io.Writer) (uint64, error)
}

// Instrumented wraps an Engine, counting every call by operation and result.
// It also forwards Compact, DetailedStats and Backup when the wrapped engine
// supports them and reports domain.ErrUnsupported otherwise.
type Instrumented struct {
	Engine
	backend string
	metrics *metric.Registry
}

// Instrument wraps e. A nil registry is allowed.
func Instrument(e Engine, backend string, m *metric.Registry) *Instrumented {
	return &Instrumented{Engine: e, backend: backend, metrics: m}
}

// Unwrap returns the wrapped engine.
func (i *Instrumented) Unwrap() Engine {
	return i.Engine
}

// Backend returns the backend name.
func (i *Instrumented) Backend() string {
	return i.backend
}

func (i *Instrumented) record(op string, err error, ok string) {
	result := ok
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrKeyNotFound):
		result = "miss"
	default:
		result = domain.GetErrorCode(err)
		if result == "" {
			result = "error"
		}
	}
	i.metrics.RecordOperation(i.backend, op, result)
}

func (i *Instrumented) Get(ctx context.Context, key string) (*domain.Entry, error) {
	entry, err := i.Engine.Get(ctx, key)
	i.record("get", err, "hit")
	return entry, err
}

func (i *Instrumented) Put(ctx context.Context, key string, value []byte) (domain.PutResult, error) {
	res, err := i.Engine.Put(ctx, key, value)
	i.record("put", err, res.String())
	return res, err
}

func (i *Instrumented) Delete(ctx context.Context, key string) (domain.DeleteResult, error) {
	res, err := i.Engine.Delete(ctx, key)
	i.record("delete", err, res.String())
	return res, err
}

func (i *Instrumented) ListKeys(ctx context.Context) ([]string, error) {
	keys, err := i.Engine.ListKeys(ctx)
	i.record("list", err, "ok")
	return keys, err
}

func (i *Instrumented) Clear(ctx context.Context) (int, error) {
	n, err := i.Engine.Clear(ctx)
	i.record("clear", err, "ok")
	return n, err
}

func (i *Instrumented) Exists(ctx context.Context, key string) (bool, error) {
	ok, err := i.Engine.Exists(ctx, key)
	i.record("exists", err, "ok")
	return ok, err
}

// Compact forwards to the wrapped engine.
func (i *Instrumented) Compact(ctx context.Context) (domain.CompactionResult, error) {
	c, ok := i.Engine.(Compactor)
	if !ok {
		return domain.CompactionResult{}, domain.ErrUnsupported.WithDetails("backend " + i.backend + " does not support compaction")
	}
	res, err := c.Compact(ctx)
	i.record("compact", err, "ok")
	return res, err
}

// DetailedStats forwards to the wrapped engine, falling back to Stats.
func (i *Instrumented) DetailedStats(ctx context.Context) (domain.DetailedStats, error) {
	if in, ok := i.Engine.(Inspector); ok {
		return in.DetailedStats(ctx)
	}
	st, err := i.Engine.Stats(ctx)
	if err != nil {
		return domain.DetailedStats{}, err
	}
	return domain.DetailedStats{Stats: st, Backend: i.backend}, nil
}

// Backup forwards to the wrapped engine.
func (i *Instrumented) Backup(w io.Writer) (uint64, error) {
	b, ok := i.Engine.(Backuper)
	if !ok {
		return 0, domain.ErrUnsupported.WithDetails("backend " + i.backend + " does not support backups")
	}
	return b.Backup(w)
}
