package storage

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/zephyrite/zephyrite/internal/core/domain"
	"github.com/zephyrite/zephyrite/internal/storage/memory"
	"github.com/zephyrite/zephyrite/internal/storage/wal"
	"github.com/zephyrite/zephyrite/internal/telemetry/metric"
	"github.com/zephyrite/zephyrite/pkg/crypto/adaptive"
)

// Engine is the capability set shared by every backend.
//
// Implementations must be safe for concurrent use. Get returns a private
// copy of the entry or domain.ErrKeyNotFound. Put and Delete reject invalid
// keys with domain.ErrInvalidKey before anything is written.
type Engine interface {
	Get(ctx context.Context, key string) (*domain.Entry, error)
	Put(ctx context.Context, key string, value []byte) (domain.PutResult, error)
	Delete(ctx context.Context, key string) (domain.DeleteResult, error)
	ListKeys(ctx context.Context) ([]string, error)
	Clear(ctx context.Context) (int, error)
	Exists(ctx context.Context, key string) (bool, error)
	Stats(ctx context.Context) (domain.Stats, error)
	Close() error
}

// Compactor is implemented by backends that can rewrite their on-disk history.
type Compactor interface {
	Compact(ctx context.Context) (domain.CompactionResult, error)
}

// Inspector is implemented by backends that report backend-specific details.
type Inspector interface {
	DetailedStats(ctx context.Context) (domain.DetailedStats, error)
}

// Backend names.
const (
	BackendMemory = "memory"
	BackendWAL    = "wal"
	BackendBadger = "badger"
)

// Config configures a storage engine.
type Config struct {
	// Backend selects the engine: memory, wal or badger.
	Backend string

	// WAL configures the log of the wal backend.
	WAL wal.Config

	// DataDir is the badger directory.
	DataDir string

	// MemoryCapacity hints how many keys to preallocate for.
	MemoryCapacity int

	// KeyPolicy is the key validation policy.
	KeyPolicy domain.KeyPolicy

	// Cipher seals WAL values when set.
	Cipher adaptive.Cipher

	Badger BadgerConfig

	// Logger is the structured logger.
	Logger *slog.Logger

	// Metrics may be nil.
	Metrics *metric.Registry

	// Clock overrides time.Now for entry timestamps.
	Clock func() time.Time
}

// DefaultConfig returns an in-memory configuration.
func DefaultConfig() Config {
	return Config{
		Backend:        BackendMemory,
		WAL:            wal.DefaultConfig(wal.DefaultPath),
		DataDir:        "data",
		MemoryCapacity: 1000,
		KeyPolicy:      domain.DefaultKeyPolicy(),
		Badger:         DefaultBadgerConfig(),
		Logger:         slog.Default(),
	}
}

func (c *Config) applyDefaults() {
	if c.Backend == "" {
		c.Backend = BackendMemory
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
	if c.WAL.Path == "" {
		c.WAL.Path = wal.DefaultPath
	}
	c.WAL.Cipher = c.Cipher
}

func (c Config) memoryOptions() []memory.Option {
	opts := []memory.Option{
		memory.WithKeyPolicy(c.KeyPolicy),
		memory.WithClock(c.Clock),
	}
	if c.MemoryCapacity > 0 {
		opts = append(opts, memory.WithCapacity(c.MemoryCapacity))
	}
	return opts
}

// Open creates the engine selected by cfg.Backend, running recovery for the
// durable backends before it returns. Every engine is instrumented with
// cfg.Metrics.
func Open(ctx context.Context, cfg Config) (Engine, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	var (
		e   Engine
		err error
	)
	switch strings.ToLower(cfg.Backend) {
	case BackendMemory:
		e = memory.New(cfg.memoryOptions()...)
		cfg.Logger.Info("storage opened", "backend", BackendMemory)
	case BackendWAL:
		e, err = New(cfg)
	case BackendBadger:
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("storage: badger backend needs a data dir")
		}
		e, err = NewBadgerEngine(filepath.Clean(cfg.DataDir), cfg)
	default:
		return nil, fmt.Errorf("storage: unknown backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}
	return Instrument(e, strings.ToLower(cfg.Backend), cfg.Metrics), nil
}
