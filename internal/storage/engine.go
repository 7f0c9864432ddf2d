package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zephyrite/zephyrite/internal/core/domain"
	"github.com/zephyrite/zephyrite/internal/storage/memory"
	"github.com/zephyrite/zephyrite/internal/storage/wal"
	"github.com/zephyrite/zephyrite/internal/telemetry/metric"
)

// PersistentEngine is the in-memory store made durable by a write-ahead log.
//
// Every mutation is validated, appended to the log and only then applied to
// memory, all under one mutex. The log therefore never lags memory, and the
// log order is the single total order of writes. Reads go straight to the
// memory store and never wait for the mutex.
type PersistentEngine struct {
	cfg Config

	mem *memory.Store
	wal *wal.Writer

	// mu serializes append+apply pairs and compaction.
	mu     sync.Mutex
	closed atomic.Bool

	logger  *slog.Logger
	metrics *metric.Registry
	now     func() time.Time
}

// New opens the log at cfg.WAL.Path and rebuilds memory from it.
//
// Recovery replays every provable record in order. A torn or corrupt tail is
// cut off and logged; it never fails the open. Open fails when the log cannot
// be read at all, for instance when it is not a log file or its values do
// not decrypt under cfg.Cipher.
func New(cfg Config) (*PersistentEngine, error) {
	cfg.applyDefaults()
	logger := cfg.Logger.With("component", "storage", "backend", BackendWAL)

	walCfg := cfg.WAL
	if walCfg.OnSyncError == nil {
		walCfg.OnSyncError = func(err error) {
			logger.Error("wal background sync failed; writes are refused until restart", "error", err)
		}
	}
	w, err := wal.Open(walCfg)
	if err != nil {
		return nil, domain.ErrStorageIO.WithCause(fmt.Errorf("open wal: %w", err))
	}

	e := &PersistentEngine{
		cfg:     cfg,
		mem:     memory.New(cfg.memoryOptions()...),
		wal:     w,
		logger:  logger,
		metrics: cfg.Metrics,
		now:     cfg.Clock,
	}

	if err := e.recover(); err != nil {
		w.Close()
		return nil, domain.ErrStorageIO.WithCause(err)
	}
	return e, nil
}

// recover applies the log to the empty memory store.
func (e *PersistentEngine) recover() error {
	start := time.Now()

	// Open already scanned the file and cut any unprovable tail; report it.
	scanned := e.wal.Recovered()
	if scanned.Dropped() {
		level := slog.LevelWarn
		if scanned.Reason != wal.StopTruncated {
			level = slog.LevelError
		}
		e.logger.Log(context.Background(), level, "wal tail discarded",
			"reason", scanned.Reason.String(),
			"cause", scanned.Cause,
			"valid_bytes", scanned.ValidBytes,
			"dropped_bytes", scanned.FileBytes-scanned.ValidBytes,
			"last_sequence", scanned.LastSequence)
	}

	stats, err := wal.Replay(e.wal.Path(), e.apply, wal.WithCipher(e.cfg.Cipher))
	if err != nil {
		return fmt.Errorf("replay wal: %w", err)
	}

	// Replay is not caller traffic.
	e.mem.ResetCounters()

	dropped := ""
	if scanned.Dropped() {
		dropped = scanned.Reason.String()
	}
	e.metrics.RecordReplay(stats.Records, dropped)
	e.metrics.SetWALSize(e.wal.Size())

	e.logger.Info("wal replayed",
		"path", e.wal.Path(),
		"records_applied", stats.Records,
		"last_sequence", stats.LastSequence,
		"keys", e.mem.Len(),
		"checksums", e.wal.Checksums(),
		"encrypted", e.wal.Encrypted(),
		"elapsed", time.Since(start))
	return nil
}

// apply replays one record. Deleting a missing key is a no-op.
func (e *PersistentEngine) apply(rec *wal.Record) error {
	switch rec.Op {
	case wal.OpTypePut:
		e.mem.ApplyPut(rec.Key, rec.Value, rec.Timestamp)
	case wal.OpTypeDelete:
		e.mem.ApplyDelete(rec.Key)
	case wal.OpTypeClear:
		e.mem.ApplyClear()
	default:
		return fmt.Errorf("%w: %d at sequence %d", wal.ErrInvalidOpType, rec.Op, rec.Sequence)
	}
	return nil
}

// append writes rec durably. The caller holds e.mu.
func (e *PersistentEngine) append(rec *wal.Record) error {
	before := e.wal.Size()
	start := time.Now()
	if _, err := e.wal.Append(rec); err != nil {
		e.logger.Error("wal append failed", "op", rec.Op.String(), "key", rec.Key, "error", err)
		return domain.ErrStorageIO.WithCause(err)
	}
	after := e.wal.Size()
	e.metrics.ObserveWALAppend(time.Since(start), after-before)
	e.metrics.SetWALSize(after)
	return nil
}

// Get returns a copy of the entry for key.
func (e *PersistentEngine) Get(ctx context.Context, key string) (*domain.Entry, error) {
	if e.closed.Load() {
		return nil, domain.ErrEngineClosed
	}
	return e.mem.Get(ctx, key)
}

// Exists reports whether key is present.
func (e *PersistentEngine) Exists(ctx context.Context, key string) (bool, error) {
	if e.closed.Load() {
		return false, domain.ErrEngineClosed
	}
	return e.mem.Exists(ctx, key)
}

// ListKeys returns a snapshot of the current keys.
func (e *PersistentEngine) ListKeys(ctx context.Context) ([]string, error) {
	if e.closed.Load() {
		return nil, domain.ErrEngineClosed
	}
	return e.mem.ListKeys(ctx)
}

// Put stores value under key.
//
// The value is on stable storage before memory changes and before Put
// returns. An invalid key or oversized value writes nothing.
func (e *PersistentEngine) Put(_ context.Context, key string, value []byte) (domain.PutResult, error) {
	if err := e.mem.KeyPolicy().Validate(key); err != nil {
		return 0, err
	}
	if err := domain.ValidateValue(value); err != nil {
		return 0, err
	}

	owned := make([]byte, len(value))
	copy(owned, value)

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed.Load() {
		return 0, domain.ErrEngineClosed
	}

	// Step 1: Write to WAL
	rec := wal.NewPutRecord(key, owned)
	rec.Timestamp = e.now().Round(0)
	if err := e.append(rec); err != nil {
		return 0, err
	}

	// Step 2: Write to memory, with the logged timestamp so replay agrees
	return e.mem.ApplyPut(key, owned, rec.Timestamp), nil
}

// Delete removes key. Deleting a missing key returns domain.NotFound and
// writes nothing to the log.
func (e *PersistentEngine) Delete(_ context.Context, key string) (domain.DeleteResult, error) {
	if err := e.mem.KeyPolicy().Validate(key); err != nil {
		return 0, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed.Load() {
		return 0, domain.ErrEngineClosed
	}

	// Only writers change membership and they all hold mu, so the check
	// cannot go stale before the append.
	if !e.mem.Has(key) {
		return domain.NotFound, nil
	}

	rec := wal.NewDeleteRecord(key)
	rec.Timestamp = e.now().Round(0)
	if err := e.append(rec); err != nil {
		return 0, err
	}
	return e.mem.ApplyDelete(key), nil
}

// Clear removes every key and returns how many were removed.
func (e *PersistentEngine) Clear(_ context.Context) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed.Load() {
		return 0, domain.ErrEngineClosed
	}

	rec := wal.NewClearRecord()
	rec.Timestamp = e.now().Round(0)
	if err := e.append(rec); err != nil {
		return 0, err
	}
	n := e.mem.ApplyClear()
	e.logger.Info("store cleared", "removed", n, "sequence", rec.Sequence)
	return n, nil
}

// Stats returns memory statistics for the live map.
func (e *PersistentEngine) Stats(ctx context.Context) (domain.Stats, error) {
	if e.closed.Load() {
		return domain.Stats{}, domain.ErrEngineClosed
	}
	return e.mem.Stats(ctx)
}

// DetailedStats adds the log state to Stats.
func (e *PersistentEngine) DetailedStats(ctx context.Context) (domain.DetailedStats, error) {
	st, err := e.Stats(ctx)
	if err != nil {
		return domain.DetailedStats{}, err
	}
	return domain.DetailedStats{
		Stats:            st,
		Backend:          BackendWAL,
		WALPath:          e.wal.Path(),
		WALSize:          e.wal.Size(),
		WALRecords:       e.wal.Records(),
		Sequence:         e.wal.Sequence(),
		ChecksumsEnabled: e.wal.Checksums(),
		Encrypted:        e.wal.Encrypted(),
	}, nil
}

// Compact rewrites the log as one record per live key.
//
// Writers wait for the rewrite; readers do not.
func (e *PersistentEngine) Compact(_ context.Context) (domain.CompactionResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed.Load() {
		return domain.CompactionResult{}, domain.ErrEngineClosed
	}

	result, err := e.wal.Compact(e.mem.Snapshot())
	if err != nil && result.Duration == 0 {
		e.metrics.RecordCompaction(err)
		e.logger.Error("wal compaction failed", "error", err)
		return result, domain.ErrStorageIO.WithCause(err)
	}
	e.metrics.RecordCompaction(nil)
	if err != nil {
		// The compacted log is in place and accepting appends.
		e.logger.Warn("wal compacted with errors", "error", err)
	}
	e.metrics.SetWALSize(result.BytesAfter)

	e.logger.Info("wal compacted",
		"records_before", result.EntriesBefore,
		"records_after", result.EntriesAfter,
		"bytes_before", result.BytesBefore,
		"bytes_after", result.BytesAfter,
		"elapsed", result.Duration)
	return result, nil
}

// Backup streams the log as of the call to w and returns the sequence it
// ends at. The copy is itself a valid log: placing it at the configured path
// restores the store.
//
// Only opening the log happens under the write lock. The copy reads through
// the open descriptor, which keeps the old file if a compaction replaces it,
// and is bounded to the size at open, so later appends are not included.
func (e *PersistentEngine) Backup(w io.Writer) (uint64, error) {
	f, size, seq, err := e.openForBackup()
	if err != nil {
		return 0, err
	}
	defer f.Close()

	n, err := io.Copy(w, io.LimitReader(f, size))
	if err != nil {
		return 0, fmt.Errorf("copy log: %w", err)
	}
	if n != size {
		return 0, domain.ErrStorageIO.WithDetails(fmt.Sprintf("log shrank during backup: %d of %d bytes", n, size))
	}

	e.logger.Info("wal backed up", "bytes", n, "sequence", seq)
	return seq, nil
}

// openForBackup pins a synced view of the log: its descriptor, size and last
// sequence, taken together under the write lock.
func (e *PersistentEngine) openForBackup() (*os.File, int64, uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed.Load() {
		return nil, 0, 0, domain.ErrEngineClosed
	}
	if err := e.wal.Sync(); err != nil {
		return nil, 0, 0, domain.ErrStorageIO.WithCause(err)
	}
	f, err := os.Open(e.wal.Path())
	if err != nil {
		return nil, 0, 0, domain.ErrStorageIO.WithCause(err)
	}
	return f, e.wal.Size(), e.wal.Sequence(), nil
}

// Sync flushes the log. It matters only in batch sync mode.
func (e *PersistentEngine) Sync() error {
	return e.wal.Sync()
}

// Close syncs and closes the log. Later calls fail with domain.ErrEngineClosed.
func (e *PersistentEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}

	var errs []error
	if err := e.wal.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := e.mem.Close(); err != nil {
		errs = append(errs, err)
	}
	e.logger.Info("storage closed", "sequence", e.wal.Sequence())
	return errors.Join(errs...)
}
