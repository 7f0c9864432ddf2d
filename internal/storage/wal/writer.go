package wal

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/zephyrite/zephyrite/pkg/crypto/adaptive"
)

// Default configuration values.
const (
	DefaultPath         = "zephyrite.wal"
	DefaultSyncInterval = 100 * time.Millisecond
)

// SyncMode defines how the WAL syncs to disk.
type SyncMode string

const (
	// SyncModeSync fsyncs every append before it returns.
	SyncModeSync SyncMode = "sync"
	// SyncModeBatch fsyncs on a timer; a crash can lose the last interval.
	SyncModeBatch SyncMode = "batch"
)

// Config configures the WAL writer.
type Config struct {
	// Path is the log file location.
	Path string

	// Checksums enables a CRC32-C per record for newly created logs.
	// An existing log keeps the setting recorded in its header until it is
	// compacted.
	Checksums bool

	SyncMode     SyncMode
	SyncInterval time.Duration

	// Cipher seals record values when set.
	Cipher adaptive.Cipher

	// OnSyncError is called once when a background fsync in batch mode
	// fails. It must not call back into the Writer.
	OnSyncError func(error)
}

// DefaultConfig returns the default WAL configuration.
func DefaultConfig(path string) Config {
	return Config{
		Path:         path,
		Checksums:    true,
		SyncMode:     SyncModeSync,
		SyncInterval: DefaultSyncInterval,
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Path == "" {
		cfg.Path = DefaultPath
	}
	if cfg.SyncMode == "" {
		cfg.SyncMode = SyncModeSync
	}
	if cfg.SyncInterval <= 0 {
		cfg.SyncInterval = DefaultSyncInterval
	}
}

// Writer appends records to a single log file.
//
// It is safe for concurrent use; appends are serialized and receive strictly
// increasing sequence numbers.
type Writer struct {
	cfg Config

	mu      sync.Mutex
	file    *os.File
	format  format
	seq     uint64
	records uint64
	size    int64
	dirty   bool
	closed  bool

	// failed is set when the file may hold bytes past size that could not be
	// removed, or when a batch fsync failed. Every later Append and Sync
	// returns it; the log must be reopened, which rescans and cuts the tail.
	failed error

	recovered ReplayStats

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// Open opens or creates the log at cfg.Path.
//
// An existing log is scanned first. Its unprovable tail, if any, is cut off
// and numbering continues after the last valid record. Open fails without
// touching the file when the log cannot be read at all.
func Open(cfg Config) (*Writer, error) {
	applyDefaults(&cfg)

	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, DefaultDirPerm); err != nil {
			return nil, fmt.Errorf("wal: create dir: %w", err)
		}
	}

	w := &Writer{
		cfg:    cfg,
		format: format{checksums: cfg.Checksums, cipher: cfg.Cipher},
		stopCh: make(chan struct{}),
	}

	stats, fm, err := scan(cfg.Path, cfg.Cipher)
	if err != nil {
		return nil, err
	}
	w.recovered = stats

	switch {
	case stats.ValidBytes == 0:
		// New, empty, or only a torn header: start a fresh file.
		if err := w.create(); err != nil {
			return nil, err
		}
	default:
		w.format = fm
		if err := w.reopen(stats); err != nil {
			return nil, err
		}
	}

	if cfg.SyncMode == SyncModeBatch {
		w.startSyncLoop()
	}
	return w, nil
}

// scan replays path without applying anything, to find the provable prefix.
func scan(path string, cipher adaptive.Cipher) (ReplayStats, format, error) {
	r, err := NewReader(path, WithCipher(cipher))
	if err != nil {
		return ReplayStats{}, format{}, err
	}
	defer r.Close()

	for {
		if _, err := r.Next(); err != nil {
			if errors.Is(err, io.EOF) {
				return r.Stats(), r.format, nil
			}
			return ReplayStats{}, format{}, err
		}
	}
}

func (w *Writer) create() error {
	f, err := os.OpenFile(w.cfg.Path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY|os.O_APPEND, DefaultFilePerm)
	if err != nil {
		return fmt.Errorf("wal: create %s: %w", w.cfg.Path, err)
	}
	header := encodeFileHeader(w.format)
	if _, err := f.Write(header); err != nil {
		f.Close()
		return fmt.Errorf("wal: write header: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("wal: sync header: %w", err)
	}
	if err := syncDir(filepath.Dir(w.cfg.Path)); err != nil {
		f.Close()
		return err
	}

	w.file = f
	w.size = int64(len(header))
	w.seq = 0
	w.records = 0
	return nil
}

func (w *Writer) reopen(stats ReplayStats) error {
	f, err := os.OpenFile(w.cfg.Path, os.O_WRONLY|os.O_APPEND, DefaultFilePerm)
	if err != nil {
		return fmt.Errorf("wal: open %s: %w", w.cfg.Path, err)
	}
	if stats.Dropped() {
		if err := f.Truncate(stats.ValidBytes); err != nil {
			f.Close()
			return fmt.Errorf("wal: truncate tail: %w", err)
		}
		if err := f.Sync(); err != nil {
			f.Close()
			return fmt.Errorf("wal: sync after truncate: %w", err)
		}
	}

	w.file = f
	w.size = stats.ValidBytes
	w.seq = stats.LastSequence
	w.records = stats.Records
	return nil
}

// Append assigns the next sequence number to rec, writes it, and returns the
// sequence. In SyncModeSync the record is on stable storage when Append
// returns. A zero Timestamp is set to the current time.
//
// On failure nothing is consumed: the file is cut back to its previous size
// and the sequence number is reused by the next append.
func (w *Writer) Append(rec *Record) (uint64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return 0, ErrClosed
	}
	if w.failed != nil {
		return 0, w.failed
	}

	rec.Sequence = w.seq + 1
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}

	frame, err := encodeRecord(rec, w.format)
	if err != nil {
		return 0, err
	}

	if _, err := w.file.Write(frame); err != nil {
		w.rollbackLocked()
		return 0, fmt.Errorf("wal: append: %w", err)
	}
	if w.cfg.SyncMode == SyncModeSync {
		if err := w.file.Sync(); err != nil {
			w.rollbackLocked()
			return 0, fmt.Errorf("wal: sync: %w", err)
		}
	} else {
		w.dirty = true
	}

	w.seq = rec.Sequence
	w.records++
	w.size += int64(len(frame))
	return rec.Sequence, nil
}

// rollbackLocked drops a partially written frame. If the frame cannot be
// removed, the writer stops accepting appends: replay ends at the torn frame,
// so anything written after it would be lost on restart.
func (w *Writer) rollbackLocked() {
	if err := w.file.Truncate(w.size); err != nil {
		w.failed = fmt.Errorf("%w: truncate after failed append: %v", ErrFailed, err)
	}
}

// Sync flushes written records to stable storage.
func (w *Writer) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.syncLocked()
}

func (w *Writer) syncLocked() error {
	if w.failed != nil {
		return w.failed
	}
	if w.file == nil || !w.dirty {
		return nil
	}
	if err := w.file.Sync(); err != nil {
		// The kernel may have dropped the dirty pages; a retry could report
		// success for data that never reached the disk.
		w.failed = fmt.Errorf("%w: sync: %v", ErrFailed, err)
		return w.failed
	}
	w.dirty = false
	return nil
}

func (w *Writer) startSyncLoop() {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		ticker := time.NewTicker(w.cfg.SyncInterval)
		defer ticker.Stop()
		reported := false
		for {
			select {
			case <-ticker.C:
				if err := w.Sync(); err != nil && !reported {
					reported = true
					w.reportSyncError(err)
				}
			case <-w.stopCh:
				return
			}
		}
	}()
}

// reportSyncError hands a background fsync failure to the configured
// callback. The error is also returned by every later Append and Sync.
func (w *Writer) reportSyncError(err error) {
	if w.cfg.OnSyncError != nil {
		w.cfg.OnSyncError(err)
	}
}

// Err returns the error that stopped the writer, or nil.
func (w *Writer) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.failed
}

// Sequence returns the sequence number of the last appended record.
func (w *Writer) Sequence() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.seq
}

// Records returns the number of records in the log.
func (w *Writer) Records() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.records
}

// Size returns the log size in bytes.
func (w *Writer) Size() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.size
}

// Path returns the log file location.
func (w *Writer) Path() string {
	return w.cfg.Path
}

// Checksums reports whether records in the current file carry checksums.
func (w *Writer) Checksums() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.format.checksums
}

// Encrypted reports whether values in the current file are sealed.
func (w *Writer) Encrypted() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.format.cipher != nil
}

// Recovered returns the scan result from Open.
func (w *Writer) Recovered() ReplayStats {
	return w.recovered
}

// Close syncs and closes the log.
func (w *Writer) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	close(w.stopCh)
	w.mu.Unlock()

	w.wg.Wait()

	w.mu.Lock()
	defer w.mu.Unlock()

	var errs []error
	if err := w.syncLocked(); err != nil {
		errs = append(errs, err)
	}
	if w.file != nil {
		if err := w.file.Close(); err != nil {
			errs = append(errs, fmt.Errorf("wal: close: %w", err))
		}
		w.file = nil
	}
	return errors.Join(errs...)
}

// syncDir makes a create or rename in dir durable.
func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("wal: open dir: %w", err)
	}
	defer d.Close()
	if err := d.Sync(); err != nil {
		return fmt.Errorf("wal: sync dir: %w", err)
	}
	return nil
}
