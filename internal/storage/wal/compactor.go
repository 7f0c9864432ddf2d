package wal

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/zephyrite/zephyrite/internal/core/domain"
)

// compactSuffix names the temporary file a compaction writes.
const compactSuffix = ".compact"

// Compact replaces the log with one PUT record per live key in snapshot.
//
// The new log is written next to the old one, synced, and renamed over it, so
// a crash at any point leaves either the old or the new log in place. New
// records are numbered from 1 in key order and carry each entry's UpdatedAt.
// The new file uses the configured checksum and cipher settings.
//
// The caller must ensure snapshot reflects every record appended so far;
// appends are blocked while Compact runs.
func (w *Writer) Compact(snapshot map[string]*domain.Entry) (domain.CompactionResult, error) {
	start := time.Now()

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return domain.CompactionResult{}, ErrClosed
	}
	if w.failed != nil {
		return domain.CompactionResult{}, w.failed
	}

	result := domain.CompactionResult{
		EntriesBefore: w.records,
		BytesBefore:   w.size,
	}

	tmpPath := w.cfg.Path + compactSuffix
	newFormat := format{checksums: w.cfg.Checksums, cipher: w.cfg.Cipher}

	written, size, err := writeCompacted(tmpPath, snapshot, newFormat)
	if err != nil {
		os.Remove(tmpPath)
		return domain.CompactionResult{}, err
	}

	// Make sure nothing buffered in the old file is lost if the rename fails.
	if err := w.syncLocked(); err != nil {
		os.Remove(tmpPath)
		return domain.CompactionResult{}, err
	}

	if err := os.Rename(tmpPath, w.cfg.Path); err != nil {
		os.Remove(tmpPath)
		return domain.CompactionResult{}, fmt.Errorf("wal: replace log: %w", err)
	}

	// The old descriptor now points at an unlinked inode and was synced
	// above; failing to close it must not keep the writer on it.
	var errs []error
	if err := w.file.Close(); err != nil {
		errs = append(errs, fmt.Errorf("wal: close old log: %w", err))
	}
	w.file = nil
	f, err := os.OpenFile(w.cfg.Path, os.O_WRONLY|os.O_APPEND, DefaultFilePerm)
	if err != nil {
		w.closed = true
		close(w.stopCh)
		errs = append(errs, fmt.Errorf("wal: reopen compacted log: %w", err))
		return domain.CompactionResult{}, errors.Join(errs...)
	}

	w.file = f
	w.format = newFormat
	w.seq = written
	w.records = written
	w.size = size
	w.dirty = false

	result.EntriesAfter = written
	result.BytesAfter = size
	result.Duration = time.Since(start)

	// The swap has happened either way; a failed directory sync only means the
	// rename itself might not survive a power loss.
	if err := syncDir(filepath.Dir(w.cfg.Path)); err != nil {
		errs = append(errs, err)
	}
	return result, errors.Join(errs...)
}

func writeCompacted(path string, snapshot map[string]*domain.Entry, fm format) (uint64, int64, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, DefaultFilePerm)
	if err != nil {
		return 0, 0, fmt.Errorf("wal: create compacted log: %w", err)
	}

	keys := make([]string, 0, len(snapshot))
	for k := range snapshot {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	header := encodeFileHeader(fm)
	size := int64(len(header))
	writeErr := func() error {
		if _, err := f.Write(header); err != nil {
			return err
		}
		for i, key := range keys {
			entry := snapshot[key]
			rec := &Record{
				Sequence:  uint64(i + 1),
				Op:        OpTypePut,
				Key:       key,
				Value:     entry.Value,
				Timestamp: entry.UpdatedAt,
			}
			frame, err := encodeRecord(rec, fm)
			if err != nil {
				return err
			}
			if _, err := f.Write(frame); err != nil {
				return err
			}
			size += int64(len(frame))
		}
		return f.Sync()
	}()

	if err := errors.Join(writeErr, f.Close()); err != nil {
		return 0, 0, fmt.Errorf("wal: write compacted log: %w", err)
	}
	return uint64(len(keys)), size, nil
}
