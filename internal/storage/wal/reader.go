package wal

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/zephyrite/zephyrite/pkg/crypto/adaptive"
)

// StopReason says why replay ended.
type StopReason int

const (
	// StopEOF means every byte of the log was consumed.
	StopEOF StopReason = iota
	// StopTruncated means the final record was incomplete.
	StopTruncated
	// StopChecksum means a complete record failed its checksum.
	StopChecksum
	// StopCorrupted means a complete record was structurally invalid.
	StopCorrupted
)

func (s StopReason) String() string {
	switch s {
	case StopEOF:
		return "eof"
	case StopTruncated:
		return "truncated"
	case StopChecksum:
		return "checksum_mismatch"
	case StopCorrupted:
		return "corrupted"
	default:
		return "unknown"
	}
}

// ReplayStats describes one pass over a log.
type ReplayStats struct {
	Records      uint64
	LastSequence uint64
	// ValidBytes is the length of the provable prefix, header included.
	ValidBytes int64
	// FileBytes is the size of the log when the pass started.
	FileBytes int64
	Reason    StopReason
	// Cause is the decoding error that ended the pass, if any.
	Cause error
}

// Dropped reports whether replay discarded a tail.
func (s ReplayStats) Dropped() bool {
	return s.ValidBytes < s.FileBytes
}

// Reader lazily replays the records of one log file.
//
// Next yields records in ascending sequence order and returns io.EOF at the
// end of the provable prefix: the clean end of the file, or the first record
// that is truncated, fails its checksum or is malformed. Everything from that
// record on is ignored. Reset restarts the pass from the first record.
type Reader struct {
	path   string
	cipher adaptive.Cipher

	file   *os.File
	reader *bufio.Reader
	format format

	offset int64
	done   bool
	stats  ReplayStats
}

// ReaderOption configures a Reader.
type ReaderOption func(*Reader)

// WithCipher sets the cipher used to open sealed values.
func WithCipher(c adaptive.Cipher) ReaderOption {
	return func(r *Reader) {
		r.cipher = c
	}
}

// NewReader opens path for replay. A missing file replays as empty.
func NewReader(path string, opts ...ReaderOption) (*Reader, error) {
	r := &Reader{path: path}
	for _, opt := range opts {
		opt(r)
	}
	if err := r.Reset(); err != nil {
		return nil, err
	}
	return r, nil
}

// Reset rewinds the reader to the first record.
func (r *Reader) Reset() error {
	r.closeFile()
	r.offset = 0
	r.done = false
	r.stats = ReplayStats{}

	f, err := os.Open(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			r.done = true
			return nil
		}
		return fmt.Errorf("wal: open %s: %w", r.path, err)
	}
	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("wal: stat %s: %w", r.path, err)
	}
	r.file = f
	r.reader = bufio.NewReaderSize(f, 64<<10)
	r.stats.FileBytes = stat.Size()

	if stat.Size() == 0 {
		r.done = true
		return nil
	}

	header := make([]byte, fileHeaderSize)
	if _, err := io.ReadFull(r.reader, header); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			// A crash while creating the file: nothing was ever logged.
			r.stop(StopTruncated, ErrTruncatedRecord)
			return nil
		}
		return fmt.Errorf("wal: read header: %w", err)
	}
	fm, err := decodeFileHeader(header, r.cipher)
	if err != nil {
		r.closeFile()
		return err
	}
	r.format = fm
	r.offset = int64(fileHeaderSize)
	r.stats.ValidBytes = r.offset
	return nil
}

// Next returns the next valid record, or io.EOF when replay is over.
//
// Any other error means the log could not be read at all (I/O failure, or a
// value that does not authenticate under the configured cipher); in that
// case the log is not safe to truncate.
func (r *Reader) Next() (*Record, error) {
	if r.done {
		return nil, io.EOF
	}

	var lenBuf [lengthPrefixSize]byte
	n, err := io.ReadFull(r.reader, lenBuf[:])
	if err != nil {
		if n == 0 && errors.Is(err, io.EOF) {
			r.stop(StopEOF, nil)
			return nil, io.EOF
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			r.stop(StopTruncated, ErrTruncatedRecord)
			return nil, io.EOF
		}
		return nil, fmt.Errorf("wal: read length: %w", err)
	}

	length := binary.BigEndian.Uint32(lenBuf[:])
	if length < minBodySize || length > maxBodySize {
		if int64(length) > r.stats.FileBytes-r.offset-lengthPrefixSize {
			// A length pointing past the end is indistinguishable from a torn write.
			r.stop(StopTruncated, ErrTruncatedRecord)
		} else {
			r.stop(StopCorrupted, ErrCorruptedRecord)
		}
		return nil, io.EOF
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(r.reader, body); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			r.stop(StopTruncated, ErrTruncatedRecord)
			return nil, io.EOF
		}
		return nil, fmt.Errorf("wal: read record: %w", err)
	}

	rec, err := decodeBody(body, r.format)
	if err != nil {
		switch {
		case errors.Is(err, ErrDecrypt):
			r.done = true
			return nil, err
		case errors.Is(err, ErrChecksumMismatch):
			r.stop(StopChecksum, err)
		default:
			r.stop(StopCorrupted, err)
		}
		return nil, io.EOF
	}
	if r.stats.Records > 0 && rec.Sequence <= r.stats.LastSequence {
		r.stop(StopCorrupted, fmt.Errorf("%w: sequence %d after %d",
			ErrCorruptedRecord, rec.Sequence, r.stats.LastSequence))
		return nil, io.EOF
	}

	r.offset += lengthPrefixSize + int64(length)
	r.stats.ValidBytes = r.offset
	r.stats.Records++
	r.stats.LastSequence = rec.Sequence
	return rec, nil
}

// Stats returns what the reader has seen so far. After Next has returned
// io.EOF it describes the whole pass.
func (r *Reader) Stats() ReplayStats {
	return r.stats
}

// Checksums reports whether the log being read carries record checksums.
func (r *Reader) Checksums() bool {
	return r.format.checksums
}

// Close releases the underlying file.
func (r *Reader) Close() error {
	r.done = true
	return r.closeFile()
}

func (r *Reader) stop(reason StopReason, cause error) {
	r.done = true
	r.stats.Reason = reason
	r.stats.Cause = cause
	r.closeFile()
}

func (r *Reader) closeFile() error {
	r.reader = nil
	if r.file != nil {
		err := r.file.Close()
		r.file = nil
		return err
	}
	return nil
}

// Replay drives a Reader over path, calling fn for every valid record.
// An error from fn aborts the pass and is returned as is.
func Replay(path string, fn func(*Record) error, opts ...ReaderOption) (ReplayStats, error) {
	r, err := NewReader(path, opts...)
	if err != nil {
		return ReplayStats{}, err
	}
	defer r.Close()

	for {
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			return r.Stats(), nil
		}
		if err != nil {
			return r.Stats(), err
		}
		if err := fn(rec); err != nil {
			return r.Stats(), err
		}
	}
}
