package wal

import (
	"errors"
	"time"
)

// File format constants.
const (
	// Magic identifies a log file.
	Magic = "ZWAL"

	// FormatVersion is the on-disk format version.
	FormatVersion = 1

	// fileHeaderSize is magic (4) + version (1) + flags (1).
	fileHeaderSize = len(Magic) + 2

	// lengthPrefixSize is the size of the record length field.
	lengthPrefixSize = 4

	// checksumSize is the size of the trailing CRC32-C.
	checksumSize = 4

	// minBodySize is sequence (8) + op (1) + timestamp (8) + key len (4) + value len (4).
	minBodySize = 8 + 1 + 8 + 4 + 4

	DefaultFilePerm = 0600
	DefaultDirPerm  = 0750
)

// Header flags.
const (
	flagChecksums byte = 1 << iota
	flagEncrypted
)

// Errors for WAL operations.
var (
	ErrCorruptedRecord   = errors.New("wal: corrupted record")
	ErrChecksumMismatch  = errors.New("wal: checksum mismatch")
	ErrTruncatedRecord   = errors.New("wal: truncated record")
	ErrInvalidOpType     = errors.New("wal: invalid op type")
	ErrInvalidMagic      = errors.New("wal: invalid magic bytes")
	ErrUnsupportedFormat = errors.New("wal: unsupported format version")
	ErrCipherRequired    = errors.New("wal: log is encrypted but no cipher is configured")
	ErrDecrypt           = errors.New("wal: cannot decrypt record value")
	ErrClosed            = errors.New("wal: writer is closed")
	ErrFailed            = errors.New("wal: writer stopped after an unrecoverable i/o error")
)

// OpType is the mutation a record describes.
type OpType uint8

const (
	OpTypeUnspecified OpType = iota
	OpTypePut
	OpTypeDelete
	OpTypeClear
)

func (o OpType) String() string {
	switch o {
	case OpTypePut:
		return "put"
	case OpTypeDelete:
		return "delete"
	case OpTypeClear:
		return "clear"
	default:
		return "unspecified"
	}
}

func (o OpType) valid() bool {
	return o >= OpTypePut && o <= OpTypeClear
}

// Record is one durable fact about a past mutation.
//
// Sequence is assigned by Writer.Append. Key is empty for Clear and Value is
// only set for Put.
type Record struct {
	Sequence  uint64
	Op        OpType
	Key       string
	Value     []byte
	Timestamp time.Time
}

// NewPutRecord creates a PUT record.
func NewPutRecord(key string, value []byte) *Record {
	return &Record{Op: OpTypePut, Key: key, Value: value}
}

// NewDeleteRecord creates a DELETE record.
func NewDeleteRecord(key string) *Record {
	return &Record{Op: OpTypeDelete, Key: key}
}

// NewClearRecord creates a CLEAR record.
func NewClearRecord() *Record {
	return &Record{Op: OpTypeClear}
}
