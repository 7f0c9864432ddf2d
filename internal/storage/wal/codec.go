package wal

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"time"

	"github.com/zephyrite/zephyrite/internal/core/domain"
	"github.com/zephyrite/zephyrite/pkg/crypto/adaptive"
)

var crcTable = crc32.MakeTable(crc32.Castagnoli)

// maxBodySize bounds a record body so a corrupted length prefix cannot make
// the reader allocate an arbitrary amount of memory.
const maxBodySize = minBodySize + domain.MaxKeyLength + domain.MaxValueSize + checksumSize + 256

// format describes how records in one file are encoded.
type format struct {
	checksums bool
	cipher    adaptive.Cipher
}

func (f format) flags() byte {
	var b byte
	if f.checksums {
		b |= flagChecksums
	}
	if f.cipher != nil {
		b |= flagEncrypted
	}
	return b
}

func encodeFileHeader(f format) []byte {
	h := make([]byte, 0, fileHeaderSize)
	h = append(h, Magic...)
	h = append(h, FormatVersion, f.flags())
	return h
}

// decodeFileHeader parses a file header. The returned format takes its
// checksum setting from the file; cipher is attached when the file says its
// values are sealed.
func decodeFileHeader(h []byte, cipher adaptive.Cipher) (format, error) {
	if string(h[:len(Magic)]) != Magic {
		return format{}, ErrInvalidMagic
	}
	if h[len(Magic)] != FormatVersion {
		return format{}, fmt.Errorf("%w: %d", ErrUnsupportedFormat, h[len(Magic)])
	}

	flags := h[len(Magic)+1]
	f := format{checksums: flags&flagChecksums != 0}
	if flags&flagEncrypted != 0 {
		if cipher == nil {
			return format{}, ErrCipherRequired
		}
		f.cipher = cipher
	}
	return f, nil
}

// encodeRecord returns the full on-disk frame for rec:
//
//	[Length:4][Sequence:8][Op:1][Timestamp:8][KeyLen:4][Key][ValueLen:4][Value][CRC32-C:4]?
//
// Length counts every byte after itself. The CRC covers Sequence through Value.
func encodeRecord(rec *Record, f format) ([]byte, error) {
	if !rec.Op.valid() {
		return nil, ErrInvalidOpType
	}

	value := rec.Value
	if rec.Op != OpTypePut {
		value = nil
	} else if f.cipher != nil {
		sealed, err := f.cipher.Encrypt(value, additionalData(rec.Sequence, rec.Key))
		if err != nil {
			return nil, fmt.Errorf("wal: encrypt value: %w", err)
		}
		value = sealed
	}

	bodyLen := minBodySize + len(rec.Key) + len(value)
	if f.checksums {
		bodyLen += checksumSize
	}
	if bodyLen > maxBodySize {
		return nil, fmt.Errorf("wal: record body of %d bytes exceeds limit", bodyLen)
	}

	out := make([]byte, lengthPrefixSize, lengthPrefixSize+bodyLen)
	binary.BigEndian.PutUint32(out, uint32(bodyLen))
	out = binary.BigEndian.AppendUint64(out, rec.Sequence)
	out = append(out, byte(rec.Op))
	out = binary.BigEndian.AppendUint64(out, uint64(rec.Timestamp.UnixNano()))
	out = binary.BigEndian.AppendUint32(out, uint32(len(rec.Key)))
	out = append(out, rec.Key...)
	out = binary.BigEndian.AppendUint32(out, uint32(len(value)))
	out = append(out, value...)

	if f.checksums {
		out = binary.BigEndian.AppendUint32(out, crc32.Checksum(out[lengthPrefixSize:], crcTable))
	}
	return out, nil
}

// decodeBody parses a record body (everything after the length prefix).
//
// Structural problems return ErrCorruptedRecord, a bad CRC returns
// ErrChecksumMismatch. A value that fails authentication under a valid CRC
// returns ErrDecrypt, which callers must not mistake for a torn tail.
func decodeBody(body []byte, f format) (*Record, error) {
	payload := body
	if f.checksums {
		if len(body) < minBodySize+checksumSize {
			return nil, ErrCorruptedRecord
		}
		payload = body[:len(body)-checksumSize]
		want := binary.BigEndian.Uint32(body[len(body)-checksumSize:])
		if crc32.Checksum(payload, crcTable) != want {
			return nil, ErrChecksumMismatch
		}
	}
	if len(payload) < minBodySize {
		return nil, ErrCorruptedRecord
	}

	rec := &Record{
		Sequence: binary.BigEndian.Uint64(payload[0:8]),
		Op:       OpType(payload[8]),
	}
	if !rec.Op.valid() {
		return nil, ErrInvalidOpType
	}
	rec.Timestamp = time.Unix(0, int64(binary.BigEndian.Uint64(payload[9:17])))

	rest := payload[17:]
	keyLen := int(binary.BigEndian.Uint32(rest[:4]))
	rest = rest[4:]
	if keyLen > len(rest)-4 {
		return nil, ErrCorruptedRecord
	}
	rec.Key = string(rest[:keyLen])
	rest = rest[keyLen:]

	valueLen := int(binary.BigEndian.Uint32(rest[:4]))
	rest = rest[4:]
	if valueLen != len(rest) {
		return nil, ErrCorruptedRecord
	}

	switch rec.Op {
	case OpTypePut:
		if keyLen == 0 {
			return nil, ErrCorruptedRecord
		}
		value := make([]byte, valueLen)
		copy(value, rest)
		if f.cipher != nil {
			plain, err := f.cipher.Decrypt(value, additionalData(rec.Sequence, rec.Key))
			if err != nil {
				return nil, fmt.Errorf("%w: sequence %d: %v", ErrDecrypt, rec.Sequence, err)
			}
			value = plain
		}
		rec.Value = value
	case OpTypeDelete:
		if keyLen == 0 || valueLen != 0 {
			return nil, ErrCorruptedRecord
		}
	case OpTypeClear:
		if keyLen != 0 || valueLen != 0 {
			return nil, ErrCorruptedRecord
		}
	}
	return rec, nil
}

// additionalData binds a sealed value to its position and key.
func additionalData(seq uint64, key string) []byte {
	ad := make([]byte, 8, 8+len(key))
	binary.BigEndian.PutUint64(ad, seq)
	return append(ad, key...)
}
