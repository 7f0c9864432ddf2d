// Package wal provides the write-ahead log behind the persistent engine.
//
// Every accepted mutation is appended (and, in sync mode, fsynced) before it
// is applied to memory. On start the log is replayed to rebuild state.
//
// File layout:
//
//	[magic:4 "ZWAL"][version:1][flags:1]
//	[Record]*
//
// flags bit 0: records carry a CRC32-C. flags bit 1: values are sealed.
//
// Record wire format (big-endian):
//
//	[Length:4][Sequence:8][Op:1][Timestamp:8][KeyLen:4][Key][ValueLen:4][Value][CRC32-C:4]?
//
// Where:
//   - Length counts every byte after the length field
//   - Timestamp is Unix nanoseconds
//   - Op is 1=PUT, 2=DELETE, 3=CLEAR; DELETE and CLEAR have no value, CLEAR has no key
//   - CRC32-C covers Sequence through Value
//
// Recovery policy:
//
// Replay stops at the first record that is incomplete, fails its checksum,
// is malformed, or does not advance the sequence. That record and everything
// after it are dropped; Open truncates them before accepting new appends.
//
// Compaction rewrites the log as one PUT per live key and atomically renames
// it over the old file.
package wal
