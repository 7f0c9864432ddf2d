// Package storage provides the key-value engines of Zephyrite.
//
// Three backends share the Engine interface:
//
//   - memory: the sharded in-memory map, no persistence
//   - wal: the in-memory map made durable by a write-ahead log
//   - badger: a disk-resident LSM store
//
// The wal backend follows a strict write-ahead discipline:
//
//   - Writes are validated, appended and fsynced, then applied to memory
//   - One mutex covers append and apply, so log order is write order
//   - Reads never touch the log and never wait for writers
//   - On open the log is replayed into an empty map; a torn tail is dropped
//
// Open selects the backend from Config and wraps it with Prometheus
// instrumentation.
package storage
