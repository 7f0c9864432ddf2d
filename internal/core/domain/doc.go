// Package domain defines the core value types of the key-value store.
//
// Everything here is pure: no I/O and no locking. The package contains:
//
//   - Entry: a stored value plus its size and timestamps
//   - PutResult / DeleteResult: named outcomes of mutating calls
//   - Key and value validation rules
//   - Stats and compaction reports shared by every engine
//   - Errors: coded domain errors used across layers
package domain
