// Package cmap provides the concurrent map behind the in-memory engine.
//
//   - Sharding: power-of-two shard count, murmur3 key hashing
//   - Fine-grained locking: per-shard RWMutex
//   - Atomic read-modify-write: Upsert and Pop run under the shard lock
//   - Capacity hint: WithCapacity pre-sizes every shard
//
// Usage:
//
//	m := cmap.New[*domain.Entry](cmap.WithCapacity(1000))
//	m.Set("key", entry)
//	val, ok := m.Get("key")
package cmap
