// Package memory provides the in-memory key-value engine.
//
// Entries live in a sharded concurrent map. Reads take a shard read lock and
// return copies; writes replace whole entries under the shard write lock.
//
// The Apply* methods skip validation. They exist for engines that validate
// and log a mutation themselves before applying it here, and for log replay.
package memory
