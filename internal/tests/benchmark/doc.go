// Package benchmark provides performance benchmarks for the Zephyrite
// storage engines.
//
// Run benchmarks with:
//
//	go test -bench=. -benchmem ./internal/tests/benchmark/...
//
// Run a single backend:
//
//	go test -bench='BenchmarkEngine/wal' -benchmem -benchtime=10s ./internal/tests/benchmark/...
//
// Compare results:
//
//	benchstat old.txt new.txt
package benchmark
