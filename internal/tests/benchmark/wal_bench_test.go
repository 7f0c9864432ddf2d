package benchmark

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/zephyrite/zephyrite/internal/storage"
	"github.com/zephyrite/zephyrite/internal/storage/wal"
	"github.com/zephyrite/zephyrite/pkg/crypto/adaptive"
)

func openWriter(b *testing.B, mutate func(*wal.Config)) *wal.Writer {
	b.Helper()
	cfg := wal.DefaultConfig(filepath.Join(b.TempDir(), "bench.wal"))
	cfg.SyncMode = wal.SyncModeBatch
	if mutate != nil {
		mutate(&cfg)
	}
	w, err := wal.Open(cfg)
	if err != nil {
		b.Fatalf("Failed to open WAL writer: %v", err)
	}
	b.Cleanup(func() { _ = w.Close() })
	return w
}

// BenchmarkWALAppend benchmarks WAL append operations.
func BenchmarkWALAppend(b *testing.B) {
	w := openWriter(b, nil)
	value := randomValue(256)

	b.SetBytes(int64(len(value)))
	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		if _, err := w.Append(wal.NewPutRecord(benchKey(i), value)); err != nil {
			b.Fatalf("Append failed: %v", err)
		}
	}
}

// BenchmarkWALAppendWithSync benchmarks WAL append with an fsync per record.
func BenchmarkWALAppendWithSync(b *testing.B) {
	w := openWriter(b, func(cfg *wal.Config) { cfg.SyncMode = wal.SyncModeSync })
	value := randomValue(256)

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		if _, err := w.Append(wal.NewPutRecord(benchKey(i), value)); err != nil {
			b.Fatalf("Append failed: %v", err)
		}
	}
}

// BenchmarkWALAppendNoChecksum benchmarks the checksum-free record format.
func BenchmarkWALAppendNoChecksum(b *testing.B) {
	w := openWriter(b, func(cfg *wal.Config) { cfg.Checksums = false })
	value := randomValue(256)

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		if _, err := w.Append(wal.NewPutRecord(benchKey(i), value)); err != nil {
			b.Fatalf("Append failed: %v", err)
		}
	}
}

// BenchmarkWALAppendEncrypted benchmarks sealed records for each cipher.
func BenchmarkWALAppendEncrypted(b *testing.B) {
	for _, t := range []adaptive.CipherType{adaptive.CipherAESGCM, adaptive.CipherChaCha20} {
		b.Run(string(t), func(b *testing.B) {
			c, err := adaptive.NewFromSecret("benchmark-secret", t)
			if err != nil {
				b.Fatalf("Failed to create cipher: %v", err)
			}
			w := openWriter(b, func(cfg *wal.Config) { cfg.Cipher = c })
			value := randomValue(256)

			b.SetBytes(int64(len(value)))
			b.ResetTimer()
			b.ReportAllocs()

			for i := 0; i < b.N; i++ {
				if _, err := w.Append(wal.NewPutRecord(benchKey(i), value)); err != nil {
					b.Fatalf("Append failed: %v", err)
				}
			}
		})
	}
}

// BenchmarkWALReplay benchmarks recovery of logs of varying length.
func BenchmarkWALReplay(b *testing.B) {
	runWithKeyCounts(b, KeyCounts[:2], func(b *testing.B, count int) {
		path := filepath.Join(b.TempDir(), "replay.wal")
		cfg := wal.DefaultConfig(path)
		cfg.SyncMode = wal.SyncModeBatch
		w, err := wal.Open(cfg)
		if err != nil {
			b.Fatalf("Failed to open WAL writer: %v", err)
		}
		value := randomValue(256)
		for i := 0; i < count; i++ {
			if _, err := w.Append(wal.NewPutRecord(benchKey(i), value)); err != nil {
				b.Fatalf("Append failed: %v", err)
			}
		}
		if err := w.Close(); err != nil {
			b.Fatalf("Close failed: %v", err)
		}

		b.ResetTimer()
		b.ReportAllocs()

		for i := 0; i < b.N; i++ {
			n := 0
			stats, err := wal.Replay(path, func(*wal.Record) error {
				n++
				return nil
			})
			if err != nil {
				b.Fatalf("Replay failed: %v", err)
			}
			if n != count || stats.Dropped() {
				b.Fatalf("Replay read %d records (%v), want %d", n, stats, count)
			}
		}
	})
}

// BenchmarkEngineCompact benchmarks compaction of a log dominated by
// overwrites.
func BenchmarkEngineCompact(b *testing.B) {
	ctx := context.Background()
	for i := 0; i < b.N; i++ {
		b.StopTimer()
		e := openEngine(b, storage.BackendWAL, nil)
		value := randomValue(128)
		for j := 0; j < 10000; j++ {
			if _, err := e.Put(ctx, benchKey(j%500), value); err != nil {
				b.Fatalf("Put failed: %v", err)
			}
		}
		c, ok := e.(storage.Compactor)
		if !ok {
			b.Fatal("wal engine does not support compaction")
		}
		b.StartTimer()

		res, err := c.Compact(ctx)
		if err != nil {
			b.Fatalf("Compact failed: %v", err)
		}
		if res.EntriesAfter != 500 {
			b.Fatalf("Compact kept %d entries, want 500", res.EntriesAfter)
		}
	}
}

// BenchmarkEngineRecover benchmarks opening a wal engine over an existing log.
func BenchmarkEngineRecover(b *testing.B) {
	dir := b.TempDir()
	path := filepath.Join(dir, "recover.wal")
	mutate := func(cfg *storage.Config) {
		cfg.WAL.Path = path
	}
	e := openEngine(b, storage.BackendWAL, mutate)
	prefill(b, e, 10000, 256)
	if err := e.Close(); err != nil {
		b.Fatalf("Close failed: %v", err)
	}

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		e := openEngine(b, storage.BackendWAL, mutate)
		if err := e.Close(); err != nil {
			b.Fatalf("Close failed: %v", err)
		}
	}
}

// BenchmarkEngineEncrypted benchmarks the wal engine with sealed values.
func BenchmarkEngineEncrypted(b *testing.B) {
	e := openEngine(b, storage.BackendWAL, withCipher(b, adaptive.CipherAESGCM))
	value := randomValue(1024)
	ctx := context.Background()

	b.SetBytes(int64(len(value)))
	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		if _, err := e.Put(ctx, benchKey(i), value); err != nil {
			b.Fatalf("Put failed: %v", err)
		}
	}
}
