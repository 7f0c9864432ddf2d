package benchmark

import (
	"context"
	"crypto/rand"
	"fmt"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/zephyrite/zephyrite/internal/storage"
	"github.com/zephyrite/zephyrite/internal/storage/wal"
	"github.com/zephyrite/zephyrite/internal/telemetry/logger"
	"github.com/zephyrite/zephyrite/pkg/crypto/adaptive"
)

// KeyCounts defines the store sizes for benchmarking.
var KeyCounts = []int{1000, 10000, 100000}

// ValueSizes defines the value sizes for benchmarking.
var ValueSizes = []int{64, 1024, 16 * 1024}

var backends = []string{storage.BackendMemory, storage.BackendWAL, storage.BackendBadger}

func benchKey(i int) string {
	return fmt.Sprintf("bench:key:%08d", i)
}

func randomValue(n int) []byte {
	v := make([]byte, n)
	_, _ = rand.Read(v)
	return v
}

// openEngine opens backend in a temporary directory. Batch sync keeps the
// WAL numbers comparable with badger's default (non-synchronous) writes.
func openEngine(b *testing.B, backend string, mutate func(*storage.Config)) storage.Engine {
	b.Helper()
	dir := b.TempDir()

	cfg := storage.DefaultConfig()
	cfg.Backend = backend
	cfg.WAL = wal.DefaultConfig(filepath.Join(dir, "bench.wal"))
	cfg.WAL.SyncMode = wal.SyncModeBatch
	cfg.DataDir = filepath.Join(dir, "badger")
	cfg.Logger = logger.Discard()
	if mutate != nil {
		mutate(&cfg)
	}

	e, err := storage.Open(context.Background(), cfg)
	if err != nil {
		b.Fatalf("Failed to open %s engine: %v", backend, err)
	}
	b.Cleanup(func() { _ = e.Close() })
	return e
}

func withCipher(b *testing.B, t adaptive.CipherType) func(*storage.Config) {
	c, err := adaptive.NewFromSecret("benchmark-secret", t)
	if err != nil {
		b.Fatalf("Failed to create cipher: %v", err)
	}
	return func(cfg *storage.Config) { cfg.Cipher = c }
}

// prefill writes count keys with values of size bytes.
func prefill(b *testing.B, e storage.Engine, count, size int) {
	b.Helper()
	ctx := context.Background()
	value := randomValue(size)
	for i := 0; i < count; i++ {
		if _, err := e.Put(ctx, benchKey(i), value); err != nil {
			b.Fatalf("Prefill failed at %d: %v", i, err)
		}
	}
}

// reportMemory reports memory usage.
func reportMemory(b *testing.B, prefix string) {
	var m runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&m)
	b.ReportMetric(float64(m.Alloc)/(1024*1024), prefix+"_MB")
	b.ReportMetric(float64(m.NumGC), prefix+"_GC")
}

// runWithBackends runs a benchmark function against every backend.
func runWithBackends(b *testing.B, benchFn func(b *testing.B, backend string)) {
	for _, backend := range backends {
		b.Run(backend, func(b *testing.B) {
			benchFn(b, backend)
		})
	}
}

// runWithKeyCounts runs a benchmark function with various store sizes.
func runWithKeyCounts(b *testing.B, counts []int, benchFn func(b *testing.B, count int)) {
	for _, count := range counts {
		b.Run(fmt.Sprintf("keys_%d", count), func(b *testing.B) {
			benchFn(b, count)
		})
	}
}
