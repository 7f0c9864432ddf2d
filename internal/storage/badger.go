package storage

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/zephyrite/zephyrite/internal/core/domain"
	"github.com/zephyrite/zephyrite/internal/telemetry/metric"
)

// entryHeaderSize is created_at (8) + updated_at (8), both unix nanos.
const entryHeaderSize = 16

var errCorruptEntry = errors.New("badger: stored entry is shorter than its header")

// BadgerConfig contains Badger-specific tuning parameters.
type BadgerConfig struct {
	// GCInterval is the interval between automatic value log GC runs.
	// Default: 10m
	GCInterval string

	// GCThreshold is the discard ratio a value log file needs before GC
	// rewrites it (0.0-1.0).
	// Default: 0.5
	GCThreshold float64

	// CacheSize is the block cache size in bytes.
	// Default: 64MB
	CacheSize int64

	// ValueLogFileSize is the max value log file size in bytes.
	// Default: 256MB
	ValueLogFileSize int64

	// NumMemtables is the number of memtables.
	// Default: 2
	NumMemtables int

	// SyncWrites fsyncs every write.
	// Default: true
	SyncWrites bool

	// InMemory keeps everything in RAM; Dir is ignored.
	InMemory bool
}

// DefaultBadgerConfig returns the default Badger configuration.
func DefaultBadgerConfig() BadgerConfig {
	return BadgerConfig{
		GCInterval:       "10m",
		GCThreshold:      0.5,
		CacheSize:        64 << 20,  // 64MB
		ValueLogFileSize: 256 << 20, // 256MB
		NumMemtables:     2,
		SyncWrites:       true,
	}
}

// BadgerEngine is the disk-resident backend.
//
// Each key maps to its value prefixed by the entry timestamps. Writers are
// serialized so Created/Updated and Deleted/NotFound outcomes are exact.
type BadgerEngine struct {
	db     *badger.DB
	dir    string
	cfg    BadgerConfig
	keys   domain.KeyPolicy
	now    func() time.Time
	logger *slog.Logger

	mu     sync.Mutex
	closed atomic.Bool

	reads   atomic.Uint64
	writes  atomic.Uint64
	deletes atomic.Uint64

	lastGCTime       atomic.Int64 // Unix milliseconds
	gcRewrites       atomic.Uint64
	metricsLSMSize   prometheus.Gauge
	metricsVLogSize  prometheus.Gauge
	metricsLastGC    prometheus.Gauge
	metricsGCRewrite prometheus.Counter

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewBadgerEngine opens or creates a Badger database in dir.
func NewBadgerEngine(dir string, cfg Config) (*BadgerEngine, error) {
	cfg.applyDefaults()
	bc := cfg.Badger
	if bc.GCThreshold <= 0 || bc.GCThreshold >= 1 {
		bc.GCThreshold = DefaultBadgerConfig().GCThreshold
	}

	logger := cfg.Logger.With("component", "storage", "backend", BackendBadger)

	opts := badger.DefaultOptions(dir)
	if bc.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts.Logger = &badgerLogger{logger: logger}
	if bc.CacheSize > 0 {
		opts.BlockCacheSize = bc.CacheSize
	}
	if bc.ValueLogFileSize > 0 {
		opts.ValueLogFileSize = bc.ValueLogFileSize
	}
	if bc.NumMemtables > 0 {
		opts.NumMemtables = bc.NumMemtables
	}
	opts.SyncWrites = bc.SyncWrites
	opts.DetectConflicts = false

	db, err := badger.Open(opts)
	if err != nil {
		return nil, domain.ErrStorageIO.WithCause(fmt.Errorf("badger: open db: %w", err))
	}

	e := &BadgerEngine{
		db:     db,
		dir:    dir,
		cfg:    bc,
		keys:   cfg.KeyPolicy,
		now:    cfg.Clock,
		logger: logger,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	if cfg.Metrics != nil {
		e.RegisterMetrics(cfg.Metrics)
	}

	go e.gcLoop()

	logger.Info("badger engine started",
		"dir", dir,
		"in_memory", bc.InMemory,
		"cache_size", bc.CacheSize,
		"gc_interval", bc.GCInterval)
	return e, nil
}

func encodeEntry(e *domain.Entry) []byte {
	buf := make([]byte, entryHeaderSize+len(e.Value))
	binary.BigEndian.PutUint64(buf[0:8], uint64(e.CreatedAt.UnixNano()))
	binary.BigEndian.PutUint64(buf[8:16], uint64(e.UpdatedAt.UnixNano()))
	copy(buf[entryHeaderSize:], e.Value)
	return buf
}

func decodeEntry(buf []byte) (*domain.Entry, error) {
	if len(buf) < entryHeaderSize {
		return nil, errCorruptEntry
	}
	value := make([]byte, len(buf)-entryHeaderSize)
	copy(value, buf[entryHeaderSize:])
	return &domain.Entry{
		Value:     value,
		Size:      len(value),
		CreatedAt: time.Unix(0, int64(binary.BigEndian.Uint64(buf[0:8]))),
		UpdatedAt: time.Unix(0, int64(binary.BigEndian.Uint64(buf[8:16]))),
	}, nil
}

// getEntry reads one entry inside txn. A missing key returns nil, nil.
func getEntry(txn *badger.Txn, key string) (*domain.Entry, error) {
	item, err := txn.Get([]byte(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var entry *domain.Entry
	err = item.Value(func(val []byte) error {
		entry, err = decodeEntry(val)
		return err
	})
	return entry, err
}

func ioError(err error) error {
	if err == nil || domain.IsDomainError(err, "") {
		return err
	}
	return domain.ErrStorageIO.WithCause(err)
}

// Get returns a copy of the entry for key.
func (e *BadgerEngine) Get(_ context.Context, key string) (*domain.Entry, error) {
	if e.closed.Load() {
		return nil, domain.ErrEngineClosed
	}
	e.reads.Add(1)

	var entry *domain.Entry
	err := e.db.View(func(txn *badger.Txn) error {
		var err error
		entry, err = getEntry(txn, key)
		return err
	})
	if err != nil {
		return nil, ioError(err)
	}
	if entry == nil {
		return nil, domain.ErrKeyNotFound
	}
	return entry, nil
}

// Exists reports whether key is present.
func (e *BadgerEngine) Exists(_ context.Context, key string) (bool, error) {
	if e.closed.Load() {
		return false, domain.ErrEngineClosed
	}
	e.reads.Add(1)

	err := e.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(key))
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, ioError(err)
	}
	return true, nil
}

// Put stores value under key.
func (e *BadgerEngine) Put(_ context.Context, key string, value []byte) (domain.PutResult, error) {
	if err := e.keys.Validate(key); err != nil {
		return 0, err
	}
	if err := domain.ValidateValue(value); err != nil {
		return 0, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed.Load() {
		return 0, domain.ErrEngineClosed
	}

	result := domain.Created
	err := e.db.Update(func(txn *badger.Txn) error {
		existing, err := getEntry(txn, key)
		if err != nil {
			return err
		}
		now := e.now().Round(0)
		next := domain.NewEntry(value, now)
		if existing != nil {
			result = domain.Updated
			next = existing.Update(value, now)
		}
		return txn.Set([]byte(key), encodeEntry(next))
	})
	if err != nil {
		return 0, ioError(err)
	}
	e.writes.Add(1)
	return result, nil
}

// Delete removes key.
func (e *BadgerEngine) Delete(_ context.Context, key string) (domain.DeleteResult, error) {
	if err := e.keys.Validate(key); err != nil {
		return 0, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed.Load() {
		return 0, domain.ErrEngineClosed
	}

	result := domain.Deleted
	err := e.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get([]byte(key)); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				result = domain.NotFound
				return nil
			}
			return err
		}
		return txn.Delete([]byte(key))
	})
	if err != nil {
		return 0, ioError(err)
	}
	if result == domain.Deleted {
		e.deletes.Add(1)
	}
	return result, nil
}

// scan visits every key. Values are fetched only when withValues is set.
func (e *BadgerEngine) scan(withValues bool, fn func(key []byte, item *badger.Item) error) error {
	return e.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = withValues
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			if err := fn(item.Key(), item); err != nil {
				return err
			}
		}
		return nil
	})
}

// ListKeys returns every key in byte order.
func (e *BadgerEngine) ListKeys(_ context.Context) ([]string, error) {
	if e.closed.Load() {
		return nil, domain.ErrEngineClosed
	}
	e.reads.Add(1)

	var keys []string
	err := e.scan(false, func(key []byte, _ *badger.Item) error {
		keys = append(keys, string(key))
		return nil
	})
	if err != nil {
		return nil, ioError(err)
	}
	return keys, nil
}

// Clear drops every key and returns how many there were.
func (e *BadgerEngine) Clear(_ context.Context) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed.Load() {
		return 0, domain.ErrEngineClosed
	}

	n := 0
	if err := e.scan(false, func([]byte, *badger.Item) error {
		n++
		return nil
	}); err != nil {
		return 0, ioError(err)
	}
	if err := e.db.DropAll(); err != nil {
		return 0, ioError(fmt.Errorf("badger: drop all: %w", err))
	}
	e.writes.Add(1)
	e.logger.Info("store cleared", "removed", n)
	return n, nil
}

// Stats counts keys and the bytes their keys and values occupy.
func (e *BadgerEngine) Stats(_ context.Context) (domain.Stats, error) {
	if e.closed.Load() {
		return domain.Stats{}, domain.ErrEngineClosed
	}

	var (
		keys  int
		usage int64
	)
	err := e.scan(false, func(key []byte, item *badger.Item) error {
		keys++
		size := item.ValueSize() - entryHeaderSize
		if size < 0 {
			size = 0
		}
		usage += int64(len(key)) + size
		return nil
	})
	if err != nil {
		return domain.Stats{}, ioError(err)
	}

	reads, writes, deletes := e.reads.Load(), e.writes.Load(), e.deletes.Load()
	return domain.Stats{
		KeyCount:        keys,
		MemoryUsage:     usage,
		TotalOperations: reads + writes + deletes,
		Reads:           reads,
		Writes:          writes,
		Deletes:         deletes,
	}, nil
}

// DetailedStats adds the on-disk sizes to Stats.
func (e *BadgerEngine) DetailedStats(ctx context.Context) (domain.DetailedStats, error) {
	st, err := e.Stats(ctx)
	if err != nil {
		return domain.DetailedStats{}, err
	}
	lsm, vlog := e.db.Size()
	return domain.DetailedStats{
		Stats:            st,
		Backend:          BackendBadger,
		ChecksumsEnabled: true,
		LSMSize:          lsm,
		ValueLogSize:     vlog,
	}, nil
}

// Compact flattens the LSM tree and runs value log GC until nothing more
// can be rewritten.
func (e *BadgerEngine) Compact(ctx context.Context) (domain.CompactionResult, error) {
	if e.closed.Load() {
		return domain.CompactionResult{}, domain.ErrEngineClosed
	}
	start := time.Now()
	lsm, vlog := e.db.Size()
	result := domain.CompactionResult{BytesBefore: lsm + vlog}

	st, err := e.Stats(ctx)
	if err != nil {
		return result, err
	}
	result.EntriesBefore = uint64(st.KeyCount)
	result.EntriesAfter = uint64(st.KeyCount)

	if err := e.db.Flatten(1); err != nil {
		return result, ioError(fmt.Errorf("badger: flatten: %w", err))
	}
	if _, err := e.GC(ctx); err != nil {
		return result, ioError(err)
	}

	lsm, vlog = e.db.Size()
	result.BytesAfter = lsm + vlog
	result.Duration = time.Since(start)
	return result, nil
}

// GC runs value log GC until Badger reports nothing left to rewrite and
// returns the number of files rewritten.
func (e *BadgerEngine) GC(ctx context.Context) (uint64, error) {
	if e.cfg.InMemory {
		return 0, nil
	}
	startTime := time.Now()

	var rewrites uint64
	for ctx.Err() == nil {
		err := e.db.RunValueLogGC(e.cfg.GCThreshold)
		if err != nil {
			if errors.Is(err, badger.ErrNoRewrite) || errors.Is(err, badger.ErrRejected) {
				break
			}
			return rewrites, fmt.Errorf("badger: gc: %w", err)
		}
		rewrites++
	}

	e.lastGCTime.Store(time.Now().UnixMilli())
	e.gcRewrites.Add(rewrites)
	if e.metricsGCRewrite != nil {
		e.metricsGCRewrite.Add(float64(rewrites))
		e.metricsLastGC.SetToCurrentTime()
	}

	e.logger.Debug("value log gc completed",
		"rewrites", rewrites,
		"elapsed", time.Since(startTime))
	return rewrites, nil
}

// Backup streams a full Badger backup to w and returns the version it
// covers.
func (e *BadgerEngine) Backup(w io.Writer) (uint64, error) {
	if e.closed.Load() {
		return 0, domain.ErrEngineClosed
	}
	since, err := e.db.Backup(w, 0)
	if err != nil {
		return 0, ioError(fmt.Errorf("badger: backup: %w", err))
	}
	return since, nil
}

// Close stops the GC loop and closes the database.
func (e *BadgerEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}

	close(e.stopCh)
	<-e.doneCh

	if err := e.db.Close(); err != nil {
		return fmt.Errorf("badger: close db: %w", err)
	}
	e.logger.Info("badger engine closed")
	return nil
}

// RegisterMetrics registers the Badger size and GC metrics.
func (e *BadgerEngine) RegisterMetrics(m *metric.Registry) *BadgerEngine {
	e.metricsLSMSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: metric.Namespace,
		Subsystem: "badger",
		Name:      "lsm_size_bytes",
		Help:      "Badger LSM tree size in bytes",
	})
	e.metricsVLogSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: metric.Namespace,
		Subsystem: "badger",
		Name:      "value_log_size_bytes",
		Help:      "Badger value log size in bytes",
	})
	e.metricsLastGC = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: metric.Namespace,
		Subsystem: "badger",
		Name:      "last_gc_timestamp_seconds",
		Help:      "Unix timestamp of the last value log GC run",
	})
	e.metricsGCRewrite = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: metric.Namespace,
		Subsystem: "badger",
		Name:      "gc_rewrites_total",
		Help:      "Value log files rewritten by GC",
	})

	m.MustRegister(
		e.metricsLSMSize,
		e.metricsVLogSize,
		e.metricsLastGC,
		e.metricsGCRewrite,
	)
	e.updateSizeMetrics()
	return e
}

func (e *BadgerEngine) updateSizeMetrics() {
	if e.metricsLSMSize == nil {
		return
	}
	lsm, vlog := e.db.Size()
	e.metricsLSMSize.Set(float64(lsm))
	e.metricsVLogSize.Set(float64(vlog))
}

// gcLoop runs periodic value log GC and refreshes the size gauges.
func (e *BadgerEngine) gcLoop() {
	defer close(e.doneCh)

	interval, err := time.ParseDuration(e.cfg.GCInterval)
	if err != nil || interval <= 0 {
		e.logger.Warn("invalid gc_interval, using default 10m", "value", e.cfg.GCInterval)
		interval = 10 * time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			if _, err := e.GC(ctx); err != nil {
				e.logger.Error("auto gc failed", "error", err)
			}
			cancel()
			e.updateSizeMetrics()

		case <-e.stopCh:
			return
		}
	}
}

// badgerLogger adapts slog.Logger to Badger's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}
