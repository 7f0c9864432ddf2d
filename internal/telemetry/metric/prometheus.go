package metric

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Namespace prefixes every metric name.
const Namespace = "zephyrite"

// Registry holds all application metrics.
type Registry struct {
	registry *prometheus.Registry

	// Storage metrics
	Operations       *prometheus.CounterVec
	WALAppendSeconds prometheus.Histogram
	WALWriteBytes    prometheus.Counter
	WALSize          prometheus.Gauge
	ReplayedRecords  prometheus.Counter
	DroppedTails     *prometheus.CounterVec
	Compactions      *prometheus.CounterVec

	// Request metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

var (
	globalOnce sync.Once
	global     *Registry
)

// Global returns the process-wide registry.
func Global() *Registry {
	globalOnce.Do(func() {
		global = NewRegistry()
	})
	return global
}

// NewRegistry creates a registry with Go runtime and process collectors
// already registered.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	r := &Registry{
		registry: reg,
		Operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "storage",
			Name:      "operations_total",
			Help:      "Storage operations by backend, operation and result.",
		}, []string{"backend", "op", "result"}),
		WALAppendSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "wal",
			Name:      "append_duration_seconds",
			Help:      "Time spent appending one record to the write-ahead log.",
			Buckets:   []float64{.00005, .0001, .00025, .0005, .001, .0025, .005, .01, .025, .05, .1},
		}),
		WALWriteBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "wal",
			Name:      "write_bytes_total",
			Help:      "Bytes appended to the write-ahead log.",
		}),
		WALSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "wal",
			Name:      "size_bytes",
			Help:      "Current size of the write-ahead log file.",
		}),
		ReplayedRecords: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "wal",
			Name:      "replayed_records_total",
			Help:      "Records applied during recovery.",
		}),
		DroppedTails: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "wal",
			Name:      "dropped_tails_total",
			Help:      "Unreadable log tails discarded during recovery, by reason.",
		}, []string{"reason"}),
		Compactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "wal",
			Name:      "compactions_total",
			Help:      "Log compactions by result.",
		}, []string{"result"}),
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "requests_total",
			Help:      "Requests served by protocol, method and status.",
		}, []string{"protocol", "method", "status"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "request_duration_seconds",
			Help:      "Request latency by protocol and method.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"protocol", "method"}),
	}

	reg.MustRegister(
		r.Operations,
		r.WALAppendSeconds,
		r.WALWriteBytes,
		r.WALSize,
		r.ReplayedRecords,
		r.DroppedTails,
		r.Compactions,
		r.RequestsTotal,
		r.RequestDuration,
	)
	return r
}

// Prometheus returns the underlying registry for callers that register
// their own collectors.
func (r *Registry) Prometheus() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// MustRegister registers additional collectors.
func (r *Registry) MustRegister(cs ...prometheus.Collector) {
	if r == nil {
		return
	}
	r.registry.MustRegister(cs...)
}

// Handler returns an HTTP handler for the /metrics endpoint.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// Handler returns the /metrics handler of the global registry.
func Handler() http.Handler {
	return Global().Handler()
}

// RecordOperation counts one storage operation.
func (r *Registry) RecordOperation(backend, op, result string) {
	if r == nil {
		return
	}
	r.Operations.WithLabelValues(backend, op, result).Inc()
}

// ObserveWALAppend records the latency and size of one append.
func (r *Registry) ObserveWALAppend(d time.Duration, bytes int64) {
	if r == nil {
		return
	}
	r.WALAppendSeconds.Observe(d.Seconds())
	if bytes > 0 {
		r.WALWriteBytes.Add(float64(bytes))
	}
}

// SetWALSize sets the current log size.
func (r *Registry) SetWALSize(bytes int64) {
	if r == nil {
		return
	}
	r.WALSize.Set(float64(bytes))
}

// RecordReplay records the outcome of a recovery pass.
func (r *Registry) RecordReplay(records uint64, droppedReason string) {
	if r == nil {
		return
	}
	r.ReplayedRecords.Add(float64(records))
	if droppedReason != "" {
		r.DroppedTails.WithLabelValues(droppedReason).Inc()
	}
}

// RecordCompaction counts one compaction attempt.
func (r *Registry) RecordCompaction(err error) {
	if r == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	r.Compactions.WithLabelValues(result).Inc()
}

// RecordRequest counts one served request.
func (r *Registry) RecordRequest(protocol, method, status string) {
	if r == nil {
		return
	}
	r.RequestsTotal.WithLabelValues(protocol, method, status).Inc()
}

// ObserveRequestDuration records request latency in seconds.
func (r *Registry) ObserveRequestDuration(protocol, method string, seconds float64) {
	if r == nil {
		return
	}
	r.RequestDuration.WithLabelValues(protocol, method).Observe(seconds)
}
