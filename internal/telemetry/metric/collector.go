package metric

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/zephyrite/zephyrite/internal/core/domain"
)

// StatsSource is implemented by every storage engine.
type StatsSource interface {
	Stats(ctx context.Context) (domain.Stats, error)
}

// Collector reads engine statistics at scrape time.
type Collector struct {
	src     StatsSource
	timeout time.Duration

	keys    *prometheus.Desc
	memory  *prometheus.Desc
	ops     *prometheus.Desc
	reads   *prometheus.Desc
	writes  *prometheus.Desc
	deletes *prometheus.Desc
	up      *prometheus.Desc
}

// NewCollector creates a collector over src.
func NewCollector(src StatsSource) *Collector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(Namespace, "store", name), help, nil, nil)
	}
	return &Collector{
		src:     src,
		timeout: 2 * time.Second,
		keys:    desc("keys", "Number of live keys."),
		memory:  desc("memory_bytes", "Approximate bytes held by keys and values."),
		ops:     desc("operations_total", "Operations since the engine opened."),
		reads:   desc("reads_total", "Read operations since the engine opened."),
		writes:  desc("writes_total", "Write operations since the engine opened."),
		deletes: desc("deletes_total", "Successful deletes since the engine opened."),
		up:      desc("up", "Whether the last stats read succeeded."),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.keys
	ch <- c.memory
	ch <- c.ops
	ch <- c.reads
	ch <- c.writes
	ch <- c.deletes
	ch <- c.up
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	st, err := c.src.Stats(ctx)
	if err != nil {
		ch <- prometheus.MustNewConstMetric(c.up, prometheus.GaugeValue, 0)
		return
	}
	ch <- prometheus.MustNewConstMetric(c.up, prometheus.GaugeValue, 1)
	ch <- prometheus.MustNewConstMetric(c.keys, prometheus.GaugeValue, float64(st.KeyCount))
	ch <- prometheus.MustNewConstMetric(c.memory, prometheus.GaugeValue, float64(st.MemoryUsage))
	ch <- prometheus.MustNewConstMetric(c.ops, prometheus.CounterValue, float64(st.TotalOperations))
	ch <- prometheus.MustNewConstMetric(c.reads, prometheus.CounterValue, float64(st.Reads))
	ch <- prometheus.MustNewConstMetric(c.writes, prometheus.CounterValue, float64(st.Writes))
	ch <- prometheus.MustNewConstMetric(c.deletes, prometheus.CounterValue, float64(st.Deletes))
}
