package database

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

// PoolStatter is implemented by *pgxpool.Pool.
type PoolStatter interface {
	Stat() *pgxpool.Stat
}

// PoolStatsCollector exports pgx pool statistics as Prometheus metrics.
type PoolStatsCollector struct {
	pool    PoolStatter
	service string

	acquired     *prometheus.Desc
	idle         *prometheus.Desc
	total        *prometheus.Desc
	max          *prometheus.Desc
	acquireCount *prometheus.Desc
	emptyAcquire *prometheus.Desc
	acquireWait  *prometheus.Desc
}

// NewPoolStatsCollector creates a collector for pool labelled with service.
func NewPoolStatsCollector(pool PoolStatter, service string) *PoolStatsCollector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc("db_pool_"+name, help, []string{"service"}, nil)
	}
	return &PoolStatsCollector{
		pool:         pool,
		service:      service,
		acquired:     desc("acquired_connections", "Number of currently acquired connections"),
		idle:         desc("idle_connections", "Number of currently idle connections"),
		total:        desc("total_connections", "Total number of connections in the pool"),
		max:          desc("max_connections", "Maximum number of connections allowed"),
		acquireCount: desc("acquire_count_total", "Total number of connection acquires"),
		emptyAcquire: desc("empty_acquire_count_total", "Acquires that had to wait for a connection"),
		acquireWait:  desc("acquire_duration_seconds_total", "Total time spent acquiring connections"),
	}
}

// Describe implements prometheus.Collector.
func (c *PoolStatsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.acquired
	ch <- c.idle
	ch <- c.total
	ch <- c.max
	ch <- c.acquireCount
	ch <- c.emptyAcquire
	ch <- c.acquireWait
}

// Collect implements prometheus.Collector.
func (c *PoolStatsCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.pool.Stat()
	gauge := func(d *prometheus.Desc, v float64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v, c.service)
	}
	counter := func(d *prometheus.Desc, v float64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, v, c.service)
	}

	gauge(c.acquired, float64(s.AcquiredConns()))
	gauge(c.idle, float64(s.IdleConns()))
	gauge(c.total, float64(s.TotalConns()))
	gauge(c.max, float64(s.MaxConns()))
	counter(c.acquireCount, float64(s.AcquireCount()))
	counter(c.emptyAcquire, float64(s.EmptyAcquireCount()))
	counter(c.acquireWait, s.AcquireDuration().Seconds())
}

// RegisterPoolMetrics registers a pool collector with reg.
func RegisterPoolMetrics(reg prometheus.Registerer, pool PoolStatter, service string) error {
	return reg.Register(NewPoolStatsCollector(pool, service))
}
