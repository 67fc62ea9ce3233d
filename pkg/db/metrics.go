package db

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

// PoolStatsCollector exposes pool stats, read from the pool on every scrape.
type PoolStatsCollector struct {
	pool     *pgxpool.Pool
	total    *prometheus.Desc
	idle     *prometheus.Desc
	acquired *prometheus.Desc
}

// NewPoolStatsCollector builds a collector under the given metric namespace.
func NewPoolStatsCollector(pool *pgxpool.Pool, namespace string) *PoolStatsCollector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "log_db_pool", name), help, nil, nil)
	}
	return &PoolStatsCollector{
		pool:     pool,
		total:    desc("total_conns", "Open connections in the log sink pool"),
		idle:     desc("idle_conns", "Idle connections in the log sink pool"),
		acquired: desc("acquired_conns", "Connections currently acquired from the log sink pool"),
	}
}

func (c *PoolStatsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.total
	ch <- c.idle
	ch <- c.acquired
}

func (c *PoolStatsCollector) Collect(ch chan<- prometheus.Metric) {
	if c.pool == nil {
		return
	}
	stats := c.pool.Stat()
	ch <- prometheus.MustNewConstMetric(c.total, prometheus.GaugeValue, float64(stats.TotalConns()))
	ch <- prometheus.MustNewConstMetric(c.idle, prometheus.GaugeValue, float64(stats.IdleConns()))
	ch <- prometheus.MustNewConstMetric(c.acquired, prometheus.GaugeValue, float64(stats.AcquiredConns()))
}

// RegisterPoolStats registers a collector, tolerating a previous registration.
func RegisterPoolStats(reg prometheus.Registerer, pool *pgxpool.Pool, namespace string) error {
	if err := reg.Register(NewPoolStatsCollector(pool, namespace)); err != nil {
		if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
			return err
		}
	}
	return nil
}
