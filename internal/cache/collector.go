package cache

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector exports registry statistics as Prometheus metrics labelled by cache name.
type Collector struct {
	registry *Registry
	hits     *prometheus.Desc
	misses   *prometheus.Desc
	entries  *prometheus.Desc
	capacity *prometheus.Desc
}

// NewCollector creates a collector over r. Metric names are prefixed with namespace.
func NewCollector(r *Registry, namespace string) *Collector {
	labels := []string{"cache", "policy"}
	return &Collector{
		registry: r,
		hits: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "cache", "hits_total"),
			"Number of cache lookups served from memory.",
			labels, nil,
		),
		misses: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "cache", "misses_total"),
			"Number of cache lookups that queried the device.",
			labels, nil,
		),
		entries: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "cache", "entries"),
			"Number of entries currently stored.",
			labels, nil,
		),
		capacity: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "cache", "capacity"),
			"Maximum number of entries.",
			labels, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.hits
	ch <- c.misses
	ch <- c.entries
	ch <- c.capacity
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for name, info := range c.registry.Snapshot() {
		policy := string(info.Policy)
		ch <- prometheus.MustNewConstMetric(c.hits, prometheus.CounterValue, float64(info.Hits), name, policy)
		ch <- prometheus.MustNewConstMetric(c.misses, prometheus.CounterValue, float64(info.Misses), name, policy)
		ch <- prometheus.MustNewConstMetric(c.entries, prometheus.GaugeValue, float64(info.Size), name, policy)
		ch <- prometheus.MustNewConstMetric(c.capacity, prometheus.GaugeValue, float64(info.Capacity), name, policy)
	}
}
