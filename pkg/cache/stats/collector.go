package stats

import "github.com/prometheus/client_golang/prometheus"

// Collector exports every source of an Aggregator at scrape time. Caches can
// be registered after the collector without re-registering anything.
type Collector struct {
	agg *Aggregator

	sourceReads *prometheus.Desc
	cacheReads  *prometheus.Desc
	evictions   *prometheus.Desc
	entries     *prometheus.Desc
	coeff       *prometheus.Desc
}

// NewCollector creates a collector for agg. An empty namespace uses "tickflow".
func NewCollector(agg *Aggregator, namespace string) *Collector {
	if namespace == "" {
		namespace = "tickflow"
	}
	labels := []string{"cache"}
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "cache", name), help, labels, nil)
	}

	return &Collector{
		agg:         agg,
		sourceReads: desc("source_reads_total", "Reads that ran the compute function"),
		cacheReads:  desc("cache_reads_total", "Reads served from a valid stored value"),
		evictions:   desc("evictions_total", "Invalidations that dropped a stored value"),
		entries:     desc("entries", "Entries currently held"),
		coeff:       desc("coeff_percent", "Cache hit percentage"),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.sourceReads
	ch <- c.cacheReads
	ch <- c.evictions
	ch <- c.entries
	ch <- c.coeff
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for _, s := range c.agg.Snapshots() {
		ch <- prometheus.MustNewConstMetric(c.sourceReads, prometheus.CounterValue, float64(s.SourceReads), s.Name)
		ch <- prometheus.MustNewConstMetric(c.cacheReads, prometheus.CounterValue, float64(s.CacheReads), s.Name)
		ch <- prometheus.MustNewConstMetric(c.evictions, prometheus.CounterValue, float64(s.Evictions), s.Name)
		ch <- prometheus.MustNewConstMetric(c.entries, prometheus.GaugeValue, float64(s.Count), s.Name)
		ch <- prometheus.MustNewConstMetric(c.coeff, prometheus.GaugeValue, s.Coeff(), s.Name)
	}
}
