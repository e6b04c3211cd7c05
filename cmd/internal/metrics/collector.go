package metrics

import "github.com/prometheus/client_golang/prometheus"

// cacheCollector reads session cache counters at scrape time.
type cacheCollector struct {
	cache CacheStatser

	active   *prometheus.Desc
	hits     *prometheus.Desc
	misses   *prometheus.Desc
	adds     *prometheus.Desc
	removes  *prometheus.Desc
	rebuilds *prometheus.Desc
}

func newCacheCollector(cache CacheStatser) *cacheCollector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "session_cache", name), help, nil, nil)
	}
	return &cacheCollector{
		cache:    cache,
		active:   desc("active_sessions", "Sessions currently indexed as valid"),
		hits:     desc("hits_total", "Cache lookups that found an active session"),
		misses:   desc("misses_total", "Cache lookups for unknown or revoked sessions"),
		adds:     desc("adds_total", "Sessions added to the cache"),
		removes:  desc("removes_total", "Sessions evicted from the cache"),
		rebuilds: desc("rebuilds_total", "Full rebuilds from the session store"),
	}
}

func (c *cacheCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.active
	ch <- c.hits
	ch <- c.misses
	ch <- c.adds
	ch <- c.removes
	ch <- c.rebuilds
}

func (c *cacheCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.cache.Stats()
	ch <- prometheus.MustNewConstMetric(c.active, prometheus.GaugeValue, float64(s.Size))
	ch <- prometheus.MustNewConstMetric(c.hits, prometheus.CounterValue, float64(s.Hits))
	ch <- prometheus.MustNewConstMetric(c.misses, prometheus.CounterValue, float64(s.Misses))
	ch <- prometheus.MustNewConstMetric(c.adds, prometheus.CounterValue, float64(s.Adds))
	ch <- prometheus.MustNewConstMetric(c.removes, prometheus.CounterValue, float64(s.Removes))
	ch <- prometheus.MustNewConstMetric(c.rebuilds, prometheus.CounterValue, float64(s.Rebuilds))
}
