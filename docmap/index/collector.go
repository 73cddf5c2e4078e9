package index

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector exports store counters to Prometheus.
type Collector struct {
	store *Store

	docs              *prometheus.Desc
	generation        *prometheus.Desc
	commits           *prometheus.Desc
	refreshes         *prometheus.Desc
	snapshotsOpen     *prometheus.Desc
	snapshotsAcquired *prometheus.Desc
}

// Collector returns a collector for s. The index label carries the store's
// location.
func (s *Store) Collector() *Collector {
	labels := prometheus.Labels{"index": s.Location()}
	return &Collector{
		store: s,

		docs: prometheus.NewDesc(
			"docmap_index_documents",
			"Number of documents as of the last commit",
			nil, labels,
		),
		generation: prometheus.NewDesc(
			"docmap_index_generation",
			"Commit generation of the index",
			nil, labels,
		),
		commits: prometheus.NewDesc(
			"docmap_index_commits_total",
			"Total number of commits",
			nil, labels,
		),
		refreshes: prometheus.NewDesc(
			"docmap_index_refreshes_total",
			"Total number of snapshot refreshes",
			nil, labels,
		),
		snapshotsOpen: prometheus.NewDesc(
			"docmap_index_snapshots_open",
			"Number of open snapshot transactions",
			nil, labels,
		),
		snapshotsAcquired: prometheus.NewDesc(
			"docmap_index_snapshots_acquired",
			"Number of snapshots currently held by readers",
			nil, labels,
		),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.docs
	ch <- c.generation
	ch <- c.commits
	ch <- c.refreshes
	ch <- c.snapshotsOpen
	ch <- c.snapshotsAcquired
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	st := c.store.snaps.Stats()

	ch <- prometheus.MustNewConstMetric(c.docs, prometheus.GaugeValue, float64(c.store.NumDocs()))
	ch <- prometheus.MustNewConstMetric(c.generation, prometheus.GaugeValue, float64(c.store.Generation()))
	ch <- prometheus.MustNewConstMetric(c.commits, prometheus.CounterValue, float64(c.store.commits.Load()))
	ch <- prometheus.MustNewConstMetric(c.refreshes, prometheus.CounterValue, float64(st.Refreshes))
	ch <- prometheus.MustNewConstMetric(c.snapshotsOpen, prometheus.GaugeValue, float64(st.Open))
	ch <- prometheus.MustNewConstMetric(c.snapshotsAcquired, prometheus.GaugeValue, float64(st.Acquired))
}
