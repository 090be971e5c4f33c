package buildfs

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	cacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "buildfs_cache_entries",
			Help: "Number of records held by the most recently mutated file cache",
		},
	)

	contentReads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "buildfs_content_reads_total",
			Help: "Content reads served by the hybrid filesystem",
		},
		[]string{"source"}, // cache, disk
	)

	virtualWrites = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "buildfs_virtual_writes_total",
			Help: "Files written into the virtual layer",
		},
	)

	diskWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "buildfs_disk_writes_total",
			Help: "Writes forwarded to the output disk delegate",
		},
		[]string{"status"},
	)

	purgedPaths = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "buildfs_purged_paths_total",
			Help: "Cache entries removed by Purge",
		},
	)

	eventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "buildfs_events_published_total",
			Help: "Events published on build context channels",
		},
		[]string{"topic"},
	)

	generations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "buildfs_watch_generations_total",
			Help: "Aggregation rounds that reported at least one changed path",
		},
	)

	generationSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "buildfs_watch_generation_paths",
			Help:    "Changed paths per aggregation round",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		},
	)
)

func recordRead(fromCache bool) {
	if fromCache {
		contentReads.WithLabelValues("cache").Inc()
		return
	}
	contentReads.WithLabelValues("disk").Inc()
}

func recordDiskWrite(err error) {
	if err != nil {
		diskWrites.WithLabelValues("error").Inc()
		return
	}
	diskWrites.WithLabelValues("ok").Inc()
}

// MetricsHandler returns the Prometheus handler serving the buildfs metrics
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
