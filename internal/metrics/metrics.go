// Package metrics holds the Prometheus collectors for the cache, the relay
// processes and the orchestrator. They are registered with the default
// registry and exposed by the HTTP layer at /metrics.
package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "relayd"

var (
	CacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "hits_total",
		Help:      "Cache lookups that found an entry",
	})

	CacheMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "misses_total",
		Help:      "Cache lookups that found nothing",
	})

	CacheEntries = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "entries",
		Help:      "Number of cached videos",
	})

	CacheBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "size_bytes",
		Help:      "Total bytes of cached videos",
	})

	CacheEvictions = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "evictions_total",
		Help:      "Entries evicted to make room or on clear",
	})

	Downloads = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "downloads_total",
		Help:      "Video downloads by result",
	}, []string{"result"})

	DownloadedBytes = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "downloaded_bytes_total",
		Help:      "Bytes downloaded into the cache",
	})

	DownloadDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "download_duration_seconds",
		Help:      "Time spent downloading a video",
		Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	})

	Streams = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "relay",
		Name:      "streams_total",
		Help:      "Relay processes started by channel",
	}, []string{"channel"})

	RelayExits = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "relay",
		Name:      "exits_total",
		Help:      "Relay processes ended by exit status",
	}, []string{"exit_status"})

	PlayRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "orchestrator",
		Name:      "play_requests_total",
		Help:      "Accepted play requests by kind",
	}, []string{"kind"})

	PlaylistSkips = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "orchestrator",
		Name:      "playlist_skips_total",
		Help:      "Playlist items skipped by reason",
	}, []string{"reason"})
)

func init() {
	prometheus.MustRegister(
		CacheHits, CacheMisses, CacheEntries, CacheBytes, CacheEvictions,
		Downloads, DownloadedBytes, DownloadDuration,
		Streams, RelayExits,
		PlayRequests, PlaylistSkips,
	)
}
