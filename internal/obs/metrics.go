package obs

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every prometheus collector exported by the server:
// tick timing, region-change backlog, transport traffic, and storage
// page/snapshot counters.
type Metrics struct {
	TickDuration       prometheus.Histogram
	TicksSkippedTotal  prometheus.Counter
	RegionChangeQueue  prometheus.Gauge
	RegionChangesTotal *prometheus.CounterVec

	TransportBytesTotal     *prometheus.CounterVec
	TransportFramesTotal    *prometheus.CounterVec
	TransportDatagramsTotal *prometheus.CounterVec

	StoragePageAllocsTotal prometheus.Counter
	StorageSnapshotsTotal  prometheus.Counter
	StorageSnapshotSeconds prometheus.Histogram
}

// NewMetrics registers and returns the full collector set.
func NewMetrics() *Metrics {
	return &Metrics{
		TickDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "wosim_tick_duration_seconds",
			Help:    "Duration of one simulation tick.",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5},
		}),
		TicksSkippedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "wosim_ticks_skipped_total",
			Help: "Total number of ticks skipped because the wall clock overran the deadline.",
		}),
		RegionChangeQueue: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "wosim_region_change_queue_depth",
			Help: "Pending entries in the region manager's change queue.",
		}),
		RegionChangesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "wosim_region_changes_total",
			Help: "Region manager changes processed, by variant.",
		}, []string{"variant"}),
		TransportBytesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "wosim_transport_bytes_total",
			Help: "Bytes transferred over the connection, by direction.",
		}, []string{"direction"}),
		TransportFramesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "wosim_transport_frames_total",
			Help: "Frames transferred over the connection, by kind.",
		}, []string{"kind"}),
		TransportDatagramsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "wosim_transport_datagrams_total",
			Help: "Unreliable datagram messages sent, by direction.",
		}, []string{"direction"}),
		StoragePageAllocsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "wosim_storage_page_allocs_total",
			Help: "Total pages handed out by the allocator.",
		}),
		StorageSnapshotsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "wosim_storage_snapshots_total",
			Help: "Total committed snapshots.",
		}),
		StorageSnapshotSeconds: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "wosim_storage_snapshot_seconds",
			Help:    "Duration of the five-step snapshot commit.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// RecordTick records one tick's outcome.
func (m *Metrics) RecordTick(d time.Duration, skipped bool) {
	m.TickDuration.Observe(d.Seconds())
	if skipped {
		m.TicksSkippedTotal.Inc()
	}
}

// Serve mounts the prometheus handler and blocks serving it on addr.
// This is the one place allowed to reach for stdlib net/http directly:
// no example repo bundles a router, and a bare http.Handle is the
// idiomatic minimum needed to mount promhttp.
func Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(addr, mux)
}
