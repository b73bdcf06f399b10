package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Send results used as the "result" label.
const (
	ResultOK     = "ok"
	ResultFailed = "failed"
)

// Transport holds the snapshot transport metrics.
type Transport struct {
	Sends           *prometheus.CounterVec
	Bytes           *prometheus.CounterVec
	SendDuration    *prometheus.HistogramVec
	Cleanups        *prometheus.CounterVec
	ActiveSegments  prometheus.Gauge
	PendingCleanup  prometheus.Gauge
	Evictions       prometheus.Counter
	ForcedDisposals prometheus.Counter
	DisposeErrors   prometheus.Counter
	OrphansRemoved  *prometheus.CounterVec
}

// NewTransport creates the transport metrics and registers them with reg.
// A nil reg leaves the collectors unregistered, which keeps independent
// transports in tests from colliding.
func NewTransport(reg prometheus.Registerer) *Transport {
	f := promauto.With(reg)
	return &Transport{
		Sends: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "transport",
			Name:      "sends_total",
			Help:      "Snapshot hand-offs by transport mode and result.",
		}, []string{"mode", "result", "category"}),
		Bytes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "transport",
			Name:      "sent_bytes_total",
			Help:      "Payload bytes handed to child processes.",
		}, []string{"mode"}),
		SendDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "transport",
			Name:      "send_duration_seconds",
			Help:      "Time spent in Send, including failed attempts.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 10),
		}, []string{"mode"}),
		Cleanups: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "transport",
			Name:      "cleanups_total",
			Help:      "Cleanup calls by transport mode.",
		}, []string{"mode"}),
		ActiveSegments: f.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "shm",
			Name:      "active_segments",
			Help:      "Shared-memory segments currently readable by children.",
		}),
		PendingCleanup: f.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "shm",
			Name:      "pending_cleanup",
			Help:      "Segments waiting for the delayed-cleanup sweep.",
		}),
		Evictions: f.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "shm",
			Name:      "evictions_total",
			Help:      "Segments moved to delayed cleanup because the active table was full.",
		}),
		ForcedDisposals: f.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "shm",
			Name:      "forced_disposals_total",
			Help:      "Segments disposed before their grace period because the cleanup queue overflowed.",
		}),
		DisposeErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "shm",
			Name:      "dispose_errors_total",
			Help:      "Segment disposals that failed.",
		}),
		OrphansRemoved: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "orphan",
			Name:      "removed_total",
			Help:      "Leftover files and directories of dead host processes removed at startup.",
		}, []string{"prefix"}),
	}
}

// ObserveSend records one Send outcome. category is empty on success.
func (t *Transport) ObserveSend(mode string, ok bool, category string, size int, elapsed time.Duration) {
	if t == nil {
		return
	}
	result := ResultOK
	if !ok {
		result = ResultFailed
	}
	t.Sends.WithLabelValues(mode, result, category).Inc()
	if ok {
		t.Bytes.WithLabelValues(mode).Add(float64(size))
	}
	t.SendDuration.WithLabelValues(mode).Observe(elapsed.Seconds())
}
