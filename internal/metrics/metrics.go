package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SessionsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "attendance",
		Name:      "sessions_created_total",
		Help:      "Attendance sessions issued.",
	})

	EncodeFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "attendance",
		Name:      "qr_encode_failures_total",
		Help:      "Sessions whose QR artifact could not be produced.",
	})

	// Redemptions is labelled by outcome (recorded, already_recorded, expired, ...).
	Redemptions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "attendance",
		Name:      "redemptions_total",
		Help:      "Redemption attempts by outcome.",
	}, []string{"outcome"})

	ArtifactsPurged = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "attendance",
		Name:      "artifacts_purged_total",
		Help:      "QR artifacts handled by the janitor, by result.",
	}, []string{"result"})

	ScanLogsPersisted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "attendance",
		Name:      "scan_logs_persisted_total",
		Help:      "Scan audit entries written by the worker.",
	})

	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "attendance",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route", "status"})
)
