// Package metrics holds the Prometheus collectors exposed on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Mark results.
const (
	MarkRecorded  = "recorded"
	MarkDuplicate = "duplicate"
	MarkExpired   = "expired"
	MarkRejected  = "rejected"
	MarkNotFound  = "not_found"
	MarkFailed    = "error"
)

var (
	// Marks counts attendance submissions by outcome.
	Marks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rollcall",
		Name:      "attendance_marks_total",
		Help:      "Attendance mark attempts by result.",
	}, []string{"result"})

	SessionsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "rollcall",
		Name:      "sessions_created_total",
		Help:      "Attendance sessions opened by admins.",
	})

	AdminLogins = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rollcall",
		Name:      "admin_logins_total",
		Help:      "Admin login attempts by result.",
	}, []string{"result"})

	WindowEntries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rollcall",
		Name:      "window_entries_total",
		Help:      "Marks projected into daily attendance windows, by outcome.",
	}, []string{"result"})

	LiveViewers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "rollcall",
		Name:      "live_viewers",
		Help:      "Open live roster websocket connections.",
	})

	// HTTPDuration observes request latency per route template.
	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "rollcall",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route", "status"})
)
