// Package observability exposes the agent's prometheus metrics.
package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	pdusReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ricagent",
			Subsystem: "e2ap",
			Name:      "pdus_received_total",
			Help:      "Inbound PDUs by envelope class and procedure.",
		},
		[]string{"class", "procedure"},
	)
	pdusSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ricagent",
			Subsystem: "e2ap",
			Name:      "pdus_sent_total",
			Help:      "Outbound PDUs by envelope class and procedure.",
		},
		[]string{"class", "procedure"},
	)
	messagesDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ricagent",
			Subsystem: "e2ap",
			Name:      "messages_dropped_total",
			Help:      "Inbound messages dropped, by reason.",
		},
		[]string{"reason"},
	)
	reconnects = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "ricagent",
			Subsystem: "session",
			Name:      "reconnects_total",
			Help:      "Session teardown/reconnect cycles.",
		},
	)
	sessionState = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "ricagent",
			Subsystem: "session",
			Name:      "state",
			Help:      "Session lifecycle state (0=disconnected 1=connecting 2=awaiting-setup 3=established).",
		},
	)
	subscriptions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "ricagent",
			Subsystem: "session",
			Name:      "subscriptions",
			Help:      "Active subscription records.",
		},
	)
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ricagent",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Admin HTTP requests by method, path, and status.",
		},
		[]string{"method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ricagent",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Admin HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			pdusReceived, pdusSent, messagesDropped,
			reconnects, sessionState, subscriptions,
			httpRequests, httpDuration,
		)
	})
}

func RecordPDUReceived(class, procedure string) {
	RegisterMetrics()
	pdusReceived.WithLabelValues(class, procedure).Inc()
}

func RecordPDUSent(class, procedure string) {
	RegisterMetrics()
	pdusSent.WithLabelValues(class, procedure).Inc()
}

func RecordDrop(reason string) {
	RegisterMetrics()
	messagesDropped.WithLabelValues(reason).Inc()
}

func RecordReconnect() {
	RegisterMetrics()
	reconnects.Inc()
}

func SetSessionState(state int) {
	RegisterMetrics()
	sessionState.Set(float64(state))
}

func SetSubscriptions(n int) {
	RegisterMetrics()
	subscriptions.Set(float64(n))
}

func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	httpRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}
