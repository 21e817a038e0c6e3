package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for wablast
type Metrics struct {
	// Outbound messages by type (initial, reminder)
	MessagesSentTotal   *prometheus.CounterVec
	MessagesFailedTotal *prometheus.CounterVec

	// Inbound replies ingested from the webhook
	RepliesTotal prometheus.Counter

	// Spreadsheet import counters
	ContactsImportedTotal prometheus.Counter
	ContactsSkippedTotal  prometheus.Counter

	// Background activity gauges
	DispatchRunning prometheus.Gauge
	ReminderPaused  prometheus.Gauge

	// Gateway call latency
	GatewayRequestSeconds prometheus.Histogram

	registry *prometheus.Registry
}

// New creates a new Metrics instance with all metrics registered
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		MessagesSentTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wablast_messages_sent_total",
				Help: "Total number of messages accepted by the gateway",
			},
			[]string{"type"},
		),
		MessagesFailedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wablast_messages_failed_total",
				Help: "Total number of failed send attempts",
			},
			[]string{"reason"},
		),
		RepliesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "wablast_replies_total",
				Help: "Total number of inbound replies recorded",
			},
		),
		ContactsImportedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "wablast_contacts_imported_total",
				Help: "Total number of contacts imported from spreadsheets",
			},
		),
		ContactsSkippedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "wablast_contacts_skipped_total",
				Help: "Total number of spreadsheet rows skipped as malformed",
			},
		),
		DispatchRunning: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "wablast_dispatch_running",
				Help: "Whether a dispatch job is currently in flight (0 or 1)",
			},
		),
		ReminderPaused: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "wablast_reminder_paused",
				Help: "Whether the reminder scheduler is paused (0 or 1)",
			},
		),
		GatewayRequestSeconds: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "wablast_gateway_request_seconds",
				Help:    "Latency of delivery gateway send calls",
				Buckets: prometheus.DefBuckets,
			},
		),
		registry: reg,
	}

	reg.MustRegister(
		m.MessagesSentTotal,
		m.MessagesFailedTotal,
		m.RepliesTotal,
		m.ContactsImportedTotal,
		m.ContactsSkippedTotal,
		m.DispatchRunning,
		m.ReminderPaused,
		m.GatewayRequestSeconds,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Handler returns the HTTP handler serving the registry
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
