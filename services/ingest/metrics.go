package ingest

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	alertsReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "usbdrop_alerts_received_total",
		Help: "Webhook alerts accepted at the ingest endpoint.",
	})
	alertsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "usbdrop_alerts_dropped_total",
		Help: "Alerts dropped because the ingest queue was full.",
	})
	alertsUnmatched = promauto.NewCounter(prometheus.CounterOpts{
		Name: "usbdrop_alerts_unmatched_total",
		Help: "Alerts that could not be correlated to a provisioned token.",
	})
	activationsRecorded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "usbdrop_activations_recorded_total",
		Help: "Trigger activations recorded in the database.",
	})
)
