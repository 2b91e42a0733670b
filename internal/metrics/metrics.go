// Package metrics defines the Prometheus collectors exported by eventd.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Dispatch metrics
	DispatchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventd_dispatch_total",
			Help: "Dispatch calls by source and outcome",
		},
		[]string{"source", "outcome"},
	)

	DeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventd_deliveries_total",
			Help: "Envelopes handed to a subscriber, by delivery mode and format",
		},
		[]string{"mode", "format"},
	)

	RecordsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventd_records_dropped_total",
			Help: "Source records dropped before delivery, by reason",
		},
		[]string{"reason"},
	)

	// Subscription metrics
	Subscriptions = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "eventd_subscriptions",
			Help: "Active subscriptions by event format type",
		},
		[]string{"format"},
	)

	// Log tailer metrics
	LogtailOffset = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "eventd_logtail_offset_bytes",
			Help: "Byte offset of the event log cursor",
		},
	)

	// Transport metrics
	TransportAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventd_transport_attempts_total",
			Help: "Outbound push attempts by result",
		},
		[]string{"result"},
	)

	TransportDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventd_transport_dropped_total",
			Help: "Push deliveries dropped without an attempt, by reason",
		},
		[]string{"reason"},
	)

	TransportDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "eventd_transport_request_duration_seconds",
			Help:    "Duration of outbound push requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Streaming metrics
	StreamsOpen = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "eventd_streams_open",
			Help: "Open streaming connections by kind",
		},
		[]string{"kind"},
	)

	StreamDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventd_stream_dropped_total",
			Help: "Events dropped because a stream buffer was full",
		},
		[]string{"kind"},
	)
)
