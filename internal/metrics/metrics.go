// Package metrics declares the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Hub Metrics
var (
	// HubEventsPublished counts events accepted by the hub, by message type
	HubEventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "humanophone_hub_events_published_total",
			Help: "Events published to the broadcast hub by message type",
		},
		[]string{"type"},
	)

	// HubEventsDropped counts events published while nobody was subscribed
	HubEventsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "humanophone_hub_events_dropped_total",
			Help: "Events dropped because no consumer was subscribed",
		},
	)

	// HubEventsSkipped counts events a lagging consumer never saw
	HubEventsSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "humanophone_hub_events_skipped_total",
			Help: "Events overwritten before a lagging consumer could read them",
		},
	)

	// HubSubscribers tracks current hub receivers
	HubSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "humanophone_hub_subscribers",
			Help: "Current number of hub receivers",
		},
	)
)

// Session Metrics
var (
	// SessionsActive tracks identified sessions by role
	SessionsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "humanophone_sessions_active",
			Help: "Currently active sessions by role",
		},
		[]string{"role"},
	)

	// SessionsTotal counts finished sessions by role and outcome
	SessionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "humanophone_sessions_total",
			Help: "Finished sessions by role and outcome (closed, timeout, violation, error)",
		},
		[]string{"role", "outcome"},
	)

	// HandshakeFailures counts connections dropped before identification
	HandshakeFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "humanophone_handshake_failures_total",
			Help: "Connections closed during the handshake by reason",
		},
		[]string{"reason"},
	)

	// ConnectionsRejected counts upgrades refused by the connection limit
	ConnectionsRejected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "humanophone_connections_rejected_total",
			Help: "Connections rejected because max_connections was reached",
		},
	)

	// ProtocolErrors counts ProtocolError replies sent to clients
	ProtocolErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "humanophone_protocol_errors_total",
			Help: "Protocol violations answered with protocol_error, by role",
		},
		[]string{"role"},
	)
)

// Client Metrics
var (
	// ClientReconnects counts supervisor retries
	ClientReconnects = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "humanophone_client_reconnects_total",
			Help: "Reconnect attempts made by the client supervisor",
		},
	)

	// ClientEventsReceived counts events rendered by a consumer, by type
	ClientEventsReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "humanophone_client_events_received_total",
			Help: "Events received by the consumer client by message type",
		},
		[]string{"type"},
	)
)

// Sequencer Metrics
var (
	// SequencerEventsDropped counts events the sequencer could not queue
	SequencerEventsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "humanophone_sequencer_events_dropped_total",
			Help: "Sequencer events dropped because the outbound queue was full",
		},
	)
)
