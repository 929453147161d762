// Package metrics provides Prometheus metrics for the consultation gateway.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"
)

var (
	// ConversationTransitions tracks conversation state changes.
	ConversationTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "consult_conversation_transitions_total",
			Help: "Total number of conversation state transitions",
		},
		[]string{"from_state", "to_state"},
	)

	// MessagesSent tracks persisted messages by transport.
	MessagesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "consult_messages_sent_total",
			Help: "Total number of messages persisted",
		},
		[]string{"transport"},
	)

	Settlements = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "consult_settlements_total",
			Help: "Total number of billing settlements by outcome",
		},
		[]string{"outcome"},
	)

	CreditsDebited = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "consult_credits_debited_total",
			Help: "Credits debited from requesters",
		},
	)

	CreditsCredited = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "consult_credits_credited_total",
			Help: "Credits credited to partners",
		},
	)

	// ActiveConnections tracks registered real-time connections.
	ActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "consult_ws_active_connections",
			Help: "Number of registered real-time connections",
		},
	)

	// SignalsRelayed tracks call signaling events by outcome.
	SignalsRelayed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "consult_signals_relayed_total",
			Help: "Total number of call signaling events relayed",
		},
		[]string{"event", "outcome"},
	)

	SummaryDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "consult_summary_duration_seconds",
			Help:    "Duration of post-session summary generation",
			Buckets: []float64{0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
	)

	SummaryFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "consult_summary_failures_total",
			Help: "Total number of failed summary generations",
		},
	)
)

// RecordTransition records a conversation state change.
func RecordTransition(fromState, toState string) {
	ConversationTransitions.WithLabelValues(fromState, toState).Inc()
}

// RecordSettlement records a successful settlement and the credits it moved.
func RecordSettlement(debited, credited decimal.Decimal) {
	Settlements.WithLabelValues("settled").Inc()
	CreditsDebited.Add(debited.InexactFloat64())
	CreditsCredited.Add(credited.InexactFloat64())
}

func RecordSettlementFailure() {
	Settlements.WithLabelValues("failed").Inc()
}
