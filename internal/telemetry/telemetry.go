// Package telemetry implements the Telemetry Sink (C10, spec §4.10): a
// non-blocking, lossy-only-under-overload event bus plus a set of
// Prometheus counters/histograms for the engine's key transitions.
//
// Grounded on consumer/metrics/metrics.go's promauto counter/histogram
// vectors, with the event-channel side grounded on the
// select{case ch <- x: default:} non-blocking publish idiom used
// throughout the coffee-order consumer's dispatch paths.
package telemetry

import (
	"strconv"
	"time"

	"github.com/flowshift/arbengine/internal/domain"
	"github.com/flowshift/arbengine/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"
)

// EventKind names a structured telemetry event, spec §4.10.
type EventKind string

const (
	EventOpportunityDetected    EventKind = "OpportunityDetected"
	EventOpportunityEnqueued    EventKind = "OpportunityEnqueued"
	EventOpportunityDropped     EventKind = "OpportunityDropped"
	EventExecutionStateChanged  EventKind = "ExecutionStateChanged"
	EventExecutionCompleted     EventKind = "ExecutionCompleted"
	EventBreakerOpened          EventKind = "BreakerOpened"
	EventBreakerClosed          EventKind = "BreakerClosed"
	EventProviderHealthChanged  EventKind = "ProviderHealthChanged"
)

// Event is one structured telemetry record. Fields not relevant to Kind
// are left zero.
type Event struct {
	Kind          EventKind
	At            time.Time
	ChainID       int64
	OpportunityID string
	ExecutionID   string
	FromState     domain.ExecutionState
	ToState       domain.ExecutionState
	Reason        string
	Outcome       domain.ExecutionState
	RealizedMarginUSD decimal.Decimal
	GasSpentNative    decimal.Decimal
	ProviderKey   string
	Healthy       bool
}

var (
	opportunitiesDetected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arbengine_opportunities_detected_total",
		Help: "Total opportunities detected by the scanner, by chain.",
	}, []string{"chain"})

	opportunitiesEnqueued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arbengine_opportunities_enqueued_total",
		Help: "Total opportunities admitted into the execution queue, by chain.",
	}, []string{"chain"})

	opportunitiesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arbengine_opportunities_dropped_total",
		Help: "Total opportunities dropped from a full queue lane, by chain.",
	}, []string{"chain"})

	executionStateTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arbengine_execution_state_transitions_total",
		Help: "Execution state transitions, by chain, from-state and to-state.",
	}, []string{"chain", "from", "to"})

	executionsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arbengine_executions_completed_total",
		Help: "Terminal executions, by chain and outcome.",
	}, []string{"chain", "outcome"})

	realizedMarginUSD = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "arbengine_realized_margin_usd",
		Help:    "Realized margin in USD for completed executions.",
		Buckets: prometheus.DefBuckets,
	}, []string{"chain"})

	gasSpentNative = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "arbengine_gas_spent_native",
		Help:    "Native-unit gas spent per submitted execution.",
		Buckets: prometheus.DefBuckets,
	}, []string{"chain"})

	breakerTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arbengine_breaker_transitions_total",
		Help: "Circuit breaker open/close transitions, by subject and new state.",
	}, []string{"subject", "state"})

	providerHealthChanges = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arbengine_provider_health_changes_total",
		Help: "Provider health transitions, by provider and new health state.",
	}, []string{"provider", "healthy"})
)

// Sink is the Telemetry Sink: an in-process event channel plus the
// Prometheus series above. It is an external collaborator per spec §1; the
// core only requires non-blocking, lossless-under-ordinary-load emission.
type Sink struct {
	log    *logger.Logger
	events chan Event
}

// New constructs a Sink with a buffered event channel of the given
// capacity (default 1024 if capacity <= 0).
func New(log *logger.Logger, capacity int) *Sink {
	if capacity <= 0 {
		capacity = 1024
	}
	return &Sink{log: log, events: make(chan Event, capacity)}
}

// Events exposes the event stream for an external consumer to drain.
func (s *Sink) Events() <-chan Event { return s.events }

// publish is non-blocking: under backpressure the event is logged and
// dropped rather than stalling the caller, spec §4.10.
func (s *Sink) publish(e Event) {
	select {
	case s.events <- e:
	default:
		if s.log != nil {
			s.log.Warn("telemetry event dropped: sink backpressure", logger.String("kind", string(e.Kind)))
		}
	}
}

func (s *Sink) OpportunityDetected(now time.Time, o domain.Opportunity) {
	opportunitiesDetected.WithLabelValues(chainLabel(o.ChainID)).Inc()
	s.publish(Event{Kind: EventOpportunityDetected, At: now, ChainID: o.ChainID, OpportunityID: o.ID})
}

func (s *Sink) OpportunityEnqueued(now time.Time, o domain.Opportunity) {
	opportunitiesEnqueued.WithLabelValues(chainLabel(o.ChainID)).Inc()
	s.publish(Event{Kind: EventOpportunityEnqueued, At: now, ChainID: o.ChainID, OpportunityID: o.ID})
}

func (s *Sink) OpportunityDropped(now time.Time, o domain.Opportunity, reason string) {
	opportunitiesDropped.WithLabelValues(chainLabel(o.ChainID)).Inc()
	s.publish(Event{Kind: EventOpportunityDropped, At: now, ChainID: o.ChainID, OpportunityID: o.ID, Reason: reason})
}

func (s *Sink) ExecutionStateChanged(now time.Time, chainID int64, executionID string, from, to domain.ExecutionState, reason string) {
	executionStateTransitions.WithLabelValues(chainLabel(chainID), string(from), string(to)).Inc()
	s.publish(Event{Kind: EventExecutionStateChanged, At: now, ChainID: chainID, ExecutionID: executionID, FromState: from, ToState: to, Reason: reason})
}

func (s *Sink) ExecutionCompleted(now time.Time, chainID int64, executionID string, outcome domain.ExecutionState, realizedMargin, gasSpent decimal.Decimal) {
	executionsCompleted.WithLabelValues(chainLabel(chainID), string(outcome)).Inc()
	marginF, _ := realizedMargin.Float64()
	realizedMarginUSD.WithLabelValues(chainLabel(chainID)).Observe(marginF)
	gasF, _ := gasSpent.Float64()
	gasSpentNative.WithLabelValues(chainLabel(chainID)).Observe(gasF)
	s.publish(Event{Kind: EventExecutionCompleted, At: now, ChainID: chainID, ExecutionID: executionID, Outcome: outcome, RealizedMarginUSD: realizedMargin, GasSpentNative: gasSpent})
}

func (s *Sink) BreakerOpened(now time.Time, subject string) {
	breakerTransitions.WithLabelValues(subject, "open").Inc()
	s.publish(Event{Kind: EventBreakerOpened, At: now, Reason: subject})
}

func (s *Sink) BreakerClosed(now time.Time, subject string) {
	breakerTransitions.WithLabelValues(subject, "closed").Inc()
	s.publish(Event{Kind: EventBreakerClosed, At: now, Reason: subject})
}

func (s *Sink) ProviderHealthChanged(now time.Time, providerKey string, healthy bool) {
	providerHealthChanges.WithLabelValues(providerKey, boolLabel(healthy)).Inc()
	s.publish(Event{Kind: EventProviderHealthChanged, At: now, ProviderKey: providerKey, Healthy: healthy})
}

func chainLabel(chainID int64) string {
	return strconv.FormatInt(chainID, 10)
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
