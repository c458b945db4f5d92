package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Opportunity is a candidate trade produced by the Scanner (C6). Once
// enqueued, all fields are read-only; ID is globally unique for the
// process lifetime (spec §3).
type Opportunity struct {
	ID            string
	ChainID       int64
	TokenA        TokenKey
	TokenB        TokenKey
	BuyVenueKey   string
	SellVenueKey  string
	InputAmountUSD decimal.Decimal
	ProviderKey   string
	Estimate      EstimatorOutput
	DetectedAt    time.Time
}

// Rank returns the primary ranking key, net profit. It carries no
// tie-break; Less applies the confidence and detection-time tie-breaks
// (spec §4.6 tie-breaks, §4.7 rank-based eviction).
func (o Opportunity) Rank() decimal.Decimal {
	return o.Estimate.NetProfitUSD
}

// Less reports whether o ranks strictly below other (for min-heap/tail
// eviction ordering): lower net profit is "less"; ties broken by lower
// confidence, then later detection timestamp.
func (o Opportunity) Less(other Opportunity) bool {
	if !o.Estimate.NetProfitUSD.Equal(other.Estimate.NetProfitUSD) {
		return o.Estimate.NetProfitUSD.LessThan(other.Estimate.NetProfitUSD)
	}
	if !o.Estimate.Confidence.Equal(other.Estimate.Confidence) {
		return o.Estimate.Confidence.LessThan(other.Estimate.Confidence)
	}
	return o.DetectedAt.After(other.DetectedAt)
}

// ExecutionState is a node in the Flash-Loan Orchestrator's state machine
// (spec §4.8). Transitions are monotone forward; terminal states are
// Succeeded, Reverted, Abandoned.
type ExecutionState string

const (
	StateCreated    ExecutionState = "Created"
	StateAdmitting  ExecutionState = "Admitting"
	StateBuilding   ExecutionState = "Building"
	StateSimulating ExecutionState = "Simulating"
	StateSubmitting ExecutionState = "Submitting"
	StatePending    ExecutionState = "Pending"
	StateSucceeded  ExecutionState = "Succeeded"
	StateReverted   ExecutionState = "Reverted"
	StateAbandoned  ExecutionState = "Abandoned"
)

// stateRank gives each state a monotone ordinal so forward-only transition
// can be asserted cheaply; Abandoned/Succeeded/Reverted are terminal and
// share the highest rank (they are reachable from several earlier states).
var stateRank = map[ExecutionState]int{
	StateCreated:    0,
	StateAdmitting:  1,
	StateBuilding:   2,
	StateSimulating: 3,
	StateSubmitting: 4,
	StatePending:    5,
	StateSucceeded:  6,
	StateReverted:   6,
	StateAbandoned:  6,
}

// CanTransition reports whether moving from `from` to next is monotone forward.
func CanTransition(from, next ExecutionState) bool {
	return stateRank[next] > stateRank[from] || (stateRank[from] == 6 && stateRank[next] == 6 && from == next)
}

// AbandonReason classifies why an Execution reached Abandoned.
type AbandonReason string

const (
	AbandonAdmissionDenied   AbandonReason = "AdmissionDenied"
	AbandonBuildFailure      AbandonReason = "BuildFailure"
	AbandonEconomicReject    AbandonReason = "EconomicReject"
	AbandonSimulationFailure AbandonReason = "SimulationFailure"
	AbandonSubmissionFailure AbandonReason = "SubmissionFailure"
	AbandonSimulationMode    AbandonReason = "SimulationMode"
	AbandonInsufficientLiquidity AbandonReason = "InsufficientLiquidity"
	AbandonBreakerOpen       AbandonReason = "BreakerOpen"
	AbandonBudgetExhausted   AbandonReason = "BudgetExhausted"
)

// Execution is an Opportunity promoted to action (spec §3).
type Execution struct {
	ID             string
	OpportunityID  string
	Opportunity    Opportunity
	State          ExecutionState
	AbandonReason  AbandonReason
	SubmittedTxHash string // nullable (empty) until submission
	ReceiptStatus   *bool  // nullable until completion; true=success
	MeasuredGasUnits uint64
	RealizedMarginUSD decimal.Decimal
	CreatedAt       time.Time
	FinalizedAt     time.Time // zero until terminal
}

// IsTerminal reports whether the Execution has reached a terminal state.
func (e Execution) IsTerminal() bool {
	switch e.State {
	case StateSucceeded, StateReverted, StateAbandoned:
		return true
	default:
		return false
	}
}
