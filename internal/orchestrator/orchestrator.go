// Package orchestrator implements the Flash-Loan Orchestrator (C8, spec
// §4.8): the Created → Admitting → Building → Simulating → Submitting →
// Pending → {Succeeded, Reverted, Abandoned} state machine for a single
// Execution, composing the borrow call (C4) and both swap calls (C3) into
// one atomic transaction and finalizing on receipt.
//
// Wallet/key management and the callback contract's internals are
// external collaborators per spec §1 ("persisted credentials management"
// and "the on-chain smart contract that hosts the callback" are out of
// scope); TxSubmitter/ReceiptSource below are the seams where they plug
// in, grounded on pkg/blockchain/ethereum.go's EthereumClient.
// SendTransaction/GetTransactionReceipt shape.
package orchestrator

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/flowshift/arbengine/internal/arberr"
	"github.com/flowshift/arbengine/internal/domain"
	"github.com/flowshift/arbengine/internal/estimator"
	"github.com/flowshift/arbengine/internal/flashloan"
	"github.com/flowshift/arbengine/internal/venue"
	"github.com/flowshift/arbengine/pkg/logger"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RiskGate is the subset of the Risk Supervisor (C9) the orchestrator
// consults for admission and reports terminal outcomes to.
type RiskGate interface {
	Admit(now time.Time, chainID int64, estimatedGasNative decimal.Decimal) error
	RecordTerminal(now time.Time, chainID int64, outcome domain.ExecutionState, gasSpentNative, realizedMarginUSD decimal.Decimal)
}

// Telemetry is the subset of the Telemetry Sink (C10) the orchestrator
// emits state-change and completion events through.
type Telemetry interface {
	ExecutionStateChanged(now time.Time, chainID int64, executionID string, from, to domain.ExecutionState, reason string)
	ExecutionCompleted(now time.Time, chainID int64, executionID string, outcome domain.ExecutionState, realizedMarginUSD, gasSpentNative decimal.Decimal)
}

// VenueLookup resolves a venue adapter by (chain, key), used to obtain a
// fresh on-chain quote and the swap calldata for each leg.
type VenueLookup interface {
	Adapter(chainID int64, venueKey string) (venue.Adapter, bool)
}

// ProviderLookup resolves a flash-loan provider adapter by (chain, key).
type ProviderLookup interface {
	ProviderByKey(chainID int64, providerKey string) (flashloan.Adapter, bool)
}

// Simulator performs a read-only execution of a built transaction against
// the latest chain state, spec §4.8 Simulating.
type Simulator interface {
	Simulate(ctx context.Context, tx flashloan.TxRequest) (predictedMarginUSD decimal.Decimal, err error)
}

// TxSubmitter signs and broadcasts a built transaction, returning its
// hash. A private-relay policy, when available, is this collaborator's
// concern, not the state machine's.
type TxSubmitter interface {
	Submit(ctx context.Context, chainID int64, tx flashloan.TxRequest) (txHash string, err error)
}

// ReceiptSource reports whether a submitted transaction has been included
// and, if so, its outcome.
type ReceiptSource interface {
	Receipt(ctx context.Context, chainID int64, txHash string) (included bool, success bool, gasUsed uint64, err error)
}

// Config tunes the orchestrator, mirroring spec §6's execution keys.
type Config struct {
	SubmissionTimeout time.Duration // default 30s
	PendingDeadline   time.Duration // default 90s
	SubmissionRetries int           // default 2
	SimulationMode    bool
	NativePriceUSD    decimal.Decimal
	MaxSlippage       decimal.Decimal
	ReserveFraction   decimal.Decimal
	GasPriceCeiling   decimal.Decimal
	MinMarginBps      decimal.Decimal
	GasPriceNative    decimal.Decimal
	ReceiptPollInterval time.Duration // default 2s
}

func DefaultConfig() Config {
	return Config{
		SubmissionTimeout:   30 * time.Second,
		PendingDeadline:     90 * time.Second,
		SubmissionRetries:   2,
		NativePriceUSD:      decimal.NewFromInt(1),
		MaxSlippage:         decimal.NewFromFloat(0.001),
		ReserveFraction:     decimal.Zero,
		GasPriceCeiling:     decimal.NewFromInt(100),
		MinMarginBps:        decimal.NewFromInt(25),
		GasPriceNative:      decimal.New(5, -9), // 5 gwei, in native units
		ReceiptPollInterval: 2 * time.Second,
	}
}

// Orchestrator is C8.
type Orchestrator struct {
	cfg       Config
	risk      RiskGate
	tel       Telemetry
	venues    VenueLookup
	providers ProviderLookup
	sim       Simulator
	submitter TxSubmitter
	receipts  ReceiptSource
	log       *logger.Logger

	// simMode is the runtime simulation-mode flag: spec §6's "simulate"
	// operator command and the config hot-reload watcher both flip this
	// directly, since Execute must observe a change the instant either
	// fires rather than only at the next New() call.
	simMode atomic.Bool
}

func New(cfg Config, risk RiskGate, tel Telemetry, venues VenueLookup, providers ProviderLookup, sim Simulator, submitter TxSubmitter, receipts ReceiptSource, log *logger.Logger) *Orchestrator {
	if cfg.SubmissionTimeout <= 0 {
		cfg.SubmissionTimeout = 30 * time.Second
	}
	if cfg.PendingDeadline <= 0 {
		cfg.PendingDeadline = 90 * time.Second
	}
	if cfg.SubmissionRetries <= 0 {
		cfg.SubmissionRetries = 2
	}
	if cfg.ReceiptPollInterval <= 0 {
		cfg.ReceiptPollInterval = 2 * time.Second
	}
	o := &Orchestrator{cfg: cfg, risk: risk, tel: tel, venues: venues, providers: providers, sim: sim, submitter: submitter, receipts: receipts, log: log}
	o.simMode.Store(cfg.SimulationMode)
	return o
}

// SetSimulationMode flips the runtime simulation-mode flag. Called by the
// "simulate" admin command and by the config hot-reload watcher; Execute
// consults this on every call rather than the build-time Config copy.
func (o *Orchestrator) SetSimulationMode(on bool) {
	o.simMode.Store(on)
}

// SimulationMode reports the current runtime simulation-mode flag.
func (o *Orchestrator) SimulationMode() bool {
	return o.simMode.Load()
}

// Execute drives a single Opportunity through the full state machine,
// spec §4.8, and returns the finalized Execution.
func (o *Orchestrator) Execute(ctx context.Context, opp domain.Opportunity) domain.Execution {
	exec := domain.Execution{
		ID:            uuid.NewString(),
		OpportunityID: opp.ID,
		Opportunity:   opp,
		State:         domain.StateCreated,
		CreatedAt:     time.Now(),
	}

	exec = o.move(exec, domain.StateAdmitting, "")
	estimatedGas := decimal.NewFromInt(350_000).Mul(o.cfg.GasPriceNative)
	if err := o.risk.Admit(time.Now(), opp.ChainID, estimatedGas); err != nil {
		return o.abandon(exec, domain.AbandonAdmissionDenied, err)
	}

	exec = o.move(exec, domain.StateBuilding, "")
	txReq, fresh, err := o.build(ctx, opp)
	if err != nil {
		return o.abandon(exec, buildFailureReason(err), err)
	}
	if !fresh.Profitable {
		return o.abandon(exec, domain.AbandonEconomicReject, nil)
	}

	exec = o.move(exec, domain.StateSimulating, "")
	predictedMargin, err := o.sim.Simulate(ctx, txReq)
	if err != nil {
		return o.abandon(exec, domain.AbandonSimulationFailure, err)
	}
	minAcceptable := opp.InputAmountUSD.Mul(o.cfg.MinMarginBps).Div(decimal.NewFromInt(10000))
	if predictedMargin.LessThan(minAcceptable) {
		return o.abandon(exec, domain.AbandonSimulationFailure, nil)
	}

	if o.simMode.Load() {
		// spec §4.8/Open Question: simulationMode halts before Submitting
		// and records a synthetic Abandoned(SimulationMode) outcome with
		// zero realized margin and zero gas spent.
		return o.abandon(exec, domain.AbandonSimulationMode, nil)
	}

	exec = o.move(exec, domain.StateSubmitting, "")
	txHash, err := o.submitWithRetry(ctx, opp, txReq)
	if err != nil {
		return o.abandon(exec, domain.AbandonSubmissionFailure, err)
	}
	exec.SubmittedTxHash = txHash

	exec = o.move(exec, domain.StatePending, "")
	return o.awaitInclusion(ctx, exec)
}

// build obtains fresh quotes for both legs, recomputes the estimator with
// the freshest numbers, and composes the borrow+swap transaction, spec
// §4.8 Building.
func (o *Orchestrator) build(ctx context.Context, opp domain.Opportunity) (flashloan.TxRequest, domain.EstimatorOutput, error) {
	buyAdapter, ok := o.venues.Adapter(opp.ChainID, opp.BuyVenueKey)
	if !ok {
		return flashloan.TxRequest{}, domain.EstimatorOutput{}, arberr.New(arberr.BuildFailure, opp.BuyVenueKey, nil)
	}
	sellAdapter, ok := o.venues.Adapter(opp.ChainID, opp.SellVenueKey)
	if !ok {
		return flashloan.TxRequest{}, domain.EstimatorOutput{}, arberr.New(arberr.BuildFailure, opp.SellVenueKey, nil)
	}
	provider, ok := o.providers.ProviderByKey(opp.ChainID, opp.ProviderKey)
	if !ok {
		return flashloan.TxRequest{}, domain.EstimatorOutput{}, arberr.New(arberr.BuildFailure, opp.ProviderKey, nil)
	}

	probe := opp.InputAmountUSD.BigInt()
	outBuy, _, err := buyAdapter.Quote(ctx, opp.TokenA.Symbol, opp.TokenB.Symbol, probe)
	if err != nil {
		return flashloan.TxRequest{}, domain.EstimatorOutput{}, arberr.New(arberr.BuildFailure, opp.BuyVenueKey, err)
	}
	outSell, _, err := sellAdapter.Quote(ctx, opp.TokenB.Symbol, opp.TokenA.Symbol, outBuy)
	if err != nil {
		return flashloan.TxRequest{}, domain.EstimatorOutput{}, arberr.New(arberr.BuildFailure, opp.SellVenueKey, err)
	}

	roundTripUSD := decimal.NewFromBigInt(outSell, 0)
	freshDelta := roundTripUSD.Sub(opp.InputAmountUSD).Div(opp.InputAmountUSD)

	borrowAmount := opp.InputAmountUSD.BigInt()
	txReq, err := provider.BuildBorrowTx(ctx, "", opp.TokenA.Symbol, borrowAmount, nil)
	if err != nil {
		return flashloan.TxRequest{}, domain.EstimatorOutput{}, arberr.New(arberr.BuildFailure, opp.ProviderKey, err)
	}

	in := domain.EstimatorInput{
		PriceDelta:      freshDelta,
		TradeSizeUSD:    opp.InputAmountUSD,
		GasUnitsHint:    decimal.NewFromInt(int64(txReq.GasLimit)),
		GasPriceNative:  o.cfg.GasPriceNative,
		NativePriceUSD:  o.cfg.NativePriceUSD,
		ProviderFeeBps:  decimal.NewFromInt(provider.FeeBasisPoints()),
		VenueAFeeBps:    decimal.NewFromInt(buyAdapter.FeeBasisPoints()),
		VenueBFeeBps:    decimal.NewFromInt(sellAdapter.FeeBasisPoints()),
		DepthAUSD:       opp.InputAmountUSD.Mul(decimal.NewFromInt(100)),
		DepthBUSD:       opp.InputAmountUSD.Mul(decimal.NewFromInt(100)),
		MaxSlippage:     o.cfg.MaxSlippage,
		ReserveFraction: o.cfg.ReserveFraction,
		GasPriceCeiling: o.cfg.GasPriceCeiling,
		MinMarginBps:    o.cfg.MinMarginBps,
	}
	return txReq, estimator.Estimate(in), nil
}

// submitWithRetry bounds SubmissionFailure retries at cfg.SubmissionRetries,
// spec §4.8: every retry after the first re-runs Building and Simulating
// against the latest chain state rather than resubmitting the same
// parameters, since a failed broadcast often means the quoted reserves or
// gas price have already moved.
func (o *Orchestrator) submitWithRetry(ctx context.Context, opp domain.Opportunity, tx flashloan.TxRequest) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= o.cfg.SubmissionRetries; attempt++ {
		if attempt > 0 {
			fresh, freshEstimate, err := o.build(ctx, opp)
			if err != nil {
				lastErr = err
				continue
			}
			if !freshEstimate.Profitable {
				return "", arberr.New(arberr.SubmissionFailure, "re-simulation no longer profitable", nil)
			}
			predictedMargin, err := o.sim.Simulate(ctx, fresh)
			if err != nil {
				lastErr = err
				continue
			}
			minAcceptable := opp.InputAmountUSD.Mul(o.cfg.MinMarginBps).Div(decimal.NewFromInt(10000))
			if predictedMargin.LessThan(minAcceptable) {
				return "", arberr.New(arberr.SubmissionFailure, "re-simulated margin below floor", nil)
			}
			tx = fresh
		}

		submitCtx, cancel := context.WithTimeout(ctx, o.cfg.SubmissionTimeout)
		hash, err := o.submitter.Submit(submitCtx, opp.ChainID, tx)
		cancel()
		if err == nil {
			return hash, nil
		}
		lastErr = err
	}
	return "", arberr.New(arberr.SubmissionFailure, "submit", lastErr)
}

// awaitInclusion waits for the submitted transaction's receipt up to the
// pending-deadline, spec §4.8 Pending. A timeout is treated as Reverted
// for accounting, without aborting the underlying on-chain transaction.
func (o *Orchestrator) awaitInclusion(ctx context.Context, exec domain.Execution) domain.Execution {
	deadline := time.Now().Add(o.cfg.PendingDeadline)
	ticker := time.NewTicker(o.cfg.ReceiptPollInterval)
	defer ticker.Stop()

	for {
		included, success, gasUsed, err := o.receipts.Receipt(ctx, exec.Opportunity.ChainID, exec.SubmittedTxHash)
		if err == nil && included {
			return o.finalizeReceipt(exec, success, gasUsed)
		}
		if time.Now().After(deadline) {
			return o.finalizeTimeout(exec)
		}
		select {
		case <-ctx.Done():
			return o.finalizeTimeout(exec)
		case <-ticker.C:
		}
	}
}

func (o *Orchestrator) finalizeReceipt(exec domain.Execution, success bool, gasUsed uint64) domain.Execution {
	now := time.Now()
	status := success
	exec.ReceiptStatus = &status
	exec.MeasuredGasUnits = gasUsed
	outcome := domain.StateReverted
	if success {
		outcome = domain.StateSucceeded
		exec.RealizedMarginUSD = exec.Opportunity.Estimate.NetProfitUSD
	}
	exec = o.move(exec, outcome, "")
	exec.FinalizedAt = now

	gasSpentNative := decimal.NewFromInt(int64(gasUsed)).Mul(o.cfg.GasPriceNative)
	o.risk.RecordTerminal(now, exec.Opportunity.ChainID, outcome, gasSpentNative, exec.RealizedMarginUSD)
	if o.tel != nil {
		o.tel.ExecutionCompleted(now, exec.Opportunity.ChainID, exec.ID, outcome, exec.RealizedMarginUSD, gasSpentNative)
	}
	return exec
}

func (o *Orchestrator) finalizeTimeout(exec domain.Execution) domain.Execution {
	now := time.Now()
	exec = o.move(exec, domain.StateReverted, "pending-timeout")
	exec.FinalizedAt = now
	o.risk.RecordTerminal(now, exec.Opportunity.ChainID, domain.StateReverted, decimal.Zero, decimal.Zero)
	if o.tel != nil {
		o.tel.ExecutionCompleted(now, exec.Opportunity.ChainID, exec.ID, domain.StateReverted, decimal.Zero, decimal.Zero)
	}
	return exec
}

func (o *Orchestrator) abandon(exec domain.Execution, reason domain.AbandonReason, cause error) domain.Execution {
	now := time.Now()
	exec.AbandonReason = reason
	exec = o.move(exec, domain.StateAbandoned, string(reason))
	exec.FinalizedAt = now
	o.risk.RecordTerminal(now, exec.Opportunity.ChainID, domain.StateAbandoned, decimal.Zero, decimal.Zero)
	if o.tel != nil {
		o.tel.ExecutionCompleted(now, exec.Opportunity.ChainID, exec.ID, domain.StateAbandoned, decimal.Zero, decimal.Zero)
	}
	if cause != nil && o.log != nil {
		o.log.Warn("execution abandoned", logger.String("reason", string(reason)), logger.Err(cause))
	}
	return exec
}

// move transitions exec to next, rejecting any non-monotone transition
// (spec §3 Execution invariant) and emitting a state-change event.
func (o *Orchestrator) move(exec domain.Execution, next domain.ExecutionState, reason string) domain.Execution {
	if !domain.CanTransition(exec.State, next) {
		if o.log != nil {
			o.log.Error("rejected non-monotone execution transition",
				logger.String("from", string(exec.State)), logger.String("to", string(next)))
		}
		return exec
	}
	from := exec.State
	exec.State = next
	if o.tel != nil {
		o.tel.ExecutionStateChanged(time.Now(), exec.Opportunity.ChainID, exec.ID, from, next, reason)
	}
	return exec
}

func buildFailureReason(err error) domain.AbandonReason {
	if arberr.Is(err, arberr.ProviderUnhealthy) || arberr.Is(err, arberr.ProviderExhausted) {
		return domain.AbandonInsufficientLiquidity
	}
	return domain.AbandonBuildFailure
}
