package orchestrator

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/flowshift/arbengine/internal/breaker"
	"github.com/flowshift/arbengine/internal/domain"
	"github.com/flowshift/arbengine/internal/flashloan"
	"github.com/flowshift/arbengine/internal/risk"
	"github.com/flowshift/arbengine/internal/venue"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingQuoteAdapter wraps a venue.Adapter and counts Quote calls, so a
// test can assert a submission retry re-quotes rather than reusing the
// original Building pass's numbers.
type countingQuoteAdapter struct {
	venue.Adapter
	calls *int
}

func (a countingQuoteAdapter) Quote(ctx context.Context, tokenIn, tokenOut string, amountIn *big.Int) (*big.Int, uint64, error) {
	*a.calls++
	return a.Adapter.Quote(ctx, tokenIn, tokenOut, amountIn)
}

var big1e9 = big.NewInt(1_000_000_000)

type fakeVenueAdapter struct {
	key     string
	feeBps  int64
	outUnit int64
}

func (a fakeVenueAdapter) Kind() domain.VenueKind { return domain.VenueKindUniswapV2 }
func (a fakeVenueAdapter) Key() string            { return a.key }
func (a fakeVenueAdapter) FeeBasisPoints() int64  { return a.feeBps }
func (a fakeVenueAdapter) Quote(ctx context.Context, tokenIn, tokenOut string, amountIn *big.Int) (*big.Int, uint64, error) {
	out := new(big.Int).Mul(amountIn, big.NewInt(a.outUnit))
	out.Div(out, big.NewInt(1000))
	return out, 1, nil
}
func (a fakeVenueAdapter) BuildSwapCall(tokenIn, tokenOut string, amountIn, minAmountOut *big.Int, deadline time.Time) (venue.CallData, error) {
	return nil, nil
}

type fakeVenues struct{ adapters map[string]venue.Adapter }

func (f fakeVenues) Adapter(chainID int64, key string) (venue.Adapter, bool) {
	a, ok := f.adapters[key]
	return a, ok
}

type fakeProviderAdapter struct {
	key    string
	feeBps int64
}

func (p fakeProviderAdapter) Kind() domain.ProviderKind { return domain.ProviderKindAave }
func (p fakeProviderAdapter) Key() string               { return p.key }
func (p fakeProviderAdapter) FeeBasisPoints() int64     { return p.feeBps }
func (p fakeProviderAdapter) MaxBorrow(ctx context.Context, token string) (*big.Int, error) {
	return big1e9, nil
}
func (p fakeProviderAdapter) BuildBorrowTx(ctx context.Context, receiver, token string, amount *big.Int, payload []byte) (flashloan.TxRequest, error) {
	return flashloan.TxRequest{To: "0xPool", GasLimit: 300_000}, nil
}
func (p fakeProviderAdapter) IsHealthy(ctx context.Context) (bool, error) { return true, nil }

type fakeProviders struct{ adapters map[string]flashloan.Adapter }

func (f fakeProviders) ProviderByKey(chainID int64, key string) (flashloan.Adapter, bool) {
	a, ok := f.adapters[key]
	return a, ok
}

type fakeSimulator struct {
	margin decimal.Decimal
	err    error
}

func (s fakeSimulator) Simulate(ctx context.Context, tx flashloan.TxRequest) (decimal.Decimal, error) {
	return s.margin, s.err
}

type fakeSubmitter struct {
	hash      string
	err       error
	n         int
	failFirst int // number of leading Submit calls that fail with err
}

func (s *fakeSubmitter) Submit(ctx context.Context, chainID int64, tx flashloan.TxRequest) (string, error) {
	s.n++
	if s.failFirst > 0 && s.n <= s.failFirst {
		return "", s.err
	}
	return s.hash, nil
}

type fakeReceipts struct {
	included bool
	success  bool
	gasUsed  uint64
	err      error
}

func (r fakeReceipts) Receipt(ctx context.Context, chainID int64, txHash string) (bool, bool, uint64, error) {
	return r.included, r.success, r.gasUsed, r.err
}

func testOpportunity() domain.Opportunity {
	return domain.Opportunity{
		ID:             "opp-1",
		ChainID:        1,
		TokenA:         domain.TokenKey{ChainID: 1, Symbol: "T1"},
		TokenB:         domain.TokenKey{ChainID: 1, Symbol: "T2"},
		BuyVenueKey:    "v1",
		SellVenueKey:   "v2",
		InputAmountUSD: decimal.NewFromInt(1000),
		ProviderKey:    "p1",
		Estimate:       domain.EstimatorOutput{Profitable: true, NetProfitUSD: decimal.NewFromInt(10)},
		DetectedAt:     time.Now(),
	}
}

func newTestOrchestrator(sub TxSubmitter, recv ReceiptSource, sim Simulator, simulationMode bool) *Orchestrator {
	venues := fakeVenues{adapters: map[string]venue.Adapter{
		"v1": fakeVenueAdapter{key: "v1", feeBps: 5, outUnit: 1000},
		"v2": fakeVenueAdapter{key: "v2", feeBps: 5, outUnit: 1030},
	}}
	providers := fakeProviders{adapters: map[string]flashloan.Adapter{
		"p1": fakeProviderAdapter{key: "p1", feeBps: 5},
	}}
	riskSup := risk.New(risk.DefaultConfig(), breaker.NewManager(nil), nil, nil)
	cfg := DefaultConfig()
	cfg.SimulationMode = simulationMode
	cfg.ReceiptPollInterval = time.Millisecond
	cfg.PendingDeadline = 20 * time.Millisecond
	return New(cfg, riskSup, nil, venues, providers, sim, sub, recv, nil)
}

func TestExecute_SimulationModeAbandonsBeforeSubmitting(t *testing.T) {
	o := newTestOrchestrator(&fakeSubmitter{hash: "0xabc"}, fakeReceipts{}, fakeSimulator{margin: decimal.NewFromInt(100)}, true)
	exec := o.Execute(context.Background(), testOpportunity())
	assert.Equal(t, domain.StateAbandoned, exec.State)
	assert.Equal(t, domain.AbandonSimulationMode, exec.AbandonReason)
	assert.Empty(t, exec.SubmittedTxHash)
}

func TestExecute_SucceedsOnIncludedReceipt(t *testing.T) {
	sub := &fakeSubmitter{hash: "0xabc"}
	recv := fakeReceipts{included: true, success: true, gasUsed: 210_000}
	o := newTestOrchestrator(sub, recv, fakeSimulator{margin: decimal.NewFromInt(100)}, false)
	exec := o.Execute(context.Background(), testOpportunity())
	require.Equal(t, domain.StateSucceeded, exec.State)
	assert.Equal(t, "0xabc", exec.SubmittedTxHash)
	assert.Equal(t, uint64(210_000), exec.MeasuredGasUnits)
	require.NotNil(t, exec.ReceiptStatus)
	assert.True(t, *exec.ReceiptStatus)
}

func TestExecute_RevertedOnFailedReceipt(t *testing.T) {
	sub := &fakeSubmitter{hash: "0xabc"}
	recv := fakeReceipts{included: true, success: false, gasUsed: 180_000}
	o := newTestOrchestrator(sub, recv, fakeSimulator{margin: decimal.NewFromInt(100)}, false)
	exec := o.Execute(context.Background(), testOpportunity())
	assert.Equal(t, domain.StateReverted, exec.State)
}

func TestExecute_TimesOutToRevertedWhenNeverIncluded(t *testing.T) {
	sub := &fakeSubmitter{hash: "0xabc"}
	recv := fakeReceipts{included: false}
	o := newTestOrchestrator(sub, recv, fakeSimulator{margin: decimal.NewFromInt(100)}, false)
	exec := o.Execute(context.Background(), testOpportunity())
	assert.Equal(t, domain.StateReverted, exec.State)
}

func TestExecute_AbandonsOnSimulationShortfall(t *testing.T) {
	sub := &fakeSubmitter{hash: "0xabc"}
	o := newTestOrchestrator(sub, fakeReceipts{}, fakeSimulator{margin: decimal.Zero}, false)
	exec := o.Execute(context.Background(), testOpportunity())
	assert.Equal(t, domain.StateAbandoned, exec.State)
	assert.Equal(t, domain.AbandonSimulationFailure, exec.AbandonReason)
	assert.Zero(t, sub.n, "must not submit when simulation margin is below threshold")
}

func TestExecute_RetryReSimulatesBeforeResubmitting(t *testing.T) {
	var buyCalls int
	venues := fakeVenues{adapters: map[string]venue.Adapter{
		"v1": countingQuoteAdapter{Adapter: fakeVenueAdapter{key: "v1", feeBps: 5, outUnit: 1000}, calls: &buyCalls},
		"v2": fakeVenueAdapter{key: "v2", feeBps: 5, outUnit: 1030},
	}}
	providers := fakeProviders{adapters: map[string]flashloan.Adapter{
		"p1": fakeProviderAdapter{key: "p1", feeBps: 5},
	}}
	riskSup := risk.New(risk.DefaultConfig(), breaker.NewManager(nil), nil, nil)
	cfg := DefaultConfig()
	cfg.ReceiptPollInterval = time.Millisecond
	cfg.PendingDeadline = 20 * time.Millisecond
	sub := &fakeSubmitter{hash: "0xabc", err: errors.New("rpc timeout"), failFirst: 1}
	recv := fakeReceipts{included: true, success: true, gasUsed: 210_000}
	o := New(cfg, riskSup, nil, venues, providers, fakeSimulator{margin: decimal.NewFromInt(100)}, sub, recv, nil)

	exec := o.Execute(context.Background(), testOpportunity())
	require.Equal(t, domain.StateSucceeded, exec.State)
	assert.Equal(t, 2, sub.n, "must retry once after the first submission fails")
	assert.Equal(t, 2, buyCalls, "a retry must re-quote the buy leg rather than resubmit the stale transaction")
}

func TestSetSimulationMode_TakesEffectImmediately(t *testing.T) {
	sub := &fakeSubmitter{hash: "0xabc"}
	o := newTestOrchestrator(sub, fakeReceipts{}, fakeSimulator{margin: decimal.NewFromInt(100)}, false)
	require.False(t, o.SimulationMode())

	o.SetSimulationMode(true)
	assert.True(t, o.SimulationMode())
	exec := o.Execute(context.Background(), testOpportunity())
	assert.Equal(t, domain.AbandonSimulationMode, exec.AbandonReason)
	assert.Zero(t, sub.n)

	o.SetSimulationMode(false)
	exec = o.Execute(context.Background(), testOpportunity())
	assert.NotEqual(t, domain.AbandonSimulationMode, exec.AbandonReason)
}

func TestExecute_AbandonsWhenKillSwitchIsSet(t *testing.T) {
	sub := &fakeSubmitter{hash: "0xabc"}
	o := newTestOrchestrator(sub, fakeReceipts{}, fakeSimulator{margin: decimal.NewFromInt(100)}, false)
	o.risk.(*risk.Supervisor).SetKillSwitch(true)
	exec := o.Execute(context.Background(), testOpportunity())
	assert.Equal(t, domain.StateAbandoned, exec.State)
	assert.Equal(t, domain.AbandonAdmissionDenied, exec.AbandonReason)
	assert.Zero(t, sub.n)
}
