package commands

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowshift/arbengine/internal/breaker"
	"github.com/flowshift/arbengine/internal/domain"
	"github.com/flowshift/arbengine/internal/flashloan"
	"github.com/flowshift/arbengine/internal/orchestrator"
	"github.com/flowshift/arbengine/internal/queue"
	"github.com/flowshift/arbengine/internal/risk"
	"github.com/flowshift/arbengine/internal/telemetry"
	"github.com/flowshift/arbengine/internal/venue"
	"github.com/flowshift/arbengine/pkg/config"
	"github.com/flowshift/arbengine/pkg/logger"
)

type fakeVenueAdapter struct{ key string }

func (f *fakeVenueAdapter) Kind() domain.VenueKind { return domain.VenueKindUniswapV2 }
func (f *fakeVenueAdapter) Key() string            { return f.key }
func (f *fakeVenueAdapter) FeeBasisPoints() int64  { return 30 }
func (f *fakeVenueAdapter) Quote(ctx context.Context, tokenIn, tokenOut string, amountIn *big.Int) (*big.Int, uint64, error) {
	return amountIn, 1, nil
}
func (f *fakeVenueAdapter) BuildSwapCall(tokenIn, tokenOut string, amountIn, minAmountOut *big.Int, deadline time.Time) (venue.CallData, error) {
	return venue.CallData{}, nil
}

func TestVenueRegistry_AdapterLookup(t *testing.T) {
	r := &venueRegistry{adapters: map[int64]map[string]venue.Adapter{
		1: {"uniswap-v2": &fakeVenueAdapter{key: "uniswap-v2"}},
	}}

	a, ok := r.Adapter(1, "uniswap-v2")
	require.True(t, ok)
	assert.Equal(t, "uniswap-v2", a.Key())

	_, ok = r.Adapter(1, "missing")
	assert.False(t, ok)

	_, ok = r.Adapter(99, "uniswap-v2")
	assert.False(t, ok)
}

type fakeProviderAdapter struct{ key string }

func (f *fakeProviderAdapter) Kind() domain.ProviderKind { return domain.ProviderKindAave }
func (f *fakeProviderAdapter) Key() string               { return f.key }
func (f *fakeProviderAdapter) FeeBasisPoints() int64     { return 9 }
func (f *fakeProviderAdapter) MaxBorrow(ctx context.Context, token string) (*big.Int, error) {
	return big.NewInt(0), nil
}
func (f *fakeProviderAdapter) BuildBorrowTx(ctx context.Context, receiver, token string, amount *big.Int, innerCallbackPayload []byte) (flashloan.TxRequest, error) {
	return flashloan.TxRequest{}, nil
}
func (f *fakeProviderAdapter) IsHealthy(ctx context.Context) (bool, error) { return true, nil }

func TestProviderRegistry_LookupsAgree(t *testing.T) {
	p := &fakeProviderAdapter{key: "aave-v3"}
	r := &providerRegistry{
		byChain: map[int64][]flashloan.Adapter{1: {p}},
		byKey:   map[int64]map[string]flashloan.Adapter{1: {"aave-v3": p}},
	}

	assert.Len(t, r.Providers(1), 1)
	a, ok := r.ProviderByKey(1, "aave-v3")
	require.True(t, ok)
	assert.Equal(t, "aave-v3", a.Key())

	_, ok = r.ProviderByKey(1, "missing")
	assert.False(t, ok)
}

func TestNoopSimulator_ReturnsFallback(t *testing.T) {
	s := &noopSimulator{fallback: decimal.NewFromInt(42)}
	margin, err := s.Simulate(context.Background(), flashloan.TxRequest{})
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(42).Equal(margin))
}

func newTestEngine(t *testing.T) *engine {
	t.Helper()
	log := logger.New("test")
	breakers := breaker.NewManager(log)
	tel := telemetry.New(log, 16)
	riskSup := risk.New(risk.DefaultConfig(), breakers, tel, log)
	q := queue.New(queue.Config{CapacityPerChain: 8}, tel, log)

	cfg := &config.Config{
		Chains: []config.ChainConfig{{ChainID: 1, Name: "ethereum"}},
	}
	orch := orchestrator.New(orchestrator.DefaultConfig(), riskSup, tel, nil, nil, nil, nil, nil, log)

	return &engine{
		cfg: cfg, log: log, risk: riskSup, q: q, tel: tel, orch: orch,
		breakers: breakers, baseSimMode: false,
	}
}

func TestEngine_StopSetsKillSwitch(t *testing.T) {
	e := newTestEngine(t)
	require.False(t, e.risk.KillSwitch())
	require.NoError(t, e.Stop())
	assert.True(t, e.risk.KillSwitch())
}

func TestEngine_StatusReportsPerChainSnapshot(t *testing.T) {
	e := newTestEngine(t)
	st := e.Status()
	require.Len(t, st.Chains, 1)
	assert.Equal(t, int64(1), st.Chains[0].ChainID)
	assert.Equal(t, "closed", st.Chains[0].BreakerState)
}

func TestEngine_StatusReflectsOpenBreaker(t *testing.T) {
	e := newTestEngine(t)
	b := e.breakers.GetOrCreate(chainBreakerName(1), nil)
	now := time.Now()
	for i := 0; i < 10; i++ {
		b.RecordFailure(now)
	}
	st := e.Status()
	assert.Equal(t, "open", st.Chains[0].BreakerState)
}

func TestEngine_SimulateSetsForcedTicksAndMode(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.Simulate(3))
	assert.Equal(t, 3, e.forcedSimTicks)
	assert.True(t, e.cfg.SimulationMode)
}

func TestEngine_ForcedSimExpiryRestoresBaseline(t *testing.T) {
	e := newTestEngine(t)
	e.scanPeriod = 10 * time.Millisecond
	e.baseSimMode = false
	require.NoError(t, e.Simulate(1))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	e.runForcedSimExpiry(ctx)

	e.mu.Lock()
	defer e.mu.Unlock()
	assert.Equal(t, 0, e.forcedSimTicks)
	assert.False(t, e.cfg.SimulationMode)
}
