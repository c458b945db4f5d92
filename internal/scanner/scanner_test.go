package scanner

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/flowshift/arbengine/internal/domain"
	"github.com/flowshift/arbengine/internal/flashloan"
	"github.com/flowshift/arbengine/internal/oracle"
	"github.com/flowshift/arbengine/internal/venue"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGas struct{ price decimal.Decimal }

func (f fakeGas) GasPriceNative(ctx context.Context, chainID int64) (decimal.Decimal, error) {
	return f.price, nil
}

type fakePrices struct {
	points        map[domain.TokenKey]domain.PricePoint
	crossCheckErr error
}

func (f fakePrices) Get(now time.Time, key domain.TokenKey) (domain.PricePoint, bool) {
	p, ok := f.points[key]
	return p, ok
}

func (f fakePrices) CrossCheck(ctx context.Context, keyIn, keyOut domain.TokenKey, tokenInAddr, tokenOutAddr string, v oracle.OnChainQuoter, probeAmountIn *big.Int) error {
	return f.crossCheckErr
}

// fakeVenueAdapter quotes amountOut = amountIn * outUnit / 1000, letting
// tests encode a fixed effective price per venue.
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
	key     string
	feeBps  int64
	max     *big.Int
	healthy bool
}

func (p fakeProviderAdapter) Kind() domain.ProviderKind { return domain.ProviderKindAave }
func (p fakeProviderAdapter) Key() string               { return p.key }
func (p fakeProviderAdapter) FeeBasisPoints() int64     { return p.feeBps }
func (p fakeProviderAdapter) MaxBorrow(ctx context.Context, token string) (*big.Int, error) {
	return p.max, nil
}
func (p fakeProviderAdapter) BuildBorrowTx(ctx context.Context, receiver, token string, amount *big.Int, payload []byte) (flashloan.TxRequest, error) {
	return flashloan.TxRequest{}, nil
}
func (p fakeProviderAdapter) IsHealthy(ctx context.Context) (bool, error) { return p.healthy, nil }

type fakeProviders struct{ list []flashloan.Adapter }

func (f fakeProviders) Providers(chainID int64) []flashloan.Adapter { return f.list }

type fakeQueue struct{ enqueued []domain.Opportunity }

func (q *fakeQueue) Enqueue(o domain.Opportunity) { q.enqueued = append(q.enqueued, o) }

func newTestScanner(gasPrice decimal.Decimal, queue Queue) *Scanner {
	return newTestScannerWithCrossCheck(gasPrice, queue, nil)
}

func newTestScannerWithCrossCheck(gasPrice decimal.Decimal, queue Queue, crossCheckErr error) *Scanner {
	pair := domain.Pair{
		ChainID:         1,
		TokenA:          "T1",
		TokenB:          "T2",
		VenueKeys:       []string{"v1", "v2"},
		ProviderKeys:    []string{"p1"},
		MinVolume24hUSD: 0,
		MinTradeSizeUSD: 100,
	}
	prices := fakePrices{crossCheckErr: crossCheckErr, points: map[domain.TokenKey]domain.PricePoint{
		{ChainID: 1, Symbol: "T1"}: {UnitPriceUSD: decimal.NewFromInt(1), Volume24hUSD: decimal.NewFromInt(1_000_000), ObservedAt: time.Now()},
		{ChainID: 1, Symbol: "T2"}: {UnitPriceUSD: decimal.NewFromInt(1), Volume24hUSD: decimal.NewFromInt(1_000_000), ObservedAt: time.Now()},
	}}
	venues := fakeVenues{adapters: map[string]venue.Adapter{
		"v1": fakeVenueAdapter{key: "v1", feeBps: 5, outUnit: 1000},
		"v2": fakeVenueAdapter{key: "v2", feeBps: 5, outUnit: 1030},
	}}
	providers := fakeProviders{list: []flashloan.Adapter{
		fakeProviderAdapter{key: "p1", feeBps: 5, max: big.NewInt(1_000_000_000), healthy: true},
	}}

	cfg := DefaultConfig()
	cfg.GasCeilingNative = map[int64]decimal.Decimal{1: decimal.NewFromInt(100)}
	cfg.MinConfidence = decimal.NewFromFloat(0.1)
	cfg.MinMarginBps = decimal.NewFromInt(5)

	return New(cfg, []domain.Pair{pair}, fakeGas{price: gasPrice}, prices, venues, providers, queue, nil, nil)
}

func TestScanner_Tick_SkipsWhenGasAboveCeiling(t *testing.T) {
	q := &fakeQueue{}
	s := newTestScanner(decimal.NewFromInt(1000), q)
	err := s.Tick(context.Background(), time.Now(), 1)
	require.NoError(t, err)
	assert.Empty(t, q.enqueued)
}

func TestScanner_Tick_EmitsProfitableOpportunity(t *testing.T) {
	q := &fakeQueue{}
	s := newTestScanner(decimal.NewFromInt(1), q)
	err := s.Tick(context.Background(), time.Now(), 1)
	require.NoError(t, err)
	require.Len(t, q.enqueued, 1)
	opp := q.enqueued[0]
	assert.True(t, opp.Estimate.Profitable)
	assert.Equal(t, "v1", opp.BuyVenueKey)
	assert.Equal(t, "v2", opp.SellVenueKey)
}

func TestScanner_Tick_ExcludesPairOnFailedCrossCheck(t *testing.T) {
	q := &fakeQueue{}
	s := newTestScannerWithCrossCheck(decimal.NewFromInt(1), q, errors.New("sanity bound exceeded"))
	err := s.Tick(context.Background(), time.Now(), 1)
	require.NoError(t, err)
	assert.Empty(t, q.enqueued, "a pair failing the mandatory price cross-check must never reach the queue")
}
