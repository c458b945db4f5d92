// Package oracle implements the Price Oracle (C2, spec §4.2): fused,
// freshness-bounded prices for watched pairs, cross-checked against
// on-chain venue quotes before any opportunity may proceed downstream.
//
// Grounded on internal/defi/models.go's PriceOracle/PriceProvider shape
// and pkg/redis/interfaces.go's TTL-cache idiom.
package oracle

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/flowshift/arbengine/internal/arberr"
	"github.com/flowshift/arbengine/internal/coordinator"
	"github.com/flowshift/arbengine/internal/domain"
	"github.com/shopspring/decimal"
)

// OnChainQuoter is the subset of the Venue Adapter (C3) surface the
// Oracle needs for its sanity cross-check.
type OnChainQuoter interface {
	Quote(ctx context.Context, tokenIn, tokenOut string, amountIn *big.Int) (amountOut *big.Int, blockHeight uint64, err error)
}

// Config controls the Oracle's refresh cadence and sanity bound.
type Config struct {
	RefreshInterval time.Duration // default 30s
	TTL             time.Duration // default 30s
	SanityBoundPct  decimal.Decimal // default 0.02 (2%)
}

func DefaultConfig() Config {
	return Config{
		RefreshInterval: 30 * time.Second,
		TTL:             30 * time.Second,
		SanityBoundPct:  decimal.NewFromFloat(0.02),
	}
}

// entry is a cached PricePoint plus a staleness flag set by the
// cross-check.
type entry struct {
	point PricePoint
	stale bool
}

// PricePoint re-exports the domain type for readability at call sites.
type PricePoint = domain.PricePoint

// Oracle is C2: it owns its PricePoint cache.
type Oracle struct {
	cfg   Config
	coord *coordinator.Coordinator

	mu    sync.RWMutex
	cache map[domain.TokenKey]entry
}

func New(cfg Config, coord *coordinator.Coordinator) *Oracle {
	return &Oracle{cfg: cfg, coord: coord, cache: make(map[domain.TokenKey]entry)}
}

// Refresh requests a batched price snapshot from C1 under capability
// "pricing" for the given tokens, spec §4.2. batch performs the actual
// provider call and returns one PricePoint per token it could price.
func (o *Oracle) Refresh(ctx context.Context, tokens []domain.TokenKey, batch func(ctx context.Context, tokens []domain.TokenKey) ([]domain.PricePoint, error)) error {
	_, err := o.coord.Route(ctx, coordinator.CapabilityPricing, "batchPrices", tokens, coordinator.DefaultOptions())
	if err != nil {
		return err
	}
	points, err := batch(ctx, tokens)
	if err != nil {
		return arberr.New(arberr.ProviderExhausted, "pricing", err)
	}
	o.accept(points)
	return nil
}

// accept applies the monotonic-acceptance rule: a snapshot older than the
// last accepted one for the same token is discarded, spec §5 ordering
// guarantees.
func (o *Oracle) accept(points []domain.PricePoint) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, p := range points {
		existing, ok := o.cache[p.TokenKey]
		if ok && !p.ObservedAt.After(existing.point.ObservedAt) {
			continue
		}
		o.cache[p.TokenKey] = entry{point: p, stale: false}
	}
}

// Get returns the cached PricePoint for key if present and within TTL and
// not flagged stale; otherwise it reports unavailable, spec §4.2
// guarantees ("a stale pair is reported as unavailable rather than
// returning a stale value").
func (o *Oracle) Get(now time.Time, key domain.TokenKey) (domain.PricePoint, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	e, ok := o.cache[key]
	if !ok || e.stale {
		return domain.PricePoint{}, false
	}
	if e.point.Age(now) > o.cfg.TTL {
		return domain.PricePoint{}, false
	}
	return e.point, true
}

// CrossCheck compares the fused off-chain price ratio between keyIn and
// keyOut against a fresh on-chain quote of the actual tokenIn->tokenOut
// leg from v; if the relative difference exceeds the sanity bound, both
// tokens are flagged stale until the next refresh agrees, spec §4.2. This
// check is mandatory before any opportunity reaches the execution queue.
func (o *Oracle) CrossCheck(ctx context.Context, keyIn, keyOut domain.TokenKey, tokenInAddr, tokenOutAddr string, v OnChainQuoter, probeAmountIn *big.Int) error {
	o.mu.RLock()
	in, okIn := o.cache[keyIn]
	out, okOut := o.cache[keyOut]
	o.mu.RUnlock()
	if !okIn || !okOut {
		return arberr.New(arberr.OracleStale, keyIn.Symbol+"/"+keyOut.Symbol, nil)
	}
	if in.point.UnitPriceUSD.IsZero() || out.point.UnitPriceUSD.IsZero() {
		return arberr.New(arberr.OracleStale, keyIn.Symbol+"/"+keyOut.Symbol, nil)
	}

	amountOut, _, err := v.Quote(ctx, tokenInAddr, tokenOutAddr, probeAmountIn)
	if err != nil || amountOut == nil || amountOut.Sign() <= 0 {
		o.markStale(keyIn)
		o.markStale(keyOut)
		return arberr.New(arberr.OracleStale, keyIn.Symbol+"/"+keyOut.Symbol, err)
	}

	onChainRatio := decimal.NewFromBigInt(amountOut, 0).Div(decimal.NewFromBigInt(probeAmountIn, 0))
	offChainRatio := in.point.UnitPriceUSD.Div(out.point.UnitPriceUSD)

	diff := offChainRatio.Sub(onChainRatio).Abs()
	relDiff := diff.Div(offChainRatio)

	if relDiff.GreaterThan(o.cfg.SanityBoundPct) {
		o.markStale(keyIn)
		o.markStale(keyOut)
		return arberr.New(arberr.OracleStale, keyIn.Symbol+"/"+keyOut.Symbol, nil)
	}
	o.clearStale(keyIn)
	o.clearStale(keyOut)
	return nil
}

func (o *Oracle) markStale(key domain.TokenKey) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if e, ok := o.cache[key]; ok {
		e.stale = true
		o.cache[key] = e
	}
}

func (o *Oracle) clearStale(key domain.TokenKey) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if e, ok := o.cache[key]; ok {
		e.stale = false
		o.cache[key] = e
	}
}
