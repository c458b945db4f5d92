// Package scanner implements the Opportunity Scanner (C6, spec §4.6): a
// periodic per-chain loop that enumerates candidate pairs × venues,
// filters on gas ceiling and price-divergence floor, sizes a trade,
// selects a flash-loan provider, asks the Profit Estimator (C5), and
// pushes the top-ranked survivors into the Execution Queue (C7).
//
// Grounded on internal/smart-order-router's chain-scoped scan-tick loop
// shape, generalized from single-chain order routing to the spec's
// per-chain Scanner task (spec §5: "one Scanner task per enabled chain").
package scanner

import (
	"context"
	"math/big"
	"sort"
	"strconv"
	"time"

	"github.com/flowshift/arbengine/internal/domain"
	"github.com/flowshift/arbengine/internal/estimator"
	"github.com/flowshift/arbengine/internal/flashloan"
	"github.com/flowshift/arbengine/internal/oracle"
	"github.com/flowshift/arbengine/internal/venue"
	"github.com/flowshift/arbengine/pkg/logger"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// GasPriceSource reports the current gas price (native units) for a chain.
type GasPriceSource interface {
	GasPriceNative(ctx context.Context, chainID int64) (decimal.Decimal, error)
}

// PriceSource is the subset of the Price Oracle (C2) the Scanner reads.
// CrossCheck backs spec §4.2's mandatory off-chain/on-chain divergence
// gate: it must be run for a pair before any Opportunity derived from it
// reaches the Execution Queue.
type PriceSource interface {
	Get(now time.Time, key domain.TokenKey) (domain.PricePoint, bool)
	CrossCheck(ctx context.Context, keyIn, keyOut domain.TokenKey, tokenInAddr, tokenOutAddr string, v oracle.OnChainQuoter, probeAmountIn *big.Int) error
}

// VenueRegistry resolves a configured venue adapter for a chain.
type VenueRegistry interface {
	Adapter(chainID int64, venueKey string) (venue.Adapter, bool)
}

// ProviderRegistry lists the flash-loan provider adapters available on a
// chain.
type ProviderRegistry interface {
	Providers(chainID int64) []flashloan.Adapter
}

// Telemetry is the subset of the Telemetry Sink (C10) the Scanner emits
// detection events through.
type Telemetry interface {
	OpportunityDetected(now time.Time, o domain.Opportunity)
}

// Queue is the subset of the Execution Queue (C7) the Scanner pushes into.
type Queue interface {
	Enqueue(o domain.Opportunity)
}

// Config tunes the Scanner, mirroring spec §6's scanner-related keys.
type Config struct {
	Period               time.Duration              // default 5s
	GasCeilingNative     map[int64]decimal.Decimal  // per chain; zero/absent means no ceiling
	TradeSizeFraction    decimal.Decimal            // fraction of min-24h-volume, default 0.01
	HardTradeSizeCapUSD  decimal.Decimal            // default 50000
	MinRelDiff           decimal.Decimal            // default 0.001 (0.1%)
	TopK                 int                        // default 3
	MinConfidence        decimal.Decimal            // default 0.5
	ProbeAmount          *big.Int                   // raw on-chain probe amount for venue quotes
	GasUnitsHint         decimal.Decimal
	NativePriceUSD       decimal.Decimal
	MaxSlippage          decimal.Decimal
	ReserveFraction      decimal.Decimal
	GasPriceCeiling      decimal.Decimal
	MinMarginBps         decimal.Decimal
}

func DefaultConfig() Config {
	return Config{
		Period:              5 * time.Second,
		GasCeilingNative:    map[int64]decimal.Decimal{},
		TradeSizeFraction:   decimal.NewFromFloat(0.01),
		HardTradeSizeCapUSD: decimal.NewFromInt(50_000),
		MinRelDiff:          decimal.NewFromFloat(0.001),
		TopK:                3,
		MinConfidence:       decimal.NewFromFloat(0.5),
		ProbeAmount:         new(big.Int).SetInt64(1_000_000_000_000_000_000),
		GasUnitsHint:        decimal.NewFromInt(1),
		NativePriceUSD:      decimal.NewFromInt(1),
		MaxSlippage:         decimal.NewFromFloat(0.001),
		ReserveFraction:     decimal.Zero,
		GasPriceCeiling:     decimal.NewFromInt(100),
		MinMarginBps:        decimal.NewFromInt(25),
	}
}

// Scanner is C6.
type Scanner struct {
	cfg       Config
	pairs     []domain.Pair
	gas       GasPriceSource
	prices    PriceSource
	venues    VenueRegistry
	providers ProviderRegistry
	queue     Queue
	tel       Telemetry
	log       *logger.Logger
}

func New(cfg Config, pairs []domain.Pair, gas GasPriceSource, prices PriceSource, venues VenueRegistry, providers ProviderRegistry, queue Queue, tel Telemetry, log *logger.Logger) *Scanner {
	if cfg.Period <= 0 {
		cfg.Period = 5 * time.Second
	}
	if cfg.TopK <= 0 {
		cfg.TopK = 3
	}
	return &Scanner{cfg: cfg, pairs: pairs, gas: gas, prices: prices, venues: venues, providers: providers, queue: queue, tel: tel, log: log}
}

// RunForChain runs the per-chain scan loop until ctx is cancelled, spec §5
// ("one Scanner task per enabled chain so a slow RPC on one chain cannot
// stall another").
func (s *Scanner) RunForChain(ctx context.Context, chainID int64) {
	ticker := time.NewTicker(s.cfg.Period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Tick(ctx, time.Now(), chainID); err != nil && s.log != nil {
				s.log.Warn("scan tick failed", logger.String("chain", chainLabel(chainID)), logger.Err(err))
			}
		}
	}
}

// Tick performs one full scan pass over chainID's pairs, spec §4.6 steps
// 1-7.
func (s *Scanner) Tick(ctx context.Context, now time.Time, chainID int64) error {
	gasPrice, err := s.gas.GasPriceNative(ctx, chainID)
	if err != nil {
		return err
	}
	if ceiling, ok := s.cfg.GasCeilingNative[chainID]; ok && ceiling.IsPositive() && gasPrice.GreaterThan(ceiling) {
		return nil
	}

	var candidates []domain.Opportunity
	for _, pair := range s.pairs {
		if pair.ChainID != chainID {
			continue
		}
		opp, ok := s.evaluatePair(ctx, now, pair, gasPrice)
		if !ok {
			continue
		}
		candidates = append(candidates, opp)
	}

	rank(candidates)
	if len(candidates) > s.cfg.TopK {
		candidates = candidates[:s.cfg.TopK]
	}
	for _, opp := range candidates {
		if s.tel != nil {
			s.tel.OpportunityDetected(now, opp)
		}
		s.queue.Enqueue(opp)
	}
	return nil
}

func (s *Scanner) evaluatePair(ctx context.Context, now time.Time, pair domain.Pair, gasPrice decimal.Decimal) (domain.Opportunity, bool) {
	tokenA := domain.TokenKey{ChainID: pair.ChainID, Symbol: pair.TokenA}
	tokenB := domain.TokenKey{ChainID: pair.ChainID, Symbol: pair.TokenB}
	priceA, okA := s.prices.Get(now, tokenA)
	priceB, okB := s.prices.Get(now, tokenB)
	if !okA || !okB {
		return domain.Opportunity{}, false
	}

	buyVenue, sellVenue, relDiff, ok := s.bestVenueSpread(ctx, pair)
	if !ok || relDiff.LessThan(s.cfg.MinRelDiff) {
		return domain.Opportunity{}, false
	}

	// Mandatory sanity gate, spec §4.2: the fused off-chain price must
	// agree with a fresh on-chain quote of this pair's actual leg before
	// any Opportunity derived from it may proceed to the queue.
	if err := s.prices.CrossCheck(ctx, tokenA, tokenB, pair.TokenA, pair.TokenB, buyVenue, s.cfg.ProbeAmount); err != nil {
		if s.log != nil {
			s.log.Warn("price cross-check failed, excluding pair", logger.String("chain", chainLabel(pair.ChainID)), logger.Err(err))
		}
		return domain.Opportunity{}, false
	}

	minVolume := priceA.Volume24hUSD
	if priceB.Volume24hUSD.LessThan(minVolume) {
		minVolume = priceB.Volume24hUSD
	}
	tradeSize := minVolume.Mul(s.cfg.TradeSizeFraction)
	if tradeSize.GreaterThan(s.cfg.HardTradeSizeCapUSD) {
		tradeSize = s.cfg.HardTradeSizeCapUSD
	}
	floor := decimal.NewFromFloat(pair.MinTradeSizeUSD)
	if tradeSize.LessThan(floor) {
		tradeSize = floor
	}
	if !tradeSize.IsPositive() {
		return domain.Opportunity{}, false
	}

	providerKey, providerFeeBps, ok := s.selectProvider(ctx, pair, tradeSize)
	if !ok {
		return domain.Opportunity{}, false
	}

	in := domain.EstimatorInput{
		PriceDelta:      relDiff,
		TradeSizeUSD:    tradeSize,
		GasUnitsHint:    s.cfg.GasUnitsHint,
		GasPriceNative:  gasPrice,
		NativePriceUSD:  s.cfg.NativePriceUSD,
		ProviderFeeBps:  providerFeeBps,
		VenueAFeeBps:    decimal.NewFromInt(buyVenue.FeeBasisPoints()),
		VenueBFeeBps:    decimal.NewFromInt(sellVenue.FeeBasisPoints()),
		DepthAUSD:       priceA.Volume24hUSD,
		DepthBUSD:       priceB.Volume24hUSD,
		MaxSlippage:     s.cfg.MaxSlippage,
		ReserveFraction: s.cfg.ReserveFraction,
		GasPriceCeiling: s.cfg.GasPriceCeiling,
		MinMarginBps:    s.cfg.MinMarginBps,
	}
	out := estimator.Estimate(in)
	if !out.Profitable || out.Confidence.LessThan(s.cfg.MinConfidence) {
		return domain.Opportunity{}, false
	}

	return domain.Opportunity{
		ID:             uuid.NewString(),
		ChainID:        pair.ChainID,
		TokenA:         tokenA,
		TokenB:         tokenB,
		BuyVenueKey:    buyVenue.Key(),
		SellVenueKey:   sellVenue.Key(),
		InputAmountUSD: tradeSize,
		ProviderKey:    providerKey,
		Estimate:       out,
		DetectedAt:     now,
	}, true
}

// bestVenueSpread probes every ordered pair of the pair's configured
// venues and returns the buy/sell combo with the largest relative price
// divergence (spec §4.6 step 3/4). The probe trades a fixed raw amount;
// a production deployment would scale by the token's decimals.
func (s *Scanner) bestVenueSpread(ctx context.Context, pair domain.Pair) (buy, sell venue.Adapter, relDiff decimal.Decimal, ok bool) {
	var adapters []venue.Adapter
	for _, vk := range pair.VenueKeys {
		a, found := s.venues.Adapter(pair.ChainID, vk)
		if found {
			adapters = append(adapters, a)
		}
	}
	if len(adapters) < 2 {
		return nil, nil, decimal.Zero, false
	}

	type priced struct {
		adapter venue.Adapter
		price   decimal.Decimal
	}
	var quoted []priced
	for _, a := range adapters {
		amountOut, _, err := a.Quote(ctx, pair.TokenA, pair.TokenB, s.cfg.ProbeAmount)
		if err != nil || amountOut == nil || amountOut.Sign() <= 0 {
			continue
		}
		price := decimal.NewFromBigInt(amountOut, 0).Div(decimal.NewFromBigInt(s.cfg.ProbeAmount, 0))
		quoted = append(quoted, priced{adapter: a, price: price})
	}
	if len(quoted) < 2 {
		return nil, nil, decimal.Zero, false
	}

	lowest, highest := quoted[0], quoted[0]
	for _, q := range quoted[1:] {
		if q.price.LessThan(lowest.price) {
			lowest = q
		}
		if q.price.GreaterThan(highest.price) {
			highest = q
		}
	}
	if lowest.price.IsZero() {
		return nil, nil, decimal.Zero, false
	}
	diff := highest.price.Sub(lowest.price).Div(lowest.price)
	return lowest.adapter, highest.adapter, diff, true
}

// selectProvider picks a flash-loan provider on the chain that supports
// the borrow token, is healthy, and can lend at least tradeSize, spec
// §4.6 step 5.
func (s *Scanner) selectProvider(ctx context.Context, pair domain.Pair, tradeSize decimal.Decimal) (string, decimal.Decimal, bool) {
	for _, p := range s.providers.Providers(pair.ChainID) {
		healthy, err := p.IsHealthy(ctx)
		if err != nil || !healthy {
			continue
		}
		max, err := p.MaxBorrow(ctx, pair.TokenA)
		if err != nil || max == nil {
			continue
		}
		if decimal.NewFromBigInt(max, 0).LessThan(tradeSize) {
			continue
		}
		return p.Key(), decimal.NewFromInt(p.FeeBasisPoints()), true
	}
	return "", decimal.Zero, false
}

// rank sorts candidates by net profit descending, ties broken by higher
// confidence then earlier detection timestamp, spec §4.6.
func rank(candidates []domain.Opportunity) {
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[j].Less(candidates[i])
	})
}

func chainLabel(chainID int64) string {
	return strconv.FormatInt(chainID, 10)
}
