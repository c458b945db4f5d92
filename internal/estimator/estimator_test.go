package estimator

import (
	"testing"

	"github.com/flowshift/arbengine/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func baseInput() domain.EstimatorInput {
	return domain.EstimatorInput{
		PriceDelta:      decimal.NewFromFloat(0.0030), // 30 bps
		TradeSizeUSD:    decimal.NewFromInt(10000),
		GasUnitsHint:    decimal.NewFromInt(1),
		GasPriceNative:  decimal.NewFromFloat(5), // equivalent to 5 bps of notional
		NativePriceUSD:  decimal.NewFromInt(1),
		ProviderFeeBps:  decimal.NewFromInt(5),
		VenueAFeeBps:    decimal.NewFromInt(5),
		VenueBFeeBps:    decimal.NewFromInt(5),
		DepthAUSD:       decimal.NewFromInt(1_000_000),
		DepthBUSD:       decimal.NewFromInt(1_000_000),
		MaxSlippage:     decimal.NewFromFloat(0.001),
		ReserveFraction: decimal.Zero,
		GasPriceCeiling: decimal.NewFromInt(100),
		MinMarginBps:    decimal.NewFromInt(25),
	}
}

func TestEstimate_IsPure(t *testing.T) {
	in := baseInput()
	out1 := Estimate(in)
	out2 := Estimate(in)
	assert.True(t, out1.NetProfitUSD.Equal(out2.NetProfitUSD))
	assert.Equal(t, out1.Recommendation, out2.Recommendation)
	assert.True(t, out1.Confidence.Equal(out2.Confidence))
}

// TestEstimate_S1HappyPath is loosely grounded in spec §8 scenario S1
// (30bps price delta, modest fees, ~10bps net margin): with a
// configMinMargin set below the realized margin, the candidate is
// admitted as WEAK_BUY.
func TestEstimate_S1HappyPath(t *testing.T) {
	in := baseInput()
	in.MinMarginBps = decimal.NewFromInt(5)
	// Deep pools keep modeled slippage (0.1 USD) under the 0.1% cap.
	in.DepthAUSD = decimal.NewFromInt(1_000_000_000)
	in.DepthBUSD = decimal.NewFromInt(1_000_000_000)
	out := Estimate(in)
	assert.True(t, out.Profitable)
	assert.Equal(t, domain.RecommendationWeakBuy, out.Recommendation)
	assert.InDelta(t, 10.0, out.MarginBps.InexactFloat64(), 1.0)
}

func TestEstimate_BoundaryAtExactMinMargin(t *testing.T) {
	in := baseInput()
	// Engineer a net margin of exactly 25 bps by zeroing all costs except
	// a crafted price delta.
	in.VenueAFeeBps = decimal.Zero
	in.VenueBFeeBps = decimal.Zero
	in.ProviderFeeBps = decimal.Zero
	in.GasPriceNative = decimal.Zero
	in.ReserveFraction = decimal.Zero
	in.DepthAUSD = decimal.Zero // no depth term -> zero modeled slippage
	in.DepthBUSD = decimal.Zero
	in.PriceDelta = decimal.NewFromFloat(0.0025) // 25 bps exactly

	out := Estimate(in)
	assert.True(t, out.MarginBps.Equal(decimal.NewFromInt(25)))
	assert.True(t, out.Profitable, "exactly 25 bps must be admitted per spec §8 property 11")
}

func TestEstimate_BoundaryJustBelowMinMargin(t *testing.T) {
	in := baseInput()
	in.VenueAFeeBps = decimal.Zero
	in.VenueBFeeBps = decimal.Zero
	in.ProviderFeeBps = decimal.Zero
	in.GasPriceNative = decimal.Zero
	in.ReserveFraction = decimal.Zero
	in.DepthAUSD = decimal.NewFromInt(1_000_000_000)
	in.DepthBUSD = decimal.NewFromInt(1_000_000_000)
	in.PriceDelta = decimal.NewFromFloat(0.002499) // 24.99 bps

	out := Estimate(in)
	assert.False(t, out.Profitable, "24.99 bps must be rejected per spec §8 property 11")
}

func TestEstimate_ConfidencePenalizedByThinDepth(t *testing.T) {
	in := baseInput()
	in.DepthAUSD = decimal.NewFromInt(1000) // far below 10x trade size
	in.DepthBUSD = decimal.NewFromInt(1000)
	out := Estimate(in)
	assert.True(t, out.Confidence.LessThan(decimal.NewFromInt(1)))
}

func TestEstimate_ConfidenceFloor(t *testing.T) {
	in := baseInput()
	in.DepthAUSD = decimal.NewFromInt(1)
	in.DepthBUSD = decimal.NewFromInt(1)
	in.GasPriceNative = decimal.NewFromInt(1000)
	in.PriceDelta = decimal.NewFromFloat(0.0001)
	out := Estimate(in)
	assert.True(t, out.Confidence.GreaterThanOrEqual(decimal.NewFromFloat(0.1)))
}

func TestEstimate_S2EconomicCollapse(t *testing.T) {
	in := baseInput()
	in.PriceDelta = decimal.NewFromFloat(0.0005) // venue moved, delta collapsed
	out := Estimate(in)
	assert.False(t, out.Profitable)
	assert.Equal(t, domain.RecommendationPass, out.Recommendation)
}
