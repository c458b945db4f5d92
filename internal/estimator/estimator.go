// Package estimator implements the Profit Estimator (C5, spec §4.5): a
// pure function from an EstimatorInput to an EstimatorOutput. Equal
// inputs always yield equal outputs (spec §8 property 8); all arithmetic
// uses decimal.Decimal, never float64, so the profitable predicate is
// reproducible bit-for-bit (spec §9 Precision).
//
// Grounded on internal/ai-arbitrage/components.go's ladder-style
// calculateRiskScore/calculateConfidenceScore pattern, with the
// arithmetic redone in decimal.Decimal instead of that file's float64 —
// see DESIGN.md for why.
package estimator

import (
	"github.com/flowshift/arbengine/internal/domain"
	"github.com/shopspring/decimal"
)

var (
	tenK = decimal.NewFromInt(10000)
	half = decimal.NewFromFloat(0.5)
	zero = decimal.Zero

	confidenceFloor = decimal.NewFromFloat(0.1)

	marginStrongBuyBps = decimal.NewFromInt(100) // 1%
	marginBuyBps       = decimal.NewFromInt(50)  // 0.5%
	lowMarginBps       = decimal.NewFromInt(50)  // <0.5% triggers confidence penalty
)

// Estimate evaluates in and returns the full estimator output, spec §4.5.
func Estimate(in domain.EstimatorInput) domain.EstimatorOutput {
	grossProfit := in.PriceDelta.Mul(in.TradeSizeUSD)

	gasCost := in.GasUnitsHint.Mul(in.GasPriceNative).Mul(in.NativePriceUSD)

	loanFee := in.TradeSizeUSD.Mul(in.ProviderFeeBps).Div(tenK)

	venueFees := in.TradeSizeUSD.Mul(in.VenueAFeeBps).Div(tenK).
		Add(in.TradeSizeUSD.Mul(in.VenueBFeeBps).Div(tenK))

	slippage := computeSlippage(in)

	reserveBuffer := in.TradeSizeUSD.Mul(in.ReserveFraction)

	netProfit := grossProfit.Sub(gasCost).Sub(loanFee).Sub(venueFees).Sub(slippage).Sub(reserveBuffer)

	var marginBps decimal.Decimal
	if in.TradeSizeUSD.IsZero() {
		marginBps = zero
	} else {
		marginBps = netProfit.Div(in.TradeSizeUSD).Mul(tenK)
	}

	minMargin := in.MinMarginBps
	if minMargin.IsZero() {
		minMargin = decimal.NewFromInt(25)
	}
	profitable := marginBps.GreaterThanOrEqual(minMargin)

	confidence := computeConfidence(in, marginBps)

	recommendation := recommend(marginBps, minMargin)

	return domain.EstimatorOutput{
		GrossProfitUSD:   grossProfit,
		GasCostUSD:       gasCost,
		LoanFeeUSD:       loanFee,
		VenueFeesUSD:     venueFees,
		SlippageUSD:      slippage,
		ReserveBufferUSD: reserveBuffer,
		NetProfitUSD:     netProfit,
		MarginBps:        marginBps,
		Profitable:       profitable,
		Confidence:       confidence,
		Recommendation:   recommendation,
	}
}

// computeSlippage implements spec §4.5:
// min(tradeSize/depthA·k + tradeSize/depthB·k, maxSlippage) × tradeSize, k=0.5
func computeSlippage(in domain.EstimatorInput) decimal.Decimal {
	var fromA, fromB decimal.Decimal
	if in.DepthAUSD.IsPositive() {
		fromA = in.TradeSizeUSD.Div(in.DepthAUSD).Mul(half)
	}
	if in.DepthBUSD.IsPositive() {
		fromB = in.TradeSizeUSD.Div(in.DepthBUSD).Mul(half)
	}
	ratio := fromA.Add(fromB)
	cap := in.MaxSlippage
	if cap.IsZero() {
		cap = decimal.NewFromFloat(0.001)
	}
	if ratio.GreaterThan(cap) {
		ratio = cap
	}
	return ratio.Mul(in.TradeSizeUSD)
}

// computeConfidence implements spec §4.5: baseline 1.0, ×0.8 if gasPrice
// exceeds ceiling, ×0.6 if min(depth) < 10×tradeSize, ×0.7 if margin <
// 0.5%; floor 0.1.
func computeConfidence(in domain.EstimatorInput, marginBps decimal.Decimal) decimal.Decimal {
	c := decimal.NewFromInt(1)

	if in.GasPriceCeiling.IsPositive() && in.GasPriceNative.GreaterThan(in.GasPriceCeiling) {
		c = c.Mul(decimal.NewFromFloat(0.8))
	}

	minDepth := in.DepthAUSD
	if in.DepthBUSD.LessThan(minDepth) {
		minDepth = in.DepthBUSD
	}
	if minDepth.LessThan(in.TradeSizeUSD.Mul(decimal.NewFromInt(10))) {
		c = c.Mul(decimal.NewFromFloat(0.6))
	}

	if marginBps.LessThan(lowMarginBps) {
		c = c.Mul(decimal.NewFromFloat(0.7))
	}

	if c.LessThan(confidenceFloor) {
		c = confidenceFloor
	}
	return c
}

// recommend implements spec §4.5's recommendation tiers.
func recommend(marginBps, minMarginBps decimal.Decimal) domain.Recommendation {
	switch {
	case marginBps.GreaterThanOrEqual(marginStrongBuyBps):
		return domain.RecommendationStrongBuy
	case marginBps.GreaterThanOrEqual(marginBuyBps):
		return domain.RecommendationBuy
	case marginBps.GreaterThanOrEqual(minMarginBps):
		return domain.RecommendationWeakBuy
	default:
		return domain.RecommendationPass
	}
}
