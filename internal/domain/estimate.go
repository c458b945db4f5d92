package domain

import "github.com/shopspring/decimal"

// Recommendation is the estimator's verdict on a candidate opportunity.
type Recommendation string

const (
	RecommendationStrongBuy Recommendation = "STRONG_BUY"
	RecommendationBuy       Recommendation = "BUY"
	RecommendationWeakBuy   Recommendation = "WEAK_BUY"
	RecommendationPass      Recommendation = "PASS"
)

// EstimatorInput is the pure-function input to the Profit Estimator (C5),
// spec §4.5. All monetary quantities are decimal, denominated in a common
// reference currency (USD); the estimator scales PriceDelta by
// TradeSizeUSD.
type EstimatorInput struct {
	PriceDelta        decimal.Decimal // relative price difference between venues
	TradeSizeUSD      decimal.Decimal
	GasUnitsHint      decimal.Decimal
	GasPriceNative    decimal.Decimal
	NativePriceUSD    decimal.Decimal
	ProviderFeeBps    decimal.Decimal
	VenueAFeeBps      decimal.Decimal
	VenueBFeeBps      decimal.Decimal
	DepthAUSD         decimal.Decimal
	DepthBUSD         decimal.Decimal
	MaxSlippage       decimal.Decimal // fraction, e.g. 0.001 = 0.1%
	ReserveFraction   decimal.Decimal
	GasPriceCeiling   decimal.Decimal // native units; above this, confidence is penalized
	MinMarginBps      decimal.Decimal
}

// EstimatorOutput is the embedded, immutable-once-produced result of
// evaluating an EstimatorInput, spec §4.5.
type EstimatorOutput struct {
	GrossProfitUSD  decimal.Decimal
	GasCostUSD      decimal.Decimal
	LoanFeeUSD      decimal.Decimal
	VenueFeesUSD    decimal.Decimal
	SlippageUSD     decimal.Decimal
	ReserveBufferUSD decimal.Decimal
	NetProfitUSD    decimal.Decimal
	MarginBps       decimal.Decimal
	Profitable      bool
	Confidence      decimal.Decimal
	Recommendation  Recommendation
}
