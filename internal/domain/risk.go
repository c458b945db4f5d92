package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// BreakerState mirrors internal/breaker.State but is re-declared here so
// domain stays free of an import on the breaker package; the Budget and
// ProviderHealth records below are plain data owned by C9/C1 respectively.
type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half_open"
)

// ProviderHealth is the per-information-provider health record C1 owns
// (spec §3). Weight is multiplicatively adjusted: ×0.8 on failure (floor
// 0.1), ×1.1 on success (ceil 2.0); reset to 1.0 on recovery.
type ProviderHealth struct {
	ProviderKey       string
	Healthy           bool
	ConsecutiveErrors int
	ConsecutiveOK     int
	AvgResponseTime   time.Duration // EMA
	LastHealthCheck   time.Time
	Weight            float64
}

const (
	ProviderWeightFloor = 0.1
	ProviderWeightCeil  = 2.0
)

// Budget is the per-chain-per-UTC-day record C9 owns (spec §3). Reset at
// day rollover.
type Budget struct {
	ChainID         int64
	Day             string // YYYY-MM-DD, UTC
	GasSpentNative  decimal.Decimal
	TradesSubmitted int
	RealizedMarginSum decimal.Decimal
}

// DayKey returns the UTC calendar-day key for t, matching Budget.Day.
func DayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
