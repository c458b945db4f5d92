package domain

import (
	"math/big"
	"time"

	"github.com/shopspring/decimal"
)

// PricePoint is a transient, append-only price observation for a token,
// owned by the Price Oracle (C2) and evicted by age.
type PricePoint struct {
	TokenKey      TokenKey
	UnitPriceUSD  decimal.Decimal
	Volume24hUSD  decimal.Decimal
	Change24hPct  decimal.Decimal
	ProviderKey   string
	ObservedAt    time.Time // monotonic acceptance timestamp, see §5 ordering guarantees
}

// Age returns how old the point is relative to now.
func (p PricePoint) Age(now time.Time) time.Duration {
	return now.Sub(p.ObservedAt)
}

// VenueQuote is a transient, age-bounded on-chain quote cached by C2.
type VenueQuote struct {
	ChainID      int64
	VenueKey     string
	TokenIn      string
	TokenOut     string
	AmountIn     *big.Int
	AmountOut    *big.Int
	BlockHeight  uint64
	ObservedAt   time.Time
}

// Age returns how old the quote is relative to now.
func (q VenueQuote) Age(now time.Time) time.Duration {
	return now.Sub(q.ObservedAt)
}
