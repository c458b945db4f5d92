// Package domain holds the static and transient entities shared across the
// engine's components: chains, tokens, venues, providers, and the
// opportunity/execution lifecycle records that flow between them.
package domain

import "time"

// Chain is a static, immutable-after-startup descriptor of an enabled
// EVM-compatible network.
type Chain struct {
	ID               int64
	Name             string
	NativeSymbol     string
	NativeDecimals   uint8
	ExpectedBlockTime time.Duration
	RPCURL           string
	FlashLoanProviderKeys []string
	VenueKeys        []string
	TokenKeys        []string
}

// Token is a per-chain, immutable descriptor of an ERC-20-like asset.
type Token struct {
	ChainID  int64
	Symbol   string
	Address  string
	Decimals uint8
}

// Key returns the (chain, symbol) identity used to index Tokens.
func (t Token) Key() TokenKey {
	return TokenKey{ChainID: t.ChainID, Symbol: t.Symbol}
}

// TokenKey identifies a Token within the registry.
type TokenKey struct {
	ChainID int64
	Symbol  string
}

// VenueKind enumerates the closed set of supported exchange adapter
// variants (see internal/venue for the tagged-union dispatch).
type VenueKind string

const (
	VenueKindUniswapV2 VenueKind = "uniswap_v2"
	VenueKindUniswapV3 VenueKind = "uniswap_v3"
	VenueKindCurve     VenueKind = "curve"
	VenueKindBalancer  VenueKind = "balancer"
)

// Venue is a static, immutable descriptor of an exchange bound to a chain.
type Venue struct {
	ChainID        int64
	Key            string
	Kind           VenueKind
	RouterAddress  string
	FactoryAddress string
	FeeBasisPoints int64
}

// ProviderKind enumerates the closed set of supported flash-loan lending
// protocol adapter variants (see internal/flashloan).
type ProviderKind string

const (
	ProviderKindAave     ProviderKind = "aave_v3"
	ProviderKindBalancer ProviderKind = "balancer_vault"
	ProviderKindDYDX     ProviderKind = "dydx"
)

// FlashLoanProvider is a static, immutable descriptor of a lending protocol
// deployment bound to a chain.
type FlashLoanProvider struct {
	ChainID         int64
	Key             string
	Kind            ProviderKind
	ContractAddress string
	FeeBasisPoints  int64
	MaxBorrowFraction float64 // conservative fraction of on-hand liquidity, default 0.80
	SupportedTokens map[string]bool
	GasLimitHint    uint64
}

// Pair is a static, config-declared watched token pair bound to a chain
// (spec §6 pairs[]): the two token symbols, the venues the Scanner may
// cross, the minimum 24h volume floor, a pair-specific minimum trade size,
// and the flash-loan providers eligible to fund it.
type Pair struct {
	ChainID          int64
	TokenA           string
	TokenB           string
	VenueKeys        []string
	ProviderKeys     []string
	MinVolume24hUSD  float64
	MinTradeSizeUSD  float64
}
