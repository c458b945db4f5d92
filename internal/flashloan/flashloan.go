// Package flashloan implements the Flash-Loan Provider Adapter (C4, spec
// §4.4): a uniform borrow/repay interface over a closed set of lending
// protocol variants, dispatched as a tagged union.
//
// Grounded on internal/defi/clients.go's AaveClient (LendTokens/
// BorrowTokens shape).
package flashloan

import (
	"context"
	"math/big"

	"github.com/flowshift/arbengine/internal/arberr"
	"github.com/flowshift/arbengine/internal/domain"
)

// TxRequest is the transaction the orchestrator (C8) submits; left as a
// byte payload plus target address here, matching the abstraction level
// spec §4.4 specifies ("produces the transaction").
type TxRequest struct {
	To       string
	Data     []byte
	GasLimit uint64
}

// LiquiditySource reports the provider's on-hand liquidity for a token,
// backing maxBorrow's conservative-fraction computation.
type LiquiditySource interface {
	Liquidity(ctx context.Context, providerKey, token string) (*big.Int, error)
}

// WalletReserve reports the operator wallet's native-gas balance, backing
// isHealthy's minimum-reserve check.
type WalletReserve interface {
	NativeBalance(ctx context.Context, chainID int64) (*big.Int, error)
}

// Adapter is the single trait every flash-loan provider kind implements,
// spec §4.4.
type Adapter interface {
	Kind() domain.ProviderKind
	Key() string
	FeeBasisPoints() int64
	MaxBorrow(ctx context.Context, token string) (*big.Int, error)
	BuildBorrowTx(ctx context.Context, receiver, token string, amount *big.Int, innerCallbackPayload []byte) (TxRequest, error)
	IsHealthy(ctx context.Context) (bool, error)
}

const minNativeGasReserveWei = 50_000_000_000_000_000 // 0.05 native units

type baseAdapter struct {
	provider domain.FlashLoanProvider
	liq      LiquiditySource
	wallet   WalletReserve
}

func (a *baseAdapter) Key() string           { return a.provider.Key }
func (a *baseAdapter) FeeBasisPoints() int64 { return a.provider.FeeBasisPoints }

func (a *baseAdapter) MaxBorrow(ctx context.Context, token string) (*big.Int, error) {
	if !a.provider.SupportedTokens[token] {
		return nil, arberr.New(arberr.UnsupportedToken, a.provider.Key, nil)
	}
	onHand, err := a.liq.Liquidity(ctx, a.provider.Key, token)
	if err != nil {
		return nil, arberr.New(arberr.BuildFailure, a.provider.Key, err)
	}
	fraction := a.provider.MaxBorrowFraction
	if fraction <= 0 {
		fraction = 0.80
	}
	// fixed-point fraction scaling: onHand * floor(fraction*1e4) / 1e4,
	// avoiding a float64 multiply on the big.Int amount per spec §9
	// Precision.
	bps := big.NewInt(int64(fraction * 10000))
	scaled := new(big.Int).Mul(onHand, bps)
	scaled.Div(scaled, big.NewInt(10000))
	return scaled, nil
}

func (a *baseAdapter) IsHealthy(ctx context.Context) (bool, error) {
	balance, err := a.wallet.NativeBalance(ctx, a.provider.ChainID)
	if err != nil {
		return false, arberr.New(arberr.ProviderUnhealthy, a.provider.Key, err)
	}
	return balance.Cmp(big.NewInt(minNativeGasReserveWei)) >= 0, nil
}

// aaveAdapter implements Adapter for Aave-v3-shaped pools.
type aaveAdapter struct{ baseAdapter }

func NewAaveAdapter(p domain.FlashLoanProvider, liq LiquiditySource, wallet WalletReserve) Adapter {
	return &aaveAdapter{baseAdapter{provider: p, liq: liq, wallet: wallet}}
}

func (a *aaveAdapter) Kind() domain.ProviderKind { return domain.ProviderKindAave }

func (a *aaveAdapter) BuildBorrowTx(ctx context.Context, receiver, token string, amount *big.Int, innerCallbackPayload []byte) (TxRequest, error) {
	if !a.provider.SupportedTokens[token] {
		return TxRequest{}, arberr.New(arberr.UnsupportedToken, a.provider.Key, nil)
	}
	healthy, err := a.IsHealthy(ctx)
	if err != nil || !healthy {
		return TxRequest{}, arberr.New(arberr.ProviderUnhealthy, a.provider.Key, err)
	}
	data := encodeFlashLoanCall("aave.flashLoanSimple", receiver, token, amount, innerCallbackPayload)
	return TxRequest{To: a.provider.ContractAddress, Data: data, GasLimit: a.provider.GasLimitHint}, nil
}

// balancerAdapter implements Adapter for Balancer-Vault-shaped flash
// loans (zero protocol fee is typical, but FeeBasisPoints is still
// config-driven to stay general).
type balancerAdapter struct{ baseAdapter }

func NewBalancerAdapter(p domain.FlashLoanProvider, liq LiquiditySource, wallet WalletReserve) Adapter {
	return &balancerAdapter{baseAdapter{provider: p, liq: liq, wallet: wallet}}
}

func (a *balancerAdapter) Kind() domain.ProviderKind {
	if a.provider.Kind == domain.ProviderKindDYDX {
		return domain.ProviderKindDYDX
	}
	return domain.ProviderKindBalancer
}

func (a *balancerAdapter) BuildBorrowTx(ctx context.Context, receiver, token string, amount *big.Int, innerCallbackPayload []byte) (TxRequest, error) {
	if !a.provider.SupportedTokens[token] {
		return TxRequest{}, arberr.New(arberr.UnsupportedToken, a.provider.Key, nil)
	}
	healthy, err := a.IsHealthy(ctx)
	if err != nil || !healthy {
		return TxRequest{}, arberr.New(arberr.ProviderUnhealthy, a.provider.Key, err)
	}
	selector := "balancer.flashLoan"
	if a.provider.Kind == domain.ProviderKindDYDX {
		selector = "dydx.flashLoan"
	}
	data := encodeFlashLoanCall(selector, receiver, token, amount, innerCallbackPayload)
	return TxRequest{To: a.provider.ContractAddress, Data: data, GasLimit: a.provider.GasLimitHint}, nil
}

// NewAdapter is the tagged-union constructor, the single dispatch point
// for flash-loan provider kinds, spec §9.
func NewAdapter(p domain.FlashLoanProvider, liq LiquiditySource, wallet WalletReserve) (Adapter, error) {
	switch p.Kind {
	case domain.ProviderKindAave:
		return NewAaveAdapter(p, liq, wallet), nil
	case domain.ProviderKindBalancer, domain.ProviderKindDYDX:
		// dYdX's solo-margin borrow/repay shape is close enough to
		// Balancer's vault flash loan (no collateral, single-tx
		// repayment) to share an implementation at this abstraction
		// level; a protocol-specific encodeFlashLoanCall selector keeps
		// the produced calldata distinguishable.
		return NewBalancerAdapter(p, liq, wallet), nil
	default:
		return nil, arberr.New(arberr.UnsupportedToken, p.Key, nil)
	}
}
