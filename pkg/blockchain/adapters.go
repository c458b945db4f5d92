package blockchain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/core/types"

	"github.com/flowshift/arbengine/internal/flashloan"
)

// Caller is the read-only primitive PairReserves and TokenBalances are
// built on; EthereumClient.Call satisfies it. Kept as an interface so
// the ABI-decode logic is unit-testable without a live RPC.
type Caller interface {
	Call(ctx context.Context, to string, data []byte) ([]byte, error)
}

// PairReserves implements internal/venue.ReserveSource over a live chain,
// spec §4.3's "a real deployment backs this with go-ethereum's
// ethclient.Client reading the pair contract".
type PairReserves struct {
	caller    Caller
	pairAddr  map[string]string // venue key -> pair contract address
	token0Of  map[string]string // venue key -> the token address getReserves()'s first slot belongs to
}

func NewPairReserves(caller Caller, pairAddr, token0Of map[string]string) *PairReserves {
	return &PairReserves{caller: caller, pairAddr: pairAddr, token0Of: token0Of}
}

func (r *PairReserves) Reserves(ctx context.Context, venueKey, tokenIn, tokenOut string) (*big.Int, *big.Int, uint64, error) {
	pair, ok := r.pairAddr[venueKey]
	if !ok {
		return nil, nil, 0, fmt.Errorf("no pair contract configured for venue %q", venueKey)
	}
	out, err := r.caller.Call(ctx, pair, append([]byte{}, selectorGetReserves...))
	if err != nil {
		return nil, nil, 0, err
	}
	reserve0, reserve1, blockTimestampLast, err := decodeReserves(out)
	if err != nil {
		return nil, nil, 0, err
	}
	if r.token0Of[venueKey] == tokenIn {
		return reserve0, reserve1, blockTimestampLast, nil
	}
	return reserve1, reserve0, blockTimestampLast, nil
}

// TokenBalances implements internal/flashloan.LiquiditySource (a
// provider's on-hand token balance) via ERC20 balanceOf probes.
type TokenBalances struct {
	caller      Caller
	tokenAddr   map[string]string // token symbol -> ERC20 contract address
	holderAddr  map[string]string // provider key -> holder/pool contract address
}

func NewTokenBalances(caller Caller, tokenAddr, holderAddr map[string]string) *TokenBalances {
	return &TokenBalances{caller: caller, tokenAddr: tokenAddr, holderAddr: holderAddr}
}

func (b *TokenBalances) Liquidity(ctx context.Context, providerKey, token string) (*big.Int, error) {
	tokenAddr, ok := b.tokenAddr[token]
	if !ok {
		return nil, fmt.Errorf("no contract address configured for token %q", token)
	}
	holder, ok := b.holderAddr[providerKey]
	if !ok {
		return nil, fmt.Errorf("no holder address configured for provider %q", providerKey)
	}
	out, err := b.caller.Call(ctx, tokenAddr, encodeBalanceOf(holder))
	if err != nil {
		return nil, err
	}
	return decodeBalance(out)
}

// WalletBalance implements internal/flashloan.WalletReserve: the
// operator wallet's native-gas balance per chain.
type WalletBalance struct {
	pool       *Pool
	walletAddr string
}

func NewWalletBalance(pool *Pool, walletAddr string) *WalletBalance {
	return &WalletBalance{pool: pool, walletAddr: walletAddr}
}

func (w *WalletBalance) NativeBalance(ctx context.Context, chainID int64) (*big.Int, error) {
	client, ok := w.pool.Get(chainID)
	if !ok {
		return nil, fmt.Errorf("no client connected for chain %d", chainID)
	}
	return client.NativeBalance(ctx, w.walletAddr)
}

// Signer produces a signed transaction from a built request. Wallet/key
// management is deliberately external to this engine (spec §1); Signer is
// the seam a real key-management collaborator plugs into.
type Signer interface {
	Sign(ctx context.Context, chainID int64, to string, data []byte, gasLimit uint64, nonce uint64, gasPrice *big.Int) (*types.Transaction, error)
}

// Relay implements internal/orchestrator.TxSubmitter and ReceiptSource
// over a live Pool: it resolves nonce/gas price, asks the Signer for a
// signed transaction, and broadcasts it.
type Relay struct {
	pool   *Pool
	signer Signer
	from   string
}

func NewRelay(pool *Pool, signer Signer, from string) *Relay {
	return &Relay{pool: pool, signer: signer, from: from}
}

// Submit matches internal/orchestrator.TxSubmitter.
func (r *Relay) Submit(ctx context.Context, chainID int64, tx flashloan.TxRequest) (string, error) {
	client, ok := r.pool.Get(chainID)
	if !ok {
		return "", fmt.Errorf("no client connected for chain %d", chainID)
	}
	nonce, err := client.GetNonce(ctx, r.from)
	if err != nil {
		return "", err
	}
	gasPrice, err := client.GetGasPrice(ctx)
	if err != nil {
		return "", err
	}
	signed, err := r.signer.Sign(ctx, chainID, tx.To, tx.Data, tx.GasLimit, nonce, gasPrice)
	if err != nil {
		return "", fmt.Errorf("sign transaction: %w", err)
	}
	if err := client.SendTransaction(ctx, signed); err != nil {
		return "", err
	}
	return signed.Hash().Hex(), nil
}

// Receipt matches internal/orchestrator.ReceiptSource.
func (r *Relay) Receipt(ctx context.Context, chainID int64, txHash string) (included bool, success bool, gasUsed uint64, err error) {
	client, ok := r.pool.Get(chainID)
	if !ok {
		return false, false, 0, fmt.Errorf("no client connected for chain %d", chainID)
	}
	receipt, err := client.GetTransactionReceipt(ctx, txHash)
	if err != nil {
		// Not found / still pending is not itself an error to the caller;
		// the orchestrator treats "not included yet" as included=false.
		return false, false, 0, nil
	}
	return true, receipt.Status == types.ReceiptStatusSuccessful, receipt.GasUsed, nil
}
