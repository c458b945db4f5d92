// Package blockchain is the real on-chain collaborator behind the Venue
// Adapter's ReserveSource, the Flash-Loan Adapter's LiquiditySource/
// WalletReserve, and the Orchestrator's ReceiptSource: a per-chain
// go-ethereum ethclient.Client wrapper plus the handful of raw eth_call
// decodes those interfaces need.
//
// Grounded near-verbatim on
// web3-wallet-backend/pkg/blockchain/ethereum.go's EthereumClient
// (Dial/GetNonce/GetGasPrice/EstimateGas/SendTransaction/
// GetTransactionReceipt), extended with the read-only Call used to back
// getReserves()/balanceOf() probes, and narrowed to one chain per client
// (a Pool indexes them by chain id) since this engine is always
// multi-chain.
package blockchain

import (
	"context"
	"fmt"
	"math/big"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/flowshift/arbengine/pkg/logger"
)

// EthereumClient wraps one chain's JSON-RPC connection.
type EthereumClient struct {
	chainID int64
	client  *ethclient.Client
	log     *logger.Logger
}

// Dial connects to rpcURL for chainID.
func Dial(chainID int64, rpcURL string, log *logger.Logger) (*EthereumClient, error) {
	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial chain %d: %w", chainID, err)
	}
	return &EthereumClient{chainID: chainID, client: client, log: log.Named("ethereum")}, nil
}

func (c *EthereumClient) ChainID() int64 { return c.chainID }

// GetNonce retrieves the pending nonce of an address.
func (c *EthereumClient) GetNonce(ctx context.Context, address string) (uint64, error) {
	nonce, err := c.client.PendingNonceAt(ctx, common.HexToAddress(address))
	if err != nil {
		return 0, fmt.Errorf("get nonce: %w", err)
	}
	return nonce, nil
}

// GetGasPrice retrieves the network-suggested gas price.
func (c *EthereumClient) GetGasPrice(ctx context.Context) (*big.Int, error) {
	gasPrice, err := c.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("get gas price: %w", err)
	}
	return gasPrice, nil
}

// EstimateGas estimates the gas a call would consume.
func (c *EthereumClient) EstimateGas(ctx context.Context, from, to string, value *big.Int, data []byte) (uint64, error) {
	toAddr := common.HexToAddress(to)
	gas, err := c.client.EstimateGas(ctx, ethereum.CallMsg{
		From:  common.HexToAddress(from),
		To:    &toAddr,
		Value: value,
		Data:  data,
	})
	if err != nil {
		return 0, fmt.Errorf("estimate gas: %w", err)
	}
	return gas, nil
}

// SendTransaction broadcasts an already-signed transaction. Signing
// itself is out of this engine's scope (persisted credentials management
// is an external collaborator's concern); tx arrives pre-signed.
func (c *EthereumClient) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	if err := c.client.SendTransaction(ctx, tx); err != nil {
		return fmt.Errorf("send transaction: %w", err)
	}
	return nil
}

// GetTransactionReceipt retrieves a transaction's receipt, or
// ethereum.NotFound while it is still pending.
func (c *EthereumClient) GetTransactionReceipt(ctx context.Context, hash string) (*types.Receipt, error) {
	receipt, err := c.client.TransactionReceipt(ctx, common.HexToHash(hash))
	if err != nil {
		return nil, fmt.Errorf("get transaction receipt: %w", err)
	}
	return receipt, nil
}

// NativeBalance retrieves address's native-coin balance.
func (c *EthereumClient) NativeBalance(ctx context.Context, address string) (*big.Int, error) {
	balance, err := c.client.BalanceAt(ctx, common.HexToAddress(address), nil)
	if err != nil {
		return nil, fmt.Errorf("get native balance: %w", err)
	}
	return balance, nil
}

// Call performs a read-only contract call, the primitive the getReserves
// and balanceOf probes are built on.
func (c *EthereumClient) Call(ctx context.Context, to string, data []byte) ([]byte, error) {
	toAddr := common.HexToAddress(to)
	out, err := c.client.CallContract(ctx, ethereum.CallMsg{To: &toAddr, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", to, err)
	}
	return out, nil
}

func (c *EthereumClient) Close() { c.client.Close() }

// Pool indexes a connected EthereumClient per chain, spec §6 chains[].
type Pool struct {
	clients map[int64]*EthereumClient
}

func NewPool() *Pool { return &Pool{clients: make(map[int64]*EthereumClient)} }

func (p *Pool) Add(c *EthereumClient) { p.clients[c.ChainID()] = c }

func (p *Pool) Get(chainID int64) (*EthereumClient, bool) {
	c, ok := p.clients[chainID]
	return c, ok
}

// ChainIDs lists every chain a client is connected for.
func (p *Pool) ChainIDs() []int64 {
	ids := make([]int64, 0, len(p.clients))
	for id := range p.clients {
		ids = append(ids, id)
	}
	return ids
}

func (p *Pool) CloseAll() {
	for _, c := range p.clients {
		c.Close()
	}
}
