package blockchain

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Selectors for the handful of read-only calls this engine issues. Kept
// as raw 4-byte selectors rather than a full go-ethereum/accounts/abi
// binding since each call site needs exactly one return shape.
var (
	selectorGetReserves = []byte{0x09, 0x02, 0xf1, 0xac} // getReserves()
	selectorBalanceOf   = []byte{0x70, 0xa0, 0x82, 0x31} // balanceOf(address)
)

func encodeBalanceOf(holder string) []byte {
	data := make([]byte, 4+32)
	copy(data, selectorBalanceOf)
	copy(data[4+12:], common.HexToAddress(holder).Bytes())
	return data
}

// decodeReserves parses a Uniswap-V2-shaped getReserves() return: two
// uint112 reserves packed into the first two 32-byte words, followed by
// a uint32 blockTimestampLast in the third. Token ordering (which reserve
// is tokenIn's) is the venue config's responsibility, not decoded here.
func decodeReserves(out []byte) (reserve0, reserve1 *big.Int, blockTimestampLast uint64, err error) {
	if len(out) < 96 {
		return nil, nil, 0, fmt.Errorf("getReserves: short return (%d bytes)", len(out))
	}
	reserve0 = new(big.Int).SetBytes(out[0:32])
	reserve1 = new(big.Int).SetBytes(out[32:64])
	blockTimestampLast = new(big.Int).SetBytes(out[64:96]).Uint64()
	return reserve0, reserve1, blockTimestampLast, nil
}

// decodeBalance parses a balanceOf(address) return: a single uint256.
func decodeBalance(out []byte) (*big.Int, error) {
	if len(out) < 32 {
		return nil, fmt.Errorf("balanceOf: short return (%d bytes)", len(out))
	}
	return new(big.Int).SetBytes(out[0:32]), nil
}

