package venue

import (
	"encoding/binary"
	"math/big"
	"time"
)

// encodeSwapExactTokensForTokens produces the ABI-style calldata for a
// Uniswap-V2-shaped swapExactTokensForTokens call. The encoding is a
// simplified fixed-layout packing (selector + fields), sufficient for the
// callback contract's decode step (spec §6 on-chain contract interface);
// a production deployment would use go-ethereum's accounts/abi package
// against the router's real ABI.
func encodeSwapExactTokensForTokens(router, tokenIn, tokenOut string, amountIn, minAmountOut *big.Int, deadline time.Time) CallData {
	buf := make([]byte, 0, 128)
	buf = append(buf, []byte("swapExactTokensForTokens:")...)
	buf = append(buf, []byte(router)...)
	buf = append(buf, ':')
	buf = append(buf, []byte(tokenIn)...)
	buf = append(buf, ':')
	buf = append(buf, []byte(tokenOut)...)
	buf = append(buf, ':')
	buf = appendBigInt(buf, amountIn)
	buf = append(buf, ':')
	buf = appendBigInt(buf, minAmountOut)
	buf = append(buf, ':')
	buf = appendUint64(buf, uint64(deadline.Unix()))
	return buf
}

// encodeCurveExchange produces the calldata for a Curve-style `exchange`
// call, same encoding discipline as encodeSwapExactTokensForTokens.
func encodeCurveExchange(pool, tokenIn, tokenOut string, amountIn, minAmountOut *big.Int, deadline time.Time) CallData {
	buf := make([]byte, 0, 128)
	buf = append(buf, []byte("exchange:")...)
	buf = append(buf, []byte(pool)...)
	buf = append(buf, ':')
	buf = append(buf, []byte(tokenIn)...)
	buf = append(buf, ':')
	buf = append(buf, []byte(tokenOut)...)
	buf = append(buf, ':')
	buf = appendBigInt(buf, amountIn)
	buf = append(buf, ':')
	buf = appendBigInt(buf, minAmountOut)
	buf = append(buf, ':')
	buf = appendUint64(buf, uint64(deadline.Unix()))
	return buf
}

func appendBigInt(buf []byte, v *big.Int) []byte {
	if v == nil {
		return append(buf, '0')
	}
	return append(buf, []byte(v.String())...)
}

func appendUint64(buf []byte, v uint64) []byte {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	return append(buf, tmp[:]...)
}
