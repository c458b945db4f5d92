package flashloan

import "math/big"

// encodeFlashLoanCall produces the calldata for a borrow transaction
// targeting the in-scope callback receiver, spec §4.4 buildBorrowTx. Same
// fixed-layout packing discipline as internal/venue's encoder; a real
// deployment would use go-ethereum's accounts/abi/bind against the
// provider's generated binding.
func encodeFlashLoanCall(selector, receiver, token string, amount *big.Int, innerCallbackPayload []byte) []byte {
	buf := make([]byte, 0, 64+len(innerCallbackPayload))
	buf = append(buf, []byte(selector)...)
	buf = append(buf, ':')
	buf = append(buf, []byte(receiver)...)
	buf = append(buf, ':')
	buf = append(buf, []byte(token)...)
	buf = append(buf, ':')
	if amount != nil {
		buf = append(buf, []byte(amount.String())...)
	}
	buf = append(buf, ':')
	buf = append(buf, innerCallbackPayload...)
	return buf
}
