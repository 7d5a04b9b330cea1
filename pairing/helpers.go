package pairing

import (
	"fmt"
	"math/big"

	"github.com/go-hap/controller/haperr"
)

func bytesToBigInt(b []byte) *big.Int {
	return new(big.Int).SetBytes(b)
}

// pairingErrorTLV turns a TLV Error tag's value into an Authentication
// error carrying the HAP error code, per spec.md §4.3 "On Error tag, fail
// with AuthenticationFailed carrying the error code."
func pairingErrorTLV(value []byte) error {
	if len(value) != 1 {
		return haperr.Auth("malformed Error tag", nil)
	}
	code := ErrorCode(value[0])
	return haperr.Auth(fmt.Sprintf("accessory returned error %s (%#02x)", code, value[0]), nil)
}
