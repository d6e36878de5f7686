package storage

import (
	"fmt"
	"math/big"

	"github.com/uhyunpark/orderswap/pkg/app/core/order"
)

func encodeStatus(s order.Status) []byte { return []byte{byte(s)} }

func decodeStatus(b []byte) (order.Status, error) {
	if len(b) != 1 || order.Status(b[0]) > order.Filled {
		return order.Active, fmt.Errorf("malformed status value %x", b)
	}
	return order.Status(b[0]), nil
}

func encodeBig(v *big.Int) []byte { return []byte(v.String()) }

func decodeBig(b []byte) (*big.Int, error) {
	v, ok := new(big.Int).SetString(string(b), 10)
	if !ok {
		return nil, fmt.Errorf("malformed amount %q", b)
	}
	return v, nil
}
