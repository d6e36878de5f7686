package order

import "errors"

var (
	ErrInvalidOrder   = errors.New("invalid order")
	ErrAssetMismatch  = errors.New("asset mismatch")
	ErrAmountMismatch = errors.New("amount mismatch")
)
