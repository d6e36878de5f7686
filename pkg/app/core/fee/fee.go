// Package fee splits a fungible payment into protocol fee and net proceeds.
package fee

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Denominator is 100% in basis points.
const Denominator = 10000

var ErrFeeConfigurationInvalid = errors.New("fee configuration invalid")

var bigDenominator = big.NewInt(Denominator)

// Split is the result of applying a fee rate to an amount. Fee + Net == amount.
type Split struct {
	Fee *big.Int
	Net *big.Int
}

// Compute returns floor(amount*bps/10000) and the remainder. Rates outside [0, 10000]
// are rejected, never clamped.
func Compute(amount *big.Int, bps int64) (Split, error) {
	if bps < 0 || bps > Denominator {
		return Split{}, fmt.Errorf("%w: bps %d outside [0, %d]", ErrFeeConfigurationInvalid, bps, Denominator)
	}
	if amount == nil || amount.Sign() < 0 {
		return Split{}, fmt.Errorf("%w: amount must be non-negative", ErrFeeConfigurationInvalid)
	}

	f := new(big.Int).Mul(amount, big.NewInt(bps))
	f.Quo(f, bigDenominator)
	return Split{Fee: f, Net: new(big.Int).Sub(amount, f)}, nil
}

// ValidateConfig checks a fee rate and recipient pair before any settlement uses it.
func ValidateConfig(bps int64, recipient common.Address) error {
	if bps < 0 || bps > Denominator {
		return fmt.Errorf("%w: bps %d outside [0, %d]", ErrFeeConfigurationInvalid, bps, Denominator)
	}
	if bps > 0 && recipient == (common.Address{}) {
		return fmt.Errorf("%w: non-zero fee with zero recipient", ErrFeeConfigurationInvalid)
	}
	return nil
}

// Percent renders bps as a percentage, e.g. 250 -> "2.5".
func Percent(bps int64) string {
	return decimal.New(bps, -2).String()
}
