package fee

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func pow10(n int64) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(n), nil)
}

func TestCompute(t *testing.T) {
	tests := []struct {
		name    string
		amount  *big.Int
		bps     int64
		wantFee *big.Int
	}{
		{"10e18 at 5%", new(big.Int).Mul(big.NewInt(10), pow10(18)), 500, new(big.Int).Mul(big.NewInt(5), pow10(17))},
		{"1e19 at 2.5%", pow10(19), 250, new(big.Int).Mul(big.NewInt(25), pow10(16))},
		{"zero rate", big.NewInt(12345), 0, big.NewInt(0)},
		{"full rate", big.NewInt(12345), 10000, big.NewInt(12345)},
		{"rounds down", big.NewInt(199), 50, big.NewInt(0)},
		{"rounds down 2", big.NewInt(201), 50, big.NewInt(1)},
		{"zero amount", big.NewInt(0), 500, big.NewInt(0)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Compute(tt.amount, tt.bps)
			require.NoError(t, err)
			require.Equal(t, 0, s.Fee.Cmp(tt.wantFee), "fee = %s, want %s", s.Fee, tt.wantFee)
			require.Equal(t, 0, new(big.Int).Add(s.Fee, s.Net).Cmp(tt.amount), "fee + net must equal amount")
			require.True(t, s.Fee.Cmp(tt.amount) <= 0)
		})
	}
}

func TestComputeDoesNotMutateAmount(t *testing.T) {
	amount := big.NewInt(1000)
	_, err := Compute(amount, 500)
	require.NoError(t, err)
	require.Equal(t, int64(1000), amount.Int64())
}

func TestComputeRejectsBadInput(t *testing.T) {
	_, err := Compute(big.NewInt(1), -1)
	require.ErrorIs(t, err, ErrFeeConfigurationInvalid)

	_, err = Compute(big.NewInt(1), 10001)
	require.ErrorIs(t, err, ErrFeeConfigurationInvalid)

	_, err = Compute(big.NewInt(-1), 10)
	require.ErrorIs(t, err, ErrFeeConfigurationInvalid)

	_, err = Compute(nil, 10)
	require.ErrorIs(t, err, ErrFeeConfigurationInvalid)
}

func TestValidateConfig(t *testing.T) {
	recipient := common.HexToAddress("0xfee")
	require.NoError(t, ValidateConfig(0, common.Address{}))
	require.NoError(t, ValidateConfig(500, recipient))
	require.ErrorIs(t, ValidateConfig(500, common.Address{}), ErrFeeConfigurationInvalid)
	require.ErrorIs(t, ValidateConfig(10001, recipient), ErrFeeConfigurationInvalid)
}

func TestPercent(t *testing.T) {
	require.Equal(t, "2.5", Percent(250))
	require.Equal(t, "5", Percent(500))
	require.Equal(t, "100", Percent(10000))
}
