package params

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("FEE_BPS", "250")
	t.Setenv("FEE_RECIPIENT", "0x2743eEC46576f76f47334569074242F3D9a90B44")
	t.Setenv("CHAIN_ID", "137")
	t.Setenv("P2P_BOOTSTRAP", "/ip4/10.0.0.1/tcp/4001/p2p/a, ,/ip4/10.0.0.2/tcp/4001/p2p/b")
	t.Setenv("ENABLE_P2P", "true")

	cfg, err := LoadFromEnv(t.TempDir() + "/missing.env")
	require.NoError(t, err)

	require.Equal(t, int64(250), cfg.Engine.FeeBps)
	require.Equal(t, common.HexToAddress("0x2743eEC46576f76f47334569074242F3D9a90B44"), cfg.Engine.FeeRecipient)
	require.Equal(t, 0, cfg.Engine.ChainID.Cmp(big.NewInt(137)))
	require.Equal(t, []string{"/ip4/10.0.0.1/tcp/4001/p2p/a", "/ip4/10.0.0.2/tcp/4001/p2p/b"}, cfg.Node.P2PBootstrap)
	require.True(t, cfg.Node.EnableP2P)
}

func TestLoadFromEnvRejectsBadValues(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"fee not a number", "FEE_BPS", "abc"},
		{"fee above 100%", "FEE_BPS", "10001"},
		{"bad recipient", "FEE_RECIPIENT", "0x1234"},
		{"zero chain id", "CHAIN_ID", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("FEE_RECIPIENT", "0x2743eEC46576f76f47334569074242F3D9a90B44")
			t.Setenv(tt.key, tt.val)
			_, err := LoadFromEnv(t.TempDir() + "/missing.env")
			require.Error(t, err)
		})
	}
}

func TestValidateRequiresRecipientForNonZeroFee(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	cfg.Engine.FeeRecipient = common.Address{}
	require.Error(t, cfg.Validate())

	cfg.Engine.FeeBps = 0
	require.NoError(t, cfg.Validate())
}
