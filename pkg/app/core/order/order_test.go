package order

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/uhyunpark/orderswap/pkg/crypto"
)

var (
	nft   = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
	token = common.HexToAddress("0xe7f1725E7734CE288F8367e1Bb143E90bb3F0512")
)

func listing(maker common.Address) *Order {
	return &Order{
		Maker:     maker,
		MakeAsset: Asset{Type: ERC721, Contract: nft, ID: big.NewInt(1), Amount: big.NewInt(1)},
		TakeAsset: Asset{Type: ERC20, Contract: token, ID: big.NewInt(0), Amount: big.NewInt(100)},
		Type:      Ask,
		Salt:      big.NewInt(1),
		Start:     100,
		End:       200,
	}
}

func TestAssetValidate(t *testing.T) {
	tests := []struct {
		name  string
		asset Asset
		ok    bool
	}{
		{"erc20", Asset{ERC20, token, big.NewInt(0), big.NewInt(5)}, true},
		{"erc721", Asset{ERC721, nft, big.NewInt(9), big.NewInt(1)}, true},
		{"erc1155", Asset{ERC1155, nft, big.NewInt(9), big.NewInt(40)}, true},
		{"erc20 with id", Asset{ERC20, token, big.NewInt(1), big.NewInt(5)}, false},
		{"erc721 amount 2", Asset{ERC721, nft, big.NewInt(9), big.NewInt(2)}, false},
		{"zero amount", Asset{ERC1155, nft, big.NewInt(9), big.NewInt(0)}, false},
		{"nil amount", Asset{ERC20, token, big.NewInt(0), nil}, false},
		{"zero contract", Asset{ERC20, common.Address{}, big.NewInt(0), big.NewInt(1)}, false},
		{"unknown type", Asset{AssetType(3), token, big.NewInt(0), big.NewInt(1)}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.asset.Validate()
			if tt.ok {
				require.NoError(t, err)
			} else {
				require.ErrorIs(t, err, ErrInvalidOrder)
			}
		})
	}
}

func TestAssetCompatible(t *testing.T) {
	a := Asset{ERC721, nft, big.NewInt(1), big.NewInt(1)}
	require.True(t, a.Compatible(Asset{ERC721, nft, big.NewInt(1), big.NewInt(1)}))
	require.False(t, a.Compatible(Asset{ERC721, nft, big.NewInt(2), big.NewInt(1)}))
	require.False(t, a.Compatible(Asset{ERC1155, nft, big.NewInt(1), big.NewInt(1)}))
	require.False(t, a.Compatible(Asset{ERC721, token, big.NewInt(1), big.NewInt(1)}))
}

func TestOrderValidate(t *testing.T) {
	maker := common.HexToAddress("0x1")
	require.NoError(t, listing(maker).Validate())

	o := listing(maker)
	o.Start, o.End = 300, 200
	require.True(t, errors.Is(o.Validate(), ErrInvalidOrder))

	o = listing(common.Address{})
	require.ErrorIs(t, o.Validate(), ErrInvalidOrder)

	o = listing(maker)
	o.Salt = nil
	require.ErrorIs(t, o.Validate(), ErrInvalidOrder)

	o = listing(maker)
	o.TakeAsset.Amount = big.NewInt(0)
	require.ErrorIs(t, o.Validate(), ErrInvalidOrder)
}

func TestOrderTimeWindowInclusive(t *testing.T) {
	o := listing(common.HexToAddress("0x1"))
	require.False(t, o.Started(99))
	require.True(t, o.Started(100))
	require.False(t, o.Expired(200))
	require.True(t, o.Expired(201))
}

func TestAllowlistAssetID(t *testing.T) {
	o := listing(common.HexToAddress("0x1"))
	require.Equal(t, 0, o.AllowlistAssetID().Cmp(big.NewInt(1)))

	o.MakeAsset, o.TakeAsset = o.TakeAsset, o.MakeAsset
	require.Equal(t, 0, o.AllowlistAssetID().Cmp(big.NewInt(1)))

	o.MakeAsset = Asset{ERC20, token, big.NewInt(0), big.NewInt(1)}
	o.TakeAsset = Asset{ERC20, nft, big.NewInt(0), big.NewInt(1)}
	require.Nil(t, o.AllowlistAssetID())
}

func TestHasherDigestIgnoresSignatureAndProof(t *testing.T) {
	h := NewHasher(crypto.DefaultDomain())
	o := listing(common.HexToAddress("0x1"))

	d1, err := h.Digest(o)
	require.NoError(t, err)

	o.Signature = []byte{1, 2, 3}
	o.MerkleProof = []common.Hash{common.HexToHash("0x01")}
	d2, err := h.Digest(o)
	require.NoError(t, err)
	require.Equal(t, d1, d2)

	o.End++
	d3, err := h.Digest(o)
	require.NoError(t, err)
	require.NotEqual(t, d1, d3)
}

func TestHasherSignAndVerify(t *testing.T) {
	h := NewHasher(crypto.DefaultDomain())
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	o := listing(key.Address())
	require.NoError(t, h.Sign(key, o))

	d, err := h.Digest(o)
	require.NoError(t, err)
	require.NoError(t, h.VerifySignature(o, d))

	other, _ := crypto.GenerateKey()
	o.Maker = other.Address()
	d, _ = h.Digest(o)
	require.ErrorIs(t, h.VerifySignature(o, d), crypto.ErrInvalidSignature)
}

func TestCloneIsDeep(t *testing.T) {
	o := listing(common.HexToAddress("0x1"))
	o.Signature = []byte{1}
	c := o.Clone()
	c.MakeAsset.ID.SetInt64(5)
	c.Salt.SetInt64(5)
	c.Signature[0] = 9
	require.Equal(t, int64(1), o.MakeAsset.ID.Int64())
	require.Equal(t, int64(1), o.Salt.Int64())
	require.Equal(t, byte(1), o.Signature[0])
}
