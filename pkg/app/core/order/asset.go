package order

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// AssetType is the token standard of an asset. Values are the wire ordinals.
type AssetType uint8

const (
	ERC20 AssetType = iota
	ERC721
	ERC1155
)

func (t AssetType) String() string {
	switch t {
	case ERC20:
		return "ERC20"
	case ERC721:
		return "ERC721"
	case ERC1155:
		return "ERC1155"
	default:
		return fmt.Sprintf("AssetType(%d)", uint8(t))
	}
}

func (t AssetType) Valid() bool { return t <= ERC1155 }

func ParseAssetType(s string) (AssetType, error) {
	switch s {
	case "ERC20", "erc20", "0":
		return ERC20, nil
	case "ERC721", "erc721", "1":
		return ERC721, nil
	case "ERC1155", "erc1155", "2":
		return ERC1155, nil
	}
	return 0, fmt.Errorf("%w: unknown asset type %q", ErrInvalidOrder, s)
}

// Asset is one leg of a trade. ID is zero for ERC20; Amount is always 1 for ERC721.
type Asset struct {
	Type     AssetType
	Contract common.Address
	ID       *big.Int
	Amount   *big.Int
}

func (a Asset) IsFungible() bool { return a.Type == ERC20 }

func (a Asset) Validate() error {
	if !a.Type.Valid() {
		return fmt.Errorf("%w: unknown asset type %d", ErrInvalidOrder, a.Type)
	}
	if a.Contract == (common.Address{}) {
		return fmt.Errorf("%w: zero asset contract", ErrInvalidOrder)
	}
	if a.ID == nil || a.ID.Sign() < 0 {
		return fmt.Errorf("%w: missing or negative asset id", ErrInvalidOrder)
	}
	if a.Amount == nil || a.Amount.Sign() <= 0 {
		return fmt.Errorf("%w: asset amount must be positive", ErrInvalidOrder)
	}
	switch a.Type {
	case ERC20:
		if a.ID.Sign() != 0 {
			return fmt.Errorf("%w: ERC20 asset id must be zero", ErrInvalidOrder)
		}
	case ERC721:
		if a.Amount.Cmp(big.NewInt(1)) != 0 {
			return fmt.Errorf("%w: ERC721 amount must be 1", ErrInvalidOrder)
		}
	}
	return nil
}

// Compatible reports whether a and b denote the same asset (type, contract, id).
// Amounts are compared separately.
func (a Asset) Compatible(b Asset) bool {
	return a.Type == b.Type && a.Contract == b.Contract && cmpBig(a.ID, b.ID) == 0
}

func (a Asset) Clone() Asset {
	return Asset{Type: a.Type, Contract: a.Contract, ID: cloneBig(a.ID), Amount: cloneBig(a.Amount)}
}

func (a Asset) String() string {
	return fmt.Sprintf("%s(%s #%s x%s)", a.Type, a.Contract.Hex(), a.ID, a.Amount)
}

func cmpBig(a, b *big.Int) int {
	if a == nil {
		a = new(big.Int)
	}
	if b == nil {
		b = new(big.Int)
	}
	return a.Cmp(b)
}

func cloneBig(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}
