package order

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/orderswap/pkg/crypto"
)

// Hasher computes the canonical order digest under a fixed EIP-712 domain.
// The digest is the order's identity for signing, verification and the registry.
type Hasher struct {
	eip712 *crypto.EIP712Signer
}

func NewHasher(domain crypto.EIP712Domain) *Hasher {
	return &Hasher{eip712: crypto.NewEIP712Signer(domain)}
}

func (h *Hasher) Signer() *crypto.EIP712Signer { return h.eip712 }

func (h *Hasher) Digest(o *Order) (common.Hash, error) {
	if o == nil {
		return common.Hash{}, fmt.Errorf("%w: nil order", ErrInvalidOrder)
	}
	d, err := h.eip712.HashOrder(ToEIP712(o))
	if err != nil {
		return common.Hash{}, fmt.Errorf("order digest: %w", err)
	}
	return d, nil
}

// Sign fills o.Signature with signer's signature over the digest.
func (h *Hasher) Sign(signer *crypto.Signer, o *Order) error {
	sig, err := h.eip712.SignOrder(signer, ToEIP712(o))
	if err != nil {
		return err
	}
	o.Signature = sig
	return nil
}

// VerifySignature checks o.Signature against o.Maker for a known digest.
func (h *Hasher) VerifySignature(o *Order, digest common.Hash) error {
	signer, err := crypto.RecoverAddress(digest.Bytes(), o.Signature)
	if err != nil {
		return err
	}
	if signer != o.Maker {
		return fmt.Errorf("%w: recovered %s, maker %s", crypto.ErrInvalidSignature, signer.Hex(), o.Maker.Hex())
	}
	return nil
}

func (h *Hasher) TypedDataJSON(o *Order) (string, error) {
	return h.eip712.OrderToJSON(ToEIP712(o))
}

func ToEIP712(o *Order) *crypto.OrderEIP712 {
	return &crypto.OrderEIP712{
		Maker:      o.Maker,
		Taker:      o.Taker,
		MakeAsset:  assetToEIP712(o.MakeAsset),
		TakeAsset:  assetToEIP712(o.TakeAsset),
		OrderType:  uint8(o.Type),
		Salt:       o.Salt,
		Start:      new(big.Int).SetUint64(o.Start),
		End:        new(big.Int).SetUint64(o.End),
		MerkleRoot: o.MerkleRoot,
	}
}

func assetToEIP712(a Asset) crypto.AssetEIP712 {
	return crypto.AssetEIP712{
		AssetType:       uint8(a.Type),
		ContractAddress: a.Contract,
		AssetID:         a.ID,
		AssetAmount:     a.Amount,
	}
}
