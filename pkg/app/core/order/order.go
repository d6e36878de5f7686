package order

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

type Type uint8

const (
	Ask Type = iota // maker offers MakeAsset for sale
	Bid             // maker offers MakeAsset as payment
)

func (t Type) String() string {
	switch t {
	case Ask:
		return "ASK"
	case Bid:
		return "BID"
	default:
		return fmt.Sprintf("Type(%d)", uint8(t))
	}
}

func ParseType(s string) (Type, error) {
	switch s {
	case "ASK", "ask", "0":
		return Ask, nil
	case "BID", "bid", "1":
		return Bid, nil
	}
	return 0, fmt.Errorf("%w: unknown order type %q", ErrInvalidOrder, s)
}

// Status of an order digest in the registry. Active is the implicit default;
// Cancelled and Filled are terminal.
type Status uint8

const (
	Active Status = iota
	Cancelled
	Filled
)

func (s Status) String() string {
	switch s {
	case Active:
		return "active"
	case Cancelled:
		return "cancelled"
	case Filled:
		return "filled"
	default:
		return "unknown"
	}
}

func (s Status) Terminal() bool { return s == Cancelled || s == Filled }

// Order is a maker's signed offer to exchange MakeAsset for TakeAsset within [Start, End].
// Signature and MerkleProof are carried alongside but never hashed.
type Order struct {
	Maker     common.Address
	Taker     common.Address // zero = open to anyone
	MakeAsset Asset
	TakeAsset Asset
	Type      Type
	Salt      *big.Int
	Start     uint64 // unix seconds, inclusive
	End       uint64 // unix seconds, inclusive

	Signature []byte

	// MerkleRoot restricts counterparties when non-zero. MerkleProof is the proof this
	// order's maker presents against the counterparty's root.
	MerkleRoot  common.Hash
	MerkleProof []common.Hash
}

func (o *Order) Validate() error {
	if o == nil {
		return fmt.Errorf("%w: nil order", ErrInvalidOrder)
	}
	if o.Maker == (common.Address{}) {
		return fmt.Errorf("%w: zero maker", ErrInvalidOrder)
	}
	if o.Type != Ask && o.Type != Bid {
		return fmt.Errorf("%w: unknown order type %d", ErrInvalidOrder, o.Type)
	}
	if o.Salt == nil || o.Salt.Sign() < 0 {
		return fmt.Errorf("%w: missing salt", ErrInvalidOrder)
	}
	if o.Start > o.End {
		return fmt.Errorf("%w: start %d after end %d", ErrInvalidOrder, o.Start, o.End)
	}
	if err := o.MakeAsset.Validate(); err != nil {
		return fmt.Errorf("make asset: %w", err)
	}
	if err := o.TakeAsset.Validate(); err != nil {
		return fmt.Errorf("take asset: %w", err)
	}
	return nil
}

func (o *Order) IsOpen() bool { return o.Taker == (common.Address{}) }

func (o *Order) HasAllowlist() bool { return o.MerkleRoot != (common.Hash{}) }

// AllowlistAssetID is the asset id bound into this order's allowlist leaves: the id of
// its non-fungible leg, make side first. Nil when both legs are ERC20.
func (o *Order) AllowlistAssetID() *big.Int {
	if !o.MakeAsset.IsFungible() {
		return cloneBig(o.MakeAsset.ID)
	}
	if !o.TakeAsset.IsFungible() {
		return cloneBig(o.TakeAsset.ID)
	}
	return nil
}

// Started and Expired use inclusive bounds: an order is live for start <= now <= end.
func (o *Order) Started(now uint64) bool { return now >= o.Start }

func (o *Order) Expired(now uint64) bool { return now > o.End }

func (o *Order) Clone() *Order {
	c := *o
	c.MakeAsset = o.MakeAsset.Clone()
	c.TakeAsset = o.TakeAsset.Clone()
	c.Salt = cloneBig(o.Salt)
	c.Signature = append([]byte(nil), o.Signature...)
	c.MerkleProof = append([]common.Hash(nil), o.MerkleProof...)
	return &c
}
