package transfer

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/orderswap/pkg/app/core/order"
)

type FungibleKey struct {
	Contract common.Address
	Owner    common.Address
}

// TokenKey identifies one non-fungible token. ID is the decimal token id.
type TokenKey struct {
	Contract common.Address
	ID       string
}

type MultiKey struct {
	Contract common.Address
	ID       string
	Owner    common.Address
}

// Holdings is a set of balance entries. A full ledger snapshot and a delta to be
// persisted share this shape; a zero balance or zero owner means "remove".
type Holdings struct {
	ERC20   map[FungibleKey]*big.Int
	ERC721  map[TokenKey]common.Address
	ERC1155 map[MultiKey]*big.Int
}

func NewHoldings() *Holdings {
	return &Holdings{
		ERC20:   make(map[FungibleKey]*big.Int),
		ERC721:  make(map[TokenKey]common.Address),
		ERC1155: make(map[MultiKey]*big.Int),
	}
}

func (h *Holdings) Empty() bool {
	return len(h.ERC20) == 0 && len(h.ERC721) == 0 && len(h.ERC1155) == 0
}

// HoldingsStore persists ledger state. SaveHoldings must apply the delta and the
// order fills (which may be nil) in one atomic write.
type HoldingsStore interface {
	LoadHoldings() (*Holdings, error)
	SaveHoldings(delta *Holdings, fills map[common.Hash]order.Status) error
}
