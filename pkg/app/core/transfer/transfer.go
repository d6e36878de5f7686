// Package transfer moves assets between accounts on behalf of the engine.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/orderswap/pkg/app/core/order"
)

var (
	// ErrTransferFailed wraps every failure reported by a dispatcher.
	ErrTransferFailed = errors.New("transfer failed")

	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrNotOwner            = errors.New("sender does not own token")
	ErrInvalidTransfer     = errors.New("invalid transfer")
	ErrReentrantDispatch   = errors.New("reentrant dispatch")
)

// Transfer is one asset movement. ID is ignored for ERC20.
type Transfer struct {
	AssetType order.AssetType `json:"assetType"`
	Contract  common.Address  `json:"contract"`
	From      common.Address  `json:"from"`
	To        common.Address  `json:"to"`
	ID        *big.Int        `json:"id,omitempty"`
	Amount    *big.Int        `json:"amount"`
}

func (t Transfer) String() string {
	return fmt.Sprintf("%s %s #%s x%s %s->%s", t.AssetType, t.Contract.Hex(), t.ID, t.Amount, t.From.Hex(), t.To.Hex())
}

func (t Transfer) Validate() error {
	if !t.AssetType.Valid() {
		return fmt.Errorf("%w: unknown asset type %d", ErrInvalidTransfer, t.AssetType)
	}
	if t.Contract == (common.Address{}) || t.From == (common.Address{}) || t.To == (common.Address{}) {
		return fmt.Errorf("%w: zero address in %s", ErrInvalidTransfer, t)
	}
	if t.Amount == nil || t.Amount.Sign() <= 0 {
		return fmt.Errorf("%w: non-positive amount", ErrInvalidTransfer)
	}
	if t.AssetType != order.ERC20 && t.ID == nil {
		return fmt.Errorf("%w: missing token id", ErrInvalidTransfer)
	}
	if t.AssetType == order.ERC721 && t.Amount.Cmp(big.NewInt(1)) != 0 {
		return fmt.Errorf("%w: ERC721 amount must be 1", ErrInvalidTransfer)
	}
	return nil
}

// FromAsset builds the transfer of asset a from one party to another.
func FromAsset(a order.Asset, from, to common.Address, amount *big.Int) Transfer {
	return Transfer{
		AssetType: a.Type,
		Contract:  a.Contract,
		From:      from,
		To:        to,
		ID:        a.ID,
		Amount:    amount,
	}
}

// Dispatcher executes a batch of transfers atomically: either every leg takes effect
// or none does. Implementations may call out to receivers before returning.
type Dispatcher interface {
	Dispatch(ctx context.Context, legs []Transfer) error
}

// FillDispatcher is a Dispatcher that can persist order fills in the same write as the
// transfers. DispatchFills reports whether fills were persisted; when it returns false
// the caller still owns persisting them.
type FillDispatcher interface {
	Dispatcher
	DispatchFills(ctx context.Context, legs []Transfer, fills map[common.Hash]order.Status) (bool, error)
}

// DispatcherFunc adapts a function to Dispatcher.
type DispatcherFunc func(ctx context.Context, legs []Transfer) error

func (f DispatcherFunc) Dispatch(ctx context.Context, legs []Transfer) error { return f(ctx, legs) }
