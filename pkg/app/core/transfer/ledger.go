package transfer

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/uhyunpark/orderswap/pkg/app/core/order"
)

// ReceiveHook runs after each leg is applied to the staged state, before commit.
// Returning an error aborts the whole batch.
type ReceiveHook func(ctx context.Context, leg Transfer) error

type dispatchKey struct{}

var _ FillDispatcher = (*Ledger)(nil)

// Ledger is an in-process Dispatcher holding ERC20, ERC721 and ERC1155 balances.
// Batches are applied to an overlay and only merged into the base state (and the
// optional store) once every leg and receive hook has succeeded.
type Ledger struct {
	dispatchMu  sync.Mutex // serialises batches
	dispatching atomic.Bool
	mu          sync.RWMutex
	state       *Holdings
	store       HoldingsStore

	OnReceive ReceiveHook
	Logger    *zap.SugaredLogger
}

// NewLedger loads existing holdings from store when one is given.
func NewLedger(store HoldingsStore) (*Ledger, error) {
	l := &Ledger{state: NewHoldings(), store: store, Logger: zap.NewNop().Sugar()}
	if store != nil {
		h, err := store.LoadHoldings()
		if err != nil {
			return nil, fmt.Errorf("failed to load holdings: %w", err)
		}
		if h != nil {
			l.state = h
		}
	}
	return l, nil
}

func (l *Ledger) BalanceOf(contract, owner common.Address) *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return cloneOrZero(l.state.ERC20[FungibleKey{contract, owner}])
}

func (l *Ledger) OwnerOf(contract common.Address, id *big.Int) common.Address {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state.ERC721[TokenKey{contract, id.String()}]
}

func (l *Ledger) BalanceOf1155(contract common.Address, id *big.Int, owner common.Address) *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return cloneOrZero(l.state.ERC1155[MultiKey{contract, id.String(), owner}])
}

func (l *Ledger) MintERC20(contract, to common.Address, amount *big.Int) error {
	return l.mint(func(o *overlay) error {
		k := FungibleKey{contract, to}
		o.d.ERC20[k] = new(big.Int).Add(o.erc20(k), amount)
		return nil
	})
}

func (l *Ledger) MintERC721(contract, to common.Address, id *big.Int) error {
	return l.mint(func(o *overlay) error {
		k := TokenKey{contract, id.String()}
		if owner := o.erc721(k); owner != (common.Address{}) {
			return fmt.Errorf("token %s #%s already minted to %s", contract.Hex(), id, owner.Hex())
		}
		o.d.ERC721[k] = to
		return nil
	})
}

func (l *Ledger) MintERC1155(contract, to common.Address, id, amount *big.Int) error {
	return l.mint(func(o *overlay) error {
		k := MultiKey{contract, id.String(), to}
		o.d.ERC1155[k] = new(big.Int).Add(o.erc1155(k), amount)
		return nil
	})
}

func (l *Ledger) mint(apply func(o *overlay) error) error {
	unlock, err := l.acquire()
	if err != nil {
		return err
	}
	defer unlock()

	o := l.newOverlay()
	if err := apply(o); err != nil {
		return err
	}
	return l.commit(o, nil)
}

// acquire takes the batch lock. While a batch is in dispatch the lock is held by the
// goroutine running the receive hooks, so a hook that calls back in is refused with
// ErrReentrantDispatch instead of waiting on itself.
func (l *Ledger) acquire() (func(), error) {
	if !l.dispatchMu.TryLock() {
		if l.dispatching.Load() {
			return nil, ErrReentrantDispatch
		}
		l.dispatchMu.Lock()
	}
	return l.dispatchMu.Unlock, nil
}

// Dispatch applies legs atomically. A nested Dispatch issued from a receive hook fails
// with ErrReentrantDispatch, whether or not the hook passes on its ctx.
func (l *Ledger) Dispatch(ctx context.Context, legs []Transfer) error {
	_, err := l.DispatchFills(ctx, legs, nil)
	return err
}

// DispatchFills applies legs like Dispatch and writes fills in the same store batch as
// the holdings delta. A ledger without a store persists nothing and reports false.
func (l *Ledger) DispatchFills(ctx context.Context, legs []Transfer, fills map[common.Hash]order.Status) (bool, error) {
	if ctx.Value(dispatchKey{}) != nil {
		return false, ErrReentrantDispatch
	}
	ctx = context.WithValue(ctx, dispatchKey{}, true)

	unlock, err := l.acquire()
	if err != nil {
		return false, err
	}
	defer unlock()
	l.dispatching.Store(true)
	defer l.dispatching.Store(false)

	o := l.newOverlay()
	for i, leg := range legs {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		if err := o.apply(leg); err != nil {
			l.Logger.Warnw("transfer_rejected", "leg", i, "transfer", leg.String(), "err", err)
			return false, fmt.Errorf("leg %d: %w", i, err)
		}
		if l.OnReceive != nil {
			if err := l.OnReceive(ctx, leg); err != nil {
				l.Logger.Warnw("transfer_receiver_rejected", "leg", i, "to", leg.To.Hex(), "err", err)
				return false, fmt.Errorf("leg %d receiver %s: %w", i, leg.To.Hex(), err)
			}
		}
	}
	if err := l.commit(o, fills); err != nil {
		return false, err
	}
	return l.store != nil && len(fills) > 0, nil
}

func (l *Ledger) commit(o *overlay, fills map[common.Hash]order.Status) error {
	if l.store != nil && (!o.d.Empty() || len(fills) > 0) {
		if err := l.store.SaveHoldings(o.d, fills); err != nil {
			return fmt.Errorf("failed to persist holdings: %w", err)
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	for k, v := range o.d.ERC20 {
		if v.Sign() == 0 {
			delete(l.state.ERC20, k)
		} else {
			l.state.ERC20[k] = v
		}
	}
	for k, v := range o.d.ERC721 {
		if v == (common.Address{}) {
			delete(l.state.ERC721, k)
		} else {
			l.state.ERC721[k] = v
		}
	}
	for k, v := range o.d.ERC1155 {
		if v.Sign() == 0 {
			delete(l.state.ERC1155, k)
		} else {
			l.state.ERC1155[k] = v
		}
	}
	return nil
}

// overlay records changed entries on top of the ledger's committed state.
type overlay struct {
	l *Ledger
	d *Holdings
}

func (l *Ledger) newOverlay() *overlay {
	return &overlay{l: l, d: NewHoldings()}
}

func (o *overlay) erc20(k FungibleKey) *big.Int {
	if v, ok := o.d.ERC20[k]; ok {
		return v
	}
	o.l.mu.RLock()
	defer o.l.mu.RUnlock()
	return cloneOrZero(o.l.state.ERC20[k])
}

func (o *overlay) erc721(k TokenKey) common.Address {
	if v, ok := o.d.ERC721[k]; ok {
		return v
	}
	o.l.mu.RLock()
	defer o.l.mu.RUnlock()
	return o.l.state.ERC721[k]
}

func (o *overlay) erc1155(k MultiKey) *big.Int {
	if v, ok := o.d.ERC1155[k]; ok {
		return v
	}
	o.l.mu.RLock()
	defer o.l.mu.RUnlock()
	return cloneOrZero(o.l.state.ERC1155[k])
}

func (o *overlay) apply(t Transfer) error {
	if err := t.Validate(); err != nil {
		return err
	}

	switch t.AssetType {
	case order.ERC20:
		from, to := FungibleKey{t.Contract, t.From}, FungibleKey{t.Contract, t.To}
		bal := o.erc20(from)
		if bal.Cmp(t.Amount) < 0 {
			return fmt.Errorf("%w: %s holds %s of %s, needs %s", ErrInsufficientBalance, t.From.Hex(), bal, t.Contract.Hex(), t.Amount)
		}
		o.d.ERC20[from] = new(big.Int).Sub(bal, t.Amount)
		o.d.ERC20[to] = new(big.Int).Add(o.erc20(to), t.Amount)

	case order.ERC721:
		k := TokenKey{t.Contract, t.ID.String()}
		if owner := o.erc721(k); owner != t.From {
			return fmt.Errorf("%w: %s #%s owned by %s, not %s", ErrNotOwner, t.Contract.Hex(), t.ID, owner.Hex(), t.From.Hex())
		}
		o.d.ERC721[k] = t.To

	case order.ERC1155:
		id := t.ID.String()
		from, to := MultiKey{t.Contract, id, t.From}, MultiKey{t.Contract, id, t.To}
		bal := o.erc1155(from)
		if bal.Cmp(t.Amount) < 0 {
			return fmt.Errorf("%w: %s holds %s of %s #%s, needs %s", ErrInsufficientBalance, t.From.Hex(), bal, t.Contract.Hex(), id, t.Amount)
		}
		o.d.ERC1155[from] = new(big.Int).Sub(bal, t.Amount)
		o.d.ERC1155[to] = new(big.Int).Add(o.erc1155(to), t.Amount)
	}
	return nil
}

func cloneOrZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}
