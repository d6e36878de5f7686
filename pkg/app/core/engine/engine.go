// Package engine validates signed orders and settles matched pairs atomically.
//
// Every public operation is one serialised transition: configuration is read once,
// all checks run, the consumed digests are staged as filled in the registry, and only
// then is the transfer dispatcher invoked. A failed dispatch aborts the staged fills;
// nothing else has been mutated at that point.
package engine

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/uhyunpark/orderswap/pkg/app/core/admin"
	"github.com/uhyunpark/orderswap/pkg/app/core/order"
	"github.com/uhyunpark/orderswap/pkg/app/core/registry"
	"github.com/uhyunpark/orderswap/pkg/util"
)

type settlingKey struct{}

type Engine struct {
	mu       sync.Mutex
	settling atomic.Bool // set while settle runs dispatcher and hooks under mu
	hasher   *order.Hasher
	registry *registry.Registry
	settings *admin.Settings
	clock    util.Clock

	Recorder     Recorder
	OnSettlement func(*Settlement)
	Logger       *zap.SugaredLogger
}

func New(hasher *order.Hasher, reg *registry.Registry, settings *admin.Settings, clock util.Clock) *Engine {
	if clock == nil {
		clock = util.RealClock{}
	}
	return &Engine{
		hasher:   hasher,
		registry: reg,
		settings: settings,
		clock:    clock,
		Logger:   zap.NewNop().Sugar(),
	}
}

func (e *Engine) Hasher() *order.Hasher { return e.hasher }

func (e *Engine) Settings() *admin.Settings { return e.settings }

// enter serialises engine calls. While a settlement is dispatching, the lock is held
// across calls into the dispatcher and settlement hooks, so any call arriving then is
// refused with ErrReentrantCall rather than queued behind it. Calls carrying the
// dispatch context are refused without touching the lock.
func (e *Engine) enter(ctx context.Context) (func(), error) {
	if ctx.Value(settlingKey{}) != nil {
		return nil, ErrReentrantCall
	}
	if !e.mu.TryLock() {
		if e.settling.Load() {
			return nil, ErrReentrantCall
		}
		e.mu.Lock()
	}
	return e.mu.Unlock, nil
}

func (e *Engine) now() uint64 {
	return uint64(e.clock.Now().Unix())
}

func (e *Engine) Digest(o *order.Order) (common.Hash, error) {
	return e.hasher.Digest(o)
}

func (e *Engine) OrderStatus(o *order.Order) (order.Status, error) {
	d, err := e.hasher.Digest(o)
	if err != nil {
		return order.Active, err
	}
	return e.registry.Status(d)
}

// DigestStatus reports the registry status of a digest without needing the order.
func (e *Engine) DigestStatus(d common.Hash) (order.Status, error) {
	return e.registry.Status(d)
}

func (e *Engine) IsCancelled(o *order.Order) (bool, error) {
	d, err := e.hasher.Digest(o)
	if err != nil {
		return false, err
	}
	return e.registry.IsCancelled(d)
}

// CancelOrder retires o on behalf of caller, who must be its maker. The order's own
// signature is not checked; knowing the order is not enough, the caller must be the maker.
func (e *Engine) CancelOrder(ctx context.Context, o *order.Order, caller common.Address) (common.Hash, error) {
	leave, err := e.enter(ctx)
	if err != nil {
		return common.Hash{}, err
	}
	defer leave()

	if err := o.Validate(); err != nil {
		return common.Hash{}, err
	}
	d, err := e.hasher.Digest(o)
	if err != nil {
		return common.Hash{}, err
	}
	if _, err := e.registry.Cancel(o, d, caller); err != nil {
		e.Logger.Warnw("cancel_rejected", "digest", d.Hex(), "caller", caller.Hex(), "err", err)
		return d, err
	}
	return d, nil
}

// MatchOrders settles an ASK against a BID. The orders may be passed in either order.
func (e *Engine) MatchOrders(ctx context.Context, a, b *order.Order, caller common.Address) (*Settlement, error) {
	leave, err := e.enter(ctx)
	if err != nil {
		return nil, err
	}
	defer leave()

	snap := e.settings.Snapshot()
	if err := snap.Validate(); err != nil {
		return nil, err
	}
	now := e.now()

	da, err := e.checkOrder(a, now)
	if err != nil {
		return nil, e.reject("match", err)
	}
	db, err := e.checkOrder(b, now)
	if err != nil {
		return nil, e.reject("match", err)
	}
	if da == db {
		return nil, e.reject("match", ErrSelfMatch)
	}

	ask, bid, askDigest, bidDigest := a, b, da, db
	if a.Type == order.Bid {
		ask, bid, askDigest, bidDigest = b, a, db, da
	}
	if ask.Type != order.Ask || bid.Type != order.Bid {
		return nil, e.reject("match", fmt.Errorf("%w: got %s and %s", ErrOrderSidesMismatch, a.Type, b.Type))
	}

	if err := checkCounterparty(ask, bid.Maker, bid.MerkleProof); err != nil {
		return nil, e.reject("match", err)
	}
	if err := checkCounterparty(bid, ask.Maker, ask.MerkleProof); err != nil {
		return nil, e.reject("match", err)
	}

	if err := checkCompatible(ask, bid); err != nil {
		return nil, e.reject("match", err)
	}

	legs, fee, err := buildLegs(ask.Maker, bid.Maker, ask.MakeAsset, ask.TakeAsset, snap)
	if err != nil {
		return nil, e.reject("match", err)
	}

	s := &Settlement{
		Kind:      KindMatch,
		AskDigest: askDigest,
		BidDigest: bidDigest,
		Seller:    ask.Maker,
		Buyer:     bid.Maker,
		Caller:    caller,
		Legs:      legs,
		Fee:       fee,
	}
	if err := e.settle(ctx, snap, s, askDigest, bidDigest); err != nil {
		return nil, err
	}
	return s, nil
}

// AcceptBid settles bid directly against caller, who delivers the bid's TakeAsset and
// receives its MakeAsset. Amount must equal the bid's full MakeAsset amount; proof is
// caller's membership proof for the bid's allowlist.
func (e *Engine) AcceptBid(ctx context.Context, bid *order.Order, amount *big.Int, proof []common.Hash, caller common.Address) (*Settlement, error) {
	leave, err := e.enter(ctx)
	if err != nil {
		return nil, err
	}
	defer leave()

	snap := e.settings.Snapshot()
	if err := snap.Validate(); err != nil {
		return nil, err
	}

	d, err := e.checkOrder(bid, e.now())
	if err != nil {
		return nil, e.reject("accept_bid", err)
	}
	if bid.Type != order.Bid {
		return nil, e.reject("accept_bid", fmt.Errorf("%w: accepted order is %s", ErrOrderSidesMismatch, bid.Type))
	}
	if caller == (common.Address{}) {
		return nil, e.reject("accept_bid", fmt.Errorf("%w: zero caller", order.ErrInvalidOrder))
	}
	if err := checkCounterparty(bid, caller, proof); err != nil {
		return nil, e.reject("accept_bid", err)
	}
	if amount == nil || amount.Cmp(bid.MakeAsset.Amount) != 0 {
		return nil, e.reject("accept_bid", fmt.Errorf("%w: accepted %v, bid offers %s", order.ErrAmountMismatch, amount, bid.MakeAsset.Amount))
	}

	legs, fee, err := buildLegs(caller, bid.Maker, bid.TakeAsset, bid.MakeAsset, snap)
	if err != nil {
		return nil, e.reject("accept_bid", err)
	}

	s := &Settlement{
		Kind:      KindAcceptBid,
		BidDigest: d,
		Seller:    caller,
		Buyer:     bid.Maker,
		Caller:    caller,
		Legs:      legs,
		Fee:       fee,
	}
	if err := e.settle(ctx, snap, s, d); err != nil {
		return nil, err
	}
	return s, nil
}

func (e *Engine) reject(op string, err error) error {
	e.Logger.Infow("match_rejected", "op", op, "err", err)
	return err
}
