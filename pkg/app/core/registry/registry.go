// Package registry tracks the terminal status of order digests.
//
// An order is Active until its maker cancels it or a settlement consumes it; both
// outcomes are permanent. Settlements stage their fills first so that every read
// during dispatch already sees the orders as consumed, then commit or abort.
package registry

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/uhyunpark/orderswap/pkg/app/core/order"
)

var (
	ErrOrderAlreadyCancelled = errors.New("order already cancelled")
	ErrOrderAlreadyFilled    = errors.New("order already filled")
	ErrUnauthorizedCancel    = errors.New("only maker can cancel order")
	ErrStagePending          = errors.New("registry has uncommitted staged fills")
)

// Store persists digest statuses. SaveStatuses must apply all entries or none.
type Store interface {
	LoadStatus(digest common.Hash) (order.Status, bool, error)
	SaveStatuses(statuses map[common.Hash]order.Status) error
}

type Registry struct {
	mu     sync.RWMutex
	store  Store
	cache  map[common.Hash]order.Status
	staged map[common.Hash]order.Status

	Logger *zap.SugaredLogger
}

func New(store Store) *Registry {
	return &Registry{
		store:  store,
		cache:  make(map[common.Hash]order.Status),
		staged: make(map[common.Hash]order.Status),
		Logger: zap.NewNop().Sugar(),
	}
}

func (r *Registry) Status(digest common.Hash) (order.Status, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.statusLocked(digest)
}

func (r *Registry) statusLocked(digest common.Hash) (order.Status, error) {
	if s, ok := r.staged[digest]; ok {
		return s, nil
	}
	if s, ok := r.cache[digest]; ok {
		return s, nil
	}
	s, ok, err := r.store.LoadStatus(digest)
	if err != nil {
		return order.Active, fmt.Errorf("load status %s: %w", digest.Hex(), err)
	}
	if !ok {
		return order.Active, nil
	}
	return s, nil
}

func (r *Registry) IsCancelled(digest common.Hash) (bool, error) {
	s, err := r.Status(digest)
	if err != nil {
		return false, err
	}
	return s == order.Cancelled, nil
}

// CheckActive returns the sentinel for a digest that can no longer be settled.
func (r *Registry) CheckActive(digest common.Hash) error {
	s, err := r.Status(digest)
	if err != nil {
		return err
	}
	switch s {
	case order.Cancelled:
		return fmt.Errorf("%w: %s", ErrOrderAlreadyCancelled, digest.Hex())
	case order.Filled:
		return fmt.Errorf("%w: %s", ErrOrderAlreadyFilled, digest.Hex())
	}
	return nil
}

// Cancel marks digest as cancelled on behalf of caller, who must be the order's maker.
// Cancelling an already cancelled order succeeds without change; the returned bool
// reports whether the status changed.
func (r *Registry) Cancel(o *order.Order, digest common.Hash, caller common.Address) (bool, error) {
	if caller != o.Maker {
		return false, fmt.Errorf("%w: caller %s, maker %s", ErrUnauthorizedCancel, caller.Hex(), o.Maker.Hex())
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	s, err := r.statusLocked(digest)
	if err != nil {
		return false, err
	}
	switch s {
	case order.Cancelled:
		return false, nil
	case order.Filled:
		return false, fmt.Errorf("%w: %s", ErrOrderAlreadyFilled, digest.Hex())
	}

	if err := r.store.SaveStatuses(map[common.Hash]order.Status{digest: order.Cancelled}); err != nil {
		return false, fmt.Errorf("persist cancel: %w", err)
	}
	r.cache[digest] = order.Cancelled
	r.Logger.Infow("order_cancelled", "digest", digest.Hex(), "maker", o.Maker.Hex())
	return true, nil
}

// Stage marks digests as filled for all readers without persisting anything.
func (r *Registry) Stage(digests ...common.Hash) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.staged) > 0 {
		return ErrStagePending
	}
	for _, d := range digests {
		r.staged[d] = order.Filled
	}
	return nil
}

// Commit persists staged fills in one batch. On a store error the staged fills stay
// in memory so the settled orders cannot be replayed by this process.
func (r *Registry) Commit() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	staged := r.staged
	r.staged = make(map[common.Hash]order.Status)
	for d, s := range staged {
		r.cache[d] = s
	}
	if len(staged) == 0 {
		return nil
	}
	if err := r.store.SaveStatuses(staged); err != nil {
		return fmt.Errorf("persist fills: %w", err)
	}
	return nil
}

// Staged returns a copy of the fills awaiting commit.
func (r *Registry) Staged() map[common.Hash]order.Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[common.Hash]order.Status, len(r.staged))
	for d, s := range r.staged {
		out[d] = s
	}
	return out
}

// CommitPersisted makes staged fills final without writing them. The caller has
// already persisted them, together with the transfers they settle.
func (r *Registry) CommitPersisted() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for d, s := range r.staged {
		r.cache[d] = s
	}
	r.staged = make(map[common.Hash]order.Status)
}

func (r *Registry) Abort() {
	r.mu.Lock()
	r.staged = make(map[common.Hash]order.Status)
	r.mu.Unlock()
}
