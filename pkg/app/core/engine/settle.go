package engine

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/xid"

	"github.com/uhyunpark/orderswap/pkg/app/core/admin"
	"github.com/uhyunpark/orderswap/pkg/app/core/fee"
	"github.com/uhyunpark/orderswap/pkg/app/core/order"
	"github.com/uhyunpark/orderswap/pkg/app/core/transfer"
)

// buildLegs produces the transfers for seller delivering sold to buyer in exchange for
// paid. The fee is taken from the payment leg when it is fungible, otherwise from the
// sold leg when that one is; with no fungible leg there is no fee. Zero-amount fee
// legs are omitted.
func buildLegs(seller, buyer common.Address, sold, paid order.Asset, snap admin.Snapshot) ([]transfer.Transfer, *big.Int, error) {
	zero := new(big.Int)

	switch {
	case paid.IsFungible():
		split, err := fee.Compute(paid.Amount, snap.FeeBps)
		if err != nil {
			return nil, nil, err
		}
		legs := []transfer.Transfer{transfer.FromAsset(sold, seller, buyer, sold.Amount)}
		legs = appendLeg(legs, transfer.FromAsset(paid, buyer, seller, split.Net))
		legs = appendLeg(legs, transfer.FromAsset(paid, buyer, snap.FeeRecipient, split.Fee))
		return legs, split.Fee, nil

	case sold.IsFungible():
		split, err := fee.Compute(sold.Amount, snap.FeeBps)
		if err != nil {
			return nil, nil, err
		}
		legs := appendLeg(nil, transfer.FromAsset(sold, seller, buyer, split.Net))
		legs = appendLeg(legs, transfer.FromAsset(sold, seller, snap.FeeRecipient, split.Fee))
		legs = append(legs, transfer.FromAsset(paid, buyer, seller, paid.Amount))
		return legs, split.Fee, nil

	default:
		return []transfer.Transfer{
			transfer.FromAsset(sold, seller, buyer, sold.Amount),
			transfer.FromAsset(paid, buyer, seller, paid.Amount),
		}, zero, nil
	}
}

func appendLeg(legs []transfer.Transfer, t transfer.Transfer) []transfer.Transfer {
	if t.Amount.Sign() == 0 {
		return legs
	}
	return append(legs, t)
}

// settle stages digests as filled, dispatches s.Legs under a tagged context, and
// commits or aborts. It fills in the bookkeeping fields of s.
func (e *Engine) settle(ctx context.Context, snap admin.Snapshot, s *Settlement, digests ...common.Hash) error {
	if err := e.registry.Stage(digests...); err != nil {
		return err
	}
	e.settling.Store(true)
	defer e.settling.Store(false)

	dctx := context.WithValue(ctx, settlingKey{}, true)
	persisted, err := dispatch(dctx, snap.Dispatcher, s.Legs, e.registry.Staged())
	if err != nil {
		e.registry.Abort()
		e.Logger.Warnw("settlement_aborted", "kind", s.Kind, "bid", s.BidDigest.Hex(), "err", err)
		return fmt.Errorf("%w: %w", transfer.ErrTransferFailed, err)
	}

	if persisted {
		e.registry.CommitPersisted()
	} else if err := e.registry.Commit(); err != nil {
		// transfers are final; the fills stay in memory and replays are still refused
		e.Logger.Errorw("fill_commit_failed", "kind", s.Kind, "bid", s.BidDigest.Hex(), "err", err)
	}

	s.ID = xid.New().String()
	s.FeeBps = snap.FeeBps
	s.FeeRecipient = snap.FeeRecipient
	s.Timestamp = e.clock.Now().UTC()

	e.Logger.Infow("settlement_committed",
		"id", s.ID,
		"kind", s.Kind,
		"ask", s.AskDigest.Hex(),
		"bid", s.BidDigest.Hex(),
		"seller", s.Seller.Hex(),
		"buyer", s.Buyer.Hex(),
		"fee", s.Fee.String(),
		"legs", len(s.Legs),
	)

	if e.Recorder != nil {
		if err := e.Recorder.RecordSettlement(s); err != nil {
			e.Logger.Errorw("settlement_record_failed", "id", s.ID, "err", err)
		}
	}
	if e.OnSettlement != nil {
		e.OnSettlement(s)
	}
	return nil
}

// dispatch hands fills to dispatchers that can write them with the transfers.
func dispatch(ctx context.Context, d transfer.Dispatcher, legs []transfer.Transfer, fills map[common.Hash]order.Status) (bool, error) {
	if fd, ok := d.(transfer.FillDispatcher); ok {
		return fd.DispatchFills(ctx, legs, fills)
	}
	return false, d.Dispatch(ctx, legs)
}
