package engine

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/orderswap/pkg/app/core/order"
	"github.com/uhyunpark/orderswap/pkg/crypto"
)

// checkOrder runs the per-order checks and returns the digest. The time window is
// checked before the signature so that an out-of-window order fails the same way
// whatever its signature.
func (e *Engine) checkOrder(o *order.Order, now uint64) (common.Hash, error) {
	if err := o.Validate(); err != nil {
		return common.Hash{}, err
	}
	if !o.Started(now) {
		return common.Hash{}, fmt.Errorf("%w: starts at %d, now %d", ErrOrderNotYetStarted, o.Start, now)
	}
	if o.Expired(now) {
		return common.Hash{}, fmt.Errorf("%w: ended at %d, now %d", ErrOrderExpired, o.End, now)
	}

	d, err := e.hasher.Digest(o)
	if err != nil {
		return common.Hash{}, err
	}
	if err := e.hasher.VerifySignature(o, d); err != nil {
		return d, err
	}
	if err := e.registry.CheckActive(d); err != nil {
		return d, err
	}
	return d, nil
}

// checkCounterparty enforces o's taker restriction and allowlist for the party that
// would settle against it.
func checkCounterparty(o *order.Order, counterparty common.Address, proof []common.Hash) error {
	if !o.IsOpen() && o.Taker != counterparty {
		return fmt.Errorf("%w: taker %s, counterparty %s", ErrTakerMismatch, o.Taker.Hex(), counterparty.Hex())
	}
	if !o.HasAllowlist() {
		return nil
	}
	leaf := crypto.AllowlistLeaf(counterparty, o.AllowlistAssetID())
	if !crypto.VerifyProof(proof, o.MerkleRoot, leaf) {
		return fmt.Errorf("%w: %s not in allowlist of %s", crypto.ErrInvalidMerkleProof, counterparty.Hex(), o.Maker.Hex())
	}
	return nil
}

// checkCompatible requires each order to take exactly what the other makes.
func checkCompatible(ask, bid *order.Order) error {
	if !ask.MakeAsset.Compatible(bid.TakeAsset) {
		return fmt.Errorf("%w: ask offers %s, bid wants %s", order.ErrAssetMismatch, ask.MakeAsset, bid.TakeAsset)
	}
	if !ask.TakeAsset.Compatible(bid.MakeAsset) {
		return fmt.Errorf("%w: ask wants %s, bid offers %s", order.ErrAssetMismatch, ask.TakeAsset, bid.MakeAsset)
	}
	if ask.MakeAsset.Amount.Cmp(bid.TakeAsset.Amount) != 0 {
		return fmt.Errorf("%w: ask offers %s, bid wants %s", order.ErrAmountMismatch, ask.MakeAsset.Amount, bid.TakeAsset.Amount)
	}
	if ask.TakeAsset.Amount.Cmp(bid.MakeAsset.Amount) != 0 {
		return fmt.Errorf("%w: ask wants %s, bid pays %s", order.ErrAmountMismatch, ask.TakeAsset.Amount, bid.MakeAsset.Amount)
	}
	return nil
}
