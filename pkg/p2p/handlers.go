package p2p

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/uhyunpark/orderswap/pkg/app/core/engine"
	"github.com/uhyunpark/orderswap/pkg/app/core/transaction"
	"github.com/uhyunpark/orderswap/pkg/util"
)

// EngineHandlers wires gossip into eng. A peer's cancel is applied only after the
// maker's CancelOrder signature verifies. Settlement notices are informational and go
// to onSettlement untouched.
func EngineHandlers(eng *engine.Engine, onSettlement func(*engine.Settlement), log *zap.SugaredLogger) Handlers {
	if log == nil {
		log = util.Nop()
	}
	verifier := transaction.NewVerifier(eng.Hasher())

	return Handlers{
		OnCancel: func(ctx context.Context, req *transaction.CancelRequest) error {
			v, err := verifier.VerifyCancel(req)
			if err != nil {
				return err
			}
			digest, err := engine.Retry(ctx, func() (common.Hash, error) {
				return eng.CancelOrder(ctx, v.Order, v.Caller)
			})
			if err != nil {
				return err
			}
			log.Infow("gossip_cancel_applied", "digest", digest.Hex(), "maker", v.Caller.Hex())
			return nil
		},
		OnSettlement: onSettlement,
		Status:       eng.DigestStatus,
	}
}
