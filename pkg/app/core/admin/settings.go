// Package admin holds the mutable exchange configuration. The engine never reads it
// field by field; it takes one Snapshot per transition.
package admin

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/uhyunpark/orderswap/pkg/app/core/fee"
	"github.com/uhyunpark/orderswap/pkg/app/core/transfer"
)

var ErrNoDispatcher = errors.New("no transfer dispatcher configured")

// Snapshot is an immutable view of the configuration at one point in time.
type Snapshot struct {
	FeeBps       int64
	FeeRecipient common.Address
	Dispatcher   transfer.Dispatcher
}

func (s Snapshot) Validate() error {
	if s.Dispatcher == nil {
		return ErrNoDispatcher
	}
	return fee.ValidateConfig(s.FeeBps, s.FeeRecipient)
}

type Settings struct {
	mu   sync.RWMutex
	snap Snapshot

	Logger *zap.SugaredLogger
}

func NewSettings(feeBps int64, recipient common.Address, dispatcher transfer.Dispatcher) (*Settings, error) {
	snap := Snapshot{FeeBps: feeBps, FeeRecipient: recipient, Dispatcher: dispatcher}
	if err := snap.Validate(); err != nil {
		return nil, err
	}
	return &Settings{snap: snap, Logger: zap.NewNop().Sugar()}, nil
}

func (s *Settings) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// SetFeeBps rejects rates above 100% and non-zero rates without a recipient.
func (s *Settings) SetFeeBps(bps int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if bps > fee.Denominator {
		return fmt.Errorf("%w: fee exceeds 100%%", fee.ErrFeeConfigurationInvalid)
	}
	if err := fee.ValidateConfig(bps, s.snap.FeeRecipient); err != nil {
		return err
	}
	s.Logger.Infow("fee_bps_updated", "old", s.snap.FeeBps, "new", bps)
	s.snap.FeeBps = bps
	return nil
}

func (s *Settings) SetFeeRecipient(recipient common.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := fee.ValidateConfig(s.snap.FeeBps, recipient); err != nil {
		return err
	}
	s.Logger.Infow("fee_recipient_updated", "old", s.snap.FeeRecipient.Hex(), "new", recipient.Hex())
	s.snap.FeeRecipient = recipient
	return nil
}

func (s *Settings) SetDispatcher(d transfer.Dispatcher) error {
	if d == nil {
		return ErrNoDispatcher
	}
	s.mu.Lock()
	s.snap.Dispatcher = d
	s.mu.Unlock()
	s.Logger.Infow("dispatcher_updated")
	return nil
}
