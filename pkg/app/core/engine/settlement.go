package engine

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/orderswap/pkg/app/core/transfer"
)

type Kind string

const (
	KindMatch     Kind = "match"
	KindAcceptBid Kind = "accept_bid"
)

// Settlement describes one committed exchange. Seller delivers the non-payment leg,
// Buyer pays; Legs are exactly the transfers that were dispatched.
type Settlement struct {
	ID           string              `json:"id"`
	Kind         Kind                `json:"kind"`
	AskDigest    common.Hash         `json:"askDigest"`
	BidDigest    common.Hash         `json:"bidDigest"`
	Seller       common.Address      `json:"seller"`
	Buyer        common.Address      `json:"buyer"`
	Caller       common.Address      `json:"caller"`
	Legs         []transfer.Transfer `json:"legs"`
	Fee          *big.Int            `json:"fee"`
	FeeBps       int64               `json:"feeBps"`
	FeeRecipient common.Address      `json:"feeRecipient"`
	Timestamp    time.Time           `json:"timestamp"`
}

// Recorder persists settlements after they commit.
type Recorder interface {
	RecordSettlement(s *Settlement) error
}
