package transaction

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/uhyunpark/orderswap/pkg/app/core/order"
	"github.com/uhyunpark/orderswap/pkg/crypto"
)

// Verifier authenticates the caller of cancel and accept-bid requests. Order
// signatures themselves are checked by the engine.
type Verifier struct {
	hasher *order.Hasher
}

func NewVerifier(hasher *order.Hasher) *Verifier {
	return &Verifier{hasher: hasher}
}

// VerifiedCancel is a decoded cancel request with its recovered caller.
type VerifiedCancel struct {
	Order  *order.Order
	Digest common.Hash
	Caller common.Address
}

// VerifyCancel recovers who signed the CancelOrder message for req.Order. Whether
// that caller may cancel is decided by the registry.
func (v *Verifier) VerifyCancel(req *CancelRequest) (*VerifiedCancel, error) {
	o, err := req.Order.ToOrder()
	if err != nil {
		return nil, fmt.Errorf("invalid order format: %w", err)
	}
	digest, err := v.hasher.Digest(o)
	if err != nil {
		return nil, err
	}
	sig, err := decodeSignature(req.Signature)
	if err != nil {
		return nil, err
	}

	caller, err := v.hasher.Signer().RecoverCancelSigner(&crypto.CancelEIP712{OrderHash: digest, Maker: o.Maker}, sig)
	if err != nil {
		return nil, err
	}
	return &VerifiedCancel{Order: o, Digest: digest, Caller: caller}, nil
}

type VerifiedAcceptBid struct {
	Bid    *order.Order
	Digest common.Hash
	Amount *big.Int
	Proof  []common.Hash
	Caller common.Address
}

// VerifyAcceptBid checks that req.Taker signed the acceptance of this bid for this amount.
func (v *Verifier) VerifyAcceptBid(req *AcceptBidRequest) (*VerifiedAcceptBid, error) {
	bid, err := req.Bid.ToOrder()
	if err != nil {
		return nil, fmt.Errorf("invalid bid format: %w", err)
	}
	amount, err := parseBig("amount", req.Amount)
	if err != nil {
		return nil, err
	}
	taker, err := parseAddress("taker", req.Taker)
	if err != nil {
		return nil, err
	}
	proof, err := ParseProof(req.MerkleProof)
	if err != nil {
		return nil, err
	}
	digest, err := v.hasher.Digest(bid)
	if err != nil {
		return nil, err
	}
	sig, err := decodeSignature(req.Signature)
	if err != nil {
		return nil, err
	}

	signer, err := v.hasher.Signer().RecoverAcceptBidSigner(&crypto.AcceptBidEIP712{OrderHash: digest, Amount: amount, Taker: taker}, sig)
	if err != nil {
		return nil, err
	}
	if signer != taker {
		return nil, fmt.Errorf("%w: accept signed by %s, taker %s", crypto.ErrInvalidSignature, signer.Hex(), taker.Hex())
	}
	return &VerifiedAcceptBid{Bid: bid, Digest: digest, Amount: amount, Proof: proof, Caller: taker}, nil
}

// NewCancelRequest builds a cancel request for o signed by maker.
func (v *Verifier) NewCancelRequest(maker *crypto.Signer, o *order.Order) (*CancelRequest, error) {
	digest, err := v.hasher.Digest(o)
	if err != nil {
		return nil, err
	}
	sig, err := v.hasher.Signer().SignCancel(maker, &crypto.CancelEIP712{OrderHash: digest, Maker: o.Maker})
	if err != nil {
		return nil, err
	}
	return &CancelRequest{Order: *FromOrder(o), Signature: hexutil.Encode(sig)}, nil
}

// NewAcceptBidRequest builds an acceptance of bid signed by taker.
func (v *Verifier) NewAcceptBidRequest(taker *crypto.Signer, bid *order.Order, amount *big.Int, proof []common.Hash) (*AcceptBidRequest, error) {
	digest, err := v.hasher.Digest(bid)
	if err != nil {
		return nil, err
	}
	sig, err := v.hasher.Signer().SignAcceptBid(taker, &crypto.AcceptBidEIP712{OrderHash: digest, Amount: amount, Taker: taker.Address()})
	if err != nil {
		return nil, err
	}
	return &AcceptBidRequest{
		Bid:         *FromOrder(bid),
		Amount:      amount.String(),
		Taker:       taker.Address().Hex(),
		MerkleProof: FormatProof(proof),
		Signature:   hexutil.Encode(sig),
	}, nil
}

// decodeSignature decodes hex-encoded signature (with or without 0x prefix)
func decodeSignature(sig string) ([]byte, error) {
	if len(sig) < 2 || sig[:2] != "0x" {
		sig = "0x" + sig
	}
	b, err := hexutil.Decode(sig)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid hex signature: %v", crypto.ErrInvalidSignature, err)
	}
	if len(b) != crypto.SignatureLength {
		return nil, fmt.Errorf("%w: signature must be 65 bytes, got %d", crypto.ErrInvalidSignature, len(b))
	}
	return b, nil
}
