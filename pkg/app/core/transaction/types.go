// Package transaction defines the JSON wire format for orders and the requests that
// reference them. Big integers travel as decimal strings, bytes as 0x-hex.
package transaction

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/uhyunpark/orderswap/pkg/app/core/order"
)

var ErrMalformedPayload = errors.New("malformed payload")

type AssetPayload struct {
	AssetType       uint8  `json:"assetType"`       // 0=ERC20, 1=ERC721, 2=ERC1155
	ContractAddress string `json:"contractAddress"` // 0x...
	AssetID         string `json:"assetId"`         // BigInt as string
	AssetAmount     string `json:"assetAmount"`     // BigInt as string
}

// OrderPayload is an order exactly as a maker signed it, plus its signature and the
// maker's allowlist proof.
type OrderPayload struct {
	Maker       string       `json:"maker"`
	Taker       string       `json:"taker"` // zero address = open
	MakeAsset   AssetPayload `json:"makeAsset"`
	TakeAsset   AssetPayload `json:"takeAsset"`
	OrderType   uint8        `json:"orderType"` // 0=ASK, 1=BID
	Salt        string       `json:"salt"`
	Start       string       `json:"start"` // unix seconds
	End         string       `json:"end"`   // unix seconds
	Signature   string       `json:"signature"`
	MerkleRoot  string       `json:"merkleRoot,omitempty"`
	MerkleProof []string     `json:"merkleProof,omitempty"`
}

type MatchRequest struct {
	MakerOrder OrderPayload `json:"makerOrder"`
	TakerOrder OrderPayload `json:"takerOrder"`
	Caller     string       `json:"caller,omitempty"` // relayer, informational
}

// AcceptBidRequest is signed by Taker over AcceptBid(orderHash, amount, taker).
type AcceptBidRequest struct {
	Bid         OrderPayload `json:"bid"`
	Amount      string       `json:"amount"`
	Taker       string       `json:"taker"`
	MerkleProof []string     `json:"merkleProof,omitempty"`
	Signature   string       `json:"signature"`
}

// CancelRequest is signed by the order's maker over CancelOrder(orderHash, maker).
type CancelRequest struct {
	Order     OrderPayload `json:"order"`
	Signature string       `json:"signature"`
}

func (p *AssetPayload) ToAsset() (order.Asset, error) {
	if p.AssetType > uint8(order.ERC1155) {
		return order.Asset{}, fmt.Errorf("%w: unknown asset type %d", ErrMalformedPayload, p.AssetType)
	}
	contract, err := parseAddress("contractAddress", p.ContractAddress)
	if err != nil {
		return order.Asset{}, err
	}
	id, err := parseBig("assetId", p.AssetID)
	if err != nil {
		return order.Asset{}, err
	}
	amount, err := parseBig("assetAmount", p.AssetAmount)
	if err != nil {
		return order.Asset{}, err
	}
	return order.Asset{Type: order.AssetType(p.AssetType), Contract: contract, ID: id, Amount: amount}, nil
}

// ToOrder decodes the payload. It checks encodings only; order.Validate and the
// engine enforce semantics.
func (p *OrderPayload) ToOrder() (*order.Order, error) {
	maker, err := parseAddress("maker", p.Maker)
	if err != nil {
		return nil, err
	}
	var taker common.Address
	if p.Taker != "" {
		if taker, err = parseAddress("taker", p.Taker); err != nil {
			return nil, err
		}
	}
	if p.OrderType > uint8(order.Bid) {
		return nil, fmt.Errorf("%w: unknown order type %d", ErrMalformedPayload, p.OrderType)
	}

	makeAsset, err := p.MakeAsset.ToAsset()
	if err != nil {
		return nil, fmt.Errorf("makeAsset: %w", err)
	}
	takeAsset, err := p.TakeAsset.ToAsset()
	if err != nil {
		return nil, fmt.Errorf("takeAsset: %w", err)
	}

	salt, err := parseBig("salt", p.Salt)
	if err != nil {
		return nil, err
	}
	start, err := parseUint("start", p.Start)
	if err != nil {
		return nil, err
	}
	end, err := parseUint("end", p.End)
	if err != nil {
		return nil, err
	}

	var sig []byte
	if p.Signature != "" {
		if sig, err = hexutil.Decode(p.Signature); err != nil {
			return nil, fmt.Errorf("%w: signature: %v", ErrMalformedPayload, err)
		}
	}

	var root common.Hash
	if p.MerkleRoot != "" {
		if root, err = parseHash("merkleRoot", p.MerkleRoot); err != nil {
			return nil, err
		}
	}
	proof, err := ParseProof(p.MerkleProof)
	if err != nil {
		return nil, err
	}

	return &order.Order{
		Maker:       maker,
		Taker:       taker,
		MakeAsset:   makeAsset,
		TakeAsset:   takeAsset,
		Type:        order.Type(p.OrderType),
		Salt:        salt,
		Start:       start,
		End:         end,
		Signature:   sig,
		MerkleRoot:  root,
		MerkleProof: proof,
	}, nil
}

func FromAsset(a order.Asset) AssetPayload {
	return AssetPayload{
		AssetType:       uint8(a.Type),
		ContractAddress: a.Contract.Hex(),
		AssetID:         bigString(a.ID),
		AssetAmount:     bigString(a.Amount),
	}
}

func FromOrder(o *order.Order) *OrderPayload {
	p := &OrderPayload{
		Maker:       o.Maker.Hex(),
		Taker:       o.Taker.Hex(),
		MakeAsset:   FromAsset(o.MakeAsset),
		TakeAsset:   FromAsset(o.TakeAsset),
		OrderType:   uint8(o.Type),
		Salt:        bigString(o.Salt),
		Start:       strconv.FormatUint(o.Start, 10),
		End:         strconv.FormatUint(o.End, 10),
		MerkleProof: FormatProof(o.MerkleProof),
	}
	if len(o.Signature) > 0 {
		p.Signature = hexutil.Encode(o.Signature)
	}
	if o.HasAllowlist() {
		p.MerkleRoot = o.MerkleRoot.Hex()
	}
	return p
}

func ParseProof(in []string) ([]common.Hash, error) {
	if len(in) == 0 {
		return nil, nil
	}
	out := make([]common.Hash, len(in))
	for i, s := range in {
		h, err := parseHash(fmt.Sprintf("merkleProof[%d]", i), s)
		if err != nil {
			return nil, err
		}
		out[i] = h
	}
	return out, nil
}

func FormatProof(proof []common.Hash) []string {
	if len(proof) == 0 {
		return nil
	}
	out := make([]string, len(proof))
	for i, h := range proof {
		out[i] = h.Hex()
	}
	return out
}

// DecodeCancelRequest parses a cancel request received from a peer.
func DecodeCancelRequest(data []byte) (*CancelRequest, error) {
	var req CancelRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cancel request: %w", err)
	}
	return &req, nil
}

func parseAddress(field, s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%w: %s: invalid address %q", ErrMalformedPayload, field, s)
	}
	return common.HexToAddress(s), nil
}

func parseHash(field, s string) (common.Hash, error) {
	b, err := hexutil.Decode(s)
	if err != nil || len(b) != common.HashLength {
		return common.Hash{}, fmt.Errorf("%w: %s: want 32-byte hex, got %q", ErrMalformedPayload, field, s)
	}
	return common.BytesToHash(b), nil
}

func parseBig(field, s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() < 0 || v.BitLen() > 256 {
		return nil, fmt.Errorf("%w: %s: invalid uint256 %q", ErrMalformedPayload, field, s)
	}
	return v, nil
}

func parseUint(field, s string) (uint64, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrMalformedPayload, field, err)
	}
	return v, nil
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// Example match request:
//   {
//     "makerOrder": {
//       "maker": "0x7099...79C8",
//       "taker": "0x0000000000000000000000000000000000000000",
//       "makeAsset": {"assetType": 1, "contractAddress": "0x5FbD...0aa3", "assetId": "1", "assetAmount": "1"},
//       "takeAsset": {"assetType": 0, "contractAddress": "0xe7f1...0512", "assetId": "0", "assetAmount": "10000000000000000000"},
//       "orderType": 0,
//       "salt": "1",
//       "start": "1700000000",
//       "end": "1700086400",
//       "signature": "0x..."
//     },
//     "takerOrder": { ... mirrored BID ... }
//   }
