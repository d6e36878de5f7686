package api

import (
	"encoding/json"

	"github.com/shopspring/decimal"

	"github.com/uhyunpark/orderswap/pkg/app/core/engine"
)

// API response types for REST endpoints and WebSocket messages

// ==============================
// REST Response Types
// ==============================

// HashResponse is returned by POST /api/v1/orders/hash
type HashResponse struct {
	Digest    string          `json:"digest"`
	TypedData json.RawMessage `json:"typedData"` // eth_signTypedData_v4 payload
}

// StatusResponse reports the registry state of one order digest
type StatusResponse struct {
	Digest string `json:"digest"`
	Status string `json:"status"` // "active", "cancelled", "filled"
}

// ConfigResponse exposes the fee policy and signing domain clients need
type ConfigResponse struct {
	FeeBps       int64      `json:"feeBps"`
	FeePercent   string     `json:"feePercent"` // e.g. "5" for 500 bps
	FeeRecipient string     `json:"feeRecipient"`
	Domain       DomainInfo `json:"domain"`
}

type DomainInfo struct {
	Name              string `json:"name"`
	Version           string `json:"version"`
	ChainID           string `json:"chainId"`
	VerifyingContract string `json:"verifyingContract"`
	Separator         string `json:"separator"`
}

// SettlementInfo is a settlement with amounts as decimal strings
type SettlementInfo struct {
	ID           string    `json:"id"`
	Kind         string    `json:"kind"` // "match" or "accept_bid"
	AskDigest    string    `json:"askDigest,omitempty"`
	BidDigest    string    `json:"bidDigest"`
	Seller       string    `json:"seller"`
	Buyer        string    `json:"buyer"`
	Caller       string    `json:"caller"`
	Legs         []LegInfo `json:"legs"`
	Fee          string    `json:"fee"`
	FeeBps       int64     `json:"feeBps"`
	FeeRecipient string    `json:"feeRecipient"`
	Timestamp    int64     `json:"timestamp"` // Unix milliseconds
}

// LegInfo is one dispatched transfer
type LegInfo struct {
	AssetType string `json:"assetType"` // "ERC20", "ERC721", "ERC1155"
	Contract  string `json:"contract"`
	ID        string `json:"id,omitempty"`
	Amount    string `json:"amount"`
	From      string `json:"from"`
	To        string `json:"to"`
}

// ==============================
// WebSocket Message Types
// ==============================

// WSSubscribeRequest is sent by client to subscribe to channels
type WSSubscribeRequest struct {
	Op       string   `json:"op"`       // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"` // e.g., ["settlements"]
}

// SettlementUpdate is broadcast on the settlements channel for every committed settlement
type SettlementUpdate struct {
	Type   string         `json:"type"`   // "settlement"
	Source string         `json:"source"` // "local" or "peer"
	Data   SettlementInfo `json:"data"`
}

// ErrorResponse is returned for all errors
type ErrorResponse struct {
	Error   string `json:"error"`   // machine-readable code, e.g. ORDER_EXPIRED
	Message string `json:"message"` // human-readable detail
}

// ==============================
// Conversions
// ==============================

func toSettlementInfo(s *engine.Settlement) SettlementInfo {
	info := SettlementInfo{
		ID:           s.ID,
		Kind:         string(s.Kind),
		BidDigest:    s.BidDigest.Hex(),
		Seller:       s.Seller.Hex(),
		Buyer:        s.Buyer.Hex(),
		Caller:       s.Caller.Hex(),
		Legs:         make([]LegInfo, len(s.Legs)),
		Fee:          "0",
		FeeBps:       s.FeeBps,
		FeeRecipient: s.FeeRecipient.Hex(),
		Timestamp:    s.Timestamp.UnixMilli(),
	}
	if s.Kind == engine.KindMatch {
		info.AskDigest = s.AskDigest.Hex()
	}
	if s.Fee != nil {
		info.Fee = decimal.NewFromBigInt(s.Fee, 0).String()
	}
	for i, leg := range s.Legs {
		l := LegInfo{
			AssetType: leg.AssetType.String(),
			Contract:  leg.Contract.Hex(),
			Amount:    leg.Amount.String(),
			From:      leg.From.Hex(),
			To:        leg.To.Hex(),
		}
		if leg.ID != nil {
			l.ID = leg.ID.String()
		}
		info.Legs[i] = l
	}
	return info
}
