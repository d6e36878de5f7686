package p2p

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/uhyunpark/orderswap/pkg/app/core/engine"
	"github.com/uhyunpark/orderswap/pkg/app/core/transaction"
)

const wireVersion = 1

var ErrBadEnvelope = errors.New("bad gossip envelope")

type Kind string

const (
	KindCancel     Kind = "cancel"
	KindSettlement Kind = "settlement"
)

// Envelope wraps every gossip payload. Payload is the JSON form of a
// transaction.CancelRequest or an engine.Settlement.
type Envelope struct {
	Version int             `json:"v"`
	Kind    Kind            `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

func encodeEnvelope(kind Kind, v any) ([]byte, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", kind, err)
	}
	return json.Marshal(Envelope{Version: wireVersion, Kind: kind, Payload: payload})
}

func decodeEnvelope(data []byte, want Kind) (json.RawMessage, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadEnvelope, err)
	}
	if env.Version != wireVersion {
		return nil, fmt.Errorf("%w: version %d", ErrBadEnvelope, env.Version)
	}
	if env.Kind != want {
		return nil, fmt.Errorf("%w: kind %q on %s topic", ErrBadEnvelope, env.Kind, want)
	}
	return env.Payload, nil
}

func EncodeCancel(req *transaction.CancelRequest) ([]byte, error) {
	return encodeEnvelope(KindCancel, req)
}

func DecodeCancel(data []byte) (*transaction.CancelRequest, error) {
	payload, err := decodeEnvelope(data, KindCancel)
	if err != nil {
		return nil, err
	}
	return transaction.DecodeCancelRequest(payload)
}

func EncodeSettlement(s *engine.Settlement) ([]byte, error) {
	return encodeEnvelope(KindSettlement, s)
}

func DecodeSettlement(data []byte) (*engine.Settlement, error) {
	payload, err := decodeEnvelope(data, KindSettlement)
	if err != nil {
		return nil, err
	}
	var s engine.Settlement
	if err := json.Unmarshal(payload, &s); err != nil {
		return nil, fmt.Errorf("%w: settlement: %v", ErrBadEnvelope, err)
	}
	return &s, nil
}
