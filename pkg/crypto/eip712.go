package crypto

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// EIP712Domain represents the domain separator for EIP-712 typed data
// This prevents replay attacks across different chains/contracts
type EIP712Domain struct {
	Name              string         // Protocol name (e.g., "OrderSwap")
	Version           string         // Protocol version (e.g., "1")
	ChainID           *big.Int       // Chain ID (1337 for local, 1 for mainnet)
	VerifyingContract common.Address // Exchange address (or zero for off-chain)
}

// AssetEIP712 is one leg of an order as it appears in signed typed data.
type AssetEIP712 struct {
	AssetType       uint8
	ContractAddress common.Address
	AssetID         *big.Int
	AssetAmount     *big.Int
}

// OrderEIP712 represents an order for EIP-712 signing.
// Signature and merkle proof are never part of the signed payload.
type OrderEIP712 struct {
	Maker      common.Address
	Taker      common.Address
	MakeAsset  AssetEIP712
	TakeAsset  AssetEIP712
	OrderType  uint8
	Salt       *big.Int
	Start      *big.Int
	End        *big.Int
	MerkleRoot common.Hash
}

// CancelEIP712 authorises cancellation of a single order digest.
type CancelEIP712 struct {
	OrderHash common.Hash
	Maker     common.Address
}

// AcceptBidEIP712 authorises the taker side of a bid acceptance.
type AcceptBidEIP712 struct {
	OrderHash common.Hash
	Amount    *big.Int
	Taker     common.Address
}

var (
	domainType = []apitypes.Type{
		{Name: "name", Type: "string"},
		{Name: "version", Type: "string"},
		{Name: "chainId", Type: "uint256"},
		{Name: "verifyingContract", Type: "address"},
	}
	assetType = []apitypes.Type{
		{Name: "assetType", Type: "uint8"},
		{Name: "contractAddress", Type: "address"},
		{Name: "assetId", Type: "uint256"},
		{Name: "assetAmount", Type: "uint256"},
	}
	orderType = []apitypes.Type{
		{Name: "maker", Type: "address"},
		{Name: "taker", Type: "address"},
		{Name: "makeAsset", Type: "Asset"},
		{Name: "takeAsset", Type: "Asset"},
		{Name: "orderType", Type: "uint8"},
		{Name: "salt", Type: "uint256"},
		{Name: "start", Type: "uint256"},
		{Name: "end", Type: "uint256"},
		{Name: "merkleRoot", Type: "bytes32"},
	}
	cancelType = []apitypes.Type{
		{Name: "orderHash", Type: "bytes32"},
		{Name: "maker", Type: "address"},
	}
	acceptBidType = []apitypes.Type{
		{Name: "orderHash", Type: "bytes32"},
		{Name: "amount", Type: "uint256"},
		{Name: "taker", Type: "address"},
	}
)

// EIP712Signer hashes and signs typed data under one fixed domain.
type EIP712Signer struct {
	domain EIP712Domain
}

func NewEIP712Signer(domain EIP712Domain) *EIP712Signer {
	return &EIP712Signer{domain: domain}
}

// DefaultDomain returns the default EIP-712 domain for a local dev chain
func DefaultDomain() EIP712Domain {
	return EIP712Domain{
		Name:              "OrderSwap",
		Version:           "1",
		ChainID:           big.NewInt(1337),
		VerifyingContract: common.Address{},
	}
}

func (e *EIP712Signer) Domain() EIP712Domain {
	return e.domain
}

func (e *EIP712Signer) typedDomain() apitypes.TypedDataDomain {
	return apitypes.TypedDataDomain{
		Name:              e.domain.Name,
		Version:           e.domain.Version,
		ChainId:           (*math.HexOrDecimal256)(e.domain.ChainID),
		VerifyingContract: e.domain.VerifyingContract.Hex(),
	}
}

// DomainSeparator returns hashStruct(EIP712Domain).
func (e *EIP712Signer) DomainSeparator() (common.Hash, error) {
	td := apitypes.TypedData{
		Types:  apitypes.Types{"EIP712Domain": domainType},
		Domain: e.typedDomain(),
	}
	sep, err := td.HashStruct("EIP712Domain", td.Domain.Map())
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to hash domain: %w", err)
	}
	return common.BytesToHash(sep), nil
}

// hash computes keccak256("\x19\x01" || domainSeparator || hashStruct(message)).
func (e *EIP712Signer) hash(primary string, types apitypes.Types, message apitypes.TypedDataMessage) (common.Hash, error) {
	types["EIP712Domain"] = domainType
	typedData := apitypes.TypedData{
		Types:       types,
		PrimaryType: primary,
		Domain:      e.typedDomain(),
		Message:     message,
	}

	domainSeparator, err := typedData.HashStruct("EIP712Domain", typedData.Domain.Map())
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to hash domain: %w", err)
	}

	typedDataHash, err := typedData.HashStruct(typedData.PrimaryType, typedData.Message)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to hash message: %w", err)
	}

	rawData := make([]byte, 0, 66)
	rawData = append(rawData, 0x19, 0x01)
	rawData = append(rawData, domainSeparator...)
	rawData = append(rawData, typedDataHash...)
	return crypto.Keccak256Hash(rawData), nil
}

func assetMessage(a AssetEIP712) map[string]interface{} {
	return map[string]interface{}{
		"assetType":       fmt.Sprintf("%d", a.AssetType),
		"contractAddress": a.ContractAddress.Hex(),
		"assetId":         bigString(a.AssetID),
		"assetAmount":     bigString(a.AssetAmount),
	}
}

func orderMessage(order *OrderEIP712) apitypes.TypedDataMessage {
	return apitypes.TypedDataMessage{
		"maker":      order.Maker.Hex(),
		"taker":      order.Taker.Hex(),
		"makeAsset":  assetMessage(order.MakeAsset),
		"takeAsset":  assetMessage(order.TakeAsset),
		"orderType":  fmt.Sprintf("%d", order.OrderType),
		"salt":       bigString(order.Salt),
		"start":      bigString(order.Start),
		"end":        bigString(order.End),
		"merkleRoot": order.MerkleRoot.Hex(),
	}
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// HashOrder returns the digest that identifies and authorises an order.
func (e *EIP712Signer) HashOrder(order *OrderEIP712) (common.Hash, error) {
	return e.hash("Order", apitypes.Types{
		"Order": orderType,
		"Asset": assetType,
	}, orderMessage(order))
}

// SignOrder signs an order and returns the signature
func (e *EIP712Signer) SignOrder(signer *Signer, order *OrderEIP712) ([]byte, error) {
	hash, err := e.HashOrder(order)
	if err != nil {
		return nil, fmt.Errorf("failed to hash order: %w", err)
	}

	signature, err := signer.Sign(hash.Bytes())
	if err != nil {
		return nil, fmt.Errorf("failed to sign order: %w", err)
	}

	return signature, nil
}

// VerifyOrderSignature reports whether signature was produced by order.Maker.
func (e *EIP712Signer) VerifyOrderSignature(order *OrderEIP712, signature []byte) (bool, error) {
	recoveredAddr, err := e.RecoverOrderSigner(order, signature)
	if err != nil {
		return false, err
	}
	return recoveredAddr == order.Maker, nil
}

func (e *EIP712Signer) RecoverOrderSigner(order *OrderEIP712, signature []byte) (common.Address, error) {
	hash, err := e.HashOrder(order)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to hash order: %w", err)
	}
	return RecoverAddress(hash.Bytes(), signature)
}

// OrderToJSON converts an order to JSON for frontend/wallet signing
// MetaMask and other wallets use this format for eth_signTypedData_v4
func (e *EIP712Signer) OrderToJSON(order *OrderEIP712) (string, error) {
	typedData := apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": domainType,
			"Order":        orderType,
			"Asset":        assetType,
		},
		PrimaryType: "Order",
		Domain:      e.typedDomain(),
		Message:     orderMessage(order),
	}

	jsonBytes, err := json.MarshalIndent(typedData, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal JSON: %w", err)
	}

	return string(jsonBytes), nil
}

func (e *EIP712Signer) HashCancel(cancel *CancelEIP712) (common.Hash, error) {
	return e.hash("CancelOrder", apitypes.Types{"CancelOrder": cancelType}, apitypes.TypedDataMessage{
		"orderHash": cancel.OrderHash.Hex(),
		"maker":     cancel.Maker.Hex(),
	})
}

func (e *EIP712Signer) SignCancel(signer *Signer, cancel *CancelEIP712) ([]byte, error) {
	hash, err := e.HashCancel(cancel)
	if err != nil {
		return nil, fmt.Errorf("failed to hash cancel: %w", err)
	}
	return signer.Sign(hash.Bytes())
}

// RecoverCancelSigner returns the address that authorised the cancel request.
func (e *EIP712Signer) RecoverCancelSigner(cancel *CancelEIP712, signature []byte) (common.Address, error) {
	hash, err := e.HashCancel(cancel)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to hash cancel: %w", err)
	}
	return RecoverAddress(hash.Bytes(), signature)
}

func (e *EIP712Signer) HashAcceptBid(accept *AcceptBidEIP712) (common.Hash, error) {
	return e.hash("AcceptBid", apitypes.Types{"AcceptBid": acceptBidType}, apitypes.TypedDataMessage{
		"orderHash": accept.OrderHash.Hex(),
		"amount":    bigString(accept.Amount),
		"taker":     accept.Taker.Hex(),
	})
}

func (e *EIP712Signer) SignAcceptBid(signer *Signer, accept *AcceptBidEIP712) ([]byte, error) {
	hash, err := e.HashAcceptBid(accept)
	if err != nil {
		return nil, fmt.Errorf("failed to hash accept bid: %w", err)
	}
	return signer.Sign(hash.Bytes())
}

func (e *EIP712Signer) RecoverAcceptBidSigner(accept *AcceptBidEIP712, signature []byte) (common.Address, error) {
	hash, err := e.HashAcceptBid(accept)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to hash accept bid: %w", err)
	}
	return RecoverAddress(hash.Bytes(), signature)
}
