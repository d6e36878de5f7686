package api

import (
	"fmt"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/orderswap/pkg/app/core/order"
	"github.com/uhyunpark/orderswap/pkg/app/core/transaction"
)

// Minter credits holdings out of thin air. Only local development nodes expose it.
type Minter interface {
	MintERC20(contract, to common.Address, amount *big.Int) error
	MintERC721(contract, to common.Address, id *big.Int) error
	MintERC1155(contract, to common.Address, id, amount *big.Int) error
}

// MintRequest is the payload for POST /api/v1/dev/mint
type MintRequest struct {
	To    string                   `json:"to"`
	Asset transaction.AssetPayload `json:"asset"`
}

// EnableDevMint registers POST /api/v1/dev/mint backed by m.
func (s *Server) EnableDevMint(m Minter) {
	s.router.HandleFunc("/api/v1/dev/mint", func(w http.ResponseWriter, r *http.Request) {
		s.handleDevMint(w, r, m)
	}).Methods("POST")
	s.logger.Warnw("dev_mint_enabled")
}

func (s *Server) handleDevMint(w http.ResponseWriter, r *http.Request, m Minter) {
	var req MintRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if !common.IsHexAddress(req.To) {
		respondError(w, http.StatusBadRequest, "MALFORMED_PAYLOAD", fmt.Sprintf("invalid address %q", req.To))
		return
	}
	to := common.HexToAddress(req.To)
	asset, err := req.Asset.ToAsset()
	if err != nil {
		respondEngineError(w, err)
		return
	}

	switch asset.Type {
	case order.ERC20:
		err = m.MintERC20(asset.Contract, to, asset.Amount)
	case order.ERC721:
		err = m.MintERC721(asset.Contract, to, asset.ID)
	case order.ERC1155:
		err = m.MintERC1155(asset.Contract, to, asset.ID, asset.Amount)
	}
	if err != nil {
		respondError(w, http.StatusBadRequest, "MINT_FAILED", err.Error())
		return
	}

	s.logger.Infow("dev_mint", "to", to.Hex(), "asset", asset.String())
	respondJSON(w, map[string]string{"status": "minted"})
}
