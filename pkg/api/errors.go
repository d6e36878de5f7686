package api

import (
	"errors"
	"net/http"

	"github.com/uhyunpark/orderswap/pkg/app/core/admin"
	"github.com/uhyunpark/orderswap/pkg/app/core/engine"
	"github.com/uhyunpark/orderswap/pkg/app/core/fee"
	"github.com/uhyunpark/orderswap/pkg/app/core/order"
	"github.com/uhyunpark/orderswap/pkg/app/core/registry"
	"github.com/uhyunpark/orderswap/pkg/app/core/transaction"
	"github.com/uhyunpark/orderswap/pkg/app/core/transfer"
	"github.com/uhyunpark/orderswap/pkg/crypto"
)

type errorCode struct {
	err    error
	status int
	code   string
}

// Checked in order; the first match wins. Transfer failures wrap the receiver's error,
// so ErrTransferFailed has to be tested before anything it might carry.
var errorCodes = []errorCode{
	{transfer.ErrTransferFailed, http.StatusUnprocessableEntity, "TRANSFER_FAILED"},
	{engine.ErrReentrantCall, http.StatusConflict, "REENTRANT_CALL"},
	{transaction.ErrMalformedPayload, http.StatusBadRequest, "MALFORMED_PAYLOAD"},
	{order.ErrInvalidOrder, http.StatusBadRequest, "INVALID_ORDER"},
	{crypto.ErrInvalidSignature, http.StatusUnauthorized, "INVALID_SIGNATURE"},
	{crypto.ErrInvalidMerkleProof, http.StatusForbidden, "INVALID_MERKLE_PROOF"},
	{engine.ErrTakerMismatch, http.StatusForbidden, "TAKER_MISMATCH"},
	{registry.ErrUnauthorizedCancel, http.StatusForbidden, "UNAUTHORIZED_CANCEL"},
	{engine.ErrOrderExpired, http.StatusUnprocessableEntity, "ORDER_EXPIRED"},
	{engine.ErrOrderNotYetStarted, http.StatusUnprocessableEntity, "ORDER_NOT_YET_STARTED"},
	{engine.ErrOrderSidesMismatch, http.StatusUnprocessableEntity, "ORDER_SIDES_MISMATCH"},
	{engine.ErrSelfMatch, http.StatusUnprocessableEntity, "SELF_MATCH"},
	{order.ErrAssetMismatch, http.StatusUnprocessableEntity, "ASSET_MISMATCH"},
	{order.ErrAmountMismatch, http.StatusUnprocessableEntity, "AMOUNT_MISMATCH"},
	{registry.ErrOrderAlreadyCancelled, http.StatusConflict, "ORDER_ALREADY_CANCELLED"},
	{registry.ErrOrderAlreadyFilled, http.StatusConflict, "ORDER_ALREADY_FILLED"},
	{fee.ErrFeeConfigurationInvalid, http.StatusServiceUnavailable, "FEE_CONFIGURATION_INVALID"},
	{admin.ErrNoDispatcher, http.StatusServiceUnavailable, "NO_DISPATCHER"},
}

// classify maps an engine or verifier error to an HTTP status and error code.
func classify(err error) (int, string) {
	for _, c := range errorCodes {
		if errors.Is(err, c.err) {
			return c.status, c.code
		}
	}
	return http.StatusInternalServerError, "INTERNAL_ERROR"
}
