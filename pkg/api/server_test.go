package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/uhyunpark/orderswap/pkg/app/core/admin"
	"github.com/uhyunpark/orderswap/pkg/app/core/engine"
	"github.com/uhyunpark/orderswap/pkg/app/core/order"
	"github.com/uhyunpark/orderswap/pkg/app/core/registry"
	"github.com/uhyunpark/orderswap/pkg/app/core/transaction"
	"github.com/uhyunpark/orderswap/pkg/app/core/transfer"
	"github.com/uhyunpark/orderswap/pkg/crypto"
	"github.com/uhyunpark/orderswap/pkg/storage"
	"github.com/uhyunpark/orderswap/pkg/util"
)

var (
	nftContract   = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
	tokenContract = common.HexToAddress("0xe7f1725E7734CE288F8367e1Bb143E90bb3F0512")
	feeRecipient  = common.HexToAddress("0x000000000000000000000000000000000000fee5")
	genesis       = time.Unix(1_700_000_000, 0)
	price         = big.NewInt(10_000)
)

type testEnv struct {
	t      *testing.T
	server *Server
	engine *engine.Engine
	ledger *transfer.Ledger
	store  *storage.MemoryStore
	clock  *util.ManualClock
	seller *crypto.Signer
	buyer  *crypto.Signer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store := storage.NewMemoryStore()
	ledger, err := transfer.NewLedger(store)
	require.NoError(t, err)
	settings, err := admin.NewSettings(500, feeRecipient, ledger)
	require.NoError(t, err)

	clock := util.NewManualClock(genesis)
	eng := engine.New(order.NewHasher(crypto.DefaultDomain()), registry.New(store), settings, clock)
	eng.Recorder = store

	seller, err := crypto.GenerateKey()
	require.NoError(t, err)
	buyer, err := crypto.GenerateKey()
	require.NoError(t, err)

	require.NoError(t, ledger.MintERC721(nftContract, seller.Address(), big.NewInt(1)))
	require.NoError(t, ledger.MintERC20(tokenContract, buyer.Address(), price))

	return &testEnv{
		t:      t,
		server: NewServer(eng, store, []string{"http://localhost:3000"}, nil),
		engine: eng,
		ledger: ledger,
		store:  store,
		clock:  clock,
		seller: seller,
		buyer:  buyer,
	}
}

func (e *testEnv) pair() (*order.Order, *order.Order) {
	e.t.Helper()
	start := uint64(genesis.Unix()) - 60
	end := uint64(genesis.Unix()) + 3600

	ask := &order.Order{
		Maker:     e.seller.Address(),
		MakeAsset: order.Asset{Type: order.ERC721, Contract: nftContract, ID: big.NewInt(1), Amount: big.NewInt(1)},
		TakeAsset: order.Asset{Type: order.ERC20, Contract: tokenContract, ID: big.NewInt(0), Amount: price},
		Type:      order.Ask,
		Salt:      big.NewInt(1),
		Start:     start,
		End:       end,
	}
	bid := &order.Order{
		Maker:     e.buyer.Address(),
		MakeAsset: order.Asset{Type: order.ERC20, Contract: tokenContract, ID: big.NewInt(0), Amount: price},
		TakeAsset: order.Asset{Type: order.ERC721, Contract: nftContract, ID: big.NewInt(1), Amount: big.NewInt(1)},
		Type:      order.Bid,
		Salt:      big.NewInt(2),
		Start:     start,
		End:       end,
	}
	require.NoError(e.t, e.engine.Hasher().Sign(e.seller, ask))
	require.NoError(e.t, e.engine.Hasher().Sign(e.buyer, bid))
	return ask, bid
}

func (e *testEnv) do(method, path string, body interface{}) *httptest.ResponseRecorder {
	e.t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(e.t, json.NewEncoder(&buf).Encode(b))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func matchRequest(a, b *order.Order) transaction.MatchRequest {
	return transaction.MatchRequest{MakerOrder: *transaction.FromOrder(a), TakerOrder: *transaction.FromOrder(b)}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do("GET", "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", decode[map[string]string](t, rec)["status"])
}

func TestMatchOrdersEndpoint(t *testing.T) {
	env := newTestEnv(t)
	ask, bid := env.pair()

	rec := env.do("POST", "/api/v1/orders/match", matchRequest(ask, bid))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	info := decode[SettlementInfo](t, rec)
	require.Equal(t, "match", info.Kind)
	require.Equal(t, "500", info.Fee)
	require.Equal(t, int64(500), info.FeeBps)
	require.Equal(t, env.seller.Address().Hex(), info.Seller)
	require.Len(t, info.Legs, 3)
	require.Equal(t, genesis.UnixMilli(), info.Timestamp)

	require.Equal(t, env.buyer.Address(), env.ledger.OwnerOf(nftContract, big.NewInt(1)))
	require.Equal(t, int64(9_500), env.ledger.BalanceOf(tokenContract, env.seller.Address()).Int64())

	// replay
	rec = env.do("POST", "/api/v1/orders/match", matchRequest(ask, bid))
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, "ORDER_ALREADY_FILLED", decode[ErrorResponse](t, rec).Error)

	rec = env.do("GET", "/api/v1/settlements?limit=10", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]SettlementInfo](t, rec)
	require.Len(t, list, 1)
	require.Equal(t, info.ID, list[0].ID)
}

func TestMatchOrdersErrors(t *testing.T) {
	tests := []struct {
		name   string
		body   func(env *testEnv) interface{}
		status int
		code   string
	}{
		{
			name:   "invalid json",
			body:   func(*testEnv) interface{} { return "{" },
			status: http.StatusBadRequest,
			code:   "INVALID_JSON",
		},
		{
			name: "malformed maker address",
			body: func(env *testEnv) interface{} {
				ask, bid := env.pair()
				req := matchRequest(ask, bid)
				req.MakerOrder.Maker = "0x1234"
				return req
			},
			status: http.StatusBadRequest,
			code:   "MALFORMED_PAYLOAD",
		},
		{
			name: "expired",
			body: func(env *testEnv) interface{} {
				ask, bid := env.pair()
				env.clock.Advance(2 * time.Hour)
				return matchRequest(ask, bid)
			},
			status: http.StatusUnprocessableEntity,
			code:   "ORDER_EXPIRED",
		},
		{
			name: "tampered order",
			body: func(env *testEnv) interface{} {
				ask, bid := env.pair()
				req := matchRequest(ask, bid)
				req.MakerOrder.Salt = "99"
				return req
			},
			status: http.StatusUnauthorized,
			code:   "INVALID_SIGNATURE",
		},
		{
			name: "two asks",
			body: func(env *testEnv) interface{} {
				ask, _ := env.pair()
				other := ask.Clone()
				other.Salt = big.NewInt(7)
				require.NoError(env.t, env.engine.Hasher().Sign(env.seller, other))
				return matchRequest(ask, other)
			},
			status: http.StatusUnprocessableEntity,
			code:   "ORDER_SIDES_MISMATCH",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			rec := env.do("POST", "/api/v1/orders/match", tt.body(env))
			require.Equal(t, tt.status, rec.Code, rec.Body.String())
			require.Equal(t, tt.code, decode[ErrorResponse](t, rec).Error)
			require.Equal(t, env.seller.Address(), env.ledger.OwnerOf(nftContract, big.NewInt(1)))
		})
	}
}

func TestCancelEndpoint(t *testing.T) {
	env := newTestEnv(t)
	ask, bid := env.pair()
	verifier := transaction.NewVerifier(env.engine.Hasher())

	var gossiped *transaction.CancelRequest
	env.server.OnCancel = func(req *transaction.CancelRequest) { gossiped = req }

	// only the maker may cancel
	stranger, err := verifier.NewCancelRequest(env.buyer, ask)
	require.NoError(t, err)
	rec := env.do("POST", "/api/v1/orders/cancel", stranger)
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Equal(t, "UNAUTHORIZED_CANCEL", decode[ErrorResponse](t, rec).Error)
	require.Nil(t, gossiped)

	req, err := verifier.NewCancelRequest(env.seller, ask)
	require.NoError(t, err)
	rec = env.do("POST", "/api/v1/orders/cancel", req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[StatusResponse](t, rec)
	require.Equal(t, "cancelled", resp.Status)
	require.NotNil(t, gossiped)

	digest, err := env.engine.Digest(ask)
	require.NoError(t, err)
	require.Equal(t, digest.Hex(), resp.Digest)

	rec = env.do("POST", "/api/v1/orders/status", transaction.FromOrder(ask))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "cancelled", decode[StatusResponse](t, rec).Status)

	rec = env.do("POST", "/api/v1/orders/match", matchRequest(ask, bid))
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, "ORDER_ALREADY_CANCELLED", decode[ErrorResponse](t, rec).Error)
}

func TestAcceptBidEndpoint(t *testing.T) {
	env := newTestEnv(t)
	_, bid := env.pair()
	verifier := transaction.NewVerifier(env.engine.Hasher())

	req, err := verifier.NewAcceptBidRequest(env.seller, bid, price, nil)
	require.NoError(t, err)

	// amount is covered by the taker's signature
	tampered := *req
	tampered.Amount = "1"
	rec := env.do("POST", "/api/v1/orders/accept-bid", tampered)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do("POST", "/api/v1/orders/accept-bid", req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	info := decode[SettlementInfo](t, rec)
	require.Equal(t, "accept_bid", info.Kind)
	require.Empty(t, info.AskDigest)
	require.Equal(t, env.seller.Address().Hex(), info.Caller)

	require.Equal(t, env.buyer.Address(), env.ledger.OwnerOf(nftContract, big.NewInt(1)))
	require.Equal(t, int64(500), env.ledger.BalanceOf(tokenContract, feeRecipient).Int64())
}

func TestHashEndpoint(t *testing.T) {
	env := newTestEnv(t)
	ask, _ := env.pair()

	rec := env.do("POST", "/api/v1/orders/hash", transaction.FromOrder(ask))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decode[HashResponse](t, rec)
	digest, err := env.engine.Digest(ask)
	require.NoError(t, err)
	require.Equal(t, digest.Hex(), resp.Digest)

	var typed struct {
		PrimaryType string `json:"primaryType"`
	}
	require.NoError(t, json.Unmarshal(resp.TypedData, &typed))
	require.Equal(t, "Order", typed.PrimaryType)

	rec = env.do("POST", "/api/v1/orders/status", transaction.FromOrder(ask))
	require.Equal(t, "active", decode[StatusResponse](t, rec).Status)
}

func TestConfigEndpoint(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do("GET", "/api/v1/config", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	cfg := decode[ConfigResponse](t, rec)
	require.Equal(t, int64(500), cfg.FeeBps)
	require.Equal(t, "5", cfg.FeePercent)
	require.Equal(t, feeRecipient.Hex(), cfg.FeeRecipient)
	require.Equal(t, "OrderSwap", cfg.Domain.Name)
	require.Equal(t, "1337", cfg.Domain.ChainID)

	sep, err := env.engine.Hasher().Signer().DomainSeparator()
	require.NoError(t, err)
	require.Equal(t, sep.Hex(), cfg.Domain.Separator)
}

func TestSettlementsLimit(t *testing.T) {
	env := newTestEnv(t)

	for _, limit := range []string{"0", "-1", "abc"} {
		rec := env.do("GET", "/api/v1/settlements?limit="+limit, nil)
		require.Equal(t, http.StatusBadRequest, rec.Code, limit)
		require.Equal(t, "INVALID_LIMIT", decode[ErrorResponse](t, rec).Error)
	}

	rec := env.do("GET", "/api/v1/settlements", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, decode[[]SettlementInfo](t, rec))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("%w: boom", transfer.ErrTransferFailed), http.StatusUnprocessableEntity, "TRANSFER_FAILED"},
		{fmt.Errorf("%w: %w", transfer.ErrTransferFailed, crypto.ErrInvalidSignature), http.StatusUnprocessableEntity, "TRANSFER_FAILED"},
		{fmt.Errorf("x: %w", engine.ErrOrderNotYetStarted), http.StatusUnprocessableEntity, "ORDER_NOT_YET_STARTED"},
		{crypto.ErrInvalidMerkleProof, http.StatusForbidden, "INVALID_MERKLE_PROOF"},
		{engine.ErrTakerMismatch, http.StatusForbidden, "TAKER_MISMATCH"},
		{engine.ErrSelfMatch, http.StatusUnprocessableEntity, "SELF_MATCH"},
		{order.ErrAmountMismatch, http.StatusUnprocessableEntity, "AMOUNT_MISMATCH"},
		{admin.ErrNoDispatcher, http.StatusServiceUnavailable, "NO_DISPATCHER"},
		{fmt.Errorf("disk on fire"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			status, code := classify(tt.err)
			require.Equal(t, tt.status, status)
			require.Equal(t, tt.code, code)
		})
	}
}

func TestBroadcastSettlement(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go env.server.Hub().Run(ctx)

	ts := httptest.NewServer(env.server.Handler())
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(WSSubscribeRequest{Op: "subscribe", Channels: []string{ChannelSettlements}}))
	require.Eventually(t, func() bool { return subscribed(env.server.Hub(), ChannelSettlements) }, 2*time.Second, 10*time.Millisecond)

	ask, bid := env.pair()
	s, err := env.engine.MatchOrders(context.Background(), ask, bid, common.Address{})
	require.NoError(t, err)
	env.server.BroadcastSettlement(s, "local")

	var update SettlementUpdate
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&update))

	require.Equal(t, "settlement", update.Type)
	require.Equal(t, "local", update.Source)
	require.Equal(t, s.ID, update.Data.ID)
}

func subscribed(h *Hub, channel string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if c.IsSubscribed(channel) {
			return true
		}
	}
	return false
}

func TestDevMint(t *testing.T) {
	env := newTestEnv(t)
	req := MintRequest{
		To: env.buyer.Address().Hex(),
		Asset: transaction.AssetPayload{
			AssetType:       uint8(order.ERC721),
			ContractAddress: nftContract.Hex(),
			AssetID:         "2",
			AssetAmount:     "1",
		},
	}

	rec := env.do("POST", "/api/v1/dev/mint", req)
	require.Equal(t, http.StatusNotFound, rec.Code)

	env.server.EnableDevMint(env.ledger)
	rec = env.do("POST", "/api/v1/dev/mint", req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, env.buyer.Address(), env.ledger.OwnerOf(nftContract, big.NewInt(2)))

	rec = env.do("POST", "/api/v1/dev/mint", req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "MINT_FAILED", decode[ErrorResponse](t, rec).Error)
}
