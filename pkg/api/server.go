package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/uhyunpark/orderswap/pkg/app/core/engine"
	"github.com/uhyunpark/orderswap/pkg/app/core/fee"
	"github.com/uhyunpark/orderswap/pkg/app/core/transaction"
	"github.com/uhyunpark/orderswap/pkg/util"
)

const (
	// ChannelSettlements carries every settlement this node commits or hears about.
	ChannelSettlements = "settlements"

	defaultSettlementLimit = 50
	maxSettlementLimit     = 500
	maxBodyBytes           = 1 << 20
)

// SettlementSource serves settlement history, newest first.
type SettlementSource interface {
	LoadRecentSettlements(limit int) ([]*engine.Settlement, error)
}

// Server handles REST API and WebSocket connections
type Server struct {
	engine      *engine.Engine
	verifier    *transaction.Verifier
	settlements SettlementSource
	router      *mux.Router
	hub         *Hub
	origins     []string
	logger      *zap.SugaredLogger

	// OnCancel runs after a cancel request has been applied, e.g. to gossip it to peers.
	OnCancel func(req *transaction.CancelRequest)
}

// NewServer creates a new API server
func NewServer(eng *engine.Engine, settlements SettlementSource, origins []string, logger *zap.SugaredLogger) *Server {
	if logger == nil {
		logger = util.Nop()
	}
	s := &Server{
		engine:      eng,
		verifier:    transaction.NewVerifier(eng.Hasher()),
		settlements: settlements,
		router:      mux.NewRouter(),
		hub:         NewHub(logger),
		origins:     origins,
		logger:      logger,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	// API v1 routes
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Order endpoints
	api.HandleFunc("/orders/hash", s.handleHashOrder).Methods("POST")
	api.HandleFunc("/orders/status", s.handleOrderStatus).Methods("POST")
	api.HandleFunc("/orders/match", s.handleMatchOrders).Methods("POST")
	api.HandleFunc("/orders/accept-bid", s.handleAcceptBid).Methods("POST")
	api.HandleFunc("/orders/cancel", s.handleCancelOrder).Methods("POST")

	api.HandleFunc("/settlements", s.handleGetSettlements).Methods("GET")
	api.HandleFunc("/config", s.handleGetConfig).Methods("GET")

	// WebSocket endpoint
	s.router.HandleFunc("/ws", s.handleWebSocket)

	// Health check
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Handler returns the router wrapped in the CORS policy.
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:   s.origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})
	return c.Handler(s.router)
}

// Hub exposes the WebSocket hub so other components can publish to it.
func (s *Server) Hub() *Hub { return s.hub }

// Start serves on addr until ctx is cancelled.
func (s *Server) Start(ctx context.Context, addr string) error {
	go s.hub.Run(ctx)

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Infow("api_listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("api shutdown: %w", err)
		}
		return nil
	}
}

// ==============================
// REST Handlers
// ==============================

func (s *Server) handleHashOrder(w http.ResponseWriter, r *http.Request) {
	var p transaction.OrderPayload
	if !decodeBody(w, r, &p) {
		return
	}
	o, err := p.ToOrder()
	if err != nil {
		respondEngineError(w, err)
		return
	}

	digest, err := s.engine.Digest(o)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	typed, err := s.engine.Hasher().TypedDataJSON(o)
	if err != nil {
		respondEngineError(w, err)
		return
	}

	respondJSON(w, HashResponse{Digest: digest.Hex(), TypedData: json.RawMessage(typed)})
}

func (s *Server) handleOrderStatus(w http.ResponseWriter, r *http.Request) {
	var p transaction.OrderPayload
	if !decodeBody(w, r, &p) {
		return
	}
	o, err := p.ToOrder()
	if err != nil {
		respondEngineError(w, err)
		return
	}

	digest, err := s.engine.Digest(o)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	status, err := s.engine.OrderStatus(o)
	if err != nil {
		respondEngineError(w, err)
		return
	}

	respondJSON(w, StatusResponse{Digest: digest.Hex(), Status: status.String()})
}

func (s *Server) handleMatchOrders(w http.ResponseWriter, r *http.Request) {
	var req transaction.MatchRequest
	if !decodeBody(w, r, &req) {
		return
	}

	maker, err := req.MakerOrder.ToOrder()
	if err != nil {
		respondEngineError(w, fmt.Errorf("makerOrder: %w", err))
		return
	}
	taker, err := req.TakerOrder.ToOrder()
	if err != nil {
		respondEngineError(w, fmt.Errorf("takerOrder: %w", err))
		return
	}
	var caller common.Address
	if req.Caller != "" {
		if !common.IsHexAddress(req.Caller) {
			respondError(w, http.StatusBadRequest, "MALFORMED_PAYLOAD", "invalid caller address")
			return
		}
		caller = common.HexToAddress(req.Caller)
	}

	settlement, err := engine.Retry(r.Context(), func() (*engine.Settlement, error) {
		return s.engine.MatchOrders(r.Context(), maker, taker, caller)
	})
	if err != nil {
		respondEngineError(w, err)
		return
	}

	s.logger.Infow("api_match", "id", settlement.ID, "seller", settlement.Seller.Hex(), "buyer", settlement.Buyer.Hex())
	respondJSON(w, toSettlementInfo(settlement))
}

func (s *Server) handleAcceptBid(w http.ResponseWriter, r *http.Request) {
	var req transaction.AcceptBidRequest
	if !decodeBody(w, r, &req) {
		return
	}

	v, err := s.verifier.VerifyAcceptBid(&req)
	if err != nil {
		respondEngineError(w, err)
		return
	}

	settlement, err := engine.Retry(r.Context(), func() (*engine.Settlement, error) {
		return s.engine.AcceptBid(r.Context(), v.Bid, v.Amount, v.Proof, v.Caller)
	})
	if err != nil {
		respondEngineError(w, err)
		return
	}

	s.logger.Infow("api_accept_bid", "id", settlement.ID, "taker", v.Caller.Hex())
	respondJSON(w, toSettlementInfo(settlement))
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	var req transaction.CancelRequest
	if !decodeBody(w, r, &req) {
		return
	}

	v, err := s.verifier.VerifyCancel(&req)
	if err != nil {
		respondEngineError(w, err)
		return
	}

	digest, err := engine.Retry(r.Context(), func() (common.Hash, error) {
		return s.engine.CancelOrder(r.Context(), v.Order, v.Caller)
	})
	if err != nil {
		respondEngineError(w, err)
		return
	}

	s.logger.Infow("api_cancel", "digest", digest.Hex(), "maker", v.Caller.Hex())
	if s.OnCancel != nil {
		s.OnCancel(&req)
	}

	respondJSON(w, StatusResponse{Digest: digest.Hex(), Status: "cancelled"})
}

func (s *Server) handleGetSettlements(w http.ResponseWriter, r *http.Request) {
	limit := defaultSettlementLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "INVALID_LIMIT", fmt.Sprintf("limit must be a positive integer, got %q", v))
			return
		}
		limit = min(n, maxSettlementLimit)
	}

	response := []SettlementInfo{}
	if s.settlements == nil {
		respondJSON(w, response)
		return
	}

	settlements, err := s.settlements.LoadRecentSettlements(limit)
	if err != nil {
		s.logger.Errorw("load_settlements_failed", "err", err)
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to load settlements")
		return
	}
	for _, st := range settlements {
		response = append(response, toSettlementInfo(st))
	}

	respondJSON(w, response)
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	snap := s.engine.Settings().Snapshot()
	signer := s.engine.Hasher().Signer()
	domain := signer.Domain()

	sep, err := signer.DomainSeparator()
	if err != nil {
		respondEngineError(w, err)
		return
	}

	response := ConfigResponse{
		FeeBps:       snap.FeeBps,
		FeePercent:   fee.Percent(snap.FeeBps),
		FeeRecipient: snap.FeeRecipient.Hex(),
		Domain: DomainInfo{
			Name:              domain.Name,
			Version:           domain.Version,
			ChainID:           domain.ChainID.String(),
			VerifyingContract: domain.VerifyingContract.Hex(),
			Separator:         sep.Hex(),
		},
	}

	respondJSON(w, response)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

// ==============================
// Broadcast Methods
// ==============================

// BroadcastSettlement publishes a settlement to WebSocket subscribers. source is
// "local" for settlements committed by this node and "peer" for gossiped ones.
func (s *Server) BroadcastSettlement(st *engine.Settlement, source string) {
	s.hub.BroadcastToChannel(ChannelSettlements, SettlementUpdate{
		Type:   "settlement",
		Source: source,
		Data:   toSettlementInfo(st),
	})
}

// ==============================
// Helper Functions
// ==============================

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_JSON", err.Error())
		return false
	}
	return true
}

func respondJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, code string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   code,
		Message: message,
	})
}

func respondEngineError(w http.ResponseWriter, err error) {
	status, code := classify(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "internal error"
	}
	respondError(w, status, code, message)
}
