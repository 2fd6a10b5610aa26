// Package api is the REST and WebSocket surface over the protocol engine.
// Routing and encoding only; authentication of callers is the host
// deployment's concern, and settlement instructions in command results are
// for the host's transfer executor.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/lendex-fi/lendex/pkg/app/core"
	"github.com/lendex-fi/lendex/pkg/app/core/book"
	"github.com/lendex-fi/lendex/pkg/protocol"
)

// Server handles REST API and WebSocket connections
type Server struct {
	engine *protocol.Engine
	router *mux.Router
	hub    *Hub
	log    *zap.Logger
}

// NewServer creates the API server and hooks the engine's trade feed into
// the WebSocket hub.
func NewServer(engine *protocol.Engine, log *zap.Logger) *Server {
	s := &Server{
		engine: engine,
		router: mux.NewRouter(),
		hub:    NewHub(log),
		log:    log,
	}

	engine.SetFillHandler(func(f book.Fill) {
		s.hub.BroadcastToChannel("trades", WSTradeEvent{
			Channel: "trades",
			Data:    tradeInfo(f),
		})
	})

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Command submission (tagged-union envelope)
	api.HandleFunc("/commands", s.handleCommand).Methods("POST")

	// Account endpoints
	api.HandleFunc("/accounts/{address}", s.handleGetAccount).Methods("GET")
	api.HandleFunc("/accounts/{address}/orders", s.handleGetOrders).Methods("GET")

	// Book and protocol state
	api.HandleFunc("/orderbook", s.handleGetOrderbook).Methods("GET")
	api.HandleFunc("/trades", s.handleGetTrades).Methods("GET")
	api.HandleFunc("/config", s.handleGetConfig).Methods("GET")
	api.HandleFunc("/retained", s.handleGetRetained).Methods("GET")

	// WebSocket endpoint
	s.router.HandleFunc("/ws", s.handleWebSocket)

	// Health check
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Handler exposes the route tree, without CORS, for embedding and tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the API server
func (s *Server) Start(addr string) error {
	go s.hub.Run()

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000", "http://localhost:3001"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})
	handler := c.Handler(s.router)

	s.log.Info("api server starting", zap.String("addr", addr))
	return http.ListenAndServe(addr, handler)
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	var cmd protocol.Command
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		respondError(w, http.StatusBadRequest, "invalid command payload", err.Error())
		return
	}

	res, err := s.engine.Execute(cmd)
	if err != nil {
		respondError(w, statusFor(err), "command rejected", err.Error())
		return
	}
	respondJSON(w, res)
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	addr, ok := pathAddress(w, r)
	if !ok {
		return
	}

	acc, err := s.engine.GetAccount(addr)
	if err != nil {
		respondError(w, statusFor(err), "account lookup failed", err.Error())
		return
	}
	respondJSON(w, AccountInfo{
		Address:    acc.Address.Hex(),
		Collateral: acc.Collateral,
		Loan:       acc.Loan,
	})
}

func (s *Server) handleGetOrders(w http.ResponseWriter, r *http.Request) {
	addr, ok := pathAddress(w, r)
	if !ok {
		return
	}

	orders := s.engine.GetOrdersFor(addr)
	out := make([]OrderInfo, 0, len(orders))
	for _, o := range orders {
		out = append(out, orderInfo(o))
	}
	respondJSON(w, out)
}

func (s *Server) handleGetOrderbook(w http.ResponseWriter, r *http.Request) {
	minPrice := queryInt64(r, "min", 0)
	maxPrice := queryInt64(r, "max", 0)

	levels := s.engine.GetOrderBook(minPrice, maxPrice)

	// Aggregate per tick: asks low to high, bids high to low.
	var bids, asks []PriceLevel
	for _, lvl := range levels {
		var qty int64
		for _, o := range lvl.Asks {
			qty += o.Quantity
		}
		if qty > 0 {
			asks = append(asks, PriceLevel{Price: lvl.Price, Quantity: qty})
		}
	}
	for i := len(levels) - 1; i >= 0; i-- {
		var qty int64
		for _, o := range levels[i].Bids {
			qty += o.Quantity
		}
		if qty > 0 {
			bids = append(bids, PriceLevel{Price: levels[i].Price, Quantity: qty})
		}
	}

	respondJSON(w, OrderbookSnapshot{
		Bids:      bids,
		Asks:      asks,
		Timestamp: time.Now().UnixMilli(),
	})
}

func (s *Server) handleGetTrades(w http.ResponseWriter, r *http.Request) {
	limit := int(queryInt64(r, "limit", 50))
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	fills, err := s.engine.GetRecentTrades(limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "trade history unavailable", err.Error())
		return
	}

	out := make([]TradeInfo, 0, len(fills))
	for _, f := range fills {
		out = append(out, tradeInfo(f))
	}
	respondJSON(w, out)
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	cfg := s.engine.GetConfig()
	respondJSON(w, ConfigInfo{
		Owner:                   cfg.Owner.Hex(),
		Liquidator:              cfg.Liquidator.Hex(),
		Custody:                 cfg.Custody.Hex(),
		LiquidationDeadline:     cfg.LiquidationDeadline,
		LiquidationThresholdBps: cfg.LiquidationThresholdBps,
		LiquidationPenaltyBps:   cfg.LiquidationPenaltyBps,
		CollateralAsset:         cfg.CollateralAsset.Hex(),
		LoanAsset:               cfg.LoanAsset.Hex(),
		StableAsset:             cfg.StableAsset.Hex(),
	})
}

func (s *Server) handleGetRetained(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, RetainedInfo{Retained: s.engine.GetRetained()})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

func orderInfo(o book.Order) OrderInfo {
	return OrderInfo{
		ID:        o.ID,
		Owner:     o.Owner.Hex(),
		Side:      o.Side.String(),
		Price:     o.Price,
		Quantity:  o.Quantity,
		Escrow:    o.Escrow,
		Status:    o.Status.String(),
		CreatedAt: o.CreatedAt,
	}
}

func tradeInfo(f book.Fill) TradeInfo {
	return TradeInfo{
		ID:        f.TradeID,
		Price:     f.Price,
		Quantity:  f.Quantity,
		Buyer:     f.Buyer.Hex(),
		Seller:    f.Seller.Hex(),
		Timestamp: f.ExecutedAt,
	}
}

func pathAddress(w http.ResponseWriter, r *http.Request) (common.Address, bool) {
	raw := mux.Vars(r)["address"]
	if !common.IsHexAddress(raw) {
		respondError(w, http.StatusBadRequest, "invalid address", raw)
		return common.Address{}, false
	}
	return common.HexToAddress(raw), true
}

func queryInt64(r *http.Request, key string, def int64) int64 {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return def
	}
	return v
}

// statusFor maps core sentinel errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, core.ErrNotFound), errors.Is(err, core.ErrNotOwnerOrNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrInvalidAmount),
		errors.Is(err, core.ErrOffTickGrid),
		errors.Is(err, core.ErrInsufficientFundsSent),
		errors.Is(err, core.ErrOverRepayment):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrInsufficientBalance),
		errors.Is(err, core.ErrInsufficientCollateral),
		errors.Is(err, core.ErrInsufficientCollateralToSeize),
		errors.Is(err, core.ErrWouldTriggerLiquidation):
		return http.StatusConflict
	case errors.Is(err, core.ErrLiquidationNotPermitted),
		errors.Is(err, core.ErrDeadlineNotReached):
		return http.StatusForbidden
	case errors.Is(err, core.ErrPriceUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func respondJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, errMsg string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   errMsg,
		Message: message,
	})
}
