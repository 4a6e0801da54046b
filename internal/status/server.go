// Package status serves a read-only view of the running bot.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"frontrunner/internal/divergence"
	"frontrunner/internal/metrics"
	"frontrunner/internal/model"
	"frontrunner/internal/state"
)

// ErrNotReady is reported while feed or block prices are still missing.
var ErrNotReady = errors.New("price state not ready")

// TradeLister exposes the open trades of the running strategy.
type TradeLister interface {
	ActiveTrades() any
}

// Snapshotter exposes the current price state.
type Snapshotter interface {
	Snapshot() model.PriceSnapshot
}

// Server is the inspection HTTP API.
type Server struct {
	logger   *zap.Logger
	store    Snapshotter
	trades   TradeLister
	pairs    []model.Pair
	strategy string
	srv      *http.Server
}

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	Strategy     string                 `json:"strategy"`
	Ready        bool                   `json:"ready"`
	Heartbeat    int64                  `json:"heartbeat"`
	BlockNumber  uint64                 `json:"blockNumber"`
	FeedPrices   map[model.Pair]float64 `json:"feedPrices"`
	OraclePrices map[model.Pair]float64 `json:"oraclePrices"`
	SynthPrices  map[model.Pair]float64 `json:"synthPrices"`
	OracleToFeed map[model.Pair]string  `json:"oracleToFeed,omitempty"`
}

// NewServer creates a Server listening on addr.
func NewServer(logger *zap.Logger, addr, strategy string, store Snapshotter, trades TradeLister, pairs []model.Pair) *Server {
	s := &Server{
		logger:   logger.With(zap.String("component", "status")),
		store:    store,
		trades:   trades,
		pairs:    pairs,
		strategy: strategy,
	}
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Routes returns the API router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", s.handleHealth)
	r.Get("/status", s.handleStatus)
	r.Get("/trades/active", s.handleActiveTrades)
	r.Handle("/metrics", metrics.Handler())
	return r
}

// Start serves until Shutdown. It never returns http.ErrServerClosed.
func (s *Server) Start() error {
	s.logger.Info("status server listening", zap.String("addr", s.srv.Addr))
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !state.Ready(s.store.Snapshot(), s.pairs) {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": ErrNotReady.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap := s.store.Snapshot()
	resp := StatusResponse{
		Strategy:     s.strategy,
		Ready:        state.Ready(snap, s.pairs),
		Heartbeat:    snap.Heartbeat,
		BlockNumber:  snap.BlockNumber,
		FeedPrices:   snap.FeedPrices,
		OraclePrices: snap.OraclePrices,
		SynthPrices:  snap.SynthPrices,
	}
	if resp.Ready {
		resp.OracleToFeed = divergence.HumanReadableSet(divergence.OracleToFeed(snap, s.pairs))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleActiveTrades(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.trades.ActiveTrades())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
