package trader

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"nova-trader/internal/broker"
	"nova-trader/internal/models"

	"go.uber.org/zap"
)

// APIServer provides an HTTP interface for the trading engine: status plus
// read-only projections of the paper account.
type APIServer struct {
	server *http.Server
	engine *Engine
	logger *zap.Logger
}

// NewAPIServer creates a new APIServer.
func NewAPIServer(engine *Engine, logger *zap.Logger) *APIServer {
	mux := http.NewServeMux()
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", engine.cfg.Server.ApiPort),
		Handler: mux,
	}

	s := &APIServer{
		server: server,
		engine: engine,
		logger: logger.Named("api-server"),
	}

	mux.HandleFunc("/status", s.statusHandler)
	mux.HandleFunc("/health", s.healthHandler)
	mux.HandleFunc("/balance", s.balanceHandler)
	mux.HandleFunc("/positions", s.positionsHandler)
	mux.HandleFunc("/orders", s.ordersHandler)
	mux.HandleFunc("/signals", s.signalsHandler)

	return s
}

// Start runs the HTTP server in a new goroutine.
func (s *APIServer) Start() {
	s.logger.Info("Starting API server", zap.String("address", s.server.Addr))
	go func() {
		if err := s.server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server failed", zap.Error(err))
		}
	}()
}

// Stop gracefully shuts down the server.
func (s *APIServer) Stop(ctx context.Context) error {
	s.logger.Info("Stopping API server...")
	return s.server.Shutdown(ctx)
}

func (s *APIServer) statusHandler(w http.ResponseWriter, r *http.Request) {
	status := struct {
		UUID      string `json:"uuid"`
		Strategy  string `json:"strategy"`
		StartTime string `json:"start_time"`
		Uptime    string `json:"uptime"`
	}{
		UUID:      s.engine.UUID,
		Strategy:  s.engine.strategy.Name(),
		StartTime: s.engine.StartTime.Format(time.RFC3339),
		Uptime:    time.Since(s.engine.StartTime).String(),
	}

	s.writeJSON(w, status)
}

func (s *APIServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "OK")
}

func (s *APIServer) balanceHandler(w http.ResponseWriter, r *http.Request) {
	balance, err := s.engine.Balance()
	if err != nil {
		s.brokerError(w, err)
		return
	}
	s.writeJSON(w, balance)
}

func (s *APIServer) positionsHandler(w http.ResponseWriter, r *http.Request) {
	positions, err := s.engine.Positions()
	if err != nil {
		s.brokerError(w, err)
		return
	}
	s.writeJSON(w, positions)
}

// ordersHandler lists all orders, or a single one when ?id= is given.
func (s *APIServer) ordersHandler(w http.ResponseWriter, r *http.Request) {
	if id := r.URL.Query().Get("id"); id != "" {
		order, err := s.engine.Order(id)
		if errors.Is(err, broker.ErrOrderNotFound) {
			http.Error(w, "order not found", http.StatusNotFound)
			return
		}
		if err != nil {
			s.brokerError(w, err)
			return
		}
		s.writeJSON(w, order)
		return
	}

	orders, err := s.engine.Orders()
	if err != nil {
		s.brokerError(w, err)
		return
	}
	s.writeJSON(w, orders)
}

// signalsHandler lists the persisted signal history, most recent first.
func (s *APIServer) signalsHandler(w http.ResponseWriter, r *http.Request) {
	signals := make([]models.Signal, 0)
	if err := s.engine.db.Order("timestamp desc").Find(&signals).Error; err != nil {
		s.logger.Error("Failed to load signals", zap.Error(err))
		http.Error(w, "failed to load signals", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, signals)
}

func (s *APIServer) brokerError(w http.ResponseWriter, err error) {
	s.logger.Error("Broker query failed", zap.Error(err))
	http.Error(w, err.Error(), http.StatusServiceUnavailable)
}

func (s *APIServer) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to write response", zap.Error(err))
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
	}
}
