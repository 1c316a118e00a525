package main

import (
	"encoding/json"
	"net/http"
	"time"

	"nova-trader/internal/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// APIHandler holds dependencies for the API endpoints.
type APIHandler struct {
	log *zap.Logger
	db  *gorm.DB
}

// NewAPIHandler creates a new APIHandler.
func NewAPIHandler(log *zap.Logger, db *gorm.DB) *APIHandler {
	return &APIHandler{log: log, db: db}
}

// SignalsHandler returns all persisted signals, most recent first.
func (h *APIHandler) SignalsHandler(w http.ResponseWriter, r *http.Request) {
	var signals []models.Signal
	if err := h.db.Order("timestamp desc").Find(&signals).Error; err != nil {
		h.log.Error("Failed to get signals from database", zap.Error(err))
		http.Error(w, "Failed to get signals", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(signals)
}

// TradesHandler returns all historical fills.
func (h *APIHandler) TradesHandler(w http.ResponseWriter, r *http.Request) {
	var trades []models.TradeRecord
	// Order by most recent first
	if err := h.db.Order("timestamp desc").Find(&trades).Error; err != nil {
		h.log.Error("Failed to get trades from database", zap.Error(err))
		http.Error(w, "Failed to get trades", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(trades)
}

// StatsDetail holds calculated statistics for a given period.
type StatsDetail struct {
	TotalTrades      int64   `json:"total_trades"`
	ProfitableTrades int64   `json:"profitable_trades"`
	WinRate          float64 `json:"win_rate"`
	TotalProfit      float64 `json:"total_profit"`
}

// StatisticsResponse is the structure for the /api/statistics endpoint.
type StatisticsResponse struct {
	Since24h StatsDetail `json:"since_24h"`
	AllTime  StatsDetail `json:"all_time"`
}

// StatisticsHandler calculates and returns trading statistics from fills
// that closed or reduced a position.
func (h *APIHandler) StatisticsHandler(w http.ResponseWriter, r *http.Request) {
	var closingTrades []models.TradeRecord
	if err := h.db.Where("realized_pnl != ?", 0).Find(&closingTrades).Error; err != nil {
		h.log.Error("Failed to get trades for statistics", zap.Error(err))
		http.Error(w, "Failed to calculate statistics", http.StatusInternalServerError)
		return
	}

	now := time.Now()
	since24h := now.Add(-24 * time.Hour)

	stats24h := StatsDetail{}
	statsAllTime := StatsDetail{}

	for _, trade := range closingTrades {
		// Calculate for all time
		statsAllTime.TotalTrades++
		if trade.RealizedPnL > 0 {
			statsAllTime.ProfitableTrades++
		}
		statsAllTime.TotalProfit += trade.RealizedPnL

		// Calculate for last 24 hours. Timestamps are unix seconds.
		tradeTime := time.Unix(trade.Timestamp, 0)
		if tradeTime.After(since24h) {
			stats24h.TotalTrades++
			if trade.RealizedPnL > 0 {
				stats24h.ProfitableTrades++
			}
			stats24h.TotalProfit += trade.RealizedPnL
		}
	}

	if statsAllTime.TotalTrades > 0 {
		statsAllTime.WinRate = float64(statsAllTime.ProfitableTrades) / float64(statsAllTime.TotalTrades)
	}
	if stats24h.TotalTrades > 0 {
		stats24h.WinRate = float64(stats24h.ProfitableTrades) / float64(stats24h.TotalTrades)
	}

	response := StatisticsResponse{
		Since24h: stats24h,
		AllTime:  statsAllTime,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}
