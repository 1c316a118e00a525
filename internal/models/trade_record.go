package models

import "gorm.io/gorm"

// TradeRecord represents a completed fill in the database.
type TradeRecord struct {
	gorm.Model
	OrderID      string  `json:"order_id" gorm:"index"`
	Symbol       string  `json:"symbol"`
	Side         string  `json:"side"` // "BUY" or "SELL"
	Quantity     float64 `json:"quantity"`
	Price        float64 `json:"price"`
	Notional     float64 `json:"notional"`
	Timestamp    int64   `json:"timestamp"`
	RealizedPnL  float64 `json:"realized_pnl,omitempty" gorm:"column:realized_pnl"`
	IsSimulation bool    `json:"is_simulation"`
}
