package models

import "gorm.io/gorm"

// Signal is a persisted strategy signal. Rows are written once when the trend
// flips and never updated afterwards.
type Signal struct {
	gorm.Model
	Symbol     string  `json:"symbol" gorm:"index"`
	Type       string  `json:"type"` // "BUY" or "SELL"
	Timestamp  int64   `json:"timestamp" gorm:"index"`
	EntryPrice float64 `json:"entry_price"`
	StopPrice  float64 `json:"stop_price"`
	Target1    float64 `json:"target1"`
	Target2    float64 `json:"target2"`
	Target3    float64 `json:"target3"`
	Volatility float64 `json:"volatility"`
}
