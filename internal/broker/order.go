package broker

import "time"

// Side is the direction of an order.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// OrderKind is the execution style of an order.
type OrderKind string

const (
	OrderMarket    OrderKind = "MARKET"
	OrderLimit     OrderKind = "LIMIT"
	OrderStop      OrderKind = "STOP"
	OrderStopLimit OrderKind = "STOP_LIMIT"
)

// OrderStatus is the lifecycle state of an order. Orders are immutable once
// FILLED or CANCELLED.
type OrderStatus string

const (
	StatusPending   OrderStatus = "PENDING"
	StatusFilled    OrderStatus = "FILLED"
	StatusCancelled OrderStatus = "CANCELLED"
	StatusRejected  OrderStatus = "REJECTED"
)

// Order is a simulated order. A zero LimitPrice or TriggerPrice means the
// field is unset.
type Order struct {
	ID           string      `json:"id"`
	Symbol       string      `json:"symbol"`
	Side         Side        `json:"side"`
	Quantity     float64     `json:"quantity"`
	Kind         OrderKind   `json:"kind"`
	LimitPrice   float64     `json:"limit_price,omitempty"`
	TriggerPrice float64     `json:"trigger_price,omitempty"`
	Status       OrderStatus `json:"status"`
	RequestedAt  time.Time   `json:"requested_at"`
	FilledAt     time.Time   `json:"filled_at,omitempty"`
	FilledPrice  float64     `json:"filled_price,omitempty"`
	// RealizedPnL is the PnL this fill realized against an opposite
	// position, if any.
	RealizedPnL float64 `json:"realized_pnl,omitempty"`
}

// OrderRequest is a placement request. ReferencePrice is the caller's
// current mark for the symbol; the simulator has no live feed of its own, so
// MARKET orders require it and LIMIT orders use it to decide on an immediate
// fill.
type OrderRequest struct {
	Symbol         string    `json:"symbol"`
	Side           Side      `json:"side"`
	Quantity       float64   `json:"quantity"`
	Kind           OrderKind `json:"kind"`
	LimitPrice     float64   `json:"limit_price,omitempty"`
	TriggerPrice   float64   `json:"trigger_price,omitempty"`
	ReferencePrice float64   `json:"reference_price,omitempty"`
}

// OrderUpdate carries the fields of a pending order that may be modified.
// Zero values leave the corresponding field unchanged.
type OrderUpdate struct {
	Quantity     float64 `json:"quantity,omitempty"`
	LimitPrice   float64 `json:"limit_price,omitempty"`
	TriggerPrice float64 `json:"trigger_price,omitempty"`
}

// OrderResult is the structured outcome of an order-affecting call. Status
// carries the order's resulting state; rejections set Message and never
// mutate simulator state.
type OrderResult struct {
	Status      OrderStatus `json:"status"`
	OrderID     string      `json:"order_id,omitempty"`
	FilledPrice float64     `json:"filled_price,omitempty"`
	Message     string      `json:"message"`
}

// BalanceSnapshot is a read-only projection of the account, marked to the
// last known prices.
type BalanceSnapshot struct {
	Cash           float64 `json:"cash"`
	PortfolioValue float64 `json:"portfolio_value"`
	MarginUsed     float64 `json:"margin_used"`
	UnrealizedPnL  float64 `json:"unrealized_pnl"`
	RealizedPnL    float64 `json:"realized_pnl"`
}
