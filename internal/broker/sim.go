package broker

import (
	"fmt"
	"math"
	"sort"
	"time"

	"nova-trader/internal/marketdata"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Simulator is a virtual brokerage. It accepts order requests, matches
// resting orders against successive price bars and maintains a cash balance,
// a margin accumulator and a position ledger.
//
// The simulator is synchronous and not safe for concurrent use; the caller
// serializes PlaceOrder and ProcessBar per instance. A fill is applied as a
// single mutation: cash, margin, ledger and order status always move
// together.
type Simulator struct {
	logger         *zap.Logger
	margin         MarginModel
	initialBalance float64
	cash           float64
	marginUsed     float64
	connected      bool
	orders         map[string]Order
	ledger         *PositionLedger
}

var _ Broker = (*Simulator)(nil)

// NewSimulator creates a disconnected simulator with the given starting cash.
func NewSimulator(initialBalance float64, margin MarginModel, logger *zap.Logger) *Simulator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Simulator{
		logger:         logger.Named("paper"),
		margin:         margin,
		initialBalance: initialBalance,
		cash:           initialBalance,
		orders:         make(map[string]Order),
		ledger:         NewPositionLedger(),
	}
}

// Connect marks the simulator ready for use.
func (s *Simulator) Connect() error {
	s.connected = true
	s.logger.Info("Paper broker connected", zap.Float64("cash", s.cash))
	return nil
}

// Disconnect marks the simulator unavailable. State is retained.
func (s *Simulator) Disconnect() {
	s.connected = false
	s.logger.Info("Paper broker disconnected")
}

// Reset restores the account to a pristine state, discarding all orders and
// positions. A zero newBalance reuses the original starting cash.
func (s *Simulator) Reset(newBalance float64) {
	if newBalance > 0 {
		s.initialBalance = newBalance
	}
	s.cash = s.initialBalance
	s.marginUsed = 0
	s.orders = make(map[string]Order)
	s.ledger = NewPositionLedger()
	s.logger.Info("Paper account reset", zap.Float64("cash", s.cash))
}

// PlaceOrder validates, then fills or queues an order request.
//
// MARKET orders fill at the reference price. LIMIT orders fill at the limit
// price when the reference already satisfies it, otherwise they rest. STOP
// and STOP_LIMIT orders always rest: a trigger needs the price to move to it.
func (s *Simulator) PlaceOrder(req OrderRequest) (OrderResult, error) {
	if !s.connected {
		return OrderResult{}, ErrNotConnected
	}

	if msg := validateRequest(req); msg != "" {
		s.logger.Warn("Order request rejected", zap.String("reason", msg), zap.String("symbol", req.Symbol))
		return OrderResult{Status: StatusRejected, Message: msg}, nil
	}

	order := Order{
		ID:           uuid.NewString(),
		Symbol:       req.Symbol,
		Side:         req.Side,
		Quantity:     req.Quantity,
		Kind:         req.Kind,
		LimitPrice:   req.LimitPrice,
		TriggerPrice: req.TriggerPrice,
		Status:       StatusPending,
		RequestedAt:  time.Now(),
	}

	switch req.Kind {
	case OrderMarket:
		return s.fillNow(order, req.ReferencePrice)

	case OrderLimit:
		satisfied := (req.Side == SideBuy && req.ReferencePrice <= req.LimitPrice) ||
			(req.Side == SideSell && req.ReferencePrice >= req.LimitPrice)
		if req.ReferencePrice > 0 && satisfied {
			return s.fillNow(order, req.LimitPrice)
		}
		return s.queue(order, "limit order placed, pending execution"), nil

	default: // STOP, STOP_LIMIT
		return s.queue(order, fmt.Sprintf("%s order placed, pending trigger", req.Kind)), nil
	}
}

// fillNow checks funds and applies an immediate fill. Nothing is mutated on
// rejection: the order is never created.
func (s *Simulator) fillNow(order Order, price float64) (OrderResult, error) {
	if order.Side == SideBuy && s.cash < price*order.Quantity {
		msg := fmt.Sprintf("insufficient funds: need %.2f, have %.2f", price*order.Quantity, s.cash)
		s.logger.Warn("Order rejected", zap.String("symbol", order.Symbol), zap.String("reason", msg))
		return OrderResult{Status: StatusRejected, Message: msg}, nil
	}

	s.applyFill(&order, price, time.Now())
	return OrderResult{
		Status:      StatusFilled,
		OrderID:     order.ID,
		FilledPrice: price,
		Message:     "order filled",
	}, nil
}

func (s *Simulator) queue(order Order, msg string) OrderResult {
	s.orders[order.ID] = order
	s.logger.Info("Order queued",
		zap.String("order_id", order.ID),
		zap.String("symbol", order.Symbol),
		zap.String("kind", string(order.Kind)),
		zap.String("side", string(order.Side)),
	)
	return OrderResult{Status: StatusPending, OrderID: order.ID, Message: msg}
}

// applyFill is the single point where a fill mutates state: cash, margin,
// ledger and the order record move together or not at all.
func (s *Simulator) applyFill(order *Order, price float64, at time.Time) {
	notional := price * order.Quantity

	signed := order.Quantity
	if order.Side == SideBuy {
		s.cash -= notional
	} else {
		// Sells credit proceeds, short sells included.
		s.cash += notional
		signed = -order.Quantity
	}
	s.marginUsed += s.margin.Required(notional)
	order.RealizedPnL = s.ledger.ApplyFill(order.Symbol, signed, price)

	order.Status = StatusFilled
	order.FilledPrice = price
	order.FilledAt = at
	s.orders[order.ID] = *order

	s.logger.Info("Order filled",
		zap.String("order_id", order.ID),
		zap.String("symbol", order.Symbol),
		zap.String("side", string(order.Side)),
		zap.Float64("price", price),
		zap.Float64("quantity", order.Quantity),
		zap.Float64("cash", s.cash),
	)
}

// ProcessBar matches every pending order on the symbol against one bar and
// marks the position at the bar's close. It returns the ids of the orders
// that filled. A skipped order (condition unmet, or funds short for a
// pending buy) stays PENDING and never aborts the pass for the others.
func (s *Simulator) ProcessBar(symbol string, bar marketdata.Bar) ([]string, error) {
	if !s.connected {
		return nil, ErrNotConnected
	}

	var filled []string
	for _, id := range s.pendingIDs(symbol) {
		order := s.orders[id]
		price, ok := matchOrder(order, bar)
		if !ok {
			continue
		}

		if order.Side == SideBuy && s.cash < price*order.Quantity {
			s.logger.Warn("Insufficient funds for pending order, leaving it queued",
				zap.String("order_id", id), zap.String("symbol", symbol))
			continue
		}

		s.applyFill(&order, price, bar.Timestamp)
		filled = append(filled, id)
	}

	s.ledger.Mark(symbol, bar.Close)
	return filled, nil
}

// pendingIDs returns the symbol's pending order ids in placement order, so a
// matching pass is deterministic regardless of map iteration.
func (s *Simulator) pendingIDs(symbol string) []string {
	ids := make([]string, 0, len(s.orders))
	for id, o := range s.orders {
		if o.Symbol == symbol && o.Status == StatusPending {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := s.orders[ids[i]], s.orders[ids[j]]
		if !a.RequestedAt.Equal(b.RequestedAt) {
			return a.RequestedAt.Before(b.RequestedAt)
		}
		return a.ID < b.ID
	})
	return ids
}

// matchOrder decides whether a resting order fills against a bar and at what
// price. Limit fills are clamped into the bar's range; stops fill at their
// trigger, and stop-limits fall back to the trigger when no limit is set.
func matchOrder(o Order, bar marketdata.Bar) (float64, bool) {
	switch o.Kind {
	case OrderLimit:
		if o.Side == SideBuy && bar.Low <= o.LimitPrice {
			return math.Min(o.LimitPrice, bar.High), true
		}
		if o.Side == SideSell && bar.High >= o.LimitPrice {
			return math.Max(o.LimitPrice, bar.Low), true
		}

	case OrderStop:
		if o.Side == SideBuy && bar.High >= o.TriggerPrice {
			return o.TriggerPrice, true
		}
		if o.Side == SideSell && bar.Low <= o.TriggerPrice {
			return o.TriggerPrice, true
		}

	case OrderStopLimit:
		if o.Side == SideBuy && bar.High >= o.TriggerPrice {
			if o.LimitPrice > 0 {
				return math.Min(o.LimitPrice, bar.High), true
			}
			return o.TriggerPrice, true
		}
		if o.Side == SideSell && bar.Low <= o.TriggerPrice {
			if o.LimitPrice > 0 {
				return math.Max(o.LimitPrice, bar.Low), true
			}
			return o.TriggerPrice, true
		}
	}
	return 0, false
}

// ModifyOrder updates a pending order in place. Filled and cancelled orders
// are immutable: the call reports ErrOrderNotPending and changes nothing.
func (s *Simulator) ModifyOrder(id string, update OrderUpdate) (OrderResult, error) {
	if !s.connected {
		return OrderResult{}, ErrNotConnected
	}
	order, ok := s.orders[id]
	if !ok {
		return OrderResult{Message: "order not found"}, ErrOrderNotFound
	}
	if order.Status != StatusPending {
		return OrderResult{
			Status:  order.Status,
			OrderID: id,
			Message: fmt.Sprintf("cannot modify order in status %s", order.Status),
		}, ErrOrderNotPending
	}

	if update.Quantity > 0 {
		order.Quantity = update.Quantity
	}
	if update.LimitPrice > 0 {
		order.LimitPrice = update.LimitPrice
	}
	if update.TriggerPrice > 0 {
		order.TriggerPrice = update.TriggerPrice
	}
	s.orders[id] = order

	s.logger.Info("Order modified", zap.String("order_id", id))
	return OrderResult{Status: StatusPending, OrderID: id, Message: "order modified"}, nil
}

// CancelOrder cancels a pending order. Filled and cancelled orders are left
// unchanged.
func (s *Simulator) CancelOrder(id string) (OrderResult, error) {
	if !s.connected {
		return OrderResult{}, ErrNotConnected
	}
	order, ok := s.orders[id]
	if !ok {
		return OrderResult{Message: "order not found"}, ErrOrderNotFound
	}
	if order.Status != StatusPending {
		return OrderResult{
			Status:  order.Status,
			OrderID: id,
			Message: fmt.Sprintf("cannot cancel order in status %s", order.Status),
		}, ErrOrderNotPending
	}

	order.Status = StatusCancelled
	s.orders[id] = order

	s.logger.Info("Order cancelled", zap.String("order_id", id))
	return OrderResult{Status: StatusCancelled, OrderID: id, Message: "order cancelled"}, nil
}

// Balance reports the account at the last known marks.
func (s *Simulator) Balance() (BalanceSnapshot, error) {
	if !s.connected {
		return BalanceSnapshot{}, ErrNotConnected
	}
	return BalanceSnapshot{
		Cash:           s.cash,
		PortfolioValue: s.cash + s.ledger.MarketValue(),
		MarginUsed:     s.marginUsed,
		UnrealizedPnL:  s.ledger.UnrealizedPnL(),
		RealizedPnL:    s.ledger.RealizedPnL(),
	}, nil
}

// Positions lists open positions, sorted by symbol.
func (s *Simulator) Positions() ([]Position, error) {
	if !s.connected {
		return nil, ErrNotConnected
	}
	positions := s.ledger.Open()
	sort.Slice(positions, func(i, j int) bool { return positions[i].Symbol < positions[j].Symbol })
	return positions, nil
}

// Orders lists every order the simulator has seen, in placement order.
func (s *Simulator) Orders() ([]Order, error) {
	if !s.connected {
		return nil, ErrNotConnected
	}
	orders := make([]Order, 0, len(s.orders))
	for _, o := range s.orders {
		orders = append(orders, o)
	}
	sort.Slice(orders, func(i, j int) bool {
		if !orders[i].RequestedAt.Equal(orders[j].RequestedAt) {
			return orders[i].RequestedAt.Before(orders[j].RequestedAt)
		}
		return orders[i].ID < orders[j].ID
	})
	return orders, nil
}

// Order looks up a single order by id.
func (s *Simulator) Order(id string) (Order, error) {
	if !s.connected {
		return Order{}, ErrNotConnected
	}
	order, ok := s.orders[id]
	if !ok {
		return Order{}, ErrOrderNotFound
	}
	return order, nil
}

// validateRequest returns a rejection reason for a malformed request, or ""
// when the request is well-formed.
func validateRequest(req OrderRequest) string {
	if req.Symbol == "" {
		return "symbol is required"
	}
	if req.Side != SideBuy && req.Side != SideSell {
		return fmt.Sprintf("unknown side %q", req.Side)
	}
	if req.Quantity <= 0 {
		return fmt.Sprintf("quantity must be positive, got %f", req.Quantity)
	}
	switch req.Kind {
	case OrderMarket:
		if req.ReferencePrice <= 0 {
			return "market order requires a reference price"
		}
	case OrderLimit:
		if req.LimitPrice <= 0 {
			return "limit order requires a limit price"
		}
	case OrderStop, OrderStopLimit:
		if req.TriggerPrice <= 0 {
			return fmt.Sprintf("%s order requires a trigger price", req.Kind)
		}
	default:
		return fmt.Sprintf("unsupported order kind %q", req.Kind)
	}
	return ""
}
