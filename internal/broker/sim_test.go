package broker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"nova-trader/internal/marketdata"
)

func newTestSim(t *testing.T, balance float64) *Simulator {
	t.Helper()
	s := NewSimulator(balance, FlatFractionMargin{Fraction: 0.2}, zap.NewNop())
	assert.NoError(t, s.Connect())
	return s
}

func bar(low, high, close float64) marketdata.Bar {
	return marketdata.Bar{
		Timestamp: time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
		Open:      close,
		High:      high,
		Low:       low,
		Close:     close,
		Volume:    1000,
	}
}

func TestSimulatorNotConnected(t *testing.T) {
	s := NewSimulator(100000, FlatFractionMargin{Fraction: 0.2}, zap.NewNop())

	_, err := s.PlaceOrder(OrderRequest{})
	assert.ErrorIs(t, err, ErrNotConnected)
	_, err = s.ProcessBar("TEST", bar(1, 2, 1.5))
	assert.ErrorIs(t, err, ErrNotConnected)
	_, err = s.Balance()
	assert.ErrorIs(t, err, ErrNotConnected)
	_, err = s.Positions()
	assert.ErrorIs(t, err, ErrNotConnected)
	_, err = s.Orders()
	assert.ErrorIs(t, err, ErrNotConnected)
	_, err = s.CancelOrder("x")
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestPlaceOrderValidation(t *testing.T) {
	testCases := []struct {
		name string
		req  OrderRequest
	}{
		{name: "MissingSymbol", req: OrderRequest{Side: SideBuy, Quantity: 1, Kind: OrderMarket, ReferencePrice: 10}},
		{name: "BadSide", req: OrderRequest{Symbol: "T", Side: "HOLD", Quantity: 1, Kind: OrderMarket, ReferencePrice: 10}},
		{name: "ZeroQuantity", req: OrderRequest{Symbol: "T", Side: SideBuy, Quantity: 0, Kind: OrderMarket, ReferencePrice: 10}},
		{name: "MarketWithoutReference", req: OrderRequest{Symbol: "T", Side: SideBuy, Quantity: 1, Kind: OrderMarket}},
		{name: "LimitWithoutPrice", req: OrderRequest{Symbol: "T", Side: SideBuy, Quantity: 1, Kind: OrderLimit, ReferencePrice: 10}},
		{name: "StopWithoutTrigger", req: OrderRequest{Symbol: "T", Side: SideSell, Quantity: 1, Kind: OrderStop}},
		{name: "StopLimitWithoutTrigger", req: OrderRequest{Symbol: "T", Side: SideSell, Quantity: 1, Kind: OrderStopLimit, LimitPrice: 10}},
		{name: "UnknownKind", req: OrderRequest{Symbol: "T", Side: SideBuy, Quantity: 1, Kind: "ICEBERG", ReferencePrice: 10}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s := newTestSim(t, 100000)

			res, err := s.PlaceOrder(tc.req)
			assert.NoError(t, err)
			assert.Equal(t, StatusRejected, res.Status)
			assert.NotEmpty(t, res.Message)

			// A rejected request never creates an order or moves cash.
			orders, _ := s.Orders()
			assert.Empty(t, orders)
			bal, _ := s.Balance()
			assert.InDelta(t, 100000, bal.Cash, 1e-9)
		})
	}
}

func TestMarketOrderFillsImmediately(t *testing.T) {
	s := newTestSim(t, 100000)

	res, err := s.PlaceOrder(OrderRequest{
		Symbol: "TEST", Side: SideBuy, Quantity: 10, Kind: OrderMarket, ReferencePrice: 100,
	})
	assert.NoError(t, err)
	assert.Equal(t, StatusFilled, res.Status)
	assert.InDelta(t, 100, res.FilledPrice, 1e-9)

	bal, _ := s.Balance()
	assert.InDelta(t, 99000, bal.Cash, 1e-9)
	assert.InDelta(t, 200, bal.MarginUsed, 1e-9) // 1000 * 0.2

	positions, _ := s.Positions()
	assert.Len(t, positions, 1)
	assert.InDelta(t, 10, positions[0].Quantity, 1e-9)
	assert.InDelta(t, 100, positions[0].AveragePrice, 1e-9)

	order, err := s.Order(res.OrderID)
	assert.NoError(t, err)
	assert.Equal(t, StatusFilled, order.Status)
	assert.False(t, order.FilledAt.IsZero())
}

func TestMarketBuyInsufficientFunds(t *testing.T) {
	s := newTestSim(t, 500)

	res, err := s.PlaceOrder(OrderRequest{
		Symbol: "TEST", Side: SideBuy, Quantity: 10, Kind: OrderMarket, ReferencePrice: 100,
	})
	assert.NoError(t, err)
	assert.Equal(t, StatusRejected, res.Status)
	assert.Contains(t, res.Message, "insufficient funds")

	// Rejection happens before any state mutation.
	bal, _ := s.Balance()
	assert.InDelta(t, 500, bal.Cash, 1e-9)
	assert.InDelta(t, 0, bal.MarginUsed, 1e-9)
	orders, _ := s.Orders()
	assert.Empty(t, orders)
}

func TestShortSellCreditsProceeds(t *testing.T) {
	s := newTestSim(t, 100000)

	res, err := s.PlaceOrder(OrderRequest{
		Symbol: "TEST", Side: SideSell, Quantity: 10, Kind: OrderMarket, ReferencePrice: 100,
	})
	assert.NoError(t, err)
	assert.Equal(t, StatusFilled, res.Status)

	bal, _ := s.Balance()
	assert.InDelta(t, 101000, bal.Cash, 1e-9)

	positions, _ := s.Positions()
	assert.Len(t, positions, 1)
	assert.InDelta(t, -10, positions[0].Quantity, 1e-9)
}

func TestReversalUpdatesCashAndPosition(t *testing.T) {
	s := newTestSim(t, 100000)

	_, err := s.PlaceOrder(OrderRequest{
		Symbol: "TEST", Side: SideBuy, Quantity: 10, Kind: OrderMarket, ReferencePrice: 100,
	})
	assert.NoError(t, err)
	preTrade, _ := s.Balance()

	// Selling 15 with a fill at 120 flips long 10 into short 5 @ 120 and
	// credits the full 15x120.
	res, err := s.PlaceOrder(OrderRequest{
		Symbol: "TEST", Side: SideSell, Quantity: 15, Kind: OrderMarket, ReferencePrice: 120,
	})
	assert.NoError(t, err)
	assert.Equal(t, StatusFilled, res.Status)

	bal, _ := s.Balance()
	assert.InDelta(t, preTrade.Cash+15*120, bal.Cash, 1e-9)
	assert.InDelta(t, 200, bal.RealizedPnL, 1e-9)

	positions, _ := s.Positions()
	assert.Len(t, positions, 1)
	assert.InDelta(t, -5, positions[0].Quantity, 1e-9)
	assert.InDelta(t, 120, positions[0].AveragePrice, 1e-9)

	// The fill carries the PnL it realized on the closed 10 units.
	order, _ := s.Order(res.OrderID)
	assert.InDelta(t, 200, order.RealizedPnL, 1e-9)
}

func TestLimitBuyImmediateFill(t *testing.T) {
	s := newTestSim(t, 100000)

	// Reference already at or below the limit: fills now, at the limit.
	res, err := s.PlaceOrder(OrderRequest{
		Symbol: "TEST", Side: SideBuy, Quantity: 10, Kind: OrderLimit, LimitPrice: 50, ReferencePrice: 49,
	})
	assert.NoError(t, err)
	assert.Equal(t, StatusFilled, res.Status)
	assert.InDelta(t, 50, res.FilledPrice, 1e-9)
}

func TestLimitBuyRestsThenFills(t *testing.T) {
	s := newTestSim(t, 100000)

	res, err := s.PlaceOrder(OrderRequest{
		Symbol: "TEST", Side: SideBuy, Quantity: 10, Kind: OrderLimit, LimitPrice: 50, ReferencePrice: 52,
	})
	assert.NoError(t, err)
	assert.Equal(t, StatusPending, res.Status)

	// A bar that never reaches the limit leaves it pending.
	filled, err := s.ProcessBar("TEST", bar(51, 53, 52))
	assert.NoError(t, err)
	assert.Empty(t, filled)

	// Bar {low:49, high:51} reaches the limit: fill at min(50, 51) = 50.
	filled, err = s.ProcessBar("TEST", bar(49, 51, 50))
	assert.NoError(t, err)
	assert.Len(t, filled, 1)

	order, _ := s.Order(res.OrderID)
	assert.Equal(t, StatusFilled, order.Status)
	assert.InDelta(t, 50, order.FilledPrice, 1e-9)
}

func TestLimitSellRestsThenFills(t *testing.T) {
	s := newTestSim(t, 100000)

	// Reference below the limit at placement: rests.
	res, err := s.PlaceOrder(OrderRequest{
		Symbol: "TEST", Side: SideSell, Quantity: 10, Kind: OrderLimit, LimitPrice: 50, ReferencePrice: 48,
	})
	assert.NoError(t, err)
	assert.Equal(t, StatusPending, res.Status)

	filled, err := s.ProcessBar("TEST", bar(47, 49, 48))
	assert.NoError(t, err)
	assert.Empty(t, filled)

	// high >= 50: fill at max(50, low) = 50.
	filled, err = s.ProcessBar("TEST", bar(49, 51, 50))
	assert.NoError(t, err)
	assert.Len(t, filled, 1)

	order, _ := s.Order(res.OrderID)
	assert.InDelta(t, 50, order.FilledPrice, 1e-9)
}

func TestStopOrdersFillAtTrigger(t *testing.T) {
	t.Run("StopSell", func(t *testing.T) {
		s := newTestSim(t, 100000)

		res, err := s.PlaceOrder(OrderRequest{
			Symbol: "TEST", Side: SideSell, Quantity: 10, Kind: OrderStop, TriggerPrice: 48,
		})
		assert.NoError(t, err)
		assert.Equal(t, StatusPending, res.Status)

		// Bar {low:47, high:49} breaches the trigger: fill at 48, not 47.
		filled, err := s.ProcessBar("TEST", bar(47, 49, 47.2))
		assert.NoError(t, err)
		assert.Len(t, filled, 1)

		order, _ := s.Order(res.OrderID)
		assert.InDelta(t, 48, order.FilledPrice, 1e-9)
	})

	t.Run("StopBuy", func(t *testing.T) {
		s := newTestSim(t, 100000)

		res, err := s.PlaceOrder(OrderRequest{
			Symbol: "TEST", Side: SideBuy, Quantity: 10, Kind: OrderStop, TriggerPrice: 52,
		})
		assert.NoError(t, err)

		filled, err := s.ProcessBar("TEST", bar(50, 51.9, 51))
		assert.NoError(t, err)
		assert.Empty(t, filled)

		filled, err = s.ProcessBar("TEST", bar(51, 53, 52.5))
		assert.NoError(t, err)
		assert.Len(t, filled, 1)

		order, _ := s.Order(res.OrderID)
		assert.InDelta(t, 52, order.FilledPrice, 1e-9)
	})
}

func TestStopLimitFills(t *testing.T) {
	t.Run("BuyWithLimit", func(t *testing.T) {
		s := newTestSim(t, 100000)

		res, err := s.PlaceOrder(OrderRequest{
			Symbol: "TEST", Side: SideBuy, Quantity: 10, Kind: OrderStopLimit,
			TriggerPrice: 52, LimitPrice: 52.5,
		})
		assert.NoError(t, err)

		// Triggered like a stop, filled at min(limit, high).
		filled, err := s.ProcessBar("TEST", bar(51, 53, 52.5))
		assert.NoError(t, err)
		assert.Len(t, filled, 1)

		order, _ := s.Order(res.OrderID)
		assert.InDelta(t, 52.5, order.FilledPrice, 1e-9)
	})

	t.Run("SellWithoutLimitFallsBackToTrigger", func(t *testing.T) {
		s := newTestSim(t, 100000)

		res, err := s.PlaceOrder(OrderRequest{
			Symbol: "TEST", Side: SideSell, Quantity: 10, Kind: OrderStopLimit, TriggerPrice: 48,
		})
		assert.NoError(t, err)

		filled, err := s.ProcessBar("TEST", bar(47, 49, 47.5))
		assert.NoError(t, err)
		assert.Len(t, filled, 1)

		order, _ := s.Order(res.OrderID)
		assert.InDelta(t, 48, order.FilledPrice, 1e-9)
	})
}

func TestProcessBarSkipsUnderfundedBuyAndContinues(t *testing.T) {
	s := newTestSim(t, 600)

	// Two resting orders on the same bar: an unaffordable buy and an
	// affordable sell. The buy is skipped, the sell still fills.
	buy, err := s.PlaceOrder(OrderRequest{
		Symbol: "TEST", Side: SideBuy, Quantity: 100, Kind: OrderLimit, LimitPrice: 50, ReferencePrice: 52,
	})
	assert.NoError(t, err)
	sell, err := s.PlaceOrder(OrderRequest{
		Symbol: "TEST", Side: SideSell, Quantity: 1, Kind: OrderStop, TriggerPrice: 49,
	})
	assert.NoError(t, err)

	filled, err := s.ProcessBar("TEST", bar(48, 51, 49))
	assert.NoError(t, err)
	assert.Equal(t, []string{sell.OrderID}, filled)

	buyOrder, _ := s.Order(buy.OrderID)
	assert.Equal(t, StatusPending, buyOrder.Status)
}

func TestProcessBarMarksPosition(t *testing.T) {
	s := newTestSim(t, 100000)

	_, err := s.PlaceOrder(OrderRequest{
		Symbol: "TEST", Side: SideBuy, Quantity: 10, Kind: OrderMarket, ReferencePrice: 100,
	})
	assert.NoError(t, err)

	_, err = s.ProcessBar("TEST", bar(104, 106, 105))
	assert.NoError(t, err)

	positions, _ := s.Positions()
	assert.InDelta(t, 105, positions[0].MarkPrice, 1e-9)
	assert.InDelta(t, 50, positions[0].UnrealizedPnL, 1e-9)

	bal, _ := s.Balance()
	assert.InDelta(t, 50, bal.UnrealizedPnL, 1e-9)
	// portfolio = cash (99000) + 10*105
	assert.InDelta(t, 100050, bal.PortfolioValue, 1e-9)
}

func TestModifyAndCancelLifecycle(t *testing.T) {
	s := newTestSim(t, 100000)

	res, err := s.PlaceOrder(OrderRequest{
		Symbol: "TEST", Side: SideBuy, Quantity: 10, Kind: OrderLimit, LimitPrice: 50, ReferencePrice: 52,
	})
	assert.NoError(t, err)

	// Modify while pending.
	modRes, err := s.ModifyOrder(res.OrderID, OrderUpdate{Quantity: 5, LimitPrice: 49})
	assert.NoError(t, err)
	assert.Equal(t, StatusPending, modRes.Status)

	order, _ := s.Order(res.OrderID)
	assert.InDelta(t, 5, order.Quantity, 1e-9)
	assert.InDelta(t, 49, order.LimitPrice, 1e-9)

	// Cancel while pending.
	cancelRes, err := s.CancelOrder(res.OrderID)
	assert.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelRes.Status)

	// Cancelled orders are immutable.
	_, err = s.ModifyOrder(res.OrderID, OrderUpdate{Quantity: 1})
	assert.ErrorIs(t, err, ErrOrderNotPending)
	_, err = s.CancelOrder(res.OrderID)
	assert.ErrorIs(t, err, ErrOrderNotPending)

	after, _ := s.Order(res.OrderID)
	assert.Equal(t, StatusCancelled, after.Status)
	assert.InDelta(t, 5, after.Quantity, 1e-9)

	// A cancelled order never matches again.
	filled, err := s.ProcessBar("TEST", bar(45, 51, 48))
	assert.NoError(t, err)
	assert.Empty(t, filled)
}

func TestModifyFilledOrderFails(t *testing.T) {
	s := newTestSim(t, 100000)

	res, err := s.PlaceOrder(OrderRequest{
		Symbol: "TEST", Side: SideBuy, Quantity: 10, Kind: OrderMarket, ReferencePrice: 100,
	})
	assert.NoError(t, err)
	assert.Equal(t, StatusFilled, res.Status)

	_, err = s.ModifyOrder(res.OrderID, OrderUpdate{Quantity: 1})
	assert.ErrorIs(t, err, ErrOrderNotPending)
	_, err = s.CancelOrder(res.OrderID)
	assert.ErrorIs(t, err, ErrOrderNotPending)

	order, _ := s.Order(res.OrderID)
	assert.Equal(t, StatusFilled, order.Status)
	assert.InDelta(t, 10, order.Quantity, 1e-9)

	_, err = s.ModifyOrder("no-such-order", OrderUpdate{Quantity: 1})
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestResetRestoresAccount(t *testing.T) {
	s := newTestSim(t, 100000)

	_, err := s.PlaceOrder(OrderRequest{
		Symbol: "TEST", Side: SideBuy, Quantity: 10, Kind: OrderMarket, ReferencePrice: 100,
	})
	assert.NoError(t, err)

	s.Reset(50000)

	bal, _ := s.Balance()
	assert.InDelta(t, 50000, bal.Cash, 1e-9)
	assert.InDelta(t, 0, bal.MarginUsed, 1e-9)
	positions, _ := s.Positions()
	assert.Empty(t, positions)
	orders, _ := s.Orders()
	assert.Empty(t, orders)
}
