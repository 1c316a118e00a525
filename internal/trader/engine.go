package trader

import (
	"context"
	"errors"
	"sync"
	"time"

	"nova-trader/internal/broker"
	"nova-trader/internal/config"
	"nova-trader/internal/marketdata"
	"nova-trader/internal/models"
	"nova-trader/internal/strategy"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Engine is the core trading loop: it polls bars per symbol, runs the
// strategy over them, persists new signals and forwards them to the broker
// as market orders.
type Engine struct {
	UUID      string
	StartTime time.Time

	logger   *zap.Logger
	cfg      *config.Config
	market   marketdata.ClientInterface
	db       *gorm.DB
	strategy strategy.Strategy
	broker   broker.Broker

	// brokerMu serializes broker access between the scan loop and the
	// API server; the simulator itself is not safe for concurrent use.
	brokerMu sync.Mutex

	state map[string]*symbolState
}

// symbolState tracks what the engine has already seen for one symbol. The
// first scan only backfills historical signals; trading starts with the
// first flip that happens after that.
type symbolState struct {
	bootstrapped bool
	lastSignalAt time.Time
}

// NewEngine creates a new trading engine.
func NewEngine(logger *zap.Logger, cfg *config.Config, market marketdata.ClientInterface, db *gorm.DB, strat strategy.Strategy, brk broker.Broker) *Engine {
	return &Engine{
		UUID:      uuid.NewString(),
		StartTime: time.Now(),
		logger:    logger,
		cfg:       cfg,
		market:    market,
		db:        db,
		strategy:  strat,
		broker:    brk,
		state:     make(map[string]*symbolState),
	}
}

// Strategy returns the strategy the engine runs.
func (e *Engine) Strategy() strategy.Strategy {
	return e.strategy
}

// Broker returns the broker the engine trades against. Callers outside the
// scan goroutine should prefer the synchronized accessors below.
func (e *Engine) Broker() broker.Broker {
	return e.broker
}

// Balance reads the current account snapshot.
func (e *Engine) Balance() (broker.BalanceSnapshot, error) {
	e.brokerMu.Lock()
	defer e.brokerMu.Unlock()
	return e.broker.Balance()
}

// Positions reads the open positions.
func (e *Engine) Positions() ([]broker.Position, error) {
	e.brokerMu.Lock()
	defer e.brokerMu.Unlock()
	return e.broker.Positions()
}

// Orders reads every order the broker has seen.
func (e *Engine) Orders() ([]broker.Order, error) {
	e.brokerMu.Lock()
	defer e.brokerMu.Unlock()
	return e.broker.Orders()
}

// Order reads a single order by id.
func (e *Engine) Order(id string) (broker.Order, error) {
	e.brokerMu.Lock()
	defer e.brokerMu.Unlock()
	return e.broker.Order(id)
}

// Run starts the trading engine's main loop.
func (e *Engine) Run(ctx context.Context) {
	e.logger.Info("Initializing trading engine...")
	e.brokerMu.Lock()
	err := e.broker.Connect()
	e.brokerMu.Unlock()
	if err != nil {
		e.logger.Fatal("Failed to connect broker", zap.Error(err))
	}
	defer func() {
		e.brokerMu.Lock()
		e.broker.Disconnect()
		e.brokerMu.Unlock()
	}()

	interval := time.Duration(e.cfg.Trading.TickInterval) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	e.logger.Info("Starting scan loop",
		zap.Duration("interval", interval),
		zap.Strings("symbols", e.cfg.Trading.Symbols),
		zap.String("strategy", e.strategy.Name()),
		zap.Bool("auto_trade", e.cfg.Trading.AutoTrade),
	)

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("Stopping trading engine...")
			return
		case <-ticker.C:
			for _, symbol := range e.cfg.Trading.Symbols {
				if err := e.scan(symbol); err != nil {
					e.logger.Error("Scan failed", zap.String("symbol", symbol), zap.Error(err))
				}
			}
		}
	}
}

// scan performs one evaluation round for a symbol: fetch bars, derive
// signals, act on the new ones and resolve resting orders against the
// latest bar.
func (e *Engine) scan(symbol string) error {
	bars, err := e.market.GetBars(symbol, e.cfg.Trading.Interval, e.cfg.Trading.BarLimit)
	if err != nil {
		return err
	}
	if len(bars) == 0 {
		e.logger.Warn("No bars returned", zap.String("symbol", symbol))
		return nil
	}

	signals, err := e.strategy.Evaluate(bars)
	if err != nil {
		return err
	}

	st := e.state[symbol]
	if st == nil {
		st = &symbolState{lastSignalAt: e.lastPersistedSignal(symbol)}
		e.state[symbol] = st
	}

	// Broker access below; the market fetch and evaluation above stay
	// outside the lock.
	e.brokerMu.Lock()
	defer e.brokerMu.Unlock()

	for _, sig := range signals {
		if !sig.Timestamp.After(st.lastSignalAt) {
			continue
		}
		st.lastSignalAt = sig.Timestamp

		e.saveSignal(symbol, sig)

		// The bootstrap scan only backfills history; trading on a stale
		// flip would enter far from its entry price.
		if st.bootstrapped && e.cfg.Trading.AutoTrade {
			e.placeSignalOrder(symbol, sig)
		}
	}
	st.bootstrapped = true

	// Resolve resting orders against the newest bar and mark the book.
	latest := bars[len(bars)-1]
	filled, err := e.broker.ProcessBar(symbol, latest)
	if err != nil {
		return err
	}
	for _, id := range filled {
		order, err := e.broker.Order(id)
		if err != nil {
			e.logger.Error("Filled order disappeared", zap.String("order_id", id), zap.Error(err))
			continue
		}
		e.saveTrade(order)
	}

	return nil
}

// placeSignalOrder forwards a signal to the broker as a market order sized
// from config, using the signal's entry price as the reference mark.
func (e *Engine) placeSignalOrder(symbol string, sig strategy.Signal) {
	side := broker.SideBuy
	if sig.Type == strategy.SignalSell {
		side = broker.SideSell
	}

	l := e.logger.With(
		zap.String("symbol", symbol),
		zap.String("side", string(side)),
		zap.Float64("entry", sig.EntryPrice),
	)

	res, err := e.broker.PlaceOrder(broker.OrderRequest{
		Symbol:         symbol,
		Side:           side,
		Quantity:       e.cfg.Trading.Quantity,
		Kind:           broker.OrderMarket,
		ReferencePrice: sig.EntryPrice,
	})
	if err != nil {
		l.Error("Failed to place order", zap.Error(err))
		return
	}
	if res.Status == broker.StatusRejected {
		l.Warn("Order rejected", zap.String("reason", res.Message))
		return
	}

	l.Info("Signal order filled", zap.String("order_id", res.OrderID), zap.Float64("price", res.FilledPrice))

	order, err := e.broker.Order(res.OrderID)
	if err != nil {
		l.Error("Filled order disappeared", zap.Error(err))
		return
	}
	e.saveTrade(order)
}

// lastPersistedSignal returns the timestamp of the newest stored signal for
// the symbol. Seeding the symbol state with it keeps a restarted process
// from re-recording the whole fetched window.
func (e *Engine) lastPersistedSignal(symbol string) time.Time {
	var sig models.Signal
	err := e.db.Where("symbol = ?", symbol).Order("timestamp desc").First(&sig).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			e.logger.Error("Failed to load last signal", zap.String("symbol", symbol), zap.Error(err))
		}
		return time.Time{}
	}
	return time.Unix(sig.Timestamp, 0)
}

func (e *Engine) saveSignal(symbol string, sig strategy.Signal) {
	record := models.Signal{
		Symbol:     symbol,
		Type:       string(sig.Type),
		Timestamp:  sig.Timestamp.Unix(),
		EntryPrice: sig.EntryPrice,
		StopPrice:  sig.StopPrice,
		Target1:    sig.Target1,
		Target2:    sig.Target2,
		Target3:    sig.Target3,
		Volatility: sig.Volatility,
	}
	if err := e.db.Create(&record).Error; err != nil {
		e.logger.Error("Failed to save signal", zap.String("symbol", symbol), zap.Error(err))
		return
	}
	e.logger.Info("Signal recorded",
		zap.String("symbol", symbol),
		zap.String("type", record.Type),
		zap.Float64("entry", record.EntryPrice),
		zap.Float64("stop", record.StopPrice),
	)
}

func (e *Engine) saveTrade(order broker.Order) {
	record := models.TradeRecord{
		OrderID:      order.ID,
		Symbol:       order.Symbol,
		Side:         string(order.Side),
		Quantity:     order.Quantity,
		Price:        order.FilledPrice,
		Notional:     order.FilledPrice * order.Quantity,
		Timestamp:    order.FilledAt.Unix(),
		RealizedPnL:  order.RealizedPnL,
		IsSimulation: true,
	}
	if err := e.db.Create(&record).Error; err != nil {
		e.logger.Error("Failed to save trade record", zap.String("order_id", order.ID), zap.Error(err))
		return
	}
	e.logger.Info("Trade recorded",
		zap.String("order_id", order.ID),
		zap.String("symbol", order.Symbol),
		zap.Float64("price", order.FilledPrice),
	)
}
