package strategy

import (
	"go.uber.org/zap"

	"nova-trader/internal/marketdata"
)

// Strategy defines the interface for a signal source the engine can run.
type Strategy interface {
	// Name returns the unique name of the strategy.
	Name() string

	// Evaluate derives signals from an ascending bar series.
	Evaluate(bars []marketdata.Bar) ([]Signal, error)
}

// NovaStrategy emits a signal whenever the close crosses out of a
// volatility-scaled channel around EMAs of bar highs and lows and the
// persistent trend flag flips.
type NovaStrategy struct {
	params Params
	logger *zap.Logger
}

var _ Strategy = (*NovaStrategy)(nil)

// NewNovaStrategy validates the parameters and builds the strategy.
func NewNovaStrategy(p Params, logger *zap.Logger) (*NovaStrategy, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NovaStrategy{params: p, logger: logger}, nil
}

// Name returns the unique name of the strategy.
func (s *NovaStrategy) Name() string {
	return "NovaV2"
}

// Params returns a copy of the configured parameters.
func (s *NovaStrategy) Params() Params {
	return s.params
}

// Evaluate runs the indicator, trend and signal stages in order. It holds no
// state between calls: evaluating the same series twice yields identical
// output.
func (s *NovaStrategy) Evaluate(bars []marketdata.Bar) ([]Signal, error) {
	if len(bars) == 0 {
		return nil, nil
	}

	rows := ComputeIndicators(bars, s.params)
	states := FoldTrend(bars, rows)
	signals := BuildSignals(bars, rows, states, s.params)

	s.logger.Debug("Strategy evaluation complete",
		zap.Int("bars", len(bars)),
		zap.Int("signals", len(signals)),
		zap.String("final_trend", states[len(states)-1].String()),
	)

	return signals, nil
}
