package strategy

import (
	"fmt"

	"nova-trader/internal/config"
)

// Params are the band-trend signal parameters. All fields are required;
// invalid values are rejected at strategy construction.
type Params struct {
	// PeriodTrend is the EMA length for the high/low averages the bands
	// are offset from.
	PeriodTrend int
	// PeriodVolatility is the rolling true-range window.
	PeriodVolatility int
	// PeriodSmoothing is the secondary moving-average window applied to
	// the rolled true range.
	PeriodSmoothing int
	// VolatilityMultiplier scales the smoothed true range into the band
	// offset.
	VolatilityMultiplier float64
	// TargetOffset shifts the profit-target ladder multiples.
	TargetOffset int
	// EmitInitialSignal controls whether the very first trend
	// determination (Unknown resolving to Up or Down) produces a signal.
	EmitInitialSignal bool
}

// ParamsFromConfig maps the strategy section of the configuration.
func ParamsFromConfig(cfg config.Strategy) Params {
	return Params{
		PeriodTrend:          cfg.PeriodTrend,
		PeriodVolatility:     cfg.PeriodVolatility,
		PeriodSmoothing:      cfg.PeriodSmoothing,
		VolatilityMultiplier: cfg.VolatilityMultiplier,
		TargetOffset:         cfg.TargetOffset,
		EmitInitialSignal:    cfg.EmitInitialSignal,
	}
}

// Validate reports the first invalid parameter, if any.
func (p Params) Validate() error {
	if p.PeriodTrend < 1 {
		return fmt.Errorf("strategy: period_trend must be >= 1, got %d", p.PeriodTrend)
	}
	if p.PeriodVolatility < 1 {
		return fmt.Errorf("strategy: period_volatility must be >= 1, got %d", p.PeriodVolatility)
	}
	if p.PeriodSmoothing < 1 {
		return fmt.Errorf("strategy: period_smoothing must be >= 1, got %d", p.PeriodSmoothing)
	}
	if p.VolatilityMultiplier <= 0 {
		return fmt.Errorf("strategy: volatility_multiplier must be > 0, got %f", p.VolatilityMultiplier)
	}
	if p.TargetOffset < 0 {
		return fmt.Errorf("strategy: target_offset must be >= 0, got %d", p.TargetOffset)
	}
	return nil
}
