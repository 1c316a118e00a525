package strategy

import "nova-trader/internal/marketdata"

// TrendState is the persistent tri-state trend flag. It starts Unknown,
// resolves to Up or Down on the first qualifying crossing and never returns
// to Unknown afterwards.
type TrendState int

const (
	TrendUnknown TrendState = iota
	TrendUp
	TrendDown
)

func (s TrendState) String() string {
	switch s {
	case TrendUp:
		return "UP"
	case TrendDown:
		return "DOWN"
	default:
		return "UNKNOWN"
	}
}

// FoldTrend left-folds the band series into a recorded trend state per bar.
// A bar without a qualifying crossing repeats the previous recorded state;
// crossings require both the current and the previous indicator row to be
// defined.
func FoldTrend(bars []marketdata.Bar, rows []IndicatorRow) []TrendState {
	states := make([]TrendState, len(bars))
	current := TrendUnknown

	for i := range bars {
		up := crossedUp(bars, rows, i)
		down := crossedDown(bars, rows, i)

		switch current {
		case TrendUnknown:
			if up {
				current = TrendUp
			} else if down {
				current = TrendDown
			}
		case TrendUp:
			if down {
				current = TrendDown
			}
		case TrendDown:
			if up {
				current = TrendUp
			}
		}

		states[i] = current
	}

	return states
}

// crossedUp reports a close moving from at-or-below the upper band to above
// it between bar i-1 and bar i.
func crossedUp(bars []marketdata.Bar, rows []IndicatorRow, i int) bool {
	if i < 1 || !rows[i].Defined || !rows[i-1].Defined {
		return false
	}
	return bars[i].Close > rows[i].UpperBand && bars[i-1].Close <= rows[i-1].UpperBand
}

// crossedDown reports a close moving from at-or-above the lower band to
// below it between bar i-1 and bar i.
func crossedDown(bars []marketdata.Bar, rows []IndicatorRow, i int) bool {
	if i < 1 || !rows[i].Defined || !rows[i-1].Defined {
		return false
	}
	return bars[i].Close < rows[i].LowerBand && bars[i-1].Close >= rows[i-1].LowerBand
}
