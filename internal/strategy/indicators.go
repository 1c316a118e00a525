package strategy

import (
	"math"

	"nova-trader/internal/marketdata"
)

// IndicatorRow holds the per-bar derived values the trend machine runs on.
// A row is Defined only once every window behind it has filled; undefined
// rows never participate in crossing detection.
type IndicatorRow struct {
	Volatility float64
	EMAHigh    float64
	EMALow     float64
	UpperBand  float64
	LowerBand  float64
	Defined    bool
}

// ComputeIndicators derives the volatility-scaled band channel for a bar
// series. It is a pure transform: the same input always produces the same
// rows and nothing is mutated.
//
// Per bar: true range = max(high-low, |high-prevClose|, |low-prevClose|),
// rolled over PeriodVolatility bars, smoothed again over PeriodSmoothing and
// scaled by VolatilityMultiplier. The bands offset an EMA of highs and an EMA
// of lows (length PeriodTrend) by that volatility value.
func ComputeIndicators(bars []marketdata.Bar, p Params) []IndicatorRow {
	n := len(bars)
	rows := make([]IndicatorRow, n)
	if n == 0 {
		return rows
	}

	// True range needs the previous close, so it starts at index 1.
	tr := make([]float64, n)
	for i := 1; i < n; i++ {
		hl := bars[i].High - bars[i].Low
		hc := math.Abs(bars[i].High - bars[i-1].Close)
		lc := math.Abs(bars[i].Low - bars[i-1].Close)
		tr[i] = math.Max(hl, math.Max(hc, lc))
	}

	// Rolling mean of the true range: first defined once PeriodVolatility
	// values exist, i.e. at index PeriodVolatility.
	atr := make([]float64, n)
	atrStart := p.PeriodVolatility
	rollingMean(tr, atr, 1, p.PeriodVolatility)

	// Second smoothing pass over the rolled true range.
	smoothed := make([]float64, n)
	smoothStart := atrStart + p.PeriodSmoothing - 1
	rollingMean(atr, smoothed, atrStart, p.PeriodSmoothing)

	// SMA-seeded EMAs of highs and lows.
	highs := make([]float64, n)
	lows := make([]float64, n)
	for i, b := range bars {
		highs[i] = b.High
		lows[i] = b.Low
	}
	emaHigh := emaSeries(highs, p.PeriodTrend)
	emaLow := emaSeries(lows, p.PeriodTrend)
	emaStart := p.PeriodTrend - 1

	start := smoothStart
	if emaStart > start {
		start = emaStart
	}

	for i := start; i < n; i++ {
		vol := smoothed[i] * p.VolatilityMultiplier
		rows[i] = IndicatorRow{
			Volatility: vol,
			EMAHigh:    emaHigh[i],
			EMALow:     emaLow[i],
			UpperBand:  emaHigh[i] + vol,
			LowerBand:  emaLow[i] - vol,
			Defined:    true,
		}
	}

	return rows
}

// rollingMean writes the mean of the trailing window of src into dst.
// src is considered defined from index from onward; dst[i] is written for
// i >= from+window-1.
func rollingMean(src, dst []float64, from, window int) {
	sum := 0.0
	for i := from; i < len(src); i++ {
		sum += src[i]
		if i-from+1 < window {
			continue
		}
		if i-from+1 > window {
			sum -= src[i-window]
		}
		dst[i] = sum / float64(window)
	}
}

// emaSeries computes an exponential moving average seeded with the simple
// mean of the first period values. Indices before period-1 are left zero
// and treated as undefined by the caller.
func emaSeries(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	if len(values) < period {
		return out
	}

	sum := 0.0
	for i := 0; i < period; i++ {
		sum += values[i]
	}
	out[period-1] = sum / float64(period)

	alpha := 2.0 / (float64(period) + 1.0)
	for i := period; i < len(values); i++ {
		out[i] = alpha*values[i] + (1-alpha)*out[i-1]
	}
	return out
}
