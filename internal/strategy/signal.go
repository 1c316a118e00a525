package strategy

import (
	"time"

	"nova-trader/internal/marketdata"
)

// SignalType is the direction of an emitted signal.
type SignalType string

const (
	SignalBuy  SignalType = "BUY"
	SignalSell SignalType = "SELL"
)

// Signal is an entry/stop/target record emitted at a trend flip. It is
// immutable once produced.
type Signal struct {
	Timestamp  time.Time  `json:"timestamp"`
	Type       SignalType `json:"type"`
	EntryPrice float64    `json:"entry_price"`
	StopPrice  float64    `json:"stop_price"`
	Target1    float64    `json:"target1"`
	Target2    float64    `json:"target2"`
	Target3    float64    `json:"target3"`
	Volatility float64    `json:"volatility"`
}

// BuildSignals converts trend transitions into signal records. A transition
// is any bar whose recorded state differs from the previous bar's; the
// initial Unknown resolution counts only when EmitInitialSignal is set.
//
// Entry is the close of the transition bar. The stop is the opposite band at
// that bar, and the targets step away from entry by volatility multiples of
// 4+o, 8+2o and 12+3o where o is TargetOffset.
func BuildSignals(bars []marketdata.Bar, rows []IndicatorRow, states []TrendState, p Params) []Signal {
	var signals []Signal

	for i := 1; i < len(states); i++ {
		if states[i] == states[i-1] {
			continue
		}
		if states[i-1] == TrendUnknown && !p.EmitInitialSignal {
			continue
		}
		signals = append(signals, buildSignal(bars[i], rows[i], states[i], p))
	}

	return signals
}

func buildSignal(bar marketdata.Bar, row IndicatorRow, state TrendState, p Params) Signal {
	v := row.Volatility
	o := float64(p.TargetOffset)
	entry := bar.Close

	sig := Signal{
		Timestamp:  bar.Timestamp,
		EntryPrice: entry,
		Volatility: v,
	}

	if state == TrendUp {
		sig.Type = SignalBuy
		sig.StopPrice = row.LowerBand
		sig.Target1 = entry + v*(4+o)
		sig.Target2 = entry + v*(8+2*o)
		sig.Target3 = entry + v*(12+3*o)
	} else {
		sig.Type = SignalSell
		sig.StopPrice = row.UpperBand
		sig.Target1 = entry - v*(4+o)
		sig.Target2 = entry - v*(8+2*o)
		sig.Target3 = entry - v*(12+3*o)
	}

	return sig
}
