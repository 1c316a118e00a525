package broker

import "math"

// Position is a per-symbol record of signed quantity (positive = long,
// negative = short), weighted average price and the latest mark.
type Position struct {
	Symbol        string  `json:"symbol"`
	Quantity      float64 `json:"quantity"`
	AveragePrice  float64 `json:"average_price"`
	MarkPrice     float64 `json:"mark_price"`
	UnrealizedPnL float64 `json:"unrealized_pnl"`
}

// PositionLedger tracks positions by symbol. Values are stored, not
// referenced, so callers never alias ledger state.
//
// Realized PnL is accumulated explicitly per closing fill. The cash balance
// alone would reflect it implicitly, but that leaves closed-trade profit
// invisible in reports.
type PositionLedger struct {
	positions map[string]Position
	realized  float64
}

// NewPositionLedger creates an empty ledger.
func NewPositionLedger() *PositionLedger {
	return &PositionLedger{positions: make(map[string]Position)}
}

// ApplyFill applies a signed fill to the symbol's position and returns the
// PnL realized by it (zero unless the fill closes against an opposite
// position).
//
// A fill in the position's direction (or into a flat book) re-weights the
// average price. An opposite fill first reduces the position's magnitude,
// realizing PnL on the closed part; if it more than offsets the position the
// residual becomes a new position in the fill's direction at the fill price,
// and an exact offset deletes the record.
func (l *PositionLedger) ApplyFill(symbol string, quantity, price float64) float64 {
	pos, ok := l.positions[symbol]
	if !ok || pos.Quantity == 0 {
		l.positions[symbol] = markedPosition(Position{
			Symbol:       symbol,
			Quantity:     quantity,
			AveragePrice: price,
		}, price)
		return 0
	}

	if sameSign(pos.Quantity, quantity) {
		newQty := pos.Quantity + quantity
		pos.AveragePrice = (pos.Quantity*pos.AveragePrice + quantity*price) / newQty
		pos.Quantity = newQty
		l.positions[symbol] = markedPosition(pos, price)
		return 0
	}

	// Opposite direction: the overlapping magnitude closes at the fill
	// price and realizes PnL against the held average.
	closed := math.Min(math.Abs(pos.Quantity), math.Abs(quantity))
	realized := (price - pos.AveragePrice) * closed
	if pos.Quantity < 0 {
		realized = -realized
	}
	l.realized += realized

	residual := pos.Quantity + quantity
	switch {
	case residual == 0:
		delete(l.positions, symbol)
	case sameSign(residual, pos.Quantity):
		// Partial close: average price of the remainder is unchanged.
		pos.Quantity = residual
		l.positions[symbol] = markedPosition(pos, price)
	default:
		// Overshoot: the residual opens in the fill's direction at the
		// fill price.
		pos.Quantity = residual
		pos.AveragePrice = price
		l.positions[symbol] = markedPosition(pos, price)
	}
	return realized
}

// Mark revalues the symbol's position at the given price. Unknown symbols
// are ignored.
func (l *PositionLedger) Mark(symbol string, price float64) {
	pos, ok := l.positions[symbol]
	if !ok {
		return
	}
	l.positions[symbol] = markedPosition(pos, price)
}

// Position returns the symbol's position, if one is open.
func (l *PositionLedger) Position(symbol string) (Position, bool) {
	pos, ok := l.positions[symbol]
	return pos, ok
}

// Open returns all non-flat positions.
func (l *PositionLedger) Open() []Position {
	out := make([]Position, 0, len(l.positions))
	for _, pos := range l.positions {
		if pos.Quantity != 0 {
			out = append(out, pos)
		}
	}
	return out
}

// MarketValue is the summed mark value of all open positions.
func (l *PositionLedger) MarketValue() float64 {
	total := 0.0
	for _, pos := range l.positions {
		total += pos.Quantity * pos.MarkPrice
	}
	return total
}

// UnrealizedPnL is the summed open-position PnL at the latest marks.
func (l *PositionLedger) UnrealizedPnL() float64 {
	total := 0.0
	for _, pos := range l.positions {
		total += pos.UnrealizedPnL
	}
	return total
}

// RealizedPnL is the accumulated PnL of all closing fills.
func (l *PositionLedger) RealizedPnL() float64 {
	return l.realized
}

func markedPosition(pos Position, price float64) Position {
	pos.MarkPrice = price
	pos.UnrealizedPnL = (price - pos.AveragePrice) * pos.Quantity
	return pos
}

func sameSign(a, b float64) bool {
	return (a > 0 && b > 0) || (a < 0 && b < 0)
}
