package broker

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLedgerWeightedAverage(t *testing.T) {
	l := NewPositionLedger()

	l.ApplyFill("TEST", 10, 100)
	l.ApplyFill("TEST", 10, 110)

	pos, ok := l.Position("TEST")
	assert.True(t, ok)
	assert.InDelta(t, 20, pos.Quantity, 1e-9)
	assert.InDelta(t, 105, pos.AveragePrice, 1e-9)
}

func TestLedgerShortWeightedAverage(t *testing.T) {
	l := NewPositionLedger()

	l.ApplyFill("TEST", -10, 100)
	l.ApplyFill("TEST", -10, 90)

	pos, ok := l.Position("TEST")
	assert.True(t, ok)
	assert.InDelta(t, -20, pos.Quantity, 1e-9)
	assert.InDelta(t, 95, pos.AveragePrice, 1e-9)
}

func TestLedgerPartialClose(t *testing.T) {
	l := NewPositionLedger()

	l.ApplyFill("TEST", 10, 100)
	l.ApplyFill("TEST", -4, 110)

	pos, ok := l.Position("TEST")
	assert.True(t, ok)
	assert.InDelta(t, 6, pos.Quantity, 1e-9)
	// Average price of the remainder is unchanged by a reduction.
	assert.InDelta(t, 100, pos.AveragePrice, 1e-9)
	// The closed 4 units realize (110-100) each.
	assert.InDelta(t, 40, l.RealizedPnL(), 1e-9)
}

func TestLedgerExactOffsetDeletes(t *testing.T) {
	l := NewPositionLedger()

	l.ApplyFill("TEST", 10, 100)
	l.ApplyFill("TEST", -10, 120)

	_, ok := l.Position("TEST")
	assert.False(t, ok)
	assert.Empty(t, l.Open())
	assert.InDelta(t, 200, l.RealizedPnL(), 1e-9)
}

func TestLedgerFlip(t *testing.T) {
	l := NewPositionLedger()

	// Long 10 @ 100, then an opposite fill of 15 @ 120 overshoots: the
	// residual 5 opens short at the fill price.
	l.ApplyFill("TEST", 10, 100)
	realized := l.ApplyFill("TEST", -15, 120)
	assert.InDelta(t, 200, realized, 1e-9)

	pos, ok := l.Position("TEST")
	assert.True(t, ok)
	assert.InDelta(t, -5, pos.Quantity, 1e-9)
	assert.InDelta(t, 120, pos.AveragePrice, 1e-9)
	// Only the closed 10 units realize PnL.
	assert.InDelta(t, 200, l.RealizedPnL(), 1e-9)
}

func TestLedgerShortCloseRealizesInverse(t *testing.T) {
	l := NewPositionLedger()

	// Short 10 @ 100, cover at 90: profit 10 per unit.
	l.ApplyFill("TEST", -10, 100)
	l.ApplyFill("TEST", 10, 90)

	_, ok := l.Position("TEST")
	assert.False(t, ok)
	assert.InDelta(t, 100, l.RealizedPnL(), 1e-9)
}

func TestLedgerMark(t *testing.T) {
	l := NewPositionLedger()

	l.ApplyFill("LONG", 10, 100)
	l.ApplyFill("SHORT", -10, 100)

	l.Mark("LONG", 110)
	l.Mark("SHORT", 110)
	l.Mark("GHOST", 42) // unknown symbol, no-op

	long, _ := l.Position("LONG")
	assert.InDelta(t, 110, long.MarkPrice, 1e-9)
	assert.InDelta(t, 100, long.UnrealizedPnL, 1e-9)

	short, _ := l.Position("SHORT")
	assert.InDelta(t, -100, short.UnrealizedPnL, 1e-9)

	assert.InDelta(t, 0, l.UnrealizedPnL(), 1e-9)
	// market value: 10*110 + (-10)*110 = 0
	assert.InDelta(t, 0, l.MarketValue(), 1e-9)
}

func TestLedgerReopenAfterFlat(t *testing.T) {
	l := NewPositionLedger()

	l.ApplyFill("TEST", 10, 100)
	l.ApplyFill("TEST", -10, 105)
	l.ApplyFill("TEST", -3, 107)

	pos, ok := l.Position("TEST")
	assert.True(t, ok)
	assert.InDelta(t, -3, pos.Quantity, 1e-9)
	assert.InDelta(t, 107, pos.AveragePrice, 1e-9)
}
