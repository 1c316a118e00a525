package broker

// MarginModel computes the margin consumed by a fill. The simulator treats
// it as an opaque external contract so a real model can be substituted
// without touching the matching logic.
type MarginModel interface {
	// Required returns the margin consumed by a fill of the given
	// notional value.
	Required(notional float64) float64
}

// FlatFractionMargin reserves a fixed fraction of notional on every fill,
// longs and shorts alike, and never releases it on close. It is a
// placeholder, not a margin engine.
type FlatFractionMargin struct {
	Fraction float64
}

var _ MarginModel = FlatFractionMargin{}

func (m FlatFractionMargin) Required(notional float64) float64 {
	return notional * m.Fraction
}
