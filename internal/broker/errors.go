package broker

import "errors"

// Sentinel errors for caller misuse. Trading-condition failures (bad
// requests, insufficient funds) are never returned as errors; they come back
// as REJECTED results so that nothing crosses the API boundary as a panic or
// a lost order.
var (
	// ErrNotConnected is returned when an operation is invoked before
	// Connect, which indicates caller misuse rather than a runtime
	// trading condition.
	ErrNotConnected = errors.New("broker: not connected")

	// ErrOrderNotFound is returned by modify/cancel/lookup for an unknown
	// order id.
	ErrOrderNotFound = errors.New("broker: order not found")

	// ErrOrderNotPending is returned by modify/cancel when the order has
	// already been filled or cancelled. The order is left unchanged.
	ErrOrderNotPending = errors.New("broker: order is not pending")
)
