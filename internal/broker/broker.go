package broker

import "nova-trader/internal/marketdata"

// Broker is the order and account surface the engine trades against. The
// in-scope implementation is the Simulator; a live adapter would satisfy the
// same interface.
type Broker interface {
	// Connect prepares the broker for use. Every other method returns
	// ErrNotConnected until it has been called.
	Connect() error

	// Disconnect releases the broker. State is retained.
	Disconnect()

	// PlaceOrder validates and executes or queues an order request.
	// Malformed requests and insufficient funds come back as REJECTED
	// results, not errors.
	PlaceOrder(req OrderRequest) (OrderResult, error)

	// ModifyOrder updates a PENDING order. Filled or cancelled orders are
	// left unchanged and reported via ErrOrderNotPending.
	ModifyOrder(id string, update OrderUpdate) (OrderResult, error)

	// CancelOrder cancels a PENDING order.
	CancelOrder(id string) (OrderResult, error)

	// ProcessBar resolves resting orders against a completed bar and
	// marks the symbol at its close. It returns the ids of the orders
	// that filled, in the order they were matched.
	ProcessBar(symbol string, bar marketdata.Bar) ([]string, error)

	// Balance reports the account marked to the last known prices.
	Balance() (BalanceSnapshot, error)

	// Positions lists open (non-flat) positions.
	Positions() ([]Position, error)

	// Orders lists every order the broker has seen.
	Orders() ([]Order, error)

	// Order looks up a single order by id.
	Order(id string) (Order, error)
}
