// Package exchange defines the Exchange Port contract (spec §4.1): the
// boundary every concrete venue adapter implements, and every other
// component (sizing, planner, reconciler, TP, auto-reduce) depends on
// only through this interface. Adapters classify venue failures into the
// xerr taxonomy and do not retry; callers retry through RetryPolicy.Do.
// Non-idempotent creates require the caller to supply a link_id so a
// retried-but-uncertain create never produces two live orders.
package exchange

import (
	"context"

	"hedgegrid/internal/core"
)

// OrderBookLevel is one price/size pair on one side of the book.
type OrderBookLevel struct {
	Price float64
	Size  float64
}

// OrderBook is a snapshot of resting liquidity.
type OrderBook struct {
	Bids []OrderBookLevel // descending by price
	Asks []OrderBookLevel // ascending by price
}

// BestBid returns the best bid, or (0, false) if the book is empty.
func (b OrderBook) BestBid() (float64, bool) {
	if len(b.Bids) == 0 {
		return 0, false
	}
	return b.Bids[0].Price, true
}

// BestAsk returns the best ask, or (0, false) if the book is empty.
func (b OrderBook) BestAsk() (float64, bool) {
	if len(b.Asks) == 0 {
		return 0, false
	}
	return b.Asks[0].Price, true
}

// CreateOrderRequest describes a new order. LinkID must be supplied by
// the caller for every non-idempotent create (spec §6 link_id formats).
type CreateOrderRequest struct {
	Symbol      string
	Side        core.Side
	Price       float64
	Qty         float64
	PositionIdx core.PositionIdx
	PostOnly    bool
	ReduceOnly  bool
	LinkID      string
}

// Port is the Exchange Port contract every venue adapter implements.
type Port interface {
	// OrderBook returns the current order book for symbol.
	OrderBook(ctx context.Context, symbol string) (OrderBook, error)
	// CurrentPrice returns the latest traded price for symbol.
	CurrentPrice(ctx context.Context, symbol string) (float64, error)

	// Positions returns both sides' positions for symbol.
	Positions(ctx context.Context, symbol string) (map[core.Side]core.Position, error)
	// AllPositions returns every open position across every symbol this
	// account holds, keyed by symbol then side. Used to refresh
	// core.PositionsCache.
	AllPositions(ctx context.Context) (map[string]map[core.Side]core.Position, error)

	// OpenOrders returns resting entry (non-reduce-only) orders for symbol.
	OpenOrders(ctx context.Context, symbol string) ([]core.Order, error)
	// OpenTPOrders returns resting reduce-only orders for symbol.
	OpenTPOrders(ctx context.Context, symbol string) ([]core.Order, error)
	// OpenTPCounts returns the count of resting reduce-only orders per side.
	OpenTPCounts(ctx context.Context, symbol string) (map[core.Side]int, error)

	// CreateLimit places a limit order exactly as requested (may be
	// post-only and/or reduce-only per req).
	CreateLimit(ctx context.Context, req CreateOrderRequest) (core.Order, error)
	// CreateReduceOnlyLimit places a reduce-only limit order.
	CreateReduceOnlyLimit(ctx context.Context, req CreateOrderRequest) (core.Order, error)
	// CreateNormalLimit places a non-post-only limit order (ReduceOnly is
	// taken from req as given) — used when the computed price is already
	// crossable and the caller has decided to take liquidity rather than
	// chase.
	CreateNormalLimit(ctx context.Context, req CreateOrderRequest) (core.Order, error)

	// CancelOrder cancels one order by ID. A "not found" response is a
	// StateMismatch (idempotent success), not an error the caller must
	// handle specially.
	CancelOrder(ctx context.Context, symbol, orderID string) error
	// CancelAll cancels every open order for symbol.
	CancelAll(ctx context.Context, symbol string) error
	// CancelAllEntries cancels only non-reduce-only orders for symbol.
	CancelAllEntries(ctx context.Context, symbol string) error
	// CancelAllReduceOnly cancels only reduce-only orders for symbol.
	CancelAllReduceOnly(ctx context.Context, symbol string) error

	// Precision returns the price/quantity precision for symbol. The
	// Bybit adapter caches it per symbol after the first fetch; the
	// Binance adapter fetches exchange info on every call.
	Precision(ctx context.Context, symbol string) (core.Precision, error)
	// MaxLeverage returns the venue's maximum leverage for symbol.
	MaxLeverage(ctx context.Context, symbol string) (int, error)

	// AccountEquity returns total account equity (balance plus
	// unrealized PnL across every position), the input the Sizing
	// Engine scales wallet-exposure-limit against (spec §4.2).
	AccountEquity(ctx context.Context) (float64, error)
}
