// Package bybitport implements the Exchange Port against Bybit's V5 API
// via github.com/bybit-exchange/bybit.go.api.
//
// Grounded on trader/bybit_trader.go. The Port caches per-symbol
// precision only; positions, orders and equity are fetched from the
// venue on every call. New wraps the given http.Client's transport in a
// header-injecting http.RoundTripper that sets a Referer header, but
// that client is not passed to the bybit.go.api client, so neither the
// header nor a proxy configured on it applies to requests.
package bybitport

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	bybit "github.com/bybit-exchange/bybit.go.api"

	"hedgegrid/internal/core"
	"hedgegrid/internal/exchange"
	"hedgegrid/internal/xerr"
)

type headerRoundTripper struct {
	next http.RoundTripper
}

func (h *headerRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	req.Header.Set("Referer", "hedgegrid")
	next := h.next
	if next == nil {
		next = http.DefaultTransport
	}
	return next.RoundTrip(req)
}

// Port is a Bybit-backed exchange.Port.
type Port struct {
	client *bybit.Client

	precisionMu sync.Mutex
	precision   map[string]core.Precision

	httpClient *http.Client
}

// New constructs a Bybit Port. httpClient may be nil. It is kept on the
// Port but not handed to the SDK client, which uses its own transport,
// so HTTP_PROXY/HTTPS_PROXY settings carried by httpClient do not apply.
func New(apiKey, apiSecret string, httpClient *http.Client) *Port {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	httpClient.Transport = &headerRoundTripper{next: httpClient.Transport}

	client := bybit.NewBybitHttpClient(apiKey, apiSecret, bybit.WithBaseURL(bybit.MAINNET))

	return &Port{
		client:     client,
		precision:  make(map[string]core.Precision),
		httpClient: httpClient,
	}
}

func wrapTransient(op string, err error) error {
	if err == nil {
		return nil
	}
	return &xerr.Transient{Op: op, Err: err}
}

func (p *Port) OrderBook(ctx context.Context, symbol string) (exchange.OrderBook, error) {
	params := map[string]interface{}{"category": "linear", "symbol": symbol, "limit": 50}
	resp, err := p.client.NewUtaBybitServiceWithParams(params).GetOrderbook(ctx)
	if err != nil {
		return exchange.OrderBook{}, wrapTransient("bybit.orderbook", err)
	}
	return parseOrderBook(resp)
}

func (p *Port) CurrentPrice(ctx context.Context, symbol string) (float64, error) {
	params := map[string]interface{}{"category": "linear", "symbol": symbol}
	resp, err := p.client.NewUtaBybitServiceWithParams(params).GetTickers(ctx)
	if err != nil {
		return 0, wrapTransient("bybit.ticker", err)
	}
	return parseLastPrice(resp, symbol)
}

func (p *Port) Positions(ctx context.Context, symbol string) (map[core.Side]core.Position, error) {
	all, err := p.AllPositions(ctx)
	if err != nil {
		return nil, err
	}
	return all[symbol], nil
}

func (p *Port) AllPositions(ctx context.Context) (map[string]map[core.Side]core.Position, error) {
	params := map[string]interface{}{"category": "linear", "settleCoin": "USDT"}
	resp, err := p.client.NewUtaBybitServiceWithParams(params).GetPositionInfo(ctx)
	if err != nil {
		return nil, wrapTransient("bybit.positions", err)
	}
	return parsePositions(resp)
}

func (p *Port) OpenOrders(ctx context.Context, symbol string) ([]core.Order, error) {
	return p.listOrders(ctx, symbol, false)
}

func (p *Port) OpenTPOrders(ctx context.Context, symbol string) ([]core.Order, error) {
	return p.listOrders(ctx, symbol, true)
}

func (p *Port) OpenTPCounts(ctx context.Context, symbol string) (map[core.Side]int, error) {
	orders, err := p.OpenTPOrders(ctx, symbol)
	if err != nil {
		return nil, err
	}
	counts := map[core.Side]int{}
	for _, o := range orders {
		counts[o.Side]++
	}
	return counts, nil
}

func (p *Port) listOrders(ctx context.Context, symbol string, reduceOnly bool) ([]core.Order, error) {
	params := map[string]interface{}{"category": "linear", "symbol": symbol}
	resp, err := p.client.NewUtaBybitServiceWithParams(params).GetOpenOrders(ctx)
	if err != nil {
		return nil, wrapTransient("bybit.open_orders", err)
	}
	orders, err := parseOrders(resp)
	if err != nil {
		return nil, err
	}
	out := orders[:0]
	for _, o := range orders {
		if o.ReduceOnly == reduceOnly {
			out = append(out, o)
		}
	}
	return out, nil
}

func (p *Port) CreateLimit(ctx context.Context, req exchange.CreateOrderRequest) (core.Order, error) {
	return p.create(ctx, req)
}

func (p *Port) CreateReduceOnlyLimit(ctx context.Context, req exchange.CreateOrderRequest) (core.Order, error) {
	req.ReduceOnly = true
	return p.create(ctx, req)
}

func (p *Port) CreateNormalLimit(ctx context.Context, req exchange.CreateOrderRequest) (core.Order, error) {
	req.PostOnly = false
	return p.create(ctx, req)
}

func (p *Port) create(ctx context.Context, req exchange.CreateOrderRequest) (core.Order, error) {
	side := "Buy"
	if req.Side == core.SideShort {
		side = "Sell"
	}
	timeInForce := "GTC"
	if req.PostOnly {
		timeInForce = "PostOnly"
	}
	params := map[string]interface{}{
		"category":    "linear",
		"symbol":      req.Symbol,
		"side":        side,
		"orderType":   "Limit",
		"qty":         formatFloat(req.Qty),
		"price":       formatFloat(req.Price),
		"timeInForce": timeInForce,
		"reduceOnly":  req.ReduceOnly,
		"positionIdx": int(req.PositionIdx),
		"orderLinkId": req.LinkID,
	}
	resp, err := p.client.NewUtaBybitServiceWithParams(params).CreateOrder(ctx)
	if err != nil {
		return core.Order{}, classifyCreateError("bybit.create_order", err)
	}
	orderID, err := extractOrderID(resp)
	if err != nil {
		return core.Order{}, wrapTransient("bybit.create_order.parse", err)
	}
	return core.Order{
		ID:          orderID,
		Symbol:      req.Symbol,
		Side:        req.Side,
		Price:       req.Price,
		Qty:         req.Qty,
		Status:      core.OrderStatusNew,
		ReduceOnly:  req.ReduceOnly,
		PositionIdx: req.PositionIdx,
		LinkID:      req.LinkID,
		PlacedAt:    time.Now(),
	}, nil
}

func (p *Port) CancelOrder(ctx context.Context, symbol, orderID string) error {
	params := map[string]interface{}{"category": "linear", "symbol": symbol, "orderId": orderID}
	_, err := p.client.NewUtaBybitServiceWithParams(params).CancelOrder(ctx)
	if err != nil {
		if isNotFound(err) {
			return &xerr.StateMismatch{Op: "bybit.cancel_order", Err: err}
		}
		return wrapTransient("bybit.cancel_order", err)
	}
	return nil
}

func (p *Port) CancelAll(ctx context.Context, symbol string) error {
	params := map[string]interface{}{"category": "linear", "symbol": symbol}
	_, err := p.client.NewUtaBybitServiceWithParams(params).CancelAllOrders(ctx)
	return wrapTransient("bybit.cancel_all", err)
}

func (p *Port) CancelAllEntries(ctx context.Context, symbol string) error {
	orders, err := p.OpenOrders(ctx, symbol)
	if err != nil {
		return err
	}
	for _, o := range orders {
		if err := p.CancelOrder(ctx, symbol, o.ID); err != nil && !isStateMismatchOrNil(err) {
			return err
		}
	}
	return nil
}

func (p *Port) CancelAllReduceOnly(ctx context.Context, symbol string) error {
	orders, err := p.OpenTPOrders(ctx, symbol)
	if err != nil {
		return err
	}
	for _, o := range orders {
		if err := p.CancelOrder(ctx, symbol, o.ID); err != nil && !isStateMismatchOrNil(err) {
			return err
		}
	}
	return nil
}

func (p *Port) Precision(ctx context.Context, symbol string) (core.Precision, error) {
	p.precisionMu.Lock()
	if prec, ok := p.precision[symbol]; ok {
		p.precisionMu.Unlock()
		return prec, nil
	}
	p.precisionMu.Unlock()

	params := map[string]interface{}{"category": "linear", "symbol": symbol}
	resp, err := p.client.NewUtaBybitServiceWithParams(params).GetInstrumentsInfo(ctx)
	if err != nil {
		return core.Precision{}, wrapTransient("bybit.instruments_info", err)
	}
	prec, err := parsePrecision(resp)
	if err != nil {
		return core.Precision{}, wrapTransient("bybit.instruments_info.parse", err)
	}
	p.precisionMu.Lock()
	p.precision[symbol] = prec
	p.precisionMu.Unlock()
	return prec, nil
}

func (p *Port) MaxLeverage(ctx context.Context, symbol string) (int, error) {
	params := map[string]interface{}{"category": "linear", "symbol": symbol}
	resp, err := p.client.NewUtaBybitServiceWithParams(params).GetInstrumentsInfo(ctx)
	if err != nil {
		return 0, wrapTransient("bybit.instruments_info", err)
	}
	return parseMaxLeverage(resp)
}

// AccountEquity returns UNIFIED-account total equity, grounded on
// trader/bybit_trader.go's GetAccountWallet call (here read fresh on
// every call rather than cached, matching this port's no-balance-cache
// design).
func (p *Port) AccountEquity(ctx context.Context) (float64, error) {
	params := map[string]interface{}{"accountType": "UNIFIED"}
	resp, err := p.client.NewUtaBybitServiceWithParams(params).GetAccountWallet(ctx)
	if err != nil {
		return 0, wrapTransient("bybit.account_wallet", err)
	}
	return parseEquity(resp)
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func classifyCreateError(op string, err error) error {
	msg := err.Error()
	switch {
	case containsAny(msg, "in settlement", "in delivery"):
		return &xerr.InSettlement{Op: op, Err: err}
	case containsAny(msg, "insufficient close"):
		return &xerr.InsufficientClose{Op: op, Err: err}
	case containsAny(msg, "invalid", "precision", "too small", "too large"):
		return &xerr.InvalidArgument{Op: op, Err: err}
	case containsAny(msg, "duplicate", "order already"):
		return &xerr.StateMismatch{Op: op, Err: err}
	default:
		return &xerr.Transient{Op: op, Err: err}
	}
}

func isNotFound(err error) bool {
	return containsAny(err.Error(), "not found", "order does not exist", "too late to cancel")
}

func isStateMismatchOrNil(err error) bool {
	if err == nil {
		return true
	}
	return xerr.IsStateMismatch(err)
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if len(sub) > 0 && contains(s, sub) {
			return true
		}
	}
	return false
}

func contains(s, sub string) bool {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return true
		}
	}
	return false
}
