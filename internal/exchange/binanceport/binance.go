// Package binanceport implements the Exchange Port against Binance
// USD-M futures via github.com/adshao/go-binance/v2/futures, in
// hedge-mode (dualSidePosition). Grounded on the teacher's
// trader/order_sync.go order-status handling (FILLED/CANCELED/EXPIRED
// switch) generalized into mapStatus below.
package binanceport

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2/futures"

	"hedgegrid/internal/core"
	"hedgegrid/internal/exchange"
	"hedgegrid/internal/xerr"
)

// Port is a Binance-backed exchange.Port.
type Port struct {
	client *futures.Client
}

// New constructs a Binance futures Port. httpClient may be nil.
func New(apiKey, apiSecret string, httpClient *http.Client) *Port {
	client := futures.NewClient(apiKey, apiSecret)
	if httpClient != nil {
		client.HTTPClient = httpClient
	}
	return &Port{client: client}
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	switch {
	case contains(msg, "insufficient close"):
		return &xerr.InsufficientClose{Op: op, Err: err}
	case contains(msg, "ReduceOnly Order is rejected") || contains(msg, "invalid"):
		return &xerr.InvalidArgument{Op: op, Err: err}
	case contains(msg, "Unknown order sent") || contains(msg, "Order does not exist"):
		return &xerr.StateMismatch{Op: op, Err: err}
	default:
		return &xerr.Transient{Op: op, Err: err}
	}
}

func contains(s, sub string) bool {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return true
		}
	}
	return false
}

func (p *Port) OrderBook(ctx context.Context, symbol string) (exchange.OrderBook, error) {
	depth, err := p.client.NewDepthService().Symbol(symbol).Limit(50).Do(ctx)
	if err != nil {
		return exchange.OrderBook{}, wrap("binance.depth", err)
	}
	book := exchange.OrderBook{}
	for _, b := range depth.Bids {
		price, _ := strconv.ParseFloat(b.Price, 64)
		qty, _ := strconv.ParseFloat(b.Quantity, 64)
		book.Bids = append(book.Bids, exchange.OrderBookLevel{Price: price, Size: qty})
	}
	for _, a := range depth.Asks {
		price, _ := strconv.ParseFloat(a.Price, 64)
		qty, _ := strconv.ParseFloat(a.Quantity, 64)
		book.Asks = append(book.Asks, exchange.OrderBookLevel{Price: price, Size: qty})
	}
	return book, nil
}

func (p *Port) CurrentPrice(ctx context.Context, symbol string) (float64, error) {
	prices, err := p.client.NewListPricesService().Symbol(symbol).Do(ctx)
	if err != nil || len(prices) == 0 {
		return 0, wrap("binance.price", err)
	}
	return strconv.ParseFloat(prices[0].Price, 64)
}

func (p *Port) Positions(ctx context.Context, symbol string) (map[core.Side]core.Position, error) {
	risks, err := p.client.NewGetPositionRiskService().Symbol(symbol).Do(ctx)
	if err != nil {
		return nil, wrap("binance.position_risk", err)
	}
	out := map[core.Side]core.Position{}
	for _, r := range risks {
		side := core.SideLong
		if r.PositionSide == "SHORT" {
			side = core.SideShort
		}
		qty, _ := strconv.ParseFloat(r.PositionAmt, 64)
		entry, _ := strconv.ParseFloat(r.EntryPrice, 64)
		upnl, _ := strconv.ParseFloat(r.UnRealizedProfit, 64)
		liq, _ := strconv.ParseFloat(r.LiquidationPrice, 64)
		if qty < 0 {
			qty = -qty
		}
		out[side] = core.Position{Side: side, Qty: qty, EntryPrice: entry, UnrealizedPnL: upnl, LiqPrice: liq}
	}
	return out, nil
}

func (p *Port) AllPositions(ctx context.Context) (map[string]map[core.Side]core.Position, error) {
	risks, err := p.client.NewGetPositionRiskService().Do(ctx)
	if err != nil {
		return nil, wrap("binance.position_risk.all", err)
	}
	out := map[string]map[core.Side]core.Position{}
	for _, r := range risks {
		qty, _ := strconv.ParseFloat(r.PositionAmt, 64)
		if qty == 0 {
			continue
		}
		side := core.SideLong
		if r.PositionSide == "SHORT" {
			side = core.SideShort
		}
		entry, _ := strconv.ParseFloat(r.EntryPrice, 64)
		upnl, _ := strconv.ParseFloat(r.UnRealizedProfit, 64)
		if qty < 0 {
			qty = -qty
		}
		if out[r.Symbol] == nil {
			out[r.Symbol] = make(map[core.Side]core.Position)
		}
		out[r.Symbol][side] = core.Position{Side: side, Qty: qty, EntryPrice: entry, UnrealizedPnL: upnl}
	}
	return out, nil
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
	orders, err := p.client.NewListOpenOrdersService().Symbol(symbol).Do(ctx)
	if err != nil {
		return nil, wrap("binance.open_orders", err)
	}
	out := make([]core.Order, 0, len(orders))
	for _, o := range orders {
		if o.ReduceOnly != reduceOnly {
			continue
		}
		side := core.SideLong
		if o.PositionSide == "SHORT" {
			side = core.SideShort
		}
		price, _ := strconv.ParseFloat(o.Price, 64)
		qty, _ := strconv.ParseFloat(o.OrigQuantity, 64)
		out = append(out, core.Order{
			ID:          strconv.FormatInt(o.OrderID, 10),
			Symbol:      o.Symbol,
			Side:        side,
			Price:       price,
			Qty:         qty,
			Status:      mapStatus(string(o.Status)),
			ReduceOnly:  o.ReduceOnly,
			PositionIdx: core.PositionIdxFor(side),
			LinkID:      o.ClientOrderID,
		})
	}
	return out, nil
}

func mapStatus(s string) core.OrderStatus {
	switch s {
	case "FILLED":
		return core.OrderStatusFilled
	case "CANCELED", "EXPIRED":
		return core.OrderStatusCanceled
	case "REJECTED":
		return core.OrderStatusRejected
	default:
		return core.OrderStatusNew
	}
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
	side := futures.SideTypeBuy
	if req.Side == core.SideShort {
		side = futures.SideTypeSell
	}
	positionSide := futures.PositionSideTypeLong
	if req.PositionIdx == core.PositionIdxShort {
		positionSide = futures.PositionSideTypeShort
	}
	tif := futures.TimeInForceTypeGTC
	if req.PostOnly {
		tif = futures.TimeInForceTypeGTX
	}

	svc := p.client.NewCreateOrderService().
		Symbol(req.Symbol).
		Side(side).
		PositionSide(positionSide).
		Type(futures.OrderTypeLimit).
		TimeInForce(tif).
		Quantity(formatFloat(req.Qty)).
		Price(formatFloat(req.Price)).
		ReduceOnly(req.ReduceOnly).
		NewClientOrderID(req.LinkID)

	order, err := svc.Do(ctx)
	if err != nil {
		return core.Order{}, wrap("binance.create_order", err)
	}
	return core.Order{
		ID:          strconv.FormatInt(order.OrderID, 10),
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
	id, _ := strconv.ParseInt(orderID, 10, 64)
	_, err := p.client.NewCancelOrderService().Symbol(symbol).OrderID(id).Do(ctx)
	return wrap("binance.cancel_order", err)
}

func (p *Port) CancelAll(ctx context.Context, symbol string) error {
	return wrap("binance.cancel_all", p.client.NewCancelAllOpenOrdersService().Symbol(symbol).Do(ctx))
}

func (p *Port) CancelAllEntries(ctx context.Context, symbol string) error {
	orders, err := p.OpenOrders(ctx, symbol)
	if err != nil {
		return err
	}
	return p.cancelEach(ctx, symbol, orders)
}

func (p *Port) CancelAllReduceOnly(ctx context.Context, symbol string) error {
	orders, err := p.OpenTPOrders(ctx, symbol)
	if err != nil {
		return err
	}
	return p.cancelEach(ctx, symbol, orders)
}

func (p *Port) cancelEach(ctx context.Context, symbol string, orders []core.Order) error {
	for _, o := range orders {
		if err := p.CancelOrder(ctx, symbol, o.ID); err != nil && !xerr.IsStateMismatch(err) {
			return err
		}
	}
	return nil
}

func (p *Port) Precision(ctx context.Context, symbol string) (core.Precision, error) {
	info, err := p.client.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return core.Precision{}, wrap("binance.exchange_info", err)
	}
	for _, s := range info.Symbols {
		if s.Symbol != symbol {
			continue
		}
		var prec core.Precision
		for _, f := range s.Filters {
			switch f["filterType"] {
			case "PRICE_FILTER":
				prec.PriceTick = parseFilterFloat(f, "tickSize")
			case "LOT_SIZE":
				prec.QtyStep = parseFilterFloat(f, "stepSize")
				prec.MinQty = parseFilterFloat(f, "minQty")
			}
		}
		return prec, nil
	}
	return core.Precision{}, fmt.Errorf("symbol %s not found in exchange info", symbol)
}

func (p *Port) MaxLeverage(ctx context.Context, symbol string) (int, error) {
	brackets, err := p.client.NewGetLeverageBracketService().Symbol(symbol).Do(ctx)
	if err != nil || len(brackets) == 0 || len(brackets[0].Brackets) == 0 {
		return 0, wrap("binance.leverage_bracket", err)
	}
	return brackets[0].Brackets[0].InitialLeverage, nil
}

// AccountEquity returns total wallet balance plus unrealized PnL across
// the USD-M futures account.
func (p *Port) AccountEquity(ctx context.Context) (float64, error) {
	acct, err := p.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return 0, wrap("binance.account", err)
	}
	wallet, _ := strconv.ParseFloat(acct.TotalWalletBalance, 64)
	upnl, _ := strconv.ParseFloat(acct.TotalUnrealizedProfit, 64)
	return wallet + upnl, nil
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func parseFilterFloat(f map[string]interface{}, key string) float64 {
	v, ok := f[key].(string)
	if !ok {
		return 0
	}
	parsed, _ := strconv.ParseFloat(v, 64)
	return parsed
}
