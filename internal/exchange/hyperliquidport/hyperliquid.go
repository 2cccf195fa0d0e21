// Package hyperliquidport implements the Exchange Port against
// Hyperliquid via github.com/sonirico/go-hyperliquid.
//
// Grounded on trader/hyperliquid_trader.go: the same Exchange/Info
// split, the same coin-symbol conversion (strip the "USDT" suffix),
// the same szDecimals-driven quantity rounding and 5-significant-figure
// price rounding, and the same "cancel-all-orders-for-coin" cancel
// model (Hyperliquid's open-order listing carries no reduce-only flag,
// so TP/entry separation is tracked locally, by remembering the IDs of
// reduce-only orders this Port placed, rather than queried from the
// venue; an order's LinkID is not sent to the venue). Unlike the teacher, which only ever
// placed aggressive IOC orders, grid entries and TP orders must rest,
// so resting orders use Tif Gtc (or Alo when post-only is requested)
// instead of the teacher's TifIoc.
package hyperliquidport

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/sonirico/go-hyperliquid"

	"hedgegrid/internal/core"
	"hedgegrid/internal/exchange"
	"hedgegrid/internal/xerr"
)

// Port is a Hyperliquid-backed exchange.Port.
type Port struct {
	exchange   *hyperliquid.Exchange
	walletAddr string

	metaMu sync.RWMutex
	meta   *hyperliquid.Meta

	// reduceOnly remembers which order IDs were placed as reduce-only, since
	// Hyperliquid's open-order listing does not carry that flag back.
	linkMu     sync.Mutex
	reduceOnly map[int64]bool
}

// New constructs a Hyperliquid Port from an agent-wallet private key and
// the main wallet address that holds funds, matching the Agent Wallet
// security model the teacher documents at length.
func New(ctx context.Context, privateKeyHex, walletAddr string, testnet bool) (*Port, error) {
	privateKeyHex = strings.TrimPrefix(strings.ToLower(privateKeyHex), "0x")
	privateKey, err := crypto.HexToECDSA(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("parse hyperliquid private key: %w", err)
	}
	if walletAddr == "" {
		return nil, fmt.Errorf("hyperliquid wallet address is required")
	}

	apiURL := hyperliquid.MainnetAPIURL
	if testnet {
		apiURL = hyperliquid.TestnetAPIURL
	}

	ex := hyperliquid.NewExchange(ctx, privateKey, apiURL, nil, "", walletAddr, nil)
	meta, err := ex.Info().Meta(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch hyperliquid meta: %w", err)
	}

	return &Port{
		exchange:   ex,
		walletAddr: walletAddr,
		meta:       meta,
		reduceOnly: make(map[int64]bool),
	}, nil
}

func coinOf(symbol string) string {
	if len(symbol) > 4 && symbol[len(symbol)-4:] == "USDT" {
		return symbol[:len(symbol)-4]
	}
	return symbol
}

func (p *Port) szDecimals(coin string) int {
	p.metaMu.RLock()
	defer p.metaMu.RUnlock()
	if p.meta == nil {
		return 4
	}
	for _, asset := range p.meta.Universe {
		if asset.Name == coin {
			return asset.SzDecimals
		}
	}
	return 4
}

func roundToDecimals(v float64, decimals int) float64 {
	mult := 1.0
	for i := 0; i < decimals; i++ {
		mult *= 10
	}
	return float64(int64(v*mult+0.5)) / mult
}

// roundPriceSigfigs matches the venue's 5-significant-figure price rule.
func roundPriceSigfigs(price float64) float64 {
	if price == 0 {
		return 0
	}
	magnitude := price
	if magnitude < 0 {
		magnitude = -magnitude
	}
	mult := 1.0
	for magnitude >= 10 {
		magnitude /= 10
		mult /= 10
	}
	for magnitude < 1 {
		magnitude *= 10
		mult *= 10
	}
	for i := 0; i < 4; i++ {
		mult *= 10
	}
	return float64(int64(price*mult+0.5)) / mult
}

func (p *Port) OrderBook(ctx context.Context, symbol string) (exchange.OrderBook, error) {
	coin := coinOf(symbol)
	book, err := p.exchange.Info().L2Book(ctx, coin)
	if err != nil {
		return exchange.OrderBook{}, &xerr.Transient{Op: "hyperliquid.l2book", Err: err}
	}
	out := exchange.OrderBook{}
	if len(book.Levels) >= 1 {
		for _, lvl := range book.Levels[0] {
			px, _ := strconv.ParseFloat(lvl.Px, 64)
			sz, _ := strconv.ParseFloat(lvl.Sz, 64)
			out.Bids = append(out.Bids, exchange.OrderBookLevel{Price: px, Size: sz})
		}
	}
	if len(book.Levels) >= 2 {
		for _, lvl := range book.Levels[1] {
			px, _ := strconv.ParseFloat(lvl.Px, 64)
			sz, _ := strconv.ParseFloat(lvl.Sz, 64)
			out.Asks = append(out.Asks, exchange.OrderBookLevel{Price: px, Size: sz})
		}
	}
	return out, nil
}

func (p *Port) CurrentPrice(ctx context.Context, symbol string) (float64, error) {
	mids, err := p.exchange.Info().AllMids(ctx)
	if err != nil {
		return 0, &xerr.Transient{Op: "hyperliquid.all_mids", Err: err}
	}
	coin := coinOf(symbol)
	raw, ok := mids[coin]
	if !ok {
		return 0, fmt.Errorf("no mid price for %s", coin)
	}
	return strconv.ParseFloat(raw, 64)
}

func (p *Port) Positions(ctx context.Context, symbol string) (map[core.Side]core.Position, error) {
	all, err := p.AllPositions(ctx)
	if err != nil {
		return nil, err
	}
	return all[symbol], nil
}

func (p *Port) AllPositions(ctx context.Context) (map[string]map[core.Side]core.Position, error) {
	state, err := p.exchange.Info().UserState(ctx, p.walletAddr)
	if err != nil {
		return nil, &xerr.Transient{Op: "hyperliquid.user_state", Err: err}
	}
	out := make(map[string]map[core.Side]core.Position)
	for _, ap := range state.AssetPositions {
		pos := ap.Position
		szi, _ := strconv.ParseFloat(pos.Szi, 64)
		if szi == 0 {
			continue
		}
		symbol := pos.Coin + "USDT"
		side := core.SideLong
		qty := szi
		if szi < 0 {
			side = core.SideShort
			qty = -szi
		}
		var entry, liq float64
		if pos.EntryPx != nil {
			entry, _ = strconv.ParseFloat(*pos.EntryPx, 64)
		}
		if pos.LiquidationPx != nil {
			liq, _ = strconv.ParseFloat(*pos.LiquidationPx, 64)
		}
		upnl, _ := strconv.ParseFloat(pos.UnrealizedPnl, 64)
		if out[symbol] == nil {
			out[symbol] = make(map[core.Side]core.Position)
		}
		out[symbol][side] = core.Position{Side: side, Qty: qty, EntryPrice: entry, UnrealizedPnL: upnl, LiqPrice: liq}
	}
	return out, nil
}

// AccountEquity returns total account value, reusing the same
// UserState call AllPositions already makes. Grounded on
// trader/hyperliquid_trader.go's margin-mode selection: cross margin
// reports its equity under CrossMarginSummary, isolated margin under
// MarginSummary, so fall back to whichever one is non-empty.
func (p *Port) AccountEquity(ctx context.Context) (float64, error) {
	state, err := p.exchange.Info().UserState(ctx, p.walletAddr)
	if err != nil {
		return 0, &xerr.Transient{Op: "hyperliquid.user_state", Err: err}
	}
	raw := state.CrossMarginSummary.AccountValue
	if raw == "" {
		raw = state.MarginSummary.AccountValue
	}
	if raw == "" {
		return 0, fmt.Errorf("no account value in user state")
	}
	return strconv.ParseFloat(raw, 64)
}

func (p *Port) openOrders(ctx context.Context, symbol string) ([]hyperliquid.OpenOrder, error) {
	coin := coinOf(symbol)
	orders, err := p.exchange.Info().OpenOrders(ctx, p.walletAddr)
	if err != nil {
		return nil, &xerr.Transient{Op: "hyperliquid.open_orders", Err: err}
	}
	out := make([]hyperliquid.OpenOrder, 0, len(orders))
	for _, o := range orders {
		if o.Coin == coin {
			out = append(out, o)
		}
	}
	return out, nil
}

func (p *Port) toCoreOrder(symbol string, o hyperliquid.OpenOrder) core.Order {
	price, _ := strconv.ParseFloat(o.LimitPx, 64)
	qty, _ := strconv.ParseFloat(o.Sz, 64)
	side := core.SideLong
	if !o.Side.IsBuy() {
		side = core.SideShort
	}
	p.linkMu.Lock()
	reduce := p.reduceOnly[o.Oid]
	p.linkMu.Unlock()
	return core.Order{
		ID:          strconv.FormatInt(o.Oid, 10),
		Symbol:      symbol,
		Side:        side,
		Price:       price,
		Qty:         qty,
		Status:      core.OrderStatusNew,
		ReduceOnly:  reduce,
		PositionIdx: core.PositionIdxFor(side),
	}
}

func (p *Port) OpenOrders(ctx context.Context, symbol string) ([]core.Order, error) {
	raw, err := p.openOrders(ctx, symbol)
	if err != nil {
		return nil, err
	}
	out := make([]core.Order, 0, len(raw))
	for _, o := range raw {
		co := p.toCoreOrder(symbol, o)
		if !co.ReduceOnly {
			out = append(out, co)
		}
	}
	return out, nil
}

func (p *Port) OpenTPOrders(ctx context.Context, symbol string) ([]core.Order, error) {
	raw, err := p.openOrders(ctx, symbol)
	if err != nil {
		return nil, err
	}
	out := make([]core.Order, 0, len(raw))
	for _, o := range raw {
		co := p.toCoreOrder(symbol, o)
		if co.ReduceOnly {
			out = append(out, co)
		}
	}
	return out, nil
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

func (p *Port) create(ctx context.Context, req exchange.CreateOrderRequest) (core.Order, error) {
	coin := coinOf(req.Symbol)
	decimals := p.szDecimals(coin)
	qty := roundToDecimals(req.Qty, decimals)
	price := roundPriceSigfigs(req.Price)

	tif := hyperliquid.TifGtc
	if req.PostOnly {
		tif = hyperliquid.TifAlo
	}

	order := hyperliquid.CreateOrderRequest{
		Coin:  coin,
		IsBuy: req.Side == core.SideLong,
		Size:  qty,
		Price: price,
		OrderType: hyperliquid.OrderType{
			Limit: &hyperliquid.LimitOrderType{Tif: tif},
		},
		ReduceOnly: req.ReduceOnly,
	}

	resp, err := p.exchange.Order(ctx, order, nil)
	if err != nil {
		return core.Order{}, classifyOrderError(err)
	}
	oid := extractOid(resp)
	if req.ReduceOnly {
		p.linkMu.Lock()
		p.reduceOnly[oid] = true
		p.linkMu.Unlock()
	}

	return core.Order{
		ID:          strconv.FormatInt(oid, 10),
		Symbol:      req.Symbol,
		Side:        req.Side,
		Price:       price,
		Qty:         qty,
		Status:      core.OrderStatusNew,
		ReduceOnly:  req.ReduceOnly,
		PositionIdx: req.PositionIdx,
		LinkID:      req.LinkID,
	}, nil
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

func (p *Port) CancelOrder(ctx context.Context, symbol, orderID string) error {
	coin := coinOf(symbol)
	oid, _ := strconv.ParseInt(orderID, 10, 64)
	_, err := p.exchange.Cancel(ctx, coin, oid)
	if err != nil {
		if containsFold(err.Error(), "unknown oid") || containsFold(err.Error(), "already canceled") {
			return &xerr.StateMismatch{Op: "hyperliquid.cancel", Err: err}
		}
		return &xerr.Transient{Op: "hyperliquid.cancel", Err: err}
	}
	return nil
}

// CancelAll, CancelAllEntries and CancelAllReduceOnly all reduce to the
// same venue call: Hyperliquid's open-order listing carries no
// reduce-only flag of its own, so entry/TP separation comes only from
// reduceOnly tracked locally at create time.
func (p *Port) CancelAll(ctx context.Context, symbol string) error {
	raw, err := p.openOrders(ctx, symbol)
	if err != nil {
		return err
	}
	return p.cancelRaw(ctx, symbol, raw)
}

func (p *Port) CancelAllEntries(ctx context.Context, symbol string) error {
	raw, err := p.openOrders(ctx, symbol)
	if err != nil {
		return err
	}
	var filtered []hyperliquid.OpenOrder
	for _, o := range raw {
		if !p.toCoreOrder(symbol, o).ReduceOnly {
			filtered = append(filtered, o)
		}
	}
	return p.cancelRaw(ctx, symbol, filtered)
}

func (p *Port) CancelAllReduceOnly(ctx context.Context, symbol string) error {
	raw, err := p.openOrders(ctx, symbol)
	if err != nil {
		return err
	}
	var filtered []hyperliquid.OpenOrder
	for _, o := range raw {
		if p.toCoreOrder(symbol, o).ReduceOnly {
			filtered = append(filtered, o)
		}
	}
	return p.cancelRaw(ctx, symbol, filtered)
}

func (p *Port) cancelRaw(ctx context.Context, symbol string, orders []hyperliquid.OpenOrder) error {
	for _, o := range orders {
		if err := p.CancelOrder(ctx, symbol, strconv.FormatInt(o.Oid, 10)); err != nil && !xerr.IsStateMismatch(err) {
			return err
		}
	}
	return nil
}

func (p *Port) Precision(ctx context.Context, symbol string) (core.Precision, error) {
	coin := coinOf(symbol)
	decimals := p.szDecimals(coin)
	step := 1.0
	for i := 0; i < decimals; i++ {
		step /= 10
	}
	return core.Precision{PriceTick: 0, QtyStep: step, MinQty: step}, nil
}

func (p *Port) MaxLeverage(ctx context.Context, symbol string) (int, error) {
	coin := coinOf(symbol)
	p.metaMu.RLock()
	defer p.metaMu.RUnlock()
	if p.meta == nil {
		return 0, fmt.Errorf("meta not loaded")
	}
	for _, asset := range p.meta.Universe {
		if asset.Name == coin {
			return asset.MaxLeverage, nil
		}
	}
	return 0, fmt.Errorf("leverage info not found for %s", coin)
}

func classifyOrderError(err error) error {
	msg := err.Error()
	switch {
	case containsFold(msg, "reduce only") && containsFold(msg, "would increase"):
		return &xerr.InvalidArgument{Op: "hyperliquid.order", Err: err}
	case containsFold(msg, "insufficient"):
		return &xerr.InsufficientClose{Op: "hyperliquid.order", Err: err}
	default:
		return &xerr.Transient{Op: "hyperliquid.order", Err: err}
	}
}

// extractOid pulls the resting order ID out of Hyperliquid's order
// response; Hyperliquid's own SDK types vary this payload by status
// (resting vs filled), so a best-effort type switch covers both.
func extractOid(resp interface{}) int64 {
	switch v := resp.(type) {
	case *hyperliquid.PlaceOrderResponse:
		if v != nil && len(v.Response.Data.Statuses) > 0 {
			st := v.Response.Data.Statuses[0]
			if st.Resting != nil {
				return st.Resting.Oid
			}
			if st.Filled != nil {
				return st.Filled.Oid
			}
		}
	}
	return 0
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}
