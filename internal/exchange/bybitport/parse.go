package bybitport

import (
	"fmt"
	"strconv"

	"hedgegrid/internal/core"
	"hedgegrid/internal/exchange"
)

// bybit.go.api returns responses as a generic *bybit.ServerResponse whose
// .Result field is a map[string]interface{} produced by json.Unmarshal
// into interface{}; parsing it means walking that map by hand, exactly
// as trader/bybit_trader.go does for GetBalance/GetPositions.

func resultMap(resp interface{}) (map[string]interface{}, error) {
	outer, ok := asMap(resp)
	if !ok {
		return nil, fmt.Errorf("unexpected response shape %T", resp)
	}
	result, ok := outer["result"]
	if !ok {
		return nil, fmt.Errorf("response missing result field")
	}
	inner, ok := asMap(result)
	if !ok {
		return nil, fmt.Errorf("result field has unexpected shape %T", result)
	}
	return inner, nil
}

func asMap(v interface{}) (map[string]interface{}, bool) {
	m, ok := v.(map[string]interface{})
	return m, ok
}

func asSlice(v interface{}) ([]interface{}, bool) {
	s, ok := v.([]interface{})
	return s, ok
}

func asString(m map[string]interface{}, key string) string {
	if v, ok := m[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func asFloat(m map[string]interface{}, key string) float64 {
	s := asString(m, key)
	if s == "" {
		return 0
	}
	f, _ := strconv.ParseFloat(s, 64)
	return f
}

func parseOrderBook(resp interface{}) (exchange.OrderBook, error) {
	m, err := resultMap(resp)
	if err != nil {
		return exchange.OrderBook{}, err
	}
	bids := parseLevels(m["b"])
	asks := parseLevels(m["a"])
	return exchange.OrderBook{Bids: bids, Asks: asks}, nil
}

func parseLevels(v interface{}) []exchange.OrderBookLevel {
	raw, ok := asSlice(v)
	if !ok {
		return nil
	}
	out := make([]exchange.OrderBookLevel, 0, len(raw))
	for _, r := range raw {
		pair, ok := asSlice(r)
		if !ok || len(pair) < 2 {
			continue
		}
		price, _ := strconv.ParseFloat(fmt.Sprintf("%v", pair[0]), 64)
		size, _ := strconv.ParseFloat(fmt.Sprintf("%v", pair[1]), 64)
		out = append(out, exchange.OrderBookLevel{Price: price, Size: size})
	}
	return out
}

func parseLastPrice(resp interface{}, symbol string) (float64, error) {
	m, err := resultMap(resp)
	if err != nil {
		return 0, err
	}
	list, ok := asSlice(m["list"])
	if !ok || len(list) == 0 {
		return 0, fmt.Errorf("empty ticker list for %s", symbol)
	}
	first, ok := asMap(list[0])
	if !ok {
		return 0, fmt.Errorf("unexpected ticker entry shape")
	}
	return asFloat(first, "lastPrice"), nil
}

func parsePositions(resp interface{}) (map[string]map[core.Side]core.Position, error) {
	m, err := resultMap(resp)
	if err != nil {
		return nil, err
	}
	list, ok := asSlice(m["list"])
	if !ok {
		return map[string]map[core.Side]core.Position{}, nil
	}
	out := make(map[string]map[core.Side]core.Position)
	for _, r := range list {
		entry, ok := asMap(r)
		if !ok {
			continue
		}
		symbol := asString(entry, "symbol")
		sideRaw := asString(entry, "side")
		side := core.SideLong
		if sideRaw == "Sell" {
			side = core.SideShort
		}
		pos := core.Position{
			Side:          side,
			Qty:           asFloat(entry, "size"),
			EntryPrice:    asFloat(entry, "avgPrice"),
			RealizedPnL:   asFloat(entry, "cumRealisedPnl"),
			UnrealizedPnL: asFloat(entry, "unrealisedPnl"),
			LiqPrice:      asFloat(entry, "liqPrice"),
		}
		if out[symbol] == nil {
			out[symbol] = make(map[core.Side]core.Position)
		}
		out[symbol][side] = pos
	}
	return out, nil
}

func parseOrders(resp interface{}) ([]core.Order, error) {
	m, err := resultMap(resp)
	if err != nil {
		return nil, err
	}
	list, ok := asSlice(m["list"])
	if !ok {
		return nil, nil
	}
	out := make([]core.Order, 0, len(list))
	for _, r := range list {
		entry, ok := asMap(r)
		if !ok {
			continue
		}
		sideRaw := asString(entry, "side")
		side := core.SideLong
		if sideRaw == "Sell" {
			side = core.SideShort
		}
		posIdx := core.PositionIdxLong
		if asFloat(entry, "positionIdx") == 2 {
			posIdx = core.PositionIdxShort
		}
		out = append(out, core.Order{
			ID:          asString(entry, "orderId"),
			Symbol:      asString(entry, "symbol"),
			Side:        side,
			Price:       asFloat(entry, "price"),
			Qty:         asFloat(entry, "qty"),
			Status:      mapStatus(asString(entry, "orderStatus")),
			ReduceOnly:  entry["reduceOnly"] == true,
			PositionIdx: posIdx,
			LinkID:      asString(entry, "orderLinkId"),
		})
	}
	return out, nil
}

func mapStatus(s string) core.OrderStatus {
	switch s {
	case "Filled":
		return core.OrderStatusFilled
	case "Cancelled", "Deactivated":
		return core.OrderStatusCanceled
	case "Rejected":
		return core.OrderStatusRejected
	default:
		return core.OrderStatusNew
	}
}

func extractOrderID(resp interface{}) (string, error) {
	m, err := resultMap(resp)
	if err != nil {
		return "", err
	}
	id := asString(m, "orderId")
	if id == "" {
		return "", fmt.Errorf("response missing orderId")
	}
	return id, nil
}

func parsePrecision(resp interface{}) (core.Precision, error) {
	m, err := resultMap(resp)
	if err != nil {
		return core.Precision{}, err
	}
	list, ok := asSlice(m["list"])
	if !ok || len(list) == 0 {
		return core.Precision{}, fmt.Errorf("empty instruments list")
	}
	entry, ok := asMap(list[0])
	if !ok {
		return core.Precision{}, fmt.Errorf("unexpected instrument entry shape")
	}
	priceFilter, _ := asMap(entry["priceFilter"])
	lotFilter, _ := asMap(entry["lotSizeFilter"])
	return core.Precision{
		PriceTick: asFloat(priceFilter, "tickSize"),
		QtyStep:   asFloat(lotFilter, "qtyStep"),
		MinQty:    asFloat(lotFilter, "minOrderQty"),
	}, nil
}

func parseEquity(resp interface{}) (float64, error) {
	m, err := resultMap(resp)
	if err != nil {
		return 0, err
	}
	list, ok := asSlice(m["list"])
	if !ok || len(list) == 0 {
		return 0, fmt.Errorf("empty wallet account list")
	}
	entry, ok := asMap(list[0])
	if !ok {
		return 0, fmt.Errorf("unexpected wallet account entry shape")
	}
	equity := asFloat(entry, "totalEquity")
	if equity == 0 {
		equity = asFloat(entry, "totalWalletBalance")
	}
	return equity, nil
}

func parseMaxLeverage(resp interface{}) (int, error) {
	m, err := resultMap(resp)
	if err != nil {
		return 0, err
	}
	list, ok := asSlice(m["list"])
	if !ok || len(list) == 0 {
		return 0, fmt.Errorf("empty instruments list")
	}
	entry, ok := asMap(list[0])
	if !ok {
		return 0, fmt.Errorf("unexpected instrument entry shape")
	}
	leverageFilter, _ := asMap(entry["leverageFilter"])
	maxLeverage := asFloat(leverageFilter, "maxLeverage")
	return int(maxLeverage), nil
}
