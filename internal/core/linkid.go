package core

import (
	"fmt"
	"strings"
	"time"
)

// GridLinkID builds the "<sym3><side1><price5><ts5>" grid-order tag from
// spec §6: short enough (<=45 chars) and specific enough to re-identify
// the engine's own orders across a process restart, without any
// persisted state.
func GridLinkID(symbol string, side Side, price float64, now time.Time) string {
	sym3 := symbol
	if len(sym3) > 3 {
		sym3 = sym3[:3]
	}
	sideTag := "L"
	if side == SideShort {
		sideTag = "S"
	}
	priceTag := fmt.Sprintf("%05d", int(price)%100000)
	tsTag := fmt.Sprintf("%05d", now.Unix()%100000)
	id := fmt.Sprintf("%s%s%s%s", strings.ToUpper(sym3), sideTag, priceTag, tsTag)
	if len(id) > 45 {
		id = id[:45]
	}
	return id
}

// AutoReduceLinkID builds the "ar_<side>_<symbol>_<price>_<level>" tag
// spec §6 assigns auto-reduce orders, so the TP Controller can recognize
// and skip cancelling them (spec §4.6).
func AutoReduceLinkID(side Side, symbol string, price float64, level int) string {
	id := fmt.Sprintf("ar_%s_%s_%d_%d", side, symbol, int(price), level)
	if len(id) > 45 {
		id = id[:45]
	}
	return id
}

// IsAutoReduceLinkID reports whether linkID was produced by AutoReduceLinkID.
func IsAutoReduceLinkID(linkID string) bool {
	return strings.HasPrefix(linkID, "ar_")
}
