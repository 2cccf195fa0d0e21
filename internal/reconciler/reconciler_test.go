package reconciler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hedgegrid/internal/core"
	"hedgegrid/internal/exchange"
)

// fakePort is a minimal exchange.Port fake for reconciler tests,
// recording every CreateLimit call so tests can assert no-double-issue.
type fakePort struct {
	exchange.Port
	created  []exchange.CreateOrderRequest
	canceled []string
}

func (f *fakePort) CreateLimit(ctx context.Context, req exchange.CreateOrderRequest) (core.Order, error) {
	f.created = append(f.created, req)
	return core.Order{ID: req.LinkID, Symbol: req.Symbol, Side: req.Side, Price: req.Price, Qty: req.Qty}, nil
}

func (f *fakePort) CancelOrder(ctx context.Context, symbol, orderID string) error {
	f.canceled = append(f.canceled, orderID)
	return nil
}

func fastRetry() exchange.RetryPolicy {
	return exchange.RetryPolicy{Budget: 1}
}

func TestTickIssuesMissingLevelsOnly(t *testing.T) {
	fp := &fakePort{}
	plan := Plan{
		Side: core.SideLong,
		Levels: []Level{
			{Price: 49900, Qty: 0.01},
			{Price: 49800, Qty: 0.01},
		},
	}
	existing := []core.Order{
		{Side: core.SideLong, Price: 49900, Qty: 0.01, ReduceOnly: false},
	}
	gate := EntryGate{SignalAllows: true, IntervalAllows: true}

	err := Tick(context.Background(), fp, fastRetry(), "BTCUSDT", plan, existing, gate, func(p float64) string { return "link" })
	require.NoError(t, err)
	assert.Len(t, fp.created, 1, "only the missing level should be issued")
	assert.Equal(t, 49800.0, fp.created[0].Price)
}

func TestTickNeverDoubleIssuesSamePriceInOneTick(t *testing.T) {
	fp := &fakePort{}
	plan := Plan{
		Side: core.SideLong,
		Levels: []Level{
			{Price: 49900, Qty: 0.01},
			{Price: 49900, Qty: 0.01}, // duplicate level, should collapse to one create
		},
	}
	gate := EntryGate{SignalAllows: true, IntervalAllows: true}

	err := Tick(context.Background(), fp, fastRetry(), "BTCUSDT", plan, nil, gate, func(p float64) string { return "link" })
	require.NoError(t, err)
	assert.Len(t, fp.created, 1)
}

func TestTickGateBlocksNewEntriesButLeavesExisting(t *testing.T) {
	fp := &fakePort{}
	plan := Plan{Side: core.SideLong, Levels: []Level{{Price: 49900, Qty: 0.01}}}
	gate := EntryGate{SignalAllows: false, IntervalAllows: true}

	err := Tick(context.Background(), fp, fastRetry(), "BTCUSDT", plan, nil, gate, func(p float64) string { return "link" })
	require.NoError(t, err)
	assert.Empty(t, fp.created)
}

func TestTickAutoReduceBlocksEntryUnlessAllowed(t *testing.T) {
	fp := &fakePort{}
	plan := Plan{Side: core.SideLong, Levels: []Level{{Price: 49900, Qty: 0.01}}}

	blocked := EntryGate{SignalAllows: true, IntervalAllows: true, AutoReduceActive: true, EntryDuringAutoReduce: false}
	err := Tick(context.Background(), fp, fastRetry(), "BTCUSDT", plan, nil, blocked, func(p float64) string { return "link" })
	require.NoError(t, err)
	assert.Empty(t, fp.created)

	allowed := EntryGate{SignalAllows: true, IntervalAllows: true, AutoReduceActive: true, EntryDuringAutoReduce: true}
	err = Tick(context.Background(), fp, fastRetry(), "BTCUSDT", plan, nil, allowed, func(p float64) string { return "link" })
	require.NoError(t, err)
	assert.Len(t, fp.created, 1)
}

func TestTickClearsSideWhenNoLevelsPlanned(t *testing.T) {
	fp := &fakePort{}
	plan := Plan{Side: core.SideLong, Levels: nil}
	existing := []core.Order{
		{ID: "o1", Side: core.SideLong, Price: 49900, Qty: 0.01},
		{ID: "o2", Side: core.SideLong, Price: 49800, Qty: 0.01},
	}
	gate := EntryGate{SignalAllows: true, IntervalAllows: true}

	err := Tick(context.Background(), fp, fastRetry(), "BTCUSDT", plan, existing, gate, func(p float64) string { return "link" })
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"o1", "o2"}, fp.canceled)
}
