package exchange

import (
	"context"
	"time"

	"hedgegrid/internal/xerr"
)

// RetryPolicy implements the fixed-backoff retry budget of spec §7: an
// op failing with transient errors is attempted at most Budget times in
// all, with FixedDelay between attempts; the two exchange-specific wait
// states (in-settlement, insufficient-close-amount) retry on their own
// fixed delay and do not consume the general budget; a state mismatch
// counts as success; invalid-argument and other non-transient errors are
// returned immediately.
type RetryPolicy struct {
	Budget              int
	FixedDelay          time.Duration
	InSettlementDelay    time.Duration // default 10s
	InsufficientCloseDelay time.Duration // default 5s
}

// DefaultRetryPolicy returns the spec's default retry budget.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Budget:                 100,
		FixedDelay:             200 * time.Millisecond,
		InSettlementDelay:      10 * time.Second,
		InsufficientCloseDelay: 5 * time.Second,
	}
}

// Do runs op, retrying according to the policy. It returns the last
// error if the budget is exhausted without success. Invalid-argument
// errors are never retried.
func (p RetryPolicy) Do(ctx context.Context, op func() error) error {
	attempts := 0
	for {
		err := op()
		if err == nil {
			return nil
		}
		if xerr.IsInvalidArgument(err) {
			return err
		}
		if xerr.IsStateMismatch(err) {
			// Idempotent success from the caller's point of view.
			return nil
		}
		if xerr.IsInSettlement(err) {
			if !sleepCtx(ctx, p.InSettlementDelay) {
				return ctx.Err()
			}
			continue
		}
		if xerr.IsInsufficientClose(err) {
			if !sleepCtx(ctx, p.InsufficientCloseDelay) {
				return ctx.Err()
			}
			continue
		}
		if !xerr.IsTransient(err) {
			return err
		}
		attempts++
		if attempts >= p.Budget {
			return err
		}
		if !sleepCtx(ctx, p.FixedDelay) {
			return ctx.Err()
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
