// Package bootstrap sequences process startup as an ordered list of
// named hooks, each able to skip itself or tolerate its own failure.
//
// Grounded on the teacher's bootstrap/hook_builder.go (Hook struct with
// Name/Priority/Func/Enabled/ErrorPolicy, HookBuilder chain) — the
// runner and Context types did not exist in the retrieved source (only
// the builder shape did) and are this package's own addition, built in
// the same chain-of-hooks idiom.
package bootstrap

import (
	"fmt"
	"sort"

	"hedgegrid/config"
	"hedgegrid/internal/alert"
	"hedgegrid/internal/exchange"
	"hedgegrid/internal/scheduler"
	"hedgegrid/internal/signal"
	"hedgegrid/logger"
	"hedgegrid/store"
)

// ErrorPolicy controls what the Runner does when a Hook's Func returns
// an error.
type ErrorPolicy int

const (
	// FailFast aborts the whole sequence immediately (the default).
	FailFast ErrorPolicy = iota
	// WarnAndContinue logs the error and proceeds to the next hook.
	WarnAndContinue
)

// Context accumulates the components each hook constructs, so later
// hooks (and main) can read what earlier ones built.
type Context struct {
	Cfg *config.Config

	Store  *store.Store
	Port   exchange.Port
	Signal signal.Source
	Alerts alert.Sink

	Scheduler *scheduler.Scheduler
}

// Hook is one named startup step.
type Hook struct {
	Name        string
	Priority    int // lower runs first
	Func        func(*Context) error
	Enabled     func(*Context) bool
	ErrorPolicy ErrorPolicy
}

// HookBuilder supports the teacher's chained-construction style:
// NewHook(...).EnabledIf(...).OnError(...).
type HookBuilder struct {
	hook *Hook
}

// NewHook starts building a hook with its name, ordering priority, and
// init function.
func NewHook(name string, priority int, fn func(*Context) error) *HookBuilder {
	return &HookBuilder{hook: &Hook{Name: name, Priority: priority, Func: fn}}
}

// EnabledIf sets a condition function; the hook is skipped when it
// returns false.
func (b *HookBuilder) EnabledIf(fn func(*Context) bool) *HookBuilder {
	b.hook.Enabled = fn
	return b
}

// OnError sets how the Runner reacts to this hook's failure.
func (b *HookBuilder) OnError(policy ErrorPolicy) *HookBuilder {
	b.hook.ErrorPolicy = policy
	return b
}

// Build finalizes the Hook.
func (b *HookBuilder) Build() *Hook {
	return b.hook
}

// Runner executes a fixed list of hooks in priority order.
type Runner struct {
	hooks []*Hook
}

// NewRunner builds a Runner over hooks, sorted by Priority (stable, so
// hooks sharing a priority run in the order given).
func NewRunner(hooks []*Hook) *Runner {
	sorted := make([]*Hook, len(hooks))
	copy(sorted, hooks)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Priority < sorted[j].Priority })
	return &Runner{hooks: sorted}
}

// Run executes every hook against ctx in order, honoring Enabled and
// ErrorPolicy. It returns the first FailFast error encountered.
func (r *Runner) Run(ctx *Context) error {
	for _, h := range r.hooks {
		if h.Enabled != nil && !h.Enabled(ctx) {
			logger.Infof("bootstrap: skipping %s", h.Name)
			continue
		}
		logger.Infof("bootstrap: running %s", h.Name)
		if err := h.Func(ctx); err != nil {
			if h.ErrorPolicy == WarnAndContinue {
				logger.Warnf("bootstrap: %s failed (continuing): %v", h.Name, err)
				continue
			}
			return fmt.Errorf("bootstrap: %s failed: %w", h.Name, err)
		}
	}
	return nil
}
