// Package scheduler implements the Per-Symbol Scheduler (spec §4.8):
// one worker per admitted symbol, serialized by core.SymbolLocks, tick
// loop with a small sleep, four termination conditions, and a periodic
// process-wide health check.
//
// Grounded on the teacher's ticker-driven manager shape
// (trader/position_sync.go, trader/order_sync.go: Start/Stop/run with a
// time.Ticker and a done channel), generalized from "sync one cache" to
// "own one symbol's full tick".
package scheduler

import (
	"context"
	"math"
	"sync"
	"time"

	"hedgegrid/config"
	"hedgegrid/internal/alert"
	"hedgegrid/internal/autoreduce"
	"hedgegrid/internal/core"
	"hedgegrid/internal/exchange"
	"hedgegrid/internal/grid"
	"hedgegrid/internal/reconciler"
	"hedgegrid/internal/signal"
	"hedgegrid/internal/sizing"
	"hedgegrid/internal/tp"
	"hedgegrid/internal/xerr"
	"hedgegrid/logger"
)

// Scheduler owns the admitted-symbol set and one goroutine per worker.
type Scheduler struct {
	cfg    *config.Config
	port   exchange.Port
	source signal.Source
	alerts alert.Sink

	positions *core.PositionsCache
	locks     *core.SymbolLocks
	gate      *core.MinIntervalGate
	history   *core.OrderHistory
	equity    EquityFunc

	timers core.TimerConfig

	mu       sync.Mutex
	states   map[string]*core.SymbolState
	admitted map[string]bool

	wg     sync.WaitGroup
	cancel map[string]context.CancelFunc
}

// New builds a Scheduler wired to one Exchange Port and one Signal
// Source. equity is resolved by the caller on each tick via equityFn,
// since it comes from the account endpoint rather than the positions
// cache (see internal/exchange.Port and the bybitport/binanceport
// adapters' account-level calls).
type EquityFunc func(ctx context.Context) (float64, error)

func New(cfg *config.Config, port exchange.Port, source signal.Source, alerts alert.Sink, equity EquityFunc) *Scheduler {
	if alerts == nil {
		alerts = alert.NoopSink{}
	}
	s := &Scheduler{
		cfg:      cfg,
		port:     port,
		source:   source,
		alerts:   alerts,
		locks:    core.NewSymbolLocks(),
		gate:     core.NewMinIntervalGate(int64(cfg.MinOrderIntervalSec) * int64(time.Second)),
		history:  core.NewOrderHistory(),
		states:   make(map[string]*core.SymbolState),
		admitted: make(map[string]bool),
		cancel:   make(map[string]context.CancelFunc),
		timers: core.TimerConfig{
			AbsentFromPositionsThreshold: 150 * time.Second,
			NoEntrySignalThreshold:       150 * time.Second,
			OrderInactiveThreshold:       150 * time.Second,
		},
	}
	s.positions = core.NewPositionsCache(2*time.Second, func() (map[string]map[core.Side]core.Position, error) {
		return port.AllPositions(context.Background())
	})
	s.equity = equity
	return s
}

// Start admits every symbol in cfg.SymbolsAllowed (bounded by the
// admission cap, though naming them explicitly already satisfies it)
// and launches one worker per symbol plus the periodic health check.
func (s *Scheduler) Start(ctx context.Context) {
	for _, sym := range s.cfg.SymbolsAllowed {
		s.admit(ctx, sym)
	}
	s.wg.Add(1)
	go s.healthCheckLoop(ctx)
}

// Stop waits for every worker and the health-check loop to exit.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	for _, cancel := range s.cancel {
		cancel()
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Scheduler) admit(ctx context.Context, symbol string) {
	s.mu.Lock()
	if s.admitted[symbol] {
		s.mu.Unlock()
		return
	}
	if len(s.admitted) >= len(s.cfg.SymbolsAllowed) {
		s.mu.Unlock()
		return
	}
	s.admitted[symbol] = true
	workerCtx, cancel := context.WithCancel(ctx)
	s.cancel[symbol] = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go s.runWorker(workerCtx, symbol)
}

func (s *Scheduler) evict(symbol, reason string) {
	s.mu.Lock()
	delete(s.admitted, symbol)
	delete(s.states, symbol)
	if cancel, ok := s.cancel[symbol]; ok {
		cancel()
		delete(s.cancel, symbol)
	}
	s.mu.Unlock()
	s.alerts.WorkerTerminated(symbol, reason)
}

// Snapshot is a read-only view of one symbol's worker state, for the
// status API (SPEC_FULL §4.12). It never exposes enough to place or
// cancel an order — strictly observability.
type Snapshot struct {
	Symbol                string
	Admitted              bool
	ActiveGridsLong       bool
	ActiveGridsShort      bool
	AutoReduceActiveLong  bool
	AutoReduceActiveShort bool
	TPLong                *core.TPState
	TPShort               *core.TPState
}

// Symbols returns every currently admitted symbol.
func (s *Scheduler) Symbols() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.admitted))
	for sym := range s.admitted {
		out = append(out, sym)
	}
	return out
}

// Snapshot returns the current state for one symbol, or (Snapshot{}, false)
// if it isn't admitted.
func (s *Scheduler) Snapshot(symbol string) (Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.admitted[symbol] {
		return Snapshot{}, false
	}
	st, ok := s.states[symbol]
	if !ok {
		return Snapshot{Symbol: symbol, Admitted: true}, true
	}
	return Snapshot{
		Symbol:                symbol,
		Admitted:              true,
		ActiveGridsLong:       st.ActiveGridsLong,
		ActiveGridsShort:      st.ActiveGridsShort,
		AutoReduceActiveLong:  st.AutoReduceActiveLong,
		AutoReduceActiveShort: st.AutoReduceActiveShort,
		TPLong:                st.TPLong,
		TPShort:               st.TPShort,
	}, true
}

func (s *Scheduler) stateFor(symbol string) *core.SymbolState {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[symbol]
	if !ok {
		st = core.NewSymbolState(core.Symbol{Name: symbol})
		s.states[symbol] = st
	}
	return st
}

func (s *Scheduler) runWorker(ctx context.Context, symbol string) {
	defer s.wg.Done()
	interval := time.Duration(s.cfg.TickIntervalSec) * time.Second
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		s.locks.Lock(symbol)
		terminate, reason := s.tick(ctx, symbol)
		s.locks.Unlock(symbol)

		if terminate {
			_ = s.port.CancelAll(ctx, symbol)
			s.evict(symbol, reason)
			return
		}
	}
}

// tick performs one symbol's full read-plan-cancel-place-reconcile
// sequence, per spec §5's ordering guarantee.
func (s *Scheduler) tick(ctx context.Context, symbol string) (terminate bool, reason string) {
	now := time.Now()
	st := s.stateFor(symbol)

	snapshot, err := s.positions.Get(now)
	if err != nil {
		logger.Infof("scheduler: %s positions fetch failed: %v", symbol, err)
		return false, ""
	}
	longPos := snapshot.PositionFor(symbol, core.SideLong)
	shortPos := snapshot.PositionFor(symbol, core.SideShort)

	if longPos.Flat() && shortPos.Flat() {
		if st.PositionClosedTime.IsZero() {
			st.PositionClosedTime = now
		}
	} else {
		st.PositionClosedTime = time.Time{}
	}
	if core.CheckTimer(now, st.PositionClosedTime, s.timers.AbsentFromPositionsThreshold) {
		return true, "absent from open_positions beyond position_inactive_threshold"
	}

	reading, err := s.source.Read(symbol)
	readOK := err == nil
	if readOK {
		st.LastEntrySignalTime = now
	}
	if core.CheckTimer(now, st.LastEntrySignalTime, s.timers.NoEntrySignalThreshold) {
		return true, "no entry signal observed beyond no_entry_signal_threshold"
	}

	price, err := s.port.CurrentPrice(ctx, symbol)
	if err != nil {
		logger.Infof("scheduler: %s price fetch failed: %v", symbol, err)
		return false, ""
	}
	precision, err := s.port.Precision(ctx, symbol)
	if err != nil {
		logger.Infof("scheduler: %s precision fetch failed: %v", symbol, err)
		return false, ""
	}

	leverageLong := s.resolveLeverage(ctx, symbol, s.cfg.Exposure.LeverageLong)
	leverageShort := s.resolveLeverage(ctx, symbol, s.cfg.Exposure.LeverageShort)

	equity := 0.0
	if s.equity != nil {
		equity, err = s.equity(ctx)
		if err != nil {
			logger.Infof("scheduler: %s equity fetch failed: %v", symbol, err)
			return false, ""
		}
	}

	gridCfg := grid.Config{
		Levels:             s.cfg.Grid.Levels,
		Strength:           s.cfg.Grid.Strength,
		OuterPriceDistance: s.cfg.Grid.OuterPriceDistance,
		MinBufferPct:       s.cfg.Grid.MinBufferPct,
		MaxBufferPct:       s.cfg.Grid.MaxBufferPct,
		ReissueThreshold:   s.cfg.Grid.ReissueThreshold,
		EnforceFullGrid:    s.cfg.Grid.EnforceFullGrid,
	}

	longExposure := s.cfg.Exposure.WalletExposureLimitLong
	if longExposure == 0 {
		longExposure = s.cfg.Exposure.WalletExposureLimit
	}
	shortExposure := s.cfg.Exposure.WalletExposureLimitShort
	if shortExposure == 0 {
		shortExposure = s.cfg.Exposure.WalletExposureLimit
	}
	longNotional := sizing.SideNotional(equity, longExposure, leverageLong)
	shortNotional := sizing.SideNotional(equity, shortExposure, leverageShort)

	plan := grid.PlanWithNotional(gridCfg, symbol, price, precision.QtyStep,
		!longPos.Flat(), longPos.EntryPrice, longNotional,
		!shortPos.Flat(), shortPos.EntryPrice, shortNotional)

	openOrders, err := s.port.OpenOrders(ctx, symbol)
	if err != nil {
		logger.Infof("scheduler: %s open orders fetch failed: %v", symbol, err)
		return false, ""
	}

	retry := exchange.DefaultRetryPolicy()
	retry.Budget = s.cfg.RetryBudget

	s.reconcileSide(ctx, retry, symbol, core.SideLong, plan, openOrders, longPos, reading, readOK, st, now, price, gridCfg)
	s.reconcileSide(ctx, retry, symbol, core.SideShort, plan, openOrders, shortPos, reading, readOK, st, now, price, gridCfg)

	if core.CheckTimer(now, st.LastActiveLongOrderTime, s.timers.OrderInactiveThreshold) && longPos.Flat() {
		_ = s.port.CancelAllEntries(ctx, symbol)
	}
	if core.CheckTimer(now, st.LastActiveShortOrderTime, s.timers.OrderInactiveThreshold) && shortPos.Flat() {
		_ = s.port.CancelAllEntries(ctx, symbol)
	}

	book, err := s.port.OrderBook(ctx, symbol)
	if err == nil {
		s.reconcileTP(ctx, retry, symbol, core.SideLong, longPos, book, st, now)
		s.reconcileTP(ctx, retry, symbol, core.SideShort, shortPos, book, st, now)
		s.maybeAutoReduce(ctx, symbol, core.SideLong, longPos, equity, price, book, st)
		s.maybeAutoReduce(ctx, symbol, core.SideShort, shortPos, equity, price, book, st)
	}

	return false, ""
}

func (s *Scheduler) resolveLeverage(ctx context.Context, symbol string, configured int) int {
	if configured > 0 {
		return configured
	}
	max, err := s.port.MaxLeverage(ctx, symbol)
	if err != nil || max <= 0 {
		return 1
	}
	return max
}

func (s *Scheduler) reconcileSide(ctx context.Context, retry exchange.RetryPolicy, symbol string, side core.Side,
	plan core.GridPlan, openOrders []core.Order, pos core.Position, reading signal.Reading, readOK bool,
	st *core.SymbolState, now time.Time, price float64, gridCfg grid.Config) {

	levels := plan.LevelsLong
	amounts := plan.AmountsLong
	buffer := plan.BufferLong
	lastAnchor := st.LastPriceForReissueLong
	if side == core.SideShort {
		levels = plan.LevelsShort
		amounts = plan.AmountsShort
		buffer = plan.BufferShort
		lastAnchor = st.LastPriceForReissueShort
	}

	if pos.Flat() {
		// StateCancelAndClear: the position just went flat; the side's
		// resting entries (if any) are cleared this tick rather than
		// reconciled to a fresh plan.
		for _, o := range openOrders {
			if o.Side != side || o.ReduceOnly {
				continue
			}
			if err := s.port.CancelOrder(ctx, symbol, o.ID); err != nil && !xerr.IsStateMismatch(err) {
				logger.Infof("scheduler: %s cancel %s entry %s on flat failed: %v", symbol, side, o.ID, err)
			}
		}
		if side == core.SideLong {
			st.ActiveGridsLong = false
		} else {
			st.ActiveGridsShort = false
		}
	}

	// Reissue gate (spec §4.3): a flat side only gets a fresh ladder
	// once price has moved reissue_threshold from the last reissue
	// anchor; a side in position only gets replanned once price has
	// moved buffer_distance_side from entry. Otherwise this tick leaves
	// the side's resting orders untouched rather than re-diffing a plan
	// computed from the live, drifting price.
	decision := grid.EvaluateReissue(!pos.Flat(), pos.Qty, price, pos.EntryPrice, lastAnchor, gridCfg.ReissueThreshold, buffer*price)
	if !decision.Reissue {
		return
	}
	if decision.ThresholdReissue {
		if side == core.SideLong {
			st.LastPriceForReissueLong = decision.NewAnchor
		} else {
			st.LastPriceForReissueShort = decision.NewAnchor
		}
	}

	signalAllows := readOK && func() bool {
		if side == core.SideLong {
			return signal.CombineEntryLong(reading, s.cfg.Signal.VolumeCheck, s.cfg.Signal.MinVolume, s.cfg.Signal.MinDistance)
		}
		return signal.CombineEntryShort(reading, s.cfg.Signal.VolumeCheck, s.cfg.Signal.MinVolume, s.cfg.Signal.MinDistance)
	}()

	autoReduceActive := st.AutoReduceActiveLong
	if side == core.SideShort {
		autoReduceActive = st.AutoReduceActiveShort
	}

	gate := reconciler.EntryGate{
		SignalAllows:          signalAllows,
		AutoReduceActive:      autoReduceActive,
		EntryDuringAutoReduce: s.cfg.Signal.EntryDuringAutoReduce,
		IntervalAllows:        reconciler.CanPlaceOrder(s.gate, symbol, now),
	}

	rLevels := make([]reconciler.Level, len(levels))
	for i, lvl := range levels {
		rLevels[i] = reconciler.Level{Price: lvl, Qty: amounts[i]}
	}

	err := reconciler.Tick(ctx, s.port, retry, symbol, reconciler.Plan{Side: side, Levels: rLevels}, openOrders, gate,
		func(price float64) string { return core.GridLinkID(symbol, side, price, now) })
	if err != nil {
		logger.Infof("scheduler: %s %s reconcile failed: %v", symbol, side, err)
		return
	}
	if len(rLevels) > 0 && gate.Allowed() {
		if side == core.SideLong {
			st.ActiveGridsLong = true
			st.LastActiveLongOrderTime = now
		} else {
			st.ActiveGridsShort = true
			st.LastActiveShortOrderTime = now
		}
	}
}

func (s *Scheduler) reconcileTP(ctx context.Context, retry exchange.RetryPolicy, symbol string, side core.Side,
	pos core.Position, book exchange.OrderBook, st *core.SymbolState, now time.Time) {

	current := st.TPLong
	if side == core.SideShort {
		current = st.TPShort
	}

	if pos.Flat() {
		if current != nil {
			_ = retry.Do(ctx, func() error { return s.port.CancelOrder(ctx, symbol, current.OrderID) })
			if side == core.SideLong {
				st.TPLong = nil
			} else {
				st.TPShort = nil
			}
		}
		return
	}

	tpCfg := tp.Config{
		Mode:               s.cfg.TP.Mode,
		UpnlProfitPct:      s.cfg.TP.UpnlProfitPct,
		MinUpnlProfitPct:   s.cfg.TP.UpnlProfitPct,
		MaxUpnlProfitPct:   s.cfg.TP.MaxUpnlProfitPct,
		WallAssist:         s.cfg.TP.WallAssist,
		WallMaxDeviation:   s.cfg.TP.WallMaxDeviation,
		WallBaseFactor:     s.cfg.TP.WallBaseFactor,
		WallATRProximity:   s.cfg.TP.WallATRProximity,
		RefreshIntervalSec: s.cfg.TP.RefreshIntervalSec,
	}
	target := tp.Target(tpCfg, side, pos.EntryPrice, pos.Qty, pos.Qty)

	if tpCfg.WallAssist {
		exitLevels := book.Asks
		if side == core.SideShort {
			exitLevels = book.Bids
		}
		wall, found := tp.SignificantWall(exitLevels, target, 0, tpCfg.WallBaseFactor, tpCfg.WallATRProximity, s.cfg.TP.WallTopNSize)
		target = tp.ExtendTowardWall(side, target, wall, found, tpCfg.WallMaxDeviation)
	}

	if !tp.NeedsReplace(current, target, pos.Qty, pos.EntryPrice*1e-6) {
		return
	}
	qtyChanged := current == nil || math.Abs(current.Qty-pos.Qty) > 1e-12
	if !qtyChanged {
		refresh := time.Duration(tpCfg.RefreshIntervalSec) * time.Second
		if refresh > 0 && now.Sub(current.LastUpdate) < refresh {
			return
		}
	}

	price, postOnly := tp.ClampToMarket(side, target, book)
	req := exchange.CreateOrderRequest{
		Symbol:      symbol,
		Side:        side.Opposite(),
		Price:       price,
		Qty:         pos.Qty,
		PositionIdx: core.PositionIdxFor(side),
		PostOnly:    postOnly,
		ReduceOnly:  true,
		LinkID:      core.GridLinkID(symbol, side, price, now),
	}

	if current != nil {
		_ = retry.Do(ctx, func() error { return s.port.CancelOrder(ctx, symbol, current.OrderID) })
	}

	var order core.Order
	err := retry.Do(ctx, func() error {
		var createErr error
		if postOnly {
			order, createErr = s.port.CreateReduceOnlyLimit(ctx, req)
		} else {
			order, createErr = s.port.CreateNormalLimit(ctx, req)
		}
		return createErr
	})
	if err != nil {
		logger.Infof("scheduler: %s %s TP place failed: %v", symbol, side, err)
		return
	}

	newState := &core.TPState{OrderID: order.ID, Price: price, Qty: pos.Qty, LastUpdate: now}
	if side == core.SideLong {
		st.TPLong = newState
	} else {
		st.TPShort = newState
	}
}

func (s *Scheduler) maybeAutoReduce(ctx context.Context, symbol string, side core.Side, pos core.Position,
	equity, price float64, book exchange.OrderBook, st *core.SymbolState) {

	arCfg := autoreduce.Config{
		Variant:            s.cfg.AutoReduce.Variant,
		StartPct:           s.cfg.AutoReduce.StartPct,
		UpnlThresholdLong:  s.cfg.AutoReduce.UpnlThresholdLong,
		UpnlThresholdShort: s.cfg.AutoReduce.UpnlThresholdShort,
		MaxPosBalancePct:   s.cfg.AutoReduce.MaxPosBalancePct,
		LadderSteps:        3,
	}

	triggered := autoreduce.ShouldTrigger(arCfg, side, pos, equity, price)
	if side == core.SideLong {
		st.AutoReduceActiveLong = triggered
	} else {
		st.AutoReduceActiveShort = triggered
	}
	if !triggered {
		return
	}

	var orders []autoreduce.ReduceOrder
	if arCfg.Variant == "grid_hardened" {
		bestBid, _ := book.BestBid()
		bestAsk, _ := book.BestAsk()
		orders = []autoreduce.ReduceOrder{autoreduce.GridHardened(side, pos, bestBid, bestAsk, 0)}
	} else {
		orders = autoreduce.LadderSimple(arCfg, side, pos, price, 0, 0)
	}

	for _, o := range orders {
		req := exchange.CreateOrderRequest{
			Symbol:      symbol,
			Side:        side.Opposite(),
			Price:       o.Price,
			Qty:         o.Qty,
			PositionIdx: core.PositionIdxFor(side),
			ReduceOnly:  true,
			LinkID:      core.AutoReduceLinkID(side, symbol, o.Price, o.Level),
		}
		order, err := s.port.CreateReduceOnlyLimit(ctx, req)
		if err != nil {
			logger.Infof("scheduler: %s %s auto-reduce order failed: %v", symbol, side, err)
			continue
		}
		st.AutoReduceOrderIDs[order.ID] = true
		s.alerts.AutoReduceTriggered(symbol, string(side), o.Qty, o.Price)
	}
}

func (s *Scheduler) healthCheckLoop(ctx context.Context) {
	defer s.wg.Done()
	interval := time.Duration(s.cfg.HealthCheckSec) * time.Second
	if interval <= 0 {
		interval = 300 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		s.mu.Lock()
		symbols := make([]string, 0, len(s.admitted))
		for sym := range s.admitted {
			symbols = append(symbols, sym)
		}
		s.mu.Unlock()
		for _, sym := range symbols {
			if err := s.port.CancelAll(ctx, sym); err != nil {
				logger.Infof("scheduler: health check cancel-all failed for %s: %v", sym, err)
			}
		}
	}
}
