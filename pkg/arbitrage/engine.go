package arbitrage

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gregtusar/basisarb/pkg/models"
	"github.com/sirupsen/logrus"
)

type EngineConfig struct {
	OpenThresholdPct  float64
	CloseThresholdPct float64
	TickInterval      time.Duration
}

// Status is the engine-wide view exposed to operators.
type Status struct {
	Halted           bool              `json:"halted"`
	HaltCause        string            `json:"halt_cause,omitempty"`
	Banned           map[string]string `json:"banned"`
	Positions        int               `json:"positions"`
	OpenNotional     float64           `json:"open_notional"`
	MaxTotalNotional float64           `json:"max_total_notional"`
	RealizedPnL      float64           `json:"realized_pnl"`
}

// Engine is the registry of positions keyed by symbol and the decision loop
// that turns spread observations into open and close sequences. Observations
// are processed one at a time on the engine's own goroutine, so at most one
// sequence per symbol is ever in flight.
type Engine struct {
	coordinator *ExecutionCoordinator
	gate        *ExposureGate
	governor    *FailureGovernor
	source      SpreadSource
	notifier    NotificationSink
	diary       ClosedPositionRecorder
	cfg         EngineConfig
	positions   map[string]*PositionAtom
	realizedPnL float64
	logger      *logrus.Logger
	mu          sync.RWMutex
	stopCh      chan struct{}
	stopOnce    sync.Once
}

func NewEngine(
	cfg EngineConfig,
	coordinator *ExecutionCoordinator,
	gate *ExposureGate,
	governor *FailureGovernor,
	source SpreadSource,
	notifier NotificationSink,
	logger *logrus.Logger,
) *Engine {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	e := &Engine{
		coordinator: coordinator,
		gate:        gate,
		governor:    governor,
		source:      source,
		notifier:    notifier,
		cfg:         cfg,
		positions:   make(map[string]*PositionAtom),
		logger:      logger,
		stopCh:      make(chan struct{}),
	}
	governor.SetRecoveryHook(RecoveryHookFunc(e.reportStranded))
	return e
}

// SetDiary registers a recorder for fully closed positions.
func (e *Engine) SetDiary(diary ClosedPositionRecorder) {
	e.diary = diary
}

func (e *Engine) Start(ctx context.Context) error {
	e.logger.WithFields(logrus.Fields{
		"open_threshold":  e.cfg.OpenThresholdPct,
		"close_threshold": e.cfg.CloseThresholdPct,
		"tick":            e.cfg.TickInterval,
	}).Info("Starting arbitrage engine")

	go e.run(ctx)
	return nil
}

func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		e.logger.Info("Stopping arbitrage engine")
		close(e.stopCh)
	})
}

func (e *Engine) run(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stopCh:
			return
		case <-ticker.C:
			e.Tick(ctx)
		}
	}
}

// Tick evaluates the current observation of every symbol in order. A halted
// engine keeps ticking so it stays observable but takes no action.
func (e *Engine) Tick(ctx context.Context) {
	ticksTotal.Inc()
	if e.governor.IsHalted() {
		return
	}
	for _, obs := range e.source.Spreads() {
		if ctx.Err() != nil {
			return
		}
		e.ProcessSpread(ctx, obs)
	}
}

// ProcessSpread decides between open, hold and close for one observation.
func (e *Engine) ProcessSpread(ctx context.Context, obs models.SpreadObservation) {
	if err := e.governor.Allow(obs.Symbol); err != nil {
		return
	}
	if math.IsNaN(obs.SpreadPct) || math.IsInf(obs.SpreadPct, 0) {
		return
	}

	e.mu.RLock()
	atom := e.positions[obs.Symbol]
	e.mu.RUnlock()

	switch {
	case atom == nil || atom.State() == StateFlat:
		if math.Abs(obs.SpreadPct) < e.cfg.OpenThresholdPct {
			return
		}
		atoms := e.atoms()
		if !e.gate.CanOpen(atoms, atom, e.gate.MaxPairNotional()) {
			return
		}
		e.open(ctx, atom, obs, math.Min(e.gate.MaxPairNotional(), e.gate.Headroom(atoms)))

	case atom.State() == StateOpen && atom.IsFull():
		divergence, err := atom.SpreadDivergence(obs.SpreadPct)
		if err != nil || divergence < e.cfg.CloseThresholdPct {
			return
		}
		e.close(ctx, atom, obs)
	}
}

func (e *Engine) open(ctx context.Context, atom *PositionAtom, obs models.SpreadObservation, notional float64) {
	if atom == nil {
		atom = NewPositionAtom(obs.Symbol)
	}
	if err := atom.AssignSellLeg(obs.SpreadPct); err != nil {
		e.logger.WithError(err).WithField("symbol", obs.Symbol).Error("Cannot open position")
		return
	}

	e.mu.Lock()
	e.positions[obs.Symbol] = atom
	e.mu.Unlock()

	log := e.logger.WithFields(logrus.Fields{"symbol": obs.Symbol, "spread": obs.SpreadPct})
	log.Info("Opening arbitrage position")

	if err := e.coordinator.Open(ctx, atom, obs, notional); err != nil {
		positionsTotal.WithLabelValues("failed").Inc()
		// Nothing filled means nothing to reconcile; the symbol may open
		// again once the governor allows it.
		if !atom.HasFills() {
			e.mu.Lock()
			delete(e.positions, obs.Symbol)
			e.mu.Unlock()
		}
		e.updateExposure()
		log.WithError(err).Error("Open sequence failed")
		e.governor.Handle(ctx, obs.Symbol, err)
		return
	}
	if err := atom.Transition(StateOpen); err != nil {
		log.WithError(err).Error("Unexpected state after open")
		return
	}

	positionsTotal.WithLabelValues("opened").Inc()
	e.updateExposure()
}

func (e *Engine) close(ctx context.Context, atom *PositionAtom, obs models.SpreadObservation) {
	log := e.logger.WithFields(logrus.Fields{"symbol": obs.Symbol, "spread": obs.SpreadPct})
	if err := atom.Transition(StateClosing); err != nil {
		log.WithError(err).Error("Cannot close position")
		return
	}
	log.Info("Closing arbitrage position")

	closed, err := e.coordinator.Close(ctx, atom, obs)
	if err != nil {
		positionsTotal.WithLabelValues("failed").Inc()
		log.WithError(err).Error("Close sequence failed")
		e.governor.Handle(ctx, obs.Symbol, err)
		return
	}
	if err := atom.Transition(StateFlat); err != nil {
		log.WithError(err).Error("Unexpected state after close")
	}

	e.mu.Lock()
	delete(e.positions, obs.Symbol)
	e.realizedPnL += closed.TotalPnL
	e.mu.Unlock()

	positionsTotal.WithLabelValues("closed").Inc()
	realizedPnLGauge.Add(closed.TotalPnL)
	e.updateExposure()

	if e.diary != nil {
		if err := e.diary.RecordClosed(ctx, closed); err != nil {
			log.WithError(err).Warn("Failed to record closed position in diary")
		}
	}
}

// reportStranded is the default recovery hook. It lists every position left in
// the registry for manual reconciliation and places no orders.
func (e *Engine) reportStranded(ctx context.Context, cause error) error {
	snaps := e.Positions()
	if len(snaps) == 0 {
		return nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "HALTED (%v). Positions awaiting manual reconciliation:", cause)
	for _, s := range snaps {
		fmt.Fprintf(&b, "\n%s %s sell=%s spot=%g futures=%g",
			s.Symbol, s.State, s.SellLeg, s.Spot.FilledQuantity, s.Futures.FilledQuantity)
	}
	if e.notifier != nil {
		if err := e.notifier.Send(ctx, b.String()); err != nil {
			return fmt.Errorf("notify stranded positions: %w", err)
		}
	}
	return nil
}

func (e *Engine) atoms() []*PositionAtom {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*PositionAtom, 0, len(e.positions))
	for _, a := range e.positions {
		out = append(out, a)
	}
	return out
}

func (e *Engine) updateExposure() {
	openNotionalGauge.Set(e.gate.OpenNotional(e.atoms()))
}

// Position returns the atom tracked for symbol, if any.
func (e *Engine) Position(symbol string) (*PositionAtom, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	a, ok := e.positions[symbol]
	return a, ok
}

// Positions returns snapshots of every tracked atom sorted by symbol.
func (e *Engine) Positions() []models.PositionSnapshot {
	atoms := e.atoms()
	snaps := make([]models.PositionSnapshot, 0, len(atoms))
	for _, a := range atoms {
		snaps = append(snaps, a.Snapshot())
	}
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].Symbol < snaps[j].Symbol })
	return snaps
}

func (e *Engine) OpenNotional() float64 {
	return e.gate.OpenNotional(e.atoms())
}

func (e *Engine) Status() Status {
	e.mu.RLock()
	n := len(e.positions)
	pnl := e.realizedPnL
	e.mu.RUnlock()

	st := Status{
		Halted:           e.governor.IsHalted(),
		Banned:           e.governor.Banned(),
		Positions:        n,
		OpenNotional:     e.OpenNotional(),
		MaxTotalNotional: e.gate.MaxTotalNotional(),
		RealizedPnL:      pnl,
	}
	if cause := e.governor.HaltCause(); cause != nil {
		st.HaltCause = cause.Error()
	}
	return st
}

func (e *Engine) Halted() bool {
	return e.governor.IsHalted()
}

// Resume clears a halt. Positions left mid-sequence stay as they are.
func (e *Engine) Resume(ctx context.Context) {
	e.governor.Resume()
	if e.notifier != nil {
		if err := e.notifier.Send(ctx, "Trading resumed by operator"); err != nil {
			e.logger.WithError(err).Warn("Failed to send notification")
		}
	}
}
