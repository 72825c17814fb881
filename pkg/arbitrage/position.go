package arbitrage

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/gregtusar/basisarb/pkg/models"
)

var (
	ErrNoPrice      = errors.New("leg has no filled orders")
	ErrInvalidState = errors.New("invalid position state transition")
)

type PositionState string

const (
	StateFlat    PositionState = "FLAT"
	StateOpening PositionState = "OPENING"
	StateOpen    PositionState = "OPEN"
	StateClosing PositionState = "CLOSING"
)

// validTransitions lists the allowed lifecycle moves. Failed sequences leave
// the atom where it is for manual reconciliation.
var validTransitions = map[PositionState][]PositionState{
	StateFlat:    {StateOpening},
	StateOpening: {StateOpen},
	StateOpen:    {StateClosing},
	StateClosing: {StateFlat},
}

func CanTransition(from, to PositionState) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// PositionAtom is the two-leg arbitrage position for one symbol. Readers may
// observe it between the two legs of a sequence, one leg filled and the other
// not yet.
type PositionAtom struct {
	mu             sync.RWMutex
	symbol         string
	legs           map[models.Leg]*LegLedger
	sellLeg        models.Leg
	spreadAtOpen   *float64
	targetQuantity float64
	state          PositionState
	openedAt       time.Time
}

func NewPositionAtom(symbol string) *PositionAtom {
	return &PositionAtom{
		symbol: symbol,
		legs: map[models.Leg]*LegLedger{
			models.LegSpot:    {},
			models.LegFutures: {},
		},
		state: StateFlat,
	}
}

func (p *PositionAtom) Symbol() string {
	return p.symbol
}

func (p *PositionAtom) State() PositionState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

func (p *PositionAtom) Transition(to PositionState) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.transitionLocked(to)
}

func (p *PositionAtom) transitionLocked(to PositionState) error {
	if !CanTransition(p.state, to) {
		return fmt.Errorf("%w: %s %s -> %s", ErrInvalidState, p.symbol, p.state, to)
	}
	p.state = to
	if to == StateFlat {
		p.sellLeg = models.LegNone
	}
	return nil
}

// AssignSellLeg picks the leg to sell from the sign of the observed spread and
// moves a flat atom to OPENING. Spot above futures sells spot and buys futures.
func (p *PositionAtom) AssignSellLeg(observedSpread float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.transitionLocked(StateOpening); err != nil {
		return err
	}
	p.sellLeg = SellLegForSpread(observedSpread)
	spread := observedSpread
	p.spreadAtOpen = &spread
	p.openedAt = time.Now().UTC()
	return nil
}

func (p *PositionAtom) SellLeg() (models.Leg, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.sellLeg, p.sellLeg != models.LegNone
}

func (p *PositionAtom) SpreadAtOpen() (float64, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.spreadAtOpen == nil {
		return 0, false
	}
	return *p.spreadAtOpen, true
}

func (p *PositionAtom) OpenedAt() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.openedAt
}

func (p *PositionAtom) setTargetQuantity(q float64) {
	p.mu.Lock()
	p.targetQuantity = q
	p.mu.Unlock()
}

func (p *PositionAtom) RecordOrder(leg models.Leg, order models.OrderResult) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.legs[leg].Record(order)
}

func (p *PositionAtom) Quantity(leg models.Leg, amountType AmountType) float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.legs[leg].Quantity(amountType)
}

func (p *PositionAtom) AveragePrice(leg models.Leg) (float64, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.legs[leg].AveragePrice()
}

func (p *PositionAtom) QuotedValue(leg models.Leg) float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.legs[leg].QuotedValue()
}

func (p *PositionAtom) RealizedLegPnL(leg models.Leg) float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.legs[leg].RealizedLegPnL()
}

// ProfitLoss reports each leg's net spend and the resulting position profit.
func (p *PositionAtom) ProfitLoss() (spot, futures, total float64) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	spot = p.legs[models.LegSpot].RealizedLegPnL()
	futures = p.legs[models.LegFutures].RealizedLegPnL()
	return spot, futures, -(spot + futures)
}

// SpreadNow is the spread locked in by the fills so far.
func (p *PositionAtom) SpreadNow() (float64, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.spreadNowLocked()
}

func (p *PositionAtom) spreadNowLocked() (float64, error) {
	spot, ok := p.legs[models.LegSpot].AveragePrice()
	if !ok {
		return 0, fmt.Errorf("%s spot: %w", p.symbol, ErrNoPrice)
	}
	futures, ok := p.legs[models.LegFutures].AveragePrice()
	if !ok || futures == 0 {
		return 0, fmt.Errorf("%s futures: %w", p.symbol, ErrNoPrice)
	}
	return (spot - futures) / futures * 100, nil
}

// SpreadDivergence measures how far the observed spread has moved from the
// spread seen at open. Fill slippage never moves the reference, so an
// unchanged observation never closes a position. The filled spread is used
// only when the atom has no recorded open spread.
func (p *PositionAtom) SpreadDivergence(observed float64) (float64, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	reference, err := p.referenceSpreadLocked()
	if err != nil {
		return 0, err
	}
	return SpreadDivergence(reference, observed), nil
}

// ReferenceSpread is the spread a close decision is measured against.
func (p *PositionAtom) ReferenceSpread() (float64, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.referenceSpreadLocked()
}

func (p *PositionAtom) referenceSpreadLocked() (float64, error) {
	if p.spreadAtOpen != nil {
		return *p.spreadAtOpen, nil
	}
	return p.spreadNowLocked()
}

// HasFills reports whether either leg holds a filled order.
func (p *PositionAtom) HasFills() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.legs[models.LegSpot].Quantity(AmountFilled) > 0 ||
		p.legs[models.LegFutures].Quantity(AmountFilled) > 0
}

// IsFull reports whether an OPEN atom's spot leg has filled the quantity
// sized at open. Atoms mid-sequence are never full.
func (p *PositionAtom) IsFull() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.isFullLocked()
}

func (p *PositionAtom) isFullLocked() bool {
	if p.state != StateOpen || p.targetQuantity <= 0 {
		return false
	}
	return p.legs[models.LegSpot].Quantity(AmountFilled) >= p.targetQuantity
}

// Asset strips the collateral suffix from the symbol, BTCUSDT -> BTC.
func (p *PositionAtom) Asset(collateral string) string {
	return strings.TrimSuffix(p.symbol, collateral)
}

func (p *PositionAtom) Title() string {
	leg, _ := p.SellLeg()
	return fmt.Sprintf("%s %s SELL", p.symbol, leg)
}

func (p *PositionAtom) Snapshot() models.PositionSnapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()

	snap := models.PositionSnapshot{
		Symbol:   p.symbol,
		State:    string(p.state),
		SellLeg:  p.sellLeg,
		Full:     p.isFullLocked(),
		Spot:     legSnapshot(p.legs[models.LegSpot]),
		Futures:  legSnapshot(p.legs[models.LegFutures]),
		OpenedAt: p.openedAt,
	}
	if p.spreadAtOpen != nil {
		v := *p.spreadAtOpen
		snap.SpreadAtOpen = &v
	}
	if v, err := p.spreadNowLocked(); err == nil {
		snap.SpreadNow = &v
	}
	return snap
}

func legSnapshot(l *LegLedger) models.LegSnapshot {
	s := models.LegSnapshot{
		Orders:         l.Orders(),
		FilledQuantity: l.Quantity(AmountFilled),
		QuotedValue:    l.QuotedValue(),
	}
	if price, ok := l.AveragePrice(); ok {
		s.AveragePrice = &price
	}
	return s
}

// SellLegForSpread returns SPOT for a positive spread and FUTURES otherwise.
func SellLegForSpread(spread float64) models.Leg {
	if spread > 0 {
		return models.LegSpot
	}
	return models.LegFutures
}

// LegOrderSides returns the (spot, futures) order sides for a sell leg.
func LegOrderSides(sellLeg models.Leg) (spot, futures models.Side) {
	if sellLeg == models.LegSpot {
		return models.SideSell, models.SideBuy
	}
	return models.SideBuy, models.SideSell
}

// SpreadDivergence is the absolute difference of two same-signed spreads, and
// the sum of their magnitudes when the sign has flipped.
func SpreadDivergence(reference, observed float64) float64 {
	if reference*observed > 0 {
		return math.Abs(reference - observed)
	}
	return math.Abs(reference) + math.Abs(observed)
}
