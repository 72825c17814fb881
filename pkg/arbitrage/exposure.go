package arbitrage

import (
	"math"

	"github.com/gregtusar/basisarb/pkg/models"
)

// ExposureGate enforces the per-position and aggregate notional caps before a
// new open. Notionals are in collateral units.
type ExposureGate struct {
	maxPairNotional  float64
	maxTotalNotional float64
}

func NewExposureGate(maxPairNotional, maxTotalNotional float64) *ExposureGate {
	return &ExposureGate{
		maxPairNotional:  maxPairNotional,
		maxTotalNotional: maxTotalNotional,
	}
}

func (g *ExposureGate) MaxPairNotional() float64 {
	return g.maxPairNotional
}

func (g *ExposureGate) MaxTotalNotional() float64 {
	return g.maxTotalNotional
}

// OpenNotional sums the filled spot-leg value of every atom.
func (g *ExposureGate) OpenNotional(atoms []*PositionAtom) float64 {
	var total float64
	for _, a := range atoms {
		total += a.QuotedValue(models.LegSpot)
	}
	return total
}

// Headroom is the notional still available under the aggregate cap.
func (g *ExposureGate) Headroom(atoms []*PositionAtom) float64 {
	return math.Max(0, g.maxTotalNotional-g.OpenNotional(atoms))
}

// CanOpen reports whether candidateNotional fits under the aggregate cap and
// the candidate atom, if one exists, is not already full.
func (g *ExposureGate) CanOpen(atoms []*PositionAtom, candidate *PositionAtom, candidateNotional float64) bool {
	if candidate != nil && candidate.IsFull() {
		return false
	}
	return g.OpenNotional(atoms)+candidateNotional <= g.maxTotalNotional
}
