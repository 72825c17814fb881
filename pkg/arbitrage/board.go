package arbitrage

import (
	"sync"
	"time"

	"github.com/gregtusar/basisarb/pkg/models"
)

// SpreadBoard keeps the latest spot and futures price per tracked symbol and
// serves them as spread observations. It is the default SpreadSource.
type SpreadBoard struct {
	symbols []string
	tracked map[string]struct{}
	spot    map[string]models.PriceTick
	futures map[string]models.PriceTick
	mu      sync.RWMutex
}

func NewSpreadBoard(symbols []string) *SpreadBoard {
	tracked := make(map[string]struct{}, len(symbols))
	ordered := make([]string, 0, len(symbols))
	for _, s := range symbols {
		if _, dup := tracked[s]; dup {
			continue
		}
		tracked[s] = struct{}{}
		ordered = append(ordered, s)
	}
	return &SpreadBoard{
		symbols: ordered,
		tracked: tracked,
		spot:    make(map[string]models.PriceTick),
		futures: make(map[string]models.PriceTick),
	}
}

func (b *SpreadBoard) Symbols() []string {
	out := make([]string, len(b.symbols))
	copy(out, b.symbols)
	return out
}

// Update stores a tick. Ticks for untracked symbols or non-positive prices are
// dropped.
func (b *SpreadBoard) Update(tick models.PriceTick) {
	if tick.Price <= 0 {
		return
	}
	if _, ok := b.tracked[tick.Symbol]; !ok {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	switch tick.Leg {
	case models.LegSpot:
		b.spot[tick.Symbol] = tick
	case models.LegFutures:
		b.futures[tick.Symbol] = tick
	}
}

// Spreads returns one observation per symbol that has both prices, in the
// order symbols were registered.
func (b *SpreadBoard) Spreads() []models.SpreadObservation {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]models.SpreadObservation, 0, len(b.symbols))
	for _, s := range b.symbols {
		spot, ok := b.spot[s]
		if !ok {
			continue
		}
		futures, ok := b.futures[s]
		if !ok {
			continue
		}
		ts := spot.Timestamp
		if futures.Timestamp.After(ts) {
			ts = futures.Timestamp
		}
		if ts.IsZero() {
			ts = time.Now().UTC()
		}
		out = append(out, models.NewSpreadObservation(s, spot.Price, futures.Price, ts))
	}
	return out
}
