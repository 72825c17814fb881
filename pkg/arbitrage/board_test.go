package arbitrage

import (
	"testing"
	"time"

	"github.com/gregtusar/basisarb/pkg/models"
)

func TestSpreadBoard_Spreads(t *testing.T) {
	board := NewSpreadBoard([]string{"BBBUSDT", "AAAUSDT", "BBBUSDT"})
	now := time.Now().UTC()

	board.Update(models.PriceTick{Symbol: "AAAUSDT", Leg: models.LegSpot, Price: 10.1, Timestamp: now})
	board.Update(models.PriceTick{Symbol: "AAAUSDT", Leg: models.LegFutures, Price: 10, Timestamp: now})
	board.Update(models.PriceTick{Symbol: "BBBUSDT", Leg: models.LegSpot, Price: 5, Timestamp: now})
	board.Update(models.PriceTick{Symbol: "CCCUSDT", Leg: models.LegSpot, Price: 1, Timestamp: now})
	board.Update(models.PriceTick{Symbol: "CCCUSDT", Leg: models.LegFutures, Price: 1, Timestamp: now})

	spreads := board.Spreads()
	if len(spreads) != 1 {
		t.Fatalf("got %d observations, want 1: %+v", len(spreads), spreads)
	}
	if spreads[0].Symbol != "AAAUSDT" || !almostEqual(spreads[0].SpreadPct, 1) {
		t.Errorf("unexpected observation %+v", spreads[0])
	}

	board.Update(models.PriceTick{Symbol: "BBBUSDT", Leg: models.LegFutures, Price: 5.05, Timestamp: now})
	spreads = board.Spreads()
	if len(spreads) != 2 || spreads[0].Symbol != "BBBUSDT" {
		t.Fatalf("observations should follow registration order, got %+v", spreads)
	}
	if spreads[0].SpreadPct >= 0 {
		t.Errorf("spot below futures should give a negative spread, got %v", spreads[0].SpreadPct)
	}
	if got := board.Symbols(); len(got) != 2 {
		t.Errorf("Symbols = %v, want deduplicated list", got)
	}
}

func TestSpreadBoard_IgnoresBadPrices(t *testing.T) {
	board := NewSpreadBoard([]string{"AAAUSDT"})
	board.Update(models.PriceTick{Symbol: "AAAUSDT", Leg: models.LegSpot, Price: 0})
	board.Update(models.PriceTick{Symbol: "AAAUSDT", Leg: models.LegFutures, Price: 10})
	if got := board.Spreads(); len(got) != 0 {
		t.Errorf("expected no observation without a spot price, got %+v", got)
	}
}
