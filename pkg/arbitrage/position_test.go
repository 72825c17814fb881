package arbitrage

import (
	"errors"
	"testing"

	"github.com/gregtusar/basisarb/pkg/models"
)

func TestSpreadDivergence(t *testing.T) {
	tests := []struct {
		name      string
		reference float64
		observed  float64
		want      float64
	}{
		{"positive narrowing", 2, 0.5, 1.5},
		{"sign flip", 2, -0.5, 2.5},
		{"negative narrowing", -2, -0.5, 1.5},
		{"negative flip", -0.6, 0.1, 0.7},
		{"reconverged to zero", 0.6, 0, 0.6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SpreadDivergence(tt.reference, tt.observed); !almostEqual(got, tt.want) {
				t.Errorf("SpreadDivergence(%v, %v) = %v, want %v", tt.reference, tt.observed, got, tt.want)
			}
		})
	}
}

func TestSellLegAndOrderSides(t *testing.T) {
	tests := []struct {
		spread      float64
		wantLeg     models.Leg
		wantSpot    models.Side
		wantFutures models.Side
	}{
		{0.6, models.LegSpot, models.SideSell, models.SideBuy},
		{-0.6, models.LegFutures, models.SideBuy, models.SideSell},
		{0, models.LegFutures, models.SideBuy, models.SideSell},
	}

	for _, tt := range tests {
		leg := SellLegForSpread(tt.spread)
		if leg != tt.wantLeg {
			t.Errorf("SellLegForSpread(%v) = %s, want %s", tt.spread, leg, tt.wantLeg)
		}
		spot, futures := LegOrderSides(leg)
		if spot != tt.wantSpot || futures != tt.wantFutures {
			t.Errorf("LegOrderSides(%s) = %s/%s, want %s/%s", leg, spot, futures, tt.wantSpot, tt.wantFutures)
		}
	}
}

func TestPositionAtom_Lifecycle(t *testing.T) {
	atom := NewPositionAtom("SOLUSDT")
	if _, ok := atom.SellLeg(); ok {
		t.Fatal("flat atom must not have a sell leg")
	}
	if atom.State() != StateFlat {
		t.Fatalf("state = %s, want FLAT", atom.State())
	}

	if err := atom.AssignSellLeg(0.6); err != nil {
		t.Fatalf("AssignSellLeg: %v", err)
	}
	leg, ok := atom.SellLeg()
	if !ok || leg != models.LegSpot {
		t.Fatalf("sell leg = %s/%v, want SPOT", leg, ok)
	}
	if spread, ok := atom.SpreadAtOpen(); !ok || spread != 0.6 {
		t.Errorf("spread at open = %v/%v, want 0.6", spread, ok)
	}
	if atom.State() != StateOpening {
		t.Fatalf("state = %s, want OPENING", atom.State())
	}

	if err := atom.AssignSellLeg(0.7); !errors.Is(err, ErrInvalidState) {
		t.Errorf("second AssignSellLeg err = %v, want ErrInvalidState", err)
	}
	if err := atom.Transition(StateClosing); !errors.Is(err, ErrInvalidState) {
		t.Errorf("OPENING -> CLOSING err = %v, want ErrInvalidState", err)
	}

	for _, s := range []PositionState{StateOpen, StateClosing, StateFlat} {
		if err := atom.Transition(s); err != nil {
			t.Fatalf("Transition(%s): %v", s, err)
		}
	}
	if _, ok := atom.SellLeg(); ok {
		t.Error("sell leg must be cleared when flat again")
	}
}

func TestPositionAtom_SpreadNowAndFull(t *testing.T) {
	atom := NewPositionAtom("SOLUSDT")
	if _, err := atom.SpreadNow(); !errors.Is(err, ErrNoPrice) {
		t.Fatalf("SpreadNow err = %v, want ErrNoPrice", err)
	}
	if _, err := atom.SpreadDivergence(0.1); !errors.Is(err, ErrNoPrice) {
		t.Fatalf("SpreadDivergence err = %v, want ErrNoPrice", err)
	}

	if err := atom.AssignSellLeg(0.6); err != nil {
		t.Fatal(err)
	}
	atom.setTargetQuantity(0.25)
	atom.RecordOrder(models.LegSpot, filled(models.SideSell, 0.25, 100.6))

	// Divergence is measured from the spread seen at open.
	d, err := atom.SpreadDivergence(-0.1)
	if err != nil || !almostEqual(d, 0.7) {
		t.Fatalf("half-open divergence = %v/%v, want 0.7", d, err)
	}
	if atom.IsFull() {
		t.Error("an OPENING atom is never full")
	}

	atom.RecordOrder(models.LegFutures, filled(models.SideBuy, 0.25, 100))
	if err := atom.Transition(StateOpen); err != nil {
		t.Fatal(err)
	}
	if !atom.IsFull() {
		t.Error("open atom with target quantity filled should be full")
	}
	spread, err := atom.SpreadNow()
	if err != nil {
		t.Fatalf("SpreadNow: %v", err)
	}
	if !almostEqual(spread, 0.6) {
		t.Errorf("spread now = %v, want 0.6", spread)
	}

	snap := atom.Snapshot()
	if snap.Symbol != "SOLUSDT" || snap.SellLeg != models.LegSpot || !snap.Full {
		t.Errorf("unexpected snapshot %+v", snap)
	}
	if snap.SpreadNow == nil || snap.Spot.AveragePrice == nil || snap.Futures.FilledQuantity != 0.25 {
		t.Errorf("snapshot missing fill data: %+v", snap)
	}
}

func TestPositionAtom_NotFullWithoutTarget(t *testing.T) {
	atom := NewPositionAtom("SOLUSDT")
	atom.RecordOrder(models.LegSpot, filled(models.SideBuy, 100, 1))
	if atom.IsFull() {
		t.Error("atom without a sized target is never full")
	}
}

func TestPositionAtom_ProfitLoss(t *testing.T) {
	atom := NewPositionAtom("SOLUSDT")
	atom.RecordOrder(models.LegSpot, filled(models.SideSell, 1, 101))
	atom.RecordOrder(models.LegFutures, filled(models.SideBuy, 1, 100))
	atom.RecordOrder(models.LegSpot, filled(models.SideBuy, 1, 100))
	atom.RecordOrder(models.LegFutures, filled(models.SideSell, 1, 100.5))

	spot, futures, total := atom.ProfitLoss()
	if !almostEqual(spot, -1) || !almostEqual(futures, -0.5) || !almostEqual(total, 1.5) {
		t.Errorf("ProfitLoss = %v/%v/%v, want -1/-0.5/1.5", spot, futures, total)
	}
}

func TestPositionAtom_Asset(t *testing.T) {
	if got := NewPositionAtom("DOGEUSDT").Asset("USDT"); got != "DOGE" {
		t.Errorf("Asset = %s, want DOGE", got)
	}
}

func TestPositionAtom_DivergenceIgnoresSlippage(t *testing.T) {
	atom := NewPositionAtom("SOLUSDT")
	if err := atom.AssignSellLeg(0.6); err != nil {
		t.Fatal(err)
	}
	// Spot sold at 100.3 against a 100.6 quote: the filled spread is 0.3.
	atom.RecordOrder(models.LegSpot, filled(models.SideSell, 0.25, 100.3))
	atom.RecordOrder(models.LegFutures, filled(models.SideBuy, 0.25, 100))

	d, err := atom.SpreadDivergence(0.6)
	if err != nil || !almostEqual(d, 0) {
		t.Errorf("divergence on the open observation = %v/%v, want 0", d, err)
	}
	d, err = atom.SpreadDivergence(-0.1)
	if err != nil || !almostEqual(d, 0.7) {
		t.Errorf("divergence after reconvergence = %v/%v, want 0.7", d, err)
	}
	if ref, _ := atom.ReferenceSpread(); !almostEqual(ref, 0.6) {
		t.Errorf("reference spread = %v, want 0.6", ref)
	}
}

func TestPositionAtom_HasFills(t *testing.T) {
	atom := NewPositionAtom("SOLUSDT")
	atom.RecordOrder(models.LegSpot, models.OrderResult{Side: models.SideSell, RequestedQuantity: 1, Status: models.OrderStatusExpired})
	if atom.HasFills() {
		t.Error("an unfilled order is not a fill")
	}
	atom.RecordOrder(models.LegFutures, filled(models.SideBuy, 1, 100))
	if !atom.HasFills() {
		t.Error("a filled futures order should count")
	}
}
