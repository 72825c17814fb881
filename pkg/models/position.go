package models

import (
	"time"
)

// LegSnapshot is a read-only view of one leg's ledger.
type LegSnapshot struct {
	Orders         []OrderResult `json:"orders"`
	FilledQuantity float64       `json:"filled_quantity"`
	AveragePrice   *float64      `json:"average_price,omitempty"`
	QuotedValue    float64       `json:"quoted_value"`
}

// PositionSnapshot is a point-in-time copy of an arbitrage position, safe to
// hand out while the position is being traded.
type PositionSnapshot struct {
	Symbol       string      `json:"symbol"`
	State        string      `json:"state"`
	SellLeg      Leg         `json:"sell_leg,omitempty"`
	SpreadAtOpen *float64    `json:"spread_at_open,omitempty"`
	SpreadNow    *float64    `json:"spread_now,omitempty"`
	Full         bool        `json:"full"`
	Spot         LegSnapshot `json:"spot"`
	Futures      LegSnapshot `json:"futures"`
	OpenedAt     time.Time   `json:"opened_at"`
}

// ClosedPosition summarises a fully unwound position for the trading diary.
type ClosedPosition struct {
	Symbol           string
	SellLeg          Leg
	Quantity         float64
	SpotEntryPrice   float64
	SpotExitPrice    float64
	FutureEntryPrice float64
	FutureExitPrice  float64
	SpreadAtOpen     float64
	SpreadAtClose    float64
	SpotPnL          float64
	FuturesPnL       float64
	TotalPnL         float64
	OpenedAt         time.Time
	ClosedAt         time.Time
}
