package models

import (
	"time"
)

// Leg identifies the venue one side of a hedged trade is executed on.
type Leg string

const (
	LegNone    Leg = ""
	LegSpot    Leg = "SPOT"
	LegFutures Leg = "FUTURES"
)

func (l Leg) Opposite() Leg {
	if l == LegSpot {
		return LegFutures
	}
	return LegSpot
}

// SymbolInfo carries the venue trading rules needed for sizing and discovery.
type SymbolInfo struct {
	Symbol         string
	BaseAsset      string
	QuoteAsset     string
	UnderlyingType string // futures only, e.g. COIN
	ContractType   string // futures only, e.g. PERPETUAL
	Trading        bool
	StepSize       float64
	MinQty         float64
	MinNotional    float64
}

// PriceTick is a single price update from a venue stream. For the spot leg it
// is the last close price, for the futures leg the mark price.
type PriceTick struct {
	Symbol    string
	Leg       Leg
	Price     float64
	Timestamp time.Time
}

// MarginAsset is a cross-margin account balance line.
type MarginAsset struct {
	Asset    string
	Free     float64
	Locked   float64
	Borrowed float64
	Interest float64
	NetAsset float64
}
