package models

import (
	"time"
)

// SpreadObservation is one (symbol, spot price, futures price, spread) sample.
type SpreadObservation struct {
	Symbol       string    `json:"symbol"`
	SpotPrice    float64   `json:"spot_price"`
	FuturesPrice float64   `json:"futures_price"`
	Delta        float64   `json:"delta"`
	SpreadPct    float64   `json:"spread_pct"`
	Timestamp    time.Time `json:"timestamp"`
}

// NewSpreadObservation computes the percentage spread of spot over futures.
func NewSpreadObservation(symbol string, spotPrice, futuresPrice float64, ts time.Time) SpreadObservation {
	delta := spotPrice - futuresPrice
	return SpreadObservation{
		Symbol:       symbol,
		SpotPrice:    spotPrice,
		FuturesPrice: futuresPrice,
		Delta:        delta,
		SpreadPct:    delta / futuresPrice * 100,
		Timestamp:    ts,
	}
}
