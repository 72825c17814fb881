package binance

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/gregtusar/basisarb/pkg/models"
	"github.com/shopspring/decimal"
)

type exchangeInfoResponse struct {
	Symbols []struct {
		Symbol         string `json:"symbol"`
		Status         string `json:"status"`
		BaseAsset      string `json:"baseAsset"`
		QuoteAsset     string `json:"quoteAsset"`
		ContractType   string `json:"contractType"`
		UnderlyingType string `json:"underlyingType"`
		Filters        []struct {
			FilterType  string `json:"filterType"`
			StepSize    string `json:"stepSize"`
			MinQty      string `json:"minQty"`
			MinNotional string `json:"minNotional"`
			Notional    string `json:"notional"`
		} `json:"filters"`
	} `json:"symbols"`
}

func (r exchangeInfoResponse) symbols() []models.SymbolInfo {
	out := make([]models.SymbolInfo, 0, len(r.Symbols))
	for _, s := range r.Symbols {
		info := models.SymbolInfo{
			Symbol:         s.Symbol,
			BaseAsset:      s.BaseAsset,
			QuoteAsset:     s.QuoteAsset,
			UnderlyingType: s.UnderlyingType,
			ContractType:   s.ContractType,
			Trading:        s.Status == "TRADING",
		}
		for _, f := range s.Filters {
			switch f.FilterType {
			case "LOT_SIZE":
				info.StepSize = parseFloat(f.StepSize)
				info.MinQty = parseFloat(f.MinQty)
			case "MIN_NOTIONAL", "NOTIONAL":
				if f.MinNotional != "" {
					info.MinNotional = parseFloat(f.MinNotional)
				} else {
					info.MinNotional = parseFloat(f.Notional)
				}
			}
		}
		out = append(out, info)
	}
	return out
}

// DiscoverSymbols returns the perpetual COIN-underlying futures symbols quoted
// in collateral that also trade on the spot venue, skipping skipAssets.
func DiscoverSymbols(spot, futures []models.SymbolInfo, collateral string, skipAssets []string) []string {
	skip := make(map[string]bool, len(skipAssets))
	for _, a := range skipAssets {
		skip[strings.ToUpper(a)] = true
	}

	spotSymbols := make(map[string]bool, len(spot))
	for _, s := range spot {
		if s.Trading && s.QuoteAsset == collateral {
			spotSymbols[s.Symbol] = true
		}
	}

	var out []string
	for _, f := range futures {
		if !f.Trading || f.QuoteAsset != collateral || f.UnderlyingType != "COIN" {
			continue
		}
		if f.ContractType != "" && f.ContractType != "PERPETUAL" {
			continue
		}
		if skip[f.BaseAsset] || !spotSymbols[f.Symbol] {
			continue
		}
		out = append(out, f.Symbol)
	}
	sort.Strings(out)
	return out
}

// LotSizer converts a collateral notional into an order quantity both venues
// accept: rounded down to the coarser of the two step sizes and rejected when
// below either minimum.
type LotSizer struct {
	mu    sync.RWMutex
	rules map[string]lotRule
}

type lotRule struct {
	step        decimal.Decimal
	minQty      decimal.Decimal
	minNotional decimal.Decimal
}

func NewLotSizer(spot, futures []models.SymbolInfo) *LotSizer {
	s := &LotSizer{rules: make(map[string]lotRule)}
	s.Load(spot, futures)
	return s
}

// Load replaces the rules with those of symbols listed on both venues.
func (s *LotSizer) Load(spot, futures []models.SymbolInfo) {
	spotBySymbol := make(map[string]models.SymbolInfo, len(spot))
	for _, info := range spot {
		spotBySymbol[info.Symbol] = info
	}

	rules := make(map[string]lotRule)
	for _, f := range futures {
		sp, ok := spotBySymbol[f.Symbol]
		if !ok {
			continue
		}
		rules[f.Symbol] = lotRule{
			step:        maxDecimal(sp.StepSize, f.StepSize),
			minQty:      maxDecimal(sp.MinQty, f.MinQty),
			minNotional: maxDecimal(sp.MinNotional, f.MinNotional),
		}
	}

	s.mu.Lock()
	s.rules = rules
	s.mu.Unlock()
}

// AssetQuantity returns 0 when the notional cannot buy the minimum lot.
func (s *LotSizer) AssetQuantity(symbol string, price, notional float64) (float64, error) {
	if price <= 0 {
		return 0, fmt.Errorf("%s: invalid price %g", symbol, price)
	}
	rule, err := s.rule(symbol)
	if err != nil {
		return 0, err
	}

	p := decimal.NewFromFloat(price)
	qty := rule.floor(decimal.NewFromFloat(notional).Div(p))
	if qty.LessThan(rule.minQty) || qty.Mul(p).LessThan(rule.minNotional) {
		return 0, nil
	}
	f, _ := qty.Float64()
	return f, nil
}

// RoundQuantity floors quantity to the symbol's step. It returns 0 below the
// minimum quantity.
func (s *LotSizer) RoundQuantity(symbol string, quantity float64) (float64, error) {
	rule, err := s.rule(symbol)
	if err != nil {
		return 0, err
	}
	qty := rule.floor(decimal.NewFromFloat(quantity))
	if qty.LessThan(rule.minQty) {
		return 0, nil
	}
	f, _ := qty.Float64()
	return f, nil
}

func (s *LotSizer) rule(symbol string) (lotRule, error) {
	s.mu.RLock()
	rule, ok := s.rules[symbol]
	s.mu.RUnlock()
	if !ok {
		return lotRule{}, &models.NotAllowedError{Message: fmt.Sprintf("%s: no lot size rules", symbol)}
	}
	return rule, nil
}

func (r lotRule) floor(qty decimal.Decimal) decimal.Decimal {
	if r.step.IsPositive() {
		return qty.Div(r.step).Floor().Mul(r.step)
	}
	return qty
}

func maxDecimal(a, b float64) decimal.Decimal {
	da, db := decimal.NewFromFloat(a), decimal.NewFromFloat(b)
	if da.GreaterThan(db) {
		return da
	}
	return db
}
