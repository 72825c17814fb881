package arbitrage

import (
	"context"
	"io"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gregtusar/basisarb/pkg/models"
	"github.com/sirupsen/logrus"
)

func newTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func filled(side models.Side, quantity, price float64) models.OrderResult {
	return models.OrderResult{
		Side:              side,
		RequestedQuantity: quantity,
		ExecutedQuantity:  quantity,
		Price:             price,
		Status:            models.OrderStatusFilled,
		Filled:            true,
	}
}

type placeFunc func(req models.OrderRequest) (models.OrderResult, error)

// fakePlacer fills every order at the symbol's quoted price, or at price when
// the symbol has none, unless a scripted response is queued.
type fakePlacer struct {
	mu       sync.Mutex
	price    float64
	prices   map[string]float64
	requests []models.OrderRequest
	scripted []placeFunc
}

func (f *fakePlacer) setPrice(symbol string, price float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.prices == nil {
		f.prices = make(map[string]float64)
	}
	f.prices[symbol] = price
}

func (f *fakePlacer) PlaceOrder(_ context.Context, req models.OrderRequest) (models.OrderResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if len(f.scripted) > 0 {
		next := f.scripted[0]
		f.scripted = f.scripted[1:]
		return next(req)
	}
	price, ok := f.prices[req.Symbol]
	if !ok {
		price = f.price
	}
	res := filled(req.Side, req.Quantity, price)
	res.Symbol = req.Symbol
	return res, nil
}

func (f *fakePlacer) then(fn placeFunc) {
	f.mu.Lock()
	f.scripted = append(f.scripted, fn)
	f.mu.Unlock()
}

func (f *fakePlacer) failNext(err error) {
	f.then(func(models.OrderRequest) (models.OrderResult, error) { return models.OrderResult{}, err })
}

func (f *fakePlacer) calls() []models.OrderRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.OrderRequest, len(f.requests))
	copy(out, f.requests)
	return out
}

// fakeSizer rounds down to three decimals.
type fakeSizer struct{}

func (fakeSizer) AssetQuantity(_ string, price, notional float64) (float64, error) {
	return math.Floor(notional/price*1000) / 1000, nil
}

func (fakeSizer) RoundQuantity(_ string, quantity float64) (float64, error) {
	return math.Floor(quantity*1000+1e-9) / 1000, nil
}

type fakeBalances struct {
	mu      sync.Mutex
	balance models.MarginAsset
	err     error
	assets  []string
}

func (f *fakeBalances) CrossMarginAssetBalance(_ context.Context, asset string) (models.MarginAsset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.assets = append(f.assets, asset)
	return f.balance, f.err
}

type recordingSink struct {
	mu       sync.Mutex
	messages []string
}

func (s *recordingSink) Send(_ context.Context, msg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
	return nil
}

func (s *recordingSink) contains(substr string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.messages {
		if strings.Contains(m, substr) {
			return true
		}
	}
	return false
}

type harness struct {
	engine   *Engine
	governor *FailureGovernor
	board    *SpreadBoard
	spot     *fakePlacer
	futures  *fakePlacer
	balances *fakeBalances
	sink     *recordingSink
}

func newHarness(t *testing.T, maxPair, maxTotal float64, symbols ...string) *harness {
	t.Helper()
	logger := newTestLogger()
	h := &harness{
		board:    NewSpreadBoard(symbols),
		spot:     &fakePlacer{},
		futures:  &fakePlacer{},
		balances: &fakeBalances{},
		sink:     &recordingSink{},
	}
	h.governor = NewFailureGovernor(DefaultBanRetryCodes, h.sink, logger)
	coordinator := NewExecutionCoordinator(h.spot, h.futures, fakeSizer{}, h.balances, h.sink, CoordinatorConfig{
		MaxPairNotional:   maxPair,
		CollateralAsset:   "USDT",
		SlippageBufferPct: 0.5,
	}, logger)
	h.engine = NewEngine(EngineConfig{
		OpenThresholdPct:  0.46,
		CloseThresholdPct: 0.23,
		TickInterval:      time.Second,
	}, coordinator, NewExposureGate(maxPair, maxTotal), h.governor, h.board, h.sink, logger)
	return h
}

// quote sets the board prices and the fill prices of both fake venues.
func (h *harness) quote(symbol string, spot, futures float64) models.SpreadObservation {
	now := time.Now().UTC()
	h.board.Update(models.PriceTick{Symbol: symbol, Leg: models.LegSpot, Price: spot, Timestamp: now})
	h.board.Update(models.PriceTick{Symbol: symbol, Leg: models.LegFutures, Price: futures, Timestamp: now})
	h.spot.setPrice(symbol, spot)
	h.futures.setPrice(symbol, futures)
	return models.NewSpreadObservation(symbol, spot, futures, now)
}
