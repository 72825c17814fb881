package arbitrage

import (
	"context"

	"github.com/gregtusar/basisarb/pkg/models"
)

// PriceSizer converts a target notional into a venue-valid order quantity.
// RoundQuantity floors a raw quantity to the same lot rules.
type PriceSizer interface {
	AssetQuantity(symbol string, price, notional float64) (float64, error)
	RoundQuantity(symbol string, quantity float64) (float64, error)
}

// OrderPlacer places orders on one venue leg. Rejections surface as
// *models.BalanceError, *models.NotAllowedError or *models.ShouldRetryError.
type OrderPlacer interface {
	PlaceOrder(ctx context.Context, req models.OrderRequest) (models.OrderResult, error)
}

type BalanceQuery interface {
	CrossMarginAssetBalance(ctx context.Context, asset string) (models.MarginAsset, error)
}

// NotificationSink delivers human-readable event messages. Failures are
// logged by callers and never interrupt trading.
type NotificationSink interface {
	Send(ctx context.Context, message string) error
}

// SpreadSource yields the current observation for every tracked symbol.
type SpreadSource interface {
	Spreads() []models.SpreadObservation
}

// ClosedPositionRecorder receives every fully closed position.
type ClosedPositionRecorder interface {
	RecordClosed(ctx context.Context, position models.ClosedPosition) error
}

// RecoveryHook runs after the governor halts the engine.
type RecoveryHook interface {
	Recover(ctx context.Context, cause error) error
}

type RecoveryHookFunc func(ctx context.Context, cause error) error

func (f RecoveryHookFunc) Recover(ctx context.Context, cause error) error {
	return f(ctx, cause)
}
