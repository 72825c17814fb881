package arbitrage

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/gregtusar/basisarb/pkg/models"
	"github.com/sirupsen/logrus"
)

var ErrLegNotFilled = errors.New("leg order not filled")

type CoordinatorConfig struct {
	MaxPairNotional float64
	CollateralAsset string
	IsolatedMargin  bool
	// SlippageBufferPct shrinks the sized notional so a market fill above the
	// observed price still lands inside the admitted notional.
	SlippageBufferPct float64
}

// ExecutionCoordinator turns open and close decisions into the ordered pair
// of leg orders. The spot leg always goes first and every fill is recorded on
// the atom before the next leg is placed.
type ExecutionCoordinator struct {
	spot     OrderPlacer
	futures  OrderPlacer
	sizer    PriceSizer
	balances BalanceQuery
	notifier NotificationSink
	cfg      CoordinatorConfig
	logger   *logrus.Logger
}

func NewExecutionCoordinator(
	spot OrderPlacer,
	futures OrderPlacer,
	sizer PriceSizer,
	balances BalanceQuery,
	notifier NotificationSink,
	cfg CoordinatorConfig,
	logger *logrus.Logger,
) *ExecutionCoordinator {
	return &ExecutionCoordinator{
		spot:     spot,
		futures:  futures,
		sizer:    sizer,
		balances: balances,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger,
	}
}

// Open places the spot leg sized from notional less the slippage buffer, then
// the futures leg sized to the spot leg's executed quantity. notional is capped
// at the pair notional.
func (c *ExecutionCoordinator) Open(ctx context.Context, atom *PositionAtom, obs models.SpreadObservation, notional float64) error {
	sellLeg, ok := atom.SellLeg()
	if !ok {
		return fmt.Errorf("%w: %s has no sell leg", ErrInvalidState, atom.Symbol())
	}
	spotSide, futuresSide := LegOrderSides(sellLeg)

	c.notify(ctx, fmt.Sprintf("Open arbitrage %s with %.3f\n%s SPOT @ %g\n%s FUTURES @ %g",
		atom.Symbol(), obs.SpreadPct, spotSide, obs.SpotPrice, futuresSide, obs.FuturesPrice))

	if notional <= 0 || notional > c.cfg.MaxPairNotional {
		notional = c.cfg.MaxPairNotional
	}
	sized := notional * (1 - c.cfg.SlippageBufferPct/100)
	quantity, err := c.sizer.AssetQuantity(atom.Symbol(), obs.SpotPrice, sized)
	if err != nil {
		return fmt.Errorf("size %s: %w", atom.Symbol(), err)
	}
	if quantity <= 0 {
		return &models.NotAllowedError{Message: fmt.Sprintf("%s: %g notional is below the venue lot size", atom.Symbol(), sized)}
	}
	atom.setTargetQuantity(quantity)

	spotOrder, err := c.place(ctx, models.LegSpot, atom, models.OrderRequest{
		Symbol:     atom.Symbol(),
		Side:       spotSide,
		Type:       models.OrderTypeMarket,
		Quantity:   quantity,
		SideEffect: models.SideEffectMarginBuy,
		Isolated:   c.cfg.IsolatedMargin,
	})
	if err != nil {
		return fmt.Errorf("open spot leg %s: %w", atom.Symbol(), err)
	}
	if !spotOrder.Filled || spotOrder.ExecutedQuantity <= 0 {
		return fmt.Errorf("open spot leg %s: %w: %s", atom.Symbol(), ErrLegNotFilled, spotOrder)
	}

	futuresOrder, err := c.place(ctx, models.LegFutures, atom, models.OrderRequest{
		Symbol:   atom.Symbol(),
		Side:     futuresSide,
		Type:     models.OrderTypeMarket,
		Quantity: spotOrder.ExecutedQuantity,
	})
	if err == nil && !futuresOrder.Filled {
		err = fmt.Errorf("%w: %s", ErrLegNotFilled, futuresOrder)
	}
	if err != nil {
		c.notify(ctx, fmt.Sprintf("FUTURES OPEN PROBLEM %s: spot leg filled %s, futures leg failed: %v",
			atom.Symbol(), spotOrder, err))
		return fmt.Errorf("open futures leg %s: %w", atom.Symbol(), err)
	}

	c.notify(ctx, fmt.Sprintf("Opened arbitrage %s with\nSPOT: %s\nFUTURES: %s",
		atom.Title(), spotOrder, futuresOrder))
	return nil
}

// Close unwinds both legs using the atom's own filled quantities. A balance
// rejection on the spot repay is retried once with the actual net balance,
// since repay rounding can leave a residual the ledger does not know about.
func (c *ExecutionCoordinator) Close(ctx context.Context, atom *PositionAtom, obs models.SpreadObservation) (models.ClosedPosition, error) {
	sellLeg, ok := atom.SellLeg()
	if !ok {
		return models.ClosedPosition{}, fmt.Errorf("%w: %s has no sell leg", ErrInvalidState, atom.Symbol())
	}
	spotSide, futuresSide := LegOrderSides(sellLeg.Opposite())

	spotEntry, _ := atom.AveragePrice(models.LegSpot)
	futuresEntry, _ := atom.AveragePrice(models.LegFutures)
	spreadAtOpen, _ := atom.ReferenceSpread()
	divergence := SpreadDivergence(spreadAtOpen, obs.SpreadPct)

	c.notify(ctx, fmt.Sprintf("Close arbitrage %s with %.3f (diff: %.6f)\n%s SPOT @ %g (diff. %g)\n%s FUTURES @ %g (diff. %g)",
		atom.Symbol(), obs.SpreadPct, divergence,
		spotSide, obs.SpotPrice, obs.SpotPrice-spotEntry,
		futuresSide, obs.FuturesPrice, obs.FuturesPrice-futuresEntry))

	quantity := atom.Quantity(models.LegSpot, AmountFilled)
	req := models.OrderRequest{
		Symbol:     atom.Symbol(),
		Side:       spotSide,
		Type:       models.OrderTypeMarket,
		Quantity:   quantity,
		SideEffect: models.SideEffectAutoRepay,
		Isolated:   c.cfg.IsolatedMargin,
	}

	spotOrder, err := c.placeRepay(ctx, atom, req)
	if err != nil {
		return models.ClosedPosition{}, fmt.Errorf("close spot leg %s: %w", atom.Symbol(), err)
	}
	if !spotOrder.Filled {
		return models.ClosedPosition{}, fmt.Errorf("close spot leg %s: %w: %s", atom.Symbol(), ErrLegNotFilled, spotOrder)
	}

	futuresOrder, err := c.place(ctx, models.LegFutures, atom, models.OrderRequest{
		Symbol:     atom.Symbol(),
		Side:       futuresSide,
		Type:       models.OrderTypeMarket,
		Quantity:   atom.Quantity(models.LegFutures, AmountFilled),
		ReduceOnly: true,
	})
	if err == nil && !futuresOrder.Filled {
		err = fmt.Errorf("%w: %s", ErrLegNotFilled, futuresOrder)
	}
	if err != nil {
		c.notify(ctx, fmt.Sprintf("FUTURES CLOSE PROBLEM %s: spot leg closed %s, futures leg failed: %v",
			atom.Symbol(), spotOrder, err))
		return models.ClosedPosition{}, fmt.Errorf("close futures leg %s: %w", atom.Symbol(), err)
	}

	spotPnL, futuresPnL, total := atom.ProfitLoss()
	c.notify(ctx, fmt.Sprintf("Closed arbitrage %s with\nSPOT: %s\nFUTURES: %s\nPROFIT: spot %.4f$ futures %.4f$ = %.4f$",
		atom.Title(), spotOrder, futuresOrder, -spotPnL, -futuresPnL, total))

	return models.ClosedPosition{
		Symbol:           atom.Symbol(),
		SellLeg:          sellLeg,
		Quantity:         quantity,
		SpotEntryPrice:   spotEntry,
		SpotExitPrice:    spotOrder.Price,
		FutureEntryPrice: futuresEntry,
		FutureExitPrice:  futuresOrder.Price,
		SpreadAtOpen:     spreadAtOpen,
		SpreadAtClose:    obs.SpreadPct,
		SpotPnL:          -spotPnL,
		FuturesPnL:       -futuresPnL,
		TotalPnL:         total,
		OpenedAt:         atom.OpenedAt(),
		ClosedAt:         time.Now().UTC(),
	}, nil
}

func (c *ExecutionCoordinator) placeRepay(ctx context.Context, atom *PositionAtom, req models.OrderRequest) (models.OrderResult, error) {
	order, err := c.place(ctx, models.LegSpot, atom, req)

	var balanceErr *models.BalanceError
	if err == nil || !errors.As(err, &balanceErr) {
		return order, err
	}

	asset := atom.Asset(c.cfg.CollateralAsset)
	balance, qerr := c.balances.CrossMarginAssetBalance(ctx, asset)
	if qerr != nil {
		return models.OrderResult{}, fmt.Errorf("query %s balance after %v: %w", asset, err, qerr)
	}
	corrected, rerr := c.sizer.RoundQuantity(atom.Symbol(), math.Abs(balance.NetAsset))
	if rerr != nil {
		return models.OrderResult{}, fmt.Errorf("round %s repay after %v: %w", atom.Symbol(), err, rerr)
	}
	if corrected <= 0 {
		return models.OrderResult{}, err
	}

	repayFixesTotal.Inc()
	c.logger.WithFields(logrus.Fields{
		"symbol":    atom.Symbol(),
		"quantity":  req.Quantity,
		"net_asset": balance.NetAsset,
		"code":      balanceErr.Code,
	}).Warn("Fixing repay amount")
	c.notify(ctx, fmt.Sprintf("FIX %s REPAY AMOUNT %g TO %g", atom.Symbol(), req.Quantity, corrected))

	req.Quantity = corrected
	req.ClientOrderID = ""
	return c.place(ctx, models.LegSpot, atom, req)
}

// place sends one leg order and records the result on the atom before
// returning, so a failure on the next leg never loses this fill.
func (c *ExecutionCoordinator) place(ctx context.Context, leg models.Leg, atom *PositionAtom, req models.OrderRequest) (models.OrderResult, error) {
	placer := c.spot
	if leg == models.LegFutures {
		placer = c.futures
	}

	log := c.logger.WithFields(logrus.Fields{
		"symbol":   req.Symbol,
		"leg":      leg,
		"side":     req.Side,
		"quantity": req.Quantity,
	})

	order, err := placer.PlaceOrder(ctx, req)
	if err != nil {
		ordersTotal.WithLabelValues(string(leg), string(req.Side), "error").Inc()
		log.WithError(err).Error("Order placement failed")
		return models.OrderResult{}, err
	}

	atom.RecordOrder(leg, order)

	result := "filled"
	if !order.Filled {
		result = "unfilled"
	}
	ordersTotal.WithLabelValues(string(leg), string(req.Side), result).Inc()
	log.WithFields(logrus.Fields{
		"executed": order.ExecutedQuantity,
		"price":    order.Price,
		"status":   order.Status,
	}).Info("Order placed")
	return order, nil
}

func (c *ExecutionCoordinator) notify(ctx context.Context, msg string) {
	if c.notifier == nil {
		return
	}
	if err := c.notifier.Send(ctx, msg); err != nil {
		c.logger.WithError(err).Warn("Failed to send notification")
	}
}
