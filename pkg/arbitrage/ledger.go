package arbitrage

import (
	"github.com/gregtusar/basisarb/pkg/models"
)

type AmountType int

const (
	// AmountTotal sums requested quantities over every recorded order.
	AmountTotal AmountType = iota
	// AmountFilled sums executed quantities over filled orders only.
	AmountFilled
)

// LegLedger is the append-only order history of one leg of one position.
// Insertion order is execution order. It is not safe for concurrent use; the
// owning PositionAtom serialises access.
type LegLedger struct {
	orders []models.OrderResult
}

func (l *LegLedger) Record(order models.OrderResult) {
	l.orders = append(l.orders, order)
}

func (l *LegLedger) Orders() []models.OrderResult {
	out := make([]models.OrderResult, len(l.orders))
	copy(out, l.orders)
	return out
}

func (l *LegLedger) Quantity(amountType AmountType) float64 {
	var total float64
	for _, o := range l.orders {
		switch amountType {
		case AmountTotal:
			total += o.RequestedQuantity
		case AmountFilled:
			if o.Filled {
				total += o.ExecutedQuantity
			}
		}
	}
	return total
}

// AveragePrice is the executed-quantity weighted price over filled orders.
// ok is false when nothing has been filled.
func (l *LegLedger) AveragePrice() (price float64, ok bool) {
	var value, quantity float64
	for _, o := range l.orders {
		if !o.Filled {
			continue
		}
		value += o.Price * o.ExecutedQuantity
		quantity += o.ExecutedQuantity
	}
	if quantity <= 0 {
		return 0, false
	}
	return value / quantity, true
}

// QuotedValue is the quote-currency value of all filled orders.
func (l *LegLedger) QuotedValue() float64 {
	return l.quotedValue(func(models.Side) bool { return true })
}

// QuotedValueBySide is QuotedValue restricted to one order side.
func (l *LegLedger) QuotedValueBySide(side models.Side) float64 {
	return l.quotedValue(func(s models.Side) bool { return s == side })
}

func (l *LegLedger) quotedValue(match func(models.Side) bool) float64 {
	var total float64
	for _, o := range l.orders {
		if o.Filled && match(o.Side) {
			total += o.Price * o.ExecutedQuantity
		}
	}
	return total
}

// RealizedLegPnL is bought value minus sold value on this leg. Commissions are
// assumed embedded in executed prices.
func (l *LegLedger) RealizedLegPnL() float64 {
	return l.QuotedValueBySide(models.SideBuy) - l.QuotedValueBySide(models.SideSell)
}
