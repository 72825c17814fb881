package models

import (
	"fmt"
	"time"
)

type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

type OrderType string

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"
)

// SideEffect controls borrowing and repayment on the cross-margin spot venue.
type SideEffect string

const (
	SideEffectNone      SideEffect = "NO_SIDE_EFFECT"
	SideEffectMarginBuy SideEffect = "MARGIN_BUY"
	SideEffectAutoRepay SideEffect = "AUTO_REPAY"
)

type OrderStatus string

const (
	OrderStatusNew             OrderStatus = "NEW"
	OrderStatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderStatusFilled          OrderStatus = "FILLED"
	OrderStatusCancelled       OrderStatus = "CANCELED"
	OrderStatusRejected        OrderStatus = "REJECTED"
	OrderStatusExpired         OrderStatus = "EXPIRED"
)

type OrderRequest struct {
	Symbol        string
	Side          Side
	Type          OrderType
	Quantity      float64
	SideEffect    SideEffect // spot margin only
	Isolated      bool       // spot margin only
	ReduceOnly    bool       // futures only
	ClientOrderID string
}

// OrderResult is what a venue reports back for a placed order. It is treated
// as immutable once returned.
type OrderResult struct {
	OrderID           string
	ClientOrderID     string
	Symbol            string
	Side              Side
	RequestedQuantity float64
	ExecutedQuantity  float64
	Price             float64
	Status            OrderStatus
	Filled            bool
	UpdatedAt         time.Time
}

func (o OrderResult) String() string {
	return fmt.Sprintf("%s %g/%g @ %g (%s)", o.Side, o.ExecutedQuantity, o.RequestedQuantity, o.Price, o.Status)
}
