package binance

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/gregtusar/basisarb/pkg/models"
	"github.com/sirupsen/logrus"
)

// FuturesClient trades the USDⓈ-M perpetual leg.
type FuturesClient struct {
	BaseClient
}

func NewFuturesClient(opts Options, logger *logrus.Logger) *FuturesClient {
	return &FuturesClient{BaseClient: newBaseClient(opts, DefaultFuturesBaseURL, logger)}
}

type futuresOrderResponse struct {
	Symbol        string `json:"symbol"`
	OrderID       int64  `json:"orderId"`
	ClientOrderID string `json:"clientOrderId"`
	OrigQty       string `json:"origQty"`
	ExecutedQty   string `json:"executedQty"`
	AvgPrice      string `json:"avgPrice"`
	Status        string `json:"status"`
	UpdateTime    int64  `json:"updateTime"`
}

func (c *FuturesClient) PlaceOrder(ctx context.Context, order models.OrderRequest) (models.OrderResult, error) {
	params := url.Values{}
	params.Set("symbol", order.Symbol)
	params.Set("side", string(order.Side))
	params.Set("type", string(orderType(order.Type)))
	params.Set("quantity", formatQuantity(order.Quantity))
	params.Set("newOrderRespType", "RESULT")
	params.Set("newClientOrderId", clientOrderID(order.ClientOrderID))
	if order.ReduceOnly {
		params.Set("reduceOnly", "true")
	}

	var resp futuresOrderResponse
	if err := c.doRequest(ctx, http.MethodPost, "/fapi/v1/order", params, true, &resp); err != nil {
		return models.OrderResult{}, err
	}

	status := models.OrderStatus(resp.Status)
	return models.OrderResult{
		OrderID:           fmt.Sprintf("%d", resp.OrderID),
		ClientOrderID:     resp.ClientOrderID,
		Symbol:            resp.Symbol,
		Side:              order.Side,
		RequestedQuantity: order.Quantity,
		ExecutedQuantity:  parseFloat(resp.ExecutedQty),
		Price:             parseFloat(resp.AvgPrice),
		Status:            status,
		Filled:            status == models.OrderStatusFilled,
		UpdatedAt:         time.UnixMilli(resp.UpdateTime).UTC(),
	}, nil
}

// ExchangeInfo lists futures contracts with their lot-size filters.
func (c *FuturesClient) ExchangeInfo(ctx context.Context) ([]models.SymbolInfo, error) {
	var resp exchangeInfoResponse
	if err := c.doRequest(ctx, http.MethodGet, "/fapi/v1/exchangeInfo", nil, false, &resp); err != nil {
		return nil, err
	}
	return resp.symbols(), nil
}
