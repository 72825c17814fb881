package binance

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gregtusar/basisarb/pkg/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// MarginClient trades the spot leg on the cross (or isolated) margin account.
type MarginClient struct {
	BaseClient
}

func NewMarginClient(opts Options, logger *logrus.Logger) *MarginClient {
	return &MarginClient{BaseClient: newBaseClient(opts, DefaultSpotBaseURL, logger)}
}

type marginOrderResponse struct {
	Symbol              string `json:"symbol"`
	OrderID             int64  `json:"orderId"`
	ClientOrderID       string `json:"clientOrderId"`
	TransactTime        int64  `json:"transactTime"`
	OrigQty             string `json:"origQty"`
	ExecutedQty         string `json:"executedQty"`
	CummulativeQuoteQty string `json:"cummulativeQuoteQty"`
	Status              string `json:"status"`
	Side                string `json:"side"`
}

// PlaceOrder submits a margin market order and returns its fill.
func (c *MarginClient) PlaceOrder(ctx context.Context, order models.OrderRequest) (models.OrderResult, error) {
	params := url.Values{}
	params.Set("symbol", order.Symbol)
	params.Set("side", string(order.Side))
	params.Set("type", string(orderType(order.Type)))
	params.Set("quantity", formatQuantity(order.Quantity))
	params.Set("newOrderRespType", "FULL")
	params.Set("newClientOrderId", clientOrderID(order.ClientOrderID))
	if order.SideEffect != "" {
		params.Set("sideEffectType", string(order.SideEffect))
	}
	if order.Isolated {
		params.Set("isIsolated", "TRUE")
	}

	var resp marginOrderResponse
	if err := c.doRequest(ctx, http.MethodPost, "/sapi/v1/margin/order", params, true, &resp); err != nil {
		return models.OrderResult{}, err
	}
	return resp.toResult(order), nil
}

func (r marginOrderResponse) toResult(req models.OrderRequest) models.OrderResult {
	executed := parseDecimal(r.ExecutedQty)
	quote := parseDecimal(r.CummulativeQuoteQty)

	var price float64
	if executed.IsPositive() {
		price, _ = quote.Div(executed).Float64()
	}
	executedQty, _ := executed.Float64()
	status := models.OrderStatus(r.Status)

	return models.OrderResult{
		OrderID:           fmt.Sprintf("%d", r.OrderID),
		ClientOrderID:     r.ClientOrderID,
		Symbol:            r.Symbol,
		Side:              req.Side,
		RequestedQuantity: req.Quantity,
		ExecutedQuantity:  executedQty,
		Price:             price,
		Status:            status,
		Filled:            status == models.OrderStatusFilled,
		UpdatedAt:         time.UnixMilli(r.TransactTime).UTC(),
	}
}

type marginAccountResponse struct {
	UserAssets []struct {
		Asset    string `json:"asset"`
		Free     string `json:"free"`
		Locked   string `json:"locked"`
		Borrowed string `json:"borrowed"`
		Interest string `json:"interest"`
		NetAsset string `json:"netAsset"`
	} `json:"userAssets"`
}

// CrossMarginAssetBalance returns the cross margin account entry for asset.
// An asset missing from the account is reported with zero balances.
func (c *MarginClient) CrossMarginAssetBalance(ctx context.Context, asset string) (models.MarginAsset, error) {
	var resp marginAccountResponse
	if err := c.doRequest(ctx, http.MethodGet, "/sapi/v1/margin/account", nil, true, &resp); err != nil {
		return models.MarginAsset{}, err
	}

	for _, a := range resp.UserAssets {
		if !strings.EqualFold(a.Asset, asset) {
			continue
		}
		return models.MarginAsset{
			Asset:    a.Asset,
			Free:     parseFloat(a.Free),
			Locked:   parseFloat(a.Locked),
			Borrowed: parseFloat(a.Borrowed),
			Interest: parseFloat(a.Interest),
			NetAsset: parseFloat(a.NetAsset),
		}, nil
	}
	return models.MarginAsset{Asset: asset}, nil
}

// ExchangeInfo lists spot symbols with their lot-size filters.
func (c *MarginClient) ExchangeInfo(ctx context.Context) ([]models.SymbolInfo, error) {
	var resp exchangeInfoResponse
	if err := c.doRequest(ctx, http.MethodGet, "/api/v3/exchangeInfo", nil, false, &resp); err != nil {
		return nil, err
	}
	return resp.symbols(), nil
}

func orderType(t models.OrderType) models.OrderType {
	if t == "" {
		return models.OrderTypeMarket
	}
	return t
}

func clientOrderID(id string) string {
	if id != "" {
		return id
	}
	return "ba-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:28]
}

func formatQuantity(q float64) string {
	return decimal.NewFromFloat(q).String()
}

func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func parseFloat(s string) float64 {
	f, _ := parseDecimal(s).Float64()
	return f
}
