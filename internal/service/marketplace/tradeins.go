package marketplace

import (
	"context"
	"net/http"
	"net/url"

	"carmarket/storefront/internal/model"
)

func (c *Client) CreateTradeIn(ctx context.Context, req model.CreateTradeInRequest) (model.TradeInResponse, error) {
	var resp model.TradeInResponse
	if err := c.do(ctx, http.MethodPost, "/trade-ins", nil, req, &resp); err != nil {
		return model.TradeInResponse{}, err
	}
	return resp, nil
}

func (c *Client) MyTradeIns(ctx context.Context) ([]model.TradeIn, error) {
	var tradeIns []model.TradeIn
	if err := c.do(ctx, http.MethodGet, "/trade-ins/my", nil, nil, &tradeIns); err != nil {
		return nil, err
	}
	return tradeIns, nil
}

func (c *Client) GetTradeIn(ctx context.Context, id int64) (model.TradeIn, error) {
	var tradeIn model.TradeIn
	if err := c.do(ctx, http.MethodGet, "/trade-ins", idQuery("id", id), nil, &tradeIn); err != nil {
		return model.TradeIn{}, err
	}
	return tradeIn, nil
}

// SetTradeInPayment records how much the owner is willing to add on top
// of the evaluated price.
func (c *Client) SetTradeInPayment(ctx context.Context, id int64, payment float64) (model.TradeInResponse, error) {
	var resp model.TradeInResponse
	body := model.SetUserPaymentRequest{UserPayment: payment}
	if err := c.do(ctx, http.MethodPost, "/trade-ins/set-payment", idQuery("id", id), body, &resp); err != nil {
		return model.TradeInResponse{}, err
	}
	return resp, nil
}

func (c *Client) RejectTradeIn(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodPost, "/trade-ins/reject", idQuery("id", id), nil, nil)
}

func (c *Client) DeleteTradeIn(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, "/trade-ins", idQuery("id", id), nil, nil)
}

// AdminTradeIns lists every trade-in, optionally filtered by status.
func (c *Client) AdminTradeIns(ctx context.Context, status string) ([]model.TradeIn, error) {
	var query url.Values
	if status != "" {
		query = url.Values{"status": {status}}
	}
	var tradeIns []model.TradeIn
	if err := c.do(ctx, http.MethodGet, "/admin/trade-ins", query, nil, &tradeIns); err != nil {
		return nil, err
	}
	return tradeIns, nil
}

func (c *Client) EvaluateTradeIn(ctx context.Context, id int64, estimatedPrice float64) (model.TradeInResponse, error) {
	var resp model.TradeInResponse
	body := model.EvaluateTradeInRequest{EstimatedPrice: estimatedPrice}
	if err := c.do(ctx, http.MethodPost, "/admin/trade-ins/evaluate", idQuery("id", id), body, &resp); err != nil {
		return model.TradeInResponse{}, err
	}
	return resp, nil
}
