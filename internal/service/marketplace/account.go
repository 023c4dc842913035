package marketplace

import (
	"context"
	"encoding/json"
	"net/http"

	"carmarket/storefront/internal/model"
)

func (c *Client) ListFavorites(ctx context.Context) ([]model.Car, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/favorites", nil, nil, &raw); err != nil {
		return nil, err
	}
	return decodeCars(raw)
}

func (c *Client) AddFavorite(ctx context.Context, carID int64) error {
	return c.do(ctx, http.MethodPost, "/favorites", idQuery("car_id", carID), nil, nil)
}

func (c *Client) RemoveFavorite(ctx context.Context, carID int64) error {
	return c.do(ctx, http.MethodDelete, "/favorites", idQuery("car_id", carID), nil, nil)
}

// BuyCar places a direct purchase order.
func (c *Client) BuyCar(ctx context.Context, carID int64) (model.Order, error) {
	var order model.Order
	if err := c.do(ctx, http.MethodPost, "/orders/buy", idQuery("car_id", carID), nil, &order); err != nil {
		return model.Order{}, err
	}
	if order.CarID == 0 {
		order.CarID = carID
	}
	return order, nil
}

func (c *Client) MyOrders(ctx context.Context) ([]model.Order, error) {
	var orders []model.Order
	if err := c.do(ctx, http.MethodGet, "/orders/my", nil, nil, &orders); err != nil {
		return nil, err
	}
	return orders, nil
}
