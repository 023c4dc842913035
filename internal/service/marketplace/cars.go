package marketplace

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"carmarket/storefront/internal/model"
)

var ErrCarNotFound = errors.New("car not found")

// ListCars returns the catalogue, served from a short-lived cache when
// CarCacheTTL is set. Car metadata changes rarely compared to prices.
func (c *Client) ListCars(ctx context.Context) ([]model.Car, error) {
	if c.config.CarCacheTTL <= 0 {
		return c.fetchCars(ctx)
	}

	c.cacheMu.RLock()
	data := c.carCache
	if data != nil && time.Now().Before(data.expiry) {
		c.cacheMu.RUnlock()
		return data.cars, nil
	}
	c.cacheMu.RUnlock()

	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()

	// Double check logic
	if c.carCache != nil && time.Now().Before(c.carCache.expiry) {
		return c.carCache.cars, nil
	}

	cars, err := c.fetchCars(ctx)
	if err != nil {
		return nil, err
	}

	c.carCache = &cachedCars{
		cars:   cars,
		expiry: time.Now().Add(c.config.CarCacheTTL),
	}
	return cars, nil
}

func (c *Client) fetchCars(ctx context.Context) ([]model.Car, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/cars", nil, nil, &raw); err != nil {
		return nil, err
	}
	return decodeCars(raw)
}

func (c *Client) GetCar(ctx context.Context, id int64) (model.Car, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/cars", idQuery("id", id), nil, &raw); err != nil {
		return model.Car{}, err
	}

	// Some marketplace builds ignore the id filter and return the list.
	if trimmed := bytes.TrimSpace(raw); len(trimmed) > 0 && trimmed[0] == '[' {
		cars, err := decodeCars(trimmed)
		if err != nil {
			return model.Car{}, err
		}
		return findCar(cars, id)
	}

	var single struct {
		model.Car
		Cars []model.Car `json:"cars"`
	}
	if err := json.Unmarshal(raw, &single); err != nil {
		return model.Car{}, err
	}
	if single.Cars != nil {
		return findCar(single.Cars, id)
	}
	if single.Car.ID == 0 {
		return model.Car{}, ErrCarNotFound
	}
	return single.Car, nil
}

func findCar(cars []model.Car, id int64) (model.Car, error) {
	for _, car := range cars {
		if car.ID == id {
			return car, nil
		}
	}
	return model.Car{}, ErrCarNotFound
}

func (c *Client) CreateCar(ctx context.Context, car model.Car) (model.Car, error) {
	var created model.Car
	if err := c.do(ctx, http.MethodPost, "/cars", nil, car, &created); err != nil {
		return model.Car{}, err
	}
	c.invalidateCars()
	if created.ID == 0 {
		return car, nil
	}
	return created, nil
}

func (c *Client) UpdateCar(ctx context.Context, id int64, car model.Car) error {
	car.ID = id
	if err := c.do(ctx, http.MethodPut, "/cars", idQuery("id", id), car, nil); err != nil {
		return err
	}
	c.invalidateCars()
	return nil
}

func (c *Client) DeleteCar(ctx context.Context, id int64) error {
	if err := c.do(ctx, http.MethodDelete, "/cars", idQuery("id", id), nil, nil); err != nil {
		return err
	}
	c.invalidateCars()
	return nil
}

func (c *Client) invalidateCars() {
	c.cacheMu.Lock()
	c.carCache = nil
	c.cacheMu.Unlock()
}
