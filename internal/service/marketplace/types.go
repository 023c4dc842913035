package marketplace

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"carmarket/storefront/internal/model"
)

// ErrUnauthorized matches any APIError carrying a 401 status.
var ErrUnauthorized = errors.New("marketplace: unauthorized")

// APIError is a non-2xx answer from the marketplace. Message holds the
// server's text verbatim so it can be shown to the user as is.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return e.Message
}

func (e *APIError) Is(target error) bool {
	return target == ErrUnauthorized && e.StatusCode == http.StatusUnauthorized
}

func newAPIError(resp *http.Response) *APIError {
	body, _ := io.ReadAll(resp.Body)
	apiErr := &APIError{StatusCode: resp.StatusCode}

	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	switch {
	case json.Unmarshal(body, &payload) == nil && payload.Error != "":
		apiErr.Message = payload.Error
	case json.Unmarshal(body, &payload) == nil && payload.Message != "":
		apiErr.Message = payload.Message
	default:
		apiErr.Message = strings.TrimSpace(string(body))
	}
	if apiErr.Message == "" {
		apiErr.Message = fmt.Sprintf("unexpected status code: %d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}
	return apiErr
}

// RawAuction is the auction as the marketplace sends it. Older builds
// use start_price and total_bids instead of starting_price and bid_count.
type RawAuction struct {
	ID            int64     `json:"id"`
	CarID         int64     `json:"car_id"`
	StartingPrice *float64  `json:"starting_price"`
	StartPrice    *float64  `json:"start_price"`
	CurrentPrice  *float64  `json:"current_price"`
	BidCount      *int      `json:"bid_count"`
	TotalBids     *int      `json:"total_bids"`
	StartTime     time.Time `json:"start_time"`
	EndTime       time.Time `json:"end_time"`
}

func (r RawAuction) toModel() model.Auction {
	a := model.Auction{
		ID:           r.ID,
		CarID:        r.CarID,
		CurrentPrice: r.CurrentPrice,
		StartTime:    r.StartTime,
		EndTime:      r.EndTime,
	}
	switch {
	case r.StartingPrice != nil:
		a.StartingPrice = *r.StartingPrice
	case r.StartPrice != nil:
		a.StartingPrice = *r.StartPrice
	}
	switch {
	case r.BidCount != nil:
		a.BidCount = *r.BidCount
	case r.TotalBids != nil:
		a.BidCount = *r.TotalBids
	}
	return a
}

// decodeCars accepts a bare array or an object wrapping it under "cars".
func decodeCars(data json.RawMessage) ([]model.Car, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, nil
	}

	var cars []model.Car
	if data[0] == '[' {
		if err := json.Unmarshal(data, &cars); err != nil {
			return nil, err
		}
		return cars, nil
	}

	var wrapped struct {
		Cars []model.Car `json:"cars"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, err
	}
	return wrapped.Cars, nil
}
