package marketplace

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"carmarket/storefront/internal/model"

	"github.com/andybalholm/brotli"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshot_Success(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer jwt-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")

		switch r.URL.Path {
		case "/auctions":
			w.Write([]byte(`[
				{"id":1,"car_id":10,"starting_price":15000,"current_price":15100,"bid_count":4,
				 "start_time":"2026-03-01T10:00:00Z","end_time":"2026-03-02T10:00:00Z"},
				{"id":2,"car_id":11,"start_price":9000,"total_bids":0,
				 "start_time":"2026-03-01T10:00:00Z","end_time":"2026-03-02T10:00:00Z"}
			]`))
		case "/cars":
			json.NewEncoder(w).Encode(map[string]any{"cars": []model.Car{
				{ID: 10, Brand: "Toyota", Model: "Camry", Year: 2021},
				{ID: 11, Brand: "BMW", Model: "X5", Year: 2019},
			}})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer ts.Close()

	client := NewClient(Config{APIURL: ts.URL})
	snap, err := client.Snapshot(WithToken(context.Background(), "jwt-token"))

	require.NoError(t, err)
	require.Len(t, snap.Auctions, 2)
	assert.Len(t, snap.Cars, 2)

	first, ok := snap.Auction(1)
	require.True(t, ok)
	assert.Equal(t, 15000.0, first.StartingPrice)
	assert.Equal(t, 15100.0, first.Price())
	assert.Equal(t, 4, first.BidCount)

	// Legacy keys
	second, ok := snap.Auction(2)
	require.True(t, ok)
	assert.Equal(t, 9000.0, second.StartingPrice)
	assert.Nil(t, second.CurrentPrice)
	assert.Equal(t, 9000.0, second.Price())

	assert.Equal(t, "Camry", snap.Cars[10].Model)
}

func TestSnapshot_APIError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/auctions" {
			http.Error(w, "database unavailable", http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`[]`))
	}))
	defer ts.Close()

	client := NewClient(Config{APIURL: ts.URL})

	_, err := client.Snapshot(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to fetch auctions")

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
	assert.Equal(t, "database unavailable", apiErr.Message)
}

func TestListCars_Cache(t *testing.T) {
	var requestCount atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestCount.Add(1)
		if r.Method == http.MethodDelete {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		json.NewEncoder(w).Encode([]model.Car{{ID: 1}})
	}))
	defer ts.Close()

	client := NewClient(Config{APIURL: ts.URL, CarCacheTTL: time.Minute})

	// First call - should hit server
	_, err := client.ListCars(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, int32(1), requestCount.Load())

	// Second call - should hit cache
	_, err = client.ListCars(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, int32(1), requestCount.Load(), "Should not increment request count due to caching")

	// A mutation drops the cache
	require.NoError(t, client.DeleteCar(context.Background(), 1))
	_, err = client.ListCars(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, int32(3), requestCount.Load())
}

func TestListCars_Brotli(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "br", r.Header.Get("Accept-Encoding"))

		var buf bytes.Buffer
		bw := brotli.NewWriter(&buf)
		json.NewEncoder(bw).Encode([]model.Car{{ID: 3, Brand: "Audi", Model: "A6", Year: 2020}})
		bw.Close()

		w.Header().Set("Content-Encoding", "br")
		w.Write(buf.Bytes())
	}))
	defer ts.Close()

	client := NewClient(Config{APIURL: ts.URL})

	cars, err := client.ListCars(context.Background())
	require.NoError(t, err)
	require.Len(t, cars, 1)
	assert.Equal(t, "Audi", cars[0].Brand)
}

func TestListAuctions_InvalidJSON(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`invalid-json`))
	}))
	defer ts.Close()

	client := NewClient(Config{APIURL: ts.URL})

	_, err := client.ListAuctions(context.Background())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "invalid character")
}

func TestPlaceBid(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/auctions/bid", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var bid model.BidRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&bid))
		assert.Equal(t, model.BidRequest{AuctionID: 1, UserID: 5, Amount: 15100}, bid)

		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"your_bid":15100,"new_price":15100,"price_increase":100,"bid_count":4}`))
	}))
	defer ts.Close()

	client := NewClient(Config{APIURL: ts.URL})

	result, err := client.PlaceBid(context.Background(), model.BidRequest{AuctionID: 1, UserID: 5, Amount: 15100})
	require.NoError(t, err)
	assert.Equal(t, model.BidResult{YourBid: 15100, NewPrice: 15100, PriceIncrease: 100, BidCount: 4}, result)
}

func TestPlaceBid_RejectedVerbatim(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bid must be higher than current price", http.StatusBadRequest)
	}))
	defer ts.Close()

	client := NewClient(Config{APIURL: ts.URL})

	_, err := client.PlaceBid(context.Background(), model.BidRequest{AuctionID: 1, Amount: 1})
	require.Error(t, err)
	assert.Equal(t, "bid must be higher than current price", err.Error())
	assert.False(t, errors.Is(err, ErrUnauthorized))
}

func TestUnauthorized(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"token expired"}`))
	}))
	defer ts.Close()

	client := NewClient(Config{APIURL: ts.URL})

	_, err := client.Me(context.Background())
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, "token expired", err.Error())
}

func TestLogin(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"email":"a@b.c","password":"secret"}`, string(body))
		assert.Empty(t, r.Header.Get("Authorization"))
		w.Write([]byte(`{"access_token":"jwt-token"}`))
	}))
	defer ts.Close()

	client := NewClient(Config{APIURL: ts.URL})

	token, err := client.Login(context.Background(), "a@b.c", "secret")
	require.NoError(t, err)
	assert.Equal(t, "jwt-token", token)
}

func TestGetCar(t *testing.T) {
	t.Run("single object", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "7", r.URL.Query().Get("id"))
			w.Write([]byte(`{"id":7,"brand":"Kia","model":"Rio","year":2018,"status":"available"}`))
		}))
		defer ts.Close()

		car, err := NewClient(Config{APIURL: ts.URL}).GetCar(context.Background(), 7)
		require.NoError(t, err)
		assert.Equal(t, "Rio", car.Model)
	})

	t.Run("list fallback", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`[{"id":1,"brand":"Kia"},{"id":7,"brand":"Lada"}]`))
		}))
		defer ts.Close()

		client := NewClient(Config{APIURL: ts.URL})

		car, err := client.GetCar(context.Background(), 7)
		require.NoError(t, err)
		assert.Equal(t, "Lada", car.Brand)

		_, err = client.GetCar(context.Background(), 99)
		assert.ErrorIs(t, err, ErrCarNotFound)
	})
}

func TestTradeInEndpoints(t *testing.T) {
	var mu sync.Mutex
	var seen []string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen = append(seen, r.Method+" "+r.URL.RequestURI())
		mu.Unlock()
		switch r.URL.Path {
		case "/admin/trade-ins/evaluate":
			var body model.EvaluateTradeInRequest
			json.NewDecoder(r.Body).Decode(&body)
			assert.Equal(t, 5000.0, body.EstimatedPrice)
			w.Write([]byte(`{"message":"evaluated","trade_in":{"id":3,"status":"evaluated"}}`))
		case "/admin/trade-ins":
			w.Write([]byte(`[{"id":3,"status":"pending"}]`))
		default:
			w.WriteHeader(http.StatusNoContent)
		}
	}))
	defer ts.Close()

	client := NewClient(Config{APIURL: ts.URL})
	ctx := context.Background()

	list, err := client.AdminTradeIns(ctx, model.TradeInPending)
	require.NoError(t, err)
	require.Len(t, list, 1)

	resp, err := client.EvaluateTradeIn(ctx, 3, 5000)
	require.NoError(t, err)
	require.NotNil(t, resp.TradeIn)
	assert.Equal(t, model.TradeInEvaluated, resp.TradeIn.Status)

	require.NoError(t, client.RejectTradeIn(ctx, 3))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{
		"GET /admin/trade-ins?status=pending",
		"POST /admin/trade-ins/evaluate?id=3",
		"POST /trade-ins/reject?id=3",
	}, seen)
}
