package marketplace

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"carmarket/storefront/internal/model"

	"golang.org/x/sync/errgroup"
)

func (c *Client) ListAuctions(ctx context.Context) ([]model.Auction, error) {
	var raw []RawAuction
	if err := c.do(ctx, http.MethodGet, "/auctions", nil, nil, &raw); err != nil {
		return nil, err
	}

	auctions := make([]model.Auction, 0, len(raw))
	for _, r := range raw {
		auctions = append(auctions, r.toModel())
	}
	return auctions, nil
}

func (c *Client) CreateAuction(ctx context.Context, a model.Auction) (model.Auction, error) {
	var created RawAuction
	if err := c.do(ctx, http.MethodPost, "/auctions", nil, a, &created); err != nil {
		return model.Auction{}, err
	}
	if created.ID == 0 {
		return a, nil
	}
	return created.toModel(), nil
}

func (c *Client) UpdateAuction(ctx context.Context, id int64, a model.Auction) error {
	a.ID = id
	return c.do(ctx, http.MethodPut, "/auctions", idQuery("id", id), a, nil)
}

func (c *Client) DeleteAuction(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, "/auctions", idQuery("id", id), nil, nil)
}

// PlaceBid submits a bid. The marketplace is the final authority and
// may reject it even when it passed local validation.
func (c *Client) PlaceBid(ctx context.Context, bid model.BidRequest) (model.BidResult, error) {
	var result model.BidResult
	if err := c.do(ctx, http.MethodPost, "/auctions/bid", nil, bid, &result); err != nil {
		return model.BidResult{}, err
	}
	return result, nil
}

// Snapshot fetches auctions and cars concurrently and merges them into
// one read of the marketplace.
func (c *Client) Snapshot(ctx context.Context) (model.Snapshot, error) {
	g, ctx := errgroup.WithContext(ctx)
	var auctions []model.Auction
	var cars []model.Car

	g.Go(func() error {
		var err error
		auctions, err = c.ListAuctions(ctx)
		if err != nil {
			return fmt.Errorf("failed to fetch auctions: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		var err error
		cars, err = c.ListCars(ctx)
		if err != nil {
			return fmt.Errorf("failed to fetch cars: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return model.Snapshot{}, err
	}

	carMap := make(map[int64]model.Car, len(cars))
	for _, car := range cars {
		carMap[car.ID] = car
	}

	return model.Snapshot{
		FetchedAt: time.Now(),
		Auctions:  auctions,
		Cars:      carMap,
	}, nil
}
