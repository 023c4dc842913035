package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"carmarket/storefront/internal/auction"
	"carmarket/storefront/internal/model"
	"carmarket/storefront/internal/watcher"

	"go.uber.org/zap"
)

var ErrAuctionNotFound = errors.New("auction not found")

type BidAPI interface {
	PlaceBid(ctx context.Context, bid model.BidRequest) (model.BidResult, error)
}

// BidPublisher announces accepted bids to other gateway instances.
type BidPublisher interface {
	PublishBid(ctx context.Context, auctionID int64, result model.BidResult) error
}

type ListFilter struct {
	Status string
	Query  string
}

// BidOutcome is what the bidder sees after an accepted bid. Result is
// the marketplace response verbatim; Auction is the view after the
// follow-up reload, when that reload succeeded.
type BidOutcome struct {
	Result        model.BidResult    `json:"result"`
	PreviousPrice float64            `json:"previous_price"`
	Auction       *model.AuctionView `json:"auction,omitempty"`
}

type AuctionService struct {
	api       BidAPI
	refresher *watcher.Refresher
	increment float64
	publisher BidPublisher
	now       func() time.Time
}

func NewAuctionService(api BidAPI, refresher *watcher.Refresher, increment float64) *AuctionService {
	return &AuctionService{
		api:       api,
		refresher: refresher,
		increment: increment,
		now:       time.Now,
	}
}

func (s *AuctionService) PublishBidsTo(p BidPublisher) {
	s.publisher = p
}

func (s *AuctionService) Increment() float64 {
	return s.increment
}

// snapshot returns the current snapshot, fetching one when nothing has
// been applied yet.
func (s *AuctionService) snapshot(ctx context.Context) (model.Snapshot, error) {
	if snap, ok := s.refresher.Snapshot(); ok {
		return snap, nil
	}
	snap, err := s.refresher.Refresh(ctx)
	if err != nil {
		return model.Snapshot{}, fmt.Errorf("failed to load auctions: %w", err)
	}
	return snap, nil
}

// Views derives display models for every auction in snap, soonest
// ending first. Countdown and status are computed against the clock on
// every call.
func (s *AuctionService) Views(snap model.Snapshot) []model.AuctionView {
	now := s.now()
	views := make([]model.AuctionView, 0, len(snap.Auctions))
	for _, a := range snap.Auctions {
		views = append(views, auction.View(a, snap.Cars, s.increment, now))
	}
	sort.SliceStable(views, func(i, j int) bool {
		return views[i].EndTime.Before(views[j].EndTime)
	})
	return views
}

func (s *AuctionService) List(ctx context.Context, filter ListFilter) ([]model.AuctionView, error) {
	snap, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}

	query := strings.ToLower(strings.TrimSpace(filter.Query))
	var out []model.AuctionView
	for _, v := range s.Views(snap) {
		if filter.Status != "" && v.Status != filter.Status {
			continue
		}
		if query != "" && !strings.Contains(strings.ToLower(v.Title), query) {
			continue
		}
		out = append(out, v)
	}
	return out, nil
}

// Get is the one-shot detail view. It joins the fetch in flight, or
// issues one, so concurrent detail requests share upstream calls.
func (s *AuctionService) Get(ctx context.Context, id int64) (model.AuctionView, error) {
	snap, err := s.refresher.Refresh(ctx)
	if err != nil {
		return model.AuctionView{}, fmt.Errorf("failed to load auction: %w", err)
	}
	a, ok := snap.Auction(id)
	if !ok {
		return model.AuctionView{}, ErrAuctionNotFound
	}
	return auction.View(a, snap.Cars, s.increment, s.now()), nil
}

// PlaceBid validates amount against the current snapshot, submits it
// with the token carried by ctx, and then reloads so the caller sees
// the marketplace's state rather than a locally patched price.
func (s *AuctionService) PlaceBid(ctx context.Context, userID, auctionID int64, amount float64) (BidOutcome, error) {
	snap, err := s.snapshot(ctx)
	if err != nil {
		return BidOutcome{}, err
	}

	a, ok := snap.Auction(auctionID)
	if !ok {
		// The auction may be newer than the snapshot.
		if snap, err = s.refresher.Refresh(ctx); err != nil {
			return BidOutcome{}, fmt.Errorf("failed to load auctions: %w", err)
		}
		if a, ok = snap.Auction(auctionID); !ok {
			return BidOutcome{}, ErrAuctionNotFound
		}
	}

	if err := auction.ValidateBid(a, amount, s.increment, s.now()); err != nil {
		return BidOutcome{}, err
	}

	previous := a.Price()
	result, err := s.api.PlaceBid(ctx, model.BidRequest{
		AuctionID: auctionID,
		UserID:    userID,
		Amount:    amount,
	})
	if err != nil {
		return BidOutcome{}, err
	}
	if result.PriceIncrease == 0 && result.NewPrice > previous {
		result.PriceIncrease = result.NewPrice - previous
	}

	zap.L().Info("bid_accepted",
		zap.Int64("auction_id", auctionID),
		zap.Int64("user_id", userID),
		zap.Float64("new_price", result.NewPrice),
		zap.Int("bid_count", result.BidCount),
	)

	outcome := BidOutcome{Result: result, PreviousPrice: previous}

	if s.publisher != nil {
		if err := s.publisher.PublishBid(ctx, auctionID, result); err != nil {
			zap.L().Warn("bid_publish_failed", zap.Int64("auction_id", auctionID), zap.Error(err))
		}
	}

	reloaded, err := s.refresher.Reload(ctx)
	if err != nil {
		zap.L().Warn("reload_after_bid_failed", zap.Int64("auction_id", auctionID), zap.Error(err))
		return outcome, nil
	}
	if updated, ok := reloaded.Auction(auctionID); ok {
		view := auction.View(updated, reloaded.Cars, s.increment, s.now())
		outcome.Auction = &view
	}
	return outcome, nil
}
