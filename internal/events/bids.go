// Package events fans accepted bids out to every gateway instance so
// each one can reload ahead of its next poll.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"carmarket/storefront/internal/model"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

const subjectPrefix = "auctions.bids."

type BidEvent struct {
	AuctionID int64     `json:"auction_id"`
	NewPrice  float64   `json:"new_price"`
	BidCount  int       `json:"bid_count"`
	Origin    string    `json:"origin"`
	PlacedAt  time.Time `json:"placed_at"`
}

func Subject(auctionID int64) string {
	return fmt.Sprintf("%s%d", subjectPrefix, auctionID)
}

type Bus struct {
	conn   *nats.Conn
	origin string
	sub    *nats.Subscription
}

func Connect(url string) (*Bus, error) {
	conn, err := nats.Connect(url, nats.Name("storefront-gateway"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &Bus{conn: conn, origin: uuid.NewString()}, nil
}

// PublishBid is best effort: the other instances still catch up on
// their next poll if the event is lost.
func (b *Bus) PublishBid(ctx context.Context, auctionID int64, result model.BidResult) error {
	data, err := json.Marshal(BidEvent{
		AuctionID: auctionID,
		NewPrice:  result.NewPrice,
		BidCount:  result.BidCount,
		Origin:    b.origin,
		PlacedAt:  time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	return b.conn.Publish(Subject(auctionID), data)
}

// OnBid calls fn for every bid accepted through another instance.
func (b *Bus) OnBid(fn func(BidEvent)) error {
	sub, err := b.conn.Subscribe(subjectPrefix+"*", func(msg *nats.Msg) {
		b.handle(msg, fn)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	b.sub = sub
	zap.L().Info("nats_subscribed", zap.String("subject", subjectPrefix+"*"))
	return nil
}

func (b *Bus) handle(msg *nats.Msg, fn func(BidEvent)) {
	var event BidEvent
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		zap.L().Warn("bid_event_decode_failed", zap.String("subject", msg.Subject), zap.Error(err))
		return
	}
	if event.Origin == b.origin {
		return
	}
	fn(event)
}

func (b *Bus) Close() {
	if b.sub != nil {
		_ = b.sub.Unsubscribe()
	}
	b.conn.Close()
}
