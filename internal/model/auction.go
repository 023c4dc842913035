package model

import "time"

type Auction struct {
	ID            int64     `json:"id"`
	CarID         int64     `json:"car_id"`
	StartingPrice float64   `json:"starting_price"`
	CurrentPrice  *float64  `json:"current_price,omitempty"`
	BidCount      int       `json:"bid_count"`
	StartTime     time.Time `json:"start_time"`
	EndTime       time.Time `json:"end_time"`
}

// Price returns the current price, falling back to the starting price
// while no bid has been accepted.
func (a Auction) Price() float64 {
	if a.CurrentPrice != nil {
		return *a.CurrentPrice
	}
	return a.StartingPrice
}

type BidRequest struct {
	AuctionID int64   `json:"auction_id"`
	UserID    int64   `json:"user_id,omitempty"`
	Amount    float64 `json:"amount"`
}

// BidResult is the marketplace's answer to an accepted bid. It is shown
// to the bidder and then dropped; it never updates a snapshot.
type BidResult struct {
	YourBid       float64 `json:"your_bid"`
	NewPrice      float64 `json:"new_price"`
	PriceIncrease float64 `json:"price_increase"`
	BidCount      int     `json:"bid_count"`
}

// Snapshot is one read of the marketplace's auctions and cars.
type Snapshot struct {
	Seq       uint64        `json:"seq"`
	FetchedAt time.Time     `json:"fetched_at"`
	Auctions  []Auction     `json:"auctions"`
	Cars      map[int64]Car `json:"cars"`
}

func (s Snapshot) Auction(id int64) (Auction, bool) {
	for _, a := range s.Auctions {
		if a.ID == id {
			return a, true
		}
	}
	return Auction{}, false
}

type AuctionView struct {
	Auction
	Car          *Car    `json:"car,omitempty"`
	Title        string  `json:"title"`
	Status       string  `json:"status"`
	Countdown    string  `json:"countdown"`
	DisplayPrice float64 `json:"price"`
	MinimumBid   float64 `json:"minimum_bid"`
}

// AuctionRequest is the admin create and update body.
type AuctionRequest struct {
	CarID         int64     `json:"car_id" validate:"gt=0"`
	StartingPrice float64   `json:"starting_price" validate:"gt=0"`
	StartTime     time.Time `json:"start_time" validate:"required"`
	EndTime       time.Time `json:"end_time" validate:"required,gtfield=StartTime"`
}

func (r AuctionRequest) Auction() Auction {
	return Auction{
		CarID:         r.CarID,
		StartingPrice: r.StartingPrice,
		StartTime:     r.StartTime,
		EndTime:       r.EndTime,
	}
}
