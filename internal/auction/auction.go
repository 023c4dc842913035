// Package auction holds the pure auction rules shared by the list and
// detail views: time window classification, countdown text and the
// minimum acceptable bid.
package auction

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"carmarket/storefront/internal/model"
)

type Status string

const (
	StatusUpcoming Status = "upcoming"
	StatusActive   Status = "active"
	StatusEnded    Status = "ended"
)

var (
	ErrInvalidAmount    = errors.New("bid amount must be greater than 0")
	ErrAuctionNotActive = errors.New("auction is not active")
)

// BidTooLowError reports a bid under the current minimum.
type BidTooLowError struct {
	Amount  float64
	Minimum float64
}

func (e *BidTooLowError) Error() string {
	return fmt.Sprintf("bid %.2f is below the minimum bid %.2f", e.Amount, e.Minimum)
}

// Classify places now relative to the [start, end] window. Both
// boundaries count as active.
func Classify(start, end, now time.Time) Status {
	switch {
	case now.Before(start):
		return StatusUpcoming
	case now.After(end):
		return StatusEnded
	default:
		return StatusActive
	}
}

func StatusOf(a model.Auction, now time.Time) Status {
	return Classify(a.StartTime, a.EndTime, now)
}

func IsActive(a model.Auction, now time.Time) bool {
	return StatusOf(a, now) == StatusActive
}

// FormatCountdown renders the time left until end using the two most
// significant non-zero units, e.g. "2d 5h", "3h 12m" or "12m".
func FormatCountdown(end, now time.Time) string {
	remaining := end.Sub(now)
	if remaining <= 0 {
		return "Ended"
	}

	days := int(remaining / (24 * time.Hour))
	hours := int(remaining % (24 * time.Hour) / time.Hour)
	minutes := int(remaining % time.Hour / time.Minute)

	units := []struct {
		value  int
		suffix string
	}{
		{days, "d"},
		{hours, "h"},
		{minutes, "m"},
	}

	for i, u := range units {
		if u.value == 0 {
			continue
		}
		parts := []string{fmt.Sprintf("%d%s", u.value, u.suffix)}
		if i+1 < len(units) && units[i+1].value != 0 {
			parts = append(parts, fmt.Sprintf("%d%s", units[i+1].value, units[i+1].suffix))
		}
		return strings.Join(parts, " ")
	}
	return "<1m"
}

// MinimumBid is the lowest amount the marketplace will accept on top of
// price, which is the current price or the starting price.
func MinimumBid(price, increment float64) float64 {
	return price + increment
}

// ValidateBid runs the checks that must pass before a bid is sent.
func ValidateBid(a model.Auction, amount, increment float64, now time.Time) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if !IsActive(a, now) {
		return ErrAuctionNotActive
	}
	if minimum := MinimumBid(a.Price(), increment); amount < minimum {
		return &BidTooLowError{Amount: amount, Minimum: minimum}
	}
	return nil
}

// Title is the display name used for search, "brand model year", or
// "car <id>" when the car is not known.
func Title(a model.Auction, car *model.Car) string {
	if car == nil {
		return fmt.Sprintf("car %d", a.CarID)
	}
	return fmt.Sprintf("%s %s %d", car.Brand, car.Model, car.Year)
}

// View derives the display model for a at the given instant.
func View(a model.Auction, cars map[int64]model.Car, increment float64, now time.Time) model.AuctionView {
	var car *model.Car
	if c, ok := cars[a.CarID]; ok {
		car = &c
	}
	return model.AuctionView{
		Auction:      a,
		Car:          car,
		Title:        Title(a, car),
		Status:       string(StatusOf(a, now)),
		Countdown:    FormatCountdown(a.EndTime, now),
		DisplayPrice: a.Price(),
		MinimumBid:   MinimumBid(a.Price(), increment),
	}
}
