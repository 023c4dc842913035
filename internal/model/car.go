package model

import "time"

const (
	CarStatusAvailable = "available"
	CarStatusSold      = "sold"
	CarStatusReserved  = "reserved"
)

type Car struct {
	ID            int64     `json:"id"`
	Brand         string    `json:"brand"`
	Model         string    `json:"model"`
	Year          int       `json:"year"`
	Price         float64   `json:"price"`
	Status        string    `json:"status"`
	IsAuctionOnly bool      `json:"is_auction_only"`
	CreatedAt     time.Time `json:"created_at,omitempty"`
}

// CarRequest is the admin create and update body.
type CarRequest struct {
	Brand         string  `json:"brand" validate:"required"`
	Model         string  `json:"model" validate:"required"`
	Year          int     `json:"year" validate:"gte=1900"`
	Price         float64 `json:"price" validate:"gt=0"`
	Status        string  `json:"status" validate:"omitempty,oneof=available sold reserved"`
	IsAuctionOnly bool    `json:"is_auction_only"`
}

func (r CarRequest) Car() Car {
	status := r.Status
	if status == "" {
		status = CarStatusAvailable
	}
	return Car{
		Brand:         r.Brand,
		Model:         r.Model,
		Year:          r.Year,
		Price:         r.Price,
		Status:        status,
		IsAuctionOnly: r.IsAuctionOnly,
	}
}
