package model

import "time"

const (
	TradeInPending   = "pending"
	TradeInEvaluated = "evaluated"
	TradeInAccepted  = "accepted"
	TradeInRejected  = "rejected"
)

type TradeIn struct {
	ID              int64     `json:"id"`
	UserID          int64     `json:"user_id"`
	OfferedBrand    string    `json:"offered_brand"`
	OfferedModel    string    `json:"offered_model"`
	Year            int       `json:"year"`
	Mileage         int       `json:"mileage"`
	DesiredCarID    *int64    `json:"desired_car_id,omitempty"`
	EstimatedPrice  *float64  `json:"estimated_price,omitempty"`
	Status          string    `json:"status"`
	UserPayment     *float64  `json:"user_payment,omitempty"`
	KolesaSearchURL string    `json:"kolesa_search_url,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type CreateTradeInRequest struct {
	OfferedBrand string `json:"offered_brand" validate:"required"`
	OfferedModel string `json:"offered_model" validate:"required"`
	Year         int    `json:"year" validate:"required,min=1900"`
	Mileage      int    `json:"mileage" validate:"min=0"`
	DesiredCarID *int64 `json:"desired_car_id,omitempty"`
}

type EvaluateTradeInRequest struct {
	EstimatedPrice float64 `json:"estimated_price" validate:"gt=0"`
}

type SetUserPaymentRequest struct {
	UserPayment float64 `json:"user_payment" validate:"min=0"`
}

type TradeInResponse struct {
	Message         string   `json:"message"`
	TradeIn         *TradeIn `json:"trade_in,omitempty"`
	KolesaSearchURL string   `json:"kolesa_search_url,omitempty"`
}
