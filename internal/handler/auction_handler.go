package handler

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"carmarket/storefront/internal/auction"
	"carmarket/storefront/internal/model"
	"carmarket/storefront/internal/service"

	"go.uber.org/zap"
)

type PlaceBidRequest struct {
	Amount float64 `json:"amount" validate:"gt=0"`
}

func (h *Handler) ListAuctions(w http.ResponseWriter, r *http.Request) {
	filter := service.ListFilter{
		Status: r.URL.Query().Get("status"),
		Query:  r.URL.Query().Get("q"),
	}
	switch auction.Status(filter.Status) {
	case "", auction.StatusUpcoming, auction.StatusActive, auction.StatusEnded:
	default:
		h.fail(w, r, fmt.Errorf("%w: unknown status %q", errBadRequest, filter.Status))
		return
	}

	views, err := h.auctions.List(r.Context(), filter)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if views == nil {
		views = []model.AuctionView{}
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *Handler) GetAuction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}

	view, err := h.auctions.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) PlaceBid(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}

	var req PlaceBidRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.fail(w, r, err)
		return
	}

	s := sessionFrom(r.Context())
	outcome, err := h.auctions.PlaceBid(r.Context(), s.User.ID, id, req.Amount)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, outcome)
}

func (h *Handler) CreateAuction(w http.ResponseWriter, r *http.Request) {
	var req model.AuctionRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.fail(w, r, err)
		return
	}

	created, err := h.marketplace.CreateAuction(r.Context(), req.Auction())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.reload(r.Context())
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) UpdateAuction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req model.AuctionRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.fail(w, r, err)
		return
	}

	if err := h.marketplace.UpdateAuction(r.Context(), id, req.Auction()); err != nil {
		h.fail(w, r, err)
		return
	}
	h.reload(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) DeleteAuction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.marketplace.DeleteAuction(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	h.reload(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

// reload refreshes the auction snapshot after an admin mutation.
func (h *Handler) reload(ctx context.Context) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if _, err := h.feed.Reload(ctx); err != nil {
		zap.L().Warn("reload_after_mutation_failed", zap.Error(err))
	}
}
