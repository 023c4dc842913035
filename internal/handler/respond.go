package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"carmarket/storefront/internal/auction"
	"carmarket/storefront/internal/service"
	"carmarket/storefront/internal/service/marketplace"
	"carmarket/storefront/internal/session"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

const loginPath = "/login"

var errBadRequest = errors.New("bad request")

type ErrorResponse struct {
	Error      string   `json:"error"`
	Redirect   string   `json:"redirect,omitempty"`
	MinimumBid *float64 `json:"minimum_bid,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("response_encode_failed", zap.Error(err))
	}
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: invalid request body", errBadRequest)
	}
	return nil
}

func pathID(r *http.Request, key string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, key), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid %s", errBadRequest, key)
	}
	return id, nil
}

// unauthorized ends the browser's session and points it at the login
// screen.
func (h *Handler) unauthorized(w http.ResponseWriter, message string) {
	clearSessionCookie(w)
	w.Header().Set("Location", loginPath)
	writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: message, Redirect: loginPath})
}

// fail maps err to a response. A 401 from the marketplace destroys the
// caller's session whichever route produced it.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	var (
		tooLow     *auction.BidTooLowError
		apiErr     *marketplace.APIError
		validation validator.ValidationErrors
	)

	switch {
	case errors.Is(err, marketplace.ErrUnauthorized):
		if s := sessionFrom(r.Context()); s != nil {
			h.sessions.Invalidate(context.WithoutCancel(r.Context()), s.ID)
		}
		h.unauthorized(w, err.Error())
	case errors.Is(err, session.ErrNoSession):
		h.unauthorized(w, "login required")
	case errors.As(err, &tooLow):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error(), MinimumBid: &tooLow.Minimum})
	case errors.As(err, &validation),
		errors.Is(err, errBadRequest),
		errors.Is(err, auction.ErrInvalidAmount),
		errors.Is(err, session.ErrMissingCredentials),
		errors.Is(err, session.ErrPasswordMismatch):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	case errors.Is(err, auction.ErrAuctionNotActive):
		writeJSON(w, http.StatusConflict, ErrorResponse{Error: err.Error()})
	case errors.Is(err, service.ErrAuctionNotFound), errors.Is(err, marketplace.ErrCarNotFound):
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: err.Error()})
	case errors.As(err, &apiErr):
		writeJSON(w, apiErr.StatusCode, ErrorResponse{Error: apiErr.Message})
	case errors.Is(err, context.Canceled):
		// client went away
	default:
		zap.L().Error("marketplace_request_failed",
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeJSON(w, http.StatusBadGateway, ErrorResponse{Error: "marketplace unavailable"})
	}
}
