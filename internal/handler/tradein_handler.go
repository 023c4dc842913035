package handler

import (
	"fmt"
	"net/http"

	"carmarket/storefront/internal/model"
)

var tradeInStatuses = map[string]bool{
	"":                     true,
	model.TradeInPending:   true,
	model.TradeInEvaluated: true,
	model.TradeInAccepted:  true,
	model.TradeInRejected:  true,
}

func (h *Handler) CreateTradeIn(w http.ResponseWriter, r *http.Request) {
	var req model.CreateTradeInRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.fail(w, r, err)
		return
	}

	resp, err := h.marketplace.CreateTradeIn(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (h *Handler) MyTradeIns(w http.ResponseWriter, r *http.Request) {
	list, err := h.marketplace.MyTradeIns(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if list == nil {
		list = []model.TradeIn{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) GetTradeIn(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	t, err := h.marketplace.GetTradeIn(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *Handler) SetTradeInPayment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req model.SetUserPaymentRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.fail(w, r, err)
		return
	}

	resp, err := h.marketplace.SetTradeInPayment(r.Context(), id, req.UserPayment)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) RejectTradeIn(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.marketplace.RejectTradeIn(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) DeleteTradeIn(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.marketplace.DeleteTradeIn(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) AdminTradeIns(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	if !tradeInStatuses[status] {
		h.fail(w, r, fmt.Errorf("%w: unknown status %q", errBadRequest, status))
		return
	}

	list, err := h.marketplace.AdminTradeIns(r.Context(), status)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if list == nil {
		list = []model.TradeIn{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) EvaluateTradeIn(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req model.EvaluateTradeInRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.fail(w, r, err)
		return
	}

	resp, err := h.marketplace.EvaluateTradeIn(r.Context(), id, req.EstimatedPrice)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
