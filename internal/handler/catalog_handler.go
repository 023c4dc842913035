package handler

import (
	"net/http"

	"carmarket/storefront/internal/model"
)

func (h *Handler) ListCars(w http.ResponseWriter, r *http.Request) {
	cars, err := h.marketplace.ListCars(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if cars == nil {
		cars = []model.Car{}
	}
	writeJSON(w, http.StatusOK, cars)
}

func (h *Handler) GetCar(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	car, err := h.marketplace.GetCar(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, car)
}

func (h *Handler) CreateCar(w http.ResponseWriter, r *http.Request) {
	var req model.CarRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.fail(w, r, err)
		return
	}

	created, err := h.marketplace.CreateCar(r.Context(), req.Car())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) UpdateCar(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req model.CarRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.fail(w, r, err)
		return
	}

	if err := h.marketplace.UpdateCar(r.Context(), id, req.Car()); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) DeleteCar(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.marketplace.DeleteCar(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ListFavorites(w http.ResponseWriter, r *http.Request) {
	cars, err := h.marketplace.ListFavorites(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if cars == nil {
		cars = []model.Car{}
	}
	writeJSON(w, http.StatusOK, cars)
}

func (h *Handler) AddFavorite(w http.ResponseWriter, r *http.Request) {
	carID, err := pathID(r, "carID")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.marketplace.AddFavorite(r.Context(), carID); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) RemoveFavorite(w http.ResponseWriter, r *http.Request) {
	carID, err := pathID(r, "carID")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.marketplace.RemoveFavorite(r.Context(), carID); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) BuyCar(w http.ResponseWriter, r *http.Request) {
	carID, err := pathID(r, "carID")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	order, err := h.marketplace.BuyCar(r.Context(), carID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, order)
}

func (h *Handler) MyOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.marketplace.MyOrders(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if orders == nil {
		orders = []model.Order{}
	}
	writeJSON(w, http.StatusOK, orders)
}
