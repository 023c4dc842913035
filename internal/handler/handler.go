package handler

import (
	"context"
	"net/http"
	"time"

	"carmarket/storefront/internal/model"
	"carmarket/storefront/internal/service"
	"carmarket/storefront/internal/session"
	"carmarket/storefront/internal/watcher"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// Marketplace is the slice of the marketplace client the HTTP surface
// forwards to. Calls are authenticated with the token in ctx.
type Marketplace interface {
	ListCars(ctx context.Context) ([]model.Car, error)
	GetCar(ctx context.Context, id int64) (model.Car, error)
	CreateCar(ctx context.Context, car model.Car) (model.Car, error)
	UpdateCar(ctx context.Context, id int64, car model.Car) error
	DeleteCar(ctx context.Context, id int64) error

	CreateAuction(ctx context.Context, a model.Auction) (model.Auction, error)
	UpdateAuction(ctx context.Context, id int64, a model.Auction) error
	DeleteAuction(ctx context.Context, id int64) error

	ListFavorites(ctx context.Context) ([]model.Car, error)
	AddFavorite(ctx context.Context, carID int64) error
	RemoveFavorite(ctx context.Context, carID int64) error

	BuyCar(ctx context.Context, carID int64) (model.Order, error)
	MyOrders(ctx context.Context) ([]model.Order, error)

	CreateTradeIn(ctx context.Context, req model.CreateTradeInRequest) (model.TradeInResponse, error)
	MyTradeIns(ctx context.Context) ([]model.TradeIn, error)
	GetTradeIn(ctx context.Context, id int64) (model.TradeIn, error)
	SetTradeInPayment(ctx context.Context, id int64, payment float64) (model.TradeInResponse, error)
	RejectTradeIn(ctx context.Context, id int64) error
	DeleteTradeIn(ctx context.Context, id int64) error
	AdminTradeIns(ctx context.Context, status string) ([]model.TradeIn, error)
	EvaluateTradeIn(ctx context.Context, id int64, estimatedPrice float64) (model.TradeInResponse, error)
}

type Deps struct {
	Marketplace Marketplace
	Sessions    *session.Manager
	Auctions    *service.AuctionService
	Feed        *watcher.Refresher
}

type Handler struct {
	router      *chi.Mux
	marketplace Marketplace
	sessions    *session.Manager
	auctions    *service.AuctionService
	feed        *watcher.Refresher
	validate    *validator.Validate
}

func NewHandler(d Deps) *Handler {
	router := chi.NewRouter()

	// Middleware
	router.Use(middleware.RequestID)
	router.Use(requestLogger)
	router.Use(middleware.Recoverer)

	h := &Handler{
		router:      router,
		marketplace: d.Marketplace,
		sessions:    d.Sessions,
		auctions:    d.Auctions,
		feed:        d.Feed,
		validate:    validator.New(),
	}

	h.registerRoutes()
	return h
}

func (h *Handler) registerRoutes() {
	h.router.Route("/v1", func(r chi.Router) {
		r.Get("/health", h.HealthCheck)

		r.Route("/auth", func(r chi.Router) {
			r.Post("/login", h.Login)
			r.Post("/register", h.Register)
			r.With(h.requireSession).Post("/logout", h.Logout)
			r.With(h.requireSession).Get("/me", h.Me)
		})

		r.Route("/auctions", func(r chi.Router) {
			r.Get("/", h.ListAuctions)
			r.Get("/live", h.LiveAuctions)
			r.Get("/{id}", h.GetAuction)
			r.With(h.requireSession).Post("/{id}/bids", h.PlaceBid)

			r.Group(func(r chi.Router) {
				r.Use(h.requireSession, h.requireAdmin)
				r.Post("/", h.CreateAuction)
				r.Put("/{id}", h.UpdateAuction)
				r.Delete("/{id}", h.DeleteAuction)
			})
		})

		r.Route("/cars", func(r chi.Router) {
			r.Get("/", h.ListCars)
			r.Get("/{id}", h.GetCar)

			r.Group(func(r chi.Router) {
				r.Use(h.requireSession, h.requireAdmin)
				r.Post("/", h.CreateCar)
				r.Put("/{id}", h.UpdateCar)
				r.Delete("/{id}", h.DeleteCar)
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(h.requireSession)

			r.Get("/favorites", h.ListFavorites)
			r.Post("/favorites/{carID}", h.AddFavorite)
			r.Delete("/favorites/{carID}", h.RemoveFavorite)

			r.Post("/orders/buy/{carID}", h.BuyCar)
			r.Get("/orders/my", h.MyOrders)

			r.Post("/trade-ins", h.CreateTradeIn)
			r.Get("/trade-ins/my", h.MyTradeIns)
			r.Get("/trade-ins/{id}", h.GetTradeIn)
			r.Post("/trade-ins/{id}/payment", h.SetTradeInPayment)
			r.Post("/trade-ins/{id}/reject", h.RejectTradeIn)
			r.Delete("/trade-ins/{id}", h.DeleteTradeIn)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(h.requireSession, h.requireAdmin)
			r.Get("/trade-ins", h.AdminTradeIns)
			r.Post("/trade-ins/{id}/evaluate", h.EvaluateTradeIn)
		})
	})
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		zap.L().Info("http_request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
