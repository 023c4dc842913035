package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"carmarket/storefront/internal/config"
	"carmarket/storefront/internal/events"
	"carmarket/storefront/internal/handler"
	"carmarket/storefront/internal/model"
	"carmarket/storefront/internal/repository"
	"carmarket/storefront/internal/service"
	"carmarket/storefront/internal/service/marketplace"
	"carmarket/storefront/internal/session"
	"carmarket/storefront/internal/watcher"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// newLogger starts at info so config loading can log; the configured
// level is applied once LOG_LEVEL is known.
func newLogger() (*zap.Logger, zap.AtomicLevel) {
	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	cfg := zap.NewProductionConfig()
	cfg.Level = level
	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop(), level
	}
	return logger, level
}

func main() {
	logger, level := newLogger()
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}
	level.SetLevel(cfg.ZapLevel())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 2. Setup Database
	dbPool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer dbPool.Close()

	if err := dbPool.Ping(ctx); err != nil {
		logger.Fatal("failed to ping database", zap.Error(err))
	}
	snapshots := repository.NewSnapshotRepository(dbPool)
	if err := snapshots.Migrate(ctx); err != nil {
		logger.Fatal("failed to migrate database", zap.Error(err))
	}
	logger.Info("connected to database")

	// 3. Setup Redis
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Fatal("failed to ping redis", zap.Error(err))
	}

	// 4. Setup Logic
	client := marketplace.NewClient(marketplace.Config{
		APIURL:      cfg.Marketplace.APIURL,
		Timeout:     cfg.Marketplace.Timeout,
		CarCacheTTL: cfg.Marketplace.CarCacheTTL,
	})
	sessions := session.NewManager(client, session.NewRedisStore(rdb), cfg.Session.TTL)

	feed := watcher.New(client.Snapshot, cfg.Auction.PollInterval)
	if snap, err := snapshots.Load(ctx); err != nil {
		logger.Warn("failed to load persisted snapshot", zap.Error(err))
	} else if snap.Seq > 0 {
		feed.Seed(snap)
		logger.Info("warm start", zap.Uint64("seq", snap.Seq), zap.Int("auctions", len(snap.Auctions)))
	}
	feed.Subscribe(func(snap model.Snapshot) {
		go func() {
			saveCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := snapshots.Save(saveCtx, snap); err != nil {
				logger.Warn("snapshot_persist_failed", zap.Uint64("seq", snap.Seq), zap.Error(err))
			}
		}()
	})

	auctions := service.NewAuctionService(client, feed, cfg.Auction.BidIncrement)

	if cfg.NatsURL != "" {
		bus, err := events.Connect(cfg.NatsURL)
		if err != nil {
			logger.Fatal("failed to connect to nats", zap.Error(err))
		}
		defer bus.Close()
		auctions.PublishBidsTo(bus)

		err = bus.OnBid(func(e events.BidEvent) {
			refreshCtx, cancel := context.WithTimeout(ctx, cfg.Marketplace.Timeout)
			defer cancel()
			if _, err := feed.Reload(refreshCtx); err != nil {
				logger.Warn("refresh_on_bid_event_failed", zap.Int64("auction_id", e.AuctionID), zap.Error(err))
			}
		})
		if err != nil {
			logger.Fatal("failed to subscribe to bid events", zap.Error(err))
		}
	}

	if err := feed.Start(ctx); err != nil {
		logger.Fatal("failed to start auction polling", zap.Error(err))
	}
	defer feed.Stop()

	h := handler.NewHandler(handler.Deps{
		Marketplace: client,
		Sessions:    sessions,
		Auctions:    auctions,
		Feed:        feed,
	})

	// 5. Setup Server
	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// 6. Run Server with Graceful Shutdown
	go func() {
		logger.Info("starting server", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server exiting")
}
