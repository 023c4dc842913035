package repository_test

import (
	"context"
	"os"
	"testing"
	"time"

	"carmarket/storefront/internal/model"
	"carmarket/storefront/internal/repository"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *repository.SnapshotRepository {
	_ = godotenv.Load("../../.env")

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Skip("DATABASE_URL not set")
	}

	pool, err := pgxpool.New(context.Background(), dbURL)
	require.NoError(t, err, "Unable to connect to database")
	t.Cleanup(pool.Close)

	require.NoError(t, pool.Ping(context.Background()), "Unable to ping database")

	repo := repository.NewSnapshotRepository(pool)
	require.NoError(t, repo.Migrate(context.Background()))

	// Truncate tables to ensure clean state
	_, err = pool.Exec(context.Background(), "TRUNCATE TABLE auction_snapshots, car_snapshots")
	require.NoError(t, err)

	return repo
}

var start = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func snapshot(seq uint64, price float64, auctionIDs ...int64) model.Snapshot {
	return snapshotAt(seq, start.Add(time.Duration(seq)*time.Second), price, auctionIDs...)
}

func snapshotAt(seq uint64, fetchedAt time.Time, price float64, auctionIDs ...int64) model.Snapshot {
	snap := model.Snapshot{
		Seq:       seq,
		FetchedAt: fetchedAt,
		Cars:      map[int64]model.Car{10: {ID: 10, Brand: "Toyota", Model: "Camry", Year: 2021, Price: 20000, Status: model.CarStatusAvailable}},
	}
	for _, id := range auctionIDs {
		p := price
		snap.Auctions = append(snap.Auctions, model.Auction{
			ID: id, CarID: 10, StartingPrice: 15000, CurrentPrice: &p, BidCount: 4,
			StartTime: start, EndTime: start.Add(48 * time.Hour),
		})
	}
	return snap
}

func TestSnapshotRepository_SaveAndLoad(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, snapshot(1, 15000, 1, 2)))
	require.NoError(t, repo.Save(ctx, snapshot(2, 15100, 1)))

	loaded, err := repo.Load(ctx)
	require.NoError(t, err)

	assert.Equal(t, uint64(2), loaded.Seq)
	require.Len(t, loaded.Auctions, 1, "auction 2 vanished from the newer snapshot")
	require.NotNil(t, loaded.Auctions[0].CurrentPrice)
	assert.Equal(t, 15100.0, *loaded.Auctions[0].CurrentPrice)
	assert.Equal(t, "Camry", loaded.Cars[10].Model)
}

func TestSnapshotRepository_IgnoresOlderSnapshot(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, snapshot(5, 15100, 1)))
	require.NoError(t, repo.Save(ctx, snapshot(4, 15000, 1)))

	loaded, err := repo.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), loaded.Seq)
	assert.Equal(t, 15100.0, *loaded.Auctions[0].CurrentPrice)
}

func TestSnapshotRepository_WritersResolvedByFetchTime(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()

	// Two gateways with unrelated sequence counters share the table.
	busy := snapshotAt(900, start.Add(time.Minute), 15100, 1)
	fresh := snapshotAt(12, start.Add(2*time.Minute), 15300, 1)
	stale := snapshotAt(1000, start.Add(30*time.Second), 15000, 1)

	require.NoError(t, repo.Save(ctx, busy))
	require.NoError(t, repo.Save(ctx, fresh))
	require.NoError(t, repo.Save(ctx, stale))

	loaded, err := repo.Load(ctx)
	require.NoError(t, err)
	require.Len(t, loaded.Auctions, 1)
	assert.Equal(t, 15300.0, *loaded.Auctions[0].CurrentPrice)
	assert.Equal(t, uint64(12), loaded.Seq)
	assert.True(t, fresh.FetchedAt.Equal(loaded.FetchedAt))

	latest, err := repo.LatestFetchedAt(ctx)
	require.NoError(t, err)
	assert.True(t, fresh.FetchedAt.Equal(latest))
}

func TestSnapshotRepository_LatestFetchedAtEmpty(t *testing.T) {
	repo := setupTestDB(t)

	latest, err := repo.LatestFetchedAt(context.Background())
	require.NoError(t, err)
	assert.True(t, latest.IsZero())
}
