package repository

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"carmarket/storefront/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schema string

// SnapshotRepository keeps the last applied marketplace snapshot so a
// restarted gateway can answer before its first poll lands.
type SnapshotRepository struct {
	db *pgxpool.Pool
}

func NewSnapshotRepository(db *pgxpool.Pool) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

func (r *SnapshotRepository) Migrate(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// RunAtomic executes a function within a transaction
func (r *SnapshotRepository) RunAtomic(ctx context.Context, fn func(ctx context.Context) error) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	// Rollback is a no-op once Commit succeeded.
	defer tx.Rollback(ctx)

	ctx = context.WithValue(ctx, txKey{}, tx)

	if err := fn(ctx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

type txKey struct{}

func (r *SnapshotRepository) getExecutor(ctx context.Context) PgxExecutor {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return tx
	}
	return r.db
}

// PgxExecutor is an interface that matches both *pgxpool.Pool and pgx.Tx
type PgxExecutor interface {
	Exec(ctx context.Context, sql string, arguments ...any) (commandTag pgconn.CommandTag, err error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

const upsertAuction = `
INSERT INTO auction_snapshots
    (auction_id, car_id, starting_price, current_price, bid_count, start_time, end_time, seq, fetched_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (auction_id) DO UPDATE SET
    car_id = EXCLUDED.car_id,
    starting_price = EXCLUDED.starting_price,
    current_price = EXCLUDED.current_price,
    bid_count = EXCLUDED.bid_count,
    start_time = EXCLUDED.start_time,
    end_time = EXCLUDED.end_time,
    seq = EXCLUDED.seq,
    fetched_at = EXCLUDED.fetched_at
WHERE auction_snapshots.fetched_at < EXCLUDED.fetched_at`

const upsertCar = `
INSERT INTO car_snapshots (car_id, brand, model, year, price, status, is_auction_only, seq, fetched_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (car_id) DO UPDATE SET
    brand = EXCLUDED.brand,
    model = EXCLUDED.model,
    year = EXCLUDED.year,
    price = EXCLUDED.price,
    status = EXCLUDED.status,
    is_auction_only = EXCLUDED.is_auction_only,
    seq = EXCLUDED.seq,
    fetched_at = EXCLUDED.fetched_at
WHERE car_snapshots.fetched_at < EXCLUDED.fetched_at`

// Save stores snap unless a snapshot fetched at or after it is already
// stored. Gateways sharing the database number their snapshots
// independently, so the fetch time decides and seq is kept only for
// warm start. Rows missing from snap are dropped.
func (r *SnapshotRepository) Save(ctx context.Context, snap model.Snapshot) error {
	// timestamptz keeps microseconds
	fetchedAt := snap.FetchedAt.UTC().Truncate(time.Microsecond)

	return r.RunAtomic(ctx, func(ctx context.Context) error {
		db := r.getExecutor(ctx)

		// Serialises concurrent writers so the check below holds until commit.
		if _, err := db.Exec(ctx, "LOCK TABLE auction_snapshots, car_snapshots IN SHARE ROW EXCLUSIVE MODE"); err != nil {
			return fmt.Errorf("failed to lock snapshot tables: %w", err)
		}

		stored, err := r.LatestFetchedAt(ctx)
		if err != nil {
			return err
		}
		if !stored.IsZero() && !stored.Before(fetchedAt) {
			return nil
		}

		batch := &pgx.Batch{}
		for _, a := range snap.Auctions {
			batch.Queue(upsertAuction, a.ID, a.CarID, a.StartingPrice, a.CurrentPrice, a.BidCount,
				a.StartTime, a.EndTime, int64(snap.Seq), fetchedAt)
		}
		for _, c := range snap.Cars {
			batch.Queue(upsertCar, c.ID, c.Brand, c.Model, c.Year, c.Price, c.Status, c.IsAuctionOnly, int64(snap.Seq), fetchedAt)
		}
		batch.Queue("DELETE FROM auction_snapshots WHERE fetched_at < $1", fetchedAt)
		batch.Queue("DELETE FROM car_snapshots WHERE fetched_at < $1", fetchedAt)

		if err := db.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to save snapshot: %w", err)
		}
		return nil
	})
}

// LatestFetchedAt returns when the stored snapshot was fetched, or the
// zero time when nothing is stored.
func (r *SnapshotRepository) LatestFetchedAt(ctx context.Context) (time.Time, error) {
	var latest *time.Time
	err := r.getExecutor(ctx).QueryRow(ctx, `
		SELECT GREATEST(
			(SELECT MAX(fetched_at) FROM auction_snapshots),
			(SELECT MAX(fetched_at) FROM car_snapshots))`).Scan(&latest)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get snapshot time: %w", err)
	}
	if latest == nil {
		return time.Time{}, nil
	}
	return *latest, nil
}

// Load returns the stored snapshot. An empty store yields Seq 0.
func (r *SnapshotRepository) Load(ctx context.Context) (model.Snapshot, error) {
	snap := model.Snapshot{Cars: make(map[int64]model.Car)}
	db := r.getExecutor(ctx)

	rows, err := db.Query(ctx, `
		SELECT auction_id, car_id, starting_price, current_price, bid_count, start_time, end_time, seq, fetched_at
		FROM auction_snapshots ORDER BY auction_id`)
	if err != nil {
		return model.Snapshot{}, fmt.Errorf("failed to load auctions: %w", err)
	}
	for rows.Next() {
		var a model.Auction
		var seq int64
		if err := rows.Scan(&a.ID, &a.CarID, &a.StartingPrice, &a.CurrentPrice, &a.BidCount,
			&a.StartTime, &a.EndTime, &seq, &snap.FetchedAt); err != nil {
			rows.Close()
			return model.Snapshot{}, fmt.Errorf("failed to scan auction: %w", err)
		}
		snap.Seq = uint64(seq)
		snap.Auctions = append(snap.Auctions, a)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return model.Snapshot{}, fmt.Errorf("failed to load auctions: %w", err)
	}

	rows, err = db.Query(ctx, `
		SELECT car_id, brand, model, year, price, status, is_auction_only FROM car_snapshots`)
	if err != nil {
		return model.Snapshot{}, fmt.Errorf("failed to load cars: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var c model.Car
		if err := rows.Scan(&c.ID, &c.Brand, &c.Model, &c.Year, &c.Price, &c.Status, &c.IsAuctionOnly); err != nil {
			return model.Snapshot{}, fmt.Errorf("failed to scan car: %w", err)
		}
		snap.Cars[c.ID] = c
	}
	if err := rows.Err(); err != nil {
		return model.Snapshot{}, fmt.Errorf("failed to load cars: %w", err)
	}
	return snap, nil
}
