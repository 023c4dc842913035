package watcher

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"carmarket/storefront/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func priceSnapshot(price float64) model.Snapshot {
	return model.Snapshot{Auctions: []model.Auction{{ID: 1, StartingPrice: 15000, CurrentPrice: &price}}}
}

func TestRefresher_PollsUntilStopped(t *testing.T) {
	var calls atomic.Int32
	r := New(func(ctx context.Context) (model.Snapshot, error) {
		calls.Add(1)
		return priceSnapshot(15000), nil
	}, 10*time.Millisecond)

	assert.Equal(t, StateIdle, r.State())
	require.NoError(t, r.Start(context.Background()))
	assert.Equal(t, StatePolling, r.State())
	assert.ErrorIs(t, r.Start(context.Background()), ErrAlreadyPolling)

	assert.Eventually(t, func() bool { return calls.Load() >= 3 }, time.Second, 5*time.Millisecond)

	r.Stop()
	assert.Equal(t, StateIdle, r.State())

	stopped := calls.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, stopped, calls.Load(), "no fetch may run after Stop")

	snap, ok := r.Snapshot()
	assert.True(t, ok)
	assert.Equal(t, uint64(stopped), snap.Seq)
}

func TestRefresher_FirstFetchIsImmediate(t *testing.T) {
	fetched := make(chan struct{}, 1)
	r := New(func(ctx context.Context) (model.Snapshot, error) {
		select {
		case fetched <- struct{}{}:
		default:
		}
		return priceSnapshot(15000), nil
	}, time.Hour)

	require.NoError(t, r.Start(context.Background()))
	defer r.Stop()

	select {
	case <-fetched:
	case <-time.After(time.Second):
		t.Fatal("expected a fetch right after Start")
	}
}

func TestRefresher_StaleResponseIsDiscarded(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	var calls atomic.Int32

	// The first fetch ignores cancellation and answers late with old data.
	r := New(func(ctx context.Context) (model.Snapshot, error) {
		if calls.Add(1) == 1 {
			close(started)
			<-release
			return priceSnapshot(15000), nil
		}
		return priceSnapshot(15100), nil
	}, time.Hour)

	var wg sync.WaitGroup
	var stale model.Snapshot
	wg.Add(1)
	go func() {
		defer wg.Done()
		stale, _ = r.Refresh(context.Background())
	}()
	<-started

	fresh, err := r.Reload(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 15100.0, fresh.Auctions[0].Price())
	assert.Equal(t, uint64(2), fresh.Seq)

	close(release)
	wg.Wait()

	assert.Equal(t, 15100.0, stale.Auctions[0].Price(), "older fetch must report the newer state")
	current, _ := r.Snapshot()
	assert.Equal(t, 15100.0, current.Auctions[0].Price())
	assert.Equal(t, uint64(2), current.Seq)
}

func TestRefresher_ReloadCancelsOlderRead(t *testing.T) {
	started := make(chan struct{})
	var calls atomic.Int32

	r := New(func(ctx context.Context) (model.Snapshot, error) {
		if calls.Add(1) == 1 {
			close(started)
			<-ctx.Done()
			return model.Snapshot{}, ctx.Err()
		}
		return priceSnapshot(15100), nil
	}, time.Hour)

	var wg sync.WaitGroup
	var older model.Snapshot
	var olderErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		older, olderErr = r.Refresh(context.Background())
	}()
	<-started

	_, err := r.Reload(context.Background())
	require.NoError(t, err)
	wg.Wait()

	require.NoError(t, olderErr)
	assert.Equal(t, uint64(2), older.Seq)
	assert.Equal(t, 15100.0, older.Auctions[0].Price())
}

func TestRefresher_FetchError(t *testing.T) {
	boom := errors.New("marketplace down")
	r := New(func(ctx context.Context) (model.Snapshot, error) {
		return model.Snapshot{}, boom
	}, time.Hour)

	_, err := r.Refresh(context.Background())
	assert.ErrorIs(t, err, boom)

	_, ok := r.Snapshot()
	assert.False(t, ok)
}

func TestRefresher_SeedAndSubscribe(t *testing.T) {
	r := New(func(ctx context.Context) (model.Snapshot, error) {
		return priceSnapshot(16000), nil
	}, time.Hour)

	seeded := priceSnapshot(15500)
	seeded.Seq = 10
	r.Seed(seeded)

	snap, ok := r.Snapshot()
	require.True(t, ok)
	assert.Equal(t, uint64(10), snap.Seq)

	var got []uint64
	unsubscribe := r.Subscribe(func(s model.Snapshot) {
		got = append(got, s.Seq)
	})

	_, err := r.Refresh(context.Background())
	require.NoError(t, err)
	_, err = r.Refresh(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, r.Subscribers())
	unsubscribe()
	assert.Equal(t, 0, r.Subscribers())
	_, err = r.Refresh(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []uint64{11, 12}, got)
}

func TestRefresher_ConcurrentReadsShareOneFetch(t *testing.T) {
	release := make(chan struct{})
	var calls atomic.Int32
	r := New(func(ctx context.Context) (model.Snapshot, error) {
		calls.Add(1)
		<-release
		return priceSnapshot(15000), nil
	}, time.Hour)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			snap, err := r.Refresh(context.Background())
			assert.NoError(t, err)
			assert.Equal(t, uint64(1), snap.Seq)
		}()
	}

	assert.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
}

func TestRefresher_SustainedReadLoadStillApplies(t *testing.T) {
	var completed atomic.Int32
	r := New(func(ctx context.Context) (model.Snapshot, error) {
		select {
		case <-time.After(40 * time.Millisecond):
		case <-ctx.Done():
			return model.Snapshot{}, ctx.Err()
		}
		completed.Add(1)
		return priceSnapshot(15000), nil
	}, time.Hour)

	var answered atomic.Int32
	var wg sync.WaitGroup
	deadline := time.Now().Add(600 * time.Millisecond)
	for time.Now().Before(deadline) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := r.Refresh(context.Background()); err == nil {
				answered.Add(1)
			}
		}()
		time.Sleep(10 * time.Millisecond)
	}

	// Measured while requests are still arriving.
	assert.GreaterOrEqual(t, completed.Load(), int32(5))
	assert.Greater(t, answered.Load(), int32(20))

	wg.Wait()
	snap, ok := r.Snapshot()
	require.True(t, ok)
	assert.Equal(t, uint64(completed.Load()), snap.Seq)
}

func TestRefresher_ReloadsDoNotCancelEachOther(t *testing.T) {
	var calls atomic.Int32
	r := New(func(ctx context.Context) (model.Snapshot, error) {
		n := calls.Add(1)
		select {
		case <-time.After(30 * time.Millisecond):
		case <-ctx.Done():
			return model.Snapshot{}, ctx.Err()
		}
		return priceSnapshot(15000 + float64(n)*100), nil
	}, time.Hour)

	var wg sync.WaitGroup
	errs := make([]error, 5)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = r.Reload(context.Background())
		}(i)
		time.Sleep(5 * time.Millisecond)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, int32(5), calls.Load())
	snap, _ := r.Snapshot()
	assert.Equal(t, uint64(5), snap.Seq)
}

func TestRefresher_ReloadFailureSurfacesToSupersededRead(t *testing.T) {
	started := make(chan struct{})
	boom := errors.New("marketplace down")
	var calls atomic.Int32
	r := New(func(ctx context.Context) (model.Snapshot, error) {
		if calls.Add(1) == 1 {
			close(started)
			<-ctx.Done()
			return model.Snapshot{}, ctx.Err()
		}
		return model.Snapshot{}, boom
	}, time.Hour)

	readErr := make(chan error, 1)
	go func() {
		_, err := r.Refresh(context.Background())
		readErr <- err
	}()
	<-started

	_, err := r.Reload(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, <-readErr, ErrSuperseded)
}
