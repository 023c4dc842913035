// Package watcher keeps a read-only snapshot of the marketplace's
// auctions fresh by polling. Overlapping reads share one fetch, and a
// reload issued after a mutation always wins over older fetches.
package watcher

import (
	"context"
	"errors"
	"sync"
	"time"

	"carmarket/storefront/internal/model"

	"go.uber.org/zap"
)

type State string

const (
	StateIdle    State = "idle"
	StatePolling State = "polling"
)

var (
	ErrAlreadyPolling = errors.New("refresher is already polling")
	// ErrSuperseded is returned when a reload cancelled the fetch this
	// refresh was waiting on and then failed itself.
	ErrSuperseded = errors.New("refresh superseded by a newer request")
)

type FetchFunc func(ctx context.Context) (model.Snapshot, error)

// fetchCall is one fetch shared by every caller that joined it.
type fetchCall struct {
	seq    uint64
	reload bool
	cancel context.CancelFunc
	done   chan struct{}

	// set before done is closed
	err          error
	supersededBy *fetchCall
}

type Refresher struct {
	fetch    FetchFunc
	interval time.Duration

	mu       sync.Mutex
	state    State
	issued   uint64
	applied  uint64
	current  model.Snapshot
	inflight map[uint64]*fetchCall
	subs     map[int]func(model.Snapshot)
	nextSub  int
	stop     context.CancelFunc
	done     chan struct{}

	notifyMu sync.Mutex
	notified uint64
}

func New(fetch FetchFunc, interval time.Duration) *Refresher {
	return &Refresher{
		fetch:    fetch,
		interval: interval,
		state:    StateIdle,
		inflight: make(map[uint64]*fetchCall),
		subs:     make(map[int]func(model.Snapshot)),
	}
}

// Start fetches immediately and then every interval until Stop is
// called or ctx is done.
func (r *Refresher) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.state == StatePolling {
		r.mu.Unlock()
		return ErrAlreadyPolling
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	r.state = StatePolling
	r.stop = cancel
	r.done = done
	r.mu.Unlock()

	go r.loop(ctx, done)
	return nil
}

func (r *Refresher) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	r.poll(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.poll(ctx)
		}
	}
}

func (r *Refresher) poll(ctx context.Context) {
	r.mu.Lock()
	// Stop cancels ctx under mu, so no fetch starts after it.
	if ctx.Err() != nil {
		r.mu.Unlock()
		return
	}
	call := r.joinLocked(ctx)
	r.mu.Unlock()

	if _, err := r.wait(ctx, call); err != nil && ctx.Err() == nil {
		zap.L().Warn("auction_poll_failed", zap.Error(err))
	}
}

// Stop cancels the polling loop and every in-flight fetch, and returns
// once the loop and those fetches have exited.
func (r *Refresher) Stop() {
	r.mu.Lock()
	if r.state != StatePolling {
		r.mu.Unlock()
		return
	}
	stop, done := r.stop, r.done
	stop()
	r.state = StateIdle
	r.stop = nil
	r.done = nil
	calls := make([]*fetchCall, 0, len(r.inflight))
	for _, c := range r.inflight {
		c.cancel()
		calls = append(calls, c)
	}
	r.mu.Unlock()

	<-done
	for _, c := range calls {
		<-c.done
	}
}

func (r *Refresher) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Snapshot returns the last applied snapshot; ok is false until the
// first fetch has landed.
func (r *Refresher) Snapshot() (model.Snapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current, r.applied > 0
}

// Seed installs a previously stored snapshot and moves the sequence
// counter past it.
func (r *Refresher) Seed(snap model.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if snap.Seq > r.issued {
		r.issued = snap.Seq
	}
	if snap.Seq > r.applied {
		r.applied = snap.Seq
		r.current = snap
	}
}

// Subscribe registers fn to receive every applied snapshot, in
// sequence order. The returned func removes it. fn runs on the
// fetching goroutine and must not call Refresh.
func (r *Refresher) Subscribe(fn func(model.Snapshot)) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextSub
	r.nextSub++
	r.subs[id] = fn
	return func() {
		r.mu.Lock()
		delete(r.subs, id)
		r.mu.Unlock()
	}
}

// Subscribers reports how many subscriptions are registered.
func (r *Refresher) Subscribers() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}

// Refresh returns a snapshot at least as fresh as the newest fetch in
// flight. Callers arriving while a fetch runs join it instead of
// issuing another, so read load never multiplies upstream calls.
func (r *Refresher) Refresh(ctx context.Context) (model.Snapshot, error) {
	r.mu.Lock()
	call := r.joinLocked(ctx)
	r.mu.Unlock()

	return r.wait(ctx, call)
}

// Reload issues a new fetch after a mutation and cancels older read
// fetches still in flight. Reloads never cancel each other; whichever
// lands last in sequence order wins.
func (r *Refresher) Reload(ctx context.Context) (model.Snapshot, error) {
	r.mu.Lock()
	call := r.startLocked(ctx, true)
	for seq, c := range r.inflight {
		if seq < call.seq && !c.reload && c.supersededBy == nil {
			c.supersededBy = call
			c.cancel()
		}
	}
	r.mu.Unlock()

	return r.wait(ctx, call)
}

func (r *Refresher) joinLocked(ctx context.Context) *fetchCall {
	if call := r.newestLocked(); call != nil {
		return call
	}
	return r.startLocked(ctx, false)
}

func (r *Refresher) newestLocked() *fetchCall {
	var newest *fetchCall
	for _, c := range r.inflight {
		if c.supersededBy == nil && (newest == nil || c.seq > newest.seq) {
			newest = c
		}
	}
	return newest
}

// startLocked runs a fetch detached from the caller's cancellation so
// that joined callers are not failed by the one that started it.
func (r *Refresher) startLocked(ctx context.Context, reload bool) *fetchCall {
	r.issued++
	fetchCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	call := &fetchCall{
		seq:    r.issued,
		reload: reload,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	r.inflight[call.seq] = call
	go r.run(fetchCtx, call)
	return call
}

func (r *Refresher) run(ctx context.Context, call *fetchCall) {
	snap, err := r.fetch(ctx)
	call.cancel()

	r.mu.Lock()
	delete(r.inflight, call.seq)
	var subs []func(model.Snapshot)
	if err == nil && call.seq > r.applied {
		snap.Seq = call.seq
		r.applied = call.seq
		r.current = snap
		subs = make([]func(model.Snapshot), 0, len(r.subs))
		for _, fn := range r.subs {
			subs = append(subs, fn)
		}
	}
	r.mu.Unlock()

	if subs != nil {
		r.notify(subs, snap)
	}
	call.err = err
	close(call.done)
}

func (r *Refresher) wait(ctx context.Context, call *fetchCall) (model.Snapshot, error) {
	superseded := false
	for {
		select {
		case <-call.done:
		case <-ctx.Done():
			return model.Snapshot{}, ctx.Err()
		}

		if call.err == nil {
			// Applied, or discarded because something newer was.
			r.mu.Lock()
			current := r.current
			r.mu.Unlock()
			return current, nil
		}
		if call.supersededBy == nil {
			if superseded {
				return model.Snapshot{}, ErrSuperseded
			}
			return model.Snapshot{}, call.err
		}
		superseded = true
		call = call.supersededBy
	}
}

func (r *Refresher) notify(subs []func(model.Snapshot), snap model.Snapshot) {
	r.notifyMu.Lock()
	defer r.notifyMu.Unlock()
	if snap.Seq <= r.notified {
		return
	}
	r.notified = snap.Seq
	for _, fn := range subs {
		fn(snap)
	}
}
