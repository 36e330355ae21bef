// Package persistence persists the application state to durable storage
// and restores it at boot.
//
// The whole state is serialized under a single key after every committed
// mutation. Writes are fire-and-forget but strictly ordered: each write is
// enqueued and a single drain loop processes one write at a time, so a
// stale write can never overwrite a newer one. Durability is best-effort;
// a failed write is logged and the in-memory state stays authoritative.
package persistence

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/portphilio/portkeeper/internal/client/repositories/snapshots"
	"github.com/portphilio/portkeeper/internal/client/store"
	"github.com/portphilio/portkeeper/internal/common"
	"github.com/portphilio/portkeeper/internal/logging"
)

// Option configures an Engine.
type Option func(*Engine)

// WithKey overrides the durable-storage key.
func WithKey(key string) Option {
	return func(e *Engine) { e.key = key }
}

// WithExclude names store modules that are left out of the persisted
// snapshot.
func WithExclude(modules ...string) Option {
	return func(e *Engine) {
		for _, m := range modules {
			e.exclude[m] = true
		}
	}
}

// Engine owns the rehydration protocol and the ordered persist path.
type Engine struct {
	repo snapshots.Repository
	st   *store.Store
	log  logging.Logger

	key     string
	exclude map[string]bool

	ready     chan struct{}
	readyOnce sync.Once

	mu       sync.Mutex
	idle     *sync.Cond
	pending  [][]byte
	flushing bool
	// highest commit sequence enqueued so far; anything at or below it
	// is stale and never reaches durable storage
	maxSeq uint64
}

func New(repo snapshots.Repository, st *store.Store, log logging.Logger, opts ...Option) *Engine {
	e := &Engine{
		repo:    repo,
		st:      st,
		log:     log.With("component", "persistence"),
		key:     common.SnapshotKey,
		exclude: make(map[string]bool),
		ready:   make(chan struct{}),
	}
	e.idle = sync.NewCond(&e.mu)
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start restores the persisted snapshot into the store, marks readiness,
// and subscribes to commits so every later state transition is persisted.
// The subscription is registered after the restore, so rehydration itself
// is never written back.
//
// Start never fails the boot on bad persisted data: a missing or malformed
// snapshot is treated as empty.
func (e *Engine) Start(ctx context.Context) error {
	snap, err := e.load(ctx)
	if err != nil {
		e.log.Warn(ctx, "snapshot unreadable, starting empty", "error", err)
		snap = nil
	}
	if len(snap) > 0 {
		if err := e.st.Restore(snap); err != nil {
			e.log.Warn(ctx, "partial snapshot restore", "error", err)
		}
	}

	e.markReady()

	// Writes run on their own context: a cancelled boot context (shutdown
	// signal) must not fail the writes Flush still waits for.
	writeCtx := context.WithoutCancel(ctx)
	e.st.Subscribe(func(m store.Mutation, snap store.Snapshot, seq uint64) {
		e.persist(writeCtx, snap, seq)
	})
	return nil
}

func (e *Engine) load(ctx context.Context) (store.Snapshot, error) {
	raw, err := e.repo.Get(ctx, e.key)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, nil
	}
	var snap store.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, err
	}
	return snap, nil
}

func (e *Engine) markReady() {
	e.readyOnce.Do(func() { close(e.ready) })
}

// Ready returns a channel closed exactly once, after the restored snapshot
// has been merged into live state. Waiters that subscribe after the
// transition proceed immediately.
func (e *Engine) Ready() <-chan struct{} { return e.ready }

// Wait blocks until storage is ready or the context is done.
func (e *Engine) Wait(ctx context.Context) error {
	select {
	case <-e.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// persist serializes the snapshot and enqueues it on the single-consumer
// write queue. Concurrent commits may deliver notifications out of
// order, so enqueued snapshots are gated by their commit sequence: one
// older than the newest already enqueued is dropped, never written. The
// pending queue is therefore strictly increasing and the drain loop
// cannot land a stale state on top of a newer one.
func (e *Engine) persist(ctx context.Context, snap store.Snapshot, seq uint64) {
	if len(e.exclude) > 0 {
		filtered := make(store.Snapshot, len(snap))
		for k, v := range snap {
			if !e.exclude[k] {
				filtered[k] = v
			}
		}
		snap = filtered
	}
	data, err := json.Marshal(snap)
	if err != nil {
		e.log.Error(ctx, "snapshot serialization failed", "error", err)
		return
	}

	e.mu.Lock()
	if seq <= e.maxSeq {
		e.mu.Unlock()
		return
	}
	e.maxSeq = seq
	e.pending = append(e.pending, data)
	if e.flushing {
		e.mu.Unlock()
		return
	}
	e.flushing = true
	e.mu.Unlock()

	go e.flush(ctx)
}

// flush drains the write queue one item at a time until it empties.
func (e *Engine) flush(ctx context.Context) {
	for {
		e.mu.Lock()
		if len(e.pending) == 0 {
			e.flushing = false
			e.idle.Broadcast()
			e.mu.Unlock()
			return
		}
		data := e.pending[0]
		e.pending = e.pending[1:]
		e.mu.Unlock()

		if err := e.repo.Set(ctx, e.key, data); err != nil {
			// no retry; the live state remains the source of truth
			e.log.Error(ctx, "snapshot write failed", "error", err)
		}
	}
}

// Flush blocks until all currently queued writes have been attempted.
// Intended for shutdown and tests.
func (e *Engine) Flush() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for e.flushing || len(e.pending) > 0 {
		e.idle.Wait()
	}
}
