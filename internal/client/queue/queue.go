// Package queue buffers state-changing actions that need connectivity but
// currently cannot reach the network, and replays them in order when the
// client comes back online.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/portphilio/portkeeper/internal/client/store"
	"github.com/portphilio/portkeeper/internal/common"
	"github.com/portphilio/portkeeper/internal/logging"
)

// ModuleName is the queue's key in the persisted snapshot.
const ModuleName = "queue"

// Item is a deferred action awaiting connectivity. Params hold the exact
// arguments of the deferred call, so replay is indistinguishable from a
// direct invocation. Error is set when a replay attempt fails; the item
// stays at the head of the queue until it succeeds or is resolved by hand.
type Item struct {
	ID     string          `json:"id"`
	Action string          `json:"action"`
	Params json.RawMessage `json:"params"`
	Error  string          `json:"error,omitempty"`
}

// Handler replays one deferred action.
type Handler func(ctx context.Context, params json.RawMessage) error

// ReplayError wraps the failure of a single item replay.
type ReplayError struct {
	Action string
	Err    error
}

func (e *ReplayError) Error() string {
	return fmt.Sprintf("replay of %s failed: %v", e.Action, e.Err)
}

func (e *ReplayError) Unwrap() error { return e.Err }

// Mutations.

type ItemAdded struct{ Item Item }
type ItemRemoved struct{ ID string }
type ErrorAttached struct{ Err string }
type Paused struct{}
type Resumed struct{}
type OnlineStatusSet struct{ Online bool }

func (ItemAdded) Module() string       { return ModuleName }
func (ItemAdded) Kind() string         { return "item_added" }
func (ItemRemoved) Module() string     { return ModuleName }
func (ItemRemoved) Kind() string       { return "item_removed" }
func (ErrorAttached) Module() string   { return ModuleName }
func (ErrorAttached) Kind() string     { return "error_attached" }
func (Paused) Module() string          { return ModuleName }
func (Paused) Kind() string            { return "paused" }
func (Resumed) Module() string         { return ModuleName }
func (Resumed) Kind() string           { return "resumed" }
func (OnlineStatusSet) Module() string { return ModuleName }
func (OnlineStatusSet) Kind() string   { return "online_status_set" }

type state struct {
	Items  []Item `json:"items"`
	Paused bool   `json:"paused"`
	Online bool   `json:"online"`
}

// Queue is the offline action queue. It is a store module: queued items
// and the paused flag survive restarts through the persisted snapshot.
type Queue struct {
	st  *store.Store
	log logging.Logger

	handlers map[string]Handler

	// guards drain passes; replay is strictly serial.
	drainMu  sync.Mutex
	draining bool

	state state
}

func New(st *store.Store, log logging.Logger) *Queue {
	return &Queue{
		st:       st,
		log:      log.With("component", "queue"),
		handlers: make(map[string]Handler),
	}
}

// Register binds an action name to its replay handler. Handlers must be
// registered before Drain can replay items carrying that action.
func (q *Queue) Register(action string, h Handler) {
	q.handlers[action] = h
}

// Name implements store.Module.
func (q *Queue) Name() string { return ModuleName }

// State implements store.Module.
func (q *Queue) State() any { return q.state }

// Restore implements store.Module. Queued items and the paused flag come
// back from the snapshot; the online flag always starts false and is owned
// by the connectivity monitor.
func (q *Queue) Restore(raw json.RawMessage) error {
	var st state
	if err := json.Unmarshal(raw, &st); err != nil {
		return err
	}
	st.Online = false
	q.state = st
	return nil
}

// Enqueue appends a deferred action to the FIFO. If the client currently
// believes it is online, the queue resumes (and drains) immediately.
func (q *Queue) Enqueue(ctx context.Context, action string, params any) error {
	raw, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("failed to encode params for %s: %w", action, err)
	}
	item := Item{ID: uuid.NewString(), Action: action, Params: raw}
	var online bool
	q.st.Commit(ItemAdded{Item: item}, func() {
		q.state.Items = append(q.state.Items, item)
		online = q.state.Online
	})
	q.log.Debug(ctx, "action queued", "action", action, "id", item.ID)
	if online {
		return q.Resume(ctx)
	}
	return nil
}

// Pause stops draining without discarding queued work.
func (q *Queue) Pause() {
	q.st.Commit(Paused{}, func() { q.state.Paused = true })
}

// Resume clears the paused flag and drains the queue.
func (q *Queue) Resume(ctx context.Context) error {
	q.st.Commit(Resumed{}, func() { q.state.Paused = false })
	return q.Drain(ctx)
}

// SetOnline records a connectivity transition: entering online resumes the
// queue, entering offline pauses it.
func (q *Queue) SetOnline(ctx context.Context, online bool) error {
	q.st.Commit(OnlineStatusSet{Online: online}, func() { q.state.Online = online })
	if online {
		return q.Resume(ctx)
	}
	q.Pause()
	return nil
}

// Online reports the last known connectivity status.
func (q *Queue) Online() bool {
	var online bool
	q.st.View(func() { online = q.state.Online })
	return online
}

// Items returns a copy of the queued items in FIFO order.
func (q *Queue) Items() []Item {
	var items []Item
	q.st.View(func() {
		items = make([]Item, len(q.state.Items))
		copy(items, q.state.Items)
	})
	return items
}

// InSync reports whether no deferred work is pending.
func (q *Queue) InSync() bool {
	var n int
	q.st.View(func() { n = len(q.state.Items) })
	return n == 0
}

// Drain replays queued items strictly in FIFO order, one at a time, until
// the queue empties, goes offline, or a replay fails. On failure the queue
// pauses, the error is attached to the head item, and the remaining items
// are left intact; nothing is ever skipped. A drain already in progress
// makes concurrent calls no-ops.
func (q *Queue) Drain(ctx context.Context) error {
	q.drainMu.Lock()
	if q.draining {
		q.drainMu.Unlock()
		return nil
	}
	q.draining = true
	q.drainMu.Unlock()
	defer func() {
		q.drainMu.Lock()
		q.draining = false
		q.drainMu.Unlock()
	}()

	for {
		var (
			head    Item
			hasHead bool
			stopped bool
		)
		q.st.View(func() {
			// re-check flags before each item; stop immediately if
			// connectivity was lost or someone paused us mid-drain
			if !q.state.Online || q.state.Paused {
				stopped = true
				return
			}
			if len(q.state.Items) == 0 {
				return
			}
			head = q.state.Items[0]
			hasHead = true
		})
		if stopped || !hasHead {
			return nil
		}

		h, ok := q.handlers[head.Action]
		var err error
		if !ok {
			err = fmt.Errorf("%w: %s", common.ErrUnknownAction, head.Action)
		} else {
			err = h(ctx, head.Params)
		}
		if err != nil {
			replayErr := &ReplayError{Action: head.Action, Err: err}
			q.st.Commit(Paused{}, func() { q.state.Paused = true })
			q.st.Commit(ErrorAttached{Err: replayErr.Error()}, func() {
				if len(q.state.Items) > 0 {
					q.state.Items[0].Error = replayErr.Error()
				}
			})
			q.log.Error(ctx, "queue drain halted", "action", head.Action, "error", err)
			return replayErr
		}

		q.st.Commit(ItemRemoved{ID: head.ID}, func() {
			// remove on a copy; exactly the head comes off
			items := make([]Item, len(q.state.Items)-1)
			copy(items, q.state.Items[1:])
			q.state.Items = items
		})
		q.log.Debug(ctx, "queued action replayed", "action", head.Action, "id", head.ID)
	}
}
