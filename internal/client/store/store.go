// Package store implements the application state container: a registry of
// named modules, each owning one top-level key of the persisted snapshot
// and a closed set of typed mutations.
//
// All state transitions go through Commit, which serializes writers and
// notifies subscribers with the committed mutation and a snapshot of the
// full state. Cross-module coordination happens only through subscriptions;
// modules never reach into each other's state directly.
package store

import (
	"encoding/json"
	"fmt"
	"sync"
)

// Mutation is a committed state transition. Every module defines its own
// closed set of mutation types; subscribers type-switch on them.
type Mutation interface {
	// Module returns the name of the module the mutation belongs to.
	Module() string
	// Kind returns the mutation kind, unique within the module.
	Kind() string
}

// Module owns one top-level key of the persisted snapshot.
type Module interface {
	// Name returns the module's snapshot key.
	Name() string
	// State returns the module's current serializable state tree.
	// Called under the store lock; implementations must not block.
	State() any
	// Restore rehydrates the module from a restored snapshot value,
	// replacing defaults with the snapshot's value. Modules that need
	// typed reconstruction (e.g. keyed records) do it here.
	Restore(raw json.RawMessage) error
}

// Snapshot is a serializable projection of the whole application state,
// keyed by module name.
type Snapshot map[string]json.RawMessage

// Restored is the single mutation through which a restored snapshot is
// merged into live state at boot.
type Restored struct{}

func (Restored) Module() string { return "store" }
func (Restored) Kind() string   { return "restore" }

// Subscriber is notified after each committed mutation with the snapshot
// reflecting the state after that mutation and the commit's sequence
// number. Notification happens outside the store lock, so concurrent
// commits may deliver out of order; seq is assigned under the lock and
// lets ordering-sensitive subscribers (the persistence engine) discard
// anything older than what they already saw. A subscriber may commit
// follow-up mutations; it must not do so unconditionally or the commit
// chain never terminates.
type Subscriber func(m Mutation, snap Snapshot, seq uint64)

// Store is the single shared state container.
type Store struct {
	mu      sync.Mutex
	order   []string
	modules map[string]Module
	subs    []Subscriber
	seq     uint64

	// snapshot keys restored at boot for which no module is registered;
	// carried through so a later version's state is not silently dropped.
	orphans map[string]json.RawMessage
}

func New() *Store {
	return &Store{
		modules: make(map[string]Module),
		orphans: make(map[string]json.RawMessage),
	}
}

// Register adds a module to the store. Registering two modules under the
// same name is a programming error.
func (s *Store) Register(m Module) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.modules[m.Name()]; ok {
		return fmt.Errorf("module %q already registered", m.Name())
	}
	s.modules[m.Name()] = m
	s.order = append(s.order, m.Name())
	delete(s.orphans, m.Name())
	return nil
}

// Subscribe registers fn to be called after every committed mutation.
func (s *Store) Subscribe(fn Subscriber) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs = append(s.subs, fn)
}

// Commit applies a state transition atomically. The apply function runs
// under the store lock, where the post-mutation snapshot is taken and
// stamped with the next sequence number; subscribers are then notified
// outside the lock with the mutation, the snapshot, and its sequence.
func (s *Store) Commit(m Mutation, apply func()) {
	s.mu.Lock()
	apply()
	s.seq++
	seq := s.seq
	snap := s.snapshotLocked()
	subs := make([]Subscriber, len(s.subs))
	copy(subs, s.subs)
	s.mu.Unlock()

	for _, fn := range subs {
		fn(m, snap, seq)
	}
}

// View runs fn under the store lock for consistent reads across modules.
func (s *Store) View(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn()
}

// Snapshot returns the current full snapshot.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() Snapshot {
	snap := make(Snapshot, len(s.modules)+len(s.orphans))
	for _, name := range s.order {
		raw, err := json.Marshal(s.modules[name].State())
		if err != nil {
			// Module state trees are plain serializable values; an error
			// here means a module broke that contract. Skip the key so
			// the rest of the snapshot stays usable.
			continue
		}
		snap[name] = raw
	}
	for name, raw := range s.orphans {
		snap[name] = raw
	}
	return snap
}

// Restore merges a restored snapshot into live state: module keys present
// in the snapshot override defaults wholesale (via each module's Restore),
// modules missing from the snapshot keep their initial state, and unknown
// keys are retained as orphans. Per-module restore errors leave that
// module at its defaults; they are collected and returned but never abort
// the merge.
func (s *Store) Restore(snap Snapshot) error {
	var errs []error
	s.Commit(Restored{}, func() {
		for name, raw := range snap {
			mod, ok := s.modules[name]
			if !ok {
				s.orphans[name] = raw
				continue
			}
			if err := mod.Restore(raw); err != nil {
				errs = append(errs, fmt.Errorf("restore module %q: %w", name, err))
			}
		}
	})
	if len(errs) > 0 {
		return fmt.Errorf("restore completed with %d module error(s): %w", len(errs), errs[0])
	}
	return nil
}
