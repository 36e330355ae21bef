package routeguard

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/portphilio/portkeeper/internal/common"
	"github.com/portphilio/portkeeper/internal/logging"
)

type fakeReadiness struct {
	ch chan struct{}
}

func newFakeReadiness() *fakeReadiness {
	return &fakeReadiness{ch: make(chan struct{})}
}

func (f *fakeReadiness) Wait(ctx context.Context) error {
	select {
	case <-f.ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type fakeEnsurer struct {
	err   error
	calls int
}

func (f *fakeEnsurer) EnsureSession(_ context.Context) error {
	f.calls++
	return f.err
}

func TestPublicRouteSkipsSessionCheck(t *testing.T) {
	ready := newFakeReadiness()
	close(ready.ch)
	ensurer := &fakeEnsurer{err: errors.New("should not be called")}
	g := New(ready, ensurer, logging.NewNopLogger())

	require.NoError(t, g.Allow(context.Background(), Route{Name: "home"}))
	assert.Zero(t, ensurer.calls)
}

func TestProtectedRouteNeedsValidSession(t *testing.T) {
	ready := newFakeReadiness()
	close(ready.ch)
	ensurer := &fakeEnsurer{}
	g := New(ready, ensurer, logging.NewNopLogger())

	require.NoError(t, g.Allow(context.Background(), Route{Name: "portfolio", RequiresAuth: true}))
	assert.Equal(t, 1, ensurer.calls)
}

func TestProtectedRouteBlockedWithoutSession(t *testing.T) {
	ready := newFakeReadiness()
	close(ready.ch)
	ensurer := &fakeEnsurer{err: common.ErrNoSession}
	g := New(ready, ensurer, logging.NewNopLogger())

	err := g.Allow(context.Background(), Route{Name: "portfolio", RequiresAuth: true})
	assert.ErrorIs(t, err, common.ErrNoSession)
}

func TestAllowWaitsForRehydration(t *testing.T) {
	ready := newFakeReadiness()
	ensurer := &fakeEnsurer{}
	g := New(ready, ensurer, logging.NewNopLogger())

	done := make(chan error, 1)
	go func() {
		done <- g.Allow(context.Background(), Route{Name: "home"})
	}()

	select {
	case <-done:
		t.Fatal("navigation proceeded before rehydration")
	case <-time.After(20 * time.Millisecond):
	}

	close(ready.ch)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("navigation still blocked after rehydration")
	}
}

func TestAllowHonorsContextWhileWaiting(t *testing.T) {
	ready := newFakeReadiness()
	g := New(ready, &fakeEnsurer{}, logging.NewNopLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := g.Allow(ctx, Route{Name: "home"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
