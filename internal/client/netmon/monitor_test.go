package netmon

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/portphilio/portkeeper/internal/logging"
)

type fakeChecker struct {
	err error
	n   int
}

func (f *fakeChecker) Health(_ context.Context) error {
	f.n++
	return f.err
}

type fakeSink struct {
	online      bool
	transitions []bool
	err         error
}

func (f *fakeSink) Online() bool { return f.online }

func (f *fakeSink) SetOnline(_ context.Context, online bool) error {
	f.online = online
	f.transitions = append(f.transitions, online)
	return f.err
}

func TestCheckFlipsOnlineWhenHealthy(t *testing.T) {
	checker := &fakeChecker{}
	sink := &fakeSink{}
	m := New(checker, sink, time.Second, time.Second, logging.NewNopLogger())

	m.Check(context.Background())
	assert.Equal(t, []bool{true}, sink.transitions)
}

func TestCheckFlipsOfflineWhenProbeFails(t *testing.T) {
	checker := &fakeChecker{}
	sink := &fakeSink{online: true}
	m := New(checker, sink, time.Second, time.Second, logging.NewNopLogger())

	checker.err = errors.New("connection refused")
	m.Check(context.Background())
	assert.Equal(t, []bool{false}, sink.transitions)
}

func TestCheckSkipsSinkWhenStatusUnchanged(t *testing.T) {
	checker := &fakeChecker{}
	sink := &fakeSink{online: true}
	m := New(checker, sink, time.Second, time.Second, logging.NewNopLogger())

	m.Check(context.Background())
	m.Check(context.Background())
	assert.Empty(t, sink.transitions)
	assert.Equal(t, 2, checker.n)
}

func TestCheckToleratesSinkError(t *testing.T) {
	// a failed drain while coming online must not prevent the status flip
	checker := &fakeChecker{}
	sink := &fakeSink{err: errors.New("replay failed")}
	m := New(checker, sink, time.Second, time.Second, logging.NewNopLogger())

	m.Check(context.Background())
	assert.True(t, sink.online)
}

func TestRunPollsUntilCancelled(t *testing.T) {
	checker := &fakeChecker{}
	sink := &fakeSink{}
	m := New(checker, sink, 5*time.Millisecond, time.Second, logging.NewNopLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return checker.n >= 3 }, time.Second, time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("monitor did not stop after cancel")
	}
}
