package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingSyncer struct {
	calls atomic.Int32
	ran   chan struct{}
}

func newCountingSyncer() *countingSyncer {
	return &countingSyncer{ran: make(chan struct{}, 16)}
}

func (s *countingSyncer) Sync(context.Context) Result {
	s.calls.Add(1)
	select {
	case s.ran <- struct{}{}:
	default:
	}
	return Result{Success: true, Message: MsgNoChanges}
}

type togglePinger struct {
	mu     sync.Mutex
	online bool
}

func (p *togglePinger) set(online bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.online = online
}

func (p *togglePinger) Ping(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.online {
		return errors.New("unreachable")
	}
	return nil
}

func startScheduler(t *testing.T, s *Scheduler) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		assert.ErrorIs(t, <-done, context.Canceled)
	})
}

func waitRun(t *testing.T, s *countingSyncer) {
	t.Helper()
	select {
	case <-s.ran:
	case <-time.After(2 * time.Second):
		t.Fatal("sync did not run")
	}
}

func TestScheduler_Trigger(t *testing.T) {
	syncer := newCountingSyncer()
	var results atomic.Int32
	s := NewScheduler(syncer,
		WithSchedulerLogger(discardLogger()),
		WithResultHandler(func(Result) { results.Add(1) }),
	)
	startScheduler(t, s)

	s.Trigger()
	waitRun(t, syncer)
	assert.Eventually(t, func() bool { return results.Load() == 1 }, time.Second, 5*time.Millisecond)
}

func TestScheduler_TriggerCoalesces(t *testing.T) {
	s := NewScheduler(newCountingSyncer(), WithSchedulerLogger(discardLogger()))

	// Not running: repeated triggers fill the single slot without blocking.
	for i := 0; i < 5; i++ {
		s.Trigger()
	}
	assert.Len(t, s.trigger, 1)
}

func TestScheduler_Interval(t *testing.T) {
	syncer := newCountingSyncer()
	s := NewScheduler(syncer,
		WithInterval(10*time.Millisecond),
		WithSchedulerLogger(discardLogger()),
	)
	startScheduler(t, s)

	waitRun(t, syncer)
	waitRun(t, syncer)
}

func TestScheduler_SetInterval(t *testing.T) {
	syncer := newCountingSyncer()
	s := NewScheduler(syncer, WithSchedulerLogger(discardLogger()))
	startScheduler(t, s)

	select {
	case <-syncer.ran:
		t.Fatal("no periodic sync expected before an interval is set")
	case <-time.After(30 * time.Millisecond):
	}

	s.SetInterval(10 * time.Millisecond)
	assert.Equal(t, 10*time.Millisecond, s.Interval())
	waitRun(t, syncer)
}

func TestScheduler_SyncsOnReconnect(t *testing.T) {
	syncer := newCountingSyncer()
	pinger := &togglePinger{}
	s := NewScheduler(syncer,
		WithInterval(5*time.Millisecond),
		WithProbe(pinger, 5*time.Millisecond),
		WithSchedulerLogger(discardLogger()),
	)
	startScheduler(t, s)

	// Offline: periodic runs are skipped.
	select {
	case <-syncer.ran:
		t.Fatal("sync ran while offline")
	case <-time.After(40 * time.Millisecond):
	}
	require.False(t, s.Online())

	pinger.set(true)
	waitRun(t, syncer)
	assert.Eventually(t, s.Online, time.Second, 5*time.Millisecond)
}
