package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Syncer runs one sync pass. Implemented by Engine.
type Syncer interface {
	Sync(ctx context.Context) Result
}

// Pinger probes connectivity to the authority. Implemented by remote.Client.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Scheduler invokes Sync on an interval, on demand and when connectivity
// returns.
//
// Triggers are coalesced: any number of Trigger calls made while a run is
// in progress result in at most one follow-up run.
//
// Thread-safety model:
//   - Trigger(), SetInterval(): safe from any goroutine
//   - Run(): must be called from exactly one goroutine
type Scheduler struct {
	syncer   Syncer
	pinger   Pinger
	logger   *slog.Logger
	onResult func(Result)

	mu            sync.Mutex
	interval      time.Duration
	probeInterval time.Duration
	online        bool

	trigger chan struct{} // Signals a requested run (buffered, size 1)
	reset   chan struct{} // Signals an interval change (buffered, size 1)
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithInterval sets the periodic sync interval. Zero disables periodic runs.
func WithInterval(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		s.interval = d
	}
}

// WithProbe enables reconnect detection: p is pinged every d, and a
// transition from unreachable to reachable triggers a run. While the last
// probe failed, periodic runs are skipped.
func WithProbe(p Pinger, d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		s.pinger = p
		s.probeInterval = d
	}
}

// WithResultHandler registers a callback invoked after every run.
func WithResultHandler(fn func(Result)) SchedulerOption {
	return func(s *Scheduler) {
		s.onResult = fn
	}
}

// WithSchedulerLogger sets the logger.
func WithSchedulerLogger(l *slog.Logger) SchedulerOption {
	return func(s *Scheduler) {
		s.logger = l
	}
}

// NewScheduler creates a scheduler for syncer.
func NewScheduler(syncer Syncer, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		syncer:  syncer,
		logger:  slog.Default(),
		online:  true,
		trigger: make(chan struct{}, 1),
		reset:   make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.pinger != nil {
		// Unknown until the first probe; a reachable first probe counts as
		// a reconnect and syncs right away.
		s.online = false
	}
	return s
}

// Trigger requests a run as soon as possible.
// Non-blocking: a pending request absorbs further ones.
func (s *Scheduler) Trigger() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// SetInterval changes the periodic interval; the running loop picks it up
// immediately.
func (s *Scheduler) SetInterval(d time.Duration) {
	s.mu.Lock()
	s.interval = d
	s.mu.Unlock()

	select {
	case s.reset <- struct{}{}:
	default:
	}
}

// Interval returns the current periodic interval.
func (s *Scheduler) Interval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interval
}

// Online reports the result of the most recent probe.
func (s *Scheduler) Online() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.online
}

// Run blocks, running syncs until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler starting",
		"interval", s.Interval(),
		"probe_interval", s.probeInterval,
	)

	periodic := newOptionalTicker(s.Interval())
	defer func() { periodic.Stop() }()

	probe := newOptionalTicker(0)
	if s.pinger != nil {
		probe = newOptionalTicker(s.probeInterval)
		s.checkConnectivity(ctx)
	}
	defer probe.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopping")
			return ctx.Err()

		case <-s.trigger:
			s.run(ctx, "trigger")

		case <-s.reset:
			periodic.Stop()
			periodic = newOptionalTicker(s.Interval())

		case <-periodic.C():
			if !s.Online() {
				s.logger.Debug("skipping periodic sync while offline")
				continue
			}
			s.run(ctx, "interval")

		case <-probe.C():
			s.checkConnectivity(ctx)
		}
	}
}

// checkConnectivity pings the authority and runs a sync on reconnect.
func (s *Scheduler) checkConnectivity(ctx context.Context) {
	err := s.pinger.Ping(ctx)

	s.mu.Lock()
	was := s.online
	s.online = err == nil
	s.mu.Unlock()

	switch {
	case err != nil && was:
		s.logger.Warn("authority unreachable", "error", err)
	case err == nil && !was:
		s.logger.Info("connectivity restored")
		s.run(ctx, "reconnect")
	}
}

func (s *Scheduler) run(ctx context.Context, reason string) {
	res := s.syncer.Sync(ctx)
	s.logger.Debug("scheduled sync finished",
		"reason", reason,
		"success", res.Success,
		"message", res.Message,
	)
	if s.onResult != nil {
		s.onResult(res)
	}
}

// optionalTicker is a time.Ticker whose zero period never fires.
type optionalTicker struct {
	t *time.Ticker
}

func newOptionalTicker(d time.Duration) optionalTicker {
	if d <= 0 {
		return optionalTicker{}
	}
	return optionalTicker{t: time.NewTicker(d)}
}

// C returns the tick channel, or nil (blocks forever) when disabled.
func (o optionalTicker) C() <-chan time.Time {
	if o.t == nil {
		return nil
	}
	return o.t.C
}

func (o optionalTicker) Stop() {
	if o.t != nil {
		o.t.Stop()
	}
}
