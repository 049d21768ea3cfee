package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/wardsync/internal/meta"
	"github.com/roach88/wardsync/internal/model"
	"github.com/roach88/wardsync/internal/queue"
	"github.com/roach88/wardsync/internal/remote"
	"github.com/roach88/wardsync/internal/resolve"
	"github.com/roach88/wardsync/internal/store"
	"github.com/roach88/wardsync/internal/synclog"
)

// Summary messages returned by Sync.
const (
	MsgInProgress = "Sync already in progress"
	MsgNoChanges  = "No changes to sync"
)

// DefaultConcurrency bounds the number of entities dispatched at once.
const DefaultConcurrency = 8

// Remote is the authority a run talks to: it replays queued mutations and
// serves conflict resolution. Implemented by remote.Client.
type Remote interface {
	remote.Transport
	resolve.Authority
}

// Engine is the Sync Orchestrator.
//
// Thread-safety model:
//   - Sync(): safe from any goroutine; overlapping calls are rejected by
//     the persisted lease, not queued
//   - Record(), Status(): safe from any goroutine
type Engine struct {
	store     store.Store
	transport remote.Transport
	queue     *queue.Queue
	meta      *meta.Tracker
	log       *synclog.Log
	resolver  *resolve.Resolver

	clock       model.Clock
	ids         model.IDGenerator
	logger      *slog.Logger
	concurrency int
	leaseTTL    time.Duration
	quota       attemptQuota
	policies    []resolve.Option
}

// Option allows configuration of engine parameters.
type Option func(*Engine)

// WithConcurrency sets how many entities are dispatched in parallel.
//
// Default: 8 (DefaultConcurrency)
// Use WithConcurrency(1) for fully sequential, deterministic runs.
func WithConcurrency(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// WithLeaseTTL sets how long a run's lease survives without renewal.
func WithLeaseTTL(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.leaseTTL = d
		}
	}
}

// WithMaxAttempts sets the transient-failure budget per mutation.
// Zero disables dead-lettering of transient failures.
func WithMaxAttempts(n int) Option {
	return func(e *Engine) {
		if n >= 0 {
			e.quota.maxAttempts = n
		}
	}
}

// WithClock sets the wall clock.
func WithClock(c model.Clock) Option {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithIDs sets the generator for mutation ids, log entry ids and lease owners.
func WithIDs(g model.IDGenerator) Option {
	return func(e *Engine) {
		e.ids = g
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithMergePolicy overrides the conflict merge function for one entity type.
func WithMergePolicy(t model.EntityType, fn resolve.MergeFunc) Option {
	return func(e *Engine) {
		e.policies = append(e.policies, resolve.WithPolicy(t, fn))
	}
}

// New creates an Engine over the local store s and the authority r.
func New(s store.Store, r Remote, opts ...Option) *Engine {
	e := &Engine{
		store:       s,
		transport:   r,
		clock:       model.SystemClock{},
		ids:         model.UUIDv7Generator{},
		logger:      slog.Default(),
		concurrency: DefaultConcurrency,
		leaseTTL:    meta.DefaultLeaseTTL,
		quota:       attemptQuota{maxAttempts: DefaultMaxAttempts},
	}

	for _, opt := range opts {
		opt(e)
	}

	e.queue = queue.New(s, queue.WithClock(e.clock), queue.WithIDs(e.ids))
	e.meta = meta.New(s)
	e.log = synclog.New(s, synclog.WithClock(e.clock), synclog.WithIDs(e.ids))
	e.resolver = resolve.New(s, r, e.log, append([]resolve.Option{resolve.WithLogger(e.logger)}, e.policies...)...)
	return e
}

// Queue returns the engine's Pending Mutation Queue.
func (e *Engine) Queue() *queue.Queue { return e.queue }

// Log returns the engine's Sync Log.
func (e *Engine) Log() *synclog.Log { return e.log }

// Meta returns the engine's metadata tracker.
func (e *Engine) Meta() *meta.Tracker { return e.meta }

// Sync runs one drain-and-reconcile pass.
//
// Sync never fails: every problem is reported through Result and the Sync
// Log. A caller wanting a deadline should bound ctx or the transport.
func (e *Engine) Sync(ctx context.Context) (res Result) {
	// Bookkeeping outlives ctx so a cancelled run still releases its lease.
	bookkeeping := context.WithoutCancel(ctx)

	var (
		owner    string
		acquired bool
	)
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("sync run panicked", "panic", r)
			if acquired {
				e.release(bookkeeping, owner, model.MetadataPatch{})
			}
			res = Result{Success: false, Message: fmt.Sprintf("Sync failed: %v", r)}
		}
	}()

	owner = e.ids.Generate()
	acquired, prev, err := e.meta.Acquire(bookkeeping, owner, e.clock.Now(), e.leaseTTL)
	if err != nil {
		e.logger.Error("failed to acquire sync lease", "error", err)
		return Result{Success: false, Message: fmt.Sprintf("Sync failed: %v", err)}
	}
	if !acquired {
		e.logger.Debug("sync skipped, another run holds the lease",
			"lease_owner", prev.LeaseOwner,
		)
		return Result{Success: false, Message: MsgInProgress}
	}
	if prev.SyncInProgress {
		e.logger.Warn("reclaimed stale sync lease",
			"previous_owner", prev.LeaseOwner,
			"owner", owner,
		)
	}

	mutations, err := e.queue.All(bookkeeping)
	if err != nil {
		e.logger.Error("failed to read pending mutations", "error", err)
		e.release(bookkeeping, owner, model.MetadataPatch{})
		return Result{Success: false, Message: fmt.Sprintf("Sync failed: %v", err)}
	}

	initial := len(mutations)
	if _, err := e.meta.Update(bookkeeping, model.MetadataPatch{PendingChanges: &initial}); err != nil {
		e.logger.Warn("failed to record pending changes", "error", err)
	}

	if initial == 0 {
		now := e.clock.Now()
		zero := 0
		e.release(bookkeeping, owner, model.MetadataPatch{LastSyncTime: &now, PendingChanges: &zero})
		return Result{Success: true, Message: MsgNoChanges}
	}

	e.logger.Info("sync started", "owner", owner, "pending", initial)

	stop := e.keepLeaseAlive(bookkeeping, owner)
	outcomes := e.dispatch(ctx, mutations)
	stop()

	res = summarize(outcomes)

	remaining := initial
	for _, o := range outcomes {
		if o.Removed {
			remaining--
		}
	}
	now := e.clock.Now()
	e.release(bookkeeping, owner, model.MetadataPatch{LastSyncTime: &now, PendingChanges: &remaining})

	e.logger.Info("sync completed",
		"owner", owner,
		"succeeded", res.Succeeded,
		"conflicts", res.Conflicts,
		"failed", res.Failed,
		"remaining", remaining,
	)
	return res
}

// release drops the lease, logging instead of failing.
func (e *Engine) release(ctx context.Context, owner string, patch model.MetadataPatch) {
	if _, err := e.meta.Release(ctx, owner, patch); err != nil {
		e.logger.Error("failed to release sync lease", "owner", owner, "error", err)
	}
}

// minRenewPeriod bounds how often a run rewrites its lease.
const minRenewPeriod = time.Millisecond

// keepLeaseAlive renews the lease every third of its TTL until stop is
// called.
func (e *Engine) keepLeaseAlive(ctx context.Context, owner string) (stop func()) {
	done := make(chan struct{})
	finished := make(chan struct{})

	go func() {
		defer close(finished)
		ticker := time.NewTicker(max(e.leaseTTL/3, minRenewPeriod))
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := e.meta.Renew(ctx, owner, e.clock.Now(), e.leaseTTL); err != nil {
					e.logger.Warn("failed to renew sync lease", "owner", owner, "error", err)
				}
			}
		}
	}()

	return func() {
		close(done)
		<-finished
	}
}

// Status reports the sync bookkeeping for display.
type Status struct {
	Metadata    model.SyncMetadata `json:"metadata"`
	Queued      int                `json:"queued"`
	DeadLetters int                `json:"deadLetters"`
}

// Status returns the metadata together with live queue counts.
func (e *Engine) Status(ctx context.Context) (Status, error) {
	m, err := e.meta.Get(ctx)
	if err != nil {
		return Status{}, err
	}
	queued, err := e.queue.Len(ctx)
	if err != nil {
		return Status{}, err
	}
	dls, err := e.queue.DeadLetters(ctx)
	if err != nil {
		return Status{}, err
	}
	return Status{Metadata: m, Queued: queued, DeadLetters: len(dls)}, nil
}
