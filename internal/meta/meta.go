// Package meta owns the singleton SyncMetadata record.
//
// The record doubles as the run gate. A run acquires a lease before touching
// the queue and releases it when done; Acquire refuses while another
// unexpired lease is held. Because the gate is persisted, a crash mid-run
// leaves a lease that becomes reclaimable once it expires.
//
// No other component writes the metadata record.
package meta

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/roach88/wardsync/internal/model"
	"github.com/roach88/wardsync/internal/store"
)

// DefaultLeaseTTL is used when Acquire is given a non-positive ttl.
const DefaultLeaseTTL = 5 * time.Minute

// ErrLeaseLost is returned by Renew and Release when the caller no longer
// holds the lease.
var ErrLeaseLost = errors.New("sync lease is held by another run")

// Tracker reads and writes SyncMetadata.
//
// Thread-safety: every read-modify-write runs under one mutex and, on a
// store implementing store.Atomic, inside one transaction. Acquire is
// therefore atomic within a process and across processes sharing a SQLite
// file.
type Tracker struct {
	mu    sync.Mutex
	store store.Store
}

// New creates a tracker over s.
func New(s store.Store) *Tracker {
	return &Tracker{store: s}
}

// Get returns the metadata, creating and persisting a zero record on first
// use.
func (t *Tracker) Get(ctx context.Context) (m model.SyncMetadata, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	err = store.Atomically(ctx, t.store, func(s store.Store) error {
		m, err = load(ctx, s)
		return err
	})
	return m, err
}

// Update applies patch with a read-merge-write and returns the result.
func (t *Tracker) Update(ctx context.Context, patch model.MetadataPatch) (model.SyncMetadata, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var m model.SyncMetadata
	err := store.Atomically(ctx, t.store, func(s store.Store) error {
		cur, err := load(ctx, s)
		if err != nil {
			return err
		}
		m = patch.Apply(cur)
		return save(ctx, s, m)
	})
	if err != nil {
		return model.SyncMetadata{}, err
	}
	return m, nil
}

// Acquire takes the run gate for owner until now+ttl.
//
// It returns acquired=false, with no write, when another lease is still
// live. prev is the record observed before acquisition; a caller can inspect
// prev.LeaseOwner to see whether a stale lease was reclaimed.
func (t *Tracker) Acquire(ctx context.Context, owner string, now time.Time, ttl time.Duration) (acquired bool, prev model.SyncMetadata, err error) {
	if ttl <= 0 {
		ttl = DefaultLeaseTTL
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	err = store.Atomically(ctx, t.store, func(s store.Store) error {
		cur, err := load(ctx, s)
		if err != nil {
			return err
		}
		prev = cur
		if !cur.LeaseExpired(now) {
			return nil
		}

		inProgress := true
		expires := now.Add(ttl)
		m := model.MetadataPatch{
			SyncInProgress: &inProgress,
			LeaseOwner:     &owner,
			LeaseExpiresAt: &expires,
		}.Apply(cur)
		if err := save(ctx, s, m); err != nil {
			return err
		}
		acquired = true
		return nil
	})
	if err != nil {
		return false, prev, err
	}
	return acquired, prev, nil
}

// Renew extends owner's lease to now+ttl.
func (t *Tracker) Renew(ctx context.Context, owner string, now time.Time, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultLeaseTTL
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	return store.Atomically(ctx, t.store, func(s store.Store) error {
		m, err := load(ctx, s)
		if err != nil {
			return err
		}
		if !m.SyncInProgress || m.LeaseOwner != owner {
			return ErrLeaseLost
		}
		expires := now.Add(ttl)
		m.LeaseExpiresAt = &expires
		return save(ctx, s, m)
	})
}

// Release clears owner's lease and applies patch in the same write.
// If the lease was reclaimed by another run nothing is written.
func (t *Tracker) Release(ctx context.Context, owner string, patch model.MetadataPatch) (model.SyncMetadata, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var m model.SyncMetadata
	err := store.Atomically(ctx, t.store, func(s store.Store) error {
		cur, err := load(ctx, s)
		if err != nil {
			return err
		}
		if cur.SyncInProgress && cur.LeaseOwner != owner {
			m = cur
			return ErrLeaseLost
		}

		done := false
		patch.SyncInProgress = &done
		patch.ClearLease = true
		m = patch.Apply(cur)
		return save(ctx, s, m)
	})
	switch {
	case errors.Is(err, ErrLeaseLost):
		return m, err
	case err != nil:
		return model.SyncMetadata{}, err
	}
	return m, nil
}

// load reads the record, persisting the zero value if absent.
func load(ctx context.Context, s store.Store) (model.SyncMetadata, error) {
	m, ok, err := store.GetJSON[model.SyncMetadata](ctx, s, model.CollectionMetadata, model.MetadataKey)
	if err != nil {
		return model.SyncMetadata{}, fmt.Errorf("read sync metadata: %w", err)
	}
	if ok {
		return m, nil
	}
	m = model.SyncMetadata{}
	if err := save(ctx, s, m); err != nil {
		return model.SyncMetadata{}, err
	}
	return m, nil
}

func save(ctx context.Context, s store.Store, m model.SyncMetadata) error {
	if err := store.SetJSON(ctx, s, model.CollectionMetadata, model.MetadataKey, m); err != nil {
		return fmt.Errorf("write sync metadata: %w", err)
	}
	return nil
}
