// Package queue implements the Pending Mutation Queue: the ordered set of
// local writes not yet confirmed by the server.
//
// The queue lives in the Local Store under model.CollectionPending and is
// the single source of truth for outstanding writes. Mutations that cannot
// succeed by plain retry are moved to model.CollectionDeadLetter together
// with their attempt history.
package queue

import (
	"context"
	"errors"
	"fmt"
	"maps"

	"github.com/roach88/wardsync/internal/model"
	"github.com/roach88/wardsync/internal/store"
)

// ErrNotFound is returned by Requeue for an unknown dead letter.
var ErrNotFound = errors.New("mutation not found")

// Queue is the Pending Mutation Queue.
//
// Thread-safety: safe for concurrent use as long as the underlying Store is.
type Queue struct {
	store store.Store
	clock model.Clock
	ids   model.IDGenerator
}

// Option configures a Queue.
type Option func(*Queue)

// WithClock sets the clock used for mutation timestamps.
func WithClock(c model.Clock) Option {
	return func(q *Queue) {
		q.clock = c
	}
}

// WithIDs sets the mutation id generator.
func WithIDs(g model.IDGenerator) Option {
	return func(q *Queue) {
		q.ids = g
	}
}

// New creates a queue over s.
func New(s store.Store, opts ...Option) *Queue {
	q := &Queue{
		store: s,
		clock: model.SystemClock{},
		ids:   model.UUIDv7Generator{},
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue appends m with a freshly generated id and the current timestamp.
// Any ID or Timestamp already set on m is replaced.
func (q *Queue) Enqueue(ctx context.Context, m model.PendingMutation) (model.PendingMutation, error) {
	if !m.EntityType.Valid() {
		return model.PendingMutation{}, fmt.Errorf("enqueue: invalid entity type %d", m.EntityType)
	}
	if m.Method == "" {
		return model.PendingMutation{}, errors.New("enqueue: method is required")
	}

	m.ID = q.ids.Generate()
	m.Timestamp = q.clock.Now()
	m.Headers = maps.Clone(m.Headers)
	if m.Body != nil {
		m.Body = append([]byte(nil), m.Body...)
	}

	if err := store.SetJSON(ctx, q.store, model.CollectionPending, m.ID, m); err != nil {
		return model.PendingMutation{}, fmt.Errorf("enqueue: %w", err)
	}
	return m, nil
}

// All returns every queued mutation in insertion order.
func (q *Queue) All(ctx context.Context) ([]model.PendingMutation, error) {
	ms, err := store.AllJSON[model.PendingMutation](ctx, q.store, model.CollectionPending)
	if err != nil {
		return nil, fmt.Errorf("read queue: %w", err)
	}
	return ms, nil
}

// Get returns one queued mutation.
func (q *Queue) Get(ctx context.Context, id string) (model.PendingMutation, bool, error) {
	return store.GetJSON[model.PendingMutation](ctx, q.store, model.CollectionPending, id)
}

// Len returns the number of queued mutations.
func (q *Queue) Len(ctx context.Context) (int, error) {
	values, err := q.store.GetAll(ctx, model.CollectionPending)
	if err != nil {
		return 0, fmt.Errorf("read queue: %w", err)
	}
	return len(values), nil
}

// Remove deletes a mutation and its attempt history. Removing an absent id
// is a no-op.
func (q *Queue) Remove(ctx context.Context, id string) error {
	if err := q.store.Delete(ctx, model.CollectionPending, id); err != nil {
		return fmt.Errorf("remove %s: %w", id, err)
	}
	if err := q.store.Delete(ctx, model.CollectionAttempts, id); err != nil {
		return fmt.Errorf("remove attempts %s: %w", id, err)
	}
	return nil
}
