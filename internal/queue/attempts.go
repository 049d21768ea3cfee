package queue

import (
	"context"
	"fmt"

	"github.com/roach88/wardsync/internal/model"
	"github.com/roach88/wardsync/internal/store"
)

// Attempts returns the failed-delivery history of a mutation.
// A mutation that never failed reports zero attempts.
func (q *Queue) Attempts(ctx context.Context, id string) (model.MutationAttempts, error) {
	a, ok, err := store.GetJSON[model.MutationAttempts](ctx, q.store, model.CollectionAttempts, id)
	if err != nil {
		return model.MutationAttempts{}, fmt.Errorf("read attempts %s: %w", id, err)
	}
	if !ok {
		return model.MutationAttempts{MutationID: id}, nil
	}
	return a, nil
}

// RecordFailure increments the attempt counter of a mutation and returns
// the new count.
func (q *Queue) RecordFailure(ctx context.Context, id, reason string) (int, error) {
	a, err := q.Attempts(ctx, id)
	if err != nil {
		return 0, err
	}
	a.Attempts++
	a.LastError = reason
	a.LastAttemptAt = q.clock.Now()

	if err := store.SetJSON(ctx, q.store, model.CollectionAttempts, id, a); err != nil {
		return 0, fmt.Errorf("record failure %s: %w", id, err)
	}
	return a.Attempts, nil
}

// DeadLetter moves m out of the queue into the dead-letter collection.
func (q *Queue) DeadLetter(ctx context.Context, m model.PendingMutation, reason string) (model.DeadLetter, error) {
	a, err := q.Attempts(ctx, m.ID)
	if err != nil {
		return model.DeadLetter{}, err
	}

	dl := model.DeadLetter{
		Mutation: m,
		Attempts: a.Attempts,
		Reason:   reason,
		FailedAt: q.clock.Now(),
	}
	if err := store.SetJSON(ctx, q.store, model.CollectionDeadLetter, m.ID, dl); err != nil {
		return model.DeadLetter{}, fmt.Errorf("dead-letter %s: %w", m.ID, err)
	}
	if err := q.Remove(ctx, m.ID); err != nil {
		return model.DeadLetter{}, err
	}
	return dl, nil
}

// DeadLetters lists dead-lettered mutations in the order they failed.
func (q *Queue) DeadLetters(ctx context.Context) ([]model.DeadLetter, error) {
	dls, err := store.AllJSON[model.DeadLetter](ctx, q.store, model.CollectionDeadLetter)
	if err != nil {
		return nil, fmt.Errorf("read dead letters: %w", err)
	}
	return dls, nil
}

// Requeue moves a dead letter back to the tail of the queue with a fresh
// attempt counter. The mutation keeps its id.
func (q *Queue) Requeue(ctx context.Context, id string) (model.PendingMutation, error) {
	dl, ok, err := store.GetJSON[model.DeadLetter](ctx, q.store, model.CollectionDeadLetter, id)
	if err != nil {
		return model.PendingMutation{}, fmt.Errorf("requeue %s: %w", id, err)
	}
	if !ok {
		return model.PendingMutation{}, fmt.Errorf("requeue %s: %w", id, ErrNotFound)
	}

	if err := store.SetJSON(ctx, q.store, model.CollectionPending, id, dl.Mutation); err != nil {
		return model.PendingMutation{}, fmt.Errorf("requeue %s: %w", id, err)
	}
	if err := q.store.Delete(ctx, model.CollectionDeadLetter, id); err != nil {
		return model.PendingMutation{}, fmt.Errorf("requeue %s: %w", id, err)
	}
	return dl.Mutation, nil
}

// ClearDeadLetters discards every dead letter.
func (q *Queue) ClearDeadLetters(ctx context.Context) error {
	if err := q.store.Clear(ctx, model.CollectionDeadLetter); err != nil {
		return fmt.Errorf("clear dead letters: %w", err)
	}
	return nil
}
