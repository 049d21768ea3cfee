// Package synclog is the append-only record of per-mutation sync outcomes.
//
// Entries are stored under model.CollectionLog and read back in insertion
// order. The orchestrator only appends; listing and clearing are operator
// actions.
package synclog

import (
	"context"
	"fmt"

	"github.com/roach88/wardsync/internal/model"
	"github.com/roach88/wardsync/internal/store"
)

// Log is the Sync Log.
type Log struct {
	store store.Store
	clock model.Clock
	ids   model.IDGenerator
}

// Option configures a Log.
type Option func(*Log)

// WithClock sets the clock used for entry timestamps.
func WithClock(c model.Clock) Option {
	return func(l *Log) {
		l.clock = c
	}
}

// WithIDs sets the entry id generator.
func WithIDs(g model.IDGenerator) Option {
	return func(l *Log) {
		l.ids = g
	}
}

// New creates a log over s.
func New(s store.Store, opts ...Option) *Log {
	l := &Log{
		store: s,
		clock: model.SystemClock{},
		ids:   model.UUIDv7Generator{},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Append stores e, filling in ID and Timestamp when unset.
func (l *Log) Append(ctx context.Context, e model.LogEntry) (model.LogEntry, error) {
	if e.ID == "" {
		e.ID = l.ids.Generate()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = l.clock.Now()
	}
	if err := store.SetJSON(ctx, l.store, model.CollectionLog, e.ID, e); err != nil {
		return model.LogEntry{}, fmt.Errorf("append log entry: %w", err)
	}
	return e, nil
}

// All returns every entry in insertion order.
func (l *Log) All(ctx context.Context) ([]model.LogEntry, error) {
	entries, err := store.AllJSON[model.LogEntry](ctx, l.store, model.CollectionLog)
	if err != nil {
		return nil, fmt.Errorf("read sync log: %w", err)
	}
	return entries, nil
}

// Filter returns the entries for which keep reports true, in order.
func (l *Log) Filter(ctx context.Context, keep func(model.LogEntry) bool) ([]model.LogEntry, error) {
	entries, err := l.All(ctx)
	if err != nil {
		return nil, err
	}
	out := entries[:0]
	for _, e := range entries {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out, nil
}

// Clear removes every entry.
func (l *Log) Clear(ctx context.Context) error {
	if err := l.store.Clear(ctx, model.CollectionLog); err != nil {
		return fmt.Errorf("clear sync log: %w", err)
	}
	return nil
}
