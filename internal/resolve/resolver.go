package resolve

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/wardsync/internal/model"
	"github.com/roach88/wardsync/internal/record"
	"github.com/roach88/wardsync/internal/store"
	"github.com/roach88/wardsync/internal/synclog"
)

// Authority is the remote source of truth consulted during resolution.
// Implemented by remote.Client.
type Authority interface {
	Fetch(ctx context.Context, t model.EntityType, id string) (record.Record, error)
	Put(ctx context.Context, t model.EntityType, id string, rec record.Record) error
}

// Conflict identifies the rejected write being resolved.
type Conflict struct {
	EntityType model.EntityType
	EntityID   string
	Local      record.Record
	// MutationID links the resolution log entry to the queued mutation.
	MutationID string
}

// Resolver applies merge policies and commits the result.
type Resolver struct {
	store     store.Store
	authority Authority
	log       *synclog.Log
	policies  map[model.EntityType]MergeFunc
	logger    *slog.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithPolicy overrides the merge function for one entity type.
func WithPolicy(t model.EntityType, fn MergeFunc) Option {
	return func(r *Resolver) {
		r.policies[t] = fn
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) {
		r.logger = l
	}
}

// New creates a resolver that persists merged records to s, commits them to
// authority and records the outcome in log.
func New(s store.Store, authority Authority, log *synclog.Log, opts ...Option) *Resolver {
	r := &Resolver{
		store:     s,
		authority: authority,
		log:       log,
		policies:  make(map[model.EntityType]MergeFunc, len(Policies)),
		logger:    slog.Default(),
	}
	for t, fn := range Policies {
		r.policies[t] = fn
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve fetches the authoritative record, merges c.Local into it and
// writes the result locally and remotely. The outcome is appended to the
// sync log either way; a failure is also returned.
//
// Only the authority calls observe ctx; local writes complete even after it
// is cancelled.
func (r *Resolver) Resolve(ctx context.Context, c Conflict) (record.Record, error) {
	merged, err := r.resolve(ctx, c)

	entry := model.LogEntry{
		Action:     fmt.Sprintf("RESOLVE %s/%s", c.EntityType, c.EntityID),
		EntityType: c.EntityType,
		EntityID:   c.EntityID,
		MutationID: c.MutationID,
	}
	if err != nil {
		entry.Status = model.StatusError
		entry.Details = err.Error()
		r.logger.Warn("conflict resolution failed",
			"entity_type", c.EntityType.String(),
			"entity_id", c.EntityID,
			"error", err,
		)
	} else {
		entry.Status = model.StatusSuccess
		entry.Details = "merged local and server copies"
		r.logger.Info("conflict resolved",
			"entity_type", c.EntityType.String(),
			"entity_id", c.EntityID,
		)
	}

	if _, logErr := r.log.Append(context.WithoutCancel(ctx), entry); logErr != nil {
		r.logger.Error("failed to append sync log entry", "error", logErr)
	}
	return merged, err
}

func (r *Resolver) resolve(ctx context.Context, c Conflict) (record.Record, error) {
	policy, ok := r.policies[c.EntityType]
	if !ok {
		return nil, fmt.Errorf("no merge policy for %s", c.EntityType)
	}

	server, err := r.authority.Fetch(ctx, c.EntityType, c.EntityID)
	if err != nil {
		return nil, fmt.Errorf("fetch server copy: %w", err)
	}

	local := c.Local
	if local == nil {
		local = record.Record{}
	}
	merged := policy(local, server)

	data, err := merged.Encode()
	if err != nil {
		return nil, fmt.Errorf("encode merged record: %w", err)
	}
	if err := r.store.Set(context.WithoutCancel(ctx), c.EntityType.Collection(), c.EntityID, data); err != nil {
		return nil, fmt.Errorf("persist merged record: %w", err)
	}
	if err := r.authority.Put(ctx, c.EntityType, c.EntityID, merged); err != nil {
		return nil, fmt.Errorf("commit merged record: %w", err)
	}
	return merged, nil
}
