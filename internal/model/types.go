package model

import (
	"encoding/json"
	"time"
)

// Reserved Local Store collections.
const (
	CollectionPending    = "pendingRequests"
	CollectionMetadata   = "syncMetadata"
	CollectionLog        = "syncLog"
	CollectionAttempts   = "mutationAttempts"
	CollectionDeadLetter = "deadLetters"

	// MetadataKey is the fixed key of the singleton SyncMetadata record.
	MetadataKey = "metadata"
)

// PendingMutation is a local write intent not yet confirmed by the server.
// It is immutable once enqueued.
type PendingMutation struct {
	ID         string            `json:"id"`
	Timestamp  time.Time         `json:"timestamp"`
	EntityType EntityType        `json:"entityType"`
	EntityID   string            `json:"entityId"`
	Method     string            `json:"method"`
	Endpoint   string            `json:"endpoint"`
	Headers    map[string]string `json:"headers,omitempty"`
	Body       json.RawMessage   `json:"body,omitempty"`
}

// Action renders the mutation as "METHOD endpoint" for log entries.
func (m PendingMutation) Action() string {
	return m.Method + " " + m.Endpoint
}

// EntityKey identifies the target entity; mutations sharing a key are
// applied in queue order within a run.
func (m PendingMutation) EntityKey() string {
	return m.EntityType.String() + "/" + m.EntityID
}

// SyncMetadata is the singleton sync bookkeeping record.
//
// SyncInProgress together with the lease fields forms the run gate: a run
// holds the gate from acquisition until release, and a lease whose
// LeaseExpiresAt has passed may be reclaimed by another run.
type SyncMetadata struct {
	LastSyncTime   *time.Time `json:"lastSyncTime,omitempty"`
	SyncInProgress bool       `json:"syncInProgress"`
	PendingChanges int        `json:"pendingChanges"`
	LeaseOwner     string     `json:"leaseOwner,omitempty"`
	LeaseExpiresAt *time.Time `json:"leaseExpiresAt,omitempty"`
}

// LeaseExpired reports whether an in-progress lease may be reclaimed at now.
// A flag without an expiry predates leases and is always reclaimable.
func (m SyncMetadata) LeaseExpired(now time.Time) bool {
	if !m.SyncInProgress {
		return true
	}
	if m.LeaseExpiresAt == nil {
		return true
	}
	return !now.Before(*m.LeaseExpiresAt)
}

// MetadataPatch lists the SyncMetadata fields to overwrite; nil fields are
// left untouched.
type MetadataPatch struct {
	LastSyncTime   *time.Time
	SyncInProgress *bool
	PendingChanges *int
	LeaseOwner     *string
	LeaseExpiresAt *time.Time
	// ClearLease drops LeaseOwner and LeaseExpiresAt.
	ClearLease bool
}

// Apply merges the patch into m.
func (p MetadataPatch) Apply(m SyncMetadata) SyncMetadata {
	if p.LastSyncTime != nil {
		t := *p.LastSyncTime
		m.LastSyncTime = &t
	}
	if p.SyncInProgress != nil {
		m.SyncInProgress = *p.SyncInProgress
	}
	if p.PendingChanges != nil {
		m.PendingChanges = *p.PendingChanges
	}
	if p.LeaseOwner != nil {
		m.LeaseOwner = *p.LeaseOwner
	}
	if p.LeaseExpiresAt != nil {
		t := *p.LeaseExpiresAt
		m.LeaseExpiresAt = &t
	}
	if p.ClearLease {
		m.LeaseOwner = ""
		m.LeaseExpiresAt = nil
	}
	return m
}

// LogStatus is the outcome recorded in a SyncLogEntry.
type LogStatus string

const (
	StatusSuccess  LogStatus = "success"
	StatusError    LogStatus = "error"
	StatusConflict LogStatus = "conflict"
)

// LogEntry is one append-only record of a per-mutation outcome.
type LogEntry struct {
	ID         string     `json:"id"`
	Timestamp  time.Time  `json:"timestamp"`
	Action     string     `json:"action"`
	Status     LogStatus  `json:"status"`
	Details    string     `json:"details"`
	EntityType EntityType `json:"entityType"`
	EntityID   string     `json:"entityId"`
	MutationID string     `json:"mutationId,omitempty"`
}

// MutationAttempts counts failed deliveries of one queued mutation.
type MutationAttempts struct {
	MutationID    string    `json:"mutationId"`
	Attempts      int       `json:"attempts"`
	LastError     string    `json:"lastError"`
	LastAttemptAt time.Time `json:"lastAttemptAt"`
}

// DeadLetter is a mutation removed from the queue because it can no longer
// succeed by plain retry.
type DeadLetter struct {
	Mutation PendingMutation `json:"mutation"`
	Attempts int             `json:"attempts"`
	Reason   string          `json:"reason"`
	FailedAt time.Time       `json:"failedAt"`
}
