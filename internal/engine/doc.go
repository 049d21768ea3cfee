// Package engine implements the Sync Orchestrator.
//
// A sync run drains the Pending Mutation Queue against the remote authority
// and reconciles every outcome.
//
// ARCHITECTURE:
//
// Run Gate:
// Only one run may be active at a time. The gate is the persisted
// SyncMetadata lease (see package meta): Sync acquires it first and returns
// "Sync already in progress" without side effects when another live lease
// exists. The lease is renewed while the run is in flight and released at
// the end; a lease left behind by a crash expires and is reclaimed.
//
// Run Flow:
// 1. Acquire the lease, snapshot the queue, record pendingChanges
// 2. Empty queue: release and report "No changes to sync"
// 3. Group mutations by target entity, preserving queue order
// 4. Dispatch groups through a bounded errgroup; each group runs its
//    mutations sequentially, distinct entities run concurrently
// 5. Classify each response (2xx, 409, transient, permanent) and update
//    the queue, the Sync Log and, for conflicts, the entity via the resolver
// 6. Release the lease with lastSyncTime and the remaining queue length
//
// ERROR BOUNDARY:
// Sync never returns an error and never panics. Every failure is converted
// into an Outcome, a Sync Log entry and the summary in Result.
//
// RETRY POLICY:
// Transport errors and 408/425/429/5xx keep the mutation queued and count
// an attempt; after MaxAttempts the mutation is dead-lettered. Any other
// 4xx except 409 is dead-lettered at once. A resolved conflict removes the
// mutation; a failed resolution leaves it queued.
package engine
