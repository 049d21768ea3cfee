// Package model defines the typed records the sync engine persists in the
// Local Store: pending mutations, the sync metadata singleton, sync log
// entries, attempt counters and dead letters, plus the closed EntityType
// enumeration and the id/clock seams shared by every component.
//
// # Persisted layout
//
//	pendingRequests   -> PendingMutation, keyed by mutation id, insertion ordered
//	syncMetadata      -> SyncMetadata under the fixed key "metadata"
//	syncLog           -> LogEntry, keyed by entry id, insertion ordered
//	mutationAttempts  -> MutationAttempts, keyed by mutation id
//	deadLetters       -> DeadLetter, keyed by mutation id
//	<entity type>     -> entity records keyed by entity id (patients, appointments, ...)
package model
