// Package resolve reconciles a local write that the server rejected with a
// version conflict.
//
// Resolution fetches the authoritative copy, merges it with the local
// payload using the policy registered for the entity type, then commits the
// merged record to the Local Store and back to the server.
//
// # Merge Policies
//
// Policies maps every model.EntityType to a MergeFunc. Merge functions are
// pure: the result depends only on the two input records and never
// mutates them.
//
//	patients       union medicalHistory by id, newest first; contact
//	               fields from local only when local is strictly newer
//	prescriptions  union medications by id; notes from the newer side
//	labTests       server wins except notes, which follow notesLastUpdated
//	others         whole-record last-writer-wins, server id kept
//
// "Newer" always compares the lastUpdated field; ties go to the server.
package resolve
