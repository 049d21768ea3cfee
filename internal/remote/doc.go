// Package remote talks to the REST authority.
//
// Two roles are served by one Client:
//   - Transport: replays a queued mutation as a single HTTP request (Do)
//   - Authority: fetches and commits entity records during conflict
//     resolution (Fetch, Put) at {server}/{entityType}/{entityId}
//
// Do reports only transport failures as errors; any HTTP status, including
// 409, is returned in the Response for the caller to classify. Fetch and
// Put treat every non-2xx status as a *StatusError.
package remote
