// Package record models the opaque entity records (patients, appointments,
// prescriptions, lab tests, ...) that flow through the sync engine.
//
// Records are JSON objects decoded with json.Number so that ids and epoch
// timestamps survive a round trip without float64 precision loss. The engine
// only looks at a handful of well-known fields:
//
//   - id: the record identifier (string or number)
//   - lastUpdated: the recency timestamp used by every merge policy
//
// Everything else is carried through untouched.
//
// # Canonical JSON
//
// MarshalCanonical produces RFC 8785 style canonical JSON: object keys sorted
// by UTF-16 code units, strings NFC normalized, no HTML escaping. It is used
// for request bodies of merged records, for id normalization and for golden
// traces, so identical records always serialize to identical bytes.
package record
