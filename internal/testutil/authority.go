package testutil

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/roach88/wardsync/internal/model"
	"github.com/roach88/wardsync/internal/record"
	"github.com/roach88/wardsync/internal/remote"
)

// ErrConnectionRefused is the transport failure returned for scripted
// network errors and while the authority is offline.
var ErrConnectionRefused = errors.New("connection refused")

// Reply is a scripted outcome for one request.
type Reply struct {
	// Status is the HTTP status to return. Ignored when Err is set.
	Status int
	// Body is returned verbatim.
	Body string
	// Err simulates a transport failure.
	Err error
}

// FakeAuthority is an in-memory REST authority implementing
// remote.Transport plus the Fetch/Put contract used during conflict
// resolution.
//
// Without a script, mutations are applied to the held records:
// POST/PUT/PATCH to /{collection}[/{id}] store the body, DELETE removes the
// record, and all of them answer 200. Scripts are keyed by "METHOD path"
// and consumed in order; the last reply of a script repeats.
//
// Thread-safety: safe for concurrent use.
type FakeAuthority struct {
	mu       sync.Mutex
	records  map[string]record.Record
	scripts  map[string][]Reply
	requests []remote.Request
	offline  bool

	// FetchErr and PutErr fail every Fetch or Put when set.
	FetchErr error
	PutErr   error

	// OnRequest runs before each Do, outside the lock. Tests use it to
	// hold a request in flight.
	OnRequest func(remote.Request)
}

// NewFakeAuthority creates an empty authority.
func NewFakeAuthority() *FakeAuthority {
	return &FakeAuthority{
		records: make(map[string]record.Record),
		scripts: make(map[string][]Reply),
	}
}

var _ remote.Transport = (*FakeAuthority)(nil)

func entityKey(t model.EntityType, id string) string {
	return t.Collection() + "/" + id
}

// Seed stores the authoritative copy of a record.
func (a *FakeAuthority) Seed(t model.EntityType, rec record.Record) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.records[entityKey(t, rec.ID())] = rec.Clone()
}

// Record returns the authoritative copy of (t, id).
func (a *FakeAuthority) Record(t model.EntityType, id string) (record.Record, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	rec, ok := a.records[entityKey(t, id)]
	if !ok {
		return nil, false
	}
	return rec.Clone(), true
}

// Keys lists the held records as "collection/id", sorted.
func (a *FakeAuthority) Keys() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	keys := make([]string, 0, len(a.records))
	for k := range a.records {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Script queues replies for requests matching "METHOD path".
func (a *FakeAuthority) Script(method, path string, replies ...Reply) {
	a.mu.Lock()
	defer a.mu.Unlock()
	key := strings.ToUpper(method) + " " + path
	a.scripts[key] = append(a.scripts[key], replies...)
}

// SetOffline makes every call fail with ErrConnectionRefused.
func (a *FakeAuthority) SetOffline(offline bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.offline = offline
}

// Requests returns the Do calls received so far.
func (a *FakeAuthority) Requests() []remote.Request {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]remote.Request, len(a.requests))
	copy(out, a.requests)
	return out
}

// Do implements remote.Transport.
func (a *FakeAuthority) Do(ctx context.Context, req remote.Request) (remote.Response, error) {
	if a.OnRequest != nil {
		a.OnRequest(req)
	}
	if err := ctx.Err(); err != nil {
		return remote.Response{}, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	a.requests = append(a.requests, req)
	if a.offline {
		return remote.Response{}, &remote.TransportError{Method: req.Method, URL: req.URL, Err: ErrConnectionRefused}
	}

	key := strings.ToUpper(req.Method) + " " + req.URL
	if replies := a.scripts[key]; len(replies) > 0 {
		reply := replies[0]
		if len(replies) > 1 {
			a.scripts[key] = replies[1:]
		}
		if reply.Err != nil {
			return remote.Response{}, &remote.TransportError{Method: req.Method, URL: req.URL, Err: reply.Err}
		}
		if reply.Status >= 200 && reply.Status < 300 {
			a.apply(req)
		}
		return remote.Response{StatusCode: reply.Status, Body: []byte(reply.Body)}, nil
	}

	a.apply(req)
	return remote.Response{StatusCode: http.StatusOK, Body: req.Body}, nil
}

// apply mutates the held records for a successful request. Caller holds mu.
func (a *FakeAuthority) apply(req remote.Request) {
	parts := strings.Split(strings.Trim(req.URL, "/"), "/")
	t, err := model.ParseEntityType(parts[0])
	if err != nil {
		return
	}

	var id string
	if len(parts) > 1 {
		id = parts[1]
	}

	switch strings.ToUpper(req.Method) {
	case http.MethodDelete:
		if id != "" {
			delete(a.records, entityKey(t, id))
		}
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		rec, err := record.Decode(req.Body)
		if err != nil {
			return
		}
		if id == "" {
			id = rec.ID()
		}
		if id == "" {
			return
		}
		if strings.EqualFold(req.Method, http.MethodPatch) {
			if prev, ok := a.records[entityKey(t, id)]; ok {
				merged := prev.Clone()
				for k, v := range rec {
					merged[k] = v
				}
				rec = merged
			}
		}
		a.records[entityKey(t, id)] = rec
	}
}

// Fetch returns the authoritative record, or a 404 StatusError.
func (a *FakeAuthority) Fetch(ctx context.Context, t model.EntityType, id string) (record.Record, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	path := "/" + entityKey(t, id)
	if a.offline {
		return nil, &remote.TransportError{Method: http.MethodGet, URL: path, Err: ErrConnectionRefused}
	}
	if a.FetchErr != nil {
		return nil, fmt.Errorf("fetch %s: %w", path, a.FetchErr)
	}
	rec, ok := a.records[entityKey(t, id)]
	if !ok {
		return nil, &remote.StatusError{Method: http.MethodGet, URL: path, StatusCode: http.StatusNotFound}
	}
	return rec.Clone(), nil
}

// Put replaces the authoritative record.
func (a *FakeAuthority) Put(ctx context.Context, t model.EntityType, id string, rec record.Record) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	path := "/" + entityKey(t, id)
	if a.offline {
		return &remote.TransportError{Method: http.MethodPut, URL: path, Err: ErrConnectionRefused}
	}
	if a.PutErr != nil {
		return fmt.Errorf("put %s: %w", path, a.PutErr)
	}
	a.records[entityKey(t, id)] = rec.Clone()
	return nil
}

// Ping fails while offline.
func (a *FakeAuthority) Ping(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.offline {
		return &remote.TransportError{Method: http.MethodGet, URL: "/health", Err: ErrConnectionRefused}
	}
	return nil
}
