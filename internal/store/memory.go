package store

import (
	"context"
	"sort"
	"sync"
)

type memEntry struct {
	seq  int64
	data []byte
}

// Memory is a volatile Store. Values are copied on the way in and out so
// callers can never alias stored bytes.
//
// Thread-safety: all methods are safe for concurrent use.
type Memory struct {
	mu          sync.RWMutex
	seq         int64
	closed      bool
	collections map[string]map[string]memEntry
}

var _ Store = (*Memory)(nil)

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{collections: make(map[string]map[string]memEntry)}
}

// Get implements Store.Get.
func (m *Memory) Get(_ context.Context, collection, id string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, false, ErrClosed
	}

	e, ok := m.collections[collection][id]
	if !ok {
		return nil, false, nil
	}
	return clone(e.data), true, nil
}

// Set implements Store.Set.
func (m *Memory) Set(_ context.Context, collection, id string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}

	c, ok := m.collections[collection]
	if !ok {
		c = make(map[string]memEntry)
		m.collections[collection] = c
	}
	if e, exists := c[id]; exists {
		e.data = clone(value)
		c[id] = e
		return nil
	}
	m.seq++
	c[id] = memEntry{seq: m.seq, data: clone(value)}
	return nil
}

// Delete implements Store.Delete.
func (m *Memory) Delete(_ context.Context, collection, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}

	delete(m.collections[collection], id)
	return nil
}

// GetAll implements Store.GetAll.
func (m *Memory) GetAll(_ context.Context, collection string) ([][]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}

	c := m.collections[collection]
	entries := make([]memEntry, 0, len(c))
	for _, e := range c {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })

	values := make([][]byte, len(entries))
	for i, e := range entries {
		values[i] = clone(e.data)
	}
	return values, nil
}

// Clear implements Store.Clear.
func (m *Memory) Clear(_ context.Context, collection string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}

	delete(m.collections, collection)
	return nil
}

// Close implements Store.Close. Closing twice is a no-op.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.collections = nil
	return nil
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
