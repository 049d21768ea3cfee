package store

import (
	"context"
	"encoding/json"
	"fmt"
)

// GetJSON reads a record and decodes it into T.
func GetJSON[T any](ctx context.Context, s Store, collection, id string) (T, bool, error) {
	var v T
	data, ok, err := s.Get(ctx, collection, id)
	if err != nil || !ok {
		return v, ok, err
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return v, false, fmt.Errorf("decode %s/%s: %w", collection, id, err)
	}
	return v, true, nil
}

// SetJSON encodes v and stores it under (collection, id).
func SetJSON(ctx context.Context, s Store, collection, id string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", collection, id, err)
	}
	return s.Set(ctx, collection, id, data)
}

// AllJSON decodes every record of a collection, in insertion order.
func AllJSON[T any](ctx context.Context, s Store, collection string) ([]T, error) {
	values, err := s.GetAll(ctx, collection)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(values))
	for i, data := range values {
		var v T
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("decode %s[%d]: %w", collection, i, err)
		}
		out = append(out, v)
	}
	return out, nil
}
