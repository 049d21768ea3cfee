package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/roach88/wardsync/internal/model"
	"github.com/roach88/wardsync/internal/record"
)

// Edit is a local change to one entity.
type Edit struct {
	EntityType model.EntityType
	// EntityID defaults to the record's id.
	EntityID string
	// Method defaults to PUT, or DELETE when Record is nil.
	Method string
	// Endpoint defaults to /{entityType} for POST and
	// /{entityType}/{entityId} otherwise.
	Endpoint string
	Headers  map[string]string
	Record   record.Record
}

// Record applies an edit to the Local Store optimistically and queues the
// matching mutation for the next sync run.
//
// A record without lastUpdated is stamped with the current time so that
// last-writer-wins merges see the edit as fresh.
func (e *Engine) Record(ctx context.Context, edit Edit) (model.PendingMutation, error) {
	if !edit.EntityType.Valid() {
		return model.PendingMutation{}, fmt.Errorf("record edit: invalid entity type %d", edit.EntityType)
	}

	method := strings.ToUpper(edit.Method)
	if method == "" {
		method = http.MethodPut
		if edit.Record == nil {
			method = http.MethodDelete
		}
	}

	id := edit.EntityID
	if id == "" && edit.Record != nil {
		id = edit.Record.ID()
	}
	if id == "" {
		return model.PendingMutation{}, errors.New("record edit: entity id is required")
	}

	endpoint := edit.Endpoint
	if endpoint == "" {
		endpoint = "/" + edit.EntityType.Collection()
		if method != http.MethodPost {
			endpoint += "/" + url.PathEscape(id)
		}
	}

	var body json.RawMessage
	collection := edit.EntityType.Collection()
	if method == http.MethodDelete {
		if err := e.store.Delete(ctx, collection, id); err != nil {
			return model.PendingMutation{}, fmt.Errorf("record edit: %w", err)
		}
	} else {
		rec := edit.Record.Clone()
		if rec == nil {
			rec = record.Record{}
		}
		if _, ok := rec[record.FieldLastUpdated]; !ok {
			rec[record.FieldLastUpdated] = e.clock.Now().Format(time.RFC3339Nano)
		}
		data, err := rec.Encode()
		if err != nil {
			return model.PendingMutation{}, fmt.Errorf("record edit: %w", err)
		}
		if err := e.store.Set(ctx, collection, id, data); err != nil {
			return model.PendingMutation{}, fmt.Errorf("record edit: %w", err)
		}
		body = data
	}

	m, err := e.queue.Enqueue(ctx, model.PendingMutation{
		EntityType: edit.EntityType,
		EntityID:   id,
		Method:     method,
		Endpoint:   endpoint,
		Headers:    edit.Headers,
		Body:       body,
	})
	if err != nil {
		return model.PendingMutation{}, fmt.Errorf("record edit: %w", err)
	}

	e.logger.Debug("local edit queued",
		"mutation_id", m.ID,
		"entity_type", m.EntityType.String(),
		"entity_id", m.EntityID,
		"method", m.Method,
	)
	return m, nil
}
