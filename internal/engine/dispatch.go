package engine

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/wardsync/internal/model"
	"github.com/roach88/wardsync/internal/record"
	"github.com/roach88/wardsync/internal/remote"
	"github.com/roach88/wardsync/internal/resolve"
)

// groupByEntity splits mutations into per-entity groups of indexes.
// Groups appear in order of first occurrence; each keeps queue order.
func groupByEntity(ms []model.PendingMutation) [][]int {
	index := make(map[string]int)
	var groups [][]int
	for i, m := range ms {
		key := m.EntityKey()
		g, ok := index[key]
		if !ok {
			g = len(groups)
			index[key] = g
			groups = append(groups, nil)
		}
		groups[g] = append(groups[g], i)
	}
	return groups
}

// dispatch delivers every mutation and collects one Outcome each, in queue
// order. No outcome aborts the others.
//
// Only network calls observe ctx. Queue and log writes use a context that
// survives cancellation, so a response already received is always recorded.
func (e *Engine) dispatch(ctx context.Context, ms []model.PendingMutation) []Outcome {
	outcomes := make([]Outcome, len(ms))
	bookkeeping := context.WithoutCancel(ctx)

	var g errgroup.Group
	g.SetLimit(e.concurrency)
	for _, group := range groupByEntity(ms) {
		g.Go(func() error {
			for _, i := range group {
				outcomes[i] = e.process(ctx, bookkeeping, ms[i])
			}
			return nil
		})
	}
	_ = g.Wait()

	return outcomes
}

// process delivers one mutation over ctx and applies its outcome to the
// queue and the Sync Log over bk.
func (e *Engine) process(ctx, bk context.Context, m model.PendingMutation) (out Outcome) {
	out = Outcome{
		MutationID: m.ID,
		EntityType: m.EntityType,
		EntityID:   m.EntityID,
		Action:     m.Action(),
	}

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("mutation worker panicked", "mutation_id", m.ID, "panic", r)
			out.Kind = OutcomeFailed
			out.Err = &OutcomeError{
				Code:       ErrCodeInternal,
				MutationID: m.ID,
				Message:    fmt.Sprintf("panic: %v", r),
			}
		}
	}()

	resp, err := e.transport.Do(ctx, remote.Request{
		Method:  m.Method,
		URL:     m.Endpoint,
		Headers: m.Headers,
		Body:    m.Body,
	})
	if err != nil {
		return e.fail(bk, m, out, &OutcomeError{
			Code:       ErrCodeTransport,
			MutationID: m.ID,
			Err:        err,
		})
	}
	out.StatusCode = resp.StatusCode

	switch {
	case resp.OK():
		return e.succeed(bk, m, out)
	case remote.IsConflict(resp.StatusCode):
		return e.conflict(ctx, bk, m, out)
	default:
		code := ErrCodeRejected
		if remote.IsTransient(resp.StatusCode) {
			code = ErrCodeServer
		}
		return e.fail(bk, m, out, &OutcomeError{
			Code:       code,
			MutationID: m.ID,
			StatusCode: resp.StatusCode,
			Message:    statusMessage(resp),
		})
	}
}

func (e *Engine) succeed(ctx context.Context, m model.PendingMutation, out Outcome) Outcome {
	out.Kind = OutcomeSucceeded
	if err := e.queue.Remove(ctx, m.ID); err != nil {
		e.logger.Error("failed to remove delivered mutation", "mutation_id", m.ID, "error", err)
	} else {
		out.Removed = true
	}
	e.appendLog(ctx, m, model.StatusSuccess, fmt.Sprintf("status %d", out.StatusCode))
	return out
}

func (e *Engine) conflict(ctx, bk context.Context, m model.PendingMutation, out Outcome) Outcome {
	out.Kind = OutcomeConflict
	e.appendLog(bk, m, model.StatusConflict, fmt.Sprintf("version conflict (status %d)", out.StatusCode))

	local, err := record.Decode(m.Body)
	if err != nil {
		// A non-object body still resolves; the server copy wins every policy.
		local = record.Record{}
	}

	if _, err := e.resolver.Resolve(ctx, resolve.Conflict{
		EntityType: m.EntityType,
		EntityID:   m.EntityID,
		Local:      local,
		MutationID: m.ID,
	}); err != nil {
		cause := &OutcomeError{Code: ErrCodeResolution, MutationID: m.ID, StatusCode: out.StatusCode, Err: err}
		out.Err = cause
		return e.retry(bk, m, out, cause.Error())
	}

	out.Resolved = true
	if err := e.queue.Remove(bk, m.ID); err != nil {
		e.logger.Error("failed to remove resolved mutation", "mutation_id", m.ID, "error", err)
	} else {
		out.Removed = true
	}
	return out
}

// fail logs the failure, then either counts an attempt or dead-letters the
// mutation.
func (e *Engine) fail(ctx context.Context, m model.PendingMutation, out Outcome, cause *OutcomeError) Outcome {
	out.Kind = OutcomeFailed
	out.Err = cause
	e.appendLog(ctx, m, model.StatusError, cause.Error())

	if cause.Permanent() {
		return e.deadLetter(ctx, m, out, cause.Error())
	}
	return e.retry(ctx, m, out, cause.Error())
}

// retry counts a failed attempt and leaves the mutation queued until the
// attempt quota runs out.
func (e *Engine) retry(ctx context.Context, m model.PendingMutation, out Outcome, reason string) Outcome {
	attempts, err := e.queue.RecordFailure(ctx, m.ID, reason)
	if err != nil {
		e.logger.Error("failed to record attempt", "mutation_id", m.ID, "error", err)
		return out
	}
	quotaErr := e.quota.Check(m.ID, attempts)
	if quotaErr == nil {
		e.logger.Debug("mutation left queued for retry",
			"mutation_id", m.ID,
			"attempts", attempts,
			"reason", reason,
		)
		return out
	}
	return e.deadLetter(ctx, m, out, quotaErr.Error()+": "+reason)
}

func (e *Engine) deadLetter(ctx context.Context, m model.PendingMutation, out Outcome, reason string) Outcome {
	if _, err := e.queue.DeadLetter(ctx, m, reason); err != nil {
		e.logger.Error("failed to dead-letter mutation", "mutation_id", m.ID, "error", err)
		return out
	}
	out.DeadLettered = true
	out.Removed = true
	e.logger.Warn("mutation dead-lettered",
		"mutation_id", m.ID,
		"entity_type", m.EntityType.String(),
		"entity_id", m.EntityID,
		"reason", reason,
	)
	return out
}

func (e *Engine) appendLog(ctx context.Context, m model.PendingMutation, status model.LogStatus, details string) {
	_, err := e.log.Append(ctx, model.LogEntry{
		Action:     m.Action(),
		Status:     status,
		Details:    details,
		EntityType: m.EntityType,
		EntityID:   m.EntityID,
		MutationID: m.ID,
	})
	if err != nil {
		e.logger.Error("failed to append sync log entry", "mutation_id", m.ID, "error", err)
	}
}

// statusMessage renders a non-2xx response for logs and dead letters.
func statusMessage(resp remote.Response) string {
	body := remote.Truncate(strings.TrimSpace(string(resp.Body)), 200)
	if body == "" {
		return fmt.Sprintf("status %d", resp.StatusCode)
	}
	return fmt.Sprintf("status %d: %s", resp.StatusCode, body)
}
