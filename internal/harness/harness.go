// Package harness provides a conformance testing framework for the sync
// engine.
//
// A scenario seeds the Local Store and an in-memory authority, queues local
// edits through Engine.Record, scripts the authority's answers and runs the
// real Sync Orchestrator one or more times. The engine runs with a fixed
// clock, sequential ids and concurrency 1, so the trace of requests, log
// entries and summaries is byte-for-byte reproducible and can be compared
// against golden files.
package harness

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/roach88/wardsync/internal/engine"
	"github.com/roach88/wardsync/internal/model"
	"github.com/roach88/wardsync/internal/record"
	"github.com/roach88/wardsync/internal/store"
	"github.com/roach88/wardsync/internal/testutil"
)

// IDPrefix prefixes every id generated during a scenario: mutation ids are
// "m-0001", "m-0002", ... in edit order.
const IDPrefix = "m"

// editSpacing separates consecutive edits on the fake clock.
const editSpacing = time.Second

// Harness holds the collaborators of one scenario execution.
type Harness struct {
	store     *store.SQLite
	engine    *engine.Engine
	authority *testutil.FakeAuthority
	clock     *testutil.FakeClock
	ids       *testutil.SequentialIDs
	logger    *slog.Logger
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
//
// Execution flow:
// 1. Create fresh in-memory database and authority
// 2. Seed local and server records, script responses
// 3. Apply edits through Engine.Record
// 4. Run Sync the requested number of times, tracing each run
// 5. Evaluate assertions
func Run(scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	h := &Harness{
		store:     st,
		authority: testutil.NewFakeAuthority(),
		clock:     testutil.NewFakeClock(scenario.Start),
		ids:       testutil.NewSequentialIDs(IDPrefix),
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)), // Suppress logs in tests
	}

	opts := []engine.Option{
		engine.WithConcurrency(1),
		engine.WithClock(h.clock),
		engine.WithIDs(h.ids),
		engine.WithLogger(h.logger),
	}
	if scenario.MaxAttempts != nil {
		opts = append(opts, engine.WithMaxAttempts(*scenario.MaxAttempts))
	}
	h.engine = engine.New(st, h.authority, opts...)

	ctx := context.Background()

	if err := h.seed(ctx, scenario); err != nil {
		return nil, fmt.Errorf("failed to seed scenario: %w", err)
	}
	if err := h.applyEdits(ctx, scenario.Edits); err != nil {
		return nil, fmt.Errorf("failed to apply edits: %w", err)
	}
	h.authority.SetOffline(scenario.Offline)

	result := NewResult()
	runs := scenario.Runs
	if runs == 0 {
		runs = 1
	}
	for i := 1; i <= runs; i++ {
		if err := h.runOnce(ctx, i, result); err != nil {
			return nil, fmt.Errorf("run %d: %w", i, err)
		}
	}

	actx := &AssertionContext{
		Ctx:       ctx,
		Engine:    h.engine,
		Store:     st,
		Authority: h.authority,
	}
	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(errMsg)
	}

	return result, nil
}

// seed loads the initial records on both sides and the response script.
func (h *Harness) seed(ctx context.Context, s *Scenario) error {
	for name, recs := range s.Local {
		t, err := model.ParseEntityType(name)
		if err != nil {
			return err
		}
		for i, raw := range recs {
			rec, err := toRecord(raw)
			if err != nil {
				return fmt.Errorf("local.%s[%d]: %w", name, i, err)
			}
			if rec.ID() == "" {
				return fmt.Errorf("local.%s[%d]: id is required", name, i)
			}
			if err := store.SetJSON(ctx, h.store, t.Collection(), rec.ID(), rec); err != nil {
				return err
			}
		}
	}

	for name, recs := range s.Server {
		t, err := model.ParseEntityType(name)
		if err != nil {
			return err
		}
		for i, raw := range recs {
			rec, err := toRecord(raw)
			if err != nil {
				return fmt.Errorf("server.%s[%d]: %w", name, i, err)
			}
			if rec.ID() == "" {
				return fmt.Errorf("server.%s[%d]: id is required", name, i)
			}
			h.authority.Seed(t, rec)
		}
	}

	for _, r := range s.Responses {
		replies := make([]testutil.Reply, len(r.Replies))
		for i, reply := range r.Replies {
			replies[i] = testutil.Reply{Status: reply.Status, Body: reply.Body}
			if reply.Error != "" {
				replies[i].Err = errors.New(reply.Error)
			}
		}
		h.authority.Script(r.Method, r.Path, replies...)
	}
	return nil
}

func (h *Harness) applyEdits(ctx context.Context, edits []EditStep) error {
	for i, step := range edits {
		t, err := model.ParseEntityType(step.Entity)
		if err != nil {
			return fmt.Errorf("edits[%d]: %w", i, err)
		}

		var rec record.Record
		if step.Record != nil {
			if rec, err = toRecord(step.Record); err != nil {
				return fmt.Errorf("edits[%d]: %w", i, err)
			}
		}

		if _, err := h.engine.Record(ctx, engine.Edit{
			EntityType: t,
			EntityID:   step.ID,
			Method:     step.Method,
			Endpoint:   step.Endpoint,
			Headers:    step.Headers,
			Record:     rec,
		}); err != nil {
			return fmt.Errorf("edits[%d]: %w", i, err)
		}
		h.clock.Advance(editSpacing)
	}
	return nil
}

// runOnce performs one sync and appends what it produced to the trace.
func (h *Harness) runOnce(ctx context.Context, run int, result *Result) error {
	requestsBefore := len(h.authority.Requests())
	entries, err := h.engine.Log().All(ctx)
	if err != nil {
		return err
	}
	logBefore := len(entries)

	res := h.engine.Sync(ctx)
	result.Runs = append(result.Runs, res)

	for _, req := range h.authority.Requests()[requestsBefore:] {
		result.Trace = append(result.Trace, TraceEvent{
			Type:   EventRequest,
			Run:    run,
			Method: req.Method,
			URL:    req.URL,
		})
	}

	entries, err = h.engine.Log().All(ctx)
	if err != nil {
		return err
	}
	for _, e := range entries[logBefore:] {
		result.Trace = append(result.Trace, TraceEvent{
			Type:    EventLog,
			Run:     run,
			Action:  e.Action,
			Status:  string(e.Status),
			Details: e.Details,
		})
	}

	result.Trace = append(result.Trace, TraceEvent{
		Type:    EventResult,
		Run:     run,
		Message: res.Message,
	})
	return nil
}

// toRecord normalizes a YAML-decoded map into a Record. YAML timestamps
// and numbers pass through JSON so that they compare like stored values.
func toRecord(raw map[string]any) (record.Record, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	return record.Decode(data)
}
