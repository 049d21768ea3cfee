package harness

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/wardsync/internal/engine"
	"github.com/roach88/wardsync/internal/model"
	"github.com/roach88/wardsync/internal/record"
	"github.com/roach88/wardsync/internal/store"
	"github.com/roach88/wardsync/internal/testutil"
)

// AssertionContext provides what assertions inspect after the runs.
type AssertionContext struct {
	Ctx       context.Context
	Engine    *engine.Engine
	Store     store.Store
	Authority *testutil.FakeAuthority
}

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for i, event := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] run %d %s\n", i+1, event.Run, describeEvent(event))
		}
	}

	return buf.String()
}

func describeEvent(e TraceEvent) string {
	switch e.Type {
	case EventRequest:
		return fmt.Sprintf("request %s %s", e.Method, e.URL)
	case EventLog:
		return fmt.Sprintf("log %s [%s] %s", e.Action, e.Status, e.Details)
	default:
		return fmt.Sprintf("result %q", e.Message)
	}
}

// EvaluateAssertions runs every assertion and returns the failure messages.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errs []string
	for i, a := range assertions {
		if err := evaluate(result, a, actx); err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return errs
}

func evaluate(result *Result, a Assertion, actx *AssertionContext) error {
	switch a.Type {
	case AssertResult:
		return assertResult(result, a)
	case AssertQueueLength:
		n, err := actx.Engine.Queue().Len(actx.Ctx)
		if err != nil {
			return err
		}
		return assertCount(a, n, result.Trace)
	case AssertDeadLetters:
		dls, err := actx.Engine.Queue().DeadLetters(actx.Ctx)
		if err != nil {
			return err
		}
		return assertCount(a, len(dls), result.Trace)
	case AssertLogContains:
		return assertLogContains(actx, a, result.Trace)
	case AssertLogCount:
		entries, err := actx.Engine.Log().Filter(actx.Ctx, func(e model.LogEntry) bool {
			return a.Status == "" || string(e.Status) == a.Status
		})
		if err != nil {
			return err
		}
		return assertCount(a, len(entries), result.Trace)
	case AssertLocalState:
		return assertLocalState(actx, a)
	case AssertServerState:
		return assertServerState(actx, a)
	case AssertMetadata:
		return assertMetadata(actx, a)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

func assertResult(result *Result, a Assertion) error {
	if len(result.Runs) == 0 {
		return &AssertionError{Type: AssertResult, Expected: "at least one run", Actual: "no runs"}
	}
	idx := len(result.Runs) - 1
	if a.Run > 0 {
		idx = a.Run - 1
	}
	if idx >= len(result.Runs) {
		return &AssertionError{
			Type:     AssertResult,
			Expected: fmt.Sprintf("run %d", a.Run),
			Actual:   fmt.Sprintf("%d runs", len(result.Runs)),
		}
	}
	res := result.Runs[idx]

	var mismatches []string
	if a.Success != nil && res.Success != *a.Success {
		mismatches = append(mismatches, fmt.Sprintf("success=%t", res.Success))
	}
	if a.Message != "" && res.Message != a.Message {
		mismatches = append(mismatches, fmt.Sprintf("message=%q", res.Message))
	}
	if a.Succeeded != nil && res.Succeeded != *a.Succeeded {
		mismatches = append(mismatches, fmt.Sprintf("succeeded=%d", res.Succeeded))
	}
	if a.Conflicts != nil && res.Conflicts != *a.Conflicts {
		mismatches = append(mismatches, fmt.Sprintf("conflicts=%d", res.Conflicts))
	}
	if a.Failed != nil && res.Failed != *a.Failed {
		mismatches = append(mismatches, fmt.Sprintf("failed=%d", res.Failed))
	}
	if len(mismatches) == 0 {
		return nil
	}

	return &AssertionError{
		Type:     AssertResult,
		Expected: describeResultAssertion(a),
		Actual:   strings.Join(mismatches, ", "),
		Trace:    result.Trace,
	}
}

func describeResultAssertion(a Assertion) string {
	var parts []string
	if a.Success != nil {
		parts = append(parts, fmt.Sprintf("success=%t", *a.Success))
	}
	if a.Message != "" {
		parts = append(parts, fmt.Sprintf("message=%q", a.Message))
	}
	if a.Succeeded != nil {
		parts = append(parts, fmt.Sprintf("succeeded=%d", *a.Succeeded))
	}
	if a.Conflicts != nil {
		parts = append(parts, fmt.Sprintf("conflicts=%d", *a.Conflicts))
	}
	if a.Failed != nil {
		parts = append(parts, fmt.Sprintf("failed=%d", *a.Failed))
	}
	return strings.Join(parts, ", ")
}

func assertCount(a Assertion, got int, trace []TraceEvent) error {
	if got == *a.Count {
		return nil
	}
	return &AssertionError{
		Type:     a.Type,
		Expected: fmt.Sprintf("%d", *a.Count),
		Actual:   fmt.Sprintf("%d", got),
		Trace:    trace,
	}
}

func assertLogContains(actx *AssertionContext, a Assertion, trace []TraceEvent) error {
	entries, err := actx.Engine.Log().All(actx.Ctx)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if a.Action != "" && e.Action != a.Action {
			continue
		}
		if a.Status != "" && string(e.Status) != a.Status {
			continue
		}
		if a.Details != "" && !strings.Contains(e.Details, a.Details) {
			continue
		}
		return nil
	}
	return &AssertionError{
		Type:     AssertLogContains,
		Expected: fmt.Sprintf("entry action=%q status=%q details~%q", a.Action, a.Status, a.Details),
		Actual:   "not found in sync log",
		Trace:    trace,
	}
}

func assertLocalState(actx *AssertionContext, a Assertion) error {
	t, err := model.ParseEntityType(a.Entity)
	if err != nil {
		return err
	}
	data, ok, err := actx.Store.Get(actx.Ctx, t.Collection(), a.ID)
	if err != nil {
		return err
	}
	var rec record.Record
	if ok {
		if rec, err = record.Decode(data); err != nil {
			return err
		}
	}
	return matchRecord(a, rec, ok)
}

func assertServerState(actx *AssertionContext, a Assertion) error {
	t, err := model.ParseEntityType(a.Entity)
	if err != nil {
		return err
	}
	rec, ok := actx.Authority.Record(t, a.ID)
	return matchRecord(a, rec, ok)
}

// matchRecord checks presence and a subset of fields. Values are compared
// by their canonical JSON encoding.
func matchRecord(a Assertion, rec record.Record, found bool) error {
	where := fmt.Sprintf("%s/%s", a.Entity, a.ID)
	if a.Absent {
		if found {
			return &AssertionError{Type: a.Type, Expected: where + " absent", Actual: "record present"}
		}
		return nil
	}
	if !found {
		return &AssertionError{Type: a.Type, Expected: "record " + where, Actual: "record not found"}
	}

	want, err := toRecord(a.Expect)
	if err != nil {
		return err
	}

	keys := make([]string, 0, len(want))
	for k := range want {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var mismatches []string
	for _, k := range keys {
		wantJSON, err := record.MarshalCanonical(want[k])
		if err != nil {
			return err
		}
		got, present := rec[k]
		if !present {
			mismatches = append(mismatches, fmt.Sprintf("%s: missing", k))
			continue
		}
		gotJSON, err := record.MarshalCanonical(got)
		if err != nil {
			return err
		}
		if string(gotJSON) != string(wantJSON) {
			mismatches = append(mismatches, fmt.Sprintf("%s: got %s, want %s", k, gotJSON, wantJSON))
		}
	}
	if len(mismatches) == 0 {
		return nil
	}
	return &AssertionError{
		Type:     a.Type,
		Expected: "fields of " + where,
		Actual:   strings.Join(mismatches, "; "),
	}
}

func assertMetadata(actx *AssertionContext, a Assertion) error {
	m, err := actx.Engine.Meta().Get(actx.Ctx)
	if err != nil {
		return err
	}

	var mismatches []string
	if a.PendingChanges != nil && m.PendingChanges != *a.PendingChanges {
		mismatches = append(mismatches, fmt.Sprintf("pendingChanges=%d, want %d", m.PendingChanges, *a.PendingChanges))
	}
	if a.InProgress != nil && m.SyncInProgress != *a.InProgress {
		mismatches = append(mismatches, fmt.Sprintf("syncInProgress=%t, want %t", m.SyncInProgress, *a.InProgress))
	}
	if a.Synced != nil && (m.LastSyncTime != nil) != *a.Synced {
		mismatches = append(mismatches, fmt.Sprintf("lastSyncTime set=%t, want %t", m.LastSyncTime != nil, *a.Synced))
	}
	if len(mismatches) == 0 {
		return nil
	}
	return &AssertionError{
		Type:     AssertMetadata,
		Expected: "sync metadata",
		Actual:   strings.Join(mismatches, "; "),
	}
}
