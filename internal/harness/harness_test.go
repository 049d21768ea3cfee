package harness

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(n int) *int    { return &n }
func boolPtr(b bool) *bool { return &b }

func TestRun_SingleEdit(t *testing.T) {
	scenario := &Scenario{
		Name:        "single",
		Description: "one patient update",
		Edits: []EditStep{
			{Entity: "patients", Record: map[string]any{"id": "p1", "name": "Ada"}},
		},
		Assertions: []Assertion{
			{Type: AssertResult, Success: boolPtr(true), Succeeded: intPtr(1)},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.True(t, result.Pass, result.Errors)
	require.Len(t, result.Runs, 1)
	assert.Equal(t, "Sync completed: 1 succeeded, 0 conflicts, 0 failed", result.Runs[0].Message)

	// request + log + result
	require.Len(t, result.Trace, 3)
	assert.Equal(t, EventRequest, result.Trace[0].Type)
	assert.Equal(t, "/patients/p1", result.Trace[0].URL)
	assert.Equal(t, EventLog, result.Trace[1].Type)
	assert.Equal(t, EventResult, result.Trace[2].Type)
}

func TestRun_MutationIDsFollowEditOrder(t *testing.T) {
	scenario := &Scenario{
		Name:        "ids",
		Description: "ids are sequential",
		Offline:     true,
		Edits: []EditStep{
			{Entity: "billing", Record: map[string]any{"id": "b1"}},
			{Entity: "billing", Record: map[string]any{"id": "b2"}},
		},
		Assertions: []Assertion{{Type: AssertQueueLength, Count: intPtr(2)}},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)

	var details []string
	for _, e := range result.Trace {
		if e.Type == EventLog {
			details = append(details, e.Details)
		}
	}
	require.Len(t, details, 2)
	assert.Contains(t, details[0], "mutation=m-0001")
	assert.Contains(t, details[1], "mutation=m-0002")
}

func TestRun_MultipleRunsRecoverAfterTransientFailure(t *testing.T) {
	scenario := &Scenario{
		Name:        "recover",
		Description: "503 then 200",
		Runs:        2,
		Edits: []EditStep{
			{Entity: "appointments", Record: map[string]any{"id": "a1"}},
		},
		Responses: []ResponseStep{
			{Method: "PUT", Path: "/appointments/a1", Replies: []ReplyStep{{Status: 503}, {Status: 200}}},
		},
		Assertions: []Assertion{
			{Type: AssertResult, Run: 1, Success: boolPtr(false)},
			{Type: AssertResult, Run: 2, Success: boolPtr(true), Succeeded: intPtr(1)},
			{Type: AssertQueueLength, Count: intPtr(0)},
			{Type: AssertDeadLetters, Count: intPtr(0)},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)
	assert.Len(t, result.Runs, 2)
}

func TestRun_ScriptedTransportError(t *testing.T) {
	scenario := &Scenario{
		Name:        "reset",
		Description: "scripted network failure",
		Edits: []EditStep{
			{Entity: "inventory", Record: map[string]any{"id": "i1"}},
		},
		Responses: []ResponseStep{
			{Method: "PUT", Path: "/inventory/i1", Replies: []ReplyStep{{Error: "connection reset"}}},
		},
		Assertions: []Assertion{
			{Type: AssertLogContains, Status: "error", Details: "TRANSPORT: PUT /inventory/i1: connection reset"},
			{Type: AssertQueueLength, Count: intPtr(1)},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)
}

func TestRun_StartTimeStampsEdits(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	scenario := &Scenario{
		Name:        "start",
		Description: "custom clock",
		Start:       start,
		Offline:     true,
		Edits: []EditStep{
			{Entity: "doctors", Record: map[string]any{"id": "d1"}},
			{Entity: "doctors", Record: map[string]any{"id": "d2"}},
		},
		Assertions: []Assertion{
			{Type: AssertLocalState, Entity: "doctors", ID: "d1", Expect: map[string]any{"lastUpdated": "2025-06-01T12:00:00Z"}},
			{Type: AssertLocalState, Entity: "doctors", ID: "d2", Expect: map[string]any{"lastUpdated": "2025-06-01T12:00:01Z"}},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)
}

func TestRun_FailedAssertionsAreReported(t *testing.T) {
	scenario := &Scenario{
		Name:        "wrong",
		Description: "expectations that do not hold",
		Edits: []EditStep{
			{Entity: "patients", Record: map[string]any{"id": "p1"}},
		},
		Assertions: []Assertion{
			{Type: AssertResult, Success: boolPtr(false)},
			{Type: AssertQueueLength, Count: intPtr(5)},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)

	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], "success=true")
	assert.Contains(t, result.Errors[1], "Expected: 5")
}

func TestRun_InvalidEditFails(t *testing.T) {
	scenario := &Scenario{
		Name:        "bad-edit",
		Description: "unknown entity",
		Edits:       []EditStep{{Entity: "wards", ID: "w1"}},
		Assertions:  []Assertion{{Type: AssertResult}},
	}

	_, err := Run(scenario)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "edits[0]")
}

func TestRun_SeedRequiresIDs(t *testing.T) {
	scenario := &Scenario{
		Name:        "bad-seed",
		Description: "server record without id",
		Server:      map[string][]map[string]any{"patients": {{"name": "anonymous"}}},
		Assertions:  []Assertion{{Type: AssertResult}},
	}

	_, err := Run(scenario)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "id is required")
}
