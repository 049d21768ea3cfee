package harness

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestScenarios runs every scenario under testdata and compares its trace
// with testdata/golden. Regenerate with:
//
//	go test ./internal/harness -run TestScenarios -update
func TestScenarios(t *testing.T) {
	files, err := filepath.Glob(filepath.Join("testdata", "*.yaml"))
	require.NoError(t, err)
	require.NotEmpty(t, files)

	for _, file := range files {
		scenario, err := LoadScenario(file)
		require.NoError(t, err, file)

		t.Run(scenario.Name, func(t *testing.T) {
			result, err := RunWithGolden(t, scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "assertion failures:\n%v", result.Errors)
		})
	}
}

func TestSnapshot_Canonical(t *testing.T) {
	data, err := Snapshot("demo", []TraceEvent{
		{Type: EventRequest, Run: 1, Method: "PUT", URL: "/patients/p1"},
		{Type: EventLog, Run: 1, Action: "PUT /patients/p1", Status: "success", Details: "status 200"},
		{Type: EventResult, Run: 1, Message: "Sync completed: 1 succeeded, 0 conflicts, 0 failed"},
	})
	require.NoError(t, err)

	assert.Equal(t,
		`{"scenario_name":"demo","trace":[`+
			`{"method":"PUT","run":1,"type":"request","url":"/patients/p1"},`+
			`{"action":"PUT /patients/p1","details":"status 200","run":1,"status":"success","type":"log"},`+
			`{"message":"Sync completed: 1 succeeded, 0 conflicts, 0 failed","run":1,"type":"result"}]}`,
		string(data))
}

func TestSnapshot_Deterministic(t *testing.T) {
	scenario, err := LoadScenario(filepath.Join("testdata", "mixed-outcomes.yaml"))
	require.NoError(t, err)

	first, err := Run(scenario)
	require.NoError(t, err)
	second, err := Run(scenario)
	require.NoError(t, err)

	a, err := Snapshot(scenario.Name, first.Trace)
	require.NoError(t, err)
	b, err := Snapshot(scenario.Name, second.Trace)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestSnapshot_EmptyTrace(t *testing.T) {
	data, err := Snapshot("empty", nil)
	require.NoError(t, err)
	assert.Equal(t, `{"scenario_name":"empty","trace":[]}`, string(data))
}
