package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/wardsync/internal/record"
)

// Snapshot renders the trace of a scenario as canonical JSON, the format
// stored in golden files.
func Snapshot(scenarioName string, trace []TraceEvent) ([]byte, error) {
	events := make([]any, len(trace))
	for i, event := range trace {
		m := map[string]any{
			"type": event.Type,
			"run":  event.Run,
		}
		if event.Method != "" {
			m["method"] = event.Method
		}
		if event.URL != "" {
			m["url"] = event.URL
		}
		if event.Action != "" {
			m["action"] = event.Action
		}
		if event.Status != "" {
			m["status"] = event.Status
		}
		if event.Details != "" {
			m["details"] = event.Details
		}
		if event.Message != "" {
			m["message"] = event.Message
		}
		events[i] = m
	}

	return record.MarshalCanonical(map[string]any{
		"scenario_name": scenarioName,
		"trace":         events,
	})
}

// RunWithGolden executes a scenario and compares the trace against a golden file.
// The golden file is stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if trace doesn't match golden file.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares the given result's trace against a golden file
// without re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	traceJSON, err := Snapshot(scenarioName, result.Trace)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, traceJSON)

	return nil
}
