package harness

import (
	"bytes"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/wardsync/internal/model"
)

// Scenario defines a conformance scenario: the state of both sides before
// a sync, the local edits to queue, how the authority answers, and the
// assertions that must hold afterwards.
type Scenario struct {
	// Name uniquely identifies this scenario.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Start is the fixed clock reading. Defaults to testutil.DefaultTime.
	Start time.Time `yaml:"start,omitempty"`

	// MaxAttempts overrides the engine's transient-failure budget.
	MaxAttempts *int `yaml:"max_attempts,omitempty"`

	// Local seeds the Local Store, keyed by entity type wire name.
	Local map[string][]map[string]any `yaml:"local,omitempty"`

	// Server seeds the authority, keyed by entity type wire name.
	Server map[string][]map[string]any `yaml:"server,omitempty"`

	// Edits are applied locally and queued, in order, before the first run.
	Edits []EditStep `yaml:"edits"`

	// Responses script the authority's answers. Unscripted requests are
	// applied to the server records and answered 200.
	Responses []ResponseStep `yaml:"responses,omitempty"`

	// Offline makes the authority unreachable for every run.
	Offline bool `yaml:"offline,omitempty"`

	// Runs is the number of sync runs. Defaults to 1.
	Runs int `yaml:"runs,omitempty"`

	// Assertions validate results, the queue, the log and both stores.
	Assertions []Assertion `yaml:"assertions"`
}

// EditStep is one local change queued through Engine.Record.
type EditStep struct {
	// Entity is the entity type wire name, e.g. "patients".
	Entity string `yaml:"entity"`

	// ID defaults to record.id.
	ID string `yaml:"id,omitempty"`

	// Method defaults to PUT, or DELETE when Record is absent.
	Method string `yaml:"method,omitempty"`

	Endpoint string            `yaml:"endpoint,omitempty"`
	Headers  map[string]string `yaml:"headers,omitempty"`
	Record   map[string]any    `yaml:"record,omitempty"`
}

// ResponseStep scripts replies for requests matching method and path.
// Replies are consumed in order; the last one repeats.
type ResponseStep struct {
	Method  string      `yaml:"method"`
	Path    string      `yaml:"path"`
	Replies []ReplyStep `yaml:"replies"`
}

// ReplyStep is one scripted answer.
type ReplyStep struct {
	Status int    `yaml:"status,omitempty"`
	Body   string `yaml:"body,omitempty"`
	// Error simulates a transport failure with this message.
	Error string `yaml:"error,omitempty"`
}

// Assertion validates the outcome of a scenario.
type Assertion struct {
	// Type specifies the assertion type:
	// - "result": the Result of run Run (default: last run)
	// - "queue_length": Count mutations remain queued
	// - "dead_letters": Count mutations were dead-lettered
	// - "log_contains": an entry matches Action, Status and Details
	// - "log_count": Count entries match Status (all when empty)
	// - "local_state", "server_state": record Entity/ID matches Expect
	//   (subset match) or is Absent
	// - "metadata": SyncMetadata fields match
	Type string `yaml:"type"`

	// Run selects the run for "result", 1-based.
	Run int `yaml:"run,omitempty"`

	Success   *bool  `yaml:"success,omitempty"`
	Message   string `yaml:"message,omitempty"`
	Succeeded *int   `yaml:"succeeded,omitempty"`
	Conflicts *int   `yaml:"conflicts,omitempty"`
	Failed    *int   `yaml:"failed,omitempty"`

	Count *int `yaml:"count,omitempty"`

	Action  string `yaml:"action,omitempty"`
	Status  string `yaml:"status,omitempty"`
	Details string `yaml:"details,omitempty"` // substring match

	Entity string         `yaml:"entity,omitempty"`
	ID     string         `yaml:"id,omitempty"`
	Expect map[string]any `yaml:"expect,omitempty"`
	Absent bool           `yaml:"absent,omitempty"`

	PendingChanges *int  `yaml:"pending_changes,omitempty"`
	InProgress     *bool `yaml:"sync_in_progress,omitempty"`
	Synced         *bool `yaml:"synced,omitempty"` // lastSyncTime set
}

// Assertion type constants.
const (
	AssertResult      = "result"
	AssertQueueLength = "queue_length"
	AssertDeadLetters = "dead_letters"
	AssertLogContains = "log_contains"
	AssertLogCount    = "log_count"
	AssertLocalState  = "local_state"
	AssertServerState = "server_state"
	AssertMetadata    = "metadata"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Reject unknown fields so typos like "assertion:" fail loudly.
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	if s.Runs < 0 {
		return fmt.Errorf("runs must be non-negative")
	}

	for name := range s.Local {
		if _, err := model.ParseEntityType(name); err != nil {
			return fmt.Errorf("local: %w", err)
		}
	}
	for name := range s.Server {
		if _, err := model.ParseEntityType(name); err != nil {
			return fmt.Errorf("server: %w", err)
		}
	}

	for i, edit := range s.Edits {
		if _, err := model.ParseEntityType(edit.Entity); err != nil {
			return fmt.Errorf("edits[%d]: %w", i, err)
		}
		if edit.ID == "" && edit.Record["id"] == nil {
			return fmt.Errorf("edits[%d]: id or record.id is required", i)
		}
		if edit.Record == nil && edit.Method != "" && !strings.EqualFold(edit.Method, http.MethodDelete) {
			return fmt.Errorf("edits[%d]: record is required for %s", i, edit.Method)
		}
	}

	for i, r := range s.Responses {
		if r.Method == "" || r.Path == "" {
			return fmt.Errorf("responses[%d]: method and path are required", i)
		}
		if len(r.Replies) == 0 {
			return fmt.Errorf("responses[%d]: replies must be non-empty", i)
		}
		for j, reply := range r.Replies {
			if reply.Error == "" && reply.Status == 0 {
				return fmt.Errorf("responses[%d].replies[%d]: status or error is required", i, j)
			}
		}
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertResult, AssertMetadata:
	case AssertQueueLength, AssertDeadLetters, AssertLogCount:
		if a.Count == nil {
			return fmt.Errorf("assertions[%d]: count is required for %s", index, a.Type)
		}
		if *a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for %s", index, a.Type)
		}
	case AssertLogContains:
		if a.Action == "" && a.Status == "" && a.Details == "" {
			return fmt.Errorf("assertions[%d]: action, status or details is required for log_contains", index)
		}
	case AssertLocalState, AssertServerState:
		if _, err := model.ParseEntityType(a.Entity); err != nil {
			return fmt.Errorf("assertions[%d]: %w", index, err)
		}
		if a.ID == "" {
			return fmt.Errorf("assertions[%d]: id is required for %s", index, a.Type)
		}
		if !a.Absent && len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect or absent is required for %s", index, a.Type)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
