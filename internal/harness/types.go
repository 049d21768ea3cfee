package harness

import "github.com/roach88/wardsync/internal/engine"

// Trace event types.
const (
	EventRequest = "request"
	EventLog     = "log"
	EventResult  = "result"
)

// TraceEvent is one observable step of a scenario: a request the authority
// received, a Sync Log entry, or the summary of a run.
type TraceEvent struct {
	Type string `json:"type"`
	Run  int    `json:"run"`

	// request
	Method string `json:"method,omitempty"`
	URL    string `json:"url,omitempty"`

	// log
	Action  string `json:"action,omitempty"`
	Status  string `json:"status,omitempty"`
	Details string `json:"details,omitempty"`

	// result
	Message string `json:"message,omitempty"`
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if all assertions hold.
	Pass bool `json:"pass"`

	// Runs holds the Result of every sync run, in order.
	Runs []engine.Result `json:"runs"`

	// Trace contains requests, log entries and run summaries in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains assertion failures.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Runs:   []engine.Result{},
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
