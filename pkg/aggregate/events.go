package aggregate

// Event kinds delivered on the progress boundary.
const (
	EventUnitStarted = "unit_started"
	EventUnitSkipped = "unit_skipped"
	EventUnitErrored = "unit_errored"
	EventRunSummary  = "run_summary"
)

// Event is one structured progress notification. The pipeline never
// writes to stdout or stderr; front-ends subscribe to events and decide
// how to display them.
type Event struct {
	Kind    string      `json:"kind"`
	Path    string      `json:"path,omitempty"`    // Unit-relative path for per-unit events.
	Reason  string      `json:"reason,omitempty"`  // Skip or error reason.
	Summary *RunSummary `json:"summary,omitempty"` // Set on run_summary events.
}

// ProgressFunc consumes pipeline events. Callbacks run on pipeline
// goroutines and should return quickly.
type ProgressFunc func(Event)
