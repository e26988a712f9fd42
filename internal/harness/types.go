package harness

// TraceEvent records one executed step.
type TraceEvent struct {
	Seq     int            `json:"seq"`
	Op      string         `json:"op"`
	Args    map[string]any `json:"args,omitempty"`
	Outcome string         `json:"outcome"` // "ok" or "error"
	Error   string         `json:"error,omitempty"`
	Result  map[string]any `json:"result,omitempty"`
}

// Outcome values.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// FinalState is the editor state after the last step.
type FinalState struct {
	// External is the markup held by the external state.
	External string `json:"external"`

	// SurfaceMarkup is the editor surface's serialized content.
	SurfaceMarkup string `json:"surface_markup"`

	// SurfaceWrites counts writes pushed into the surface.
	SurfaceWrites int `json:"surface_writes"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every expectation and assertion held.
	Pass bool `json:"pass"`

	Trace  []TraceEvent `json:"trace"`
	Final  FinalState   `json:"final"`
	Errors []string     `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// addEvent appends ev to the trace with the next sequence number.
func (r *Result) addEvent(ev TraceEvent) TraceEvent {
	ev.Seq = len(r.Trace) + 1
	r.Trace = append(r.Trace, ev)
	return ev
}
