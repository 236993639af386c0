package harness

// TraceEvent records one applied quad change and the result changes it
// caused, per query.
type TraceEvent struct {
	Step    int           `json:"step"`
	Seq     int64         `json:"seq"`
	Op      string        `json:"op"` // "add" or "remove"
	Quad    string        `json:"quad"`
	Changes []ChangeEvent `json:"changes,omitempty"`
}

// ChangeEvent is one result change reported by a query, rendered as
// "+{?x=<a>}" or "-{?x=<a>}".
type ChangeEvent struct {
	Query  string `json:"query"`
	Change string `json:"change"`
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if every expect clause and assertion matched.
	Pass bool `json:"pass"`

	// Trace contains every applied change in order, setup excluded.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Results holds the final snapshot of each query, rows rendered as
	// mapping strings.
	Results map[string][]string `json:"results"`
}

// NewResult creates a new passing result.
// Used as the starting point for test execution.
func NewResult() *Result {
	return &Result{
		Pass:    true,
		Trace:   []TraceEvent{},
		Errors:  []string{},
		Results: make(map[string][]string),
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
