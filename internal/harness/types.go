package harness

// Trace event types.
const (
	TracePersist   = "persist"
	TraceMerge     = "merge"
	TraceRemove    = "remove"
	TraceFind      = "find"
	TraceQuery     = "query"
	TraceLifecycle = "event"
)

// TraceEvent records one step or one lifecycle event of a scenario run.
//
// Steps carry the entity class (writes and finds) or the query string in
// Action. Lifecycle events carry the event kind, e.g. "post-persist", in
// Action and the class in Entity.
type TraceEvent struct {
	Type   string `json:"type"`
	Action string `json:"action"`
	Entity string `json:"entity,omitempty"`
	Args   any    `json:"args,omitempty"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
	Seq    int64  `json:"seq"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every expectation and assertion held.
	Pass bool `json:"pass"`

	// Trace contains every step and lifecycle event in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains expectation and assertion failures.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

func (r *Result) addTrace(ev TraceEvent) {
	r.Trace = append(r.Trace, ev)
}
