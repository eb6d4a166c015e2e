package workflow

import "time"

// StepExecution records one step's outcome for observability and resume.
type StepExecution struct {
	StepName  string
	Status    StepStatus
	StartedAt time.Time
	Error     string
	Category  string
}

// Context is immutable-append: every With* method returns a new Context
// leaving the receiver untouched. Readers access fields only through the
// accessor methods below.
type Context struct {
	RunID         string
	WorkflowName  string
	Partition     string
	ExecutionID   string
	params        map[string]any
	outputs       map[string]map[string]any
	stepExecutions []StepExecution
}

// NewContext builds the initial Context for a fresh workflow run.
func NewContext(runID, workflowName, partition string, params map[string]any) Context {
	return Context{
		RunID:        runID,
		WorkflowName: workflowName,
		Partition:    partition,
		params:       copyAnyMap(params),
		outputs:      map[string]map[string]any{},
	}
}

// GetParam reads a param by name; ok is false when absent.
func (c Context) GetParam(name string) (any, bool) {
	v, ok := c.params[name]
	return v, ok
}

// Params returns a copy of the full param set, the shape Choice/Map
// predicate evaluation runs against.
func (c Context) Params() map[string]any {
	return copyAnyMap(c.params)
}

// GetOutput reads a previously recorded step output by step name.
func (c Context) GetOutput(stepName string) (map[string]any, bool) {
	v, ok := c.outputs[stepName]
	return v, ok
}

// HasOutput reports whether stepName has already produced output —
// the predicate Resume uses to skip already-completed steps.
func (c Context) HasOutput(stepName string) bool {
	_, ok := c.outputs[stepName]
	return ok
}

// Outputs returns a copy of every recorded step output, keyed by step
// name — the shape Map's items_path resolves against when items come
// from a prior step's output.
func (c Context) Outputs() map[string]any {
	out := make(map[string]any, len(c.outputs))
	for k, v := range c.outputs {
		out[k] = v
	}
	return out
}

// WithOutput returns a new Context with stepName's output recorded.
func (c Context) WithOutput(stepName string, output map[string]any) Context {
	next := c.clone()
	next.outputs[stepName] = output
	return next
}

// WithParamUpdates returns a new Context with updates merged into params.
func (c Context) WithParamUpdates(updates map[string]any) Context {
	next := c.clone()
	for k, v := range updates {
		next.params[k] = v
	}
	return next
}

// WithStepExecution returns a new Context with exec appended to the
// step_executions log.
func (c Context) WithStepExecution(exec StepExecution) Context {
	next := c.clone()
	next.stepExecutions = append(append([]StepExecution{}, c.stepExecutions...), exec)
	return next
}

// StepExecutions returns the ordered log of every step attempted so far.
func (c Context) StepExecutions() []StepExecution {
	out := make([]StepExecution, len(c.stepExecutions))
	copy(out, c.stepExecutions)
	return out
}

func (c Context) clone() Context {
	next := c
	next.params = copyAnyMap(c.params)
	next.outputs = make(map[string]map[string]any, len(c.outputs))
	for k, v := range c.outputs {
		next.outputs[k] = v
	}
	return next
}

func copyAnyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
