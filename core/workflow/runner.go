package workflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ryansmccoy/spine-core/core/dispatcher"
	"github.com/ryansmccoy/spine-core/core/pipeline"
	"github.com/ryansmccoy/spine-core/infrastructure/errors"
)

// Runner executes a Workflow's steps in declared order, applying Choice
// redirects, Wait delays, and Map fan-out/fan-in.
type Runner struct {
	dispatcher *dispatcher.Dispatcher
	store      *ContextStore
	dryRun     bool
}

// Option configures a Runner.
type Option func(*Runner)

// WithDryRun makes Pipeline steps return a synthesized OK without
// dispatching; Lambda steps still evaluate since they are pure.
func WithDryRun() Option {
	return func(r *Runner) { r.dryRun = true }
}

// WithContextStore enables resume support: Run and Resume persist a
// snapshot after every step, and Resume holds a per-run_id lock in the
// store while it runs. Resume does not load a snapshot itself; the caller
// loads one with ContextStore.Load and passes it in.
func WithContextStore(store *ContextStore) Option {
	return func(r *Runner) { r.store = store }
}

// NewRunner builds a Runner bound to the dispatcher that executes
// Pipeline steps.
func NewRunner(d *dispatcher.Dispatcher, opts ...Option) *Runner {
	r := &Runner{dispatcher: d}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes wf from its first step with a freshly initialized
// Context.
func (r *Runner) Run(ctx context.Context, wf *Workflow, runID, partition string, params map[string]any) (RunResult, error) {
	return r.run(ctx, wf, NewContext(runID, wf.Name, partition, params), 0, false)
}

// Resume restarts wf from startFromStep using a previously persisted
// Context (or the current in-memory one). Steps whose output is already
// present are skipped unless force is true.
func (r *Runner) Resume(ctx context.Context, wf *Workflow, wfCtx Context, startFromStep string, force bool) (RunResult, error) {
	startIdx := 0
	if startFromStep != "" {
		found := false
		for i, s := range wf.Steps {
			if s.Name == startFromStep {
				startIdx = i
				found = true
				break
			}
		}
		if !found {
			return RunResult{}, errors.BadParams("resume start step not found in workflow").WithContext("step", startFromStep)
		}
	}

	if r.store != nil {
		acquired, err := r.store.TryAcquireResumeLock(ctx, wfCtx.RunID)
		if err != nil {
			return RunResult{}, errors.WorkflowError(wfCtx.RunID, fmt.Errorf("acquiring resume lock: %w", err))
		}
		if !acquired {
			return RunResult{}, errors.WorkflowError(wfCtx.RunID, fmt.Errorf("resume already in progress for run_id %q", wfCtx.RunID))
		}
		defer func() { _ = r.store.ReleaseResumeLock(ctx, wfCtx.RunID) }()
	}

	return r.run(ctx, wf, wfCtx, startIdx, !force)
}

func (r *Runner) run(ctx context.Context, wf *Workflow, wfCtx Context, startIdx int, skipCompleted bool) (RunResult, error) {
	partial := false
	idx := startIdx

	for idx < len(wf.Steps) {
		step := wf.Steps[idx]

		if skipCompleted && wfCtx.HasOutput(step.Name) {
			idx++
			continue
		}

		started := time.Now().UTC()
		result, err := r.execute(ctx, step, wfCtx)
		if err != nil {
			result = StepResult{Status: StepFail, Error: err.Error()}
		}

		wfCtx = applyResult(wfCtx, step, started, result)
		if r.store != nil {
			_ = r.store.Save(ctx, wfCtx)
		}

		switch result.Status {
		case StepFail:
			if effectiveOnError(step.OnError) == OnErrorStop {
				return RunResult{Status: TerminalFailed, ErrorStep: step.Name, Context: wfCtx}, nil
			}
			partial = true
		}

		if step.Kind == KindChoice && result.Next != "" {
			nextIdx, ok := indexOfStep(wf, result.Next, idx)
			if !ok {
				return RunResult{}, errors.WorkflowError(step.Name, fmt.Errorf("choice target %q not found after current step (no backward jumps)", result.Next))
			}
			idx = nextIdx
			continue
		}

		idx++
	}

	status := TerminalCompleted
	if partial {
		status = TerminalPartial
	}
	return RunResult{Status: status, Context: wfCtx}, nil
}

func indexOfStep(wf *Workflow, name string, afterIdx int) (int, bool) {
	for i := afterIdx + 1; i < len(wf.Steps); i++ {
		if wf.Steps[i].Name == name {
			return i, true
		}
	}
	return 0, false
}

func applyResult(wfCtx Context, step Step, started time.Time, result StepResult) Context {
	next := wfCtx
	if result.Output != nil {
		next = next.WithOutput(step.Name, result.Output)
	}
	if result.ContextUpdates != nil {
		next = next.WithParamUpdates(result.ContextUpdates)
	}
	next = next.WithStepExecution(StepExecution{
		StepName:  step.Name,
		Status:    result.Status,
		StartedAt: started,
		Error:     result.Error,
		Category:  result.Category,
	})
	return next
}

func (r *Runner) execute(ctx context.Context, step Step, wfCtx Context) (StepResult, error) {
	switch step.Kind {
	case KindPipeline:
		return r.executePipeline(ctx, step, wfCtx)
	case KindLambda:
		return r.executeLambda(ctx, step, wfCtx)
	case KindChoice:
		return r.executeChoice(step, wfCtx)
	case KindWait:
		return r.executeWait(ctx, step)
	case KindMap:
		return r.executeMap(ctx, step, wfCtx)
	default:
		return StepResult{}, errors.BadParams("unknown step kind").WithContext("step", step.Name)
	}
}

func (r *Runner) executePipeline(ctx context.Context, step Step, wfCtx Context) (StepResult, error) {
	if r.dryRun {
		return StepResult{Status: StepOK, Output: map[string]any{"dry_run": true}}, nil
	}

	params := mergeParams(wfCtx.Params(), step.PipelineParams)
	exec, err := r.dispatcher.Submit(ctx, step.PipelineName, params, wfCtx.ExecutionID, wfCtx.RunID)
	if err != nil {
		se := errors.As(err)
		category := ""
		if se != nil {
			category = string(se.Category)
		}
		return StepResult{Status: StepFail, Error: err.Error(), Category: category}, nil
	}

	status := StepOK
	if exec.ResultStatus == pipeline.StatusSkipped {
		status = StepSkip
	}
	return StepResult{
		Status: status,
		Output: map[string]any{"execution_id": exec.ID, "status": string(exec.Status), "result_status": string(exec.ResultStatus)},
	}, nil
}

func (r *Runner) executeLambda(ctx context.Context, step Step, wfCtx Context) (StepResult, error) {
	if step.Fn == nil {
		return StepResult{}, errors.BadParams("lambda step missing Fn").WithContext("step", step.Name)
	}
	return step.Fn(ctx, wfCtx)
}

func (r *Runner) executeChoice(step Step, wfCtx Context) (StepResult, error) {
	matched, err := evalPredicate(step.Predicate, wfCtx)
	if err != nil {
		return StepResult{Status: StepFail, Error: err.Error()}, nil
	}
	next := step.ElseStep
	if matched {
		next = step.ThenStep
	}
	return StepResult{Status: StepOK, Next: next}, nil
}

func (r *Runner) executeWait(ctx context.Context, step Step) (StepResult, error) {
	if r.dryRun {
		return StepResult{Status: StepOK}, nil
	}
	timer := time.NewTimer(time.Duration(step.WaitSeconds) * time.Second)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return StepResult{Status: StepFail, Error: ctx.Err().Error()}, nil
	case <-timer.C:
		return StepResult{Status: StepOK}, nil
	}
}

func (r *Runner) executeMap(ctx context.Context, step Step, wfCtx Context) (StepResult, error) {
	if step.IteratorWorkflow == nil {
		return StepResult{}, errors.BadParams("map step missing iterator_workflow").WithContext("step", step.Name)
	}
	items, err := resolveItems(step.ItemsPath, wfCtx)
	if err != nil {
		return StepResult{Status: StepFail, Error: err.Error()}, nil
	}

	concurrency := step.MaxConcurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	outputs := make([]any, len(items))
	errs := make([]error, len(items))
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	for i, item := range items {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, item any) {
			defer wg.Done()
			defer func() { <-sem }()

			childParams := map[string]any{"item": item}
			childCtx := NewContext(fmt.Sprintf("%s:%d", wfCtx.RunID, i), step.IteratorWorkflow.Name, wfCtx.Partition, childParams)
			childResult, err := r.run(ctx, step.IteratorWorkflow, childCtx, 0, false)
			if err != nil {
				errs[i] = err
				return
			}
			if childResult.Status == TerminalFailed {
				errs[i] = fmt.Errorf("map child %d failed at step %q", i, childResult.ErrorStep)
				return
			}
			outputs[i] = childResult.Context.Outputs()
		}(i, item)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			return StepResult{Status: StepFail, Error: err.Error(), Output: map[string]any{"failed_index": i}}, nil
		}
	}

	return StepResult{Status: StepOK, Output: map[string]any{"items": outputs}}, nil
}

func mergeParams(base map[string]any, overrides map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(overrides))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range overrides {
		out[k] = v
	}
	return out
}
