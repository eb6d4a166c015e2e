// Package dispatcher allocates executions, resolves parameters, and hands
// pipeline runs to the Runner. It persists the Execution lifecycle the
// rest of the substrate observes through core_executions and
// core_execution_events.
package dispatcher

import (
	"context"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/ryansmccoy/spine-core/core/pipeline"
	"github.com/ryansmccoy/spine-core/core/repository"
	"github.com/ryansmccoy/spine-core/infrastructure/errors"
)

const (
	executionsTable = "core_executions"
	eventsTable     = "core_execution_events"
)

// Status is an Execution's lifecycle state.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusRunning   Status = "RUNNING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

// Execution is the persisted record of one pipeline run.
type Execution struct {
	ID                string
	Pipeline          string
	ParamsJSON        map[string]any
	Status            Status
	ParentExecutionID string
	BatchID           string
	StartedAt         time.Time
	CompletedAt       *time.Time

	// ResultStatus/ResultMetrics carry the pipeline.Result the underlying
	// Pipeline.Run returned on success — distinct from Status, which is
	// this Execution's own lifecycle state. A pipeline that short-circuits
	// with pipeline.StatusSkipped still completes its Execution lifecycle
	// normally; callers that care about the skip (e.g. the workflow
	// Runner) inspect ResultStatus.
	ResultStatus  pipeline.Status
	ResultMetrics map[string]any
}

// Dispatcher allocates executions and hands them to a Runner. A limiter,
// when set, throttles submissions per dispatcher instance — a process-
// wide rate cap, not a per-partition lease (that belongs to the
// scheduler facade).
type Dispatcher struct {
	repo     *repository.Repository
	registry *pipeline.Registry
	limiter  *rate.Limiter
}

// New builds a Dispatcher. ratePerSecond <= 0 disables rate limiting.
func New(repo *repository.Repository, registry *pipeline.Registry, ratePerSecond float64, burst int) *Dispatcher {
	d := &Dispatcher{repo: repo, registry: registry}
	if ratePerSecond > 0 {
		d.limiter = rate.NewLimiter(rate.Limit(ratePerSecond), burst)
	}
	return d
}

// Submit allocates an execution_id, persists a PENDING Execution row,
// resolves params through the pipeline's parameter resolver, and hands
// off to Run. It returns the final Execution regardless of whether the
// pipeline succeeded — callers inspect Status and the returned error.
func (d *Dispatcher) Submit(ctx context.Context, pipelineName string, rawParams map[string]any, parentExecutionID, batchID string) (Execution, error) {
	if d.limiter != nil {
		if err := d.limiter.Wait(ctx); err != nil {
			return Execution{}, errors.Timeout("dispatcher rate limiter wait")
		}
	}

	exec := Execution{
		ID:                uuid.NewString(),
		Pipeline:          pipelineName,
		ParamsJSON:        rawParams,
		Status:            StatusPending,
		ParentExecutionID: parentExecutionID,
		BatchID:           batchID,
		StartedAt:         time.Now().UTC(),
	}
	if err := d.persist(ctx, exec); err != nil {
		return Execution{}, err
	}
	if err := d.recordEvent(ctx, exec.ID, "SUBMITTED", map[string]any{"pipeline": pipelineName}); err != nil {
		return exec, err
	}

	return d.run(ctx, exec, rawParams)
}

func (d *Dispatcher) run(ctx context.Context, exec Execution, rawParams map[string]any) (Execution, error) {
	p, err := d.registry.Lookup(exec.Pipeline)
	if err != nil {
		return d.fail(ctx, exec, err)
	}

	resolved, err := pipeline.Resolve(p.Spec(), rawParams)
	if err != nil {
		return d.fail(ctx, exec, err)
	}

	exec.Status = StatusRunning
	if err := d.updateStatus(ctx, exec); err != nil {
		return exec, err
	}
	if err := d.recordEvent(ctx, exec.ID, "RUNNING", nil); err != nil {
		return exec, err
	}

	execCtx := pipeline.ExecutionContext{
		ExecutionID:  exec.ID,
		BatchID:      exec.BatchID,
		PartitionKey: asString(resolved["partition_key"]),
	}

	result, runErr := p.Run(ctx, resolved, execCtx)
	if runErr != nil {
		return d.fail(ctx, exec, runErr)
	}

	now := time.Now().UTC()
	exec.Status = StatusCompleted
	exec.CompletedAt = &now
	exec.ResultStatus = result.Status
	exec.ResultMetrics = result.Metrics
	if err := d.updateStatus(ctx, exec); err != nil {
		return exec, err
	}
	if err := d.recordEvent(ctx, exec.ID, "COMPLETED", map[string]any{"status": result.Status, "metrics": result.Metrics}); err != nil {
		return exec, err
	}
	return exec, nil
}

func (d *Dispatcher) fail(ctx context.Context, exec Execution, cause error) (Execution, error) {
	now := time.Now().UTC()
	exec.Status = StatusFailed
	exec.CompletedAt = &now
	_ = d.updateStatus(ctx, exec)

	data := map[string]any{"error": cause.Error()}
	if se := errors.As(cause); se != nil {
		data = se.ToMap()
	}
	_ = d.recordEvent(ctx, exec.ID, "FAILED", data)
	return exec, cause
}

func (d *Dispatcher) persist(ctx context.Context, exec Execution) error {
	values := repository.Row{
		"id":                  exec.ID,
		"pipeline":            exec.Pipeline,
		"params_json":         exec.ParamsJSON,
		"status":              string(exec.Status),
		"parent_execution_id": exec.ParentExecutionID,
		"batch_id":            exec.BatchID,
		"started_at":          exec.StartedAt,
		"completed_at":        exec.CompletedAt,
	}
	_, err := d.repo.Insert(ctx, executionsTable, values)
	return err
}

func (d *Dispatcher) updateStatus(ctx context.Context, exec Execution) error {
	dlt := d.repo.Dialect()
	_, err := d.repo.Execute(ctx,
		`UPDATE `+executionsTable+` SET status = `+dlt.Placeholder(0)+`, completed_at = `+dlt.Placeholder(1)+` WHERE id = `+dlt.Placeholder(2),
		string(exec.Status), exec.CompletedAt, exec.ID,
	)
	return err
}

func (d *Dispatcher) recordEvent(ctx context.Context, executionID, eventType string, data map[string]any) error {
	values := repository.Row{
		"id":           uuid.NewString(),
		"execution_id": executionID,
		"event_type":   eventType,
		"timestamp":    time.Now().UTC(),
		"data_json":    data,
	}
	_, err := d.repo.Insert(ctx, eventsTable, values)
	return err
}

func asString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}
