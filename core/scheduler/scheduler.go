// Package scheduler is the facade an external trigger source (cron,
// interval, or manual) submits fire events through. It owns neither a
// clock nor cron parsing; it only accepts submissions, enforces
// idempotency by (schedule_id, fire_time), and drives the run-state
// machine down to the Dispatcher.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/ryansmccoy/spine-core/core/dispatcher"
	"github.com/ryansmccoy/spine-core/infrastructure/errors"
	"github.com/ryansmccoy/spine-core/infrastructure/resilience"
)

// RunStatus is a scheduled run's lifecycle state.
type RunStatus string

const (
	RunPending      RunStatus = "PENDING"
	RunQueued       RunStatus = "QUEUED"
	RunRunning      RunStatus = "RUNNING"
	RunCompleted    RunStatus = "COMPLETED"
	RunFailed       RunStatus = "FAILED"
	RunDeadLettered RunStatus = "DEAD_LETTERED"
	RunCancelling   RunStatus = "CANCELLING"
	RunCancelled    RunStatus = "CANCELLED"
)

var validTransitions = map[RunStatus][]RunStatus{
	RunPending:    {RunQueued, RunCancelling},
	RunQueued:     {RunRunning, RunCancelling},
	RunRunning:    {RunCompleted, RunFailed, RunCancelling},
	RunFailed:     {RunDeadLettered},
	RunCancelling: {RunCancelled},
}

// Run is one scheduled fire event's tracked state.
type Run struct {
	RunID      string
	ScheduleID string
	FireTime   time.Time
	Pipeline   string
	Params     map[string]any
	Status     RunStatus
}

// canTransition reports whether moving from 'from' to 'to' is legal.
func canTransition(from, to RunStatus) bool {
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Facade submits schedule fires, deduplicates by (schedule_id,
// fire_time), and drives a Run through its state machine on top of the
// Dispatcher.
type Facade struct {
	dispatcher *dispatcher.Dispatcher
	redis      *redis.Client
	leaseCB    *resilience.CircuitBreaker

	mu   sync.Mutex
	runs map[string]*Run // keyed by dedupKey(schedule_id, fire_time)
}

// New builds a Facade. redisClient may be nil, in which case the
// in-memory dedup map is the only idempotency guard (single-process
// only); a non-nil client additionally takes a distributed partition
// lease so multiple facade instances don't double-submit the same fire.
// Lease acquisition is guarded by a circuit breaker so a degraded Redis
// fails fast instead of stalling every Submit behind repeated timeouts.
func New(d *dispatcher.Dispatcher, redisClient *redis.Client) *Facade {
	return &Facade{
		dispatcher: d,
		redis:      redisClient,
		leaseCB:    resilience.New(resilience.StrictServiceCBConfig(nil)),
		runs:       make(map[string]*Run),
	}
}

func dedupKey(scheduleID string, fireTime time.Time) string {
	return fmt.Sprintf("%s@%d", scheduleID, fireTime.Unix())
}

// Submit accepts a fire event for scheduleID at fireTime. A duplicate
// submission for the same (schedule_id, fire_time) returns the
// previously created Run rather than creating a second one.
func (f *Facade) Submit(ctx context.Context, scheduleID, pipelineName string, params map[string]any, fireTime time.Time) (*Run, error) {
	key := dedupKey(scheduleID, fireTime)

	f.mu.Lock()
	if existing, ok := f.runs[key]; ok {
		f.mu.Unlock()
		return existing, nil
	}
	run := &Run{
		RunID:      uuid.NewString(),
		ScheduleID: scheduleID,
		FireTime:   fireTime,
		Pipeline:   pipelineName,
		Params:     params,
		Status:     RunPending,
	}
	f.runs[key] = run
	f.mu.Unlock()

	if f.redis != nil {
		acquired, err := f.acquireLease(ctx, key)
		if err != nil {
			return nil, err
		}
		if !acquired {
			return run, nil
		}
	}

	if err := f.transition(run, RunQueued); err != nil {
		return nil, err
	}
	return run, nil
}

// acquireLease takes a distributed, process-external lock on key using
// Redis SETNX with an expiry, preventing two facade instances from
// double-submitting the same fire. The call is retried with backoff on
// transient errors and routed through a circuit breaker so a Redis
// outage trips open after a handful of failures rather than stalling
// every subsequent Submit behind the same dead connection.
func (f *Facade) acquireLease(ctx context.Context, key string) (bool, error) {
	var acquired bool
	err := f.leaseCB.Execute(ctx, func() error {
		return resilience.Retry(ctx, resilience.RetryConfig{
			MaxAttempts:  3,
			InitialDelay: 10 * time.Millisecond,
			MaxDelay:     200 * time.Millisecond,
			Multiplier:   2.0,
			Jitter:       0.2,
		}, func() error {
			ok, err := f.redis.SetNX(ctx, "spine:sched:lease:"+key, "1", 5*time.Minute).Result()
			if err != nil {
				return err
			}
			acquired = ok
			return nil
		})
	})
	if err != nil {
		return false, errors.Wrap(errors.KindOrchestration, errors.CategorySchedule, "lease acquisition failed", true, err)
	}
	return acquired, nil
}

// Run dispatches run through the Dispatcher once it is QUEUED, moving it
// to RUNNING and then COMPLETED/FAILED based on the pipeline outcome.
func (f *Facade) Run(ctx context.Context, run *Run) error {
	if run.Status != RunQueued {
		return errors.ScheduleError(fmt.Errorf("run %s is not QUEUED (status=%s)", run.RunID, run.Status))
	}
	if err := f.transition(run, RunRunning); err != nil {
		return err
	}

	_, err := f.dispatcher.Submit(ctx, run.Pipeline, run.Params, "", run.RunID)
	if err != nil {
		_ = f.transition(run, RunFailed)
		return err
	}
	return f.transition(run, RunCompleted)
}

// Cancel requests cancellation of run, cooperative: it only flips the
// status; a running pipeline observes it between steps.
func (f *Facade) Cancel(run *Run) error {
	if err := f.transition(run, RunCancelling); err != nil {
		return err
	}
	return f.transition(run, RunCancelled)
}

// DeadLetter moves a FAILED run to DEAD_LETTERED, the terminal state for
// a run that exhausted its retry policy.
func (f *Facade) DeadLetter(run *Run) error {
	return f.transition(run, RunDeadLettered)
}

// Health is the facade's process-level readiness snapshot: the trigger
// source polls this before handing off a fresh batch of fires, so a
// loaded instance can be skipped rather than pushed further into
// backlog.
type Health struct {
	InFlightRuns   int
	CPUPercent     float64
	MemUsedPercent float64
}

// Health reports current in-flight run count alongside process CPU/memory
// pressure, read via gopsutil. A gopsutil read failure degrades to zeroed
// CPU/memory fields rather than failing the whole health check — a
// trigger source should still see InFlightRuns even when the sampler
// itself is unavailable.
func (f *Facade) Health(ctx context.Context) (Health, error) {
	f.mu.Lock()
	inFlight := 0
	for _, run := range f.runs {
		if run.Status == RunQueued || run.Status == RunRunning || run.Status == RunCancelling {
			inFlight++
		}
	}
	f.mu.Unlock()

	h := Health{InFlightRuns: inFlight}

	if percents, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(percents) > 0 {
		h.CPUPercent = percents[0]
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		h.MemUsedPercent = vm.UsedPercent
	}
	return h, nil
}

func (f *Facade) transition(run *Run, to RunStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !canTransition(run.Status, to) {
		return errors.ScheduleError(fmt.Errorf("illegal transition %s -> %s for run %s", run.Status, to, run.RunID))
	}
	run.Status = to
	return nil
}
