package workflow

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/ryansmccoy/spine-core/infrastructure/state"
)

// snapshotDTO is the JSON-serializable projection of a Context, the shape
// persisted by ContextStore and reloaded on resume.
type snapshotDTO struct {
	RunID          string                    `json:"run_id"`
	WorkflowName   string                    `json:"workflow_name"`
	Partition      string                    `json:"partition"`
	ExecutionID    string                    `json:"execution_id"`
	Params         map[string]any            `json:"params"`
	Outputs        map[string]map[string]any `json:"outputs"`
	StepExecutions []StepExecution           `json:"step_executions"`
}

// ContextStore persists WorkflowContext snapshots keyed by run_id,
// backed by a state.PersistentState instance — the substrate's generic
// save/load/list key-value abstraction.
type ContextStore struct {
	state *state.PersistentState
}

// NewContextStore wraps a PersistentState as a workflow snapshot store.
func NewContextStore(ps *state.PersistentState) *ContextStore {
	return &ContextStore{state: ps}
}

// Save persists wfCtx's current snapshot under its run_id.
func (s *ContextStore) Save(ctx context.Context, wfCtx Context) error {
	dto := snapshotDTO{
		RunID:          wfCtx.RunID,
		WorkflowName:   wfCtx.WorkflowName,
		Partition:      wfCtx.Partition,
		ExecutionID:    wfCtx.ExecutionID,
		Params:         wfCtx.Params(),
		Outputs:        copyOutputs(wfCtx.outputs),
		StepExecutions: wfCtx.StepExecutions(),
	}
	data, err := json.Marshal(dto)
	if err != nil {
		return err
	}
	return s.state.Save(ctx, wfCtx.RunID, data)
}

// Load reloads the most recently persisted Context for runID.
func (s *ContextStore) Load(ctx context.Context, runID string) (Context, error) {
	data, err := s.state.Load(ctx, runID)
	if err != nil {
		if errors.Is(err, state.ErrNotFound) {
			return Context{}, ErrSnapshotNotFound
		}
		return Context{}, err
	}

	var dto snapshotDTO
	if err := json.Unmarshal(data, &dto); err != nil {
		return Context{}, err
	}

	wfCtx := NewContext(dto.RunID, dto.WorkflowName, dto.Partition, dto.Params)
	wfCtx.ExecutionID = dto.ExecutionID
	wfCtx.outputs = dto.Outputs
	wfCtx.stepExecutions = dto.StepExecutions
	return wfCtx, nil
}

// ErrSnapshotNotFound is returned by Load when runID has no persisted
// snapshot.
var ErrSnapshotNotFound = errors.New("workflow: no snapshot for run_id")

const (
	resumeLockKeyPrefix = "resume-lock:"
	resumeLockUnlocked  = "unlocked"
	resumeLockLocked    = "locked"
)

// TryAcquireResumeLock claims the resume lock for runID, reporting whether
// it was acquired. Concurrent resume attempts for the same run_id race on
// this call: the first to bootstrap the lock key via SaveIfAbsent and then
// flip it "unlocked" -> "locked" via CompareAndSwap wins; everyone else
// observes either a missing bootstrap race or a stale expected value and
// gets false.
func (s *ContextStore) TryAcquireResumeLock(ctx context.Context, runID string) (bool, error) {
	key := resumeLockKeyPrefix + runID

	if _, err := s.state.SaveIfAbsent(ctx, key, []byte(resumeLockUnlocked)); err != nil {
		return false, err
	}

	return s.state.CompareAndSwap(ctx, key, []byte(resumeLockUnlocked), []byte(resumeLockLocked))
}

// ReleaseResumeLock frees the resume lock for runID so a later resume
// attempt can proceed.
func (s *ContextStore) ReleaseResumeLock(ctx context.Context, runID string) error {
	return s.state.Save(ctx, resumeLockKeyPrefix+runID, []byte(resumeLockUnlocked))
}

func copyOutputs(m map[string]map[string]any) map[string]map[string]any {
	out := make(map[string]map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
