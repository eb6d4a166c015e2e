package dispatcher

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ryansmccoy/spine-core/core/dialect"
	"github.com/ryansmccoy/spine-core/core/pipeline"
	"github.com/ryansmccoy/spine-core/core/repository"
)

type okPipeline struct{}

func (okPipeline) Spec() pipeline.Spec {
	return pipeline.Spec{Params: []pipeline.ParamSpec{{Name: "partition_key", Required: true}}}
}
func (okPipeline) Run(ctx context.Context, params map[string]any, execCtx pipeline.ExecutionContext) (pipeline.Result, error) {
	return pipeline.Result{Status: pipeline.StatusCompleted, Metrics: map[string]any{"rows": 10}}, nil
}

type failingPipeline struct{}

func (failingPipeline) Spec() pipeline.Spec { return pipeline.Spec{} }
func (failingPipeline) Run(ctx context.Context, params map[string]any, execCtx pipeline.ExecutionContext) (pipeline.Result, error) {
	return pipeline.Result{}, assert.AnError
}

func newTestDispatcher(t *testing.T) (*Dispatcher, *pipeline.Registry, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	repo := repository.New(sqlx.NewDb(db, "postgres"), dialect.MustGet(dialect.PostgreSQL))
	registry := pipeline.NewRegistry()
	return New(repo, registry, 0, 0), registry, mock
}

func TestSubmitCompletesSuccessfully(t *testing.T) {
	d, registry, mock := newTestDispatcher(t)
	registry.Register("ingest_otc", func() pipeline.Pipeline { return okPipeline{} })

	mock.ExpectExec(`INSERT INTO core_executions`).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`INSERT INTO core_execution_events`).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`UPDATE core_executions SET status`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO core_execution_events`).WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectExec(`UPDATE core_executions SET status`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO core_execution_events`).WillReturnResult(sqlmock.NewResult(3, 1))

	exec, err := d.Submit(context.Background(), "ingest_otc", map[string]any{"partition_key": "p1"}, "", "batch-1")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, exec.Status)
}

func TestSubmitUnknownPipelineFails(t *testing.T) {
	d, _, mock := newTestDispatcher(t)
	mock.ExpectExec(`INSERT INTO core_executions`).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`INSERT INTO core_execution_events`).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`UPDATE core_executions SET status`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO core_execution_events`).WillReturnResult(sqlmock.NewResult(2, 1))

	exec, err := d.Submit(context.Background(), "nonexistent", map[string]any{}, "", "")
	assert.Error(t, err)
	assert.Equal(t, StatusFailed, exec.Status)
}

func TestSubmitPipelineRunErrorMarksFailed(t *testing.T) {
	d, registry, mock := newTestDispatcher(t)
	registry.Register("broken", func() pipeline.Pipeline { return failingPipeline{} })

	mock.ExpectExec(`INSERT INTO core_executions`).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`INSERT INTO core_execution_events`).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`UPDATE core_executions SET status`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO core_execution_events`).WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectExec(`UPDATE core_executions SET status`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO core_execution_events`).WillReturnResult(sqlmock.NewResult(3, 1))

	exec, err := d.Submit(context.Background(), "broken", map[string]any{}, "", "")
	assert.Error(t, err)
	assert.Equal(t, StatusFailed, exec.Status)
}
