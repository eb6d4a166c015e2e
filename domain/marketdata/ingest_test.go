package marketdata

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/ryansmccoy/spine-core/core/anomaly"
	"github.com/ryansmccoy/spine-core/core/dialect"
	"github.com/ryansmccoy/spine-core/core/manifest"
	"github.com/ryansmccoy/spine-core/core/pipeline"
	"github.com/ryansmccoy/spine-core/core/quality"
	"github.com/ryansmccoy/spine-core/core/readiness"
	"github.com/ryansmccoy/spine-core/core/repository"
)

func newTestRepo(t *testing.T) (*repository.Repository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return repository.New(sqlx.NewDb(db, "postgres"), dialect.MustGet(dialect.PostgreSQL)), mock
}

func TestIngestPipelineCapturesRowsAndAdvancesManifest(t *testing.T) {
	repo, mock := newTestRepo(t)
	m := manifest.New(repo, DomainName, Stages)
	q := quality.NewStore(repo)
	a := anomaly.New(repo)
	r := readiness.New(repo, a, DomainName)
	p := NewIngestPipeline(repo, m, q, r)

	mock.ExpectQuery(`SELECT MAX\(stage_rank\)`).WillReturnRows(sqlmock.NewRows([]string{"max_rank"}))
	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM otc_trades_raw`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`INSERT INTO otc_trades_raw`).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`INSERT INTO otc_trades_raw`).WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()
	mock.ExpectExec(`INSERT INTO core_manifest|UPDATE core_manifest`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO core_quality`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT anomaly_id`).WillReturnRows(sqlmock.NewRows(
		[]string{"anomaly_id", "domain", "stage", "partition_key", "severity", "category", "message", "detected_at", "metadata_json", "resolved_at"}))
	mock.ExpectExec(`INSERT INTO core_data_readiness|UPDATE core_data_readiness`).WillReturnResult(sqlmock.NewResult(0, 1))

	params := map[string]any{
		"partition_key": "2025-12-26|OTC",
		"rows": []any{
			map[string]any{"venue": "OTC", "symbol": "ABC", "shares": 100.0},
			map[string]any{"venue": "OTC", "symbol": "DEF", "shares": 50.0},
		},
	}

	result, err := p.Run(context.Background(), params, pipeline.ExecutionContext{ExecutionID: "exec-1"})
	require.NoError(t, err)
	require.Equal(t, pipeline.StatusCompleted, result.Status)
	require.EqualValues(t, 2, result.Metrics["row_count"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestIngestPipelineRejectsNonListRows(t *testing.T) {
	repo, mock := newTestRepo(t)
	m := manifest.New(repo, DomainName, Stages)
	q := quality.NewStore(repo)
	a := anomaly.New(repo)
	r := readiness.New(repo, a, DomainName)
	p := NewIngestPipeline(repo, m, q, r)

	mock.ExpectQuery(`SELECT MAX\(stage_rank\)`).WillReturnRows(sqlmock.NewRows([]string{"max_rank"}))

	_, err := p.Run(context.Background(), map[string]any{
		"partition_key": "2025-12-26|OTC",
		"rows":          "not-a-list",
	}, pipeline.ExecutionContext{})
	require.Error(t, err)
}

func TestIngestPipelineSkipsWhenAlreadyIngestedWithoutForce(t *testing.T) {
	repo, mock := newTestRepo(t)
	m := manifest.New(repo, DomainName, Stages)
	q := quality.NewStore(repo)
	a := anomaly.New(repo)
	r := readiness.New(repo, a, DomainName)
	p := NewIngestPipeline(repo, m, q, r)

	mock.ExpectQuery(`SELECT MAX\(stage_rank\)`).WillReturnRows(sqlmock.NewRows([]string{"max_rank"}).AddRow(0))

	result, err := p.Run(context.Background(), map[string]any{
		"partition_key": "2025-12-26|OTC",
		"rows":          []any{},
	}, pipeline.ExecutionContext{ExecutionID: "exec-1"})
	require.NoError(t, err)
	require.Equal(t, pipeline.StatusSkipped, result.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestIngestPipelineForceReingestsAlreadyIngestedPartition(t *testing.T) {
	repo, mock := newTestRepo(t)
	m := manifest.New(repo, DomainName, Stages)
	q := quality.NewStore(repo)
	a := anomaly.New(repo)
	r := readiness.New(repo, a, DomainName)
	p := NewIngestPipeline(repo, m, q, r)

	mock.ExpectQuery(`SELECT MAX\(stage_rank\)`).WillReturnRows(sqlmock.NewRows([]string{"max_rank"}).AddRow(0))
	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM otc_trades_raw`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`INSERT INTO otc_trades_raw`).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()
	mock.ExpectExec(`INSERT INTO core_manifest|UPDATE core_manifest`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO core_quality`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT anomaly_id`).WillReturnRows(sqlmock.NewRows(
		[]string{"anomaly_id", "domain", "stage", "partition_key", "severity", "category", "message", "detected_at", "metadata_json", "resolved_at"}))
	mock.ExpectExec(`INSERT INTO core_data_readiness|UPDATE core_data_readiness`).WillReturnResult(sqlmock.NewResult(0, 1))

	params := map[string]any{
		"partition_key": "2025-12-26|OTC",
		"rows":          []any{map[string]any{"venue": "OTC", "symbol": "ABC", "shares": 100.0}},
		"force":         true,
	}

	result, err := p.Run(context.Background(), params, pipeline.ExecutionContext{ExecutionID: "exec-1"})
	require.NoError(t, err)
	require.Equal(t, pipeline.StatusCompleted, result.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}
