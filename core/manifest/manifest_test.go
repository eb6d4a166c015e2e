package manifest

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ryansmccoy/spine-core/core/dialect"
	"github.com/ryansmccoy/spine-core/core/repository"
)

func newTestManifest(t *testing.T) (*Manifest, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	repo := repository.New(sqlx.NewDb(db, "postgres"), dialect.MustGet(dialect.PostgreSQL))
	stages := StageOrder{"INGESTED", "NORMALIZED", "AGGREGATED"}
	return New(repo, "finra.otc", stages), mock
}

func TestStageOrderRank(t *testing.T) {
	stages := StageOrder{"INGESTED", "NORMALIZED", "AGGREGATED"}
	assert.Equal(t, 0, stages.Rank("INGESTED"))
	assert.Equal(t, 2, stages.Rank("AGGREGATED"))
	assert.Equal(t, -1, stages.Rank("UNKNOWN"))
}

func TestIsAtLeastUnknownStageRejected(t *testing.T) {
	m, _ := newTestManifest(t)
	_, err := m.IsAtLeast(context.Background(), "p1", "NOT_A_STAGE")
	assert.Error(t, err)
}

func TestIsAtLeastFalseWhenNoRow(t *testing.T) {
	m, mock := newTestManifest(t)
	mock.ExpectQuery(`SELECT MAX\(stage_rank\)`).WillReturnRows(sqlmock.NewRows([]string{"max_rank"}).AddRow(nil))

	ok, err := m.IsAtLeast(context.Background(), "p1", "NORMALIZED")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestIsAtLeastTrueWhenRankReached(t *testing.T) {
	m, mock := newTestManifest(t)
	mock.ExpectQuery(`SELECT MAX\(stage_rank\)`).WillReturnRows(sqlmock.NewRows([]string{"max_rank"}).AddRow(2))

	ok, err := m.IsAtLeast(context.Background(), "p1", "NORMALIZED")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAdvanceToRejectsUndeclaredStage(t *testing.T) {
	m, _ := newTestManifest(t)
	err := m.AdvanceTo(context.Background(), "p1", "NOT_A_STAGE", nil, nil, "exec-1", "batch-1")
	assert.Error(t, err)
}

func TestAdvanceToUpsertsOneRow(t *testing.T) {
	m, mock := newTestManifest(t)
	mock.ExpectExec(`INSERT INTO core_manifest`).WillReturnResult(sqlmock.NewResult(0, 1))

	err := m.AdvanceTo(context.Background(), "p1", "INGESTED", nil, map[string]any{"rows": 10}, "exec-1", "batch-1")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetOrdersByStageRank(t *testing.T) {
	m, mock := newTestManifest(t)
	rows := sqlmock.NewRows([]string{"domain", "partition_key", "stage", "stage_rank", "row_count", "metrics_json", "execution_id", "batch_id", "updated_at"}).
		AddRow("finra.otc", "p1", "INGESTED", 0, nil, nil, "e1", "b1", nil).
		AddRow("finra.otc", "p1", "NORMALIZED", 1, nil, nil, "e1", "b1", nil)
	mock.ExpectQuery(`SELECT domain, partition_key, stage`).WillReturnRows(rows)

	got, err := m.Get(context.Background(), "p1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "INGESTED", got[0].Stage)
	assert.Equal(t, "NORMALIZED", got[1].Stage)
}
