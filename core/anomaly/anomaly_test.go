package anomaly

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ryansmccoy/spine-core/core/dialect"
	"github.com/ryansmccoy/spine-core/core/repository"
)

func newTestSink(t *testing.T) (*Sink, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	repo := repository.New(sqlx.NewDb(db, "postgres"), dialect.MustGet(dialect.PostgreSQL))
	return New(repo), mock
}

func TestRecordInsertsRow(t *testing.T) {
	s, mock := newTestSink(t)
	mock.ExpectExec(`INSERT INTO core_anomalies`).WillReturnResult(sqlmock.NewResult(1, 1))

	id, err := s.Record(context.Background(), "finra.otc", "AGGREGATED", "2025-12-26|OTC", SeverityError, CategoryQualityGate, "shares don't sum to one", nil)
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResolveSetsResolvedAt(t *testing.T) {
	s, mock := newTestSink(t)
	mock.ExpectExec(`UPDATE core_anomalies SET resolved_at`).WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.Resolve(context.Background(), "anomaly-1")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUnresolvedScopesExactly(t *testing.T) {
	s, mock := newTestSink(t)
	rows := sqlmock.NewRows([]string{"anomaly_id", "domain", "stage", "partition_key", "severity", "category", "message", "detected_at", "metadata_json", "resolved_at"}).
		AddRow("a1", "finra.otc", "AGGREGATED", "p1", "ERROR", "QUALITY_GATE", "msg", time.Now(), nil, nil)
	mock.ExpectQuery(`WHERE domain = \$1 AND stage = \$2 AND partition_key = \$3`).WillReturnRows(rows)

	got, err := s.Unresolved(context.Background(), "finra.otc", "AGGREGATED", "p1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, SeverityError, got[0].Severity)
}

func TestHasBlockingSeverityTrueOnErrorOrCritical(t *testing.T) {
	s, mock := newTestSink(t)
	rows := sqlmock.NewRows([]string{"anomaly_id", "domain", "stage", "partition_key", "severity", "category", "message", "detected_at", "metadata_json", "resolved_at"}).
		AddRow("a1", "d", "s", "p", "WARN", "DATA_QUALITY", "m", time.Now(), nil, nil).
		AddRow("a2", "d", "s", "p", "CRITICAL", "DATA_QUALITY", "m", time.Now(), nil, nil)
	mock.ExpectQuery(`SELECT anomaly_id`).WillReturnRows(rows)

	blocking, err := s.HasBlockingSeverity(context.Background(), "d", "s", "p")
	require.NoError(t, err)
	assert.True(t, blocking)
}
