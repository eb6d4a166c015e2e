package repository

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ryansmccoy/spine-core/core/dialect"
)

func newMockRepo(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxDB := sqlx.NewDb(db, "postgres")
	return New(sqlxDB, dialect.MustGet(dialect.PostgreSQL)), mock
}

func TestQueryReturnsRows(t *testing.T) {
	repo, mock := newMockRepo(t)
	rows := sqlmock.NewRows([]string{"id", "name"}).AddRow("1", "alpha").AddRow("2", "beta")
	mock.ExpectQuery(`SELECT`).WillReturnRows(rows)

	got, err := repo.Query(context.Background(), "SELECT id, name FROM t")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "alpha", got[0]["name"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryOneNoRows(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery(`SELECT`).WillReturnRows(sqlmock.NewRows([]string{"id"}))

	got, err := repo.QueryOne(context.Background(), "SELECT id FROM t WHERE id = $1", "missing")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestInsertBuildsDeterministicColumnOrder(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectExec(`INSERT INTO t \(a, b\) VALUES \(\$1, \$2\)`).
		WithArgs(1, "x").
		WillReturnResult(sqlmock.NewResult(1, 1))

	_, err := repo.Insert(context.Background(), "t", Row{"b": "x", "a": 1})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertUsesNativeUpsertWhenSupported(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectExec(`INSERT INTO t \(id, value\) VALUES \(\$1, \$2\) ON CONFLICT \(id\) DO UPDATE SET value = EXCLUDED.value`).
		WithArgs("k1", "v1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Upsert(context.Background(), "t", Row{"id": "k1", "value": "v1"}, []string{"id"}, []string{"value"})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTxCommitsOnSuccess(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO t \(a\) VALUES \(\$1\)`).WithArgs(1).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := repo.WithTx(context.Background(), func(tx *Repository) error {
		_, err := tx.Insert(context.Background(), "t", Row{"a": 1})
		return err
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTxRollsBackOnError(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	err := repo.WithTx(context.Background(), func(tx *Repository) error {
		return assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)
	assert.NoError(t, mock.ExpectationsWereMet())
}
