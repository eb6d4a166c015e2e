// Package repository exposes a vendor-neutral, row/dict-level persistence
// API paired with a dialect. It never interprets SQL; it only forwards what
// callers build using dialect methods.
package repository

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"github.com/jmoiron/sqlx"

	"github.com/ryansmccoy/spine-core/core/dialect"
	"github.com/ryansmccoy/spine-core/infrastructure/errors"
)

// Row is a single result row keyed by column name, the dict-level shape
// upper layers read and write in.
type Row map[string]any

// Repository holds an opaque connection and a Dialect. Upper layers build
// SQL only through dialect methods; Repository forwards it untouched.
type Repository struct {
	db  *sqlx.DB
	tx  *sqlx.Tx
	dlt dialect.Dialect
}

// New wraps an established connection with the dialect for its backend.
func New(db *sqlx.DB, d dialect.Dialect) *Repository {
	return &Repository{db: db, dlt: d}
}

// Dialect returns the paired dialect, so callers can build vendor-correct
// SQL fragments without reaching around the repository.
func (r *Repository) Dialect() dialect.Dialect { return r.dlt }

// Ph is shorthand for Dialect().Placeholders(n).
func (r *Repository) Ph(n int) string { return r.dlt.Placeholders(n) }

type queryer interface {
	QueryxContext(ctx context.Context, query string, args ...any) (*sqlx.Rows, error)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (r *Repository) queryer() queryer {
	if r.tx != nil {
		return r.tx
	}
	return r.db
}

func (r *Repository) execer() execer {
	if r.tx != nil {
		return r.tx
	}
	return r.db
}

// Execute runs a statement that returns no rows.
func (r *Repository) Execute(ctx context.Context, sqlStr string, params ...any) (sql.Result, error) {
	res, err := r.execer().ExecContext(ctx, sqlStr, params...)
	if err != nil {
		return nil, errors.QueryFailed("execute failed", err).WithContext("sql", sqlStr)
	}
	return res, nil
}

// Query runs sqlStr and returns every row as a Row map.
func (r *Repository) Query(ctx context.Context, sqlStr string, params ...any) ([]Row, error) {
	rows, err := r.queryer().QueryxContext(ctx, sqlStr, params...)
	if err != nil {
		return nil, errors.QueryFailed("query failed", err).WithContext("sql", sqlStr)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		m := map[string]any{}
		if err := rows.MapScan(m); err != nil {
			return nil, errors.QueryFailed("row scan failed", err).WithContext("sql", sqlStr)
		}
		out = append(out, Row(m))
	}
	return out, rows.Err()
}

// QueryOne runs sqlStr and returns its single row, or (nil, nil) if it
// produced no rows.
func (r *Repository) QueryOne(ctx context.Context, sqlStr string, params ...any) (Row, error) {
	rows, err := r.Query(ctx, sqlStr, params...)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// Insert builds and runs an INSERT for a single row described as a dict.
// Column order is the sorted key order, so generated SQL is deterministic.
func (r *Repository) Insert(ctx context.Context, table string, values Row) (sql.Result, error) {
	cols, args := sortedColsAndArgs(values)
	sqlStr := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s)",
		table, joinCols(cols), r.dlt.Placeholders(len(cols)),
	)
	return r.Execute(ctx, sqlStr, args...)
}

// InsertMany inserts every row in values using the same column set as the
// first row. All rows in a single call MUST share the same keys.
func (r *Repository) InsertMany(ctx context.Context, table string, values []Row) error {
	if len(values) == 0 {
		return nil
	}
	cols, _ := sortedColsAndArgs(values[0])
	placeholders := r.dlt.Placeholders(len(cols))
	sqlStr := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, joinCols(cols), placeholders)

	for _, v := range values {
		rowCols, args := sortedColsAndArgs(v)
		if len(rowCols) != len(cols) {
			return errors.BadParams("insert_many rows must share identical columns").
				WithContext("table", table)
		}
		if _, err := r.Execute(ctx, sqlStr, args...); err != nil {
			return err
		}
	}
	return nil
}

// Upsert inserts values, falling back to updateCols on a pkCols conflict,
// using the paired dialect's native upsert when supported and a portable
// select-then-insert-or-update otherwise.
func (r *Repository) Upsert(ctx context.Context, table string, values Row, pkCols, updateCols []string) error {
	cols, args := sortedColsAndArgs(values)
	if r.dlt.Supports(dialect.CapUpsert) {
		sqlStr := r.dlt.Upsert(table, cols, pkCols, updateCols)
		_, err := r.Execute(ctx, sqlStr, args...)
		return err
	}
	return r.portableUpsert(ctx, table, values, pkCols, updateCols)
}

// portableUpsert is the fallback for dialects without native upsert
// support: probe for an existing row by pkCols, then INSERT or UPDATE.
func (r *Repository) portableUpsert(ctx context.Context, table string, values Row, pkCols, updateCols []string) error {
	whereParts := make([]string, len(pkCols))
	whereArgs := make([]any, len(pkCols))
	for i, c := range pkCols {
		whereParts[i] = fmt.Sprintf("%s = %s", c, r.dlt.Placeholder(i))
		whereArgs[i] = values[c]
	}
	existsSQL := fmt.Sprintf("SELECT 1 FROM %s WHERE %s", table, joinAnd(whereParts))
	existing, err := r.QueryOne(ctx, existsSQL, whereArgs...)
	if err != nil {
		return err
	}
	if existing == nil {
		_, err := r.Insert(ctx, table, values)
		return err
	}

	sets := make([]string, len(updateCols))
	setArgs := make([]any, len(updateCols))
	for i, c := range updateCols {
		sets[i] = fmt.Sprintf("%s = %s", c, r.dlt.Placeholder(i))
		setArgs[i] = values[c]
	}
	for i, c := range pkCols {
		whereParts[i] = fmt.Sprintf("%s = %s", c, r.dlt.Placeholder(len(updateCols)+i))
		_ = c
	}
	updateSQL := fmt.Sprintf("UPDATE %s SET %s WHERE %s", table, joinCols(sets), joinAnd(whereParts))
	_, err = r.Execute(ctx, updateSQL, append(setArgs, whereArgs...)...)
	return err
}

// WithTx runs fn inside a transaction, committing on success and rolling
// back on error or panic. Transactions are per-call; Repository never
// spans a transaction across multiple WithTx invocations.
func (r *Repository) WithTx(ctx context.Context, fn func(tx *Repository) error) (err error) {
	sqlTx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.QueryFailed("begin transaction failed", err)
	}
	txRepo := &Repository{db: r.db, tx: sqlTx, dlt: r.dlt}

	defer func() {
		if p := recover(); p != nil {
			_ = sqlTx.Rollback()
			panic(p)
		}
	}()

	if err = fn(txRepo); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil {
			return errors.QueryFailed("rollback failed after error", rbErr).WithContext("cause", err.Error())
		}
		return err
	}
	if err = sqlTx.Commit(); err != nil {
		return errors.QueryFailed("commit failed", err)
	}
	return nil
}

func sortedColsAndArgs(values Row) ([]string, []any) {
	cols := make([]string, 0, len(values))
	for c := range values {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	args := make([]any, len(cols))
	for i, c := range cols {
		args[i] = values[c]
	}
	return cols, args
}

func joinCols(cols []string) string {
	out := ""
	for i, c := range cols {
		if i > 0 {
			out += ", "
		}
		out += c
	}
	return out
}

func joinAnd(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += " AND "
		}
		out += p
	}
	return out
}
