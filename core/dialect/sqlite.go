package dialect

import (
	"fmt"
	"strings"
)

type sqliteDialect struct{}

func init() {
	Register(sqliteDialect{})
}

func (sqliteDialect) Backend() Backend { return SQLite }

func (sqliteDialect) Placeholder(int) string { return "?" }

func (sqliteDialect) Placeholders(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = "?"
	}
	return strings.Join(parts, ", ")
}

func (sqliteDialect) Now() string { return "CURRENT_TIMESTAMP" }

func (sqliteDialect) Interval(value int, unit string) string {
	sign := "+"
	if value < 0 {
		sign = "-"
		value = -value
	}
	return fmt.Sprintf("datetime(CURRENT_TIMESTAMP, '%s%d %s')", sign, value, unit)
}

func (d sqliteDialect) InsertOrIgnore(table string, cols []string, _ []string) string {
	return fmt.Sprintf(
		"INSERT OR IGNORE INTO %s (%s) VALUES (%s)",
		table, strings.Join(cols, ", "), d.Placeholders(len(cols)),
	)
}

func (d sqliteDialect) Upsert(table string, cols []string, pkCols []string, updateCols []string) string {
	sets := make([]string, len(updateCols))
	for i, c := range updateCols {
		sets[i] = fmt.Sprintf("%s = excluded.%s", c, c)
	}
	return fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO UPDATE SET %s",
		table, strings.Join(cols, ", "), d.Placeholders(len(cols)), strings.Join(pkCols, ", "), strings.Join(sets, ", "),
	)
}

func (sqliteDialect) JSONSet(col, path, value string) string {
	return fmt.Sprintf("json_set(%s, '$.%s', %s)", col, path, value)
}

func (sqliteDialect) AutoIncrement() string { return "INTEGER PRIMARY KEY AUTOINCREMENT" }

func (sqliteDialect) BooleanTrue() string  { return "1" }
func (sqliteDialect) BooleanFalse() string { return "0" }

func (sqliteDialect) TableExistsQuery(name string) string {
	return fmt.Sprintf("SELECT 1 FROM sqlite_master WHERE type='table' AND name='%s'", name)
}

func (sqliteDialect) Supports(cap Capability) bool {
	switch cap {
	case CapUpsert, CapJSONOps, CapIntervalMath:
		return true
	case CapReturning:
		return false
	}
	return false
}
