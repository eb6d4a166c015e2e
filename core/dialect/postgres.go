package dialect

import (
	"fmt"
	"strings"
)

type postgresDialect struct{}

func init() {
	Register(postgresDialect{})
}

func (postgresDialect) Backend() Backend { return PostgreSQL }

func (postgresDialect) Placeholder(i int) string { return fmt.Sprintf("$%d", i+1) }

func (d postgresDialect) Placeholders(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = d.Placeholder(i)
	}
	return strings.Join(parts, ", ")
}

func (postgresDialect) Now() string { return "NOW()" }

func (postgresDialect) Interval(value int, unit string) string {
	sign := "+"
	if value < 0 {
		sign = "-"
		value = -value
	}
	return fmt.Sprintf("NOW() %s INTERVAL '%d %s'", sign, value, unit)
}

func (postgresDialect) InsertOrIgnore(table string, cols []string, conflictCols []string) string {
	return fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO NOTHING",
		table, strings.Join(cols, ", "), placeholderList(len(cols)), strings.Join(conflictCols, ", "),
	)
}

func (postgresDialect) Upsert(table string, cols []string, pkCols []string, updateCols []string) string {
	sets := make([]string, len(updateCols))
	for i, c := range updateCols {
		sets[i] = fmt.Sprintf("%s = EXCLUDED.%s", c, c)
	}
	return fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO UPDATE SET %s",
		table, strings.Join(cols, ", "), placeholderList(len(cols)), strings.Join(pkCols, ", "), strings.Join(sets, ", "),
	)
}

func (postgresDialect) JSONSet(col, path, value string) string {
	return fmt.Sprintf("jsonb_set(%s, '{%s}', %s)", col, path, value)
}

func (postgresDialect) AutoIncrement() string { return "GENERATED ALWAYS AS IDENTITY" }

func (postgresDialect) BooleanTrue() string  { return "TRUE" }
func (postgresDialect) BooleanFalse() string { return "FALSE" }

func (postgresDialect) TableExistsQuery(name string) string {
	return fmt.Sprintf(
		"SELECT 1 FROM information_schema.tables WHERE table_name = '%s'", name,
	)
}

func (postgresDialect) Supports(cap Capability) bool {
	switch cap {
	case CapUpsert, CapJSONOps, CapReturning, CapIntervalMath:
		return true
	}
	return false
}

// placeholderList is a package-private helper shared by the $N-style
// dialects (postgres) for building a VALUES (...) placeholder list using
// 0-based positional indices.
func placeholderList(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("$%d", i+1)
	}
	return strings.Join(parts, ", ")
}
