package dialect

import (
	"fmt"
	"strings"
)

type mysqlDialect struct{}

func init() {
	Register(mysqlDialect{})
}

func (mysqlDialect) Backend() Backend { return MySQL }

func (mysqlDialect) Placeholder(int) string { return "?" }

func (mysqlDialect) Placeholders(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = "?"
	}
	return strings.Join(parts, ", ")
}

func (mysqlDialect) Now() string { return "NOW()" }

func (mysqlDialect) Interval(value int, unit string) string {
	sign := "+"
	if value < 0 {
		sign = "-"
		value = -value
	}
	return fmt.Sprintf("DATE_ADD(NOW(), INTERVAL %s%d %s)", sign, value, strings.ToUpper(unit))
}

func (d mysqlDialect) InsertOrIgnore(table string, cols []string, _ []string) string {
	return fmt.Sprintf(
		"INSERT IGNORE INTO %s (%s) VALUES (%s)",
		table, strings.Join(cols, ", "), d.Placeholders(len(cols)),
	)
}

func (d mysqlDialect) Upsert(table string, cols []string, _ []string, updateCols []string) string {
	sets := make([]string, len(updateCols))
	for i, c := range updateCols {
		sets[i] = fmt.Sprintf("%s = VALUES(%s)", c, c)
	}
	return fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON DUPLICATE KEY UPDATE %s",
		table, strings.Join(cols, ", "), d.Placeholders(len(cols)), strings.Join(sets, ", "),
	)
}

func (mysqlDialect) JSONSet(col, path, value string) string {
	return fmt.Sprintf("JSON_SET(%s, '$.%s', %s)", col, path, value)
}

func (mysqlDialect) AutoIncrement() string { return "AUTO_INCREMENT" }

func (mysqlDialect) BooleanTrue() string  { return "TRUE" }
func (mysqlDialect) BooleanFalse() string { return "FALSE" }

func (mysqlDialect) TableExistsQuery(name string) string {
	return fmt.Sprintf(
		"SELECT 1 FROM information_schema.tables WHERE table_schema = DATABASE() AND table_name = '%s'", name,
	)
}

func (mysqlDialect) Supports(cap Capability) bool {
	switch cap {
	case CapUpsert, CapJSONOps, CapIntervalMath:
		return true
	case CapReturning:
		return false
	}
	return false
}
