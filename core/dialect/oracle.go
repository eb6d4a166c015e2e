package dialect

import (
	"fmt"
	"strings"
)

// oracleDialect targets Oracle Database. Like DB2, upsert is expressed via
// MERGE; placeholders are positional :1, :2, ... bind variables.
type oracleDialect struct{}

func init() {
	Register(oracleDialect{})
}

func (oracleDialect) Backend() Backend { return Oracle }

func (oracleDialect) Placeholder(i int) string { return fmt.Sprintf(":%d", i+1) }

func (d oracleDialect) Placeholders(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = d.Placeholder(i)
	}
	return strings.Join(parts, ", ")
}

func (oracleDialect) Now() string { return "SYSTIMESTAMP" }

func (oracleDialect) Interval(value int, unit string) string {
	sign := "+"
	if value < 0 {
		sign = "-"
		value = -value
	}
	return fmt.Sprintf("SYSTIMESTAMP %s INTERVAL '%d' %s", sign, value, strings.ToUpper(unit))
}

func (oracleDialect) InsertOrIgnore(table string, cols []string, conflictCols []string) string {
	return mergeInsertOnly(table, cols, conflictCols)
}

func (oracleDialect) Upsert(table string, cols []string, pkCols []string, updateCols []string) string {
	return mergeUpsert(table, cols, pkCols, updateCols)
}

func (oracleDialect) JSONSet(col, path, value string) string {
	return fmt.Sprintf("JSON_MERGEPATCH(%s, '{\"%s\": ' || %s || '}')", col, path, value)
}

func (oracleDialect) AutoIncrement() string { return "GENERATED ALWAYS AS IDENTITY" }

func (oracleDialect) BooleanTrue() string  { return "1" }
func (oracleDialect) BooleanFalse() string { return "0" }

func (oracleDialect) TableExistsQuery(name string) string {
	return fmt.Sprintf("SELECT 1 FROM USER_TABLES WHERE TABLE_NAME = '%s'", strings.ToUpper(name))
}

func (oracleDialect) Supports(cap Capability) bool {
	switch cap {
	case CapUpsert, CapIntervalMath:
		return true
	}
	return false
}
