package dialect

import (
	"fmt"
	"strings"
)

// db2Dialect targets IBM DB2. DB2 has no native "insert or ignore"; callers
// without CapUpsert must fall back to SELECT-then-INSERT/UPDATE (see
// core/repository's portable upsert path).
type db2Dialect struct{}

func init() {
	Register(db2Dialect{})
}

func (db2Dialect) Backend() Backend { return DB2 }

func (db2Dialect) Placeholder(int) string { return "?" }

func (d db2Dialect) Placeholders(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = "?"
	}
	return strings.Join(parts, ", ")
}

func (db2Dialect) Now() string { return "CURRENT TIMESTAMP" }

func (db2Dialect) Interval(value int, unit string) string {
	sign := "+"
	if value < 0 {
		sign = "-"
		value = -value
	}
	return fmt.Sprintf("CURRENT TIMESTAMP %s %d %s", sign, value, strings.ToUpper(unit))
}

func (db2Dialect) InsertOrIgnore(table string, cols []string, conflictCols []string) string {
	return mergeInsertOnly(table, cols, conflictCols)
}

func (db2Dialect) Upsert(table string, cols []string, pkCols []string, updateCols []string) string {
	return mergeUpsert(table, cols, pkCols, updateCols)
}

func (db2Dialect) JSONSet(col, path, value string) string {
	return fmt.Sprintf("JSON_SET(%s, '$.%s', %s)", col, path, value)
}

func (db2Dialect) AutoIncrement() string { return "GENERATED ALWAYS AS IDENTITY" }

func (db2Dialect) BooleanTrue() string  { return "1" }
func (db2Dialect) BooleanFalse() string { return "0" }

func (db2Dialect) TableExistsQuery(name string) string {
	return fmt.Sprintf("SELECT 1 FROM SYSCAT.TABLES WHERE TABNAME = '%s'", strings.ToUpper(name))
}

func (db2Dialect) Supports(cap Capability) bool {
	switch cap {
	case CapUpsert, CapIntervalMath:
		return true
	}
	return false
}

// mergeUpsert and mergeInsertOnly build a MERGE statement, the portable
// shape for upsert-like behavior on DB2 and Oracle (neither supports
// Postgres/MySQL/SQLite-style ON CONFLICT).
func mergeUpsert(table string, cols, pkCols, updateCols []string) string {
	onClauses := make([]string, len(pkCols))
	for i, c := range pkCols {
		onClauses[i] = fmt.Sprintf("t.%s = s.%s", c, c)
	}
	sets := make([]string, len(updateCols))
	for i, c := range updateCols {
		sets[i] = fmt.Sprintf("%s = s.%s", c, c)
	}
	srcCols := make([]string, len(cols))
	for i, c := range cols {
		srcCols[i] = fmt.Sprintf("? AS %s", c)
	}
	insertCols := strings.Join(cols, ", ")
	insertVals := make([]string, len(cols))
	for i, c := range cols {
		insertVals[i] = "s." + c
	}
	return fmt.Sprintf(
		"MERGE INTO %s t USING (SELECT %s FROM SYSIBM.SYSDUMMY1) s ON (%s) "+
			"WHEN MATCHED THEN UPDATE SET %s "+
			"WHEN NOT MATCHED THEN INSERT (%s) VALUES (%s)",
		table, strings.Join(srcCols, ", "), strings.Join(onClauses, " AND "),
		strings.Join(sets, ", "), insertCols, strings.Join(insertVals, ", "),
	)
}

func mergeInsertOnly(table string, cols, conflictCols []string) string {
	onClauses := make([]string, len(conflictCols))
	for i, c := range conflictCols {
		onClauses[i] = fmt.Sprintf("t.%s = s.%s", c, c)
	}
	srcCols := make([]string, len(cols))
	for i, c := range cols {
		srcCols[i] = fmt.Sprintf("? AS %s", c)
	}
	insertCols := strings.Join(cols, ", ")
	insertVals := make([]string, len(cols))
	for i, c := range cols {
		insertVals[i] = "s." + c
	}
	return fmt.Sprintf(
		"MERGE INTO %s t USING (SELECT %s FROM SYSIBM.SYSDUMMY1) s ON (%s) "+
			"WHEN NOT MATCHED THEN INSERT (%s) VALUES (%s)",
		table, strings.Join(srcCols, ", "), strings.Join(onClauses, " AND "), insertCols, strings.Join(insertVals, ", "),
	)
}
