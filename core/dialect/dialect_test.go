package dialect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetKnownBackends(t *testing.T) {
	for _, b := range []Backend{SQLite, PostgreSQL, MySQL, DB2, Oracle} {
		d, err := Get(b)
		require.NoError(t, err)
		assert.Equal(t, b, d.Backend())
	}
}

func TestGetUnknownBackend(t *testing.T) {
	_, err := Get(Backend("vertica"))
	assert.Error(t, err)
}

func TestPostgresPlaceholders(t *testing.T) {
	d := MustGet(PostgreSQL)
	assert.Equal(t, "$1", d.Placeholder(0))
	assert.Equal(t, "$3", d.Placeholder(2))
	assert.Equal(t, "$1, $2, $3", d.Placeholders(3))
}

func TestSQLiteAndMySQLUseQuestionMarks(t *testing.T) {
	for _, b := range []Backend{SQLite, MySQL} {
		d := MustGet(b)
		assert.Equal(t, "?", d.Placeholder(0))
		assert.Equal(t, "?, ?", d.Placeholders(2))
	}
}

func TestOraclePlaceholdersAreBindVariables(t *testing.T) {
	d := MustGet(Oracle)
	assert.Equal(t, ":1", d.Placeholder(0))
	assert.Equal(t, ":2", d.Placeholder(1))
}

func TestUpsertShapesPerBackend(t *testing.T) {
	cols := []string{"business_key", "capture_id", "value"}
	pk := []string{"business_key", "capture_id"}
	update := []string{"value"}

	pg := MustGet(PostgreSQL).Upsert("t", cols, pk, update)
	assert.Contains(t, pg, "ON CONFLICT (business_key, capture_id) DO UPDATE SET value = EXCLUDED.value")

	my := MustGet(MySQL).Upsert("t", cols, pk, update)
	assert.Contains(t, my, "ON DUPLICATE KEY UPDATE value = VALUES(value)")

	sl := MustGet(SQLite).Upsert("t", cols, pk, update)
	assert.Contains(t, sl, "ON CONFLICT (business_key, capture_id) DO UPDATE SET value = excluded.value")

	db2 := MustGet(DB2).Upsert("t", cols, pk, update)
	assert.Contains(t, db2, "MERGE INTO t")
	assert.Contains(t, db2, "WHEN MATCHED THEN UPDATE SET value = s.value")

	ora := MustGet(Oracle).Upsert("t", cols, pk, update)
	assert.Contains(t, ora, "MERGE INTO t")
}

func TestIntervalBakesValueIntoSQLNotAsBindParam(t *testing.T) {
	pg := MustGet(PostgreSQL).Interval(7, "day")
	assert.Equal(t, "NOW() + INTERVAL '7 day'", pg)

	pgBack := MustGet(PostgreSQL).Interval(-3, "hour")
	assert.Equal(t, "NOW() - INTERVAL '3 hour'", pgBack)
}

func TestSupportsCapabilityMatrix(t *testing.T) {
	assert.True(t, MustGet(PostgreSQL).Supports(CapReturning))
	assert.False(t, MustGet(SQLite).Supports(CapReturning))
	assert.False(t, MustGet(DB2).Supports(CapReturning))
	assert.True(t, MustGet(DB2).Supports(CapUpsert))
}

func TestBooleanLiterals(t *testing.T) {
	assert.Equal(t, "TRUE", MustGet(PostgreSQL).BooleanTrue())
	assert.Equal(t, "1", MustGet(SQLite).BooleanTrue())
	assert.Equal(t, "0", MustGet(SQLite).BooleanFalse())
}

func TestMustGetPanicsOnUnknownBackend(t *testing.T) {
	assert.Panics(t, func() {
		MustGet(Backend("vertica"))
	})
}
