// Package dialect emits vendor-correct SQL fragments for the backends the
// Repository layer can run against. A Dialect never executes anything; it
// only returns strings and capability flags.
package dialect

import "fmt"

// Backend names a supported SQL vendor.
type Backend string

const (
	SQLite     Backend = "sqlite"
	PostgreSQL Backend = "postgres"
	MySQL      Backend = "mysql"
	DB2        Backend = "db2"
	Oracle     Backend = "oracle"
)

// Capability is a named feature a Dialect may or may not support natively.
type Capability string

const (
	CapUpsert       Capability = "upsert"
	CapJSONOps      Capability = "json_ops"
	CapReturning    Capability = "returning"
	CapIntervalMath Capability = "interval_math"
)

// Dialect is a capability set: a pure, stateless translator from abstract
// SQL needs to backend-specific fragments. Implementations are singletons
// registered by name via Register.
type Dialect interface {
	// Backend identifies which vendor this dialect targets.
	Backend() Backend

	// Placeholder returns the positional placeholder for the 0-based
	// parameter index i.
	Placeholder(i int) string

	// Placeholders returns n comma-separated placeholders starting at
	// index 0.
	Placeholders(n int) string

	// Now returns a SQL expression for the current timestamp.
	Now() string

	// Interval returns a complete SQL expression for now() shifted by
	// value units (unit is e.g. "day", "hour"); positive value moves the
	// timestamp forward, negative moves it backward. The numeric value is
	// baked into the returned SQL string, never bound as a parameter.
	Interval(value int, unit string) string

	// InsertOrIgnore emits the vendor-equivalent of "insert; skip on
	// conflict" for the given table/columns/conflict columns.
	InsertOrIgnore(table string, cols []string, conflictCols []string) string

	// Upsert emits "insert; on conflict with pkCols, update updateCols".
	Upsert(table string, cols []string, pkCols []string, updateCols []string) string

	// JSONSet returns a vendor JSON-patch expression updating col at path
	// to value (value is itself a SQL expression, e.g. a placeholder).
	JSONSet(col, path, value string) string

	// AutoIncrement returns the DDL fragment for an identity column.
	AutoIncrement() string

	// BooleanTrue / BooleanFalse return the vendor boolean literal.
	BooleanTrue() string
	BooleanFalse() string

	// TableExistsQuery returns a catalog query that returns one row if
	// the named table exists.
	TableExistsQuery(name string) string

	// Supports reports whether this dialect has native support for the
	// named capability; callers without it must fall back to a portable
	// multi-statement equivalent (e.g. SELECT-then-INSERT/UPDATE instead
	// of a single upsert statement).
	Supports(cap Capability) bool
}

var registry = map[Backend]Dialect{}

// Register installs a Dialect singleton under its Backend name. Called
// from each dialect implementation's init().
func Register(d Dialect) {
	registry[d.Backend()] = d
}

// Get looks up a registered Dialect by backend name.
func Get(b Backend) (Dialect, error) {
	d, ok := registry[b]
	if !ok {
		return nil, fmt.Errorf("dialect: unknown backend %q", b)
	}
	return d, nil
}

// MustGet is like Get but panics on an unknown backend; used at process
// wiring time where the backend is a compile-time/config-validated
// constant.
func MustGet(b Backend) Dialect {
	d, err := Get(b)
	if err != nil {
		panic(err)
	}
	return d
}
