// Package calc is the declarative calculation version registry: for each
// calculation name it holds the policy tuple of which versions exist,
// which is current, and which are deprecated. Version rank never falls
// back to a string MAX of stored rows — it resolves purely from the
// registered integer suffix.
package calc

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/ryansmccoy/spine-core/infrastructure/errors"
)

// Entry is one calculation's declarative policy tuple.
type Entry struct {
	Versions     []string
	Current      string
	Deprecated   []string
	BusinessKeys []string
	Table        string
}

// validate enforces the contract invariants a calc registry entry must
// hold, checked at Register time so a malformed entry never reaches a
// caller.
func (e Entry) validate(name string) error {
	if len(e.Versions) == 0 {
		return errors.InvalidConfig(name, "versions must be non-empty")
	}
	if len(e.BusinessKeys) == 0 {
		return errors.InvalidConfig(name, "business_keys must be non-empty")
	}
	if !contains(e.Versions, e.Current) {
		return errors.InvalidConfig(name, fmt.Sprintf("current %q must be in versions", e.Current))
	}
	if contains(e.Deprecated, e.Current) {
		return errors.InvalidConfig(name, fmt.Sprintf("current %q must not be in deprecated", e.Current))
	}
	for _, d := range e.Deprecated {
		if !contains(e.Versions, d) {
			return errors.InvalidConfig(name, fmt.Sprintf("deprecated version %q must be in versions", d))
		}
	}
	return nil
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

// Registry holds the declarative calculation policy for every registered
// calculation name.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewRegistry builds an empty Registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]Entry)}
}

// Register installs calc's policy entry, validating its invariants.
// Re-registering an existing name is a defect: it panics, the same way
// the core's other name-keyed registries refuse silent overwrite.
func (r *Registry) Register(name string, entry Entry) {
	if err := entry.validate(name); err != nil {
		panic(err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[name]; exists {
		panic("calc already registered: " + name)
	}
	r.entries[name] = entry
}

func (r *Registry) get(name string) (Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	if !ok {
		return Entry{}, errors.New(errors.KindPipeline, errors.CategoryNotFound, "calculation not registered", false).
			WithContext("calc", name)
	}
	return e, nil
}

// CurrentVersion returns calc's policy-defined current version.
func (r *Registry) CurrentVersion(calcName string) (string, error) {
	e, err := r.get(calcName)
	if err != nil {
		return "", err
	}
	return e.Current, nil
}

// VersionRank returns the integer rank of v (the integer suffix after
// stripping its "v" prefix), so v10 ranks above v2.
func (r *Registry) VersionRank(calcName, v string) (int, error) {
	if _, err := r.get(calcName); err != nil {
		return 0, err
	}
	return versionRank(v)
}

func versionRank(v string) (int, error) {
	trimmed := strings.TrimPrefix(v, "v")
	n, err := strconv.Atoi(trimmed)
	if err != nil {
		return 0, errors.BadParams("version must be of the form v<int>").WithContext("version", v)
	}
	return n, nil
}

// IsDeprecated reports whether v is in calc's deprecated set.
func (r *Registry) IsDeprecated(calcName, v string) (bool, error) {
	e, err := r.get(calcName)
	if err != nil {
		return false, err
	}
	return contains(e.Deprecated, v), nil
}

// DeprecationWarning returns a human-readable warning when requestedV is
// deprecated, or "" when it isn't.
func (r *Registry) DeprecationWarning(calcName, requestedV string) (string, error) {
	deprecated, err := r.IsDeprecated(calcName, requestedV)
	if err != nil {
		return "", err
	}
	if !deprecated {
		return "", nil
	}
	current, err := r.CurrentVersion(calcName)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s version %s is deprecated; current is %s", calcName, requestedV, current), nil
}

// ResolveVersion resolves a query's requested version: an empty
// requestedV resolves to Current. A non-empty requestedV is returned as
// given only if it is a known version for calc.
func (r *Registry) ResolveVersion(calcName, requestedV string) (string, error) {
	e, err := r.get(calcName)
	if err != nil {
		return "", err
	}
	if requestedV == "" {
		return e.Current, nil
	}
	if !contains(e.Versions, requestedV) {
		return "", errors.BadParams("unknown calculation version").
			WithContext("calc", calcName).WithContext("version", requestedV)
	}
	return requestedV, nil
}

// AuthorizeWrite enforces the write-path selection rule: a write of an
// unknown version is always fatal; a write of a known but deprecated
// version is fatal unless allowDeprecated is set.
func (r *Registry) AuthorizeWrite(calcName, v string, allowDeprecated bool) error {
	e, err := r.get(calcName)
	if err != nil {
		return err
	}
	if !contains(e.Versions, v) {
		return errors.BadParams("unknown calculation version").
			WithContext("calc", calcName).WithContext("version", v)
	}
	if contains(e.Deprecated, v) && !allowDeprecated {
		return errors.BadParams("refusing write of deprecated calculation version").
			WithContext("calc", calcName).WithContext("version", v)
	}
	return nil
}

// Table returns calc's declared output table name.
func (r *Registry) Table(calcName string) (string, error) {
	e, err := r.get(calcName)
	if err != nil {
		return "", err
	}
	return e.Table, nil
}

// BusinessKeys returns calc's declared business key columns.
func (r *Registry) BusinessKeys(calcName string) ([]string, error) {
	e, err := r.get(calcName)
	if err != nil {
		return nil, err
	}
	return e.BusinessKeys, nil
}
