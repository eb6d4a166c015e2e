// Package pipeline is the Pipeline Registry: a name-keyed set of
// factories producing Pipeline instances, each declaring a spec of
// required/optional parameters and per-parameter validators.
package pipeline

import (
	"context"
	"sync"

	"github.com/ryansmccoy/spine-core/infrastructure/errors"
)

// Status is a pipeline run's terminal outcome.
type Status string

const (
	StatusCompleted Status = "COMPLETED"
	StatusSkipped   Status = "SKIPPED"
	StatusFailed    Status = "FAILED"
)

// Result is what a Pipeline's Run returns.
type Result struct {
	Status  Status
	Metrics map[string]any
}

// ExecutionContext carries the ambient identifiers a Pipeline run needs to
// attach Repository writes to the right execution/lineage record.
type ExecutionContext struct {
	ExecutionID string
	BatchID     string
	PartitionKey string
}

// ParamSpec describes one parameter a Pipeline accepts. Tag is a
// go-playground/validator tag string (e.g. "required,oneof=A B",
// "gte=0,lte=100"); an empty Tag means no constraint beyond
// required/default handling.
type ParamSpec struct {
	Name     string
	Required bool
	Default  any
	Tag      string
}

// Spec is a Pipeline's declared parameter contract.
type Spec struct {
	Params []ParamSpec
}

// Pipeline is the single operation every registered pipeline implements.
type Pipeline interface {
	Spec() Spec
	Run(ctx context.Context, params map[string]any, execCtx ExecutionContext) (Result, error)
}

// Factory constructs a Pipeline instance. Factories are invoked lazily,
// on each lookup by name; every Lookup returns a fresh instance.
type Factory func() Pipeline

// Registry is the name → factory map pipelines register into.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	order     []string
}

// NewRegistry builds an empty Registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register installs factory under name. Re-registering an existing name
// panics — duplicate pipeline names are a defect caught at wiring time,
// not a runtime condition to recover from.
func (r *Registry) Register(name string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[name]; exists {
		panic("pipeline already registered: " + name)
	}
	r.factories[name] = factory
	r.order = append(r.order, name)
}

// Lookup instantiates the pipeline registered under name. An unknown name
// is a PipelineNotFound error, never a panic — callers resolve names from
// external trigger input.
func (r *Registry) Lookup(name string) (Pipeline, error) {
	r.mu.RLock()
	factory, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, errors.PipelineNotFound(name)
	}
	return factory(), nil
}

// Names returns every registered pipeline name in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}
