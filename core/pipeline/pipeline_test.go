package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubPipeline struct{ spec Spec }

func (p stubPipeline) Spec() Spec { return p.spec }
func (p stubPipeline) Run(ctx context.Context, params map[string]any, execCtx ExecutionContext) (Result, error) {
	return Result{Status: StatusCompleted}, nil
}

func TestRegisterAndLookup(t *testing.T) {
	r := NewRegistry()
	r.Register("finra_otc_ingest", func() Pipeline { return stubPipeline{} })

	p, err := r.Lookup("finra_otc_ingest")
	require.NoError(t, err)
	assert.NotNil(t, p)
}

func TestLookupUnknownNameIsError(t *testing.T) {
	r := NewRegistry()
	_, err := r.Lookup("nonexistent")
	assert.Error(t, err)
}

func TestRegisterDuplicateNamePanics(t *testing.T) {
	r := NewRegistry()
	r.Register("p1", func() Pipeline { return stubPipeline{} })
	assert.Panics(t, func() { r.Register("p1", func() Pipeline { return stubPipeline{} }) })
}

func TestNamesReturnsRegistrationOrder(t *testing.T) {
	r := NewRegistry()
	r.Register("b", func() Pipeline { return stubPipeline{} })
	r.Register("a", func() Pipeline { return stubPipeline{} })
	assert.Equal(t, []string{"b", "a"}, r.Names())
}
