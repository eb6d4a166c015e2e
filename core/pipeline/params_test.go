package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveFillsDefaultsForMissingOptional(t *testing.T) {
	spec := Spec{Params: []ParamSpec{
		{Name: "partition_key", Required: true},
		{Name: "force", Required: false, Default: false},
	}}

	resolved, err := Resolve(spec, map[string]any{"partition_key": "2025-12-26|OTC"})
	require.NoError(t, err)
	assert.Equal(t, false, resolved["force"])
}

func TestResolveRejectsMissingRequired(t *testing.T) {
	spec := Spec{Params: []ParamSpec{{Name: "partition_key", Required: true}}}
	_, err := Resolve(spec, map[string]any{})
	assert.Error(t, err)
}

func TestResolveFoldsAliases(t *testing.T) {
	spec := Spec{Params: []ParamSpec{{Name: "partition_key", Required: true}}}
	resolved, err := Resolve(spec, map[string]any{"partition": "2025-12-26|OTC"})
	require.NoError(t, err)
	assert.Equal(t, "2025-12-26|OTC", resolved["partition_key"])
}

func TestResolveTrimsStringValues(t *testing.T) {
	spec := Spec{Params: []ParamSpec{{Name: "partition_key", Required: true}}}
	resolved, err := Resolve(spec, map[string]any{"partition_key": "  p1  "})
	require.NoError(t, err)
	assert.Equal(t, "p1", resolved["partition_key"])
}

func TestResolveValidatesEnumTag(t *testing.T) {
	spec := Spec{Params: []ParamSpec{{Name: "calc_version", Required: true, Tag: "oneof=v1 v2 v10"}}}

	_, err := Resolve(spec, map[string]any{"calc_version": "v99"})
	assert.Error(t, err)

	resolved, err := Resolve(spec, map[string]any{"calc_version": "v10"})
	require.NoError(t, err)
	assert.Equal(t, "v10", resolved["calc_version"])
}

func TestResolveValidatesRangeTag(t *testing.T) {
	spec := Spec{Params: []ParamSpec{{Name: "batch_size", Required: true, Tag: "gte=1,lte=1000"}}}

	_, err := Resolve(spec, map[string]any{"batch_size": 5000})
	assert.Error(t, err)

	_, err = Resolve(spec, map[string]any{"batch_size": 500})
	assert.NoError(t, err)
}
