package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	e := New(KindValidation, CategorySchema, "bad field", false)
	require.Error(t, e)
	assert.Equal(t, KindValidation, e.Kind)
	assert.Equal(t, CategorySchema, e.Category)
	assert.False(t, e.Retryable)
	assert.Contains(t, e.Error(), "bad field")
}

func TestWrap(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	e := Wrap(KindTransient, CategoryNetwork, "network error", true, cause)
	assert.True(t, e.Retryable)
	assert.ErrorIs(t, e, cause)
	assert.Contains(t, e.Error(), "connection refused")
}

func TestWithContext(t *testing.T) {
	e := New(KindPipeline, CategoryBadParams, "invalid pipeline parameters", false).
		WithContext("reason", "missing tier")
	assert.Equal(t, "missing tier", e.Context["reason"])
}

func TestToMap(t *testing.T) {
	e := Wrap(KindStorage, CategoryIntegrity, "integrity constraint violated", false, errors.New("duplicate key")).
		WithContext("operation", "insert")
	m := e.ToMap()
	assert.Equal(t, "STORAGE", m["kind"])
	assert.Equal(t, "INTEGRITY", m["category"])
	assert.Equal(t, false, m["retryable"])
	assert.Equal(t, "duplicate key", m["cause"])
	assert.Equal(t, map[string]any{"operation": "insert"}, m["context"])
}

func TestAsAndIsRetryable(t *testing.T) {
	wrapped := Timeout("ingest")
	var plain error = wrapped

	se := As(plain)
	require.NotNil(t, se)
	assert.Equal(t, CategoryTimeout, se.Category)
	assert.True(t, IsRetryable(plain))

	assert.False(t, IsRetryable(errors.New("not a spine error")))
	assert.Nil(t, As(errors.New("not a spine error")))
}

func TestConstructors(t *testing.T) {
	cases := []struct {
		name      string
		err       *SpineError
		kind      Kind
		retryable bool
	}{
		{"Network", Network(errors.New("x")), KindTransient, true},
		{"Timeout", Timeout("op"), KindTransient, true},
		{"RateLimited", RateLimited(10, "1m"), KindTransient, true},
		{"DBConnection", DBConnection(errors.New("x")), KindTransient, true},
		{"SourceNotFound", SourceNotFound("file.csv"), KindSource, false},
		{"SourceUnavailable", SourceUnavailable(errors.New("x")), KindSource, true},
		{"SourceParse", SourceParse(errors.New("x")), KindSource, false},
		{"SchemaViolation", SchemaViolation("f", "r"), KindValidation, false},
		{"ConstraintViolation", ConstraintViolation("uniq", errors.New("x")), KindValidation, false},
		{"MissingConfig", MissingConfig("DSN"), KindConfig, false},
		{"InvalidConfig", InvalidConfig("DSN", "empty"), KindConfig, false},
		{"Unauthenticated", Unauthenticated(errors.New("x")), KindAuth, false},
		{"Unauthorized", Unauthorized("partition"), KindAuth, false},
		{"PipelineNotFound", PipelineNotFound("ingest"), KindPipeline, false},
		{"BadParams", BadParams("missing domain"), KindPipeline, false},
		{"WorkflowError", WorkflowError("ingest", errors.New("x")), KindOrchestration, false},
		{"ScheduleError", ScheduleError(errors.New("x")), KindOrchestration, true},
		{"QueryFailed", QueryFailed("select", errors.New("x")), KindQuery, true},
		{"IntegrityViolation", IntegrityViolation("insert", errors.New("x")), KindStorage, false},
		{"QualityGateFailed", QualityGateFailed("2025-12-26|OTC", "shares_sum_to_one"), KindValidation, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.kind, tc.err.Kind)
			assert.Equal(t, tc.retryable, tc.err.Retryable)
		})
	}
}
