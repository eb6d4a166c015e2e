// Package errors provides the unified error taxonomy for spine-core.
package errors

import (
	"errors"
	"fmt"
)

// Kind is the closed taxonomy of failure categories the execution substrate
// recognizes. Every SpineError carries exactly one Kind.
type Kind string

const (
	KindTransient     Kind = "TRANSIENT"
	KindSource        Kind = "SOURCE"
	KindValidation    Kind = "VALIDATION"
	KindConfig        Kind = "CONFIG"
	KindAuth          Kind = "AUTH"
	KindPipeline      Kind = "PIPELINE"
	KindOrchestration Kind = "ORCHESTRATION"
	KindStorage       Kind = "STORAGE"
	KindQuery         Kind = "QUERY"
)

// Category is an open sub-classification within a Kind (e.g. Network,
// Timeout, RateLimit under Transient). Categories are free-form strings;
// the constants below are the ones the core itself raises.
type Category string

const (
	CategoryNetwork      Category = "NETWORK"
	CategoryTimeout      Category = "TIMEOUT"
	CategoryRateLimit    Category = "RATE_LIMIT"
	CategoryDBConnection Category = "DB_CONNECTION"

	CategoryNotFound    Category = "NOT_FOUND"
	CategoryUnavailable Category = "UNAVAILABLE"
	CategoryParse       Category = "PARSE"

	CategorySchema     Category = "SCHEMA"
	CategoryConstraint Category = "CONSTRAINT"

	CategoryMissing Category = "MISSING"
	CategoryInvalid Category = "INVALID"

	CategoryAuthn Category = "AUTHN"
	CategoryAuthz Category = "AUTHZ"

	CategoryPipelineNotFound Category = "PIPELINE_NOT_FOUND"
	CategoryBadParams        Category = "BAD_PARAMS"

	CategoryWorkflow Category = "WORKFLOW"
	CategorySchedule Category = "SCHEDULE"

	CategoryIntegrity Category = "INTEGRITY"

	CategoryQualityGate Category = "QUALITY_GATE"
)

// SpineError is the single error type the execution substrate produces. It
// carries enough structure for the Runner and Dispatcher to decide retry
// policy and for serialization into core_execution_events.
type SpineError struct {
	Kind      Kind
	Category  Category
	Message   string
	Retryable bool
	Cause     error
	Context   map[string]any
}

// Error implements the error interface.
func (e *SpineError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s/%s] %s: %v", e.Kind, e.Category, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s/%s] %s", e.Kind, e.Category, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *SpineError) Unwrap() error {
	return e.Cause
}

// WithContext attaches a context key/value, returning the same error for
// chaining.
func (e *SpineError) WithContext(key string, value any) *SpineError {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// ToMap serializes the error into a plain map, the shape recorded in
// core_execution_events.data_json.
func (e *SpineError) ToMap() map[string]any {
	m := map[string]any{
		"kind":      string(e.Kind),
		"category":  string(e.Category),
		"message":   e.Message,
		"retryable": e.Retryable,
	}
	if e.Cause != nil {
		m["cause"] = e.Cause.Error()
	}
	if len(e.Context) > 0 {
		m["context"] = e.Context
	}
	return m
}

func New(kind Kind, category Category, message string, retryable bool) *SpineError {
	return &SpineError{Kind: kind, Category: category, Message: message, Retryable: retryable}
}

func Wrap(kind Kind, category Category, message string, retryable bool, cause error) *SpineError {
	return &SpineError{Kind: kind, Category: category, Message: message, Retryable: retryable, Cause: cause}
}

// Transient errors (retryable).

func Network(err error) *SpineError {
	return Wrap(KindTransient, CategoryNetwork, "network error", true, err)
}

func Timeout(operation string) *SpineError {
	return New(KindTransient, CategoryTimeout, "operation timed out", true).WithContext("operation", operation)
}

func RateLimited(limit int, window string) *SpineError {
	return New(KindTransient, CategoryRateLimit, "rate limit exceeded", true).
		WithContext("limit", limit).WithContext("window", window)
}

func DBConnection(err error) *SpineError {
	return Wrap(KindTransient, CategoryDBConnection, "database connection error", true, err)
}

// Source errors.

func SourceNotFound(resource string) *SpineError {
	return New(KindSource, CategoryNotFound, "source not found", false).WithContext("resource", resource)
}

func SourceUnavailable(err error) *SpineError {
	return Wrap(KindSource, CategoryUnavailable, "source unavailable", true, err)
}

func SourceParse(err error) *SpineError {
	return Wrap(KindSource, CategoryParse, "source parse error", false, err)
}

// Validation errors.

func SchemaViolation(field, reason string) *SpineError {
	return New(KindValidation, CategorySchema, "schema violation", false).
		WithContext("field", field).WithContext("reason", reason)
}

func ConstraintViolation(constraint string, err error) *SpineError {
	return Wrap(KindValidation, CategoryConstraint, "constraint violation", false, err).
		WithContext("constraint", constraint)
}

// Config errors.

func MissingConfig(key string) *SpineError {
	return New(KindConfig, CategoryMissing, "missing required configuration", false).WithContext("key", key)
}

func InvalidConfig(key, reason string) *SpineError {
	return New(KindConfig, CategoryInvalid, "invalid configuration", false).
		WithContext("key", key).WithContext("reason", reason)
}

// Auth errors.

func Unauthenticated(err error) *SpineError {
	return Wrap(KindAuth, CategoryAuthn, "authentication failed", false, err)
}

func Unauthorized(resource string) *SpineError {
	return New(KindAuth, CategoryAuthz, "authorization denied", false).WithContext("resource", resource)
}

// Pipeline errors.

func PipelineNotFound(name string) *SpineError {
	return New(KindPipeline, CategoryPipelineNotFound, "pipeline not registered", false).WithContext("name", name)
}

func BadParams(reason string) *SpineError {
	return New(KindPipeline, CategoryBadParams, "invalid pipeline parameters", false).WithContext("reason", reason)
}

// Orchestration errors.

func WorkflowError(step string, err error) *SpineError {
	return Wrap(KindOrchestration, CategoryWorkflow, "workflow step failed", false, err).WithContext("step", step)
}

func ScheduleError(err error) *SpineError {
	return Wrap(KindOrchestration, CategorySchedule, "schedule error", true, err)
}

// Storage/database errors.

func QueryFailed(operation string, err error) *SpineError {
	return Wrap(KindQuery, CategoryInvalid, "query failed", true, err).WithContext("operation", operation)
}

func IntegrityViolation(operation string, err error) *SpineError {
	return Wrap(KindStorage, CategoryIntegrity, "integrity constraint violated", false, err).
		WithContext("operation", operation)
}

// QualityGateFailed models a pipeline's partition-wide failure when a
// quality check fails and the caller elects to treat it as fatal.
func QualityGateFailed(partitionKey, checkName string) *SpineError {
	return New(KindValidation, CategoryQualityGate, "quality gate failed", false).
		WithContext("partition_key", partitionKey).WithContext("check_name", checkName)
}

// As extracts a *SpineError from an error chain.
func As(err error) *SpineError {
	var se *SpineError
	if errors.As(err, &se) {
		return se
	}
	return nil
}

// IsRetryable reports whether err is retryable, defaulting to false for
// errors outside the taxonomy.
func IsRetryable(err error) bool {
	if se := As(err); se != nil {
		return se.Retryable
	}
	return false
}
