// Package anomaly records partition-scoped quality and operational events.
// Writes are append-only; the only mutation is resolving an existing row.
package anomaly

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ryansmccoy/spine-core/core/repository"
)

const tableName = "core_anomalies"

// Severity is the closed severity taxonomy for an anomaly row.
type Severity string

const (
	SeverityDebug    Severity = "DEBUG"
	SeverityInfo     Severity = "INFO"
	SeverityWarn     Severity = "WARN"
	SeverityError    Severity = "ERROR"
	SeverityCritical Severity = "CRITICAL"
)

// Category is an open enum; the constants below are the categories the
// core substrate itself raises, but domains may record their own.
type Category string

const (
	CategoryQualityGate Category = "QUALITY_GATE"
	CategoryNetwork     Category = "NETWORK"
	CategoryDataQuality Category = "DATA_QUALITY"
	CategorySchedule    Category = "SCHEDULE"
	CategoryProcessing  Category = "PROCESSING"
)

// Row is a single anomaly record.
type Row struct {
	AnomalyID    string
	Domain       string
	Stage        string
	PartitionKey string
	Severity     Severity
	Category     Category
	Message      string
	DetectedAt   time.Time
	Metadata     map[string]any
	ResolvedAt   *time.Time
}

// Sink writes and resolves anomaly rows.
type Sink struct {
	repo *repository.Repository
}

// New binds a Sink to a repository.
func New(repo *repository.Repository) *Sink {
	return &Sink{repo: repo}
}

// Record appends an anomaly row, scoped to (domain, stage, partitionKey).
// Recording never fails the caller's pipeline step silently: a write
// error is returned so the caller decides whether it's fatal.
func (s *Sink) Record(ctx context.Context, domain, stage, partitionKey string, severity Severity, category Category, message string, metadata map[string]any) (string, error) {
	id := uuid.NewString()
	values := repository.Row{
		"anomaly_id":    id,
		"domain":        domain,
		"stage":         stage,
		"partition_key": partitionKey,
		"severity":      string(severity),
		"category":      string(category),
		"message":       message,
		"detected_at":   time.Now().UTC(),
		"metadata_json": metadata,
	}
	if _, err := s.repo.Insert(ctx, tableName, values); err != nil {
		return "", err
	}
	return id, nil
}

// Resolve marks anomalyID resolved at the current wall-clock time.
func (s *Sink) Resolve(ctx context.Context, anomalyID string) error {
	d := s.repo.Dialect()
	sqlStr := `UPDATE ` + tableName + ` SET resolved_at = ` + d.Placeholder(0) + ` WHERE anomaly_id = ` + d.Placeholder(1)
	_, err := s.repo.Execute(ctx, sqlStr, time.Now().UTC(), anomalyID)
	return err
}

// Unresolved returns every unresolved anomaly for the exact scope
// (domain, stage, partition_key); there is no broader-filter variant by
// design — a scope-widening filter would hide unrelated partitions'
// issues under this partition's query.
func (s *Sink) Unresolved(ctx context.Context, domain, stage, partitionKey string) ([]Row, error) {
	d := s.repo.Dialect()
	rows, err := s.repo.Query(ctx,
		`SELECT anomaly_id, domain, stage, partition_key, severity, category, message, detected_at, metadata_json, resolved_at
		 FROM `+tableName+`
		 WHERE domain = `+d.Placeholder(0)+` AND stage = `+d.Placeholder(1)+` AND partition_key = `+d.Placeholder(2)+`
		   AND resolved_at IS NULL
		 ORDER BY detected_at`,
		domain, stage, partitionKey,
	)
	if err != nil {
		return nil, err
	}

	out := make([]Row, 0, len(rows))
	for _, r := range rows {
		out = append(out, rowFromRecord(r))
	}
	return out, nil
}

// HasBlockingSeverity reports whether the exact (domain, stage,
// partition_key) scope has any unresolved row at severity ERROR or
// CRITICAL — the predicate readiness.Facade.Refresh gates on.
func (s *Sink) HasBlockingSeverity(ctx context.Context, domain, stage, partitionKey string) (bool, error) {
	rows, err := s.Unresolved(ctx, domain, stage, partitionKey)
	if err != nil {
		return false, err
	}
	for _, r := range rows {
		if r.Severity == SeverityError || r.Severity == SeverityCritical {
			return true, nil
		}
	}
	return false, nil
}

func rowFromRecord(r repository.Row) Row {
	out := Row{
		AnomalyID:    asString(r["anomaly_id"]),
		Domain:       asString(r["domain"]),
		Stage:        asString(r["stage"]),
		PartitionKey: asString(r["partition_key"]),
		Severity:     Severity(asString(r["severity"])),
		Category:     Category(asString(r["category"])),
		Message:      asString(r["message"]),
	}
	if ts, ok := r["detected_at"].(time.Time); ok {
		out.DetectedAt = ts
	}
	if m, ok := r["metadata_json"].(map[string]any); ok {
		out.Metadata = m
	}
	if ts, ok := r["resolved_at"].(time.Time); ok {
		out.ResolvedAt = &ts
	}
	return out
}

func asString(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}
