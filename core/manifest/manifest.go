// Package manifest tracks the furthest stage reached per (domain,
// partition_key, stage) and is the authoritative skip gate pipelines
// consult before doing work.
package manifest

import (
	"context"
	"time"

	"github.com/ryansmccoy/spine-core/core/repository"
	"github.com/ryansmccoy/spine-core/infrastructure/errors"
)

const tableName = "core_manifest"

// Row is one manifest record: the furthest point reached for a single
// (domain, partition_key, stage).
type Row struct {
	Domain       string
	PartitionKey string
	Stage        string
	StageRank    int
	RowCount     *int64
	Metrics      map[string]any
	ExecutionID  string
	BatchID      string
	UpdatedAt    time.Time
}

// StageOrder is a domain's declared ordered stage list; rank is a stage's
// 0-based position. Manifest never infers order from stage names.
type StageOrder []string

// Rank returns stage's 0-based position, or -1 if stage isn't declared.
func (o StageOrder) Rank(stage string) int {
	for i, s := range o {
		if s == stage {
			return i
		}
	}
	return -1
}

// Manifest is the upsert-on-advance skip gate for one domain.
type Manifest struct {
	repo   *repository.Repository
	domain string
	stages StageOrder
}

// New binds a Manifest to a domain's declared stage order.
func New(repo *repository.Repository, domain string, stages StageOrder) *Manifest {
	return &Manifest{repo: repo, domain: domain, stages: stages}
}

// IsAtLeast reports whether partitionKey has reached at least stage,
// comparing stage_rank against the stored row. A partition with no
// manifest row at all has not reached any stage.
func (m *Manifest) IsAtLeast(ctx context.Context, partitionKey, stage string) (bool, error) {
	targetRank := m.stages.Rank(stage)
	if targetRank < 0 {
		return false, errors.BadParams("stage not declared in domain stage order").WithContext("stage", stage)
	}

	d := m.repo.Dialect()
	row, err := m.repo.QueryOne(ctx,
		`SELECT MAX(stage_rank) AS max_rank FROM `+tableName+` WHERE domain = `+d.Placeholder(0)+` AND partition_key = `+d.Placeholder(1),
		m.domain, partitionKey,
	)
	if err != nil {
		return false, err
	}
	if row == nil || row["max_rank"] == nil {
		return false, nil
	}
	maxRank, ok := asInt(row["max_rank"])
	if !ok {
		return false, nil
	}
	return maxRank >= targetRank, nil
}

// AdvanceTo idempotently records that partitionKey has reached stage,
// attaching metrics and lineage. Calling it twice with identical
// arguments yields one row and a later updated_at; it never rewinds a
// stage_rank already recorded for this (domain, partition_key, stage).
func (m *Manifest) AdvanceTo(ctx context.Context, partitionKey, stage string, rowCount *int64, metrics map[string]any, executionID, batchID string) error {
	rank := m.stages.Rank(stage)
	if rank < 0 {
		return errors.BadParams("stage not declared in domain stage order").WithContext("stage", stage)
	}

	values := repository.Row{
		"domain":        m.domain,
		"partition_key": partitionKey,
		"stage":         stage,
		"stage_rank":    rank,
		"row_count":     rowCount,
		"metrics_json":  metrics,
		"execution_id":  executionID,
		"batch_id":      batchID,
		"updated_at":    time.Now().UTC(),
	}
	return m.repo.Upsert(ctx, tableName, values,
		[]string{"domain", "partition_key", "stage"},
		[]string{"stage_rank", "row_count", "metrics_json", "execution_id", "batch_id", "updated_at"},
	)
}

// Get returns every stage row for partitionKey, ordered by stage_rank.
func (m *Manifest) Get(ctx context.Context, partitionKey string) ([]Row, error) {
	d := m.repo.Dialect()
	rows, err := m.repo.Query(ctx,
		`SELECT domain, partition_key, stage, stage_rank, row_count, metrics_json, execution_id, batch_id, updated_at
		 FROM `+tableName+`
		 WHERE domain = `+d.Placeholder(0)+` AND partition_key = `+d.Placeholder(1)+`
		 ORDER BY stage_rank`,
		m.domain, partitionKey,
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

// HasStage reports whether partitionKey has any recorded row for stage
// specifically (not "at least"), the check GetLatestStage builds on.
func (m *Manifest) HasStage(ctx context.Context, partitionKey, stage string) (bool, error) {
	d := m.repo.Dialect()
	row, err := m.repo.QueryOne(ctx,
		`SELECT 1 FROM `+tableName+` WHERE domain = `+d.Placeholder(0)+` AND partition_key = `+d.Placeholder(1)+` AND stage = `+d.Placeholder(2),
		m.domain, partitionKey, stage,
	)
	if err != nil {
		return false, err
	}
	return row != nil, nil
}

// GetLatestStage returns the highest-ranked stage recorded for
// partitionKey, or ("", false) if none exists.
func (m *Manifest) GetLatestStage(ctx context.Context, partitionKey string) (string, bool, error) {
	rows, err := m.Get(ctx, partitionKey)
	if err != nil {
		return "", false, err
	}
	if len(rows) == 0 {
		return "", false, nil
	}
	return rows[len(rows)-1].Stage, true, nil
}

func rowFromRecord(r repository.Row) Row {
	out := Row{
		Domain:       asString(r["domain"]),
		PartitionKey: asString(r["partition_key"]),
		Stage:        asString(r["stage"]),
		ExecutionID:  asString(r["execution_id"]),
		BatchID:      asString(r["batch_id"]),
	}
	if rank, ok := asInt(r["stage_rank"]); ok {
		out.StageRank = rank
	}
	if rc, ok := asInt64(r["row_count"]); ok {
		out.RowCount = &rc
	}
	if m, ok := r["metrics_json"].(map[string]any); ok {
		out.Metrics = m
	}
	if ts, ok := r["updated_at"].(time.Time); ok {
		out.UpdatedAt = ts
	}
	return out
}

func asString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	}
	return 0, false
}
