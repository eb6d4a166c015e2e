// Package reject records per-record ingest/normalize failures that don't
// abort a pipeline — the rows a domain chose to skip rather than fail on.
package reject

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ryansmccoy/spine-core/core/repository"
)

const tableName = "core_rejects"

// Record is one rejected input row.
type Record struct {
	Stage        string
	ReasonCode   string
	ReasonDetail string
	RawData      map[string]any
	PartitionKey string
	ExecutionID  string
	BatchID      string
	CapturedAt   time.Time
}

// Sink writes reject records.
type Sink struct {
	repo   *repository.Repository
	domain string
}

// New binds a Sink to a domain and repository.
func New(repo *repository.Repository, domain string) *Sink {
	return &Sink{repo: repo, domain: domain}
}

// Write appends one reject record.
func (s *Sink) Write(ctx context.Context, rec Record) error {
	values := repository.Row{
		"id":             uuid.NewString(),
		"domain":         s.domain,
		"stage":          rec.Stage,
		"reason_code":    rec.ReasonCode,
		"reason_detail":  rec.ReasonDetail,
		"raw_data_json":  rec.RawData,
		"partition_key":  rec.PartitionKey,
		"execution_id":   rec.ExecutionID,
		"batch_id":       rec.BatchID,
		"captured_at":    rec.CapturedAt,
	}
	_, err := s.repo.Insert(ctx, tableName, values)
	return err
}

// WriteMany appends every record in recs, in order. A single failed write
// stops and returns its error; prior writes in the batch are not rolled
// back automatically — callers wanting all-or-nothing semantics should
// run WriteMany inside Repository.WithTx.
func (s *Sink) WriteMany(ctx context.Context, recs []Record) error {
	for _, rec := range recs {
		if err := s.Write(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}

// ForPartition returns every reject recorded for (domain, partitionKey),
// most recent first.
func (s *Sink) ForPartition(ctx context.Context, partitionKey string) ([]Record, error) {
	d := s.repo.Dialect()
	rows, err := s.repo.Query(ctx,
		`SELECT stage, reason_code, reason_detail, raw_data_json, partition_key, execution_id, batch_id, captured_at
		 FROM `+tableName+`
		 WHERE domain = `+d.Placeholder(0)+` AND partition_key = `+d.Placeholder(1)+`
		 ORDER BY captured_at DESC`,
		s.domain, partitionKey,
	)
	if err != nil {
		return nil, err
	}

	out := make([]Record, 0, len(rows))
	for _, r := range rows {
		rec := Record{
			Stage:        asString(r["stage"]),
			ReasonCode:   asString(r["reason_code"]),
			ReasonDetail: asString(r["reason_detail"]),
			PartitionKey: asString(r["partition_key"]),
			ExecutionID:  asString(r["execution_id"]),
			BatchID:      asString(r["batch_id"]),
		}
		if m, ok := r["raw_data_json"].(map[string]any); ok {
			rec.RawData = m
		}
		if ts, ok := r["captured_at"].(time.Time); ok {
			rec.CapturedAt = ts
		}
		out = append(out, rec)
	}
	return out, nil
}

func asString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}
