package marketdata

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ryansmccoy/spine-core/core/capture"
	"github.com/ryansmccoy/spine-core/core/manifest"
	"github.com/ryansmccoy/spine-core/core/pipeline"
	"github.com/ryansmccoy/spine-core/core/quality"
	"github.com/ryansmccoy/spine-core/core/readiness"
	"github.com/ryansmccoy/spine-core/core/repository"
	"github.com/ryansmccoy/spine-core/infrastructure/errors"
)

const rawTable = "otc_trades_raw"

// IngestPipeline captures raw OTC trade reports for one partition,
// identity-stamping them with a content-addressed capture_id so a replay
// of the same payload is a clean delete-then-reinsert (S1, S2).
type IngestPipeline struct {
	repo      *repository.Repository
	manifest  *manifest.Manifest
	quality   *quality.Store
	readiness *readiness.Facade
}

// NewIngestPipeline binds an IngestPipeline to its dependencies.
func NewIngestPipeline(repo *repository.Repository, m *manifest.Manifest, q *quality.Store, r *readiness.Facade) *IngestPipeline {
	return &IngestPipeline{repo: repo, manifest: m, quality: q, readiness: r}
}

// Spec declares ingest_otc's parameter contract.
func (p *IngestPipeline) Spec() pipeline.Spec {
	return pipeline.Spec{
		Params: []pipeline.ParamSpec{
			{Name: "partition_key", Required: true},
			{Name: "rows", Required: true},
			{Name: "force", Required: false, Default: false},
		},
	}
}

// Run captures params["rows"] (a list of {venue, symbol, shares} records)
// under params["partition_key"], replacing any prior rows captured under
// the same content-derived capture_id. A partition that has already
// reached INGESTED short-circuits with a SKIPPED result unless
// params["force"] is true.
func (p *IngestPipeline) Run(ctx context.Context, params map[string]any, execCtx pipeline.ExecutionContext) (pipeline.Result, error) {
	partitionKey, _ := params["partition_key"].(string)
	force, _ := params["force"].(bool)

	alreadyIngested, err := p.manifest.IsAtLeast(ctx, partitionKey, StageIngested)
	if err != nil {
		return pipeline.Result{}, err
	}
	if alreadyIngested && !force {
		return pipeline.Result{Status: pipeline.StatusSkipped}, nil
	}

	rawRows, ok := params["rows"].([]any)
	if !ok {
		return pipeline.Result{}, errors.BadParams("rows must be a list of trade records")
	}

	rows := make([]map[string]any, 0, len(rawRows))
	for _, r := range rawRows {
		row, ok := r.(map[string]any)
		if !ok {
			return pipeline.Result{}, errors.BadParams("each row must be an object")
		}
		rows = append(rows, row)
	}

	payload, err := json.Marshal(rows)
	if err != nil {
		return pipeline.Result{}, errors.SourceParse(err)
	}
	now := time.Now().UTC()
	identity := capture.New(DomainName, partitionKey, payload, false, now)

	var rowCount int64
	err = p.repo.WithTx(ctx, func(tx *repository.Repository) error {
		d := tx.Dialect()
		if _, err := tx.Execute(ctx,
			`DELETE FROM `+rawTable+` WHERE capture_id = `+d.Placeholder(0),
			identity.CaptureID,
		); err != nil {
			return err
		}

		for _, row := range rows {
			values := repository.Row{
				"partition_key": partitionKey,
				"venue":         row["venue"],
				"symbol":        row["symbol"],
				"shares":        row["shares"],
				"raw_json":      row,
				"capture_id":    identity.CaptureID,
				"captured_at":   identity.CapturedAt,
			}
			if _, err := tx.Insert(ctx, rawTable, values); err != nil {
				return err
			}
		}
		rowCount = int64(len(rows))
		return nil
	})
	if err != nil {
		return pipeline.Result{}, err
	}

	metrics := map[string]any{"row_count": rowCount, "capture_id": identity.CaptureID}
	if err := p.manifest.AdvanceTo(ctx, partitionKey, StageIngested, &rowCount, metrics, execCtx.ExecutionID, execCtx.BatchID); err != nil {
		return pipeline.Result{}, err
	}

	result := quality.Result{
		CheckName:    "record_count_balance",
		Category:     "COMPLETENESS",
		Status:       quality.StatusPass,
		Message:      "ingested row count matches source payload",
		Actual:       float64(rowCount),
		Expected:     float64(rowCount),
		PartitionKey: partitionKey,
	}
	if err := p.quality.Save(ctx, DomainName, execCtx.ExecutionID, []quality.Result{result}); err != nil {
		return pipeline.Result{}, err
	}
	if err := p.readiness.Refresh(ctx, StageIngested, partitionKey); err != nil {
		return pipeline.Result{}, err
	}

	return pipeline.Result{Status: pipeline.StatusCompleted, Metrics: metrics}, nil
}
