package marketdata

import (
	"context"
	"time"

	"github.com/ryansmccoy/spine-core/core/manifest"
	"github.com/ryansmccoy/spine-core/core/pipeline"
	"github.com/ryansmccoy/spine-core/core/reject"
	"github.com/ryansmccoy/spine-core/core/repository"
	"github.com/ryansmccoy/spine-core/infrastructure/errors"
)

const normalizedTable = "otc_trades_normalized"

// NormalizePipeline validates raw OTC rows captured by IngestPipeline,
// writing the subset that passes validation and routing the rest to the
// reject sink (S1: "M <= N rows with reject count N-M").
type NormalizePipeline struct {
	repo     *repository.Repository
	manifest *manifest.Manifest
	rejects  *reject.Sink
}

// NewNormalizePipeline binds a NormalizePipeline to its dependencies.
func NewNormalizePipeline(repo *repository.Repository, m *manifest.Manifest, r *reject.Sink) *NormalizePipeline {
	return &NormalizePipeline{repo: repo, manifest: m, rejects: r}
}

// Spec declares normalize_otc's parameter contract.
func (p *NormalizePipeline) Spec() pipeline.Spec {
	return pipeline.Spec{
		Params: []pipeline.ParamSpec{
			{Name: "partition_key", Required: true},
			{Name: "force", Required: false, Default: false},
		},
	}
}

// Run normalizes the most recently ingested capture for params["partition_key"].
// A partition that has already reached NORMALIZED short-circuits with a
// SKIPPED result unless params["force"] is true.
func (p *NormalizePipeline) Run(ctx context.Context, params map[string]any, execCtx pipeline.ExecutionContext) (pipeline.Result, error) {
	partitionKey, _ := params["partition_key"].(string)
	force, _ := params["force"].(bool)

	alreadyNormalized, err := p.manifest.IsAtLeast(ctx, partitionKey, StageNormalized)
	if err != nil {
		return pipeline.Result{}, err
	}
	if alreadyNormalized && !force {
		return pipeline.Result{Status: pipeline.StatusSkipped}, nil
	}

	atLeast, err := p.manifest.IsAtLeast(ctx, partitionKey, StageIngested)
	if err != nil {
		return pipeline.Result{}, err
	}
	if !atLeast {
		return pipeline.Result{}, errors.BadParams("partition has not been ingested").WithContext("partition_key", partitionKey)
	}

	captureID, err := p.latestCaptureID(ctx, partitionKey)
	if err != nil {
		return pipeline.Result{}, err
	}

	d := p.repo.Dialect()
	rawRows, err := p.repo.Query(ctx,
		`SELECT venue, symbol, shares FROM `+rawTable+` WHERE capture_id = `+d.Placeholder(0),
		captureID,
	)
	if err != nil {
		return pipeline.Result{}, err
	}

	now := time.Now().UTC()
	var valid []repository.Row
	var rejected int64
	for _, row := range rawRows {
		venue, _ := row["venue"].(string)
		symbol, _ := row["symbol"].(string)
		shares, sharesOK := asFloat(row["shares"])

		if venue == "" || symbol == "" || !sharesOK || shares <= 0 {
			rejected++
			if err := p.rejects.Write(ctx, reject.Record{
				Stage:        StageNormalized,
				ReasonCode:   "INVALID_ROW",
				ReasonDetail: "missing venue/symbol or non-positive shares",
				RawData:      row,
				PartitionKey: partitionKey,
				ExecutionID:  execCtx.ExecutionID,
				BatchID:      execCtx.BatchID,
				CapturedAt:   now,
			}); err != nil {
				return pipeline.Result{}, err
			}
			continue
		}

		valid = append(valid, repository.Row{
			"partition_key": partitionKey,
			"venue":         venue,
			"symbol":        symbol,
			"shares":        shares,
			"capture_id":    captureID,
			"normalized_at": now,
		})
	}

	err = p.repo.WithTx(ctx, func(tx *repository.Repository) error {
		txd := tx.Dialect()
		if _, err := tx.Execute(ctx,
			`DELETE FROM `+normalizedTable+` WHERE capture_id = `+txd.Placeholder(0),
			captureID,
		); err != nil {
			return err
		}
		for _, row := range valid {
			if _, err := tx.Insert(ctx, normalizedTable, row); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return pipeline.Result{}, err
	}

	rowCount := int64(len(valid))
	metrics := map[string]any{"row_count": rowCount, "rejected_count": rejected, "capture_id": captureID}
	if err := p.manifest.AdvanceTo(ctx, partitionKey, StageNormalized, &rowCount, metrics, execCtx.ExecutionID, execCtx.BatchID); err != nil {
		return pipeline.Result{}, err
	}

	return pipeline.Result{Status: pipeline.StatusCompleted, Metrics: metrics}, nil
}

func (p *NormalizePipeline) latestCaptureID(ctx context.Context, partitionKey string) (string, error) {
	d := p.repo.Dialect()
	row, err := p.repo.QueryOne(ctx,
		`SELECT capture_id FROM `+rawTable+` WHERE partition_key = `+d.Placeholder(0)+` ORDER BY captured_at DESC`,
		partitionKey,
	)
	if err != nil {
		return "", err
	}
	if row == nil {
		return "", errors.BadParams("no captured rows for partition").WithContext("partition_key", partitionKey)
	}
	id, _ := row["capture_id"].(string)
	return id, nil
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
