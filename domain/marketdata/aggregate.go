package marketdata

import (
	"context"
	"math"
	"time"

	"github.com/ryansmccoy/spine-core/core/anomaly"
	"github.com/ryansmccoy/spine-core/core/calc"
	"github.com/ryansmccoy/spine-core/core/manifest"
	"github.com/ryansmccoy/spine-core/core/pipeline"
	"github.com/ryansmccoy/spine-core/core/quality"
	"github.com/ryansmccoy/spine-core/core/readiness"
	"github.com/ryansmccoy/spine-core/core/repository"
	"github.com/ryansmccoy/spine-core/infrastructure/errors"
)

// shareTolerance is how far the sum of per-venue shares may drift from
// 1.0 and still record PASS rather than FAIL (S4 uses 1.02, well outside
// this tolerance).
const shareTolerance = 0.0001

// AggregatePipeline computes each venue's share of total traded volume
// for a partition's normalized rows under the registered venue_share
// calc, gating on the shares_sum_to_one quality check (S4, S6).
type AggregatePipeline struct {
	repo      *repository.Repository
	manifest  *manifest.Manifest
	calc      *calc.Registry
	quality   *quality.Store
	anomalies *anomaly.Sink
	readiness *readiness.Facade
}

// NewAggregatePipeline binds an AggregatePipeline to its dependencies.
func NewAggregatePipeline(repo *repository.Repository, m *manifest.Manifest, c *calc.Registry, q *quality.Store, a *anomaly.Sink, r *readiness.Facade) *AggregatePipeline {
	return &AggregatePipeline{repo: repo, manifest: m, calc: c, quality: q, anomalies: a, readiness: r}
}

// Spec declares aggregate_otc's parameter contract. calc_version is
// optional; an absent value resolves to the calc registry's current
// version (S6).
func (p *AggregatePipeline) Spec() pipeline.Spec {
	return pipeline.Spec{
		Params: []pipeline.ParamSpec{
			{Name: "partition_key", Required: true},
			{Name: "calc_version", Required: false},
			{Name: "allow_deprecated", Required: false, Default: false},
			{Name: "force", Required: false, Default: false},
		},
	}
}

// Run computes venue_share rows for the partition's latest normalized
// capture and writes them under the resolved calc version. A partition
// that has already reached AGGREGATED short-circuits with a SKIPPED
// result unless params["force"] is true.
func (p *AggregatePipeline) Run(ctx context.Context, params map[string]any, execCtx pipeline.ExecutionContext) (pipeline.Result, error) {
	partitionKey, _ := params["partition_key"].(string)
	requestedVersion, _ := params["calc_version"].(string)
	allowDeprecated, _ := params["allow_deprecated"].(bool)
	force, _ := params["force"].(bool)

	alreadyAggregated, err := p.manifest.IsAtLeast(ctx, partitionKey, StageAggregated)
	if err != nil {
		return pipeline.Result{}, err
	}
	if alreadyAggregated && !force {
		return pipeline.Result{Status: pipeline.StatusSkipped}, nil
	}

	version, err := p.calc.ResolveVersion(CalcName, requestedVersion)
	if err != nil {
		return pipeline.Result{}, err
	}
	if err := p.calc.AuthorizeWrite(CalcName, version, allowDeprecated); err != nil {
		return pipeline.Result{}, err
	}

	atLeast, err := p.manifest.IsAtLeast(ctx, partitionKey, StageNormalized)
	if err != nil {
		return pipeline.Result{}, err
	}
	if !atLeast {
		return pipeline.Result{}, errors.BadParams("partition has not been normalized").WithContext("partition_key", partitionKey)
	}

	captureID, err := p.latestNormalizedCaptureID(ctx, partitionKey)
	if err != nil {
		return pipeline.Result{}, err
	}

	d := p.repo.Dialect()
	rows, err := p.repo.Query(ctx,
		`SELECT venue, shares FROM `+normalizedTable+` WHERE capture_id = `+d.Placeholder(0),
		captureID,
	)
	if err != nil {
		return pipeline.Result{}, err
	}

	totals := map[string]float64{}
	var grandTotal float64
	for _, row := range rows {
		venue, _ := row["venue"].(string)
		shares, _ := asFloat(row["shares"])
		totals[venue] += shares
		grandTotal += shares
	}

	now := time.Now().UTC()
	var shareRows []repository.Row
	var sum float64
	for venue, venueShares := range totals {
		share := 0.0
		if grandTotal > 0 {
			share = venueShares / grandTotal
		}
		sum += share
		shareRows = append(shareRows, repository.Row{
			"partition_key": partitionKey,
			"venue":         venue,
			"share":         share,
			"calc_version":  version,
			"capture_id":    captureID,
			"calculated_at": now,
		})
	}

	err = p.repo.WithTx(ctx, func(tx *repository.Repository) error {
		txd := tx.Dialect()
		if _, err := tx.Execute(ctx,
			`DELETE FROM `+OutputTable+` WHERE capture_id = `+txd.Placeholder(0)+` AND calc_version = `+txd.Placeholder(1),
			captureID, version,
		); err != nil {
			return err
		}
		for _, row := range shareRows {
			if _, err := tx.Insert(ctx, OutputTable, row); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return pipeline.Result{}, err
	}

	qualityStatus := quality.StatusPass
	qualityMessage := "venue shares sum to 1.0"
	if math.Abs(sum-1.0) > shareTolerance {
		qualityStatus = quality.StatusFail
		qualityMessage = "venue shares do not sum to 1.0"
	}

	result := quality.Result{
		CheckName:    "shares_sum_to_one",
		Category:     "CONSISTENCY",
		Status:       qualityStatus,
		Message:      qualityMessage,
		Actual:       sum,
		Expected:     1.0,
		PartitionKey: partitionKey,
	}
	if err := p.quality.Save(ctx, DomainName, execCtx.ExecutionID, []quality.Result{result}); err != nil {
		return pipeline.Result{}, err
	}

	if qualityStatus == quality.StatusFail {
		if _, err := p.anomalies.Record(ctx, DomainName, StageAggregated, partitionKey,
			anomaly.SeverityError, anomaly.CategoryQualityGate, qualityMessage,
			map[string]any{"actual": sum, "expected": 1.0}); err != nil {
			return pipeline.Result{}, err
		}
	}

	rowCount := int64(len(shareRows))
	metrics := map[string]any{"row_count": rowCount, "share_sum": sum, "calc_version": version}
	if err := p.manifest.AdvanceTo(ctx, partitionKey, StageAggregated, &rowCount, metrics, execCtx.ExecutionID, execCtx.BatchID); err != nil {
		return pipeline.Result{}, err
	}
	if err := p.readiness.Refresh(ctx, StageAggregated, partitionKey); err != nil {
		return pipeline.Result{}, err
	}

	// A failed shares_sum_to_one check is recorded as an anomaly, not a
	// pipeline failure; the partition surfaces as not-ready through the
	// readiness facade instead of aborting the run.
	return pipeline.Result{Status: pipeline.StatusCompleted, Metrics: metrics}, nil
}

func (p *AggregatePipeline) latestNormalizedCaptureID(ctx context.Context, partitionKey string) (string, error) {
	d := p.repo.Dialect()
	row, err := p.repo.QueryOne(ctx,
		`SELECT capture_id FROM `+normalizedTable+` WHERE partition_key = `+d.Placeholder(0)+` ORDER BY normalized_at DESC`,
		partitionKey,
	)
	if err != nil {
		return "", err
	}
	if row == nil {
		return "", errors.BadParams("no normalized rows for partition").WithContext("partition_key", partitionKey)
	}
	id, _ := row["capture_id"].(string)
	return id, nil
}
