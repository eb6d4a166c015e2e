package marketdata

import (
	"github.com/ryansmccoy/spine-core/core/anomaly"
	"github.com/ryansmccoy/spine-core/core/calc"
	"github.com/ryansmccoy/spine-core/core/manifest"
	"github.com/ryansmccoy/spine-core/core/pipeline"
	"github.com/ryansmccoy/spine-core/core/quality"
	"github.com/ryansmccoy/spine-core/core/readiness"
	"github.com/ryansmccoy/spine-core/core/reject"
	"github.com/ryansmccoy/spine-core/core/repository"
)

// Deps collects the core substrate handles the finra.otc domain wires
// its pipelines and calc registry entry against.
type Deps struct {
	Repo       *repository.Repository
	Pipelines  *pipeline.Registry
	Calcs      *calc.Registry
	Anomalies  *anomaly.Sink
	QualityLog *quality.Store
	Rejects    *reject.Sink
	Readiness  *readiness.Facade
}

// Register builds this domain's Manifest and wires ingest_otc,
// normalize_otc, and aggregate_otc into deps.Pipelines, and the
// venue_share calc policy into deps.Calcs.
func Register(deps Deps) {
	m := manifest.New(deps.Repo, DomainName, Stages)

	deps.Calcs.Register(CalcName, calc.Entry{
		Versions:     []string{"v1", "v2", "v10"},
		Current:      "v10",
		Deprecated:   []string{"v1"},
		BusinessKeys: []string{"partition_key", "venue"},
		Table:        OutputTable,
	})

	deps.Pipelines.Register("ingest_otc", func() pipeline.Pipeline {
		return NewIngestPipeline(deps.Repo, m, deps.QualityLog, deps.Readiness)
	})
	deps.Pipelines.Register("normalize_otc", func() pipeline.Pipeline {
		return NewNormalizePipeline(deps.Repo, m, deps.Rejects)
	})
	deps.Pipelines.Register("aggregate_otc", func() pipeline.Pipeline {
		return NewAggregatePipeline(deps.Repo, m, deps.Calcs, deps.QualityLog, deps.Anomalies, deps.Readiness)
	})
}
