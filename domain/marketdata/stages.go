// Package marketdata is the finra.otc domain: a thin, concrete pipeline
// set (ingest, normalize, aggregate) demonstrating the execution
// substrate end to end over over-the-counter equity trade reports.
package marketdata

import "github.com/ryansmccoy/spine-core/core/manifest"

// DomainName is the manifest/anomaly/quality/readiness scope every
// finra.otc component records under.
const DomainName = "finra.otc"

// Stages is this domain's declared, ordered stage list.
var Stages = manifest.StageOrder{StageIngested, StageNormalized, StageAggregated}

const (
	StageIngested   = "INGESTED"
	StageNormalized = "NORMALIZED"
	StageAggregated = "AGGREGATED"
)

// CalcName is the registered calc.Registry entry this domain's aggregate
// pipeline writes under.
const CalcName = "venue_share"

// OutputTable is the versioned calc output table aggregate_otc writes.
const OutputTable = "otc_venue_share"
