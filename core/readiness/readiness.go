// Package readiness is the single-call gate downstream consumers use to
// ask "is this partition usable?" — core_data_readiness, kept current by
// the domain pipelines calling Refresh after they save their quality
// results, and read by IsReady.
package readiness

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ryansmccoy/spine-core/core/anomaly"
	"github.com/ryansmccoy/spine-core/core/repository"
	"github.com/ryansmccoy/spine-core/infrastructure/cache"
)

const tableName = "core_data_readiness"

// isReadyCacheTTL bounds how stale a cached IsReady answer may be. Kept
// short: readiness is refreshed on every pipeline run that records
// quality results, and a downstream
// consumer polling IsReady in a tight loop should not wait much longer
// than that to see a Refresh take effect.
const isReadyCacheTTL = 2 * time.Second

type isReadyResult struct {
	ready  bool
	issues []string
}

// Facade refreshes and reads readiness rows for one domain, backed by the
// anomaly sink's scoped unresolved-anomaly query. IsReady answers are
// cached briefly (cache is nil unless built via NewWithCache) to absorb a
// downstream consumer polling the same partition repeatedly.
type Facade struct {
	repo      *repository.Repository
	anomalies *anomaly.Sink
	domain    string
	cache     *cache.TTLCache
}

// New binds a Facade to a domain, its repository, and its anomaly sink,
// with no IsReady caching.
func New(repo *repository.Repository, anomalies *anomaly.Sink, domain string) *Facade {
	return &Facade{repo: repo, anomalies: anomalies, domain: domain}
}

// NewWithCache is New plus a short-TTL in-process cache in front of
// IsReady, for a consumer that polls readiness at high frequency (e.g. a
// downstream pipeline gating its own start on another domain's output).
func NewWithCache(repo *repository.Repository, anomalies *anomaly.Sink, domain string) *Facade {
	return &Facade{repo: repo, anomalies: anomalies, domain: domain, cache: cache.NewTTLCache(isReadyCacheTTL)}
}

// Refresh recomputes and persists the readiness row for (stage,
// partitionKey): not ready when the anomaly sink has any unresolved
// ERROR/CRITICAL row in that exact scope, ready otherwise. Called by the
// domain pipelines (e.g. ingest_otc, aggregate_otc) right after they save
// their quality results and anomalies, so the row never lags a run that
// just recorded a failure.
func (f *Facade) Refresh(ctx context.Context, stage, partitionKey string) error {
	blocked, err := f.anomalies.HasBlockingSeverity(ctx, f.domain, stage, partitionKey)
	if err != nil {
		return err
	}

	var issues []string
	if blocked {
		rows, err := f.anomalies.Unresolved(ctx, f.domain, stage, partitionKey)
		if err != nil {
			return err
		}
		for _, r := range rows {
			if r.Severity == anomaly.SeverityError || r.Severity == anomaly.SeverityCritical {
				issues = append(issues, fmt.Sprintf("%s: %s", r.Category, r.Message))
			}
		}
	}

	issuesJSON, err := json.Marshal(issues)
	if err != nil {
		return err
	}

	isReady := 0
	if !blocked {
		isReady = 1
	}

	values := repository.Row{
		"domain":          f.domain,
		"stage":           stage,
		"partition_key":   partitionKey,
		"is_ready":        isReady,
		"blocking_issues": string(issuesJSON),
		"checked_at":      time.Now().UTC(),
	}
	if err := f.repo.Upsert(ctx, tableName, values,
		[]string{"domain", "stage", "partition_key"},
		[]string{"is_ready", "blocking_issues", "checked_at"},
	); err != nil {
		return err
	}
	if f.cache != nil {
		f.cache.Delete(ctx, f.domain+"|"+partitionKey)
	}
	return nil
}

// IsReady reports whether every recorded stage for (domain, partitionKey)
// is ready, returning the union of blocking issues across any stage that
// isn't. A partition with no recorded readiness rows at all is reported
// not ready — readiness is earned, never assumed absent evidence.
func (f *Facade) IsReady(ctx context.Context, partitionKey string) (bool, []string, error) {
	cacheKey := f.domain + "|" + partitionKey
	if f.cache != nil {
		if cached, ok := f.cache.Get(ctx, cacheKey); ok {
			r := cached.(isReadyResult)
			return r.ready, r.issues, nil
		}
	}

	ready, issues, err := f.queryIsReady(ctx, partitionKey)
	if err != nil {
		return false, nil, err
	}
	if f.cache != nil {
		f.cache.Set(ctx, cacheKey, isReadyResult{ready: ready, issues: issues})
	}
	return ready, issues, nil
}

func (f *Facade) queryIsReady(ctx context.Context, partitionKey string) (bool, []string, error) {
	d := f.repo.Dialect()
	rows, err := f.repo.Query(ctx,
		`SELECT stage, is_ready, blocking_issues FROM `+tableName+`
		 WHERE domain = `+d.Placeholder(0)+` AND partition_key = `+d.Placeholder(1),
		f.domain, partitionKey,
	)
	if err != nil {
		return false, nil, err
	}
	if len(rows) == 0 {
		return false, []string{"no readiness rows recorded for partition"}, nil
	}

	ready := true
	var issues []string
	for _, r := range rows {
		if n, ok := asInt(r["is_ready"]); !ok || n == 0 {
			ready = false
		}
		if s, ok := r["blocking_issues"].(string); ok && s != "" && s != "null" {
			var stageIssues []string
			if err := json.Unmarshal([]byte(s), &stageIssues); err == nil {
				issues = append(issues, stageIssues...)
			}
		}
	}
	return ready, issues, nil
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
