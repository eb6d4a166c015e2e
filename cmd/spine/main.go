// Command spine wires the execution substrate to a Postgres backend and
// the finra.otc demo domain, then idles until it receives a shutdown
// signal. It owns no HTTP surface and no cron parser — those are
// explicit Non-goals of the core; an external trigger source drives the
// scheduler facade (none is included in this repository).
package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/ryansmccoy/spine-core/core/anomaly"
	"github.com/ryansmccoy/spine-core/core/calc"
	"github.com/ryansmccoy/spine-core/core/corelog"
	"github.com/ryansmccoy/spine-core/core/dialect"
	"github.com/ryansmccoy/spine-core/core/dispatcher"
	coremigrations "github.com/ryansmccoy/spine-core/core/migrations"
	"github.com/ryansmccoy/spine-core/core/pipeline"
	"github.com/ryansmccoy/spine-core/core/quality"
	"github.com/ryansmccoy/spine-core/core/readiness"
	"github.com/ryansmccoy/spine-core/core/reject"
	"github.com/ryansmccoy/spine-core/core/repository"
	"github.com/ryansmccoy/spine-core/core/scheduler"
	"github.com/ryansmccoy/spine-core/domain/marketdata"
	marketdatamigrations "github.com/ryansmccoy/spine-core/domain/marketdata/migrations"
	"github.com/ryansmccoy/spine-core/infrastructure/config"
	"github.com/ryansmccoy/spine-core/infrastructure/errors"
	"github.com/ryansmccoy/spine-core/infrastructure/logging"
	"github.com/ryansmccoy/spine-core/infrastructure/metrics"
)

func main() {
	logger := logging.NewFromEnv("spine")
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger); err != nil {
		logger.Fatal(ctx, "spine exited", err)
	}
}

func run(ctx context.Context, logger *logging.Logger) error {
	if err := config.LoadDotEnv(".env"); err != nil {
		return err
	}
	dsn, err := config.RequireEnv("DATABASE_URL")
	if err != nil {
		return err
	}
	timeouts := config.DefaultTimeouts()

	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return classifyDBError("connect", err)
	}
	defer db.Close()
	db.SetConnMaxLifetime(timeouts.Database)

	if err := coremigrations.Apply(db.DB); err != nil {
		return fmt.Errorf("apply core migrations: %w", err)
	}
	if err := marketdatamigrations.Apply(db.DB); err != nil {
		return fmt.Errorf("apply marketdata migrations: %w", err)
	}

	repo := repository.New(db, dialect.MustGet(dialect.PostgreSQL))

	coreLog, err := corelog.New("spine", config.GetEnv("LOG_LEVEL", "info"), config.GetEnv("LOG_FORMAT", "json"))
	if err != nil {
		return fmt.Errorf("build execution-substrate logger: %w", err)
	}
	defer coreLog.Sync()

	m := metrics.Init("spine")
	m.UpdateUptime(time.Now())

	pipelines := pipeline.NewRegistry()
	calcs := calc.NewRegistry()
	anomalies := anomaly.New(repo)
	qualityLog := quality.NewStore(repo)
	rejects := reject.New(repo, marketdata.DomainName)
	ready := readiness.New(repo, anomalies, marketdata.DomainName)

	domains := config.LoadDomainsConfigOrDefault()
	if domains.IsEnabled(marketdata.DomainName) {
		marketdata.Register(marketdata.Deps{
			Repo:       repo,
			Pipelines:  pipelines,
			Calcs:      calcs,
			Anomalies:  anomalies,
			QualityLog: qualityLog,
			Rejects:    rejects,
			Readiness:  ready,
		})
	} else {
		logger.Info(ctx, "domain registration skipped by config/domains.yaml", map[string]interface{}{"domain": marketdata.DomainName})
	}

	ratePerSecond := float64(config.GetEnvInt("DISPATCH_RATE_PER_SECOND", 0))
	burst := config.GetEnvInt("DISPATCH_BURST", 1)
	disp := dispatcher.New(repo, pipelines, ratePerSecond, burst)

	redisClient := newOptionalRedisClient(timeouts)
	if redisClient != nil {
		defer redisClient.Close()
	}
	facade := scheduler.New(disp, redisClient)

	logger.Info(ctx, "spine ready", map[string]interface{}{"pipelines": pipelines.Names()})
	coreLog.ScheduleTransition(ctx, "startup", "", "READY")

	reportHealth(ctx, facade, logger)

	<-ctx.Done()
	logger.Info(ctx, "shutdown signal received", nil)
	return nil
}

// reportHealth logs one process health snapshot at startup so operators
// have an immediate readiness signal without waiting for the first
// scheduled fire.
func reportHealth(ctx context.Context, facade *scheduler.Facade, logger *logging.Logger) {
	h, err := facade.Health(ctx)
	if err != nil {
		logger.Warn(ctx, "health probe failed", map[string]interface{}{"error": err.Error()})
		return
	}
	logger.Info(ctx, "health snapshot", map[string]interface{}{
		"in_flight_runs":   h.InFlightRuns,
		"cpu_percent":      h.CPUPercent,
		"mem_used_percent": h.MemUsedPercent,
	})
}

func newOptionalRedisClient(timeouts config.Timeouts) *redis.Client {
	addr := config.GetEnv("REDIS_ADDR", "")
	if addr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  timeouts.Redis,
		ReadTimeout:  timeouts.Redis,
		WriteTimeout: timeouts.Redis,
	})
}

// classifyDBError maps a lib/pq error to the substrate's own error
// taxonomy so a connection failure and a constraint violation surface as
// distinct, retryable-annotated SpineErrors rather than an opaque driver
// error.
func classifyDBError(operation string, err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if ok := asPQError(err, &pqErr); ok {
		switch pqErr.Code.Class() {
		case "23": // integrity_constraint_violation
			return errors.IntegrityViolation(operation, pqErr)
		default:
			return errors.QueryFailed(operation, pqErr)
		}
	}
	return errors.DBConnection(err)
}

func asPQError(err error, target **pq.Error) bool {
	for err != nil {
		if pqErr, ok := err.(*pq.Error); ok {
			*target = pqErr
			return true
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = unwrapper.Unwrap()
	}
	return false
}
