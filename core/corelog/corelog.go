// Package corelog is the execution substrate's structured logger, built
// on zap rather than the service-layer's logrus logger in
// infrastructure/logging. Components under core/ log high-frequency,
// low-cardinality events (execution transitions, manifest advances,
// quality results) where zap's allocation-free field encoding matters.
package corelog

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps a zap.Logger scoped to one substrate component.
type Logger struct {
	z *zap.Logger
}

// New builds a Logger. format "json" uses zap's production JSON encoder;
// anything else uses the human-readable console encoder.
func New(component, level, format string) (*Logger, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = zapcore.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	if format != "json" {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	z, err := cfg.Build(zap.Fields(zap.String("component", component)))
	if err != nil {
		return nil, err
	}
	return &Logger{z: z}, nil
}

// Sync flushes any buffered log entries. Call before process exit.
func (l *Logger) Sync() error {
	return l.z.Sync()
}

// ExecutionStarted logs an execution entering RUNNING.
func (l *Logger) ExecutionStarted(ctx context.Context, executionID, pipeline string) {
	l.z.Info("execution started",
		zap.String("execution_id", executionID),
		zap.String("pipeline", pipeline),
	)
}

// ExecutionFinished logs an execution reaching a terminal status.
func (l *Logger) ExecutionFinished(ctx context.Context, executionID, pipeline, status string, err error) {
	fields := []zap.Field{
		zap.String("execution_id", executionID),
		zap.String("pipeline", pipeline),
		zap.String("status", status),
	}
	if err != nil {
		l.z.Error("execution finished with error", append(fields, zap.Error(err))...)
		return
	}
	l.z.Info("execution finished", fields...)
}

// ManifestAdvanced logs a manifest stage advance.
func (l *Logger) ManifestAdvanced(ctx context.Context, domain, partitionKey, stage string, rowCount int) {
	l.z.Info("manifest stage advanced",
		zap.String("domain", domain),
		zap.String("partition_key", partitionKey),
		zap.String("stage", stage),
		zap.Int("row_count", rowCount),
	)
}

// AnomalyRecorded logs an anomaly write.
func (l *Logger) AnomalyRecorded(ctx context.Context, domain, stage, partitionKey, severity string) {
	l.z.Warn("anomaly recorded",
		zap.String("domain", domain),
		zap.String("stage", stage),
		zap.String("partition_key", partitionKey),
		zap.String("severity", severity),
	)
}

// ScheduleTransition logs a scheduler run state transition.
func (l *Logger) ScheduleTransition(ctx context.Context, runID, from, to string) {
	l.z.Info("schedule run transitioned",
		zap.String("run_id", runID),
		zap.String("from", from),
		zap.String("to", to),
	)
}
