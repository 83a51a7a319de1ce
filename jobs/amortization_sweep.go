package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-ledger/internal/amortization"
	jobmetrics "github.com/odyssey-erp/odyssey-ledger/internal/jobs"
)

// SweepRunner posts due amortization occurrences for every company.
type SweepRunner interface {
	RunDueAll(ctx context.Context, asOf time.Time) ([]amortization.RunResult, error)
}

// AmortizationSweepJob runs the daily amortization sweep.
type AmortizationSweepJob struct {
	Runner  SweepRunner
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewAmortizationSweepJob initialises the sweep handler.
func NewAmortizationSweepJob(runner SweepRunner, logger *slog.Logger, metrics *jobmetrics.Metrics) *AmortizationSweepJob {
	return &AmortizationSweepJob{Runner: runner, Logger: logger, Metrics: metrics, clock: func() time.Time { return time.Now().UTC() }}
}

// Handle runs the sweep. Per-occurrence failures are logged and left for
// the next run; they do not fail the task.
func (j *AmortizationSweepJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Runner == nil {
		return errors.New("amortization sweep: handler not configured")
	}
	var payload AmortizationSweepPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	asOf := payload.AsOf
	if asOf.IsZero() {
		asOf = j.now()
	}
	tracker := j.Metrics.Track(TaskAmortizationSweep)
	defer func() { err = tracker.End(err) }()

	logger := loggerOr(j.Logger).With(slog.String("as_of", asOf.Format(time.DateOnly)))
	results, err := j.Runner.RunDueAll(ctx, asOf)
	if err != nil {
		logger.Error("amortization sweep failed", slog.Any("error", err))
		return err
	}
	for _, res := range results {
		for _, failure := range res.Failures {
			logger.Warn("amortization occurrence failed",
				slog.String("company", res.Company),
				slog.Int64("setting_id", failure.SettingID),
				slog.Int("occurrence", failure.Occurrence),
				slog.String("error", failure.Message))
		}
		logger.Info("amortization sweep completed",
			slog.String("company", res.Company),
			slog.Int("generated", len(res.Generated)),
			slog.Int("failed", len(res.Failures)))
	}
	return nil
}

func (j *AmortizationSweepJob) now() time.Time {
	if j.clock == nil {
		return time.Now().UTC()
	}
	return j.clock()
}
