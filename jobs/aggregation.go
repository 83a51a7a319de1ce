package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/balances"
	jobmetrics "github.com/odyssey-erp/odyssey-ledger/internal/jobs"
)

// Aggregator folds entries into the period summaries.
type Aggregator interface {
	Apply(ctx context.Context, task balances.Task) error
}

// OutboxAcker records consumed aggregation tasks.
type OutboxAcker interface {
	Applied(ctx context.Context, task balances.Task) error
}

// AggregationJob consumes aggregation tasks.
type AggregationJob struct {
	Aggregator Aggregator
	Outbox     OutboxAcker
	Logger     *slog.Logger
	Metrics    *jobmetrics.Metrics
}

// NewAggregationJob initialises the aggregation handler.
func NewAggregationJob(agg Aggregator, outbox OutboxAcker, logger *slog.Logger, metrics *jobmetrics.Metrics) *AggregationJob {
	return &AggregationJob{Aggregator: agg, Outbox: outbox, Logger: logger, Metrics: metrics}
}

// Handle applies the task. A task already applied is acknowledged; a
// reversal that overtook its apply is retried by the queue.
func (j *AggregationJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Aggregator == nil {
		return errors.New("aggregation: handler not configured")
	}
	var task balances.Task
	if err := json.Unmarshal(t.Payload(), &task); err != nil {
		return asynq.SkipRetry
	}
	if task.Effect == "" {
		task.Effect = balances.EffectApply
		if t.Type() == TaskAggregationReverse {
			task.Effect = balances.EffectReverse
		}
	}
	tracker := j.Metrics.Track(t.Type())
	defer func() { err = tracker.End(err) }()

	logger := loggerOr(j.Logger).With(
		slog.String("company", task.Company),
		slog.String("entry_id", task.EntryID.String()),
		slog.String("effect", string(task.Effect)))

	err = j.Aggregator.Apply(ctx, task)
	switch {
	case err == nil, errors.Is(err, accounting.ErrAlreadyApplied):
	case errors.Is(err, accounting.ErrJournalNotFound):
		logger.Error("aggregation target missing", slog.Any("error", err))
		return errors.Join(err, asynq.SkipRetry)
	default:
		logger.Warn("aggregation failed", slog.Any("error", err))
		return err
	}
	if j.Outbox != nil {
		if err := j.Outbox.Applied(ctx, task); err != nil {
			logger.Warn("outbox ack failed", slog.Any("error", err))
		}
	}
	return nil
}

func loggerOr(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}
