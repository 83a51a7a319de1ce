package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/odyssey-ledger/internal/jobs"
)

// Relayer redispatches aggregation tasks whose hand-over to the queue was lost.
type Relayer interface {
	RedispatchPending(ctx context.Context, limit int) (int, error)
}

// OutboxRelayJob drains the aggregation outbox.
type OutboxRelayJob struct {
	Relay   Relayer
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// Handle relays up to the payload limit.
func (j *OutboxRelayJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Relay == nil {
		return errors.New("outbox relay: handler not configured")
	}
	var payload OutboxRelayPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	if payload.Limit <= 0 {
		payload.Limit = 500
	}
	tracker := j.Metrics.Track(TaskOutboxRelay)
	defer func() { err = tracker.End(err) }()

	n, err := j.Relay.RedispatchPending(ctx, payload.Limit)
	if err != nil {
		return err
	}
	if n > 0 {
		loggerOr(j.Logger).Info("outbox relayed", slog.Int("tasks", n))
	}
	return nil
}
