package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/odyssey-ledger/internal/jobs"
)

// InventoryLocker freezes stock cards.
type InventoryLocker interface {
	LockThrough(ctx context.Context, company, productID string, date time.Time, actor string) (int, error)
}

// InventoryLockJob moves a product's lines into the locked transaction queues.
type InventoryLockJob struct {
	Locker  InventoryLocker
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// Handle locks the product named by the payload.
func (j *InventoryLockJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Locker == nil {
		return errors.New("inventory lock: handler not configured")
	}
	var payload InventoryLockPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.Company == "" || payload.ProductID == "" || payload.Through.IsZero() {
		return asynq.SkipRetry
	}
	actor := payload.Actor
	if actor == "" {
		actor = "system:inventory"
	}
	tracker := j.Metrics.Track(TaskInventoryLock)
	defer func() { err = tracker.End(err) }()

	n, err := j.Locker.LockThrough(ctx, payload.Company, payload.ProductID, payload.Through, actor)
	if err != nil {
		return err
	}
	loggerOr(j.Logger).Info("inventory locked",
		slog.String("company", payload.Company),
		slog.String("product", payload.ProductID),
		slog.String("through", payload.Through.Format(time.DateOnly)),
		slog.Int("lines", n))
	return nil
}
