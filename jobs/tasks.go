package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/balances"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// QueueAggregation carries balance aggregation tasks.
	QueueAggregation = "aggregation"

	// TaskAggregationApply folds a posted entry into the period summaries.
	TaskAggregationApply = "ledger:aggregate:apply"
	// TaskAggregationReverse backs a canceled or voided entry out of the summaries.
	TaskAggregationReverse = "ledger:aggregate:reverse"
	// TaskOutboxRelay hands undispatched aggregation tasks to the queue.
	TaskOutboxRelay = "ledger:outbox:relay"
	// TaskAmortizationSweep posts every due amortization occurrence.
	TaskAmortizationSweep = "amortization:sweep"
	// TaskLedgerIntegrity verifies the roll-forward of period summaries.
	TaskLedgerIntegrity = "ledger:integrity"
	// TaskInventoryLock freezes a product's stock card through a date.
	TaskInventoryLock = "inventory:lock"
)

// AggregationTaskType returns the task type carrying effect.
func AggregationTaskType(effect balances.Effect) string {
	if effect == balances.EffectReverse {
		return TaskAggregationReverse
	}
	return TaskAggregationApply
}

// NewAggregationTask constructs the task for t. The task id is derived from
// the entry and effect so the queue drops duplicates.
func NewAggregationTask(t balances.Task) (*asynq.Task, error) {
	body, err := json.Marshal(t)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(AggregationTaskType(t.Effect), body,
		asynq.Queue(QueueAggregation), asynq.TaskID(t.ID()), asynq.MaxRetry(10)), nil
}

// OutboxRelayPayload bounds one relay run.
type OutboxRelayPayload struct {
	Limit int `json:"limit"`
}

// NewOutboxRelayTask constructs the relay task.
func NewOutboxRelayTask(limit int) (*asynq.Task, error) {
	body, err := json.Marshal(OutboxRelayPayload{Limit: limit})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskOutboxRelay, body, asynq.Queue(QueueDefault)), nil
}

// AmortizationSweepPayload carries the sweep date. A zero AsOf means today.
type AmortizationSweepPayload struct {
	AsOf time.Time `json:"as_of"`
}

// NewAmortizationSweepTask constructs the sweep task.
func NewAmortizationSweepTask(asOf time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(AmortizationSweepPayload{AsOf: asOf})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAmortizationSweep, body, asynq.Queue(QueueDefault), asynq.MaxRetry(3)), nil
}

// LedgerIntegrityPayload selects the companies and period to verify. A zero
// period means the period containing the run date.
type LedgerIntegrityPayload struct {
	Companies []string `json:"companies"`
	Year      int      `json:"year,omitempty"`
	Period    int      `json:"period,omitempty"`
}

// NewLedgerIntegrityTask constructs the integrity task.
func NewLedgerIntegrityTask(payload LedgerIntegrityPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLedgerIntegrity, body, asynq.Queue(QueueDefault)), nil
}

// InventoryLockPayload names the product and lock date.
type InventoryLockPayload struct {
	Company   string    `json:"company"`
	ProductID string    `json:"product_id"`
	Through   time.Time `json:"through"`
	Actor     string    `json:"actor"`
}

// NewInventoryLockTask constructs an inventory lock task.
func NewInventoryLockTask(payload InventoryLockPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskInventoryLock, body, asynq.Queue(QueueDefault)), nil
}
