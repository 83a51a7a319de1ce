package close

import (
	"errors"
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/periods"
)

// CheckCode names an automated close checklist item.
type CheckCode string

const (
	CheckLedgerIntegrity   CheckCode = "LEDGER_INTEGRITY"
	CheckAggregationQueue  CheckCode = "AGGREGATION_QUEUE"
	CheckAmortizationSweep CheckCode = "AMORTIZATION_SWEEP"
)

// ChecklistStatus describes checklist progress.
type ChecklistStatus string

const (
	ChecklistStatusDone    ChecklistStatus = "DONE"
	ChecklistStatusFailed  ChecklistStatus = "FAILED"
	ChecklistStatusSkipped ChecklistStatus = "SKIPPED"
)

// ChecklistItem is the outcome of one check.
type ChecklistItem struct {
	Code   CheckCode       `json:"code"`
	Label  string          `json:"label"`
	Status ChecklistStatus `json:"status"`
	Detail string          `json:"detail,omitempty"`
}

// CloseRun is the result of a close or reopen request.
type CloseRun struct {
	Key         periods.Key          `json:"key"`
	Action      periods.LockAction   `json:"action"`
	Actor       string               `json:"actor"`
	Checklist   []ChecklistItem      `json:"checklist"`
	Period      periods.PostedPeriod `json:"period"`
	CompletedAt time.Time            `json:"completed_at"`
}

// Done reports whether every checklist item passed or was skipped.
func (r CloseRun) Done() bool {
	for _, item := range r.Checklist {
		if item.Status == ChecklistStatusFailed {
			return false
		}
	}
	return true
}

// ErrChecklistIncomplete indicates close was blocked by a failing check.
var ErrChecklistIncomplete = errors.New("close: checklist incomplete")
