package accountinghttp

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/balances"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/subledger"
	"github.com/odyssey-erp/odyssey-ledger/internal/amortization"
	"github.com/odyssey-erp/odyssey-ledger/internal/close"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

var (
	errBadDate   = errors.New("accounting: invalid date, expected YYYY-MM-DD")
	errBadPeriod = errors.New("accounting: invalid fiscal period")
	errBadID     = errors.New("accounting: invalid id")
)

// classify maps domain errors onto the httpx sentinels. It reports false for
// errors it does not recognise.
func classify(err error) (error, bool) {
	kind := kindOf(err)
	if kind == nil {
		return err, false
	}
	return httpx.Classify(kind, err), true
}

func kindOf(err error) error {
	switch {
	case accounting.IsValidation(err),
		errors.Is(err, amortization.ErrInvalidSchedule),
		errors.Is(err, accounting.ErrAccountCycle):
		return httpx.ErrUnprocessable
	case errors.Is(err, accounting.ErrCompanyRequired),
		errors.Is(err, journals.ErrActorRequired),
		errors.Is(err, journals.ErrReasonRequired),
		errors.Is(err, journals.ErrInvalidEntryID),
		errors.Is(err, periods.ErrActorRequired),
		errors.Is(err, periods.ErrReasonRequired),
		errors.Is(err, errBadDate),
		errors.Is(err, errBadPeriod),
		errors.Is(err, errBadID):
		return httpx.ErrValidation
	case errors.Is(err, accounting.ErrSourceAlreadyPosted),
		errors.Is(err, accounting.ErrAccountExists),
		errors.Is(err, amortization.ErrScheduleExists):
		return httpx.ErrDuplicate
	case errors.Is(err, accounting.ErrPeriodLocked),
		errors.Is(err, accounting.ErrInvalidStatus),
		errors.Is(err, periods.ErrInvalidTransition),
		errors.Is(err, close.ErrChecklistIncomplete),
		errors.Is(err, shared.ErrLeaseHeld):
		return httpx.ErrConflict
	case errors.Is(err, accounting.ErrAccountNotFound),
		errors.Is(err, accounting.ErrJournalNotFound),
		errors.Is(err, amortization.ErrSettingNotFound),
		errors.Is(err, subledger.ErrEntityNotFound),
		errors.Is(err, balances.ErrBalanceNotFound):
		return httpx.ErrNotFound
	case errors.Is(err, accounting.ErrAggregationConflict):
		return httpx.ErrUnavailable
	}
	return nil
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	mapped, known := classify(err)
	if !known {
		h.logger.Error("accounting request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	if errors.Is(mapped, httpx.ErrUnavailable) {
		w.Header().Set("Retry-After", "1")
	}
	httpx.RespondError(w, mapped)
}
