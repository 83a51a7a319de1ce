package amortization

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Setting is one amortization schedule.
type Setting struct {
	ID                   int64                `json:"id"`
	Company              string               `json:"company"`
	SourceEntryID        uuid.UUID            `json:"source_entry_id"`
	Frequency            accounting.Frequency `json:"frequency"`
	StartDate            time.Time            `json:"start_date"`
	EndDate              time.Time            `json:"end_date"`
	OccurrencesTotal     int                  `json:"occurrences_total"`
	OccurrencesRemaining int                  `json:"occurrences_remaining"`
	Amount               decimal.Decimal      `json:"amount"`
	TotalAmount          decimal.Decimal      `json:"total_amount"`
	PostedAmount         decimal.Decimal      `json:"posted_amount"`
	PrepaidAccount       string               `json:"prepaid_account"`
	ExpenseAccount       string               `json:"expense_account"`
	LastRunDate          *time.Time           `json:"last_run_date,omitempty"`
	NextRunDate          time.Time            `json:"next_run_date"`
	IsActive             bool                 `json:"is_active"`
	Memo                 string               `json:"memo,omitempty"`
	CreatedBy            string               `json:"created_by"`
	CreatedAt            time.Time            `json:"created_at"`
	UpdatedAt            time.Time            `json:"updated_at"`
}

// Occurrence returns the 1-based index of the next occurrence.
func (s Setting) Occurrence() int {
	return s.OccurrencesTotal - s.OccurrencesRemaining + 1
}

// Due reports whether the next occurrence should run on asOf.
func (s Setting) Due(asOf time.Time) bool {
	return s.IsActive && s.OccurrencesRemaining > 0 && !s.NextRunDate.After(accounting.DateOnly(asOf))
}

// AmountFor returns the amount of occurrence n. With a total amount the
// last occurrence takes the remainder, which must stay positive.
func (s Setting) AmountFor(n int) (decimal.Decimal, error) {
	amount := s.Amount
	switch {
	case !s.TotalAmount.IsPositive():
	case n >= s.OccurrencesTotal:
		amount = s.TotalAmount.Sub(s.PostedAmount)
	case !s.Amount.IsPositive():
		amount = s.TotalAmount.DivRound(decimal.NewFromInt(int64(s.OccurrencesTotal)), shared.MoneyScale)
	}
	if !amount.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: occurrence %d amount %s", ErrInvalidSchedule, n, amount)
	}
	return amount, nil
}

// SourceRef identifies occurrence n for posting idempotency.
func (s Setting) SourceRef(n int) string {
	return fmt.Sprintf("AMORT:%d:%d", s.ID, n)
}

// OccurrenceDate returns the date of the k-th occurrence (0-based), stepping
// whole months from start and clamping to month end.
func OccurrenceDate(start time.Time, freq accounting.Frequency, k int) time.Time {
	start = accounting.DateOnly(start)
	months := freq.Months() * k
	first := time.Date(start.Year(), start.Month()+time.Month(months), 1, 0, 0, 0, 0, time.UTC)
	last := first.AddDate(0, 1, -1).Day()
	day := start.Day()
	if day > last {
		day = last
	}
	return time.Date(first.Year(), first.Month(), day, 0, 0, 0, 0, time.UTC)
}

// ScheduleInput describes a new amortization schedule.
type ScheduleInput struct {
	Company        string
	SourceEntryID  uuid.UUID
	PrepaidAccount string
	ExpenseAccount string
	Amount         decimal.Decimal
	TotalAmount    decimal.Decimal
	Frequency      accounting.Frequency
	Occurrences    int
	StartDate      time.Time
	Memo           string
	Actor          string
}

// Validate checks the input.
func (in ScheduleInput) Validate() error {
	if strings.TrimSpace(in.Company) == "" {
		return accounting.ErrCompanyRequired
	}
	if in.SourceEntryID == uuid.Nil {
		return fmt.Errorf("%w: source entry required", ErrInvalidSchedule)
	}
	rec := accounting.Recurrence{
		Frequency:      in.Frequency,
		Occurrences:    in.Occurrences,
		StartDate:      in.StartDate,
		Amount:         in.Amount,
		TotalAmount:    in.TotalAmount,
		PrepaidAccount: in.PrepaidAccount,
		ExpenseAccount: in.ExpenseAccount,
	}
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSchedule, err)
	}
	return nil
}

// Generated is one posted occurrence.
type Generated struct {
	SettingID  int64                   `json:"setting_id"`
	Occurrence int                     `json:"occurrence"`
	Date       time.Time               `json:"date"`
	Amount     decimal.Decimal         `json:"amount"`
	Entry      accounting.JournalEntry `json:"-"`
	EntryID    string                  `json:"entry_id,omitempty"`
	// Duplicate is set when the occurrence had already been posted by an
	// earlier, interrupted sweep.
	Duplicate bool `json:"duplicate"`
}

// RunResult summarises one sweep for one company.
type RunResult struct {
	Company   string             `json:"company"`
	AsOf      time.Time          `json:"as_of"`
	Generated []Generated        `json:"generated"`
	Failures  []*OccurrenceError `json:"failures"`
}

// OccurrenceError reports an occurrence that could not be posted. It wraps
// both ErrPostingFailedForOccurrence and the posting cause.
type OccurrenceError struct {
	SettingID  int64     `json:"setting_id"`
	Occurrence int       `json:"occurrence"`
	Date       time.Time `json:"date"`
	Err        error     `json:"-"`
	Message    string    `json:"error"`
}

func (e *OccurrenceError) Error() string {
	return fmt.Sprintf("amortization: setting %d occurrence %d on %s: %v", e.SettingID, e.Occurrence, e.Date.Format(time.DateOnly), e.Err)
}

func (e *OccurrenceError) Unwrap() []error {
	return []error{ErrPostingFailedForOccurrence, e.Err}
}

var (
	// ErrPostingFailedForOccurrence marks an occurrence left pending for the next sweep.
	ErrPostingFailedForOccurrence = errors.New("amortization: posting failed for occurrence")
	// ErrInvalidSchedule indicates malformed schedule input.
	ErrInvalidSchedule = errors.New("amortization: invalid schedule")
	// ErrScheduleExists indicates the source entry already has a schedule.
	ErrScheduleExists = errors.New("amortization: schedule already exists for source entry")
	// ErrSettingNotFound indicates a missing schedule.
	ErrSettingNotFound = errors.New("amortization: setting not found")
)
