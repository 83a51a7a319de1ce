package accounting

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyEntry indicates a posting request without lines.
	ErrEmptyEntry = errors.New("accounting: journal requires at least one line")
	// ErrImbalancedEntry indicates debit != credit.
	ErrImbalancedEntry = errors.New("accounting: journal lines must balance")
	// ErrInvalidAmount indicates a line without exactly one positive side.
	ErrInvalidAmount = errors.New("accounting: line needs exactly one positive debit or credit")
	// ErrUnknownAccount indicates a line references a missing account.
	ErrUnknownAccount = errors.New("accounting: unknown account")
	// ErrNonLeafAccount indicates a line references a header or inactive account.
	ErrNonLeafAccount = errors.New("accounting: account cannot receive postings")
	// ErrInvalidSubAccount indicates the sub-account reference does not resolve.
	ErrInvalidSubAccount = errors.New("accounting: invalid sub-account")
	// ErrInvalidRecurrence indicates amortization settings that cannot be scheduled.
	ErrInvalidRecurrence = errors.New("accounting: invalid recurrence")
	// ErrPeriodLocked indicates the fiscal period is posted for the company and module.
	ErrPeriodLocked = errors.New("accounting: period locked")
	// ErrSourceAlreadyPosted indicates the source document already produced an entry.
	ErrSourceAlreadyPosted = errors.New("accounting: source already posted")
	// ErrJournalNotFound indicates missing entry.
	ErrJournalNotFound = errors.New("accounting: journal entry not found")
	// ErrInvalidStatus indicates an entry status transition is not allowed.
	ErrInvalidStatus = errors.New("accounting: invalid status transition")
	// ErrAccountNotFound indicates a registry lookup miss.
	ErrAccountNotFound = errors.New("accounting: account not found")
	// ErrAccountExists indicates the account number is taken.
	ErrAccountExists = errors.New("accounting: account number already exists")
	// ErrAccountCycle indicates a parent assignment would form a cycle.
	ErrAccountCycle = errors.New("accounting: account hierarchy cycle")
	// ErrAlreadyApplied indicates the aggregator has already applied the entry.
	ErrAlreadyApplied = errors.New("accounting: entry already applied")
	// ErrAggregationConflict is surfaced once retries on concurrent balance updates are exhausted.
	ErrAggregationConflict = errors.New("accounting: aggregation conflict")
	// ErrCompanyRequired indicates a tenant-scoped call without company.
	ErrCompanyRequired = errors.New("accounting: company required")
)

// LineError ties a validation failure to a request line.
type LineError struct {
	Line    int
	Account string
	Err     error
}

func (e *LineError) Error() string {
	if e.Account != "" {
		return fmt.Sprintf("line %d (account %s): %v", e.Line, e.Account, e.Err)
	}
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *LineError) Unwrap() error {
	return e.Err
}

// IsValidation reports whether err belongs to the validation class, which is
// rejected before any write and never retried.
func IsValidation(err error) bool {
	return errors.Is(err, ErrEmptyEntry) ||
		errors.Is(err, ErrImbalancedEntry) ||
		errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrUnknownAccount) ||
		errors.Is(err, ErrNonLeafAccount) ||
		errors.Is(err, ErrInvalidSubAccount) ||
		errors.Is(err, ErrInvalidRecurrence)
}
