package journals

import (
	"errors"
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
)

// AggregationMode selects whether balances move inside the posting
// transaction or through the at-least-once queue.
type AggregationMode string

const (
	AggregationSync  AggregationMode = "sync"
	AggregationAsync AggregationMode = "async"
)

// Valid reports whether m is a known mode.
func (m AggregationMode) Valid() bool {
	return m == AggregationSync || m == AggregationAsync
}

// ListFilter narrows journal listings.
type ListFilter struct {
	Company string
	Module  string
	Status  accounting.EntryStatus
	From    time.Time
	To      time.Time
	Limit   int
}

// CancelInput asks for a draft or posted entry to be canceled.
type CancelInput struct {
	Company string
	EntryID string
	Actor   string
}

// VoidInput asks for a posted entry to be voided.
type VoidInput struct {
	Company string
	EntryID string
	Actor   string
	Reason  string
}

var (
	// ErrActorRequired indicates a state change without an actor.
	ErrActorRequired = errors.New("journals: actor required")
	// ErrReasonRequired indicates a void without justification.
	ErrReasonRequired = errors.New("journals: void reason required")
	// ErrInvalidEntryID indicates a malformed entry identifier.
	ErrInvalidEntryID = errors.New("journals: invalid entry id")
)
