package periods

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
)

// LockState enumerates the posting gate for a company, module and fiscal period.
type LockState string

const (
	LockStateOpen   LockState = "OPEN"
	LockStatePosted LockState = "POSTED"
)

// LockAction names an audited transition.
type LockAction string

const (
	LockActionClose  LockAction = "CLOSE"
	LockActionReopen LockAction = "REOPEN"
)

// Key addresses a posting gate.
type Key struct {
	Company string                  `json:"company"`
	Module  string                  `json:"module"`
	Period  accounting.FiscalPeriod `json:"period"`
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s/%s", k.Company, k.Module, k.Period)
}

// Validate checks the key is fully specified.
func (k Key) Validate() error {
	if strings.TrimSpace(k.Company) == "" {
		return accounting.ErrCompanyRequired
	}
	if strings.TrimSpace(k.Module) == "" {
		return errors.New("periods: module required")
	}
	if !k.Period.Valid() {
		return fmt.Errorf("periods: invalid fiscal period %s", k.Period)
	}
	return nil
}

// PostedPeriod is the persisted gate row. A missing row means the period is open.
type PostedPeriod struct {
	Key `json:"key"`

	IsPosted   bool       `json:"is_posted"`
	PostedBy   string     `json:"posted_by,omitempty"`
	PostedOn   *time.Time `json:"posted_on,omitempty"`
	ReopenedBy string     `json:"reopened_by,omitempty"`
	ReopenedOn *time.Time `json:"reopened_on,omitempty"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// State maps the row onto the lock state machine.
func (p PostedPeriod) State() LockState {
	if p.IsPosted {
		return LockStatePosted
	}
	return LockStateOpen
}

// LockEvent is the audit record written for every transition.
type LockEvent struct {
	ID     int64      `json:"id"`
	Key    Key        `json:"key"`
	Action LockAction `json:"action"`
	Actor  string     `json:"actor"`
	Reason string     `json:"reason,omitempty"`
	At     time.Time  `json:"at"`
}

// ErrPeriodNotTracked is returned by repositories when no gate row exists.
var ErrPeriodNotTracked = errors.New("periods: period not tracked")

// ErrInvalidTransition indicates the requested transition is not allowed from the current state.
var ErrInvalidTransition = errors.New("periods: invalid lock transition")

// ErrActorRequired indicates an unaudited administrative call.
var ErrActorRequired = errors.New("periods: actor required")

// ErrReasonRequired indicates a reopen without justification.
var ErrReasonRequired = errors.New("periods: reopen reason required")

// ValidateTransition enforces Open -> Posted -> Open.
func ValidateTransition(current LockState, action LockAction) error {
	switch {
	case current == LockStateOpen && action == LockActionClose:
		return nil
	case current == LockStatePosted && action == LockActionReopen:
		return nil
	}
	return fmt.Errorf("%w: %s from %s", ErrInvalidTransition, action, current)
}

// EnsureOpen returns accounting.ErrPeriodLocked when the gate is posted.
func EnsureOpen(p PostedPeriod) error {
	if p.IsPosted {
		return fmt.Errorf("%w: %s", accounting.ErrPeriodLocked, p.Key)
	}
	return nil
}
