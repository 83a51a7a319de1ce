package periods

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// AuditPort records administrative period transitions.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service is the period lock manager.
type Service struct {
	repo     Repository
	audit    AuditPort
	calendar accounting.FiscalCalendar
	logger   *slog.Logger
	now      func() time.Time
}

// NewService constructs the lock manager.
func NewService(repo Repository, audit AuditPort, calendar accounting.FiscalCalendar, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, calendar: calendar, logger: logger, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Calendar exposes the fiscal calendar used for bucketing.
func (s *Service) Calendar() accounting.FiscalCalendar {
	return s.calendar
}

// KeyFor builds the gate key for a posting date.
func (s *Service) KeyFor(company, module string, date time.Time) Key {
	return Key{Company: company, Module: strings.ToUpper(module), Period: s.calendar.PeriodOf(date)}
}

// IsOpen reports whether postings dated on date may be persisted.
func (s *Service) IsOpen(ctx context.Context, company, module string, date time.Time) (bool, error) {
	key := s.KeyFor(company, module, date)
	if err := key.Validate(); err != nil {
		return false, err
	}
	period, err := s.repo.GetPostedPeriod(ctx, key)
	if err != nil {
		if errors.Is(err, ErrPeriodNotTracked) {
			return true, nil
		}
		return false, err
	}
	return !period.IsPosted, nil
}

// Get returns the gate row, synthesising an open row when untracked.
func (s *Service) Get(ctx context.Context, key Key) (PostedPeriod, error) {
	if err := key.Validate(); err != nil {
		return PostedPeriod{}, err
	}
	period, err := s.repo.GetPostedPeriod(ctx, key)
	if errors.Is(err, ErrPeriodNotTracked) {
		return PostedPeriod{Key: key}, nil
	}
	return period, err
}

// List returns tracked gates for the company and fiscal year.
func (s *Service) List(ctx context.Context, company string, year int) ([]PostedPeriod, error) {
	if company == "" {
		return nil, accounting.ErrCompanyRequired
	}
	return s.repo.ListPostedPeriods(ctx, company, year)
}

// History returns the audited transitions of a gate.
func (s *Service) History(ctx context.Context, key Key) ([]LockEvent, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	return s.repo.ListLockEvents(ctx, key)
}

// ClosePeriod posts (locks) the period.
func (s *Service) ClosePeriod(ctx context.Context, key Key, actor string) (PostedPeriod, error) {
	return s.transition(ctx, key, LockActionClose, actor, "")
}

// ReopenPeriod opens a posted period again. The reason is kept in the audit trail.
func (s *Service) ReopenPeriod(ctx context.Context, key Key, actor, reason string) (PostedPeriod, error) {
	if strings.TrimSpace(reason) == "" {
		return PostedPeriod{}, ErrReasonRequired
	}
	return s.transition(ctx, key, LockActionReopen, actor, reason)
}

func (s *Service) transition(ctx context.Context, key Key, action LockAction, actor, reason string) (PostedPeriod, error) {
	key.Module = strings.ToUpper(key.Module)
	if err := key.Validate(); err != nil {
		return PostedPeriod{}, err
	}
	if strings.TrimSpace(actor) == "" {
		return PostedPeriod{}, ErrActorRequired
	}
	now := s.now().UTC()
	var result PostedPeriod
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.LockPostedPeriod(ctx, key)
		if err != nil {
			if !errors.Is(err, ErrPeriodNotTracked) {
				return err
			}
			current = PostedPeriod{Key: key}
		}
		if err := ValidateTransition(current.State(), action); err != nil {
			return err
		}
		next := current
		next.Key = key
		next.UpdatedAt = now
		switch action {
		case LockActionClose:
			next.IsPosted = true
			next.PostedBy = actor
			next.PostedOn = &now
		case LockActionReopen:
			next.IsPosted = false
			next.ReopenedBy = actor
			next.ReopenedOn = &now
		}
		if err := tx.UpsertPostedPeriod(ctx, next); err != nil {
			return err
		}
		if err := tx.InsertLockEvent(ctx, LockEvent{Key: key, Action: action, Actor: actor, Reason: reason, At: now}); err != nil {
			return err
		}
		result = next
		return nil
	})
	if err != nil {
		return PostedPeriod{}, err
	}
	s.logger.Info("period lock transition",
		slog.String("key", key.String()),
		slog.String("action", string(action)),
		slog.String("actor", actor))
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			Actor:    actor,
			Company:  key.Company,
			Action:   "period." + strings.ToLower(string(action)),
			Entity:   "posted_period",
			EntityID: key.String(),
			Meta:     map[string]any{"reason": reason},
			At:       now,
		})
	}
	return result, nil
}

