package amortization

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Poster submits generated entries through the posting validator and reads
// back the source entries schedules attach to.
type Poster interface {
	Post(ctx context.Context, req accounting.JournalEntryRequest) (accounting.JournalEntry, error)
	Get(ctx context.Context, company, id string) (accounting.JournalEntry, error)
}

// AccountLookup checks schedule accounts.
type AccountLookup interface {
	GetByNumber(ctx context.Context, company, number string) (accounting.Account, error)
}

// AuditPort records audit trail entries.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Metrics observes sweep outcomes.
type Metrics interface {
	ObserveAmortization(outcome string, n int)
}

// Config wires optional collaborators.
type Config struct {
	LeaseTTL time.Duration
	Audit    AuditPort
	Metrics  Metrics
	Logger   *slog.Logger
}

// Service owns amortization settings and runs the due sweep.
type Service struct {
	repo     Repository
	poster   Poster
	accounts AccountLookup
	lease    shared.RunLease
	leaseTTL time.Duration
	audit    AuditPort
	metrics  Metrics
	logger   *slog.Logger
	now      func() time.Time
}

// SystemActor is recorded as the poster of generated entries.
const SystemActor = "system:amortization"

// NewService constructs the scheduler.
func NewService(repo Repository, poster Poster, accounts AccountLookup, lease shared.RunLease, cfg Config) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ttl := cfg.LeaseTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Service{
		repo:     repo,
		poster:   poster,
		accounts: accounts,
		lease:    lease,
		leaseTTL: ttl,
		audit:    cfg.Audit,
		metrics:  cfg.Metrics,
		logger:   logger,
		now:      time.Now,
	}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Schedule creates an amortization setting.
func (s *Service) Schedule(ctx context.Context, in ScheduleInput) (Setting, error) {
	if err := in.Validate(); err != nil {
		return Setting{}, err
	}
	source, err := s.poster.Get(ctx, in.Company, in.SourceEntryID.String())
	if err != nil {
		if errors.Is(err, accounting.ErrJournalNotFound) {
			return Setting{}, fmt.Errorf("%w: source entry %s not found", ErrInvalidSchedule, in.SourceEntryID)
		}
		return Setting{}, err
	}
	if source.Status != accounting.EntryStatusPosted {
		return Setting{}, fmt.Errorf("%w: source entry %s is %s", ErrInvalidSchedule, in.SourceEntryID, source.Status)
	}
	if s.accounts != nil {
		for _, number := range []string{in.PrepaidAccount, in.ExpenseAccount} {
			account, err := s.accounts.GetByNumber(ctx, in.Company, number)
			if err != nil {
				if errors.Is(err, accounting.ErrAccountNotFound) {
					return Setting{}, fmt.Errorf("%w: %s", accounting.ErrUnknownAccount, number)
				}
				return Setting{}, err
			}
			if !account.Postable() {
				return Setting{}, fmt.Errorf("%w: %s", accounting.ErrNonLeafAccount, number)
			}
		}
	}
	start := accounting.DateOnly(in.StartDate)
	now := s.now().UTC()
	setting := Setting{
		Company:              in.Company,
		SourceEntryID:        in.SourceEntryID,
		Frequency:            in.Frequency,
		StartDate:            start,
		EndDate:              OccurrenceDate(start, in.Frequency, in.Occurrences-1),
		OccurrencesTotal:     in.Occurrences,
		OccurrencesRemaining: in.Occurrences,
		Amount:               in.Amount,
		TotalAmount:          in.TotalAmount,
		PostedAmount:         decimal.Zero,
		PrepaidAccount:       in.PrepaidAccount,
		ExpenseAccount:       in.ExpenseAccount,
		NextRunDate:          start,
		IsActive:             true,
		Memo:                 in.Memo,
		CreatedBy:            in.Actor,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	stored, err := s.repo.InsertSetting(ctx, setting)
	if err != nil {
		return Setting{}, err
	}
	s.record(ctx, in.Actor, "amortization.schedule", stored, nil)
	return stored, nil
}

// AfterPost creates the schedule requested by a posted accrual or prepaid
// entry. A schedule already attached to the entry is left as is.
func (s *Service) AfterPost(ctx context.Context, entry accounting.JournalEntry, rec *accounting.Recurrence) error {
	if rec == nil {
		return nil
	}
	_, err := s.Schedule(ctx, ScheduleInput{
		Company:        entry.Company,
		SourceEntryID:  entry.ID,
		PrepaidAccount: rec.PrepaidAccount,
		ExpenseAccount: rec.ExpenseAccount,
		Amount:         rec.Amount,
		TotalAmount:    rec.TotalAmount,
		Frequency:      rec.Frequency,
		Occurrences:    rec.Occurrences,
		StartDate:      rec.StartDate,
		Memo:           entry.Memo,
		Actor:          entry.PostedBy,
	})
	if errors.Is(err, ErrScheduleExists) {
		return nil
	}
	return err
}

// Deactivate stops a schedule; remaining occurrences are not posted.
func (s *Service) Deactivate(ctx context.Context, company string, id int64, actor string) (Setting, error) {
	var updated Setting
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		setting, err := tx.GetSettingForUpdate(ctx, company, id)
		if err != nil {
			return err
		}
		setting.IsActive = false
		setting.UpdatedAt = s.now().UTC()
		updated = setting
		return tx.UpdateSetting(ctx, setting)
	})
	if err != nil {
		return Setting{}, err
	}
	s.record(ctx, actor, "amortization.deactivate", updated, nil)
	return updated, nil
}

// Get returns one setting.
func (s *Service) Get(ctx context.Context, company string, id int64) (Setting, error) {
	return s.repo.GetSetting(ctx, company, id)
}

// List returns the settings of a company.
func (s *Service) List(ctx context.Context, company string, activeOnly bool) ([]Setting, error) {
	if strings.TrimSpace(company) == "" {
		return nil, accounting.ErrCompanyRequired
	}
	return s.repo.ListSettings(ctx, company, activeOnly)
}

// PendingThrough counts active settings with an occurrence due on or before date.
func (s *Service) PendingThrough(ctx context.Context, company string, date time.Time) (int, error) {
	due, err := s.repo.ListDue(ctx, company, accounting.DateOnly(date))
	if err != nil {
		return 0, err
	}
	return len(due), nil
}

// RunDueAll sweeps every company with due settings. A company whose lease is
// held elsewhere is skipped.
func (s *Service) RunDueAll(ctx context.Context, asOf time.Time) ([]RunResult, error) {
	companies, err := s.repo.ListCompaniesWithDue(ctx, accounting.DateOnly(asOf))
	if err != nil {
		return nil, err
	}
	results := make([]RunResult, 0, len(companies))
	for _, company := range companies {
		res, err := s.RunDue(ctx, company, asOf)
		if errors.Is(err, shared.ErrLeaseHeld) {
			s.logger.Info("amortization sweep skipped, lease held", slog.String("company", company))
			continue
		}
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

// RunDue posts every due occurrence of the company's active settings. Only
// one sweep per company runs at a time. Failed occurrences are reported in
// the result and left pending; they never advance the setting.
func (s *Service) RunDue(ctx context.Context, company string, asOf time.Time) (RunResult, error) {
	if strings.TrimSpace(company) == "" {
		return RunResult{}, accounting.ErrCompanyRequired
	}
	asOf = accounting.DateOnly(asOf)
	lease, err := s.lease.Acquire(ctx, shared.AmortizationLockKey(company), s.leaseTTL)
	if err != nil {
		return RunResult{}, err
	}
	defer func() {
		if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
			s.logger.Warn("release amortization lease", slog.String("company", company), slog.Any("error", err))
		}
	}()
	result := RunResult{Company: company, AsOf: asOf}
	due, err := s.repo.ListDue(ctx, company, asOf)
	if err != nil {
		return result, err
	}
	for _, setting := range due {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		for setting.Due(asOf) {
			gen, next, err := s.runOccurrence(ctx, setting)
			if err != nil {
				var occErr *OccurrenceError
				if !errors.As(err, &occErr) {
					return result, err
				}
				result.Failures = append(result.Failures, occErr)
				break
			}
			result.Generated = append(result.Generated, gen)
			setting = next
		}
	}
	s.observe("posted", len(result.Generated))
	s.observe("failed", len(result.Failures))
	s.logger.Info("amortization sweep finished",
		slog.String("company", company),
		slog.String("as_of", asOf.Format(time.DateOnly)),
		slog.Int("generated", len(result.Generated)),
		slog.Int("failed", len(result.Failures)))
	return result, nil
}

func (s *Service) runOccurrence(ctx context.Context, setting Setting) (Generated, Setting, error) {
	n := setting.Occurrence()
	date := setting.NextRunDate
	amount, err := setting.AmountFor(n)
	if err != nil {
		return Generated{}, setting, &OccurrenceError{SettingID: setting.ID, Occurrence: n, Date: date, Err: err, Message: err.Error()}
	}
	memo := setting.Memo
	if memo == "" {
		memo = "Amortization"
	}
	req := accounting.JournalEntryRequest{
		Company:   setting.Company,
		Module:    accounting.ModuleAmortization,
		Reference: fmt.Sprintf("AMORT-%d-%d", setting.ID, n),
		SourceRef: setting.SourceRef(n),
		Kind:      accounting.EntryKindRegular,
		Date:      date,
		Memo:      fmt.Sprintf("%s %d/%d", memo, n, setting.OccurrencesTotal),
		PostedBy:  SystemActor,
		Lines: []accounting.LineRequest{
			{AccountNumber: setting.ExpenseAccount, Debit: amount, Credit: decimal.Zero},
			{AccountNumber: setting.PrepaidAccount, Debit: decimal.Zero, Credit: amount},
		},
	}
	gen := Generated{SettingID: setting.ID, Occurrence: n, Date: date, Amount: amount}
	entry, err := s.poster.Post(ctx, req)
	switch {
	case err == nil:
		gen.Entry = entry
		gen.EntryID = entry.ID.String()
	case errors.Is(err, accounting.ErrSourceAlreadyPosted):
		gen.Duplicate = true
	default:
		occErr := &OccurrenceError{SettingID: setting.ID, Occurrence: n, Date: date, Err: err, Message: err.Error()}
		s.logger.Error("amortization occurrence failed",
			slog.String("company", setting.Company),
			slog.Int64("setting_id", setting.ID),
			slog.Int("occurrence", n),
			slog.Any("error", err))
		return Generated{}, setting, occErr
	}
	next, err := s.advance(ctx, setting, amount)
	if err != nil {
		return Generated{}, setting, err
	}
	return gen, next, nil
}

func (s *Service) advance(ctx context.Context, seen Setting, amount decimal.Decimal) (Setting, error) {
	var updated Setting
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		setting, err := tx.GetSettingForUpdate(ctx, seen.Company, seen.ID)
		if err != nil {
			return err
		}
		if setting.OccurrencesRemaining != seen.OccurrencesRemaining {
			updated = setting
			return nil
		}
		ran := setting.NextRunDate
		setting.LastRunDate = &ran
		setting.OccurrencesRemaining--
		setting.PostedAmount = setting.PostedAmount.Add(amount)
		done := setting.OccurrencesTotal - setting.OccurrencesRemaining
		setting.NextRunDate = OccurrenceDate(setting.StartDate, setting.Frequency, done)
		if setting.OccurrencesRemaining <= 0 || setting.NextRunDate.After(setting.EndDate) {
			setting.IsActive = false
		}
		setting.UpdatedAt = s.now().UTC()
		updated = setting
		return tx.UpdateSetting(ctx, setting)
	})
	return updated, err
}

func (s *Service) record(ctx context.Context, actor, action string, setting Setting, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if meta == nil {
		meta = map[string]any{}
	}
	meta["prepaid_account"] = setting.PrepaidAccount
	meta["expense_account"] = setting.ExpenseAccount
	meta["occurrences"] = setting.OccurrencesTotal
	if err := s.audit.Record(ctx, shared.AuditLog{
		Actor:    actor,
		Company:  setting.Company,
		Action:   action,
		Entity:   "amortization_setting",
		EntityID: fmt.Sprintf("%d", setting.ID),
		Meta:     meta,
		At:       s.now().UTC(),
	}); err != nil {
		s.logger.Warn("audit amortization", slog.Any("error", err))
	}
}

func (s *Service) observe(outcome string, n int) {
	if s.metrics != nil && n > 0 {
		s.metrics.ObserveAmortization(outcome, n)
	}
}
