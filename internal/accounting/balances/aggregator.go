package balances

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
)

// Cache stores snapshot read models per company.
type Cache interface {
	BuildKey(ctx context.Context, company string, parts ...string) (string, error)
	FetchJSON(ctx context.Context, key string, dest any, loader func(context.Context) (any, error)) error
	Bump(ctx context.Context, company string) error
}

// Metrics observes aggregation outcomes.
type Metrics interface {
	ObserveAggregation(effect string, outcome string)
	ObserveConflictRetries(component string, retries int)
}

// Service aggregates posted entries into period and sub-account summaries and
// serves snapshot reads from them.
type Service struct {
	repo     Repository
	calendar accounting.FiscalCalendar
	cache    Cache
	metrics  Metrics
	retry    db.RetryPolicy
	logger   *slog.Logger
	now      func() time.Time
	group    singleflight.Group
}

// Config groups optional collaborators.
type Config struct {
	Calendar accounting.FiscalCalendar
	Cache    Cache
	Metrics  Metrics
	Retry    db.RetryPolicy
	Logger   *slog.Logger
}

// NewService constructs the aggregator.
func NewService(repo Repository, cfg Config) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	retry := cfg.Retry
	if retry.Attempts <= 0 {
		retry = db.DefaultRetryPolicy
	}
	return &Service{
		repo:     repo,
		calendar: cfg.Calendar,
		cache:    cfg.Cache,
		metrics:  cfg.Metrics,
		retry:    retry,
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

// Apply loads the entry named by task and folds its effect into the summaries
// in its own transaction, retrying on concurrent updates. A repeated task
// returns accounting.ErrAlreadyApplied and changes nothing.
func (s *Service) Apply(ctx context.Context, task Task) error {
	if task.Company == "" {
		return accounting.ErrCompanyRequired
	}
	entry, err := s.repo.GetJournal(ctx, task.Company, task.EntryID)
	if err != nil {
		return err
	}
	effect := task.Effect
	if effect == "" {
		effect = EffectApply
	}
	attempts, err := db.Retry(ctx, s.retry, db.IsConflict, func(ctx context.Context) error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			return s.ApplyWithin(ctx, tx, entry, effect)
		})
	})
	if s.metrics != nil && attempts > 1 {
		s.metrics.ObserveConflictRetries("aggregator", attempts-1)
	}
	switch {
	case err == nil:
		s.observe(effect, "applied")
	case errors.Is(err, accounting.ErrAlreadyApplied):
		s.observe(effect, "duplicate")
		s.logger.Info("aggregation skipped, already applied",
			slog.String("entry_id", entry.ID.String()),
			slog.String("effect", string(effect)))
		return err
	case db.IsConflict(err):
		s.observe(effect, "conflict")
		return fmt.Errorf("%w: entry %s after %d attempts: %v", accounting.ErrAggregationConflict, entry.ID, attempts, err)
	default:
		s.observe(effect, "error")
		return err
	}
	s.Invalidate(ctx, entry.Company)
	return nil
}

// Invalidate drops cached read models of the company.
func (s *Service) Invalidate(ctx context.Context, company string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Bump(ctx, company); err != nil {
		s.logger.Warn("balance cache bump", slog.String("company", company), slog.Any("error", err))
	}
}

type lineGroup struct {
	accountID int64
	sub       accounting.SubAccountRef
	debit     decimal.Decimal
	credit    decimal.Decimal
}

func groupLines(lines []accounting.JournalLine) (gl []lineGroup, sub []lineGroup) {
	glIdx := map[int64]int{}
	subIdx := map[string]int{}
	for _, line := range lines {
		i, ok := glIdx[line.AccountID]
		if !ok {
			i = len(gl)
			glIdx[line.AccountID] = i
			gl = append(gl, lineGroup{accountID: line.AccountID, debit: decimal.Zero, credit: decimal.Zero})
		}
		gl[i].debit = gl[i].debit.Add(line.Debit)
		gl[i].credit = gl[i].credit.Add(line.Credit)
		if line.SubAccount.IsNone() {
			continue
		}
		k := fmt.Sprintf("%d|%s", line.AccountID, line.SubAccount.Key())
		j, ok := subIdx[k]
		if !ok {
			j = len(sub)
			subIdx[k] = j
			sub = append(sub, lineGroup{accountID: line.AccountID, sub: line.SubAccount, debit: decimal.Zero, credit: decimal.Zero})
		}
		sub[j].debit = sub[j].debit.Add(line.Debit)
		sub[j].credit = sub[j].credit.Add(line.Credit)
	}
	// Fixed lock order across concurrent aggregations.
	sort.Slice(gl, func(a, b int) bool { return gl[a].accountID < gl[b].accountID })
	sort.Slice(sub, func(a, b int) bool {
		if sub[a].accountID != sub[b].accountID {
			return sub[a].accountID < sub[b].accountID
		}
		return sub[a].sub.Key() < sub[b].sub.Key()
	})
	return gl, sub
}

// ApplyWithin folds the entry effect into the summaries using tx. It is used
// directly by synchronous posting so the summary update commits with the
// entry itself.
func (s *Service) ApplyWithin(ctx context.Context, tx TxRepository, entry accounting.JournalEntry, effect Effect) error {
	if effect == EffectReverse {
		applied, err := tx.HasApplied(ctx, entry.ID, EffectApply)
		if err != nil {
			return err
		}
		if !applied {
			return fmt.Errorf("%w: %s", ErrNotYetApplied, entry.ID)
		}
	}
	period := s.calendar.PeriodOf(entry.Date)
	adjustment := entry.Kind == accounting.EntryKindAdjustment
	sign := decimal.NewFromInt(1)
	if effect == EffectReverse {
		sign = sign.Neg()
	}
	glGroups, subGroups := groupLines(entry.Lines)
	// Groups are ordered by account id, so concurrent postings take the
	// account locks in the same order.
	accounts := make(map[int64]accounting.Account, len(glGroups))
	for _, g := range glGroups {
		account, err := tx.GetAccountForUpdate(ctx, entry.Company, g.accountID)
		if err != nil {
			return fmt.Errorf("balances: account %d: %w", g.accountID, err)
		}
		accounts[g.accountID] = account
	}
	applied := 0
	for _, g := range glGroups {
		account := accounts[g.accountID]
		fresh, err := tx.MarkApplied(ctx, AppliedKey{
			EntryID:   entry.ID,
			Effect:    effect,
			Ledger:    LedgerGL,
			AccountID: g.accountID,
			Period:    period,
		})
		if err != nil {
			return err
		}
		if !fresh {
			continue
		}
		if err := s.applyPeriod(ctx, tx, entry.Company, account, period, g.debit.Mul(sign), g.credit.Mul(sign), adjustment); err != nil {
			return err
		}
		applied++
	}
	for _, g := range subGroups {
		account := accounts[g.accountID]
		fresh, err := tx.MarkApplied(ctx, AppliedKey{
			EntryID:   entry.ID,
			Effect:    effect,
			Ledger:    LedgerSub,
			AccountID: g.accountID,
			Period:    period,
			SubKey:    g.sub.Key(),
		})
		if err != nil {
			return err
		}
		if !fresh {
			continue
		}
		if err := s.applySubAccount(ctx, tx, entry.Company, account, g.sub, period, g.debit.Mul(sign), g.credit.Mul(sign), adjustment); err != nil {
			return err
		}
		applied++
	}
	if applied == 0 {
		return fmt.Errorf("%w: %s %s", accounting.ErrAlreadyApplied, entry.ID, effect)
	}
	return nil
}

func (s *Service) applyPeriod(ctx context.Context, tx TxRepository, company string, account accounting.Account, period accounting.FiscalPeriod, debit, credit decimal.Decimal, adjustment bool) error {
	key := Key{Company: company, AccountID: account.ID, Period: period}
	bal, err := tx.GetPeriodBalanceForUpdate(ctx, key)
	if errors.Is(err, ErrBalanceNotFound) {
		bal, err = s.openPeriodBalance(ctx, tx, account, key)
	}
	if err != nil {
		return err
	}
	before := bal.Effective()
	bal.Post(account.NormalBalance, debit, credit, adjustment)
	bal.UpdatedAt = s.now().UTC()
	if _, err := tx.SavePeriodBalance(ctx, bal); err != nil {
		return err
	}
	delta := bal.Effective().Sub(before)
	if delta.IsZero() {
		return nil
	}
	later, err := tx.ListPeriodBalancesAfterForUpdate(ctx, company, account.ID, period)
	if err != nil {
		return err
	}
	for _, next := range later {
		next.Shift(account.NormalBalance, delta)
		next.UpdatedAt = bal.UpdatedAt
		if _, err := tx.SavePeriodBalance(ctx, next); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) openPeriodBalance(ctx context.Context, tx TxRepository, account accounting.Account, key Key) (PeriodBalance, error) {
	start, end := s.calendar.Window(key.Period)
	bal := PeriodBalance{
		Key:           key,
		AccountNumber: account.Number,
		NormalBalance: account.NormalBalance,
		PeriodStart:   start,
		PeriodEnd:     end,
		Figures:       zeroFigures(),
	}
	prior, err := tx.LatestPeriodBalanceBefore(ctx, key.Company, key.AccountID, key.Period)
	switch {
	case err == nil:
		bal.Beginning = prior.Effective()
	case errors.Is(err, ErrBalanceNotFound):
	default:
		return PeriodBalance{}, err
	}
	bal.Recompute(account.NormalBalance)
	return bal, nil
}

func (s *Service) applySubAccount(ctx context.Context, tx TxRepository, company string, account accounting.Account, ref accounting.SubAccountRef, period accounting.FiscalPeriod, debit, credit decimal.Decimal, adjustment bool) error {
	key := SubKey{Key: Key{Company: company, AccountID: account.ID, Period: period}, Kind: ref.Kind, ID: ref.ID}
	bal, err := tx.GetSubAccountBalanceForUpdate(ctx, key)
	if errors.Is(err, ErrBalanceNotFound) {
		bal, err = s.openSubAccountBalance(ctx, tx, account, ref, key)
	}
	if err != nil {
		return err
	}
	if ref.Name != "" {
		bal.SubAccountName = ref.Name
	}
	before := bal.Effective()
	bal.Post(account.NormalBalance, debit, credit, adjustment)
	bal.UpdatedAt = s.now().UTC()
	if _, err := tx.SaveSubAccountBalance(ctx, bal); err != nil {
		return err
	}
	delta := bal.Effective().Sub(before)
	if delta.IsZero() {
		return nil
	}
	later, err := tx.ListSubAccountBalancesAfterForUpdate(ctx, key)
	if err != nil {
		return err
	}
	for _, next := range later {
		next.Shift(account.NormalBalance, delta)
		next.UpdatedAt = bal.UpdatedAt
		if _, err := tx.SaveSubAccountBalance(ctx, next); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) openSubAccountBalance(ctx context.Context, tx TxRepository, account accounting.Account, ref accounting.SubAccountRef, key SubKey) (SubAccountBalance, error) {
	start, end := s.calendar.Window(key.Period)
	bal := SubAccountBalance{
		SubKey:         key,
		SubAccountName: ref.Name,
		AccountNumber:  account.Number,
		NormalBalance:  account.NormalBalance,
		PeriodStart:    start,
		PeriodEnd:      end,
		Figures:        zeroFigures(),
	}
	prior, err := tx.LatestSubAccountBalanceBefore(ctx, key)
	switch {
	case err == nil:
		bal.Beginning = prior.Effective()
	case errors.Is(err, ErrBalanceNotFound):
	default:
		return SubAccountBalance{}, err
	}
	bal.Recompute(account.NormalBalance)
	return bal, nil
}

// SetPeriodClosed flips the is_closed flag of every summary row of the company period.
func (s *Service) SetPeriodClosed(ctx context.Context, company string, period accounting.FiscalPeriod, closed bool) error {
	if company == "" {
		return accounting.ErrCompanyRequired
	}
	var at *time.Time
	if closed {
		now := s.now().UTC()
		at = &now
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.SetPeriodClosed(ctx, company, period, closed, at)
	})
	if err != nil {
		return err
	}
	s.Invalidate(ctx, company)
	return nil
}

func (s *Service) observe(effect Effect, outcome string) {
	if s.metrics != nil {
		s.metrics.ObserveAggregation(string(effect), outcome)
	}
}

func zeroFigures() Figures {
	return Figures{
		Beginning:        decimal.Zero,
		DebitTotal:       decimal.Zero,
		CreditTotal:      decimal.Zero,
		Ending:           decimal.Zero,
		AdjustmentDebit:  decimal.Zero,
		AdjustmentCredit: decimal.Zero,
	}
}
