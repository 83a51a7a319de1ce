package journals

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/balances"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// AccountLookup resolves account numbers against the chart of accounts.
type AccountLookup interface {
	GetByNumber(ctx context.Context, company, number string) (accounting.Account, error)
}

// SubAccountResolver checks that a sub-account reference names a live entity.
type SubAccountResolver interface {
	Resolve(ctx context.Context, company string, ref accounting.SubAccountRef) (accounting.SubAccountRef, error)
}

// Aggregator folds entry effects into the balance summaries.
type Aggregator interface {
	ApplyWithin(ctx context.Context, tx balances.TxRepository, entry accounting.JournalEntry, effect balances.Effect) error
	Invalidate(ctx context.Context, company string)
}

// Dispatcher hands aggregation tasks to the work queue.
type Dispatcher interface {
	Dispatch(ctx context.Context, task balances.Task) error
}

// PostHook runs after an entry has been committed as posted.
type PostHook interface {
	AfterPost(ctx context.Context, entry accounting.JournalEntry, recurrence *accounting.Recurrence) error
}

// AuditPort records audit trail entries.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Metrics observes posting outcomes.
type Metrics interface {
	ObservePosting(module, outcome string)
}

// Config wires the optional collaborators of Service.
type Config struct {
	Calendar   accounting.FiscalCalendar
	Mode       AggregationMode
	Retry      db.RetryPolicy
	Dispatcher Dispatcher
	Audit      AuditPort
	Metrics    Metrics
	Logger     *slog.Logger
}

// Service is the posting validator: the only writer of journal entries.
type Service struct {
	repo        Repository
	accounts    AccountLookup
	subAccounts SubAccountResolver
	aggregator  Aggregator
	dispatcher  Dispatcher
	audit       AuditPort
	metrics     Metrics
	calendar    accounting.FiscalCalendar
	mode        AggregationMode
	retry       db.RetryPolicy
	hooks       []PostHook
	logger      *slog.Logger
	now         func() time.Time
}

// NewService constructs the posting service.
func NewService(repo Repository, accounts AccountLookup, subAccounts SubAccountResolver, aggregator Aggregator, cfg Config) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	mode := cfg.Mode
	if !mode.Valid() {
		mode = AggregationSync
	}
	if mode == AggregationAsync && cfg.Dispatcher == nil {
		logger.Warn("async aggregation without dispatcher, tasks stay in the outbox")
	}
	retry := cfg.Retry
	if retry.Attempts <= 0 {
		retry = db.DefaultRetryPolicy
	}
	return &Service{
		repo:        repo,
		accounts:    accounts,
		subAccounts: subAccounts,
		aggregator:  aggregator,
		dispatcher:  cfg.Dispatcher,
		audit:       cfg.Audit,
		metrics:     cfg.Metrics,
		calendar:    cfg.Calendar,
		mode:        mode,
		retry:       retry,
		logger:      logger,
		now:         time.Now,
	}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// AddHook registers a hook run after every successful post.
func (s *Service) AddHook(h PostHook) {
	if h != nil {
		s.hooks = append(s.hooks, h)
	}
}

// Post validates the request and persists it as a posted entry. Header, lines
// and (in sync mode) the balance update commit atomically.
func (s *Service) Post(ctx context.Context, req accounting.JournalEntryRequest) (accounting.JournalEntry, error) {
	entry, err := s.prepare(ctx, req, accounting.EntryStatusPosted)
	if err != nil {
		s.observe(req.Module, "rejected")
		return accounting.JournalEntry{}, err
	}
	var posted accounting.JournalEntry
	err = s.inTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inserted, err := s.insert(ctx, tx, entry)
		if err != nil {
			return err
		}
		posted = inserted
		return s.aggregate(ctx, tx, inserted, balances.EffectApply)
	})
	if err != nil {
		s.observePostError(entry, err)
		return accounting.JournalEntry{}, err
	}
	s.observe(posted.Module, "posted")
	s.afterCommit(ctx, posted, balances.EffectApply)
	s.record(ctx, posted.PostedBy, "journal.post", posted, map[string]any{"source_ref": posted.SourceRef})
	s.runHooks(ctx, posted, req.Recurrence)
	return posted, nil
}

// Draft validates and stores the request without posting it. Drafts do not
// touch balances and are not subject to the period gate.
func (s *Service) Draft(ctx context.Context, req accounting.JournalEntryRequest) (accounting.JournalEntry, error) {
	entry, err := s.prepare(ctx, req, accounting.EntryStatusDraft)
	if err != nil {
		return accounting.JournalEntry{}, err
	}
	var stored accounting.JournalEntry
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := ensureSourceFree(ctx, tx, entry); err != nil {
			return err
		}
		inserted, err := tx.InsertJournalEntry(ctx, entry)
		if err != nil {
			return mapInsertError(err, entry)
		}
		stored = inserted
		return nil
	})
	if err != nil {
		return accounting.JournalEntry{}, err
	}
	s.record(ctx, req.PostedBy, "journal.draft", stored, nil)
	return stored, nil
}

// PostDraft posts a previously drafted entry after re-checking its accounts.
func (s *Service) PostDraft(ctx context.Context, company, id, actor string) (accounting.JournalEntry, error) {
	entryID, err := parseEntryID(id)
	if err != nil {
		return accounting.JournalEntry{}, err
	}
	if strings.TrimSpace(actor) == "" {
		return accounting.JournalEntry{}, ErrActorRequired
	}
	draft, err := s.repo.GetJournal(ctx, company, entryID)
	if err != nil {
		return accounting.JournalEntry{}, err
	}
	if _, err := s.resolveLines(ctx, company, linesToRequests(draft.Lines)); err != nil {
		return accounting.JournalEntry{}, err
	}
	var posted accounting.JournalEntry
	err = s.inTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetJournalForUpdate(ctx, company, entryID)
		if err != nil {
			return err
		}
		if !current.Status.CanTransition(accounting.EntryStatusPosted) {
			return fmt.Errorf("%w: %s to %s", accounting.ErrInvalidStatus, current.Status, accounting.EntryStatusPosted)
		}
		if err := s.ensureOpen(ctx, tx, current.Company, current.Module, current.Date); err != nil {
			return err
		}
		now := s.now().UTC()
		current.Status = accounting.EntryStatusPosted
		current.PostedBy = actor
		current.PostedAt = now
		current.UpdatedAt = now
		if err := tx.UpdateJournalStatus(ctx, current); err != nil {
			return err
		}
		posted = current
		return s.aggregate(ctx, tx, current, balances.EffectApply)
	})
	if err != nil {
		s.observePostError(draft, err)
		return accounting.JournalEntry{}, err
	}
	s.afterCommit(ctx, posted, balances.EffectApply)
	s.record(ctx, actor, "journal.post", posted, map[string]any{"from_draft": true})
	s.runHooks(ctx, posted, nil)
	return posted, nil
}

// Cancel moves a draft or posted entry to CANCELED. A posted entry has its
// balance effect reversed; the row is kept.
func (s *Service) Cancel(ctx context.Context, in CancelInput) (accounting.JournalEntry, error) {
	if strings.TrimSpace(in.Actor) == "" {
		return accounting.JournalEntry{}, ErrActorRequired
	}
	entry, err := s.terminate(ctx, in.Company, in.EntryID, accounting.EntryStatusCanceled, func(e *accounting.JournalEntry, at time.Time) {
		e.CanceledBy = in.Actor
		e.CanceledAt = &at
	})
	if err != nil {
		return accounting.JournalEntry{}, err
	}
	s.record(ctx, in.Actor, "journal.cancel", entry, nil)
	return entry, nil
}

// Void moves a posted entry to VOIDED and reverses its balance effect.
func (s *Service) Void(ctx context.Context, in VoidInput) (accounting.JournalEntry, error) {
	if strings.TrimSpace(in.Actor) == "" {
		return accounting.JournalEntry{}, ErrActorRequired
	}
	if strings.TrimSpace(in.Reason) == "" {
		return accounting.JournalEntry{}, ErrReasonRequired
	}
	entry, err := s.terminate(ctx, in.Company, in.EntryID, accounting.EntryStatusVoided, func(e *accounting.JournalEntry, at time.Time) {
		e.VoidedBy = in.Actor
		e.VoidedAt = &at
		e.VoidReason = in.Reason
	})
	if err != nil {
		return accounting.JournalEntry{}, err
	}
	s.record(ctx, in.Actor, "journal.void", entry, map[string]any{"reason": in.Reason})
	return entry, nil
}

func (s *Service) terminate(ctx context.Context, company, id string, target accounting.EntryStatus, stamp func(*accounting.JournalEntry, time.Time)) (accounting.JournalEntry, error) {
	entryID, err := parseEntryID(id)
	if err != nil {
		return accounting.JournalEntry{}, err
	}
	var (
		updated   accounting.JournalEntry
		wasPosted bool
	)
	err = s.inTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetJournalForUpdate(ctx, company, entryID)
		if err != nil {
			return err
		}
		if !current.Status.CanTransition(target) {
			return fmt.Errorf("%w: %s to %s", accounting.ErrInvalidStatus, current.Status, target)
		}
		wasPosted = current.Status == accounting.EntryStatusPosted
		if wasPosted {
			if err := s.ensureOpen(ctx, tx, current.Company, current.Module, current.Date); err != nil {
				return err
			}
		}
		now := s.now().UTC()
		current.Status = target
		current.UpdatedAt = now
		stamp(&current, now)
		if err := tx.UpdateJournalStatus(ctx, current); err != nil {
			return err
		}
		updated = current
		if !wasPosted {
			return nil
		}
		return s.aggregate(ctx, tx, current, balances.EffectReverse)
	})
	if err != nil {
		return accounting.JournalEntry{}, err
	}
	if wasPosted {
		s.afterCommit(ctx, updated, balances.EffectReverse)
	}
	return updated, nil
}

// Get returns one entry with its lines.
func (s *Service) Get(ctx context.Context, company, id string) (accounting.JournalEntry, error) {
	entryID, err := parseEntryID(id)
	if err != nil {
		return accounting.JournalEntry{}, err
	}
	return s.repo.GetJournal(ctx, company, entryID)
}

// List returns entry headers matching filter, newest first.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]accounting.JournalEntry, error) {
	if filter.Company == "" {
		return nil, accounting.ErrCompanyRequired
	}
	if filter.Limit <= 0 || filter.Limit > 500 {
		filter.Limit = 100
	}
	filter.Module = strings.ToUpper(strings.TrimSpace(filter.Module))
	return s.repo.ListJournals(ctx, filter)
}

// RedispatchPending hands outbox tasks left behind by failed dispatches to
// the queue again and returns how many were delivered.
func (s *Service) RedispatchPending(ctx context.Context, limit int) (int, error) {
	if s.dispatcher == nil {
		return 0, nil
	}
	tasks, err := s.repo.ListPendingOutbox(ctx, limit)
	if err != nil {
		return 0, err
	}
	delivered := 0
	for _, task := range tasks {
		if err := s.dispatcher.Dispatch(ctx, task); err != nil {
			s.logger.Warn("outbox redispatch", slog.String("task", task.ID()), slog.Any("error", err))
			continue
		}
		if err := s.repo.MarkOutboxDispatched(ctx, task); err != nil {
			return delivered, err
		}
		delivered++
	}
	return delivered, nil
}

// PendingAggregations counts the company's aggregation tasks still waiting
// to be applied. It is always zero in sync mode.
func (s *Service) PendingAggregations(ctx context.Context, company string) (int, error) {
	if s.mode == AggregationSync {
		return 0, nil
	}
	return s.repo.CountPendingOutbox(ctx, company)
}

// Applied marks an outbox task consumed once the aggregator has applied it.
func (s *Service) Applied(ctx context.Context, task balances.Task) error {
	return s.repo.MarkOutboxApplied(ctx, task)
}

func (s *Service) prepare(ctx context.Context, req accounting.JournalEntryRequest, status accounting.EntryStatus) (accounting.JournalEntry, error) {
	if err := req.Validate(); err != nil {
		return accounting.JournalEntry{}, err
	}
	lines, err := s.resolveLines(ctx, req.Company, req.Lines)
	if err != nil {
		return accounting.JournalEntry{}, err
	}
	if req.Recurrence != nil {
		if err := s.checkRecurrenceAccounts(ctx, req.Company, *req.Recurrence); err != nil {
			return accounting.JournalEntry{}, err
		}
	}
	kind := req.Kind
	if kind == "" {
		kind = accounting.EntryKindRegular
	}
	now := s.now().UTC()
	entry := accounting.JournalEntry{
		ID:        uuid.New(),
		Company:   req.Company,
		Module:    strings.ToUpper(strings.TrimSpace(req.Module)),
		Reference: req.Reference,
		SourceRef: strings.TrimSpace(req.SourceRef),
		Kind:      kind,
		Date:      accounting.DateOnly(req.Date),
		Memo:      req.Memo,
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if status == accounting.EntryStatusPosted {
		entry.PostedBy = req.PostedBy
		entry.PostedAt = now
	}
	for i := range lines {
		lines[i].EntryID = entry.ID
	}
	entry.Lines = lines
	return entry, nil
}

func (s *Service) resolveLines(ctx context.Context, company string, reqs []accounting.LineRequest) ([]accounting.JournalLine, error) {
	lines := make([]accounting.JournalLine, 0, len(reqs))
	for idx, lr := range reqs {
		account, err := s.accounts.GetByNumber(ctx, company, lr.AccountNumber)
		if err != nil {
			if errors.Is(err, accounting.ErrAccountNotFound) {
				return nil, &accounting.LineError{Line: idx, Account: lr.AccountNumber, Err: accounting.ErrUnknownAccount}
			}
			return nil, err
		}
		if !account.Postable() {
			return nil, &accounting.LineError{Line: idx, Account: lr.AccountNumber, Err: accounting.ErrNonLeafAccount}
		}
		ref := lr.SubAccount
		switch {
		case !ref.IsNone():
			ref, err = s.subAccounts.Resolve(ctx, company, ref)
			if err != nil {
				return nil, &accounting.LineError{Line: idx, Account: lr.AccountNumber, Err: err}
			}
		case account.RequiresSubLedger:
			return nil, &accounting.LineError{Line: idx, Account: lr.AccountNumber,
				Err: fmt.Errorf("%w: account requires a sub-account", accounting.ErrInvalidSubAccount)}
		}
		lines = append(lines, accounting.JournalLine{
			LineNo:        idx + 1,
			AccountID:     account.ID,
			AccountNumber: account.Number,
			Debit:         shared.RoundMoney(lr.Debit),
			Credit:        shared.RoundMoney(lr.Credit),
			SubAccount:    ref,
			Memo:          lr.Memo,
		})
	}
	return lines, nil
}

// checkRecurrenceAccounts applies the line account rules to the schedule
// accounts, so an entry is never posted with a schedule that cannot be created.
func (s *Service) checkRecurrenceAccounts(ctx context.Context, company string, rec accounting.Recurrence) error {
	for _, number := range []string{rec.PrepaidAccount, rec.ExpenseAccount} {
		account, err := s.accounts.GetByNumber(ctx, company, number)
		if err != nil {
			if errors.Is(err, accounting.ErrAccountNotFound) {
				return fmt.Errorf("%w: recurrence account %s", accounting.ErrUnknownAccount, number)
			}
			return err
		}
		if !account.Postable() {
			return fmt.Errorf("%w: recurrence account %s", accounting.ErrNonLeafAccount, number)
		}
	}
	return nil
}

func linesToRequests(lines []accounting.JournalLine) []accounting.LineRequest {
	out := make([]accounting.LineRequest, 0, len(lines))
	for _, l := range lines {
		out = append(out, accounting.LineRequest{
			AccountNumber: l.AccountNumber,
			SubAccount:    l.SubAccount,
			Debit:         l.Debit,
			Credit:        l.Credit,
			Memo:          l.Memo,
		})
	}
	return out
}

// inTx runs fn in a transaction, retrying serialization failures and
// optimistic version conflicts with backoff.
func (s *Service) inTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	attempts, err := db.Retry(ctx, s.retry, db.IsConflict, func(ctx context.Context) error {
		return s.repo.WithTx(ctx, fn)
	})
	if err != nil && db.IsConflict(err) {
		return fmt.Errorf("%w: after %d attempts: %v", accounting.ErrAggregationConflict, attempts, err)
	}
	if attempts > 1 {
		s.logger.Info("journal transaction retried", slog.Int("attempts", attempts))
	}
	return err
}

func (s *Service) insert(ctx context.Context, tx TxRepository, entry accounting.JournalEntry) (accounting.JournalEntry, error) {
	if err := s.ensureOpen(ctx, tx, entry.Company, entry.Module, entry.Date); err != nil {
		return accounting.JournalEntry{}, err
	}
	if err := ensureSourceFree(ctx, tx, entry); err != nil {
		return accounting.JournalEntry{}, err
	}
	inserted, err := tx.InsertJournalEntry(ctx, entry)
	if err != nil {
		return accounting.JournalEntry{}, mapInsertError(err, entry)
	}
	return inserted, nil
}

func ensureSourceFree(ctx context.Context, tx TxRepository, entry accounting.JournalEntry) error {
	if entry.SourceRef == "" {
		return nil
	}
	existing, err := tx.FindEntryBySource(ctx, entry.Company, entry.Module, entry.SourceRef)
	switch {
	case err == nil:
		return fmt.Errorf("%w: %s/%s as entry %s", accounting.ErrSourceAlreadyPosted, entry.Module, entry.SourceRef, existing.ID)
	case errors.Is(err, accounting.ErrJournalNotFound):
		return nil
	default:
		return err
	}
}

func mapInsertError(err error, entry accounting.JournalEntry) error {
	if db.IsUniqueViolation(err) && entry.SourceRef != "" {
		return fmt.Errorf("%w: %s/%s", accounting.ErrSourceAlreadyPosted, entry.Module, entry.SourceRef)
	}
	return err
}

// ensureOpen consults the period gate under a shared lock so a concurrent
// close waits for in-flight postings.
func (s *Service) ensureOpen(ctx context.Context, tx TxRepository, company, module string, date time.Time) error {
	key := periods.Key{Company: company, Module: module, Period: s.calendar.PeriodOf(date)}
	gate, err := tx.SharePeriodLock(ctx, key)
	if errors.Is(err, periods.ErrPeriodNotTracked) {
		return nil
	}
	if err != nil {
		return err
	}
	return periods.EnsureOpen(gate)
}

func (s *Service) aggregate(ctx context.Context, tx TxRepository, entry accounting.JournalEntry, effect balances.Effect) error {
	if s.mode == AggregationSync {
		return s.aggregator.ApplyWithin(ctx, tx, entry, effect)
	}
	return tx.InsertOutbox(ctx, balances.Task{Company: entry.Company, EntryID: entry.ID, Effect: effect})
}

func (s *Service) afterCommit(ctx context.Context, entry accounting.JournalEntry, effect balances.Effect) {
	if s.mode == AggregationSync {
		s.aggregator.Invalidate(ctx, entry.Company)
		return
	}
	if s.dispatcher == nil {
		return
	}
	task := balances.Task{Company: entry.Company, EntryID: entry.ID, Effect: effect}
	if err := s.dispatcher.Dispatch(ctx, task); err != nil {
		s.logger.Warn("aggregation dispatch deferred to outbox", slog.String("task", task.ID()), slog.Any("error", err))
		return
	}
	if err := s.repo.MarkOutboxDispatched(ctx, task); err != nil {
		s.logger.Warn("mark outbox dispatched", slog.String("task", task.ID()), slog.Any("error", err))
	}
}

func (s *Service) runHooks(ctx context.Context, entry accounting.JournalEntry, recurrence *accounting.Recurrence) {
	for _, h := range s.hooks {
		if err := h.AfterPost(ctx, entry, recurrence); err != nil {
			s.logger.Error("post hook failed",
				slog.String("entry_id", entry.ID.String()),
				slog.Any("error", err))
		}
	}
}

func (s *Service) record(ctx context.Context, actor, action string, entry accounting.JournalEntry, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if meta == nil {
		meta = map[string]any{}
	}
	meta["number"] = entry.Number
	meta["module"] = entry.Module
	meta["status"] = string(entry.Status)
	err := s.audit.Record(ctx, shared.AuditLog{
		Actor:    actor,
		Company:  entry.Company,
		Action:   action,
		Entity:   "journal_entry",
		EntityID: entry.ID.String(),
		Meta:     meta,
		At:       s.now().UTC(),
	})
	if err != nil {
		s.logger.Warn("audit journal", slog.String("action", action), slog.Any("error", err))
	}
}

func (s *Service) observePostError(entry accounting.JournalEntry, err error) {
	outcome := "error"
	switch {
	case errors.Is(err, accounting.ErrPeriodLocked):
		outcome = "period_locked"
	case errors.Is(err, accounting.ErrSourceAlreadyPosted):
		outcome = "duplicate"
	case errors.Is(err, accounting.ErrAggregationConflict):
		outcome = "conflict"
	}
	s.observe(entry.Module, outcome)
	if outcome == "error" || outcome == "conflict" {
		s.logger.Error("journal post failed",
			slog.String("company", entry.Company),
			slog.String("module", entry.Module),
			slog.Any("error", err))
	}
}

func (s *Service) observe(module, outcome string) {
	if s.metrics != nil {
		s.metrics.ObservePosting(strings.ToUpper(module), outcome)
	}
}

func parseEntryID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %v", ErrInvalidEntryID, err)
	}
	return id, nil
}
