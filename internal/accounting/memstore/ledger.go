package memstore

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/balances"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/subledger"
)

func (st *state) accountByNumber(company, number string) (accounting.Account, error) {
	for _, a := range st.accounts {
		if a.Company == company && a.Number == number {
			return a, nil
		}
	}
	return accounting.Account{}, fmt.Errorf("%w: %s", accounting.ErrAccountNotFound, number)
}

func (st *state) account(company string, id int64) (accounting.Account, error) {
	a, ok := st.accounts[id]
	if !ok || a.Company != company {
		return accounting.Account{}, fmt.Errorf("%w: id %d", accounting.ErrAccountNotFound, id)
	}
	return a, nil
}

func (st *state) listAccounts(company string) []accounting.Account {
	out := make([]accounting.Account, 0)
	for _, a := range st.accounts {
		if a.Company == company {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out
}

// GetAccount returns an account by id.
func (s *Store) GetAccount(_ context.Context, company string, id int64) (acc accounting.Account, err error) {
	s.read(func(st *state) { acc, err = st.account(company, id) })
	return acc, err
}

// GetAccountByNumber returns an account by number.
func (s *Store) GetAccountByNumber(_ context.Context, company, number string) (acc accounting.Account, err error) {
	s.read(func(st *state) { acc, err = st.accountByNumber(company, number) })
	return acc, err
}

// ListAccounts returns the company chart ordered by number.
func (s *Store) ListAccounts(_ context.Context, company string) (out []accounting.Account, err error) {
	s.read(func(st *state) { out = st.listAccounts(company) })
	return out, nil
}

func (t *tx) GetAccountForUpdate(_ context.Context, company string, id int64) (accounting.Account, error) {
	return t.st.account(company, id)
}

func (t *tx) GetAccountByNumber(_ context.Context, company, number string) (accounting.Account, error) {
	return t.st.accountByNumber(company, number)
}

func (t *tx) InsertAccount(_ context.Context, account accounting.Account) (accounting.Account, error) {
	if _, err := t.st.accountByNumber(account.Company, account.Number); err == nil {
		return accounting.Account{}, accounting.ErrAccountExists
	}
	now := t.now().UTC()
	account.ID = t.st.nextID()
	account.CreatedAt = now
	account.UpdatedAt = now
	t.st.accounts[account.ID] = account
	return account, nil
}

func (t *tx) UpdateAccount(_ context.Context, account accounting.Account) error {
	if _, err := t.st.account(account.Company, account.ID); err != nil {
		return err
	}
	account.UpdatedAt = t.now().UTC()
	t.st.accounts[account.ID] = account
	return nil
}

func (t *tx) ListChildAccounts(_ context.Context, company string, parentID int64) ([]accounting.Account, error) {
	out := make([]accounting.Account, 0)
	for _, a := range t.st.listAccounts(company) {
		if a.ParentID != nil && *a.ParentID == parentID {
			out = append(out, a)
		}
	}
	return out, nil
}

// FindEntity looks up a sub-ledger entity.
func (s *Store) FindEntity(_ context.Context, company string, kind accounting.SubAccountKind, id string) (e subledger.Entity, err error) {
	s.read(func(st *state) {
		var ok bool
		e, ok = st.entities[entityKey{company, kind, id}]
		if !ok {
			err = subledger.ErrEntityNotFound
		}
	})
	return e, err
}

// UpsertEntity records a sub-ledger entity.
func (s *Store) UpsertEntity(ctx context.Context, e subledger.Entity) error {
	return s.withTx(ctx, func(t *tx) error {
		t.st.entities[entityKey{e.Company, e.Kind, e.ID}] = e
		return nil
	})
}

// GetPostedPeriod returns the gate row of key.
func (s *Store) GetPostedPeriod(_ context.Context, key periods.Key) (p periods.PostedPeriod, err error) {
	s.read(func(st *state) {
		var ok bool
		p, ok = st.gates[key]
		if !ok {
			err = periods.ErrPeriodNotTracked
		}
	})
	return p, err
}

// ListPostedPeriods returns the gate rows of a company fiscal year.
func (s *Store) ListPostedPeriods(_ context.Context, company string, year int) (out []periods.PostedPeriod, err error) {
	s.read(func(st *state) {
		for k, p := range st.gates {
			if k.Company == company && (year == 0 || k.Period.Year == year) {
				out = append(out, p)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].Period != out[j].Period {
			return out[i].Period.Before(out[j].Period)
		}
		return out[i].Module < out[j].Module
	})
	return out, nil
}

// ListLockEvents returns the transitions of key, oldest first.
func (s *Store) ListLockEvents(_ context.Context, key periods.Key) (out []periods.LockEvent, err error) {
	s.read(func(st *state) {
		for _, e := range st.events {
			if e.Key == key {
				out = append(out, e)
			}
		}
	})
	return out, nil
}

func (t *tx) LockPostedPeriod(_ context.Context, key periods.Key) (periods.PostedPeriod, error) {
	p, ok := t.st.gates[key]
	if !ok {
		return periods.PostedPeriod{}, periods.ErrPeriodNotTracked
	}
	return p, nil
}

func (t *tx) SharePeriodLock(ctx context.Context, key periods.Key) (periods.PostedPeriod, error) {
	return t.LockPostedPeriod(ctx, key)
}

func (t *tx) UpsertPostedPeriod(_ context.Context, p periods.PostedPeriod) error {
	t.st.gates[p.Key] = p
	return nil
}

func (t *tx) InsertLockEvent(_ context.Context, e periods.LockEvent) error {
	e.ID = t.st.nextID()
	t.st.events = append(t.st.events, e)
	return nil
}

// GetJournal returns an entry with its lines.
func (s *Store) GetJournal(_ context.Context, company string, id uuid.UUID) (e accounting.JournalEntry, err error) {
	s.read(func(st *state) { e, err = st.journal(company, id) })
	return e, err
}

func (st *state) journal(company string, id uuid.UUID) (accounting.JournalEntry, error) {
	e, ok := st.journals[id]
	if !ok || e.Company != company {
		return accounting.JournalEntry{}, fmt.Errorf("%w: %s", accounting.ErrJournalNotFound, id)
	}
	return e, nil
}

// ListJournals returns entries matching filter, newest first.
func (s *Store) ListJournals(_ context.Context, f journals.ListFilter) (out []accounting.JournalEntry, err error) {
	s.read(func(st *state) {
		for _, e := range st.journals {
			if e.Company != f.Company {
				continue
			}
			if f.Module != "" && e.Module != f.Module {
				continue
			}
			if f.Status != "" && e.Status != f.Status {
				continue
			}
			if !f.From.IsZero() && e.Date.Before(f.From) {
				continue
			}
			if !f.To.IsZero() && e.Date.After(f.To) {
				continue
			}
			out = append(out, e)
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Number > out[j].Number })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (t *tx) FindEntryBySource(_ context.Context, company, module, sourceRef string) (accounting.JournalEntry, error) {
	for _, e := range t.st.journals {
		if e.Company == company && e.Module == module && e.SourceRef == sourceRef {
			return e, nil
		}
	}
	return accounting.JournalEntry{}, accounting.ErrJournalNotFound
}

func (t *tx) InsertJournalEntry(ctx context.Context, entry accounting.JournalEntry) (accounting.JournalEntry, error) {
	if entry.SourceRef != "" {
		if _, err := t.FindEntryBySource(ctx, entry.Company, entry.Module, entry.SourceRef); err == nil {
			return accounting.JournalEntry{}, fmt.Errorf("%w: %s/%s", accounting.ErrSourceAlreadyPosted, entry.Module, entry.SourceRef)
		}
	}
	t.st.numbers[entry.Company]++
	entry.Number = t.st.numbers[entry.Company]
	lines := make([]accounting.JournalLine, len(entry.Lines))
	for i, l := range entry.Lines {
		l.ID = t.st.nextID()
		l.EntryID = entry.ID
		lines[i] = l
	}
	entry.Lines = lines
	t.st.journals[entry.ID] = entry
	return entry, nil
}

func (t *tx) GetJournalForUpdate(_ context.Context, company string, id uuid.UUID) (accounting.JournalEntry, error) {
	return t.st.journal(company, id)
}

func (t *tx) UpdateJournalStatus(_ context.Context, entry accounting.JournalEntry) error {
	current, err := t.st.journal(entry.Company, entry.ID)
	if err != nil {
		return err
	}
	entry.Lines = current.Lines
	t.st.journals[entry.ID] = entry
	return nil
}

func (t *tx) InsertOutbox(_ context.Context, task balances.Task) error {
	if _, ok := t.st.outbox[task.ID()]; ok {
		return nil
	}
	t.st.outbox[task.ID()] = outboxRow{task: task, createdAt: t.now().UTC()}
	return nil
}

// ListPendingOutbox returns tasks never handed to the queue, oldest first.
func (s *Store) ListPendingOutbox(_ context.Context, limit int) (out []balances.Task, err error) {
	s.read(func(st *state) {
		rows := make([]outboxRow, 0)
		for _, row := range st.outbox {
			if row.dispatchedAt == nil && row.appliedAt == nil {
				rows = append(rows, row)
			}
		}
		sort.Slice(rows, func(i, j int) bool { return rows[i].createdAt.Before(rows[j].createdAt) })
		for _, row := range rows {
			if limit > 0 && len(out) >= limit {
				break
			}
			out = append(out, row.task)
		}
	})
	return out, nil
}

// MarkOutboxDispatched records the hand-over of task to the queue.
func (s *Store) MarkOutboxDispatched(ctx context.Context, task balances.Task) error {
	return s.markOutbox(ctx, task, func(row *outboxRow, at time.Time) { row.dispatchedAt = &at })
}

// MarkOutboxApplied records that the aggregator consumed task.
func (s *Store) MarkOutboxApplied(ctx context.Context, task balances.Task) error {
	return s.markOutbox(ctx, task, func(row *outboxRow, at time.Time) { row.appliedAt = &at })
}

func (s *Store) markOutbox(ctx context.Context, task balances.Task, set func(*outboxRow, time.Time)) error {
	return s.withTx(ctx, func(t *tx) error {
		row, ok := t.st.outbox[task.ID()]
		if !ok {
			return nil
		}
		set(&row, t.now().UTC())
		t.st.outbox[task.ID()] = row
		return nil
	})
}

// CountPendingOutbox counts the company's tasks not yet applied.
func (s *Store) CountPendingOutbox(_ context.Context, company string) (n int, err error) {
	s.read(func(st *state) {
		for _, row := range st.outbox {
			if row.task.Company == company && row.appliedAt == nil {
				n++
			}
		}
	})
	return n, nil
}
