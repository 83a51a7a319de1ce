package pgstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/balances"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/subledger"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
)

const accountColumns = `id, company, number, name, type, normal_balance, statement, level, parent_id,
has_children, requires_sub_ledger, is_active, created_at, updated_at`

func scanAccount(row pgx.Row) (accounting.Account, error) {
	var a accounting.Account
	err := row.Scan(&a.ID, &a.Company, &a.Number, &a.Name, &a.Type, &a.NormalBalance, &a.Statement, &a.Level,
		&a.ParentID, &a.HasChildren, &a.RequiresSubLedger, &a.IsActive, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return accounting.Account{}, accounting.ErrAccountNotFound
	}
	return a, err
}

func getAccount(ctx context.Context, q querier, company string, id int64, suffix string) (accounting.Account, error) {
	a, err := scanAccount(q.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE company=$1 AND id=$2`+suffix, company, id))
	if errors.Is(err, accounting.ErrAccountNotFound) {
		return a, fmt.Errorf("%w: id %d", err, id)
	}
	return a, err
}

func getAccountByNumber(ctx context.Context, q querier, company, number string) (accounting.Account, error) {
	a, err := scanAccount(q.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE company=$1 AND number=$2`, company, number))
	if errors.Is(err, accounting.ErrAccountNotFound) {
		return a, fmt.Errorf("%w: %s", err, number)
	}
	return a, err
}

func listAccounts(ctx context.Context, q querier, sql string, args ...any) ([]accounting.Account, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]accounting.Account, 0)
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// GetAccount returns an account by id.
func (s *Store) GetAccount(ctx context.Context, company string, id int64) (accounting.Account, error) {
	return getAccount(ctx, s.pool, company, id, "")
}

// GetAccountByNumber returns an account by number.
func (s *Store) GetAccountByNumber(ctx context.Context, company, number string) (accounting.Account, error) {
	return getAccountByNumber(ctx, s.pool, company, number)
}

// ListAccounts returns the company chart ordered by number.
func (s *Store) ListAccounts(ctx context.Context, company string) ([]accounting.Account, error) {
	return listAccounts(ctx, s.pool, `SELECT `+accountColumns+` FROM accounts WHERE company=$1 ORDER BY number`, company)
}

func (t *txStore) GetAccountForUpdate(ctx context.Context, company string, id int64) (accounting.Account, error) {
	return getAccount(ctx, t.q, company, id, " FOR UPDATE")
}

func (t *txStore) GetAccountByNumber(ctx context.Context, company, number string) (accounting.Account, error) {
	return getAccountByNumber(ctx, t.q, company, number)
}

func (t *txStore) InsertAccount(ctx context.Context, a accounting.Account) (accounting.Account, error) {
	err := t.q.QueryRow(ctx, `INSERT INTO accounts (company, number, name, type, normal_balance, statement, level, parent_id,
has_children, requires_sub_ledger, is_active, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,NOW(),NOW()) RETURNING id, created_at, updated_at`,
		a.Company, a.Number, a.Name, string(a.Type), string(a.NormalBalance), string(a.Statement), a.Level, a.ParentID,
		a.HasChildren, a.RequiresSubLedger, a.IsActive).Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
	if db.IsUniqueViolation(err) {
		return accounting.Account{}, accounting.ErrAccountExists
	}
	return a, err
}

func (t *txStore) UpdateAccount(ctx context.Context, a accounting.Account) error {
	tag, err := t.q.Exec(ctx, `UPDATE accounts SET name=$3, type=$4, normal_balance=$5, statement=$6, level=$7, parent_id=$8,
has_children=$9, requires_sub_ledger=$10, is_active=$11, updated_at=NOW() WHERE company=$1 AND id=$2`,
		a.Company, a.ID, a.Name, string(a.Type), string(a.NormalBalance), string(a.Statement), a.Level, a.ParentID,
		a.HasChildren, a.RequiresSubLedger, a.IsActive)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: id %d", accounting.ErrAccountNotFound, a.ID)
	}
	return nil
}

func (t *txStore) ListChildAccounts(ctx context.Context, company string, parentID int64) ([]accounting.Account, error) {
	return listAccounts(ctx, t.q, `SELECT `+accountColumns+` FROM accounts WHERE company=$1 AND parent_id=$2 ORDER BY number`, company, parentID)
}

// FindEntity looks up a sub-ledger entity.
func (s *Store) FindEntity(ctx context.Context, company string, kind accounting.SubAccountKind, id string) (subledger.Entity, error) {
	e := subledger.Entity{Company: company, Kind: kind, ID: id}
	err := s.pool.QueryRow(ctx, `SELECT name, is_active FROM sub_ledger_entities WHERE company=$1 AND kind=$2 AND entity_id=$3`,
		company, string(kind), id).Scan(&e.Name, &e.IsActive)
	if errors.Is(err, pgx.ErrNoRows) {
		return subledger.Entity{}, subledger.ErrEntityNotFound
	}
	return e, err
}

// UpsertEntity records a sub-ledger entity.
func (s *Store) UpsertEntity(ctx context.Context, e subledger.Entity) error {
	_, err := s.pool.Exec(ctx, `INSERT INTO sub_ledger_entities (company, kind, entity_id, name, is_active, updated_at)
VALUES ($1,$2,$3,$4,$5,NOW())
ON CONFLICT (company, kind, entity_id) DO UPDATE SET name=EXCLUDED.name, is_active=EXCLUDED.is_active, updated_at=NOW()`,
		e.Company, string(e.Kind), e.ID, e.Name, e.IsActive)
	return err
}

const gateColumns = `company, module, fiscal_year, period, is_posted, posted_by, posted_on, reopened_by, reopened_on, updated_at`

func scanGate(row pgx.Row) (periods.PostedPeriod, error) {
	var p periods.PostedPeriod
	err := row.Scan(&p.Company, &p.Module, &p.Period.Year, &p.Period.Period, &p.IsPosted, &p.PostedBy, &p.PostedOn,
		&p.ReopenedBy, &p.ReopenedOn, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return periods.PostedPeriod{}, periods.ErrPeriodNotTracked
	}
	return p, err
}

func gateArgs(key periods.Key) []any {
	return []any{key.Company, key.Module, key.Period.Year, key.Period.Period}
}

// GetPostedPeriod returns the gate row of key.
func (s *Store) GetPostedPeriod(ctx context.Context, key periods.Key) (periods.PostedPeriod, error) {
	return scanGate(s.pool.QueryRow(ctx, `SELECT `+gateColumns+` FROM posted_periods
WHERE company=$1 AND module=$2 AND fiscal_year=$3 AND period=$4`, gateArgs(key)...))
}

// ListPostedPeriods returns the gate rows of a company fiscal year; year 0 lists all.
func (s *Store) ListPostedPeriods(ctx context.Context, company string, year int) ([]periods.PostedPeriod, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+gateColumns+` FROM posted_periods
WHERE company=$1 AND ($2 = 0 OR fiscal_year=$2) ORDER BY fiscal_year, period, module`, company, year)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]periods.PostedPeriod, 0)
	for rows.Next() {
		p, err := scanGate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ListLockEvents returns the transitions of key, oldest first.
func (s *Store) ListLockEvents(ctx context.Context, key periods.Key) ([]periods.LockEvent, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, action, actor, reason, at FROM period_lock_events
WHERE company=$1 AND module=$2 AND fiscal_year=$3 AND period=$4 ORDER BY id`, gateArgs(key)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]periods.LockEvent, 0)
	for rows.Next() {
		e := periods.LockEvent{Key: key}
		if err := rows.Scan(&e.ID, &e.Action, &e.Actor, &e.Reason, &e.At); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// LockPostedPeriod takes the gate's advisory lock exclusively, so it waits for
// every in-flight posting into the period.
func (t *txStore) LockPostedPeriod(ctx context.Context, key periods.Key) (periods.PostedPeriod, error) {
	if _, err := t.q.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, advisoryKey(key)); err != nil {
		return periods.PostedPeriod{}, err
	}
	return scanGate(t.q.QueryRow(ctx, `SELECT `+gateColumns+` FROM posted_periods
WHERE company=$1 AND module=$2 AND fiscal_year=$3 AND period=$4 FOR UPDATE`, gateArgs(key)...))
}

// SharePeriodLock takes the gate's advisory lock in shared mode. Postings
// proceed concurrently with each other but not with a close.
func (t *txStore) SharePeriodLock(ctx context.Context, key periods.Key) (periods.PostedPeriod, error) {
	if _, err := t.q.Exec(ctx, `SELECT pg_advisory_xact_lock_shared(hashtextextended($1, 0))`, advisoryKey(key)); err != nil {
		return periods.PostedPeriod{}, err
	}
	return scanGate(t.q.QueryRow(ctx, `SELECT `+gateColumns+` FROM posted_periods
WHERE company=$1 AND module=$2 AND fiscal_year=$3 AND period=$4`, gateArgs(key)...))
}

func (t *txStore) UpsertPostedPeriod(ctx context.Context, p periods.PostedPeriod) error {
	_, err := t.q.Exec(ctx, `INSERT INTO posted_periods (company, module, fiscal_year, period, is_posted, posted_by, posted_on, reopened_by, reopened_on, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
ON CONFLICT (company, module, fiscal_year, period) DO UPDATE SET is_posted=EXCLUDED.is_posted, posted_by=EXCLUDED.posted_by,
posted_on=EXCLUDED.posted_on, reopened_by=EXCLUDED.reopened_by, reopened_on=EXCLUDED.reopened_on, updated_at=EXCLUDED.updated_at`,
		p.Company, p.Module, p.Period.Year, p.Period.Period, p.IsPosted, p.PostedBy, p.PostedOn, p.ReopenedBy, p.ReopenedOn, p.UpdatedAt)
	return err
}

func (t *txStore) InsertLockEvent(ctx context.Context, e periods.LockEvent) error {
	_, err := t.q.Exec(ctx, `INSERT INTO period_lock_events (company, module, fiscal_year, period, action, actor, reason, at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`, e.Key.Company, e.Key.Module, e.Key.Period.Year, e.Key.Period.Period,
		string(e.Action), e.Actor, e.Reason, e.At)
	return err
}

const entryColumns = `id, number, company, module, reference, source_ref, kind, entry_date, memo, status,
posted_by, COALESCE(posted_at, created_at), canceled_by, canceled_at, voided_by, voided_at, void_reason, created_at, updated_at`

func scanEntry(row pgx.Row) (accounting.JournalEntry, error) {
	var e accounting.JournalEntry
	err := row.Scan(&e.ID, &e.Number, &e.Company, &e.Module, &e.Reference, &e.SourceRef, &e.Kind, &e.Date, &e.Memo, &e.Status,
		&e.PostedBy, &e.PostedAt, &e.CanceledBy, &e.CanceledAt, &e.VoidedBy, &e.VoidedAt, &e.VoidReason, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return accounting.JournalEntry{}, accounting.ErrJournalNotFound
	}
	return e, err
}

func loadLines(ctx context.Context, q querier, entry *accounting.JournalEntry) error {
	rows, err := q.Query(ctx, `SELECT id, line_no, account_id, account_number, debit::text, credit::text, sub_kind, sub_id, sub_name, memo
FROM journal_lines WHERE entry_id=$1 ORDER BY line_no`, entry.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	var n numerics
	for rows.Next() {
		var (
			l             accounting.JournalLine
			debit, credit string
		)
		if err := rows.Scan(&l.ID, &l.LineNo, &l.AccountID, &l.AccountNumber, &debit, &credit,
			&l.SubAccount.Kind, &l.SubAccount.ID, &l.SubAccount.Name, &l.Memo); err != nil {
			return err
		}
		l.EntryID = entry.ID
		l.Debit, l.Credit = n.dec(debit), n.dec(credit)
		entry.Lines = append(entry.Lines, l)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	return n.err
}

func getJournal(ctx context.Context, q querier, company string, id uuid.UUID, suffix string) (accounting.JournalEntry, error) {
	e, err := scanEntry(q.QueryRow(ctx, `SELECT `+entryColumns+` FROM journal_entries WHERE company=$1 AND id=$2`+suffix, company, id))
	if err != nil {
		if errors.Is(err, accounting.ErrJournalNotFound) {
			return e, fmt.Errorf("%w: %s", err, id)
		}
		return e, err
	}
	return e, loadLines(ctx, q, &e)
}

// GetJournal returns an entry with its lines.
func (s *Store) GetJournal(ctx context.Context, company string, id uuid.UUID) (accounting.JournalEntry, error) {
	return getJournal(ctx, s.pool, company, id, "")
}

// ListJournals returns entry headers matching filter, newest first.
func (s *Store) ListJournals(ctx context.Context, f journals.ListFilter) ([]accounting.JournalEntry, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 200
	}
	rows, err := s.pool.Query(ctx, `SELECT `+entryColumns+` FROM journal_entries
WHERE company=$1 AND ($2 = '' OR module=$2) AND ($3 = '' OR status=$3)
AND entry_date BETWEEN COALESCE($4, '-infinity'::date) AND COALESCE($5, 'infinity'::date)
ORDER BY number DESC LIMIT $6`, f.Company, f.Module, string(f.Status), nullDate(f.From), nullDate(f.To), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]accounting.JournalEntry, 0)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (t *txStore) FindEntryBySource(ctx context.Context, company, module, sourceRef string) (accounting.JournalEntry, error) {
	return scanEntry(t.q.QueryRow(ctx, `SELECT `+entryColumns+` FROM journal_entries
WHERE company=$1 AND module=$2 AND source_ref=$3`, company, module, sourceRef))
}

func (t *txStore) InsertJournalEntry(ctx context.Context, e accounting.JournalEntry) (accounting.JournalEntry, error) {
	if err := t.q.QueryRow(ctx, `INSERT INTO journal_numbers (company, last) VALUES ($1, 1)
ON CONFLICT (company) DO UPDATE SET last = journal_numbers.last + 1 RETURNING last`, e.Company).Scan(&e.Number); err != nil {
		return accounting.JournalEntry{}, err
	}
	var postedAt *time.Time
	if e.Status == accounting.EntryStatusPosted {
		postedAt = &e.PostedAt
	}
	_, err := t.q.Exec(ctx, `INSERT INTO journal_entries (id, number, company, module, reference, source_ref, kind, entry_date, memo, status,
posted_by, posted_at, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		e.ID, e.Number, e.Company, e.Module, e.Reference, e.SourceRef, string(e.Kind), e.Date, e.Memo, string(e.Status),
		e.PostedBy, postedAt, e.CreatedAt, e.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == "uq_journal_entries_source" {
			return accounting.JournalEntry{}, fmt.Errorf("%w: %s/%s", accounting.ErrSourceAlreadyPosted, e.Module, e.SourceRef)
		}
		return accounting.JournalEntry{}, err
	}
	for i := range e.Lines {
		l := &e.Lines[i]
		l.EntryID = e.ID
		if err := t.q.QueryRow(ctx, `INSERT INTO journal_lines (entry_id, line_no, account_id, account_number, debit, credit, sub_kind, sub_id, sub_name, memo)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10) RETURNING id`,
			e.ID, l.LineNo, l.AccountID, l.AccountNumber, numeric(l.Debit), numeric(l.Credit),
			string(l.SubAccount.Kind), l.SubAccount.ID, l.SubAccount.Name, l.Memo).Scan(&l.ID); err != nil {
			return accounting.JournalEntry{}, err
		}
	}
	return e, nil
}

func (t *txStore) GetJournalForUpdate(ctx context.Context, company string, id uuid.UUID) (accounting.JournalEntry, error) {
	return getJournal(ctx, t.q, company, id, " FOR UPDATE")
}

func (t *txStore) UpdateJournalStatus(ctx context.Context, e accounting.JournalEntry) error {
	var postedAt *time.Time
	if !e.PostedAt.IsZero() {
		postedAt = &e.PostedAt
	}
	tag, err := t.q.Exec(ctx, `UPDATE journal_entries SET status=$3, posted_by=$4, posted_at=$5, canceled_by=$6, canceled_at=$7,
voided_by=$8, voided_at=$9, void_reason=$10, updated_at=$11 WHERE company=$1 AND id=$2`,
		e.Company, e.ID, string(e.Status), e.PostedBy, postedAt, e.CanceledBy, e.CanceledAt, e.VoidedBy, e.VoidedAt, e.VoidReason, e.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", accounting.ErrJournalNotFound, e.ID)
	}
	return nil
}

func (t *txStore) InsertOutbox(ctx context.Context, task balances.Task) error {
	_, err := t.q.Exec(ctx, `INSERT INTO aggregation_outbox (task_id, company, entry_id, effect, created_at)
VALUES ($1,$2,$3,$4,NOW()) ON CONFLICT (task_id) DO NOTHING`, task.ID(), task.Company, task.EntryID, string(task.Effect))
	return err
}

// ListPendingOutbox returns tasks never handed to the queue, oldest first.
func (s *Store) ListPendingOutbox(ctx context.Context, limit int) ([]balances.Task, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `SELECT company, entry_id, effect FROM aggregation_outbox
WHERE dispatched_at IS NULL AND applied_at IS NULL ORDER BY created_at LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]balances.Task, 0)
	for rows.Next() {
		var task balances.Task
		if err := rows.Scan(&task.Company, &task.EntryID, &task.Effect); err != nil {
			return nil, err
		}
		out = append(out, task)
	}
	return out, rows.Err()
}

// MarkOutboxDispatched records the hand-over of task to the queue.
func (s *Store) MarkOutboxDispatched(ctx context.Context, task balances.Task) error {
	_, err := s.pool.Exec(ctx, `UPDATE aggregation_outbox SET dispatched_at=NOW() WHERE task_id=$1 AND dispatched_at IS NULL`, task.ID())
	return err
}

// MarkOutboxApplied records that the aggregator consumed task.
func (s *Store) MarkOutboxApplied(ctx context.Context, task balances.Task) error {
	_, err := s.pool.Exec(ctx, `UPDATE aggregation_outbox SET applied_at=NOW() WHERE task_id=$1 AND applied_at IS NULL`, task.ID())
	return err
}

// CountPendingOutbox counts the company's tasks not yet applied.
func (s *Store) CountPendingOutbox(ctx context.Context, company string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM aggregation_outbox WHERE company=$1 AND applied_at IS NULL`, company).Scan(&n)
	return n, err
}

func nullDate(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
