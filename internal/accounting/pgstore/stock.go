package pgstore

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/odyssey-ledger/internal/amortization"
	"github.com/odyssey-erp/odyssey-ledger/internal/inventory"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
)

const productColumns = `company, product_id, quantity::text, average_cost::text, value::text, locked_through, updated_at`

func scanProduct(row pgx.Row) (inventory.Balance, error) {
	var (
		b             inventory.Balance
		qty, avg, val string
	)
	if err := row.Scan(&b.Company, &b.ProductID, &qty, &avg, &val, &b.LockedThrough, &b.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return inventory.Balance{}, inventory.ErrNotFound
		}
		return inventory.Balance{}, err
	}
	var n numerics
	b.Position = inventory.Position{Quantity: n.dec(qty), AverageCost: n.dec(avg), Value: n.dec(val)}
	return b, n.err
}

const lineColumns = `id, company, product_id, movement_date, direction, source_ref, quantity::text, unit_cost::text,
balance_qty::text, average_cost::text, balance_value::text, locked, created_at`

func collectLines(rows pgx.Rows, err error) ([]inventory.LedgerLine, error) {
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]inventory.LedgerLine, 0)
	for rows.Next() {
		l, err := scanLine(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func scanLine(row pgx.Row) (inventory.LedgerLine, error) {
	var (
		l                              inventory.LedgerLine
		qty, cost, balQty, avg, balVal string
	)
	if err := row.Scan(&l.ID, &l.Company, &l.ProductID, &l.Date, &l.Direction, &l.SourceRef, &qty, &cost,
		&balQty, &avg, &balVal, &l.Locked, &l.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return inventory.LedgerLine{}, inventory.ErrNotFound
		}
		return inventory.LedgerLine{}, err
	}
	var n numerics
	l.Quantity, l.UnitCost = n.dec(qty), n.dec(cost)
	l.BalanceQty, l.AverageCost, l.BalanceValue = n.dec(balQty), n.dec(avg), n.dec(balVal)
	return l, n.err
}

// GetBalance returns the position of a product.
func (s *Store) GetBalance(ctx context.Context, company, product string) (inventory.Balance, error) {
	return scanProduct(s.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM inventory_balances WHERE company=$1 AND product_id=$2`, company, product))
}

// ListLedger returns the stock card in posting order.
func (s *Store) ListLedger(ctx context.Context, f inventory.LedgerFilter) ([]inventory.LedgerLine, error) {
	return collectLines(s.pool.Query(ctx, `SELECT `+lineColumns+` FROM inventory_ledger
WHERE company=$1 AND product_id=$2 AND movement_date BETWEEN COALESCE($3, '-infinity'::date) AND COALESCE($4, 'infinity'::date)
ORDER BY movement_date, id`, f.Company, f.ProductID, nullDate(f.From), nullDate(f.To)))
}

// ListLockedEntries returns the locked queue of a product.
func (s *Store) ListLockedEntries(ctx context.Context, company, product string) ([]inventory.LockedEntry, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, kind, line_id, locked_date, source_ref, quantity::text, price::text
FROM inventory_locked_entries WHERE company=$1 AND product_id=$2 ORDER BY id`, company, product)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]inventory.LockedEntry, 0)
	for rows.Next() {
		e := inventory.LockedEntry{Company: company, ProductID: product}
		var qty, price string
		if err := rows.Scan(&e.ID, &e.Kind, &e.LineID, &e.LockedDate, &e.SourceRef, &qty, &price); err != nil {
			return nil, err
		}
		var n numerics
		e.Quantity, e.Price = n.dec(qty), n.dec(price)
		if n.err != nil {
			return nil, n.err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (t *txStore) LockProduct(ctx context.Context, company, product string) (inventory.Balance, error) {
	if _, err := t.q.Exec(ctx, `INSERT INTO inventory_balances (company, product_id, updated_at) VALUES ($1,$2,NOW())
ON CONFLICT (company, product_id) DO NOTHING`, company, product); err != nil {
		return inventory.Balance{}, err
	}
	return scanProduct(t.q.QueryRow(ctx, `SELECT `+productColumns+` FROM inventory_balances
WHERE company=$1 AND product_id=$2 FOR UPDATE`, company, product))
}

func (t *txStore) SaveBalance(ctx context.Context, b inventory.Balance) error {
	_, err := t.q.Exec(ctx, `UPDATE inventory_balances SET quantity=$3, average_cost=$4, value=$5, locked_through=$6, updated_at=$7
WHERE company=$1 AND product_id=$2`, b.Company, b.ProductID, numeric(b.Quantity), numeric(b.AverageCost), numeric(b.Value),
		b.LockedThrough, b.UpdatedAt)
	return err
}

func (t *txStore) LastLineAtOrBefore(ctx context.Context, company, product string, date time.Time) (inventory.LedgerLine, error) {
	return scanLine(t.q.QueryRow(ctx, `SELECT `+lineColumns+` FROM inventory_ledger
WHERE company=$1 AND product_id=$2 AND movement_date <= $3 ORDER BY movement_date DESC, id DESC LIMIT 1`, company, product, date))
}

func (t *txStore) ListLinesAfter(ctx context.Context, company, product string, date time.Time) ([]inventory.LedgerLine, error) {
	return collectLines(t.q.Query(ctx, `SELECT `+lineColumns+` FROM inventory_ledger
WHERE company=$1 AND product_id=$2 AND movement_date > $3 ORDER BY movement_date, id`, company, product, date))
}

func (t *txStore) InsertLine(ctx context.Context, l inventory.LedgerLine) (inventory.LedgerLine, error) {
	err := t.q.QueryRow(ctx, `INSERT INTO inventory_ledger (company, product_id, movement_date, direction, source_ref, quantity, unit_cost,
balance_qty, average_cost, balance_value, locked, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12) RETURNING id`,
		l.Company, l.ProductID, l.Date, string(l.Direction), l.SourceRef, numeric(l.Quantity), numeric(l.UnitCost),
		numeric(l.BalanceQty), numeric(l.AverageCost), numeric(l.BalanceValue), l.Locked, l.CreatedAt).Scan(&l.ID)
	return l, err
}

func (t *txStore) UpdateLine(ctx context.Context, l inventory.LedgerLine) error {
	_, err := t.q.Exec(ctx, `UPDATE inventory_ledger SET unit_cost=$2, balance_qty=$3, average_cost=$4, balance_value=$5 WHERE id=$1`,
		l.ID, numeric(l.UnitCost), numeric(l.BalanceQty), numeric(l.AverageCost), numeric(l.BalanceValue))
	return err
}

func (t *txStore) ListUnlockedThrough(ctx context.Context, company, product string, date time.Time) ([]inventory.LedgerLine, error) {
	return collectLines(t.q.Query(ctx, `SELECT `+lineColumns+` FROM inventory_ledger
WHERE company=$1 AND product_id=$2 AND NOT locked AND movement_date <= $3 ORDER BY movement_date, id`, company, product, date))
}

func (t *txStore) MarkLocked(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := t.q.Exec(ctx, `UPDATE inventory_ledger SET locked=TRUE WHERE id = ANY($1)`, ids)
	return err
}

func (t *txStore) InsertLockedEntry(ctx context.Context, e inventory.LockedEntry) error {
	_, err := t.q.Exec(ctx, `INSERT INTO inventory_locked_entries (company, product_id, kind, line_id, locked_date, source_ref, quantity, price)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`, e.Company, e.ProductID, string(e.Kind), e.LineID, e.LockedDate, e.SourceRef,
		numeric(e.Quantity), numeric(e.Price))
	return err
}

const settingColumns = `id, company, source_entry_id, frequency, start_date, end_date, occurrences_total, occurrences_remaining,
amount::text, total_amount::text, posted_amount::text, prepaid_account, expense_account, last_run_date, next_run_date,
is_active, memo, created_by, created_at, updated_at`

func scanSetting(row pgx.Row) (amortization.Setting, error) {
	var (
		s                     amortization.Setting
		amount, total, posted string
	)
	if err := row.Scan(&s.ID, &s.Company, &s.SourceEntryID, &s.Frequency, &s.StartDate, &s.EndDate, &s.OccurrencesTotal,
		&s.OccurrencesRemaining, &amount, &total, &posted, &s.PrepaidAccount, &s.ExpenseAccount, &s.LastRunDate,
		&s.NextRunDate, &s.IsActive, &s.Memo, &s.CreatedBy, &s.CreatedAt, &s.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return amortization.Setting{}, amortization.ErrSettingNotFound
		}
		return amortization.Setting{}, err
	}
	var n numerics
	s.Amount, s.TotalAmount, s.PostedAmount = n.dec(amount), n.dec(total), n.dec(posted)
	return s, n.err
}

func collectSettings(rows pgx.Rows, err error) ([]amortization.Setting, error) {
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]amortization.Setting, 0)
	for rows.Next() {
		s, err := scanSetting(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// InsertSetting stores a new schedule.
func (s *Store) InsertSetting(ctx context.Context, in amortization.Setting) (amortization.Setting, error) {
	err := s.pool.QueryRow(ctx, `INSERT INTO amortization_settings (company, source_entry_id, frequency, start_date, end_date,
occurrences_total, occurrences_remaining, amount, total_amount, posted_amount, prepaid_account, expense_account,
last_run_date, next_run_date, is_active, memo, created_by, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,NOW(),NOW()) RETURNING id, created_at, updated_at`,
		in.Company, in.SourceEntryID, string(in.Frequency), in.StartDate, in.EndDate, in.OccurrencesTotal, in.OccurrencesRemaining,
		numeric(in.Amount), numeric(in.TotalAmount), numeric(in.PostedAmount), in.PrepaidAccount, in.ExpenseAccount,
		in.LastRunDate, in.NextRunDate, in.IsActive, in.Memo, in.CreatedBy).Scan(&in.ID, &in.CreatedAt, &in.UpdatedAt)
	if db.IsUniqueViolation(err) {
		return amortization.Setting{}, amortization.ErrScheduleExists
	}
	return in, err
}

// GetSetting returns a schedule by id.
func (s *Store) GetSetting(ctx context.Context, company string, id int64) (amortization.Setting, error) {
	return scanSetting(s.pool.QueryRow(ctx, `SELECT `+settingColumns+` FROM amortization_settings WHERE company=$1 AND id=$2`, company, id))
}

// FindBySource returns the schedule created from a source entry.
func (s *Store) FindBySource(ctx context.Context, company string, entryID uuid.UUID) (amortization.Setting, error) {
	return scanSetting(s.pool.QueryRow(ctx, `SELECT `+settingColumns+` FROM amortization_settings
WHERE company=$1 AND source_entry_id=$2`, company, entryID))
}

// ListSettings returns the schedules of a company.
func (s *Store) ListSettings(ctx context.Context, company string, activeOnly bool) ([]amortization.Setting, error) {
	return collectSettings(s.pool.Query(ctx, `SELECT `+settingColumns+` FROM amortization_settings
WHERE company=$1 AND (NOT $2 OR is_active) ORDER BY id`, company, activeOnly))
}

// ListDue returns the company schedules due on asOf.
func (s *Store) ListDue(ctx context.Context, company string, asOf time.Time) ([]amortization.Setting, error) {
	return collectSettings(s.pool.Query(ctx, `SELECT `+settingColumns+` FROM amortization_settings
WHERE company=$1 AND is_active AND occurrences_remaining > 0 AND next_run_date <= $2 ORDER BY id`, company, asOf))
}

// ListCompaniesWithDue returns the companies holding at least one due schedule.
func (s *Store) ListCompaniesWithDue(ctx context.Context, asOf time.Time) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT DISTINCT company FROM amortization_settings
WHERE is_active AND occurrences_remaining > 0 AND next_run_date <= $1 ORDER BY company`, asOf)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]string, 0)
	for rows.Next() {
		var company string
		if err := rows.Scan(&company); err != nil {
			return nil, err
		}
		out = append(out, company)
	}
	return out, rows.Err()
}

func (t *txStore) GetSettingForUpdate(ctx context.Context, company string, id int64) (amortization.Setting, error) {
	return scanSetting(t.q.QueryRow(ctx, `SELECT `+settingColumns+` FROM amortization_settings
WHERE company=$1 AND id=$2 FOR UPDATE`, company, id))
}

func (t *txStore) UpdateSetting(ctx context.Context, s amortization.Setting) error {
	tag, err := t.q.Exec(ctx, `UPDATE amortization_settings SET occurrences_remaining=$3, posted_amount=$4, last_run_date=$5,
next_run_date=$6, is_active=$7, memo=$8, updated_at=NOW() WHERE company=$1 AND id=$2`,
		s.Company, s.ID, s.OccurrencesRemaining, numeric(s.PostedAmount), s.LastRunDate, s.NextRunDate, s.IsActive, s.Memo)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return amortization.ErrSettingNotFound
	}
	return nil
}
