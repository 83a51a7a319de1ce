package pgstore

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/balances"
)

const figureColumns = `beginning::text, debit_total::text, credit_total::text, ending::text,
adjustment_debit::text, adjustment_credit::text, adjusted_ending::text`

const periodColumns = `company, account_id, fiscal_year, period, account_number, normal_balance, period_start, period_end, ` +
	figureColumns + `, is_closed, closed_at, version, updated_at`

const subColumns = `company, account_id, fiscal_year, period, sub_kind, sub_id, sub_name, account_number, normal_balance,
period_start, period_end, ` + figureColumns + `, is_closed, closed_at, version, updated_at`

type figureText struct {
	beginning, debit, credit, ending, adjDebit, adjCredit string
	adjusted                                              *string
}

func (f *figureText) targets() []any {
	return []any{&f.beginning, &f.debit, &f.credit, &f.ending, &f.adjDebit, &f.adjCredit, &f.adjusted}
}

func (f *figureText) figures() (balances.Figures, error) {
	var n numerics
	out := balances.Figures{
		Beginning:        n.dec(f.beginning),
		DebitTotal:       n.dec(f.debit),
		CreditTotal:      n.dec(f.credit),
		Ending:           n.dec(f.ending),
		AdjustmentDebit:  n.dec(f.adjDebit),
		AdjustmentCredit: n.dec(f.adjCredit),
		AdjustedEnding:   n.nullDec(f.adjusted),
	}
	return out, n.err
}

func scanPeriodBalance(row pgx.Row) (balances.PeriodBalance, error) {
	var (
		b  balances.PeriodBalance
		ft figureText
	)
	targets := []any{&b.Company, &b.AccountID, &b.Period.Year, &b.Period.Period, &b.AccountNumber, &b.NormalBalance, &b.PeriodStart, &b.PeriodEnd}
	targets = append(targets, ft.targets()...)
	targets = append(targets, &b.IsClosed, &b.ClosedAt, &b.Version, &b.UpdatedAt)
	if err := row.Scan(targets...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return balances.PeriodBalance{}, balances.ErrBalanceNotFound
		}
		return balances.PeriodBalance{}, err
	}
	figures, err := ft.figures()
	b.Figures = figures
	return b, err
}

func scanSubBalance(row pgx.Row) (balances.SubAccountBalance, error) {
	var (
		b  balances.SubAccountBalance
		ft figureText
	)
	targets := []any{&b.Company, &b.AccountID, &b.Period.Year, &b.Period.Period, &b.Kind, &b.ID, &b.SubAccountName,
		&b.AccountNumber, &b.NormalBalance, &b.PeriodStart, &b.PeriodEnd}
	targets = append(targets, ft.targets()...)
	targets = append(targets, &b.IsClosed, &b.ClosedAt, &b.Version, &b.UpdatedAt)
	if err := row.Scan(targets...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return balances.SubAccountBalance{}, balances.ErrBalanceNotFound
		}
		return balances.SubAccountBalance{}, err
	}
	figures, err := ft.figures()
	b.Figures = figures
	return b, err
}

func collectPeriodBalances(rows pgx.Rows, err error) ([]balances.PeriodBalance, error) {
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]balances.PeriodBalance, 0)
	for rows.Next() {
		b, err := scanPeriodBalance(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func collectSubBalances(rows pgx.Rows, err error) ([]balances.SubAccountBalance, error) {
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]balances.SubAccountBalance, 0)
	for rows.Next() {
		b, err := scanSubBalance(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// atOrBeforeClause bounds rows by the period bound to $3 and $4.
const atOrBeforeClause = `(fiscal_year, period) <= ($3, $4)`

// LatestPeriodBalance returns the account row of the latest period at or before limit.
func (s *Store) LatestPeriodBalance(ctx context.Context, company string, accountID int64, limit accounting.FiscalPeriod) (balances.PeriodBalance, error) {
	return scanPeriodBalance(s.pool.QueryRow(ctx, `SELECT `+periodColumns+` FROM gl_period_balances
WHERE company=$1 AND account_id=$2 AND `+atOrBeforeClause+` ORDER BY fiscal_year DESC, period DESC LIMIT 1`,
		company, accountID, limit.Year, limit.Period))
}

// ListLatestPeriodBalances returns one row per account, ordered by account number.
func (s *Store) ListLatestPeriodBalances(ctx context.Context, company string, limit accounting.FiscalPeriod) ([]balances.PeriodBalance, error) {
	return collectPeriodBalances(s.pool.Query(ctx, `SELECT `+periodColumns+` FROM (
SELECT DISTINCT ON (account_id) * FROM gl_period_balances
WHERE company=$1 AND (fiscal_year, period) <= ($2, $3)
ORDER BY account_id, fiscal_year DESC, period DESC) latest ORDER BY account_number`,
		company, limit.Year, limit.Period))
}

// LatestSubAccountBalance returns the sub-account row of the latest period at or before limit.
func (s *Store) LatestSubAccountBalance(ctx context.Context, company string, accountID int64, kind accounting.SubAccountKind, id string, limit accounting.FiscalPeriod) (balances.SubAccountBalance, error) {
	return scanSubBalance(s.pool.QueryRow(ctx, `SELECT `+subColumns+` FROM gl_sub_account_balances
WHERE company=$1 AND account_id=$2 AND `+atOrBeforeClause+` AND sub_kind=$5 AND sub_id=$6
ORDER BY fiscal_year DESC, period DESC LIMIT 1`,
		company, accountID, limit.Year, limit.Period, string(kind), id))
}

// ListLatestSubAccountBalances returns one row per sub-account of the account.
func (s *Store) ListLatestSubAccountBalances(ctx context.Context, company string, accountID int64, limit accounting.FiscalPeriod) ([]balances.SubAccountBalance, error) {
	return collectSubBalances(s.pool.Query(ctx, `SELECT `+subColumns+` FROM (
SELECT DISTINCT ON (sub_kind, sub_id) * FROM gl_sub_account_balances
WHERE company=$1 AND account_id=$2 AND `+atOrBeforeClause+`
ORDER BY sub_kind, sub_id, fiscal_year DESC, period DESC) latest ORDER BY sub_kind, sub_id`,
		company, accountID, limit.Year, limit.Period))
}

func (t *txStore) MarkApplied(ctx context.Context, key balances.AppliedKey) (bool, error) {
	tag, err := t.q.Exec(ctx, `INSERT INTO aggregation_applied (entry_id, effect, ledger, account_id, fiscal_year, period, sub_key)
VALUES ($1,$2,$3,$4,$5,$6,$7) ON CONFLICT DO NOTHING`,
		key.EntryID, string(key.Effect), string(key.Ledger), key.AccountID, key.Period.Year, key.Period.Period, key.SubKey)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (t *txStore) HasApplied(ctx context.Context, entryID uuid.UUID, effect balances.Effect) (bool, error) {
	var exists bool
	err := t.q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM aggregation_applied WHERE entry_id=$1 AND effect=$2)`,
		entryID, string(effect)).Scan(&exists)
	return exists, err
}

func (t *txStore) GetPeriodBalanceForUpdate(ctx context.Context, key balances.Key) (balances.PeriodBalance, error) {
	return scanPeriodBalance(t.q.QueryRow(ctx, `SELECT `+periodColumns+` FROM gl_period_balances
WHERE company=$1 AND account_id=$2 AND fiscal_year=$3 AND period=$4 FOR UPDATE`,
		key.Company, key.AccountID, key.Period.Year, key.Period.Period))
}

func (t *txStore) LatestPeriodBalanceBefore(ctx context.Context, company string, accountID int64, p accounting.FiscalPeriod) (balances.PeriodBalance, error) {
	return scanPeriodBalance(t.q.QueryRow(ctx, `SELECT `+periodColumns+` FROM gl_period_balances
WHERE company=$1 AND account_id=$2 AND (fiscal_year, period) < ($3, $4) ORDER BY fiscal_year DESC, period DESC LIMIT 1 FOR SHARE`,
		company, accountID, p.Year, p.Period))
}

func (t *txStore) ListPeriodBalancesAfterForUpdate(ctx context.Context, company string, accountID int64, after accounting.FiscalPeriod) ([]balances.PeriodBalance, error) {
	return collectPeriodBalances(t.q.Query(ctx, `SELECT `+periodColumns+` FROM gl_period_balances
WHERE company=$1 AND account_id=$2 AND (fiscal_year, period) > ($3, $4) ORDER BY fiscal_year, period FOR UPDATE`,
		company, accountID, after.Year, after.Period))
}

func (t *txStore) SavePeriodBalance(ctx context.Context, b balances.PeriodBalance) (balances.PeriodBalance, error) {
	args := []any{b.Company, b.AccountID, b.Period.Year, b.Period.Period,
		numeric(b.Beginning), numeric(b.DebitTotal), numeric(b.CreditTotal), numeric(b.Ending),
		numeric(b.AdjustmentDebit), numeric(b.AdjustmentCredit), nullNumeric(b.AdjustedEnding), b.IsClosed, b.ClosedAt}
	var err error
	if b.Version == 0 {
		err = t.q.QueryRow(ctx, `INSERT INTO gl_period_balances (company, account_id, fiscal_year, period,
beginning, debit_total, credit_total, ending, adjustment_debit, adjustment_credit, adjusted_ending, is_closed, closed_at,
account_number, normal_balance, period_start, period_end, version, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,1,NOW())
ON CONFLICT DO NOTHING RETURNING version, updated_at`,
			append(args, b.AccountNumber, string(b.NormalBalance), b.PeriodStart, b.PeriodEnd)...).Scan(&b.Version, &b.UpdatedAt)
	} else {
		err = t.q.QueryRow(ctx, `UPDATE gl_period_balances SET beginning=$5, debit_total=$6, credit_total=$7, ending=$8,
adjustment_debit=$9, adjustment_credit=$10, adjusted_ending=$11, is_closed=$12, closed_at=$13, version=version+1, updated_at=NOW()
WHERE company=$1 AND account_id=$2 AND fiscal_year=$3 AND period=$4 AND version=$14
RETURNING version, updated_at`, append(args, b.Version)...).Scan(&b.Version, &b.UpdatedAt)
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return balances.PeriodBalance{}, balances.ErrVersionConflict
	}
	return b, err
}

func subArgs(key balances.SubKey) []any {
	return []any{key.Company, key.AccountID, key.Period.Year, key.Period.Period, string(key.Kind), key.ID}
}

func (t *txStore) GetSubAccountBalanceForUpdate(ctx context.Context, key balances.SubKey) (balances.SubAccountBalance, error) {
	return scanSubBalance(t.q.QueryRow(ctx, `SELECT `+subColumns+` FROM gl_sub_account_balances
WHERE company=$1 AND account_id=$2 AND fiscal_year=$3 AND period=$4 AND sub_kind=$5 AND sub_id=$6 FOR UPDATE`, subArgs(key)...))
}

func (t *txStore) LatestSubAccountBalanceBefore(ctx context.Context, key balances.SubKey) (balances.SubAccountBalance, error) {
	return scanSubBalance(t.q.QueryRow(ctx, `SELECT `+subColumns+` FROM gl_sub_account_balances
WHERE company=$1 AND account_id=$2 AND (fiscal_year, period) < ($3, $4) AND sub_kind=$5 AND sub_id=$6
ORDER BY fiscal_year DESC, period DESC LIMIT 1 FOR SHARE`, subArgs(key)...))
}

func (t *txStore) ListSubAccountBalancesAfterForUpdate(ctx context.Context, key balances.SubKey) ([]balances.SubAccountBalance, error) {
	return collectSubBalances(t.q.Query(ctx, `SELECT `+subColumns+` FROM gl_sub_account_balances
WHERE company=$1 AND account_id=$2 AND (fiscal_year, period) > ($3, $4) AND sub_kind=$5 AND sub_id=$6
ORDER BY fiscal_year, period FOR UPDATE`, subArgs(key)...))
}

func (t *txStore) SaveSubAccountBalance(ctx context.Context, b balances.SubAccountBalance) (balances.SubAccountBalance, error) {
	args := append(subArgs(b.SubKey),
		numeric(b.Beginning), numeric(b.DebitTotal), numeric(b.CreditTotal), numeric(b.Ending),
		numeric(b.AdjustmentDebit), numeric(b.AdjustmentCredit), nullNumeric(b.AdjustedEnding), b.IsClosed, b.ClosedAt, b.SubAccountName)
	var err error
	if b.Version == 0 {
		err = t.q.QueryRow(ctx, `INSERT INTO gl_sub_account_balances (company, account_id, fiscal_year, period, sub_kind, sub_id,
beginning, debit_total, credit_total, ending, adjustment_debit, adjustment_credit, adjusted_ending, is_closed, closed_at, sub_name,
account_number, normal_balance, period_start, period_end, version, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,1,NOW())
ON CONFLICT DO NOTHING RETURNING version, updated_at`,
			append(args, b.AccountNumber, string(b.NormalBalance), b.PeriodStart, b.PeriodEnd)...).Scan(&b.Version, &b.UpdatedAt)
	} else {
		err = t.q.QueryRow(ctx, `UPDATE gl_sub_account_balances SET beginning=$7, debit_total=$8, credit_total=$9, ending=$10,
adjustment_debit=$11, adjustment_credit=$12, adjusted_ending=$13, is_closed=$14, closed_at=$15, sub_name=$16,
version=version+1, updated_at=NOW()
WHERE company=$1 AND account_id=$2 AND fiscal_year=$3 AND period=$4 AND sub_kind=$5 AND sub_id=$6 AND version=$17
RETURNING version, updated_at`, append(args, b.Version)...).Scan(&b.Version, &b.UpdatedAt)
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return balances.SubAccountBalance{}, balances.ErrVersionConflict
	}
	return b, err
}

func (t *txStore) SetPeriodClosed(ctx context.Context, company string, period accounting.FiscalPeriod, closed bool, at *time.Time) error {
	for _, table := range []string{"gl_period_balances", "gl_sub_account_balances"} {
		if _, err := t.q.Exec(ctx, `UPDATE `+table+` SET is_closed=$4, closed_at=$5, version=version+1, updated_at=NOW()
WHERE company=$1 AND fiscal_year=$2 AND period=$3`, company, period.Year, period.Period, closed, at); err != nil {
			return err
		}
	}
	return nil
}
