// Package pgstore implements the ledger repository ports on PostgreSQL.
package pgstore

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/balances"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/subledger"
	"github.com/odyssey-erp/odyssey-ledger/internal/amortization"
	"github.com/odyssey-erp/odyssey-ledger/internal/inventory"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

//go:embed migrations/*.sql
var migrations embed.FS

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store persists the ledger in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// New constructs Store.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Migrate applies the embedded schema files in name order.
func (s *Store) Migrate(ctx context.Context) error {
	names, err := fs.Glob(migrations, "migrations/*.sql")
	if err != nil {
		return err
	}
	sort.Strings(names)
	for _, name := range names {
		script, err := migrations.ReadFile(name)
		if err != nil {
			return err
		}
		if _, err := s.pool.Exec(ctx, string(script)); err != nil {
			return fmt.Errorf("pgstore: migrate %s: %w", name, err)
		}
	}
	return nil
}

// withTx runs fn in a ReadCommitted transaction; writers serialise through
// advisory and row locks.
func (s *Store) withTx(ctx context.Context, fn func(*txStore) error) error {
	if s == nil || s.pool == nil {
		return errors.New("pgstore: store not initialised")
	}
	return db.WithLockingTx(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(&txStore{q: tx})
	})
}

// txStore implements the transactional ports of every package.
type txStore struct {
	q querier
}

type accountsRepo struct{ *Store }

func (r accountsRepo) WithTx(ctx context.Context, fn func(context.Context, accounts.TxRepository) error) error {
	return r.withTx(ctx, func(t *txStore) error { return fn(ctx, t) })
}

type periodsRepo struct{ *Store }

func (r periodsRepo) WithTx(ctx context.Context, fn func(context.Context, periods.TxRepository) error) error {
	return r.withTx(ctx, func(t *txStore) error { return fn(ctx, t) })
}

type balancesRepo struct{ *Store }

func (r balancesRepo) WithTx(ctx context.Context, fn func(context.Context, balances.TxRepository) error) error {
	return r.withTx(ctx, func(t *txStore) error { return fn(ctx, t) })
}

type journalsRepo struct{ *Store }

func (r journalsRepo) WithTx(ctx context.Context, fn func(context.Context, journals.TxRepository) error) error {
	return r.withTx(ctx, func(t *txStore) error { return fn(ctx, t) })
}

type inventoryRepo struct{ *Store }

func (r inventoryRepo) WithTx(ctx context.Context, fn func(context.Context, inventory.TxRepository) error) error {
	return r.withTx(ctx, func(t *txStore) error { return fn(ctx, t) })
}

type amortizationRepo struct{ *Store }

func (r amortizationRepo) WithTx(ctx context.Context, fn func(context.Context, amortization.TxRepository) error) error {
	return r.withTx(ctx, func(t *txStore) error { return fn(ctx, t) })
}

// Accounts returns the chart of accounts repository.
func (s *Store) Accounts() accounts.Repository { return accountsRepo{s} }

// Periods returns the period lock repository.
func (s *Store) Periods() periods.Repository { return periodsRepo{s} }

// Balances returns the aggregator repository.
func (s *Store) Balances() balances.Repository { return balancesRepo{s} }

// Journals returns the posting repository.
func (s *Store) Journals() journals.Repository { return journalsRepo{s} }

// Directory returns the sub-ledger entity directory.
func (s *Store) Directory() subledger.Directory { return s }

// Inventory returns the costing repository.
func (s *Store) Inventory() inventory.Repository { return inventoryRepo{s} }

// Amortization returns the schedule repository.
func (s *Store) Amortization() amortization.Repository { return amortizationRepo{s} }

var (
	_ accounts.TxRepository     = (*txStore)(nil)
	_ balances.TxRepository     = (*txStore)(nil)
	_ periods.TxRepository      = (*txStore)(nil)
	_ journals.TxRepository     = (*txStore)(nil)
	_ inventory.TxRepository    = (*txStore)(nil)
	_ amortization.TxRepository = (*txStore)(nil)
)

// numerics collects the first parse failure of a row's NUMERIC columns,
// which are selected as text to keep their exact scale.
type numerics struct {
	err error
}

func (n *numerics) dec(raw string) decimal.Decimal {
	d, err := decimal.NewFromString(raw)
	if err != nil && n.err == nil {
		n.err = fmt.Errorf("pgstore: numeric %q: %w", raw, err)
	}
	return d
}

func (n *numerics) nullDec(raw *string) decimal.NullDecimal {
	if raw == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(n.dec(*raw))
}

func numeric(d decimal.Decimal) string {
	return shared.NumericString(d)
}

func nullNumeric(d decimal.NullDecimal) any {
	if !d.Valid {
		return nil
	}
	return numeric(d.Decimal)
}

// advisoryKey names the advisory lock guarding a posting gate.
func advisoryKey(key periods.Key) string {
	return "ledger-gate:" + key.String()
}
