package memstore

import (
	"context"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/balances"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/subledger"
	"github.com/odyssey-erp/odyssey-ledger/internal/amortization"
	"github.com/odyssey-erp/odyssey-ledger/internal/inventory"
)

type accountsRepo struct{ *Store }

func (r accountsRepo) WithTx(ctx context.Context, fn func(context.Context, accounts.TxRepository) error) error {
	return r.withTx(ctx, func(t *tx) error { return fn(ctx, t) })
}

type periodsRepo struct{ *Store }

func (r periodsRepo) WithTx(ctx context.Context, fn func(context.Context, periods.TxRepository) error) error {
	return r.withTx(ctx, func(t *tx) error { return fn(ctx, t) })
}

type balancesRepo struct{ *Store }

func (r balancesRepo) WithTx(ctx context.Context, fn func(context.Context, balances.TxRepository) error) error {
	return r.withTx(ctx, func(t *tx) error { return fn(ctx, t) })
}

type journalsRepo struct{ *Store }

func (r journalsRepo) WithTx(ctx context.Context, fn func(context.Context, journals.TxRepository) error) error {
	return r.withTx(ctx, func(t *tx) error { return fn(ctx, t) })
}

type inventoryRepo struct{ *Store }

func (r inventoryRepo) WithTx(ctx context.Context, fn func(context.Context, inventory.TxRepository) error) error {
	return r.withTx(ctx, func(t *tx) error { return fn(ctx, t) })
}

type amortizationRepo struct{ *Store }

func (r amortizationRepo) WithTx(ctx context.Context, fn func(context.Context, amortization.TxRepository) error) error {
	return r.withTx(ctx, func(t *tx) error { return fn(ctx, t) })
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
	_ accounts.TxRepository     = (*tx)(nil)
	_ balances.TxRepository     = (*tx)(nil)
	_ periods.TxRepository      = (*tx)(nil)
	_ journals.TxRepository     = (*tx)(nil)
	_ inventory.TxRepository    = (*tx)(nil)
	_ amortization.TxRepository = (*tx)(nil)
)
