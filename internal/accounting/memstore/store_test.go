package memstore_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/memstore"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/subledger"
)

func insert(ctx context.Context, repo accounts.Repository, number string, fail error) error {
	return repo.WithTx(ctx, func(ctx context.Context, tx accounts.TxRepository) error {
		if _, err := tx.InsertAccount(ctx, accounting.Account{
			Company:  "acme",
			Number:   number,
			Name:     "Cash " + number,
			Type:     accounting.AccountTypeAsset,
			IsActive: true,
		}); err != nil {
			return err
		}
		return fail
	})
}

func TestWithTxDiscardsWorkOnError(t *testing.T) {
	ctx := context.Background()
	repo := memstore.New().Accounts()

	boom := errors.New("boom")
	require.ErrorIs(t, insert(ctx, repo, "1100", boom), boom)
	_, err := repo.GetAccountByNumber(ctx, "acme", "1100")
	assert.ErrorIs(t, err, accounting.ErrAccountNotFound)

	require.NoError(t, insert(ctx, repo, "1100", nil))
	acc, err := repo.GetAccountByNumber(ctx, "acme", "1100")
	require.NoError(t, err)
	assert.NotZero(t, acc.ID)
	assert.False(t, acc.CreatedAt.IsZero())

	assert.ErrorIs(t, insert(ctx, repo, "1100", nil), accounting.ErrAccountExists)
}

func TestWithTxHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	repo := memstore.New().Accounts()
	assert.ErrorIs(t, insert(ctx, repo, "1100", nil), context.Canceled)
}

func TestAccountsAreScopedByCompany(t *testing.T) {
	ctx := context.Background()
	repo := memstore.New().Accounts()
	require.NoError(t, insert(ctx, repo, "1100", nil))

	list, err := repo.ListAccounts(ctx, "globex")
	require.NoError(t, err)
	assert.Empty(t, list)
	_, err = repo.GetAccountByNumber(ctx, "globex", "1100")
	assert.ErrorIs(t, err, accounting.ErrAccountNotFound)
}

func TestDirectoryUpsertAndFind(t *testing.T) {
	ctx := context.Background()
	dir := memstore.New().Directory()

	_, err := dir.FindEntity(ctx, "acme", accounting.SubAccountCustomer, "C-1")
	assert.ErrorIs(t, err, subledger.ErrEntityNotFound)

	entity := subledger.Entity{Company: "acme", Kind: accounting.SubAccountCustomer, ID: "C-1", Name: "Initech", IsActive: true}
	require.NoError(t, dir.UpsertEntity(ctx, entity))
	got, err := dir.FindEntity(ctx, "acme", accounting.SubAccountCustomer, "C-1")
	require.NoError(t, err)
	assert.Equal(t, entity, got)

	entity.IsActive = false
	require.NoError(t, dir.UpsertEntity(ctx, entity))
	got, err = dir.FindEntity(ctx, "acme", accounting.SubAccountCustomer, "C-1")
	require.NoError(t, err)
	assert.False(t, got.IsActive)
}
