package accounts_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/memstore"
)

func newRegistry(t *testing.T) *accounts.Service {
	t.Helper()
	return accounts.NewService(memstore.New().Accounts(), nil)
}

func create(t *testing.T, svc *accounts.Service, number string, typ accounting.AccountType, parent string) accounting.Account {
	t.Helper()
	acc, err := svc.Create(context.Background(), accounts.CreateInput{
		Company: "acme", Number: number, Name: "Account " + number, Type: typ, ParentNumber: parent,
	})
	require.NoError(t, err)
	return acc
}

func TestCreateDefaultsAndHierarchy(t *testing.T) {
	ctx := context.Background()
	svc := newRegistry(t)

	root := create(t, svc, "1000", accounting.AccountTypeAsset, "")
	assert.Equal(t, 1, root.Level)
	assert.Equal(t, accounting.NormalDebit, root.NormalBalance)
	assert.Equal(t, accounting.StatementBalanceSheet, root.Statement)
	assert.True(t, root.Postable())

	child := create(t, svc, "1100", accounting.AccountTypeAsset, "1000")
	assert.Equal(t, 2, child.Level)
	require.NotNil(t, child.ParentID)
	assert.Equal(t, root.ID, *child.ParentID)

	root, err := svc.GetByNumber(ctx, "acme", "1000")
	require.NoError(t, err)
	assert.True(t, root.HasChildren)
	assert.False(t, root.Postable())

	revenue := create(t, svc, "4000", accounting.AccountTypeRevenue, "")
	assert.Equal(t, accounting.NormalCredit, revenue.NormalBalance)
	assert.Equal(t, accounting.StatementIncome, revenue.Statement)
}

func TestCreateRejectsDuplicatesAndBadInput(t *testing.T) {
	ctx := context.Background()
	svc := newRegistry(t)
	create(t, svc, "1000", accounting.AccountTypeAsset, "")

	_, err := svc.Create(ctx, accounts.CreateInput{Company: "acme", Number: "1000", Name: "Dup", Type: accounting.AccountTypeAsset})
	assert.ErrorIs(t, err, accounting.ErrAccountExists)

	_, err = svc.Create(ctx, accounts.CreateInput{Company: "acme", Number: "1001", Name: "Bad", Type: "CASH"})
	assert.Error(t, err)

	_, err = svc.Create(ctx, accounts.CreateInput{Number: "1002", Name: "No company", Type: accounting.AccountTypeAsset})
	assert.ErrorIs(t, err, accounting.ErrCompanyRequired)

	_, err = svc.Create(ctx, accounts.CreateInput{Company: "acme", Number: "1003", Name: "Orphan", Type: accounting.AccountTypeAsset, ParentNumber: "9999"})
	assert.ErrorIs(t, err, accounting.ErrAccountNotFound)

	_, err = svc.Create(ctx, accounts.CreateInput{Company: "beta", Number: "1000", Name: "Other tenant", Type: accounting.AccountTypeAsset})
	assert.NoError(t, err)
}

func TestMoveRelevelsAndRefreshesParents(t *testing.T) {
	ctx := context.Background()
	svc := newRegistry(t)
	create(t, svc, "1000", accounting.AccountTypeAsset, "")
	create(t, svc, "1100", accounting.AccountTypeAsset, "1000")
	create(t, svc, "1110", accounting.AccountTypeAsset, "1100")
	create(t, svc, "2000", accounting.AccountTypeAsset, "")

	moved, err := svc.Move(ctx, "acme", "1100", "2000")
	require.NoError(t, err)
	assert.Equal(t, 2, moved.Level)

	grandchild, err := svc.GetByNumber(ctx, "acme", "1110")
	require.NoError(t, err)
	assert.Equal(t, 3, grandchild.Level)

	oldParent, err := svc.GetByNumber(ctx, "acme", "1000")
	require.NoError(t, err)
	assert.False(t, oldParent.HasChildren)

	newParent, err := svc.GetByNumber(ctx, "acme", "2000")
	require.NoError(t, err)
	assert.True(t, newParent.HasChildren)

	root, err := svc.Move(ctx, "acme", "1100", "")
	require.NoError(t, err)
	assert.Nil(t, root.ParentID)
	assert.Equal(t, 1, root.Level)
	grandchild, err = svc.GetByNumber(ctx, "acme", "1110")
	require.NoError(t, err)
	assert.Equal(t, 2, grandchild.Level)
}

func TestMoveRejectsCycles(t *testing.T) {
	ctx := context.Background()
	svc := newRegistry(t)
	create(t, svc, "1000", accounting.AccountTypeAsset, "")
	create(t, svc, "1100", accounting.AccountTypeAsset, "1000")
	create(t, svc, "1110", accounting.AccountTypeAsset, "1100")

	_, err := svc.Move(ctx, "acme", "1000", "1110")
	assert.ErrorIs(t, err, accounting.ErrAccountCycle)
	_, err = svc.Move(ctx, "acme", "1000", "1000")
	assert.ErrorIs(t, err, accounting.ErrAccountCycle)

	unchanged, err := svc.GetByNumber(ctx, "acme", "1000")
	require.NoError(t, err)
	assert.Nil(t, unchanged.ParentID)
}

func TestDeactivateBlocksPostings(t *testing.T) {
	ctx := context.Background()
	svc := newRegistry(t)
	create(t, svc, "5000", accounting.AccountTypeExpense, "")

	require.NoError(t, svc.Deactivate(ctx, "acme", "5000"))
	acc, err := svc.GetByNumber(ctx, "acme", "5000")
	require.NoError(t, err)
	assert.False(t, acc.IsActive)
	assert.False(t, acc.Postable())

	assert.ErrorIs(t, svc.Deactivate(ctx, "acme", "9999"), accounting.ErrAccountNotFound)
}

func TestListIsOrderedAndScoped(t *testing.T) {
	ctx := context.Background()
	svc := newRegistry(t)
	create(t, svc, "4000", accounting.AccountTypeRevenue, "")
	create(t, svc, "1000", accounting.AccountTypeAsset, "")

	list, err := svc.List(ctx, "acme")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "1000", list[0].Number)
	assert.Equal(t, "4000", list[1].Number)

	_, err = svc.List(ctx, "")
	assert.ErrorIs(t, err, accounting.ErrCompanyRequired)
}
