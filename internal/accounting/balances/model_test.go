package balances

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func TestFiguresPostAndShift(t *testing.T) {
	f := zeroFigures()
	f.Beginning = d("100")
	f.Post(accounting.NormalDebit, d("40"), d("10"), false)
	assert.True(t, f.Ending.Equal(d("130")))
	assert.False(t, f.AdjustedEnding.Valid)
	assert.True(t, f.Effective().Equal(d("130")))

	f.Post(accounting.NormalDebit, decimal.Zero, d("5"), true)
	assert.True(t, f.Ending.Equal(d("130")), "adjustments leave the original ending alone")
	require.True(t, f.AdjustedEnding.Valid)
	assert.True(t, f.Effective().Equal(d("125")))

	f.Shift(accounting.NormalDebit, d("-20"))
	assert.True(t, f.Beginning.Equal(d("80")))
	assert.True(t, f.Ending.Equal(d("110")))
	assert.True(t, f.Effective().Equal(d("105")))
	assert.True(t, f.Consistent(accounting.NormalDebit))

	f.Ending = d("1")
	assert.False(t, f.Consistent(accounting.NormalDebit))
}

func TestFiguresCreditNormal(t *testing.T) {
	f := zeroFigures()
	f.Post(accounting.NormalCredit, d("10"), d("250"), false)
	assert.True(t, f.Ending.Equal(d("240")))
}

func TestBuildTrialBalanceGroupsAndTotals(t *testing.T) {
	tb := BuildTrialBalance([]AccountBalance{
		{Number: "4000", Name: "Sales", Type: accounting.AccountTypeRevenue, NormalBalance: accounting.NormalCredit,
			Beginning: decimal.Zero, Debit: decimal.Zero, Credit: d("300"), AdjustmentDebit: decimal.Zero, AdjustmentCredit: decimal.Zero, Ending: d("300")},
		{Number: "1100", Name: "Cash", Type: accounting.AccountTypeAsset, NormalBalance: accounting.NormalDebit,
			Beginning: decimal.Zero, Debit: d("300"), Credit: d("50"), AdjustmentDebit: decimal.Zero, AdjustmentCredit: decimal.Zero, Ending: d("250")},
		{Number: "1150", Name: "Overdraft", Type: accounting.AccountTypeAsset, NormalBalance: accounting.NormalDebit,
			Beginning: decimal.Zero, Debit: decimal.Zero, Credit: d("50"), AdjustmentDebit: decimal.Zero, AdjustmentCredit: decimal.Zero, Ending: d("-50")},
	})

	require.Len(t, tb.Groups, 2)
	assert.Equal(t, "11", tb.Groups[0].Key)
	assert.Equal(t, "1100", tb.Groups[0].Accounts[0].Number)
	assert.True(t, tb.Groups[0].Accounts[1].CreditBalance.Equal(d("50")), "negative debit-normal ending lands in the credit column")
	assert.True(t, tb.Groups[1].Accounts[0].CreditBalance.Equal(d("300")))
	assert.True(t, tb.TotalDebit.Equal(d("300")))
	assert.True(t, tb.TotalCredit.Equal(d("400")))
	assert.True(t, tb.TotalDebitBalance.Equal(d("250")))
	assert.True(t, tb.TotalCreditBalance.Equal(d("350")))
	assert.False(t, tb.Balanced)
}

func TestGroupKey(t *testing.T) {
	assert.Equal(t, "1100", AccountBalance{Number: "1100-01"}.GroupKey())
	assert.Equal(t, "21", AccountBalance{Number: "2100"}.GroupKey())
	assert.Equal(t, "9", AccountBalance{Number: "9"}.GroupKey())
}
