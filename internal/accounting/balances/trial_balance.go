package balances

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
)

// AccountBalance is one account's position as fed to BuildTrialBalance.
type AccountBalance struct {
	Number           string
	Name             string
	Type             accounting.AccountType
	NormalBalance    accounting.NormalBalance
	Beginning        decimal.Decimal
	Debit            decimal.Decimal
	Credit           decimal.Decimal
	AdjustmentDebit  decimal.Decimal
	AdjustmentCredit decimal.Decimal
	Ending           decimal.Decimal
}

// GroupKey returns a key used for grouping trial balance rows.
func (a AccountBalance) GroupKey() string {
	if idx := strings.IndexAny(a.Number, ".-"); idx > 0 {
		return a.Number[:idx]
	}
	if len(a.Number) >= 2 {
		return a.Number[:2]
	}
	return a.Number
}

// TrialBalanceAccount represents a row inside a trial balance group.
type TrialBalanceAccount struct {
	Number        string                   `json:"number"`
	Name          string                   `json:"name"`
	Type          accounting.AccountType   `json:"type"`
	NormalBalance accounting.NormalBalance `json:"normal_balance"`
	Beginning     decimal.Decimal          `json:"beginning"`
	Debit         decimal.Decimal          `json:"debit"`
	Credit        decimal.Decimal          `json:"credit"`
	Ending        decimal.Decimal          `json:"ending"`
	DebitBalance  decimal.Decimal          `json:"debit_balance"`
	CreditBalance decimal.Decimal          `json:"credit_balance"`
}

// TrialBalanceGroup aggregates accounts sharing a number prefix.
type TrialBalanceGroup struct {
	Key           string                `json:"key"`
	Accounts      []TrialBalanceAccount `json:"accounts"`
	Debit         decimal.Decimal       `json:"debit"`
	Credit        decimal.Decimal       `json:"credit"`
	DebitBalance  decimal.Decimal       `json:"debit_balance"`
	CreditBalance decimal.Decimal       `json:"credit_balance"`
}

// TrialBalance lists every account's ending position for one period.
type TrialBalance struct {
	Company            string                  `json:"company"`
	Period             accounting.FiscalPeriod `json:"period"`
	Groups             []TrialBalanceGroup     `json:"groups"`
	TotalDebit         decimal.Decimal         `json:"total_debit"`
	TotalCredit        decimal.Decimal         `json:"total_credit"`
	TotalDebitBalance  decimal.Decimal         `json:"total_debit_balance"`
	TotalCreditBalance decimal.Decimal         `json:"total_credit_balance"`
	Balanced           bool                    `json:"balanced"`
}

// balanceColumns splits a signed ending into the debit or credit column.
func balanceColumns(normal accounting.NormalBalance, ending decimal.Decimal) (debit, credit decimal.Decimal) {
	debit, credit = decimal.Zero, decimal.Zero
	positive := ending.IsPositive()
	if normal == accounting.NormalCredit {
		positive = ending.IsNegative()
	}
	switch {
	case ending.IsZero():
	case positive:
		debit = ending.Abs()
	default:
		credit = ending.Abs()
	}
	return debit, credit
}

// BuildTrialBalance converts account balances into grouped trial balance data.
// Adjustments count towards the period movement.
func BuildTrialBalance(accounts []AccountBalance) TrialBalance {
	groups := make(map[string]*TrialBalanceGroup)
	keys := make([]string, 0)
	result := TrialBalance{
		TotalDebit:         decimal.Zero,
		TotalCredit:        decimal.Zero,
		TotalDebitBalance:  decimal.Zero,
		TotalCreditBalance: decimal.Zero,
	}
	for _, acc := range accounts {
		key := acc.GroupKey()
		grp, ok := groups[key]
		if !ok {
			grp = &TrialBalanceGroup{Key: key, Debit: decimal.Zero, Credit: decimal.Zero, DebitBalance: decimal.Zero, CreditBalance: decimal.Zero}
			groups[key] = grp
			keys = append(keys, key)
		}
		dr, cr := balanceColumns(acc.NormalBalance, acc.Ending)
		row := TrialBalanceAccount{
			Number:        acc.Number,
			Name:          acc.Name,
			Type:          acc.Type,
			NormalBalance: acc.NormalBalance,
			Beginning:     acc.Beginning,
			Debit:         acc.Debit.Add(acc.AdjustmentDebit),
			Credit:        acc.Credit.Add(acc.AdjustmentCredit),
			Ending:        acc.Ending,
			DebitBalance:  dr,
			CreditBalance: cr,
		}
		grp.Accounts = append(grp.Accounts, row)
		grp.Debit = grp.Debit.Add(row.Debit)
		grp.Credit = grp.Credit.Add(row.Credit)
		grp.DebitBalance = grp.DebitBalance.Add(dr)
		grp.CreditBalance = grp.CreditBalance.Add(cr)
	}

	sort.Strings(keys)
	for _, key := range keys {
		grp := groups[key]
		sort.Slice(grp.Accounts, func(i, j int) bool {
			return grp.Accounts[i].Number < grp.Accounts[j].Number
		})
		result.Groups = append(result.Groups, *grp)
		result.TotalDebit = result.TotalDebit.Add(grp.Debit)
		result.TotalCredit = result.TotalCredit.Add(grp.Credit)
		result.TotalDebitBalance = result.TotalDebitBalance.Add(grp.DebitBalance)
		result.TotalCreditBalance = result.TotalCreditBalance.Add(grp.CreditBalance)
	}
	result.Balanced = result.TotalDebit.Equal(result.TotalCredit) &&
		result.TotalDebitBalance.Equal(result.TotalCreditBalance)
	return result
}
