package accounts

import (
	"errors"
	"strings"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
)

// CreateInput describes a new chart of accounts node.
type CreateInput struct {
	Company           string
	Number            string
	Name              string
	Type              accounting.AccountType
	NormalBalance     accounting.NormalBalance
	Statement         accounting.StatementCategory
	ParentNumber      string
	RequiresSubLedger bool
}

// Validate checks mandatory fields and enum values.
func (in CreateInput) Validate() error {
	if strings.TrimSpace(in.Company) == "" {
		return accounting.ErrCompanyRequired
	}
	if strings.TrimSpace(in.Number) == "" {
		return errors.New("accounts: number required")
	}
	if strings.TrimSpace(in.Name) == "" {
		return errors.New("accounts: name required")
	}
	if !in.Type.Valid() {
		return errors.New("accounts: invalid account type")
	}
	switch in.NormalBalance {
	case "", accounting.NormalDebit, accounting.NormalCredit:
	default:
		return errors.New("accounts: invalid normal balance")
	}
	switch in.Statement {
	case "", accounting.StatementBalanceSheet, accounting.StatementIncome:
	default:
		return errors.New("accounts: invalid statement category")
	}
	if strings.TrimSpace(in.ParentNumber) == strings.TrimSpace(in.Number) {
		return accounting.ErrAccountCycle
	}
	return nil
}
