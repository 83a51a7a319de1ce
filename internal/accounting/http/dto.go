package accountinghttp

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/amortization"
)

const dateLayout = "2006-01-02"

type createAccountRequest struct {
	Number            string `json:"number" validate:"required,max=32"`
	Name              string `json:"name" validate:"required,max=160"`
	Type              string `json:"type" validate:"required,oneof=ASSET LIABILITY EQUITY REVENUE EXPENSE"`
	NormalBalance     string `json:"normal_balance" validate:"omitempty,oneof=DEBIT CREDIT"`
	Statement         string `json:"statement" validate:"omitempty,oneof=BALANCE_SHEET INCOME_STATEMENT"`
	ParentNumber      string `json:"parent_number" validate:"omitempty,max=32,nefield=Number"`
	RequiresSubLedger bool   `json:"requires_sub_ledger"`
}

func (r createAccountRequest) input(company string) accounts.CreateInput {
	return accounts.CreateInput{
		Company:           company,
		Number:            r.Number,
		Name:              r.Name,
		Type:              accounting.AccountType(r.Type),
		NormalBalance:     accounting.NormalBalance(r.NormalBalance),
		Statement:         accounting.StatementCategory(r.Statement),
		ParentNumber:      r.ParentNumber,
		RequiresSubLedger: r.RequiresSubLedger,
	}
}

type moveAccountRequest struct {
	ParentNumber string `json:"parent_number" validate:"max=32"`
}

type entityRequest struct {
	Name     string `json:"name" validate:"required,max=160"`
	IsActive *bool  `json:"is_active"`
}

type subAccountRequest struct {
	Kind string `json:"kind" validate:"omitempty,oneof=NONE CUSTOMER SUPPLIER EMPLOYEE BANK_ACCOUNT COMPANY"`
	ID   string `json:"id" validate:"max=64"`
}

type lineRequest struct {
	AccountNumber string            `json:"account_number" validate:"required"`
	SubAccount    subAccountRequest `json:"sub_account"`
	Debit         decimal.Decimal   `json:"debit"`
	Credit        decimal.Decimal   `json:"credit"`
	Memo          string            `json:"memo" validate:"max=255"`
}

type recurrenceRequest struct {
	Frequency      string          `json:"frequency" validate:"required,oneof=MONTHLY QUARTERLY SEMI_ANNUAL ANNUAL"`
	Occurrences    int             `json:"occurrences" validate:"required,min=1,max=600"`
	StartDate      string          `json:"start_date" validate:"required,datetime=2006-01-02"`
	Amount         decimal.Decimal `json:"amount"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	PrepaidAccount string          `json:"prepaid_account" validate:"required"`
	ExpenseAccount string          `json:"expense_account" validate:"required,nefield=PrepaidAccount"`
}

type entryRequest struct {
	Module     string             `json:"module" validate:"omitempty,max=16"`
	Reference  string             `json:"reference" validate:"max=64"`
	SourceRef  string             `json:"source_ref" validate:"max=128"`
	Kind       string             `json:"kind" validate:"omitempty,oneof=REGULAR ADJUSTMENT"`
	Date       string             `json:"date" validate:"required,datetime=2006-01-02"`
	Memo       string             `json:"memo" validate:"max=255"`
	Lines      []lineRequest      `json:"lines" validate:"required,min=1,dive"`
	Recurrence *recurrenceRequest `json:"recurrence"`
}

func (r entryRequest) request(company, actor string) (accounting.JournalEntryRequest, error) {
	date, err := time.Parse(dateLayout, r.Date)
	if err != nil {
		return accounting.JournalEntryRequest{}, err
	}
	module := r.Module
	if module == "" {
		module = accounting.ModuleGeneralLedger
	}
	req := accounting.JournalEntryRequest{
		Company:   company,
		Module:    module,
		Reference: r.Reference,
		SourceRef: r.SourceRef,
		Kind:      accounting.EntryKind(r.Kind),
		Date:      date,
		Memo:      r.Memo,
		PostedBy:  actor,
		Lines:     make([]accounting.LineRequest, 0, len(r.Lines)),
	}
	for _, line := range r.Lines {
		req.Lines = append(req.Lines, accounting.LineRequest{
			AccountNumber: line.AccountNumber,
			SubAccount: accounting.SubAccountRef{
				Kind: accounting.SubAccountKind(line.SubAccount.Kind),
				ID:   line.SubAccount.ID,
			},
			Debit:  line.Debit,
			Credit: line.Credit,
			Memo:   line.Memo,
		})
	}
	if rec := r.Recurrence; rec != nil {
		start, err := time.Parse(dateLayout, rec.StartDate)
		if err != nil {
			return accounting.JournalEntryRequest{}, err
		}
		req.Recurrence = &accounting.Recurrence{
			Frequency:      accounting.Frequency(rec.Frequency),
			Occurrences:    rec.Occurrences,
			StartDate:      start,
			Amount:         rec.Amount,
			TotalAmount:    rec.TotalAmount,
			PrepaidAccount: rec.PrepaidAccount,
			ExpenseAccount: rec.ExpenseAccount,
		}
	}
	return req, nil
}

type voidRequest struct {
	Reason string `json:"reason" validate:"required,max=255"`
}

type reopenRequest struct {
	Reason string `json:"reason" validate:"required,max=255"`
}

type scheduleRequest struct {
	SourceEntryID  uuid.UUID       `json:"source_entry_id" validate:"required"`
	PrepaidAccount string          `json:"prepaid_account" validate:"required"`
	ExpenseAccount string          `json:"expense_account" validate:"required,nefield=PrepaidAccount"`
	Amount         decimal.Decimal `json:"amount"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	Frequency      string          `json:"frequency" validate:"required,oneof=MONTHLY QUARTERLY SEMI_ANNUAL ANNUAL"`
	Occurrences    int             `json:"occurrences" validate:"required,min=1,max=600"`
	StartDate      string          `json:"start_date" validate:"required,datetime=2006-01-02"`
	Memo           string          `json:"memo" validate:"max=255"`
}

func (r scheduleRequest) input(company, actor string) (amortization.ScheduleInput, error) {
	start, err := time.Parse(dateLayout, r.StartDate)
	if err != nil {
		return amortization.ScheduleInput{}, err
	}
	return amortization.ScheduleInput{
		Company:        company,
		SourceEntryID:  r.SourceEntryID,
		PrepaidAccount: r.PrepaidAccount,
		ExpenseAccount: r.ExpenseAccount,
		Amount:         r.Amount,
		TotalAmount:    r.TotalAmount,
		Frequency:      accounting.Frequency(r.Frequency),
		Occurrences:    r.Occurrences,
		StartDate:      start,
		Memo:           r.Memo,
		Actor:          actor,
	}, nil
}

type listResponse[T any] struct {
	Items []T `json:"items"`
	Count int `json:"count"`
}

func list[T any](items []T) listResponse[T] {
	if items == nil {
		items = []T{}
	}
	return listResponse[T]{Items: items, Count: len(items)}
}
