package balances

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
)

// Position is an account or sub-account balance as of one fiscal period.
// Rows carried forward from an earlier period report no movement.
type Position struct {
	Company        string                    `json:"company"`
	AccountNumber  string                    `json:"account_number"`
	AccountName    string                    `json:"account_name"`
	NormalBalance  accounting.NormalBalance  `json:"normal_balance"`
	SubAccount     *accounting.SubAccountRef `json:"sub_account,omitempty"`
	Period         accounting.FiscalPeriod   `json:"period"`
	PeriodStart    time.Time                 `json:"period_start"`
	PeriodEnd      time.Time                 `json:"period_end"`
	Beginning      decimal.Decimal           `json:"beginning"`
	DebitTotal     decimal.Decimal           `json:"debit_total"`
	CreditTotal    decimal.Decimal           `json:"credit_total"`
	Ending         decimal.Decimal           `json:"ending"`
	AdjustmentDr   decimal.Decimal           `json:"adjustment_debit"`
	AdjustmentCr   decimal.Decimal           `json:"adjustment_credit"`
	AdjustedEnding decimal.NullDecimal       `json:"adjusted_ending"`
	Balance        decimal.Decimal           `json:"balance"`
	IsClosed       bool                      `json:"is_closed"`
	CarriedForward bool                      `json:"carried_forward"`
}

func (s *Service) position(account accounting.Account, period accounting.FiscalPeriod, row *Figures, rowPeriod accounting.FiscalPeriod, closed bool) Position {
	start, end := s.calendar.Window(period)
	pos := Position{
		Company:       account.Company,
		AccountNumber: account.Number,
		AccountName:   account.Name,
		NormalBalance: account.NormalBalance,
		Period:        period,
		PeriodStart:   start,
		PeriodEnd:     end,
		Beginning:     decimal.Zero,
		DebitTotal:    decimal.Zero,
		CreditTotal:   decimal.Zero,
		Ending:        decimal.Zero,
		AdjustmentDr:  decimal.Zero,
		AdjustmentCr:  decimal.Zero,
		Balance:       decimal.Zero,
	}
	switch {
	case row == nil:
		pos.CarriedForward = true
	case rowPeriod == period:
		pos.Beginning = row.Beginning
		pos.DebitTotal = row.DebitTotal
		pos.CreditTotal = row.CreditTotal
		pos.Ending = row.Ending
		pos.AdjustmentDr = row.AdjustmentDebit
		pos.AdjustmentCr = row.AdjustmentCredit
		pos.AdjustedEnding = row.AdjustedEnding
		pos.Balance = row.Effective()
		pos.IsClosed = closed
	default:
		carried := row.Effective()
		pos.Beginning = carried
		pos.Ending = carried
		pos.Balance = carried
		pos.CarriedForward = true
	}
	return pos
}

// GetAccountBalance returns the account position for the fiscal period containing asOf.
func (s *Service) GetAccountBalance(ctx context.Context, company, number string, asOf time.Time) (Position, error) {
	if company == "" {
		return Position{}, accounting.ErrCompanyRequired
	}
	account, err := s.repo.GetAccountByNumber(ctx, company, number)
	if err != nil {
		return Position{}, err
	}
	period := s.calendar.PeriodOf(asOf)
	row, err := s.repo.LatestPeriodBalance(ctx, company, account.ID, period)
	if errors.Is(err, ErrBalanceNotFound) {
		return s.position(account, period, nil, period, false), nil
	}
	if err != nil {
		return Position{}, err
	}
	return s.position(account, period, &row.Figures, row.Period, row.IsClosed), nil
}

// GetSubAccountStatement returns one sub-account position of an account for a period.
func (s *Service) GetSubAccountStatement(ctx context.Context, company, number string, kind accounting.SubAccountKind, id string, period accounting.FiscalPeriod) (Position, error) {
	if company == "" {
		return Position{}, accounting.ErrCompanyRequired
	}
	if kind == accounting.SubAccountNone || id == "" {
		return Position{}, fmt.Errorf("%w: kind and id required", accounting.ErrInvalidSubAccount)
	}
	if !period.Valid() {
		return Position{}, fmt.Errorf("balances: invalid period %s", period)
	}
	account, err := s.repo.GetAccountByNumber(ctx, company, number)
	if err != nil {
		return Position{}, err
	}
	ref := accounting.SubAccountRef{Kind: kind, ID: id}
	row, err := s.repo.LatestSubAccountBalance(ctx, company, account.ID, kind, id, period)
	if errors.Is(err, ErrBalanceNotFound) {
		pos := s.position(account, period, nil, period, false)
		pos.SubAccount = &ref
		return pos, nil
	}
	if err != nil {
		return Position{}, err
	}
	pos := s.position(account, period, &row.Figures, row.Period, row.IsClosed)
	ref = row.Ref()
	pos.SubAccount = &ref
	return pos, nil
}

// ListSubAccountBalances returns every sub-account position of an account for a period.
func (s *Service) ListSubAccountBalances(ctx context.Context, company, number string, period accounting.FiscalPeriod) ([]Position, error) {
	if company == "" {
		return nil, accounting.ErrCompanyRequired
	}
	account, err := s.repo.GetAccountByNumber(ctx, company, number)
	if err != nil {
		return nil, err
	}
	rows, err := s.repo.ListLatestSubAccountBalances(ctx, company, account.ID, period)
	if err != nil {
		return nil, err
	}
	out := make([]Position, 0, len(rows))
	for _, row := range rows {
		pos := s.position(account, period, &row.Figures, row.Period, row.IsClosed)
		ref := row.Ref()
		pos.SubAccount = &ref
		out = append(out, pos)
	}
	return out, nil
}

// GetTrialBalance lists every account's ending position for the period. The
// result is cached per company version and concurrent misses share one load.
func (s *Service) GetTrialBalance(ctx context.Context, company string, period accounting.FiscalPeriod) (TrialBalance, error) {
	if company == "" {
		return TrialBalance{}, accounting.ErrCompanyRequired
	}
	if !period.Valid() {
		return TrialBalance{}, fmt.Errorf("balances: invalid period %s", period)
	}
	if s.cache == nil {
		return s.loadTrialBalance(ctx, company, period)
	}
	key, err := s.cache.BuildKey(ctx, company, "tb", period.String())
	if err != nil {
		return TrialBalance{}, err
	}
	v, err, _ := s.group.Do(key, func() (any, error) {
		var tb TrialBalance
		err := s.cache.FetchJSON(ctx, key, &tb, func(ctx context.Context) (any, error) {
			return s.loadTrialBalance(ctx, company, period)
		})
		return tb, err
	})
	if err != nil {
		return TrialBalance{}, err
	}
	return v.(TrialBalance), nil
}

func (s *Service) loadTrialBalance(ctx context.Context, company string, period accounting.FiscalPeriod) (TrialBalance, error) {
	accounts, err := s.repo.ListAccounts(ctx, company)
	if err != nil {
		return TrialBalance{}, err
	}
	rows, err := s.repo.ListLatestPeriodBalances(ctx, company, period)
	if err != nil {
		return TrialBalance{}, err
	}
	byAccount := make(map[int64]PeriodBalance, len(rows))
	for _, row := range rows {
		byAccount[row.AccountID] = row
	}
	input := make([]AccountBalance, 0, len(rows))
	for _, account := range accounts {
		row, ok := byAccount[account.ID]
		if !ok {
			continue
		}
		pos := s.position(account, period, &row.Figures, row.Period, row.IsClosed)
		input = append(input, AccountBalance{
			Number:           account.Number,
			Name:             account.Name,
			Type:             account.Type,
			NormalBalance:    account.NormalBalance,
			Beginning:        pos.Beginning,
			Debit:            pos.DebitTotal,
			Credit:           pos.CreditTotal,
			AdjustmentDebit:  pos.AdjustmentDr,
			AdjustmentCredit: pos.AdjustmentCr,
			Ending:           pos.Balance,
		})
	}
	tb := BuildTrialBalance(input)
	tb.Company = company
	tb.Period = period
	return tb, nil
}
