package balances

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
)

// Anomaly describes one broken summary invariant.
type Anomaly struct {
	Kind          string `json:"kind"`
	AccountNumber string `json:"account_number,omitempty"`
	Detail        string `json:"detail"`
}

const (
	AnomalyUnbalanced    = "unbalanced_period"
	AnomalyRollForward   = "ending_mismatch"
	AnomalyCarryForward  = "beginning_mismatch"
	AnomalySubAccountSum = "sub_account_sum"
)

// Report is the result of Verify.
type Report struct {
	Company   string                  `json:"company"`
	Period    accounting.FiscalPeriod `json:"period"`
	Checked   int                     `json:"checked"`
	Anomalies []Anomaly               `json:"anomalies"`
}

// OK reports whether no anomaly was found.
func (r Report) OK() bool { return len(r.Anomalies) == 0 }

// Verify checks the summary invariants of one company period: total debit
// equals total credit, every row rolls forward from its beginning, every
// beginning equals the effective ending of the account's previous row, and
// sub-ledgered accounts equal the sum of their sub-account rows.
func (s *Service) Verify(ctx context.Context, company string, period accounting.FiscalPeriod) (Report, error) {
	if company == "" {
		return Report{}, accounting.ErrCompanyRequired
	}
	report := Report{Company: company, Period: period}
	accounts, err := s.repo.ListAccounts(ctx, company)
	if err != nil {
		return Report{}, err
	}
	rows, err := s.repo.ListLatestPeriodBalances(ctx, company, period)
	if err != nil {
		return Report{}, err
	}
	byAccount := make(map[int64]accounting.Account, len(accounts))
	for _, a := range accounts {
		byAccount[a.ID] = a
	}
	debit, credit := decimal.Zero, decimal.Zero
	for _, row := range rows {
		if row.Period != period {
			continue
		}
		report.Checked++
		debit = debit.Add(row.DebitTotal).Add(row.AdjustmentDebit)
		credit = credit.Add(row.CreditTotal).Add(row.AdjustmentCredit)
		if !row.Consistent(row.NormalBalance) {
			report.Anomalies = append(report.Anomalies, Anomaly{
				Kind:          AnomalyRollForward,
				AccountNumber: row.AccountNumber,
				Detail:        fmt.Sprintf("beginning %s debit %s credit %s ending %s", row.Beginning, row.DebitTotal, row.CreditTotal, row.Ending),
			})
		}
		carried, err := s.carriedPeriodBalance(ctx, company, row.AccountID, period)
		if err != nil {
			return Report{}, err
		}
		if !row.Beginning.Equal(carried) {
			report.Anomalies = append(report.Anomalies, Anomaly{
				Kind:          AnomalyCarryForward,
				AccountNumber: row.AccountNumber,
				Detail:        fmt.Sprintf("beginning %s previous ending %s", row.Beginning, carried),
			})
		}
		account, ok := byAccount[row.AccountID]
		if !ok || !account.RequiresSubLedger {
			continue
		}
		subs, err := s.repo.ListLatestSubAccountBalances(ctx, company, row.AccountID, period)
		if err != nil {
			return Report{}, err
		}
		sum := decimal.Zero
		for _, sub := range subs {
			sum = sum.Add(sub.Effective())
			if sub.Period != period {
				continue
			}
			if !sub.Consistent(sub.NormalBalance) {
				report.Anomalies = append(report.Anomalies, Anomaly{
					Kind:          AnomalyRollForward,
					AccountNumber: row.AccountNumber,
					Detail:        fmt.Sprintf("%s: beginning %s debit %s credit %s ending %s", sub.Ref(), sub.Beginning, sub.DebitTotal, sub.CreditTotal, sub.Ending),
				})
			}
			carried, err := s.carriedSubAccountBalance(ctx, company, sub)
			if err != nil {
				return Report{}, err
			}
			if !sub.Beginning.Equal(carried) {
				report.Anomalies = append(report.Anomalies, Anomaly{
					Kind:          AnomalyCarryForward,
					AccountNumber: row.AccountNumber,
					Detail:        fmt.Sprintf("%s: beginning %s previous ending %s", sub.Ref(), sub.Beginning, carried),
				})
			}
		}
		if !sum.Equal(row.Effective()) {
			report.Anomalies = append(report.Anomalies, Anomaly{
				Kind:          AnomalySubAccountSum,
				AccountNumber: row.AccountNumber,
				Detail:        fmt.Sprintf("sub-accounts %s account %s", sum, row.Effective()),
			})
		}
	}
	if !debit.Equal(credit) {
		report.Anomalies = append(report.Anomalies, Anomaly{
			Kind:   AnomalyUnbalanced,
			Detail: fmt.Sprintf("debit %s credit %s", debit, credit),
		})
	}
	return report, nil
}

// carriedPeriodBalance returns the effective ending of the latest account row
// before period, or zero when the account has no earlier row.
func (s *Service) carriedPeriodBalance(ctx context.Context, company string, accountID int64, period accounting.FiscalPeriod) (decimal.Decimal, error) {
	prior, err := s.repo.LatestPeriodBalance(ctx, company, accountID, period.Prev())
	switch {
	case err == nil:
		return prior.Effective(), nil
	case errors.Is(err, ErrBalanceNotFound):
		return decimal.Zero, nil
	}
	return decimal.Zero, err
}

func (s *Service) carriedSubAccountBalance(ctx context.Context, company string, sub SubAccountBalance) (decimal.Decimal, error) {
	prior, err := s.repo.LatestSubAccountBalance(ctx, company, sub.AccountID, sub.Kind, sub.ID, sub.Period.Prev())
	switch {
	case err == nil:
		return prior.Effective(), nil
	case errors.Is(err, ErrBalanceNotFound):
		return decimal.Zero, nil
	}
	return decimal.Zero, err
}
