package memstore

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/balances"
)

func (st *state) latestPeriod(company string, accountID int64, match func(accounting.FiscalPeriod) bool) (balances.PeriodBalance, bool) {
	var (
		best  balances.PeriodBalance
		found bool
	)
	for k, b := range st.periodBalances {
		if k.Company != company || k.AccountID != accountID || !match(k.Period) {
			continue
		}
		if !found || best.Period.Before(k.Period) {
			best, found = b, true
		}
	}
	return best, found
}

func (st *state) latestSub(key balances.SubKey, match func(accounting.FiscalPeriod) bool) (balances.SubAccountBalance, bool) {
	var (
		best  balances.SubAccountBalance
		found bool
	)
	for k, b := range st.subBalances {
		if k.Company != key.Company || k.AccountID != key.AccountID || k.Kind != key.Kind || k.ID != key.ID || !match(k.Period) {
			continue
		}
		if !found || best.Period.Before(k.Period) {
			best, found = b, true
		}
	}
	return best, found
}

func atOrBefore(limit accounting.FiscalPeriod) func(accounting.FiscalPeriod) bool {
	return func(p accounting.FiscalPeriod) bool { return !limit.Before(p) }
}

func before(limit accounting.FiscalPeriod) func(accounting.FiscalPeriod) bool {
	return func(p accounting.FiscalPeriod) bool { return p.Before(limit) }
}

// LatestPeriodBalance returns the account row of the latest period at or before limit.
func (s *Store) LatestPeriodBalance(_ context.Context, company string, accountID int64, limit accounting.FiscalPeriod) (b balances.PeriodBalance, err error) {
	s.read(func(st *state) {
		var ok bool
		if b, ok = st.latestPeriod(company, accountID, atOrBefore(limit)); !ok {
			err = balances.ErrBalanceNotFound
		}
	})
	return b, err
}

// ListLatestPeriodBalances returns one row per account, ordered by account number.
func (s *Store) ListLatestPeriodBalances(_ context.Context, company string, limit accounting.FiscalPeriod) (out []balances.PeriodBalance, err error) {
	s.read(func(st *state) {
		seen := make(map[int64]bool)
		for k := range st.periodBalances {
			if k.Company != company || seen[k.AccountID] {
				continue
			}
			seen[k.AccountID] = true
			if b, ok := st.latestPeriod(company, k.AccountID, atOrBefore(limit)); ok {
				out = append(out, b)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].AccountNumber < out[j].AccountNumber })
	return out, nil
}

// LatestSubAccountBalance returns the sub-account row of the latest period at or before limit.
func (s *Store) LatestSubAccountBalance(_ context.Context, company string, accountID int64, kind accounting.SubAccountKind, id string, limit accounting.FiscalPeriod) (b balances.SubAccountBalance, err error) {
	key := balances.SubKey{Key: balances.Key{Company: company, AccountID: accountID}, Kind: kind, ID: id}
	s.read(func(st *state) {
		var ok bool
		if b, ok = st.latestSub(key, atOrBefore(limit)); !ok {
			err = balances.ErrBalanceNotFound
		}
	})
	return b, err
}

// ListLatestSubAccountBalances returns one row per sub-account of the account.
func (s *Store) ListLatestSubAccountBalances(_ context.Context, company string, accountID int64, limit accounting.FiscalPeriod) (out []balances.SubAccountBalance, err error) {
	s.read(func(st *state) {
		seen := make(map[string]bool)
		for k := range st.subBalances {
			if k.Company != company || k.AccountID != accountID {
				continue
			}
			ref := string(k.Kind) + ":" + k.ID
			if seen[ref] {
				continue
			}
			seen[ref] = true
			if b, ok := st.latestSub(k, atOrBefore(limit)); ok {
				out = append(out, b)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (t *tx) MarkApplied(_ context.Context, key balances.AppliedKey) (bool, error) {
	if t.st.applied[key] {
		return false, nil
	}
	t.st.applied[key] = true
	return true, nil
}

func (t *tx) HasApplied(_ context.Context, entryID uuid.UUID, effect balances.Effect) (bool, error) {
	for k := range t.st.applied {
		if k.EntryID == entryID && k.Effect == effect {
			return true, nil
		}
	}
	return false, nil
}

func (t *tx) GetPeriodBalanceForUpdate(_ context.Context, key balances.Key) (balances.PeriodBalance, error) {
	b, ok := t.st.periodBalances[key]
	if !ok {
		return balances.PeriodBalance{}, balances.ErrBalanceNotFound
	}
	return b, nil
}

func (t *tx) LatestPeriodBalanceBefore(_ context.Context, company string, accountID int64, p accounting.FiscalPeriod) (balances.PeriodBalance, error) {
	b, ok := t.st.latestPeriod(company, accountID, before(p))
	if !ok {
		return balances.PeriodBalance{}, balances.ErrBalanceNotFound
	}
	return b, nil
}

func (t *tx) ListPeriodBalancesAfterForUpdate(_ context.Context, company string, accountID int64, after accounting.FiscalPeriod) ([]balances.PeriodBalance, error) {
	out := make([]balances.PeriodBalance, 0)
	for k, b := range t.st.periodBalances {
		if k.Company == company && k.AccountID == accountID && after.Before(k.Period) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Period.Before(out[j].Period) })
	return out, nil
}

func (t *tx) SavePeriodBalance(_ context.Context, b balances.PeriodBalance) (balances.PeriodBalance, error) {
	current, exists := t.st.periodBalances[b.Key]
	switch {
	case b.Version == 0 && exists:
		return balances.PeriodBalance{}, balances.ErrVersionConflict
	case b.Version != 0 && (!exists || current.Version != b.Version):
		return balances.PeriodBalance{}, balances.ErrVersionConflict
	}
	b.Version++
	b.UpdatedAt = t.now().UTC()
	t.st.periodBalances[b.Key] = b
	return b, nil
}

func (t *tx) GetSubAccountBalanceForUpdate(_ context.Context, key balances.SubKey) (balances.SubAccountBalance, error) {
	b, ok := t.st.subBalances[key]
	if !ok {
		return balances.SubAccountBalance{}, balances.ErrBalanceNotFound
	}
	return b, nil
}

func (t *tx) LatestSubAccountBalanceBefore(_ context.Context, key balances.SubKey) (balances.SubAccountBalance, error) {
	b, ok := t.st.latestSub(key, before(key.Period))
	if !ok {
		return balances.SubAccountBalance{}, balances.ErrBalanceNotFound
	}
	return b, nil
}

func (t *tx) ListSubAccountBalancesAfterForUpdate(_ context.Context, key balances.SubKey) ([]balances.SubAccountBalance, error) {
	out := make([]balances.SubAccountBalance, 0)
	for k, b := range t.st.subBalances {
		if k.Company == key.Company && k.AccountID == key.AccountID && k.Kind == key.Kind && k.ID == key.ID && key.Period.Before(k.Period) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Period.Before(out[j].Period) })
	return out, nil
}

func (t *tx) SaveSubAccountBalance(_ context.Context, b balances.SubAccountBalance) (balances.SubAccountBalance, error) {
	current, exists := t.st.subBalances[b.SubKey]
	switch {
	case b.Version == 0 && exists:
		return balances.SubAccountBalance{}, balances.ErrVersionConflict
	case b.Version != 0 && (!exists || current.Version != b.Version):
		return balances.SubAccountBalance{}, balances.ErrVersionConflict
	}
	b.Version++
	b.UpdatedAt = t.now().UTC()
	t.st.subBalances[b.SubKey] = b
	return b, nil
}

func (t *tx) SetPeriodClosed(_ context.Context, company string, period accounting.FiscalPeriod, closed bool, at *time.Time) error {
	for k, b := range t.st.periodBalances {
		if k.Company == company && k.Period == period {
			b.IsClosed, b.ClosedAt = closed, at
			b.Version++
			t.st.periodBalances[k] = b
		}
	}
	for k, b := range t.st.subBalances {
		if k.Company == company && k.Period == period {
			b.IsClosed, b.ClosedAt = closed, at
			b.Version++
			t.st.subBalances[k] = b
		}
	}
	return nil
}
