package memstore

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/amortization"
	"github.com/odyssey-erp/odyssey-ledger/internal/inventory"
)

func (st *state) productLines(company, product string, keep func(inventory.LedgerLine) bool) []inventory.LedgerLine {
	out := make([]inventory.LedgerLine, 0)
	for _, l := range st.lines {
		if l.Company == company && l.ProductID == product && keep(l) {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// GetBalance returns the position of a product.
func (s *Store) GetBalance(_ context.Context, company, product string) (b inventory.Balance, err error) {
	s.read(func(st *state) {
		var ok bool
		if b, ok = st.products[productKey{company, product}]; !ok {
			err = inventory.ErrNotFound
		}
	})
	return b, err
}

// ListLedger returns the stock card in posting order.
func (s *Store) ListLedger(_ context.Context, f inventory.LedgerFilter) (out []inventory.LedgerLine, err error) {
	s.read(func(st *state) {
		out = st.productLines(f.Company, f.ProductID, func(l inventory.LedgerLine) bool {
			if !f.From.IsZero() && l.Date.Before(f.From) {
				return false
			}
			return f.To.IsZero() || !l.Date.After(f.To)
		})
	})
	return out, nil
}

// ListLockedEntries returns the locked queue of a product.
func (s *Store) ListLockedEntries(_ context.Context, company, product string) (out []inventory.LockedEntry, err error) {
	s.read(func(st *state) {
		for _, e := range st.locked {
			if e.Company == company && e.ProductID == product {
				out = append(out, e)
			}
		}
	})
	return out, nil
}

func (t *tx) LockProduct(_ context.Context, company, product string) (inventory.Balance, error) {
	key := productKey{company, product}
	if b, ok := t.st.products[key]; ok {
		return b, nil
	}
	b := inventory.Balance{
		Company:   company,
		ProductID: product,
		Position:  inventory.Position{Quantity: decimal.Zero, AverageCost: decimal.Zero, Value: decimal.Zero},
		UpdatedAt: t.now().UTC(),
	}
	t.st.products[key] = b
	return b, nil
}

func (t *tx) SaveBalance(_ context.Context, b inventory.Balance) error {
	t.st.products[productKey{b.Company, b.ProductID}] = b
	return nil
}

func (t *tx) LastLineAtOrBefore(_ context.Context, company, product string, date time.Time) (inventory.LedgerLine, error) {
	lines := t.st.productLines(company, product, func(l inventory.LedgerLine) bool { return !l.Date.After(date) })
	if len(lines) == 0 {
		return inventory.LedgerLine{}, inventory.ErrNotFound
	}
	return lines[len(lines)-1], nil
}

func (t *tx) ListLinesAfter(_ context.Context, company, product string, date time.Time) ([]inventory.LedgerLine, error) {
	return t.st.productLines(company, product, func(l inventory.LedgerLine) bool { return l.Date.After(date) }), nil
}

func (t *tx) InsertLine(_ context.Context, line inventory.LedgerLine) (inventory.LedgerLine, error) {
	line.ID = t.st.nextID()
	t.st.lines[line.ID] = line
	return line, nil
}

func (t *tx) UpdateLine(_ context.Context, line inventory.LedgerLine) error {
	if _, ok := t.st.lines[line.ID]; !ok {
		return inventory.ErrNotFound
	}
	t.st.lines[line.ID] = line
	return nil
}

func (t *tx) ListUnlockedThrough(_ context.Context, company, product string, date time.Time) ([]inventory.LedgerLine, error) {
	return t.st.productLines(company, product, func(l inventory.LedgerLine) bool {
		return !l.Locked && !l.Date.After(date)
	}), nil
}

func (t *tx) MarkLocked(_ context.Context, ids []int64) error {
	for _, id := range ids {
		l, ok := t.st.lines[id]
		if !ok {
			return inventory.ErrNotFound
		}
		l.Locked = true
		t.st.lines[id] = l
	}
	return nil
}

func (t *tx) InsertLockedEntry(_ context.Context, e inventory.LockedEntry) error {
	e.ID = t.st.nextID()
	t.st.locked = append(t.st.locked, e)
	return nil
}

// InsertSetting stores a new schedule.
func (s *Store) InsertSetting(ctx context.Context, setting amortization.Setting) (stored amortization.Setting, err error) {
	err = s.withTx(ctx, func(t *tx) error {
		for _, cur := range t.st.settings {
			if cur.Company == setting.Company && cur.SourceEntryID == setting.SourceEntryID {
				return amortization.ErrScheduleExists
			}
		}
		setting.ID = t.st.nextID()
		now := t.now().UTC()
		setting.CreatedAt, setting.UpdatedAt = now, now
		t.st.settings[setting.ID] = setting
		stored = setting
		return nil
	})
	return stored, err
}

func (st *state) setting(company string, id int64) (amortization.Setting, error) {
	s, ok := st.settings[id]
	if !ok || s.Company != company {
		return amortization.Setting{}, amortization.ErrSettingNotFound
	}
	return s, nil
}

func (st *state) listSettings(keep func(amortization.Setting) bool) []amortization.Setting {
	out := make([]amortization.Setting, 0)
	for _, s := range st.settings {
		if keep(s) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// GetSetting returns a schedule by id.
func (s *Store) GetSetting(_ context.Context, company string, id int64) (out amortization.Setting, err error) {
	s.read(func(st *state) { out, err = st.setting(company, id) })
	return out, err
}

// FindBySource returns the schedule created from a source entry.
func (s *Store) FindBySource(_ context.Context, company string, entryID uuid.UUID) (out amortization.Setting, err error) {
	err = amortization.ErrSettingNotFound
	s.read(func(st *state) {
		for _, cur := range st.settings {
			if cur.Company == company && cur.SourceEntryID == entryID {
				out, err = cur, nil
				return
			}
		}
	})
	return out, err
}

// ListSettings returns the schedules of a company.
func (s *Store) ListSettings(_ context.Context, company string, activeOnly bool) (out []amortization.Setting, err error) {
	s.read(func(st *state) {
		out = st.listSettings(func(cur amortization.Setting) bool {
			return cur.Company == company && (!activeOnly || cur.IsActive)
		})
	})
	return out, nil
}

// ListDue returns the company schedules due on asOf.
func (s *Store) ListDue(_ context.Context, company string, asOf time.Time) (out []amortization.Setting, err error) {
	s.read(func(st *state) {
		out = st.listSettings(func(cur amortization.Setting) bool {
			return cur.Company == company && cur.Due(asOf)
		})
	})
	return out, nil
}

// ListCompaniesWithDue returns the companies holding at least one due schedule.
func (s *Store) ListCompaniesWithDue(_ context.Context, asOf time.Time) (out []string, err error) {
	s.read(func(st *state) {
		seen := make(map[string]bool)
		for _, cur := range st.settings {
			if cur.Due(asOf) && !seen[cur.Company] {
				seen[cur.Company] = true
				out = append(out, cur.Company)
			}
		}
	})
	sort.Strings(out)
	return out, nil
}

func (t *tx) GetSettingForUpdate(_ context.Context, company string, id int64) (amortization.Setting, error) {
	return t.st.setting(company, id)
}

func (t *tx) UpdateSetting(_ context.Context, setting amortization.Setting) error {
	if _, err := t.st.setting(setting.Company, setting.ID); err != nil {
		return err
	}
	setting.UpdatedAt = t.now().UTC()
	t.st.settings[setting.ID] = setting
	return nil
}
