// Package memstore implements every ledger repository port in process
// memory. Transactions are serialised: each one works on a copy of the state
// that replaces the live state on commit.
package memstore

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/balances"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/subledger"
	"github.com/odyssey-erp/odyssey-ledger/internal/amortization"
	"github.com/odyssey-erp/odyssey-ledger/internal/inventory"
)

type entityKey struct {
	company string
	kind    accounting.SubAccountKind
	id      string
}

type productKey struct {
	company string
	product string
}

type outboxRow struct {
	task         balances.Task
	createdAt    time.Time
	dispatchedAt *time.Time
	appliedAt    *time.Time
}

type state struct {
	seq            int64
	accounts       map[int64]accounting.Account
	entities       map[entityKey]subledger.Entity
	gates          map[periods.Key]periods.PostedPeriod
	events         []periods.LockEvent
	journals       map[uuid.UUID]accounting.JournalEntry
	numbers        map[string]int64
	applied        map[balances.AppliedKey]bool
	periodBalances map[balances.Key]balances.PeriodBalance
	subBalances    map[balances.SubKey]balances.SubAccountBalance
	outbox         map[string]outboxRow
	products       map[productKey]inventory.Balance
	lines          map[int64]inventory.LedgerLine
	locked         []inventory.LockedEntry
	settings       map[int64]amortization.Setting
}

func newState() *state {
	return &state{
		accounts:       make(map[int64]accounting.Account),
		entities:       make(map[entityKey]subledger.Entity),
		gates:          make(map[periods.Key]periods.PostedPeriod),
		journals:       make(map[uuid.UUID]accounting.JournalEntry),
		numbers:        make(map[string]int64),
		applied:        make(map[balances.AppliedKey]bool),
		periodBalances: make(map[balances.Key]balances.PeriodBalance),
		subBalances:    make(map[balances.SubKey]balances.SubAccountBalance),
		outbox:         make(map[string]outboxRow),
		products:       make(map[productKey]inventory.Balance),
		lines:          make(map[int64]inventory.LedgerLine),
		settings:       make(map[int64]amortization.Setting),
	}
}

// clone copies every table. Stored values are replaced, never mutated in
// place, so copying the maps is enough.
func (s *state) clone() *state {
	return &state{
		seq:            s.seq,
		accounts:       maps.Clone(s.accounts),
		entities:       maps.Clone(s.entities),
		gates:          maps.Clone(s.gates),
		events:         slices.Clone(s.events),
		journals:       maps.Clone(s.journals),
		numbers:        maps.Clone(s.numbers),
		applied:        maps.Clone(s.applied),
		periodBalances: maps.Clone(s.periodBalances),
		subBalances:    maps.Clone(s.subBalances),
		outbox:         maps.Clone(s.outbox),
		products:       maps.Clone(s.products),
		lines:          maps.Clone(s.lines),
		locked:         slices.Clone(s.locked),
		settings:       maps.Clone(s.settings),
	}
}

func (s *state) nextID() int64 {
	s.seq++
	return s.seq
}

// Store is the in-memory ledger store.
type Store struct {
	mu  sync.Mutex
	st  *state
	now func() time.Time
}

// New returns an empty store.
func New() *Store {
	return &Store{st: newState(), now: time.Now}
}

func (s *Store) withTx(ctx context.Context, fn func(*tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	work := s.st.clone()
	if err := fn(&tx{st: work, now: s.now}); err != nil {
		return err
	}
	s.st = work
	return nil
}

func (s *Store) read(fn func(*state)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.st)
}

// tx implements the transactional ports of every package.
type tx struct {
	st  *state
	now func() time.Time
}
