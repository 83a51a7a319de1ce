package subledger

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
)

type mapDirectory struct {
	entities map[string]Entity
	err      error
}

func (d *mapDirectory) FindEntity(_ context.Context, company string, kind accounting.SubAccountKind, id string) (Entity, error) {
	if d.err != nil {
		return Entity{}, d.err
	}
	e, ok := d.entities[company+"/"+string(kind)+"/"+id]
	if !ok {
		return Entity{}, ErrEntityNotFound
	}
	return e, nil
}

func (d *mapDirectory) UpsertEntity(_ context.Context, e Entity) error {
	if d.entities == nil {
		d.entities = make(map[string]Entity)
	}
	d.entities[e.Company+"/"+string(e.Kind)+"/"+e.ID] = e
	return nil
}

func TestResolve(t *testing.T) {
	ctx := context.Background()
	dir := &mapDirectory{}
	r := NewResolver(dir)
	require.NoError(t, r.Register(ctx, Entity{Company: "acme", Kind: "customer", ID: " C-1 ", Name: "Initech", IsActive: true}))
	require.NoError(t, r.Register(ctx, Entity{Company: "acme", Kind: accounting.SubAccountSupplier, ID: "S-1", Name: "Old Supplier"}))

	ref, err := r.Resolve(ctx, "acme", accounting.SubAccountRef{Kind: accounting.SubAccountCustomer, ID: "C-1"})
	require.NoError(t, err)
	assert.Equal(t, "Initech", ref.Name)
	assert.Equal(t, "CUSTOMER:C-1", ref.Key())

	none, err := r.Resolve(ctx, "acme", accounting.SubAccountRef{})
	require.NoError(t, err)
	assert.True(t, none.IsNone())

	cases := map[string]accounting.SubAccountRef{
		"id without kind": {ID: "C-1"},
		"missing id":      {Kind: accounting.SubAccountCustomer},
		"unknown kind":    {Kind: "VENDOR", ID: "V-1"},
		"not found":       {Kind: accounting.SubAccountCustomer, ID: "C-404"},
		"inactive":        {Kind: accounting.SubAccountSupplier, ID: "S-1"},
		"wrong kind":      {Kind: accounting.SubAccountEmployee, ID: "C-1"},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := r.Resolve(ctx, "acme", in)
			assert.ErrorIs(t, err, accounting.ErrInvalidSubAccount)
		})
	}
}

func TestResolvePassesThroughDirectoryFailures(t *testing.T) {
	down := errors.New("directory down")
	r := NewResolver(&mapDirectory{err: down})
	_, err := r.Resolve(context.Background(), "acme", accounting.SubAccountRef{Kind: accounting.SubAccountCustomer, ID: "C-1"})
	assert.ErrorIs(t, err, down)
	assert.NotErrorIs(t, err, accounting.ErrInvalidSubAccount)
}

func TestRegisterValidates(t *testing.T) {
	r := NewResolver(&mapDirectory{})
	ctx := context.Background()
	assert.ErrorIs(t, r.Register(ctx, Entity{Kind: accounting.SubAccountCustomer, ID: "C-1"}), accounting.ErrCompanyRequired)
	assert.ErrorIs(t, r.Register(ctx, Entity{Company: "acme", Kind: accounting.SubAccountCustomer}), accounting.ErrInvalidSubAccount)
	assert.ErrorIs(t, r.Register(ctx, Entity{Company: "acme", ID: "X"}), accounting.ErrInvalidSubAccount)
}
