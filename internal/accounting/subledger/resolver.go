// Package subledger resolves the polymorphic sub-account reference carried by
// journal lines against the entities maintained by master data modules.
package subledger

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
)

// Entity is a customer, supplier, employee, bank account or company that lines
// can be sub-ledgered against.
type Entity struct {
	Company  string                    `json:"company"`
	Kind     accounting.SubAccountKind `json:"kind"`
	ID       string                    `json:"id"`
	Name     string                    `json:"name"`
	IsActive bool                      `json:"is_active"`
}

// Ref returns the journal line reference for the entity.
func (e Entity) Ref() accounting.SubAccountRef {
	return accounting.SubAccountRef{Kind: e.Kind, ID: e.ID, Name: e.Name}
}

// ErrEntityNotFound indicates the directory has no such entity.
var ErrEntityNotFound = errors.New("subledger: entity not found")

// Directory looks up and registers sub-ledger entities.
type Directory interface {
	FindEntity(ctx context.Context, company string, kind accounting.SubAccountKind, id string) (Entity, error)
	UpsertEntity(ctx context.Context, entity Entity) error
}

// Resolver validates sub-account references.
type Resolver struct {
	dir Directory
}

// NewResolver constructs a Resolver.
func NewResolver(dir Directory) *Resolver {
	return &Resolver{dir: dir}
}

// Resolve checks that ref points at an existing, active entity of its kind and
// returns the reference with the directory's display name. A None reference
// resolves to itself.
func (r *Resolver) Resolve(ctx context.Context, company string, ref accounting.SubAccountRef) (accounting.SubAccountRef, error) {
	if ref.IsNone() {
		if strings.TrimSpace(ref.ID) != "" {
			return accounting.SubAccountRef{}, fmt.Errorf("%w: id %q without kind", accounting.ErrInvalidSubAccount, ref.ID)
		}
		return accounting.SubAccountRef{}, nil
	}
	kind, err := accounting.ParseSubAccountKind(string(ref.Kind))
	if err != nil {
		return accounting.SubAccountRef{}, err
	}
	id := strings.TrimSpace(ref.ID)
	if kind == accounting.SubAccountNone {
		if id != "" {
			return accounting.SubAccountRef{}, fmt.Errorf("%w: id %q without kind", accounting.ErrInvalidSubAccount, id)
		}
		return accounting.SubAccountRef{}, nil
	}
	if id == "" {
		return accounting.SubAccountRef{}, fmt.Errorf("%w: %s id required", accounting.ErrInvalidSubAccount, kind)
	}
	entity, err := r.dir.FindEntity(ctx, company, kind, id)
	if err != nil {
		if errors.Is(err, ErrEntityNotFound) {
			return accounting.SubAccountRef{}, fmt.Errorf("%w: %s %s not found", accounting.ErrInvalidSubAccount, kind, id)
		}
		return accounting.SubAccountRef{}, err
	}
	if !entity.IsActive {
		return accounting.SubAccountRef{}, fmt.Errorf("%w: %s %s inactive", accounting.ErrInvalidSubAccount, kind, id)
	}
	return entity.Ref(), nil
}

// Register records or refreshes an entity on behalf of an upstream master data module.
func (r *Resolver) Register(ctx context.Context, entity Entity) error {
	if entity.Company == "" {
		return accounting.ErrCompanyRequired
	}
	kind, err := accounting.ParseSubAccountKind(string(entity.Kind))
	if err != nil {
		return err
	}
	if kind == accounting.SubAccountNone || strings.TrimSpace(entity.ID) == "" {
		return fmt.Errorf("%w: kind and id required", accounting.ErrInvalidSubAccount)
	}
	entity.Kind = kind
	entity.ID = strings.TrimSpace(entity.ID)
	return r.dir.UpsertEntity(ctx, entity)
}
