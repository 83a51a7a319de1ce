package accounting

import (
	"fmt"
	"strings"
)

// SubAccountKind tags the entity a journal line is sub-ledgered against.
type SubAccountKind string

const (
	SubAccountNone        SubAccountKind = ""
	SubAccountCustomer    SubAccountKind = "CUSTOMER"
	SubAccountSupplier    SubAccountKind = "SUPPLIER"
	SubAccountEmployee    SubAccountKind = "EMPLOYEE"
	SubAccountBankAccount SubAccountKind = "BANK_ACCOUNT"
	SubAccountCompany     SubAccountKind = "COMPANY"
)

// ParseSubAccountKind normalises a kind name. Empty and "NONE" map to SubAccountNone.
func ParseSubAccountKind(raw string) (SubAccountKind, error) {
	switch k := SubAccountKind(strings.ToUpper(strings.TrimSpace(raw))); k {
	case "", "NONE":
		return SubAccountNone, nil
	case SubAccountCustomer, SubAccountSupplier, SubAccountEmployee, SubAccountBankAccount, SubAccountCompany:
		return k, nil
	}
	return SubAccountNone, fmt.Errorf("%w: unknown kind %q", ErrInvalidSubAccount, raw)
}

// SubAccountRef points at the entity behind a sub-ledger line. The zero value
// means the line carries no sub-account.
type SubAccountRef struct {
	Kind SubAccountKind `json:"kind"`
	ID   string         `json:"id"`
	Name string         `json:"name,omitempty"`
}

// IsNone reports whether the reference is empty.
func (r SubAccountRef) IsNone() bool {
	return r.Kind == SubAccountNone
}

// Key identifies the sub-account independently of its display name.
func (r SubAccountRef) Key() string {
	if r.IsNone() {
		return ""
	}
	return string(r.Kind) + ":" + r.ID
}

func (r SubAccountRef) String() string {
	if r.IsNone() {
		return "none"
	}
	if r.Name != "" {
		return fmt.Sprintf("%s %s (%s)", r.Kind, r.ID, r.Name)
	}
	return r.Key()
}
