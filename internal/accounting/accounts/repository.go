package accounts

import (
	"context"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
)

// Repository abstracts chart of accounts persistence.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetAccount(ctx context.Context, company string, id int64) (accounting.Account, error)
	GetAccountByNumber(ctx context.Context, company, number string) (accounting.Account, error)
	ListAccounts(ctx context.Context, company string) ([]accounting.Account, error)
}

// TxRepository exposes the transactional operations used by the registry.
type TxRepository interface {
	GetAccountForUpdate(ctx context.Context, company string, id int64) (accounting.Account, error)
	GetAccountByNumber(ctx context.Context, company, number string) (accounting.Account, error)
	InsertAccount(ctx context.Context, account accounting.Account) (accounting.Account, error)
	UpdateAccount(ctx context.Context, account accounting.Account) error
	ListChildAccounts(ctx context.Context, company string, parentID int64) ([]accounting.Account, error)
}
