package amortization

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository abstracts schedule persistence.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	// InsertSetting returns ErrScheduleExists when the source entry already has one.
	InsertSetting(ctx context.Context, setting Setting) (Setting, error)
	GetSetting(ctx context.Context, company string, id int64) (Setting, error)
	FindBySource(ctx context.Context, company string, sourceEntryID uuid.UUID) (Setting, error)
	ListSettings(ctx context.Context, company string, activeOnly bool) ([]Setting, error)
	ListDue(ctx context.Context, company string, asOf time.Time) ([]Setting, error)
	ListCompaniesWithDue(ctx context.Context, asOf time.Time) ([]string, error)
}

// TxRepository exposes locked schedule mutation.
type TxRepository interface {
	GetSettingForUpdate(ctx context.Context, company string, id int64) (Setting, error)
	UpdateSetting(ctx context.Context, setting Setting) error
}
