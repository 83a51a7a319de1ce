package inventory

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Direction tells receipts from issues.
type Direction string

const (
	DirectionReceipt Direction = "RECEIPT"
	DirectionIssue   Direction = "ISSUE"
)

// QueueKind selects the locked transaction queue a frozen line lands in.
type QueueKind string

const (
	QueuePurchase QueueKind = "PURCHASE"
	QueueSales    QueueKind = "SALES"
)

// LedgerLine is one stock card row with the running position after it.
type LedgerLine struct {
	ID           int64           `json:"id"`
	Company      string          `json:"company"`
	ProductID    string          `json:"product_id"`
	Date         time.Time       `json:"date"`
	Direction    Direction       `json:"direction"`
	SourceRef    string          `json:"source_ref,omitempty"`
	Quantity     decimal.Decimal `json:"quantity"`
	UnitCost     decimal.Decimal `json:"unit_cost"`
	BalanceQty   decimal.Decimal `json:"balance_quantity"`
	AverageCost  decimal.Decimal `json:"average_cost"`
	BalanceValue decimal.Decimal `json:"balance_value"`
	Locked       bool            `json:"locked"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Position is the running state of one product.
type Position struct {
	Quantity    decimal.Decimal `json:"quantity"`
	AverageCost decimal.Decimal `json:"average_cost"`
	Value       decimal.Decimal `json:"value"`
}

// Balance is the current position of one product.
type Balance struct {
	Company       string     `json:"company"`
	ProductID     string     `json:"product_id"`
	LockedThrough *time.Time `json:"locked_through,omitempty"`
	Position
	UpdatedAt time.Time `json:"updated_at"`
}

// LockedEntry is a row of the sales or purchase locked transaction queue.
type LockedEntry struct {
	ID         int64           `json:"id"`
	Company    string          `json:"company"`
	ProductID  string          `json:"product_id"`
	Kind       QueueKind       `json:"kind"`
	LineID     int64           `json:"line_id"`
	LockedDate time.Time       `json:"locked_date"`
	SourceRef  string          `json:"source_ref,omitempty"`
	Quantity   decimal.Decimal `json:"quantity"`
	Price      decimal.Decimal `json:"price"`
}

// ReceiveInput records stock coming in.
type ReceiveInput struct {
	Company   string
	ProductID string
	Date      time.Time
	Quantity  decimal.Decimal
	UnitCost  decimal.Decimal
	SourceRef string
	Actor     string
}

// IssueInput records stock going out at the current average.
type IssueInput struct {
	Company   string
	ProductID string
	Date      time.Time
	Quantity  decimal.Decimal
	SourceRef string
	Actor     string
}

// ReceiveResult is returned by Receive.
type ReceiveResult struct {
	Line           LedgerLine      `json:"line"`
	RunningAverage decimal.Decimal `json:"running_average"`
	Replayed       int             `json:"replayed"`
}

// IssueResult is returned by Issue.
type IssueResult struct {
	Line         LedgerLine      `json:"line"`
	UnitCostUsed decimal.Decimal `json:"unit_cost_used"`
	Balance      Position        `json:"balance"`
	Replayed     int             `json:"replayed"`
}

// LedgerFilter narrows stock card reads.
type LedgerFilter struct {
	Company   string
	ProductID string
	From      time.Time
	To        time.Time
}

var (
	// ErrProductRequired indicates a call without company or product.
	ErrProductRequired = errors.New("inventory: company and product required")
	// ErrInvalidQuantity indicates a non-positive quantity.
	ErrInvalidQuantity = errors.New("inventory: quantity must be positive")
	// ErrInvalidUnitCost indicates a negative unit cost.
	ErrInvalidUnitCost = errors.New("inventory: unit cost must be >= 0")
	// ErrInsufficientInventory indicates an issue larger than the balance on hand.
	ErrInsufficientInventory = errors.New("inventory: insufficient inventory")
	// ErrTransactionLocked indicates a posting dated on or before the product lock date.
	ErrTransactionLocked = errors.New("inventory: transaction date is locked")
	// ErrDuplicateMovement indicates the source document was already recorded.
	ErrDuplicateMovement = errors.New("inventory: movement already recorded")
	// ErrNotFound indicates a missing product row.
	ErrNotFound = errors.New("inventory: not found")
)

func validateKey(company, product string) error {
	if strings.TrimSpace(company) == "" || strings.TrimSpace(product) == "" {
		return ErrProductRequired
	}
	return nil
}
