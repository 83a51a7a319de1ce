package inventory_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/memstore"
	"github.com/odyssey-erp/odyssey-ledger/internal/inventory"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

func day(d int) time.Time {
	return time.Date(2024, time.January, d, 0, 0, 0, 0, time.UTC)
}

func dec(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}

func newService(t *testing.T, allowNegative bool) (*inventory.Service, *shared.MemoryAuditLog) {
	t.Helper()
	audit := &shared.MemoryAuditLog{}
	svc := inventory.NewService(memstore.New().Inventory(), audit, shared.NewMemoryIdempotencyStore(), inventory.ServiceConfig{AllowNegativeStock: allowNegative})
	return svc, audit
}

func receive(t *testing.T, svc *inventory.Service, d int, qty, cost int64, ref string) inventory.ReceiveResult {
	t.Helper()
	res, err := svc.Receive(context.Background(), inventory.ReceiveInput{
		Company: "acme", ProductID: "SKU-1", Date: day(d), Quantity: dec(qty), UnitCost: dec(cost), SourceRef: ref, Actor: "wh",
	})
	require.NoError(t, err)
	return res
}

func TestMovingAverage(t *testing.T) {
	svc, audit := newService(t, false)
	ctx := context.Background()

	receive(t, svc, 1, 100, 10, "GRN-1")
	res := receive(t, svc, 2, 50, 13, "GRN-2")
	assert.True(t, res.RunningAverage.Equal(dec(11)), "average %s", res.RunningAverage)

	out, err := svc.Issue(ctx, inventory.IssueInput{Company: "acme", ProductID: "SKU-1", Date: day(3), Quantity: dec(30), SourceRef: "DO-1"})
	require.NoError(t, err)
	assert.True(t, out.UnitCostUsed.Equal(dec(11)))
	assert.True(t, out.Balance.Quantity.Equal(dec(120)))
	assert.True(t, out.Balance.Value.Equal(dec(1320)), "value %s", out.Balance.Value)

	bal, err := svc.GetBalance(ctx, "acme", "SKU-1")
	require.NoError(t, err)
	assert.True(t, bal.Quantity.Equal(dec(120)))
	assert.True(t, bal.AverageCost.Equal(dec(11)))
	assert.Len(t, audit.Records(), 3)
}

func TestIssueBeyondStockRejectedByDefault(t *testing.T) {
	svc, _ := newService(t, false)
	ctx := context.Background()
	receive(t, svc, 1, 10, 5, "GRN-1")

	_, err := svc.Issue(ctx, inventory.IssueInput{Company: "acme", ProductID: "SKU-1", Date: day(2), Quantity: dec(11), SourceRef: "DO-1"})
	require.ErrorIs(t, err, inventory.ErrInsufficientInventory)

	bal, err := svc.GetBalance(ctx, "acme", "SKU-1")
	require.NoError(t, err)
	assert.True(t, bal.Quantity.Equal(dec(10)))

	// A rejected movement releases its source reference.
	_, err = svc.Issue(ctx, inventory.IssueInput{Company: "acme", ProductID: "SKU-1", Date: day(2), Quantity: dec(4), SourceRef: "DO-1"})
	require.NoError(t, err)
}

func TestNegativeStockAllowedWhenConfigured(t *testing.T) {
	svc, _ := newService(t, true)
	ctx := context.Background()

	out, err := svc.Issue(ctx, inventory.IssueInput{Company: "acme", ProductID: "SKU-1", Date: day(1), Quantity: dec(10)})
	require.NoError(t, err)
	assert.True(t, out.Balance.Quantity.Equal(dec(-10)))

	res := receive(t, svc, 2, 20, 5, "")
	assert.True(t, res.RunningAverage.Equal(dec(5)))
	assert.True(t, res.Line.BalanceQty.Equal(dec(10)))
	assert.True(t, res.Line.BalanceValue.Equal(dec(50)))
}

func TestBackdatedReceiptReplaysLaterIssues(t *testing.T) {
	svc, _ := newService(t, false)
	ctx := context.Background()
	receive(t, svc, 1, 100, 10, "GRN-1")
	_, err := svc.Issue(ctx, inventory.IssueInput{Company: "acme", ProductID: "SKU-1", Date: day(10), Quantity: dec(50), SourceRef: "DO-1"})
	require.NoError(t, err)

	res := receive(t, svc, 5, 100, 16, "GRN-2")
	assert.Equal(t, 1, res.Replayed)
	assert.True(t, res.RunningAverage.Equal(dec(13)))

	lines, err := svc.Ledger(ctx, inventory.LedgerFilter{Company: "acme", ProductID: "SKU-1"})
	require.NoError(t, err)
	require.Len(t, lines, 3)
	assert.Equal(t, day(10), lines[2].Date)
	assert.True(t, lines[2].UnitCost.Equal(dec(13)), "recosted at %s", lines[2].UnitCost)
	assert.True(t, lines[2].BalanceValue.Equal(dec(1950)))

	bal, err := svc.GetBalance(ctx, "acme", "SKU-1")
	require.NoError(t, err)
	assert.True(t, bal.Quantity.Equal(dec(150)))
	assert.True(t, bal.Value.Equal(dec(1950)))
}

func TestLockThroughFreezesHistory(t *testing.T) {
	svc, _ := newService(t, false)
	ctx := context.Background()
	receive(t, svc, 1, 100, 10, "GRN-1")
	_, err := svc.Issue(ctx, inventory.IssueInput{Company: "acme", ProductID: "SKU-1", Date: day(3), Quantity: dec(20), SourceRef: "DO-1"})
	require.NoError(t, err)

	n, err := svc.LockThrough(ctx, "acme", "SKU-1", day(15), "controller")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = svc.Issue(ctx, inventory.IssueInput{Company: "acme", ProductID: "SKU-1", Date: day(15), Quantity: dec(1)})
	require.ErrorIs(t, err, inventory.ErrTransactionLocked)

	_, err = svc.Issue(ctx, inventory.IssueInput{Company: "acme", ProductID: "SKU-1", Date: day(16), Quantity: dec(1)})
	require.NoError(t, err)

	queue, err := svc.LockedQueue(ctx, "acme", "SKU-1")
	require.NoError(t, err)
	require.Len(t, queue, 2)
	kinds := map[inventory.QueueKind]int{}
	for _, entry := range queue {
		kinds[entry.Kind]++
		assert.Equal(t, day(15), entry.LockedDate)
	}
	assert.Equal(t, map[inventory.QueueKind]int{inventory.QueuePurchase: 1, inventory.QueueSales: 1}, kinds)

	// Locking an earlier date again is a no-op.
	n, err = svc.LockThrough(ctx, "acme", "SKU-1", day(10), "controller")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDuplicateSourceRejected(t *testing.T) {
	svc, _ := newService(t, false)
	receive(t, svc, 1, 10, 5, "GRN-1")

	_, err := svc.Receive(context.Background(), inventory.ReceiveInput{
		Company: "acme", ProductID: "SKU-1", Date: day(2), Quantity: dec(10), UnitCost: dec(5), SourceRef: "GRN-1",
	})
	require.ErrorIs(t, err, inventory.ErrDuplicateMovement)
}

func TestInputValidation(t *testing.T) {
	svc, _ := newService(t, false)
	ctx := context.Background()

	_, err := svc.Receive(ctx, inventory.ReceiveInput{Company: "acme", ProductID: "SKU-1", Date: day(1), Quantity: dec(0), UnitCost: dec(1)})
	assert.ErrorIs(t, err, inventory.ErrInvalidQuantity)
	_, err = svc.Receive(ctx, inventory.ReceiveInput{Company: "acme", ProductID: "SKU-1", Date: day(1), Quantity: dec(1), UnitCost: dec(-1)})
	assert.ErrorIs(t, err, inventory.ErrInvalidUnitCost)
	_, err = svc.Issue(ctx, inventory.IssueInput{Company: "acme", Date: day(1), Quantity: dec(1)})
	assert.ErrorIs(t, err, inventory.ErrProductRequired)
}
