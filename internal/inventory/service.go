package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Metrics observes costing events.
type Metrics interface {
	ObserveInventory(event string)
}

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	AllowNegativeStock bool
	Logger             *slog.Logger
	Metrics            Metrics
}

// Service is the moving-average costing engine.
type Service struct {
	repo        Repository
	audit       AuditPort
	idempotency IdempotencyPort
	allowNeg    bool
	metrics     Metrics
	logger      *slog.Logger
	now         func() time.Time
}

// NewService builds Service.
func NewService(repo Repository, audit AuditPort, idem IdempotencyPort, cfg ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:        repo,
		audit:       audit,
		idempotency: idem,
		allowNeg:    cfg.AllowNegativeStock,
		metrics:     cfg.Metrics,
		logger:      logger,
		now:         time.Now,
	}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Receive records a receipt and returns the running average after it.
func (s *Service) Receive(ctx context.Context, in ReceiveInput) (ReceiveResult, error) {
	if err := validateKey(in.Company, in.ProductID); err != nil {
		return ReceiveResult{}, err
	}
	if !in.Quantity.IsPositive() {
		return ReceiveResult{}, ErrInvalidQuantity
	}
	if in.UnitCost.IsNegative() {
		return ReceiveResult{}, ErrInvalidUnitCost
	}
	line := LedgerLine{
		Company:   in.Company,
		ProductID: in.ProductID,
		Date:      accounting.DateOnly(in.Date),
		Direction: DirectionReceipt,
		SourceRef: in.SourceRef,
		Quantity:  in.Quantity,
		UnitCost:  in.UnitCost,
	}
	stored, replayed, err := s.post(ctx, line, in.Actor)
	if err != nil {
		return ReceiveResult{}, err
	}
	return ReceiveResult{Line: stored, RunningAverage: stored.AverageCost, Replayed: replayed}, nil
}

// Issue records an issue costed at the current average.
func (s *Service) Issue(ctx context.Context, in IssueInput) (IssueResult, error) {
	if err := validateKey(in.Company, in.ProductID); err != nil {
		return IssueResult{}, err
	}
	if !in.Quantity.IsPositive() {
		return IssueResult{}, ErrInvalidQuantity
	}
	line := LedgerLine{
		Company:   in.Company,
		ProductID: in.ProductID,
		Date:      accounting.DateOnly(in.Date),
		Direction: DirectionIssue,
		SourceRef: in.SourceRef,
		Quantity:  in.Quantity,
	}
	stored, replayed, err := s.post(ctx, line, in.Actor)
	if err != nil {
		return IssueResult{}, err
	}
	return IssueResult{
		Line:         stored,
		UnitCostUsed: stored.UnitCost,
		Balance:      positionOf(stored),
		Replayed:     replayed,
	}, nil
}

func (s *Service) post(ctx context.Context, line LedgerLine, actor string) (LedgerLine, int, error) {
	idemKey := ""
	if line.SourceRef != "" && s.idempotency != nil {
		idemKey = fmt.Sprintf("inventory:%s:%s:%s", line.Company, line.ProductID, line.SourceRef)
		if err := s.idempotency.CheckAndInsert(ctx, idemKey, "inventory"); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				return LedgerLine{}, 0, fmt.Errorf("%w: %s", ErrDuplicateMovement, line.SourceRef)
			}
			return LedgerLine{}, 0, err
		}
	}
	var (
		stored   LedgerLine
		replayed int
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		balance, err := tx.LockProduct(ctx, line.Company, line.ProductID)
		if err != nil {
			return err
		}
		if balance.LockedThrough != nil && !line.Date.After(*balance.LockedThrough) {
			return fmt.Errorf("%w: %s on or before %s", ErrTransactionLocked, line.Date.Format(time.DateOnly), balance.LockedThrough.Format(time.DateOnly))
		}
		start := zeroPosition()
		prev, err := tx.LastLineAtOrBefore(ctx, line.Company, line.ProductID, line.Date)
		switch {
		case err == nil:
			start = positionOf(prev)
		case errors.Is(err, ErrNotFound):
		default:
			return err
		}
		later, err := tx.ListLinesAfter(ctx, line.Company, line.ProductID, line.Date)
		if err != nil {
			return err
		}
		pos := step(start, &line)
		if err := s.checkNegative(line); err != nil {
			return err
		}
		line.CreatedAt = s.now().UTC()
		stored, err = tx.InsertLine(ctx, line)
		if err != nil {
			return err
		}
		for i := range later {
			next := later[i]
			pos = step(pos, &next)
			if err := s.checkNegative(next); err != nil {
				return err
			}
			if err := tx.UpdateLine(ctx, next); err != nil {
				return err
			}
			replayed++
		}
		balance.Position = pos
		balance.UpdatedAt = s.now().UTC()
		return tx.SaveBalance(ctx, balance)
	})
	if err != nil {
		if idemKey != "" {
			_ = s.idempotency.Delete(ctx, idemKey)
		}
		return LedgerLine{}, 0, err
	}
	if replayed > 0 {
		s.logger.Info("inventory backdated posting replayed later lines",
			slog.String("company", stored.Company),
			slog.String("product", stored.ProductID),
			slog.Int("replayed", replayed))
	}
	s.observe(string(stored.Direction))
	s.record(ctx, actor, "inventory."+string(stored.Direction), stored)
	return stored, replayed, nil
}

// checkNegative enforces the negative stock policy. The event is logged
// whichever way the policy decides.
func (s *Service) checkNegative(line LedgerLine) error {
	if !line.BalanceQty.IsNegative() {
		return nil
	}
	s.logger.Warn("inventory balance below zero",
		slog.String("company", line.Company),
		slog.String("product", line.ProductID),
		slog.String("date", line.Date.Format(time.DateOnly)),
		slog.String("balance", line.BalanceQty.String()),
		slog.Bool("allowed", s.allowNeg))
	if s.allowNeg {
		s.observe("negative_allowed")
		return nil
	}
	s.observe("insufficient")
	return fmt.Errorf("%w: balance would be %s on %s", ErrInsufficientInventory, line.BalanceQty, line.Date.Format(time.DateOnly))
}

// LockThrough freezes every line of the product dated on or before date into
// the locked transaction queues. Later postings dated on or before date are
// rejected with ErrTransactionLocked.
func (s *Service) LockThrough(ctx context.Context, company, productID string, date time.Time, actor string) (int, error) {
	if err := validateKey(company, productID); err != nil {
		return 0, err
	}
	lockDate := accounting.DateOnly(date)
	locked := 0
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		balance, err := tx.LockProduct(ctx, company, productID)
		if err != nil {
			return err
		}
		if balance.LockedThrough != nil && !lockDate.After(*balance.LockedThrough) {
			return nil
		}
		lines, err := tx.ListUnlockedThrough(ctx, company, productID, lockDate)
		if err != nil {
			return err
		}
		ids := make([]int64, 0, len(lines))
		for _, line := range lines {
			kind := QueuePurchase
			if line.Direction == DirectionIssue {
				kind = QueueSales
			}
			if err := tx.InsertLockedEntry(ctx, LockedEntry{
				Company:    company,
				ProductID:  productID,
				Kind:       kind,
				LineID:     line.ID,
				LockedDate: lockDate,
				SourceRef:  line.SourceRef,
				Quantity:   line.Quantity,
				Price:      line.UnitCost,
			}); err != nil {
				return err
			}
			ids = append(ids, line.ID)
		}
		if err := tx.MarkLocked(ctx, ids); err != nil {
			return err
		}
		locked = len(ids)
		balance.LockedThrough = &lockDate
		balance.UpdatedAt = s.now().UTC()
		return tx.SaveBalance(ctx, balance)
	})
	if err != nil {
		return 0, err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			Actor:    actor,
			Company:  company,
			Action:   "inventory.lock",
			Entity:   "inventory_product",
			EntityID: productID,
			Meta:     map[string]any{"locked_through": lockDate.Format(time.DateOnly), "lines": locked},
			At:       s.now().UTC(),
		})
	}
	return locked, nil
}

// Ledger returns the stock card of a product between from and to, inclusive.
// Zero bounds are open.
func (s *Service) Ledger(ctx context.Context, filter LedgerFilter) ([]LedgerLine, error) {
	if err := validateKey(filter.Company, filter.ProductID); err != nil {
		return nil, err
	}
	if !filter.From.IsZero() && !filter.To.IsZero() && filter.To.Before(filter.From) {
		return nil, errors.New("inventory: to before from")
	}
	return s.repo.ListLedger(ctx, filter)
}

// GetBalance returns the current position of a product.
func (s *Service) GetBalance(ctx context.Context, company, productID string) (Balance, error) {
	if err := validateKey(company, productID); err != nil {
		return Balance{}, err
	}
	return s.repo.GetBalance(ctx, company, productID)
}

// LockedQueue returns the locked transaction queue entries of a product.
func (s *Service) LockedQueue(ctx context.Context, company, productID string) ([]LockedEntry, error) {
	if err := validateKey(company, productID); err != nil {
		return nil, err
	}
	return s.repo.ListLockedEntries(ctx, company, productID)
}

func (s *Service) record(ctx context.Context, actor, action string, line LedgerLine) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		Actor:    actor,
		Company:  line.Company,
		Action:   action,
		Entity:   "inventory_line",
		EntityID: fmt.Sprintf("%d", line.ID),
		Meta: map[string]any{
			"product_id": line.ProductID,
			"quantity":   line.Quantity.String(),
			"unit_cost":  line.UnitCost.String(),
			"source_ref": line.SourceRef,
		},
		At: s.now().UTC(),
	})
}

func (s *Service) observe(event string) {
	if s.metrics != nil {
		s.metrics.ObserveInventory(event)
	}
}
