package accounts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
)

// Service is the chart of accounts registry.
type Service struct {
	repo   Repository
	logger *slog.Logger
}

// NewService constructs the registry.
func NewService(repo Repository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger}
}

// Create validates and inserts a new account, flipping the parent to a header account.
func (s *Service) Create(ctx context.Context, in CreateInput) (accounting.Account, error) {
	if err := in.Validate(); err != nil {
		return accounting.Account{}, err
	}
	account := accounting.Account{
		Company:           strings.TrimSpace(in.Company),
		Number:            strings.TrimSpace(in.Number),
		Name:              strings.TrimSpace(in.Name),
		Type:              in.Type,
		NormalBalance:     in.NormalBalance,
		Statement:         in.Statement,
		Level:             1,
		RequiresSubLedger: in.RequiresSubLedger,
		IsActive:          true,
	}
	if account.NormalBalance == "" {
		account.NormalBalance = in.Type.DefaultNormalBalance()
	}
	if account.Statement == "" {
		account.Statement = in.Type.DefaultStatement()
	}
	var created accounting.Account
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.GetAccountByNumber(ctx, account.Company, account.Number); err == nil {
			return accounting.ErrAccountExists
		} else if !errors.Is(err, accounting.ErrAccountNotFound) {
			return err
		}
		if parentNo := strings.TrimSpace(in.ParentNumber); parentNo != "" {
			parent, err := tx.GetAccountByNumber(ctx, account.Company, parentNo)
			if err != nil {
				return fmt.Errorf("accounts: parent %s: %w", parentNo, err)
			}
			parent, err = tx.GetAccountForUpdate(ctx, account.Company, parent.ID)
			if err != nil {
				return err
			}
			account.ParentID = &parent.ID
			account.Level = parent.Level + 1
			if !parent.HasChildren {
				parent.HasChildren = true
				if err := tx.UpdateAccount(ctx, parent); err != nil {
					return err
				}
			}
		}
		var err error
		created, err = tx.InsertAccount(ctx, account)
		return err
	})
	if err != nil {
		return accounting.Account{}, err
	}
	s.logger.Info("account created",
		slog.String("company", created.Company),
		slog.String("number", created.Number),
		slog.Int("level", created.Level))
	return created, nil
}

// Move re-parents an account. An empty parent number makes it a root.
func (s *Service) Move(ctx context.Context, company, number, parentNumber string) (accounting.Account, error) {
	if company == "" {
		return accounting.Account{}, accounting.ErrCompanyRequired
	}
	var moved accounting.Account
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetAccountByNumber(ctx, company, number)
		if err != nil {
			return err
		}
		current, err = tx.GetAccountForUpdate(ctx, company, current.ID)
		if err != nil {
			return err
		}
		oldParent := current.ParentID
		level := 1
		var newParent *accounting.Account
		if parentNumber != "" {
			parent, err := tx.GetAccountByNumber(ctx, company, parentNumber)
			if err != nil {
				return fmt.Errorf("accounts: parent %s: %w", parentNumber, err)
			}
			if err := ensureNoCycle(ctx, tx, company, current.ID, parent); err != nil {
				return err
			}
			newParent = &parent
			level = parent.Level + 1
		}
		if newParent != nil {
			current.ParentID = &newParent.ID
			if !newParent.HasChildren {
				newParent.HasChildren = true
				if err := tx.UpdateAccount(ctx, *newParent); err != nil {
					return err
				}
			}
		} else {
			current.ParentID = nil
		}
		current.Level = level
		if err := tx.UpdateAccount(ctx, current); err != nil {
			return err
		}
		if err := relevelChildren(ctx, tx, current); err != nil {
			return err
		}
		if oldParent != nil && (newParent == nil || newParent.ID != *oldParent) {
			if err := refreshHasChildren(ctx, tx, company, *oldParent); err != nil {
				return err
			}
		}
		moved = current
		return nil
	})
	return moved, err
}

// Deactivate blocks further postings to the account.
func (s *Service) Deactivate(ctx context.Context, company, number string) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		account, err := tx.GetAccountByNumber(ctx, company, number)
		if err != nil {
			return err
		}
		account, err = tx.GetAccountForUpdate(ctx, company, account.ID)
		if err != nil {
			return err
		}
		account.IsActive = false
		return tx.UpdateAccount(ctx, account)
	})
}

// Get fetches an account by id.
func (s *Service) Get(ctx context.Context, company string, id int64) (accounting.Account, error) {
	return s.repo.GetAccount(ctx, company, id)
}

// GetByNumber fetches an account by number.
func (s *Service) GetByNumber(ctx context.Context, company, number string) (accounting.Account, error) {
	if company == "" {
		return accounting.Account{}, accounting.ErrCompanyRequired
	}
	return s.repo.GetAccountByNumber(ctx, company, number)
}

// List returns every account for the company ordered by number.
func (s *Service) List(ctx context.Context, company string) ([]accounting.Account, error) {
	if company == "" {
		return nil, accounting.ErrCompanyRequired
	}
	return s.repo.ListAccounts(ctx, company)
}

func ensureNoCycle(ctx context.Context, tx TxRepository, company string, id int64, parent accounting.Account) error {
	seen := map[int64]bool{}
	node := parent
	for {
		if node.ID == id {
			return accounting.ErrAccountCycle
		}
		if seen[node.ID] {
			return accounting.ErrAccountCycle
		}
		seen[node.ID] = true
		if node.ParentID == nil {
			return nil
		}
		next, err := tx.GetAccountForUpdate(ctx, company, *node.ParentID)
		if err != nil {
			return err
		}
		node = next
	}
}

func relevelChildren(ctx context.Context, tx TxRepository, parent accounting.Account) error {
	children, err := tx.ListChildAccounts(ctx, parent.Company, parent.ID)
	if err != nil {
		return err
	}
	for _, child := range children {
		child.Level = parent.Level + 1
		if err := tx.UpdateAccount(ctx, child); err != nil {
			return err
		}
		if err := relevelChildren(ctx, tx, child); err != nil {
			return err
		}
	}
	return nil
}

func refreshHasChildren(ctx context.Context, tx TxRepository, company string, id int64) error {
	account, err := tx.GetAccountForUpdate(ctx, company, id)
	if err != nil {
		return err
	}
	children, err := tx.ListChildAccounts(ctx, company, id)
	if err != nil {
		return err
	}
	has := len(children) > 0
	if account.HasChildren == has {
		return nil
	}
	account.HasChildren = has
	return tx.UpdateAccount(ctx, account)
}
