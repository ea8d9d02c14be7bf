package service

import (
	"context"
	"fmt"

	"arcade-backend/internal/model"
	"arcade-backend/internal/pkg/retry"
	"arcade-backend/internal/repository"
)

// MaxHistoryLimit caps one page of ledger history.
const MaxHistoryLimit = 200

// TransactionLister reads ledger entries for one account, newest first.
type TransactionLister interface {
	ListByAccount(ctx context.Context, accountID string, limit int) ([]*model.Transaction, error)
}

// HistoryService serves an account's ledger history.
type HistoryService struct {
	txs    TransactionLister
	policy retry.Policy
}

// NewHistoryService creates a new HistoryService instance.
func NewHistoryService(txs TransactionLister, policy retry.Policy) *HistoryService {
	return &HistoryService{txs: txs, policy: policy}
}

// ListByAccount returns up to limit entries. A ledger table that does not
// exist yet reads as an empty history.
func (s *HistoryService) ListByAccount(ctx context.Context, accountID string, limit int) ([]*model.Transaction, error) {
	id, err := NormalizeAccountID(accountID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}

	txs, err := retry.Do(ctx, s.policy, "ledger.history", func(ctx context.Context) ([]*model.Transaction, error) {
		return s.txs.ListByAccount(ctx, id, limit)
	})
	if err != nil {
		if repository.IsUndefinedRelation(err) {
			return []*model.Transaction{}, nil
		}
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	return txs, nil
}
