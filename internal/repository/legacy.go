package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"arcade-backend/internal/model"
	"arcade-backend/internal/pkg/numeric"
	"arcade-backend/internal/progression"
)

// LegacyRepository reads the frozen pre-ledger tables (user_progress and
// user_balances). It never writes.
type LegacyRepository struct {
	pool *pgxpool.Pool
}

// NewLegacyRepository creates a new LegacyRepository instance.
func NewLegacyRepository(pool *pgxpool.Pool) *LegacyRepository {
	return &LegacyRepository{pool: pool}
}

// GetProgress retrieves the legacy progress row.
// Returns ErrLegacyNotFound if the row does not exist.
func (r *LegacyRepository) GetProgress(ctx context.Context, userID string) (*model.LegacyProgress, error) {
	const query = `
		SELECT user_id, exp, level, tickets
		FROM user_progress
		WHERE user_id = $1
	`

	var (
		p                   model.LegacyProgress
		exp, level, tickets any
	)
	err := r.pool.QueryRow(ctx, query, userID).Scan(&p.UserID, &exp, &level, &tickets)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLegacyNotFound
		}
		return nil, fmt.Errorf("failed to get legacy progress: %w", err)
	}

	p.Exp = numeric.Normalize(exp)
	p.Tickets = numeric.Normalize(tickets)
	if lvl := numeric.Normalize(level); lvl > 0 {
		p.Level = progression.ClampLevel(int(min(lvl, int64(progression.MaxLevel))))
	}
	return &p, nil
}

// GetBalance retrieves the legacy balance row.
// Returns ErrLegacyNotFound if the row does not exist.
func (r *LegacyRepository) GetBalance(ctx context.Context, userID string) (*model.LegacyBalance, error) {
	const query = `
		SELECT user_id, balance
		FROM user_balances
		WHERE user_id = $1
	`

	var (
		b       model.LegacyBalance
		balance any
	)
	err := r.pool.QueryRow(ctx, query, userID).Scan(&b.UserID, &balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLegacyNotFound
		}
		return nil, fmt.Errorf("failed to get legacy balance: %w", err)
	}

	b.Balance = numeric.Normalize(balance)
	return &b, nil
}
