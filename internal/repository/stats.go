package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"arcade-backend/internal/model"
	"arcade-backend/internal/pkg/numeric"
)

// Leaderboard metrics accepted by StatsRepository.Top.
const (
	MetricCoins = "coins"
	MetricExp   = "exp"
	MetricGames = "games"
)

// StatsRepository handles the canonical per-account aggregate (user_stats).
type StatsRepository struct {
	pool *pgxpool.Pool
}

// NewStatsRepository creates a new StatsRepository instance.
func NewStatsRepository(pool *pgxpool.Pool) *StatsRepository {
	return &StatsRepository{pool: pool}
}

// Get retrieves the canonical aggregate for an account.
// Returns ErrStatsNotFound if the row does not exist. A missing table surfaces
// as the driver error; check it with IsUndefinedRelation.
func (r *StatsRepository) Get(ctx context.Context, accountID string) (*model.Stats, error) {
	const query = `
		SELECT user_id::text, coins, exp, tickets, games_played, updated_at
		FROM user_stats
		WHERE user_id = $1
	`

	stats, err := scanStats(r.pool.QueryRow(ctx, query, accountID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrStatsNotFound
		}
		return nil, fmt.Errorf("failed to get stats: %w", err)
	}

	return stats, nil
}

// EnsureRow inserts a zeroed aggregate row for the account if none exists.
func (r *StatsRepository) EnsureRow(ctx context.Context, q DBTX, accountID string) error {
	const query = `
		INSERT INTO user_stats (user_id, coins, exp, tickets, games_played, updated_at)
		VALUES ($1, 0, 0, 0, 0, NOW())
		ON CONFLICT (user_id) DO NOTHING
	`

	if _, err := q.Exec(ctx, query, accountID); err != nil {
		return fmt.Errorf("failed to ensure stats row: %w", err)
	}
	return nil
}

// Apply adds a ledger entry's deltas to the account's aggregate row.
// It must run in the same transaction as the entry insert.
func (r *StatsRepository) Apply(ctx context.Context, q DBTX, d model.Delta) (*model.Stats, error) {
	const query = `
		UPDATE user_stats
		SET coins = coins + $2,
		    exp = exp + $3,
		    tickets = tickets + $4,
		    games_played = games_played + $5,
		    updated_at = NOW()
		WHERE user_id = $1
		RETURNING user_id::text, coins, exp, tickets, games_played, updated_at
	`

	stats, err := scanStats(q.QueryRow(ctx, query, d.AccountID, d.Coins, d.Exp, d.Tickets, d.Plays))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrStatsNotFound
		}
		return nil, fmt.Errorf("failed to apply stats delta: %w", err)
	}

	return stats, nil
}

// Top retrieves the top N aggregates ordered by metric.
func (r *StatsRepository) Top(ctx context.Context, metric string, limit int) ([]*model.Stats, error) {
	var column string
	switch metric {
	case MetricCoins, "":
		column = "coins"
	case MetricExp:
		column = "exp"
	case MetricGames:
		column = "games_played"
	default:
		return nil, fmt.Errorf("unknown leaderboard metric %q", metric)
	}

	query := `
		SELECT user_id::text, coins, exp, tickets, games_played, updated_at
		FROM user_stats
		WHERE ` + column + ` > 0
		ORDER BY ` + column + ` DESC, updated_at ASC
		LIMIT $1
	`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get top stats: %w", err)
	}
	defer rows.Close()

	var result []*model.Stats
	for rows.Next() {
		stats, err := scanStats(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan stats: %w", err)
		}
		result = append(result, stats)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating stats: %w", err)
	}

	return result, nil
}

// scanStats reads counters as untyped values so column type drift (bigint,
// numeric, text) is absorbed by the numeric normalizer.
func scanStats(row pgx.Row) (*model.Stats, error) {
	var (
		stats                          model.Stats
		coins, exp, tickets, gamesPlay any
	)
	if err := row.Scan(&stats.AccountID, &coins, &exp, &tickets, &gamesPlay, &stats.UpdatedAt); err != nil {
		return nil, err
	}
	stats.Coins = numeric.Signed(coins)
	stats.Exp = numeric.Signed(exp)
	stats.Tickets = numeric.Signed(tickets)
	stats.GamesPlayed = numeric.Signed(gamesPlay)
	return &stats, nil
}
