package service

import (
	"context"
	"fmt"
	"time"

	"arcade-backend/internal/model"
	"arcade-backend/internal/pkg/numeric"
	"arcade-backend/internal/pkg/retry"
	"arcade-backend/internal/progression"
	"arcade-backend/internal/repository"
)

const (
	defaultRankingLimit = 10
	maxRankingLimit     = 100
)

// StatsRanker lists top aggregates.
type StatsRanker interface {
	Top(ctx context.Context, metric string, limit int) ([]*model.Stats, error)
}

// WinnerLister lists a day's top gameplay earners.
type WinnerLister interface {
	DailyWinners(ctx context.Context, date time.Time, limit int) ([]*model.DailyRank, error)
}

// RankingService handles ranking and leaderboard operations.
type RankingService struct {
	stats    StatsRanker
	winners  WinnerLister
	policy   retry.Policy
	timezone *time.Location
	now      func() time.Time
}

// NewRankingService creates a new RankingService instance.
func NewRankingService(stats StatsRanker, winners WinnerLister, policy retry.Policy, timezone *time.Location) *RankingService {
	if timezone == nil {
		timezone = time.UTC
	}
	return &RankingService{
		stats:    stats,
		winners:  winners,
		policy:   policy,
		timezone: timezone,
		now:      time.Now,
	}
}

// Top returns the all-time leaderboard for metric (coins, exp or games).
func (s *RankingService) Top(ctx context.Context, metric string, limit int) ([]model.RankEntry, error) {
	switch metric {
	case "":
		metric = repository.MetricCoins
	case repository.MetricCoins, repository.MetricExp, repository.MetricGames:
	default:
		return nil, fmt.Errorf("%w: unknown metric %q", ErrValidation, metric)
	}

	rows, err := retry.Do(ctx, s.policy, "ranking.top", func(ctx context.Context) ([]*model.Stats, error) {
		return s.stats.Top(ctx, metric, clampLimit(limit))
	})
	if err != nil {
		if repository.IsUndefinedRelation(err) {
			return []model.RankEntry{}, nil
		}
		return nil, fmt.Errorf("failed to load leaderboard: %w", err)
	}

	entries := make([]model.RankEntry, 0, len(rows))
	for _, r := range rows {
		exp := numeric.Normalize(r.Exp)
		entries = append(entries, model.RankEntry{
			AccountID:   r.AccountID,
			Coins:       numeric.Normalize(r.Coins),
			Exp:         exp,
			GamesPlayed: numeric.Normalize(r.GamesPlayed),
			Level:       progression.LevelFromExperience(exp),
		})
	}
	return entries, nil
}

// DailyWinners returns today's top gameplay earners in the service timezone.
func (s *RankingService) DailyWinners(ctx context.Context, limit int) ([]*model.DailyRank, error) {
	today := s.now().In(s.timezone)
	winners, err := retry.Do(ctx, s.policy, "ranking.daily", func(ctx context.Context) ([]*model.DailyRank, error) {
		return s.winners.DailyWinners(ctx, today, clampLimit(limit))
	})
	if err != nil {
		if repository.IsUndefinedRelation(err) {
			return []*model.DailyRank{}, nil
		}
		return nil, fmt.Errorf("failed to load daily winners: %w", err)
	}
	return winners, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultRankingLimit
	}
	return min(limit, maxRankingLimit)
}
