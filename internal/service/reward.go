package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"arcade-backend/internal/config"
	"arcade-backend/internal/model"
)

// DailyClaimResult is the outcome of a daily reward claim.
type DailyClaimResult struct {
	Delta    model.Delta
	Snapshot model.WalletSnapshot
}

// RewardService grants the once-a-day login reward.
type RewardService struct {
	ledger    Appender
	snapshots SnapshotLoader
	daily     config.DailyConfig
	location  *time.Location
	now       func() time.Time
}

// NewRewardService creates a new RewardService instance. Days roll over at
// midnight in loc.
func NewRewardService(ledger Appender, snapshots SnapshotLoader, daily config.DailyConfig, loc *time.Location) *RewardService {
	if loc == nil {
		loc = time.UTC
	}
	return &RewardService{
		ledger:    ledger,
		snapshots: snapshots,
		daily:     daily,
		location:  loc,
		now:       time.Now,
	}
}

// DailyKey returns the idempotency key for accountID's claim on the day containing t.
func DailyKey(accountID string, t time.Time) string {
	return "daily:" + accountID + ":" + t.Format(time.DateOnly)
}

// ClaimDaily grants today's reward. A second claim on the same day returns
// ErrDailyAlreadyClaimed.
func (s *RewardService) ClaimDaily(ctx context.Context, accountID string) (*DailyClaimResult, error) {
	id, err := NormalizeAccountID(accountID)
	if err != nil {
		return nil, err
	}

	today := s.now().In(s.location)
	delta := model.Delta{
		AccountID:      id,
		Coins:          s.daily.Coins,
		Exp:            s.daily.Exp,
		Tickets:        s.daily.Tickets,
		Reason:         model.ReasonEventReward,
		Kind:           model.TxTypeReward,
		RefTable:       "daily_rewards",
		RefID:          today.Format(time.DateOnly),
		IdempotencyKey: DailyKey(id, today),
	}

	if _, err := seedFromLegacy(ctx, s.ledger, s.snapshots, id); err != nil {
		return nil, err
	}
	res, err := s.ledger.Append(ctx, delta)
	if err != nil {
		return nil, err
	}
	if res.Outcome == AppendDuplicate {
		return nil, ErrDailyAlreadyClaimed
	}

	log.Info().Str("account_id", id).Int64("coins", delta.Coins).Msg("Daily reward claimed")

	snap, err := s.snapshots.LoadSnapshot(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}
	return &DailyClaimResult{Delta: delta, Snapshot: snap}, nil
}
