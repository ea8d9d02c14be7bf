package service

import (
	"context"
	"fmt"
	"regexp"

	"arcade-backend/internal/model"
	"arcade-backend/internal/reward"
)

var gameIDPattern = regexp.MustCompile(`^[a-z0-9_-]{1,64}$`)

// SnapshotLoader loads wallet snapshots.
type SnapshotLoader interface {
	LoadSnapshot(ctx context.Context, accountID string) (model.WalletSnapshot, error)
}

// GameOutcome is a finished play reported by a client.
type GameOutcome struct {
	Game           string
	Score          float64
	Meta           map[string]any
	IdempotencyKey string
}

// GameResult is the effect of a finished play.
type GameResult struct {
	Delta    model.Delta
	Outcome  AppendOutcome
	Snapshot model.WalletSnapshot
}

// GameService records finished plays and pays out rewards.
type GameService struct {
	calc      *reward.Calculator
	ledger    Appender
	snapshots SnapshotLoader
}

// NewGameService creates a new GameService instance.
func NewGameService(calc *reward.Calculator, ledger Appender, snapshots SnapshotLoader) *GameService {
	return &GameService{calc: calc, ledger: ledger, snapshots: snapshots}
}

// FinishGame computes the reward for a play, appends it to the ledger and
// returns the updated snapshot. With an idempotency key a retried call
// leaves the wallet unchanged and reports AppendDuplicate.
func (s *GameService) FinishGame(ctx context.Context, accountID string, o GameOutcome) (*GameResult, error) {
	id, err := NormalizeAccountID(accountID)
	if err != nil {
		return nil, err
	}
	game := reward.NormalizeGame(o.Game)
	if game == "" {
		return nil, fmt.Errorf("%w: game required", ErrValidation)
	}
	if !gameIDPattern.MatchString(game) {
		return nil, fmt.Errorf("%w: invalid game id %q", ErrValidation, game)
	}

	delta := s.calc.ComputeDelta(id, game, o.Score)
	if len(o.Meta) > 0 {
		meta := make(map[string]any, len(o.Meta)+len(delta.Meta))
		for k, v := range o.Meta {
			meta[k] = v
		}
		for k, v := range delta.Meta {
			meta[k] = v
		}
		delta.Meta = meta
	}
	delta.RefTable = "games"
	delta.RefID = game
	delta.IdempotencyKey = o.IdempotencyKey

	if _, err := seedFromLegacy(ctx, s.ledger, s.snapshots, id); err != nil {
		return nil, err
	}
	res, err := s.ledger.Append(ctx, delta)
	if err != nil {
		return nil, err
	}

	snap, err := s.snapshots.LoadSnapshot(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}

	return &GameResult{Delta: delta, Outcome: res.Outcome, Snapshot: snap}, nil
}
