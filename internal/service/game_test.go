package service

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arcade-backend/internal/reward"
)

func newTestGameService(w *fakeWallet) *GameService {
	rules := reward.NewRules(map[string]reward.Rule{
		"snake": {
			XPPerScore:        decimal.RequireFromString("1"),
			CoinsPerScore:     decimal.RequireFromString("0.5"),
			TicketsPerPlay:    1,
			MinScoreForReward: 10,
		},
	}, reward.DefaultRule)
	return NewGameService(reward.NewCalculator(rules), w, w)
}

func TestFinishGame_PaysOut(t *testing.T) {
	w := newFakeWallet()
	svc := newTestGameService(w)

	res, err := svc.FinishGame(context.Background(), testAccount, GameOutcome{
		Game:  " Snake ",
		Score: 41,
		Meta:  map[string]any{"level": 3, "score": "spoofed"},
	})
	require.NoError(t, err)

	assert.Equal(t, AppendApplied, res.Outcome)
	assert.Equal(t, int64(20), res.Snapshot.Coins)
	assert.Equal(t, int64(41), res.Snapshot.Exp)
	assert.Equal(t, int64(1), res.Snapshot.Tickets)
	assert.Equal(t, int64(1), res.Snapshot.GamesPlayed)
	assert.Equal(t, "play_snake", res.Delta.Reason)
	assert.Equal(t, 3, res.Delta.Meta["level"])
	assert.Equal(t, float64(41), res.Delta.Meta["score"], "computed fields override client meta")
}

func TestFinishGame_BelowThresholdCountsPlay(t *testing.T) {
	w := newFakeWallet()
	svc := newTestGameService(w)

	res, err := svc.FinishGame(context.Background(), testAccount, GameOutcome{Game: "snake", Score: 5})
	require.NoError(t, err)

	assert.Equal(t, true, res.Delta.Meta["noReward"])
	assert.Equal(t, int64(0), res.Snapshot.Coins)
	assert.Equal(t, int64(1), res.Snapshot.GamesPlayed)
	assert.Equal(t, 1, w.entryCount())
}

func TestFinishGame_IdempotentRetry(t *testing.T) {
	w := newFakeWallet()
	svc := newTestGameService(w)
	o := GameOutcome{Game: "snake", Score: 100, IdempotencyKey: "run-7f3a9c01"}

	_, err := svc.FinishGame(context.Background(), testAccount, o)
	require.NoError(t, err)
	res, err := svc.FinishGame(context.Background(), testAccount, o)
	require.NoError(t, err)

	assert.Equal(t, AppendDuplicate, res.Outcome)
	assert.Equal(t, int64(50), res.Snapshot.Coins)
	assert.Equal(t, 1, w.entryCount())
}

func TestFinishGame_Validation(t *testing.T) {
	svc := newTestGameService(newFakeWallet())
	ctx := context.Background()

	_, err := svc.FinishGame(ctx, "nope", GameOutcome{Game: "snake"})
	assert.ErrorIs(t, err, ErrInvalidAccountID)

	_, err = svc.FinishGame(ctx, testAccount, GameOutcome{Game: "  "})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.FinishGame(ctx, testAccount, GameOutcome{Game: "snake; drop table"})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.FinishGame(ctx, testAccount, GameOutcome{Game: "snake", IdempotencyKey: "x"})
	assert.ErrorIs(t, err, ErrInvalidIdempotencyKey)
}

func TestFinishGame_BuildsOnLegacyTotals(t *testing.T) {
	w := newFakeWallet()
	rec := NewStatsReconciler(w.canonical(), &fakeSource{snap: SourceSnapshot{Coins: 1000, Exp: 200}, found: true})
	svc := newTestGameService(w)
	svc.snapshots = rec

	res, err := svc.FinishGame(context.Background(), testAccount, GameOutcome{Game: "snake", Score: 41})
	require.NoError(t, err)

	assert.Equal(t, int64(1020), res.Snapshot.Coins)
	assert.Equal(t, int64(241), res.Snapshot.Exp)
	assert.Equal(t, int64(1), res.Snapshot.Tickets)
	assert.Equal(t, int64(1), res.Snapshot.GamesPlayed)
	assert.Equal(t, 2, w.entryCount())
}
