package service

import (
	"context"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arcade-backend/internal/config"
	"arcade-backend/internal/model"
)

type fakeEvents struct {
	stored  []*model.AnalyticsEvent
	missing bool
}

func (f *fakeEvents) ListByType(ctx context.Context, eventType string, limit int) ([]*model.AnalyticsEvent, error) {
	if f.missing {
		return nil, &pgconn.PgError{Code: pgerrcode.UndefinedTable}
	}
	var out []*model.AnalyticsEvent
	for i := len(f.stored) - 1; i >= 0 && len(out) < limit; i-- {
		if f.stored[i].Type == eventType {
			out = append(out, f.stored[i])
		}
	}
	return out, nil
}

func (f *fakeEvents) Insert(ctx context.Context, ev *model.AnalyticsEvent) error {
	if f.missing {
		return &pgconn.PgError{Code: pgerrcode.UndefinedTable}
	}
	ev.ID = int64(len(f.stored) + 1)
	f.stored = append(f.stored, ev)
	return nil
}

type fakeSchema struct {
	events *fakeEvents
	calls  int
}

func (f *fakeSchema) EnsureSchema(ctx context.Context) error {
	f.calls++
	f.events.missing = false
	return nil
}

func TestTrack_StoresEvent(t *testing.T) {
	events := &fakeEvents{}
	svc := NewAnalyticsService(events, nil, fastRetry())

	ev, err := svc.Track(context.Background(), testAccount, " Game.Start ", json.RawMessage(`{"game":"snake"}`))
	require.NoError(t, err)

	assert.Equal(t, "game.start", ev.Type)
	require.NotNil(t, ev.AccountID)
	assert.Equal(t, testAccount, *ev.AccountID)
	assert.Len(t, events.stored, 1)

	ev, err = svc.Track(context.Background(), "", "page_view", nil)
	require.NoError(t, err)
	assert.Nil(t, ev.AccountID)
}

func TestTrack_Validation(t *testing.T) {
	svc := NewAnalyticsService(&fakeEvents{}, nil, fastRetry())
	ctx := context.Background()

	_, err := svc.Track(ctx, "", "bad type!", nil)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.Track(ctx, "", strings.Repeat("a", 65), nil)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.Track(ctx, "nope", "click", nil)
	assert.ErrorIs(t, err, ErrInvalidAccountID)

	_, err = svc.Track(ctx, "", "click", json.RawMessage(`{"broken":`))
	assert.ErrorIs(t, err, ErrValidation)

	big := json.RawMessage(`"` + strings.Repeat("x", MaxEventPayload) + `"`)
	_, err = svc.Track(ctx, "", "click", big)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestTrack_EnsuresSchemaOnce(t *testing.T) {
	events := &fakeEvents{missing: true}
	schema := &fakeSchema{events: events}
	svc := NewAnalyticsService(events, schema, fastRetry())

	_, err := svc.Track(context.Background(), "", "click", nil)
	require.NoError(t, err)

	assert.Equal(t, 1, schema.calls)
	assert.Len(t, events.stored, 1)
}

func newRewardingAnalytics(events *fakeEvents, w *fakeWallet, snapshots SnapshotLoader) *AnalyticsService {
	rewards := EventRewardsFromConfig(map[string]config.EventRewardConfig{
		"Tutorial_Complete": {Exp: 100, Tickets: 1},
		"page_view":         {},
	})
	return NewAnalyticsService(events, nil, fastRetry()).WithRewards(w, snapshots, rewards)
}

func TestTrack_PaysEventRewardOnce(t *testing.T) {
	w := newFakeWallet()
	svc := newRewardingAnalytics(&fakeEvents{}, w, w)
	ctx := context.Background()

	_, err := svc.Track(ctx, testAccount, "tutorial_complete", nil)
	require.NoError(t, err)
	_, err = svc.Track(ctx, testAccount, "tutorial_complete", nil)
	require.NoError(t, err)

	paid := w.entriesWithReason(model.ReasonEventReward)
	require.Len(t, paid, 1)
	assert.Equal(t, model.TxTypeEvent, paid[0].EntryType())
	assert.Equal(t, int64(0), paid[0].Coins)
	assert.Equal(t, EventRewardKey(testAccount, "tutorial_complete"), paid[0].IdempotencyKey)
	assert.Equal(t, "1", paid[0].RefID)

	snap, err := w.LoadSnapshot(ctx, testAccount)
	require.NoError(t, err)
	assert.Equal(t, int64(100), snap.Exp)
	assert.Equal(t, int64(1), snap.Tickets)
}

func TestTrack_NoRewardForAnonymousOrUnlistedEvents(t *testing.T) {
	w := newFakeWallet()
	svc := newRewardingAnalytics(&fakeEvents{}, w, w)
	ctx := context.Background()

	_, err := svc.Track(ctx, "", "tutorial_complete", nil)
	require.NoError(t, err)
	_, err = svc.Track(ctx, testAccount, "page_view", nil)
	require.NoError(t, err)
	_, err = svc.Track(ctx, testAccount, "click", nil)
	require.NoError(t, err)

	assert.Equal(t, 0, w.entryCount())
}

func TestTrack_EventRewardKeepsLegacyCoins(t *testing.T) {
	w := newFakeWallet()
	rec := NewStatsReconciler(w.canonical(), &fakeSource{snap: SourceSnapshot{Coins: 700}, found: true})
	svc := newRewardingAnalytics(&fakeEvents{}, w, rec)

	_, err := svc.Track(context.Background(), testAccount, "tutorial_complete", nil)
	require.NoError(t, err)

	snap, err := rec.LoadSnapshot(context.Background(), testAccount)
	require.NoError(t, err)
	assert.Equal(t, int64(700), snap.Coins)
	assert.Equal(t, int64(100), snap.Exp)
	assert.Equal(t, model.SourceCanonical, snap.Source)
}

func TestEventRewardsFromConfig(t *testing.T) {
	rewards := EventRewardsFromConfig(map[string]config.EventRewardConfig{
		" Profile_Linked ": {Exp: 50},
		"noop":             {},
	})

	assert.Equal(t, map[string]EventReward{"profile_linked": {Exp: 50}}, rewards)
}

func TestRecent(t *testing.T) {
	events := &fakeEvents{}
	svc := NewAnalyticsService(events, nil, fastRetry())
	ctx := context.Background()

	for _, typ := range []string{"click", "page_view", "click"} {
		_, err := svc.Track(ctx, "", typ, nil)
		require.NoError(t, err)
	}

	got, err := svc.Recent(ctx, "CLICK", 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(3), got[0].ID)

	_, err = svc.Recent(ctx, "bad type!", 10)
	assert.ErrorIs(t, err, ErrValidation)

	events.missing = true
	got, err = svc.Recent(ctx, "click", 10)
	require.NoError(t, err)
	assert.Empty(t, got)
}
