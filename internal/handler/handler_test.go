package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arcade-backend/internal/auth"
	"arcade-backend/internal/model"
	"arcade-backend/internal/pkg/retry"
	"arcade-backend/internal/service"
	"arcade-backend/internal/shop"
)

const testAccount = "0f8fad5b-d9cb-469f-a165-70867728950e"

func authed(r *http.Request) *http.Request {
	return r.WithContext(auth.WithAccount(r.Context(), testAccount))
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

type fakeWallet struct {
	snap model.WalletSnapshot
	txs  []*model.Transaction
	err  error
	got  int
}

func (f *fakeWallet) LoadSnapshot(ctx context.Context, accountID string) (model.WalletSnapshot, error) {
	return f.snap, f.err
}

func (f *fakeWallet) ListByAccount(ctx context.Context, accountID string, limit int) ([]*model.Transaction, error) {
	f.got = limit
	return f.txs, f.err
}

func TestGetWallet(t *testing.T) {
	w := &fakeWallet{snap: model.WalletSnapshot{Coins: 50, Exp: 200, Tickets: 3, Level: 1, XPCap: 1000, Source: model.SourceMerged}}
	h := NewAccountHandler(w, w)

	rec := httptest.NewRecorder()
	h.GetWallet(rec, authed(httptest.NewRequest(http.MethodGet, "/api/wallet", nil)))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, float64(50), body["coins"])
	assert.Equal(t, float64(50), body["points"])
	assert.Equal(t, "merged", body["source"])
}

func TestGetWallet_Unauthenticated(t *testing.T) {
	h := NewAccountHandler(&fakeWallet{}, &fakeWallet{})

	rec := httptest.NewRecorder()
	h.GetWallet(rec, httptest.NewRequest(http.MethodGet, "/api/wallet", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGetWallet_TransientIs503(t *testing.T) {
	w := &fakeWallet{err: errors.Join(retry.ErrTransient, context.DeadlineExceeded)}
	h := NewAccountHandler(w, w)

	rec := httptest.NewRecorder()
	h.GetWallet(rec, authed(httptest.NewRequest(http.MethodGet, "/api/wallet", nil)))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.NotContains(t, rec.Body.String(), "deadline", "5xx responses hide error details")
}

func TestListTransactions(t *testing.T) {
	w := &fakeWallet{txs: []*model.Transaction{{ID: 7, AccountID: testAccount, Type: model.TxTypeEarn, Amount: 5, Reason: "play_snake"}}}
	h := NewAccountHandler(w, w)

	rec := httptest.NewRecorder()
	h.ListTransactions(rec, authed(httptest.NewRequest(http.MethodGet, "/api/wallet/transactions?limit=5", nil)))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, w.got)
	txs := decode(t, rec)["transactions"].([]any)
	require.Len(t, txs, 1)
	assert.Equal(t, "play_snake", txs[0].(map[string]any)["reason"])

	rec = httptest.NewRecorder()
	h.ListTransactions(rec, authed(httptest.NewRequest(http.MethodGet, "/api/wallet/transactions?limit=abc", nil)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListTransactions_FreshDatabase(t *testing.T) {
	missing := &fakeWallet{err: &pgconn.PgError{Code: pgerrcode.UndefinedTable}}
	p := retry.DefaultPolicy()
	p.MaxAttempts = 1
	h := NewAccountHandler(missing, service.NewHistoryService(missing, p))

	rec := httptest.NewRecorder()
	h.ListTransactions(rec, authed(httptest.NewRequest(http.MethodGet, "/api/wallet/transactions", nil)))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"transactions":[]}`, rec.Body.String())
}

type fakeGames struct {
	got service.GameOutcome
	res *service.GameResult
	err error
}

func (f *fakeGames) FinishGame(ctx context.Context, accountID string, o service.GameOutcome) (*service.GameResult, error) {
	f.got = o
	return f.res, f.err
}

func TestFinishGame(t *testing.T) {
	games := &fakeGames{res: &service.GameResult{
		Delta:    model.Delta{Coins: 20, Exp: 41, Tickets: 1, RefID: "snake"},
		Outcome:  service.AppendApplied,
		Snapshot: model.WalletSnapshot{Coins: 20},
	}}
	h := NewGameHandler(games)

	req := httptest.NewRequest(http.MethodPost, "/api/games/finish", strings.NewReader(`{"game":"snake","score":41}`))
	req.Header.Set(IdempotencyHeader, "run-00000001")
	rec := httptest.NewRecorder()
	h.Finish(rec, authed(req))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "run-00000001", games.got.IdempotencyKey)
	assert.Equal(t, float64(41), games.got.Score)

	body := decode(t, rec)
	assert.Equal(t, "applied", body["outcome"])
	assert.Equal(t, float64(20), body["reward"].(map[string]any)["coins"])
}

func TestFinishGame_DuplicateReportsNoReward(t *testing.T) {
	games := &fakeGames{res: &service.GameResult{
		Delta:   model.Delta{Coins: 20},
		Outcome: service.AppendDuplicate,
	}}
	h := NewGameHandler(games)

	rec := httptest.NewRecorder()
	h.Finish(rec, authed(httptest.NewRequest(http.MethodPost, "/api/games/finish", strings.NewReader(`{"game":"snake","score":41}`))))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(0), decode(t, rec)["reward"].(map[string]any)["coins"])
}

func TestFinishGame_BadInput(t *testing.T) {
	h := NewGameHandler(&fakeGames{err: service.ErrValidation})

	rec := httptest.NewRecorder()
	h.Finish(rec, authed(httptest.NewRequest(http.MethodPost, "/api/games/finish", strings.NewReader(`{`))))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	h.Finish(rec, authed(httptest.NewRequest(http.MethodPost, "/api/games/finish", strings.NewReader(`{"game":""}`))))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

type fakeShop struct {
	res *service.PurchaseResult
	err error
	key string
}

func (f *fakeShop) Items() []shop.Item { return shop.DefaultCatalog().Items() }

func (f *fakeShop) Purchase(ctx context.Context, accountID, itemID, key string) (*service.PurchaseResult, error) {
	f.key = key
	return f.res, f.err
}

func (f *fakeShop) Inventory(ctx context.Context, accountID string) ([]model.InventoryItem, error) {
	return nil, f.err
}

func TestShopPurchase_StatusMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"ok", nil, http.StatusOK},
		{"missing key", service.ErrIdempotencyKeyMissing, http.StatusBadRequest},
		{"insufficient", service.ErrInsufficientBalance, http.StatusPaymentRequired},
		{"unknown item", service.ErrItemNotFound, http.StatusNotFound},
		{"owned", service.ErrItemAlreadyOwned, http.StatusConflict},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item, _ := shop.DefaultCatalog().Get(shop.ItemExtraLife)
			s := &fakeShop{err: tt.err, res: &service.PurchaseResult{Item: item}}
			h := NewShopHandler(s)

			req := httptest.NewRequest(http.MethodPost, "/api/shop/purchase", strings.NewReader(`{"itemId":"extra-life"}`))
			req.Header.Set(IdempotencyHeader, "buy-0000001")
			rec := httptest.NewRecorder()
			h.Purchase(rec, authed(req))

			assert.Equal(t, tt.want, rec.Code)
			assert.Equal(t, "buy-0000001", s.key)
		})
	}
}

func TestShopListItemsAndInventory(t *testing.T) {
	h := NewShopHandler(&fakeShop{})

	rec := httptest.NewRecorder()
	h.ListItems(rec, httptest.NewRequest(http.MethodGet, "/api/shop/items", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["items"], 5)

	rec = httptest.NewRecorder()
	h.Inventory(rec, authed(httptest.NewRequest(http.MethodGet, "/api/shop/inventory", nil)))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"items":[]}`, rec.Body.String())
}

type fakeDaily struct{ err error }

func (f fakeDaily) ClaimDaily(ctx context.Context, accountID string) (*service.DailyClaimResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &service.DailyClaimResult{Delta: model.Delta{Coins: 100, Exp: 50, Tickets: 1}}, nil
}

func TestClaimDaily(t *testing.T) {
	rec := httptest.NewRecorder()
	NewRewardHandler(fakeDaily{}).ClaimDaily(rec, authed(httptest.NewRequest(http.MethodPost, "/api/rewards/daily", nil)))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(100), decode(t, rec)["reward"].(map[string]any)["coins"])

	rec = httptest.NewRecorder()
	NewRewardHandler(fakeDaily{err: service.ErrDailyAlreadyClaimed}).ClaimDaily(rec, authed(httptest.NewRequest(http.MethodPost, "/api/rewards/daily", nil)))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

type fakeBoard struct {
	metric string
	limit  int
}

func (f *fakeBoard) Top(ctx context.Context, metric string, limit int) ([]model.RankEntry, error) {
	f.metric, f.limit = metric, limit
	if metric == "karma" {
		return nil, service.ErrValidation
	}
	return []model.RankEntry{{AccountID: testAccount, Coins: 9, Level: 1}}, nil
}

func (f *fakeBoard) DailyWinners(ctx context.Context, limit int) ([]*model.DailyRank, error) {
	f.limit = limit
	return []*model.DailyRank{{AccountID: testAccount, NetCoins: 12, Plays: 2}}, nil
}

func TestLeaderboard(t *testing.T) {
	b := &fakeBoard{}
	h := NewRankingHandler(b)

	rec := httptest.NewRecorder()
	h.Leaderboard(rec, httptest.NewRequest(http.MethodGet, "/api/leaderboard?metric=exp&limit=3", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "exp", b.metric)
	assert.Equal(t, 3, b.limit)

	rec = httptest.NewRecorder()
	h.Leaderboard(rec, httptest.NewRequest(http.MethodGet, "/api/leaderboard?period=daily", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["winners"], 1)

	rec = httptest.NewRecorder()
	h.Leaderboard(rec, httptest.NewRequest(http.MethodGet, "/api/leaderboard?metric=karma", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	h.Leaderboard(rec, httptest.NewRequest(http.MethodGet, "/api/leaderboard?period=weekly", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

type fakeTracker struct {
	account string
	payload json.RawMessage
}

func (f *fakeTracker) Track(ctx context.Context, accountID, eventType string, payload json.RawMessage) (*model.AnalyticsEvent, error) {
	if eventType == "" {
		return nil, service.ErrValidation
	}
	f.account, f.payload = accountID, payload
	return &model.AnalyticsEvent{ID: 3, Type: eventType, CreatedAt: time.Now()}, nil
}

func TestTrackEvent(t *testing.T) {
	tr := &fakeTracker{}
	h := NewEventHandler(tr)

	rec := httptest.NewRecorder()
	h.Track(rec, httptest.NewRequest(http.MethodPost, "/api/events", strings.NewReader(`{"type":"click","payload":{"x":1}}`)))
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Empty(t, tr.account)
	assert.JSONEq(t, `{"x":1}`, string(tr.payload))

	rec = httptest.NewRecorder()
	h.Track(rec, authed(httptest.NewRequest(http.MethodPost, "/api/events", strings.NewReader(`{"type":"click"}`))))
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, testAccount, tr.account)

	rec = httptest.NewRecorder()
	h.Track(rec, httptest.NewRequest(http.MethodPost, "/api/events", strings.NewReader(`{"type":""}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
