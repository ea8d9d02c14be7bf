package handler

import (
	"context"
	"net/http"

	"github.com/rs/zerolog/hlog"

	"arcade-backend/internal/model"
	"arcade-backend/internal/service"
)

// GameFinisher records finished plays.
type GameFinisher interface {
	FinishGame(ctx context.Context, accountID string, o service.GameOutcome) (*service.GameResult, error)
}

// FinishGameRequest is the body of POST /api/games/finish.
type FinishGameRequest struct {
	Game  string         `json:"game"`
	Score float64        `json:"score"`
	Meta  map[string]any `json:"meta,omitempty"`
}

// RewardDTO is the wallet change a request produced.
type RewardDTO struct {
	Coins   int64 `json:"coins"`
	Exp     int64 `json:"exp"`
	Tickets int64 `json:"tickets"`
}

// FinishGameResponse is the body returned by POST /api/games/finish.
type FinishGameResponse struct {
	Outcome service.AppendOutcome `json:"outcome"`
	Reward  RewardDTO             `json:"reward"`
	Wallet  model.WalletSnapshot  `json:"wallet"`
}

// GameHandler serves gameplay endpoints.
type GameHandler struct {
	games GameFinisher
}

// NewGameHandler creates a new GameHandler.
func NewGameHandler(games GameFinisher) *GameHandler {
	return &GameHandler{games: games}
}

// Finish handles POST /api/games/finish. The Idempotency-Key header is optional.
func (h *GameHandler) Finish(w http.ResponseWriter, r *http.Request) {
	id, ok := accountID(w, r)
	if !ok {
		return
	}
	var req FinishGameRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	res, err := h.games.FinishGame(r.Context(), id, service.GameOutcome{
		Game:           req.Game,
		Score:          req.Score,
		Meta:           req.Meta,
		IdempotencyKey: r.Header.Get(IdempotencyHeader),
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	hlog.FromRequest(r).Info().
		Str("account_id", id).
		Str("game", res.Delta.RefID).
		Str("result", string(res.Outcome)).
		Int64("coins", res.Delta.Coins).
		Msg("Game finished")

	reward := RewardDTO{Coins: res.Delta.Coins, Exp: res.Delta.Exp, Tickets: res.Delta.Tickets}
	if res.Outcome == service.AppendDuplicate {
		reward = RewardDTO{}
	}
	writeJSON(w, http.StatusOK, FinishGameResponse{Outcome: res.Outcome, Reward: reward, Wallet: res.Snapshot})
}
