package handler

import (
	"context"
	"net/http"

	"arcade-backend/internal/model"
)

// Leaderboard lists rankings.
type Leaderboard interface {
	Top(ctx context.Context, metric string, limit int) ([]model.RankEntry, error)
	DailyWinners(ctx context.Context, limit int) ([]*model.DailyRank, error)
}

// RankingHandler serves leaderboard endpoints.
type RankingHandler struct {
	board Leaderboard
}

// NewRankingHandler creates a new RankingHandler.
func NewRankingHandler(board Leaderboard) *RankingHandler {
	return &RankingHandler{board: board}
}

// Leaderboard handles GET /api/leaderboard?period=all|daily&metric=coins|exp|games&limit=N.
func (h *RankingHandler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid limit", err)
		return
	}

	switch period := r.URL.Query().Get("period"); period {
	case "daily":
		winners, err := h.board.DailyWinners(r.Context(), limit)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"period": period, "winners": winners})
	case "", "all":
		metric := r.URL.Query().Get("metric")
		entries, err := h.board.Top(r.Context(), metric, limit)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		if metric == "" {
			metric = "coins"
		}
		writeJSON(w, http.StatusOK, map[string]any{"period": "all", "metric": metric, "entries": entries})
	default:
		writeError(w, http.StatusBadRequest, "Invalid period", nil)
	}
}
