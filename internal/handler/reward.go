package handler

import (
	"context"
	"net/http"

	"arcade-backend/internal/model"
	"arcade-backend/internal/service"
)

// DailyClaimer grants the daily reward.
type DailyClaimer interface {
	ClaimDaily(ctx context.Context, accountID string) (*service.DailyClaimResult, error)
}

// RewardHandler serves reward endpoints.
type RewardHandler struct {
	rewards DailyClaimer
}

// NewRewardHandler creates a new RewardHandler.
func NewRewardHandler(rewards DailyClaimer) *RewardHandler {
	return &RewardHandler{rewards: rewards}
}

// ClaimDaily handles POST /api/rewards/daily.
func (h *RewardHandler) ClaimDaily(w http.ResponseWriter, r *http.Request) {
	id, ok := accountID(w, r)
	if !ok {
		return
	}
	res, err := h.rewards.ClaimDaily(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Reward RewardDTO            `json:"reward"`
		Wallet model.WalletSnapshot `json:"wallet"`
	}{
		Reward: RewardDTO{Coins: res.Delta.Coins, Exp: res.Delta.Exp, Tickets: res.Delta.Tickets},
		Wallet: res.Snapshot,
	})
}
