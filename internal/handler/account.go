package handler

import (
	"context"
	"net/http"

	"arcade-backend/internal/model"
	"arcade-backend/internal/service"
)

const defaultHistoryLimit = 50

// WalletReader loads the merged wallet snapshot.
type WalletReader interface {
	LoadSnapshot(ctx context.Context, accountID string) (model.WalletSnapshot, error)
}

// HistoryLister lists ledger entries. Implemented by service.HistoryService.
type HistoryLister interface {
	ListByAccount(ctx context.Context, accountID string, limit int) ([]*model.Transaction, error)
}

// AccountHandler serves wallet reads.
type AccountHandler struct {
	wallet  WalletReader
	history HistoryLister
}

// NewAccountHandler creates a new AccountHandler.
func NewAccountHandler(wallet WalletReader, history HistoryLister) *AccountHandler {
	return &AccountHandler{wallet: wallet, history: history}
}

// GetWallet handles GET /api/wallet.
func (h *AccountHandler) GetWallet(w http.ResponseWriter, r *http.Request) {
	id, ok := accountID(w, r)
	if !ok {
		return
	}
	snap, err := h.wallet.LoadSnapshot(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// ListTransactions handles GET /api/wallet/transactions?limit=N.
func (h *AccountHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	id, ok := accountID(w, r)
	if !ok {
		return
	}
	limit, err := queryInt(r, "limit", defaultHistoryLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid limit", err)
		return
	}
	if limit <= 0 || limit > service.MaxHistoryLimit {
		limit = defaultHistoryLimit
	}

	txs, err := h.history.ListByAccount(r.Context(), id, limit)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if txs == nil {
		txs = []*model.Transaction{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"transactions": txs})
}
