package handler

import (
	"context"
	"net/http"

	"arcade-backend/internal/model"
	"arcade-backend/internal/service"
	"arcade-backend/internal/shop"
)

// Shop is the shop service surface used over HTTP.
type Shop interface {
	Items() []shop.Item
	Purchase(ctx context.Context, accountID, itemID, idempotencyKey string) (*service.PurchaseResult, error)
	Inventory(ctx context.Context, accountID string) ([]model.InventoryItem, error)
}

// PurchaseRequest is the body of POST /api/shop/purchase.
type PurchaseRequest struct {
	ItemID string `json:"itemId"`
}

// PurchaseResponse is the body returned by POST /api/shop/purchase.
type PurchaseResponse struct {
	Item      shop.Item            `json:"item"`
	Duplicate bool                 `json:"duplicate"`
	Wallet    model.WalletSnapshot `json:"wallet"`
}

// ShopHandler serves shop endpoints.
type ShopHandler struct {
	shop Shop
}

// NewShopHandler creates a new ShopHandler.
func NewShopHandler(s Shop) *ShopHandler {
	return &ShopHandler{shop: s}
}

// ListItems handles GET /api/shop/items.
func (h *ShopHandler) ListItems(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"items": h.shop.Items()})
}

// Purchase handles POST /api/shop/purchase. The Idempotency-Key header is required.
func (h *ShopHandler) Purchase(w http.ResponseWriter, r *http.Request) {
	id, ok := accountID(w, r)
	if !ok {
		return
	}
	var req PurchaseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	res, err := h.shop.Purchase(r.Context(), id, req.ItemID, r.Header.Get(IdempotencyHeader))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, PurchaseResponse{Item: res.Item, Duplicate: res.Duplicate, Wallet: res.Snapshot})
}

// Inventory handles GET /api/shop/inventory.
func (h *ShopHandler) Inventory(w http.ResponseWriter, r *http.Request) {
	id, ok := accountID(w, r)
	if !ok {
		return
	}
	items, err := h.shop.Inventory(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if items == nil {
		items = []model.InventoryItem{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}
