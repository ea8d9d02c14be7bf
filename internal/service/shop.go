package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"

	"arcade-backend/internal/model"
	"arcade-backend/internal/pkg/retry"
	"arcade-backend/internal/repository"
	"arcade-backend/internal/shop"
)

// Shop service errors
var (
	ErrItemAlreadyOwned = errors.New("item already owned")
	ErrKeyReused        = fmt.Errorf("%w: idempotency key already used for a different request", ErrValidation)
)

// InventoryStore persists purchased items.
type InventoryStore interface {
	AddItem(ctx context.Context, q repository.DBTX, accountID, itemID string, quantity int) error
	GetQuantity(ctx context.Context, accountID, itemID string) (int, error)
	ListItems(ctx context.Context, accountID string) ([]model.InventoryItem, error)
}

// EntryFinder looks up ledger entries by idempotency key.
type EntryFinder interface {
	FindByIdempotencyKey(ctx context.Context, key string) (*model.Transaction, error)
}

// PurchaseResult is the outcome of a purchase.
type PurchaseResult struct {
	Item      shop.Item
	Duplicate bool
	Snapshot  model.WalletSnapshot
}

// ShopService handles shop-related business logic
type ShopService struct {
	catalog   *shop.Catalog
	ledger    Appender
	entries   EntryFinder
	snapshots SnapshotLoader
	inventory InventoryStore
	policy    retry.Policy
}

// NewShopService creates a new ShopService instance
func NewShopService(
	catalog *shop.Catalog,
	ledger Appender,
	entries EntryFinder,
	snapshots SnapshotLoader,
	inventory InventoryStore,
	policy retry.Policy,
) *ShopService {
	return &ShopService{
		catalog:   catalog,
		ledger:    ledger,
		entries:   entries,
		snapshots: snapshots,
		inventory: inventory,
		policy:    policy,
	}
}

// Items returns the catalog.
func (s *ShopService) Items() []shop.Item {
	return s.catalog.Items()
}

// Purchase buys one itemID for the account. The spend and the inventory grant
// commit together. Replaying a key for the same account and item returns the
// current state with Duplicate set; any other reuse is ErrKeyReused.
func (s *ShopService) Purchase(ctx context.Context, accountID, itemID, idempotencyKey string) (*PurchaseResult, error) {
	id, err := NormalizeAccountID(accountID)
	if err != nil {
		return nil, err
	}
	key := strings.TrimSpace(idempotencyKey)
	if key == "" {
		return nil, ErrIdempotencyKeyMissing
	}
	if err := ValidateIdempotencyKey(key); err != nil {
		return nil, err
	}

	item, ok := s.catalog.Get(shop.ItemID(strings.TrimSpace(itemID)))
	if !ok {
		return nil, ErrItemNotFound
	}

	if res, found, err := s.replay(ctx, id, item, key); found || err != nil {
		return res, err
	}

	if !item.Stackable {
		owned, err := retry.Do(ctx, s.policy, "inventory.quantity", func(ctx context.Context) (int, error) {
			return s.inventory.GetQuantity(ctx, id, string(item.ID))
		})
		if err != nil && !repository.IsUndefinedRelation(err) {
			return nil, fmt.Errorf("failed to check inventory: %w", err)
		}
		if owned > 0 {
			return nil, ErrItemAlreadyOwned
		}
	}

	snap, err := seedFromLegacy(ctx, s.ledger, s.snapshots, id)
	if err != nil {
		return nil, err
	}
	if snap.Coins < item.Price {
		return nil, ErrInsufficientBalance
	}

	delta := model.Delta{
		AccountID:      id,
		Coins:          -item.Price,
		Reason:         model.ReasonShopPurchase,
		RefTable:       "shop_items",
		RefID:          string(item.ID),
		IdempotencyKey: key,
		Meta:           map[string]any{"item": string(item.ID), "price": item.Price},
	}
	res, err := s.ledger.AppendWith(ctx, delta, func(ctx context.Context, tx pgx.Tx) error {
		return s.inventory.AddItem(ctx, tx, id, string(item.ID), 1)
	})
	if err != nil {
		return nil, err
	}
	if res.Outcome == AppendDuplicate {
		// A concurrent request took the key between the lookup and the insert.
		if dup, found, err := s.replay(ctx, id, item, key); found || err != nil {
			return dup, err
		}
		return nil, ErrKeyReused
	}

	log.Info().
		Str("account_id", id).
		Str("item", string(item.ID)).
		Int64("price", item.Price).
		Msg("Item purchased")

	snap, err = s.snapshots.LoadSnapshot(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}
	return &PurchaseResult{Item: item, Snapshot: snap}, nil
}

// Inventory lists the items the account owns.
func (s *ShopService) Inventory(ctx context.Context, accountID string) ([]model.InventoryItem, error) {
	id, err := NormalizeAccountID(accountID)
	if err != nil {
		return nil, err
	}
	items, err := retry.Do(ctx, s.policy, "inventory.list", func(ctx context.Context) ([]model.InventoryItem, error) {
		return s.inventory.ListItems(ctx, id)
	})
	if err != nil {
		if repository.IsUndefinedRelation(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list inventory: %w", err)
	}
	return items, nil
}

// replay looks key up in the ledger. found is true when the key was used
// before; the result is a duplicate only when that entry bought the same
// item for the same account.
func (s *ShopService) replay(ctx context.Context, id string, item shop.Item, key string) (*PurchaseResult, bool, error) {
	prior, err := retry.Do(ctx, s.policy, "ledger.find_key", func(ctx context.Context) (*model.Transaction, error) {
		return s.entries.FindByIdempotencyKey(ctx, key)
	})
	switch {
	case errors.Is(err, repository.ErrTransactionNotFound) || repository.IsUndefinedRelation(err):
		return nil, false, nil
	case err != nil:
		return nil, false, fmt.Errorf("failed to check idempotency key: %w", err)
	}
	if !isPurchaseOf(prior, id, item) {
		return nil, true, ErrKeyReused
	}

	snap, err := s.snapshots.LoadSnapshot(ctx, id)
	if err != nil {
		return nil, true, fmt.Errorf("failed to load snapshot: %w", err)
	}
	return &PurchaseResult{Item: item, Duplicate: true, Snapshot: snap}, true, nil
}

func isPurchaseOf(tx *model.Transaction, id string, item shop.Item) bool {
	return tx.AccountID == id &&
		tx.Reason == model.ReasonShopPurchase &&
		tx.RefID != nil && *tx.RefID == string(item.ID)
}
