package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"arcade-backend/internal/model"
)

// InventoryRepository handles purchased shop items (user_items).
type InventoryRepository struct {
	pool *pgxpool.Pool
}

// NewInventoryRepository creates a new InventoryRepository instance.
func NewInventoryRepository(pool *pgxpool.Pool) *InventoryRepository {
	return &InventoryRepository{pool: pool}
}

// AddItem adds quantity to an account's stack of itemID.
// Pass the purchase transaction as q so the item lands only when the spend does.
func (r *InventoryRepository) AddItem(ctx context.Context, q DBTX, accountID, itemID string, quantity int) error {
	const query = `
		INSERT INTO user_items (user_id, item_id, quantity, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (user_id, item_id)
		DO UPDATE SET quantity = user_items.quantity + EXCLUDED.quantity, updated_at = NOW()
	`
	if _, err := q.Exec(ctx, query, accountID, itemID, quantity); err != nil {
		return fmt.Errorf("failed to add item: %w", err)
	}
	return nil
}

// GetQuantity returns how many of itemID an account owns. Absent rows count as 0.
func (r *InventoryRepository) GetQuantity(ctx context.Context, accountID, itemID string) (int, error) {
	const query = `
		SELECT quantity FROM user_items
		WHERE user_id = $1 AND item_id = $2
	`
	var quantity int
	err := r.pool.QueryRow(ctx, query, accountID, itemID).Scan(&quantity)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get item quantity: %w", err)
	}
	return quantity, nil
}

// ListItems returns all items an account owns with quantity > 0.
func (r *InventoryRepository) ListItems(ctx context.Context, accountID string) ([]model.InventoryItem, error) {
	const query = `
		SELECT user_id::text, item_id, quantity, updated_at
		FROM user_items
		WHERE user_id = $1 AND quantity > 0
		ORDER BY item_id
	`
	rows, err := r.pool.Query(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	defer rows.Close()

	var items []model.InventoryItem
	for rows.Next() {
		var item model.InventoryItem
		if err := rows.Scan(&item.AccountID, &item.ItemID, &item.Quantity, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}
