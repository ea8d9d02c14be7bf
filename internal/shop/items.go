// Package shop defines the catalog of items players can buy with coins.
package shop

import "sort"

// ItemID identifies a catalog item.
type ItemID string

// Catalog items.
const (
	ItemExtraLife  ItemID = "extra-life"
	ItemNeonSkin   ItemID = "neon-skin"
	ItemPixelFrame ItemID = "pixel-frame"
	ItemScoreBoost ItemID = "score-boost"
	ItemRetroTheme ItemID = "retro-theme"
)

// ItemCategory represents the category of an item
type ItemCategory string

const (
	CategoryCosmetic   ItemCategory = "cosmetic"
	CategoryConsumable ItemCategory = "consumable"
)

// Item holds the configuration for a shop item
type Item struct {
	ID          ItemID       `json:"id"`
	Name        string       `json:"name"`
	Price       int64        `json:"price"`
	Category    ItemCategory `json:"category"`
	Description string       `json:"description"`
	// Stackable items can be owned more than once.
	Stackable bool `json:"stackable"`
}

// Catalog is an immutable set of shop items.
type Catalog struct {
	items map[ItemID]Item
}

// NewCatalog builds a catalog from items. Later duplicates replace earlier ones.
func NewCatalog(items ...Item) *Catalog {
	m := make(map[ItemID]Item, len(items))
	for _, item := range items {
		m[item.ID] = item
	}
	return &Catalog{items: m}
}

// DefaultCatalog returns the built-in catalog.
func DefaultCatalog() *Catalog {
	return NewCatalog(
		Item{
			ID:          ItemExtraLife,
			Name:        "Extra Life",
			Price:       50,
			Category:    CategoryConsumable,
			Description: "Continue a run once after game over",
			Stackable:   true,
		},
		Item{
			ID:          ItemScoreBoost,
			Name:        "Score Boost",
			Price:       120,
			Category:    CategoryConsumable,
			Description: "Double score for the next run",
			Stackable:   true,
		},
		Item{
			ID:          ItemNeonSkin,
			Name:        "Neon Skin",
			Price:       300,
			Category:    CategoryCosmetic,
			Description: "Glowing palette for every cabinet",
		},
		Item{
			ID:          ItemPixelFrame,
			Name:        "Pixel Frame",
			Price:       200,
			Category:    CategoryCosmetic,
			Description: "Profile frame drawn in 8-bit",
		},
		Item{
			ID:          ItemRetroTheme,
			Name:        "Retro Theme",
			Price:       500,
			Category:    CategoryCosmetic,
			Description: "CRT scanlines across the whole arcade",
		},
	)
}

// Get returns the item with the given id.
func (c *Catalog) Get(id ItemID) (Item, bool) {
	item, ok := c.items[id]
	return item, ok
}

// Items returns all items ordered by price, then id.
func (c *Catalog) Items() []Item {
	items := make([]Item, 0, len(c.items))
	for _, item := range c.items {
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].Price != items[j].Price {
			return items[i].Price < items[j].Price
		}
		return items[i].ID < items[j].ID
	})
	return items
}
