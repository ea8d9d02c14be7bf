// Package model defines the data models for the arcade backend.
package model

import (
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// Stats is the canonical aggregate row: authoritative running totals per account.
// Mutated only by applying ledger entries.
type Stats struct {
	AccountID   string    `db:"user_id"`
	Coins       int64     `db:"coins"`
	Exp         int64     `db:"exp"`
	Tickets     int64     `db:"tickets"`
	GamesPlayed int64     `db:"games_played"`
	UpdatedAt   time.Time `db:"updated_at"`
}

// LegacyProgress is a row of the frozen pre-migration progress table.
type LegacyProgress struct {
	UserID  string `db:"user_id"`
	Exp     int64  `db:"exp"`
	Level   int    `db:"level"`
	Tickets int64  `db:"tickets"`
}

// LegacyBalance is a row of the frozen pre-migration balance table.
type LegacyBalance struct {
	UserID  string `db:"user_id"`
	Balance int64  `db:"balance"`
}

// Transaction is an immutable ledger entry.
type Transaction struct {
	ID             int64          `db:"id" json:"id"`
	AccountID      string         `db:"user_id" json:"userId"`
	Type           string         `db:"type" json:"type"`
	Amount         int64          `db:"amount" json:"amount"`
	ExpDelta       int64          `db:"exp_delta" json:"expDelta"`
	TicketsDelta   int64          `db:"tickets_delta" json:"ticketsDelta"`
	PlaysDelta     int64          `db:"plays_delta" json:"playsDelta"`
	Reason         string         `db:"reason" json:"reason"`
	RefTable       *string        `db:"ref_table" json:"refTable,omitempty"`
	RefID          *string        `db:"ref_id" json:"refId,omitempty"`
	IdempotencyKey *string        `db:"idempotency_key" json:"idempotencyKey,omitempty"`
	Meta           map[string]any `db:"meta" json:"meta,omitempty"`
	CreatedAt      time.Time      `db:"created_at" json:"createdAt"`
}

// Delta is a signed set of wallet changes to append to the ledger.
// Kind names the entry type used when Coins is zero ("reward" when empty).
type Delta struct {
	AccountID      string
	Coins          int64
	Exp            int64
	Tickets        int64
	Plays          int64
	Reason         string
	Kind           string
	RefTable       string
	RefID          string
	IdempotencyKey string
	Meta           map[string]any
}

// EntryType derives the ledger entry type from the sign of the coin delta.
func (d Delta) EntryType() string {
	switch {
	case d.Coins > 0:
		return TxTypeEarn
	case d.Coins < 0:
		return TxTypeSpend
	case d.Kind != "":
		return d.Kind
	default:
		return TxTypeReward
	}
}

// Snapshot sources reported on WalletSnapshot.Source.
const (
	SourceCanonical = "canonical"
	SourceLegacy    = "legacy"
	SourceMerged    = "merged"
	SourceEmpty     = "empty"
)

// WalletSnapshot is the derived progression state of an account.
// It is computed on read and never persisted. Divergent lists fields where the
// canonical and legacy sources both held different nonzero values.
type WalletSnapshot struct {
	Coins       int64
	Exp         int64
	Tickets     int64
	GamesPlayed int64
	Level       int
	XPCap       int64
	Source      string
	Divergent   []string
}

type walletSnapshotJSON struct {
	Coins       int64    `json:"coins"`
	Points      int64    `json:"points"`
	Exp         int64    `json:"exp"`
	Tickets     int64    `json:"tickets"`
	GamesPlayed int64    `json:"gamesPlayed"`
	Plays       int64    `json:"plays"`
	Level       int      `json:"level"`
	XPCap       int64    `json:"xpCap"`
	Source      string   `json:"source,omitempty"`
	Divergent   []string `json:"divergent,omitempty"`
}

// MarshalJSON emits the snapshot with the points/plays aliases older clients read.
func (s WalletSnapshot) MarshalJSON() ([]byte, error) {
	return json.Marshal(walletSnapshotJSON{
		Coins:       s.Coins,
		Points:      s.Coins,
		Exp:         s.Exp,
		Tickets:     s.Tickets,
		GamesPlayed: s.GamesPlayed,
		Plays:       s.GamesPlayed,
		Level:       s.Level,
		XPCap:       s.XPCap,
		Source:      s.Source,
		Divergent:   s.Divergent,
	})
}

// RankEntry is one row of the all-time leaderboard.
type RankEntry struct {
	AccountID   string `json:"userId"`
	Coins       int64  `json:"coins"`
	Exp         int64  `json:"exp"`
	GamesPlayed int64  `json:"gamesPlayed"`
	Level       int    `json:"level"`
}

// DailyRank is a user's net coin result from gameplay on one day.
type DailyRank struct {
	AccountID string `db:"user_id" json:"userId"`
	NetCoins  int64  `db:"net_coins" json:"netCoins"`
	Plays     int64  `db:"plays" json:"plays"`
}

// InventoryItem is a stack of purchased shop items.
type InventoryItem struct {
	AccountID string    `db:"user_id" json:"-"`
	ItemID    string    `db:"item_id" json:"itemId"`
	Quantity  int       `db:"quantity" json:"quantity"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// AnalyticsEvent is a client-reported analytics event.
type AnalyticsEvent struct {
	ID        int64           `db:"id" json:"id"`
	AccountID *string         `db:"user_id" json:"userId,omitempty"`
	Type      string          `db:"event_type" json:"type"`
	Payload   json.RawMessage `db:"payload" json:"payload,omitempty"`
	CreatedAt time.Time       `db:"created_at" json:"createdAt"`
}

// Ledger entry types.
const (
	TxTypeEarn   = "earn"   // Positive coin delta
	TxTypeSpend  = "spend"  // Negative coin delta
	TxTypeReward = "reward" // Coin-neutral progression reward
	TxTypeEvent  = "event"  // Coin-neutral analytics-driven reward
)

// Ledger reasons.
const (
	ReasonShopPurchase = "SHOP_PURCHASE"
	ReasonEventReward  = "event_reward"
	ReasonLegacyImport = "legacy_import"
	ReasonPlayPrefix   = "play_"
)

// PlayReason returns the reason tag for a play of game.
func PlayReason(game string) string {
	return ReasonPlayPrefix + strings.ToLower(strings.TrimSpace(game))
}
