package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"arcade-backend/internal/model"
)

// LegacyImportKey returns the idempotency key of accountID's one-time legacy import.
func LegacyImportKey(accountID string) string {
	return "legacy-import:" + accountID
}

func legacyBacked(snap model.WalletSnapshot) bool {
	return snap.Source == model.SourceLegacy || snap.Source == model.SourceMerged
}

// seedFromLegacy must run before any write to an account. A snapshot served
// from the legacy tables is copied into the canonical aggregate with a keyed
// entry, so the write lands on top of the legacy totals instead of shadowing
// them. The returned snapshot is the canonical view a spend may be checked against.
func seedFromLegacy(ctx context.Context, ledger Appender, snapshots SnapshotLoader, id string) (model.WalletSnapshot, error) {
	snap, err := snapshots.LoadSnapshot(ctx, id)
	if err != nil {
		return model.WalletSnapshot{}, fmt.Errorf("failed to load snapshot: %w", err)
	}
	if !legacyBacked(snap) {
		return snap, nil
	}

	res, err := ledger.Append(ctx, model.Delta{
		AccountID:      id,
		Coins:          snap.Coins,
		Exp:            snap.Exp,
		Tickets:        snap.Tickets,
		Reason:         model.ReasonLegacyImport,
		Kind:           model.TxTypeReward,
		RefTable:       "user_balances",
		RefID:          id,
		IdempotencyKey: LegacyImportKey(id),
	})
	if err != nil {
		return model.WalletSnapshot{}, fmt.Errorf("failed to import legacy stats: %w", err)
	}
	if res.Outcome == AppendApplied {
		log.Info().
			Str("account_id", id).
			Int64("coins", snap.Coins).
			Int64("exp", snap.Exp).
			Int64("tickets", snap.Tickets).
			Msg("Legacy stats imported")
	}

	snap, err = snapshots.LoadSnapshot(ctx, id)
	if err != nil {
		return model.WalletSnapshot{}, fmt.Errorf("failed to load snapshot: %w", err)
	}
	if legacyBacked(snap) {
		// Imported earlier and since drained to zero: the canonical row is
		// authoritative even though reads fall back to legacy again.
		return MergeSnapshots(&SourceSnapshot{GamesPlayed: snap.GamesPlayed}, nil), nil
	}
	return snap, nil
}
