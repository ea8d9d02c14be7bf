package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/pool"

	"arcade-backend/internal/model"
	"arcade-backend/internal/pkg/numeric"
	"arcade-backend/internal/pkg/retry"
	"arcade-backend/internal/progression"
	"arcade-backend/internal/repository"
)

// SourceSnapshot is one storage source's view of an account's totals.
// Level is an explicitly stored level, 0 when the source has none.
type SourceSnapshot struct {
	Coins       int64
	Exp         int64
	Tickets     int64
	GamesPlayed int64
	Level       int
}

// IsZero reports whether coins, exp and tickets are all zero.
func (s SourceSnapshot) IsZero() bool {
	return s.Coins == 0 && s.Exp == 0 && s.Tickets == 0
}

// SnapshotSource loads an account's totals from one storage schema.
// found is false when the source holds nothing for the account, including
// when its tables do not exist yet.
type SnapshotSource interface {
	Load(ctx context.Context, accountID string) (snap SourceSnapshot, found bool, err error)
}

// CanonicalSource reads the ledger-maintained aggregate.
type CanonicalSource struct {
	repo   *repository.StatsRepository
	policy retry.Policy
}

// NewCanonicalSource creates a CanonicalSource.
func NewCanonicalSource(repo *repository.StatsRepository, policy retry.Policy) *CanonicalSource {
	return &CanonicalSource{repo: repo, policy: policy}
}

// Load implements SnapshotSource.
func (s *CanonicalSource) Load(ctx context.Context, accountID string) (SourceSnapshot, bool, error) {
	stats, err := retry.Do(ctx, s.policy, "stats.get", func(ctx context.Context) (*model.Stats, error) {
		return s.repo.Get(ctx, accountID)
	})
	switch {
	case errors.Is(err, repository.ErrStatsNotFound), repository.IsUndefinedRelation(err):
		return SourceSnapshot{}, false, nil
	case err != nil:
		return SourceSnapshot{}, false, err
	}
	return SourceSnapshot{
		Coins:       stats.Coins,
		Exp:         stats.Exp,
		Tickets:     stats.Tickets,
		GamesPlayed: stats.GamesPlayed,
	}, true, nil
}

// LegacySource reads the frozen progress and balance tables. The two tables
// are read concurrently and either may be missing.
type LegacySource struct {
	repo   *repository.LegacyRepository
	policy retry.Policy
}

// NewLegacySource creates a LegacySource.
func NewLegacySource(repo *repository.LegacyRepository, policy retry.Policy) *LegacySource {
	return &LegacySource{repo: repo, policy: policy}
}

// Load implements SnapshotSource.
func (s *LegacySource) Load(ctx context.Context, accountID string) (SourceSnapshot, bool, error) {
	var (
		progress *model.LegacyProgress
		balance  *model.LegacyBalance
	)

	p := pool.New().WithContext(ctx).WithCancelOnError()
	p.Go(func(ctx context.Context) error {
		var err error
		progress, err = retry.Do(ctx, s.policy, "legacy.progress", func(ctx context.Context) (*model.LegacyProgress, error) {
			return s.repo.GetProgress(ctx, accountID)
		})
		return absentAsNil(err)
	})
	p.Go(func(ctx context.Context) error {
		var err error
		balance, err = retry.Do(ctx, s.policy, "legacy.balance", func(ctx context.Context) (*model.LegacyBalance, error) {
			return s.repo.GetBalance(ctx, accountID)
		})
		return absentAsNil(err)
	})
	if err := p.Wait(); err != nil {
		return SourceSnapshot{}, false, err
	}

	var snap SourceSnapshot
	if progress != nil {
		snap.Exp = progress.Exp
		snap.Tickets = progress.Tickets
		snap.Level = progress.Level
	}
	if balance != nil {
		snap.Coins = balance.Balance
	}
	return snap, progress != nil || balance != nil, nil
}

func absentAsNil(err error) error {
	if errors.Is(err, repository.ErrLegacyNotFound) || repository.IsUndefinedRelation(err) {
		return nil
	}
	return err
}

// StatsReconciler produces wallet snapshots from the canonical aggregate,
// falling back to the legacy tables while the canonical row is absent or empty.
type StatsReconciler struct {
	canonical SnapshotSource
	legacy    SnapshotSource
}

// NewStatsReconciler creates a new StatsReconciler. A nil legacy source
// disables the fallback.
func NewStatsReconciler(canonical, legacy SnapshotSource) *StatsReconciler {
	return &StatsReconciler{canonical: canonical, legacy: legacy}
}

// LoadSnapshot returns the account's wallet snapshot.
// Missing tables read as empty; any other storage error is returned.
func (r *StatsReconciler) LoadSnapshot(ctx context.Context, accountID string) (model.WalletSnapshot, error) {
	id, err := NormalizeAccountID(accountID)
	if err != nil {
		return model.WalletSnapshot{}, err
	}

	can, canFound, err := r.canonical.Load(ctx, id)
	if err != nil {
		return model.WalletSnapshot{}, fmt.Errorf("failed to load canonical stats: %w", err)
	}
	if canFound && !can.IsZero() {
		return MergeSnapshots(&can, nil), nil
	}

	var canPtr *SourceSnapshot
	if canFound {
		canPtr = &can
	}
	legPtr, err := r.loadLegacy(ctx, id)
	if err != nil {
		return model.WalletSnapshot{}, err
	}
	return MergeSnapshots(canPtr, legPtr), nil
}

// Audit loads both sources unconditionally and reports fields where they
// disagree. The returned values match LoadSnapshot. Divergent fields are logged at warn level.
func (r *StatsReconciler) Audit(ctx context.Context, accountID string) (model.WalletSnapshot, error) {
	id, err := NormalizeAccountID(accountID)
	if err != nil {
		return model.WalletSnapshot{}, err
	}

	can, canFound, err := r.canonical.Load(ctx, id)
	if err != nil {
		return model.WalletSnapshot{}, fmt.Errorf("failed to load canonical stats: %w", err)
	}
	var canPtr *SourceSnapshot
	if canFound {
		canPtr = &can
	}
	legPtr, err := r.loadLegacy(ctx, id)
	if err != nil {
		return model.WalletSnapshot{}, err
	}

	snap := MergeSnapshots(canPtr, legPtr)
	if canFound && !can.IsZero() {
		// Report what LoadSnapshot serves, with the divergence found above.
		divergent := snap.Divergent
		snap = MergeSnapshots(canPtr, nil)
		snap.Divergent = divergent
	}
	for _, field := range snap.Divergent {
		c, l := fieldValue(canPtr, field), fieldValue(legPtr, field)
		log.Warn().
			Str("account_id", id).
			Str("field", field).
			Int64("canonical", c).
			Int64("legacy", l).
			Msg("Canonical and legacy stats diverge")
	}
	return snap, nil
}

func (r *StatsReconciler) loadLegacy(ctx context.Context, id string) (*SourceSnapshot, error) {
	if r.legacy == nil {
		return nil, nil
	}
	leg, found, err := r.legacy.Load(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load legacy stats: %w", err)
	}
	if !found {
		return nil, nil
	}
	return &leg, nil
}

// MergeSnapshots combines the two sources field by field. Canonical values
// win when nonzero; zero canonical fields are backfilled from legacy. Plays
// come only from canonical. The level is derived from the merged experience,
// except that a stored legacy level is used when the canonical row is absent.
// Fields where both sources hold different nonzero values are listed in Divergent.
func MergeSnapshots(canonical, legacy *SourceSnapshot) model.WalletSnapshot {
	var can, leg SourceSnapshot
	if canonical != nil {
		can = *canonical
	}
	if legacy != nil {
		leg = *legacy
	}

	snap := model.WalletSnapshot{
		Coins:       pick(can.Coins, leg.Coins),
		Exp:         pick(can.Exp, leg.Exp),
		Tickets:     pick(can.Tickets, leg.Tickets),
		GamesPlayed: numeric.Normalize(can.GamesPlayed),
	}

	if canonical == nil && legacy != nil && legacy.Level > 0 {
		snap.Level = progression.ClampLevel(legacy.Level)
	} else {
		snap.Level = progression.LevelFromExperience(snap.Exp)
	}
	snap.XPCap = progression.ExperienceCap(snap.Level)

	switch {
	case canonical == nil && legacy == nil:
		snap.Source = model.SourceEmpty
	case legacy == nil:
		snap.Source = model.SourceCanonical
	case canonical == nil:
		snap.Source = model.SourceLegacy
	case usesLegacy(can, leg):
		snap.Source = model.SourceMerged
	default:
		snap.Source = model.SourceCanonical
	}

	if canonical != nil && legacy != nil {
		for _, f := range snapshotFields {
			c, l := f.get(can), f.get(leg)
			if c != 0 && l != 0 && c != l {
				snap.Divergent = append(snap.Divergent, f.name)
			}
		}
	}
	return snap
}

var snapshotFields = []struct {
	name string
	get  func(SourceSnapshot) int64
}{
	{"coins", func(s SourceSnapshot) int64 { return s.Coins }},
	{"exp", func(s SourceSnapshot) int64 { return s.Exp }},
	{"tickets", func(s SourceSnapshot) int64 { return s.Tickets }},
}

func fieldValue(s *SourceSnapshot, field string) int64 {
	if s == nil {
		return 0
	}
	for _, f := range snapshotFields {
		if f.name == field {
			return f.get(*s)
		}
	}
	return 0
}

func usesLegacy(can, leg SourceSnapshot) bool {
	return (can.Coins == 0 && leg.Coins != 0) ||
		(can.Exp == 0 && leg.Exp != 0) ||
		(can.Tickets == 0 && leg.Tickets != 0)
}

// pick returns the canonical value if nonzero, else the legacy value, clamped to >= 0.
func pick(canonical, legacy int64) int64 {
	if canonical != 0 {
		return numeric.Normalize(canonical)
	}
	return numeric.Normalize(legacy)
}
