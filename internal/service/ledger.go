package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"arcade-backend/internal/model"
	"arcade-backend/internal/pkg/numeric"
	"arcade-backend/internal/pkg/retry"
	"arcade-backend/internal/repository"
)

// AppendOutcome says what happened to an appended delta.
type AppendOutcome string

const (
	// AppendApplied means a ledger entry was inserted and applied to the aggregate.
	AppendApplied AppendOutcome = "applied"
	// AppendDuplicate means the idempotency key was already used; nothing changed.
	AppendDuplicate AppendOutcome = "duplicate"
	// AppendSkipped means every delta field was zero; nothing was written.
	AppendSkipped AppendOutcome = "skipped"
)

// AppendResult describes a completed Append.
type AppendResult struct {
	Outcome AppendOutcome
	EntryID int64
	// Stats is the aggregate after the entry was applied. Nil unless Outcome is AppendApplied.
	Stats *model.Stats
}

// AppliedFunc runs inside the ledger transaction after an entry was inserted and applied.
type AppliedFunc func(ctx context.Context, tx pgx.Tx) error

// Appender appends wallet deltas to the ledger.
type Appender interface {
	Append(ctx context.Context, d model.Delta) (AppendResult, error)
	AppendWith(ctx context.Context, d model.Delta, onApplied AppliedFunc) (AppendResult, error)
}

// SchemaEnsurer creates missing tables.
type SchemaEnsurer interface {
	EnsureSchema(ctx context.Context) error
}

// LedgerWriter appends entries to the wallet ledger and applies them to the
// canonical aggregate in the same transaction.
type LedgerWriter struct {
	pool    *pgxpool.Pool
	stats   *repository.StatsRepository
	txs     *repository.TransactionRepository
	schema  SchemaEnsurer
	policy  retry.Policy
	entries metric.Int64Counter
}

// NewLedgerWriter creates a new LedgerWriter instance. schema may be nil, in
// which case a missing table is returned as an error.
func NewLedgerWriter(
	pool *pgxpool.Pool,
	stats *repository.StatsRepository,
	txs *repository.TransactionRepository,
	schema SchemaEnsurer,
	policy retry.Policy,
) *LedgerWriter {
	counter, err := otel.Meter("arcade-backend/ledger").Int64Counter("arcade_ledger_entries_total",
		metric.WithDescription("Ledger append attempts by outcome"),
		metric.WithUnit("{entry}"))
	if err != nil {
		log.Warn().Err(err).Msg("Failed to create ledger counter")
	}
	return &LedgerWriter{
		pool:    pool,
		stats:   stats,
		txs:     txs,
		schema:  schema,
		policy:  policy,
		entries: counter,
	}
}

// Append writes d to the ledger. See AppendWith.
func (w *LedgerWriter) Append(ctx context.Context, d model.Delta) (AppendResult, error) {
	return w.AppendWith(ctx, d, nil)
}

// AppendWith validates d, and unless every delta is zero, inserts the ledger
// entry and applies it to the account's aggregate in one transaction.
// A repeated idempotency key yields AppendDuplicate and changes nothing.
// onApplied, if set, runs in that transaction only when the entry was inserted.
func (w *LedgerWriter) AppendWith(ctx context.Context, d model.Delta, onApplied AppliedFunc) (AppendResult, error) {
	d, err := PrepareDelta(d)
	if err != nil {
		w.record(ctx, "invalid")
		return AppendResult{}, err
	}
	if IsZeroDelta(d) {
		w.record(ctx, string(AppendSkipped))
		return AppendResult{Outcome: AppendSkipped}, nil
	}

	res, err := w.write(ctx, d, onApplied)
	if err != nil && w.schema != nil && repository.IsUndefinedRelation(err) {
		log.Warn().Err(err).Str("account_id", d.AccountID).Msg("Ledger schema missing, running migrations")
		if ensureErr := w.schema.EnsureSchema(ctx); ensureErr != nil {
			w.record(ctx, "failed")
			return AppendResult{}, fmt.Errorf("failed to ensure ledger schema: %w", errors.Join(ensureErr, err))
		}
		res, err = w.write(ctx, d, onApplied)
	}
	if err != nil {
		w.record(ctx, "failed")
		return AppendResult{}, fmt.Errorf("failed to append ledger entry: %w", err)
	}

	w.record(ctx, string(res.Outcome))
	log.Debug().
		Str("account_id", d.AccountID).
		Str("reason", d.Reason).
		Str("result", string(res.Outcome)).
		Int64("coins", d.Coins).
		Int64("exp", d.Exp).
		Msg("Ledger append")
	return res, nil
}

func (w *LedgerWriter) write(ctx context.Context, d model.Delta, onApplied AppliedFunc) (AppendResult, error) {
	return retry.Do(ctx, w.policy, "ledger.append", func(ctx context.Context) (AppendResult, error) {
		var res AppendResult
		err := pgx.BeginFunc(ctx, w.pool, func(tx pgx.Tx) error {
			if err := w.stats.EnsureRow(ctx, tx, d.AccountID); err != nil {
				return err
			}
			id, inserted, err := w.txs.Insert(ctx, tx, d)
			if err != nil {
				return err
			}
			if !inserted {
				res = AppendResult{Outcome: AppendDuplicate}
				return nil
			}
			stats, err := w.stats.Apply(ctx, tx, d)
			if err != nil {
				return err
			}
			if onApplied != nil {
				if err := onApplied(ctx, tx); err != nil {
					return err
				}
			}
			res = AppendResult{Outcome: AppendApplied, EntryID: id, Stats: stats}
			return nil
		})
		return res, err
	})
}

func (w *LedgerWriter) record(ctx context.Context, result string) {
	if w.entries == nil {
		return
	}
	w.entries.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

// PrepareDelta validates d and returns it in canonical form: a canonical UUID
// account id, a trimmed idempotency key, and deltas clamped to the safe range.
func PrepareDelta(d model.Delta) (model.Delta, error) {
	id, err := NormalizeAccountID(d.AccountID)
	if err != nil {
		return d, err
	}
	d.AccountID = id

	d.IdempotencyKey = strings.TrimSpace(d.IdempotencyKey)
	if err := ValidateIdempotencyKey(d.IdempotencyKey); err != nil {
		return d, err
	}

	d.Reason = strings.TrimSpace(d.Reason)
	if d.Reason == "" {
		return d, fmt.Errorf("%w: reason required", ErrValidation)
	}
	switch d.Kind {
	case "", model.TxTypeReward, model.TxTypeEvent:
	default:
		return d, fmt.Errorf("%w: unknown entry kind %q", ErrValidation, d.Kind)
	}

	d.Coins = numeric.Signed(d.Coins)
	d.Exp = numeric.Signed(d.Exp)
	d.Tickets = numeric.Signed(d.Tickets)
	d.Plays = numeric.Signed(d.Plays)
	return d, nil
}

// IsZeroDelta reports whether d changes nothing.
func IsZeroDelta(d model.Delta) bool {
	return numeric.Signed(d.Coins) == 0 &&
		numeric.Signed(d.Exp) == 0 &&
		numeric.Signed(d.Tickets) == 0 &&
		numeric.Signed(d.Plays) == 0
}
