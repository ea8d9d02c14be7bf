package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"arcade-backend/internal/model"
)

// TransactionRepository handles the append-only wallet ledger (wallet_transactions).
type TransactionRepository struct {
	pool *pgxpool.Pool
}

// NewTransactionRepository creates a new TransactionRepository instance.
func NewTransactionRepository(pool *pgxpool.Pool) *TransactionRepository {
	return &TransactionRepository{pool: pool}
}

// Insert appends a ledger entry for d.
// With an idempotency key the insert is skipped when the key already exists,
// in which case inserted is false and id is 0. Without a key it always inserts.
func (r *TransactionRepository) Insert(ctx context.Context, q DBTX, d model.Delta) (id int64, inserted bool, err error) {
	meta, err := encodeMeta(d.Meta)
	if err != nil {
		return 0, false, err
	}

	args := []any{
		d.AccountID,
		d.EntryType(),
		d.Coins,
		d.Exp,
		d.Tickets,
		d.Plays,
		d.Reason,
		nullable(d.RefTable),
		nullable(d.RefID),
		nullable(d.IdempotencyKey),
		meta,
	}

	if d.IdempotencyKey == "" {
		const query = `
			INSERT INTO wallet_transactions
				(user_id, type, amount, exp_delta, tickets_delta, plays_delta,
				 reason, ref_table, ref_id, idempotency_key, meta, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW())
			RETURNING id
		`
		if err := q.QueryRow(ctx, query, args...).Scan(&id); err != nil {
			return 0, false, fmt.Errorf("failed to insert ledger entry: %w", err)
		}
		return id, true, nil
	}

	const query = `
		INSERT INTO wallet_transactions
			(user_id, type, amount, exp_delta, tickets_delta, plays_delta,
			 reason, ref_table, ref_id, idempotency_key, meta, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW())
		ON CONFLICT (idempotency_key) DO NOTHING
		RETURNING id
	`
	err = q.QueryRow(ctx, query, args...).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("failed to insert ledger entry: %w", err)
	}
	return id, true, nil
}

// FindByIdempotencyKey retrieves the entry written with key.
// Returns ErrTransactionNotFound if no entry used it.
func (r *TransactionRepository) FindByIdempotencyKey(ctx context.Context, key string) (*model.Transaction, error) {
	const query = `
		SELECT id, user_id::text, type, amount, exp_delta, tickets_delta, plays_delta,
		       reason, ref_table, ref_id, idempotency_key, meta, created_at
		FROM wallet_transactions
		WHERE idempotency_key = $1
	`

	tx, err := scanTransaction(r.pool.QueryRow(ctx, query, key))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTransactionNotFound
		}
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return tx, nil
}

// ListByAccount retrieves an account's ledger entries, newest first.
func (r *TransactionRepository) ListByAccount(ctx context.Context, accountID string, limit int) ([]*model.Transaction, error) {
	const query = `
		SELECT id, user_id::text, type, amount, exp_delta, tickets_delta, plays_delta,
		       reason, ref_table, ref_id, idempotency_key, meta, created_at
		FROM wallet_transactions
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get transactions: %w", err)
	}
	defer rows.Close()

	var transactions []*model.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		transactions = append(transactions, tx)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}

	return transactions, nil
}

// DailyWinners retrieves the accounts with the highest net coin result from
// gameplay entries on the given day. Day boundaries use date's location.
func (r *TransactionRepository) DailyWinners(ctx context.Context, date time.Time, limit int) ([]*model.DailyRank, error) {
	startOfDay := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	endOfDay := startOfDay.AddDate(0, 0, 1)

	const query = `
		SELECT user_id::text, COALESCE(SUM(amount), 0) AS net_coins, COALESCE(SUM(plays_delta), 0) AS plays
		FROM wallet_transactions
		WHERE reason LIKE $1
		  AND created_at >= $2
		  AND created_at < $3
		GROUP BY user_id
		HAVING SUM(amount) > 0
		ORDER BY net_coins DESC, plays DESC
		LIMIT $4
	`

	rows, err := r.pool.Query(ctx, query, model.ReasonPlayPrefix+"%", startOfDay, endOfDay, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get daily winners: %w", err)
	}
	defer rows.Close()

	var winners []*model.DailyRank
	for rows.Next() {
		var rank model.DailyRank
		if err := rows.Scan(&rank.AccountID, &rank.NetCoins, &rank.Plays); err != nil {
			return nil, fmt.Errorf("failed to scan winner: %w", err)
		}
		winners = append(winners, &rank)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating winners: %w", err)
	}

	return winners, nil
}

func scanTransaction(row pgx.Row) (*model.Transaction, error) {
	var (
		tx   model.Transaction
		meta []byte
	)
	err := row.Scan(
		&tx.ID,
		&tx.AccountID,
		&tx.Type,
		&tx.Amount,
		&tx.ExpDelta,
		&tx.TicketsDelta,
		&tx.PlaysDelta,
		&tx.Reason,
		&tx.RefTable,
		&tx.RefID,
		&tx.IdempotencyKey,
		&meta,
		&tx.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &tx.Meta); err != nil {
			return nil, fmt.Errorf("failed to decode transaction meta: %w", err)
		}
	}
	return &tx, nil
}

func encodeMeta(meta map[string]any) ([]byte, error) {
	if len(meta) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("failed to encode transaction meta: %w", err)
	}
	return b, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
