// Package repository provides data access layer implementations.
package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Common errors for repository operations.
var (
	ErrStatsNotFound       = errors.New("stats not found")
	ErrLegacyNotFound      = errors.New("legacy record not found")
	ErrTransactionNotFound = errors.New("transaction not found")
)

// DBTX is the query surface shared by *pgxpool.Pool and pgx.Tx, so writes can
// run either standalone or inside a caller's transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// IsUndefinedRelation reports whether err means a table or schema has not been
// created yet.
func IsUndefinedRelation(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case pgerrcode.UndefinedTable, pgerrcode.InvalidSchemaName:
		return true
	}
	return false
}
