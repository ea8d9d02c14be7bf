package service

import (
	"context"
	"testing"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arcade-backend/internal/model"
)

type fakeLister struct {
	errs      []error
	calls     int
	lastLimit int
	rows      []*model.Transaction
}

func (f *fakeLister) ListByAccount(ctx context.Context, accountID string, limit int) ([]*model.Transaction, error) {
	f.calls++
	f.lastLimit = limit
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return nil, err
	}
	return f.rows, nil
}

func TestHistory_MissingTableIsEmpty(t *testing.T) {
	f := &fakeLister{errs: []error{&pgconn.PgError{Code: pgerrcode.UndefinedTable}}}
	svc := NewHistoryService(f, fastRetry())

	txs, err := svc.ListByAccount(context.Background(), testAccount, 50)
	require.NoError(t, err)
	assert.NotNil(t, txs)
	assert.Empty(t, txs)
}

func TestHistory_RetriesTransientErrors(t *testing.T) {
	f := &fakeLister{
		errs: []error{&pgconn.PgError{Code: pgerrcode.DeadlockDetected}},
		rows: []*model.Transaction{{ID: 7, AccountID: testAccount, Type: model.TxTypeEarn, Amount: 20}},
	}
	p := fastRetry()
	p.MaxAttempts = 2
	svc := NewHistoryService(f, p)

	txs, err := svc.ListByAccount(context.Background(), testAccount, 10)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, int64(7), txs[0].ID)
	assert.Equal(t, 2, f.calls)
	assert.Equal(t, 10, f.lastLimit)
}

func TestHistory_Validation(t *testing.T) {
	f := &fakeLister{}
	svc := NewHistoryService(f, fastRetry())

	_, err := svc.ListByAccount(context.Background(), "nope", 10)
	assert.ErrorIs(t, err, ErrInvalidAccountID)

	_, err = svc.ListByAccount(context.Background(), testAccount, 5000)
	require.NoError(t, err)
	assert.Equal(t, MaxHistoryLimit, f.lastLimit)
}

func TestHistory_PermanentErrorIsReturned(t *testing.T) {
	f := &fakeLister{errs: []error{errBoom}}
	svc := NewHistoryService(f, fastRetry())

	_, err := svc.ListByAccount(context.Background(), testAccount, 10)
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, 1, f.calls)
}
