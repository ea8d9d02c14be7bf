package service

import (
	"context"
	"errors"
	"sync"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"

	"arcade-backend/internal/model"
	"arcade-backend/internal/repository"
)

// fakeWallet is an in-memory ledger with the same idempotency and apply
// semantics as LedgerWriter.
type fakeWallet struct {
	mu       sync.Mutex
	totals   map[string]*SourceSnapshot
	entries  []model.Delta
	keys     map[string]model.Transaction
	failWith error
}

func newFakeWallet() *fakeWallet {
	return &fakeWallet{
		totals: make(map[string]*SourceSnapshot),
		keys:   make(map[string]model.Transaction),
	}
}

func (w *fakeWallet) Append(ctx context.Context, d model.Delta) (AppendResult, error) {
	return w.AppendWith(ctx, d, nil)
}

func (w *fakeWallet) AppendWith(ctx context.Context, d model.Delta, onApplied AppliedFunc) (AppendResult, error) {
	d, err := PrepareDelta(d)
	if err != nil {
		return AppendResult{}, err
	}
	if IsZeroDelta(d) {
		return AppendResult{Outcome: AppendSkipped}, nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.failWith != nil {
		return AppendResult{}, w.failWith
	}
	if d.IdempotencyKey != "" {
		if _, seen := w.keys[d.IdempotencyKey]; seen {
			return AppendResult{Outcome: AppendDuplicate}, nil
		}
	}
	if onApplied != nil {
		if err := onApplied(ctx, nil); err != nil {
			return AppendResult{}, err
		}
	}
	if d.IdempotencyKey != "" {
		refID := d.RefID
		w.keys[d.IdempotencyKey] = model.Transaction{AccountID: d.AccountID, Reason: d.Reason, RefID: &refID}
	}
	w.entries = append(w.entries, d)

	t := w.totals[d.AccountID]
	if t == nil {
		t = &SourceSnapshot{}
		w.totals[d.AccountID] = t
	}
	t.Coins += d.Coins
	t.Exp += d.Exp
	t.Tickets += d.Tickets
	t.GamesPlayed += d.Plays
	return AppendResult{Outcome: AppendApplied, EntryID: int64(len(w.entries))}, nil
}

func (w *fakeWallet) LoadSnapshot(ctx context.Context, accountID string) (model.WalletSnapshot, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	t, ok := w.totals[accountID]
	if !ok {
		return MergeSnapshots(nil, nil), nil
	}
	snap := *t
	return MergeSnapshots(&snap, nil), nil
}

func (w *fakeWallet) FindByIdempotencyKey(ctx context.Context, key string) (*model.Transaction, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	tx, ok := w.keys[key]
	if !ok {
		return nil, repository.ErrTransactionNotFound
	}
	tx.IdempotencyKey = &key
	return &tx, nil
}

// canonical exposes the fake ledger's totals as the canonical SnapshotSource.
func (w *fakeWallet) canonical() SnapshotSource {
	return walletSource{w}
}

type walletSource struct{ w *fakeWallet }

func (s walletSource) Load(ctx context.Context, accountID string) (SourceSnapshot, bool, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	t, ok := s.w.totals[accountID]
	if !ok {
		return SourceSnapshot{}, false, nil
	}
	return *t, true, nil
}

func (w *fakeWallet) entriesWithReason(reason string) []model.Delta {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []model.Delta
	for _, e := range w.entries {
		if e.Reason == reason {
			out = append(out, e)
		}
	}
	return out
}

func (w *fakeWallet) seed(accountID string, coins int64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.totals[accountID] = &SourceSnapshot{Coins: coins}
}

func (w *fakeWallet) entryCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.entries)
}

// fakeSource is a SnapshotSource with canned results.
type fakeSource struct {
	snap  SourceSnapshot
	found bool
	err   error
	calls int
}

func (s *fakeSource) Load(ctx context.Context, accountID string) (SourceSnapshot, bool, error) {
	s.calls++
	return s.snap, s.found, s.err
}

type fakeInventory struct {
	mu      sync.Mutex
	items   map[string]int
	err     error
	readErr error
	// flaky is the number of reads that fail with a transient error first.
	flaky int
}

func newFakeInventory() *fakeInventory {
	return &fakeInventory{items: make(map[string]int)}
}

func (f *fakeInventory) AddItem(ctx context.Context, q repository.DBTX, accountID, itemID string, quantity int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.items[accountID+"/"+itemID] += quantity
	return nil
}

func (f *fakeInventory) GetQuantity(ctx context.Context, accountID, itemID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.readFailure(); err != nil {
		return 0, err
	}
	return f.items[accountID+"/"+itemID], nil
}

func (f *fakeInventory) ListItems(ctx context.Context, accountID string) ([]model.InventoryItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.readFailure(); err != nil {
		return nil, err
	}
	var items []model.InventoryItem
	for k, q := range f.items {
		if len(k) > len(accountID) && k[:len(accountID)] == accountID && q > 0 {
			items = append(items, model.InventoryItem{AccountID: accountID, ItemID: k[len(accountID)+1:], Quantity: q})
		}
	}
	return items, nil
}

func (f *fakeInventory) readFailure() error {
	if f.flaky > 0 {
		f.flaky--
		return &pgconn.PgError{Code: pgerrcode.SerializationFailure}
	}
	return f.readErr
}

var errBoom = errors.New("boom")
