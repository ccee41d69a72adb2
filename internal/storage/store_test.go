package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/chainhist/chainhist/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")
	store, err := Open(dbPath)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func sampleTx(hash string, ts time.Time) model.Transaction {
	return model.Transaction{
		Hash:      hash,
		From:      "0x0000000000000000000000000000000000000001",
		To:        "0x0000000000000000000000000000000000000002",
		Amount:    "1.5",
		Fee:       "0.00042",
		Status:    model.StatusConfirmed,
		Network:   "Ethereum",
		Timestamp: ts.UTC().Truncate(time.Second),
		Type:      model.TypeSent,
		Direction: model.DirectionOutgoing,
	}
}

func TestUpsertAndGetByAddress(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	txs := []model.Transaction{
		sampleTx("0xa", now.Add(-time.Hour)),
		sampleTx("0xb", now),
	}
	n, err := store.UpsertTransactions(ctx, "0xWallet1", txs)
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if n != 2 {
		t.Fatalf("stored = %d, want 2", n)
	}

	// Lookup is case-insensitive on the wallet.
	got, err := store.GetTransactionsByAddress(ctx, "0xWALLET1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d rows, want 2", len(got))
	}
	if got[0].Hash != "0xb" || got[1].Hash != "0xa" {
		t.Fatalf("rows not newest-first: %s, %s", got[0].Hash, got[1].Hash)
	}
}

func TestUpsertIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	tx := sampleTx("0xdead", time.Now())

	for i := 0; i < 2; i++ {
		if _, err := store.UpsertTransactions(ctx, "0xwallet1", []model.Transaction{tx}); err != nil {
			t.Fatalf("upsert %d: %v", i, err)
		}
	}

	got, err := store.GetTransactionsByAddress(ctx, "0xwallet1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d rows, want 1 after duplicate upsert", len(got))
	}
}

func TestUpsertReplacesChangedFields(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	tx := sampleTx("0xdead", time.Now())
	tx.Status = model.StatusPending
	if _, err := store.UpsertTransactions(ctx, "0xwallet1", []model.Transaction{tx}); err != nil {
		t.Fatalf("first upsert: %v", err)
	}

	tx.Status = model.StatusConfirmed
	if _, err := store.UpsertTransactions(ctx, "0xwallet1", []model.Transaction{tx}); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	got, err := store.GetTransactionsByAddress(ctx, "0xwallet1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got) != 1 || got[0].Status != model.StatusConfirmed {
		t.Fatalf("row not replaced: %+v", got)
	}
}

func TestUpsertRejectsOversizedBatch(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	txs := make([]model.Transaction, MaxUpsertBatch+1)
	for i := range txs {
		txs[i] = sampleTx(fmt.Sprintf("0x%d", i), time.Now())
	}

	_, err := store.UpsertTransactions(ctx, "0xwallet1", txs)
	if !errors.Is(err, ErrBatchTooLarge) {
		t.Fatalf("err = %v, want ErrBatchTooLarge", err)
	}
}

func TestSameHashDifferentNetworksBothKept(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	a := sampleTx("0xshared", time.Now())
	a.Network = "Ethereum"
	b := sampleTx("0xshared", time.Now())
	b.Network = "Polygon"

	if _, err := store.UpsertTransactions(ctx, "0xwallet1", []model.Transaction{a, b}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, err := store.GetTransactionsByAddress(ctx, "0xwallet1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d rows, want 2 (hash unique per network)", len(got))
	}
}

func TestPendingByAddress(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	pending := sampleTx("0xpending", time.Now())
	pending.Status = model.StatusPending
	confirmed := sampleTx("0xdone", time.Now())

	if _, err := store.UpsertTransactions(ctx, "0xwallet1", []model.Transaction{pending, confirmed}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, err := store.PendingByAddress(ctx, "0xwallet1")
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(got) != 1 || got[0].Hash != "0xpending" {
		t.Fatalf("pending rows = %+v, want only 0xpending", got)
	}
}

func TestMetadataAndTokenFieldsRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	tx := sampleTx("0xtoken", time.Now())
	tx.Type = model.TypeTokenTransfer
	tx.TokenSymbol = "USDC"
	tx.TokenName = "USD Coin"
	tx.TokenDecimals = 6
	tx.Metadata = map[string]string{"methodId": "0xa9059cbb"}

	if _, err := store.UpsertTransactions(ctx, "0xwallet1", []model.Transaction{tx}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, err := store.GetTransactionsByAddress(ctx, "0xwallet1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d rows", len(got))
	}
	out := got[0]
	if out.TokenSymbol != "USDC" || out.TokenName != "USD Coin" || out.TokenDecimals != 6 {
		t.Fatalf("token fields lost: %+v", out)
	}
	if out.Metadata["methodId"] != "0xa9059cbb" {
		t.Fatalf("metadata lost: %v", out.Metadata)
	}
	if !out.Timestamp.Equal(tx.Timestamp) {
		t.Fatalf("timestamp = %v, want %v", out.Timestamp, tx.Timestamp)
	}
}

func TestWalletsAreIsolated(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.UpsertTransactions(ctx, "0xwallet1", []model.Transaction{sampleTx("0xa", time.Now())}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, err := store.GetTransactionsByAddress(ctx, "0xwallet2")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("wallet2 should have no rows, got %d", len(got))
	}
}

func TestPing(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Ping(ctx); err != nil {
		t.Fatalf("ping failed: %v", err)
	}

	store.Close()
	if err := store.Ping(ctx); err == nil {
		t.Fatalf("expected ping to fail after close")
	}
}
