package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/chainhist/chainhist/internal/model"
)

// MaxUpsertBatch bounds one UpsertTransactions call. Callers with larger
// sets are responsible for chunking.
const MaxUpsertBatch = 100

// ErrBatchTooLarge is returned when a single upsert exceeds MaxUpsertBatch.
var ErrBatchTooLarge = errors.New("upsert batch exceeds maximum size")

// Store wraps SQLite-backed persistence for canonical transactions. It is
// the system of record consulted when live sources fail, and the write
// target for every successful aggregation.
type Store struct {
	db *sql.DB
}

// Open initializes a SQLite database and runs minimal schema setup.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := configure(db); err != nil {
		db.Close()
		return nil, err
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errors.New("store not initialized")
	}
	return s.db.PingContext(ctx)
}

func configure(db *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	pragmas := []string{
		"PRAGMA foreign_keys = ON;",
		"PRAGMA journal_mode = WAL;",
		"PRAGMA busy_timeout = 5000;",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("set pragma %q: %w", p, err)
		}
	}
	return nil
}

func migrate(db *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Direction and type are relative to the wallet a record was
	// aggregated for, so the wallet is part of the identity.
	schema := `
CREATE TABLE IF NOT EXISTS transactions (
  wallet          TEXT NOT NULL,
  network         TEXT NOT NULL,
  hash            TEXT NOT NULL,
  from_address    TEXT NOT NULL,
  to_address      TEXT NOT NULL,
  amount          TEXT NOT NULL,
  fee             TEXT,
  status          TEXT NOT NULL,
  block_number    INTEGER NOT NULL DEFAULT 0,
  timestamp       INTEGER NOT NULL,
  type            TEXT NOT NULL,
  direction       TEXT NOT NULL,
  token_symbol    TEXT,
  token_name      TEXT,
  token_decimals  INTEGER NOT NULL DEFAULT 0,
  metadata_json   TEXT,
  updated_at      TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
  PRIMARY KEY (wallet, network, hash)
);

CREATE INDEX IF NOT EXISTS idx_transactions_wallet_ts
  ON transactions (wallet, timestamp DESC);
`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// UpsertTransactions stores up to MaxUpsertBatch records for wallet,
// replacing rows with the same (wallet, network, hash). Re-upserting an
// identical record is a no-op in effect. Returns the number written.
func (s *Store) UpsertTransactions(ctx context.Context, wallet string, txs []model.Transaction) (int, error) {
	if wallet == "" {
		return 0, errors.New("wallet required")
	}
	if len(txs) > MaxUpsertBatch {
		return 0, fmt.Errorf("%w: %d > %d", ErrBatchTooLarge, len(txs), MaxUpsertBatch)
	}
	if len(txs) == 0 {
		return 0, nil
	}

	wallet = strings.ToLower(wallet)
	stored := 0
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		for _, t := range txs {
			if t.Hash == "" {
				continue
			}
			meta, err := marshalMetadata(t.Metadata)
			if err != nil {
				return fmt.Errorf("marshal metadata for %s: %w", t.Hash, err)
			}
			_, err = tx.ExecContext(ctx, `
INSERT INTO transactions (
  wallet, network, hash, from_address, to_address, amount, fee, status,
  block_number, timestamp, type, direction, token_symbol, token_name,
  token_decimals, metadata_json, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
ON CONFLICT(wallet, network, hash) DO UPDATE SET
  from_address=excluded.from_address,
  to_address=excluded.to_address,
  amount=excluded.amount,
  fee=excluded.fee,
  status=excluded.status,
  block_number=excluded.block_number,
  timestamp=excluded.timestamp,
  type=excluded.type,
  direction=excluded.direction,
  token_symbol=excluded.token_symbol,
  token_name=excluded.token_name,
  token_decimals=excluded.token_decimals,
  metadata_json=excluded.metadata_json,
  updated_at=CURRENT_TIMESTAMP;
`, wallet, t.Network, t.Hash, t.From, t.To, t.Amount, nullString(t.Fee),
				string(t.Status), t.BlockNumber, t.Timestamp.Unix(), string(t.Type),
				string(t.Direction), nullString(t.TokenSymbol), nullString(t.TokenName),
				t.TokenDecimals, meta)
			if err != nil {
				return fmt.Errorf("upsert %s: %w", t.Hash, err)
			}
			stored++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return stored, nil
}

// GetTransactionsByAddress returns every stored record for wallet across
// all networks, newest first.
func (s *Store) GetTransactionsByAddress(ctx context.Context, wallet string) ([]model.Transaction, error) {
	return s.queryByWallet(ctx, wallet, "")
}

// PendingByAddress returns stored records still marked pending for wallet.
func (s *Store) PendingByAddress(ctx context.Context, wallet string) ([]model.Transaction, error) {
	return s.queryByWallet(ctx, wallet, model.StatusPending)
}

func (s *Store) queryByWallet(ctx context.Context, wallet string, status model.Status) ([]model.Transaction, error) {
	if wallet == "" {
		return nil, errors.New("wallet required")
	}

	q := `
SELECT network, hash, from_address, to_address, amount, fee, status,
       block_number, timestamp, type, direction, token_symbol, token_name,
       token_decimals, metadata_json
FROM transactions
WHERE wallet = ?`
	args := []any{strings.ToLower(wallet)}
	if status != "" {
		q += " AND status = ?"
		args = append(args, string(status))
	}
	q += " ORDER BY timestamp DESC, block_number DESC;"

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	txs := []model.Transaction{}
	for rows.Next() {
		var (
			t      model.Transaction
			fee    sql.NullString
			symbol sql.NullString
			name   sql.NullString
			meta   sql.NullString
			ts     int64
			status string
			txType string
			txDir  string
		)
		if err := rows.Scan(&t.Network, &t.Hash, &t.From, &t.To, &t.Amount, &fee,
			&status, &t.BlockNumber, &ts, &txType, &txDir, &symbol, &name,
			&t.TokenDecimals, &meta); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		t.Fee = fee.String
		t.Status = model.Status(status)
		t.Type = model.Type(txType)
		t.Direction = model.Direction(txDir)
		t.TokenSymbol = symbol.String
		t.TokenName = name.String
		t.Timestamp = time.Unix(ts, 0).UTC()
		if meta.Valid && meta.String != "" {
			m := map[string]string{}
			if err := json.Unmarshal([]byte(meta.String), &m); err == nil {
				t.Metadata = m
			}
		}
		txs = append(txs, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return txs, nil
}

// WithTx executes a callback inside a transaction for callers needing atomicity.
func (s *Store) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func marshalMetadata(m map[string]string) (any, error) {
	if len(m) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
