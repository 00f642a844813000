package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ggonzalez94/distr-cli/internal/claim"
	"github.com/ggonzalez94/distr-cli/internal/wallet"
	"github.com/gofrs/flock"
	_ "modernc.org/sqlite"
)

// ErrClaimNotFound is returned by GetClaim for unknown claim ids.
var ErrClaimNotFound = errors.New("claim not found")

// Store persists the wallet session and claim history.
type Store struct {
	db   *sql.DB
	lock *flock.Flock
}

func Open(path, lockPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return nil, fmt.Errorf("create state lock directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open state sqlite: %w", err)
	}

	queries := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		`CREATE TABLE IF NOT EXISTS wallet_session (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			address TEXT NOT NULL,
			chain_id INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			payload BLOB NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS claims (
			claim_id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			status TEXT NOT NULL,
			chain_id INTEGER NOT NULL,
			account TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			payload BLOB NOT NULL
		);`,
		"CREATE INDEX IF NOT EXISTS idx_claims_status_updated ON claims(status, updated_at DESC);",
	}
	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init state schema: %w", err)
		}
	}
	return &Store{db: db, lock: flock.New(lockPath)}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) withLock(fn func() error) error {
	locked, err := s.lock.TryLockContext(context.Background(), 5*time.Second)
	if err != nil {
		return fmt.Errorf("lock state store: %w", err)
	}
	if !locked {
		return fmt.Errorf("lock state store: timeout acquiring lock")
	}
	defer func() { _ = s.lock.Unlock() }()
	return fn()
}

func (s *Store) LoadSession() (wallet.Account, bool, error) {
	var payload []byte
	err := s.db.QueryRow("SELECT payload FROM wallet_session WHERE id = 1").Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return wallet.Account{}, false, nil
		}
		return wallet.Account{}, false, fmt.Errorf("read wallet session: %w", err)
	}
	var account wallet.Account
	if err := json.Unmarshal(payload, &account); err != nil {
		return wallet.Account{}, false, fmt.Errorf("decode wallet session: %w", err)
	}
	return account, true, nil
}

func (s *Store) SaveSession(account wallet.Account) error {
	payload, err := json.Marshal(account)
	if err != nil {
		return fmt.Errorf("marshal wallet session: %w", err)
	}
	return s.withLock(func() error {
		_, err := s.db.Exec(`
			INSERT INTO wallet_session (id, address, chain_id, updated_at, payload)
			VALUES (1, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				address=excluded.address,
				chain_id=excluded.chain_id,
				updated_at=excluded.updated_at,
				payload=excluded.payload
		`, account.Address.Hex(), account.Chain.ID, time.Now().UTC().Unix(), payload)
		if err != nil {
			return fmt.Errorf("save wallet session: %w", err)
		}
		return nil
	})
}

// ClearSession removes the session and reports whether one existed.
func (s *Store) ClearSession() (bool, error) {
	var cleared bool
	err := s.withLock(func() error {
		res, err := s.db.Exec("DELETE FROM wallet_session WHERE id = 1")
		if err != nil {
			return fmt.Errorf("clear wallet session: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("clear wallet session: %w", err)
		}
		cleared = n > 0
		return nil
	})
	return cleared, err
}

func (s *Store) SaveClaim(record claim.Record) error {
	if strings.TrimSpace(record.ClaimID) == "" {
		return fmt.Errorf("save claim: missing claim id")
	}
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal claim: %w", err)
	}
	createdUnix := parseRFC3339Unix(record.CreatedAt)
	updatedUnix := parseRFC3339Unix(record.UpdatedAt)
	return s.withLock(func() error {
		_, err := s.db.Exec(`
			INSERT INTO claims (claim_id, kind, status, chain_id, account, created_at, updated_at, payload)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(claim_id) DO UPDATE SET
				status=excluded.status,
				updated_at=excluded.updated_at,
				payload=excluded.payload
		`, record.ClaimID, string(record.Kind), string(record.Status), record.ChainID, record.Account, createdUnix, updatedUnix, payload)
		if err != nil {
			return fmt.Errorf("save claim: %w", err)
		}
		return nil
	})
}

func (s *Store) GetClaim(claimID string) (claim.Record, error) {
	var payload []byte
	err := s.db.QueryRow("SELECT payload FROM claims WHERE claim_id = ?", claimID).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return claim.Record{}, fmt.Errorf("%w: %s", ErrClaimNotFound, claimID)
		}
		return claim.Record{}, fmt.Errorf("read claim: %w", err)
	}
	var record claim.Record
	if err := json.Unmarshal(payload, &record); err != nil {
		return claim.Record{}, fmt.Errorf("decode claim payload: %w", err)
	}
	return record, nil
}

// ListClaims returns the most recently updated claims, optionally filtered by status.
func (s *Store) ListClaims(status string, limit int) ([]claim.Record, error) {
	if limit <= 0 {
		limit = 20
	}
	var (
		rows *sql.Rows
		err  error
	)
	if strings.TrimSpace(status) == "" {
		rows, err = s.db.Query("SELECT payload FROM claims ORDER BY updated_at DESC, created_at DESC LIMIT ?", limit)
	} else {
		rows, err = s.db.Query("SELECT payload FROM claims WHERE status = ? ORDER BY updated_at DESC, created_at DESC LIMIT ?", status, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("list claims: %w", err)
	}
	defer rows.Close()

	records := make([]claim.Record, 0)
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan claim row: %w", err)
		}
		var record claim.Record
		if err := json.Unmarshal(payload, &record); err != nil {
			return nil, fmt.Errorf("decode claim row: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate claim rows: %w", err)
	}
	return records, nil
}

func parseRFC3339Unix(v string) int64 {
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Now().UTC().Unix()
	}
	return t.UTC().Unix()
}
