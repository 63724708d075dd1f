package walletstore

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	_ "modernc.org/sqlite"
)

const lockTimeout = 5 * time.Second

type SQLiteStore struct {
	db   *sql.DB
	lock *flock.Flock
	now  func() time.Time
}

func OpenSQLite(path, lockPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, unavailableErr("open: create directory", err)
	}
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return nil, unavailableErr("open: create lock directory", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, unavailableErr("open", err)
	}
	// Single connection so pragmas apply to every statement and writers queue in-process.
	db.SetMaxOpenConns(1)

	queries := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		`CREATE TABLE IF NOT EXISTS wallets (
			user_id TEXT PRIMARY KEY,
			private_key TEXT NOT NULL,
			address TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);`,
	}
	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			_ = db.Close()
			return nil, unavailableErr("init schema", err)
		}
	}
	return &SQLiteStore{db: db, lock: flock.New(lockPath), now: time.Now}, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) Find(ctx context.Context, userID string) (Record, bool, error) {
	var rec Record
	var createdMillis, updatedMillis int64
	err := s.db.QueryRowContext(ctx,
		"SELECT user_id, private_key, address, created_at, updated_at FROM wallets WHERE user_id = ?", userID,
	).Scan(&rec.UserID, &rec.PrivateKey, &rec.Address, &createdMillis, &updatedMillis)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, false, nil
		}
		return Record{}, false, unavailableErr("read", err)
	}
	rec.CreatedAt = time.UnixMilli(createdMillis).UTC()
	rec.UpdatedAt = time.UnixMilli(updatedMillis).UTC()
	return rec, true, nil
}

func (s *SQLiteStore) Insert(ctx context.Context, rec Record) error {
	if err := validateRecord(rec); err != nil {
		return err
	}
	unlock, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	rec = stamp(rec, s.now().UTC())
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO wallets (user_id, private_key, address, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO NOTHING
	`, rec.UserID, rec.PrivateKey, rec.Address, rec.CreatedAt.UnixMilli(), rec.UpdatedAt.UnixMilli())
	if err != nil {
		return unavailableErr("insert", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return unavailableErr("insert", err)
	}
	if n == 0 {
		return duplicateErr(rec.UserID)
	}
	return nil
}

func (s *SQLiteStore) Update(ctx context.Context, userID string, patch Patch) error {
	unlock, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE wallets SET
			private_key = COALESCE(?, private_key),
			address = COALESCE(?, address),
			updated_at = ?
		WHERE user_id = ?
	`, nullable(patch.PrivateKey), nullable(patch.Address), s.now().UTC().UnixMilli(), userID)
	if err != nil {
		return unavailableErr("update", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return unavailableErr("update", err)
	}
	if n == 0 {
		return notFoundErr(userID)
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, userID string) error {
	unlock, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	if _, err := s.db.ExecContext(ctx, "DELETE FROM wallets WHERE user_id = ?", userID); err != nil {
		return unavailableErr("delete", err)
	}
	return nil
}

func (s *SQLiteStore) acquire(ctx context.Context) (func(), error) {
	ctx, cancel := context.WithTimeout(ctx, lockTimeout)
	defer cancel()
	locked, err := s.lock.TryLockContext(ctx, 50*time.Millisecond)
	if err != nil {
		return nil, unavailableErr("lock", err)
	}
	if !locked {
		return nil, unavailableErr("lock", errors.New("timeout acquiring lock"))
	}
	return func() { _ = s.lock.Unlock() }, nil
}

func nullable(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}
