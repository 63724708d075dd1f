package walletstore

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	clierr "github.com/ggonzalez94/agent-wallet/internal/errors"
)

const pgUniqueViolation = "23505"

// PostgresStore shares wallet records between processes through a pgx pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, clierr.New(clierr.CodeConfig, "postgres wallet store requires a dsn")
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, unavailableErr("connect", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, unavailableErr("ping", err)
	}
	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS wallets (
			user_id TEXT PRIMARY KEY,
			private_key TEXT NOT NULL,
			address TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`)
	if err != nil {
		pool.Close()
		return nil, unavailableErr("init schema", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (p *PostgresStore) Close() error {
	if p != nil && p.pool != nil {
		p.pool.Close()
	}
	return nil
}

func (p *PostgresStore) Find(ctx context.Context, userID string) (Record, bool, error) {
	var rec Record
	err := p.pool.QueryRow(ctx,
		`SELECT user_id, private_key, address, created_at, updated_at FROM wallets WHERE user_id = $1`, userID,
	).Scan(&rec.UserID, &rec.PrivateKey, &rec.Address, &rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, unavailableErr("read", err)
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	rec.UpdatedAt = rec.UpdatedAt.UTC()
	return rec, true, nil
}

func (p *PostgresStore) Insert(ctx context.Context, rec Record) error {
	if err := validateRecord(rec); err != nil {
		return err
	}
	rec = stamp(rec, time.Now().UTC())
	tag, err := p.pool.Exec(ctx, `
		INSERT INTO wallets (user_id, private_key, address, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id) DO NOTHING`,
		rec.UserID, rec.PrivateKey, rec.Address, rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return duplicateErr(rec.UserID)
		}
		return unavailableErr("insert", err)
	}
	if tag.RowsAffected() == 0 {
		return duplicateErr(rec.UserID)
	}
	return nil
}

func (p *PostgresStore) Update(ctx context.Context, userID string, patch Patch) error {
	tag, err := p.pool.Exec(ctx, `
		UPDATE wallets SET
			private_key = COALESCE($1, private_key),
			address = COALESCE($2, address),
			updated_at = $3
		WHERE user_id = $4`,
		patch.PrivateKey, patch.Address, time.Now().UTC(), userID)
	if err != nil {
		return unavailableErr("update", err)
	}
	if tag.RowsAffected() == 0 {
		return notFoundErr(userID)
	}
	return nil
}

func (p *PostgresStore) Delete(ctx context.Context, userID string) error {
	if _, err := p.pool.Exec(ctx, `DELETE FROM wallets WHERE user_id = $1`, userID); err != nil {
		return unavailableErr("delete", err)
	}
	return nil
}
