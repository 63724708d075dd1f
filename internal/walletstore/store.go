// Package walletstore persists encrypted wallet records keyed by user id.
//
// Backends never see plaintext key material: Record.PrivateKey is always the
// iv:ciphertext payload produced by the secret package.
package walletstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	clierr "github.com/ggonzalez94/agent-wallet/internal/errors"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type Record struct {
	UserID     string    `json:"user_id"`
	PrivateKey string    `json:"private_key"`
	Address    string    `json:"address"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Patch lists the fields an update may change. Nil fields are left untouched.
type Patch struct {
	PrivateKey *string
	Address    *string
}

type Store interface {
	// Find returns the record for userID, or found=false when none exists.
	Find(ctx context.Context, userID string) (Record, bool, error)
	// Insert fails with CodeDuplicateKey when a record for the user exists.
	Insert(ctx context.Context, rec Record) error
	// Update fails with CodeNotFound when no record exists and always bumps UpdatedAt.
	Update(ctx context.Context, userID string, patch Patch) error
	// Delete removes the record if present.
	Delete(ctx context.Context, userID string) error
	Close() error
}

type Options struct {
	Driver   string
	Path     string
	LockPath string
	DSN      string
}

// Open selects a backend by driver name.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Driver)) {
	case "", DriverSQLite:
		return OpenSQLite(opts.Path, opts.LockPath)
	case DriverPostgres:
		return OpenPostgres(ctx, opts.DSN)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, clierr.New(clierr.CodeConfig, fmt.Sprintf("unsupported wallet store driver %q (expected %s|%s|%s)", opts.Driver, DriverSQLite, DriverPostgres, DriverMemory))
	}
}

func duplicateErr(userID string) error {
	return clierr.New(clierr.CodeDuplicateKey, fmt.Sprintf("wallet already exists for user %q", userID))
}

func notFoundErr(userID string) error {
	return clierr.New(clierr.CodeNotFound, fmt.Sprintf("no wallet for user %q", userID))
}

func unavailableErr(op string, err error) error {
	return clierr.Wrap(clierr.CodeUnavailable, "wallet store "+op, err)
}

func validateRecord(rec Record) error {
	if strings.TrimSpace(rec.UserID) == "" {
		return clierr.New(clierr.CodeUsage, "wallet record requires a user id")
	}
	if strings.TrimSpace(rec.PrivateKey) == "" {
		return clierr.New(clierr.CodeUsage, "wallet record requires an encrypted key")
	}
	return nil
}

func stamp(rec Record, now time.Time) Record {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = rec.CreatedAt
	}
	return rec
}
