// Package custody resolves, creates, rotates and deletes per-user wallets.
//
// A user's signing key is generated on first use, stored encrypted, and
// served from a short-lived in-memory cache afterwards.
package custody

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	clierr "github.com/ggonzalez94/agent-wallet/internal/errors"
	"github.com/ggonzalez94/agent-wallet/internal/secret"
	"github.com/ggonzalez94/agent-wallet/internal/signer"
	"github.com/ggonzalez94/agent-wallet/internal/walletcache"
	"github.com/ggonzalez94/agent-wallet/internal/walletstore"
)

const sharedCreateTimeout = 30 * time.Second

// Wallet is a user's resolved wallet with its plaintext key.
type Wallet struct {
	UserID     string    `json:"user_id"`
	PrivateKey string    `json:"-"`
	Address    string    `json:"address"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (w Wallet) Signer() (*signer.LocalSigner, error) {
	return signer.NewLocalSignerFromHex(w.PrivateKey)
}

// WalletUpdate carries a replacement plaintext key. A nil key only refreshes UpdatedAt.
type WalletUpdate struct {
	PrivateKey *string
}

type Service struct {
	store  walletstore.Store
	cipher *secret.Cipher
	cache  *walletcache.Cache[Wallet]
	group  singleflight.Group
	log    zerolog.Logger
	newKey func() (*signer.LocalSigner, error)
}

type Option func(*Service)

func WithLogger(log zerolog.Logger) Option {
	return func(s *Service) { s.log = log }
}

func New(store walletstore.Store, cipher *secret.Cipher, cache *walletcache.Cache[Wallet], opts ...Option) *Service {
	s := &Service{
		store:  store,
		cipher: cipher,
		cache:  cache,
		log:    zerolog.Nop(),
		newKey: signer.GenerateLocalSigner,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetOrCreate returns the user's wallet, creating and persisting one on first use.
// Concurrent first-time calls for the same user in this process share one creation.
func (s *Service) GetOrCreate(ctx context.Context, userID string) (Wallet, error) {
	if err := requireUser(userID); err != nil {
		return Wallet{}, err
	}
	if w, ok := s.cache.Get(userID); ok {
		return w, nil
	}
	// The shared creation ignores any one caller's cancellation and has its own bound.
	ch := s.group.DoChan(userID, func() (any, error) {
		shared, cancel := context.WithTimeout(context.WithoutCancel(ctx), sharedCreateTimeout)
		defer cancel()
		return s.resolveOrCreate(shared, userID)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return Wallet{}, res.Err
		}
		return res.Val.(Wallet), nil
	case <-ctx.Done():
		return Wallet{}, clierr.Wrap(clierr.CodeUnavailable, "wallet resolution for "+userID+" interrupted", ctx.Err())
	}
}

// Lookup resolves an existing wallet without creating one.
func (s *Service) Lookup(ctx context.Context, userID string) (Wallet, bool, error) {
	if err := requireUser(userID); err != nil {
		return Wallet{}, false, err
	}
	if w, ok := s.cache.Get(userID); ok {
		return w, true, nil
	}
	return s.load(ctx, userID)
}

func (s *Service) Update(ctx context.Context, userID string, upd WalletUpdate) error {
	if err := requireUser(userID); err != nil {
		return err
	}
	defer s.cache.Invalidate(userID)

	var patch walletstore.Patch
	if upd.PrivateKey != nil {
		key, err := signer.NewLocalSignerFromHex(*upd.PrivateKey)
		if err != nil {
			return clierr.Wrap(clierr.CodeUsage, "replacement key is not a valid private key", err)
		}
		enc, err := s.cipher.Encrypt(key.PrivateKeyHex())
		if err != nil {
			return err
		}
		addr := key.Address().Hex()
		patch.PrivateKey = &enc
		patch.Address = &addr
	}
	if err := s.store.Update(ctx, userID, patch); err != nil {
		return err
	}
	s.log.Info().Str("user_id", userID).Bool("rotated", upd.PrivateKey != nil).Msg("wallet updated")
	return nil
}

func (s *Service) Delete(ctx context.Context, userID string) error {
	if err := requireUser(userID); err != nil {
		return err
	}
	defer s.cache.Invalidate(userID)
	if err := s.store.Delete(ctx, userID); err != nil {
		return err
	}
	s.log.Info().Str("user_id", userID).Msg("wallet deleted")
	return nil
}

func (s *Service) resolveOrCreate(ctx context.Context, userID string) (Wallet, error) {
	w, found, err := s.load(ctx, userID)
	if err != nil || found {
		return w, err
	}

	key, err := s.newKey()
	if err != nil {
		return Wallet{}, err
	}
	enc, err := s.cipher.Encrypt(key.PrivateKeyHex())
	if err != nil {
		return Wallet{}, err
	}
	now := time.Now().UTC()
	rec := walletstore.Record{
		UserID:     userID,
		PrivateKey: enc,
		Address:    key.Address().Hex(),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.store.Insert(ctx, rec); err != nil {
		if !clierr.Is(err, clierr.CodeDuplicateKey) {
			return Wallet{}, err
		}
		// Another writer created the wallet first; theirs wins.
		s.log.Debug().Str("user_id", userID).Msg("wallet created concurrently, re-reading")
		w, found, err := s.load(ctx, userID)
		if err != nil {
			return Wallet{}, err
		}
		if !found {
			return Wallet{}, clierr.New(clierr.CodeUnavailable, "wallet vanished after concurrent create")
		}
		return w, nil
	}

	w = Wallet{
		UserID:     userID,
		PrivateKey: key.PrivateKeyHex(),
		Address:    rec.Address,
		CreatedAt:  rec.CreatedAt,
		UpdatedAt:  rec.UpdatedAt,
	}
	s.cache.Set(userID, w)
	s.log.Info().Str("user_id", userID).Str("address", w.Address).Msg("wallet created")
	return w, nil
}

// load reads and decrypts the stored record, populating the cache on success.
func (s *Service) load(ctx context.Context, userID string) (Wallet, bool, error) {
	rec, found, err := s.store.Find(ctx, userID)
	if err != nil || !found {
		return Wallet{}, false, err
	}
	plain, err := s.cipher.Decrypt(rec.PrivateKey)
	if err != nil {
		return Wallet{}, false, err
	}
	key, err := signer.NewLocalSignerFromHex(plain)
	if err != nil {
		return Wallet{}, false, clierr.New(clierr.CodeDecryption, "stored wallet key did not decrypt to a valid private key")
	}
	addr := key.Address().Hex()
	if !strings.EqualFold(addr, rec.Address) {
		s.log.Warn().Str("user_id", userID).Str("stored", rec.Address).Str("derived", addr).Msg("stored wallet address does not match key")
	}
	w := Wallet{
		UserID:     rec.UserID,
		PrivateKey: key.PrivateKeyHex(),
		Address:    addr,
		CreatedAt:  rec.CreatedAt,
		UpdatedAt:  rec.UpdatedAt,
	}
	s.cache.Set(userID, w)
	return w, true, nil
}

func requireUser(userID string) error {
	if strings.TrimSpace(userID) == "" {
		return clierr.New(clierr.CodeUsage, "user id is required")
	}
	return nil
}
