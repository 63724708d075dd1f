package custody

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ggonzalez94/agent-wallet/internal/cache"
	clierr "github.com/ggonzalez94/agent-wallet/internal/errors"
	"github.com/ggonzalez94/agent-wallet/internal/secret"
	"github.com/ggonzalez94/agent-wallet/internal/signer"
	"github.com/ggonzalez94/agent-wallet/internal/walletcache"
	"github.com/ggonzalez94/agent-wallet/internal/walletstore"
)

const testKeyHex = "05f1f51c9decc55769cdf10694f3373409a1f4545e6f72ddb2c01d51491f5b89"

type countingStore struct {
	walletstore.Store
	finds   atomic.Int32
	inserts atomic.Int32
}

func (c *countingStore) Find(ctx context.Context, userID string) (walletstore.Record, bool, error) {
	c.finds.Add(1)
	return c.Store.Find(ctx, userID)
}

func (c *countingStore) Insert(ctx context.Context, rec walletstore.Record) error {
	c.inserts.Add(1)
	return c.Store.Insert(ctx, rec)
}

func newTestService(t *testing.T, store walletstore.Store) (*Service, *secret.Cipher) {
	t.Helper()
	cipher, err := secret.NewCipherFromHex(testKeyHex)
	if err != nil {
		t.Fatalf("NewCipherFromHex failed: %v", err)
	}
	mem, err := cache.NewMemory(1000)
	if err != nil {
		t.Fatalf("NewMemory failed: %v", err)
	}
	t.Cleanup(mem.Close)
	return New(store, cipher, walletcache.New[Wallet](mem, time.Hour)), cipher
}

func mustWallet(t *testing.T, svc *Service, userID string) Wallet {
	t.Helper()
	w, err := svc.GetOrCreate(context.Background(), userID)
	if err != nil {
		t.Fatalf("GetOrCreate(%q) failed: %v", userID, err)
	}
	return w
}

func TestGetOrCreateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := walletstore.NewMemory()
	svc, cipher := newTestService(t, store)

	first := mustWallet(t, svc, "u1")
	if !strings.HasPrefix(first.PrivateKey, "0x") || len(first.PrivateKey) != 66 {
		t.Fatalf("unexpected key format %q", first.PrivateKey)
	}
	signerFromKey, err := signer.NewLocalSignerFromHex(first.PrivateKey)
	if err != nil {
		t.Fatalf("generated key did not parse: %v", err)
	}
	if signerFromKey.Address().Hex() != first.Address {
		t.Fatalf("address %s does not match key %s", first.Address, signerFromKey.Address().Hex())
	}

	second := mustWallet(t, svc, "u1")
	if second.Address != first.Address || second.PrivateKey != first.PrivateKey {
		t.Fatalf("second call returned a different wallet: %s vs %s", second.Address, first.Address)
	}

	rec, found, err := store.Find(ctx, "u1")
	if err != nil || !found {
		t.Fatalf("expected stored record, found=%v err=%v", found, err)
	}
	if !strings.Contains(rec.PrivateKey, ":") || strings.Contains(rec.PrivateKey, strings.TrimPrefix(first.PrivateKey, "0x")) {
		t.Fatalf("stored key is not encrypted: %q", rec.PrivateKey)
	}
	plain, err := cipher.Decrypt(rec.PrivateKey)
	if err != nil {
		t.Fatalf("Decrypt failed: %v", err)
	}
	if plain != first.PrivateKey || rec.Address != first.Address {
		t.Fatalf("stored record does not match wallet: %+v", rec)
	}
}

func TestDistinctUsersGetDistinctWallets(t *testing.T) {
	svc, _ := newTestService(t, walletstore.NewMemory())

	u1 := mustWallet(t, svc, "u1")
	u2 := mustWallet(t, svc, "u2")
	if u1.Address == u2.Address {
		t.Fatalf("users share address %s", u1.Address)
	}
	if again := mustWallet(t, svc, "u1"); again.Address != u1.Address {
		t.Fatalf("expected %s, got %s", u1.Address, again.Address)
	}
}

func TestConcurrentGetOrCreateSharesOneWallet(t *testing.T) {
	ctx := context.Background()
	store := &countingStore{Store: walletstore.NewMemory()}
	svc, _ := newTestService(t, store)

	const workers = 16
	addrs := make([]string, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			w, err := svc.GetOrCreate(ctx, "racer")
			if err == nil {
				addrs[i] = w.Address
			}
		}(i)
	}
	wg.Wait()

	for i, a := range addrs {
		if a == "" || a != addrs[0] {
			t.Fatalf("worker %d got %q, want %q", i, a, addrs[0])
		}
	}
	rec, found, err := store.Find(ctx, "racer")
	if err != nil || !found {
		t.Fatalf("expected stored record, found=%v err=%v", found, err)
	}
	if rec.Address != addrs[0] {
		t.Fatalf("stored %s, callers saw %s", rec.Address, addrs[0])
	}
}

// gatedStore holds the first Find until release is closed.
type gatedStore struct {
	walletstore.Store
	gate    atomic.Bool
	entered chan struct{}
	release chan struct{}
}

func (g *gatedStore) Find(ctx context.Context, userID string) (walletstore.Record, bool, error) {
	if g.gate.CompareAndSwap(true, false) {
		close(g.entered)
		select {
		case <-g.release:
		case <-ctx.Done():
			return walletstore.Record{}, false, ctx.Err()
		}
	}
	return g.Store.Find(ctx, userID)
}

func TestCancelledCallerDoesNotFailSharedCreate(t *testing.T) {
	store := &gatedStore{Store: walletstore.NewMemory(), entered: make(chan struct{}), release: make(chan struct{})}
	store.gate.Store(true)
	svc, _ := newTestService(t, store)

	ctx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := svc.GetOrCreate(ctx, "u1")
		firstErr <- err
	}()
	<-store.entered
	cancel()
	if err := <-firstErr; !clierr.Is(err, clierr.CodeUnavailable) || !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancelled caller to get an interrupted error, got %v", err)
	}

	second := make(chan Wallet, 1)
	secondErr := make(chan error, 1)
	go func() {
		w, err := svc.GetOrCreate(context.Background(), "u1")
		second <- w
		secondErr <- err
	}()
	close(store.release)
	w := <-second
	if err := <-secondErr; err != nil {
		t.Fatalf("second caller failed after first was cancelled: %v", err)
	}
	rec, found, err := store.Store.Find(context.Background(), "u1")
	if err != nil || !found {
		t.Fatalf("expected wallet persisted, found=%v err=%v", found, err)
	}
	if rec.Address != w.Address {
		t.Fatalf("stored %s, caller got %s", rec.Address, w.Address)
	}
}

// staleReadStore hides an existing record from the first Find, the way a
// second process racing on the same user would look.
type staleReadStore struct {
	walletstore.Store
	hidden atomic.Bool
}

func (s *staleReadStore) Find(ctx context.Context, userID string) (walletstore.Record, bool, error) {
	if s.hidden.CompareAndSwap(true, false) {
		return walletstore.Record{}, false, nil
	}
	return s.Store.Find(ctx, userID)
}

func TestGetOrCreateAdoptsConcurrentWinner(t *testing.T) {
	ctx := context.Background()
	inner := walletstore.NewMemory()
	store := &staleReadStore{Store: inner}
	svc, cipher := newTestService(t, store)

	winner, err := signer.GenerateLocalSigner()
	if err != nil {
		t.Fatalf("GenerateLocalSigner failed: %v", err)
	}
	enc, err := cipher.Encrypt(winner.PrivateKeyHex())
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}
	if err := inner.Insert(ctx, walletstore.Record{UserID: "u1", PrivateKey: enc, Address: winner.Address().Hex()}); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	store.hidden.Store(true)

	got := mustWallet(t, svc, "u1")
	if got.Address != winner.Address().Hex() || got.PrivateKey != winner.PrivateKeyHex() {
		t.Fatalf("expected the existing wallet %s, got %s", winner.Address().Hex(), got.Address)
	}
}

func TestCacheServesRepeatLookups(t *testing.T) {
	store := &countingStore{Store: walletstore.NewMemory()}
	svc, _ := newTestService(t, store)

	mustWallet(t, svc, "u1")
	svc.cache.Wait()
	finds := store.finds.Load()

	for i := 0; i < 5; i++ {
		mustWallet(t, svc, "u1")
	}
	if got := store.finds.Load(); got != finds {
		t.Fatalf("expected cached reads, store finds went %d -> %d", finds, got)
	}
	if got := store.inserts.Load(); got != 1 {
		t.Fatalf("expected 1 insert, got %d", got)
	}
}

func TestUpdateInvalidatesCache(t *testing.T) {
	ctx := context.Background()
	store := walletstore.NewMemory()
	svc, cipher := newTestService(t, store)

	before := mustWallet(t, svc, "u1")
	svc.cache.Wait()

	replacement, err := signer.GenerateLocalSigner()
	if err != nil {
		t.Fatalf("GenerateLocalSigner failed: %v", err)
	}
	newKey := replacement.PrivateKeyHex()
	if err := svc.Update(ctx, "u1", WalletUpdate{PrivateKey: &newKey}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	after := mustWallet(t, svc, "u1")
	if after.Address == before.Address || after.Address != replacement.Address().Hex() || after.PrivateKey != newKey {
		t.Fatalf("expected rotated wallet %s, got %s", replacement.Address().Hex(), after.Address)
	}

	rec, _, err := store.Find(ctx, "u1")
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	plain, err := cipher.Decrypt(rec.PrivateKey)
	if err != nil {
		t.Fatalf("Decrypt failed: %v", err)
	}
	if plain != newKey || rec.Address != replacement.Address().Hex() {
		t.Fatalf("stored record not rotated: %+v", rec)
	}
}

func TestUpdateErrors(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, walletstore.NewMemory())

	key := "0x59c6995e998f97a5a0044976f0945388cf9b7e5e5f4f9d2d9d8f1f5b7f6d11d1"
	if err := svc.Update(ctx, "nobody", WalletUpdate{PrivateKey: &key}); !clierr.Is(err, clierr.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	mustWallet(t, svc, "u1")
	bad := "0xnothex"
	if err := svc.Update(ctx, "u1", WalletUpdate{PrivateKey: &bad}); !clierr.Is(err, clierr.CodeUsage) {
		t.Fatalf("expected usage error, got %v", err)
	}
}

func TestDeleteThenCreateYieldsNewWallet(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, walletstore.NewMemory())

	first := mustWallet(t, svc, "u1")
	svc.cache.Wait()

	if err := svc.Delete(ctx, "u1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := svc.Delete(ctx, "u1"); err != nil {
		t.Fatalf("second Delete should be a no-op, got %v", err)
	}
	if _, found, err := svc.Lookup(ctx, "u1"); err != nil || found {
		t.Fatalf("expected no wallet after delete, found=%v err=%v", found, err)
	}

	if second := mustWallet(t, svc, "u1"); second.Address == first.Address {
		t.Fatalf("expected a fresh wallet, got the deleted %s", first.Address)
	}
}

func TestUndecryptableRecordIsNotReplaced(t *testing.T) {
	ctx := context.Background()
	store := walletstore.NewMemory()
	svc, _ := newTestService(t, store)

	if err := store.Insert(ctx, walletstore.Record{UserID: "u1", PrivateKey: "no-delimiter", Address: "0x1"}); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if _, err := svc.GetOrCreate(ctx, "u1"); !clierr.Is(err, clierr.CodeDecryption) {
		t.Fatalf("expected decryption error, got %v", err)
	}

	rec, _, err := store.Find(ctx, "u1")
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if rec.PrivateKey != "no-delimiter" {
		t.Fatalf("record was overwritten: %q", rec.PrivateKey)
	}
}

func TestRecordsFromAnotherKeyAreUnreadable(t *testing.T) {
	ctx := context.Background()
	store := walletstore.NewMemory()
	svc, _ := newTestService(t, store)
	mustWallet(t, svc, "u1")

	otherCipher, err := secret.NewCipherFromHex(strings.Repeat("11", 32))
	if err != nil {
		t.Fatalf("NewCipherFromHex failed: %v", err)
	}
	mem, err := cache.NewMemory(10)
	if err != nil {
		t.Fatalf("NewMemory failed: %v", err)
	}
	defer mem.Close()
	other := New(store, otherCipher, walletcache.New[Wallet](mem, time.Hour))

	if _, err := other.GetOrCreate(ctx, "u1"); !clierr.Is(err, clierr.CodeDecryption) {
		t.Fatalf("expected decryption error, got %v", err)
	}
}

type downStore struct{ walletstore.Store }

func (downStore) Find(context.Context, string) (walletstore.Record, bool, error) {
	return walletstore.Record{}, false, clierr.Wrap(clierr.CodeUnavailable, "wallet store read", errors.New("connection refused"))
}

func TestStoreUnavailablePropagates(t *testing.T) {
	svc, _ := newTestService(t, downStore{Store: walletstore.NewMemory()})
	if _, err := svc.GetOrCreate(context.Background(), "u1"); !clierr.Is(err, clierr.CodeUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
}

func TestEmptyUserIDRejected(t *testing.T) {
	svc, _ := newTestService(t, walletstore.NewMemory())
	if _, err := svc.GetOrCreate(context.Background(), "  "); !clierr.Is(err, clierr.CodeUsage) {
		t.Fatalf("expected usage error, got %v", err)
	}
}
