package cache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func openTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	tmp := t.TempDir()
	store, err := OpenSQLite(filepath.Join(tmp, "cache.db"), filepath.Join(tmp, "cache.lock"))
	if err != nil {
		t.Fatalf("OpenSQLite failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteSetGetThenExpire(t *testing.T) {
	ctx := context.Background()
	store := openTestSQLite(t)

	if err := store.Set(ctx, "k1", []byte(`{"v":1}`), 300*time.Millisecond); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	res, err := store.Get(ctx, "k1")
	if err != nil {
		t.Fatalf("Get fresh failed: %v", err)
	}
	if !res.Hit || string(res.Value) != `{"v":1}` {
		t.Fatalf("expected fresh hit, got %+v", res)
	}
	if res.Remaining() <= 0 || res.Remaining() > 300*time.Millisecond {
		t.Fatalf("unexpected remaining ttl %s", res.Remaining())
	}

	time.Sleep(400 * time.Millisecond)
	res, err = store.Get(ctx, "k1")
	if err != nil {
		t.Fatalf("Get expired failed: %v", err)
	}
	if res.Hit {
		t.Fatalf("expected expired entry to miss, got %+v", res)
	}
}

func TestSQLiteDeleteAndPrune(t *testing.T) {
	ctx := context.Background()
	store := openTestSQLite(t)

	if err := store.Set(ctx, "gone", []byte("x"), time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := store.Delete(ctx, "gone"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if res, _ := store.Get(ctx, "gone"); res.Hit {
		t.Fatal("expected miss after delete")
	}

	if err := store.Set(ctx, "short", []byte("x"), 50*time.Millisecond); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	time.Sleep(100 * time.Millisecond)
	if err := store.Prune(ctx); err != nil {
		t.Fatalf("Prune failed: %v", err)
	}
	var n int
	if err := store.db.QueryRow("SELECT COUNT(*) FROM cache_entries").Scan(&n); err != nil {
		t.Fatalf("count rows: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected prune to remove expired rows, %d left", n)
	}
}

func TestSQLiteConcurrentOpenAndSet(t *testing.T) {
	tmp := t.TempDir()
	dbPath := filepath.Join(tmp, "cache.db")
	lockPath := filepath.Join(tmp, "cache.lock")

	const workers = 8
	const iterations = 25

	var wg sync.WaitGroup
	errCh := make(chan error, workers)
	for worker := 0; worker < workers; worker++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			ctx := context.Background()

			store, err := OpenSQLite(dbPath, lockPath)
			if err != nil {
				errCh <- fmt.Errorf("worker %d open: %w", workerID, err)
				return
			}
			defer store.Close()

			for i := 0; i < iterations; i++ {
				key := fmt.Sprintf("worker-%d-key-%d", workerID, i)
				if err := store.Set(ctx, key, []byte(`{"ok":true}`), time.Minute); err != nil {
					errCh <- fmt.Errorf("worker %d set iter %d: %w", workerID, i, err)
					return
				}
				res, err := store.Get(ctx, key)
				if err != nil {
					errCh <- fmt.Errorf("worker %d get iter %d: %w", workerID, i, err)
					return
				}
				if !res.Hit {
					errCh <- fmt.Errorf("worker %d get iter %d: expected hit", workerID, i)
					return
				}
			}
		}(worker)
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		t.Fatal(err)
	}
}

func TestMemoryTTLAndDelete(t *testing.T) {
	m, err := NewMemory(100)
	if err != nil {
		t.Fatalf("NewMemory failed: %v", err)
	}
	defer m.Close()

	if m.Set("zero", "v", 0) {
		t.Fatal("expected non-positive ttl to be rejected")
	}
	m.Set("a", "va", 100*time.Millisecond)
	m.Set("b", "vb", time.Minute)
	m.Wait()

	if v, ok := m.Get("a"); !ok || v != "va" {
		t.Fatalf("expected hit for a, got %v %v", v, ok)
	}
	m.Delete("b")
	if _, ok := m.Get("b"); ok {
		t.Fatal("expected miss after delete")
	}
	time.Sleep(150 * time.Millisecond)
	if _, ok := m.Get("a"); ok {
		t.Fatal("expected miss after ttl")
	}
}

type fakeDurable struct {
	mu      sync.Mutex
	entries map[string]Result
	reads   int
	failGet bool
}

func newFakeDurable() *fakeDurable {
	return &fakeDurable{entries: map[string]Result{}}
}

func (f *fakeDurable) Get(_ context.Context, key string) (Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	if f.failGet {
		return Result{}, errors.New("durable down")
	}
	return f.entries[key], nil
}

func (f *fakeDurable) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries[key] = Result{Hit: true, Value: value, TTL: ttl}
	return nil
}

func (f *fakeDurable) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.entries, key)
	return nil
}

func (f *fakeDurable) Close() error { return nil }

func TestTieredPromotesDurableHits(t *testing.T) {
	ctx := context.Background()
	mem, err := NewMemory(100)
	if err != nil {
		t.Fatalf("NewMemory failed: %v", err)
	}
	durable := newFakeDurable()
	tiered := NewTiered(mem, durable, zerolog.Nop())
	defer tiered.Close()

	_ = durable.Set(ctx, "bal", []byte("1.5"), time.Minute)
	got, ok := tiered.Get(ctx, "bal")
	if !ok || string(got) != "1.5" {
		t.Fatalf("expected durable hit, got %q %v", got, ok)
	}
	mem.Wait()

	durable.failGet = true
	got, ok = tiered.Get(ctx, "bal")
	if !ok || string(got) != "1.5" {
		t.Fatalf("expected memory hit after promotion, got %q %v", got, ok)
	}
	if durable.reads != 1 {
		t.Fatalf("expected one durable read, got %d", durable.reads)
	}
}

func TestTieredDurableFailureIsMiss(t *testing.T) {
	durable := newFakeDurable()
	durable.failGet = true
	tiered := NewTiered(nil, durable, zerolog.Nop())
	if _, ok := tiered.Get(context.Background(), "x"); ok {
		t.Fatal("expected durable failure to read as a miss")
	}
}

func TestTieredSetAndDeleteReachBothTiers(t *testing.T) {
	ctx := context.Background()
	mem, err := NewMemory(100)
	if err != nil {
		t.Fatalf("NewMemory failed: %v", err)
	}
	durable := newFakeDurable()
	tiered := NewTiered(mem, durable, zerolog.Nop())
	defer tiered.Close()

	tiered.Set(ctx, "k", []byte("v"), time.Minute)
	mem.Wait()
	if _, ok := mem.Get("k"); !ok {
		t.Fatal("expected memory tier write")
	}
	if !durable.entries["k"].Hit {
		t.Fatal("expected durable tier write")
	}
	tiered.Delete(ctx, "k")
	if _, ok := tiered.Get(ctx, "k"); ok {
		t.Fatal("expected miss after delete")
	}
}

func TestRedisStore(t *testing.T) {
	url := os.Getenv("AGENT_WALLET_TEST_REDIS_URL")
	if url == "" {
		t.Skip("set AGENT_WALLET_TEST_REDIS_URL to run redis cache tests")
	}
	ctx := context.Background()
	store, err := OpenRedis(ctx, url)
	if err != nil {
		t.Fatalf("OpenRedis failed: %v", err)
	}
	defer store.Close()

	key := fmt.Sprintf("test-%d", time.Now().UnixNano())
	if err := store.Set(ctx, key, []byte("42"), 300*time.Millisecond); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	res, err := store.Get(ctx, key)
	if err != nil || !res.Hit || string(res.Value) != "42" {
		t.Fatalf("expected hit, got %+v err=%v", res, err)
	}
	time.Sleep(400 * time.Millisecond)
	res, err = store.Get(ctx, key)
	if err != nil || res.Hit {
		t.Fatalf("expected expired miss, got %+v err=%v", res, err)
	}
}
