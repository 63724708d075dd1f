package app

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ggonzalez94/agent-wallet/internal/cache"
	"github.com/ggonzalez94/agent-wallet/internal/chainclient"
	"github.com/ggonzalez94/agent-wallet/internal/config"
	"github.com/ggonzalez94/agent-wallet/internal/custody"
	clierr "github.com/ggonzalez94/agent-wallet/internal/errors"
	"github.com/ggonzalez94/agent-wallet/internal/secret"
	"github.com/ggonzalez94/agent-wallet/internal/wallet"
	"github.com/ggonzalez94/agent-wallet/internal/walletcache"
	"github.com/ggonzalez94/agent-wallet/internal/walletstore"
)

// resources opens the store, custody service and balance cache on first use
// and releases them when the command finishes.
type resources struct {
	settings config.Settings
	log      zerolog.Logger

	custody  *custody.Service
	balances *cache.Tiered
	closers  []func()
}

func newResources(settings config.Settings, log zerolog.Logger) *resources {
	return &resources{settings: settings, log: log}
}

func (r *resources) Custody(ctx context.Context) (*custody.Service, error) {
	if r.custody != nil {
		return r.custody, nil
	}
	key, err := r.settings.EncryptionKey()
	if err != nil {
		return nil, err
	}
	cipher, err := secret.NewCipher(key)
	if err != nil {
		return nil, err
	}
	store, err := walletstore.Open(ctx, walletstore.Options{
		Driver:   r.settings.StoreDriver,
		Path:     r.settings.StorePath,
		LockPath: r.settings.StoreLockPath,
		DSN:      r.settings.StoreDSN,
	})
	if err != nil {
		return nil, err
	}
	r.closers = append(r.closers, func() {
		if err := store.Close(); err != nil {
			r.log.Warn().Err(err).Msg("close wallet store")
		}
	})

	mem, err := cache.NewMemory(0)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "init wallet cache", err)
	}
	r.closers = append(r.closers, mem.Close)

	r.custody = custody.New(store, cipher, walletcache.New[custody.Wallet](mem, r.settings.WalletCacheTTL), custody.WithLogger(r.log))
	r.log.Debug().Str("driver", r.settings.StoreDriver).Msg("wallet store opened")
	return r.custody, nil
}

// BalanceCache returns nil when caching is disabled. A durable tier that
// fails to open degrades to the memory tier alone.
func (r *resources) BalanceCache(ctx context.Context) *cache.Tiered {
	if !r.settings.CacheEnabled {
		return nil
	}
	if r.balances != nil {
		return r.balances
	}
	mem, err := cache.NewMemory(0)
	if err != nil {
		r.log.Warn().Err(err).Msg("balance cache disabled")
		return nil
	}

	var durable cache.Durable
	switch r.settings.CacheBackend {
	case config.CacheSQLite:
		store, err := cache.OpenSQLite(r.settings.CachePath, r.settings.CacheLockPath)
		if err != nil {
			r.log.Warn().Err(err).Str("path", r.settings.CachePath).Msg("sqlite balance cache unavailable; using memory only")
		} else {
			durable = store
		}
	case config.CacheRedis:
		store, err := cache.OpenRedis(ctx, r.settings.RedisURL)
		if err != nil {
			r.log.Warn().Err(err).Msg("redis balance cache unavailable; using memory only")
		} else {
			durable = store
		}
	}

	r.balances = cache.NewTiered(mem, durable, r.log)
	r.closers = append(r.closers, func() {
		if err := r.balances.Close(); err != nil {
			r.log.Warn().Err(err).Msg("close balance cache")
		}
	})
	return r.balances
}

// Provider initialises userID's wallet provider over the configured chains.
// When no chains are configured the chain named on the command is used.
func (r *resources) Provider(ctx context.Context, userID, chain string, send chainclient.SendOptions) (*wallet.Provider, error) {
	svc, err := r.Custody(ctx)
	if err != nil {
		return nil, err
	}
	specs := make([]wallet.ChainSpec, 0, len(r.settings.Chains)+1)
	for _, c := range r.settings.Chains {
		specs = append(specs, wallet.ChainSpec{Name: c.Name, RPC: c.RPC})
	}
	if len(specs) == 0 && strings.TrimSpace(chain) != "" {
		specs = append(specs, wallet.ChainSpec{Name: chain})
	}
	for _, spec := range specs {
		r.log.Debug().Stringer("chain", spec).Msg("enabling chain")
	}

	p, err := wallet.Init(ctx, wallet.Deps{
		Custody:      svc,
		Chains:       specs,
		BalanceCache: r.BalanceCache(ctx),
		BalanceTTL:   r.settings.BalanceCacheTTL,
		Send:         send,
		Logger:       r.log,
	}, userID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(chain) != "" && chain != p.CurrentChain() {
		if err := p.SwitchChain(chain, ""); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (r *resources) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
	r.closers = nil
}
