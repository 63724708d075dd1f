package registry

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	clierr "github.com/ggonzalez94/agent-wallet/internal/errors"
)

// Registry maps chain names to configurations. Lookups consult the
// per-instance extension map first and then the built-in table, so an
// entry registered at runtime overrides a known chain of the same name.
type Registry struct {
	mu     sync.RWMutex
	extras map[string]ChainConfig
	names  map[string]string
}

func New() *Registry {
	return &Registry{extras: map[string]ChainConfig{}, names: map[string]string{}}
}

// Resolve returns the configuration registered under name.
func (r *Registry) Resolve(name string) (ChainConfig, error) {
	key := CanonicalName(name)
	if key == "" {
		return ChainConfig{}, clierr.New(clierr.CodeUsage, "chain name is required")
	}
	r.mu.RLock()
	cfg, ok := r.extras[key]
	r.mu.RUnlock()
	if ok {
		return cfg, nil
	}
	if cfg, ok := Known(name); ok {
		return cfg, nil
	}
	return ChainConfig{}, clierr.New(clierr.CodeUnknownChain, fmt.Sprintf("unknown chain %q", strings.TrimSpace(name)))
}

// Register adds or replaces the entry for name.
func (r *Registry) Register(name string, cfg ChainConfig) error {
	key := CanonicalName(name)
	if key == "" {
		return clierr.New(clierr.CodeUsage, "chain name is required")
	}
	if cfg.ID <= 0 {
		return clierr.New(clierr.CodeConfig, fmt.Sprintf("chain %q requires a positive chain id", name))
	}
	if cfg.RPCURL() == "" {
		url, err := ResolveRPCURL("", cfg.ID)
		if err != nil {
			return clierr.Wrap(clierr.CodeConfig, fmt.Sprintf("chain %q requires an rpc url", name), err)
		}
		cfg.RPC.Default = []string{url}
	}
	if cfg.Slug == "" {
		cfg.Slug = strings.TrimSpace(name)
	}
	if cfg.NativeCurrency.Decimals == 0 && cfg.NativeCurrency.Symbol == "" {
		cfg.NativeCurrency = ether
	}
	r.mu.Lock()
	r.extras[key] = cfg
	r.names[key] = strings.TrimSpace(name)
	r.mu.Unlock()
	return nil
}

// WithCustomRPC resolves a known or registered chain and returns it bound to url.
func (r *Registry) WithCustomRPC(name, url string) (ChainConfig, error) {
	cfg, err := r.Resolve(name)
	if err != nil {
		return ChainConfig{}, err
	}
	return cfg.WithCustomRPC(url), nil
}

// Names lists the chains registered on this instance.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.names))
	for _, name := range r.names {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// KnownNames lists the built-in chain slugs.
func KnownNames() []string {
	out := make([]string, 0, len(knownChains))
	for name := range knownChains {
		out = append(out, string(name))
	}
	sort.Strings(out)
	return out
}
