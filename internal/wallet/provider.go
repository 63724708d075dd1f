// Package wallet binds one user's custodial key to a set of chains and
// exposes the balance and client surface action handlers consume.
package wallet

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/ggonzalez94/agent-wallet/internal/balance"
	"github.com/ggonzalez94/agent-wallet/internal/cache"
	"github.com/ggonzalez94/agent-wallet/internal/chainclient"
	"github.com/ggonzalez94/agent-wallet/internal/custody"
	clierr "github.com/ggonzalez94/agent-wallet/internal/errors"
	"github.com/ggonzalez94/agent-wallet/internal/registry"
	"github.com/ggonzalez94/agent-wallet/internal/signer"
)

// ChainSpec names a chain to enable, optionally with a custom RPC endpoint.
type ChainSpec struct {
	Name string
	RPC  string
}

// Deps are the collaborators a Provider is built from.
type Deps struct {
	Custody      *custody.Service
	Chains       []ChainSpec
	BalanceCache *cache.Tiered
	BalanceTTL   time.Duration
	Send         chainclient.SendOptions
	Logger       zerolog.Logger
}

type Provider struct {
	wallet   custody.Wallet
	signer   *signer.LocalSigner
	chains   *registry.Registry
	factory  *chainclient.Factory
	balances *balance.Accessor
	log      zerolog.Logger

	mu      sync.RWMutex
	current string
}

// Info summarises the wallet on one chain. Balance is empty and
// BalanceKnown false when the read failed.
type Info struct {
	Address        string            `json:"address"`
	Chain          string            `json:"chain"`
	ChainID        int64             `json:"chain_id"`
	ChainName      string            `json:"chain_name"`
	NativeCurrency registry.Currency `json:"native_currency"`
	Balance        string            `json:"balance,omitempty"`
	BalanceKnown   bool              `json:"balance_known"`
}

// GetOrCreateWallet resolves the user's wallet through svc.
func GetOrCreateWallet(ctx context.Context, svc *custody.Service, userID string) (custody.Wallet, error) {
	if svc == nil {
		return custody.Wallet{}, clierr.New(clierr.CodeConfig, "custody service is not configured")
	}
	return svc.GetOrCreate(ctx, userID)
}

// Init resolves userID's wallet and enables deps.Chains. The first chain
// becomes the current chain.
func Init(ctx context.Context, deps Deps, userID string) (*Provider, error) {
	if len(deps.Chains) == 0 {
		return nil, clierr.New(clierr.CodeConfig, "no chains configured; set AGENT_WALLET_CHAINS or pass --chain")
	}
	reg := registry.New()
	var first string
	for _, spec := range deps.Chains {
		name := strings.TrimSpace(spec.Name)
		cfg, err := reg.WithCustomRPC(name, spec.RPC)
		if err != nil {
			return nil, err
		}
		if err := reg.Register(name, cfg); err != nil {
			return nil, err
		}
		if first == "" {
			first = name
		}
	}

	w, err := GetOrCreateWallet(ctx, deps.Custody, userID)
	if err != nil {
		return nil, err
	}
	s, err := w.Signer()
	if err != nil {
		return nil, err
	}

	send := deps.Send
	if send == (chainclient.SendOptions{}) {
		send = chainclient.DefaultSendOptions()
	}
	factory := chainclient.NewFactory(reg, s, chainclient.WithSendOptions(send))
	opts := []balance.Option{balance.WithLogger(deps.Logger)}
	if deps.BalanceCache != nil {
		opts = append(opts, balance.WithCache(deps.BalanceCache, deps.BalanceTTL))
	}
	p := &Provider{
		wallet:   w,
		signer:   s,
		chains:   reg,
		factory:  factory,
		balances: balance.NewAccessor(factory, s.Address(), opts...),
		log:      deps.Logger,
		current:  first,
	}
	p.log.Debug().Str("user", userID).Str("address", s.Address().Hex()).Str("chain", first).Msg("wallet provider ready")
	return p, nil
}

func (p *Provider) Wallet() custody.Wallet {
	return p.wallet
}

func (p *Provider) Address() common.Address {
	return p.signer.Address()
}

func (p *Provider) CurrentChain() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current
}

// SwitchChain makes name the current chain. A non-empty customRPC rebinds
// the chain's transport; the chain is added when it was not enabled yet.
func (p *Provider) SwitchChain(name, customRPC string) error {
	name = strings.TrimSpace(name)
	if strings.TrimSpace(customRPC) != "" || !p.enabled(name) {
		cfg, err := p.chains.WithCustomRPC(name, customRPC)
		if err != nil {
			return err
		}
		if err := p.chains.Register(name, cfg); err != nil {
			return err
		}
	}
	p.mu.Lock()
	p.current = name
	p.mu.Unlock()
	p.log.Debug().Str("chain", name).Msg("switched chain")
	return nil
}

// AddChain enables a chain the provider did not start with.
func (p *Provider) AddChain(name string, cfg registry.ChainConfig) error {
	return p.chains.Register(name, cfg)
}

func (p *Provider) ChainConfig(name string) (registry.ChainConfig, error) {
	return p.chains.Resolve(p.orCurrent(name))
}

// Chains lists the enabled chain names.
func (p *Provider) Chains() []string {
	return p.chains.Names()
}

func (p *Provider) ReadClient(ctx context.Context, chain string) (*chainclient.ReadClient, error) {
	return p.factory.ReadClient(ctx, p.orCurrent(chain))
}

func (p *Provider) SigningClient(ctx context.Context, chain string) (*chainclient.SigningClient, error) {
	return p.factory.SigningClient(ctx, p.orCurrent(chain))
}

// Balance returns the native balance on the current chain.
func (p *Provider) Balance(ctx context.Context) (string, bool, error) {
	return p.balances.NativeBalance(ctx, p.CurrentChain())
}

func (p *Provider) BalanceForChain(ctx context.Context, chain string) (string, bool, error) {
	return p.balances.NativeBalance(ctx, p.orCurrent(chain))
}

func (p *Provider) TokenBalance(ctx context.Context, chain, token string, decimals int) (string, bool, error) {
	return p.balances.TokenBalance(ctx, p.orCurrent(chain), token, decimals)
}

func (p *Provider) TokenDecimals(ctx context.Context, chain, token string) (int, error) {
	return p.balances.TokenDecimals(ctx, p.orCurrent(chain), token)
}

// ExactTokenDecimals is TokenDecimals without the default fallback.
func (p *Provider) ExactTokenDecimals(ctx context.Context, chain, token string) (int, error) {
	return p.balances.ExactTokenDecimals(ctx, p.orCurrent(chain), token)
}

// Info reports address, native balance and chain metadata for chain, or
// the current chain when chain is empty.
func (p *Provider) Info(ctx context.Context, chain string) (Info, error) {
	chain = p.orCurrent(chain)
	cfg, err := p.chains.Resolve(chain)
	if err != nil {
		return Info{}, err
	}
	bal, known, err := p.balances.NativeBalance(ctx, chain)
	if err != nil {
		return Info{}, err
	}
	return Info{
		Address:        p.Address().Hex(),
		Chain:          chain,
		ChainID:        cfg.ID,
		ChainName:      cfg.Name,
		NativeCurrency: cfg.NativeCurrency,
		Balance:        bal,
		BalanceKnown:   known,
	}, nil
}

func (p *Provider) enabled(name string) bool {
	key := registry.CanonicalName(name)
	for _, n := range p.chains.Names() {
		if registry.CanonicalName(n) == key {
			return true
		}
	}
	return false
}

func (p *Provider) orCurrent(chain string) string {
	if strings.TrimSpace(chain) == "" {
		return p.CurrentChain()
	}
	return chain
}

func (s ChainSpec) String() string {
	if s.RPC == "" {
		return s.Name
	}
	return fmt.Sprintf("%s=%s", s.Name, s.RPC)
}
