package app

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/ggonzalez94/agent-wallet/internal/balance"
	"github.com/ggonzalez94/agent-wallet/internal/chainclient"
	clierr "github.com/ggonzalez94/agent-wallet/internal/errors"
	"github.com/ggonzalez94/agent-wallet/internal/out"
	"github.com/ggonzalez94/agent-wallet/internal/registry"
	"github.com/ggonzalez94/agent-wallet/internal/wallet"
)

type balanceView struct {
	UserID   string `json:"user_id"`
	Address  string `json:"address"`
	Chain    string `json:"chain"`
	ChainID  int64  `json:"chain_id"`
	Token    string `json:"token"`
	Symbol   string `json:"symbol,omitempty"`
	Decimals int    `json:"decimals"`
	Balance  string `json:"balance,omitempty"`
	Known    bool   `json:"known"`
}

func (s *runtimeState) newBalanceCommand() *cobra.Command {
	root := &cobra.Command{Use: "balance", Short: "Read wallet balances (cached for a few seconds)"}

	var nativeUser, nativeChain string
	native := &cobra.Command{
		Use:   "native",
		Short: "Native currency balance of the user's wallet",
		RunE: func(cmd *cobra.Command, args []string) error {
			s.lastUser = nativeUser
			ctx, cancel := s.commandContext(cmd, 0)
			defer cancel()
			p, err := s.res.Provider(ctx, nativeUser, nativeChain, defaultSend())
			if err != nil {
				return err
			}
			cfg, err := p.ChainConfig("")
			if err != nil {
				return err
			}
			s.lastChain = p.CurrentChain()
			bal, known, err := p.Balance(ctx)
			if err != nil {
				return err
			}
			view := balanceView{
				UserID:   nativeUser,
				Address:  p.Address().Hex(),
				Chain:    cfg.Slug,
				ChainID:  cfg.ID,
				Token:    registry.NativeTokenAddress,
				Symbol:   cfg.NativeCurrency.Symbol,
				Decimals: cfg.NativeCurrency.Decimals,
				Balance:  bal,
				Known:    known,
			}
			return s.emitSuccess(cmd, view, unknownBalanceWarning(view), s.balanceCacheStatus())
		},
	}
	addUserFlag(native, &nativeUser)
	native.Flags().StringVar(&nativeChain, "chain", "", "Chain to read (default: first configured chain)")

	var (
		tokenUser, tokenChain, tokenArg string
		tokenDecimals                   int
	)
	token := &cobra.Command{
		Use:   "token",
		Short: "ERC-20 balance of the user's wallet",
		RunE: func(cmd *cobra.Command, args []string) error {
			s.lastUser = tokenUser
			ctx, cancel := s.commandContext(cmd, 0)
			defer cancel()
			p, err := s.res.Provider(ctx, tokenUser, tokenChain, defaultSend())
			if err != nil {
				return err
			}
			cfg, err := p.ChainConfig("")
			if err != nil {
				return err
			}
			s.lastChain = p.CurrentChain()
			tok, decimals, err := resolveTokenDecimals(ctx, p, cfg, tokenArg, tokenDecimals, false)
			if err != nil {
				return err
			}
			var (
				bal   string
				known bool
			)
			if registry.IsNativeToken(tok.Address) {
				bal, known, err = p.Balance(ctx)
			} else {
				bal, known, err = p.TokenBalance(ctx, "", tok.Address, decimals)
			}
			if err != nil {
				return err
			}
			view := balanceView{
				UserID:   tokenUser,
				Address:  p.Address().Hex(),
				Chain:    cfg.Slug,
				ChainID:  cfg.ID,
				Token:    tok.Address,
				Symbol:   tok.Symbol,
				Decimals: decimals,
				Balance:  bal,
				Known:    known,
			}
			return s.emitSuccess(cmd, view, unknownBalanceWarning(view), s.balanceCacheStatus())
		},
	}
	addUserFlag(token, &tokenUser)
	token.Flags().StringVar(&tokenChain, "chain", "", "Chain to read (default: first configured chain)")
	token.Flags().StringVar(&tokenArg, "token", "", "Token symbol or address")
	token.Flags().IntVar(&tokenDecimals, "decimals", -1, "Token decimals (default: registry or on-chain lookup)")
	_ = token.MarkFlagRequired("token")

	root.AddCommand(native)
	root.AddCommand(token)
	return root
}

func unknownBalanceWarning(v balanceView) []string {
	if v.Known {
		return nil
	}
	return []string{fmt.Sprintf("balance of %s on %s could not be read", v.Token, v.Chain)}
}

// resolveTokenDecimals resolves tokenArg on cfg. An explicit decimals value
// wins, then the registry entry, then the token's decimals() call. With exact
// set a failed decimals() read is an error instead of the default.
func resolveTokenDecimals(ctx context.Context, p *wallet.Provider, cfg registry.ChainConfig, tokenArg string, decimals int, exact bool) (registry.Token, int, error) {
	tok, err := registry.ResolveToken(cfg, tokenArg)
	if err != nil {
		return registry.Token{}, 0, err
	}
	switch {
	case decimals >= 0:
		return tok, decimals, nil
	case tok.Known:
		return tok, tok.Decimals, nil
	}
	if !exact {
		d, err := p.TokenDecimals(ctx, "", tok.Address)
		return tok, d, err
	}
	d, err := p.ExactTokenDecimals(ctx, "", tok.Address)
	if clierr.Is(err, clierr.CodeUnavailable) {
		return registry.Token{}, 0, clierr.Wrap(clierr.CodeUnavailable, fmt.Sprintf("token %s is not in the registry and its decimals could not be read; pass --decimals", tok.Address), err)
	}
	if err != nil {
		return registry.Token{}, 0, err
	}
	return tok, d, nil
}

func (s *runtimeState) newTokensCommand() *cobra.Command {
	root := &cobra.Command{Use: "tokens", Short: "Resolve token metadata"}

	var resolveChain, resolveToken string
	resolve := &cobra.Command{
		Use:   "resolve",
		Short: "Resolve a token symbol or address from the bundled registry",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := s.chainRegistry().Resolve(resolveChain)
			if err != nil {
				return err
			}
			s.lastChain = cfg.Slug
			tok, err := registry.ResolveToken(cfg, resolveToken)
			if err != nil {
				return err
			}
			return s.emitSuccess(cmd, tok, nil, out.CacheBypass())
		},
	}
	resolve.Flags().StringVar(&resolveChain, "chain", "", "Chain name")
	resolve.Flags().StringVar(&resolveToken, "token", "", "Token symbol or address")
	_ = resolve.MarkFlagRequired("chain")
	_ = resolve.MarkFlagRequired("token")

	var decimalsChain, decimalsToken string
	decimals := &cobra.Command{
		Use:   "decimals",
		Short: "Read decimals() from a token contract",
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := s.chainRegistry()
			cfg, err := reg.Resolve(decimalsChain)
			if err != nil {
				return err
			}
			s.lastChain = cfg.Slug
			tok, err := registry.ResolveToken(cfg, decimalsToken)
			if err != nil {
				return err
			}
			if tok.Known {
				return s.emitSuccess(cmd, tok, nil, out.CacheBypass())
			}
			ctx, cancel := s.commandContext(cmd, 0)
			defer cancel()
			reader := balance.NewAccessor(chainclient.NewFactory(reg, nil), common.Address{}, balance.WithLogger(s.log))
			d, err := reader.TokenDecimals(ctx, decimalsChain, tok.Address)
			if err != nil {
				return err
			}
			tok.Decimals = d
			return s.emitSuccess(cmd, tok, nil, out.CacheBypass())
		},
	}
	decimals.Flags().StringVar(&decimalsChain, "chain", "", "Chain name")
	decimals.Flags().StringVar(&decimalsToken, "token", "", "Token symbol or address")
	_ = decimals.MarkFlagRequired("chain")
	_ = decimals.MarkFlagRequired("token")

	root.AddCommand(resolve)
	root.AddCommand(decimals)
	return root
}

type chainView struct {
	registry.ChainConfig
	RPCURL  string   `json:"rpc_url"`
	Enabled bool     `json:"enabled"`
	Tokens  []string `json:"tokens"`
}

func (s *runtimeState) newChainsCommand() *cobra.Command {
	root := &cobra.Command{Use: "chains", Short: "Inspect supported chains"}

	list := &cobra.Command{
		Use:   "list",
		Short: "List built-in chains and whether they are enabled",
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := s.chainRegistry()
			enabled := s.enabledChains()
			names := registry.KnownNames()
			views := make([]chainView, 0, len(names))
			for _, name := range names {
				cfg, err := reg.Resolve(name)
				if err != nil {
					return err
				}
				views = append(views, newChainView(cfg, enabled[registry.CanonicalName(name)]))
			}
			return s.emitSuccess(cmd, views, nil, out.CacheBypass())
		},
	}

	show := &cobra.Command{
		Use:   "show <chain>",
		Short: "Show one chain's configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := s.chainRegistry().Resolve(args[0])
			if err != nil {
				return err
			}
			s.lastChain = cfg.Slug
			enabled := s.enabledChains()
			return s.emitSuccess(cmd, newChainView(cfg, enabled[registry.CanonicalName(args[0])]), nil, out.CacheBypass())
		},
	}

	root.AddCommand(list)
	root.AddCommand(show)
	return root
}

func newChainView(cfg registry.ChainConfig, enabled bool) chainView {
	return chainView{ChainConfig: cfg, RPCURL: cfg.RPCURL(), Enabled: enabled, Tokens: registry.TokenSymbols(cfg)}
}

// chainRegistry resolves built-in chains with the configured RPC overrides.
func (s *runtimeState) chainRegistry() *registry.Registry {
	reg := registry.New()
	for _, c := range s.settings.Chains {
		cfg, err := reg.WithCustomRPC(c.Name, c.RPC)
		if err != nil {
			s.log.Warn().Err(err).Str("chain", c.Name).Msg("skipping configured chain")
			continue
		}
		if err := reg.Register(c.Name, cfg); err != nil {
			s.log.Warn().Err(err).Str("chain", c.Name).Msg("skipping configured chain")
		}
	}
	return reg
}

func (s *runtimeState) enabledChains() map[string]bool {
	enabled := make(map[string]bool, len(s.settings.Chains))
	for _, c := range s.settings.Chains {
		enabled[registry.CanonicalName(c.Name)] = true
	}
	return enabled
}

func defaultSend() chainclient.SendOptions {
	return chainclient.DefaultSendOptions()
}
