// Package balance reads native and token balances for one account, caching
// results briefly to absorb bursts of repeated reads within one flow.
//
// Read failures are reported as absent (ok=false) and logged rather than
// returned; callers must treat absent as unknown, never as zero.
package balance

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/ggonzalez94/agent-wallet/internal/cache"
	"github.com/ggonzalez94/agent-wallet/internal/chainclient"
	clierr "github.com/ggonzalez94/agent-wallet/internal/errors"
	"github.com/ggonzalez94/agent-wallet/internal/registry"
	"github.com/ggonzalez94/agent-wallet/internal/units"
)

const (
	DefaultTokenDecimals = 18
	DefaultTTL           = 5 * time.Second
)

// ClientSource builds read clients for a chain name.
type ClientSource interface {
	ReadClient(ctx context.Context, chain string) (*chainclient.ReadClient, error)
}

type Accessor struct {
	clients ClientSource
	account common.Address
	cache   *cache.Tiered
	ttl     time.Duration
	log     zerolog.Logger
}

type Option func(*Accessor)

// WithCache enables caching of balances for ttl. A nil cache disables caching.
func WithCache(c *cache.Tiered, ttl time.Duration) Option {
	return func(a *Accessor) {
		a.cache = c
		if ttl > 0 {
			a.ttl = ttl
		}
	}
}

func WithLogger(log zerolog.Logger) Option {
	return func(a *Accessor) { a.log = log }
}

func NewAccessor(clients ClientSource, account common.Address, opts ...Option) *Accessor {
	a := &Accessor{clients: clients, account: account, ttl: DefaultTTL, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Accessor) Account() common.Address {
	return a.account
}

// NativeBalance returns the account's native balance on chain formatted with
// the chain's native decimals.
func (a *Accessor) NativeBalance(ctx context.Context, chain string) (string, bool, error) {
	rc, err := a.client(ctx, chain)
	if err != nil || rc == nil {
		return "", false, err
	}
	defer rc.Close()

	key := fmt.Sprintf("balance/native/%d/%s", rc.Chain.ID, a.account.Hex())
	if v, ok := a.cached(ctx, key); ok {
		return v, true, nil
	}
	wei, err := rc.BalanceAt(ctx, a.account)
	if err != nil {
		a.log.Warn().Err(err).Str("chain", rc.Chain.Slug).Str("account", a.account.Hex()).Msg("native balance read failed")
		return "", false, nil
	}
	out := units.FormatUnits(wei, rc.Chain.NativeCurrency.Decimals)
	a.store(ctx, key, out)
	return out, true, nil
}

// TokenBalance returns the account's balance of token formatted with decimals.
// The zero address is treated as the native currency.
func (a *Accessor) TokenBalance(ctx context.Context, chain, token string, decimals int) (string, bool, error) {
	if registry.IsNativeToken(token) {
		return a.NativeBalance(ctx, chain)
	}
	tokenAddr, err := parseToken(token)
	if err != nil {
		return "", false, err
	}
	if decimals < 0 {
		return "", false, clierr.New(clierr.CodeUsage, "decimals must be >= 0")
	}
	rc, err := a.client(ctx, chain)
	if err != nil || rc == nil {
		return "", false, err
	}
	defer rc.Close()

	key := fmt.Sprintf("balance/token/%d/%s/%s/%d", rc.Chain.ID, a.account.Hex(), tokenAddr.Hex(), decimals)
	if v, ok := a.cached(ctx, key); ok {
		return v, true, nil
	}
	raw, err := a.tokenBalanceOf(ctx, rc, tokenAddr)
	if err != nil {
		a.log.Warn().Err(err).Str("chain", rc.Chain.Slug).Str("token", tokenAddr.Hex()).Str("account", a.account.Hex()).Msg("token balance read failed")
		return "", false, nil
	}
	out := units.FormatUnits(raw, decimals)
	a.store(ctx, key, out)
	return out, true, nil
}

// TokenDecimals reads decimals() from token, falling back to
// DefaultTokenDecimals with a warning when the read fails. Callers that scale
// amounts to move funds use ExactTokenDecimals instead.
func (a *Accessor) TokenDecimals(ctx context.Context, chain, token string) (int, error) {
	d, err := a.ExactTokenDecimals(ctx, chain, token)
	if err == nil || !clierr.Is(err, clierr.CodeUnavailable) {
		return d, err
	}
	a.log.Warn().Err(err).Str("chain", chain).Str("token", token).Int("fallback", DefaultTokenDecimals).Msg("token decimals read failed, using default")
	return DefaultTokenDecimals, nil
}

// ExactTokenDecimals reads decimals() from token and reports a failed read
// as CodeUnavailable. The zero address answers the native decimals.
func (a *Accessor) ExactTokenDecimals(ctx context.Context, chain, token string) (int, error) {
	if registry.IsNativeToken(token) {
		rc, err := a.clients.ReadClient(ctx, chain)
		if err != nil {
			return 0, err
		}
		defer rc.Close()
		return rc.Chain.NativeCurrency.Decimals, nil
	}
	tokenAddr, err := parseToken(token)
	if err != nil {
		return 0, err
	}
	rc, err := a.clients.ReadClient(ctx, chain)
	if err != nil {
		return 0, err
	}
	defer rc.Close()

	erc20 := registry.ERC20()
	data, err := erc20.Pack("decimals")
	if err != nil {
		return 0, clierr.Wrap(clierr.CodeInternal, "pack decimals call", err)
	}
	out, err := rc.Call(ctx, tokenAddr, data)
	if err != nil {
		return 0, clierr.Wrap(clierr.CodeUnavailable, fmt.Sprintf("read decimals of %s on %s", tokenAddr.Hex(), rc.Chain.Slug), err)
	}
	vals, err := erc20.Unpack("decimals", out)
	if err != nil || len(vals) != 1 {
		return 0, clierr.Wrap(clierr.CodeUnavailable, fmt.Sprintf("decode decimals of %s on %s", tokenAddr.Hex(), rc.Chain.Slug), err)
	}
	d, ok := vals[0].(uint8)
	if !ok {
		return 0, clierr.New(clierr.CodeUnavailable, fmt.Sprintf("unexpected decimals output from %s", tokenAddr.Hex()))
	}
	return int(d), nil
}

func (a *Accessor) tokenBalanceOf(ctx context.Context, rc *chainclient.ReadClient, token common.Address) (*big.Int, error) {
	erc20 := registry.ERC20()
	data, err := erc20.Pack("balanceOf", a.account)
	if err != nil {
		return nil, err
	}
	out, err := rc.Call(ctx, token, data)
	if err != nil {
		return nil, err
	}
	vals, err := erc20.Unpack("balanceOf", out)
	if err != nil {
		return nil, fmt.Errorf("decode balanceOf: %w", err)
	}
	if len(vals) != 1 {
		return nil, fmt.Errorf("decode balanceOf: unexpected output")
	}
	bal, ok := vals[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("decode balanceOf: unexpected type %T", vals[0])
	}
	return bal, nil
}

// client resolves chain. Unknown chains and bad configuration are errors;
// transport failures are logged and yield a nil client.
func (a *Accessor) client(ctx context.Context, chain string) (*chainclient.ReadClient, error) {
	rc, err := a.clients.ReadClient(ctx, chain)
	if err == nil {
		return rc, nil
	}
	if clierr.Is(err, clierr.CodeUnavailable) {
		a.log.Warn().Err(err).Str("chain", chain).Msg("rpc unavailable")
		return nil, nil
	}
	return nil, err
}

func (a *Accessor) cached(ctx context.Context, key string) (string, bool) {
	if a.cache == nil {
		return "", false
	}
	v, ok := a.cache.Get(ctx, key)
	if !ok {
		return "", false
	}
	return string(v), true
}

func (a *Accessor) store(ctx context.Context, key, value string) {
	if a.cache == nil {
		return
	}
	a.cache.Set(ctx, key, []byte(value), a.ttl)
}

func parseToken(token string) (common.Address, error) {
	t := strings.TrimSpace(token)
	if !common.IsHexAddress(t) || !strings.HasPrefix(strings.ToLower(t), "0x") {
		return common.Address{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("invalid token address %q", token))
	}
	return common.HexToAddress(t), nil
}
