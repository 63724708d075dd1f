// Package chainclient builds read and signing clients bound to one chain's
// transport. Clients are cheap to construct and are not cached.
package chainclient

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	clierr "github.com/ggonzalez94/agent-wallet/internal/errors"
	"github.com/ggonzalez94/agent-wallet/internal/registry"
	"github.com/ggonzalez94/agent-wallet/internal/signer"
)

// Resolver is the chain lookup the factory depends on.
type Resolver interface {
	Resolve(name string) (registry.ChainConfig, error)
}

type Factory struct {
	chains Resolver
	signer signer.Signer
	send   SendOptions
}

type Option func(*Factory)

func WithSendOptions(opts SendOptions) Option {
	return func(f *Factory) { f.send = opts }
}

func NewFactory(chains Resolver, s signer.Signer, opts ...Option) *Factory {
	f := &Factory{chains: chains, signer: s, send: DefaultSendOptions()}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// ReadClient dials the resolved transport of chain.
func (f *Factory) ReadClient(ctx context.Context, chain string) (*ReadClient, error) {
	cfg, err := f.chains.Resolve(chain)
	if err != nil {
		return nil, err
	}
	return Dial(ctx, cfg)
}

// SigningClient is ReadClient bound to the factory's signer.
func (f *Factory) SigningClient(ctx context.Context, chain string) (*SigningClient, error) {
	if f.signer == nil {
		return nil, clierr.New(clierr.CodeSigner, "missing signer")
	}
	rc, err := f.ReadClient(ctx, chain)
	if err != nil {
		return nil, err
	}
	return &SigningClient{ReadClient: rc, signer: f.signer, opts: f.send}, nil
}

type ReadClient struct {
	Chain registry.ChainConfig
	eth   *ethclient.Client
}

func Dial(ctx context.Context, cfg registry.ChainConfig) (*ReadClient, error) {
	url, err := registry.ResolveRPCURL(cfg.RPCURL(), cfg.ID)
	if err != nil {
		return nil, err
	}
	eth, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, fmt.Sprintf("connect rpc for %s", cfg.Slug), err)
	}
	return &ReadClient{Chain: cfg, eth: eth}, nil
}

func (c *ReadClient) Close() {
	if c != nil && c.eth != nil {
		c.eth.Close()
	}
}

// Eth exposes the underlying go-ethereum client for calls not wrapped here.
func (c *ReadClient) Eth() *ethclient.Client {
	return c.eth
}

func (c *ReadClient) BalanceAt(ctx context.Context, account common.Address) (*big.Int, error) {
	bal, err := c.eth.BalanceAt(ctx, account, nil)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, fmt.Sprintf("read balance on %s", c.Chain.Slug), err)
	}
	return bal, nil
}

// Call performs a read-only contract call against the latest block.
func (c *ReadClient) Call(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	out, err := c.eth.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, fmt.Sprintf("call %s on %s", to.Hex(), c.Chain.Slug), err)
	}
	return out, nil
}

// ChainID reads the chain id from the node and checks it against the configuration.
func (c *ReadClient) ChainID(ctx context.Context) (*big.Int, error) {
	id, err := c.eth.ChainID(ctx)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, fmt.Sprintf("read chain id on %s", c.Chain.Slug), err)
	}
	if c.Chain.ID != 0 && id.Int64() != c.Chain.ID {
		return nil, clierr.New(clierr.CodeConfig, fmt.Sprintf("rpc for %s reports chain id %d, expected %d", c.Chain.Slug, id.Int64(), c.Chain.ID))
	}
	return id, nil
}
