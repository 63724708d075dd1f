package registry

import (
	"fmt"
	"strings"

	clierr "github.com/ggonzalez94/agent-wallet/internal/errors"
)

// Canonical default EVM RPC endpoints by chain ID.
// These values are used whenever no custom endpoint is configured for a chain.
var defaultRPCByChainID = map[int64]string{
	1:        "https://eth.llamarpc.com",
	10:       "https://mainnet.optimism.io",
	56:       "https://bsc-dataseed.binance.org",
	100:      "https://rpc.gnosischain.com",
	137:      "https://polygon-rpc.com",
	324:      "https://mainnet.era.zksync.io",
	5000:     "https://rpc.mantle.xyz",
	8453:     "https://mainnet.base.org",
	42220:    "https://forno.celo.org",
	42161:    "https://arb1.arbitrum.io/rpc",
	43114:    "https://api.avax.network/ext/bc/C/rpc",
	59144:    "https://rpc.linea.build",
	81457:    "https://rpc.blast.io",
	84532:    "https://sepolia.base.org",
	167000:   "https://rpc.mainnet.taiko.xyz",
	421614:   "https://sepolia-rollup.arbitrum.io/rpc",
	534352:   "https://rpc.scroll.io",
	11155111: "https://ethereum-sepolia-rpc.publicnode.com",
}

func DefaultRPCURL(chainID int64) (string, bool) {
	value, ok := defaultRPCByChainID[chainID]
	return value, ok
}

func ResolveRPCURL(override string, chainID int64) (string, error) {
	if strings.TrimSpace(override) != "" {
		return strings.TrimSpace(override), nil
	}
	if value, ok := DefaultRPCURL(chainID); ok {
		return value, nil
	}
	return "", clierr.New(clierr.CodeConfig, fmt.Sprintf("no default rpc configured for chain id %d; configure a custom rpc", chainID))
}
