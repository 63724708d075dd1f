package registry

import (
	"strings"
)

// ChainName is the canonical slug of a known chain.
type ChainName string

const (
	Ethereum        ChainName = "ethereum"
	Sepolia         ChainName = "sepolia"
	Arbitrum        ChainName = "arbitrum"
	ArbitrumSepolia ChainName = "arbitrum-sepolia"
	Base            ChainName = "base"
	BaseSepolia     ChainName = "base-sepolia"
	Optimism        ChainName = "optimism"
	Polygon         ChainName = "polygon"
	BSC             ChainName = "bsc"
	Avalanche       ChainName = "avalanche"
	Gnosis          ChainName = "gnosis"
	Linea           ChainName = "linea"
	Scroll          ChainName = "scroll"
	ZkSync          ChainName = "zksync"
	Mantle          ChainName = "mantle"
	Celo            ChainName = "celo"
	Blast           ChainName = "blast"
	Taiko           ChainName = "taiko"
)

type Currency struct {
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals int    `json:"decimals"`
}

type RPCURLs struct {
	Default []string `json:"default"`
	Custom  []string `json:"custom,omitempty"`
}

type ChainConfig struct {
	ID             int64    `json:"chain_id"`
	Name           string   `json:"name"`
	Slug           string   `json:"slug"`
	RPC            RPCURLs  `json:"rpc_urls"`
	NativeCurrency Currency `json:"native_currency"`
	ExplorerURL    string   `json:"explorer_url,omitempty"`
	Testnet        bool     `json:"testnet,omitempty"`
}

// RPCURL returns the custom endpoint when one is set, otherwise the first default.
func (c ChainConfig) RPCURL() string {
	for _, u := range c.RPC.Custom {
		if strings.TrimSpace(u) != "" {
			return strings.TrimSpace(u)
		}
	}
	for _, u := range c.RPC.Default {
		if strings.TrimSpace(u) != "" {
			return strings.TrimSpace(u)
		}
	}
	return ""
}

// WithCustomRPC returns a copy of c whose transport is url. An empty url clears the override.
func (c ChainConfig) WithCustomRPC(url string) ChainConfig {
	out := c
	out.RPC.Default = append([]string(nil), c.RPC.Default...)
	if strings.TrimSpace(url) == "" {
		out.RPC.Custom = nil
	} else {
		out.RPC.Custom = []string{strings.TrimSpace(url)}
	}
	return out
}

var ether = Currency{Name: "Ether", Symbol: "ETH", Decimals: 18}

var knownChains = map[ChainName]ChainConfig{
	Ethereum:        evm(1, "Ethereum", Ethereum, ether, "https://etherscan.io", false),
	Sepolia:         evm(11155111, "Sepolia", Sepolia, Currency{Name: "Sepolia Ether", Symbol: "ETH", Decimals: 18}, "https://sepolia.etherscan.io", true),
	Arbitrum:        evm(42161, "Arbitrum One", Arbitrum, ether, "https://arbiscan.io", false),
	ArbitrumSepolia: evm(421614, "Arbitrum Sepolia", ArbitrumSepolia, ether, "https://sepolia.arbiscan.io", true),
	Base:            evm(8453, "Base", Base, ether, "https://basescan.org", false),
	BaseSepolia:     evm(84532, "Base Sepolia", BaseSepolia, Currency{Name: "Sepolia Ether", Symbol: "ETH", Decimals: 18}, "https://sepolia.basescan.org", true),
	Optimism:        evm(10, "OP Mainnet", Optimism, ether, "https://optimistic.etherscan.io", false),
	Polygon:         evm(137, "Polygon", Polygon, Currency{Name: "POL", Symbol: "POL", Decimals: 18}, "https://polygonscan.com", false),
	BSC:             evm(56, "BNB Smart Chain", BSC, Currency{Name: "BNB", Symbol: "BNB", Decimals: 18}, "https://bscscan.com", false),
	Avalanche:       evm(43114, "Avalanche", Avalanche, Currency{Name: "Avalanche", Symbol: "AVAX", Decimals: 18}, "https://snowtrace.io", false),
	Gnosis:          evm(100, "Gnosis", Gnosis, Currency{Name: "xDAI", Symbol: "XDAI", Decimals: 18}, "https://gnosisscan.io", false),
	Linea:           evm(59144, "Linea", Linea, ether, "https://lineascan.build", false),
	Scroll:          evm(534352, "Scroll", Scroll, ether, "https://scrollscan.com", false),
	ZkSync:          evm(324, "ZKsync Era", ZkSync, ether, "https://explorer.zksync.io", false),
	Mantle:          evm(5000, "Mantle", Mantle, Currency{Name: "Mantle", Symbol: "MNT", Decimals: 18}, "https://mantlescan.xyz", false),
	Celo:            evm(42220, "Celo", Celo, Currency{Name: "Celo", Symbol: "CELO", Decimals: 18}, "https://celoscan.io", false),
	Blast:           evm(81457, "Blast", Blast, ether, "https://blastscan.io", false),
	Taiko:           evm(167000, "Taiko", Taiko, ether, "https://taikoscan.io", false),
}

// Alternate spellings accepted for known chains, keyed by normalized name.
var chainAliases = map[string]ChainName{
	"mainnet":   Ethereum,
	"eth":       Ethereum,
	"arbitrum1": Arbitrum,
	"arb":       Arbitrum,
	"op":        Optimism,
	"matic":     Polygon,
	"bnb":       BSC,
	"avax":      Avalanche,
	"xdai":      Gnosis,
	"zksyncera": ZkSync,
}

func evm(id int64, name string, slug ChainName, native Currency, explorer string, testnet bool) ChainConfig {
	cfg := ChainConfig{
		ID:             id,
		Name:           name,
		Slug:           string(slug),
		NativeCurrency: native,
		ExplorerURL:    explorer,
		Testnet:        testnet,
	}
	if rpc, ok := DefaultRPCURL(id); ok {
		cfg.RPC.Default = []string{rpc}
	}
	return cfg
}

// NormalizeName folds case and separators so "arbitrumSepolia", "arbitrum-sepolia"
// and "ARBITRUM_SEPOLIA" name the same chain.
func NormalizeName(name string) string {
	return strings.ToLower(strings.NewReplacer("-", "", "_", "", " ", "").Replace(strings.TrimSpace(name)))
}

var knownByNormalized = func() map[string]ChainName {
	out := make(map[string]ChainName, len(knownChains)+len(chainAliases))
	for name := range knownChains {
		out[NormalizeName(string(name))] = name
	}
	for alias, name := range chainAliases {
		out[alias] = name
	}
	return out
}()

// CanonicalName is the registry key for name: known chains and their aliases
// collapse to the chain's slug, anything else is only normalized.
func CanonicalName(name string) string {
	key := NormalizeName(name)
	if canonical, ok := knownByNormalized[key]; ok {
		return NormalizeName(string(canonical))
	}
	return key
}

// Known looks a chain up in the closed table of built-in chains.
func Known(name string) (ChainConfig, bool) {
	canonical, ok := knownByNormalized[NormalizeName(name)]
	if !ok {
		return ChainConfig{}, false
	}
	return knownChains[canonical], true
}

// KnownByID looks a built-in chain up by numeric chain id.
func KnownByID(id int64) (ChainConfig, bool) {
	for _, cfg := range knownChains {
		if cfg.ID == id {
			return cfg, true
		}
	}
	return ChainConfig{}, false
}
