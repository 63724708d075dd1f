package registry

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	clierr "github.com/ggonzalez94/agent-wallet/internal/errors"
)

// NativeTokenAddress is the placeholder address that stands for a chain's native currency.
const NativeTokenAddress = "0x0000000000000000000000000000000000000000"

var evmAddressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

type Token struct {
	Symbol   string `json:"symbol"`
	Address  string `json:"address"`
	Decimals int    `json:"decimals"`
	Known    bool   `json:"known"`
}

// Small bootstrap registry of common tokens by chain id.
var tokenRegistry = map[int64][]Token{
	1: {
		{Symbol: "USDC", Address: "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48", Decimals: 6},
		{Symbol: "USDT", Address: "0xdac17f958d2ee523a2206206994597c13d831ec7", Decimals: 6},
		{Symbol: "DAI", Address: "0x6b175474e89094c44da98b954eedeac495271d0f", Decimals: 18},
		{Symbol: "WETH", Address: "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2", Decimals: 18},
	},
	8453: {
		{Symbol: "USDC", Address: "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913", Decimals: 6},
		{Symbol: "DAI", Address: "0x50c5725949A6F0c72E6C4a641F24049A917DB0Cb", Decimals: 18},
		{Symbol: "WETH", Address: "0x4200000000000000000000000000000000000006", Decimals: 18},
	},
	42161: {
		{Symbol: "USDC", Address: "0xaf88d065e77c8cC2239327C5EDb3A432268e5831", Decimals: 6},
		{Symbol: "USDT", Address: "0xFd086bC7CD5C481DCC9C85ebe478A1C0b69FCbb9", Decimals: 6},
		{Symbol: "DAI", Address: "0xDA10009cBd5D07dd0CeCc66161FC93D7c9000da1", Decimals: 18},
		{Symbol: "WETH", Address: "0x82aF49447D8a07e3bd95BD0d56f35241523fBab1", Decimals: 18},
	},
	10: {
		{Symbol: "USDC", Address: "0x7F5c764cBc14f9669B88837ca1490cCa17c31607", Decimals: 6},
		{Symbol: "USDT", Address: "0x94b008aA00579c1307B0EF2c499aD98a8ce58e58", Decimals: 6},
		{Symbol: "DAI", Address: "0xDA10009cBd5D07dd0CeCc66161FC93D7c9000da1", Decimals: 18},
		{Symbol: "WETH", Address: "0x4200000000000000000000000000000000000006", Decimals: 18},
	},
	137: {
		{Symbol: "USDC", Address: "0x3c499c542cef5e3811e1192ce70d8cc03d5c3359", Decimals: 6},
		{Symbol: "USDT", Address: "0xc2132D05D31c914a87C6611C10748AEb04B58e8F", Decimals: 6},
		{Symbol: "DAI", Address: "0x8f3Cf7ad23Cd3CaDbD9735AFf958023239c6A063", Decimals: 18},
		{Symbol: "WETH", Address: "0x7ceB23fD6bC0adD59E62ac25578270cFf1b9f619", Decimals: 18},
	},
	56: {
		{Symbol: "USDC", Address: "0x8ac76a51cc950d9822d68b83fe1ad97b32cd580d", Decimals: 18},
		{Symbol: "USDT", Address: "0x55d398326f99059fF775485246999027B3197955", Decimals: 18},
		{Symbol: "DAI", Address: "0x1AF3F329e8BE154074D8769D1FFa4eE058B1DBc3", Decimals: 18},
		{Symbol: "WETH", Address: "0x2170Ed0880ac9A755fd29B2688956BD959F933F8", Decimals: 18},
	},
	43114: {
		{Symbol: "USDC", Address: "0xB97EF9Ef8734C71904D8002F8b6Bc66Dd9c48a6E", Decimals: 6},
		{Symbol: "USDT", Address: "0x9702230A8Ea53601f5cD2dc00fDBc13d4dF4A8c7", Decimals: 6},
		{Symbol: "DAI", Address: "0xd586E7F844cEa2F87f50152665BCbc2C279D8d70", Decimals: 18},
		{Symbol: "WETH", Address: "0x49D5c2BdFfac6CE2BFdB6640F4F80f226bc10bAB", Decimals: 18},
	},
	421614: {
		{Symbol: "USDC", Address: "0xf3C3351D6Bd0098EEb33ca8f830FAf2a141Ea2E1", Decimals: 6},
		{Symbol: "USDT", Address: "0x30fA2FbE15c1EaDfbEF28C188b7B8dbd3c1Ff2eB", Decimals: 6},
		{Symbol: "WETH", Address: "0x980B62Da83eFf3D4576C647993b0c1D7faf17c73", Decimals: 18},
	},
	11155111: {
		{Symbol: "USDC", Address: "0xf08A50178dfcDe18524640EA6618a1f965821715", Decimals: 6},
		{Symbol: "USDT", Address: "0xaA8E23Fb1079EA71e0a56F48a2aA51851D8433D0", Decimals: 6},
		{Symbol: "WETH", Address: "0x7b79995e5f793A07Bc00c21412e50Ecae098E7f9", Decimals: 18},
	},
}

// IsNativeToken reports whether address is the native-currency placeholder.
func IsNativeToken(address string) bool {
	a := strings.TrimSpace(address)
	return evmAddressPattern.MatchString(a) && common.HexToAddress(a) == (common.Address{})
}

// ResolveToken maps a symbol or address to token metadata on chain.
// The chain's native symbol resolves to NativeTokenAddress. Unlisted
// addresses pass through with Known=false and zero Decimals.
func ResolveToken(chain ChainConfig, symbolOrAddress string) (Token, error) {
	raw := strings.TrimSpace(symbolOrAddress)
	if raw == "" {
		return Token{}, clierr.New(clierr.CodeUsage, "token is required")
	}
	if evmAddressPattern.MatchString(raw) {
		if IsNativeToken(raw) {
			return nativeToken(chain), nil
		}
		for _, t := range tokenRegistry[chain.ID] {
			if strings.EqualFold(t.Address, raw) {
				return normalizeToken(t), nil
			}
		}
		return Token{Address: common.HexToAddress(raw).Hex()}, nil
	}
	if strings.HasPrefix(strings.ToLower(raw), "0x") {
		return Token{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("invalid token address %q", raw))
	}
	if strings.EqualFold(raw, chain.NativeCurrency.Symbol) {
		return nativeToken(chain), nil
	}
	for _, t := range tokenRegistry[chain.ID] {
		if strings.EqualFold(t.Symbol, raw) {
			return normalizeToken(t), nil
		}
	}
	return Token{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("token %s is not supported on %s (supported: %s); pass a token address instead", raw, chain.Slug, strings.Join(TokenSymbols(chain), ", ")))
}

// TokenSymbols lists the symbols resolvable on chain, native first.
func TokenSymbols(chain ChainConfig) []string {
	out := make([]string, 0, len(tokenRegistry[chain.ID]))
	for _, t := range tokenRegistry[chain.ID] {
		out = append(out, strings.ToUpper(t.Symbol))
	}
	sort.Strings(out)
	if chain.NativeCurrency.Symbol != "" {
		out = append([]string{chain.NativeCurrency.Symbol}, out...)
	}
	return out
}

func nativeToken(chain ChainConfig) Token {
	return Token{
		Symbol:   chain.NativeCurrency.Symbol,
		Address:  NativeTokenAddress,
		Decimals: chain.NativeCurrency.Decimals,
		Known:    true,
	}
}

func normalizeToken(t Token) Token {
	return Token{
		Symbol:   strings.ToUpper(t.Symbol),
		Address:  common.HexToAddress(t.Address).Hex(),
		Decimals: t.Decimals,
		Known:    true,
	}
}
