package chain

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	clierr "github.com/yieldline/yieldctl/internal/errors"
)

var (
	eip155Pattern     = regexp.MustCompile(`^eip155:[0-9]+$`)
	evmAddressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)
)

type Chain struct {
	Name         string
	Slug         string
	CAIP2        string
	EVMChainID   int64
	NativeSymbol string
}

type Token struct {
	Symbol   string
	Address  string
	Decimals int
	Stable   bool
}

type Asset struct {
	ChainID  string
	Address  string
	Symbol   string
	Decimals int
}

var chainBySlug = map[string]Chain{
	"ethereum":  {Name: "Ethereum", Slug: "ethereum", CAIP2: "eip155:1", EVMChainID: 1, NativeSymbol: "ETH"},
	"mainnet":   {Name: "Ethereum", Slug: "ethereum", CAIP2: "eip155:1", EVMChainID: 1, NativeSymbol: "ETH"},
	"base":      {Name: "Base", Slug: "base", CAIP2: "eip155:8453", EVMChainID: 8453, NativeSymbol: "ETH"},
	"arbitrum":  {Name: "Arbitrum", Slug: "arbitrum", CAIP2: "eip155:42161", EVMChainID: 42161, NativeSymbol: "ETH"},
	"optimism":  {Name: "Optimism", Slug: "optimism", CAIP2: "eip155:10", EVMChainID: 10, NativeSymbol: "ETH"},
	"polygon":   {Name: "Polygon", Slug: "polygon", CAIP2: "eip155:137", EVMChainID: 137, NativeSymbol: "POL"},
	"avalanche": {Name: "Avalanche", Slug: "avalanche", CAIP2: "eip155:43114", EVMChainID: 43114, NativeSymbol: "AVAX"},
}

var chainByID = map[int64]Chain{
	1:     chainBySlug["ethereum"],
	10:    chainBySlug["optimism"],
	137:   chainBySlug["polygon"],
	8453:  chainBySlug["base"],
	42161: chainBySlug["arbitrum"],
	43114: chainBySlug["avalanche"],
}

// Bootstrap token registry for deterministic resolution on supported chains.
var tokenRegistry = map[string][]Token{
	"eip155:1": {
		{Symbol: "USDC", Address: "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48", Decimals: 6, Stable: true},
		{Symbol: "USDT", Address: "0xdac17f958d2ee523a2206206994597c13d831ec7", Decimals: 6, Stable: true},
		{Symbol: "DAI", Address: "0x6b175474e89094c44da98b954eedeac495271d0f", Decimals: 18, Stable: true},
		{Symbol: "WETH", Address: "0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2", Decimals: 18},
	},
	"eip155:8453": {
		{Symbol: "USDC", Address: "0x833589fcd6edb6e08f4c7c32d4f71b54bda02913", Decimals: 6, Stable: true},
		{Symbol: "DAI", Address: "0x50c5725949a6f0c72e6c4a641f24049a917db0cb", Decimals: 18, Stable: true},
		{Symbol: "WETH", Address: "0x4200000000000000000000000000000000000006", Decimals: 18},
	},
	"eip155:42161": {
		{Symbol: "USDC", Address: "0xaf88d065e77c8cc2239327c5edb3a432268e5831", Decimals: 6, Stable: true},
		{Symbol: "USDT", Address: "0xfd086bc7cd5c481dcc9c85ebe478a1c0b69fcbb9", Decimals: 6, Stable: true},
		{Symbol: "DAI", Address: "0xda10009cbd5d07dd0cecc66161fc93d7c9000da1", Decimals: 18, Stable: true},
		{Symbol: "WETH", Address: "0x82af49447d8a07e3bd95bd0d56f35241523fbab1", Decimals: 18},
	},
	"eip155:10": {
		{Symbol: "USDC", Address: "0x7f5c764cbc14f9669b88837ca1490cca17c31607", Decimals: 6, Stable: true},
		{Symbol: "USDT", Address: "0x94b008aa00579c1307b0ef2c499ad98a8ce58e58", Decimals: 6, Stable: true},
		{Symbol: "DAI", Address: "0xda10009cbd5d07dd0cecc66161fc93d7c9000da1", Decimals: 18, Stable: true},
		{Symbol: "WETH", Address: "0x4200000000000000000000000000000000000006", Decimals: 18},
	},
	"eip155:137": {
		{Symbol: "USDC", Address: "0x3c499c542cef5e3811e1192ce70d8cc03d5c3359", Decimals: 6, Stable: true},
		{Symbol: "USDT", Address: "0xc2132d05d31c914a87c6611c10748aeb04b58e8f", Decimals: 6, Stable: true},
		{Symbol: "DAI", Address: "0x8f3cf7ad23cd3cadbd9735aff958023239c6a063", Decimals: 18, Stable: true},
		{Symbol: "WETH", Address: "0x7ceb23fd6bc0add59e62ac25578270cff1b9f619", Decimals: 18},
	},
	"eip155:43114": {
		{Symbol: "USDC", Address: "0xb97ef9ef8734c71904d8002f8b6bc66dd9c48a6e", Decimals: 6, Stable: true},
		{Symbol: "USDT", Address: "0x9702230a8ea53601f5cd2dc00fdbc13d4df4a8c7", Decimals: 6, Stable: true},
		{Symbol: "DAI", Address: "0xd586e7f844cea2f87f50152665bcbc2c279d8d70", Decimals: 18, Stable: true},
		{Symbol: "WETH", Address: "0x49d5c2bdffac6ce2bfdb6640f4f80f226bc10bab", Decimals: 18},
	},
}

// gasSwapPriority orders same-chain balances scanned to cover a native-gas
// shortfall. Stables first so volatile holdings are only touched as a last
// resort.
var gasSwapPriority = []string{"USDC", "USDT", "DAI", "WETH"}

func GasSwapPriority() []string {
	out := make([]string, len(gasSwapPriority))
	copy(out, gasSwapPriority)
	return out
}

func Parse(input string) (Chain, error) {
	raw := strings.TrimSpace(input)
	if raw == "" {
		return Chain{}, clierr.New(clierr.CodeUsage, "chain is required")
	}
	norm := strings.ToLower(raw)

	if c, ok := chainBySlug[norm]; ok {
		return c, nil
	}
	if eip155Pattern.MatchString(norm) {
		parts := strings.Split(norm, ":")
		id, _ := strconv.ParseInt(parts[1], 10, 64)
		if known, ok := chainByID[id]; ok {
			return known, nil
		}
		return Chain{Name: fmt.Sprintf("EVM-%d", id), Slug: fmt.Sprintf("evm-%d", id), CAIP2: norm, EVMChainID: id, NativeSymbol: "ETH"}, nil
	}
	if id, err := strconv.ParseInt(norm, 10, 64); err == nil {
		if known, ok := chainByID[id]; ok {
			return known, nil
		}
		return Chain{Name: fmt.Sprintf("EVM-%d", id), Slug: fmt.Sprintf("evm-%d", id), CAIP2: fmt.Sprintf("eip155:%d", id), EVMChainID: id, NativeSymbol: "ETH"}, nil
	}
	return Chain{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("unsupported chain input: %s", input))
}

func ByID(evmChainID int64) (Chain, bool) {
	c, ok := chainByID[evmChainID]
	return c, ok
}

// Matches reports whether a free-form chain name from an upstream feed refers
// to this chain. Feeds use display names ("Arbitrum") rather than slugs.
func (c Chain) Matches(input string) bool {
	norm := strings.ToLower(strings.TrimSpace(input))
	if norm == "" {
		return false
	}
	if strings.EqualFold(norm, c.Name) || norm == c.Slug {
		return true
	}
	return strings.ReplaceAll(norm, " ", "-") == c.Slug
}

func KnownToken(chainID, symbol string) (Token, bool) {
	for _, t := range tokenRegistry[chainID] {
		if strings.EqualFold(t.Symbol, symbol) {
			return t, true
		}
	}
	return Token{}, false
}

func Tokens(chainID string) []Token {
	src := tokenRegistry[chainID]
	out := make([]Token, len(src))
	copy(out, src)
	return out
}

// ResolveAsset resolves a symbol or 0x address into a registry-backed asset on
// the given chain. Unknown symbols and unregistered addresses fail: decimals
// gate calldata correctness and must never be guessed.
func ResolveAsset(c Chain, input string) (Asset, error) {
	raw := strings.TrimSpace(input)
	if raw == "" {
		return Asset{}, clierr.New(clierr.CodeUsage, "asset is required")
	}
	if evmAddressPattern.MatchString(raw) {
		addr := strings.ToLower(raw)
		for _, t := range tokenRegistry[c.CAIP2] {
			if t.Address == addr {
				return Asset{ChainID: c.CAIP2, Address: t.Address, Symbol: t.Symbol, Decimals: t.Decimals}, nil
			}
		}
		return Asset{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("address %s has no registry entry on %s; decimals unknown", raw, c.Slug))
	}
	if t, ok := KnownToken(c.CAIP2, raw); ok {
		return Asset{ChainID: c.CAIP2, Address: t.Address, Symbol: t.Symbol, Decimals: t.Decimals}, nil
	}
	return Asset{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("symbol %s not found in registry for chain %s", input, c.Slug))
}
