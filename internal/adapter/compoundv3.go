package adapter

import (
	"strings"

	"github.com/yieldline/yieldctl/internal/amount"
	clierr "github.com/yieldline/yieldctl/internal/errors"
)

// Selectors for Compound v3 Comet markets.
const (
	selCometSupply   = "f2b9fdb8" // supply(address,uint256)
	selCometWithdraw = "f3fef3a3" // withdraw(address,uint256)
)

// CompoundV3 encodes transactions against isolated single-asset markets. The
// market contract doubles as the receipt token: balanceOf reflects principal
// plus accrued interest.
type CompoundV3 struct{}

var cometMarkets = map[string]map[string]string{
	"eip155:1": {
		"USDC": "0xc3d688b66703497daa19211eedff47f25384cdc3",
		"WETH": "0xa17581a9e3356d9a858b789d68b4d866e593ae94",
	},
	"eip155:8453": {
		"USDC": "0xb125e6687d4313864e53df431d5425969c15eb2f",
		"WETH": "0x46e6b214b524310239732d51387075e0e70970bf",
	},
	"eip155:42161": {
		"USDC": "0x9c4ec768c28520b50860ea7a15bd7213a9ff58bf",
		"WETH": "0x6f7d514bbd4aff3bcd1140b7344b32f063dee486",
	},
	"eip155:137": {
		"USDC": "0xf25212e676d1f7f89cd72ffee66158f541246445",
	},
	"eip155:10": {
		"USDC": "0x2e44e174f7d53f0212823acc11c01a11d58c5bcb",
	},
}

func (CompoundV3) Protocol() string { return "compound-v3" }

func (CompoundV3) ResolvePool(chainID, symbol string) (Pool, bool) {
	markets, ok := cometMarkets[chainID]
	if !ok {
		return Pool{}, false
	}
	base := strings.TrimSpace(symbol)
	base = strings.TrimSuffix(base, "v3")
	if _, ok := markets[strings.ToUpper(base)]; !ok {
		base = stripReceiptPrefix(base, "c")
	}
	base = strings.ToUpper(base)
	comet, ok := markets[base]
	if !ok {
		return Pool{}, false
	}
	return Pool{Kind: KindIsolated, Target: comet, ReceiptToken: comet, BaseAsset: base}, true
}

func (CompoundV3) EncodeSupply(p SupplyParams) (Call, error) {
	if p.RawAmount == nil || p.RawAmount.Sign() <= 0 {
		return Call{}, clierr.New(clierr.CodeUsage, "supply amount must be positive")
	}
	data := encodeCall(selCometSupply,
		amount.AddressWord(p.AssetAddress),
		amount.Word(p.RawAmount),
	)
	return Call{To: p.Pool.Target, Data: data, RawAmount: p.RawAmount}, nil
}

func (CompoundV3) EncodeWithdraw(p WithdrawParams) (Call, error) {
	if !p.All && (p.RawAmount == nil || p.RawAmount.Sign() <= 0) {
		return Call{}, clierr.New(clierr.CodeUsage, "withdraw amount must be positive")
	}
	raw := p.RawAmount
	if p.All {
		raw = amount.MaxUint256
	}
	data := encodeCall(selCometWithdraw,
		amount.AddressWord(p.AssetAddress),
		amountWord(p.RawAmount, p.All),
	)
	return Call{To: p.Pool.Target, Data: data, RawAmount: raw}, nil
}
