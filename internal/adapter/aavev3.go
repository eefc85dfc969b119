package adapter

import (
	"math/big"
	"strings"

	"github.com/yieldline/yieldctl/internal/amount"
	clierr "github.com/yieldline/yieldctl/internal/errors"
)

// Selectors for the Aave v3 pool, first 4 bytes of keccak256 of the signature.
const (
	selAaveSupply   = "617ba037" // supply(address,uint256,address,uint16)
	selAaveWithdraw = "69328dec" // withdraw(address,uint256,address)
)

// AaveV3 encodes transactions against shared lending pools that mint a
// rebasing aToken receipt.
type AaveV3 struct{}

type aaveMarket struct {
	pool    string
	aTokens map[string]string
}

var aaveMarkets = map[string]aaveMarket{
	"eip155:1": {
		pool: "0x87870bca3f3fd6335c3f4ce8392d69350b4fa4e2",
		aTokens: map[string]string{
			"USDC": "0x98c23e9d8f34fefb1b7bd6a91b7ff122f4e16f5c",
			"USDT": "0x23878914efe38d27c4d67ab83ed1b93a74d4086a",
			"DAI":  "0x018008bfb33d285247a21d44e50697654f754e63",
			"WETH": "0x4d5f47fa6a74757f35c14fd3a6ef8e3c9bc514e8",
		},
	},
	"eip155:42161": {
		pool: "0x794a61358d6845594f94dc1db02a252b5b4814ad",
		aTokens: map[string]string{
			"USDC": "0x724dc807b04555b71ed48a6896b6f41593b8c637",
			"USDT": "0x6ab707aca953edaefbc4fd23ba73294241490620",
			"DAI":  "0x82e64f49ed5ec1bc6e43dad4fc8af9bb3a2312ee",
			"WETH": "0xe50fa9b3c56ffb159cb0fca61f5c9d750e8128c8",
		},
	},
	"eip155:10": {
		pool: "0x794a61358d6845594f94dc1db02a252b5b4814ad",
		aTokens: map[string]string{
			"USDC": "0x38d693ce1df5aadf7bc62595a37d667ad57922e5",
			"USDT": "0x6ab707aca953edaefbc4fd23ba73294241490620",
			"DAI":  "0x82e64f49ed5ec1bc6e43dad4fc8af9bb3a2312ee",
			"WETH": "0xe50fa9b3c56ffb159cb0fca61f5c9d750e8128c8",
		},
	},
	"eip155:137": {
		pool: "0x794a61358d6845594f94dc1db02a252b5b4814ad",
		aTokens: map[string]string{
			"USDC": "0xa4d94019934d8333ef880abffbf2fdd611c762bd",
			"USDT": "0x6ab707aca953edaefbc4fd23ba73294241490620",
			"DAI":  "0x82e64f49ed5ec1bc6e43dad4fc8af9bb3a2312ee",
			"WETH": "0xe50fa9b3c56ffb159cb0fca61f5c9d750e8128c8",
		},
	},
	"eip155:8453": {
		pool: "0xa238dd80c259a72e81d7e4664a9801593f98d1c5",
		aTokens: map[string]string{
			"USDC": "0x4e65fe4dba92790696d040ac24aa414708f5c0ab",
			"WETH": "0xd4a0e0b9149bcee3c920d2e00b5de09138fd8bb7",
		},
	},
	"eip155:43114": {
		pool: "0x794a61358d6845594f94dc1db02a252b5b4814ad",
		aTokens: map[string]string{
			"USDC": "0x625e7708f30ca75bfd92586e17077590c60eb4cd",
			"USDT": "0x6ab707aca953edaefbc4fd23ba73294241490620",
			"DAI":  "0x82e64f49ed5ec1bc6e43dad4fc8af9bb3a2312ee",
			"WETH": "0xe50fa9b3c56ffb159cb0fca61f5c9d750e8128c8",
		},
	},
}

func (AaveV3) Protocol() string { return "aave-v3" }

func (AaveV3) ResolvePool(chainID, symbol string) (Pool, bool) {
	market, ok := aaveMarkets[chainID]
	if !ok {
		return Pool{}, false
	}
	base := strings.TrimSpace(symbol)
	if _, ok := market.aTokens[strings.ToUpper(base)]; !ok {
		base = stripReceiptPrefix(base, "a")
	}
	base = strings.ToUpper(base)
	receipt, ok := market.aTokens[base]
	if !ok {
		return Pool{}, false
	}
	return Pool{Kind: KindPooled, Target: market.pool, ReceiptToken: receipt, BaseAsset: base}, true
}

func (AaveV3) EncodeSupply(p SupplyParams) (Call, error) {
	if p.RawAmount == nil || p.RawAmount.Sign() <= 0 {
		return Call{}, clierr.New(clierr.CodeUsage, "supply amount must be positive")
	}
	data := encodeCall(selAaveSupply,
		amount.AddressWord(p.AssetAddress),
		amount.Word(p.RawAmount),
		amount.AddressWord(p.OnBehalfOf),
		amount.Word(big.NewInt(0)), // referral code, always zero
	)
	return Call{To: p.Pool.Target, Data: data, RawAmount: p.RawAmount}, nil
}

func (AaveV3) EncodeWithdraw(p WithdrawParams) (Call, error) {
	if !p.All && (p.RawAmount == nil || p.RawAmount.Sign() <= 0) {
		return Call{}, clierr.New(clierr.CodeUsage, "withdraw amount must be positive")
	}
	raw := p.RawAmount
	if p.All {
		raw = amount.MaxUint256
	}
	data := encodeCall(selAaveWithdraw,
		amount.AddressWord(p.AssetAddress),
		amountWord(p.RawAmount, p.All),
		amount.AddressWord(p.Receiver),
	)
	return Call{To: p.Pool.Target, Data: data, RawAmount: raw}, nil
}
