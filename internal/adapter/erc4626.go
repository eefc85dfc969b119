package adapter

import (
	"strings"

	"github.com/yieldline/yieldctl/internal/amount"
	clierr "github.com/yieldline/yieldctl/internal/errors"
)

// Selectors for the ERC-4626 share-vault ABI.
const (
	selVaultDeposit  = "6e553f65" // deposit(uint256,address)
	selVaultWithdraw = "b460af94" // withdraw(uint256,address,address)
	selVaultRedeem   = "ba087652" // redeem(uint256,address,address)
)

// ERC4626 encodes transactions against share vaults. Deposits are
// asset-denominated; full exits must redeem shares because vaults generally
// reject an asset-denominated maximum withdrawal.
type ERC4626 struct{}

type vaultEntry struct {
	vault     string
	baseAsset string
}

var vaults = map[string]map[string]vaultEntry{
	"eip155:1": {
		"SDAI":      {vault: "0x83f20f44975d03b1b09e64809b757c47f942beea", baseAsset: "DAI"},
		"STEAKUSDC": {vault: "0xbeef01735c132ada46aa9aa4c54623caa92a64cb", baseAsset: "USDC"},
	},
	"eip155:8453": {
		"MWUSDC": {vault: "0xc1256ae5ff1cf2719d4937adb3bbccab2e00a2ca", baseAsset: "USDC"},
	},
}

// defaultVaultBySymbol maps a base asset to that chain's default vault.
var defaultVaultBySymbol = map[string]map[string]string{
	"eip155:1": {
		"DAI":  "SDAI",
		"USDC": "STEAKUSDC",
	},
	"eip155:8453": {
		"USDC": "MWUSDC",
	},
}

func (ERC4626) Protocol() string { return "erc4626" }

func (ERC4626) ResolvePool(chainID, symbol string) (Pool, bool) {
	chainVaults, ok := vaults[chainID]
	if !ok {
		return Pool{}, false
	}
	key := strings.ToUpper(strings.TrimSpace(symbol))
	if entry, ok := chainVaults[key]; ok {
		return Pool{Kind: KindVault, Target: entry.vault, ReceiptToken: entry.vault, BaseAsset: entry.baseAsset}, true
	}
	base := strings.ToUpper(stripReceiptPrefix(strings.TrimSpace(symbol), "s", "w"))
	name, ok := defaultVaultBySymbol[chainID][base]
	if !ok {
		return Pool{}, false
	}
	entry := chainVaults[name]
	return Pool{Kind: KindVault, Target: entry.vault, ReceiptToken: entry.vault, BaseAsset: entry.baseAsset}, true
}

func (ERC4626) EncodeSupply(p SupplyParams) (Call, error) {
	if p.RawAmount == nil || p.RawAmount.Sign() <= 0 {
		return Call{}, clierr.New(clierr.CodeUsage, "deposit amount must be positive")
	}
	data := encodeCall(selVaultDeposit,
		amount.Word(p.RawAmount),
		amount.AddressWord(p.OnBehalfOf),
	)
	return Call{To: p.Pool.Target, Data: data, RawAmount: p.RawAmount}, nil
}

func (ERC4626) EncodeWithdraw(p WithdrawParams) (Call, error) {
	if p.All {
		// redeem with the maximum-shares sentinel; withdraw(maxAssets) is
		// generally disallowed by share vaults.
		data := encodeCall(selVaultRedeem,
			amount.Word(amount.MaxUint256),
			amount.AddressWord(p.Receiver),
			amount.AddressWord(p.Owner),
		)
		return Call{To: p.Pool.Target, Data: data, RawAmount: amount.MaxUint256}, nil
	}
	if p.RawAmount == nil || p.RawAmount.Sign() <= 0 {
		return Call{}, clierr.New(clierr.CodeUsage, "withdraw amount must be positive")
	}
	data := encodeCall(selVaultWithdraw,
		amount.Word(p.RawAmount),
		amount.AddressWord(p.Receiver),
		amount.AddressWord(p.Owner),
	)
	return Call{To: p.Pool.Target, Data: data, RawAmount: p.RawAmount}, nil
}
