package adapter

import (
	"math/big"
	"strings"

	"github.com/yieldline/yieldctl/internal/amount"
)

// PoolKind distinguishes how deposited balances are held and read back.
type PoolKind string

const (
	// KindPooled holds deposits in a shared pool and mints a rebasing
	// receipt token (Aave-v3 style).
	KindPooled PoolKind = "pooled"
	// KindIsolated is a single-asset market where the market contract
	// itself tracks balances (Compound-v3 style).
	KindIsolated PoolKind = "isolated"
	// KindVault is a share vault following the ERC-4626 ABI.
	KindVault PoolKind = "vault"
)

// Pool is a resolved deposit target on one chain.
type Pool struct {
	Kind         PoolKind
	Target       string // contract that receives supply/withdraw calls
	ReceiptToken string // token whose balance reflects the deposited position
	BaseAsset    string // underlying asset symbol
}

// Call is an encoded contract invocation: 0x + 4-byte selector + one 32-byte
// word per parameter, addresses right-aligned within their word.
type Call struct {
	To        string
	Data      string
	RawAmount *big.Int
}

type SupplyParams struct {
	Pool         Pool
	AssetAddress string
	RawAmount    *big.Int
	OnBehalfOf   string
}

type WithdrawParams struct {
	Pool         Pool
	AssetAddress string
	RawAmount    *big.Int // ignored when All is set
	Receiver     string
	Owner        string
	All          bool
}

// Adapter encodes lending-protocol transactions for one protocol family.
// Implementations are stateless.
type Adapter interface {
	Protocol() string
	ResolvePool(chainID, symbol string) (Pool, bool)
	EncodeSupply(p SupplyParams) (Call, error)
	EncodeWithdraw(p WithdrawParams) (Call, error)
}

// Registry dispatches over the fixed set of built-in protocol variants, with
// an open table for adapters registered at runtime.
type Registry struct {
	extra map[string]Adapter
}

var builtins = []Adapter{
	AaveV3{},
	CompoundV3{},
	ERC4626{},
}

func NewRegistry() *Registry {
	return &Registry{extra: map[string]Adapter{}}
}

// Register adds an out-of-tree adapter. Built-in protocol ids cannot be
// shadowed.
func (r *Registry) Register(a Adapter) {
	key := strings.ToLower(strings.TrimSpace(a.Protocol()))
	for _, b := range builtins {
		if key == b.Protocol() {
			return
		}
	}
	r.extra[key] = a
}

// Lookup returns the adapter for a protocol identifier, case-insensitively.
// Unknown ids yield (nil, false), never a panic.
func (r *Registry) Lookup(protocolID string) (Adapter, bool) {
	key := strings.ToLower(strings.TrimSpace(protocolID))
	switch key {
	case "aave-v3", "aave":
		return AaveV3{}, true
	case "compound-v3", "compound":
		return CompoundV3{}, true
	case "erc4626", "morpho":
		return ERC4626{}, true
	}
	if r == nil || r.extra == nil {
		return nil, false
	}
	a, ok := r.extra[key]
	return a, ok
}

func (r *Registry) Protocols() []string {
	out := []string{"aave-v3", "compound-v3", "erc4626"}
	for k := range r.extra {
		out = append(out, k)
	}
	return out
}

// selApprove is the ERC-20 approve(address,uint256) selector.
const selApprove = "095ea7b3"

// ApproveCall encodes an ERC-20 approval granting spender up to raw units of
// token. Used ahead of deposits, swaps, and bridge sends alike.
func ApproveCall(token, spender string, raw *big.Int) Call {
	data := encodeCall(selApprove,
		amount.AddressWord(spender),
		amount.Word(raw),
	)
	return Call{To: token, Data: data, RawAmount: raw}
}

// stripReceiptPrefix recovers the base asset symbol from a protocol-wrapped
// receipt symbol, e.g. aUSDC -> USDC. Prefixes are matched case-sensitively so
// AVAX is not mistaken for a wrapped VAX.
func stripReceiptPrefix(symbol string, prefixes ...string) string {
	for _, p := range prefixes {
		if strings.HasPrefix(symbol, p) && len(symbol) > len(p) {
			rest := symbol[len(p):]
			if rest == strings.ToUpper(rest) {
				return rest
			}
		}
	}
	return symbol
}

func encodeCall(selector string, words ...string) string {
	var b strings.Builder
	b.WriteString("0x")
	b.WriteString(selector)
	for _, w := range words {
		b.WriteString(w)
	}
	return b.String()
}

func amountWord(raw *big.Int, all bool) string {
	if all {
		return amount.Word(amount.MaxUint256)
	}
	return amount.Word(raw)
}
