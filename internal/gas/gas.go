// Package gas decides whether a wallet can pay for a planned operation and
// drives a swap-for-gas remediation when it cannot.
package gas

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/rs/zerolog"

	"github.com/yieldline/yieldctl/internal/adapter"
	"github.com/yieldline/yieldctl/internal/chain"
	clierr "github.com/yieldline/yieldctl/internal/errors"
	"github.com/yieldline/yieldctl/internal/swap"
)

type OperationKind string

const (
	OpApprove  OperationKind = "approve"
	OpSupply   OperationKind = "supply"
	OpWithdraw OperationKind = "withdraw"
	OpSwap     OperationKind = "swap"
	OpBridge   OperationKind = "bridge"
)

// Conservative unit ceilings per operation kind.
var gasUnits = map[OperationKind]uint64{
	OpApprove:  60_000,
	OpSupply:   260_000,
	OpWithdraw: 280_000,
	OpSwap:     450_000,
	OpBridge:   400_000,
}

// Safety buffer applied to every gas requirement: 30% over the raw estimate.
const (
	bufferNum = 130
	bufferDen = 100
)

// Report is the outcome of one gas check. AutoSwapExecuted means a swap was
// submitted; the native balance is not re-verified synchronously, so callers
// re-check on the next invocation.
type Report struct {
	Ready            bool   `json:"ready"`
	Message          string `json:"message,omitempty"`
	AutoSwapExecuted bool   `json:"auto_swap_executed,omitempty"`
	RequiredWei      string `json:"required_wei"`
	BalanceWei       string `json:"balance_wei"`
	ShortfallWei     string `json:"shortfall_wei,omitempty"`
	SwapTxHash       string `json:"swap_tx_hash,omitempty"`
}

// Reader covers the chain reads the engine needs.
type Reader interface {
	NativeBalance(ctx context.Context, c chain.Chain, owner string) (*big.Int, error)
	TokenBalance(ctx context.Context, c chain.Chain, token, owner string) (*big.Int, error)
	Allowance(ctx context.Context, c chain.Chain, token, owner, spender string) (*big.Int, error)
	GasPrice(ctx context.Context, c chain.Chain) (*big.Int, error)
}

// PriceSource returns current USD prices.
type PriceSource interface {
	TokenUSD(ctx context.Context, c chain.Chain, address string) (float64, error)
	NativeUSD(ctx context.Context, c chain.Chain) (float64, error)
}

// Quoter produces a native-out swap quote.
type Quoter interface {
	NativeOutQuote(ctx context.Context, req swap.QuoteRequest) (swap.Quote, error)
}

// Submitter hands a transaction to custody for signing and broadcast.
type Submitter interface {
	Submit(ctx context.Context, walletID, chainID, to, data, value string) (string, error)
}

type Engine struct {
	reader Reader
	prices PriceSource
	quoter Quoter
	submit Submitter
	log    zerolog.Logger
}

func NewEngine(reader Reader, prices PriceSource, quoter Quoter, submit Submitter, log zerolog.Logger) *Engine {
	return &Engine{reader: reader, prices: prices, quoter: quoter, submit: submit, log: log}
}

// RequiredWei computes units[op] x gasPrice x 1.30 in integer arithmetic.
func RequiredWei(op OperationKind, gasPrice *big.Int) *big.Int {
	units, ok := gasUnits[op]
	if !ok {
		units = gasUnits[OpSupply]
	}
	required := new(big.Int).Mul(new(big.Int).SetUint64(units), gasPrice)
	required.Mul(required, big.NewInt(bufferNum))
	required.Div(required, big.NewInt(bufferDen))
	return required
}

// Ensure checks the wallet's native balance against the buffered requirement
// and, on shortfall, tries one auto-swap from the highest-priority same-chain
// token balance that covers it. Safe to call repeatedly: a prior successful
// swap makes the next check pass without swapping again.
func (e *Engine) Ensure(ctx context.Context, walletID, walletAddr string, c chain.Chain, op OperationKind) (Report, error) {
	gasPrice, err := e.reader.GasPrice(ctx, c)
	if err != nil {
		return Report{}, err
	}
	required := RequiredWei(op, gasPrice)
	balance, err := e.reader.NativeBalance(ctx, c, walletAddr)
	if err != nil {
		return Report{}, err
	}
	report := Report{RequiredWei: required.String(), BalanceWei: balance.String()}
	if balance.Cmp(required) >= 0 {
		report.Ready = true
		return report, nil
	}

	shortfall := new(big.Int).Sub(required, balance)
	report.ShortfallWei = shortfall.String()

	nativeUSD, err := e.prices.NativeUSD(ctx, c)
	if err != nil {
		report.Message = fmt.Sprintf("need %s wei more gas on %s and the price feed is unavailable to pick a swap source", shortfall, c.Slug)
		return report, nil
	}
	shortfallUSD := weiToUSD(shortfall, nativeUSD)

	candidates := make([]string, 0)
	for _, symbol := range chain.GasSwapPriority() {
		token, ok := chain.KnownToken(c.CAIP2, symbol)
		if !ok {
			continue
		}
		candidates = append(candidates, symbol)
		balance, err := e.reader.TokenBalance(ctx, c, token.Address, walletAddr)
		if err != nil {
			e.log.Warn().Err(err).Str("token", symbol).Msg("gas candidate balance read failed")
			continue
		}
		if balance.Sign() <= 0 {
			continue
		}
		tokenUSD, err := e.prices.TokenUSD(ctx, c, token.Address)
		if err != nil || tokenUSD <= 0 {
			continue
		}
		balanceUSD := rawToUSD(balance, token.Decimals, tokenUSD)
		if balanceUSD < shortfallUSD {
			continue
		}

		swapRaw := usdToRaw(shortfallUSD, token.Decimals, tokenUSD)
		if swapRaw.Cmp(balance) > 0 {
			swapRaw = balance
		}
		txHash, err := e.executeSwap(ctx, walletID, walletAddr, c, token, swapRaw)
		if err != nil {
			e.log.Warn().Err(err).Str("token", symbol).Msg("auto-swap attempt failed")
			report.Message = fmt.Sprintf("auto-swap of %s for gas failed: %v", symbol, err)
			return report, nil
		}
		report.AutoSwapExecuted = true
		report.SwapTxHash = txHash
		report.Message = fmt.Sprintf("swapped %s for gas on %s; balance not re-verified, re-run the gas check before submitting", symbol, c.Slug)
		return report, nil
	}

	report.Message = fmt.Sprintf("insufficient gas on %s: short %s wei and no swappable balance among %s", c.Slug, shortfall, strings.Join(candidates, ", "))
	return report, nil
}

// EstimateUSD prices the buffered gas requirement of one operation.
func (e *Engine) EstimateUSD(ctx context.Context, c chain.Chain, op OperationKind) (float64, error) {
	gasPrice, err := e.reader.GasPrice(ctx, c)
	if err != nil {
		return 0, err
	}
	nativeUSD, err := e.prices.NativeUSD(ctx, c)
	if err != nil {
		return 0, err
	}
	return weiToUSD(RequiredWei(op, gasPrice), nativeUSD), nil
}

func (e *Engine) executeSwap(ctx context.Context, walletID, walletAddr string, c chain.Chain, token chain.Token, raw *big.Int) (string, error) {
	quote, err := e.quoter.NativeOutQuote(ctx, swap.QuoteRequest{
		ChainID:     c.EVMChainID,
		FromToken:   token.Address,
		FromAmount:  raw.String(),
		FromAddress: walletAddr,
	})
	if err != nil {
		return "", err
	}
	if spender := strings.TrimSpace(quote.ApprovalAddress); spender != "" {
		allowance, err := e.reader.Allowance(ctx, c, token.Address, walletAddr, spender)
		if err != nil {
			return "", err
		}
		if allowance.Cmp(raw) < 0 {
			approve := adapter.ApproveCall(token.Address, spender, raw)
			if _, err := e.submit.Submit(ctx, walletID, c.CAIP2, approve.To, approve.Data, "0"); err != nil {
				return "", clierr.Wrap(clierr.CodeApproval, "swap approval submission failed", err)
			}
		}
	}
	return e.submit.Submit(ctx, walletID, c.CAIP2, quote.To, quote.Data, quote.Value)
}

func weiToUSD(wei *big.Int, nativeUSD float64) float64 {
	f := new(big.Float).SetInt(wei)
	f.Quo(f, big.NewFloat(1e18))
	f.Mul(f, big.NewFloat(nativeUSD))
	out, _ := f.Float64()
	return out
}

func rawToUSD(raw *big.Int, decimals int, priceUSD float64) float64 {
	f := new(big.Float).SetInt(raw)
	f.Quo(f, pow10f(decimals))
	f.Mul(f, big.NewFloat(priceUSD))
	out, _ := f.Float64()
	return out
}

// usdToRaw converts a USD value into raw token units, rounding up so the swap
// never undershoots the shortfall.
func usdToRaw(usd float64, decimals int, priceUSD float64) *big.Int {
	f := big.NewFloat(usd)
	f.Quo(f, big.NewFloat(priceUSD))
	f.Mul(f, pow10f(decimals))
	out, accuracy := f.Int(nil)
	if accuracy == big.Below {
		out.Add(out, big.NewInt(1))
	}
	return out
}

func pow10f(exp int) *big.Float {
	out := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(exp)), nil)
	return new(big.Float).SetInt(out)
}
