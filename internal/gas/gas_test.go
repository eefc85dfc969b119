package gas

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/yieldline/yieldctl/internal/chain"
	"github.com/yieldline/yieldctl/internal/swap"
)

type fakeReader struct {
	native    *big.Int
	tokens    map[string]*big.Int // keyed by token address
	allowance *big.Int
	gasPrice  *big.Int
}

func (f fakeReader) NativeBalance(context.Context, chain.Chain, string) (*big.Int, error) {
	return f.native, nil
}

func (f fakeReader) TokenBalance(_ context.Context, _ chain.Chain, token, _ string) (*big.Int, error) {
	if bal, ok := f.tokens[token]; ok {
		return bal, nil
	}
	return big.NewInt(0), nil
}

func (f fakeReader) Allowance(context.Context, chain.Chain, string, string, string) (*big.Int, error) {
	if f.allowance == nil {
		return big.NewInt(0), nil
	}
	return f.allowance, nil
}

func (f fakeReader) GasPrice(context.Context, chain.Chain) (*big.Int, error) {
	return f.gasPrice, nil
}

type fakePrices struct {
	nativeUSD float64
	tokenUSD  float64
	err       error
}

func (f fakePrices) TokenUSD(context.Context, chain.Chain, string) (float64, error) {
	return f.tokenUSD, f.err
}

func (f fakePrices) NativeUSD(context.Context, chain.Chain) (float64, error) {
	return f.nativeUSD, f.err
}

type fakeQuoter struct {
	quote swap.Quote
	err   error
	calls int
}

func (f *fakeQuoter) NativeOutQuote(context.Context, swap.QuoteRequest) (swap.Quote, error) {
	f.calls++
	return f.quote, f.err
}

type fakeSubmitter struct {
	hashes []string
	calls  []string
}

func (f *fakeSubmitter) Submit(_ context.Context, _, _, to, _, _ string) (string, error) {
	f.calls = append(f.calls, to)
	if len(f.hashes) == 0 {
		return "0xtx", nil
	}
	h := f.hashes[0]
	f.hashes = f.hashes[1:]
	return h, nil
}

func baseChain(t *testing.T) chain.Chain {
	t.Helper()
	c, err := chain.Parse("base")
	if err != nil {
		t.Fatalf("parse chain: %v", err)
	}
	return c
}

func TestRequiredWeiAppliesBuffer(t *testing.T) {
	price := big.NewInt(1_000_000_000) // 1 gwei
	required := RequiredWei(OpApprove, price)
	raw := new(big.Int).Mul(big.NewInt(60_000), price)
	want := new(big.Int).Mul(raw, big.NewInt(130))
	want.Div(want, big.NewInt(100))
	if required.Cmp(want) != 0 {
		t.Fatalf("required %s, want %s", required, want)
	}
}

func TestEnsureBufferBites(t *testing.T) {
	price := big.NewInt(1_000_000_000)
	// balance covers the raw cost exactly, but not the 30% buffer
	rawCost := new(big.Int).Mul(big.NewInt(260_000), price)
	reader := fakeReader{native: rawCost, gasPrice: price}
	e := NewEngine(reader, fakePrices{err: errors.New("down")}, &fakeQuoter{}, &fakeSubmitter{}, zerolog.Nop())

	report, err := e.Ensure(context.Background(), "w", "0xwallet", baseChain(t), OpSupply)
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if report.Ready {
		t.Fatal("buffer must make an exact-cost balance insufficient")
	}
}

func TestEnsureReadyWithBufferCovered(t *testing.T) {
	price := big.NewInt(1_000_000_000)
	reader := fakeReader{native: RequiredWei(OpSupply, price), gasPrice: price}
	e := NewEngine(reader, fakePrices{}, &fakeQuoter{}, &fakeSubmitter{}, zerolog.Nop())

	report, err := e.Ensure(context.Background(), "w", "0xwallet", baseChain(t), OpSupply)
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if !report.Ready || report.AutoSwapExecuted {
		t.Fatalf("expected ready with no swap, got %+v", report)
	}
}

func TestEnsureAutoSwapsFromStable(t *testing.T) {
	c := baseChain(t)
	usdc, _ := chain.KnownToken(c.CAIP2, "USDC")
	price := big.NewInt(10_000_000_000) // 10 gwei
	reader := fakeReader{
		native:   big.NewInt(0),
		gasPrice: price,
		tokens:   map[string]*big.Int{usdc.Address: big.NewInt(200_000_000)}, // 200 USDC
	}
	quoter := &fakeQuoter{quote: swap.Quote{To: "0xswap", Data: "0xdata", Value: "0", ApprovalAddress: "0xrouter"}}
	submitter := &fakeSubmitter{hashes: []string{"0xapprove", "0xswaptx"}}
	e := NewEngine(reader, fakePrices{nativeUSD: 3000, tokenUSD: 1}, quoter, submitter, zerolog.Nop())

	report, err := e.Ensure(context.Background(), "w", "0xwallet", c, OpSupply)
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if report.Ready {
		t.Fatal("swap path must not report ready synchronously")
	}
	if !report.AutoSwapExecuted || report.SwapTxHash != "0xswaptx" {
		t.Fatalf("expected executed swap, got %+v", report)
	}
	// allowance was zero, so an approval precedes the swap
	if len(submitter.calls) != 2 || submitter.calls[0] != usdc.Address || submitter.calls[1] != "0xswap" {
		t.Fatalf("submission order wrong: %v", submitter.calls)
	}
}

func TestEnsureSkipsApprovalWhenAllowanceCovers(t *testing.T) {
	c := baseChain(t)
	usdc, _ := chain.KnownToken(c.CAIP2, "USDC")
	reader := fakeReader{
		native:    big.NewInt(0),
		gasPrice:  big.NewInt(10_000_000_000),
		tokens:    map[string]*big.Int{usdc.Address: big.NewInt(200_000_000)},
		allowance: new(big.Int).Lsh(big.NewInt(1), 255),
	}
	quoter := &fakeQuoter{quote: swap.Quote{To: "0xswap", Data: "0xdata", Value: "0", ApprovalAddress: "0xrouter"}}
	submitter := &fakeSubmitter{}
	e := NewEngine(reader, fakePrices{nativeUSD: 3000, tokenUSD: 1}, quoter, submitter, zerolog.Nop())

	report, err := e.Ensure(context.Background(), "w", "0xwallet", c, OpSupply)
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if !report.AutoSwapExecuted {
		t.Fatalf("expected swap, got %+v", report)
	}
	if len(submitter.calls) != 1 || submitter.calls[0] != "0xswap" {
		t.Fatalf("approval should be skipped: %v", submitter.calls)
	}
}

func TestEnsureNamesCandidatesWhenNothingSwappable(t *testing.T) {
	reader := fakeReader{native: big.NewInt(0), gasPrice: big.NewInt(10_000_000_000)}
	e := NewEngine(reader, fakePrices{nativeUSD: 3000, tokenUSD: 1}, &fakeQuoter{}, &fakeSubmitter{}, zerolog.Nop())

	report, err := e.Ensure(context.Background(), "w", "0xwallet", baseChain(t), OpSupply)
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if report.Ready || report.AutoSwapExecuted {
		t.Fatalf("expected plain shortfall, got %+v", report)
	}
	if !strings.Contains(report.Message, "USDC") || report.ShortfallWei == "" {
		t.Fatalf("diagnostic should name shortfall and candidates: %q", report.Message)
	}
}

func TestUSDConversionsRoundUp(t *testing.T) {
	raw := usdToRaw(1.0, 6, 3.0) // 1 USD of a 3 USD token at 6 decimals
	want := big.NewInt(333334)
	if raw.Cmp(want) != 0 {
		t.Fatalf("usdToRaw rounded to %s, want %s", raw, want)
	}
}
