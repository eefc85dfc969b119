package bridge

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/yieldline/yieldctl/internal/chain"
	clierr "github.com/yieldline/yieldctl/internal/errors"
)

type fakeQuoter struct {
	quote       Quote
	quoteCalls  int
	statuses    []TransferStatus
	statusCalls int
}

func (f *fakeQuoter) Quote(context.Context, QuoteRequest) (Quote, error) {
	f.quoteCalls++
	return f.quote, nil
}

func (f *fakeQuoter) Status(context.Context, string, int64, int64) (TransferStatus, error) {
	f.statusCalls++
	if len(f.statuses) == 0 {
		return StatusPending, nil
	}
	s := f.statuses[0]
	if len(f.statuses) > 1 {
		f.statuses = f.statuses[1:]
	}
	return s, nil
}

type fakeAllowance struct{ allowance *big.Int }

func (f fakeAllowance) Allowance(context.Context, chain.Chain, string, string, string) (*big.Int, error) {
	if f.allowance == nil {
		return big.NewInt(0), nil
	}
	return f.allowance, nil
}

type fakeSubmitter struct {
	targets []string
	hashes  []string
}

func (f *fakeSubmitter) Submit(_ context.Context, _, _, to, _, _ string) (string, error) {
	f.targets = append(f.targets, to)
	if len(f.hashes) == 0 {
		return "0xtx", nil
	}
	h := f.hashes[0]
	f.hashes = f.hashes[1:]
	return h, nil
}

type fakeWaiter struct{}

func (fakeWaiter) WaitReceipt(context.Context, chain.Chain, string, time.Duration, time.Duration) error {
	return nil
}

func sampleTransfer() *Transfer {
	return &Transfer{
		TransferID:    "tr-1",
		WalletID:      "w-1",
		WalletAddress: "0x1111111111111111111111111111111111111111",
		FromChainID:   "ethereum",
		ToChainID:     "base",
		TokenAddress:  "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48",
		ToToken:       "0x833589fcd6edb6e08f4c7c32d4f71b54bda02913",
		RawAmount:     "100000000",
	}
}

func fastOptions() Options {
	return Options{PollInterval: time.Millisecond, Timeout: 250 * time.Millisecond}
}

func TestRunApprovesThenBridgesThenArrives(t *testing.T) {
	quoter := &fakeQuoter{
		quote:    Quote{To: "0xbridge", Data: "0xdata", Value: "0", ApprovalAddress: "0xrouter"},
		statuses: []TransferStatus{StatusPending, StatusDone},
	}
	submitter := &fakeSubmitter{hashes: []string{"0xapprove", "0xbridgetx"}}
	var transitions []State
	o := NewOrchestrator(quoter, fakeAllowance{}, submitter, fakeWaiter{}, func(tr Transfer) {
		transitions = append(transitions, tr.State)
	}, zerolog.Nop())

	tr := sampleTransfer()
	if err := o.Run(context.Background(), tr, fastOptions()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if tr.State != StateArrived {
		t.Fatalf("state %s, want arrived", tr.State)
	}
	if tr.SrcTxHash != "0xbridgetx" {
		t.Fatalf("src hash %s", tr.SrcTxHash)
	}
	// approval target is the token, bridge target is the quoted router
	if len(submitter.targets) != 2 || submitter.targets[0] != tr.TokenAddress || submitter.targets[1] != "0xbridge" {
		t.Fatalf("submissions %v", submitter.targets)
	}
	want := []State{StateApproving, StateBridging, StateAwaitingArrival, StateArrived}
	if len(transitions) != len(want) {
		t.Fatalf("transitions %v", transitions)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Fatalf("transition %d = %s, want %s", i, transitions[i], want[i])
		}
	}
}

func TestRunSkipsApprovalWhenAllowanceCovers(t *testing.T) {
	quoter := &fakeQuoter{
		quote:    Quote{To: "0xbridge", Data: "0xdata", Value: "0", ApprovalAddress: "0xrouter"},
		statuses: []TransferStatus{StatusDone},
	}
	submitter := &fakeSubmitter{}
	o := NewOrchestrator(quoter, fakeAllowance{allowance: big.NewInt(100000000)}, submitter, fakeWaiter{}, nil, zerolog.Nop())

	tr := sampleTransfer()
	if err := o.Run(context.Background(), tr, fastOptions()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(submitter.targets) != 1 || submitter.targets[0] != "0xbridge" {
		t.Fatalf("equal allowance should skip approval: %v", submitter.targets)
	}
}

func TestRunTimesOutResumable(t *testing.T) {
	quoter := &fakeQuoter{
		quote: Quote{To: "0xbridge", Data: "0xdata", Value: "0"},
	}
	submitter := &fakeSubmitter{hashes: []string{"0xbridgetx"}}
	o := NewOrchestrator(quoter, fakeAllowance{}, submitter, fakeWaiter{}, nil, zerolog.Nop())

	tr := sampleTransfer()
	if err := o.Run(context.Background(), tr, fastOptions()); err != nil {
		t.Fatalf("timeout must not be an error: %v", err)
	}
	if tr.State != StateTimedOut || tr.SrcTxHash != "0xbridgetx" {
		t.Fatalf("expected resumable timeout, got %+v", tr)
	}

	// Resume: settlement completes without a second bridge submission.
	quoter.statuses = []TransferStatus{StatusDone}
	if err := o.Run(context.Background(), tr, fastOptions()); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if tr.State != StateArrived {
		t.Fatalf("resume state %s", tr.State)
	}
	if len(submitter.targets) != 1 {
		t.Fatalf("resume must never re-submit the bridge tx: %v", submitter.targets)
	}
	if quoter.quoteCalls != 1 {
		t.Fatalf("resume must reuse the recorded payload, quoted %d times", quoter.quoteCalls)
	}
}

func TestRunFailedSettlementIsTerminal(t *testing.T) {
	quoter := &fakeQuoter{
		quote:    Quote{To: "0xbridge", Data: "0xdata", Value: "0"},
		statuses: []TransferStatus{StatusFailed},
	}
	o := NewOrchestrator(quoter, fakeAllowance{}, &fakeSubmitter{}, fakeWaiter{}, nil, zerolog.Nop())

	tr := sampleTransfer()
	err := o.Run(context.Background(), tr, fastOptions())
	if !clierr.HasCode(err, clierr.CodeBlocked) {
		t.Fatalf("failed settlement should surface blocked, got %v", err)
	}
	if tr.State != StateFailed {
		t.Fatalf("state %s", tr.State)
	}
}
