package bridge

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/yieldline/yieldctl/internal/adapter"
	"github.com/yieldline/yieldctl/internal/chain"
	clierr "github.com/yieldline/yieldctl/internal/errors"
)

// State is the orchestrator's position within one transfer.
type State string

const (
	StateNeedsApproval   State = "needs_approval"
	StateApproving       State = "approving"
	StateBridging        State = "bridging"
	StateAwaitingArrival State = "awaiting_arrival"
	StateArrived         State = "arrived"
	StateFailed          State = "failed"
	StateTimedOut        State = "timed_out"
)

// Transfer is one cross-chain move of funds. It carries everything needed to
// resume: the quoted payload, the recorded source tx hash, and the state.
type Transfer struct {
	TransferID    string `json:"transfer_id"`
	WalletID      string `json:"wallet_id"`
	WalletAddress string `json:"wallet_address"`
	FromChainID   string `json:"from_chain_id"`
	ToChainID     string `json:"to_chain_id"`
	TokenAddress  string `json:"token_address"`
	ToToken       string `json:"to_token"`
	RawAmount     string `json:"raw_amount"`
	State         State  `json:"state"`

	ApprovalSpender string `json:"approval_spender,omitempty"`
	BridgeTo        string `json:"bridge_to,omitempty"`
	BridgeData      string `json:"bridge_data,omitempty"`
	BridgeValue     string `json:"bridge_value,omitempty"`
	SrcTxHash       string `json:"src_tx_hash,omitempty"`
	LastError       string `json:"last_error,omitempty"`
}

type Options struct {
	PollInterval time.Duration
	Timeout      time.Duration
}

func DefaultOptions() Options {
	return Options{PollInterval: 5 * time.Second, Timeout: 10 * time.Minute}
}

// Quoter fetches bridge quotes and settlement status.
type Quoter interface {
	Quote(ctx context.Context, req QuoteRequest) (Quote, error)
	Status(ctx context.Context, srcTxHash string, fromChainID, toChainID int64) (TransferStatus, error)
}

// AllowanceReader reads the current ERC-20 allowance on the source chain.
type AllowanceReader interface {
	Allowance(ctx context.Context, c chain.Chain, token, owner, spender string) (*big.Int, error)
}

// Submitter hands a transaction to custody.
type Submitter interface {
	Submit(ctx context.Context, walletID, chainID, to, data, value string) (string, error)
}

// Waiter blocks until a submitted transaction confirms on the source chain.
type Waiter interface {
	WaitReceipt(ctx context.Context, c chain.Chain, txHash string, pollInterval, timeout time.Duration) error
}

type Orchestrator struct {
	quoter  Quoter
	reader  AllowanceReader
	submit  Submitter
	waiter  Waiter
	persist func(Transfer)
	log     zerolog.Logger
}

// NewOrchestrator builds the transfer state machine. persist is invoked after
// every state transition so a crash can resume from the last recorded state;
// nil disables persistence.
func NewOrchestrator(quoter Quoter, reader AllowanceReader, submit Submitter, waiter Waiter, persist func(Transfer), log zerolog.Logger) *Orchestrator {
	if persist == nil {
		persist = func(Transfer) {}
	}
	return &Orchestrator{quoter: quoter, reader: reader, submit: submit, waiter: waiter, persist: persist, log: log}
}

// Run drives a transfer from its current state to a terminal or pausable one.
// A recorded source tx hash is never re-submitted: resumption re-polls
// settlement and proceeds from there. Timed-out transfers return with
// StateTimedOut and no error; the caller resumes later with the same transfer.
func (o *Orchestrator) Run(ctx context.Context, t *Transfer, opts Options) error {
	if t == nil {
		return clierr.New(clierr.CodeInternal, "missing transfer")
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultOptions().PollInterval
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultOptions().Timeout
	}
	fromChain, err := chain.Parse(t.FromChainID)
	if err != nil {
		return err
	}
	toChain, err := chain.Parse(t.ToChainID)
	if err != nil {
		return err
	}
	if t.State == "" {
		t.State = StateNeedsApproval
	}
	// A recorded bridge submission always resumes at the arrival poll.
	if strings.TrimSpace(t.SrcTxHash) != "" && t.State != StateArrived && t.State != StateFailed {
		t.State = StateAwaitingArrival
		o.persist(*t)
	}

	for {
		switch t.State {
		case StateNeedsApproval:
			if err := o.prepare(ctx, t, fromChain, toChain); err != nil {
				return o.fail(t, err)
			}
		case StateApproving:
			if err := o.approve(ctx, t, fromChain, opts); err != nil {
				return o.fail(t, err)
			}
		case StateBridging:
			if err := o.submitBridge(ctx, t, fromChain); err != nil {
				return o.fail(t, err)
			}
		case StateAwaitingArrival:
			return o.awaitArrival(ctx, t, fromChain, toChain, opts)
		case StateArrived, StateTimedOut:
			return nil
		case StateFailed:
			return clierr.New(clierr.CodeBlocked, fmt.Sprintf("bridge transfer failed: %s", t.LastError))
		default:
			return clierr.New(clierr.CodeInternal, fmt.Sprintf("unknown bridge state: %s", t.State))
		}
	}
}

// prepare quotes the route (once) and decides whether an approval is needed.
func (o *Orchestrator) prepare(ctx context.Context, t *Transfer, fromChain, toChain chain.Chain) error {
	if strings.TrimSpace(t.BridgeTo) == "" {
		quote, err := o.quoter.Quote(ctx, QuoteRequest{
			FromChainID: fromChain.EVMChainID,
			ToChainID:   toChain.EVMChainID,
			FromToken:   t.TokenAddress,
			ToToken:     t.ToToken,
			FromAmount:  t.RawAmount,
			FromAddress: t.WalletAddress,
			ToAddress:   t.WalletAddress,
		})
		if err != nil {
			return err
		}
		t.BridgeTo = quote.To
		t.BridgeData = quote.Data
		t.BridgeValue = quote.Value
		t.ApprovalSpender = quote.ApprovalAddress
	}

	spender := strings.TrimSpace(t.ApprovalSpender)
	if spender == "" {
		t.State = StateBridging
		o.persist(*t)
		return nil
	}
	raw, ok := new(big.Int).SetString(t.RawAmount, 10)
	if !ok {
		return clierr.New(clierr.CodeInternal, "transfer amount is not a base-units integer")
	}
	allowance, err := o.reader.Allowance(ctx, fromChain, t.TokenAddress, t.WalletAddress, spender)
	if err != nil {
		return err
	}
	if allowance.Cmp(raw) < 0 {
		t.State = StateApproving
	} else {
		t.State = StateBridging
	}
	o.persist(*t)
	return nil
}

func (o *Orchestrator) approve(ctx context.Context, t *Transfer, fromChain chain.Chain, opts Options) error {
	raw, ok := new(big.Int).SetString(t.RawAmount, 10)
	if !ok {
		return clierr.New(clierr.CodeInternal, "transfer amount is not a base-units integer")
	}
	call := adapter.ApproveCall(t.TokenAddress, t.ApprovalSpender, raw)
	txHash, err := o.submit.Submit(ctx, t.WalletID, fromChain.CAIP2, call.To, call.Data, "0")
	if err != nil {
		return clierr.Wrap(clierr.CodeApproval, "bridge approval submission failed", err)
	}
	if err := o.waiter.WaitReceipt(ctx, fromChain, txHash, opts.PollInterval, opts.Timeout); err != nil {
		return err
	}
	o.log.Debug().Str("tx", txHash).Msg("bridge approval confirmed")
	t.State = StateBridging
	o.persist(*t)
	return nil
}

func (o *Orchestrator) submitBridge(ctx context.Context, t *Transfer, fromChain chain.Chain) error {
	txHash, err := o.submit.Submit(ctx, t.WalletID, fromChain.CAIP2, t.BridgeTo, t.BridgeData, t.BridgeValue)
	if err != nil {
		return err
	}
	// Hash is recorded before any polling so a crash cannot double-submit.
	t.SrcTxHash = txHash
	t.State = StateAwaitingArrival
	o.persist(*t)
	return nil
}

func (o *Orchestrator) awaitArrival(ctx context.Context, t *Transfer, fromChain, toChain chain.Chain, opts Options) error {
	waitCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()
	ticker := time.NewTicker(opts.PollInterval)
	defer ticker.Stop()
	for {
		status, err := o.quoter.Status(waitCtx, t.SrcTxHash, fromChain.EVMChainID, toChain.EVMChainID)
		if err != nil {
			o.log.Warn().Err(err).Msg("bridge status poll failed, retrying")
		}
		switch status {
		case StatusDone:
			t.State = StateArrived
			o.persist(*t)
			return nil
		case StatusFailed:
			t.State = StateFailed
			t.LastError = "bridge reported transfer failure"
			o.persist(*t)
			return clierr.New(clierr.CodeBlocked, "bridge reported transfer failure")
		}
		select {
		case <-waitCtx.Done():
			t.State = StateTimedOut
			o.persist(*t)
			return nil
		case <-ticker.C:
		}
	}
}

func (o *Orchestrator) fail(t *Transfer, err error) error {
	t.State = StateFailed
	t.LastError = err.Error()
	o.persist(*t)
	return err
}
