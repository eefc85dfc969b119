// Package engine drives complete deposit and withdraw flows: plan building,
// gas gating, cross-chain bridging, simulation, custody submission, receipt
// polling, and ledger recording. Every outcome is a structured Result so
// callers always learn which step completed last.
package engine

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/yieldline/yieldctl/internal/adapter"
	"github.com/yieldline/yieldctl/internal/bridge"
	"github.com/yieldline/yieldctl/internal/chain"
	"github.com/yieldline/yieldctl/internal/discovery"
	clierr "github.com/yieldline/yieldctl/internal/errors"
	"github.com/yieldline/yieldctl/internal/gas"
	"github.com/yieldline/yieldctl/internal/ledger"
	"github.com/yieldline/yieldctl/internal/plan"
)

// Status classifies the outcome of one engine invocation. Expected
// non-completions (no opportunity, pending bridge) are statuses, not errors.
type Status string

const (
	StatusCompleted        Status = "completed"
	StatusNoOpportunity    Status = "no_opportunity"
	StatusNoPosition       Status = "no_position"
	StatusGasBlocked       Status = "gas_blocked"
	StatusGasSwapSubmitted Status = "gas_swap_submitted"
	StatusBridgePending    Status = "bridge_pending"
)

// Result is the structured outcome of a deposit, withdraw, or resume. When a
// flow pauses mid-plan, StepCompleted names the last confirmed step and
// NextStep tells the caller how to proceed.
type Result struct {
	Status        Status      `json:"status"`
	Message       string      `json:"message,omitempty"`
	NextStep      string      `json:"next_step,omitempty"`
	StepCompleted string      `json:"step_completed,omitempty"`
	Plan          *plan.Plan  `json:"plan,omitempty"`
	Gas           *gas.Report `json:"gas,omitempty"`
	TxHash        string      `json:"tx_hash,omitempty"`
}

// WalletDirectory resolves custody wallet ids to on-chain addresses.
type WalletDirectory interface {
	WalletAddress(ctx context.Context, walletID string) (string, error)
}

// Submitter hands transactions to custody for signing and broadcast.
type Submitter interface {
	Submit(ctx context.Context, walletID, chainID, to, data, value string) (string, error)
}

// PlanBuilder assembles executable plans.
type PlanBuilder interface {
	BuildDeposit(ctx context.Context, walletID, walletAddr, assetSymbol, humanAmount string, candidateChains []string) (*plan.Plan, error)
	BuildWithdraw(ctx context.Context, walletID, walletAddr, assetSymbol, amountOrAll, chainInput, protocolID string) (*plan.Plan, error)
}

// GasGater checks native-gas sufficiency and runs the auto-swap remediation.
type GasGater interface {
	Ensure(ctx context.Context, walletID, walletAddr string, c chain.Chain, op gas.OperationKind) (gas.Report, error)
}

// BridgeRunner executes a cross-chain transfer state machine.
type BridgeRunner interface {
	Run(ctx context.Context, t *bridge.Transfer, opts bridge.Options) error
}

// Reader covers every on-chain read and wait the engine performs.
type Reader interface {
	Allowance(ctx context.Context, c chain.Chain, token, owner, spender string) (*big.Int, error)
	TokenBalance(ctx context.Context, c chain.Chain, token, owner string) (*big.Int, error)
	ReceiptBalance(ctx context.Context, c chain.Chain, pool adapter.Pool, owner string) (*big.Int, error)
	Simulate(ctx context.Context, c chain.Chain, from, to, data string) error
	WaitReceipt(ctx context.Context, c chain.Chain, txHash string, pollInterval, timeout time.Duration) error
}

// PlanStore persists plans and their step cursors.
type PlanStore interface {
	Save(p plan.Plan) error
	Get(planID string) (plan.Plan, error)
}

// LedgerStore records confirmed deposits and withdrawals.
type LedgerStore interface {
	Record(wallet string, e ledger.Entry) (ledger.Entry, error)
	Load(wallet string) ([]ledger.Entry, error)
}

type Options struct {
	PollInterval       time.Duration
	StepTimeout        time.Duration
	BridgePollInterval time.Duration
	BridgeTimeout      time.Duration
}

func DefaultOptions() Options {
	return Options{
		PollInterval:       2 * time.Second,
		StepTimeout:        2 * time.Minute,
		BridgePollInterval: 5 * time.Second,
		BridgeTimeout:      10 * time.Minute,
	}
}

type Deps struct {
	Wallets  WalletDirectory
	Builder  PlanBuilder
	Gas      GasGater
	Bridge   BridgeRunner
	Reader   Reader
	Submit   Submitter
	Plans    PlanStore
	Ledger   LedgerStore
	Adapters *adapter.Registry
	Log      zerolog.Logger
	Options  Options
}

type Engine struct {
	wallets  WalletDirectory
	builder  PlanBuilder
	gas      GasGater
	bridge   BridgeRunner
	reader   Reader
	submit   Submitter
	plans    PlanStore
	ledger   LedgerStore
	adapters *adapter.Registry
	log      zerolog.Logger
	opts     Options
}

func New(deps Deps) *Engine {
	opts := deps.Options
	def := DefaultOptions()
	if opts.PollInterval <= 0 {
		opts.PollInterval = def.PollInterval
	}
	if opts.StepTimeout <= 0 {
		opts.StepTimeout = def.StepTimeout
	}
	if opts.BridgePollInterval <= 0 {
		opts.BridgePollInterval = def.BridgePollInterval
	}
	if opts.BridgeTimeout <= 0 {
		opts.BridgeTimeout = def.BridgeTimeout
	}
	return &Engine{
		wallets:  deps.Wallets,
		builder:  deps.Builder,
		gas:      deps.Gas,
		bridge:   deps.Bridge,
		reader:   deps.Reader,
		submit:   deps.Submit,
		plans:    deps.Plans,
		ledger:   deps.Ledger,
		adapters: deps.Adapters,
		log:      deps.Log,
		opts:     opts,
	}
}

type DepositRequest struct {
	WalletID    string
	AssetSymbol string
	HumanAmount string
	Chains      []string
}

// Deposit runs the full deposit flow. When the wallet's funds sit on a
// different candidate chain than the best opportunity, a bridge transfer is
// executed first; a bridge that outlives the timeout pauses the plan and the
// caller resumes it later.
func (e *Engine) Deposit(ctx context.Context, req DepositRequest) (Result, error) {
	walletAddr, err := e.wallets.WalletAddress(ctx, req.WalletID)
	if err != nil {
		return Result{}, err
	}

	p, err := e.builder.BuildDeposit(ctx, req.WalletID, walletAddr, req.AssetSymbol, req.HumanAmount, req.Chains)
	if err != nil {
		return Result{}, err
	}
	if p == nil {
		return Result{
			Status:  StatusNoOpportunity,
			Message: fmt.Sprintf("no %s lending opportunity on the requested chains", strings.ToUpper(req.AssetSymbol)),
		}, nil
	}

	target, err := chain.Parse(p.ChainID)
	if err != nil {
		return Result{}, err
	}
	raw, ok := new(big.Int).SetString(p.RawAmount, 10)
	if !ok {
		return Result{}, clierr.New(clierr.CodeInternal, "plan amount is not a base-units integer")
	}

	src, needsBridge, err := e.locateFunds(ctx, p, target, raw, req.Chains)
	if err != nil {
		return Result{}, err
	}
	if needsBridge {
		p.SourceChainID = src.CAIP2
		prependBridgeSteps(p, src, target)

		report, err := e.gas.Ensure(ctx, p.WalletID, p.WalletAddress, src, gas.OpBridge)
		if err != nil {
			return Result{}, err
		}
		if r, blocked := e.gasBlocked(report, p); blocked {
			return r, nil
		}

		p.Status = plan.StatusRunning
		if err := e.savePlan(p); err != nil {
			return Result{}, err
		}
		if res, err := e.runBridge(ctx, p, src, target); err != nil || res != nil {
			if res != nil {
				return *res, err
			}
			return Result{}, err
		}
	}

	report, err := e.gas.Ensure(ctx, p.WalletID, p.WalletAddress, target, gas.OpSupply)
	if err != nil {
		return Result{}, err
	}
	if r, blocked := e.gasBlocked(report, p); blocked {
		return r, nil
	}

	p.Status = plan.StatusRunning
	if err := e.savePlan(p); err != nil {
		return Result{}, err
	}
	return e.finishPlan(ctx, p, target)
}

type WithdrawRequest struct {
	WalletID    string
	AssetSymbol string
	Amount      string // decimal amount, or "all"/"max"
	Chain       string
	ProtocolID  string
}

// Withdraw plans and executes a withdrawal from an existing position.
func (e *Engine) Withdraw(ctx context.Context, req WithdrawRequest) (Result, error) {
	walletAddr, err := e.wallets.WalletAddress(ctx, req.WalletID)
	if err != nil {
		return Result{}, err
	}

	p, err := e.builder.BuildWithdraw(ctx, req.WalletID, walletAddr, req.AssetSymbol, req.Amount, req.Chain, req.ProtocolID)
	if err != nil {
		return Result{}, err
	}
	if p == nil {
		return Result{
			Status:  StatusNoPosition,
			Message: fmt.Sprintf("no %s position above the dust threshold", strings.ToUpper(req.AssetSymbol)),
		}, nil
	}

	c, err := chain.Parse(p.ChainID)
	if err != nil {
		return Result{}, err
	}
	report, err := e.gas.Ensure(ctx, p.WalletID, p.WalletAddress, c, gas.OpWithdraw)
	if err != nil {
		return Result{}, err
	}
	if r, blocked := e.gasBlocked(report, p); blocked {
		return r, nil
	}

	p.Status = plan.StatusRunning
	if err := e.savePlan(p); err != nil {
		return Result{}, err
	}
	return e.finishPlan(ctx, p, c)
}

// Resume continues a paused plan from its persisted cursor. Bridge steps with
// a recorded source hash are never re-submitted: the orchestrator re-polls
// settlement and proceeds.
func (e *Engine) Resume(ctx context.Context, planID string) (Result, error) {
	stored, err := e.plans.Get(planID)
	if err != nil {
		return Result{}, err
	}
	p := &stored
	if p.Status == plan.StatusCompleted {
		return Result{Status: StatusCompleted, Message: "plan already completed", Plan: p}, nil
	}

	target, err := chain.Parse(p.ChainID)
	if err != nil {
		return Result{}, err
	}

	if step := p.CurrentStep(); step != nil && (step.Type == plan.StepBridgeSend || step.Type == plan.StepBridgeWait) {
		src, err := chain.Parse(p.SourceChainID)
		if err != nil {
			return Result{}, err
		}
		p.Status = plan.StatusRunning
		if res, err := e.runBridge(ctx, p, src, target); err != nil || res != nil {
			if res != nil {
				return *res, err
			}
			return Result{}, err
		}
	}

	op := gas.OpSupply
	if p.Action == plan.ActionWithdraw {
		op = gas.OpWithdraw
	}
	report, err := e.gas.Ensure(ctx, p.WalletID, p.WalletAddress, target, op)
	if err != nil {
		return Result{}, err
	}
	if r, blocked := e.gasBlocked(report, p); blocked {
		return r, nil
	}

	p.Status = plan.StatusRunning
	if err := e.savePlan(p); err != nil {
		return Result{}, err
	}
	return e.finishPlan(ctx, p, target)
}

type EarningsRequest struct {
	WalletID    string
	AssetSymbol string
	Chain       string
	ProtocolID  string
}

type EarningsReport struct {
	WalletAddress string          `json:"wallet_address"`
	AssetSymbol   string          `json:"asset_symbol"`
	Chain         string          `json:"chain"`
	ProtocolID    string          `json:"protocol_id"`
	Entries       int             `json:"entries"`
	Earnings      ledger.Earnings `json:"earnings"`
}

// Earnings reconciles the recorded transaction history of one position
// against the current on-chain receipt balance.
func (e *Engine) Earnings(ctx context.Context, req EarningsRequest) (EarningsReport, error) {
	walletAddr, err := e.wallets.WalletAddress(ctx, req.WalletID)
	if err != nil {
		return EarningsReport{}, err
	}
	c, err := chain.Parse(req.Chain)
	if err != nil {
		return EarningsReport{}, err
	}
	protocolID := strings.TrimSpace(req.ProtocolID)
	if protocolID == "" {
		protocolID = "aave-v3"
	}
	a, ok := e.adapters.Lookup(protocolID)
	if !ok {
		return EarningsReport{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("unknown protocol: %s", protocolID))
	}
	pool, ok := a.ResolvePool(c.CAIP2, req.AssetSymbol)
	if !ok {
		return EarningsReport{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("no %s pool for %s on %s", a.Protocol(), req.AssetSymbol, c.Slug))
	}

	entries, err := e.ledger.Load(walletAddr)
	if err != nil {
		return EarningsReport{}, err
	}
	position := ledger.Filter(entries, req.AssetSymbol, c.CAIP2, a.Protocol())

	balance, err := e.reader.ReceiptBalance(ctx, c, pool, walletAddr)
	if err != nil {
		return EarningsReport{}, err
	}

	return EarningsReport{
		WalletAddress: walletAddr,
		AssetSymbol:   strings.ToUpper(strings.TrimSpace(req.AssetSymbol)),
		Chain:         c.CAIP2,
		ProtocolID:    a.Protocol(),
		Entries:       len(position),
		Earnings:      ledger.ComputeEarnings(position, balance, time.Now().UTC()),
	}, nil
}

// GasCheck exposes the gas sufficiency check for one operation kind.
func (e *Engine) GasCheck(ctx context.Context, walletID, chainInput string, op gas.OperationKind) (gas.Report, error) {
	walletAddr, err := e.wallets.WalletAddress(ctx, walletID)
	if err != nil {
		return gas.Report{}, err
	}
	c, err := chain.Parse(chainInput)
	if err != nil {
		return gas.Report{}, err
	}
	return e.gas.Ensure(ctx, walletID, walletAddr, c, op)
}

// locateFunds decides whether the deposit needs a bridge. The target chain's
// balance is authoritative; only when it cannot cover the amount are the other
// candidate chains scanned concurrently for one that can.
func (e *Engine) locateFunds(ctx context.Context, p *plan.Plan, target chain.Chain, raw *big.Int, candidates []string) (chain.Chain, bool, error) {
	balance, err := e.reader.TokenBalance(ctx, target, p.AssetAddress, p.WalletAddress)
	if err != nil {
		return chain.Chain{}, false, err
	}
	if balance.Cmp(raw) >= 0 {
		return chain.Chain{}, false, nil
	}

	others := make([]chain.Chain, 0, len(candidates))
	for _, in := range candidates {
		c, err := chain.Parse(in)
		if err != nil {
			return chain.Chain{}, false, err
		}
		if c.CAIP2 == target.CAIP2 {
			continue
		}
		others = append(others, c)
	}
	balances := discovery.FanOutBalances(ctx, others, func(ctx context.Context, c chain.Chain) (*big.Int, error) {
		asset, err := chain.ResolveAsset(c, p.AssetSymbol)
		if err != nil {
			return nil, err
		}
		return e.reader.TokenBalance(ctx, c, asset.Address, p.WalletAddress)
	}, e.log)

	for _, c := range others {
		if bal := balances[c.CAIP2]; bal != nil && bal.Cmp(raw) >= 0 {
			e.log.Info().Str("from", c.Slug).Str("to", target.Slug).Msg("funds located on another chain, bridging first")
			return c, true, nil
		}
	}
	return chain.Chain{}, false, clierr.New(clierr.CodeInsufficient, fmt.Sprintf(
		"wallet holds less than %s %s on every candidate chain", p.HumanAmount, p.AssetSymbol))
}

// runBridge executes the bridge portion of a plan. Returns a non-nil Result
// when the flow pauses (settlement timeout); nil Result and nil error when the
// transfer arrived and execution should continue.
func (e *Engine) runBridge(ctx context.Context, p *plan.Plan, src, target chain.Chain) (*Result, error) {
	srcAsset, err := chain.ResolveAsset(src, p.AssetSymbol)
	if err != nil {
		return nil, err
	}
	tr := transferFromPlan(p, src, srcAsset.Address)

	err = e.bridge.Run(ctx, tr, bridge.Options{
		PollInterval: e.opts.BridgePollInterval,
		Timeout:      e.opts.BridgeTimeout,
	})
	recordTransfer(p, *tr)
	if err != nil {
		p.Fail(err.Error())
		if saveErr := e.savePlan(p); saveErr != nil {
			e.log.Error().Err(saveErr).Msg("persist failed plan")
		}
		return nil, err
	}

	switch tr.State {
	case bridge.StateArrived:
		for step := p.CurrentStep(); step != nil && (step.Type == plan.StepBridgeSend || step.Type == plan.StepBridgeWait); step = p.CurrentStep() {
			p.Advance()
		}
		if err := e.savePlan(p); err != nil {
			return nil, err
		}
		return nil, nil
	case bridge.StateTimedOut:
		p.Status = plan.StatusTimedOut
		p.Touch()
		if err := e.savePlan(p); err != nil {
			return nil, err
		}
		return &Result{
			Status:        StatusBridgePending,
			Message:       fmt.Sprintf("bridge from %s to %s is still settling", src.Slug, target.Slug),
			NextStep:      fmt.Sprintf("yieldctl plan resume --plan-id %s", p.PlanID),
			StepCompleted: string(plan.StepBridgeSend),
			Plan:          p,
		}, nil
	default:
		return nil, clierr.New(clierr.CodeInternal, fmt.Sprintf("bridge ended in unexpected state %s", tr.State))
	}
}

// finishPlan executes the remaining non-bridge steps and records the ledger
// entry once the plan completes.
func (e *Engine) finishPlan(ctx context.Context, p *plan.Plan, c chain.Chain) (Result, error) {
	lastHash, err := e.executeSteps(ctx, p, c)
	if err != nil {
		return Result{}, err
	}

	entry := ledger.Entry{
		Action:      ledger.Action(p.Action),
		ProtocolID:  p.ProtocolID,
		Chain:       p.ChainID,
		AssetSymbol: p.AssetSymbol,
		HumanAmount: p.HumanAmount,
		RawAmount:   p.RawAmount,
		TxHash:      lastHash,
	}
	if _, err := e.ledger.Record(p.WalletAddress, entry); err != nil {
		// The on-chain action succeeded; a ledger write failure must not
		// report the flow as failed.
		e.log.Error().Err(err).Str("plan", p.PlanID).Msg("ledger record failed after confirmed transaction")
	}

	completed := ""
	if n := len(p.Steps); n > 0 {
		completed = string(p.Steps[n-1].Type)
	}
	return Result{
		Status:        StatusCompleted,
		Message:       fmt.Sprintf("%s of %s %s on %s via %s confirmed", p.Action, p.HumanAmount, p.AssetSymbol, p.ChainSlug, p.ProtocolID),
		StepCompleted: completed,
		Plan:          p,
		TxHash:        lastHash,
	}, nil
}

func (e *Engine) executeSteps(ctx context.Context, p *plan.Plan, c chain.Chain) (string, error) {
	lastHash := ""
	for step := p.CurrentStep(); step != nil; step = p.CurrentStep() {
		switch step.Type {
		case plan.StepApproval:
			if err := e.runStep(ctx, p, c, step); err != nil {
				return "", err
			}
		case plan.StepSupply:
			if err := e.recheckAllowance(ctx, p, c, step); err != nil {
				p.Fail(err.Error())
				if saveErr := e.savePlan(p); saveErr != nil {
					e.log.Error().Err(saveErr).Msg("persist failed plan")
				}
				return "", err
			}
			if err := e.runStep(ctx, p, c, step); err != nil {
				return "", err
			}
		case plan.StepWithdraw:
			if err := e.runStep(ctx, p, c, step); err != nil {
				return "", err
			}
		default:
			return "", clierr.New(clierr.CodeInternal, fmt.Sprintf("unexpected step type %s at cursor", step.Type))
		}
		lastHash = p.Steps[p.Cursor-1].TxHash
	}
	if err := e.savePlan(p); err != nil {
		return "", err
	}
	return lastHash, nil
}

// recheckAllowance guards against the allowance shrinking between plan build
// and submission. Plan build and execution are not atomic.
func (e *Engine) recheckAllowance(ctx context.Context, p *plan.Plan, c chain.Chain, step *plan.Step) error {
	raw, ok := new(big.Int).SetString(p.RawAmount, 10)
	if !ok {
		return clierr.New(clierr.CodeInternal, "plan amount is not a base-units integer")
	}
	allowance, err := e.reader.Allowance(ctx, c, p.AssetAddress, p.WalletAddress, step.Target)
	if err != nil {
		return err
	}
	if allowance.Cmp(raw) < 0 {
		return clierr.New(clierr.CodeApproval, fmt.Sprintf(
			"allowance for %s dropped below the deposit amount since planning; re-run the deposit", p.AssetSymbol))
	}
	return nil
}

func (e *Engine) runStep(ctx context.Context, p *plan.Plan, c chain.Chain, step *plan.Step) error {
	value := strings.TrimSpace(step.Value)
	if value == "" {
		value = "0"
	}
	if err := e.reader.Simulate(ctx, c, p.WalletAddress, step.Target, step.Data); err != nil {
		p.Fail(err.Error())
		if saveErr := e.savePlan(p); saveErr != nil {
			e.log.Error().Err(saveErr).Msg("persist failed plan")
		}
		return err
	}
	step.Status = plan.StepSimulated

	txHash, err := e.submit.Submit(ctx, p.WalletID, step.ChainID, step.Target, step.Data, value)
	if err != nil {
		p.Fail(err.Error())
		if saveErr := e.savePlan(p); saveErr != nil {
			e.log.Error().Err(saveErr).Msg("persist failed plan")
		}
		return err
	}
	step.TxHash = txHash
	step.Status = plan.StepSubmitted
	p.Touch()
	if err := e.savePlan(p); err != nil {
		return err
	}

	if err := e.reader.WaitReceipt(ctx, c, txHash, e.opts.PollInterval, e.opts.StepTimeout); err != nil {
		p.Fail(err.Error())
		if saveErr := e.savePlan(p); saveErr != nil {
			e.log.Error().Err(saveErr).Msg("persist failed plan")
		}
		return err
	}
	p.Advance()
	e.log.Debug().Str("plan", p.PlanID).Str("step", step.StepID).Str("tx", txHash).Msg("step confirmed")
	return e.savePlan(p)
}

func (e *Engine) savePlan(p *plan.Plan) error {
	if err := e.plans.Save(*p); err != nil {
		return clierr.Wrap(clierr.CodeInternal, "persist plan", err)
	}
	return nil
}

// gasBlocked converts a non-ready gas report into a pausing Result. The plan
// stays resumable: an executed auto-swap makes the next attempt pass.
func (e *Engine) gasBlocked(report gas.Report, p *plan.Plan) (Result, bool) {
	if report.Ready {
		return Result{}, false
	}
	if err := e.savePlan(p); err != nil {
		e.log.Error().Err(err).Msg("persist plan before gas pause")
	}
	r := Result{
		Message:  report.Message,
		NextStep: fmt.Sprintf("yieldctl plan resume --plan-id %s", p.PlanID),
		Plan:     p,
		Gas:      &report,
	}
	if report.AutoSwapExecuted {
		r.Status = StatusGasSwapSubmitted
	} else {
		r.Status = StatusGasBlocked
	}
	return r, true
}

func prependBridgeSteps(p *plan.Plan, src, target chain.Chain) {
	steps := []plan.Step{
		{
			StepID:  fmt.Sprintf("%s-bridge-send", p.PlanID),
			Type:    plan.StepBridgeSend,
			Status:  plan.StepPending,
			ChainID: src.CAIP2,
		},
		{
			StepID:  fmt.Sprintf("%s-bridge-wait", p.PlanID),
			Type:    plan.StepBridgeWait,
			Status:  plan.StepPending,
			ChainID: target.CAIP2,
		},
	}
	p.Steps = append(steps, p.Steps...)
	p.Touch()
}

// transferFromPlan reconstructs the bridge transfer from plan state so a
// resumed plan re-polls instead of re-submitting.
func transferFromPlan(p *plan.Plan, src chain.Chain, srcToken string) *bridge.Transfer {
	tr := &bridge.Transfer{
		TransferID:    p.PlanID + "-bridge",
		WalletID:      p.WalletID,
		WalletAddress: p.WalletAddress,
		FromChainID:   src.CAIP2,
		ToChainID:     p.ChainID,
		TokenAddress:  srcToken,
		ToToken:       p.AssetAddress,
		RawAmount:     p.RawAmount,
	}
	if send := findStep(p, plan.StepBridgeSend); send != nil {
		tr.BridgeTo = send.Target
		tr.BridgeData = send.Data
		tr.BridgeValue = send.Value
		tr.SrcTxHash = send.TxHash
	}
	return tr
}

// recordTransfer copies the transfer's quoted payload and source hash into the
// bridge steps so the plan alone suffices to resume.
func recordTransfer(p *plan.Plan, tr bridge.Transfer) {
	send := findStep(p, plan.StepBridgeSend)
	wait := findStep(p, plan.StepBridgeWait)
	if send != nil {
		send.Target = tr.BridgeTo
		send.Data = tr.BridgeData
		send.Value = tr.BridgeValue
		send.TxHash = tr.SrcTxHash
		if tr.SrcTxHash != "" && send.Status == plan.StepPending {
			send.Status = plan.StepSubmitted
		}
	}
	switch tr.State {
	case bridge.StateArrived:
		if send != nil {
			send.Status = plan.StepConfirmed
		}
		if wait != nil {
			wait.Status = plan.StepConfirmed
		}
	case bridge.StateFailed:
		if wait != nil {
			wait.Status = plan.StepFailed
			wait.Error = tr.LastError
		}
	}
	p.Touch()
}

func findStep(p *plan.Plan, kind plan.StepType) *plan.Step {
	for i := range p.Steps {
		if p.Steps[i].Type == kind {
			return &p.Steps[i]
		}
	}
	return nil
}
