// Package plan turns a discovery result into a concrete, executable sequence
// of on-chain steps and persists its progress.
package plan

import (
	"time"

	"github.com/google/uuid"
)

type Action string

const (
	ActionDeposit  Action = "deposit"
	ActionWithdraw Action = "withdraw"
)

type Status string

const (
	StatusPlanned   Status = "planned"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusTimedOut  Status = "timed_out"
)

type StepType string

const (
	StepApproval   StepType = "approval"
	StepBridgeSend StepType = "bridge_send"
	StepBridgeWait StepType = "bridge_wait"
	StepSupply     StepType = "supply"
	StepWithdraw   StepType = "withdraw"
)

type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepSimulated StepStatus = "simulated"
	StepSubmitted StepStatus = "submitted"
	StepConfirmed StepStatus = "confirmed"
	StepFailed    StepStatus = "failed"
)

// Step is one independent on-chain transaction (or poll) within a plan.
type Step struct {
	StepID  string     `json:"step_id"`
	Type    StepType   `json:"type"`
	Status  StepStatus `json:"status"`
	ChainID string     `json:"chain_id"`
	Target  string     `json:"target,omitempty"`
	Data    string     `json:"data,omitempty"`
	Value   string     `json:"value,omitempty"`
	TxHash  string     `json:"tx_hash,omitempty"`
	Error   string     `json:"error,omitempty"`
}

// Plan is immutable once built; execution mutates only step statuses and the
// cursor. Allowance must be re-read before reuse since plan build and
// submission are not atomic.
type Plan struct {
	PlanID          string  `json:"plan_id"`
	Action          Action  `json:"action"`
	Status          Status  `json:"status"`
	WalletID        string  `json:"wallet_id"`
	WalletAddress   string  `json:"wallet_address"`
	ProtocolID      string  `json:"protocol_id"`
	ChainSlug       string  `json:"chain"`
	ChainID         string  `json:"chain_id"`
	AssetSymbol     string  `json:"asset_symbol"`
	AssetAddress    string  `json:"asset_address"`
	HumanAmount     string  `json:"human_amount"`
	RawAmount       string  `json:"raw_amount"`
	APY             float64 `json:"apy,omitempty"`
	LiquidityUSD    float64 `json:"liquidity_usd,omitempty"`
	TargetContract  string  `json:"target_contract"`
	Calldata        string  `json:"calldata"`
	NeedsApproval   bool    `json:"needs_approval"`
	ApprovalSpender string  `json:"approval_spender,omitempty"`
	EstimatedGasUSD float64 `json:"estimated_gas_usd,omitempty"`
	WithdrawAll     bool    `json:"withdraw_all,omitempty"`
	SourceChainID   string  `json:"source_chain_id,omitempty"`
	Cursor          int     `json:"cursor"`
	CreatedAt       string  `json:"created_at"`
	UpdatedAt       string  `json:"updated_at"`
	Steps           []Step  `json:"steps"`
}

func NewPlanID() string {
	return "plan_" + uuid.NewString()
}

func (p *Plan) Touch() {
	p.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
}

// CurrentStep returns the step at the cursor, or nil when the plan is done.
func (p *Plan) CurrentStep() *Step {
	if p.Cursor < 0 || p.Cursor >= len(p.Steps) {
		return nil
	}
	return &p.Steps[p.Cursor]
}

// Advance confirms the current step and moves the cursor forward.
func (p *Plan) Advance() {
	if step := p.CurrentStep(); step != nil {
		step.Status = StepConfirmed
	}
	p.Cursor++
	if p.Cursor >= len(p.Steps) {
		p.Status = StatusCompleted
	}
	p.Touch()
}

// Fail marks the current step and the plan failed with the given message.
func (p *Plan) Fail(msg string) {
	if step := p.CurrentStep(); step != nil {
		step.Status = StepFailed
		step.Error = msg
	}
	p.Status = StatusFailed
	p.Touch()
}
