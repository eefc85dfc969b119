package plan

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/yieldline/yieldctl/internal/adapter"
	"github.com/yieldline/yieldctl/internal/amount"
	"github.com/yieldline/yieldctl/internal/chain"
	"github.com/yieldline/yieldctl/internal/discovery"
	clierr "github.com/yieldline/yieldctl/internal/errors"
	"github.com/yieldline/yieldctl/internal/gas"
)

// DefaultDustRaw is the position size below which a withdraw treats the
// position as nonexistent.
var DefaultDustRaw = big.NewInt(10)

// Reader covers the authoritative on-chain reads a build needs. These errors
// propagate: allowance and balance gate correctness.
type Reader interface {
	Allowance(ctx context.Context, c chain.Chain, token, owner, spender string) (*big.Int, error)
	ReceiptBalance(ctx context.Context, c chain.Chain, pool adapter.Pool, owner string) (*big.Int, error)
}

// GasEstimator prices the gas of one operation in USD. Advisory: estimate
// failures degrade to zero.
type GasEstimator interface {
	EstimateUSD(ctx context.Context, c chain.Chain, op gas.OperationKind) (float64, error)
}

type OpportunitySource interface {
	ListOpportunities(ctx context.Context, assetSymbol string, f discovery.Filters) []discovery.Opportunity
}

type Builder struct {
	opps     OpportunitySource
	adapters *adapter.Registry
	reader   Reader
	gasEst   GasEstimator
	dustRaw  *big.Int
	log      zerolog.Logger
}

func NewBuilder(opps OpportunitySource, adapters *adapter.Registry, reader Reader, gasEst GasEstimator, dustRaw *big.Int, log zerolog.Logger) *Builder {
	if dustRaw == nil || dustRaw.Sign() <= 0 {
		dustRaw = DefaultDustRaw
	}
	return &Builder{opps: opps, adapters: adapters, reader: reader, gasEst: gasEst, dustRaw: dustRaw, log: log}
}

// BuildDeposit selects the best opportunity across the candidate chains and
// assembles a deposit plan for it. A nil plan with nil error means no
// actionable opportunity, which is an expected outcome, not a failure.
func (b *Builder) BuildDeposit(ctx context.Context, walletID, walletAddr, assetSymbol, humanAmount string, candidateChains []string) (*Plan, error) {
	chains := make([]chain.Chain, 0, len(candidateChains))
	names := make([]string, 0, len(candidateChains))
	for _, in := range candidateChains {
		c, err := chain.Parse(in)
		if err != nil {
			return nil, err
		}
		chains = append(chains, c)
		names = append(names, c.Name)
	}

	ranked := b.opps.ListOpportunities(ctx, assetSymbol, discovery.Filters{Chains: names})
	for _, opp := range ranked {
		c, ok := matchChain(chains, opp.Chain)
		if !ok {
			continue
		}
		a, ok := b.adapters.Lookup(opp.ProtocolID)
		if !ok {
			continue
		}
		pool, ok := a.ResolvePool(c.CAIP2, opp.Symbol)
		if !ok {
			pool, ok = a.ResolvePool(c.CAIP2, assetSymbol)
		}
		if !ok {
			continue
		}
		asset, err := chain.ResolveAsset(c, pool.BaseAsset)
		if err != nil {
			continue
		}
		return b.assembleDeposit(ctx, walletID, walletAddr, humanAmount, c, opp, a, pool, asset)
	}
	return nil, nil
}

func (b *Builder) assembleDeposit(ctx context.Context, walletID, walletAddr, humanAmount string, c chain.Chain, opp discovery.Opportunity, a adapter.Adapter, pool adapter.Pool, asset chain.Asset) (*Plan, error) {
	raw, err := amount.ToRawUnits(humanAmount, asset.Decimals)
	if err != nil {
		return nil, err
	}
	if raw.Sign() <= 0 {
		return nil, clierr.New(clierr.CodeUsage, "deposit amount must be positive")
	}

	allowance, err := b.reader.Allowance(ctx, c, asset.Address, walletAddr, pool.Target)
	if err != nil {
		return nil, err
	}
	needsApproval := allowance.Cmp(raw) < 0

	call, err := a.EncodeSupply(adapter.SupplyParams{
		Pool:         pool,
		AssetAddress: asset.Address,
		RawAmount:    raw,
		OnBehalfOf:   walletAddr,
	})
	if err != nil {
		return nil, err
	}

	gasUSD := 0.0
	if b.gasEst != nil {
		if v, err := b.gasEst.EstimateUSD(ctx, c, gas.OpSupply); err == nil {
			gasUSD = v
		} else {
			b.log.Debug().Err(err).Msg("gas estimate unavailable for plan")
		}
	}

	now := time.Now().UTC().Format(time.RFC3339)
	p := &Plan{
		PlanID:          NewPlanID(),
		Action:          ActionDeposit,
		Status:          StatusPlanned,
		WalletID:        walletID,
		WalletAddress:   walletAddr,
		ProtocolID:      a.Protocol(),
		ChainSlug:       c.Slug,
		ChainID:         c.CAIP2,
		AssetSymbol:     asset.Symbol,
		AssetAddress:    asset.Address,
		HumanAmount:     strings.TrimSpace(humanAmount),
		RawAmount:       raw.String(),
		APY:             opp.TotalAPY,
		LiquidityUSD:    opp.LiquidityUSD,
		TargetContract:  call.To,
		Calldata:        call.Data,
		NeedsApproval:   needsApproval,
		EstimatedGasUSD: gasUSD,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if needsApproval {
		p.ApprovalSpender = pool.Target
		approve := adapter.ApproveCall(asset.Address, pool.Target, raw)
		p.Steps = append(p.Steps, Step{
			StepID:  fmt.Sprintf("%s-approve", p.PlanID),
			Type:    StepApproval,
			Status:  StepPending,
			ChainID: c.CAIP2,
			Target:  approve.To,
			Data:    approve.Data,
			Value:   "0",
		})
	}
	p.Steps = append(p.Steps, Step{
		StepID:  fmt.Sprintf("%s-supply", p.PlanID),
		Type:    StepSupply,
		Status:  StepPending,
		ChainID: c.CAIP2,
		Target:  call.To,
		Data:    call.Data,
		Value:   "0",
	})
	return p, nil
}

// BuildWithdraw assembles a withdraw plan against an existing position. Nil
// plan, nil error when there is no position above the dust threshold.
// Requested amounts above the deposited balance are a usage error, never
// clamped. Withdraw plans never require approval.
func (b *Builder) BuildWithdraw(ctx context.Context, walletID, walletAddr, assetSymbol, amountOrAll, chainInput, protocolID string) (*Plan, error) {
	c, err := chain.Parse(chainInput)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(protocolID) == "" {
		protocolID = "aave-v3"
	}
	a, ok := b.adapters.Lookup(protocolID)
	if !ok {
		return nil, clierr.New(clierr.CodeUsage, fmt.Sprintf("unknown protocol: %s", protocolID))
	}
	pool, ok := a.ResolvePool(c.CAIP2, assetSymbol)
	if !ok {
		return nil, nil
	}
	asset, err := chain.ResolveAsset(c, pool.BaseAsset)
	if err != nil {
		return nil, err
	}

	deposited, err := b.reader.ReceiptBalance(ctx, c, pool, walletAddr)
	if err != nil {
		return nil, err
	}
	if deposited.Cmp(b.dustRaw) <= 0 {
		return nil, nil
	}

	all := isWithdrawAll(amountOrAll)
	var raw *big.Int
	if !all {
		raw, err = amount.ToRawUnits(amountOrAll, asset.Decimals)
		if err != nil {
			return nil, err
		}
		if raw.Sign() <= 0 {
			return nil, clierr.New(clierr.CodeUsage, "withdraw amount must be positive")
		}
		if raw.Cmp(deposited) > 0 {
			return nil, clierr.New(clierr.CodeInsufficient, fmt.Sprintf(
				"requested %s exceeds deposited balance %s %s", amountOrAll,
				amount.FormatUnits(deposited, asset.Decimals), asset.Symbol))
		}
	}

	call, err := a.EncodeWithdraw(adapter.WithdrawParams{
		Pool:         pool,
		AssetAddress: asset.Address,
		RawAmount:    raw,
		Receiver:     walletAddr,
		Owner:        walletAddr,
		All:          all,
	})
	if err != nil {
		return nil, err
	}

	gasUSD := 0.0
	if b.gasEst != nil {
		if v, err := b.gasEst.EstimateUSD(ctx, c, gas.OpWithdraw); err == nil {
			gasUSD = v
		}
	}

	human := strings.TrimSpace(amountOrAll)
	rawStr := call.RawAmount.String()
	if all {
		human = "all"
		// The max sentinel belongs in the calldata only. The plan carries the
		// actual position size so the ledger records what was withdrawn.
		rawStr = deposited.String()
	}
	now := time.Now().UTC().Format(time.RFC3339)
	p := &Plan{
		PlanID:          NewPlanID(),
		Action:          ActionWithdraw,
		Status:          StatusPlanned,
		WalletID:        walletID,
		WalletAddress:   walletAddr,
		ProtocolID:      a.Protocol(),
		ChainSlug:       c.Slug,
		ChainID:         c.CAIP2,
		AssetSymbol:     asset.Symbol,
		AssetAddress:    asset.Address,
		HumanAmount:     human,
		RawAmount:       rawStr,
		TargetContract:  call.To,
		Calldata:        call.Data,
		NeedsApproval:   false,
		EstimatedGasUSD: gasUSD,
		WithdrawAll:     all,
		CreatedAt:       now,
		UpdatedAt:       now,
		Steps: []Step{{
			Type:    StepWithdraw,
			Status:  StepPending,
			ChainID: c.CAIP2,
			Target:  call.To,
			Data:    call.Data,
			Value:   "0",
		}},
	}
	p.Steps[0].StepID = fmt.Sprintf("%s-withdraw", p.PlanID)
	return p, nil
}

func isWithdrawAll(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "all", "max":
		return true
	}
	return false
}

func matchChain(candidates []chain.Chain, feedName string) (chain.Chain, bool) {
	for _, c := range candidates {
		if c.Matches(feedName) {
			return c, true
		}
	}
	return chain.Chain{}, false
}
