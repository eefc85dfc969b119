package app

import (
	"context"
	"math/big"
	"strings"

	"github.com/spf13/cobra"

	"github.com/yieldline/yieldctl/internal/discovery"
	"github.com/yieldline/yieldctl/internal/engine"
	clierr "github.com/yieldline/yieldctl/internal/errors"
	"github.com/yieldline/yieldctl/internal/gas"
	"github.com/yieldline/yieldctl/internal/plan"
	"github.com/yieldline/yieldctl/internal/version"
)

func dustRaw(v int64) *big.Int {
	if v <= 0 {
		return nil
	}
	return big.NewInt(v)
}

func (s *runtimeState) newDiscoverCommand() *cobra.Command {
	var asset string
	var chains, protocols []string
	var minLiquidity float64
	var limit int
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Rank lending opportunities for an asset",
		RunE: func(cmd *cobra.Command, _ []string) error {
			disc, err := s.ensureDiscovery()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), s.settings.Timeout)
			defer cancel()
			opps := disc.ListOpportunities(ctx, asset, discovery.Filters{
				Chains:          chains,
				ProtocolIDs:     protocols,
				MinLiquidityUSD: minLiquidity,
			})
			if limit > 0 && len(opps) > limit {
				opps = opps[:limit]
			}
			return s.emit(cmd, map[string]any{
				"asset":         strings.ToUpper(strings.TrimSpace(asset)),
				"opportunities": opps,
			})
		},
	}
	cmd.Flags().StringVar(&asset, "asset", "", "Asset symbol (e.g. USDC)")
	cmd.Flags().StringSliceVar(&chains, "chains", nil, "Chain allow-list (display names or slugs)")
	cmd.Flags().StringSliceVar(&protocols, "protocols", nil, "Protocol id allow-list")
	cmd.Flags().Float64Var(&minLiquidity, "min-liquidity", 0, "Minimum pool liquidity in USD")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum opportunities returned")
	_ = cmd.MarkFlagRequired("asset")
	return cmd
}

func (s *runtimeState) newDepositCommand() *cobra.Command {
	var walletID, asset, amount string
	var chains []string
	cmd := &cobra.Command{
		Use:   "deposit",
		Short: "Deposit an asset into the best yield opportunity",
		RunE: func(cmd *cobra.Command, _ []string) error {
			eng, err := s.ensureEngine()
			if err != nil {
				return err
			}
			res, err := eng.Deposit(cmd.Context(), engine.DepositRequest{
				WalletID:    walletID,
				AssetSymbol: asset,
				HumanAmount: amount,
				Chains:      chains,
			})
			if err != nil {
				return err
			}
			return s.emit(cmd, res)
		},
	}
	cmd.Flags().StringVar(&walletID, "wallet-id", "", "Custody wallet identifier")
	cmd.Flags().StringVar(&asset, "asset", "", "Asset symbol (e.g. USDC)")
	cmd.Flags().StringVar(&amount, "amount", "", "Decimal amount to deposit")
	cmd.Flags().StringSliceVar(&chains, "chains", nil, "Candidate chains (slug or CAIP-2)")
	_ = cmd.MarkFlagRequired("wallet-id")
	_ = cmd.MarkFlagRequired("asset")
	_ = cmd.MarkFlagRequired("amount")
	_ = cmd.MarkFlagRequired("chains")
	return cmd
}

func (s *runtimeState) newWithdrawCommand() *cobra.Command {
	var walletID, asset, amount, chainArg, protocol string
	cmd := &cobra.Command{
		Use:   "withdraw",
		Short: "Withdraw a deposited position",
		RunE: func(cmd *cobra.Command, _ []string) error {
			eng, err := s.ensureEngine()
			if err != nil {
				return err
			}
			res, err := eng.Withdraw(cmd.Context(), engine.WithdrawRequest{
				WalletID:    walletID,
				AssetSymbol: asset,
				Amount:      amount,
				Chain:       chainArg,
				ProtocolID:  protocol,
			})
			if err != nil {
				return err
			}
			return s.emit(cmd, res)
		},
	}
	cmd.Flags().StringVar(&walletID, "wallet-id", "", "Custody wallet identifier")
	cmd.Flags().StringVar(&asset, "asset", "", "Asset symbol (e.g. USDC)")
	cmd.Flags().StringVar(&amount, "amount", "", `Decimal amount, or "all"`)
	cmd.Flags().StringVar(&chainArg, "chain", "", "Chain (slug or CAIP-2)")
	cmd.Flags().StringVar(&protocol, "protocol", "", "Protocol id (default aave-v3)")
	_ = cmd.MarkFlagRequired("wallet-id")
	_ = cmd.MarkFlagRequired("asset")
	_ = cmd.MarkFlagRequired("amount")
	_ = cmd.MarkFlagRequired("chain")
	return cmd
}

func (s *runtimeState) newEarningsCommand() *cobra.Command {
	var walletID, asset, chainArg, protocol string
	cmd := &cobra.Command{
		Use:   "earnings",
		Short: "Reconcile recorded deposits against the on-chain position",
		RunE: func(cmd *cobra.Command, _ []string) error {
			eng, err := s.ensureEngine()
			if err != nil {
				return err
			}
			report, err := eng.Earnings(cmd.Context(), engine.EarningsRequest{
				WalletID:    walletID,
				AssetSymbol: asset,
				Chain:       chainArg,
				ProtocolID:  protocol,
			})
			if err != nil {
				return err
			}
			return s.emit(cmd, report)
		},
	}
	cmd.Flags().StringVar(&walletID, "wallet-id", "", "Custody wallet identifier")
	cmd.Flags().StringVar(&asset, "asset", "", "Asset symbol (e.g. USDC)")
	cmd.Flags().StringVar(&chainArg, "chain", "", "Chain (slug or CAIP-2)")
	cmd.Flags().StringVar(&protocol, "protocol", "", "Protocol id (default aave-v3)")
	_ = cmd.MarkFlagRequired("wallet-id")
	_ = cmd.MarkFlagRequired("asset")
	_ = cmd.MarkFlagRequired("chain")
	return cmd
}

func (s *runtimeState) newGasCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "gas",
		Short: "Gas sufficiency tooling",
	}

	var walletID, chainArg, op string
	checkCmd := &cobra.Command{
		Use:   "check",
		Short: "Check gas sufficiency and auto-swap on shortfall",
		RunE: func(cmd *cobra.Command, _ []string) error {
			kind, err := parseOperationKind(op)
			if err != nil {
				return err
			}
			eng, err := s.ensureEngine()
			if err != nil {
				return err
			}
			report, err := eng.GasCheck(cmd.Context(), walletID, chainArg, kind)
			if err != nil {
				return err
			}
			return s.emit(cmd, report)
		},
	}
	checkCmd.Flags().StringVar(&walletID, "wallet-id", "", "Custody wallet identifier")
	checkCmd.Flags().StringVar(&chainArg, "chain", "", "Chain (slug or CAIP-2)")
	checkCmd.Flags().StringVar(&op, "op", "supply", "Operation kind (approve|supply|withdraw|swap|bridge)")
	_ = checkCmd.MarkFlagRequired("wallet-id")
	_ = checkCmd.MarkFlagRequired("chain")

	root.AddCommand(checkCmd)
	return root
}

func (s *runtimeState) newPlanCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "plan",
		Short: "Inspect and resume persisted plans",
	}

	var statusPlanID string
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show one plan and its step cursor",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := s.ensureEngine(); err != nil {
				return err
			}
			p, err := s.planStore.Get(statusPlanID)
			if err != nil {
				return err
			}
			return s.emit(cmd, p)
		},
	}
	statusCmd.Flags().StringVar(&statusPlanID, "plan-id", "", "Plan identifier")
	_ = statusCmd.MarkFlagRequired("plan-id")

	var listStatus string
	var listLimit int
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List persisted plans",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := s.ensureEngine(); err != nil {
				return err
			}
			plans, err := s.planStore.List(plan.Status(strings.ToLower(strings.TrimSpace(listStatus))), listLimit)
			if err != nil {
				return err
			}
			return s.emit(cmd, map[string]any{"plans": plans})
		},
	}
	listCmd.Flags().StringVar(&listStatus, "status", "", "Filter by plan status")
	listCmd.Flags().IntVar(&listLimit, "limit", 20, "Maximum plans returned")

	var resumePlanID string
	resumeCmd := &cobra.Command{
		Use:   "resume",
		Short: "Resume a paused plan from its persisted cursor",
		RunE: func(cmd *cobra.Command, _ []string) error {
			eng, err := s.ensureEngine()
			if err != nil {
				return err
			}
			res, err := eng.Resume(cmd.Context(), resumePlanID)
			if err != nil {
				return err
			}
			return s.emit(cmd, res)
		},
	}
	resumeCmd.Flags().StringVar(&resumePlanID, "plan-id", "", "Plan identifier")
	_ = resumeCmd.MarkFlagRequired("plan-id")

	root.AddCommand(statusCmd)
	root.AddCommand(listCmd)
	root.AddCommand(resumeCmd)
	return root
}

func (s *runtimeState) newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return s.emit(cmd, map[string]string{
				"name":    version.CLIName,
				"version": version.Version,
				"commit":  version.Commit,
			})
		},
	}
}

func parseOperationKind(v string) (gas.OperationKind, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "approve":
		return gas.OpApprove, nil
	case "supply", "":
		return gas.OpSupply, nil
	case "withdraw":
		return gas.OpWithdraw, nil
	case "swap":
		return gas.OpSwap, nil
	case "bridge":
		return gas.OpBridge, nil
	}
	return "", clierr.New(clierr.CodeUsage, "operation must be one of approve, supply, withdraw, swap, bridge")
}
