// Package app wires the engine behind the cobra command surface. Commands are
// thin: parse flags, call the engine or discovery service, emit one JSON
// envelope on stdout. Logs go to stderr.
package app

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/yieldline/yieldctl/internal/adapter"
	"github.com/yieldline/yieldctl/internal/bridge"
	"github.com/yieldline/yieldctl/internal/config"
	"github.com/yieldline/yieldctl/internal/custody"
	"github.com/yieldline/yieldctl/internal/discovery"
	"github.com/yieldline/yieldctl/internal/engine"
	clierr "github.com/yieldline/yieldctl/internal/errors"
	"github.com/yieldline/yieldctl/internal/feedcache"
	"github.com/yieldline/yieldctl/internal/gas"
	"github.com/yieldline/yieldctl/internal/httpx"
	"github.com/yieldline/yieldctl/internal/ledger"
	"github.com/yieldline/yieldctl/internal/plan"
	"github.com/yieldline/yieldctl/internal/swap"
	"github.com/yieldline/yieldctl/internal/version"
)

type Runner struct {
	stdout io.Writer
	stderr io.Writer
}

func NewRunner() *Runner {
	return NewRunnerWithWriters(os.Stdout, os.Stderr)
}

func NewRunnerWithWriters(stdout, stderr io.Writer) *Runner {
	return &Runner{stdout: stdout, stderr: stderr}
}

type runtimeState struct {
	runner   *Runner
	flags    config.GlobalFlags
	settings config.Settings
	log      zerolog.Logger

	httpClient  *httpx.Client
	feedCache   *feedcache.Store
	disc        *discovery.Service
	planStore   *plan.Store
	ledgerStore *ledger.Store
	reader      *engine.RPCReader
	adapters    *adapter.Registry
	eng         *engine.Engine
}

func (r *Runner) Run(args []string) int {
	state := &runtimeState{runner: r, log: zerolog.Nop()}
	root := state.newRootCommand()
	root.SetArgs(args)
	root.SetOut(r.stdout)
	root.SetErr(r.stderr)
	root.SilenceUsage = true
	root.SilenceErrors = true

	err := root.Execute()
	state.closeStores()
	if err == nil {
		return 0
	}
	state.emitError(err)
	return clierr.ExitCode(err)
}

func (s *runtimeState) newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   version.CLIName,
		Short: "Cross-chain yield deposit and bridge orchestration",
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "help" {
				return nil
			}
			settings, err := config.Load(s.flags)
			if err != nil {
				return clierr.Wrap(clierr.CodeUsage, "load configuration", err)
			}
			s.settings = settings

			level, err := zerolog.ParseLevel(settings.LogLevel)
			if err != nil {
				return clierr.Wrap(clierr.CodeUsage, "parse log level", err)
			}
			s.log = zerolog.New(s.runner.stderr).With().Timestamp().Logger().Level(level)
			return nil
		},
	}
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return clierr.Wrap(clierr.CodeUsage, "parse flags", err)
	})

	cmd.PersistentFlags().StringVar(&s.flags.ConfigPath, "config", "", "Path to config file")
	cmd.PersistentFlags().StringVar(&s.flags.Timeout, "timeout", "", "Provider request timeout")
	cmd.PersistentFlags().IntVar(&s.flags.Retries, "retries", -1, "Retries per provider request")
	cmd.PersistentFlags().StringVar(&s.flags.LogLevel, "log-level", "", "Log level (debug|info|warn|error)")
	cmd.PersistentFlags().StringVar(&s.flags.CustodyURL, "custody-url", "", "Custody service base URL")
	cmd.PersistentFlags().StringVar(&s.flags.LedgerDir, "ledger-dir", "", "Earnings ledger directory")
	cmd.PersistentFlags().BoolVar(&s.flags.NoCache, "no-cache", false, "Disable the feed cache")

	cmd.AddCommand(s.newDiscoverCommand())
	cmd.AddCommand(s.newDepositCommand())
	cmd.AddCommand(s.newWithdrawCommand())
	cmd.AddCommand(s.newEarningsCommand())
	cmd.AddCommand(s.newGasCommand())
	cmd.AddCommand(s.newPlanCommand())
	cmd.AddCommand(s.newVersionCommand())
	return cmd
}

func (s *runtimeState) http() *httpx.Client {
	if s.httpClient == nil {
		s.httpClient = httpx.New(s.settings.Timeout, s.settings.Retries)
	}
	return s.httpClient
}

func (s *runtimeState) ensureDiscovery() (*discovery.Service, error) {
	if s.disc != nil {
		return s.disc, nil
	}
	if s.settings.CacheEnabled && s.feedCache == nil {
		store, err := feedcache.Open(s.settings.CachePath, s.settings.CacheLockPath)
		if err != nil {
			return nil, clierr.Wrap(clierr.CodeInternal, "open feed cache", err)
		}
		s.feedCache = store
	}
	feed := discovery.NewFeedClient(s.http(), s.settings.YieldsURL, s.feedCache, s.settings.CacheTTL, s.log)
	s.disc = discovery.NewService(feed, s.log)
	return s.disc, nil
}

func (s *runtimeState) ensureEngine() (*engine.Engine, error) {
	if s.eng != nil {
		return s.eng, nil
	}
	if strings.TrimSpace(s.settings.CustodyURL) == "" {
		return nil, clierr.New(clierr.CodeUsage, "custody base url is not configured (set custody.base_url, YIELD_CUSTODY_URL, or --custody-url)")
	}
	disc, err := s.ensureDiscovery()
	if err != nil {
		return nil, err
	}
	planStore, err := plan.OpenStore(s.settings.PlanStorePath, s.settings.PlanLockPath)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "open plan store", err)
	}
	s.planStore = planStore
	ledgerStore, err := ledger.NewStore(s.settings.LedgerDir)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "open ledger", err)
	}
	s.ledgerStore = ledgerStore

	custodyClient := custody.New(s.http(), s.settings.CustodyURL, s.settings.CustodyAPIKey)
	submitter := engine.CustodySubmitter{Client: custodyClient}
	s.reader = engine.NewRPCReader(s.settings.RPCOverrides)
	s.adapters = adapter.NewRegistry()

	prices := gas.NewPriceClient(s.http(), s.settings.PricesURL)
	swapClient := swap.New(s.http(), s.settings.SwapURL)
	gasEngine := gas.NewEngine(s.reader, prices, swapClient, submitter, s.log)

	builder := plan.NewBuilder(disc, s.adapters, s.reader, gasEngine, dustRaw(s.settings.DustRaw), s.log)

	bridgeClient := bridge.NewClient(s.http(), s.settings.BridgeURL)
	orchestrator := bridge.NewOrchestrator(bridgeClient, s.reader, submitter, s.reader, func(tr bridge.Transfer) {
		s.log.Debug().Str("transfer", tr.TransferID).Str("state", string(tr.State)).Msg("bridge transition")
	}, s.log)

	s.eng = engine.New(engine.Deps{
		Wallets:  custodyClient,
		Builder:  builder,
		Gas:      gasEngine,
		Bridge:   orchestrator,
		Reader:   s.reader,
		Submit:   submitter,
		Plans:    planStore,
		Ledger:   ledgerStore,
		Adapters: s.adapters,
		Log:      s.log,
		Options: engine.Options{
			BridgePollInterval: s.settings.BridgePollInterval,
			BridgeTimeout:      s.settings.BridgeTimeout,
		},
	})
	return s.eng, nil
}

func (s *runtimeState) closeStores() {
	if s.feedCache != nil {
		_ = s.feedCache.Close()
	}
	if s.planStore != nil {
		_ = s.planStore.Close()
	}
	if s.ledgerStore != nil {
		s.ledgerStore.Close()
	}
	if s.reader != nil {
		s.reader.Close()
	}
}

type envelope struct {
	OK      bool           `json:"ok"`
	Command string         `json:"command,omitempty"`
	Data    any            `json:"data,omitempty"`
	Error   *envelopeError `json:"error,omitempty"`
}

type envelopeError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (s *runtimeState) emit(cmd *cobra.Command, data any) error {
	env := envelope{OK: true, Command: trimRootPath(cmd.CommandPath()), Data: data}
	buf, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return clierr.Wrap(clierr.CodeInternal, "encode output", err)
	}
	fmt.Fprintln(s.runner.stdout, string(buf))
	return nil
}

func (s *runtimeState) emitError(err error) {
	env := envelope{OK: false, Error: &envelopeError{Code: clierr.ExitCode(err), Message: err.Error()}}
	buf, marshalErr := json.MarshalIndent(env, "", "  ")
	if marshalErr != nil {
		fmt.Fprintln(s.runner.stderr, err.Error())
		return
	}
	fmt.Fprintln(s.runner.stdout, string(buf))
}

func trimRootPath(path string) string {
	parts := strings.SplitN(path, " ", 2)
	if len(parts) == 2 {
		return parts[1]
	}
	return path
}
