package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/moose-code/snubb/internal/chains"
	"github.com/moose-code/snubb/internal/config"
	"github.com/moose-code/snubb/internal/hypersync"
	"github.com/moose-code/snubb/internal/model"
	"github.com/moose-code/snubb/internal/report"
	"github.com/moose-code/snubb/internal/scan"
	"github.com/moose-code/snubb/internal/storage"
	"github.com/moose-code/snubb/internal/storage/postgres"
	"github.com/moose-code/snubb/internal/token"
)

func runScan(cmd *cobra.Command, args []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	target := args[0]
	if !common.IsHexAddress(target) {
		return fmt.Errorf("invalid address: %s", target)
	}
	target = model.NormalizeAddress(target)

	chainSet, err := chains.Resolve(cfg.Chains)
	if err != nil {
		return err
	}
	if len(chainSet) == 0 {
		return fmt.Errorf("no resolvable chains in selection %q", cfg.Chains)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	scanCfg := scan.Config{
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: cfg.RetryBackoff,
		CallTimeout:  cfg.CallTimeout,
	}
	orch := scan.NewOrchestrator(target, chainSet, func(ch chains.Chain) scan.Backend {
		return scan.NewBackend(hypersync.NewClient(ch.HyperSync, cfg.CallTimeout))
	}, scanCfg, logger)

	logger.Info("scan start",
		zap.String("address", target),
		zap.Int("chains", len(chainSet)),
		zap.String("selection", cfg.Chains),
	)

	done := make(chan struct{})
	go reportProgress(orch, logger, done)
	results := orch.Run(ctx)
	close(done)

	if err := ctx.Err(); err != nil {
		return err
	}

	approvals := report.Build(results)

	if cfg.Metadata && len(approvals) > 0 {
		enricher := token.NewEnricher(token.NewCache(), cfg.CallTimeout, logger)
		metas := enricher.Enrich(ctx, approvals, chainSet)
		approvals = token.Attach(approvals, metas)
	}

	printReport(cmd.OutOrStdout(), approvals)

	sinks, closeSinks := buildSinks(ctx, cfg, target, logger)
	defer closeSinks()
	for _, sink := range sinks {
		if err := sink.PutApprovals(ctx, approvals); err != nil {
			logger.Warn("report export failed", zap.Error(err))
		}
	}

	return nil
}

// buildSinks assembles the configured report destinations. A sink that cannot
// be opened is logged and skipped so the remaining exports still run.
func buildSinks(ctx context.Context, cfg config.Config, target string, logger *zap.Logger) ([]storage.Sink, func()) {
	var sinks []storage.Sink
	closers := func() {}
	if cfg.Out != "" {
		sinks = append(sinks, storage.NewJsonlSink(cfg.Out))
	}
	if cfg.PgDSN != "" {
		store, err := postgres.NewStore(ctx, cfg.PgDSN, target)
		if err != nil {
			logger.Warn("postgres connect failed", zap.Error(err))
		} else if err := store.EnsureSchema(ctx); err != nil {
			logger.Warn("postgres schema setup failed", zap.Error(err))
			store.Close()
		} else {
			sinks = append(sinks, store)
			closers = store.Close
		}
	}
	return sinks, closers
}

func reportProgress(orch *scan.Orchestrator, logger *zap.Logger, done <-chan struct{}) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			snaps := orch.Snapshots()
			var complete int
			var events uint64
			var eps float64
			for _, s := range snaps {
				if s.IsComplete {
					complete++
				}
				events += s.TotalEvents
				eps += s.EventsPerSec()
			}
			logger.Info("scan progress",
				zap.Int("complete", complete),
				zap.Int("chains", len(snaps)),
				zap.Uint64("events", events),
				zap.Float64("events_per_sec", eps),
			)
		}
	}
}

func printReport(w io.Writer, approvals []model.ReconciledApproval) {
	if len(approvals) == 0 {
		fmt.Fprintln(w, "No outstanding approvals found.")
		return
	}

	fmt.Fprintf(w, "Outstanding approvals: %d\n", len(approvals))
	var lastChain uint64
	first := true
	for _, a := range approvals {
		if first || a.ChainID != lastChain {
			name := fmt.Sprintf("chain %d", a.ChainID)
			if ch, ok := chains.ByID(a.ChainID); ok {
				name = ch.Name
			}
			fmt.Fprintf(w, "\n%s (chain %d)\n", name, a.ChainID)
			lastChain = a.ChainID
			first = false
		}
		fmt.Fprintf(w, "  %s  spender %s  remaining %s\n", tokenLabel(a), a.Spender, remainingLabel(a))
	}
}

func tokenLabel(a model.ReconciledApproval) string {
	if a.Token != nil && a.Token.Symbol != "" {
		return a.Token.Symbol
	}
	return a.TokenAddress
}

func remainingLabel(a model.ReconciledApproval) string {
	if a.IsUnlimited {
		return "Unlimited"
	}
	if a.Token != nil {
		return model.FormatAmount(a.RemainingApproval, a.Token.Decimals)
	}
	return a.RemainingApproval.String()
}
