package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/moose-code/snubb/internal/chains"
)

func main() {
	root := &cobra.Command{
		Use:          "snubb",
		Short:        "Token approval exposure scanner",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	scanCmd := &cobra.Command{
		Use:   "scan [address]",
		Short: "Scan chains for outstanding token approvals",
		Args:  cobra.ExactArgs(1),
		RunE:  runScan,
	}

	scanCmd.Flags().String("chains", "default", "chain selection: preset name (default, all), id, or comma list of ids")
	scanCmd.Flags().Duration("call-timeout", 30*time.Second, "per-call timeout for backend and RPC requests")
	scanCmd.Flags().Int("max-retries", 5, "maximum retry attempts")
	scanCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	scanCmd.Flags().Bool("metadata", true, "fetch token name/symbol/decimals via RPC")
	scanCmd.Flags().String("out", "", "optional JSONL output path for the report")
	scanCmd.Flags().String("pg-dsn", "", "optional Postgres DSN for report persistence")
	scanCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(scanCmd)

	listCmd := &cobra.Command{
		Use:   "list-chains",
		Short: "List supported chains",
		RunE:  runListChains,
	}

	root.AddCommand(listCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runListChains(cmd *cobra.Command, _ []string) error {
	for _, ch := range chains.All() {
		fmt.Fprintf(cmd.OutOrStdout(), "%8d  %s\n", ch.ID, ch.Name)
	}
	return nil
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
