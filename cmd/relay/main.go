package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"swapRelay/internal/api"
	"swapRelay/internal/chain"
	"swapRelay/internal/config"
	"swapRelay/internal/ledger/erc20"
	"swapRelay/internal/pool"
	"swapRelay/internal/pricing"
	"swapRelay/internal/storage"
	"swapRelay/internal/storage/postgres"
	"swapRelay/internal/telemetry"
	"swapRelay/internal/watcher"
)

func main() {
	root := &cobra.Command{
		Use:          "relay",
		Short:        "Two-asset constant-product swap relay",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")
	root.PersistentFlags().String("env-file", ".env", "dotenv file exported before reading config")
	root.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		envFile, _ := cmd.Flags().GetString("env-file")
		return config.LoadEnvFile(envFile)
	}

	root.AddCommand(newRunCommand(), newMetadataCommand(), newQuoteCommand(), newSimulateCommand())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRunCommand() *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Watch deposits to the relay and execute swaps",
		RunE:  runRelay,
	}

	runCmd.Flags().String("rpc", "", "RPC URL")
	runCmd.Flags().String("private-key", "", "hex private key of the relay account")
	runCmd.Flags().String("owner", "", "owner address (deposits from it never swap)")
	runCmd.Flags().String("asset-a", "", "token address of asset A")
	runCmd.Flags().String("asset-b", "", "token address of asset B")
	runCmd.Flags().Uint64("from", 0, "start block (inclusive)")
	runCmd.Flags().Uint64("to", 0, "end block (inclusive), 0 follows the head")
	runCmd.Flags().Uint64("batch-size", 2000, "blocks per batch")
	runCmd.Flags().Duration("poll-interval", 15*time.Second, "head polling interval, 0 stops after catching up")
	runCmd.Flags().String("checkpoint", "./data/checkpoint.json", "checkpoint file path")
	runCmd.Flags().Bool("checkpoint-enabled", true, "enable checkpointing")
	runCmd.Flags().Int("max-retries", 5, "maximum retry attempts")
	runCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	runCmd.Flags().String("journal", "./data/swaps.jsonl", "swap journal JSONL path, empty disables")
	runCmd.Flags().String("pg-dsn", "", "Postgres DSN for swap journal, pool row and checkpoint")
	runCmd.Flags().String("formula", "snapshot", "pricing formula (snapshot, invariant)")
	runCmd.Flags().String("listen", "", "HTTP address for /healthz, /metadata_tokens and /metrics, empty disables")
	runCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	return runCmd
}

func newMetadataCommand() *cobra.Command {
	metadataCmd := &cobra.Command{
		Use:   "metadata",
		Short: "Initialize pool metadata from both ledgers and print it",
		RunE:  runMetadata,
	}

	metadataCmd.Flags().String("rpc", "", "RPC URL")
	metadataCmd.Flags().String("private-key", "", "optional relay key, used as the pool address")
	metadataCmd.Flags().String("owner", "", "owner address")
	metadataCmd.Flags().String("asset-a", "", "token address of asset A")
	metadataCmd.Flags().String("asset-b", "", "token address of asset B")
	metadataCmd.Flags().String("pg-dsn", "", "Postgres DSN, upserts the pool row when set")
	metadataCmd.Flags().String("formula", "snapshot", "pricing formula recorded with the pool row")
	metadataCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	return metadataCmd
}

func newQuoteCommand() *cobra.Command {
	quoteCmd := &cobra.Command{
		Use:   "quote",
		Short: "Price a deposit against given post-deposit balances",
		RunE:  runQuote,
	}

	quoteCmd.Flags().String("balance-in", "", "pool balance of the deposited asset, deposit included")
	quoteCmd.Flags().String("balance-out", "", "pool balance of the other asset")
	quoteCmd.Flags().String("received", "", "deposited amount")
	quoteCmd.Flags().String("formula", "snapshot", "pricing formula (snapshot, invariant)")

	return quoteCmd
}

func newSimulateCommand() *cobra.Command {
	simulateCmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run deposits through the swap flow on in-memory ledgers",
		RunE:  runSimulate,
	}

	simulateCmd.Flags().String("seed-a", "1000", "owner-seeded balance of asset A")
	simulateCmd.Flags().String("seed-b", "500", "owner-seeded balance of asset B")
	simulateCmd.Flags().StringSlice("deposit", nil, "deposits as asset:amount, e.g. a:100,b:25")
	simulateCmd.Flags().String("formula", "snapshot", "pricing formula (snapshot, invariant)")
	simulateCmd.Flags().String("journal", "", "optional swap journal JSONL path")
	simulateCmd.Flags().String("log-level", "warn", "log level (debug, info, warn, error)")

	return simulateCmd
}

func runRelay(cmd *cobra.Command, _ []string) error {
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

	if cfg.RPCURL == "" {
		return fmt.Errorf("rpc url is required")
	}
	if cfg.PrivateKey == "" {
		return fmt.Errorf("private key is required")
	}
	formula, err := pricing.ParseFormula(cfg.Formula)
	if err != nil {
		return err
	}
	warnFormula(logger, formula)
	tokens, err := watcher.ParseAddresses([]string{cfg.AssetA, cfg.AssetB})
	if err != nil {
		return err
	}
	if len(tokens) != 2 {
		return fmt.Errorf("asset-a and asset-b are required")
	}

	signer, err := chain.NewSigner(cfg.PrivateKey)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chainClient, err := chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer chainClient.Close()

	metrics := telemetry.New()
	var (
		journal    = storage.Tee{metrics}
		store      *postgres.Store
		checkpoint watcher.Checkpointer
	)
	if cfg.Journal != "" {
		journal = append(journal, storage.NewJsonlJournal(cfg.Journal))
	}
	if cfg.PGDSN != "" {
		store, err = openStore(ctx, cfg.PGDSN)
		if err != nil {
			return err
		}
		defer store.Close()
		journal = append(journal, store)
	}
	if cfg.CheckpointEnabled {
		if store != nil {
			checkpoint = watcher.NewStoreCheckpoint(store, "relay:"+signer.Address().Hex())
		} else {
			checkpoint = watcher.NewFileCheckpoint(cfg.Checkpoint)
		}
	}

	resolver := erc20.NewResolver(chainClient, signer, logger)
	p, err := pool.New(ctx, pool.Options{
		Owner:    cfg.Owner,
		AssetA:   cfg.AssetA,
		AssetB:   cfg.AssetB,
		Self:     signer.Address(),
		Resolver: resolver,
		Formula:  formula,
		Journal:  journal,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	// swaps do not depend on metadata, so a failed initialization is only reported
	go func() {
		if _, err := p.Initialized().Wait(ctx); err != nil {
			logger.Error("pool metadata unavailable", zap.Error(err))
			return
		}
		if store != nil {
			if err := upsertPool(ctx, store, chainClient, p, formula); err != nil {
				logger.Warn("upsert pool row failed", zap.Error(err))
			}
		}
	}()

	if cfg.Listen != "" {
		server := api.NewServer(cfg.Listen, p, metrics.Registry(), logger)
		go func() {
			if err := server.Run(ctx); err != nil {
				logger.Error("http server stopped", zap.Error(err))
			}
		}()
	}

	runner := watcher.NewRunner(watcher.RunConfig{
		FromBlock:    cfg.FromBlock,
		ToBlock:      cfg.ToBlock,
		Tokens:       tokens,
		Relay:        signer.Address(),
		BatchSize:    cfg.BatchSize,
		PollInterval: cfg.PollInterval,
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: cfg.RetryBackoff,
	}, chainClient, p, resolver, checkpoint, logger)

	logger.Info("relay start",
		zap.String("rpc", cfg.RPCURL),
		zap.String("relay", signer.Address().Hex()),
		zap.Uint64("from", cfg.FromBlock),
		zap.Uint64("to", cfg.ToBlock),
		zap.Uint64("batch_size", cfg.BatchSize),
		zap.String("formula", string(formula)),
		zap.String("journal", cfg.Journal),
		zap.Bool("postgres", store != nil),
		zap.String("listen", cfg.Listen),
		zap.Bool("checkpoint_enabled", cfg.CheckpointEnabled),
	)

	return runner.Run(ctx)
}

// warnFormula flags the snapshot formula, which prices every swap at zero
// and keeps deposits without paying out.
func warnFormula(logger *zap.Logger, formula pricing.Formula) {
	if formula != pricing.FormulaSnapshot {
		return
	}
	logger.Warn("snapshot formula pays out nothing on live ledgers, set formula=invariant to pay the constant-product amount",
		zap.String("formula", string(formula)),
	)
}

func openStore(ctx context.Context, dsn string) (*postgres.Store, error) {
	store, err := postgres.NewStore(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := store.EnsureSchema(ctx); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
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
