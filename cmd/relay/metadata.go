package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"swapRelay/internal/chain"
	"swapRelay/internal/config"
	"swapRelay/internal/ledger/erc20"
	"swapRelay/internal/model"
	"swapRelay/internal/pool"
	"swapRelay/internal/pricing"
	"swapRelay/internal/storage/postgres"
)

func runMetadata(cmd *cobra.Command, _ []string) error {
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
	formula, err := pricing.ParseFormula(cfg.Formula)
	if err != nil {
		return err
	}

	var (
		self   common.Address
		signer *chain.Signer
	)
	if cfg.PrivateKey != "" {
		signer, err = chain.NewSigner(cfg.PrivateKey)
		if err != nil {
			return err
		}
		self = signer.Address()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chainClient, err := chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer chainClient.Close()

	p, err := pool.New(ctx, pool.Options{
		Owner:    cfg.Owner,
		AssetA:   cfg.AssetA,
		AssetB:   cfg.AssetB,
		Self:     self,
		Resolver: erc20.NewResolver(chainClient, signer, logger),
		Formula:  formula,
		Logger:   logger,
	})
	if err != nil {
		return err
	}
	if _, err := p.Initialized().Wait(ctx); err != nil {
		return err
	}

	tokens, err := p.MetadataTokens()
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(tokens); err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}

	if cfg.PGDSN != "" {
		store, err := openStore(ctx, cfg.PGDSN)
		if err != nil {
			return err
		}
		defer store.Close()
		if err := upsertPool(ctx, store, chainClient, p, formula); err != nil {
			return fmt.Errorf("upsert pool: %w", err)
		}
	}
	return nil
}

func upsertPool(ctx context.Context, store *postgres.Store, chainClient *chain.Client, p *pool.Pool, formula pricing.Formula) error {
	chainID, err := chainClient.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("get chain id: %w", err)
	}
	if !chainID.IsUint64() {
		return fmt.Errorf("chain id does not fit in uint64: %s", chainID)
	}
	a, b, err := p.ReadMetadata()
	if err != nil {
		return err
	}
	state := p.State()
	return store.UpsertPool(ctx, model.PoolRecord{
		ChainID:   chainID.Uint64(),
		Address:   p.Self().Hex(),
		Owner:     state.Owner().Hex(),
		TokenA:    state.AssetA().Hex(),
		TokenB:    state.AssetB().Hex(),
		SymbolA:   a.Symbol,
		SymbolB:   b.Symbol,
		DecimalsA: a.Decimals,
		DecimalsB: b.Decimals,
		Formula:   string(formula),
	})
}
