package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"swapRelay/internal/config"
	"swapRelay/internal/ledger"
	"swapRelay/internal/ledger/memledger"
	"swapRelay/internal/model"
	"swapRelay/internal/pool"
	"swapRelay/internal/pricing"
	"swapRelay/internal/storage"
	"swapRelay/internal/u128"
)

var (
	simOwner  = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	simTrader = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	simRelay  = common.HexToAddress("0x00000000000000000000000000000000000000c3")
	simTokenA = common.HexToAddress("0x000000000000000000000000000000000000aaaa")
	simTokenB = common.HexToAddress("0x000000000000000000000000000000000000bbbb")
)

type simulationStep struct {
	Step       int    `json:"step"`
	Asset      string `json:"asset"`
	Deposit    string `json:"deposit"`
	Error      string `json:"error,omitempty"`
	RelayA     string `json:"relay_a"`
	RelayB     string `json:"relay_b"`
	TraderA    string `json:"trader_a"`
	TraderB    string `json:"trader_b"`
	RelayAUnit string `json:"relay_a_units"`
	RelayBUnit string `json:"relay_b_units"`
}

func runSimulate(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadSimulate(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	formula, err := pricing.ParseFormula(cfg.Formula)
	if err != nil {
		return err
	}
	seedA, err := u128.Parse(cfg.SeedA)
	if err != nil {
		return fmt.Errorf("seed-a: %w", err)
	}
	seedB, err := u128.Parse(cfg.SeedB)
	if err != nil {
		return fmt.Errorf("seed-b: %w", err)
	}

	var journal pool.Journal
	if cfg.Journal != "" {
		journal = storage.NewJsonlJournal(cfg.Journal)
	}

	sim, err := newSimulation(cmd.Context(), formula, journal, logger)
	if err != nil {
		return err
	}
	if err := sim.seed(cmd.Context(), seedA, seedB); err != nil {
		return err
	}

	for i, d := range cfg.Deposits {
		amount, err := u128.Parse(d.Amount)
		if err != nil {
			return fmt.Errorf("deposit %d: %w", i+1, err)
		}
		step, err := sim.deposit(cmd.Context(), d.Asset, amount)
		if err != nil {
			return fmt.Errorf("deposit %d: %w", i+1, err)
		}
		step.Step = i + 1
		if err := writeStep(cmd.OutOrStdout(), step); err != nil {
			return err
		}
	}
	return nil
}

type simulation struct {
	pool *pool.Pool
	ledA *memledger.Ledger
	ledB *memledger.Ledger
}

func newSimulation(ctx context.Context, formula pricing.Formula, journal pool.Journal, logger *zap.Logger) (*simulation, error) {
	ledA := memledger.New(simTokenA, model.TokenMeta{Symbol: "SIMA", Name: "Simulated A", Decimals: 6}, logger)
	ledB := memledger.New(simTokenB, model.TokenMeta{Symbol: "SIMB", Name: "Simulated B", Decimals: 6}, logger)
	deposit := u128.From(pool.OutboundDeposit)
	ledA.RequireDeposit(deposit)
	ledB.RequireDeposit(deposit)

	p, err := pool.New(ctx, pool.Options{
		Owner:    simOwner.Hex(),
		AssetA:   simTokenA.Hex(),
		AssetB:   simTokenB.Hex(),
		Self:     simRelay,
		Resolver: memledger.NewRegistry(ledA, ledB).Resolver(simRelay),
		Formula:  formula,
		Journal:  journal,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}
	if _, err := p.Initialized().Wait(ctx); err != nil {
		return nil, err
	}
	ledA.Register(simRelay, p)
	ledB.Register(simRelay, p)

	return &simulation{pool: p, ledA: ledA, ledB: ledB}, nil
}

func (s *simulation) seed(ctx context.Context, a, b *uint256.Int) error {
	for _, led := range []struct {
		ledger *memledger.Ledger
		amount *uint256.Int
	}{{s.ledA, a}, {s.ledB, b}} {
		if led.amount.IsZero() {
			continue
		}
		if err := led.ledger.Mint(simOwner, led.amount); err != nil {
			return err
		}
		_, err := led.ledger.TransferCall(ctx, simOwner, ledger.TransferRequest{
			Receiver: simRelay,
			Amount:   led.amount,
			Message:  "seed",
			Deposit:  u128.From(pool.OutboundDeposit),
		})
		if err != nil {
			return fmt.Errorf("seed %s: %w", led.ledger.Metadata().Symbol, err)
		}
	}
	return nil
}

func (s *simulation) deposit(ctx context.Context, asset string, amount *uint256.Int) (simulationStep, error) {
	led := s.ledA
	if asset == "b" {
		led = s.ledB
	}
	if err := led.Mint(simTrader, amount); err != nil {
		return simulationStep{}, err
	}
	receipt, err := led.TransferCall(ctx, simTrader, ledger.TransferRequest{
		Receiver: simRelay,
		Amount:   amount,
		Message:  "swap",
		Deposit:  u128.From(pool.OutboundDeposit),
	})
	if err != nil {
		return simulationStep{}, err
	}

	step := simulationStep{
		Asset:      asset,
		Deposit:    amount.Dec(),
		RelayA:     s.ledA.Balance(simRelay).Dec(),
		RelayB:     s.ledB.Balance(simRelay).Dec(),
		TraderA:    s.ledA.Balance(simTrader).Dec(),
		TraderB:    s.ledB.Balance(simTrader).Dec(),
		RelayAUnit: s.ledA.Metadata().Format(s.ledA.Balance(simRelay)),
		RelayBUnit: s.ledB.Metadata().Format(s.ledB.Balance(simRelay)),
	}
	if receipt.CallbackErr != nil {
		step.Error = receipt.CallbackErr.Error()
	}
	return step, nil
}

func writeStep(w io.Writer, step simulationStep) error {
	line, err := json.Marshal(step)
	if err != nil {
		return fmt.Errorf("marshal step: %w", err)
	}
	_, err = fmt.Fprintln(w, string(line))
	return err
}
