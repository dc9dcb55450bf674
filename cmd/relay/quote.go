package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"swapRelay/internal/config"
	"swapRelay/internal/pricing"
	"swapRelay/internal/u128"
)

type quoteOutput struct {
	Formula      string `json:"formula"`
	PreBalanceIn string `json:"pre_balance_in"`
	K            string `json:"k"`
	AmountOut    string `json:"amount_out"`
}

func runQuote(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadQuote(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	formula, err := pricing.ParseFormula(cfg.Formula)
	if err != nil {
		return err
	}
	balanceIn, err := u128.Parse(cfg.BalanceIn)
	if err != nil {
		return fmt.Errorf("balance-in: %w", err)
	}
	balanceOut, err := u128.Parse(cfg.BalanceOut)
	if err != nil {
		return fmt.Errorf("balance-out: %w", err)
	}
	received, err := u128.Parse(cfg.Received)
	if err != nil {
		return fmt.Errorf("received: %w", err)
	}

	quote, err := formula.AmountOut(balanceIn, balanceOut, received)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(quoteOutput{
		Formula:      string(formula),
		PreBalanceIn: quote.PreBalanceIn.Dec(),
		K:            quote.K.Dec(),
		AmountOut:    quote.AmountOut.Dec(),
	})
}
