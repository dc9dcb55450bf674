package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
)

// SimulateConfig holds settings for the in-memory simulation.
type SimulateConfig struct {
	SeedA    string
	SeedB    string
	Deposits []Deposit
	Formula  string
	Journal  string
	LogLevel string
}

// Deposit is one simulated swap request, written as "a:100" or "b:25".
type Deposit struct {
	Asset  string
	Amount string
}

// LoadSimulate merges config file, environment variables, and flags into SimulateConfig.
func LoadSimulate(cfgFile string, flags *pflag.FlagSet) (SimulateConfig, error) {
	v, err := newViper(cfgFile, flags, map[string]interface{}{
		"seed-a":    "1000",
		"seed-b":    "500",
		"formula":   "snapshot",
		"log-level": "warn",
	})
	if err != nil {
		return SimulateConfig{}, err
	}

	deposits := make([]Deposit, 0)
	for _, raw := range getStringSlice(v, "deposit") {
		d, err := ParseDeposit(raw)
		if err != nil {
			return SimulateConfig{}, err
		}
		deposits = append(deposits, d)
	}

	return SimulateConfig{
		SeedA:    v.GetString("seed-a"),
		SeedB:    v.GetString("seed-b"),
		Deposits: deposits,
		Formula:  v.GetString("formula"),
		Journal:  v.GetString("journal"),
		LogLevel: v.GetString("log-level"),
	}, nil
}

// ParseDeposit parses "asset:amount" where asset is a or b.
func ParseDeposit(raw string) (Deposit, error) {
	asset, amount, ok := strings.Cut(strings.TrimSpace(raw), ":")
	if !ok {
		return Deposit{}, fmt.Errorf("invalid deposit %q, want asset:amount", raw)
	}
	asset = strings.ToLower(strings.TrimSpace(asset))
	if asset != "a" && asset != "b" {
		return Deposit{}, fmt.Errorf("invalid deposit asset %q, want a or b", asset)
	}
	amount = strings.TrimSpace(amount)
	if amount == "" {
		return Deposit{}, fmt.Errorf("invalid deposit %q: empty amount", raw)
	}
	return Deposit{Asset: asset, Amount: amount}, nil
}

// QuoteConfig holds settings for offline pricing.
type QuoteConfig struct {
	BalanceIn  string
	BalanceOut string
	Received   string
	Formula    string
}

// LoadQuote merges config file, environment variables, and flags into QuoteConfig.
func LoadQuote(cfgFile string, flags *pflag.FlagSet) (QuoteConfig, error) {
	v, err := newViper(cfgFile, flags, map[string]interface{}{
		"formula": "snapshot",
	})
	if err != nil {
		return QuoteConfig{}, err
	}

	return QuoteConfig{
		BalanceIn:  v.GetString("balance-in"),
		BalanceOut: v.GetString("balance-out"),
		Received:   v.GetString("received"),
		Formula:    v.GetString("formula"),
	}, nil
}
