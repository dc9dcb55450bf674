package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(2000), cfg.BatchSize)
	assert.Equal(t, 15*time.Second, cfg.PollInterval)
	assert.True(t, cfg.CheckpointEnabled)
	assert.Equal(t, "snapshot", cfg.Formula)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadPrecedence(t *testing.T) {
	dir := t.TempDir()
	cfgFile := filepath.Join(dir, "relay.yaml")
	require.NoError(t, os.WriteFile(cfgFile, []byte("rpc: http://file\nowner: \"0x01\"\nbatch-size: 10\n"), 0o644))

	t.Setenv("RELAY_OWNER", "0x02")
	t.Setenv("RELAY_PG_DSN", "postgres://env")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Uint64("batch-size", 2000, "")
	flags.String("formula", "snapshot", "")
	require.NoError(t, flags.Parse([]string{"--formula", "invariant"}))

	cfg, err := Load(cfgFile, flags)
	require.NoError(t, err)
	assert.Equal(t, "http://file", cfg.RPCURL)
	assert.Equal(t, "0x02", cfg.Owner)
	assert.Equal(t, "postgres://env", cfg.PGDSN)
	assert.Equal(t, uint64(10), cfg.BatchSize)
	assert.Equal(t, "invariant", cfg.Formula)
}

func TestLoadEnvFile(t *testing.T) {
	chdir(t, t.TempDir())
	require.NoError(t, os.WriteFile(".env", []byte("RELAY_LISTEN=127.0.0.1:9100\nRELAY_LOG_LEVEL=debug\n"), 0o644))
	t.Setenv("RELAY_LOG_LEVEL", "warn")
	t.Cleanup(func() { os.Unsetenv("RELAY_LISTEN") })

	require.NoError(t, LoadEnvFile(".env"))

	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9100", cfg.Listen)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestLoadEnvFileMissing(t *testing.T) {
	require.NoError(t, LoadEnvFile(filepath.Join(t.TempDir(), "absent.env")))
	require.NoError(t, LoadEnvFile(""))
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	require.Error(t, err)
}

func TestLoadSimulate(t *testing.T) {
	chdir(t, t.TempDir())

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.StringSlice("deposit", nil, "")
	require.NoError(t, flags.Parse([]string{"--deposit", "a:100,B:50"}))

	cfg, err := LoadSimulate("", flags)
	require.NoError(t, err)
	assert.Equal(t, "1000", cfg.SeedA)
	assert.Equal(t, "500", cfg.SeedB)
	assert.Equal(t, []Deposit{{Asset: "a", Amount: "100"}, {Asset: "b", Amount: "50"}}, cfg.Deposits)
}

func TestParseDeposit(t *testing.T) {
	for _, raw := range []string{"100", "c:10", "a:"} {
		_, err := ParseDeposit(raw)
		assert.Error(t, err, raw)
	}
}

func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}
