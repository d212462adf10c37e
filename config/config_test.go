package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/predmarket/config"
	"github.com/alejandrodnm/predmarket/internal/domain"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"LOG_LEVEL", "LOG_FORMAT", "PREDMARKET_DSN", "PREDMARKET_RESOLVER"} {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, common.HexToAddress(config.DefaultMarketAddress), cfg.MarketAddress())
	assert.Equal(t, common.HexToAddress(config.DefaultResolverAddress), cfg.ResolverAddress())
	assert.Equal(t, "predmarket.db", cfg.Storage.DSN)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)

	amts, err := cfg.MarketAmounts()
	require.NoError(t, err)
	assert.Equal(t, domain.Units(100).String(), amts.InitialLiquidity.String())
	assert.Equal(t, domain.Units(100).String(), amts.LiquidityParam.String())
	assert.Equal(t, "1000000000000", amts.ShareTick.String())

	start, err := cfg.StartTime()
	require.NoError(t, err)
	assert.True(t, start.IsZero())
}

func TestLoad_FromYAML(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
market:
  resolver: "0x000000000000000000000000000000000000BEEF"
  initial_liquidity: "250.5"
  liquidity_param: "50"
simulation:
  start: "2026-03-01T12:00:00Z"
  steps_per_second: 2.5
storage:
  dsn: ":memory:"
log:
  level: debug
  format: json
`)
	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, common.HexToAddress("0x000000000000000000000000000000000000BEEF"), cfg.ResolverAddress())
	assert.Equal(t, ":memory:", cfg.Storage.DSN)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.InDelta(t, 2.5, cfg.Simulation.StepsPerSecond, 1e-9)

	amts, err := cfg.MarketAmounts()
	require.NoError(t, err)
	assert.Equal(t, "250500000000000000000", amts.InitialLiquidity.String())
	assert.Equal(t, domain.Units(50).String(), amts.LiquidityParam.String())

	start, err := cfg.StartTime()
	require.NoError(t, err)
	assert.True(t, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC).Equal(start))
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("PREDMARKET_DSN", "/tmp/other.db")
	t.Setenv("PREDMARKET_RESOLVER", " 0x0000000000000000000000000000000000000B0B ")

	cfg, err := config.Load(writeConfig(t, "log:\n  level: debug\n"))
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "/tmp/other.db", cfg.Storage.DSN)
	assert.Equal(t, common.HexToAddress("0x0000000000000000000000000000000000000B0B"), cfg.ResolverAddress())
}

func TestLoad_Invalid(t *testing.T) {
	clearEnv(t)
	cases := map[string]string{
		"bad resolver":   "market:\n  resolver: \"bob\"\n",
		"bad level":      "log:\n  level: loud\n",
		"bad format":     "log:\n  format: xml\n",
		"zero liquidity": "market:\n  liquidity_param: \"0\"\n",
		"not a number":   "market:\n  initial_liquidity: \"lots\"\n",
		"bad start":      "simulation:\n  start: \"yesterday\"\n",
		"negative pace":  "simulation:\n  steps_per_second: -1\n",
		"bad yaml":       "market: [\n",
	}
	for name, body := range cases {
		_, err := config.Load(writeConfig(t, body))
		assert.Error(t, err, name)
	}

	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoad_ShippedConfig(t *testing.T) {
	clearEnv(t)
	cfg, err := config.Load("config.yaml")
	require.NoError(t, err)
	assert.NotEmpty(t, cfg.Simulation.Scenario)
}
