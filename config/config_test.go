package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/perpbot/config"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load(writeConfig(t, "strategy:\n  name: momentum\n"))
	require.NoError(t, err)

	assert.Equal(t, 5*time.Minute, cfg.Interval())
	assert.Equal(t, 2.0, cfg.Strategy.Leverage)
	assert.Equal(t, 10.0, cfg.Strategy.CollateralUSDC)
	assert.Equal(t, 3, cfg.Strategy.MaxPositions)
	assert.Equal(t, time.Hour, cfg.BlacklistFor())
	assert.Equal(t, 1.0, cfg.MinCollateral())
	assert.Equal(t, 15*time.Second, cfg.RetryDelay())
	assert.Equal(t, 2, *cfg.Strategy.RetryAttempts)
	assert.Equal(t, 15*time.Second, cfg.OpenDelay())
	assert.Equal(t, time.Duration(0), cfg.MaxHold())
	assert.Equal(t, "json", cfg.Storage.HistoryBackend)
	assert.Equal(t, filepath.Join(".cache", "perpbot.db"), cfg.Storage.DSN)
	assert.Equal(t, "uusdc", cfg.Perps.CollateralDenom)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_ExplicitZeroRetriesAndDelay(t *testing.T) {
	cfg, err := config.Load(writeConfig(t, `
strategy:
  name: basket
  retry_attempts: 0
  open_delay_seconds: 0
  max_hold_hours: 1.5
`))
	require.NoError(t, err)
	assert.Equal(t, 0, *cfg.Strategy.RetryAttempts)
	assert.Equal(t, time.Duration(0), cfg.OpenDelay())
	assert.Equal(t, 90*time.Minute, cfg.MaxHold())
}

func TestLoad_ExplicitZeroMinCollateralAndBlacklist(t *testing.T) {
	cfg, err := config.Load(writeConfig(t, `
strategy:
  name: momentum
  min_collateral: 0
  blacklist_minutes: 0
`))
	require.NoError(t, err)
	assert.Equal(t, 0.0, cfg.MinCollateral())
	assert.Equal(t, time.Duration(0), cfg.BlacklistFor())
	assert.NoError(t, cfg.Validate())
}

func TestLoad_StrategyParams(t *testing.T) {
	cfg, err := config.Load(writeConfig(t, `
strategy:
  name: momentum
  params:
    momentum:
      lookback: 8
      threshold: 0.03
`))
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"lookback": 8, "threshold": 0.03}, cfg.StrategyParams("momentum"))
	assert.Empty(t, cfg.StrategyParams("basket"))
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("STRATEGY", "funding_harvest")
	t.Setenv("INTERVAL", "90")
	t.Setenv("PERPS_PRIVATE_KEY", "abc123")
	t.Setenv("PERPS_LCD", "http://lcd")
	t.Setenv("PERPS_GATEWAY", "http://gw")
	t.Setenv("PERPS_RPC_WS", "ws://rpc/websocket")
	t.Setenv("CACHE_DIR", "/tmp/perpcache")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "json")

	cfg, err := config.Load(writeConfig(t, "strategy:\n  name: momentum\n  interval_seconds: 600\n"))
	require.NoError(t, err)

	assert.Equal(t, "funding_harvest", cfg.Strategy.Name)
	assert.Equal(t, 90*time.Second, cfg.Interval())
	assert.Equal(t, "abc123", cfg.Perps.PrivateKey)
	assert.Equal(t, "http://lcd", cfg.Perps.LCDBase)
	assert.Equal(t, "http://gw", cfg.Perps.GatewayBase)
	assert.Equal(t, "ws://rpc/websocket", cfg.Perps.RPCWebsocket)
	assert.Equal(t, "/tmp/perpcache", cfg.Storage.CacheDir)
	assert.Equal(t, filepath.Join("/tmp/perpcache", "perpbot.db"), cfg.Storage.DSN)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_BadInterval(t *testing.T) {
	t.Setenv("INTERVAL", "5m")
	_, err := config.Load(writeConfig(t, "strategy:\n  name: momentum\n"))
	assert.Error(t, err)
}

func TestLoad_PrivateKeyNotReadFromYAML(t *testing.T) {
	t.Setenv("PERPS_PRIVATE_KEY", "")
	cfg, err := config.Load(writeConfig(t, "perps:\n  private_key: deadbeef\n  PrivateKey: deadbeef\n"))
	require.NoError(t, err)
	assert.Empty(t, cfg.Perps.PrivateKey)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := config.Load(writeConfig(t, "strategy: [unclosed"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg, err := config.Load(writeConfig(t, `
strategy:
  name: momentum
  leverage: -1
  collateral_fraction: 1.5
  retry_attempts: -1
  blacklist_minutes: -5
storage:
  history_backend: postgres
log:
  format: xml
`))
	require.NoError(t, err)

	err = cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{"leverage", "collateral_fraction", "retry_attempts", "blacklist_minutes", "history_backend", "log.format"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestValidateLive(t *testing.T) {
	t.Setenv("PERPS_PRIVATE_KEY", "")
	cfg, err := config.Load(writeConfig(t, "strategy:\n  name: momentum\n"))
	require.NoError(t, err)

	err = cfg.ValidateLive()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PERPS_PRIVATE_KEY")
	assert.Contains(t, err.Error(), "perps.contract")

	cfg.Perps.PrivateKey = "abc"
	cfg.Perps.LCDBase = "http://lcd"
	cfg.Perps.GatewayBase = "http://gw"
	cfg.Perps.Contract = "neutron1perps"
	assert.NoError(t, cfg.ValidateLive())
}

func TestExampleConfigIsValid(t *testing.T) {
	t.Setenv("STRATEGY", "")
	cfg, err := config.Load("config.yaml")
	require.NoError(t, err)
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, "momentum", cfg.Strategy.Name)
	assert.Equal(t, 2, cfg.Strategy.OpenWaitBlocks)
}
