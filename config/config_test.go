package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meenmo/tonarv/config"
)

func TestDefault(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "JPN", cfg.Curve.Calendar)
	assert.Equal(t, 2, cfg.Curve.SettlementLag)
	assert.Equal(t, 50, cfg.Factor.Window)
	assert.Equal(t, 5, cfg.Factor.DiagComponents)
	assert.InDelta(t, 0.8, cfg.Factor.MinCompleteRatio, 1e-15)
	assert.Equal(t, 5, cfg.Factor.TopN)
	assert.Equal(t, 1, cfg.Strategy.HedgeMode)
	assert.Equal(t, []int{7, 10}, cfg.Strategy.HedgeTenors)
	assert.Equal(t, 1, cfg.Strategy.HoldingDays)
	assert.Zero(t, cfg.Strategy.EntryThresholdBP)
	assert.InDelta(t, 20.0, cfg.Strategy.SwingThresholdBP, 1e-15)
	assert.Equal(t, "TONARV_PG_DSN", cfg.Output.PostgresDSNEnv)
}

func TestLoad_EmptyPathReturnsDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)
}

func TestLoad_OverridesDefaults(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
curve:
  holidays_csv: data/jpn_holidays.csv
factor:
  window: 30
strategy:
  hedge_mode: 2
  hedge_tenors: [5, 9]
  entry_threshold_bp: 2.5
output:
  dir: results
workers: 8
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, 30, cfg.Factor.Window)
	assert.Equal(t, 2, cfg.Strategy.HedgeMode)
	assert.Equal(t, []int{5, 9}, cfg.Strategy.HedgeTenors)
	assert.InDelta(t, 2.5, cfg.Strategy.EntryThresholdBP, 1e-15)
	assert.Equal(t, "results", cfg.Output.Dir)
	assert.Equal(t, 8, cfg.Workers)
	assert.Equal(t, "data/jpn_holidays.csv", cfg.Curve.HolidaysCSV)

	// Untouched sections keep their defaults.
	assert.Equal(t, "JPN", cfg.Curve.Calendar)
	assert.InDelta(t, 0.8, cfg.Factor.MinCompleteRatio, 1e-15)
}

func TestLoad_RejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"tiny window":       "factor:\n  window: 1\n",
		"bad ratio":         "factor:\n  min_complete_ratio: 1.5\n",
		"bad hedge mode":    "strategy:\n  hedge_mode: 3\n",
		"few hedge tenors":  "strategy:\n  hedge_mode: 2\n  hedge_tenors: [7]\n",
		"zero clip bound":   "strategy:\n  hedge_clip_bound: 0\n",
		"negative lag":      "curve:\n  settlement_lag: -1\n",
		"zero workers":      "workers: 0\n",
		"malformed yaml":    "strategy: [\n",
	}
	for name, yaml := range cases {
		yaml := yaml
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			path := filepath.Join(t.TempDir(), "config.yaml")
			require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))
			_, err := config.Load(path)
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()

	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestMappedConfigs(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Strategy.HedgeMode = 2
	cfg.Strategy.EntryThresholdBP = 3

	fc := cfg.FactorModelConfig()
	assert.Equal(t, cfg.Factor.Window, fc.Window)
	assert.Equal(t, cfg.Factor.DiagComponents, fc.DiagComponents)
	assert.InDelta(t, cfg.Factor.MinCompleteRatio, fc.MinCompleteRatio, 1e-15)

	bc := cfg.BacktestConfig()
	assert.Equal(t, 2, bc.HedgeMode)
	assert.Equal(t, cfg.Strategy.HedgeTenors, bc.HedgeTenors)
	assert.InDelta(t, 3.0, bc.EntryThresholdBP, 1e-15)
	assert.InDelta(t, cfg.Strategy.HedgeClipBound, bc.Hedge.Bound, 1e-15)
	assert.InDelta(t, cfg.Strategy.HedgeEpsilon, bc.Hedge.Epsilon, 1e-20)
}
