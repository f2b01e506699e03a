// Package config loads the analytics configuration from YAML.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/meenmo/tonarv/backtest"
	"github.com/meenmo/tonarv/factor"
	"github.com/meenmo/tonarv/hedge"
)

// Config is the full configuration surface of the pipeline.
type Config struct {
	Curve    CurveConfig    `yaml:"curve"`
	Factor   FactorConfig   `yaml:"factor"`
	Strategy StrategyConfig `yaml:"strategy"`
	Output   OutputConfig   `yaml:"output"`
	Workers  int            `yaml:"workers"`
}

// CurveConfig sets bootstrap conventions. HolidaysCSV optionally names a
// CSV file of holiday dates loaded into the calendar at startup; without it
// the calendar observes weekends only.
type CurveConfig struct {
	Calendar      string `yaml:"calendar"`
	SettlementLag int    `yaml:"settlement_lag"`
	HolidaysCSV   string `yaml:"holidays_csv"`
}

// FactorConfig sets the rolling model parameters.
type FactorConfig struct {
	Window           int     `yaml:"window"`
	DiagComponents   int     `yaml:"diag_components"`
	MinCompleteRatio float64 `yaml:"min_complete_ratio"`
	TopN             int     `yaml:"top_n"`
}

// StrategyConfig sets the backtest variant and guards.
type StrategyConfig struct {
	HedgeMode        int     `yaml:"hedge_mode"`
	HedgeTenors      []int   `yaml:"hedge_tenors"`
	HoldingDays      int     `yaml:"holding_days"`
	EntryThresholdBP float64 `yaml:"entry_threshold_bp"`
	SwingThresholdBP float64 `yaml:"swing_threshold_bp"`
	HedgeClipBound   float64 `yaml:"hedge_clip_bound"`
	HedgeEpsilon     float64 `yaml:"hedge_epsilon"`
}

// OutputConfig sets result sinks. PostgresDSNEnv names the environment
// variable holding the connection string; persistence stays off when the
// variable is unset or empty.
type OutputConfig struct {
	Dir            string `yaml:"dir"`
	PostgresDSNEnv string `yaml:"postgres_dsn_env"`
}

// Default returns the production parameter set.
func Default() *Config {
	return &Config{
		Curve: CurveConfig{Calendar: "JPN", SettlementLag: 2},
		Factor: FactorConfig{
			Window:           50,
			DiagComponents:   5,
			MinCompleteRatio: 0.8,
			TopN:             5,
		},
		Strategy: StrategyConfig{
			HedgeMode:        1,
			HedgeTenors:      []int{7, 10},
			HoldingDays:      1,
			SwingThresholdBP: 20,
			HedgeClipBound:   10,
			HedgeEpsilon:     1e-4,
		},
		Output:  OutputConfig{Dir: "out", PostgresDSNEnv: "TONARV_PG_DSN"},
		Workers: 4,
	}
}

// Load reads YAML from path over the defaults. An empty path returns the
// defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config YAML: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects parameter combinations the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Factor.Window < 2 {
		return fmt.Errorf("factor.window must be at least 2, got %d", c.Factor.Window)
	}
	if c.Factor.MinCompleteRatio <= 0 || c.Factor.MinCompleteRatio > 1 {
		return fmt.Errorf("factor.min_complete_ratio must be in (0, 1], got %g", c.Factor.MinCompleteRatio)
	}
	if c.Strategy.HedgeMode != 1 && c.Strategy.HedgeMode != 2 {
		return fmt.Errorf("strategy.hedge_mode must be 1 or 2, got %d", c.Strategy.HedgeMode)
	}
	if len(c.Strategy.HedgeTenors) < c.Strategy.HedgeMode {
		return fmt.Errorf("strategy.hedge_tenors needs %d entries, got %d",
			c.Strategy.HedgeMode, len(c.Strategy.HedgeTenors))
	}
	if c.Strategy.HedgeClipBound <= 0 {
		return fmt.Errorf("strategy.hedge_clip_bound must be positive, got %g", c.Strategy.HedgeClipBound)
	}
	if c.Curve.SettlementLag < 0 {
		return fmt.Errorf("curve.settlement_lag must be non-negative, got %d", c.Curve.SettlementLag)
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	return nil
}

// FactorModelConfig maps onto the factor package's configuration.
func (c *Config) FactorModelConfig() factor.Config {
	return factor.Config{
		Window:           c.Factor.Window,
		DiagComponents:   c.Factor.DiagComponents,
		MinCompleteRatio: c.Factor.MinCompleteRatio,
	}
}

// BacktestConfig maps onto the backtest package's configuration.
func (c *Config) BacktestConfig() backtest.Config {
	return backtest.Config{
		HedgeMode:        c.Strategy.HedgeMode,
		HedgeTenors:      c.Strategy.HedgeTenors,
		HoldingDays:      c.Strategy.HoldingDays,
		EntryThresholdBP: c.Strategy.EntryThresholdBP,
		SwingThresholdBP: c.Strategy.SwingThresholdBP,
		Hedge: hedge.Config{
			Bound:   c.Strategy.HedgeClipBound,
			Epsilon: c.Strategy.HedgeEpsilon,
		},
	}
}
