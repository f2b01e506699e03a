// Command tonarv runs the OIS curve and relative-value analytics over a par
// rate panel: forward extraction, factor diagnostics and the hedged
// backtest.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/meenmo/tonarv/calendar"
	"github.com/meenmo/tonarv/config"
	"github.com/meenmo/tonarv/pipeline"
	"github.com/meenmo/tonarv/rates"
	"github.com/meenmo/tonarv/store"
)

const storeTimeout = 30 * time.Second

type app struct {
	cfg *config.Config
	log zerolog.Logger
}

func main() {
	var (
		configPath string
		inputPath  string
		verbose    bool
	)
	a := &app{}

	root := &cobra.Command{
		Use:           "tonarv",
		Short:         "OIS curve bootstrapping and PCA relative-value analytics",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_ = godotenv.Load()

			level := zerolog.InfoLevel
			if verbose {
				level = zerolog.DebugLevel
			}
			a.log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
				Level(level).With().Timestamp().Logger()

			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			a.cfg = cfg
			if cfg.Curve.HolidaysCSV != "" {
				if err := calendar.LoadHolidaysCSV(calendar.ID(cfg.Curve.Calendar), cfg.Curve.HolidaysCSV); err != nil {
					return err
				}
			}
			if err := os.MkdirAll(cfg.Output.Dir, 0o755); err != nil {
				return fmt.Errorf("create output dir: %w", err)
			}
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config path (defaults used if omitted)")
	root.PersistentFlags().StringVarP(&inputPath, "input", "i", "", "par rate panel CSV (date,1,2,...,N)")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	_ = root.MarkPersistentFlagRequired("input")

	root.AddCommand(
		forwardsCmd(a, &inputPath),
		analyzeCmd(a, &inputPath),
		backtestCmd(a, &inputPath),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func forwardsCmd(a *app, input *string) *cobra.Command {
	return &cobra.Command{
		Use:   "forwards",
		Short: "Bootstrap curves per date and export the 1Y forward panel",
		RunE: func(cmd *cobra.Command, args []string) error {
			fwd, err := a.buildForwards(cmd.Context(), *input)
			if err != nil {
				return err
			}
			out := filepath.Join(a.cfg.Output.Dir, "forward_rates.csv")
			if err := store.WriteForwardCSV(out, fwd); err != nil {
				return err
			}
			a.log.Info().Str("path", out).Msg("forward panel written")
			return nil
		},
	}
}

func analyzeCmd(a *app, input *string) *cobra.Command {
	return &cobra.Command{
		Use:   "analyze",
		Short: "Full-sample factor diagnostics and residual history",
		RunE: func(cmd *cobra.Command, args []string) error {
			fwd, err := a.buildForwards(cmd.Context(), *input)
			if err != nil {
				return err
			}
			report, err := pipeline.New(a.cfg, a.log).Analyze(fwd)
			if err != nil {
				return err
			}

			fmt.Printf("Analysis for %s (%d rows)\n", report.Date.Format("2006-01-02"), report.Rows)
			fmt.Println("Explained variance ratio:")
			for i, v := range report.Explained {
				fmt.Printf("  PC%d: %.4f\n", i+1, v)
			}
			fmt.Println("Cheapest (highest positive residuals):")
			for _, e := range report.Cheapest {
				fmt.Printf("  %-12s %+.4f\n", e.Name, e.Residual)
			}
			fmt.Println("Richest (lowest negative residuals):")
			for _, e := range report.Richest {
				fmt.Printf("  %-12s %+.4f\n", e.Name, e.Residual)
			}

			out := filepath.Join(a.cfg.Output.Dir, "residuals.csv")
			if err := store.WriteResidualCSV(out, report.Residuals); err != nil {
				return err
			}
			a.log.Info().Str("path", out).Msg("residual history written")

			return a.withPostgres(cmd.Context(), func(ctx context.Context, pg *store.Postgres) error {
				return pg.SaveResiduals(ctx, report.Residuals)
			})
		},
	}
}

func backtestCmd(a *app, input *string) *cobra.Command {
	return &cobra.Command{
		Use:   "backtest",
		Short: "Run the rolling-model hedged relative-value backtest",
		RunE: func(cmd *cobra.Command, args []string) error {
			fwd, err := a.buildForwards(cmd.Context(), *input)
			if err != nil {
				return err
			}
			res, err := pipeline.New(a.cfg, a.log).Backtest(fwd)
			if err != nil {
				return err
			}

			s := res.Summary
			fmt.Printf("Backtest: %d traded days, %d skipped\n", s.Days, s.SkippedDays)
			fmt.Printf("Total return (no hedge): %8.2f bp   daily vol: %6.2f bp\n",
				s.TotalNoHedgeBP, s.DailyVolNoHedgeBP)
			fmt.Printf("Total return (hedged)  : %8.2f bp   daily vol: %6.2f bp\n",
				s.TotalHedgedBP, s.DailyVolHedgedBP)

			out := filepath.Join(a.cfg.Output.Dir, "backtest_pnl.csv")
			if err := store.WritePnLCSV(out, res); err != nil {
				return err
			}
			a.log.Info().Str("path", out).Msg("P&L series written")

			return a.withPostgres(cmd.Context(), func(ctx context.Context, pg *store.Postgres) error {
				return pg.SavePnL(ctx, res)
			})
		},
	}
}

func (a *app) buildForwards(ctx context.Context, input string) (*rates.ForwardPanel, error) {
	panel, err := rates.LoadCSV(input)
	if err != nil {
		return nil, err
	}
	return pipeline.New(a.cfg, a.log).BuildForwardPanel(ctx, panel)
}

// withPostgres runs fn against the configured database, or does nothing
// when no DSN is set.
func (a *app) withPostgres(ctx context.Context, fn func(context.Context, *store.Postgres) error) error {
	dsn := os.Getenv(a.cfg.Output.PostgresDSNEnv)
	if dsn == "" {
		return nil
	}
	pg, err := store.OpenPostgres(dsn, storeTimeout)
	if err != nil {
		return err
	}
	defer pg.Close()
	if err := pg.EnsureSchema(ctx); err != nil {
		return err
	}
	if err := fn(ctx, pg); err != nil {
		return err
	}
	a.log.Info().Msg("results stored to postgres")
	return nil
}
