package store

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/meenmo/tonarv/backtest"
)

// Postgres persists result tables to a Postgres database.
type Postgres struct {
	db      *sqlx.DB
	timeout time.Duration
}

// OpenPostgres connects with the given DSN.
func OpenPostgres(dsn string, timeout time.Duration) (*Postgres, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Postgres{db: db, timeout: timeout}, nil
}

// Close releases the connection pool.
func (s *Postgres) Close() error { return s.db.Close() }

// EnsureSchema creates the result tables when they do not exist.
func (s *Postgres) EnsureSchema(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	schema := `
		CREATE TABLE IF NOT EXISTS forward_residuals (
			eval_date   date             NOT NULL,
			instrument  text             NOT NULL,
			residual    double precision NOT NULL,
			PRIMARY KEY (eval_date, instrument)
		);
		CREATE TABLE IF NOT EXISTS backtest_pnl (
			eval_date        date             NOT NULL PRIMARY KEY,
			long_instrument  text             NOT NULL,
			short_instrument text             NOT NULL,
			no_hedge_pnl_bp  double precision NOT NULL,
			hedge_pnl_bp     double precision NOT NULL,
			hedged_pnl_bp    double precision NOT NULL,
			cum_no_hedge_bp  double precision NOT NULL,
			cum_hedged_bp    double precision NOT NULL
		);`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// SaveResiduals upserts the residual table. NaN cells are skipped.
func (s *Postgres) SaveResiduals(ctx context.Context, table *ResidualTable) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin residual tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO forward_residuals (eval_date, instrument, residual)
		VALUES ($1, $2, $3)
		ON CONFLICT (eval_date, instrument) DO UPDATE SET residual = EXCLUDED.residual`)
	if err != nil {
		return fmt.Errorf("prepare residual insert: %w", err)
	}
	defer stmt.Close()

	for i, d := range table.Dates {
		for j, label := range table.Labels {
			v := table.Values[i][j]
			if math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			if _, err := stmt.ExecContext(ctx, d, label, v); err != nil {
				return fmt.Errorf("insert residual %s/%s: %w", d.Format("2006-01-02"), label, err)
			}
		}
	}
	return tx.Commit()
}

// SavePnL upserts the backtest P&L series.
func (s *Postgres) SavePnL(ctx context.Context, res *backtest.Result) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin pnl tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO backtest_pnl (
			eval_date, long_instrument, short_instrument,
			no_hedge_pnl_bp, hedge_pnl_bp, hedged_pnl_bp,
			cum_no_hedge_bp, cum_hedged_bp
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (eval_date) DO UPDATE SET
			long_instrument  = EXCLUDED.long_instrument,
			short_instrument = EXCLUDED.short_instrument,
			no_hedge_pnl_bp  = EXCLUDED.no_hedge_pnl_bp,
			hedge_pnl_bp     = EXCLUDED.hedge_pnl_bp,
			hedged_pnl_bp    = EXCLUDED.hedged_pnl_bp,
			cum_no_hedge_bp  = EXCLUDED.cum_no_hedge_bp,
			cum_hedged_bp    = EXCLUDED.cum_hedged_bp`)
	if err != nil {
		return fmt.Errorf("prepare pnl insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range res.Records {
		if _, err := stmt.ExecContext(ctx,
			r.Date, r.LongName, r.ShortName,
			r.NoHedgePnLBP, r.HedgePnLBP, r.HedgedPnLBP,
			r.CumNoHedgeBP, r.CumHedgedBP,
		); err != nil {
			return fmt.Errorf("insert pnl %s: %w", r.Date.Format("2006-01-02"), err)
		}
	}
	return tx.Commit()
}
