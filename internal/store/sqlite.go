// Package store keeps a run history of curve fits and hedging backtests.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"deskquant/derivs/internal/calibrate"
)

// CurveFit is one stored calibration run.
type CurveFit struct {
	RunID      string
	AsOf       time.Time
	Objective  float64
	Converged  bool
	Status     string
	Iterations int
	CreatedAt  time.Time
	Nodes      []calibrate.NodeRecord
}

// BacktestRun is the summary of one hedging backtest.
type BacktestRun struct {
	RunID     string
	Generator string
	Start     time.Time
	End       time.Time
	Strike    float64
	Paths     int
	Mean      float64
	Std       float64
	P10       float64
	P25       float64
	P50       float64
	P75       float64
	P90       float64
	CreatedAt time.Time
}

// SQLiteStore persists runs in a sqlite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (and if needed creates) the database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS curve_fits (
		run_id TEXT PRIMARY KEY,
		as_of DATETIME NOT NULL,
		objective REAL NOT NULL,
		converged INTEGER NOT NULL,
		status TEXT NOT NULL,
		iterations INTEGER NOT NULL,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS curve_nodes (
		run_id TEXT NOT NULL REFERENCES curve_fits(run_id),
		tenor TEXT NOT NULL,
		date DATETIME NOT NULL,
		price REAL NOT NULL,
		df REAL NOT NULL,
		zero_rate REAL NOT NULL,
		forward REAL NOT NULL DEFAULT 0,
		PRIMARY KEY (run_id, tenor)
	);

	CREATE TABLE IF NOT EXISTS backtests (
		run_id TEXT PRIMARY KEY,
		generator TEXT NOT NULL,
		start_date DATETIME NOT NULL,
		end_date DATETIME NOT NULL,
		strike REAL NOT NULL,
		paths INTEGER NOT NULL,
		mean_pnl REAL NOT NULL,
		std_pnl REAL NOT NULL,
		p10 REAL NOT NULL,
		p25 REAL NOT NULL,
		p50 REAL NOT NULL,
		p75 REAL NOT NULL,
		p90 REAL NOT NULL,
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_curve_fits_as_of ON curve_fits(as_of);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	// histories recorded before node forwards were kept
	return s.addColumn("curve_nodes", "forward", "REAL NOT NULL DEFAULT 0")
}

func (s *SQLiteStore) addColumn(table, column, decl string) error {
	var n int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?", table, column).Scan(&n); err != nil {
		return fmt.Errorf("failed to inspect %s: %w", table, err)
	}
	if n > 0 {
		return nil
	}
	_, err := s.db.Exec(fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, decl))
	return err
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveCurveFit stores a fit and its nodes under a new run ID.
func (s *SQLiteStore) SaveCurveFit(ctx context.Context, fit *calibrate.Result) (string, error) {
	runID := uuid.NewString()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO curve_fits (run_id, as_of, objective, converged, status, iterations, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, runID, fit.AsOf.UTC(), fit.Objective, boolToInt(fit.Converged), fit.Status, fit.Iterations, time.Now().UTC())
	if err != nil {
		return "", fmt.Errorf("failed to save curve fit: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO curve_nodes (run_id, tenor, date, price, df, zero_rate, forward)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return "", fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, n := range fit.Records() {
		if _, err := stmt.ExecContext(ctx, runID, n.Tenor, n.Date.UTC(), n.Price, n.DF, n.ZeroRate, n.Forward); err != nil {
			return "", fmt.Errorf("failed to save node %s: %w", n.Tenor, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit curve fit: %w", err)
	}
	return runID, nil
}

// CurveFits returns the fits with as-of dates in [from, to], oldest first.
// A zero from or to leaves that end open.
func (s *SQLiteStore) CurveFits(ctx context.Context, from, to time.Time) ([]CurveFit, error) {
	query := "SELECT run_id, as_of, objective, converged, status, iterations, created_at FROM curve_fits WHERE 1=1"
	args := []interface{}{}

	if !from.IsZero() {
		query += " AND as_of >= ?"
		args = append(args, from.UTC())
	}
	if !to.IsZero() {
		query += " AND as_of <= ?"
		args = append(args, to.UTC())
	}
	query += " ORDER BY as_of, created_at"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query curve fits: %w", err)
	}
	defer rows.Close()

	var fits []CurveFit
	for rows.Next() {
		var f CurveFit
		var converged int
		if err := rows.Scan(&f.RunID, &f.AsOf, &f.Objective, &converged, &f.Status, &f.Iterations, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan curve fit: %w", err)
		}
		f.Converged = converged == 1
		fits = append(fits, f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range fits {
		nodes, err := s.curveNodes(ctx, fits[i].RunID, fits[i].AsOf)
		if err != nil {
			return nil, err
		}
		fits[i].Nodes = nodes
	}

	return fits, nil
}

func (s *SQLiteStore) curveNodes(ctx context.Context, runID string, asOf time.Time) ([]calibrate.NodeRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT tenor, date, price, df, zero_rate, forward FROM curve_nodes
		WHERE run_id = ? ORDER BY date
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query curve nodes: %w", err)
	}
	defer rows.Close()

	var nodes []calibrate.NodeRecord
	for rows.Next() {
		n := calibrate.NodeRecord{AsOf: asOf}
		if err := rows.Scan(&n.Tenor, &n.Date, &n.Price, &n.DF, &n.ZeroRate, &n.Forward); err != nil {
			return nil, fmt.Errorf("failed to scan curve node: %w", err)
		}
		nodes = append(nodes, n)
	}
	return nodes, rows.Err()
}

// SaveBacktest stores a backtest summary. An empty RunID is filled in.
func (s *SQLiteStore) SaveBacktest(ctx context.Context, run *BacktestRun) error {
	if run.RunID == "" {
		run.RunID = uuid.NewString()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO backtests (run_id, generator, start_date, end_date, strike, paths, mean_pnl, std_pnl, p10, p25, p50, p75, p90, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, run.RunID, run.Generator, run.Start.UTC(), run.End.UTC(), run.Strike, run.Paths, run.Mean, run.Std,
		run.P10, run.P25, run.P50, run.P75, run.P90, run.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to save backtest: %w", err)
	}
	return nil
}

// Backtests returns the stored backtests for a generator, newest first. An
// empty generator matches all.
func (s *SQLiteStore) Backtests(ctx context.Context, generator string, limit int) ([]BacktestRun, error) {
	query := "SELECT run_id, generator, start_date, end_date, strike, paths, mean_pnl, std_pnl, p10, p25, p50, p75, p90, created_at FROM backtests WHERE 1=1"
	args := []interface{}{}

	if generator != "" {
		query += " AND generator = ?"
		args = append(args, generator)
	}
	query += " ORDER BY created_at DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query backtests: %w", err)
	}
	defer rows.Close()

	var runs []BacktestRun
	for rows.Next() {
		var r BacktestRun
		if err := rows.Scan(&r.RunID, &r.Generator, &r.Start, &r.End, &r.Strike, &r.Paths, &r.Mean, &r.Std,
			&r.P10, &r.P25, &r.P50, &r.P75, &r.P90, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan backtest: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
