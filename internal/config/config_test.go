package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"deskquant/derivs/internal/curve"
	"deskquant/derivs/internal/dates"
	"deskquant/derivs/internal/marketdata"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "derivs.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(New(), writeConfig(t, ""))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Log.Level != "info" || !cfg.Log.Console {
		t.Errorf("log = %+v", cfg.Log)
	}
	if cfg.Backtest.TradingDays != 240 || cfg.Backtest.Paths != 1000 {
		t.Errorf("backtest = %+v", cfg.Backtest)
	}

	opts, err := cfg.Curve.Options()
	if err != nil {
		t.Fatalf("Options() error = %v", err)
	}
	if opts.Interpolation != curve.LogLinear || opts.DayCount != dates.ActActISDA || opts.Smoothing != 0 {
		t.Errorf("options = %+v", opts)
	}

	grid, err := cfg.Curve.GridPeriods()
	if err != nil || len(grid) != 13 || grid[0].String() != "3M" {
		t.Errorf("grid = %v, %v", grid, err)
	}
	cal, err := cfg.Curve.CalendarValue()
	if err != nil || cal != dates.China {
		t.Errorf("calendar = %v, %v", cal, err)
	}
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, strings.Join([]string{
		"curve:",
		"  calendar: uk",
		"  interpolation: log-cubic",
		"  compounding: continuous",
		"  grid: [1Y, 5Y, 10Y]",
		"  repo_set: 1m",
		"  smoothing: 0.5",
		"output:",
		"  destination: s3://curves/daily",
		"backtest:",
		"  paths: 200",
		"  slippage: 0.001",
	}, "\n"))

	cfg, err := Load(New(), path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	opts, _ := cfg.Curve.Options()
	if opts.Interpolation != curve.LogCubic || opts.Compounding != curve.Continuous || opts.Smoothing != 0.5 {
		t.Errorf("options = %+v", opts)
	}
	if grid, _ := cfg.Curve.GridPeriods(); len(grid) != 3 {
		t.Errorf("grid = %v", grid)
	}
	if set, _ := cfg.Curve.RepoSetValue(); set != marketdata.OneMonthRepoSet {
		t.Errorf("repo set = %v", set)
	}
	if cfg.Output.Destination != "s3://curves/daily" || cfg.Output.Profile != "default" {
		t.Errorf("output = %+v", cfg.Output)
	}
	if cfg.Backtest.Paths != 200 || cfg.Backtest.Slippage != 0.001 {
		t.Errorf("backtest = %+v", cfg.Backtest)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("DERIVS_CURVE_CALENDAR", "uk")
	t.Setenv("DERIVS_BACKTEST_SEED", "42")

	cfg, err := Load(New(), writeConfig(t, "curve:\n  calendar: china\n"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Curve.Calendar != "uk" || cfg.Backtest.Seed != 42 {
		t.Errorf("env overrides not applied: %+v %+v", cfg.Curve, cfg.Backtest)
	}
}

func TestLoad_Invalid(t *testing.T) {
	cases := map[string]string{
		"interpolation": "curve:\n  interpolation: spline\n",
		"day count":     "curve:\n  day_count: BUS/252\n",
		"calendar":      "curve:\n  calendar: mars\n",
		"grid":          "curve:\n  grid: [3X]\n",
		"repo set":      "curve:\n  repo_set: weekly\n",
		"paths":         "backtest:\n  paths: 0\n",
		"costs":         "backtest:\n  commission: -1\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(New(), writeConfig(t, body)); err == nil {
				t.Error("expected a validation error")
			}
		})
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	if _, err := Load(New(), filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected an error for a missing config file")
	}
}
