// Package config loads the settings shared by the tools from derivs.yaml,
// a .env file and DERIVS_ environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"deskquant/derivs/internal/calibrate"
	"deskquant/derivs/internal/curve"
	"deskquant/derivs/internal/dates"
	"deskquant/derivs/internal/logging"
	"deskquant/derivs/internal/marketdata"
	"deskquant/derivs/internal/paths"
)

// EnvPrefix prefixes environment overrides, e.g. DERIVS_CURVE_CALENDAR.
const EnvPrefix = "DERIVS"

// Config holds all tool configuration.
type Config struct {
	Log      logging.LogConfig `mapstructure:"log"`
	Terminal TerminalConfig    `mapstructure:"terminal"`
	Curve    CurveConfig       `mapstructure:"curve"`
	Output   OutputConfig      `mapstructure:"output"`
	Store    StoreConfig       `mapstructure:"store"`
	Backtest BacktestConfig    `mapstructure:"backtest"`
}

// TerminalConfig points at the exported terminal workbook.
type TerminalConfig struct {
	Workbook string `mapstructure:"workbook"`
}

// CurveConfig holds the calibration conventions.
type CurveConfig struct {
	Calendar          string   `mapstructure:"calendar"`
	DayCount          string   `mapstructure:"day_count"`
	RepoDayCount      string   `mapstructure:"repo_day_count"`
	Interpolation     string   `mapstructure:"interpolation"` // log-linear, log-cubic
	Compounding       string   `mapstructure:"compounding"`   // continuous, annual, simple
	Grid              []string `mapstructure:"grid"`
	RepoSet           string   `mapstructure:"repo_set"` // full, 1m
	Smoothing         float64  `mapstructure:"smoothing"`
	MaxIterations     int      `mapstructure:"max_iterations"`
	GradientThreshold float64  `mapstructure:"gradient_threshold"`
}

// OutputConfig is where batch results are stored: a directory or
// s3://bucket/prefix.
type OutputConfig struct {
	Destination string `mapstructure:"destination"`
	Profile     string `mapstructure:"profile"`
}

// StoreConfig is the sqlite run history.
type StoreConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// BacktestConfig holds the delta hedging defaults.
type BacktestConfig struct {
	TradingDays int     `mapstructure:"trading_days"`
	Paths       int     `mapstructure:"paths"`
	Seed        uint64  `mapstructure:"seed"`
	Slippage    float64 `mapstructure:"slippage"`
	Commission  float64 `mapstructure:"commission"`
}

// DefaultConfigDir returns ~/.config/derivs.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".config", "derivs")
	}
	return filepath.Join(home, ".config", "derivs")
}

func setDefaults(v *viper.Viper) {
	log := logging.DefaultLogConfig()
	v.SetDefault("log.level", log.Level)
	v.SetDefault("log.console", log.Console)
	v.SetDefault("log.file", log.File)
	v.SetDefault("log.file_path", log.FilePath)
	v.SetDefault("log.max_size", log.MaxSize)
	v.SetDefault("log.max_backups", log.MaxBackups)
	v.SetDefault("log.max_age", log.MaxAge)

	v.SetDefault("terminal.workbook", "")

	opts := calibrate.DefaultOptions()
	v.SetDefault("curve.calendar", "china")
	v.SetDefault("curve.day_count", string(opts.DayCount))
	v.SetDefault("curve.repo_day_count", string(opts.RepoDayCount))
	v.SetDefault("curve.interpolation", opts.Interpolation.String())
	v.SetDefault("curve.compounding", opts.Compounding.String())
	v.SetDefault("curve.grid", calibrate.DefaultGrid)
	v.SetDefault("curve.repo_set", "full")
	v.SetDefault("curve.smoothing", opts.Smoothing)
	v.SetDefault("curve.max_iterations", opts.MaxIterations)
	v.SetDefault("curve.gradient_threshold", opts.GradientThreshold)

	v.SetDefault("output.destination", "")
	v.SetDefault("output.profile", "default")

	v.SetDefault("store.enabled", false)
	v.SetDefault("store.path", filepath.Join(DefaultConfigDir(), "derivs.db"))

	v.SetDefault("backtest.trading_days", paths.DefaultTradingDays)
	v.SetDefault("backtest.paths", 1000)
	v.SetDefault("backtest.seed", 1)
	v.SetDefault("backtest.slippage", 0.0)
	v.SetDefault("backtest.commission", 0.0)
}

// New returns a viper instance with the defaults and environment
// overrides in place. Command flags are bound to it before Load.
func New() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads configFile, or derivs.yaml from the working directory or
// DefaultConfigDir when configFile is empty. A missing derivs.yaml is not
// an error. A .env file in the working directory is loaded first.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	_ = godotenv.Load()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("derivs")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath(DefaultConfigDir())
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// Validate rejects unknown conventions and out of range settings.
func (c *Config) Validate() error {
	if _, err := c.Curve.Options(); err != nil {
		return err
	}
	if _, err := c.Curve.CalendarValue(); err != nil {
		return err
	}
	if _, err := c.Curve.GridPeriods(); err != nil {
		return err
	}
	if _, err := marketdata.ParseRepoSet(c.Curve.RepoSet); err != nil {
		return err
	}
	if c.Curve.Smoothing < 0 {
		return fmt.Errorf("curve.smoothing must be non-negative")
	}
	if c.Backtest.TradingDays <= 0 {
		return fmt.Errorf("backtest.trading_days must be positive")
	}
	if c.Backtest.Paths <= 0 {
		return fmt.Errorf("backtest.paths must be positive")
	}
	if c.Backtest.Slippage < 0 || c.Backtest.Commission < 0 {
		return fmt.Errorf("backtest costs must be non-negative")
	}
	return nil
}

// CalendarValue resolves the curve calendar.
func (c CurveConfig) CalendarValue() (*dates.Calendar, error) {
	return dates.ParseCalendar(c.Calendar)
}

// GridPeriods parses the node grid, falling back to the default grid.
func (c CurveConfig) GridPeriods() ([]dates.Period, error) {
	if len(c.Grid) == 0 {
		return calibrate.DefaultGridPeriods(), nil
	}
	return dates.ParsePeriods(c.Grid)
}

// RepoSetValue resolves the short end repo set.
func (c CurveConfig) RepoSetValue() (marketdata.RepoSet, error) {
	return marketdata.ParseRepoSet(c.RepoSet)
}

// Options converts the section into calibration options.
func (c CurveConfig) Options() (calibrate.Options, error) {
	opts := calibrate.DefaultOptions()
	var err error

	if opts.Interpolation, err = curve.ParseInterpolation(c.Interpolation); err != nil {
		return opts, err
	}
	if opts.Compounding, err = curve.ParseCompounding(c.Compounding); err != nil {
		return opts, err
	}
	if opts.DayCount, err = dates.ParseDayCount(c.DayCount); err != nil {
		return opts, err
	}
	if c.RepoDayCount != "" {
		if opts.RepoDayCount, err = dates.ParseDayCount(c.RepoDayCount); err != nil {
			return opts, err
		}
	}

	opts.Smoothing = c.Smoothing
	if c.MaxIterations > 0 {
		opts.MaxIterations = c.MaxIterations
	}
	if c.GradientThreshold > 0 {
		opts.GradientThreshold = c.GradientThreshold
	}
	return opts, nil
}
