// Package cli holds the plumbing shared by the command binaries: config
// loading, logger setup, table and JSON output.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"deskquant/derivs/internal/config"
	"deskquant/derivs/internal/dates"
	"deskquant/derivs/internal/logging"
	"deskquant/derivs/internal/marketdata"
	"deskquant/derivs/internal/store"
)

// App holds what every command needs once flags are parsed.
type App struct {
	Name   string
	Viper  *viper.Viper
	Config *config.Config
	Logger zerolog.Logger
	RunID  string
}

// NewApp creates an App logging with the default configuration until
// the config is loaded.
func NewApp(name string) *App {
	return &App{
		Name:   name,
		Viper:  config.New(),
		Logger: logging.WithTool(logging.NewLogger(), name),
		RunID:  uuid.NewString(),
	}
}

// Command builds the root command of a tool. run is called with a context
// carrying the configured logger.
func (a *App) Command(short string, run func(ctx context.Context, cmd *cobra.Command, args []string) error) *cobra.Command {
	cmd := &cobra.Command{
		Use:           a.Name,
		Short:         short,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cmd, args)
		},
	}

	cmd.PersistentFlags().String("config", "", "config file (default: ./derivs.yaml or ~/.config/derivs/derivs.yaml)")
	cmd.PersistentFlags().Bool("json", false, "output in JSON format")
	cmd.PersistentFlags().Bool("debug", false, "enable debug logging")
	return cmd
}

// Bind ties a flag to a config key so the flag overrides the file.
func (a *App) Bind(cmd *cobra.Command, key, flag string) {
	if err := a.Viper.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
		a.Logger.Fatal().Err(err).Str("flag", flag).Msg("Failed to bind flag")
	}
}

func (a *App) setup(cmd *cobra.Command) error {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(a.Viper, configFile)
	if err != nil {
		return err
	}
	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		cfg.Log.Level = "debug"
	}
	a.Config = cfg

	a.Logger = logging.WithRunID(logging.WithTool(logging.NewLoggerWithConfig(cfg.Log), a.Name), a.RunID)
	cmd.SetContext(logging.WithLogger(cmd.Context(), a.Logger))

	a.Logger.Debug().Str("config", a.Viper.ConfigFileUsed()).Msg("Configuration loaded")
	return nil
}

// Execute runs the command until done or interrupted. A failure is logged
// and exits 1.
func (a *App) Execute(cmd *cobra.Command) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := cmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		a.Logger.Error().Err(err).Msg("Command failed")
		os.Exit(1)
	}
}

// Terminal opens the configured terminal workbook.
func (a *App) Terminal() (marketdata.Terminal, error) {
	start := time.Now()
	term, err := marketdata.OpenSheetTerminal(a.Config.Terminal.Workbook)
	logging.LogDataPull(a.Logger, "workbook", 0, time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("terminal workbook %q: %w", a.Config.Terminal.Workbook, err)
	}
	return term, nil
}

// Store opens the run history, or returns nil when it is disabled.
func (a *App) Store() (*store.SQLiteStore, error) {
	if !a.Config.Store.Enabled {
		return nil, nil
	}
	if err := os.MkdirAll(filepath.Dir(a.Config.Store.Path), 0o755); err != nil {
		return nil, err
	}
	return store.NewSQLiteStore(a.Config.Store.Path)
}

// Date parses a date flag, defaulting to today.
func Date(cmd *cobra.Command, flag string) (time.Time, error) {
	s, _ := cmd.Flags().GetString(flag)
	if s == "" {
		return dates.Truncate(time.Now()), nil
	}
	return marketdata.ParseDate(s)
}
