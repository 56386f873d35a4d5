package cmd

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/adalundhe/rebound/core/config"
	"github.com/adalundhe/rebound/core/history"
	"github.com/adalundhe/rebound/core/service"
)

var rootCmd = &cobra.Command{
	Use:   "rebound",
	Short: "Rebound - adaptive failure recovery for task runners",
	Long: `Rebound classifies task failures and decides how to recover: retry with
which backoff, trip a circuit, escalate, skip, or give up.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

var (
	cfgFile      string
	debug        bool
	patternsFile string
	historyPath  string

	manager  *config.Manager
	logLevel = new(slog.LevelVar)
)

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file layered over the discovered ones")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&patternsFile, "patterns", "", "Pattern library file (default: built-in library)")
	rootCmd.PersistentFlags().StringVar(&historyPath, "history", "", "Attempt history database path")
}

func Execute() error {
	return rootCmd.Execute()
}

// setup loads .env and the layered config, applies flag overrides and
// installs the logger.
func setup(cmd *cobra.Command, args []string) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	manager = config.NewManager(nil, config.WithFile(cfgFile))
	if err := manager.Load(); err != nil {
		return err
	}

	override := &config.Config{
		Patterns: config.PatternsConfig{File: patternsFile},
		History:  history.Config{Path: historyPath},
	}
	if debug {
		override.Log.Level = "debug"
	}
	if err := manager.Override(override); err != nil {
		return err
	}

	installLogger(manager.Get().Log)
	manager.OnChange(func(cfg *config.Config) {
		if level, err := cfg.Log.SlogLevel(); err == nil {
			logLevel.Set(level)
		}
	})
	return nil
}

// installLogger sets the default slog logger: tint on a terminal, JSON when
// configured, plain text otherwise. Logs go to stderr so stdout stays
// machine-readable.
func installLogger(cfg config.LogConfig) {
	if level, err := cfg.SlogLevel(); err == nil {
		logLevel.Set(level)
	}

	var handler slog.Handler
	switch {
	case cfg.Format == "json":
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})
	case term.IsTerminal(int(os.Stderr.Fd())):
		handler = tint.NewHandler(os.Stderr, &tint.Options{
			Level:      logLevel,
			TimeFormat: time.Kitchen,
		})
	default:
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})
	}
	slog.SetDefault(slog.New(handler))
}

// newService builds the engine stack from the current config.
func newService(ctx context.Context, opts ...service.Option) (*service.Service, error) {
	return service.New(ctx, manager.Get(), append([]service.Option{service.WithLogger(slog.Default())}, opts...)...)
}
