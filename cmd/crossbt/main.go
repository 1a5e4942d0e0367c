package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/newthinker/crossbt/internal/config"
	"github.com/newthinker/crossbt/internal/logger"
)

var (
	cfgFile string
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:   "crossbt",
	Short: "crossbt - moving-average crossover backtester",
	Long: `crossbt backtests a moving-average crossover strategy with an optional
ATR trailing stop, from the command line or as an HTTP job service.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "enable debug mode")
}

// loadConfig reads and validates the configuration for a command
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) *zap.Logger {
	opts := logger.Options{Level: cfg.Log.Level, Development: cfg.Log.Development}
	if debug {
		opts.Development = true
		opts.Level = "debug"
	}
	return logger.Must(opts)
}

func main() {
	// A missing .env is fine; variables may come from the environment
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
