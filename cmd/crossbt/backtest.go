package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/newthinker/crossbt/internal/app"
	"github.com/newthinker/crossbt/internal/backtest"
	"github.com/newthinker/crossbt/internal/config"
	"github.com/newthinker/crossbt/internal/report"
)

var backtestFlags struct {
	short      int
	long       int
	ema        bool
	longShort  bool
	costBps    float64
	noTrailing bool
	atrWindow  int
	atrMult    float64
	period     string
	interval   string
	provider   string
	dataDir    string
	tradesCSV  string
	seriesCSV  string
}

var backtestCmd = &cobra.Command{
	Use:   "backtest SYMBOL...",
	Short: "Backtest the crossover strategy on one or more symbols",
	Long: `Fetch history for each symbol, run the moving-average crossover with the
configured stop, and print the recent series, metrics and trades. With more
than one symbol a summary sorted by CAGR follows.`,
	Example: `  crossbt backtest AAPL
  crossbt backtest AAPL MSFT 600519.SH --short 10 --long 30 --long-short
  crossbt backtest SPY --provider csv --data-dir ./data --trades-csv trades.csv`,
	Args: cobra.MinimumNArgs(1),
	RunE: runBacktest,
}

func init() {
	f := backtestCmd.Flags()
	f.IntVar(&backtestFlags.short, "short", 0, "short moving-average window")
	f.IntVar(&backtestFlags.long, "long", 0, "long moving-average window")
	f.BoolVar(&backtestFlags.ema, "ema", false, "use exponential moving averages")
	f.BoolVar(&backtestFlags.longShort, "long-short", false, "allow short positions")
	f.Float64Var(&backtestFlags.costBps, "cost-bps", 0, "transaction cost per unit of turnover, in basis points")
	f.BoolVar(&backtestFlags.noTrailing, "no-trailing-stop", false, "disable the ATR trailing stop")
	f.IntVar(&backtestFlags.atrWindow, "atr-window", 0, "ATR window")
	f.Float64Var(&backtestFlags.atrMult, "atr-mult", 0, "ATR multiplier for the trailing stop")
	f.StringVar(&backtestFlags.period, "period", "", "lookback period (1mo, 1y, 5y, ytd, max)")
	f.StringVar(&backtestFlags.interval, "interval", "", "bar interval")
	f.StringVar(&backtestFlags.provider, "provider", "", "data provider (yahoo, eastmoney, csv, parquet)")
	f.StringVar(&backtestFlags.dataDir, "data-dir", "", "directory for the csv and parquet providers")
	f.StringVar(&backtestFlags.tradesCSV, "trades-csv", "", "write the trade log to this CSV file (single symbol)")
	f.StringVar(&backtestFlags.seriesCSV, "series-csv", "", "write the per-bar series to this CSV file (single symbol)")

	rootCmd.AddCommand(backtestCmd)
}

// applyBacktestFlags overrides config values with the flags that were set
func applyBacktestFlags(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	p := &cfg.Backtest
	if f.Changed("short") {
		p.Short = backtestFlags.short
	}
	if f.Changed("long") {
		p.Long = backtestFlags.long
	}
	if f.Changed("ema") {
		p.UseEMA = backtestFlags.ema
	}
	if f.Changed("long-short") {
		p.LongOnly = !backtestFlags.longShort
	}
	if f.Changed("cost-bps") {
		p.CostBps = backtestFlags.costBps
	}
	if f.Changed("no-trailing-stop") {
		p.UseTrailingStop = !backtestFlags.noTrailing
	}
	if f.Changed("atr-window") {
		p.ATRWindow = backtestFlags.atrWindow
	}
	if f.Changed("atr-mult") {
		p.ATRMultiplier = backtestFlags.atrMult
	}
	if f.Changed("period") {
		p.Period = backtestFlags.period
	}
	if f.Changed("interval") {
		p.Interval = backtestFlags.interval
	}
	if f.Changed("provider") {
		cfg.Data.Provider = backtestFlags.provider
	}
	if f.Changed("data-dir") {
		cfg.Data.Dir = backtestFlags.dataDir
	}
}

func runBacktest(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	applyBacktestFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	log := newLogger(cfg)
	defer log.Sync()

	a, err := app.New(cfg, log)
	if err != nil {
		return fmt.Errorf("building app: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	symbols := make([]string, len(args))
	for i, s := range args {
		symbols[i] = strings.ToUpper(strings.TrimSpace(s))
	}

	out := cmd.OutOrStdout()
	if len(symbols) == 1 {
		return runSingle(ctx, out, a, symbols[0], cfg.Backtest)
	}

	batch, err := a.Backtester().RunMany(ctx, symbols, cfg.Backtest)
	if err != nil {
		return err
	}
	for _, r := range batch.Results {
		if err := report.WriteRun(out, r); err != nil {
			return err
		}
		fmt.Fprintln(out)
	}
	if err := report.WriteSummary(out, batch); err != nil {
		return err
	}
	if len(batch.Results) == 0 {
		return fmt.Errorf("all %d backtests failed", len(symbols))
	}
	return nil
}

func runSingle(ctx context.Context, out io.Writer, a *app.App, symbol string, params backtest.Params) error {
	result, err := a.Backtester().Run(ctx, symbol, params)
	if err != nil {
		return err
	}
	if err := report.WriteRun(out, result); err != nil {
		return err
	}

	if path := backtestFlags.tradesCSV; path != "" {
		if err := writeFile(path, func(w io.Writer) error { return report.WriteTradesCSV(w, result.Trades) }); err != nil {
			return err
		}
		fmt.Fprintf(out, "Trades written to %s\n", path)
	}
	if path := backtestFlags.seriesCSV; path != "" {
		if err := writeFile(path, func(w io.Writer) error { return report.WriteSeriesCSV(w, result) }); err != nil {
			return err
		}
		fmt.Fprintf(out, "Series written to %s\n", path)
	}
	return nil
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Close()
}
