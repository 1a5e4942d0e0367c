// Package report renders backtest results as console text and CSV.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/newthinker/crossbt/internal/backtest"
	"github.com/newthinker/crossbt/internal/core"
	"github.com/newthinker/crossbt/internal/strategy/ma_crossover"
)

const (
	tailRows   = 5
	headTrades = 10
	dateLayout = "2006-01-02"
)

// WriteRun prints one symbol's run: the last rows of the series, the
// metrics line, and the first trades.
func WriteRun(w io.Writer, r *backtest.Result) error {
	p := r.Params
	fmt.Fprintf(w, "=== %s (%s, %s) ===\n", r.Symbol, ma_crossover.Describe(p.Short, p.Long, p.UseEMA), describeMode(p))

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "Date\tClose\tShortMA\tLongMA\tSignal\tPosition\tEquity\t")
	start := max(0, len(r.Rows)-tailRows)
	for _, row := range r.Rows[start:] {
		fmt.Fprintf(tw, "%s\t%.2f\t%s\t%s\t%d\t%d\t%.4f\t\n",
			formatTime(row.Bar.Time), row.Bar.Close, fixed(row.ShortMA, 2), fixed(row.LongMA, 2),
			row.Signal, row.Position, row.Equity)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(w, MetricsLine(r.Stats))
	fmt.Fprintf(w, "Trades executed: %d\n", len(r.Trades))

	if len(r.Trades) == 0 {
		return nil
	}
	tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "Date\tAction\tReason\tPrice\tFrom\tTo")
	for _, t := range r.Trades[:min(headTrades, len(r.Trades))] {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.2f\t%s\t%s\n",
			formatTime(t.Time), t.Action, t.Reason, t.Price, t.FromPosition, t.ToPosition)
	}
	return tw.Flush()
}

// MetricsLine formats "CAGR: x% | Sharpe: y | Max Drawdown: z%"
func MetricsLine(s backtest.Stats) string {
	return fmt.Sprintf("CAGR: %s | Sharpe: %s | Max Drawdown: %s",
		percent(s.CAGR), fixed(s.Sharpe, 2), percent(s.MaxDrawdown))
}

// WriteSummary prints the CAGR-sorted table of a batch and any failures.
func WriteSummary(w io.Writer, b *backtest.Batch) error {
	for _, f := range b.Failures {
		fmt.Fprintf(w, "Failed for %s: %s\n", f.Symbol, f.Error)
	}
	if len(b.Summary) == 0 {
		fmt.Fprintln(w, "No successful backtests.")
		return nil
	}

	fmt.Fprintln(w, "Summary (sorted by CAGR):")
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "Symbol\tCAGR\tSharpe\tMaxDrawdown\tFinalEquity\tTrades\t")
	for _, row := range b.Summary {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%.4f\t%d\t\n",
			row.Symbol, percent(row.CAGR), fixed(row.Sharpe, 2), percent(row.MaxDrawdown),
			row.FinalEquity, row.Trades)
	}
	return tw.Flush()
}

// WriteTradesCSV exports the trade log.
func WriteTradesCSV(w io.Writer, trades []core.TradeRecord) error {
	cw := csv.NewWriter(w)
	_ = cw.Write([]string{"time", "action", "reason", "price", "from_position", "to_position"})
	for _, t := range trades {
		_ = cw.Write([]string{
			t.Time.Format(time.RFC3339), string(t.Action), string(t.Reason), formatF(t.Price),
			strconv.Itoa(int(t.FromPosition)), strconv.Itoa(int(t.ToPosition)),
		})
	}
	cw.Flush()
	return cw.Error()
}

// WriteSeriesCSV exports every per-bar column of a run. Unset values are
// empty cells.
func WriteSeriesCSV(w io.Writer, r *backtest.Result) error {
	cw := csv.NewWriter(w)
	_ = cw.Write([]string{
		"time", "open", "high", "low", "close", "short_ma", "long_ma", "atr", "signal",
		"position", "long_trail", "short_trail", "stop_event", "return", "strategy_return", "equity",
	})
	for _, row := range r.Rows {
		_ = cw.Write([]string{
			row.Bar.Time.Format(time.RFC3339),
			formatF(row.Bar.Open), formatF(row.Bar.High), formatF(row.Bar.Low), formatF(row.Bar.Close),
			cell(row.ShortMA), cell(row.LongMA), cell(row.ATR),
			strconv.Itoa(row.Signal), strconv.Itoa(int(row.Position)),
			cell(row.LongTrail), cell(row.ShortTrail), strconv.FormatBool(row.StopEvent),
			cell(row.Return), cell(row.StrategyReturn), formatF(row.Equity),
		})
	}
	cw.Flush()
	return cw.Error()
}

func describeMode(p backtest.Params) string {
	mode := "long/short"
	if p.LongOnly {
		mode = "long-only"
	}
	if p.UseTrailingStop {
		return fmt.Sprintf("%s, ATR stop %dx%g", mode, p.ATRWindow, p.ATRMultiplier)
	}
	return mode + ", no stop"
}

// formatTime drops the clock for daily bars
func formatTime(t time.Time) string {
	if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 {
		return t.Format(dateLayout)
	}
	return t.Format("2006-01-02 15:04")
}

func percent(v core.OptFloat) string {
	f, ok := v.Get()
	if !ok {
		return "NaN"
	}
	return strconv.FormatFloat(f*100, 'f', 2, 64) + "%"
}

func fixed(v core.OptFloat, prec int) string {
	f, ok := v.Get()
	if !ok {
		return "NaN"
	}
	return strconv.FormatFloat(f, 'f', prec, 64)
}

func cell(v core.OptFloat) string {
	f, ok := v.Get()
	if !ok {
		return ""
	}
	return formatF(f)
}

func formatF(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }
