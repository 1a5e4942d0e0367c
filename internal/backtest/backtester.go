package backtest

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/newthinker/crossbt/internal/core"
	"github.com/newthinker/crossbt/internal/indicator"
	"github.com/newthinker/crossbt/internal/position"
	"github.com/newthinker/crossbt/internal/strategy/ma_crossover"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// BarProvider defines the interface for fetching historical bars
type BarProvider interface {
	FetchHistory(ctx context.Context, symbol string, start, end time.Time, interval string) ([]core.Bar, error)
}

// Recorder receives run-level metrics
type Recorder interface {
	RecordBacktest(status string, duration float64)
	RecordTrade(action, reason string)
	RecordStopEvent(side string)
}

const defaultConcurrency = 4

// Backtester runs crossover backtests against historical data
type Backtester struct {
	provider    BarProvider
	logger      *zap.Logger
	recorder    Recorder
	now         func() time.Time
	concurrency int
}

// Option configures a Backtester
type Option func(*Backtester)

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(b *Backtester) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithRecorder sets the metrics recorder
func WithRecorder(r Recorder) Option {
	return func(b *Backtester) {
		b.recorder = r
	}
}

// WithClock overrides the clock used to resolve lookback periods
func WithClock(now func() time.Time) Option {
	return func(b *Backtester) {
		b.now = now
	}
}

// WithConcurrency bounds how many symbols RunMany processes at once
func WithConcurrency(n int) Option {
	return func(b *Backtester) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

// New creates a new Backtester with the given bar provider
func New(provider BarProvider, opts ...Option) *Backtester {
	b := &Backtester{
		provider:    provider,
		logger:      zap.NewNop(),
		now:         time.Now,
		concurrency: defaultConcurrency,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Run fetches history for symbol over params.Period and backtests it
func (b *Backtester) Run(ctx context.Context, symbol string, params Params) (result *Result, err error) {
	started := time.Now()
	defer func() {
		if b.recorder == nil {
			return
		}
		status := "success"
		if err != nil {
			status = "failed"
		}
		b.recorder.RecordBacktest(status, time.Since(started).Seconds())
		if err == nil {
			for _, t := range result.Trades {
				b.recorder.RecordTrade(string(t.Action), string(t.Reason))
			}
			for i, row := range result.Rows {
				if row.StopEvent && i > 0 {
					b.recorder.RecordStopEvent(result.Rows[i-1].Position.String())
				}
			}
		}
	}()

	if err := params.Validate(); err != nil {
		return nil, err
	}

	period := params.Period
	if period == "" {
		period = "1y"
	}
	start, end, err := PeriodRange(period, b.now())
	if err != nil {
		return nil, err
	}

	interval := params.Interval
	if interval == "" {
		interval = "1d"
	}

	// Fetch historical data
	bars, err := b.provider.FetchHistory(ctx, symbol, start, end, interval)
	if err != nil {
		return nil, core.WrapError(core.ErrCollectorFailed, fmt.Errorf("%s: %w", symbol, err))
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	result, err = Simulate(symbol, bars, params)
	if err != nil {
		return nil, err
	}
	result.StartDate = start
	result.EndDate = end

	b.logger.Info("backtest complete",
		zap.String("symbol", symbol),
		zap.Int("bars", len(result.Rows)),
		zap.Int("trades", result.Stats.TotalTrades),
		zap.Float64("final_equity", result.Stats.FinalEquity),
	)

	return result, nil
}

// Simulate runs the full pipeline over already-fetched bars:
// indicators, crossover events, position state machine, returns, statistics.
func Simulate(symbol string, bars []core.Bar, params Params) (*Result, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	bars = core.NormalizeBars(bars)
	if len(bars) == 0 {
		return nil, core.WrapError(core.ErrNoData, fmt.Errorf("no price data for %s", symbol))
	}

	high, low, closes := indicator.PriceSeries(bars)
	shortMA, longMA := indicator.MovingAverages(closes, params.Short, params.Long, params.UseEMA)

	events, err := ma_crossover.Detect(shortMA, longMA)
	if err != nil {
		return nil, err
	}

	atr := make([]core.OptFloat, len(bars))
	if params.UseTrailingStop {
		atr = indicator.ATR(high, low, closes, params.ATRWindow)
	}

	machine, err := position.New(position.Config{
		ATRMultiplier: params.ATRMultiplier,
		LongOnly:      params.LongOnly,
		TrailingStop:  params.UseTrailingStop,
	})
	if err != nil {
		return nil, err
	}

	inputs := make([]position.Input, len(bars))
	times := make([]time.Time, len(bars))
	for i, bar := range bars {
		times[i] = bar.Time
		inputs[i] = position.Input{
			Time:  bar.Time,
			Price: bar.Close,
			ATR:   atr[i],
			Buy:   events.Buy[i],
			Sell:  events.Sell[i],
		}
	}
	resolved := machine.Run(inputs)

	points, err := ComputeReturns(times, closes, resolved.Positions, params.CostBps)
	if err != nil {
		return nil, err
	}

	rows := make([]Row, len(bars))
	stops := 0
	for i, bar := range bars {
		rows[i] = Row{
			Bar:            bar,
			ShortMA:        shortMA[i],
			LongMA:         longMA[i],
			ATR:            atr[i],
			Signal:         events.Signal[i],
			Position:       resolved.Positions[i],
			LongTrail:      resolved.LongTrail[i],
			ShortTrail:     resolved.ShortTrail[i],
			StopEvent:      resolved.StopEvents[i],
			Return:         points[i].Return,
			StrategyReturn: points[i].StrategyReturn,
			Equity:         points[i].Equity,
		}
		if resolved.StopEvents[i] {
			stops++
		}
	}

	result := &Result{
		Symbol:    symbol,
		Params:    params,
		StartDate: bars[0].Time,
		EndDate:   bars[len(bars)-1].Time,
		Rows:      rows,
		Trades:    resolved.Trades(),
	}
	result.Stats = CalculateStats(result.Equity(), result.StrategyReturns())
	result.Stats.FinalEquity = rows[len(rows)-1].Equity
	result.Stats.TotalTrades = len(result.Trades)
	result.Stats.StopEvents = stops

	return result, nil
}

// RunMany backtests symbols concurrently. A symbol that fails is logged and
// listed in Failures; the others still run. Results keep the input order and
// the summary is sorted by CAGR, highest first, unset last.
func (b *Backtester) RunMany(ctx context.Context, symbols []string, params Params) (*Batch, error) {
	if len(symbols) == 0 {
		return nil, core.WrapError(core.ErrConfigMissing, fmt.Errorf("no symbols given"))
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}

	results := make([]*Result, len(symbols))
	errs := make([]error, len(symbols))

	// Workers never return an error, so one failing symbol does not
	// cancel the rest.
	var g errgroup.Group
	g.SetLimit(b.concurrency)
	for i, sym := range symbols {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				errs[i] = err
				return nil
			}
			results[i], errs[i] = b.Run(ctx, sym, params)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	batch := &Batch{}
	for i, sym := range symbols {
		if errs[i] != nil {
			b.logger.Warn("backtest failed",
				zap.String("symbol", sym),
				zap.Error(errs[i]),
			)
			batch.Failures = append(batch.Failures, Failure{Symbol: sym, Error: errs[i].Error()})
			continue
		}
		batch.Results = append(batch.Results, results[i])
	}
	batch.Summary = Summarize(batch.Results)

	return batch, nil
}

// Summarize builds summary rows sorted by CAGR, highest first, unset last
func Summarize(results []*Result) []SummaryRow {
	rows := make([]SummaryRow, 0, len(results))
	for _, r := range results {
		rows = append(rows, SummaryRow{
			Symbol:      r.Symbol,
			CAGR:        r.Stats.CAGR,
			Sharpe:      r.Stats.Sharpe,
			MaxDrawdown: r.Stats.MaxDrawdown,
			FinalEquity: r.Stats.FinalEquity,
			Trades:      r.Stats.TotalTrades,
		})
	}

	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i].CAGR, rows[j].CAGR
		if a.Valid != b.Valid {
			return a.Valid
		}
		return a.Valid && a.Value > b.Value
	})

	return rows
}
