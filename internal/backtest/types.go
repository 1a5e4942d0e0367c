package backtest

import (
	"fmt"
	"time"

	"github.com/newthinker/crossbt/internal/core"
)

// Params configures one backtest run
type Params struct {
	Short           int     `json:"short" mapstructure:"short" yaml:"short"`
	Long            int     `json:"long" mapstructure:"long" yaml:"long"`
	UseEMA          bool    `json:"use_ema" mapstructure:"use_ema" yaml:"use_ema"`
	LongOnly        bool    `json:"long_only" mapstructure:"long_only" yaml:"long_only"`
	CostBps         float64 `json:"cost_bps" mapstructure:"cost_bps" yaml:"cost_bps"`
	UseTrailingStop bool    `json:"use_trailing_stop" mapstructure:"use_trailing_stop" yaml:"use_trailing_stop"`
	ATRWindow       int     `json:"atr_window" mapstructure:"atr_window" yaml:"atr_window"`
	ATRMultiplier   float64 `json:"atr_multiplier" mapstructure:"atr_multiplier" yaml:"atr_multiplier"`
	Period          string  `json:"period" mapstructure:"period" yaml:"period"`     // "1y", "5y", "max"
	Interval        string  `json:"interval" mapstructure:"interval" yaml:"interval"` // "1d"
}

// DefaultParams returns the parameters of a single-symbol run
func DefaultParams() Params {
	return Params{
		Short:           20,
		Long:            50,
		UseEMA:          false,
		LongOnly:        true,
		CostBps:         10,
		UseTrailingStop: true,
		ATRWindow:       14,
		ATRMultiplier:   3.0,
		Period:          "1y",
		Interval:        "1d",
	}
}

// Validate checks the parameters for errors.
func (p Params) Validate() error {
	if p.Short <= 0 || p.Long <= 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("moving average windows must be positive, got short=%d long=%d", p.Short, p.Long))
	}
	if p.Short >= p.Long {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("short window must be less than long window, got short=%d long=%d", p.Short, p.Long))
	}
	if !(p.CostBps >= 0) {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("cost_bps cannot be negative, got %v", p.CostBps))
	}
	if p.UseTrailingStop {
		if p.ATRWindow <= 0 {
			return core.WrapError(core.ErrConfigInvalid,
				fmt.Errorf("atr_window must be positive, got %d", p.ATRWindow))
		}
		if !(p.ATRMultiplier > 0) {
			return core.WrapError(core.ErrConfigInvalid,
				fmt.Errorf("atr_multiplier must be positive, got %v", p.ATRMultiplier))
		}
	}
	if p.Period != "" {
		if _, _, err := PeriodRange(p.Period, time.Now()); err != nil {
			return err
		}
	}
	return nil
}

// Row is the full per-bar record of a run
type Row struct {
	Bar            core.Bar      `json:"bar"`
	ShortMA        core.OptFloat `json:"short_ma"`
	LongMA         core.OptFloat `json:"long_ma"`
	ATR            core.OptFloat `json:"atr"`
	Signal         int           `json:"signal"`
	Position       core.Position `json:"position"`
	LongTrail      core.OptFloat `json:"long_trail"`
	ShortTrail     core.OptFloat `json:"short_trail"`
	StopEvent      bool          `json:"stop_event"`
	Return         core.OptFloat `json:"return"`
	StrategyReturn core.OptFloat `json:"strategy_return"`
	Equity         float64       `json:"equity"`
}

// Result holds the complete backtest output
type Result struct {
	Symbol    string             `json:"symbol"`
	Params    Params             `json:"params"`
	StartDate time.Time          `json:"start_date"`
	EndDate   time.Time          `json:"end_date"`
	Rows      []Row              `json:"rows"`
	Trades    []core.TradeRecord `json:"trades"`
	Stats     Stats              `json:"stats"`
}

// Equity returns the equity curve
func (r *Result) Equity() []float64 {
	out := make([]float64, len(r.Rows))
	for i, row := range r.Rows {
		out[i] = row.Equity
	}
	return out
}

// StrategyReturns returns the per-bar strategy returns
func (r *Result) StrategyReturns() []core.OptFloat {
	out := make([]core.OptFloat, len(r.Rows))
	for i, row := range r.Rows {
		out[i] = row.StrategyReturn
	}
	return out
}

// Stats holds performance statistics
type Stats struct {
	CAGR        core.OptFloat `json:"cagr"`
	Sharpe      core.OptFloat `json:"sharpe"`       // Annualized, zero risk-free rate
	MaxDrawdown core.OptFloat `json:"max_drawdown"` // Most negative equity/peak - 1
	FinalEquity float64       `json:"final_equity"`
	Periods     int           `json:"periods"` // Defined strategy returns
	TotalTrades int           `json:"total_trades"`
	StopEvents  int           `json:"stop_events"`
}

// SummaryRow is one symbol's line in a multi-symbol summary
type SummaryRow struct {
	Symbol      string        `json:"symbol"`
	CAGR        core.OptFloat `json:"cagr"`
	Sharpe      core.OptFloat `json:"sharpe"`
	MaxDrawdown core.OptFloat `json:"max_drawdown"`
	FinalEquity float64       `json:"final_equity"`
	Trades      int           `json:"trades"`
}

// Failure records a symbol that could not be backtested
type Failure struct {
	Symbol string `json:"symbol"`
	Error  string `json:"error"`
}

// Batch holds the output of a multi-symbol run
type Batch struct {
	Results  []*Result    `json:"results"`
	Summary  []SummaryRow `json:"summary"`
	Failures []Failure    `json:"failures,omitempty"`
}
