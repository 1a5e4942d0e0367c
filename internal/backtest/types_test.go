package backtest

import (
	"errors"
	"testing"
	"time"

	"github.com/newthinker/crossbt/internal/core"
)

func TestDefaultParams_Valid(t *testing.T) {
	if err := DefaultParams().Validate(); err != nil {
		t.Fatalf("default params should be valid: %v", err)
	}
}

func TestParams_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Params)
		wantErr bool
	}{
		{"defaults", func(p *Params) {}, false},
		{"zero short", func(p *Params) { p.Short = 0 }, true},
		{"short not below long", func(p *Params) { p.Short = 50 }, true},
		{"negative cost", func(p *Params) { p.CostBps = -1 }, true},
		{"zero cost", func(p *Params) { p.CostBps = 0 }, false},
		{"zero atr window", func(p *Params) { p.ATRWindow = 0 }, true},
		{"zero multiplier", func(p *Params) { p.ATRMultiplier = 0 }, true},
		{"stop disabled ignores atr", func(p *Params) {
			p.UseTrailingStop = false
			p.ATRWindow = 0
			p.ATRMultiplier = 0
		}, false},
		{"unknown period", func(p *Params) { p.Period = "7w" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultParams()
			tt.mutate(&p)
			err := p.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, core.ErrConfigInvalid) {
				t.Errorf("expected ErrConfigInvalid, got %v", err)
			}
		})
	}
}

func TestPeriodRange(t *testing.T) {
	now := time.Date(2024, 6, 28, 15, 0, 0, 0, time.UTC)

	tests := []struct {
		period string
		start  time.Time
	}{
		{"1mo", time.Date(2024, 5, 28, 15, 0, 0, 0, time.UTC)},
		{"1y", time.Date(2023, 6, 28, 15, 0, 0, 0, time.UTC)},
		{"5y", time.Date(2019, 6, 28, 15, 0, 0, 0, time.UTC)},
		{"ytd", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.period, func(t *testing.T) {
			start, end, err := PeriodRange(tt.period, now)
			if err != nil {
				t.Fatalf("PeriodRange(%s) error = %v", tt.period, err)
			}
			if !start.Equal(tt.start) {
				t.Errorf("start = %v, want %v", start, tt.start)
			}
			if !end.Equal(now) {
				t.Errorf("end = %v, want %v", end, now)
			}
		})
	}
}

func TestResult_Series(t *testing.T) {
	r := &Result{Rows: []Row{
		{Equity: 1},
		{Equity: 1.1, StrategyReturn: core.Some(0.1)},
	}}

	eq := r.Equity()
	if len(eq) != 2 || eq[1] != 1.1 {
		t.Errorf("unexpected equity: %v", eq)
	}
	rets := r.StrategyReturns()
	if rets[0].Valid || rets[1] != core.Some(0.1) {
		t.Errorf("unexpected returns: %v", rets)
	}
}
