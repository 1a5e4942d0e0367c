package backtest

import (
	"fmt"
	"math"
	"time"

	"github.com/newthinker/crossbt/internal/core"
)

// EquityPoint is one bar of the return and equity series
type EquityPoint struct {
	Time           time.Time     `json:"time"`
	Return         core.OptFloat `json:"return"`
	StrategyReturn core.OptFloat `json:"strategy_return"`
	Equity         float64       `json:"equity"`
}

// ComputeReturns turns a position series into net strategy returns and a
// compounding equity curve. The position held at close t-1 earns the move
// into bar t; each unit of position change costs costBps/10000 on the bar it
// happens. Bar 0 has no return, and its position change is not charged.
func ComputeReturns(times []time.Time, close []float64, positions []core.Position, costBps float64) ([]EquityPoint, error) {
	if len(close) != len(positions) || len(times) != len(close) {
		return nil, core.WrapError(core.ErrInsufficientData,
			fmt.Errorf("series length mismatch: times=%d close=%d positions=%d", len(times), len(close), len(positions)))
	}
	if !(costBps >= 0) {
		return nil, core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("cost_bps cannot be negative, got %v", costBps))
	}

	costRate := costBps / 10000.0
	points := make([]EquityPoint, len(close))
	equity := 1.0

	for t := range close {
		p := EquityPoint{Time: times[t]}
		if t > 0 {
			ret := close[t]/close[t-1] - 1
			traded := math.Abs(float64(positions[t] - positions[t-1]))
			sr := float64(positions[t-1])*ret - traded*costRate

			p.Return = core.Some(ret)
			p.StrategyReturn = core.Some(sr)
		}

		// Unset returns compound as zero
		equity *= 1 + p.StrategyReturn.Or(0)
		p.Equity = equity
		points[t] = p
	}

	return points, nil
}
