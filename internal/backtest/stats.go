package backtest

import (
	"math"

	"github.com/newthinker/crossbt/internal/core"
)

// PeriodsPerYear annualizes per-bar statistics (trading days)
const PeriodsPerYear = 252

// CalculateStats computes performance statistics from an equity curve and
// its strategy returns. Unset returns are dropped; with no returns left, or
// no equity, every metric is unset.
func CalculateStats(equity []float64, returns []core.OptFloat) Stats {
	var defined []float64
	for _, r := range returns {
		if v, ok := r.Get(); ok {
			defined = append(defined, v)
		}
	}

	if len(defined) == 0 || len(equity) == 0 {
		return Stats{}
	}

	final := equity[len(equity)-1]

	return Stats{
		CAGR:        calculateCAGR(final, len(defined)),
		Sharpe:      calculateSharpeRatio(defined),
		MaxDrawdown: calculateMaxDrawdown(equity),
		FinalEquity: final,
		Periods:     len(defined),
	}
}

// calculateCAGR compounds the final equity multiple by periodsPerYear/n.
// The final multiple is the base, not a per-period geometric mean.
func calculateCAGR(finalEquity float64, n int) core.OptFloat {
	exp := float64(PeriodsPerYear) / float64(max(1, n))
	cagr := math.Pow(finalEquity, exp) - 1
	// A negative final multiple has no real root
	if math.IsInf(cagr, 0) || math.IsNaN(cagr) {
		return core.None()
	}
	return core.Some(cagr)
}

// calculateSharpeRatio computes risk-adjusted return
// Assumes risk-free rate of 0 and sample standard deviation
func calculateSharpeRatio(returns []float64) core.OptFloat {
	if len(returns) < 2 {
		return core.None()
	}

	// Calculate mean return
	var sum float64
	for _, r := range returns {
		sum += r
	}
	mean := sum / float64(len(returns))

	// Calculate standard deviation
	var variance float64
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	stdDev := math.Sqrt(variance / float64(len(returns)-1))

	if math.IsNaN(stdDev) || stdDev == 0 {
		return core.None()
	}

	return core.Some(mean * math.Sqrt(PeriodsPerYear) / stdDev)
}

// calculateMaxDrawdown finds the most negative equity/runningMax - 1
func calculateMaxDrawdown(equity []float64) core.OptFloat {
	if len(equity) == 0 {
		return core.None()
	}

	peak := equity[0]
	maxDD := 0.0
	for _, e := range equity {
		if e > peak {
			peak = e
		}
		if dd := e/peak - 1; dd < maxDD {
			maxDD = dd
		}
	}

	return core.Some(maxDD)
}
