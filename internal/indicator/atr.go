package indicator

import (
	"math"

	"github.com/newthinker/crossbt/internal/core"
)

// TrueRange returns max(high-low, |high-prevClose|, |low-prevClose|) per bar.
// The first bar has no previous close and uses high-low.
func TrueRange(high, low, close []float64) []float64 {
	n := min(len(high), len(low), len(close))
	tr := make([]float64, n)
	for i := 0; i < n; i++ {
		r := high[i] - low[i]
		if i > 0 {
			prev := close[i-1]
			r = math.Max(r, math.Abs(high[i]-prev))
			r = math.Max(r, math.Abs(low[i]-prev))
		}
		tr[i] = r
	}
	return tr
}

// ATR calculates the Average True Range as a rolling mean of true range
func ATR(high, low, close []float64, window int) []core.OptFloat {
	return SMA(TrueRange(high, low, close), window)
}

// PriceSeries splits bars into high, low and close series.
// Bars without a range fall back to their close.
func PriceSeries(bars []core.Bar) (high, low, close []float64) {
	high = make([]float64, len(bars))
	low = make([]float64, len(bars))
	close = make([]float64, len(bars))
	for i, b := range bars {
		close[i] = b.Close
		if b.HasRange() {
			high[i], low[i] = b.High, b.Low
		} else {
			high[i], low[i] = b.Close, b.Close
		}
	}
	return high, low, close
}
