package indicator

import "github.com/newthinker/crossbt/internal/core"

// SMA calculates Simple Moving Average aligned to prices.
// The first period-1 values are unset.
func SMA(prices []float64, period int) []core.OptFloat {
	result := make([]core.OptFloat, len(prices))
	if period <= 0 || len(prices) < period {
		return result
	}

	// Calculate first SMA
	var sum float64
	for i := 0; i < period; i++ {
		sum += prices[i]
	}
	result[period-1] = core.Some(sum / float64(period))

	// Rolling calculation
	for i := period; i < len(prices); i++ {
		sum = sum - prices[i-period] + prices[i]
		result[i] = core.Some(sum / float64(period))
	}

	return result
}

// EMA calculates Exponential Moving Average with smoothing 2/(span+1).
// The recursion is seeded with the first price, so every value is set.
func EMA(prices []float64, span int) []core.OptFloat {
	result := make([]core.OptFloat, len(prices))
	if span <= 0 || len(prices) == 0 {
		return result
	}

	alpha := 2.0 / float64(span+1)
	ema := prices[0]
	result[0] = core.Some(ema)

	for i := 1; i < len(prices); i++ {
		ema = alpha*prices[i] + (1-alpha)*ema
		result[i] = core.Some(ema)
	}

	return result
}

// MovingAverages returns the short and long averages of close
func MovingAverages(close []float64, short, long int, useEMA bool) ([]core.OptFloat, []core.OptFloat) {
	if useEMA {
		return EMA(close, short), EMA(close, long)
	}
	return SMA(close, short), SMA(close, long)
}
