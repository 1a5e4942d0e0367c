package ma_crossover

import (
	"fmt"

	"github.com/newthinker/crossbt/internal/core"
)

// Signal values carried by Events.Signal
const (
	SignalNone = 0
	SignalBuy  = 1
	SignalSell = -1
)

// Events holds per-bar crossover events aligned to the input series
type Events struct {
	Signal []int
	Buy    []bool
	Sell   []bool
}

// Len returns the number of bars covered
func (e Events) Len() int {
	return len(e.Signal)
}

// Detect compares a fast and a slow series bar by bar.
// Golden cross: diff > 0 after diff <= 0. Death cross: diff < 0 after diff >= 0.
// The first bar and any bar where either diff is unset emit nothing.
func Detect(fast, slow []core.OptFloat) (Events, error) {
	if len(fast) != len(slow) {
		return Events{}, core.WrapError(core.ErrInsufficientData,
			fmt.Errorf("series length mismatch: fast=%d slow=%d", len(fast), len(slow)))
	}

	n := len(fast)
	ev := Events{
		Signal: make([]int, n),
		Buy:    make([]bool, n),
		Sell:   make([]bool, n),
	}

	for t := 1; t < n; t++ {
		curr, ok := diff(fast[t], slow[t])
		if !ok {
			continue
		}
		prev, ok := diff(fast[t-1], slow[t-1])
		if !ok {
			continue
		}

		switch {
		case curr > 0 && prev <= 0:
			ev.Buy[t] = true
			ev.Signal[t] = SignalBuy
		case curr < 0 && prev >= 0:
			ev.Sell[t] = true
			ev.Signal[t] = SignalSell
		}
	}

	return ev, nil
}

func diff(a, b core.OptFloat) (float64, bool) {
	if !a.Valid || !b.Valid {
		return 0, false
	}
	return a.Value - b.Value, true
}

// Describe returns a label like "20/50 SMA"
func Describe(short, long int, useEMA bool) string {
	kind := "SMA"
	if useEMA {
		kind = "EMA"
	}
	return fmt.Sprintf("%d/%d %s", short, long, kind)
}
