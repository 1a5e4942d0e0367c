package backtest

import (
	"fmt"
	"time"

	"github.com/newthinker/crossbt/internal/core"
)

// PeriodRange converts a lookback like "1y" into a [start, end] range ending at now
func PeriodRange(period string, now time.Time) (time.Time, time.Time, error) {
	var start time.Time
	switch period {
	case "1d":
		start = now.AddDate(0, 0, -1)
	case "5d":
		start = now.AddDate(0, 0, -5)
	case "1mo":
		start = now.AddDate(0, -1, 0)
	case "3mo":
		start = now.AddDate(0, -3, 0)
	case "6mo":
		start = now.AddDate(0, -6, 0)
	case "1y":
		start = now.AddDate(-1, 0, 0)
	case "2y":
		start = now.AddDate(-2, 0, 0)
	case "5y":
		start = now.AddDate(-5, 0, 0)
	case "10y":
		start = now.AddDate(-10, 0, 0)
	case "ytd":
		start = time.Date(now.Year(), 1, 1, 0, 0, 0, 0, now.Location())
	case "max":
		start = time.Unix(0, 0).In(now.Location())
	default:
		return time.Time{}, time.Time{}, core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("unknown period %q", period))
	}
	return start, now, nil
}
