// Package csvfile reads bars from <dir>/<SYMBOL>.csv files with a header row.
// Recognized columns (case-insensitive): date|datetime|time|timestamp, open,
// high, low, close, volume. Only the time and close columns are required.
package csvfile

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/newthinker/crossbt/internal/collector"
	"github.com/newthinker/crossbt/internal/core"
)

var _ collector.Collector = (*CSV)(nil)

var timeLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"01/02/2006",
}

// CSV serves bars from a directory of CSV files
type CSV struct {
	dir string
}

// New creates a CSV collector reading from dir
func New(dir string) *CSV {
	return &CSV{dir: dir}
}

func (c *CSV) Name() string {
	return "csv"
}

func (c *CSV) FetchHistory(ctx context.Context, symbol string, start, end time.Time, interval string) ([]core.Bar, error) {
	path := filepath.Join(c.dir, symbol+".csv")
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, core.WrapError(core.ErrNoData, fmt.Errorf("symbol %s: %s not found", symbol, path))
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	bars, err := ReadBars(f, symbol, interval)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	inRange := bars[:0]
	for _, b := range bars {
		if collector.InRange(b.Time, start, end) {
			inRange = append(inRange, b)
		}
	}
	return inRange, nil
}

type columns struct {
	time, open, high, low, close, volume int
}

// ReadBars parses CSV bar data. Rows whose close is missing or not a number
// (e.g. "null") are skipped.
func ReadBars(r io.Reader, symbol, interval string) ([]core.Bar, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	cols, err := parseHeader(header)
	if err != nil {
		return nil, err
	}

	var bars []core.Bar
	for line := 2; ; line++ {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		closePrice, ok := field(rec, cols.close)
		if !ok {
			continue
		}
		ts, err := parseTime(get(rec, cols.time))
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		bar := core.Bar{Symbol: symbol, Interval: interval, Close: closePrice, Time: ts}
		bar.Open, _ = field(rec, cols.open)
		bar.High, _ = field(rec, cols.high)
		bar.Low, _ = field(rec, cols.low)
		if v, ok := field(rec, cols.volume); ok {
			bar.Volume = int64(v)
		}
		bars = append(bars, bar)
	}
	return bars, nil
}

func parseHeader(header []string) (columns, error) {
	cols := columns{time: -1, open: -1, high: -1, low: -1, close: -1, volume: -1}
	for i, h := range header {
		switch strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))) {
		case "date", "datetime", "time", "timestamp":
			cols.time = i
		case "open":
			cols.open = i
		case "high":
			cols.high = i
		case "low":
			cols.low = i
		case "close":
			cols.close = i
		case "volume":
			cols.volume = i
		}
	}
	if cols.time < 0 || cols.close < 0 {
		return cols, core.WrapError(core.ErrConfigInvalid, fmt.Errorf("csv header needs date and close columns, got %v", header))
	}
	return cols, nil
}

func get(rec []string, i int) string {
	if i < 0 || i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}

func field(rec []string, i int) (float64, bool) {
	v, err := strconv.ParseFloat(get(rec, i), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func parseTime(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", s)
}
