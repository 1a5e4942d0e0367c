// Package parquetstore reads bars from Parquet files on disk laid out as
// <dir>/<SYMBOL>/<YYYY>.parquet, or a single <dir>/<SYMBOL>.parquet.
package parquetstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/newthinker/crossbt/internal/collector"
	"github.com/newthinker/crossbt/internal/core"
)

// Compile-time interface check.
var _ collector.Collector = (*Store)(nil)

// BarRecord is the Parquet schema for bar data.
type BarRecord struct {
	Symbol    string  `parquet:"symbol"`
	Timestamp int64   `parquet:"timestamp,timestamp(millisecond)"` // Unix ms
	Open      float64 `parquet:"open"`
	High      float64 `parquet:"high"`
	Low       float64 `parquet:"low"`
	Close     float64 `parquet:"close"`
	Volume    int64   `parquet:"volume"`
}

// Store reads bars from a Parquet data directory
type Store struct {
	DataDir string
}

// New creates a Store rooted at dataDir
func New(dataDir string) *Store {
	return &Store{DataDir: dataDir}
}

func (s *Store) Name() string {
	return "parquet"
}

// FetchHistory reads every file for symbol that may overlap [start, end]
// and keeps the records inside the range.
func (s *Store) FetchHistory(ctx context.Context, symbol string, start, end time.Time, interval string) ([]core.Bar, error) {
	paths, err := s.files(symbol, start, end)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, core.WrapError(core.ErrNoData, fmt.Errorf("symbol %s: no parquet files in %s", symbol, s.DataDir))
	}

	var bars []core.Bar
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		records, err := parquet.ReadFile[BarRecord](path)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}

		for _, r := range records {
			ts := time.UnixMilli(r.Timestamp).UTC()
			if !collector.InRange(ts, start, end) {
				continue
			}
			bars = append(bars, core.Bar{
				Symbol:   symbol,
				Interval: interval,
				Open:     r.Open,
				High:     r.High,
				Low:      r.Low,
				Close:    r.Close,
				Volume:   r.Volume,
				Time:     ts,
			})
		}
	}
	return bars, nil
}

// files lists the yearly files in range, falling back to a single file
func (s *Store) files(symbol string, start, end time.Time) ([]string, error) {
	dir := filepath.Join(s.DataDir, symbol)
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		single := dir + ".parquet"
		if _, err := os.Stat(single); err == nil {
			return []string{single}, nil
		}
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var paths []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".parquet") {
			continue
		}
		year, err := strconv.Atoi(strings.TrimSuffix(name, ".parquet"))
		if err != nil {
			continue
		}
		if !start.IsZero() && year < start.Year() {
			continue
		}
		if !end.IsZero() && year > end.Year() {
			continue
		}
		paths = append(paths, filepath.Join(dir, name))
	}
	sort.Strings(paths)
	return paths, nil
}
