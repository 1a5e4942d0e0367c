package parquetstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newthinker/crossbt/internal/core"
)

func writeRecords(t *testing.T, path string, records []BarRecord) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, parquet.WriteFile(path, records))
}

func record(ts time.Time, close float64) BarRecord {
	return BarRecord{
		Symbol:    "AAPL",
		Timestamp: ts.UnixMilli(),
		Open:      close,
		High:      close + 1,
		Low:       close - 1,
		Close:     close,
		Volume:    1000,
	}
}

func TestStore_FetchHistory_YearlyFiles(t *testing.T) {
	dir := t.TempDir()
	d := func(y int, m time.Month, day int) time.Time { return time.Date(y, m, day, 0, 0, 0, 0, time.UTC) }

	writeRecords(t, filepath.Join(dir, "AAPL", "2022.parquet"), []BarRecord{record(d(2022, 12, 30), 100)})
	writeRecords(t, filepath.Join(dir, "AAPL", "2023.parquet"), []BarRecord{
		record(d(2023, 1, 3), 101),
		record(d(2023, 6, 1), 102),
	})
	writeRecords(t, filepath.Join(dir, "AAPL", "2024.parquet"), []BarRecord{record(d(2024, 1, 2), 103)})

	s := New(dir)
	bars, err := s.FetchHistory(context.Background(), "AAPL", d(2023, 1, 1), d(2023, 12, 31), "1d")
	require.NoError(t, err)

	require.Len(t, bars, 2)
	assert.Equal(t, 101.0, bars[0].Close)
	assert.Equal(t, 102.0, bars[1].Close)
	assert.Equal(t, 103.0, bars[1].High)
	assert.Equal(t, "1d", bars[0].Interval)
	assert.True(t, bars[0].Time.Equal(d(2023, 1, 3)))
}

func TestStore_FetchHistory_SingleFile(t *testing.T) {
	dir := t.TempDir()
	ts := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	writeRecords(t, filepath.Join(dir, "MSFT.parquet"), []BarRecord{record(ts, 400)})

	bars, err := New(dir).FetchHistory(context.Background(), "MSFT", time.Time{}, time.Time{}, "1d")
	require.NoError(t, err)
	require.Len(t, bars, 1)
	assert.Equal(t, "MSFT", bars[0].Symbol)
}

func TestStore_FetchHistory_Missing(t *testing.T) {
	_, err := New(t.TempDir()).FetchHistory(context.Background(), "NOPE", time.Time{}, time.Time{}, "1d")
	assert.True(t, errors.Is(err, core.ErrNoData))
}
