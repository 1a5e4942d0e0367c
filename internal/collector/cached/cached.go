// Package cached wraps a collector with a read-through bar cache kept in
// archive storage.
package cached

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/newthinker/crossbt/internal/collector"
	"github.com/newthinker/crossbt/internal/core"
	"github.com/newthinker/crossbt/internal/storage/archive"
)

var _ collector.Collector = (*Collector)(nil)

// Collector serves bars from storage when present and fetches otherwise
type Collector struct {
	next    collector.Collector
	storage archive.Storage
	logger  *zap.Logger
}

// New wraps next with a cache in storage
func New(next collector.Collector, storage archive.Storage, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Collector{next: next, storage: storage, logger: logger}
}

// Name reports the wrapped provider's name
func (c *Collector) Name() string {
	return c.next.Name()
}

// Key returns the storage key for one request. Bounds are truncated to the
// day, so repeated runs on the same day share an entry.
func Key(provider, symbol, interval string, start, end time.Time) string {
	return fmt.Sprintf("bars/%s/%s/%s/%s_%s.json",
		provider, symbol, interval, start.UTC().Format("20060102"), end.UTC().Format("20060102"))
}

func (c *Collector) FetchHistory(ctx context.Context, symbol string, start, end time.Time, interval string) ([]core.Bar, error) {
	key := Key(c.next.Name(), symbol, interval, start, end)

	data, err := c.storage.Read(ctx, key)
	switch {
	case err == nil:
		var bars []core.Bar
		if err := json.Unmarshal(data, &bars); err == nil {
			c.logger.Debug("bar cache hit", zap.String("key", key), zap.Int("bars", len(bars)))
			return bars, nil
		}
		c.logger.Warn("discarding corrupt cache entry", zap.String("key", key))
	case !errors.Is(err, archive.ErrNotFound):
		c.logger.Warn("bar cache read failed", zap.String("key", key), zap.Error(err))
	}

	bars, err := c.next.FetchHistory(ctx, symbol, start, end, interval)
	if err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return bars, nil
	}

	data, err = json.Marshal(bars)
	if err != nil {
		return bars, nil
	}
	if err := c.storage.Write(ctx, key, data); err != nil {
		c.logger.Warn("bar cache write failed", zap.String("key", key), zap.Error(err))
	}
	return bars, nil
}
