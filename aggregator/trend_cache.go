package aggregator

import (
	"sync/atomic"

	"coinpulse/internal/event"
	"coinpulse/logger"
	"coinpulse/models"
)

// TrendCache holds the most recently received trend series per coin. The
// whole set is replaced on each refresh, never mutated in place, so
// readers always observe either the old or the new complete snapshot.
type TrendCache struct {
	snap atomic.Pointer[models.TrendSet]
	log  *logger.Log
}

func NewTrendCache() *TrendCache {
	c := &TrendCache{log: logger.GetLogger()}
	empty := models.TrendSet{}
	c.snap.Store(&empty)
	return c
}

// Bind subscribes the cache to a trend stream so every published refresh
// replaces the snapshot.
func (c *TrendCache) Bind(stream *event.Stream[models.TrendSet]) {
	stream.Subscribe(c.Update)
}

// Update replaces the snapshot wholesale.
func (c *TrendCache) Update(set models.TrendSet) {
	c.snap.Store(&set)
	c.log.WithComponent("trend_cache").WithFields(logger.Fields{
		"coins": len(set),
	}).Debug("trend snapshot replaced")
}

// Get returns the series for a coin from the current snapshot.
func (c *TrendCache) Get(coin string) (models.TrendSeries, bool) {
	set := *c.snap.Load()
	series, ok := set[coin]
	return series, ok
}

// Len reports how many coins the current snapshot covers.
func (c *TrendCache) Len() int {
	return len(*c.snap.Load())
}
