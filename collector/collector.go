// Package collector polls the venue on fixed intervals and publishes each
// completed snapshot onto the event bus. Per-coin fetches fan out
// concurrently and are fully gathered before the event fires; a cycle
// with any failed coin is dropped rather than published partially.
package collector

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"coinpulse/config"
	"coinpulse/exchange"
	"coinpulse/internal/event"
	"coinpulse/logger"
	"coinpulse/models"
)

// Collector owns the polling loops for one venue.
type Collector struct {
	cfg     *config.Config
	api     *exchange.Client
	bus     *event.Bus
	venue   string
	coins   []string
	ctx     context.Context
	wg      *sync.WaitGroup
	mu      sync.RWMutex
	running bool
	log     *logger.Log
}

func New(cfg *config.Config, api *exchange.Client, bus *event.Bus) *Collector {
	return &Collector{
		cfg:   cfg,
		api:   api,
		bus:   bus,
		venue: cfg.Market.Venue,
		coins: cfg.Collector.Coins,
		wg:    &sync.WaitGroup{},
		log:   logger.GetLogger(),
	}
}

// Start discovers the coin universe when none is configured and launches
// the polling loops.
func (c *Collector) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return fmt.Errorf("collector already running")
	}
	c.running = true
	c.ctx = ctx
	c.mu.Unlock()

	log := c.log.WithComponent("collector").WithFields(logger.Fields{"operation": "start"})

	if len(c.coins) == 0 {
		ticks, err := c.api.AllTicks(ctx)
		if err != nil {
			return fmt.Errorf("discover coins: %w", err)
		}
		for coin := range ticks {
			c.coins = append(c.coins, coin)
		}
	}

	log.WithFields(logger.Fields{
		"venue": c.venue,
		"coins": len(c.coins),
	}).Info("starting collector")

	c.wg.Add(1)
	go c.loop("tick", c.cfg.Collector.TickInterval.Std(), c.tickCycle)

	c.wg.Add(1)
	go c.loop("trend", c.cfg.Collector.TrendInterval.Std(), c.trendCycle)

	if c.cfg.Collector.DepthEnabled {
		c.wg.Add(1)
		go c.loop("depth", c.cfg.Collector.DepthInterval.Std(), c.depthCycle)
	}

	if c.cfg.Collector.OrderEnabled {
		c.wg.Add(1)
		go c.loop("order", c.cfg.Collector.OrderInterval.Std(), c.orderCycle)
	}

	log.Info("collector started successfully")
	return nil
}

// Stop waits for the polling loops to exit.
func (c *Collector) Stop() {
	c.mu.Lock()
	c.running = false
	c.mu.Unlock()

	c.log.WithComponent("collector").Info("stopping collector")
	c.wg.Wait()
	c.log.WithComponent("collector").Info("collector stopped")
}

// loop runs one polling cycle on every interval boundary.
func (c *Collector) loop(name string, interval time.Duration, cycle func(context.Context, string)) {
	defer c.wg.Done()

	log := c.log.WithComponent("collector").WithFields(logger.Fields{"worker": name})
	log.Info("starting polling loop")

	now := time.Now()
	nextTick := now.Truncate(interval).Add(interval)
	timer := time.NewTimer(nextTick.Sub(now))
	defer timer.Stop()

	for {
		select {
		case <-c.ctx.Done():
			log.Info("polling loop stopped due to context cancellation")
			return
		case <-timer.C:
			cycleID := uuid.New().String()
			start := time.Now()
			cycle(c.ctx, cycleID)
			duration := time.Since(start)

			if duration > interval {
				log.WithFields(logger.Fields{
					"cycle_id":    cycleID,
					"duration_ms": duration.Milliseconds(),
					"interval_ms": interval.Milliseconds(),
				}).Warn("cycle took longer than interval")
			}

			nextTick = start.Truncate(interval).Add(interval)
			timer.Reset(time.Until(nextTick))
		}
	}
}

func (c *Collector) tickCycle(ctx context.Context, cycleID string) {
	log := c.log.WithComponent("collector").WithFields(logger.Fields{
		"cycle_id":  cycleID,
		"operation": "tick_cycle",
	})

	ticks, err := c.api.AllTicks(ctx)
	if err != nil {
		log.WithError(err).Warn("failed to fetch ticker set")
		return
	}

	c.bus.Ticks(c.venue).Publish(ticks)
	logger.LogDataFlowEntry(log, "venue_api", "tick_stream", len(ticks), "ticker_rows")
	c.log.LogMetric("collector", "ticks_collected", float64(len(ticks)), "gauge", logger.Fields{"venue": c.venue})
}

func (c *Collector) trendCycle(ctx context.Context, cycleID string) {
	log := c.log.WithComponent("collector").WithFields(logger.Fields{
		"cycle_id":  cycleID,
		"operation": "trend_cycle",
	})

	trends, err := c.api.Trends(ctx)
	if err != nil {
		log.WithError(err).Warn("failed to fetch trend series")
		return
	}

	c.bus.Trends(c.venue).Publish(trends)
	logger.LogDataFlowEntry(log, "venue_web", "trend_stream", len(trends), "trend_series")
}

func (c *Collector) depthCycle(ctx context.Context, cycleID string) {
	log := c.log.WithComponent("collector").WithFields(logger.Fields{
		"cycle_id":  cycleID,
		"operation": "depth_cycle",
	})

	var mu sync.Mutex
	set := make(models.DepthSet, len(c.coins))
	ok := c.gather(ctx, log, func(ctx context.Context, coin string) error {
		depth, err := c.api.Depth(ctx, coin)
		if err != nil {
			return err
		}
		mu.Lock()
		set[coin] = depth
		mu.Unlock()
		return nil
	})
	if !ok {
		return
	}

	c.bus.Depths(c.venue).Publish(set)
	logger.LogDataFlowEntry(log, "venue_api", "depth_stream", len(set), "depth_books")
}

func (c *Collector) orderCycle(ctx context.Context, cycleID string) {
	log := c.log.WithComponent("collector").WithFields(logger.Fields{
		"cycle_id":  cycleID,
		"operation": "order_cycle",
	})

	var mu sync.Mutex
	set := make(models.OrderSet, len(c.coins))
	ok := c.gather(ctx, log, func(ctx context.Context, coin string) error {
		rows, err := c.api.Orders(ctx, coin)
		if err != nil {
			return err
		}
		mu.Lock()
		set[coin] = rows
		mu.Unlock()
		return nil
	})
	if !ok {
		return
	}

	c.bus.Orders(c.venue).Publish(set)
	logger.LogDataFlowEntry(log, "venue_api", "order_stream", len(set), "order_lists")
	c.log.LogMetric("collector", "order_coins_collected", float64(len(set)), "gauge", logger.Fields{"venue": c.venue})
}

// gather fans one fetch per coin out concurrently and waits for all of
// them. It reports false when any coin failed, in which case the cycle
// must not publish.
func (c *Collector) gather(ctx context.Context, log *logger.Entry, fetch func(context.Context, string) error) bool {
	var wg sync.WaitGroup
	errs := make(chan error, len(c.coins))

	for _, coin := range c.coins {
		wg.Add(1)
		go func(coin string) {
			defer wg.Done()
			if err := fetch(ctx, coin); err != nil {
				errs <- fmt.Errorf("%s: %w", coin, err)
			}
		}(coin)
	}
	wg.Wait()
	close(errs)

	failed := 0
	for err := range errs {
		failed++
		log.WithError(err).Warn("per-coin fetch failed")
	}
	if failed > 0 {
		log.WithFields(logger.Fields{"failed_coins": failed}).Warn("dropping incomplete cycle")
		return false
	}
	return true
}
