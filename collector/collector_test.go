package collector

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"coinpulse/config"
	"coinpulse/exchange"
	"coinpulse/internal/event"
	"coinpulse/logger"
	"coinpulse/models"
)

func testConfig(apiServer string) *config.Config {
	return &config.Config{
		Market: config.MarketConfig{
			Venue:     "jubi",
			APIServer: apiServer,
			WebServer: apiServer,
			RateLimit: config.RateLimitConfig{RequestsPerSecond: 1000, BurstSize: 1000},
		},
		Collector: config.CollectorConfig{
			Coins:         []string{"btc", "eth"},
			TickInterval:  config.Duration(time.Hour),
			TrendInterval: config.Duration(time.Hour),
		},
	}
}

func newTestCollector(t *testing.T, handler http.Handler) (*Collector, *event.Bus) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := testConfig(srv.URL)
	bus := event.NewBus()
	return New(cfg, exchange.NewClient(cfg.Market), bus), bus
}

func TestStartStop(t *testing.T) {
	c, _ := newTestCollector(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))

	ctx, cancel := context.WithCancel(context.Background())
	if err := c.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := c.Start(ctx); err == nil {
		t.Fatalf("expected error on second start")
	}
	cancel()
	c.Stop()
}

func TestStartDiscoversCoins(t *testing.T) {
	c, _ := newTestCollector(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"btc":{"last":1},"eth":{"last":2},"doge":{"last":3}}`))
	}))
	c.coins = nil

	ctx, cancel := context.WithCancel(context.Background())
	if err := c.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if len(c.coins) != 3 {
		t.Fatalf("discovered coins = %v, want 3", c.coins)
	}
	cancel()
	c.Stop()
}

func TestTickCyclePublishes(t *testing.T) {
	c, bus := newTestCollector(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"btc":{"last":150}}`))
	}))

	var mu sync.Mutex
	var got models.TickerSet
	bus.Ticks("jubi").Subscribe(func(set models.TickerSet) {
		mu.Lock()
		got = set
		mu.Unlock()
	})

	c.tickCycle(context.Background(), "test-cycle")

	mu.Lock()
	defer mu.Unlock()
	if got == nil || got["btc"].Last != 150 {
		t.Fatalf("published set = %+v", got)
	}
}

func TestTickCycleDropsOnFetchError(t *testing.T) {
	c, bus := newTestCollector(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))

	published := false
	bus.Ticks("jubi").Subscribe(func(models.TickerSet) { published = true })

	c.tickCycle(context.Background(), "test-cycle")
	if published {
		t.Fatalf("failed fetch must not publish")
	}
}

func TestOrderCycleDropsPartialFailure(t *testing.T) {
	c, bus := newTestCollector(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if r.PostForm.Get("coin") == "eth" {
			http.Error(w, "down", http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`[{"date":1,"price":1,"amount":1,"type":"buy"}]`))
	}))

	published := false
	bus.Orders("jubi").Subscribe(func(models.OrderSet) { published = true })

	c.orderCycle(context.Background(), "test-cycle")
	if published {
		t.Fatalf("cycle with a failed coin must not publish")
	}
}

func TestOrderCycleGathersAllCoins(t *testing.T) {
	c, bus := newTestCollector(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"date":1,"price":1,"amount":1,"type":"buy"}]`))
	}))

	var mu sync.Mutex
	var got models.OrderSet
	bus.Orders("jubi").Subscribe(func(set models.OrderSet) {
		mu.Lock()
		got = set
		mu.Unlock()
	})

	c.orderCycle(context.Background(), "test-cycle")

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 2 || len(got["btc"]) != 1 || len(got["eth"]) != 1 {
		t.Fatalf("published set = %+v", got)
	}
}

func TestGatherReportsFailures(t *testing.T) {
	c, _ := newTestCollector(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	log := logger.GetLogger().WithComponent("collector")

	var mu sync.Mutex
	seen := map[string]bool{}
	ok := c.gather(context.Background(), log, func(_ context.Context, coin string) error {
		mu.Lock()
		seen[coin] = true
		mu.Unlock()
		return nil
	})
	if !ok {
		t.Fatalf("expected success")
	}
	if !seen["btc"] || !seen["eth"] {
		t.Fatalf("seen = %v", seen)
	}

	ok = c.gather(context.Background(), log, func(_ context.Context, coin string) error {
		if coin == "btc" {
			return fmt.Errorf("boom")
		}
		return nil
	})
	if ok {
		t.Fatalf("expected failure when any coin errors")
	}
}
