// Package aggregator is the analytics core: it turns raw per-coin rows
// collected from the venue into derived views. All entry points are
// synchronous, CPU-bound transformations over already-fetched rows; the
// only shared state is the trend cache, which is swapped wholesale on
// each trend refresh.
package aggregator

import (
	"context"
	"fmt"
	"math"
	"time"

	"coinpulse/config"
	"coinpulse/logger"
	"coinpulse/models"
)

// Request kinds accepted by the dispatch entry point.
const (
	RequestTick          = "tick"
	RequestAmountByPrice = "order-amount-by-price"
	RequestBiggestOrders = "order-biggest-amount-percent"
	RequestBars          = "bars-within-hours"
)

// OrderStore is the row-fetch interface owned by the storage layer. Time
// bounds are epoch milliseconds, windows are (start, end) exclusive.
// OrdersWithin returns rows in ascending timestamp order; TopOrdersByAmount
// in descending amount order.
type OrderStore interface {
	OrdersWithin(ctx context.Context, coin string, start, end int64) ([]models.OrderRow, error)
	OrdersGroupedByPrice(ctx context.Context, coin string, start, end int64) ([]models.PriceLevelRow, error)
	CountOrders(ctx context.Context, coin string, start, end int64) (int64, error)
	TopOrdersByAmount(ctx context.Context, coin string, start, end int64, limit int64) ([]models.OrderRow, error)
}

// Request is the payload of one dispatch call. Ticks is consumed by the
// tick kind; Coin/Hours/Percent by the order and bar kinds. Zero Hours and
// Percent fall back to the configured defaults.
type Request struct {
	Kind    string             `json:"kind"`
	Ticks   []models.TickerRow `json:"ticks,omitempty"`
	Coin    string             `json:"coin,omitempty"`
	Hours   int                `json:"hours,omitempty"`
	Percent float64            `json:"percent,omitempty"`
}

// Engine holds the aggregation entry points together with their
// collaborators.
type Engine struct {
	cfg    config.AnalyticsConfig
	store  OrderStore
	trends *TrendCache
	log    *logger.Log
	now    func() time.Time
}

func NewEngine(cfg config.AnalyticsConfig, store OrderStore, trends *TrendCache) *Engine {
	return &Engine{
		cfg:    cfg,
		store:  store,
		trends: trends,
		log:    logger.GetLogger(),
		now:    time.Now,
	}
}

// Aggregate dispatches one request to the matching derivation and returns
// the derived structure. Unknown kinds and missing identifiers fail before
// any storage call; storage errors are surfaced unchanged.
func (e *Engine) Aggregate(ctx context.Context, req Request) (interface{}, error) {
	start := time.Now()
	defer func() {
		logger.LogPerformanceEntry(e.log.WithComponent("aggregator"), "aggregator", req.Kind, time.Since(start), logger.Fields{
			"coin": req.Coin,
		})
	}()

	switch req.Kind {
	case RequestTick:
		rows := make([]models.EnrichedTickerRow, 0, len(req.Ticks))
		for _, row := range req.Ticks {
			rows = append(rows, e.ProcessTick(row))
		}
		return rows, nil
	case RequestAmountByPrice:
		return e.AmountByPrice(ctx, req.Coin, req.Hours)
	case RequestBiggestOrders:
		return e.BiggestOrders(ctx, req.Coin, req.Hours, req.Percent)
	case RequestBars:
		return e.BarsWithin(ctx, req.Coin, req.Hours)
	default:
		return nil, fmt.Errorf("unknown request kind %q", req.Kind)
	}
}

func (e *Engine) requireStore() error {
	if e.store == nil {
		return fmt.Errorf("no order store configured")
	}
	return nil
}

// window converts an hour span ending now into epoch millisecond bounds.
func (e *Engine) window(hours int) (int64, int64) {
	end := e.now().UnixMilli()
	return end - int64(hours)*time.Hour.Milliseconds(), end
}

func round(v float64, decimals int) float64 {
	scale := math.Pow10(decimals)
	return math.Round(v*scale) / scale
}
