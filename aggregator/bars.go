package aggregator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"coinpulse/models"
)

// BuildBars folds a time-ascending order row sequence into one independent
// set of fixed-width volume-weighted bars per configured width, in a
// single pass. Bars are keyed by bucket index floor(ts/width) and appear
// in first-seen bucket order. The bar price is the running volume-weighted
// average of the bucket, not a close price. An empty row sequence yields
// empty bar sets.
func BuildBars(rows []models.OrderRow, widths []time.Duration) map[time.Duration][]models.Bar {
	bars := make(map[time.Duration][]models.Bar, len(widths))
	slots := make(map[time.Duration]map[int64]int, len(widths))
	for _, w := range widths {
		bars[w] = []models.Bar{}
		slots[w] = make(map[int64]int)
	}

	for _, row := range rows {
		notional := row.Price * row.Amount
		for _, w := range widths {
			width := w.Milliseconds()
			slot := row.Timestamp / width
			if i, ok := slots[w][slot]; ok {
				bar := &bars[w][i]
				bar.Amount += row.Amount
				bar.Volume += notional
				bar.Price = bar.Volume / bar.Amount
				continue
			}
			slots[w][slot] = len(bars[w])
			bars[w] = append(bars[w], models.Bar{
				Timestamp: slot * width,
				Price:     row.Price,
				Amount:    row.Amount,
				Volume:    notional,
			})
		}
	}

	return bars
}

// BarsWithin fetches the coin's orders over the trailing window and builds
// the configured multi-resolution bar sets, keyed by width label ("5m",
// "30m", ...).
func (e *Engine) BarsWithin(ctx context.Context, coin string, hours int) (map[string][]models.Bar, error) {
	if coin == "" {
		return nil, fmt.Errorf("no coin")
	}
	if err := e.requireStore(); err != nil {
		return nil, err
	}
	if hours <= 0 {
		hours = e.cfg.BiggestOrdersHours
	}

	start, end := e.window(hours)
	rows, err := e.store.OrdersWithin(ctx, coin, start, end)
	if err != nil {
		return nil, fmt.Errorf("fetch orders for %s: %w", coin, err)
	}

	byWidth := BuildBars(rows, e.cfg.BarWidthsStd())
	result := make(map[string][]models.Bar, len(byWidth))
	for w, b := range byWidth {
		result[widthLabel(w)] = b
	}
	return result, nil
}

// widthLabel renders a bucket width compactly: 5m0s becomes "5m",
// 1h0m0s becomes "1h".
func widthLabel(d time.Duration) string {
	s := d.String()
	if strings.HasSuffix(s, "m0s") {
		s = strings.TrimSuffix(s, "0s")
	}
	if strings.HasSuffix(s, "h0m") {
		s = strings.TrimSuffix(s, "0m")
	}
	return s
}
