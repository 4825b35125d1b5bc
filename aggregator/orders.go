package aggregator

import (
	"context"
	"fmt"
	"sort"

	"coinpulse/models"
)

// AmountDistribution computes the order-size distribution over a windowed,
// price-grouped row set: for the whole set and for each side separately,
// the mean amount and the rows at or above it, ascending by amount. Empty
// partitions produce a zero mean and an empty list.
func AmountDistribution(rows []models.PriceLevelRow) models.AmountByPrice {
	var buys, sells []models.PriceLevelRow
	for _, row := range rows {
		if row.Type == models.OrderTypeBuy {
			buys = append(buys, row)
		} else {
			sells = append(sells, row)
		}
	}

	return models.AmountByPrice{
		All:  distribution(rows),
		Buy:  distribution(buys),
		Sell: distribution(sells),
	}
}

func distribution(rows []models.PriceLevelRow) models.Distribution {
	if len(rows) == 0 {
		return models.Distribution{List: []models.PriceLevelRow{}}
	}

	var sum float64
	for _, row := range rows {
		sum += row.Amount
	}
	avg := sum / float64(len(rows))

	list := make([]models.PriceLevelRow, 0, len(rows))
	for _, row := range rows {
		if row.Amount >= avg {
			list = append(list, row)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Amount < list[j].Amount })

	return models.Distribution{List: list, Avg: avg}
}

// AmountByPrice fetches the coin's price-grouped orders over the trailing
// window and computes the amount distribution for all three partitions.
func (e *Engine) AmountByPrice(ctx context.Context, coin string, hours int) (models.AmountByPrice, error) {
	if coin == "" {
		return models.AmountByPrice{}, fmt.Errorf("no coin")
	}
	if err := e.requireStore(); err != nil {
		return models.AmountByPrice{}, err
	}
	if hours <= 0 {
		hours = e.cfg.AmountByPriceHours
	}

	start, end := e.window(hours)
	rows, err := e.store.OrdersGroupedByPrice(ctx, coin, start, end)
	if err != nil {
		return models.AmountByPrice{}, fmt.Errorf("fetch grouped orders for %s: %w", coin, err)
	}
	return AmountDistribution(rows), nil
}

// BiggestOrders returns the top percent of the window's orders by amount,
// re-reversed to ascending order so the single biggest order comes last.
func (e *Engine) BiggestOrders(ctx context.Context, coin string, hours int, percent float64) ([]models.OrderRow, error) {
	if coin == "" {
		return nil, fmt.Errorf("no coin")
	}
	if err := e.requireStore(); err != nil {
		return nil, err
	}
	if hours <= 0 {
		hours = e.cfg.BiggestOrdersHours
	}
	if percent <= 0 {
		percent = e.cfg.BiggestOrdersPercent
	}

	start, end := e.window(hours)
	count, err := e.store.CountOrders(ctx, coin, start, end)
	if err != nil {
		return nil, fmt.Errorf("count orders for %s: %w", coin, err)
	}

	limit := int64(percent * float64(count))
	if limit == 0 {
		return []models.OrderRow{}, nil
	}

	rows, err := e.store.TopOrdersByAmount(ctx, coin, start, end, limit)
	if err != nil {
		return nil, fmt.Errorf("fetch top orders for %s: %w", coin, err)
	}

	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
	return rows, nil
}
