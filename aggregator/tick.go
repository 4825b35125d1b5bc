package aggregator

import (
	"fmt"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"coinpulse/models"
)

var groupedPrinter = message.NewPrinter(language.English)

// ProcessTick converts one raw ticker row into the enriched analytics row.
// The trend cache is read once, as a point-in-time snapshot; stale trend
// data is expected and tolerated.
func (e *Engine) ProcessTick(row models.TickerRow) models.EnrichedTickerRow {
	pos := PricePosition(row.High, row.Low, row.Last)

	enriched := models.EnrichedTickerRow{
		Name:          row.Name,
		Last:          row.Last,
		Buy:           row.Buy,
		Sell:          row.Sell,
		Time:          time.UnixMilli(row.Timestamp).Format("15:04:05"),
		Amount24h:     formatGrouped(row.Amount),
		Volume24h:     formatGrouped(row.Volume),
		PricePosition: pos,
		PriceVariance: PriceVariance(pos),
		SpreadPercent: SpreadPercent(row.Buy, row.Sell),
	}

	trend, ok := e.trends.Get(row.Name)
	if !ok {
		return enriched
	}

	enriched.HasTrend = true
	if trend.YesterdayPrice != 0 {
		enriched.DailyChangePercent = round((row.Last-trend.YesterdayPrice)/trend.YesterdayPrice*100, 2)
	}
	enriched.Waves = LastWave(trend, e.cfg.WaveThresholds, e.now())

	return enriched
}

// PricePosition normalizes the last price into its 24h high/low range,
// 0 at the low and 1 at the high, rounded to 3 decimals. A flat range
// carries no position information and maps to the midpoint.
func PricePosition(high, low, last float64) float64 {
	if high == low {
		return 0.5
	}
	return round((last-low)/(high-low), 3)
}

// PriceVariance scores how extreme the normalized position is:
// (1-p)^2 + p^2, minimized at 0.5 for a mid-range price and 1.0 at either
// extreme. Rounded to 3 decimals.
func PriceVariance(pos float64) float64 {
	return round((1-pos)*(1-pos)+pos*pos, 3)
}

// SpreadPercent formats the relative gap between best buy and best sell as
// a percentage string with 3 decimals. A zero buy price yields a zero
// spread rather than a division error.
func SpreadPercent(buy, sell float64) string {
	if buy == 0 {
		return "0.000%"
	}
	return fmt.Sprintf("%.3f%%", (sell-buy)/buy*100)
}

// formatGrouped renders a 24h amount/volume figure with thousands
// separators and at most 3 fraction digits.
func formatGrouped(v float64) string {
	return groupedPrinter.Sprintf("%v", number.Decimal(v, number.MaxFractionDigits(3)))
}
