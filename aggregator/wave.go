package aggregator

import (
	"sort"
	"time"

	"coinpulse/models"
)

const dayMillis = 24 * 60 * 60 * 1000

// LastWave consolidates a sub-daily price series into daily high/low bars
// and finds, per threshold, the most recent day whose intraday swing met
// or exceeded that threshold. Ages are measured from now in fractional
// days, rounded to 1 decimal. Thresholds with no matching day anywhere in
// the history come back unmatched.
func LastWave(series models.TrendSeries, thresholds map[string]float64, now time.Time) map[string]models.WaveAge {
	bars := ConsolidateDayBars(series.Data)
	sort.Slice(bars, func(i, j int) bool { return bars[i].Date > bars[j].Date })

	result := make(map[string]models.WaveAge, len(thresholds))
	for label, ratio := range thresholds {
		age := models.WaveAge{}
		for _, bar := range bars {
			if bar.Low > 0 && bar.High/bar.Low >= ratio {
				age = models.WaveAge{
					Days:    round(float64(now.UnixMilli()-bar.Date)/dayMillis, 1),
					Matched: true,
				}
				break
			}
		}
		result[label] = age
	}
	return result
}

// ConsolidateDayBars folds time-ascending price samples into daily bars.
// A new bar opens whenever a sample falls at least one calendar day after
// the running bar's day boundary; same-day samples always extend the
// current bar. Day boundaries are UTC midnights of the sample times, not
// wall-clock today.
func ConsolidateDayBars(points []models.TrendPoint) []models.DayBar {
	var bars []models.DayBar
	var current *models.DayBar
	var currentDay time.Time

	for _, p := range points {
		t := time.Unix(p.Time, 0).UTC()
		if current == nil || t.Sub(currentDay) >= 24*time.Hour {
			if current != nil {
				bars = append(bars, *current)
			}
			currentDay = t.Truncate(24 * time.Hour)
			current = &models.DayBar{
				Date: currentDay.UnixMilli(),
				High: p.Price,
				Low:  p.Price,
			}
			continue
		}
		if p.Price > current.High {
			current.High = p.Price
		}
		if p.Price < current.Low {
			current.Low = p.Price
		}
	}

	if current != nil {
		bars = append(bars, *current)
	}
	return bars
}
