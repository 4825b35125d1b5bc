package models

// Order side values as stored and returned by the venue.
const (
	OrderTypeBuy  = "buy"
	OrderTypeSell = "sell"
)

// TickerRow is one raw venue snapshot for a single coin. Timestamps are
// epoch milliseconds throughout the module.
type TickerRow struct {
	Name      string  `json:"name"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Last      float64 `json:"last"`
	Buy       float64 `json:"buy"`
	Sell      float64 `json:"sell"`
	Amount    float64 `json:"amount"`
	Volume    float64 `json:"volume"`
	Timestamp int64   `json:"timestamp"`
}

// TickerSet holds one polling cycle's snapshot for every coin, keyed by coin name.
type TickerSet map[string]TickerRow

// WaveAge reports how long ago the most recent day met a swing threshold.
// Matched is false when no day in the available history qualified.
type WaveAge struct {
	Days    float64 `json:"days"`
	Matched bool    `json:"matched"`
}

// EnrichedTickerRow is the analytics view derived from one TickerRow.
// Trend-derived fields are only populated when HasTrend is set.
type EnrichedTickerRow struct {
	Name          string  `json:"name"`
	Last          float64 `json:"last"`
	Buy           float64 `json:"buy"`
	Sell          float64 `json:"sell"`
	Time          string  `json:"time"`
	Amount24h     string  `json:"amount_24h"`
	Volume24h     string  `json:"volume_24h"`
	PricePosition float64 `json:"price_position"`
	PriceVariance float64 `json:"price_variance"`
	SpreadPercent string  `json:"spread_percent"`

	HasTrend           bool               `json:"has_trend"`
	DailyChangePercent float64            `json:"daily_change_percent,omitempty"`
	Waves              map[string]WaveAge `json:"waves,omitempty"`
}

// TrendPoint is one sub-daily price sample, time in epoch seconds.
type TrendPoint struct {
	Time  int64   `json:"time"`
	Price float64 `json:"price"`
}

// TrendSeries is the historical price series for one coin, sorted
// ascending in time. YesterdayPrice is the venue-supplied prior-day
// reference used for the daily change computation.
type TrendSeries struct {
	Coin           string       `json:"coin"`
	YesterdayPrice float64      `json:"yesterday_price"`
	Data           []TrendPoint `json:"data"`
}

// TrendSet holds the trend series for every coin, keyed by coin name.
// It is replaced wholesale on each trend refresh, never mutated in place.
type TrendSet map[string]TrendSeries

// DayBar is a consolidated daily high/low bar. Date is the epoch
// millisecond of the day boundary.
type DayBar struct {
	Date int64   `json:"date"`
	High float64 `json:"high"`
	Low  float64 `json:"low"`
}

// OrderRow is one raw trade/order record.
type OrderRow struct {
	Name      string  `json:"name"`
	Price     float64 `json:"price"`
	Amount    float64 `json:"amount"`
	Type      string  `json:"type"`
	Timestamp int64   `json:"timestamp"`
}

// OrderSet holds one polling cycle's order rows for every coin.
type OrderSet map[string][]OrderRow

// PriceLevelRow is an order row pre-grouped by (price, type) with the
// amount summed over the group. Produced by the storage layer.
type PriceLevelRow struct {
	Name   string  `json:"name"`
	Price  float64 `json:"price"`
	Amount float64 `json:"amount"`
	Count  int64   `json:"count"`
	Type   string  `json:"type"`
}

// Bar is a volume-weighted aggregate of the orders inside one fixed time
// bucket. Price is the running volume-weighted average, Volume the summed
// notional and Timestamp the bucket's start, in epoch milliseconds.
type Bar struct {
	Timestamp int64   `json:"timestamp"`
	Price     float64 `json:"price"`
	Amount    float64 `json:"amount"`
	Volume    float64 `json:"volume"`
}

// Distribution holds one partition of the amount-by-price analysis:
// the rows at or above the partition mean, ascending by amount.
type Distribution struct {
	List []PriceLevelRow `json:"list"`
	Avg  float64         `json:"avg"`
}

// AmountByPrice is the full amount-by-price result over a row window.
type AmountByPrice struct {
	All  Distribution `json:"all"`
	Buy  Distribution `json:"buy"`
	Sell Distribution `json:"sell"`
}

// DepthLevel is one price level of an order book side.
type DepthLevel struct {
	Price  float64 `json:"price"`
	Amount float64 `json:"amount"`
}

// Depth is the order book state for one coin.
type Depth struct {
	Asks []DepthLevel `json:"asks"`
	Bids []DepthLevel `json:"bids"`
}

// DepthSet holds one polling cycle's depth for every coin.
type DepthSet map[string]Depth
