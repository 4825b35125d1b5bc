// Package exchange implements the signed HTTP client for the jubi venue.
// API endpoints take url-encoded POST bodies signed with HMAC-SHA256 over
// the parameters; the trend series comes from the unauthenticated web
// endpoint.
package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"coinpulse/config"
	"coinpulse/logger"
	"coinpulse/models"
)

// Client talks to one venue. All outbound calls share a pooled transport
// and a rate limiter; callers own retry policy.
type Client struct {
	apiServer string
	webServer string
	key       string
	secret    string
	http      *http.Client
	limiter   *rate.Limiter
	log       *logger.Log
	now       func() time.Time
}

func NewClient(cfg config.MarketConfig) *Client {
	transport := &http.Transport{
		MaxIdleConns:       cfg.Connection.MaxIdleConns,
		MaxConnsPerHost:    cfg.Connection.MaxConnsPerHost,
		IdleConnTimeout:    cfg.Connection.IdleConnTimeout.Std(),
		DisableCompression: false,
	}

	timeout := cfg.Timeout.Std()
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	rps := cfg.RateLimit.RequestsPerSecond
	if rps <= 0 {
		rps = 10
	}
	burst := cfg.RateLimit.BurstSize
	if burst <= 0 {
		burst = rps
	}

	c := &Client{
		apiServer: strings.TrimSuffix(cfg.APIServer, "/") + "/",
		webServer: strings.TrimSuffix(cfg.WebServer, "/") + "/",
		key:       cfg.Key,
		secret:    cfg.Secret,
		http: &http.Client{
			Transport: transport,
			Timeout:   timeout,
		},
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		log:     logger.GetLogger(),
		now:     time.Now,
	}

	c.log.WithComponent("exchange").WithFields(logger.Fields{
		"api_server":          cfg.APIServer,
		"web_server":          cfg.WebServer,
		"requests_per_second": rps,
	}).Info("venue client initialized")

	return c
}

// sign adds nonce and key to the parameter set and attaches the
// HMAC-SHA256 signature over the url-encoded form.
func (c *Client) sign(params url.Values) {
	params.Set("nonce", strconv.FormatInt(c.now().UnixMilli(), 10))
	params.Set("key", c.key)

	mac := hmac.New(sha256.New, []byte(c.secret))
	mac.Write([]byte(params.Encode()))
	params.Set("signature", hex.EncodeToString(mac.Sum(nil)))
}

func (c *Client) post(ctx context.Context, endpoint string, params url.Values, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	c.sign(params)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiServer+endpoint, strings.NewReader(params.Encode()))
	if err != nil {
		return fmt.Errorf("build %s request: %w", endpoint, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	return c.do(req, endpoint, out)
}

func (c *Client) get(ctx context.Context, rawURL string, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("build request for %s: %w", rawURL, err)
	}

	return c.do(req, rawURL, out)
}

func (c *Client) do(req *http.Request, name string, out interface{}) error {
	start := time.Now()
	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", name, err)
	}
	defer res.Body.Close()

	logger.LogPerformanceEntry(c.log.WithComponent("exchange"), "exchange", "api_request", time.Since(start), logger.Fields{
		"endpoint": name,
	})

	if res.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return fmt.Errorf("%s returned status %d: %s", name, res.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", name, err)
	}
	return nil
}

// tickerPayload mirrors the venue's ticker JSON.
type tickerPayload struct {
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Last   float64 `json:"last"`
	Buy    float64 `json:"buy"`
	Sell   float64 `json:"sell"`
	Vol    float64 `json:"vol"`
	Volume float64 `json:"volume"`
}

func (p tickerPayload) toRow(coin string, ts int64) models.TickerRow {
	return models.TickerRow{
		Name:      coin,
		High:      p.High,
		Low:       p.Low,
		Last:      p.Last,
		Buy:       p.Buy,
		Sell:      p.Sell,
		Amount:    p.Vol,
		Volume:    p.Volume,
		Timestamp: ts,
	}
}

// Ticker fetches the current snapshot for one coin.
func (c *Client) Ticker(ctx context.Context, coin string) (models.TickerRow, error) {
	if coin == "" {
		return models.TickerRow{}, fmt.Errorf("no coin")
	}

	params := url.Values{}
	params.Set("coin", coin)

	var payload tickerPayload
	if err := c.post(ctx, "ticker", params, &payload); err != nil {
		return models.TickerRow{}, err
	}
	return payload.toRow(coin, c.now().UnixMilli()), nil
}

// AllTicks fetches the current snapshot for every listed coin.
func (c *Client) AllTicks(ctx context.Context) (models.TickerSet, error) {
	var payload map[string]tickerPayload
	if err := c.post(ctx, "allticker", url.Values{}, &payload); err != nil {
		return nil, err
	}

	ts := c.now().UnixMilli()
	set := make(models.TickerSet, len(payload))
	for coin, p := range payload {
		set[coin] = p.toRow(coin, ts)
	}
	return set, nil
}

// depthPayload mirrors the venue's depth JSON: price/amount pairs.
type depthPayload struct {
	Asks [][2]float64 `json:"asks"`
	Bids [][2]float64 `json:"bids"`
}

// Depth fetches the order book for one coin.
func (c *Client) Depth(ctx context.Context, coin string) (models.Depth, error) {
	if coin == "" {
		return models.Depth{}, fmt.Errorf("no coin")
	}

	params := url.Values{}
	params.Set("coin", coin)

	var payload depthPayload
	if err := c.post(ctx, "depth", params, &payload); err != nil {
		return models.Depth{}, err
	}

	depth := models.Depth{
		Asks: make([]models.DepthLevel, len(payload.Asks)),
		Bids: make([]models.DepthLevel, len(payload.Bids)),
	}
	for i, level := range payload.Asks {
		depth.Asks[i] = models.DepthLevel{Price: level[0], Amount: level[1]}
	}
	for i, level := range payload.Bids {
		depth.Bids[i] = models.DepthLevel{Price: level[0], Amount: level[1]}
	}
	return depth, nil
}

// orderPayload mirrors the venue's order records; date is epoch seconds.
type orderPayload struct {
	Date   int64   `json:"date"`
	Price  float64 `json:"price"`
	Amount float64 `json:"amount"`
	Type   string  `json:"type"`
}

// Orders fetches the recent trade records for one coin.
func (c *Client) Orders(ctx context.Context, coin string) ([]models.OrderRow, error) {
	if coin == "" {
		return nil, fmt.Errorf("no coin")
	}

	params := url.Values{}
	params.Set("coin", coin)

	var payload []orderPayload
	if err := c.post(ctx, "orders", params, &payload); err != nil {
		return nil, err
	}

	rows := make([]models.OrderRow, len(payload))
	for i, p := range payload {
		rows[i] = models.OrderRow{
			Name:      coin,
			Price:     p.Price,
			Amount:    p.Amount,
			Type:      p.Type,
			Timestamp: p.Date * 1000,
		}
	}
	return rows, nil
}

// trendPayload mirrors the web trend JSON: a prior-day reference price and
// [unixSeconds, price] sample pairs, ascending in time.
type trendPayload struct {
	Yprice float64      `json:"yprice"`
	Data   [][2]float64 `json:"data"`
}

// Trends fetches the historical trend series for every coin.
func (c *Client) Trends(ctx context.Context) (models.TrendSet, error) {
	var payload map[string]trendPayload
	if err := c.get(ctx, c.webServer+"coin/trends", &payload); err != nil {
		return nil, err
	}

	set := make(models.TrendSet, len(payload))
	for coin, p := range payload {
		series := models.TrendSeries{
			Coin:           coin,
			YesterdayPrice: p.Yprice,
			Data:           make([]models.TrendPoint, len(p.Data)),
		}
		for i, sample := range p.Data {
			series.Data[i] = models.TrendPoint{Time: int64(sample[0]), Price: sample[1]}
		}
		set[coin] = series
	}
	return set, nil
}
