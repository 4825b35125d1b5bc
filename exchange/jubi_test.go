package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"coinpulse/config"
)

func testClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := NewClient(config.MarketConfig{
		Venue:     "jubi",
		APIServer: srv.URL + "/api/v1",
		WebServer: srv.URL,
		Key:       "test-key",
		Secret:    "test-secret",
		RateLimit: config.RateLimitConfig{RequestsPerSecond: 1000, BurstSize: 1000},
	})
	c.now = func() time.Time { return time.UnixMilli(1_700_000_000_000) }
	return c
}

func TestSignDeterministic(t *testing.T) {
	c := &Client{key: "k", secret: "s", now: func() time.Time { return time.UnixMilli(42) }}

	params := url.Values{}
	params.Set("coin", "btc")
	c.sign(params)

	if params.Get("nonce") != "42" {
		t.Fatalf("nonce = %q, want 42", params.Get("nonce"))
	}
	if params.Get("key") != "k" {
		t.Fatalf("key = %q", params.Get("key"))
	}

	// Recompute the signature over the same parameters, minus the signature
	// itself.
	check := url.Values{}
	check.Set("coin", "btc")
	check.Set("nonce", "42")
	check.Set("key", "k")
	mac := hmac.New(sha256.New, []byte("s"))
	mac.Write([]byte(check.Encode()))
	want := hex.EncodeToString(mac.Sum(nil))
	if params.Get("signature") != want {
		t.Fatalf("signature = %q, want %q", params.Get("signature"), want)
	}
}

func TestTicker(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/ticker" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if r.PostForm.Get("coin") != "btc" {
			t.Errorf("coin = %q", r.PostForm.Get("coin"))
		}
		if r.PostForm.Get("signature") == "" || r.PostForm.Get("nonce") == "" {
			t.Errorf("request not signed: %v", r.PostForm)
		}
		w.Write([]byte(`{"high":200,"low":100,"last":150,"buy":149,"sell":151,"vol":12.5,"volume":1875}`))
	}))

	row, err := c.Ticker(context.Background(), "btc")
	if err != nil {
		t.Fatalf("ticker: %v", err)
	}
	if row.Name != "btc" || row.High != 200 || row.Amount != 12.5 || row.Volume != 1875 {
		t.Fatalf("row = %+v", row)
	}
	if row.Timestamp != 1_700_000_000_000 {
		t.Fatalf("timestamp = %d", row.Timestamp)
	}
}

func TestAllTicks(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/allticker" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{"btc":{"last":150},"eth":{"last":20}}`))
	}))

	set, err := c.AllTicks(context.Background())
	if err != nil {
		t.Fatalf("allticks: %v", err)
	}
	if len(set) != 2 || set["btc"].Last != 150 || set["eth"].Last != 20 {
		t.Fatalf("set = %+v", set)
	}
	if set["eth"].Name != "eth" {
		t.Fatalf("coin name not filled in: %+v", set["eth"])
	}
}

func TestDepth(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"asks":[[151,2],[152,1]],"bids":[[149,3]]}`))
	}))

	depth, err := c.Depth(context.Background(), "btc")
	if err != nil {
		t.Fatalf("depth: %v", err)
	}
	if len(depth.Asks) != 2 || depth.Asks[0].Price != 151 || depth.Asks[0].Amount != 2 {
		t.Fatalf("asks = %+v", depth.Asks)
	}
	if len(depth.Bids) != 1 || depth.Bids[0].Price != 149 {
		t.Fatalf("bids = %+v", depth.Bids)
	}
}

func TestOrdersScalesDateToMillis(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"date":1700000000,"price":150,"amount":2,"type":"buy"}]`))
	}))

	rows, err := c.Orders(context.Background(), "btc")
	if err != nil {
		t.Fatalf("orders: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("rows = %+v", rows)
	}
	if rows[0].Timestamp != 1_700_000_000_000 {
		t.Fatalf("timestamp = %d, want milliseconds", rows[0].Timestamp)
	}
	if rows[0].Name != "btc" || rows[0].Type != "buy" {
		t.Fatalf("row = %+v", rows[0])
	}
}

func TestTrends(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/coin/trends" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Method != http.MethodGet {
			t.Errorf("unexpected method %s", r.Method)
		}
		w.Write([]byte(`{"btc":{"yprice":100,"data":[[1700000000,150],[1700000060,151]]}}`))
	}))

	set, err := c.Trends(context.Background())
	if err != nil {
		t.Fatalf("trends: %v", err)
	}
	series, ok := set["btc"]
	if !ok {
		t.Fatalf("set = %+v", set)
	}
	if series.YesterdayPrice != 100 || len(series.Data) != 2 {
		t.Fatalf("series = %+v", series)
	}
	if series.Data[0].Time != 1700000000 || series.Data[0].Price != 150 {
		t.Fatalf("point = %+v", series.Data[0])
	}
}

func TestErrorStatusSurfaces(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))

	if _, err := c.Ticker(context.Background(), "btc"); err == nil {
		t.Fatalf("expected error on non-200 status")
	}
}

func TestTickerRequiresCoin(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("no request expected")
	}))
	if _, err := c.Ticker(context.Background(), ""); err == nil {
		t.Fatalf("expected error for empty coin")
	}
}
