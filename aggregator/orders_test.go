package aggregator

import (
	"context"
	"fmt"
	"sort"
	"testing"

	"coinpulse/models"
)

// fakeStore serves canned rows and records the last requested window.
type fakeStore struct {
	orders  []models.OrderRow
	grouped []models.PriceLevelRow
	err     error

	lastStart int64
	lastEnd   int64
	lastLimit int64
}

func (f *fakeStore) OrdersWithin(_ context.Context, _ string, start, end int64) ([]models.OrderRow, error) {
	f.lastStart, f.lastEnd = start, end
	return f.orders, f.err
}

func (f *fakeStore) OrdersGroupedByPrice(_ context.Context, _ string, start, end int64) ([]models.PriceLevelRow, error) {
	f.lastStart, f.lastEnd = start, end
	return f.grouped, f.err
}

func (f *fakeStore) CountOrders(_ context.Context, _ string, start, end int64) (int64, error) {
	f.lastStart, f.lastEnd = start, end
	return int64(len(f.orders)), f.err
}

func (f *fakeStore) TopOrdersByAmount(_ context.Context, _ string, start, end int64, limit int64) ([]models.OrderRow, error) {
	f.lastStart, f.lastEnd, f.lastLimit = start, end, limit
	sorted := append([]models.OrderRow(nil), f.orders...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Amount > sorted[j].Amount })
	if limit < int64(len(sorted)) {
		sorted = sorted[:limit]
	}
	return sorted, f.err
}

func testCtx() context.Context { return context.Background() }

func TestAmountDistribution(t *testing.T) {
	rows := []models.PriceLevelRow{
		{Name: "btc", Price: 10, Amount: 1, Count: 1, Type: models.OrderTypeBuy},
		{Name: "btc", Price: 9, Amount: 5, Count: 2, Type: models.OrderTypeBuy},
		{Name: "btc", Price: 11, Amount: 3, Count: 1, Type: models.OrderTypeSell},
		{Name: "btc", Price: 12, Amount: 7, Count: 3, Type: models.OrderTypeSell},
	}

	got := AmountDistribution(rows)

	if got.All.Avg != 4 {
		t.Fatalf("all avg = %v, want 4", got.All.Avg)
	}
	// Rows at or above the mean, ascending by amount.
	if len(got.All.List) != 2 || got.All.List[0].Amount != 5 || got.All.List[1].Amount != 7 {
		t.Fatalf("all list = %+v", got.All.List)
	}
	if got.Buy.Avg != 3 || len(got.Buy.List) != 1 || got.Buy.List[0].Amount != 5 {
		t.Fatalf("buy = %+v", got.Buy)
	}
	if got.Sell.Avg != 5 || len(got.Sell.List) != 1 || got.Sell.List[0].Amount != 7 {
		t.Fatalf("sell = %+v", got.Sell)
	}
}

func TestAmountDistributionIncludesExactMean(t *testing.T) {
	rows := []models.PriceLevelRow{
		{Price: 1, Amount: 2, Type: models.OrderTypeBuy},
		{Price: 2, Amount: 2, Type: models.OrderTypeBuy},
	}
	got := AmountDistribution(rows)
	if len(got.All.List) != 2 {
		t.Fatalf("rows equal to the mean must be kept, got %+v", got.All.List)
	}
}

func TestAmountDistributionEmpty(t *testing.T) {
	got := AmountDistribution(nil)
	for name, d := range map[string]models.Distribution{"all": got.All, "buy": got.Buy, "sell": got.Sell} {
		if d.Avg != 0 {
			t.Fatalf("%s avg = %v, want 0", name, d.Avg)
		}
		if d.List == nil || len(d.List) != 0 {
			t.Fatalf("%s list = %#v, want empty non-nil", name, d.List)
		}
	}
}

func TestAmountByPriceRequiresCoin(t *testing.T) {
	e := testEngine(&fakeStore{})
	if _, err := e.AmountByPrice(testCtx(), "", 0); err == nil {
		t.Fatalf("expected error for empty coin")
	}
}

func TestAmountByPriceDefaultWindow(t *testing.T) {
	store := &fakeStore{}
	e := testEngine(store)

	if _, err := e.AmountByPrice(testCtx(), "btc", 0); err != nil {
		t.Fatalf("amount by price: %v", err)
	}
	wantSpan := int64(e.cfg.AmountByPriceHours) * 3_600_000
	if store.lastEnd-store.lastStart != wantSpan {
		t.Fatalf("window span = %d ms, want %d", store.lastEnd-store.lastStart, wantSpan)
	}
}

func TestBiggestOrders(t *testing.T) {
	store := &fakeStore{}
	for i := 1; i <= 10; i++ {
		store.orders = append(store.orders, models.OrderRow{
			Name: "btc", Price: 100, Amount: float64(i), Timestamp: int64(i),
		})
	}
	e := testEngine(store)

	got, err := e.BiggestOrders(testCtx(), "btc", 24, 0.5)
	if err != nil {
		t.Fatalf("biggest orders: %v", err)
	}
	if store.lastLimit != 5 {
		t.Fatalf("limit = %d, want 5", store.lastLimit)
	}
	if len(got) != 5 {
		t.Fatalf("expected 5 rows, got %d", len(got))
	}
	// Biggest order last.
	for i := 0; i < len(got); i++ {
		if got[i].Amount != float64(6+i) {
			t.Fatalf("row %d amount = %v, want %v (ascending)", i, got[i].Amount, 6+i)
		}
	}
}

func TestBiggestOrdersTruncatesLimit(t *testing.T) {
	store := &fakeStore{orders: []models.OrderRow{{Amount: 1}, {Amount: 2}, {Amount: 3}}}
	e := testEngine(store)

	got, err := e.BiggestOrders(testCtx(), "btc", 24, 0.5)
	if err != nil {
		t.Fatalf("biggest orders: %v", err)
	}
	if store.lastLimit != 1 {
		t.Fatalf("limit = %d, want floor(0.5*3) = 1", store.lastLimit)
	}
	if len(got) != 1 || got[0].Amount != 3 {
		t.Fatalf("rows = %+v, want the single biggest", got)
	}
}

func TestBiggestOrdersEmptyWindow(t *testing.T) {
	e := testEngine(&fakeStore{})
	got, err := e.BiggestOrders(testCtx(), "btc", 24, 0.5)
	if err != nil {
		t.Fatalf("biggest orders: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Fatalf("rows = %#v, want empty non-nil", got)
	}
}

func TestBiggestOrdersDefaults(t *testing.T) {
	store := &fakeStore{orders: make([]models.OrderRow, 10)}
	e := testEngine(store)

	if _, err := e.BiggestOrders(testCtx(), "btc", 0, 0); err != nil {
		t.Fatalf("biggest orders: %v", err)
	}
	if store.lastLimit != 3 {
		t.Fatalf("limit = %d, want 3 from the default 0.3 percent", store.lastLimit)
	}
	wantSpan := int64(e.cfg.BiggestOrdersHours) * 3_600_000
	if store.lastEnd-store.lastStart != wantSpan {
		t.Fatalf("window span = %d, want %d", store.lastEnd-store.lastStart, wantSpan)
	}
}

func TestBiggestOrdersStoreError(t *testing.T) {
	e := testEngine(&fakeStore{err: fmt.Errorf("boom")})
	if _, err := e.BiggestOrders(testCtx(), "btc", 24, 0.5); err == nil {
		t.Fatalf("expected store error to surface")
	}
}

func TestAggregateDispatch(t *testing.T) {
	e := testEngine(&fakeStore{})

	out, err := e.Aggregate(testCtx(), Request{
		Kind:  RequestTick,
		Ticks: []models.TickerRow{{Name: "btc", High: 2, Low: 1, Last: 1.5, Buy: 1, Sell: 2}},
	})
	if err != nil {
		t.Fatalf("tick dispatch: %v", err)
	}
	rows, ok := out.([]models.EnrichedTickerRow)
	if !ok || len(rows) != 1 || rows[0].Name != "btc" {
		t.Fatalf("tick result = %#v", out)
	}

	if _, err := e.Aggregate(testCtx(), Request{Kind: "nope"}); err == nil {
		t.Fatalf("expected error for unknown kind")
	}
	if _, err := e.Aggregate(testCtx(), Request{Kind: RequestBars}); err == nil {
		t.Fatalf("expected error for bars without coin")
	}
}
