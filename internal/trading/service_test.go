package trading

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"rhbridge/internal/auth"
	"rhbridge/internal/brokerage"
	"rhbridge/internal/instrument"
	"rhbridge/internal/orders"
	"rhbridge/internal/stoploss"
	"rhbridge/internal/types"
)

const instrumentURL = "https://api.example.com/instruments/I1/"

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func boolPtr(b bool) *bool { return &b }

// fakeBroker serves the brokerage surface the service touches and counts
// the calls the assertions care about.
type fakeBroker struct {
	srv *httptest.Server

	submits  atomic.Int64
	scans    atomic.Int64
	posCalls atomic.Int64

	cancelMu sync.Mutex
	cancels  map[string]int

	bodyMu    sync.Mutex
	submitted []map[string]any

	// positionQty returns the quantity for the nth positions call (1-based).
	positionQty func(call int64) string
	// submitResponse returns the body for the nth order submission (0-based).
	submitResponse func(n int) map[string]any
	// failCancel lists order ids whose cancel returns a failure body.
	failCancel map[string]bool
	// openOrders is the body of the open-orders index.
	openOrders []map[string]any
}

func newFakeBroker(t *testing.T) *fakeBroker {
	t.Helper()
	f := &fakeBroker{
		cancels:     map[string]int{},
		failCancel:  map[string]bool{},
		positionQty: func(int64) string { return "2.0000" },
		submitResponse: func(int) map[string]any {
			return map[string]any{"id": "ord1", "state": "confirmed"}
		},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/accounts/", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]any{{"url": "https://api.example.com/accounts/ACC1/"}},
		})
	})
	mux.HandleFunc("/quotes/", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]any{{
				"bid_price":        "9.98",
				"ask_price":        "10.00",
				"last_trade_price": "9.99",
				"instrument":       instrumentURL,
			}},
		})
	})
	mux.HandleFunc("/instruments/", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]any{{"url": instrumentURL}},
		})
	})
	mux.HandleFunc("/positions/", func(w http.ResponseWriter, r *http.Request) {
		n := f.posCalls.Add(1)
		json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]any{{
				"instrument": instrumentURL,
				"quantity":   f.positionQty(n),
			}},
		})
	})
	mux.HandleFunc("/orders/", func(w http.ResponseWriter, r *http.Request) {
		trimmed := strings.Trim(r.URL.Path, "/")
		switch {
		case r.Method == http.MethodPost && strings.HasSuffix(trimmed, "cancel"):
			parts := strings.Split(trimmed, "/")
			id := parts[len(parts)-2]
			f.cancelMu.Lock()
			f.cancels[id]++
			f.cancelMu.Unlock()
			if f.failCancel[id] {
				json.NewEncoder(w).Encode(map[string]any{"detail": "Order cannot be cancelled."})
				return
			}
			json.NewEncoder(w).Encode(map[string]any{})
		case r.Method == http.MethodPost:
			var body map[string]any
			json.NewDecoder(r.Body).Decode(&body)
			f.bodyMu.Lock()
			f.submitted = append(f.submitted, body)
			f.bodyMu.Unlock()
			n := int(f.submits.Add(1)) - 1
			json.NewEncoder(w).Encode(f.submitResponse(n))
		case trimmed == "orders":
			f.scans.Add(1)
			json.NewEncoder(w).Encode(map[string]any{"results": f.openOrders})
		default:
			json.NewEncoder(w).Encode(map[string]any{"id": "ord1", "state": "confirmed"})
		}
	})
	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeBroker) cancelCount(id string) int {
	f.cancelMu.Lock()
	defer f.cancelMu.Unlock()
	return f.cancels[id]
}

// submitBody returns the nth captured order-submission body (0-based).
func (f *fakeBroker) submitBody(n int) map[string]any {
	f.bodyMu.Lock()
	defer f.bodyMu.Unlock()
	if n >= len(f.submitted) {
		return nil
	}
	return f.submitted[n]
}

// newTestService builds a logged-in service against the fake broker.
func newTestService(t *testing.T, f *fakeBroker, opts Options) (*Service, *stoploss.Cache, *stoploss.Coordinator) {
	t.Helper()
	client := brokerage.NewClient(f.srv.URL)
	store := auth.NewCredStore(filepath.Join(t.TempDir(), "creds.json"), "")
	if err := store.Save(auth.Credentials{TokenType: "Bearer", AccessToken: "cached-token"}); err != nil {
		t.Fatalf("seed credentials: %v", err)
	}
	mgr := auth.NewManager(client, store, "user", "pass")
	if !mgr.Restore(context.Background()) {
		t.Fatal("Restore returned false")
	}

	resolver := instrument.NewResolver(client)
	tracker := orders.NewTrackerWithDelays(client, []time.Duration{time.Millisecond})
	stops := stoploss.NewCache()
	coord := stoploss.NewCoordinator(client, resolver, tracker)
	coord.SetPollInterval(5 * time.Millisecond)
	if opts.AutoStopMaxWait == 0 {
		opts.AutoStopMaxWait = 2 * time.Second
	}
	svc := NewService(context.Background(), mgr, client, resolver, tracker, stops, coord, opts)
	svc.SetRetryDelays([]time.Duration{0, time.Millisecond, 2 * time.Millisecond})
	return svc, stops, coord
}

func TestSellRetriesAfterInsufficientShares(t *testing.T) {
	f := newFakeBroker(t)
	f.failCancel["S1"] = true
	f.openOrders = []map[string]any{{
		"id": "O2", "side": "sell", "symbol": "ABC", "trigger": "stop",
		"stop_price": "9.50", "cancel": "https://api.example.com/orders/O2/cancel/",
	}}
	f.submitResponse = func(n int) map[string]any {
		if n == 0 {
			return map[string]any{"detail": "Sell order quantity exceeds available shares"}
		}
		return map[string]any{"id": "ord2", "state": "confirmed"}
	}
	svc, stops, _ := newTestService(t, f, Options{CancelMode: types.CancelModeStop})
	stops.Put("ABC", "S1", dec("9.50"))

	res, err := svc.Sell(context.Background(), TradeIntent{Symbol: "ABC"})
	if err != nil {
		t.Fatalf("Sell returned error: %v", err)
	}
	if res.Order.ID != "ord2" {
		t.Errorf("order id = %q, want ord2", res.Order.ID)
	}
	if got := f.submits.Load(); got != 2 {
		t.Errorf("submissions = %d, want 2", got)
	}
	if got := f.scans.Load(); got != 1 {
		t.Errorf("open-order scans = %d, want 1", got)
	}
	if f.cancelCount("O2") != 1 {
		t.Errorf("O2 cancels = %d, want 1", f.cancelCount("O2"))
	}
	if res.Preflight == nil {
		t.Fatal("Preflight report missing")
	}
	if res.Preflight.CachedCancel == nil || res.Preflight.CachedCancel.OK {
		t.Errorf("CachedCancel = %+v, want failed outcome", res.Preflight.CachedCancel)
	}
	if len(res.Preflight.Canceled) != 1 || res.Preflight.Canceled[0] != "O2" {
		t.Errorf("Canceled = %v, want [O2]", res.Preflight.Canceled)
	}
	if res.Preflight.CachedStopID != "S1" {
		t.Errorf("CachedStopID = %q, want S1", res.Preflight.CachedStopID)
	}
}

func TestSellCachedCancelSuccessSkipsScan(t *testing.T) {
	f := newFakeBroker(t)
	svc, stops, _ := newTestService(t, f, Options{CancelMode: types.CancelModeStop})
	stops.Put("ABC", "S1", dec("9.50"))

	res, err := svc.Sell(context.Background(), TradeIntent{Symbol: "ABC"})
	if err != nil {
		t.Fatalf("Sell returned error: %v", err)
	}
	if res.Order.ID != "ord1" {
		t.Errorf("order id = %q, want ord1", res.Order.ID)
	}
	if got := f.scans.Load(); got != 0 {
		t.Errorf("open-order scans = %d, want 0", got)
	}
	if f.cancelCount("S1") != 1 {
		t.Errorf("S1 cancels = %d, want 1", f.cancelCount("S1"))
	}
	if res.Preflight == nil || res.Preflight.CachedCancel == nil || !res.Preflight.CachedCancel.OK {
		t.Errorf("CachedCancel = %+v, want success", res.Preflight)
	}
	if _, ok := stops.Get("ABC"); ok {
		t.Error("cache record survived a successful cancel")
	}
}

func TestSellFractionalPosition(t *testing.T) {
	f := newFakeBroker(t)
	f.positionQty = func(int64) string { return "1.500000" }
	svc, _, _ := newTestService(t, f, Options{CancelMode: types.CancelModeNone})

	res, err := svc.Sell(context.Background(), TradeIntent{Symbol: "ABC"})
	if err != nil {
		t.Fatalf("Sell returned error: %v", err)
	}
	if res.Order.ID != "ord1" {
		t.Errorf("order id = %q, want ord1", res.Order.ID)
	}
	if got := f.submits.Load(); got != 1 {
		t.Errorf("submissions = %d, want 1", got)
	}
}

func TestSellNoPosition(t *testing.T) {
	f := newFakeBroker(t)
	f.positionQty = func(int64) string { return "0" }
	svc, _, _ := newTestService(t, f, Options{CancelMode: types.CancelModeNone})

	if _, err := svc.Sell(context.Background(), TradeIntent{Symbol: "ABC"}); !errors.Is(err, types.ErrNoPosition) {
		t.Fatalf("err = %v, want ErrNoPosition", err)
	}
}

func TestBuyDollarsLimitSizing(t *testing.T) {
	f := newFakeBroker(t)
	svc, _, _ := newTestService(t, f, Options{})

	_, err := svc.Buy(context.Background(), TradeIntent{
		Symbol: "ABC", AmountUSD: decPtr("9.99"),
		OrderType: types.OrderTypeLimit, LimitPrice: decPtr("10.00"),
	})
	if !errors.Is(err, types.ErrAmountTooSmallForLimit) {
		t.Fatalf("err = %v, want ErrAmountTooSmallForLimit", err)
	}
	if f.submits.Load() != 0 {
		t.Fatalf("submissions = %d, want 0", f.submits.Load())
	}

	res, err := svc.Buy(context.Background(), TradeIntent{
		Symbol: "ABC", AmountUSD: decPtr("10.01"),
		OrderType: types.OrderTypeLimit, LimitPrice: decPtr("10.00"),
	})
	if err != nil {
		t.Fatalf("Buy returned error: %v", err)
	}
	if res.Order.ID != "ord1" {
		t.Errorf("order id = %q, want ord1", res.Order.ID)
	}
	if f.submits.Load() != 1 {
		t.Errorf("submissions = %d, want 1", f.submits.Load())
	}
	if q := f.submitBody(0)["quantity"]; q != "1" {
		t.Errorf("submitted quantity = %v, want 1", q)
	}
}

func TestBuyDollarsMarketFractionalFastPath(t *testing.T) {
	f := newFakeBroker(t)
	svc, _, _ := newTestService(t, f, Options{})

	res, err := svc.Buy(context.Background(), TradeIntent{
		Symbol: "ABC", AmountUSD: decPtr("25.00"),
	})
	if err != nil {
		t.Fatalf("Buy returned error: %v", err)
	}
	if res.Order.ID != "ord1" {
		t.Errorf("order id = %q, want ord1", res.Order.ID)
	}

	if _, err := svc.Buy(context.Background(), TradeIntent{
		Symbol: "ABC", AmountUSD: decPtr("0.004"),
	}); !errors.Is(err, types.ErrAmountTooSmallForMarket) {
		t.Fatalf("err = %v, want ErrAmountTooSmallForMarket", err)
	}
}

func TestBuyValidation(t *testing.T) {
	f := newFakeBroker(t)
	svc, _, _ := newTestService(t, f, Options{})
	ctx := context.Background()

	if _, err := svc.Buy(ctx, TradeIntent{}); !errors.Is(err, types.ErrMissingSymbol) {
		t.Errorf("missing symbol err = %v", err)
	}
	if _, err := svc.Buy(ctx, TradeIntent{Symbol: "ABC", Quantity: decPtr("1.5")}); !errors.Is(err, types.ErrInvalidQty) {
		t.Errorf("fractional qty err = %v", err)
	}
	if _, err := svc.Buy(ctx, TradeIntent{Symbol: "ABC", AmountUSD: decPtr("-5")}); !errors.Is(err, types.ErrInvalidAmount) {
		t.Errorf("negative amount err = %v", err)
	}
	if _, err := svc.Buy(ctx, TradeIntent{Symbol: "ABC", OrderType: types.OrderTypeLimit}); !errors.Is(err, types.ErrMissingLimitOffset) {
		t.Errorf("missing limit err = %v", err)
	}
	if _, err := svc.Buy(ctx, TradeIntent{Symbol: "ABC", AutoStop: boolPtr(true)}); !errors.Is(err, types.ErrMissingStopRefPrice) {
		t.Errorf("missing stop ref err = %v", err)
	}
}

func TestBuyRequiresLogin(t *testing.T) {
	f := newFakeBroker(t)
	client := brokerage.NewClient(f.srv.URL)
	mgr := auth.NewManager(client, auth.NewCredStore(filepath.Join(t.TempDir(), "creds.json"), ""), "u", "p")
	resolver := instrument.NewResolver(client)
	tracker := orders.NewTrackerWithDelays(client, []time.Duration{time.Millisecond})
	stops := stoploss.NewCache()
	coord := stoploss.NewCoordinator(client, resolver, tracker)
	svc := NewService(context.Background(), mgr, client, resolver, tracker, stops, coord, Options{})

	if _, err := svc.Buy(context.Background(), TradeIntent{Symbol: "ABC", Quantity: decPtr("1")}); !errors.Is(err, types.ErrNotLoggedIn) {
		t.Fatalf("err = %v, want ErrNotLoggedIn", err)
	}
	if _, err := svc.Sell(context.Background(), TradeIntent{Symbol: "ABC"}); !errors.Is(err, types.ErrNotLoggedIn) {
		t.Fatalf("sell err = %v, want ErrNotLoggedIn", err)
	}
}

func TestBuyAutoStopProtectsFilledShares(t *testing.T) {
	f := newFakeBroker(t)
	// Flat before the buy, one share afterwards. Call 1 is the restore's
	// session validation; call 2 is the pre-buy baseline read.
	f.positionQty = func(call int64) string {
		if call <= 2 {
			return "0"
		}
		return "1.0000"
	}
	f.submitResponse = func(n int) map[string]any {
		if n == 0 {
			return map[string]any{"id": "b1", "state": "confirmed"}
		}
		return map[string]any{"id": "S1", "state": "confirmed"}
	}
	svc, stops, coord := newTestService(t, f, Options{AutoStopEnabled: true})

	res, err := svc.Buy(context.Background(), TradeIntent{
		Symbol: "ABC", Quantity: decPtr("1"), StopRefPrice: decPtr("9.60"),
	})
	if err != nil {
		t.Fatalf("Buy returned error: %v", err)
	}
	if res.AutoStop == nil || !res.AutoStop.Enabled {
		t.Fatalf("AutoStop = %+v, want enabled", res.AutoStop)
	}
	if res.AutoStop.Status != "pending" {
		t.Errorf("AutoStop.Status = %q, want pending", res.AutoStop.Status)
	}
	if res.AutoStop.Source != "cursor" {
		t.Errorf("AutoStop.Source = %q, want cursor", res.AutoStop.Source)
	}
	if res.AutoStop.StopPrice == nil || !res.AutoStop.StopPrice.Equal(dec("9.60")) {
		t.Errorf("AutoStop.StopPrice = %v, want 9.60", res.AutoStop.StopPrice)
	}

	svc.Wait()
	out := coord.Outcomes()["ABC"]
	if out.Status != stoploss.OutcomePlaced {
		t.Fatalf("outcome = %q, want placed (reason %q)", out.Status, out.Reason)
	}
	if out.Quantity != 1 {
		t.Errorf("protected qty = %d, want 1", out.Quantity)
	}
	rec, ok := stops.Get("ABC")
	if !ok || rec.OrderID != "S1" {
		t.Errorf("cache record = %+v ok=%v, want S1", rec, ok)
	}
}

func TestBuyExplicitStopPriceWins(t *testing.T) {
	f := newFakeBroker(t)
	f.positionQty = func(int64) string { return "0" }
	svc, _, _ := newTestService(t, f, Options{AutoStopEnabled: true, AutoStopMaxWait: time.Second})

	res, err := svc.Buy(context.Background(), TradeIntent{
		Symbol: "ABC", Quantity: decPtr("1"),
		StopPrice: decPtr("9.80"), StopRefPrice: decPtr("9.60"),
	})
	if err != nil {
		t.Fatalf("Buy returned error: %v", err)
	}
	if res.AutoStop.Source != "explicit" {
		t.Errorf("Source = %q, want explicit", res.AutoStop.Source)
	}
	if res.AutoStop.StopPrice == nil || !res.AutoStop.StopPrice.Equal(dec("9.80")) {
		t.Errorf("StopPrice = %v, want 9.80", res.AutoStop.StopPrice)
	}
	svc.Wait()
}
