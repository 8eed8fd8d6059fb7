package httpserver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"rhbridge/internal/auth"
	"rhbridge/internal/brokerage"
	"rhbridge/internal/instrument"
	"rhbridge/internal/orders"
	"rhbridge/internal/stoploss"
	"rhbridge/internal/ticker"
	"rhbridge/internal/trading"
)

func testRouter(t *testing.T) http.Handler {
	t.Helper()
	client := brokerage.NewClient("http://127.0.0.1:0")
	mgr := auth.NewManager(client, auth.NewCredStore(t.TempDir()+"/creds.json", ""), "", "")
	resolver := instrument.NewResolver(client)
	tracker := orders.NewTrackerWithDelays(client, []time.Duration{time.Millisecond})
	stops := stoploss.NewCache()
	coord := stoploss.NewCoordinator(client, resolver, tracker)
	svc := trading.NewService(context.Background(), mgr, client, resolver, tracker, stops, coord, trading.Options{})
	return NewRouter(RouterDeps{
		AuthHandler:   auth.NewHandler(mgr),
		TradeHandler:  trading.NewHandler(svc),
		TickerHandler: ticker.NewHandler(ticker.NewStore(30), ticker.NewHub(), "*"),
		InternalToken: "secret",
	})
}

func TestHealthEndpoint(t *testing.T) {
	rec := httptest.NewRecorder()
	testRouter(t).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"ok":true`) {
		t.Errorf("body = %s", rec.Body.String())
	}
	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q, want nosniff", got)
	}
}

func TestIngestRequiresInternalToken(t *testing.T) {
	r := testRouter(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/tickers/ingest", strings.NewReader(`{"headers":["Symbol"],"rows":[]}`))
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status without token = %d, want 401", rec.Code)
	}

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/tickers/ingest", strings.NewReader(`{"headers":["Symbol"],"rows":[]}`))
	req.Header.Set("X-Internal-Token", "secret")
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status with token = %d, want 200", rec.Code)
	}
}

func TestTradeRejectedWhenLoggedOut(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/trade/buy", strings.NewReader(`{"symbol":"ABC","quantity":1}`))
	testRouter(t).ServeHTTP(rec, req)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "not_logged_in") {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestCORSPreflight(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodOptions, "/api/trade/buy", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	testRouter(t).ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Errorf("Allow-Origin = %q", got)
	}
}

func TestTickersStateEmpty(t *testing.T) {
	rec := httptest.NewRecorder()
	testRouter(t).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/tickers/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"rows":[]`) {
		t.Errorf("body = %s", rec.Body.String())
	}
}
