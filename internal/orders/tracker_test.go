package orders

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"rhbridge/internal/brokerage"
	"rhbridge/internal/types"
)

func fastDelays() []time.Duration {
	return []time.Duration{time.Millisecond, time.Millisecond, time.Millisecond}
}

func TestAwaitReturnsOnStateChange(t *testing.T) {
	var calls int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt64(&calls, 1)
		state := "unconfirmed"
		if n >= 2 {
			state = "confirmed"
		}
		json.NewEncoder(w).Encode(map[string]any{"id": "ord1", "state": state})
	}))
	defer srv.Close()

	tracker := NewTrackerWithDelays(brokerage.NewClient(srv.URL), fastDelays())
	res := tracker.Await(context.Background(), Result{ID: "ord1", State: types.OrderStateUnconfirmed})
	if res.State != types.OrderStateConfirmed {
		t.Errorf("State = %s, want confirmed", res.State)
	}
	if got := atomic.LoadInt64(&calls); got != 2 {
		t.Errorf("status calls = %d, want 2", got)
	}
}

func TestAwaitSurfacesRejectReason(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"id": "ord1", "state": "unconfirmed", "reject_reason": "price moved",
		})
	}))
	defer srv.Close()

	tracker := NewTrackerWithDelays(brokerage.NewClient(srv.URL), fastDelays())
	res := tracker.Await(context.Background(), Result{ID: "ord1", State: types.OrderStateUnconfirmed})
	if res.RejectReason != "price moved" {
		t.Errorf("RejectReason = %q, want %q", res.RejectReason, "price moved")
	}
}

func TestAwaitExhaustedScheduleKeepsUnconfirmed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"id": "ord1", "state": "unconfirmed"})
	}))
	defer srv.Close()

	tracker := NewTrackerWithDelays(brokerage.NewClient(srv.URL), fastDelays())
	res := tracker.Await(context.Background(), Result{ID: "ord1", State: types.OrderStateUnconfirmed})
	if res.State != types.OrderStateUnconfirmed {
		t.Errorf("State = %s, want unconfirmed", res.State)
	}
	if res.RejectReason != "" {
		t.Errorf("RejectReason = %q, want empty", res.RejectReason)
	}
}

func TestAwaitSkipsSettledOrders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("status endpoint should not be called")
	}))
	defer srv.Close()

	tracker := NewTrackerWithDelays(brokerage.NewClient(srv.URL), fastDelays())
	in := Result{ID: "ord1", State: types.OrderStateConfirmed}
	if res := tracker.Await(context.Background(), in); res != in {
		t.Errorf("Await changed settled result: %+v", res)
	}
	if res := tracker.Await(context.Background(), Result{}); res.ID != "" {
		t.Errorf("Await invented id: %+v", res)
	}
}
