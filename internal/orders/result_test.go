package orders

import (
	"errors"
	"testing"

	"rhbridge/internal/types"
)

func TestRequireAcceptedOrder(t *testing.T) {
	raw := map[string]any{"id": "ord1", "state": "unconfirmed"}
	res, err := Require(raw, nil)
	if err != nil {
		t.Fatalf("Require returned error: %v", err)
	}
	if res.ID != "ord1" {
		t.Errorf("ID = %q, want %q", res.ID, "ord1")
	}
	if res.State != types.OrderStateUnconfirmed {
		t.Errorf("State = %s, want unconfirmed", res.State)
	}
}

func TestRequireRejectReasonVerbatim(t *testing.T) {
	raw := map[string]any{"id": "ord1", "state": "rejected", "reject_reason": "price moved"}
	_, err := Require(raw, nil)
	var rej *types.RejectError
	if !errors.As(err, &rej) {
		t.Fatalf("err = %v, want RejectError", err)
	}
	if rej.Reason != "price moved" {
		t.Errorf("Reason = %q, want %q", rej.Reason, "price moved")
	}
}

func TestRequireTerminalStateWithoutReason(t *testing.T) {
	raw := map[string]any{"id": "ord1", "state": "canceled"}
	_, err := Require(raw, nil)
	if err == nil || err.Error() != "order_canceled" {
		t.Fatalf("err = %v, want order_canceled", err)
	}
}

func TestRequireDetailOnlyBody(t *testing.T) {
	raw := map[string]any{"detail": "not enough buying power"}
	_, err := Require(raw, nil)
	var rej *types.RejectError
	if !errors.As(err, &rej) {
		t.Fatalf("err = %v, want RejectError", err)
	}
	if rej.Reason != "not enough buying power" {
		t.Errorf("Reason = %q, want %q", rej.Reason, "not enough buying power")
	}
}

func TestRequireUnrecognizedBody(t *testing.T) {
	if _, err := Require(map[string]any{"foo": "bar"}, nil); !errors.Is(err, types.ErrUnexpectedOrderResponse) {
		t.Fatalf("err = %v, want ErrUnexpectedOrderResponse", err)
	}
}

func TestRequireTransportFailure(t *testing.T) {
	_, err := Require(nil, errors.New("connection refused"))
	if !errors.Is(err, types.ErrOrderSubmitFailed) {
		t.Fatalf("err = %v, want ErrOrderSubmitFailed", err)
	}
}

func TestErrorDetailLocations(t *testing.T) {
	cases := []struct {
		raw  map[string]any
		want string
	}{
		{map[string]any{"detail": "a"}, "a"},
		{map[string]any{"error": "b"}, "b"},
		{map[string]any{"message": "c"}, "c"},
		{map[string]any{"non_field_errors": []any{"d", "e"}}, "d"},
		{map[string]any{}, ""},
		{nil, ""},
	}
	for _, c := range cases {
		if got := ErrorDetail(c.raw); got != c.want {
			t.Errorf("ErrorDetail(%v) = %q, want %q", c.raw, got, c.want)
		}
	}
}
