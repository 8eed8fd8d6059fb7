package orders

import (
	"context"
	"fmt"
	"log"
	"strings"

	"rhbridge/internal/brokerage"
	"rhbridge/internal/types"
)

// Result is the normalized view of a submission or status response.
// Downstream code never inspects the raw broker shape.
type Result struct {
	ID           string           `json:"id,omitempty"`
	State        types.OrderState `json:"state,omitempty"`
	RejectReason string           `json:"reject_reason,omitempty"`
}

// Normalize extracts the id/state/reject trio from a raw broker response.
func Normalize(raw map[string]any) Result {
	var res Result
	if raw == nil {
		return res
	}
	if id, ok := raw["id"].(string); ok {
		res.ID = strings.TrimSpace(id)
	}
	if state, ok := raw["state"].(string); ok {
		res.State = types.OrderState(strings.TrimSpace(state))
	}
	if reject, ok := raw["reject_reason"].(string); ok {
		res.RejectReason = strings.TrimSpace(reject)
	}
	return res
}

// ErrorDetail digs the human-readable failure text out of the places the
// brokerage is known to put it.
func ErrorDetail(raw map[string]any) string {
	if raw == nil {
		return ""
	}
	for _, key := range []string{"detail", "error", "message"} {
		if s, ok := raw[key].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	if list, ok := raw["non_field_errors"].([]any); ok && len(list) > 0 {
		if s, ok := list[0].(string); ok {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

type Submitter struct {
	client *brokerage.Client
}

func NewSubmitter(client *brokerage.Client) *Submitter {
	return &Submitter{client: client}
}

// Submit posts the payload and returns the raw response; callers that need
// retry logic inspect it before committing via Require.
func (s *Submitter) Submit(ctx context.Context, payload *Payload) (map[string]any, error) {
	return s.client.SubmitOrder(ctx, payload)
}

// Require turns a raw submission response into a Result or an error:
// verbatim reject reasons and order_<state> kinds first, then transport
// failures, then anything that does not even look like an order.
func Require(raw map[string]any, submitErr error) (Result, error) {
	if submitErr != nil {
		return Result{}, fmt.Errorf("%w: %v", types.ErrOrderSubmitFailed, submitErr)
	}
	if raw == nil {
		return Result{}, types.ErrOrderSubmitFailed
	}
	detail := ErrorDetail(raw)
	res := Normalize(raw)
	if res.ID != "" || res.State != "" || res.RejectReason != "" {
		log.Printf("[trade] order status id=%s state=%s reject=%s", dash(res.ID), dash(string(res.State)), dash(res.RejectReason))
	}
	if res.RejectReason != "" {
		return res, &types.RejectError{Reason: res.RejectReason}
	}
	if res.State.Terminal() {
		return res, types.OrderStateError(res.State)
	}
	if detail != "" && res.ID == "" && res.State == "" {
		log.Printf("[trade] order error %s", detail)
		return res, &types.RejectError{Reason: detail}
	}
	if res.ID == "" && res.State == "" {
		return res, types.ErrUnexpectedOrderResponse
	}
	return res, nil
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
