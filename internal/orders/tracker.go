package orders

import (
	"context"
	"time"

	"rhbridge/internal/brokerage"
	"rhbridge/internal/types"
)

// Tracker polls a freshly submitted order while it sits unconfirmed. The
// status API is eventually consistent, so a bounded number of reads with
// growing delays is all that is attempted.
type Tracker struct {
	client *brokerage.Client
	delays []time.Duration
}

func NewTracker(client *brokerage.Client) *Tracker {
	return &Tracker{
		client: client,
		delays: []time.Duration{250 * time.Millisecond, 500 * time.Millisecond, 750 * time.Millisecond},
	}
}

// NewTrackerWithDelays overrides the poll schedule; tests shrink it.
func NewTrackerWithDelays(client *brokerage.Client, delays []time.Duration) *Tracker {
	t := NewTracker(client)
	t.delays = delays
	return t
}

// Await returns once the order leaves unconfirmed, a reject reason appears,
// or the schedule is exhausted. A Result that is still unconfirmed means
// "submitted, outcome unknown", never failure.
func (t *Tracker) Await(ctx context.Context, res Result) Result {
	if res.ID == "" || res.State != types.OrderStateUnconfirmed {
		return res
	}
	for _, delay := range t.delays {
		select {
		case <-ctx.Done():
			return res
		case <-time.After(delay):
		}
		raw, err := t.client.OrderInfo(ctx, res.ID)
		if err != nil {
			continue
		}
		info := Normalize(raw)
		if info.RejectReason != "" {
			res.RejectReason = info.RejectReason
			return res
		}
		if info.State != "" && info.State != res.State {
			res.State = info.State
			return res
		}
	}
	return res
}
