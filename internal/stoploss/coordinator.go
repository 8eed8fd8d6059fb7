package stoploss

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"rhbridge/internal/brokerage"
	"rhbridge/internal/instrument"
	"rhbridge/internal/metrics"
	"rhbridge/internal/orders"
	"rhbridge/internal/types"
)

// Outcome statuses. A run that exhausts its wait budget without seeing a
// fill ends in "timeout": the position stays unprotected and that fact is
// queryable, not just logged.
const (
	OutcomePending  = "pending"
	OutcomePlaced   = "placed"
	OutcomeRejected = "rejected"
	OutcomeTimeout  = "timeout"
	OutcomeError    = "error"
)

type Outcome struct {
	Symbol    string          `json:"symbol"`
	Status    string          `json:"status"`
	OrderID   string          `json:"order_id,omitempty"`
	StopPrice decimal.Decimal `json:"stop_price"`
	Quantity  int64           `json:"quantity,omitempty"`
	TIF       string          `json:"time_in_force,omitempty"`
	Reason    string          `json:"reason,omitempty"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// ProtectRequest describes one post-buy protection run.
type ProtectRequest struct {
	Symbol      string
	BeforeQty   decimal.Decimal
	IntendedQty int64
	StopPrice   decimal.Decimal
	MaxWait     time.Duration
}

type Coordinator struct {
	client   *brokerage.Client
	resolver *instrument.Resolver
	tracker  *orders.Tracker

	pollInterval time.Duration

	mu       sync.Mutex
	outcomes map[string]Outcome
}

func NewCoordinator(client *brokerage.Client, resolver *instrument.Resolver, tracker *orders.Tracker) *Coordinator {
	return &Coordinator{
		client:       client,
		resolver:     resolver,
		tracker:      tracker,
		pollInterval: 500 * time.Millisecond,
		outcomes:     make(map[string]Outcome),
	}
}

// SetPollInterval shrinks the fill-poll cadence; tests use it.
func (c *Coordinator) SetPollInterval(d time.Duration) {
	c.pollInterval = d
}

// Outcomes returns the last known protection outcome per symbol.
func (c *Coordinator) Outcomes() map[string]Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]Outcome, len(c.outcomes))
	for k, v := range c.outcomes {
		out[k] = v
	}
	return out
}

func (c *Coordinator) record(o Outcome) {
	o.UpdatedAt = time.Now().UTC()
	c.mu.Lock()
	c.outcomes[o.Symbol] = o
	c.mu.Unlock()
	if o.Status != OutcomePending {
		metrics.Stop(o.Status)
	}
}

// Protect waits for the buy to show up in the position, then submits a
// protective sell-stop for exactly the filled whole shares, GTC first and
// GFD once if the rejection blames the time-in-force. Failures never reach
// the buyer; they land in the outcome registry and the stop cache.
func (c *Coordinator) Protect(ctx context.Context, cache *Cache, req ProtectRequest) {
	maxWait := req.MaxWait
	if maxWait < time.Second {
		maxWait = time.Second
	}
	if maxWait > 120*time.Second {
		maxWait = 120 * time.Second
	}
	c.record(Outcome{Symbol: req.Symbol, Status: OutcomePending, StopPrice: req.StopPrice})

	instURL, err := c.resolver.InstrumentURL(ctx, req.Symbol, nil)
	if err != nil {
		c.record(Outcome{Symbol: req.Symbol, Status: OutcomeError, StopPrice: req.StopPrice, Reason: err.Error()})
		return
	}

	deadline := time.Now().Add(maxWait)
	for time.Now().Before(deadline) {
		posQty, err := c.client.PositionQuantity(ctx, instURL)
		if err != nil {
			posQty = decimal.Zero
		}
		filled := posQty.Sub(req.BeforeQty).IntPart()
		protect := req.IntendedQty
		if filled < protect {
			protect = filled
		}
		if protect > 0 {
			log.Printf("[trade] placing stop %s qty=%d stop=%s", req.Symbol, protect, req.StopPrice)
			c.submitStop(ctx, cache, req, protect)
			return
		}
		select {
		case <-ctx.Done():
			c.record(Outcome{Symbol: req.Symbol, Status: OutcomeError, StopPrice: req.StopPrice, Reason: ctx.Err().Error()})
			return
		case <-time.After(c.pollInterval):
		}
	}
	log.Printf("[trade] stop not placed %s (timeout waiting for fill)", req.Symbol)
	c.record(Outcome{Symbol: req.Symbol, Status: OutcomeTimeout, StopPrice: req.StopPrice})
}

func (c *Coordinator) submitStop(ctx context.Context, cache *Cache, req ProtectRequest, qty int64) {
	accountURL, err := c.resolver.AccountURL(ctx)
	if err != nil {
		c.record(Outcome{Symbol: req.Symbol, Status: OutcomeError, StopPrice: req.StopPrice, Reason: err.Error()})
		return
	}
	quote, err := c.client.Quote(ctx, req.Symbol)
	if err != nil {
		c.record(Outcome{Symbol: req.Symbol, Status: OutcomeError, StopPrice: req.StopPrice, Reason: err.Error()})
		return
	}
	instURL, err := c.resolver.InstrumentURL(ctx, req.Symbol, quote)
	if err != nil {
		c.record(Outcome{Symbol: req.Symbol, Status: OutcomeError, StopPrice: req.StopPrice, Reason: err.Error()})
		return
	}

	stop := req.StopPrice
	for _, tif := range []types.TimeInForce{types.TimeInForceGTC, types.TimeInForceGFD} {
		payload, err := orders.Assemble(orders.Request{
			Symbol:      req.Symbol,
			Side:        types.OrderSideSell,
			Quantity:    qty,
			StopPrice:   &stop,
			TimeInForce: tif,
			Quote:       quote,
		}, quote, accountURL, instURL)
		if err != nil {
			c.record(Outcome{Symbol: req.Symbol, Status: OutcomeError, StopPrice: req.StopPrice, Reason: err.Error()})
			return
		}
		raw, submitErr := c.client.SubmitOrder(ctx, payload)
		res, reqErr := orders.Require(raw, submitErr)
		if res.ID != "" && !res.State.Terminal() {
			cache.Put(req.Symbol, res.ID, stop)
		}
		res = c.tracker.Await(ctx, res)

		if reqErr != nil || res.State.Terminal() || res.RejectReason != "" {
			reason := describeReject(raw, res, reqErr)
			log.Printf("[trade] stop rejected %s id=%s tif=%s reason=%s", req.Symbol, orDash(res.ID), tif, reason)
			if res.ID != "" {
				cache.Clear(req.Symbol, res.ID)
			}
			if orders.IsTIFIncompatible(reason) {
				continue
			}
			c.record(Outcome{Symbol: req.Symbol, Status: OutcomeRejected, StopPrice: req.StopPrice, Quantity: qty, TIF: string(tif), Reason: reason})
			return
		}

		log.Printf("[trade] stop placed %s id=%s state=%s tif=%s", req.Symbol, res.ID, res.State, tif)
		c.record(Outcome{Symbol: req.Symbol, Status: OutcomePlaced, OrderID: res.ID, StopPrice: req.StopPrice, Quantity: qty, TIF: string(tif)})
		return
	}
	c.record(Outcome{Symbol: req.Symbol, Status: OutcomeRejected, StopPrice: req.StopPrice, Quantity: qty, Reason: "tif_retries_exhausted"})
}

func describeReject(raw map[string]any, res orders.Result, err error) string {
	if res.RejectReason != "" {
		return res.RejectReason
	}
	if detail := orders.ErrorDetail(raw); detail != "" {
		return detail
	}
	if err != nil {
		return err.Error()
	}
	return "unknown_reject"
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
