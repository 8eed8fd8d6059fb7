// Package orders translates trade intents into the exact payload shapes the
// brokerage accepts, normalizes its loosely-typed responses, and tracks
// freshly submitted orders until they confirm.
package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"rhbridge/internal/brokerage"
	"rhbridge/internal/instrument"
	"rhbridge/internal/types"
)

var (
	penny = decimal.RequireFromString("0.01")
	one   = decimal.NewFromInt(1)
)

// RoundPrice applies the brokerage tick convention: sub-penny prices keep
// six decimals, sub-dollar prices four, everything else two.
func RoundPrice(p decimal.Decimal) decimal.Decimal {
	switch {
	case p.LessThanOrEqual(penny):
		return p.Round(6)
	case p.LessThan(one):
		return p.Round(4)
	default:
		return p.Round(2)
	}
}

// Payload is the wire shape of an equity order. Pointer fields are omitted
// entirely when nil; the brokerage distinguishes absent from null.
type Payload struct {
	Account            string             `json:"account"`
	Instrument         string             `json:"instrument"`
	Symbol             string             `json:"symbol"`
	Price              *decimal.Decimal   `json:"price,omitempty"`
	AskPrice           decimal.Decimal    `json:"ask_price"`
	BidAskTimestamp    string             `json:"bid_ask_timestamp"`
	BidPrice           decimal.Decimal    `json:"bid_price"`
	Quantity           decimal.Decimal    `json:"quantity"`
	RefID              string             `json:"ref_id"`
	Type               types.OrderType    `json:"type"`
	StopPrice          *decimal.Decimal   `json:"stop_price,omitempty"`
	TimeInForce        types.TimeInForce  `json:"time_in_force"`
	Trigger            types.OrderTrigger `json:"trigger"`
	Side               types.OrderSide    `json:"side"`
	MarketHours        types.MarketHours  `json:"market_hours"`
	ExtendedHours      bool               `json:"extended_hours"`
	OrderFormVersion   int                `json:"order_form_version"`
	PresetPercentLimit string             `json:"preset_percent_limit,omitempty"`
}

// Request carries the resolved pricing constraints for one whole-share
// order. Quantity must be positive.
type Request struct {
	Symbol        string
	Side          types.OrderSide
	Quantity      int64
	LimitPrice    *decimal.Decimal
	StopPrice     *decimal.Decimal
	TimeInForce   types.TimeInForce
	ExtendedHours bool
	MarketHours   types.MarketHours
	Quote         *brokerage.Quote
}

// regularHoursBuyCollar mirrors the first-party client: regular-hours buys
// go in as limit orders with a preset 5% band above the reference price,
// even when the caller asked for "market".
const regularHoursBuyCollar = "0.05"

type Builder struct {
	client   *brokerage.Client
	resolver *instrument.Resolver
}

func NewBuilder(client *brokerage.Client, resolver *instrument.Resolver) *Builder {
	return &Builder{client: client, resolver: resolver}
}

// Build resolves the account and instrument references, fetching a quote
// snapshot when the caller has none, and assembles the payload.
func (b *Builder) Build(ctx context.Context, req Request) (*Payload, error) {
	if req.Symbol == "" {
		return nil, types.ErrMissingSymbol
	}
	if req.Side != types.OrderSideBuy && req.Side != types.OrderSideSell {
		return nil, types.ErrInvalidSide
	}
	if req.Quantity <= 0 {
		return nil, types.ErrInvalidQty
	}
	quote := req.Quote
	if quote == nil {
		q, err := b.client.Quote(ctx, req.Symbol)
		if err != nil {
			return nil, err
		}
		quote = q
	}
	accountURL, err := b.resolver.AccountURL(ctx)
	if err != nil {
		return nil, err
	}
	instrumentURL, err := b.resolver.InstrumentURL(ctx, req.Symbol, quote)
	if err != nil {
		return nil, err
	}
	return Assemble(req, quote, accountURL, instrumentURL)
}

// Assemble is the pure translation step. Precedence: limit+stop, limit,
// stop-triggered market, plain market priced off the quote.
func Assemble(req Request, quote *brokerage.Quote, accountURL, instrumentURL string) (*Payload, error) {
	orderType := types.OrderTypeMarket
	trigger := types.TriggerImmediate
	var price, stopPrice *decimal.Decimal

	switch {
	case req.LimitPrice != nil && req.StopPrice != nil:
		orderType = types.OrderTypeLimit
		trigger = types.TriggerStop
		price = roundPtr(*req.LimitPrice)
		stopPrice = roundPtr(*req.StopPrice)
	case req.LimitPrice != nil:
		orderType = types.OrderTypeLimit
		price = roundPtr(*req.LimitPrice)
	case req.StopPrice != nil:
		trigger = types.TriggerStop
		stopPrice = roundPtr(*req.StopPrice)
		// Buy stops carry the trigger price as the price; sell stops omit it.
		if req.Side == types.OrderSideBuy {
			price = stopPrice
		}
	default:
		ref := quote.Bid
		if req.Side == types.OrderSideBuy {
			ref = quote.Ask
		}
		if !ref.IsPositive() {
			ref = quote.LastTrade()
		}
		if !ref.IsPositive() {
			return nil, types.ErrQuoteUnavailable
		}
		price = roundPtr(ref)
	}

	marketHours := req.MarketHours
	if marketHours == "" {
		marketHours = types.MarketHoursRegular
	}
	tif := req.TimeInForce
	if tif == "" {
		tif = types.TimeInForceGFD
	}

	p := &Payload{
		Account:          accountURL,
		Instrument:       instrumentURL,
		Symbol:           quote.Symbol,
		Price:            price,
		AskPrice:         RoundPrice(firstPositive(quote.Ask, deref(price))),
		BidAskTimestamp:  time.Now().Format("2006-01-02 15:04:05.000000"),
		BidPrice:         RoundPrice(firstPositive(quote.Bid, deref(price))),
		Quantity:         decimal.NewFromInt(req.Quantity),
		RefID:            uuid.NewString(),
		Type:             orderType,
		StopPrice:        stopPrice,
		TimeInForce:      tif,
		Trigger:          trigger,
		Side:             req.Side,
		MarketHours:      marketHours,
		ExtendedHours:    req.ExtendedHours,
		OrderFormVersion: 4,
	}

	switch marketHours {
	case types.MarketHoursRegular:
		if req.Side == types.OrderSideBuy {
			p.PresetPercentLimit = regularHoursBuyCollar
			p.Type = types.OrderTypeLimit
		} else if orderType == types.OrderTypeMarket && trigger != types.TriggerStop {
			p.Price = nil
		}
	case types.MarketHoursExtended, types.MarketHoursAllDay:
		p.Type = types.OrderTypeLimit
	}
	return p, nil
}

// FractionalPayload builds a by-quantity market order for a fractional
// share count, used for dollar-sized buys and fractional position sells.
func FractionalPayload(side types.OrderSide, quote *brokerage.Quote, qty decimal.Decimal, accountURL, instrumentURL string) (*Payload, error) {
	if !qty.IsPositive() {
		return nil, types.ErrInvalidQty
	}
	ref := quote.Bid
	if side == types.OrderSideBuy {
		ref = quote.Ask
	}
	if !ref.IsPositive() {
		ref = quote.LastTrade()
	}
	if !ref.IsPositive() {
		return nil, types.ErrQuoteUnavailable
	}
	price := RoundPrice(ref)
	return &Payload{
		Account:          accountURL,
		Instrument:       instrumentURL,
		Symbol:           quote.Symbol,
		Price:            &price,
		AskPrice:         RoundPrice(firstPositive(quote.Ask, price)),
		BidAskTimestamp:  time.Now().Format("2006-01-02 15:04:05.000000"),
		BidPrice:         RoundPrice(firstPositive(quote.Bid, price)),
		Quantity:         qty.Round(6),
		RefID:            uuid.NewString(),
		Type:             types.OrderTypeMarket,
		TimeInForce:      types.TimeInForceGFD,
		Trigger:          types.TriggerImmediate,
		Side:             side,
		MarketHours:      types.MarketHoursRegular,
		OrderFormVersion: 4,
	}, nil
}

func roundPtr(d decimal.Decimal) *decimal.Decimal {
	r := RoundPrice(d)
	return &r
}

func deref(p *decimal.Decimal) decimal.Decimal {
	if p == nil {
		return decimal.Zero
	}
	return *p
}

func firstPositive(vals ...decimal.Decimal) decimal.Decimal {
	for _, v := range vals {
		if v.IsPositive() {
			return v
		}
	}
	return decimal.Zero
}
