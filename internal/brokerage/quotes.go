package brokerage

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"

	"rhbridge/internal/types"
)

// Quote is a point-in-time snapshot for one symbol. Zero prices mean the
// field was absent or unusable; positive values are usable references.
type Quote struct {
	Symbol        string
	Bid           decimal.Decimal
	Ask           decimal.Decimal
	Last          decimal.Decimal
	LastExtended  decimal.Decimal
	InstrumentURL string
}

// LastTrade is the last regular-hours trade, falling back to the extended
// hours print when the regular one is unusable.
func (q *Quote) LastTrade() decimal.Decimal {
	if q.Last.IsPositive() {
		return q.Last
	}
	return q.LastExtended
}

func (c *Client) Quote(ctx context.Context, symbol string) (*Quote, error) {
	sym := strings.ToUpper(strings.TrimSpace(symbol))
	if sym == "" {
		return nil, types.ErrMissingSymbol
	}
	var body struct {
		Results []map[string]any `json:"results"`
	}
	params := url.Values{"symbols": {sym}}
	status, err := c.getJSON(ctx, pathQuotes, params, &body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrQuoteUnavailable, err)
	}
	if status != 200 || len(body.Results) == 0 || body.Results[0] == nil {
		return nil, types.ErrQuoteUnavailable
	}
	raw := body.Results[0]
	return &Quote{
		Symbol:        sym,
		Bid:           decField(raw, "bid_price"),
		Ask:           decField(raw, "ask_price"),
		Last:          decField(raw, "last_trade_price"),
		LastExtended:  decField(raw, "last_extended_hours_trade_price"),
		InstrumentURL: strField(raw, "instrument"),
	}, nil
}

// decField parses a price that may arrive as a JSON string or number.
// Anything unparseable or non-finite collapses to zero.
func decField(m map[string]any, key string) decimal.Decimal {
	switch v := m[key].(type) {
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(v))
		if err != nil {
			return decimal.Zero
		}
		return d
	case float64:
		return decimal.NewFromFloat(v)
	}
	return decimal.Zero
}
