package brokerage

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"

	"rhbridge/internal/types"
)

// AccountURL fetches the canonical URL of the primary account.
func (c *Client) AccountURL(ctx context.Context) (string, error) {
	var body struct {
		Results []map[string]any `json:"results"`
	}
	status, err := c.getJSON(ctx, pathAccounts, nil, &body)
	if err != nil {
		return "", fmt.Errorf("%w: %v", types.ErrAccountURLUnavailable, err)
	}
	if status != 200 || len(body.Results) == 0 {
		return "", types.ErrAccountURLUnavailable
	}
	u := strField(body.Results[0], "url")
	if u == "" {
		return "", types.ErrAccountURLUnavailable
	}
	return u, nil
}

// InstrumentURLBySymbol does the dedicated instrument lookup used when a
// quote snapshot did not already carry the instrument reference.
func (c *Client) InstrumentURLBySymbol(ctx context.Context, symbol string) (string, error) {
	sym := strings.ToUpper(strings.TrimSpace(symbol))
	if sym == "" {
		return "", types.ErrMissingSymbol
	}
	var body struct {
		Results []map[string]any `json:"results"`
	}
	params := url.Values{"symbol": {sym}}
	status, err := c.getJSON(ctx, pathInstruments, params, &body)
	if err != nil {
		return "", fmt.Errorf("%w: %v", types.ErrInstrumentUnavailable, err)
	}
	if status != 200 || len(body.Results) == 0 {
		return "", types.ErrInstrumentUnavailable
	}
	u := strField(body.Results[0], "url")
	if u == "" {
		return "", types.ErrInstrumentUnavailable
	}
	return u, nil
}

// ValidateSession is the cheap authenticated read used to decide whether a
// restored credential is still good: a nonzero-positions page fetch.
func (c *Client) ValidateSession(ctx context.Context) error {
	params := url.Values{"nonzero": {"true"}}
	status, err := c.getJSON(ctx, pathPositions, params, nil)
	if err != nil {
		return err
	}
	if status != 200 {
		return fmt.Errorf("positions check: status %d", status)
	}
	return nil
}

// PositionQuantity returns the held quantity for the instrument, zero when
// no open position matches.
func (c *Client) PositionQuantity(ctx context.Context, instrumentURL string) (decimal.Decimal, error) {
	if instrumentURL == "" {
		return decimal.Zero, nil
	}
	var body struct {
		Results []map[string]any `json:"results"`
	}
	params := url.Values{"nonzero": {"true"}}
	if _, err := c.getJSON(ctx, pathPositions, params, &body); err != nil {
		return decimal.Zero, err
	}
	for _, pos := range body.Results {
		if strField(pos, "instrument") == instrumentURL {
			return decField(pos, "quantity"), nil
		}
	}
	return decimal.Zero, nil
}
