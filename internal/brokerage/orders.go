package brokerage

import (
	"context"
	"fmt"
	"net/url"
)

// SubmitOrder posts a prepared order payload. The decoded body comes back
// even on a 4xx so callers can read reject details; there is no
// read-after-write guarantee on the resulting order id.
func (c *Client) SubmitOrder(ctx context.Context, payload any) (map[string]any, error) {
	return c.postJSON(ctx, pathOrders, payload)
}

// OrderInfo fetches the current view of one order.
func (c *Client) OrderInfo(ctx context.Context, orderID string) (map[string]any, error) {
	var body map[string]any
	status, err := c.getJSON(ctx, fmt.Sprintf(pathOrderInfoFmt, url.PathEscape(orderID)), nil, &body)
	if err != nil {
		return nil, err
	}
	if status != 200 {
		return nil, fmt.Errorf("order info %s: status %d", orderID, status)
	}
	return body, nil
}

// OpenOrders lists all open stock orders as raw maps; the order shape is
// loosely typed upstream and the stop-like heuristics live with callers.
func (c *Client) OpenOrders(ctx context.Context) ([]map[string]any, error) {
	out := make([]map[string]any, 0, 8)
	path := pathOrders
	params := url.Values{}
	// The orders index paginates with absolute "next" links; follow a few.
	for page := 0; page < 10; page++ {
		var body struct {
			Results []map[string]any `json:"results"`
			Next    string           `json:"next"`
		}
		status, err := c.getJSON(ctx, path, params, &body)
		if err != nil {
			return nil, err
		}
		if status != 200 {
			return nil, fmt.Errorf("open orders: status %d", status)
		}
		for _, o := range body.Results {
			if o == nil {
				continue
			}
			if cancelURL := strField(o, "cancel"); cancelURL != "" {
				out = append(out, o)
			}
		}
		if body.Next == "" {
			break
		}
		u, err := url.Parse(body.Next)
		if err != nil {
			break
		}
		path, params = u.Path, u.Query()
	}
	return out, nil
}

// CancelOrder requests cancellation of an open order.
func (c *Client) CancelOrder(ctx context.Context, orderID string) error {
	body, err := c.postJSON(ctx, fmt.Sprintf(pathOrderCancelFmt, url.PathEscape(orderID)), map[string]any{})
	if err != nil {
		return err
	}
	if detail := strField(body, "detail"); detail != "" {
		return fmt.Errorf("cancel %s: %s", orderID, detail)
	}
	return nil
}
