package trading

import (
	"context"
	"fmt"
	"strings"

	"rhbridge/internal/brokerage"
	"rhbridge/internal/instrument"
	"rhbridge/internal/metrics"
	"rhbridge/internal/stoploss"
	"rhbridge/internal/types"
)

// PreflightReport describes what was cancelled ahead of a sell. It rides
// back to the caller verbatim so a failed batch is visible.
type PreflightReport struct {
	Mode         string         `json:"mode"`
	CachedStopID string         `json:"cached_stop_id,omitempty"`
	Canceled     []string       `json:"canceled"`
	Attempted    int            `json:"attempted"`
	Errors       []string       `json:"errors,omitempty"`
	CachedCancel *CancelOutcome `json:"cached_cancel,omitempty"`
}

type CancelOutcome struct {
	OK        bool     `json:"ok"`
	Canceled  []string `json:"canceled"`
	Attempted int      `json:"attempted"`
	Error     string   `json:"error,omitempty"`
}

// Preflight frees shares held by resting sell orders before a new sell.
type Preflight struct {
	client   *brokerage.Client
	resolver *instrument.Resolver
	stops    *stoploss.Cache
}

func NewPreflight(client *brokerage.Client, resolver *instrument.Resolver, stops *stoploss.Cache) *Preflight {
	return &Preflight{client: client, resolver: resolver, stops: stops}
}

// CancelCached is the fast path: cancel the cached stop id directly and
// clear the cache entry only while it still matches.
func (p *Preflight) CancelCached(ctx context.Context, symbol, orderID string) CancelOutcome {
	metrics.PreflightCancel("cached")
	if err := p.client.CancelOrder(ctx, orderID); err != nil {
		return CancelOutcome{OK: false, Canceled: []string{}, Attempted: 1, Error: err.Error()}
	}
	p.stops.Clear(symbol, orderID)
	return CancelOutcome{OK: true, Canceled: []string{orderID}, Attempted: 1}
}

// ScanAndCancel walks all open orders, keeps sells for the symbol (matched
// by symbol field, falling back to instrument URL), optionally narrows to
// stop-like orders, and cancels each. Individual failures are collected;
// the batch itself never fails.
func (p *Preflight) ScanAndCancel(ctx context.Context, symbol string, mode types.CancelMode) PreflightReport {
	sym := strings.ToUpper(strings.TrimSpace(symbol))
	report := PreflightReport{Mode: string(mode), Canceled: []string{}}
	if sym == "" {
		report.Errors = append(report.Errors, types.ErrMissingSymbol.Error())
		return report
	}
	if mode != types.CancelModeStop && mode != types.CancelModeAll {
		report.Mode = string(types.CancelModeNone)
		return report
	}
	metrics.PreflightCancel("scan")

	instURL, err := p.resolver.InstrumentURL(ctx, sym, nil)
	if err != nil {
		instURL = ""
	}

	openOrders, err := p.client.OpenOrders(ctx)
	if err != nil {
		report.Errors = append(report.Errors, err.Error())
		return report
	}
	for _, o := range openOrders {
		if !strings.EqualFold(str(o, "side"), "sell") {
			continue
		}
		oSym := strings.ToUpper(str(o, "symbol"))
		if oSym != "" && oSym != sym {
			continue
		}
		// A symbol-less order must match on instrument URL. With no
		// resolved URL it is skipped, never canceled on a guess.
		if oSym == "" && (instURL == "" || str(o, "instrument") != instURL) {
			continue
		}
		if mode == types.CancelModeStop && !isStopLike(o) {
			continue
		}
		orderID := str(o, "id")
		if orderID == "" {
			continue
		}
		report.Attempted++
		if err := p.client.CancelOrder(ctx, orderID); err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", orderID, err))
			continue
		}
		report.Canceled = append(report.Canceled, orderID)
		p.stops.Clear(sym, orderID)
	}
	return report
}

// isStopLike is the single home for the loose heuristics that identify a
// protective order in the open-orders feed.
func isStopLike(order map[string]any) bool {
	if strings.EqualFold(str(order, "trigger"), "stop") {
		return true
	}
	if nonzero(order["stop_price"]) || nonzero(order["trailing_amount"]) || nonzero(order["trailing_percent"]) {
		return true
	}
	typ := strings.ToLower(str(order, "type"))
	return strings.Contains(typ, "stop") || strings.Contains(typ, "trail")
}

func str(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return strings.TrimSpace(s)
}

func nonzero(v any) bool {
	switch x := v.(type) {
	case string:
		s := strings.TrimSpace(x)
		return s != "" && s != "0" && s != "0.00" && s != "0.0000"
	case float64:
		return x != 0
	}
	return false
}
