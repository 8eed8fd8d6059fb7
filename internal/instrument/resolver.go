// Package instrument memoizes the account URL and per-symbol instrument
// URLs. Both are stable for the life of the process, so entries are written
// once and never invalidated.
package instrument

import (
	"context"
	"strings"
	"sync"

	"rhbridge/internal/brokerage"
	"rhbridge/internal/types"
)

type Resolver struct {
	client *brokerage.Client

	mu         sync.Mutex
	accountURL string
	bySymbol   map[string]string
}

func NewResolver(client *brokerage.Client) *Resolver {
	return &Resolver{client: client, bySymbol: make(map[string]string)}
}

// AccountURL returns the cached account URL, fetching it on first use.
// The lock is never held across the fetch.
func (r *Resolver) AccountURL(ctx context.Context) (string, error) {
	r.mu.Lock()
	cached := r.accountURL
	r.mu.Unlock()
	if cached != "" {
		return cached, nil
	}
	u, err := r.client.AccountURL(ctx)
	if err != nil {
		return "", err
	}
	r.mu.Lock()
	r.accountURL = u
	r.mu.Unlock()
	return u, nil
}

// InstrumentURL resolves the instrument reference for a symbol. A quote
// that already embeds the instrument URL avoids the dedicated lookup.
func (r *Resolver) InstrumentURL(ctx context.Context, symbol string, quote *brokerage.Quote) (string, error) {
	sym := strings.ToUpper(strings.TrimSpace(symbol))
	if sym == "" {
		return "", types.ErrMissingSymbol
	}
	r.mu.Lock()
	cached := r.bySymbol[sym]
	r.mu.Unlock()
	if cached != "" {
		return cached, nil
	}

	inst := ""
	if quote != nil {
		inst = strings.TrimSpace(quote.InstrumentURL)
	}
	if inst == "" {
		u, err := r.client.InstrumentURLBySymbol(ctx, sym)
		if err != nil {
			return "", err
		}
		inst = u
	}
	if inst == "" {
		return "", types.ErrInstrumentUnavailable
	}
	r.mu.Lock()
	r.bySymbol[sym] = inst
	r.mu.Unlock()
	return inst, nil
}
