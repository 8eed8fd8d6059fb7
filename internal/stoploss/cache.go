// Package stoploss places and tracks the protective sell-stop that follows
// a buy. The cache holds at most one live stop order id per symbol; the
// coordinator runs detached after each buy and reports through it.
package stoploss

import (
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

type Record struct {
	Symbol    string          `json:"symbol"`
	OrderID   string          `json:"order_id"`
	StopPrice decimal.Decimal `json:"stop_price"`
	CreatedAt time.Time       `json:"created_at"`
}

type Cache struct {
	mu sync.Mutex
	m  map[string]Record
}

func NewCache() *Cache {
	return &Cache{m: make(map[string]Record)}
}

// Put unconditionally installs the record: a newly accepted stop always
// supersedes whatever was cached for the symbol.
func (c *Cache) Put(symbol, orderID string, stopPrice decimal.Decimal) {
	sym := normalize(symbol)
	if sym == "" || strings.TrimSpace(orderID) == "" {
		return
	}
	c.mu.Lock()
	c.m[sym] = Record{Symbol: sym, OrderID: strings.TrimSpace(orderID), StopPrice: stopPrice, CreatedAt: time.Now().UTC()}
	c.mu.Unlock()
}

func (c *Cache) Get(symbol string) (Record, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, ok := c.m[normalize(symbol)]
	return rec, ok
}

// Clear removes the record only while it still points at orderID, so a
// stale cancel cannot erase a newer stop that raced in. An empty orderID
// clears unconditionally.
func (c *Cache) Clear(symbol, orderID string) {
	sym := normalize(symbol)
	c.mu.Lock()
	defer c.mu.Unlock()
	if orderID == "" {
		delete(c.m, sym)
		return
	}
	if cur, ok := c.m[sym]; ok && cur.OrderID == strings.TrimSpace(orderID) {
		delete(c.m, sym)
	}
}

func (c *Cache) Snapshot() map[string]Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]Record, len(c.m))
	for k, v := range c.m {
		out[k] = v
	}
	return out
}

func normalize(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
