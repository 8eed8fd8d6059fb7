package stoploss

import (
	"testing"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestCachePutSupersedes(t *testing.T) {
	c := NewCache()
	c.Put("abc", "S1", dec("9.50"))
	c.Put("ABC", "S2", dec("9.75"))

	rec, ok := c.Get("Abc")
	if !ok {
		t.Fatal("Get returned false")
	}
	if rec.OrderID != "S2" {
		t.Errorf("OrderID = %q, want S2", rec.OrderID)
	}
	if !rec.StopPrice.Equal(dec("9.75")) {
		t.Errorf("StopPrice = %s, want 9.75", rec.StopPrice)
	}
}

func TestCachePutIgnoresBlankFields(t *testing.T) {
	c := NewCache()
	c.Put("", "S1", dec("1"))
	c.Put("ABC", "  ", dec("1"))
	if len(c.Snapshot()) != 0 {
		t.Errorf("Snapshot = %v, want empty", c.Snapshot())
	}
}

func TestCacheClearIsMatchGuarded(t *testing.T) {
	c := NewCache()
	c.Put("ABC", "S1", dec("9.50"))

	c.Clear("ABC", "STALE")
	if _, ok := c.Get("ABC"); !ok {
		t.Fatal("Clear with stale id removed the record")
	}

	c.Clear("abc", "S1")
	if _, ok := c.Get("ABC"); ok {
		t.Fatal("Clear with matching id kept the record")
	}
}

func TestCacheClearUnconditionalWithEmptyID(t *testing.T) {
	c := NewCache()
	c.Put("ABC", "S1", dec("9.50"))
	c.Clear("ABC", "")
	if _, ok := c.Get("ABC"); ok {
		t.Fatal("Clear with empty id kept the record")
	}
}
