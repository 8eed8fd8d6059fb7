package ticker

import "testing"

func row(symbol string, cells map[string]string) Row {
	return Row{Symbol: symbol, Values: cells}
}

func TestApplyDerivesFlagsFromSymbolCell(t *testing.T) {
	s := NewStore(30)
	snap := s.Apply(Snapshot{
		Headers: []string{"Symbol", "Price"},
		Rows: []Row{
			row("ABC", map[string]string{"Symbol": "ABC ★ (HOD)", "Price": "10.00"}),
			row("DEF", map[string]string{"Symbol": "DEF", "Price": "2.50"}),
			row("GHI", map[string]string{"Symbol": "GHI hod", "Price": "1.10"}),
		},
	})
	if !snap.Rows[0].HasNews || !snap.Rows[0].IsHOD {
		t.Errorf("row ABC flags = news %v hod %v, want both true", snap.Rows[0].HasNews, snap.Rows[0].IsHOD)
	}
	if snap.Rows[1].HasNews || snap.Rows[1].IsHOD {
		t.Errorf("row DEF flags = news %v hod %v, want both false", snap.Rows[1].HasNews, snap.Rows[1].IsHOD)
	}
	if snap.Rows[2].HasNews || !snap.Rows[2].IsHOD {
		t.Errorf("row GHI flags = news %v hod %v, want false/true", snap.Rows[2].HasNews, snap.Rows[2].IsHOD)
	}
	if len(snap.Symbols) != 3 || snap.Symbols[0] != "ABC" {
		t.Errorf("Symbols = %v", snap.Symbols)
	}
	if snap.UpdatedAt == "" {
		t.Error("UpdatedAt is empty")
	}
}

func TestApplyHODWordBoundary(t *testing.T) {
	s := NewStore(30)
	snap := s.Apply(Snapshot{
		Headers: []string{"Symbol"},
		Rows: []Row{
			row("METHOD", map[string]string{"Symbol": "METHOD"}),
		},
	})
	if snap.Rows[0].IsHOD {
		t.Error("substring hod inside a symbol flagged as HOD")
	}
}

func TestApplyKeepsFeedProvidedFlags(t *testing.T) {
	s := NewStore(30)
	snap := s.Apply(Snapshot{
		Headers: []string{"Symbol"},
		Rows: []Row{
			{Symbol: "ABC", Values: map[string]string{"Symbol": "ABC"}, HasNews: true, IsHOD: true},
		},
	})
	if !snap.Rows[0].HasNews || !snap.Rows[0].IsHOD {
		t.Error("scraper-provided flags were dropped")
	}
}

func TestApplyCapsRows(t *testing.T) {
	s := NewStore(2)
	rows := []Row{
		row("A", map[string]string{"Symbol": "A"}),
		row("B", map[string]string{"Symbol": "B"}),
		row("C", map[string]string{"Symbol": "C"}),
	}
	snap := s.Apply(Snapshot{Headers: []string{"Symbol"}, Rows: rows})
	if len(snap.Rows) != 2 {
		t.Errorf("rows = %d, want 2", len(snap.Rows))
	}
	if len(snap.Symbols) != 2 || snap.Symbols[1] != "B" {
		t.Errorf("Symbols = %v, want [A B]", snap.Symbols)
	}
}

func TestSetErrorKeepsLastRows(t *testing.T) {
	s := NewStore(30)
	s.Apply(Snapshot{Headers: []string{"Symbol"}, Rows: []Row{row("A", map[string]string{"Symbol": "A"})}})
	s.SetError("feed down")
	snap := s.State()
	if snap.Error != "feed down" {
		t.Errorf("Error = %q, want feed down", snap.Error)
	}
	if len(snap.Rows) != 1 {
		t.Errorf("rows = %d, want preserved 1", len(snap.Rows))
	}
}

func TestSymbolCellFallsBackToFirstColumn(t *testing.T) {
	got := symbolCell([]string{"Name", "Price"}, map[string]string{"Name": "XYZ ⭐", "Price": "1"})
	if got != "XYZ ⭐" {
		t.Errorf("symbolCell = %q, want first column value", got)
	}
}

func TestHubDropsSlowSubscribers(t *testing.T) {
	h := NewHub()
	sub := h.Subscribe()
	for i := 0; i < 40; i++ {
		h.Publish(Event{Type: "tickers"})
	}
	// Buffer is 16; the rest were dropped without blocking Publish.
	if len(sub) != 16 {
		t.Errorf("buffered events = %d, want 16", len(sub))
	}
	h.Unsubscribe(sub)
	if _, ok := <-sub; ok {
		// Drain the buffered events until close.
		for range sub {
		}
	}
}
