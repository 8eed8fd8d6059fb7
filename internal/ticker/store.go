// Package ticker holds the momentum-screener snapshot pushed by the local
// scraper and fans updates out to websocket subscribers.
package ticker

import (
	"regexp"
	"strings"
	"sync"
	"time"
)

// starChars are the glyphs the screener uses to flag fresh news, including
// mojibake variants seen in console captures of the feed.
var starChars = []string{
	"⭐", "★", "☆", "✪", "✩", "✫", "✬",
	"✭", "✮", "✯", "✰", "✨",
	"â­", "â˜…", "â˜†",
	"âœª", "âœ©", "âœ«",
	"âœ¬", "âœ­", "âœ®",
	"âœ¯", "âœ°", "âœ¨",
}

// hodRe matches the high-of-day tag whether formatted as "(HOD)" or bare.
var hodRe = regexp.MustCompile(`(?i)\bHOD\b`)

type Row struct {
	Symbol  string            `json:"symbol"`
	Values  map[string]string `json:"values"`
	HasNews bool              `json:"has_news"`
	IsHOD   bool              `json:"is_hod"`
}

type Snapshot struct {
	UpdatedAt string   `json:"updated_at"`
	Headers   []string `json:"headers"`
	Rows      []Row    `json:"rows"`
	Symbols   []string `json:"symbols"`
	Error     string   `json:"error,omitempty"`
}

// symbolCell prefers an explicit symbol column, falling back to the first
// header's value.
func symbolCell(headers []string, values map[string]string) string {
	for _, k := range []string{"Symbol", "symbol", "Ticker", "ticker"} {
		if v, ok := values[k]; ok && strings.TrimSpace(v) != "" {
			return v
		}
	}
	if len(headers) > 0 {
		return values[headers[0]]
	}
	return ""
}

// rowFlags re-derives the news/HOD flags from the symbol cell text when the
// feed did not set them (the star icon sometimes arrives as an SVG with no
// text content).
func rowFlags(headers []string, values map[string]string) (hasNews, isHOD bool) {
	raw := symbolCell(headers, values)
	for _, ch := range starChars {
		if strings.Contains(raw, ch) {
			hasNews = true
			break
		}
	}
	return hasNews, hodRe.MatchString(raw)
}

type Store struct {
	mu    sync.RWMutex
	snap  Snapshot
	limit int
}

func NewStore(limit int) *Store {
	return &Store{limit: limit, snap: Snapshot{Headers: []string{}, Rows: []Row{}, Symbols: []string{}}}
}

// Apply replaces the snapshot, capping rows at the configured limit and
// backfilling per-row flags from the cell text.
func (s *Store) Apply(in Snapshot) Snapshot {
	rows := in.Rows
	if s.limit > 0 && len(rows) > s.limit {
		rows = rows[:s.limit]
	}
	symbols := make([]string, 0, len(rows))
	for i := range rows {
		if !rows[i].HasNews || !rows[i].IsHOD {
			news, hod := rowFlags(in.Headers, rows[i].Values)
			rows[i].HasNews = rows[i].HasNews || news
			rows[i].IsHOD = rows[i].IsHOD || hod
		}
		if rows[i].Symbol != "" {
			symbols = append(symbols, rows[i].Symbol)
		}
	}
	snap := Snapshot{
		UpdatedAt: time.Now().UTC().Format(time.RFC3339),
		Headers:   in.Headers,
		Rows:      rows,
		Symbols:   symbols,
		Error:     in.Error,
	}
	if snap.Headers == nil {
		snap.Headers = []string{}
	}
	s.mu.Lock()
	s.snap = snap
	s.mu.Unlock()
	return snap
}

// SetError records a feed failure without disturbing the last good rows.
func (s *Store) SetError(msg string) {
	s.mu.Lock()
	s.snap.Error = msg
	s.mu.Unlock()
}

func (s *Store) State() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}
