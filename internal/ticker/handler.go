package ticker

import (
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"rhbridge/internal/httputil"
)

type Handler struct {
	store    *Store
	hub      *Hub
	upgrader websocket.Upgrader
}

func NewHandler(store *Store, hub *Hub, origin string) *Handler {
	return &Handler{
		store: store,
		hub:   hub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return allowOrigin(r, origin) },
		},
	}
}

func allowOrigin(r *http.Request, origin string) bool {
	if origin == "*" {
		return true
	}
	reqOrigin := r.Header.Get("Origin")
	if strings.Contains(origin, "localhost") || strings.Contains(origin, "127.0.0.1") {
		if strings.Contains(reqOrigin, "localhost") || strings.Contains(reqOrigin, "127.0.0.1") {
			return true
		}
	}
	return strings.EqualFold(reqOrigin, origin)
}

// State returns the latest screener snapshot.
func (h *Handler) State(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, h.store.State())
}

// Ingest accepts a snapshot pushed by the local scraper, stores it, and
// broadcasts the applied result. Route-level auth keeps this internal.
func (h *Handler) Ingest(w http.ResponseWriter, r *http.Request) {
	var in Snapshot
	if err := httputil.ReadJSON(r, &in); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid_json"})
		return
	}
	applied := h.store.Apply(in)
	h.hub.Publish(Event{Type: "tickers", Data: applied})
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"ok": true, "rows": len(applied.Rows)})
}

// ServeWS pushes the current snapshot on connect and every update after.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	sub := h.hub.Subscribe()
	defer h.hub.Unsubscribe(sub)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
	if err := conn.WriteJSON(Event{Type: "tickers", Data: h.store.State()}); err != nil {
		return
	}
	for {
		select {
		case evt := <-sub:
			if err := conn.WriteJSON(evt); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
