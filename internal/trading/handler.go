package trading

import (
	"errors"
	"net/http"

	"github.com/shopspring/decimal"

	"rhbridge/internal/httputil"
	"rhbridge/internal/types"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// tradeRequest is the JSON body for buy and sell. Numbers arrive as JSON
// numbers or strings; decimal handles both.
type tradeRequest struct {
	Symbol       string           `json:"symbol"`
	Quantity     *decimal.Decimal `json:"quantity,omitempty"`
	AmountUSD    *decimal.Decimal `json:"amount_usd,omitempty"`
	OrderType    string           `json:"order_type,omitempty"`
	LimitPrice   *decimal.Decimal `json:"limit_price,omitempty"`
	LimitOffset  *decimal.Decimal `json:"limit_offset,omitempty"`
	AutoStop     *bool            `json:"auto_stop,omitempty"`
	StopPrice    *decimal.Decimal `json:"stop_price,omitempty"`
	StopRefPrice *decimal.Decimal `json:"stop_ref_price,omitempty"`
}

func (r tradeRequest) intent() TradeIntent {
	return TradeIntent{
		Symbol:       r.Symbol,
		Quantity:     r.Quantity,
		AmountUSD:    r.AmountUSD,
		OrderType:    types.OrderType(r.OrderType),
		LimitPrice:   r.LimitPrice,
		LimitOffset:  r.LimitOffset,
		AutoStop:     r.AutoStop,
		StopPrice:    r.StopPrice,
		StopRefPrice: r.StopRefPrice,
	}
}

func (h *Handler) Buy(w http.ResponseWriter, r *http.Request) {
	var req tradeRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid_json"})
		return
	}
	res, err := h.svc.Buy(r.Context(), req.intent())
	if err != nil {
		writeTradeError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) Sell(w http.ResponseWriter, r *http.Request) {
	var req tradeRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid_json"})
		return
	}
	res, err := h.svc.Sell(r.Context(), req.intent())
	if err != nil {
		writeTradeError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

type stopsResponse struct {
	Active   map[string]stopRecordView `json:"active"`
	Outcomes map[string]stopOutcome    `json:"outcomes"`
}

type stopRecordView struct {
	OrderID   string          `json:"order_id"`
	StopPrice decimal.Decimal `json:"stop_price"`
	CreatedAt string          `json:"created_at"`
}

type stopOutcome struct {
	Status    string          `json:"status"`
	OrderID   string          `json:"order_id,omitempty"`
	StopPrice decimal.Decimal `json:"stop_price"`
	Error     string          `json:"error,omitempty"`
}

// Stops reports the active protective-stop cache alongside the most recent
// protection outcome per symbol.
func (h *Handler) Stops(w http.ResponseWriter, r *http.Request) {
	resp := stopsResponse{
		Active:   map[string]stopRecordView{},
		Outcomes: map[string]stopOutcome{},
	}
	for sym, rec := range h.svc.StopRecords() {
		resp.Active[sym] = stopRecordView{
			OrderID:   rec.OrderID,
			StopPrice: rec.StopPrice,
			CreatedAt: rec.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
		}
	}
	for sym, out := range h.svc.StopOutcomes() {
		resp.Outcomes[sym] = stopOutcome{
			Status:    out.Status,
			OrderID:   out.OrderID,
			StopPrice: out.StopPrice,
			Error:     out.Reason,
		}
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

// writeTradeError maps the error taxonomy onto HTTP statuses: auth gaps are
// conflicts, upstream opacity is a bad gateway, everything else is the
// caller's fault.
func writeTradeError(w http.ResponseWriter, err error) {
	status := http.StatusBadRequest
	switch {
	case errors.Is(err, types.ErrNotLoggedIn) || errors.Is(err, types.ErrNoChallenge):
		status = http.StatusConflict
	case errors.Is(err, types.ErrQuoteUnavailable) ||
		errors.Is(err, types.ErrInstrumentUnavailable) ||
		errors.Is(err, types.ErrAccountURLUnavailable) ||
		errors.Is(err, types.ErrOrderSubmitFailed) ||
		errors.Is(err, types.ErrUnexpectedOrderResponse):
		status = http.StatusBadGateway
	}
	httputil.WriteJSON(w, status, httputil.ErrorResponse{Error: err.Error()})
}
