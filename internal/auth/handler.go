package auth

import (
	"net/http"
	"strings"

	"rhbridge/internal/httputil"
)

type Handler struct {
	mgr *Manager
}

func NewHandler(mgr *Manager) *Handler {
	return &Handler{mgr: mgr}
}

func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, h.mgr.Status(r.Context()))
}

// Login prefers the cached session; only when it cannot be restored does a
// fresh credential exchange run.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	if !h.mgr.Restore(r.Context()) {
		h.mgr.Login(r.Context())
	}
	httputil.WriteJSON(w, http.StatusOK, h.mgr.Snapshot())
}

type smsCodeRequest struct {
	Code string `json:"code"`
}

func (h *Handler) SubmitCode(w http.ResponseWriter, r *http.Request) {
	var req smsCodeRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid body"})
		return
	}
	code := strings.TrimSpace(req.Code)
	if code == "" {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "missing_code"})
		return
	}
	if err := h.mgr.SubmitCode(r.Context(), code); err != nil {
		httputil.WriteJSON(w, http.StatusConflict, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, h.mgr.Snapshot())
}
