package api

import (
	"net/http"
	"strconv"
	"strings"
)

// GetBalanceHandler handles GET /user/{userId}/balance
func (h *HandlerProvider) GetBalanceHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := parseUserIDFromPath(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid userId in path")
		return
	}

	acct, err := h.svc.GetBalance(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, toBalanceResponse(acct))
}

// GetPortfolioHandler handles GET /user/{userId}/portfolio
func (h *HandlerProvider) GetPortfolioHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := parseUserIDFromPath(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid userId in path")
		return
	}

	pf, err := h.svc.Portfolio(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, toPortfolioResponse(pf))
}

// ListLedgerHandler handles GET /user/{userId}/ledger?limit=
func (h *HandlerProvider) ListLedgerHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := parseUserIDFromPath(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid userId in path")
		return
	}

	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
	}

	entries, err := h.svc.ListLedger(r.Context(), userID, limit)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"userId":  userID,
		"entries": toLedgerResponses(entries),
	})
}

// ResetBankrollHandler handles POST /user/{userId}/bankroll/reset
func (h *HandlerProvider) ResetBankrollHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := parseUserIDFromPath(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid userId in path")
		return
	}

	key, err := idempotencyKey(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	acct, err := h.svc.ResetBankroll(r.Context(), userID, key)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, toBalanceResponse(acct))
}

// EventsHandler handles GET /user/{userId}/events (websocket)
func (h *HandlerProvider) EventsHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := parseUserIDFromPath(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid userId in path")
		return
	}

	h.stream.Serve(w, r, userID)
}
