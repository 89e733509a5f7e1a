package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/fastprodman/paperledger/internal/amount"
	"github.com/fastprodman/paperledger/internal/repos/positions"
	"github.com/fastprodman/paperledger/internal/repos/predictions"
	"github.com/fastprodman/paperledger/internal/services/paper"
)

// ListPositionsHandler handles GET /user/{userId}/positions?predictionId=&status=open|all
func (h *HandlerProvider) ListPositionsHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := parseUserIDFromPath(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid userId in path")
		return
	}

	predID, err := optionalIDQuery(r, "predictionId")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var ps []positions.Position
	switch status := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("status"))); status {
	case "", "open":
		ps, err = h.svc.ListOpenPositions(r.Context(), userID, predID)
	case "all":
		ps, err = h.svc.ListPositions(r.Context(), userID, predID)
	default:
		h.writeError(w, http.StatusBadRequest, "status must be open or all")
		return
	}
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"userId":    userID,
		"positions": toPositionResponses(ps),
	})
}

// OpenPositionHandler handles POST /user/{userId}/positions
func (h *HandlerProvider) OpenPositionHandler(w http.ResponseWriter, r *http.Request) {
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

	var req openPositionRequest
	err = decodeJSON(w, r, &req)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	side, err := positions.ParseSide(strings.ToLower(strings.TrimSpace(req.Side)))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "side must be yes or no")
		return
	}

	stake, err := amount.ParsePositiveCents(strings.TrimSpace(req.Stake))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if req.PredictionID == 0 {
		h.writeError(w, http.StatusBadRequest, "predictionId required")
		return
	}

	pos, err := h.svc.OpenPosition(r.Context(), paper.OpenRequest{
		UserID:         userID,
		PredictionID:   req.PredictionID,
		Side:           side,
		Stake:          stake,
		IdempotencyKey: key,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, toPositionResponse(pos))
}

// ResolveHandler handles POST /user/{userId}/predictions/{predictionId}/resolve
func (h *HandlerProvider) ResolveHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := parseUserIDFromPath(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid userId in path")
		return
	}

	predID, err := parseIDParam(chi.URLParam(r, "predictionId"), "predictionId")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid predictionId in path")
		return
	}

	key, err := idempotencyKey(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req resolveRequest
	err = decodeJSON(w, r, &req)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if req.Outcome == "" {
		h.writeError(w, http.StatusBadRequest, "outcome required")
		return
	}

	res, err := h.svc.ResolveAndSettle(r.Context(), paper.SettleRequest{
		UserID:         userID,
		PredictionID:   predID,
		Outcome:        predictions.Outcome(req.Outcome),
		Note:           req.Note,
		IdempotencyKey: key,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, settlementResponse{
		SettledCount: res.SettledCount,
		TotalPayout:  amount.Format(res.TotalPayout),
		BalanceAfter: amount.Format(res.BalanceAfter),
		Positions:    toPositionResponses(res.Positions),
	})
}
