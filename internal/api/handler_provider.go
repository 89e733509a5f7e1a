package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/fastprodman/paperledger/internal/repos/accounts"
	"github.com/fastprodman/paperledger/internal/repos/ledger"
	"github.com/fastprodman/paperledger/internal/repos/positions"
	"github.com/fastprodman/paperledger/internal/services/paper"
)

const (
	maxBodyBytes         = 1 << 20
	idempotencyKeyHeader = "Idempotency-Key"
	maxIdempotencyKeyLen = 128
)

// LedgerService is the engine surface the HTTP layer needs.
type LedgerService interface {
	OpenPosition(ctx context.Context, req paper.OpenRequest) (positions.Position, error)
	ResolveAndSettle(ctx context.Context, req paper.SettleRequest) (paper.SettlementResult, error)
	GetBalance(ctx context.Context, userID uint64) (accounts.Account, error)
	Portfolio(ctx context.Context, userID uint64) (paper.Portfolio, error)
	ListOpenPositions(ctx context.Context, userID uint64, predictionID *uint64) ([]positions.Position, error)
	ListPositions(ctx context.Context, userID uint64, predictionID *uint64) ([]positions.Position, error)
	ListLedger(ctx context.Context, userID uint64, limit int) ([]ledger.Entry, error)
	ResetBankroll(ctx context.Context, userID uint64, idemKey string) (accounts.Account, error)
}

// EventStream upgrades a request into a per-user event stream.
type EventStream interface {
	Serve(w http.ResponseWriter, r *http.Request, userID uint64)
}

// HandlerProvider wraps a LedgerService and exposes HTTP handlers.
type HandlerProvider struct {
	svc    LedgerService
	stream EventStream
	log    *slog.Logger
}

// NewHandler returns a new handler provider. stream may be nil, in which
// case the events endpoint is not served.
func NewHandler(svc LedgerService, stream EventStream, log *slog.Logger) *HandlerProvider {
	if log == nil {
		log = slog.Default()
	}

	return &HandlerProvider{svc: svc, stream: stream, log: log}
}

// --- Helpers ---

func (h *HandlerProvider) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	err := json.NewEncoder(w).Encode(v)
	if err != nil {
		h.log.Error("failed to encode JSON response", "error", err)
	}
}

func (h *HandlerProvider) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, map[string]string{"error": msg})
}

// writeServiceError maps engine errors onto HTTP statuses. The open path
// wraps a missing prediction as not-open, so that check comes first.
func (h *HandlerProvider) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, paper.ErrInvalidInput):
		h.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, paper.ErrPredictionNotOpen):
		h.writeError(w, http.StatusConflict, "prediction not open")
	case errors.Is(err, paper.ErrPredictionNotFound):
		h.writeError(w, http.StatusNotFound, "prediction not found")
	case errors.Is(err, paper.ErrPredictionAlreadyResolved):
		h.writeError(w, http.StatusConflict, "prediction already resolved")
	case errors.Is(err, paper.ErrInsufficientBalance):
		h.writeError(w, http.StatusConflict, "insufficient balance")
	case errors.Is(err, paper.ErrDuplicateRequest):
		h.writeError(w, http.StatusConflict, "duplicate request")
	case errors.Is(err, paper.ErrNotBusted):
		h.writeError(w, http.StatusConflict, "bankroll is not busted")
	case errors.Is(err, paper.ErrStorageConflict):
		h.log.Warn("transaction aborted", "method", r.Method, "path", r.URL.Path, "err", err)
		w.Header().Set("Retry-After", "1")
		h.writeError(w, http.StatusServiceUnavailable, "temporary conflict, retry")
	default:
		h.log.Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
		h.writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// decodeJSON reads a size-limited body and rejects unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	err := dec.Decode(dst)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("empty body")
		}

		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return errors.New("body too large")
		}

		return fmt.Errorf("invalid JSON: %w", err)
	}

	return nil
}

// parseUserIDFromPath reads `{userId}` from chi routes like:
//
//	GET  /user/{userId}/balance
//	POST /user/{userId}/positions
func parseUserIDFromPath(r *http.Request) (uint64, error) {
	return parseIDParam(chi.URLParam(r, "userId"), "userId")
}

func parseIDParam(raw, name string) (uint64, error) {
	if raw == "" {
		return 0, fmt.Errorf("missing %s", name)
	}

	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	if id == 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", name)
	}

	return id, nil
}

// optionalIDQuery parses an optional numeric query parameter.
func optionalIDQuery(r *http.Request, name string) (*uint64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return nil, nil
	}

	id, err := parseIDParam(raw, name)
	if err != nil {
		return nil, err
	}

	return &id, nil
}

func idempotencyKey(r *http.Request) (string, error) {
	key := strings.TrimSpace(r.Header.Get(idempotencyKeyHeader))
	if len(key) > maxIdempotencyKeyLen {
		return "", fmt.Errorf("%s longer than %d", idempotencyKeyHeader, maxIdempotencyKeyLen)
	}

	return key, nil
}
