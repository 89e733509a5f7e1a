package paper

import (
	"errors"

	"github.com/fastprodman/paperledger/internal/repos/accounts"
	"github.com/fastprodman/paperledger/internal/repos/idempotency"
	"github.com/fastprodman/paperledger/internal/repos/predictions"
)

var (
	ErrInvalidInput              = errors.New("invalid input")
	ErrInsufficientBalance       = accounts.ErrInsufficientBalance
	ErrPredictionNotOpen         = errors.New("prediction not open")
	ErrPredictionNotFound        = predictions.ErrNotFound
	ErrPredictionAlreadyResolved = predictions.ErrAlreadyResolved
	ErrDuplicateRequest          = idempotency.ErrDuplicateRequest
	ErrNotBusted                 = errors.New("bankroll is not busted")

	// ErrStorageConflict marks a transaction Postgres aborted to break a
	// deadlock or serialization conflict.
	ErrStorageConflict = errors.New("storage conflict")
)

// rejectionReason maps a domain error onto a low-cardinality metric label.
// Infrastructure failures return "".
func rejectionReason(err error) string {
	switch {
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, ErrPredictionNotOpen):
		return "prediction_not_open"
	case errors.Is(err, ErrPredictionNotFound):
		return "prediction_not_found"
	case errors.Is(err, ErrPredictionAlreadyResolved):
		return "already_resolved"
	case errors.Is(err, ErrDuplicateRequest):
		return "duplicate_request"
	case errors.Is(err, ErrNotBusted):
		return "not_busted"
	default:
		return ""
	}
}
