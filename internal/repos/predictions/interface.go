// Package predictions is the engine's view of the prediction lifecycle: it
// reads the fields settlement depends on and performs the resolve transition.
package predictions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound        = errors.New("prediction not found")
	ErrAlreadyResolved = errors.New("prediction already resolved")
	ErrInvalidOutcome  = errors.New("invalid outcome")
)

type Status string

const (
	StatusOpen     Status = "open"
	StatusResolved Status = "resolved"
)

type Outcome string

const (
	OutcomeTrue    Outcome = "true"
	OutcomeFalse   Outcome = "false"
	OutcomeUnknown Outcome = "unknown"
)

// ParseOutcome accepts "true", "false" and "unknown".
func ParseOutcome(s string) (Outcome, error) {
	switch o := Outcome(s); o {
	case OutcomeTrue, OutcomeFalse, OutcomeUnknown:
		return o, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidOutcome, s)
	}
}

// Bool returns the boolean value of a final outcome; ok is false for unknown.
func (o Outcome) Bool() (value bool, ok bool) {
	switch o {
	case OutcomeTrue:
		return true, true
	case OutcomeFalse:
		return false, true
	default:
		return false, false
	}
}

// OutcomeOf converts a boolean result.
func OutcomeOf(b bool) Outcome {
	if b {
		return OutcomeTrue
	}

	return OutcomeFalse
}

type Prediction struct {
	ID             uint64
	UserID         uint64
	Claim          string
	ReferenceLine  *decimal.Decimal
	Status         Status
	Outcome        Outcome
	ResolutionNote *string
	ResolvedAt     *time.Time
}

type Predictions interface {
	// Lock reads the user's prediction and holds its row lock until tx ends.
	Lock(ctx context.Context, tx *sql.Tx, userID, id uint64) (Prediction, error)
	// MarkResolved moves an open prediction to resolved. It fails with
	// ErrNotFound or ErrAlreadyResolved without changing anything.
	MarkResolved(ctx context.Context, tx *sql.Tx, userID, id uint64, outcome Outcome, note *string, at time.Time) error
}
