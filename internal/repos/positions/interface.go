package positions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fastprodman/paperledger/internal/repos/predictions"
)

var (
	ErrInvalidSide    = errors.New("invalid side")
	ErrAlreadySettled = errors.New("position already settled")
)

type Side string

const (
	SideYes Side = "yes"
	SideNo  Side = "no"
)

// ParseSide accepts "yes" and "no".
func ParseSide(s string) (Side, error) {
	switch side := Side(s); side {
	case SideYes, SideNo:
		return side, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidSide, s)
	}
}

// Position is a paper stake. Stake, Payout and PnL are cents; Line is the
// reference probability captured at open time.
type Position struct {
	ID           uuid.UUID
	UserID       uint64
	PredictionID uint64
	Side         Side
	Stake        int64
	Line         decimal.Decimal
	OpenedAt     time.Time
	SettledAt    *time.Time
	Outcome      *predictions.Outcome
	Payout       *int64
	PnL          *int64
}

// IsOpen reports whether the position still awaits settlement.
func (p Position) IsOpen() bool { return p.SettledAt == nil }

// Settlement is the terminal state written once per position.
type Settlement struct {
	SettledAt time.Time
	Outcome   predictions.Outcome
	Payout    int64
	PnL       int64
}

// Stats aggregates a user's positions for portfolio views.
type Stats struct {
	OpenCount    int
	OpenStake    int64
	SettledCount int
	Wins         int
	Losses       int
	RealizedPnL  int64
}

type Positions interface {
	Insert(ctx context.Context, tx *sql.Tx, p Position) error
	// LockOpen returns the unsettled positions for (userID, predictionID)
	// holding their row locks until tx ends.
	LockOpen(ctx context.Context, tx *sql.Tx, userID, predictionID uint64) ([]Position, error)
	// Settle stamps an open position; ErrAlreadySettled if it was settled before.
	Settle(ctx context.Context, tx *sql.Tx, id uuid.UUID, s Settlement) error
	// ListOpen returns unsettled positions, optionally for one prediction.
	ListOpen(ctx context.Context, userID uint64, predictionID *uint64) ([]Position, error)
	// List returns open and settled positions newest first.
	List(ctx context.Context, userID uint64, predictionID *uint64) ([]Position, error)
	Stats(ctx context.Context, userID uint64) (Stats, error)
}
