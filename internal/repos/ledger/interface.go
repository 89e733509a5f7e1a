package ledger

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// Kind tags the event that produced a ledger entry.
type Kind string

const (
	KindOpenPosition Kind = "open_position"
	KindSettleWin    Kind = "settle_win"
	KindSettleLoss   Kind = "settle_loss"
	KindBustReset    Kind = "bust_reset"
	KindAdjustment   Kind = "adjustment"
)

// Entry is an immutable balance-changing event. Delta and BalanceAfter are cents.
type Entry struct {
	ID           int64
	UserID       uint64
	PredictionID *uint64
	GroupID      uuid.UUID
	Kind         Kind
	Delta        int64
	BalanceAfter int64
	Memo         *string
	CreatedAt    time.Time
}

type Ledger interface {
	// Insert appends e and returns it with ID set.
	Insert(ctx context.Context, tx *sql.Tx, e Entry) (Entry, error)
	// ListRecent returns up to limit entries, newest insert first. Ordering
	// follows ids, not CreatedAt, which comes from the writer's clock.
	ListRecent(ctx context.Context, userID uint64, limit int) ([]Entry, error)
	// ListAll returns every entry of the user in insertion order, which is
	// the order the balance chain was built in.
	ListAll(ctx context.Context, userID uint64) ([]Entry, error)
}
