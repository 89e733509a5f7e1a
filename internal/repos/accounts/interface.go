package accounts

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

var (
	ErrAccountNotFound     = errors.New("bankroll account not found")
	ErrInsufficientBalance = errors.New("insufficient balance")
)

// Account is a user's paper bankroll. Amounts are cents. Version starts at 0
// and grows by one with every Save.
type Account struct {
	UserID          uint64
	Balance         int64
	StartingBalance int64
	AllTimeHigh     int64
	BustCount       int
	LastBustAt      *time.Time
	Version         int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type Accounts interface {
	// Ensure creates the account with startingBalance if it does not exist.
	Ensure(ctx context.Context, tx *sql.Tx, userID uint64, startingBalance int64) error
	Get(ctx context.Context, userID uint64) (Account, error)
	// LockForUpdate reads the account holding its row lock until tx ends.
	LockForUpdate(ctx context.Context, tx *sql.Tx, userID uint64) (Account, error)
	// Save writes the mutable bookkeeping fields of a locked account and
	// bumps its version.
	Save(ctx context.Context, tx *sql.Tx, acct Account) error
}
