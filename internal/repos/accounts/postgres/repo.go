package accounts

import (
	"database/sql"

	"github.com/fastprodman/paperledger/internal/repos/accounts"
)

var _ accounts.Accounts = (*accountsRepo)(nil)

type accountsRepo struct{ db *sql.DB }

func New(db *sql.DB) *accountsRepo {
	return &accountsRepo{db: db}
}

const selectColumns = `
	user_id, balance, starting_balance, all_time_high,
	bust_count, last_bust_at, version, created_at, updated_at
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (accounts.Account, error) {
	var (
		a        accounts.Account
		lastBust sql.NullTime
	)

	err := row.Scan(
		&a.UserID, &a.Balance, &a.StartingBalance, &a.AllTimeHigh,
		&a.BustCount, &lastBust, &a.Version, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return accounts.Account{}, err
	}

	if lastBust.Valid {
		t := lastBust.Time
		a.LastBustAt = &t
	}

	return a, nil
}
