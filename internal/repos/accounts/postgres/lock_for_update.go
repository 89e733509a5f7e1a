package accounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fastprodman/paperledger/internal/repos/accounts"
)

func (r *accountsRepo) LockForUpdate(ctx context.Context, tx *sql.Tx, userID uint64) (accounts.Account, error) {
	row := tx.QueryRowContext(ctx, `
		SELECT `+selectColumns+`
		FROM bankroll_accounts
		WHERE user_id = $1
		FOR UPDATE
	`, userID)

	a, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return accounts.Account{}, accounts.ErrAccountNotFound
		}

		return accounts.Account{}, fmt.Errorf("lock/get account: %w", err)
	}

	return a, nil
}
