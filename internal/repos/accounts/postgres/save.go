package accounts

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/fastprodman/paperledger/internal/repos/accounts"
)

func (r *accountsRepo) Save(ctx context.Context, tx *sql.Tx, acct accounts.Account) error {
	if acct.Balance < 0 {
		return accounts.ErrInsufficientBalance
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE bankroll_accounts
		SET balance = $2,
		    all_time_high = $3,
		    bust_count = $4,
		    last_bust_at = $5,
		    version = version + 1,
		    updated_at = now()
		WHERE user_id = $1
	`, acct.UserID, acct.Balance, acct.AllTimeHigh, acct.BustCount, acct.LastBustAt)
	if err != nil {
		return fmt.Errorf("save account: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}

	if affected == 0 {
		return accounts.ErrAccountNotFound
	}

	return nil
}
