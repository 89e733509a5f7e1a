package accounts

import (
	"context"
	"database/sql"
	"fmt"
)

func (r *accountsRepo) Ensure(ctx context.Context, tx *sql.Tx, userID uint64, startingBalance int64) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO bankroll_accounts (user_id, balance, starting_balance, all_time_high)
		VALUES ($1, $2, $2, $2)
		ON CONFLICT (user_id) DO NOTHING
	`, userID, startingBalance)
	if err != nil {
		return fmt.Errorf("ensure account: %w", err)
	}

	return nil
}
