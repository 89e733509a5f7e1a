package positions

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/fastprodman/paperledger/internal/repos/positions"
)

func (r *positionsRepo) LockOpen(ctx context.Context, tx *sql.Tx, userID, predictionID uint64) ([]positions.Position, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT `+selectColumns+`
		FROM paper_positions
		WHERE user_id = $1
		  AND prediction_id = $2
		  AND settled_at IS NULL
		ORDER BY opened_at ASC, id ASC
		FOR UPDATE
	`, userID, predictionID)
	if err != nil {
		return nil, fmt.Errorf("lock open positions: %w", err)
	}

	return scanPositions(rows)
}

func (r *positionsRepo) Settle(ctx context.Context, tx *sql.Tx, id uuid.UUID, s positions.Settlement) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE paper_positions
		SET settled_at = $2,
		    outcome = $3,
		    payout = $4,
		    pnl = $5
		WHERE id = $1
		  AND settled_at IS NULL
	`, id.String(), s.SettledAt, string(s.Outcome), s.Payout, s.PnL)
	if err != nil {
		return fmt.Errorf("settle position: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}

	if affected == 0 {
		return positions.ErrAlreadySettled
	}

	return nil
}
