package positions

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/fastprodman/paperledger/internal/repos/positions"
)

func (r *positionsRepo) Insert(ctx context.Context, tx *sql.Tx, p positions.Position) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO paper_positions (id, user_id, prediction_id, side, stake, line, opened_at)
		VALUES ($1, $2, $3, $4, $5, $6::NUMERIC, $7)
	`, p.ID.String(), p.UserID, p.PredictionID, string(p.Side), p.Stake, p.Line.StringFixed(4), p.OpenedAt)
	if err != nil {
		return fmt.Errorf("insert position: %w", err)
	}

	return nil
}
