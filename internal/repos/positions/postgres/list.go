package positions

import (
	"context"
	"fmt"

	"github.com/fastprodman/paperledger/internal/repos/positions"
)

func (r *positionsRepo) ListOpen(ctx context.Context, userID uint64, predictionID *uint64) ([]positions.Position, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+selectColumns+`
		FROM paper_positions
		WHERE user_id = $1
		  AND ($2::BIGINT IS NULL OR prediction_id = $2)
		  AND settled_at IS NULL
		ORDER BY opened_at DESC, id DESC
	`, userID, predictionID)
	if err != nil {
		return nil, fmt.Errorf("list open positions: %w", err)
	}

	return scanPositions(rows)
}

func (r *positionsRepo) List(ctx context.Context, userID uint64, predictionID *uint64) ([]positions.Position, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+selectColumns+`
		FROM paper_positions
		WHERE user_id = $1
		  AND ($2::BIGINT IS NULL OR prediction_id = $2)
		ORDER BY opened_at DESC, id DESC
	`, userID, predictionID)
	if err != nil {
		return nil, fmt.Errorf("list positions: %w", err)
	}

	return scanPositions(rows)
}

func (r *positionsRepo) Stats(ctx context.Context, userID uint64) (positions.Stats, error) {
	var s positions.Stats

	err := r.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE settled_at IS NULL),
			COALESCE(SUM(stake) FILTER (WHERE settled_at IS NULL), 0)::BIGINT,
			COUNT(*) FILTER (WHERE settled_at IS NOT NULL),
			COUNT(*) FILTER (WHERE settled_at IS NOT NULL AND payout > 0),
			COUNT(*) FILTER (WHERE settled_at IS NOT NULL AND payout = 0),
			COALESCE(SUM(pnl) FILTER (WHERE settled_at IS NOT NULL), 0)::BIGINT
		FROM paper_positions
		WHERE user_id = $1
	`, userID).Scan(&s.OpenCount, &s.OpenStake, &s.SettledCount, &s.Wins, &s.Losses, &s.RealizedPnL)
	if err != nil {
		return positions.Stats{}, fmt.Errorf("position stats: %w", err)
	}

	return s, nil
}
