package predictions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fastprodman/paperledger/internal/repos/predictions"
)

var _ predictions.Predictions = (*predictionsRepo)(nil)

type predictionsRepo struct{ db *sql.DB }

func New(db *sql.DB) *predictionsRepo {
	return &predictionsRepo{db: db}
}

func (r *predictionsRepo) Lock(ctx context.Context, tx *sql.Tx, userID, id uint64) (predictions.Prediction, error) {
	var (
		p          predictions.Prediction
		line       sql.NullString
		status     string
		outcome    string
		note       sql.NullString
		resolvedAt sql.NullTime
	)

	err := tx.QueryRowContext(ctx, `
		SELECT id, user_id, claim, reference_line::TEXT, status, outcome, resolution_note, resolved_at
		FROM predictions
		WHERE id = $1 AND user_id = $2
		FOR UPDATE
	`, id, userID).Scan(&p.ID, &p.UserID, &p.Claim, &line, &status, &outcome, &note, &resolvedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return predictions.Prediction{}, predictions.ErrNotFound
		}

		return predictions.Prediction{}, fmt.Errorf("lock prediction: %w", err)
	}

	if line.Valid {
		d, err := decimal.NewFromString(line.String)
		if err != nil {
			return predictions.Prediction{}, fmt.Errorf("parse reference line %q: %w", line.String, err)
		}
		p.ReferenceLine = &d
	}

	p.Status = predictions.Status(status)
	p.Outcome = predictions.Outcome(outcome)
	if note.Valid {
		n := note.String
		p.ResolutionNote = &n
	}
	if resolvedAt.Valid {
		ts := resolvedAt.Time
		p.ResolvedAt = &ts
	}

	return p, nil
}

func (r *predictionsRepo) MarkResolved(
	ctx context.Context, tx *sql.Tx, userID, id uint64, outcome predictions.Outcome, note *string, at time.Time,
) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE predictions
		SET status = 'resolved',
		    outcome = $3,
		    resolution_note = $4,
		    resolved_at = $5
		WHERE id = $1
		  AND user_id = $2
		  AND status = 'open'
	`, id, userID, string(outcome), note, at)
	if err != nil {
		return fmt.Errorf("mark resolved: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}

	if affected == 1 {
		return nil
	}

	// Nothing changed: tell "missing" apart from "already resolved".
	var exists bool
	err = tx.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM predictions WHERE id = $1 AND user_id = $2)
	`, id, userID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check exists: %w", err)
	}

	if !exists {
		return predictions.ErrNotFound
	}

	return predictions.ErrAlreadyResolved
}
