package ledger

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/fastprodman/paperledger/internal/repos/ledger"
)

var _ ledger.Ledger = (*ledgerRepo)(nil)

type ledgerRepo struct{ db *sql.DB }

func New(db *sql.DB) *ledgerRepo {
	return &ledgerRepo{db: db}
}

func (r *ledgerRepo) Insert(ctx context.Context, tx *sql.Tx, e ledger.Entry) (ledger.Entry, error) {
	if e.GroupID == uuid.Nil {
		e.GroupID = uuid.New()
	}

	err := tx.QueryRowContext(ctx, `
		INSERT INTO ledger_entries (user_id, prediction_id, group_id, kind, delta, balance_after, memo, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`, e.UserID, e.PredictionID, e.GroupID.String(), string(e.Kind), e.Delta, e.BalanceAfter, e.Memo, e.CreatedAt).Scan(&e.ID)
	if err != nil {
		return ledger.Entry{}, fmt.Errorf("insert ledger entry: %w", err)
	}

	return e, nil
}

func (r *ledgerRepo) ListRecent(ctx context.Context, userID uint64, limit int) ([]ledger.Entry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, prediction_id, group_id, kind, delta, balance_after, memo, created_at
		FROM ledger_entries
		WHERE user_id = $1
		ORDER BY id DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list ledger: %w", err)
	}

	return scanEntries(rows)
}

func (r *ledgerRepo) ListAll(ctx context.Context, userID uint64) ([]ledger.Entry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, prediction_id, group_id, kind, delta, balance_after, memo, created_at
		FROM ledger_entries
		WHERE user_id = $1
		ORDER BY id ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list ledger: %w", err)
	}

	return scanEntries(rows)
}

func scanEntries(rows *sql.Rows) ([]ledger.Entry, error) {
	defer rows.Close()

	out := make([]ledger.Entry, 0)
	for rows.Next() {
		var (
			e       ledger.Entry
			predID  sql.NullInt64
			groupID string
			kind    string
			memo    sql.NullString
		)

		err := rows.Scan(&e.ID, &e.UserID, &predID, &groupID, &kind, &e.Delta, &e.BalanceAfter, &memo, &e.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}

		e.GroupID, err = uuid.Parse(groupID)
		if err != nil {
			return nil, fmt.Errorf("parse group id: %w", err)
		}

		e.Kind = ledger.Kind(kind)
		if predID.Valid {
			id := uint64(predID.Int64)
			e.PredictionID = &id
		}
		if memo.Valid {
			m := memo.String
			e.Memo = &m
		}

		out = append(out, e)
	}

	err := rows.Err()
	if err != nil {
		return nil, fmt.Errorf("iterate ledger: %w", err)
	}

	return out, nil
}
