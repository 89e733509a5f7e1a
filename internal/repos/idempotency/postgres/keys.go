package idempotency

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/fastprodman/paperledger/internal/infra/pgutils"
	"github.com/fastprodman/paperledger/internal/repos/idempotency"
)

var _ idempotency.Keys = (*keysRepo)(nil)

type keysRepo struct{ db *sql.DB }

func New(db *sql.DB) *keysRepo {
	return &keysRepo{db: db}
}

func (r *keysRepo) Claim(ctx context.Context, tx *sql.Tx, userID uint64, key string, action idempotency.Action) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO idempotency_keys (user_id, key, action)
		VALUES ($1, $2, $3)
	`, userID, key, string(action))
	if err != nil {
		if pgutils.IsUniqueViolation(err) {
			return idempotency.ErrDuplicateRequest
		}

		return fmt.Errorf("claim idempotency key: %w", err)
	}

	return nil
}
