package idempotency

import (
	"context"
	"database/sql"
	"errors"
)

var ErrDuplicateRequest = errors.New("duplicate request")

type Action string

const (
	ActionOpenPosition     Action = "open_position"
	ActionResolveAndSettle Action = "resolve_and_settle"
	ActionBustReset        Action = "bust_reset"
	ActionAdjustment       Action = "adjustment"
)

type Keys interface {
	// Claim records key for userID inside tx; ErrDuplicateRequest if the key
	// was already used. The claim disappears if tx rolls back.
	Claim(ctx context.Context, tx *sql.Tx, userID uint64, key string, action Action) error
}
