package idempotency

import (
	"database/sql"
	"errors"
	"testing"

	"github.com/fastprodman/paperledger/internal/infra/pgtestutil"
	"github.com/fastprodman/paperledger/internal/infra/pgutils"
	"github.com/fastprodman/paperledger/internal/repos/idempotency"
)

func TestKeys_Claim(t *testing.T) {
	t.Parallel()

	db, cleanup := pgtestutil.NewTestDB(t)
	defer cleanup()

	repo := New(db)
	ctx := t.Context()

	claim := func(userID uint64, key string) error {
		return pgutils.WithTx(ctx, db, func(tx *sql.Tx) error {
			return repo.Claim(ctx, tx, userID, key, idempotency.ActionOpenPosition)
		})
	}

	tests := []struct {
		name    string
		userID  uint64
		key     string
		wantErr error
	}{
		{name: "first_claim", userID: 1, key: "k-1"},
		{name: "replay", userID: 1, key: "k-1", wantErr: idempotency.ErrDuplicateRequest},
		{name: "same_key_other_user", userID: 2, key: "k-1"},
		{name: "new_key", userID: 1, key: "k-2"},
	}

	for _, tt := range tests {
		err := claim(tt.userID, tt.key)
		if tt.wantErr != nil {
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("%s: want %v, got %v", tt.name, tt.wantErr, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%s: %v", tt.name, err)
		}
	}
}

func TestKeys_Claim_RolledBackIsReleased(t *testing.T) {
	t.Parallel()

	db, cleanup := pgtestutil.NewTestDB(t)
	defer cleanup()

	repo := New(db)
	ctx := t.Context()
	errAbort := errors.New("abort")

	err := pgutils.WithTx(ctx, db, func(tx *sql.Tx) error {
		err := repo.Claim(ctx, tx, 1, "k", idempotency.ActionAdjustment)
		if err != nil {
			return err
		}
		return errAbort
	})
	if !errors.Is(err, errAbort) {
		t.Fatalf("want abort, got %v", err)
	}

	err = pgutils.WithTx(ctx, db, func(tx *sql.Tx) error {
		return repo.Claim(ctx, tx, 1, "k", idempotency.ActionAdjustment)
	})
	if err != nil {
		t.Fatalf("claim after rollback: %v", err)
	}
}
