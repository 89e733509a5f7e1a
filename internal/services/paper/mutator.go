package paper

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fastprodman/paperledger/internal/repos/accounts"
	"github.com/fastprodman/paperledger/internal/repos/ledger"
)

// mutation is one balance change. Delta is cents; zero is allowed for audit
// entries that do not move the balance.
type mutation struct {
	Kind         ledger.Kind
	Delta        int64
	PredictionID *uint64
	GroupID      uuid.UUID
	Memo         *string
	At           time.Time
}

// apply is the only writer of bankroll balances. acct must have been locked
// in tx; it is updated in place so a batch can apply several mutations.
//
// 1) Check balance + delta stays within [0, MaxBalance].
// 2) Move the balance and the high-water mark.
// 3) Record a bust when a debit takes the balance from > 0 to <= 0.
// 4) Persist the account and append the ledger entry.
func (s *Service) apply(ctx context.Context, tx *sql.Tx, acct *accounts.Account, m mutation) (ledger.Entry, error) {
	// 1) Check
	if m.Delta > 0 && acct.Balance > MaxBalance-m.Delta {
		return ledger.Entry{}, fmt.Errorf("%w: balance %d, delta %d exceeds the balance limit", ErrInvalidInput, acct.Balance, m.Delta)
	}

	next := acct.Balance + m.Delta
	if next < 0 {
		return ledger.Entry{}, fmt.Errorf("%w: balance %d, delta %d", ErrInsufficientBalance, acct.Balance, m.Delta)
	}

	// 2) Move
	busted := m.Delta < 0 && acct.Balance > 0 && next <= 0
	acct.Balance = next
	acct.AllTimeHigh = max(acct.AllTimeHigh, next)

	// 3) Bust
	if busted {
		at := m.At
		acct.BustCount++
		acct.LastBustAt = &at
	}

	// 4) Persist
	err := s.accounts.Save(ctx, tx, *acct)
	if err != nil {
		return ledger.Entry{}, fmt.Errorf("save account: %w", err)
	}
	acct.Version++
	acct.UpdatedAt = m.At

	entry, err := s.ledger.Insert(ctx, tx, ledger.Entry{
		UserID:       acct.UserID,
		PredictionID: m.PredictionID,
		GroupID:      m.GroupID,
		Kind:         m.Kind,
		Delta:        m.Delta,
		BalanceAfter: next,
		Memo:         m.Memo,
		CreatedAt:    m.At,
	})
	if err != nil {
		return ledger.Entry{}, fmt.Errorf("insert ledger entry: %w", err)
	}

	return entry, nil
}
