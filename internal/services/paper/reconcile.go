package paper

import (
	"context"
	"errors"
	"fmt"

	"github.com/fastprodman/paperledger/internal/repos/accounts"
)

// Report is the outcome of replaying a user's ledger against the account.
type Report struct {
	UserID          uint64
	StartingBalance int64
	Balance         int64
	LedgerSum       int64
	Entries         int
	Mismatches      []string
}

// OK reports whether the ledger and the account agree.
func (r Report) OK() bool { return len(r.Mismatches) == 0 }

// Reconcile replays the ledger oldest first and checks that every entry
// chains onto the previous balance_after, that starting balance plus the sum
// of deltas equals the balance, and that the last balance_after is the
// balance. A user without an account reconciles trivially.
func (s *Service) Reconcile(ctx context.Context, userID uint64) (Report, error) {
	if userID == 0 {
		return Report{}, fmt.Errorf("%w: user id required", ErrInvalidInput)
	}

	acct, err := s.accounts.Get(ctx, userID)
	if errors.Is(err, accounts.ErrAccountNotFound) {
		return Report{UserID: userID}, nil
	}
	if err != nil {
		return Report{}, fmt.Errorf("get account: %w", err)
	}

	entries, err := s.ledger.ListAll(ctx, userID)
	if err != nil {
		return Report{}, fmt.Errorf("list ledger: %w", err)
	}

	rep := Report{
		UserID:          userID,
		StartingBalance: acct.StartingBalance,
		Balance:         acct.Balance,
		Entries:         len(entries),
	}

	running := acct.StartingBalance
	for _, e := range entries {
		rep.LedgerSum += e.Delta
		running += e.Delta

		if e.BalanceAfter != running {
			rep.Mismatches = append(rep.Mismatches,
				fmt.Sprintf("entry %d (%s): balance_after %d, expected %d", e.ID, e.Kind, e.BalanceAfter, running))
			running = e.BalanceAfter
		}
	}

	if got := acct.StartingBalance + rep.LedgerSum; got != acct.Balance {
		rep.Mismatches = append(rep.Mismatches,
			fmt.Sprintf("starting balance + deltas = %d, account balance %d", got, acct.Balance))
	}

	if n := len(entries); n > 0 && entries[n-1].BalanceAfter != acct.Balance {
		rep.Mismatches = append(rep.Mismatches,
			fmt.Sprintf("last balance_after %d, account balance %d", entries[n-1].BalanceAfter, acct.Balance))
	}

	return rep, nil
}
