package paper

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/fastprodman/paperledger/internal/events"
	"github.com/fastprodman/paperledger/internal/metrics"
	"github.com/fastprodman/paperledger/internal/repos/accounts"
	"github.com/fastprodman/paperledger/internal/repos/idempotency"
	"github.com/fastprodman/paperledger/internal/repos/ledger"
)

// ResetBankroll refills a busted bankroll with its starting balance. Only an
// account at balance 0 can be reset; otherwise ErrNotBusted.
func (s *Service) ResetBankroll(ctx context.Context, userID uint64, idemKey string) (acct accounts.Account, err error) {
	start := time.Now()
	defer func() { s.observe("bust_reset", start, err) }()

	if userID == 0 {
		return accounts.Account{}, fmt.Errorf("%w: user id required", ErrInvalidInput)
	}

	var at time.Time
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		err := s.claim(ctx, tx, userID, idemKey, idempotency.ActionBustReset)
		if err != nil {
			return err
		}

		acct, err = s.lockAccount(ctx, tx, userID)
		if err != nil {
			return fmt.Errorf("lock account: %w", err)
		}

		if acct.Balance != 0 {
			return fmt.Errorf("%w: balance is %d", ErrNotBusted, acct.Balance)
		}

		at = s.clock()
		memo := "bankroll reset"
		_, err = s.apply(ctx, tx, &acct, mutation{
			Kind:  ledger.KindBustReset,
			Delta: acct.StartingBalance,
			Memo:  &memo,
			At:    at,
		})

		return err
	})
	if err != nil {
		return accounts.Account{}, fmt.Errorf("reset bankroll: %w", err)
	}

	s.committed(ctx, acct, events.Event{
		Type:    events.TypeBankrollReset,
		UserID:  userID,
		Delta:   acct.StartingBalance,
		Balance: acct.Balance,
		At:      at,
	})

	s.log.Info("bankroll reset", "user_id", userID, "balance", acct.Balance, "bust_count", acct.BustCount)

	return acct, nil
}

type AdjustRequest struct {
	UserID         uint64
	Delta          int64 // cents, non-zero
	Memo           string
	IdempotencyKey string
}

// Adjust applies an operator grant or correction of at most MaxAmount either
// way. Debits obey the same balance check as stakes and may bust the account.
func (s *Service) Adjust(ctx context.Context, req AdjustRequest) (acct accounts.Account, err error) {
	start := time.Now()
	defer func() { s.observe("adjustment", start, err) }()

	if req.UserID == 0 || req.Delta == 0 {
		return accounts.Account{}, fmt.Errorf("%w: user id and non-zero delta required", ErrInvalidInput)
	}
	if req.Delta > MaxAmount || req.Delta < -MaxAmount {
		return accounts.Account{}, fmt.Errorf("%w: delta exceeds %d", ErrInvalidInput, MaxAmount)
	}

	var (
		at        time.Time
		bustsSeen int
	)

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		err := s.claim(ctx, tx, req.UserID, req.IdempotencyKey, idempotency.ActionAdjustment)
		if err != nil {
			return err
		}

		acct, err = s.lockAccount(ctx, tx, req.UserID)
		if err != nil {
			return fmt.Errorf("lock account: %w", err)
		}
		busts := acct.BustCount

		var memo *string
		if req.Memo != "" {
			memo = &req.Memo
		}

		at = s.clock()
		_, err = s.apply(ctx, tx, &acct, mutation{
			Kind:  ledger.KindAdjustment,
			Delta: req.Delta,
			Memo:  memo,
			At:    at,
		})
		bustsSeen = acct.BustCount - busts

		return err
	})
	if err != nil {
		return accounts.Account{}, fmt.Errorf("adjust bankroll: %w", err)
	}

	metrics.Busts.Add(float64(bustsSeen))

	s.committed(ctx, acct, events.Event{
		Type:    events.TypeBankrollAdjusted,
		UserID:  req.UserID,
		Delta:   req.Delta,
		Balance: acct.Balance,
		At:      at,
	})

	s.log.Info("bankroll adjusted", "user_id", req.UserID, "delta", req.Delta, "balance", acct.Balance)

	return acct, nil
}
