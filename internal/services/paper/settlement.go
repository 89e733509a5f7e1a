package paper

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fastprodman/paperledger/internal/events"
	"github.com/fastprodman/paperledger/internal/metrics"
	"github.com/fastprodman/paperledger/internal/repos/accounts"
	"github.com/fastprodman/paperledger/internal/repos/idempotency"
	"github.com/fastprodman/paperledger/internal/repos/ledger"
	"github.com/fastprodman/paperledger/internal/repos/positions"
	"github.com/fastprodman/paperledger/internal/repos/predictions"
)

type SettleRequest struct {
	UserID         uint64
	PredictionID   uint64
	Outcome        predictions.Outcome
	Note           *string
	IdempotencyKey string
}

type SettlementResult struct {
	SettledCount int
	TotalPayout  int64 // cents
	BalanceAfter int64 // cents
	Positions    []positions.Position
}

func (r SettleRequest) validate() (bool, error) {
	if r.UserID == 0 || r.PredictionID == 0 {
		return false, fmt.Errorf("%w: user and prediction ids required", ErrInvalidInput)
	}

	outcome, ok := r.Outcome.Bool()
	if !ok {
		return false, fmt.Errorf("%w: outcome must be true or false, got %q", ErrInvalidInput, r.Outcome)
	}

	return outcome, nil
}

// ResolveAndSettle resolves the prediction and settles every open position
// on it as one batch:
//
// 1) Claim the idempotency key.
// 2) Lock the bankroll row.
// 3) Move the prediction to resolved; fails if it already was.
// 4) Lock the open positions.
// 5) Credit each winner and record each loser under one group id.
// 6) Stamp every position with its settlement.
func (s *Service) ResolveAndSettle(ctx context.Context, req SettleRequest) (res SettlementResult, err error) {
	start := time.Now()
	defer func() { s.observe("resolve_and_settle", start, err) }()

	outcome, err := req.validate()
	if err != nil {
		return SettlementResult{}, err
	}

	var (
		wins, losses int
		settledAt    time.Time
		after        accounts.Account
	)

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		res = SettlementResult{}
		wins, losses = 0, 0

		// 1) Claim
		err := s.claim(ctx, tx, req.UserID, req.IdempotencyKey, idempotency.ActionResolveAndSettle)
		if err != nil {
			return err
		}

		// 2) Lock bankroll
		acct, err := s.lockAccount(ctx, tx, req.UserID)
		if err != nil {
			return fmt.Errorf("lock account: %w", err)
		}

		// 3) Resolve
		settledAt = s.clock()
		err = s.predictions.MarkResolved(ctx, tx, req.UserID, req.PredictionID, req.Outcome, req.Note, settledAt)
		if err != nil {
			return err
		}

		// 4) Lock positions
		open, err := s.positions.LockOpen(ctx, tx, req.UserID, req.PredictionID)
		if err != nil {
			return fmt.Errorf("lock open positions: %w", err)
		}

		group := uuid.New()
		for _, p := range open {
			// 5) Credit or record
			payout, pnl := Settle(p, outcome)
			kind := ledger.KindSettleLoss
			if payout > 0 {
				kind = ledger.KindSettleWin
				wins++
			} else {
				losses++
			}

			memo := "position " + p.ID.String()
			_, err = s.apply(ctx, tx, &acct, mutation{
				Kind:         kind,
				Delta:        payout,
				PredictionID: &req.PredictionID,
				GroupID:      group,
				Memo:         &memo,
				At:           settledAt,
			})
			if err != nil {
				return err
			}

			// 6) Stamp
			st := positions.Settlement{SettledAt: settledAt, Outcome: req.Outcome, Payout: payout, PnL: pnl}
			err = s.positions.Settle(ctx, tx, p.ID, st)
			if err != nil {
				return fmt.Errorf("settle position %s: %w", p.ID, err)
			}

			p.SettledAt = &st.SettledAt
			p.Outcome = &st.Outcome
			p.Payout = &st.Payout
			p.PnL = &st.PnL

			res.Positions = append(res.Positions, p)
			res.TotalPayout += payout
		}

		res.SettledCount = len(open)
		res.BalanceAfter = acct.Balance
		after = acct

		return nil
	})
	if err != nil {
		return SettlementResult{}, fmt.Errorf("resolve and settle: %w", err)
	}

	metrics.PositionsSettled.WithLabelValues("win").Add(float64(wins))
	metrics.PositionsSettled.WithLabelValues("loss").Add(float64(losses))
	metrics.PayoutCents.Add(float64(res.TotalPayout))

	s.committed(ctx, after, events.Event{
		Type:         events.TypePredictionSettled,
		UserID:       req.UserID,
		PredictionID: &req.PredictionID,
		Delta:        res.TotalPayout,
		Balance:      res.BalanceAfter,
		At:           settledAt,
	})

	s.log.Info("prediction settled",
		"user_id", req.UserID,
		"prediction_id", req.PredictionID,
		"outcome", req.Outcome,
		"settled", res.SettledCount,
		"wins", wins,
		"total_payout", res.TotalPayout,
		"balance_after", res.BalanceAfter,
	)

	return res, nil
}
