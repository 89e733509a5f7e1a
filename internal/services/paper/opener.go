package paper

import (
	"context"
	"database/sql"
	"errors"
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

type OpenRequest struct {
	UserID         uint64
	PredictionID   uint64
	Side           positions.Side
	Stake          int64 // cents
	IdempotencyKey string
}

func (r OpenRequest) validate() error {
	switch {
	case r.UserID == 0:
		return fmt.Errorf("%w: user id required", ErrInvalidInput)
	case r.PredictionID == 0:
		return fmt.Errorf("%w: prediction id required", ErrInvalidInput)
	case r.Stake <= 0:
		return fmt.Errorf("%w: stake must be > 0", ErrInvalidInput)
	case r.Stake > MaxAmount:
		return fmt.Errorf("%w: stake exceeds %d", ErrInvalidInput, MaxAmount)
	}

	_, err := positions.ParseSide(string(r.Side))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	return nil
}

// OpenPosition debits the stake and records a position priced at the
// prediction's current reference line, all in one transaction:
//
// 1) Claim the idempotency key.
// 2) Lock the bankroll row.
// 3) Lock the prediction and snapshot its line.
// 4) Debit the stake through the mutator.
// 5) Insert the position.
func (s *Service) OpenPosition(ctx context.Context, req OpenRequest) (pos positions.Position, err error) {
	start := time.Now()
	defer func() { s.observe("open_position", start, err) }()

	err = req.validate()
	if err != nil {
		return positions.Position{}, err
	}

	var (
		after     accounts.Account
		bustsSeen int
	)

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		// 1) Claim
		err := s.claim(ctx, tx, req.UserID, req.IdempotencyKey, idempotency.ActionOpenPosition)
		if err != nil {
			return err
		}

		// 2) Lock bankroll
		acct, err := s.lockAccount(ctx, tx, req.UserID)
		if err != nil {
			return fmt.Errorf("lock account: %w", err)
		}
		busts := acct.BustCount

		// 3) Lock prediction
		pred, err := s.predictions.Lock(ctx, tx, req.UserID, req.PredictionID)
		if err != nil {
			if errors.Is(err, predictions.ErrNotFound) {
				return fmt.Errorf("%w: %w", ErrPredictionNotOpen, err)
			}
			return fmt.Errorf("lock prediction: %w", err)
		}
		if pred.Status != predictions.StatusOpen {
			return fmt.Errorf("%w: prediction %d is %s", ErrPredictionNotOpen, pred.ID, pred.Status)
		}

		line, err := NormalizeLine(pred.ReferenceLine)
		if err != nil {
			return err
		}

		// 4) Debit
		now := s.clock()
		pos = positions.Position{
			ID:           uuid.New(),
			UserID:       req.UserID,
			PredictionID: req.PredictionID,
			Side:         req.Side,
			Stake:        req.Stake,
			Line:         line,
			OpenedAt:     now,
		}

		memo := "position " + pos.ID.String()
		_, err = s.apply(ctx, tx, &acct, mutation{
			Kind:         ledger.KindOpenPosition,
			Delta:        -req.Stake,
			PredictionID: &req.PredictionID,
			Memo:         &memo,
			At:           now,
		})
		if err != nil {
			return err
		}

		// 5) Insert position
		err = s.positions.Insert(ctx, tx, pos)
		if err != nil {
			return fmt.Errorf("insert position: %w", err)
		}

		after = acct
		bustsSeen = acct.BustCount - busts

		return nil
	})
	if err != nil {
		return positions.Position{}, fmt.Errorf("open position: %w", err)
	}

	metrics.PositionsOpened.WithLabelValues(string(pos.Side)).Inc()
	metrics.StakeCents.WithLabelValues(string(pos.Side)).Add(float64(pos.Stake))
	metrics.Busts.Add(float64(bustsSeen))

	s.committed(ctx, after, events.Event{
		Type:         events.TypePositionOpened,
		UserID:       req.UserID,
		PredictionID: &pos.PredictionID,
		Delta:        -pos.Stake,
		Balance:      after.Balance,
		At:           pos.OpenedAt,
	})

	s.log.Info("position opened",
		"user_id", req.UserID,
		"prediction_id", req.PredictionID,
		"position_id", pos.ID,
		"side", pos.Side,
		"stake", pos.Stake,
		"line", pos.Line.String(),
	)

	return pos, nil
}
