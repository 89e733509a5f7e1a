package paper

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fastprodman/paperledger/internal/repos/accounts"
	"github.com/fastprodman/paperledger/internal/repos/ledger"
	"github.com/fastprodman/paperledger/internal/repos/positions"
)

const (
	DefaultLedgerLimit = 50
	MaxLedgerLimit     = 500
)

// Portfolio summarizes a user's bankroll and positions.
type Portfolio struct {
	Account      accounts.Account
	OpenCount    int
	OpenStake    int64
	SettledCount int
	RealizedPnL  int64
	Wins         int
	Losses       int
}

// GetBalance returns the user's account, creating it on first access. It is
// served from the account cache when one is configured.
func (s *Service) GetBalance(ctx context.Context, userID uint64) (accounts.Account, error) {
	if userID == 0 {
		return accounts.Account{}, fmt.Errorf("%w: user id required", ErrInvalidInput)
	}

	if s.cache != nil {
		if acct, ok := s.cache.Get(ctx, userID); ok {
			return acct, nil
		}
	}

	acct, err := s.accounts.Get(ctx, userID)
	if errors.Is(err, accounts.ErrAccountNotFound) {
		err = s.withTx(ctx, func(tx *sql.Tx) error {
			return s.accounts.Ensure(ctx, tx, userID, s.startingBalance)
		})
		if err != nil {
			return accounts.Account{}, fmt.Errorf("ensure account: %w", err)
		}

		acct, err = s.accounts.Get(ctx, userID)
	}
	if err != nil {
		return accounts.Account{}, fmt.Errorf("get balance: %w", err)
	}

	// a commit that raced this read has already stored a higher version,
	// which Put keeps
	if s.cache != nil {
		s.cache.Put(ctx, acct)
	}

	return acct, nil
}

// ListOpenPositions returns unsettled positions, newest first, optionally
// restricted to one prediction.
func (s *Service) ListOpenPositions(ctx context.Context, userID uint64, predictionID *uint64) ([]positions.Position, error) {
	if userID == 0 {
		return nil, fmt.Errorf("%w: user id required", ErrInvalidInput)
	}

	ps, err := s.positions.ListOpen(ctx, userID, predictionID)
	if err != nil {
		return nil, fmt.Errorf("list open positions: %w", err)
	}

	return ps, nil
}

// ListPositions returns open and settled positions, newest first.
func (s *Service) ListPositions(ctx context.Context, userID uint64, predictionID *uint64) ([]positions.Position, error) {
	if userID == 0 {
		return nil, fmt.Errorf("%w: user id required", ErrInvalidInput)
	}

	ps, err := s.positions.List(ctx, userID, predictionID)
	if err != nil {
		return nil, fmt.Errorf("list positions: %w", err)
	}

	return ps, nil
}

// ListLedger returns the newest entries first. limit <= 0 selects
// DefaultLedgerLimit; larger values are capped at MaxLedgerLimit.
func (s *Service) ListLedger(ctx context.Context, userID uint64, limit int) ([]ledger.Entry, error) {
	if userID == 0 {
		return nil, fmt.Errorf("%w: user id required", ErrInvalidInput)
	}

	switch {
	case limit <= 0:
		limit = DefaultLedgerLimit
	case limit > MaxLedgerLimit:
		limit = MaxLedgerLimit
	}

	entries, err := s.ledger.ListRecent(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list ledger: %w", err)
	}

	return entries, nil
}

func (s *Service) Portfolio(ctx context.Context, userID uint64) (Portfolio, error) {
	acct, err := s.GetBalance(ctx, userID)
	if err != nil {
		return Portfolio{}, err
	}

	st, err := s.positions.Stats(ctx, userID)
	if err != nil {
		return Portfolio{}, fmt.Errorf("position stats: %w", err)
	}

	return Portfolio{
		Account:      acct,
		OpenCount:    st.OpenCount,
		OpenStake:    st.OpenStake,
		SettledCount: st.SettledCount,
		RealizedPnL:  st.RealizedPnL,
		Wins:         st.Wins,
		Losses:       st.Losses,
	}, nil
}
