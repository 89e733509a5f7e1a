// Package paper is the paper-trading engine: it opens positions against a
// user's bankroll and settles them when a prediction resolves.
//
// Every mutation runs in one Postgres transaction that locks the user's
// bankroll row first, so operations on one user are linearizable while
// different users proceed in parallel.
package paper

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/fastprodman/paperledger/internal/events"
	"github.com/fastprodman/paperledger/internal/infra/pgutils"
	"github.com/fastprodman/paperledger/internal/metrics"
	"github.com/fastprodman/paperledger/internal/repos/accounts"
	pgaccounts "github.com/fastprodman/paperledger/internal/repos/accounts/postgres"
	"github.com/fastprodman/paperledger/internal/repos/idempotency"
	pgidempotency "github.com/fastprodman/paperledger/internal/repos/idempotency/postgres"
	"github.com/fastprodman/paperledger/internal/repos/ledger"
	pgledger "github.com/fastprodman/paperledger/internal/repos/ledger/postgres"
	"github.com/fastprodman/paperledger/internal/repos/positions"
	pgpositions "github.com/fastprodman/paperledger/internal/repos/positions/postgres"
	"github.com/fastprodman/paperledger/internal/repos/predictions"
	pgpredictions "github.com/fastprodman/paperledger/internal/repos/predictions/postgres"
)

const (
	// DefaultStartingBalance is 1000.00 in cents.
	DefaultStartingBalance int64 = 100_000

	// MaxAmount caps a single stake or adjustment (one trillion in cents).
	// At the smallest line of 0.0001 a capped stake pays 10^18, inside int64.
	MaxAmount int64 = 100_000_000_000_000

	// MaxBalance caps a bankroll so payouts credited to it cannot wrap.
	MaxBalance int64 = math.MaxInt64 / 2
)

// AccountCache holds account snapshots for the read path. Implementations
// treat their own failures as misses. Put must keep the cached snapshot when
// it carries a higher Version than acct, so a slow reader cannot overwrite
// what a later commit stored.
type AccountCache interface {
	Get(ctx context.Context, userID uint64) (accounts.Account, bool)
	Put(ctx context.Context, acct accounts.Account)
}

// Publisher receives events after their transaction committed.
type Publisher interface {
	Publish(e events.Event)
}

type Service struct {
	db          *sql.DB
	accounts    accounts.Accounts
	ledger      ledger.Ledger
	positions   positions.Positions
	predictions predictions.Predictions
	keys        idempotency.Keys

	startingBalance int64
	cache           AccountCache
	publisher       Publisher
	now             func() time.Time
	log             *slog.Logger
}

type Option func(*Service)

// WithStartingBalance sets the balance given to lazily created accounts.
func WithStartingBalance(cents int64) Option {
	return func(s *Service) { s.startingBalance = cents }
}

func WithAccountCache(c AccountCache) Option {
	return func(s *Service) { s.cache = c }
}

func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.log = l }
}

func New(db *sql.DB, opts ...Option) *Service {
	s := &Service{
		db:          db,
		accounts:    pgaccounts.New(db),
		ledger:      pgledger.New(db),
		positions:   pgpositions.New(db),
		predictions: pgpredictions.New(db),
		keys:        pgidempotency.New(db),

		startingBalance: DefaultStartingBalance,
		now:             time.Now,
		log:             slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// clock returns the current time truncated to what Postgres stores.
func (s *Service) clock() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

// withTx runs fn in one transaction. Deadlock and serialization aborts are
// not retried here; they surface as ErrStorageConflict and the caller may
// resubmit the whole operation since nothing was committed.
func (s *Service) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	err := pgutils.WithTx(ctx, s.db, fn)
	if err != nil && pgutils.IsRetryable(err) {
		return fmt.Errorf("%w: %w", ErrStorageConflict, err)
	}

	return err
}

// claim records the idempotency key when the caller supplied one.
func (s *Service) claim(ctx context.Context, tx *sql.Tx, userID uint64, key string, action idempotency.Action) error {
	if key == "" {
		return nil
	}

	return s.keys.Claim(ctx, tx, userID, key, action)
}

// lockAccount creates the account if needed and takes its row lock. It must
// be the first statement touching user state in every mutating transaction.
func (s *Service) lockAccount(ctx context.Context, tx *sql.Tx, userID uint64) (accounts.Account, error) {
	err := s.accounts.Ensure(ctx, tx, userID, s.startingBalance)
	if err != nil {
		return accounts.Account{}, err
	}

	return s.accounts.LockForUpdate(ctx, tx, userID)
}

// committed runs the side effects of a committed mutation on a context that
// outlives the caller's cancellation. acct is the account as the transaction
// left it.
func (s *Service) committed(ctx context.Context, acct accounts.Account, evs ...events.Event) {
	ctx = context.WithoutCancel(ctx)

	if s.cache != nil {
		s.cache.Put(ctx, acct)
	}

	if s.publisher != nil {
		for _, e := range evs {
			s.publisher.Publish(e)
		}
	}
}

// observe records latency for op and counts err as a rejection when it is a
// domain error.
func (s *Service) observe(op string, start time.Time, err error) {
	metrics.ObserveOperation(op, start)

	if err == nil {
		return
	}

	if reason := rejectionReason(err); reason != "" {
		metrics.Rejections.WithLabelValues(reason).Inc()
		s.log.Debug("operation rejected", "op", op, "reason", reason, "err", err)
		return
	}

	s.log.Error("operation failed", "op", op, "err", err)
}
