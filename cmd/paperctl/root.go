package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/Rhymond/go-money"
	"github.com/spf13/cobra"

	"github.com/fastprodman/paperledger/internal/amount"
	"github.com/fastprodman/paperledger/internal/config"
	"github.com/fastprodman/paperledger/internal/infra/logging"
	"github.com/fastprodman/paperledger/internal/infra/pgutils"
	"github.com/fastprodman/paperledger/internal/services/paper"
)

const connectTimeout = 10 * time.Second

type app struct {
	dsn             string
	currency        string
	startingBalance string
	verbose         bool

	db  *sql.DB
	svc *paper.Service
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "paperctl",
		Short:         "Operate paper bankrolls and their ledgers",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.open(cmd.Context())
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			return a.close()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.dsn, "dsn", os.Getenv("PG_DSN"), "postgres connection string (defaults to $PG_DSN)")
	flags.StringVar(&a.currency, "currency", money.USD, "ISO currency used to display amounts")
	flags.StringVar(&a.startingBalance, "starting-balance", "1000.00", "bankroll for accounts created by this run")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "log service activity to stderr")

	root.AddCommand(
		newBalanceCmd(a),
		newLedgerCmd(a),
		newPositionsCmd(a),
		newReconcileCmd(a),
		newResetCmd(a),
		newAdjustCmd(a),
	)

	return root
}

func (a *app) open(ctx context.Context) error {
	if a.dsn == "" {
		return fmt.Errorf("--dsn or PG_DSN is required")
	}

	cur := money.GetCurrency(a.currency)
	if cur == nil {
		return fmt.Errorf("unknown currency %q", a.currency)
	}
	if cur.Fraction != amount.CentsExp {
		return fmt.Errorf("currency %s has %d fractional digits, ledger amounts have %d", cur.Code, cur.Fraction, amount.CentsExp)
	}

	starting, err := amount.ParseCents(a.startingBalance)
	if err != nil || starting < 0 {
		return fmt.Errorf("invalid --starting-balance %q", a.startingBalance)
	}

	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	db, err := pgutils.OpenDB(ctx, config.PostgresConfig{DSN: a.dsn, MaxOpenConns: 2, MaxIdleConns: 1})
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}

	level := slog.LevelWarn
	if a.verbose {
		level = slog.LevelDebug
	}

	a.db = db
	a.svc = paper.New(db,
		paper.WithStartingBalance(starting),
		paper.WithLogger(logging.NewJSON(os.Stderr, level)),
	)

	return nil
}

func (a *app) close() error {
	if a.db == nil {
		return nil
	}

	return a.db.Close()
}

func (a *app) money(cents int64) string {
	return formatMoney(cents, a.currency)
}

func formatMoney(cents int64, currency string) string {
	return money.New(cents, currency).Display()
}

func parseUserID(s string) (uint64, error) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid user id %q", s)
	}

	return id, nil
}
