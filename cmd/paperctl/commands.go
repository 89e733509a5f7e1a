package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/fastprodman/paperledger/internal/amount"
	"github.com/fastprodman/paperledger/internal/repos/accounts"
	"github.com/fastprodman/paperledger/internal/repos/ledger"
	"github.com/fastprodman/paperledger/internal/repos/positions"
	"github.com/fastprodman/paperledger/internal/services/paper"
)

var errLedgerMismatch = errors.New("ledger does not reconcile")

func newBalanceCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "balance <userId>",
		Short: "Show a user's bankroll and position summary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := parseUserID(args[0])
			if err != nil {
				return err
			}

			pf, err := a.svc.Portfolio(cmd.Context(), userID)
			if err != nil {
				return err
			}

			a.printPortfolio(cmd.OutOrStdout(), pf)

			return nil
		},
	}
}

func newLedgerCmd(a *app) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "ledger <userId>",
		Short: "List the newest ledger entries of a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := parseUserID(args[0])
			if err != nil {
				return err
			}

			entries, err := a.svc.ListLedger(cmd.Context(), userID, limit)
			if err != nil {
				return err
			}

			a.printLedger(cmd.OutOrStdout(), entries)

			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", paper.DefaultLedgerLimit, "number of entries to show")

	return cmd
}

func newPositionsCmd(a *app) *cobra.Command {
	var (
		predictionID uint64
		all          bool
	)

	cmd := &cobra.Command{
		Use:   "positions <userId>",
		Short: "List a user's positions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := parseUserID(args[0])
			if err != nil {
				return err
			}

			var filter *uint64
			if predictionID != 0 {
				filter = &predictionID
			}

			var ps []positions.Position
			if all {
				ps, err = a.svc.ListPositions(cmd.Context(), userID, filter)
			} else {
				ps, err = a.svc.ListOpenPositions(cmd.Context(), userID, filter)
			}
			if err != nil {
				return err
			}

			a.printPositions(cmd.OutOrStdout(), ps)

			return nil
		},
	}

	cmd.Flags().Uint64Var(&predictionID, "prediction", 0, "only positions on this prediction")
	cmd.Flags().BoolVar(&all, "all", false, "include settled positions")

	return cmd
}

func newReconcileCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile <userId>...",
		Short: "Replay ledgers and compare them with the stored balances",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			failed := false

			for _, arg := range args {
				userID, err := parseUserID(arg)
				if err != nil {
					return err
				}

				rep, err := a.svc.Reconcile(cmd.Context(), userID)
				if err != nil {
					return fmt.Errorf("user %d: %w", userID, err)
				}

				a.printReport(cmd.OutOrStdout(), rep)
				if !rep.OK() {
					failed = true
				}
			}

			if failed {
				return errLedgerMismatch
			}

			return nil
		},
	}
}

func newResetCmd(a *app) *cobra.Command {
	var key string

	cmd := &cobra.Command{
		Use:   "reset <userId>",
		Short: "Restore the starting bankroll of a busted user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := parseUserID(args[0])
			if err != nil {
				return err
			}

			acct, err := a.svc.ResetBankroll(cmd.Context(), userID, key)
			if err != nil {
				return err
			}

			success.Fprintf(cmd.OutOrStdout(), "bankroll reset: %s (busts: %d)\n", a.money(acct.Balance), acct.BustCount)

			return nil
		},
	}

	cmd.Flags().StringVar(&key, "key", "", "idempotency key")

	return cmd
}

func newAdjustCmd(a *app) *cobra.Command {
	var (
		memo string
		key  string
	)

	cmd := &cobra.Command{
		Use:   "adjust <userId> <amount>",
		Short: "Credit or debit a bankroll with a ledgered adjustment",
		Long:  "Amount is a signed decimal such as 25.00 or -12.50.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := parseUserID(args[0])
			if err != nil {
				return err
			}

			delta, err := amount.ParseCents(args[1])
			if err != nil {
				return err
			}

			acct, err := a.svc.Adjust(cmd.Context(), paper.AdjustRequest{
				UserID:         userID,
				Delta:          delta,
				Memo:           memo,
				IdempotencyKey: key,
			})
			if err != nil {
				return err
			}

			success.Fprintf(cmd.OutOrStdout(), "adjusted by %s, balance %s\n", a.money(delta), a.money(acct.Balance))

			return nil
		},
	}

	cmd.Flags().StringVar(&memo, "memo", "", "reason recorded on the ledger entry")
	cmd.Flags().StringVar(&key, "key", "", "idempotency key")

	return cmd
}

func (a *app) printPortfolio(w io.Writer, pf paper.Portfolio) {
	acct := pf.Account

	accent.Fprintf(w, "user %d\n", acct.UserID)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "balance\t%s\n", a.money(acct.Balance))
	fmt.Fprintf(tw, "starting\t%s\n", a.money(acct.StartingBalance))
	fmt.Fprintf(tw, "all-time high\t%s\n", a.money(acct.AllTimeHigh))
	fmt.Fprintf(tw, "busts\t%d%s\n", acct.BustCount, lastBust(acct))
	fmt.Fprintf(tw, "open\t%d (%s staked)\n", pf.OpenCount, a.money(pf.OpenStake))
	fmt.Fprintf(tw, "settled\t%d (%d won, %d lost)\n", pf.SettledCount, pf.Wins, pf.Losses)
	fmt.Fprintf(tw, "realized pnl\t%s\n", a.money(pf.RealizedPnL))
	_ = tw.Flush()
}

func lastBust(acct accounts.Account) string {
	if acct.LastBustAt == nil {
		return ""
	}

	return ", last " + acct.LastBustAt.Format(time.RFC3339)
}

func (a *app) printLedger(w io.Writer, entries []ledger.Entry) {
	if len(entries) == 0 {
		neutral.Fprintln(w, "no ledger entries")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTIME\tKIND\tPREDICTION\tDELTA\tBALANCE\tMEMO")
	for _, e := range entries {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			e.ID,
			e.CreatedAt.Format(time.RFC3339),
			e.Kind,
			optionalID(e.PredictionID),
			a.money(e.Delta),
			a.money(e.BalanceAfter),
			optionalText(e.Memo),
		)
	}
	_ = tw.Flush()
}

func (a *app) printPositions(w io.Writer, ps []positions.Position) {
	if len(ps) == 0 {
		neutral.Fprintln(w, "no positions")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tPREDICTION\tSIDE\tSTAKE\tLINE\tOUTCOME\tPAYOUT\tPNL")
	for _, p := range ps {
		outcome, payout, pnl := "-", "-", "-"
		if !p.IsOpen() {
			outcome = string(*p.Outcome)
			payout = a.money(*p.Payout)
			pnl = a.money(*p.PnL)
		}

		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			p.ID, p.PredictionID, p.Side, a.money(p.Stake), p.Line.StringFixed(paper.LinePlaces), outcome, payout, pnl)
	}
	_ = tw.Flush()
}

func (a *app) printReport(w io.Writer, rep paper.Report) {
	if rep.OK() {
		success.Fprintf(w, "user %d OK: %d entries, balance %s\n", rep.UserID, rep.Entries, a.money(rep.Balance))
		return
	}

	danger.Fprintf(w, "user %d MISMATCH: balance %s, starting %s + ledger %s\n",
		rep.UserID, a.money(rep.Balance), a.money(rep.StartingBalance), a.money(rep.LedgerSum))
	for _, m := range rep.Mismatches {
		danger.Fprintf(w, "  - %s\n", m)
	}
}

func optionalID(id *uint64) string {
	if id == nil {
		return "-"
	}

	return strconv.FormatUint(*id, 10)
}

func optionalText(s *string) string {
	if s == nil {
		return ""
	}

	return *s
}
