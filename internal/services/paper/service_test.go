package paper

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/fastprodman/paperledger/internal/events"
	"github.com/fastprodman/paperledger/internal/infra/pgtestutil"
	"github.com/fastprodman/paperledger/internal/repos/accounts"
	"github.com/fastprodman/paperledger/internal/repos/ledger"
	"github.com/fastprodman/paperledger/internal/repos/positions"
	"github.com/fastprodman/paperledger/internal/repos/predictions"
)

func newTestService(t *testing.T, opts ...Option) (*Service, *sql.DB) {
	t.Helper()

	db, cleanup := pgtestutil.NewTestDB(t)
	t.Cleanup(cleanup)

	opts = append([]Option{WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}, opts...)

	return New(db, opts...), db
}

func mustBalance(t *testing.T, s *Service, userID uint64) accounts.Account {
	t.Helper()

	acct, err := s.GetBalance(t.Context(), userID)
	if err != nil {
		t.Fatalf("get balance: %v", err)
	}

	return acct
}

func mustReconcile(t *testing.T, s *Service, userID uint64) {
	t.Helper()

	rep, err := s.Reconcile(t.Context(), userID)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if !rep.OK() {
		t.Fatalf("ledger does not reconcile: %v", rep.Mismatches)
	}
}

func TestService_OpenAndSettleScenario(t *testing.T) {
	t.Parallel()

	s, db := newTestService(t)
	ctx := t.Context()
	pred := pgtestutil.SeedPrediction(t, db, 1, pgtestutil.Line("0.40"))

	pos, err := s.OpenPosition(ctx, OpenRequest{UserID: 1, PredictionID: pred, Side: positions.SideYes, Stake: 10_000})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if !pos.IsOpen() || pos.Line.String() != "0.4" {
		t.Fatalf("unexpected position: %+v", pos)
	}
	if got := mustBalance(t, s, 1).Balance; got != 90_000 {
		t.Fatalf("balance after open: want 90000, got %d", got)
	}

	res, err := s.ResolveAndSettle(ctx, SettleRequest{UserID: 1, PredictionID: pred, Outcome: predictions.OutcomeTrue})
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if res.SettledCount != 1 || res.TotalPayout != 25_000 || res.BalanceAfter != 115_000 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if *res.Positions[0].PnL != 15_000 {
		t.Fatalf("pnl: want 15000, got %d", *res.Positions[0].PnL)
	}

	acct := mustBalance(t, s, 1)
	if acct.Balance != 115_000 || acct.AllTimeHigh != 115_000 {
		t.Fatalf("account after settle: %+v", acct)
	}

	entries, err := s.ListLedger(ctx, 1, 0)
	if err != nil {
		t.Fatalf("ledger: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("want 2 ledger entries, got %d", len(entries))
	}
	if entries[1].Delta != -10_000 || entries[1].BalanceAfter != 90_000 || entries[1].Kind != ledger.KindOpenPosition {
		t.Fatalf("open entry: %+v", entries[1])
	}
	if entries[0].Delta != 25_000 || entries[0].BalanceAfter != 115_000 || entries[0].Kind != ledger.KindSettleWin {
		t.Fatalf("win entry: %+v", entries[0])
	}

	mustReconcile(t, s, 1)
}

func TestService_OpenPosition_Rejections(t *testing.T) {
	t.Parallel()

	s, db := newTestService(t, WithStartingBalance(10_000))
	ctx := t.Context()

	open := pgtestutil.SeedPrediction(t, db, 1, pgtestutil.Line("0.5"))
	foreign := pgtestutil.SeedPrediction(t, db, 2, pgtestutil.Line("0.5"))
	noLine := pgtestutil.SeedPrediction(t, db, 1, nil)
	badLine := pgtestutil.SeedPrediction(t, db, 1, pgtestutil.Line("1.5"))
	resolved := pgtestutil.SeedPrediction(t, db, 1, pgtestutil.Line("0.5"))

	_, err := s.ResolveAndSettle(ctx, SettleRequest{UserID: 1, PredictionID: resolved, Outcome: predictions.OutcomeFalse})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	tests := []struct {
		name    string
		req     OpenRequest
		wantErr []error
	}{
		{name: "zero_stake", req: OpenRequest{UserID: 1, PredictionID: open, Side: positions.SideYes}, wantErr: []error{ErrInvalidInput}},
		{name: "negative_stake", req: OpenRequest{UserID: 1, PredictionID: open, Side: positions.SideYes, Stake: -1}, wantErr: []error{ErrInvalidInput}},
		{name: "stake_over_cap", req: OpenRequest{UserID: 1, PredictionID: open, Side: positions.SideYes, Stake: MaxAmount + 1}, wantErr: []error{ErrInvalidInput}},
		{name: "bad_side", req: OpenRequest{UserID: 1, PredictionID: open, Side: "maybe", Stake: 1}, wantErr: []error{ErrInvalidInput}},
		{name: "missing_prediction_id", req: OpenRequest{UserID: 1, Side: positions.SideYes, Stake: 1}, wantErr: []error{ErrInvalidInput}},
		{name: "other_users_prediction", req: OpenRequest{UserID: 1, PredictionID: foreign, Side: positions.SideYes, Stake: 1}, wantErr: []error{ErrPredictionNotOpen, ErrPredictionNotFound}},
		{name: "unknown_prediction", req: OpenRequest{UserID: 1, PredictionID: 9999, Side: positions.SideNo, Stake: 1}, wantErr: []error{ErrPredictionNotOpen}},
		{name: "resolved_prediction", req: OpenRequest{UserID: 1, PredictionID: resolved, Side: positions.SideYes, Stake: 1}, wantErr: []error{ErrPredictionNotOpen}},
		{name: "null_line", req: OpenRequest{UserID: 1, PredictionID: noLine, Side: positions.SideYes, Stake: 1}, wantErr: []error{ErrInvalidInput}},
		{name: "line_outside_unit_interval", req: OpenRequest{UserID: 1, PredictionID: badLine, Side: positions.SideYes, Stake: 1}, wantErr: []error{ErrInvalidInput}},
		{name: "insufficient_balance", req: OpenRequest{UserID: 1, PredictionID: open, Side: positions.SideYes, Stake: 10_001}, wantErr: []error{ErrInsufficientBalance}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.OpenPosition(ctx, tt.req)
			for _, want := range tt.wantErr {
				if !errors.Is(err, want) {
					t.Fatalf("want %v, got %v", want, err)
				}
			}
		})
	}

	if got := mustBalance(t, s, 1).Balance; got != 10_000 {
		t.Fatalf("rejections must not move the balance, got %d", got)
	}
	ps, err := s.ListPositions(ctx, 1, nil)
	if err != nil {
		t.Fatalf("list positions: %v", err)
	}
	if len(ps) != 0 {
		t.Fatalf("rejections must not create positions, got %d", len(ps))
	}
	mustReconcile(t, s, 1)
}

func TestService_ConcurrentOpens_NeverOverdraw(t *testing.T) {
	t.Parallel()

	s, db := newTestService(t)
	ctx := t.Context()

	pgtestutil.SeedAccount(t, db, 1, 10_000)
	pred := pgtestutil.SeedPrediction(t, db, 1, pgtestutil.Line("0.5"))

	const workers = 2
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		okCount  int
		rejected int
	)

	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()

			_, err := s.OpenPosition(ctx, OpenRequest{UserID: 1, PredictionID: pred, Side: positions.SideYes, Stake: 8_000})

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				okCount++
			case errors.Is(err, ErrInsufficientBalance):
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if okCount != 1 || rejected != 1 {
		t.Fatalf("want exactly one success, got ok=%d rejected=%d", okCount, rejected)
	}
	if got := mustBalance(t, s, 1).Balance; got != 2_000 {
		t.Fatalf("want balance 2000, got %d", got)
	}
	mustReconcile(t, s, 1)
}

func TestService_ConcurrentOpens_DrainExactly(t *testing.T) {
	t.Parallel()

	s, db := newTestService(t)
	ctx := t.Context()

	pgtestutil.SeedAccount(t, db, 1, 10_000)
	pred := pgtestutil.SeedPrediction(t, db, 1, pgtestutil.Line("0.3"))

	const workers = 20
	var wg sync.WaitGroup
	errs := make(chan error, workers)

	for i := range workers {
		side := positions.SideYes
		if i%2 == 1 {
			side = positions.SideNo
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.OpenPosition(ctx, OpenRequest{UserID: 1, PredictionID: pred, Side: side, Stake: 500})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("open: %v", err)
		}
	}

	acct := mustBalance(t, s, 1)
	if acct.Balance != 0 || acct.BustCount != 1 || acct.LastBustAt == nil {
		t.Fatalf("want drained and busted once, got %+v", acct)
	}

	open, err := s.ListOpenPositions(ctx, 1, &pred)
	if err != nil {
		t.Fatalf("list open: %v", err)
	}
	if len(open) != workers {
		t.Fatalf("want %d open positions, got %d", workers, len(open))
	}
	mustReconcile(t, s, 1)
}

func TestService_ResolveAndSettle_Batch(t *testing.T) {
	t.Parallel()

	s, db := newTestService(t)
	ctx := t.Context()
	pred := pgtestutil.SeedPrediction(t, db, 1, pgtestutil.Line("0.25"))
	other := pgtestutil.SeedPrediction(t, db, 1, pgtestutil.Line("0.6"))

	for _, req := range []OpenRequest{
		{UserID: 1, PredictionID: pred, Side: positions.SideYes, Stake: 5_000},
		{UserID: 1, PredictionID: pred, Side: positions.SideNo, Stake: 2_000},
		{UserID: 1, PredictionID: pred, Side: positions.SideNo, Stake: 1_000},
		{UserID: 1, PredictionID: other, Side: positions.SideYes, Stake: 700},
	} {
		_, err := s.OpenPosition(ctx, req)
		if err != nil {
			t.Fatalf("open: %v", err)
		}
	}

	note := "closed above"
	res, err := s.ResolveAndSettle(ctx, SettleRequest{UserID: 1, PredictionID: pred, Outcome: predictions.OutcomeTrue, Note: &note})
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if res.SettledCount != 3 || res.TotalPayout != 20_000 {
		t.Fatalf("unexpected result: %+v", res)
	}
	// 100000 - 5000 - 2000 - 1000 - 700 + 20000
	if res.BalanceAfter != 111_300 {
		t.Fatalf("balance after: want 111300, got %d", res.BalanceAfter)
	}

	for _, p := range res.Positions {
		if p.Side == positions.SideNo && (*p.Payout != 0 || *p.PnL != -p.Stake) {
			t.Fatalf("loser: want payout 0 and pnl -stake, got %+v", p)
		}
	}

	entries, err := s.ListLedger(ctx, 1, 3)
	if err != nil {
		t.Fatalf("ledger: %v", err)
	}
	var wins, losses int
	for _, e := range entries {
		if e.GroupID != entries[0].GroupID {
			t.Fatalf("batch entries must share a group id: %+v", entries)
		}
		switch e.Kind {
		case ledger.KindSettleWin:
			wins++
		case ledger.KindSettleLoss:
			losses++
			if e.Delta != 0 {
				t.Fatalf("loss entry must be zero-delta, got %d", e.Delta)
			}
		}
	}
	if wins != 1 || losses != 2 {
		t.Fatalf("want 1 win and 2 loss entries, got %d/%d", wins, losses)
	}

	open, err := s.ListOpenPositions(ctx, 1, nil)
	if err != nil {
		t.Fatalf("list open: %v", err)
	}
	if len(open) != 1 || open[0].PredictionID != other {
		t.Fatalf("only the other prediction's position stays open, got %+v", open)
	}

	pf, err := s.Portfolio(ctx, 1)
	if err != nil {
		t.Fatalf("portfolio: %v", err)
	}
	if pf.OpenCount != 1 || pf.OpenStake != 700 || pf.SettledCount != 3 || pf.Wins != 1 || pf.Losses != 2 {
		t.Fatalf("unexpected portfolio: %+v", pf)
	}
	if pf.RealizedPnL != 15_000-2_000-1_000 {
		t.Fatalf("realized pnl: want 12000, got %d", pf.RealizedPnL)
	}

	mustReconcile(t, s, 1)
}

func TestService_ResolveAndSettle_ExactlyOnce(t *testing.T) {
	t.Parallel()

	s, db := newTestService(t)
	ctx := t.Context()
	pred := pgtestutil.SeedPrediction(t, db, 1, pgtestutil.Line("0.5"))

	_, err := s.OpenPosition(ctx, OpenRequest{UserID: 1, PredictionID: pred, Side: positions.SideYes, Stake: 1_000})
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	const workers = 4
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.ResolveAndSettle(ctx, SettleRequest{UserID: 1, PredictionID: pred, Outcome: predictions.OutcomeTrue})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var ok, already int
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrPredictionAlreadyResolved):
			already++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != 1 || already != workers-1 {
		t.Fatalf("want one settlement, got ok=%d already=%d", ok, already)
	}

	// 100000 - 1000 + 2000
	if got := mustBalance(t, s, 1).Balance; got != 101_000 {
		t.Fatalf("winner credited more than once: balance %d", got)
	}
	mustReconcile(t, s, 1)
}

func TestService_ResolveAndSettle_Rejections(t *testing.T) {
	t.Parallel()

	s, db := newTestService(t)
	ctx := t.Context()
	pred := pgtestutil.SeedPrediction(t, db, 1, pgtestutil.Line("0.5"))
	foreign := pgtestutil.SeedPrediction(t, db, 2, pgtestutil.Line("0.5"))

	tests := []struct {
		name    string
		req     SettleRequest
		wantErr error
	}{
		{name: "unknown_outcome", req: SettleRequest{UserID: 1, PredictionID: pred, Outcome: predictions.OutcomeUnknown}, wantErr: ErrInvalidInput},
		{name: "garbage_outcome", req: SettleRequest{UserID: 1, PredictionID: pred, Outcome: "perhaps"}, wantErr: ErrInvalidInput},
		{name: "other_users_prediction", req: SettleRequest{UserID: 1, PredictionID: foreign, Outcome: predictions.OutcomeTrue}, wantErr: ErrPredictionNotFound},
		{name: "unknown_prediction", req: SettleRequest{UserID: 1, PredictionID: 9999, Outcome: predictions.OutcomeFalse}, wantErr: ErrPredictionNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.ResolveAndSettle(ctx, tt.req)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("want %v, got %v", tt.wantErr, err)
			}
		})
	}

	// the prediction stays open after rejected resolves
	_, err := s.OpenPosition(ctx, OpenRequest{UserID: 1, PredictionID: pred, Side: positions.SideNo, Stake: 100})
	if err != nil {
		t.Fatalf("open after rejected resolves: %v", err)
	}
}

func TestService_SettleWithoutPositions(t *testing.T) {
	t.Parallel()

	s, db := newTestService(t)
	pred := pgtestutil.SeedPrediction(t, db, 1, nil)

	res, err := s.ResolveAndSettle(t.Context(), SettleRequest{UserID: 1, PredictionID: pred, Outcome: predictions.OutcomeFalse})
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if res.SettledCount != 0 || res.TotalPayout != 0 || res.BalanceAfter != DefaultStartingBalance {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestService_BustAndReset(t *testing.T) {
	t.Parallel()

	s, db := newTestService(t)
	ctx := t.Context()

	pgtestutil.SeedAccount(t, db, 1, 1_000)
	first := pgtestutil.SeedPrediction(t, db, 1, pgtestutil.Line("0.5"))
	second := pgtestutil.SeedPrediction(t, db, 1, pgtestutil.Line("0.5"))

	_, err := s.ResetBankroll(ctx, 1, "")
	if !errors.Is(err, ErrNotBusted) {
		t.Fatalf("reset with money left: want ErrNotBusted, got %v", err)
	}

	_, err = s.OpenPosition(ctx, OpenRequest{UserID: 1, PredictionID: first, Side: positions.SideYes, Stake: 1_000})
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	acct := mustBalance(t, s, 1)
	if acct.Balance != 0 || acct.BustCount != 1 || acct.LastBustAt == nil {
		t.Fatalf("want busted account, got %+v", acct)
	}

	// zero-delta loss entries keep the balance at 0 without another bust
	_, err = s.ResolveAndSettle(ctx, SettleRequest{UserID: 1, PredictionID: first, Outcome: predictions.OutcomeFalse})
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if got := mustBalance(t, s, 1).BustCount; got != 1 {
		t.Fatalf("loss entry counted as bust: bust_count %d", got)
	}

	_, err = s.OpenPosition(ctx, OpenRequest{UserID: 1, PredictionID: second, Side: positions.SideYes, Stake: 1})
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("busted account must not open, got %v", err)
	}

	acct, err = s.ResetBankroll(ctx, 1, "reset-1")
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if acct.Balance != 1_000 || acct.BustCount != 1 {
		t.Fatalf("after reset: %+v", acct)
	}

	_, err = s.ResetBankroll(ctx, 1, "reset-2")
	if !errors.Is(err, ErrNotBusted) {
		t.Fatalf("second reset: want ErrNotBusted, got %v", err)
	}

	entries, err := s.ListLedger(ctx, 1, 1)
	if err != nil {
		t.Fatalf("ledger: %v", err)
	}
	if entries[0].Kind != ledger.KindBustReset || entries[0].Delta != 1_000 || entries[0].BalanceAfter != 1_000 {
		t.Fatalf("reset entry: %+v", entries[0])
	}
	mustReconcile(t, s, 1)
}

func TestService_IdempotencyKeys(t *testing.T) {
	t.Parallel()

	s, db := newTestService(t, WithStartingBalance(1_000))
	ctx := t.Context()
	pred := pgtestutil.SeedPrediction(t, db, 1, pgtestutil.Line("0.5"))
	pred2 := pgtestutil.SeedPrediction(t, db, 2, pgtestutil.Line("0.5"))

	req := OpenRequest{UserID: 1, PredictionID: pred, Side: positions.SideYes, Stake: 100, IdempotencyKey: "open-1"}
	_, err := s.OpenPosition(ctx, req)
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	_, err = s.OpenPosition(ctx, req)
	if !errors.Is(err, ErrDuplicateRequest) {
		t.Fatalf("replay: want ErrDuplicateRequest, got %v", err)
	}

	// keys are scoped per user
	_, err = s.OpenPosition(ctx, OpenRequest{UserID: 2, PredictionID: pred2, Side: positions.SideYes, Stake: 100, IdempotencyKey: "open-1"})
	if err != nil {
		t.Fatalf("other user with same key: %v", err)
	}

	// a rejected request does not burn its key
	big := OpenRequest{UserID: 1, PredictionID: pred, Side: positions.SideNo, Stake: 5_000, IdempotencyKey: "open-2"}
	_, err = s.OpenPosition(ctx, big)
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("want ErrInsufficientBalance, got %v", err)
	}
	_, err = s.Adjust(ctx, AdjustRequest{UserID: 1, Delta: 10_000, Memo: "top up"})
	if err != nil {
		t.Fatalf("adjust: %v", err)
	}
	_, err = s.OpenPosition(ctx, big)
	if err != nil {
		t.Fatalf("retry with same key after rejection: %v", err)
	}

	// 1000 - 100 + 10000 - 5000
	if got := mustBalance(t, s, 1).Balance; got != 5_900 {
		t.Fatalf("want 5900, got %d", got)
	}
	mustReconcile(t, s, 1)
}

func TestService_Adjust(t *testing.T) {
	t.Parallel()

	s, _ := newTestService(t, WithStartingBalance(1_000))
	ctx := t.Context()

	tests := []struct {
		name        string
		req         AdjustRequest
		wantErr     error
		wantBalance int64
		wantATH     int64
	}{
		{name: "zero_delta", req: AdjustRequest{UserID: 1}, wantErr: ErrInvalidInput, wantBalance: 1_000, wantATH: 1_000},
		{name: "grant", req: AdjustRequest{UserID: 1, Delta: 500, Memo: "promo"}, wantBalance: 1_500, wantATH: 1_500},
		{name: "overdraw", req: AdjustRequest{UserID: 1, Delta: -1_501}, wantErr: ErrInsufficientBalance, wantBalance: 1_500, wantATH: 1_500},
		{name: "correction", req: AdjustRequest{UserID: 1, Delta: -700}, wantBalance: 800, wantATH: 1_500},
		{name: "grant_over_cap", req: AdjustRequest{UserID: 1, Delta: MaxAmount + 1}, wantErr: ErrInvalidInput, wantBalance: 800, wantATH: 1_500},
		{name: "debit_over_cap", req: AdjustRequest{UserID: 1, Delta: -MaxAmount - 1}, wantErr: ErrInvalidInput, wantBalance: 800, wantATH: 1_500},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Adjust(ctx, tt.req)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("want %v, got %v", tt.wantErr, err)
				}
			} else if err != nil {
				t.Fatalf("adjust: %v", err)
			}

			acct := mustBalance(t, s, 1)
			if acct.Balance != tt.wantBalance || acct.AllTimeHigh != tt.wantATH {
				t.Fatalf("want balance %d ath %d, got %+v", tt.wantBalance, tt.wantATH, acct)
			}
		})
	}
	mustReconcile(t, s, 1)
}

func TestService_Adjust_BalanceLimit(t *testing.T) {
	t.Parallel()

	s, db := newTestService(t)
	ctx := t.Context()
	pgtestutil.SeedAccount(t, db, 1, MaxBalance-10)

	_, err := s.Adjust(ctx, AdjustRequest{UserID: 1, Delta: 11})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("credit past the limit: want ErrInvalidInput, got %v", err)
	}
	if got := mustBalance(t, s, 1).Balance; got != MaxBalance-10 {
		t.Fatalf("rejected credit moved the balance to %d", got)
	}

	acct, err := s.Adjust(ctx, AdjustRequest{UserID: 1, Delta: 10})
	if err != nil {
		t.Fatalf("credit up to the limit: %v", err)
	}
	if acct.Balance != MaxBalance {
		t.Fatalf("want balance %d, got %d", MaxBalance, acct.Balance)
	}
}

func TestService_ListLedger_Limits(t *testing.T) {
	t.Parallel()

	s, _ := newTestService(t)
	ctx := t.Context()

	for i := range 3 {
		_, err := s.Adjust(ctx, AdjustRequest{UserID: 1, Delta: int64(i + 1)})
		if err != nil {
			t.Fatalf("adjust: %v", err)
		}
	}

	tests := []struct {
		limit int
		want  int
	}{
		{limit: 0, want: 3},
		{limit: -5, want: 3},
		{limit: 2, want: 2},
		{limit: 10_000, want: 3},
	}

	for _, tt := range tests {
		entries, err := s.ListLedger(ctx, 1, tt.limit)
		if err != nil {
			t.Fatalf("limit %d: %v", tt.limit, err)
		}
		if len(entries) != tt.want {
			t.Fatalf("limit %d: want %d entries, got %d", tt.limit, tt.want, len(entries))
		}
	}

	_, err := s.ListLedger(ctx, 0, 10)
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("zero user: want ErrInvalidInput, got %v", err)
	}
}

// fakeCache mirrors the Redis cache: Put keeps a stored snapshot with a
// higher version. beforePut, when set, runs once ahead of the next Put.
type fakeCache struct {
	mu        sync.Mutex
	data      map[uint64]accounts.Account
	beforePut func()
	putErrs   []error
}

func (c *fakeCache) Get(_ context.Context, userID uint64) (accounts.Account, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	a, ok := c.data[userID]
	return a, ok
}

func (c *fakeCache) Put(ctx context.Context, acct accounts.Account) {
	c.mu.Lock()
	hook := c.beforePut
	c.beforePut = nil
	c.mu.Unlock()

	if hook != nil {
		hook()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.putErrs = append(c.putErrs, ctx.Err())
	if cur, ok := c.data[acct.UserID]; ok && cur.Version > acct.Version {
		return
	}
	c.data[acct.UserID] = acct
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(e events.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}

func TestService_CacheAndEvents(t *testing.T) {
	t.Parallel()

	cache := &fakeCache{data: map[uint64]accounts.Account{}}
	pub := &recordingPublisher{}
	s, db := newTestService(t, WithAccountCache(cache), WithPublisher(pub))
	ctx := t.Context()
	pred := pgtestutil.SeedPrediction(t, db, 1, pgtestutil.Line("0.5"))

	acct := mustBalance(t, s, 1)
	if _, ok := cache.Get(ctx, 1); !ok || acct.Balance != DefaultStartingBalance {
		t.Fatal("miss must fill the cache")
	}

	_, err := s.OpenPosition(ctx, OpenRequest{UserID: 1, PredictionID: pred, Side: positions.SideYes, Stake: 1_000})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	cached, ok := cache.Get(ctx, 1)
	if !ok || cached.Balance != 99_000 || cached.Version != 1 {
		t.Fatalf("mutation must store the committed snapshot, got %+v (hit %t)", cached, ok)
	}
	if got := mustBalance(t, s, 1).Balance; got != 99_000 {
		t.Fatalf("want fresh balance 99000, got %d", got)
	}

	_, err = s.ResolveAndSettle(ctx, SettleRequest{UserID: 1, PredictionID: pred, Outcome: predictions.OutcomeTrue})
	if err != nil {
		t.Fatalf("settle: %v", err)
	}

	// failed mutations publish nothing
	_, _ = s.OpenPosition(ctx, OpenRequest{UserID: 1, PredictionID: pred, Side: positions.SideYes, Stake: 1})

	pub.mu.Lock()
	defer pub.mu.Unlock()
	if len(pub.events) != 2 {
		t.Fatalf("want 2 events, got %+v", pub.events)
	}
	opened, settled := pub.events[0], pub.events[1]
	if opened.Type != events.TypePositionOpened || opened.Delta != -1_000 || opened.Balance != 99_000 {
		t.Fatalf("open event: %+v", opened)
	}
	if settled.Type != events.TypePredictionSettled || settled.Delta != 2_000 || settled.Balance != 101_000 {
		t.Fatalf("settle event: %+v", settled)
	}
	if settled.PredictionID == nil || *settled.PredictionID != pred {
		t.Fatalf("settle event prediction: %v", settled.PredictionID)
	}
}

func TestService_CacheFillRacingCommit(t *testing.T) {
	t.Parallel()

	cache := &fakeCache{data: map[uint64]accounts.Account{}}
	s, db := newTestService(t, WithAccountCache(cache))
	ctx := t.Context()
	pred := pgtestutil.SeedPrediction(t, db, 1, pgtestutil.Line("0.5"))

	// the read below loads version 0, then a commit lands before its Put
	var openErr error
	cache.beforePut = func() {
		_, openErr = s.OpenPosition(ctx, OpenRequest{UserID: 1, PredictionID: pred, Side: positions.SideYes, Stake: 1_000})
	}

	stale, err := s.GetBalance(ctx, 1)
	if err != nil {
		t.Fatalf("get balance: %v", err)
	}
	if openErr != nil {
		t.Fatalf("open: %v", openErr)
	}
	if stale.Balance != DefaultStartingBalance || stale.Version != 0 {
		t.Fatalf("read must predate the commit, got %+v", stale)
	}

	cached, ok := cache.Get(ctx, 1)
	if !ok {
		t.Fatal("want cached account")
	}
	if cached.Balance != 99_000 || cached.Version != 1 {
		t.Fatalf("stale read replaced the committed snapshot: %+v", cached)
	}
	if got := mustBalance(t, s, 1); got.Balance != 99_000 {
		t.Fatalf("want cached balance 99000, got %d", got.Balance)
	}
}

func TestService_CommittedIgnoresCallerCancel(t *testing.T) {
	t.Parallel()

	cache := &fakeCache{data: map[uint64]accounts.Account{}}
	pub := &recordingPublisher{}
	s := New(nil, WithAccountCache(cache), WithPublisher(pub))

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	s.committed(ctx, accounts.Account{UserID: 9, Balance: 500, Version: 4}, events.Event{Type: events.TypeBankrollAdjusted, UserID: 9})

	cache.mu.Lock()
	defer cache.mu.Unlock()
	if len(cache.putErrs) != 1 || cache.putErrs[0] != nil {
		t.Fatalf("cache write must not see the caller's cancellation: %v", cache.putErrs)
	}
	if got := cache.data[9]; got.Balance != 500 || got.Version != 4 {
		t.Fatalf("cached snapshot: %+v", got)
	}
	if len(pub.events) != 1 {
		t.Fatalf("want 1 event, got %d", len(pub.events))
	}
}
