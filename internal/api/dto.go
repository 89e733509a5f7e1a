package api

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/fastprodman/paperledger/internal/amount"
	"github.com/fastprodman/paperledger/internal/repos/accounts"
	"github.com/fastprodman/paperledger/internal/repos/ledger"
	"github.com/fastprodman/paperledger/internal/repos/positions"
	"github.com/fastprodman/paperledger/internal/repos/predictions"
	"github.com/fastprodman/paperledger/internal/services/paper"
)

// Amounts are rendered as strings with two decimals, lines with four.

type balanceResponse struct {
	UserID          uint64     `json:"userId"`
	Balance         string     `json:"balance"`
	StartingBalance string     `json:"startingBalance"`
	AllTimeHigh     string     `json:"allTimeHigh"`
	BustCount       int        `json:"bustCount"`
	LastBustAt      *time.Time `json:"lastBustAt"`
}

func toBalanceResponse(a accounts.Account) balanceResponse {
	return balanceResponse{
		UserID:          a.UserID,
		Balance:         amount.Format(a.Balance),
		StartingBalance: amount.Format(a.StartingBalance),
		AllTimeHigh:     amount.Format(a.AllTimeHigh),
		BustCount:       a.BustCount,
		LastBustAt:      a.LastBustAt,
	}
}

type positionResponse struct {
	ID           string     `json:"id"`
	PredictionID uint64     `json:"predictionId"`
	Side         string     `json:"side"`
	Stake        string     `json:"stake"`
	Line         string     `json:"line"`
	OpenedAt     time.Time  `json:"openedAt"`
	SettledAt    *time.Time `json:"settledAt"`
	Outcome      *string    `json:"outcome"`
	Payout       *string    `json:"payout"`
	PnL          *string    `json:"pnl"`
}

func toPositionResponse(p positions.Position) positionResponse {
	resp := positionResponse{
		ID:           p.ID.String(),
		PredictionID: p.PredictionID,
		Side:         string(p.Side),
		Stake:        amount.Format(p.Stake),
		Line:         p.Line.StringFixed(paper.LinePlaces),
		OpenedAt:     p.OpenedAt,
		SettledAt:    p.SettledAt,
		Payout:       amount.FormatPtr(p.Payout),
		PnL:          amount.FormatPtr(p.PnL),
	}
	if p.Outcome != nil {
		o := string(*p.Outcome)
		resp.Outcome = &o
	}

	return resp
}

func toPositionResponses(ps []positions.Position) []positionResponse {
	out := make([]positionResponse, 0, len(ps))
	for _, p := range ps {
		out = append(out, toPositionResponse(p))
	}

	return out
}

type ledgerEntryResponse struct {
	ID           int64     `json:"id"`
	PredictionID *uint64   `json:"predictionId"`
	GroupID      string    `json:"groupId"`
	Kind         string    `json:"kind"`
	Delta        string    `json:"delta"`
	BalanceAfter string    `json:"balanceAfter"`
	Memo         *string   `json:"memo"`
	CreatedAt    time.Time `json:"createdAt"`
}

func toLedgerResponses(entries []ledger.Entry) []ledgerEntryResponse {
	out := make([]ledgerEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, ledgerEntryResponse{
			ID:           e.ID,
			PredictionID: e.PredictionID,
			GroupID:      e.GroupID.String(),
			Kind:         string(e.Kind),
			Delta:        amount.Format(e.Delta),
			BalanceAfter: amount.Format(e.BalanceAfter),
			Memo:         e.Memo,
			CreatedAt:    e.CreatedAt,
		})
	}

	return out
}

type settlementResponse struct {
	SettledCount int                `json:"settledCount"`
	TotalPayout  string             `json:"totalPayout"`
	BalanceAfter string             `json:"balanceAfter"`
	Positions    []positionResponse `json:"positions"`
}

type portfolioResponse struct {
	balanceResponse
	OpenCount    int    `json:"openCount"`
	OpenStake    string `json:"openStake"`
	SettledCount int    `json:"settledCount"`
	RealizedPnL  string `json:"realizedPnl"`
	Wins         int    `json:"wins"`
	Losses       int    `json:"losses"`
}

func toPortfolioResponse(p paper.Portfolio) portfolioResponse {
	return portfolioResponse{
		balanceResponse: toBalanceResponse(p.Account),
		OpenCount:       p.OpenCount,
		OpenStake:       amount.Format(p.OpenStake),
		SettledCount:    p.SettledCount,
		RealizedPnL:     amount.Format(p.RealizedPnL),
		Wins:            p.Wins,
		Losses:          p.Losses,
	}
}

// --- Requests ---

type openPositionRequest struct {
	PredictionID uint64 `json:"predictionId"`
	Side         string `json:"side"`
	Stake        string `json:"stake"`
}

type resolveRequest struct {
	Outcome outcomeField `json:"outcome"`
	Note    *string      `json:"note"`
}

// outcomeField accepts a JSON boolean or one of "true", "false", "unknown".
type outcomeField predictions.Outcome

func (o *outcomeField) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*o = outcomeField(predictions.OutcomeOf(b))
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("outcome must be a boolean or string, got %s", strconv.Quote(string(data)))
	}

	parsed, err := predictions.ParseOutcome(s)
	if err != nil {
		return err
	}
	*o = outcomeField(parsed)

	return nil
}
