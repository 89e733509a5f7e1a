package paper

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/fastprodman/paperledger/internal/repos/positions"
)

// LinePlaces is the precision lines are stored with.
const LinePlaces = 4

// NormalizeLine rounds a reference line to LinePlaces and checks it is a
// usable probability strictly inside (0,1).
func NormalizeLine(line *decimal.Decimal) (decimal.Decimal, error) {
	if line == nil {
		return decimal.Zero, fmt.Errorf("%w: prediction has no reference line", ErrInvalidInput)
	}

	l := line.Round(LinePlaces)
	if !l.IsPositive() || l.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return decimal.Zero, fmt.Errorf("%w: line %s outside (0,1)", ErrInvalidInput, l.String())
	}

	return l, nil
}

// SettlementPrice is the fixed price a position pays out at: the line for
// yes, its complement for no.
func SettlementPrice(side positions.Side, line decimal.Decimal) decimal.Decimal {
	if side == positions.SideNo {
		return decimal.NewFromInt(1).Sub(line)
	}

	return line
}

// Wins reports whether side is on the right side of outcome.
func Wins(side positions.Side, outcome bool) bool {
	return (side == positions.SideYes && outcome) || (side == positions.SideNo && !outcome)
}

// Payout is stake / price rounded to the cent. price must be > 0.
func Payout(stake int64, price decimal.Decimal) int64 {
	return decimal.NewFromInt(stake).DivRound(price, 0).IntPart()
}

// Settle computes the terminal payout and pnl of p for outcome. Losers get
// payout 0 and pnl -stake.
func Settle(p positions.Position, outcome bool) (payout, pnl int64) {
	if !Wins(p.Side, outcome) {
		return 0, -p.Stake
	}

	payout = Payout(p.Stake, SettlementPrice(p.Side, p.Line))

	return payout, payout - p.Stake
}
