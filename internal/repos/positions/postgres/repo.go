package positions

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fastprodman/paperledger/internal/repos/positions"
	"github.com/fastprodman/paperledger/internal/repos/predictions"
)

var _ positions.Positions = (*positionsRepo)(nil)

type positionsRepo struct{ db *sql.DB }

func New(db *sql.DB) *positionsRepo {
	return &positionsRepo{db: db}
}

const selectColumns = `
	id, user_id, prediction_id, side, stake, line::TEXT,
	opened_at, settled_at, outcome, payout, pnl
`

func scanPositions(rows *sql.Rows) ([]positions.Position, error) {
	defer rows.Close()

	out := make([]positions.Position, 0)
	for rows.Next() {
		var (
			p         positions.Position
			id        string
			side      string
			line      string
			settledAt sql.NullTime
			outcome   sql.NullString
			payout    sql.NullInt64
			pnl       sql.NullInt64
		)

		err := rows.Scan(&id, &p.UserID, &p.PredictionID, &side, &p.Stake, &line,
			&p.OpenedAt, &settledAt, &outcome, &payout, &pnl)
		if err != nil {
			return nil, fmt.Errorf("scan position: %w", err)
		}

		p.ID, err = uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("parse position id: %w", err)
		}

		p.Line, err = decimal.NewFromString(line)
		if err != nil {
			return nil, fmt.Errorf("parse line %q: %w", line, err)
		}

		p.Side = positions.Side(side)
		if settledAt.Valid {
			ts := settledAt.Time
			p.SettledAt = &ts
		}
		if outcome.Valid {
			o := predictions.Outcome(outcome.String)
			p.Outcome = &o
		}
		if payout.Valid {
			v := payout.Int64
			p.Payout = &v
		}
		if pnl.Valid {
			v := pnl.Int64
			p.PnL = &v
		}

		out = append(out, p)
	}

	err := rows.Err()
	if err != nil {
		return nil, fmt.Errorf("iterate positions: %w", err)
	}

	return out, nil
}
