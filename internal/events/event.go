// Package events streams bankroll changes to a user's websocket clients.
package events

import (
	"encoding/json"
	"time"

	"github.com/fastprodman/paperledger/internal/amount"
)

type Type string

const (
	TypePositionOpened    Type = "position_opened"
	TypePredictionSettled Type = "prediction_settled"
	TypeBankrollReset     Type = "bankroll_reset"
	TypeBankrollAdjusted  Type = "bankroll_adjusted"
)

// Event describes one committed bankroll change. Delta and Balance are cents.
type Event struct {
	Type         Type
	UserID       uint64
	PredictionID *uint64
	Delta        int64
	Balance      int64
	At           time.Time
}

type wireEvent struct {
	Type         Type    `json:"type"`
	UserID       uint64  `json:"userId"`
	PredictionID *uint64 `json:"predictionId,omitempty"`
	Delta        string  `json:"delta"`
	Balance      string  `json:"balance"`
	At           string  `json:"at"`
}

func (e Event) MarshalJSON() ([]byte, error) {
	w := wireEvent{
		Type:         e.Type,
		UserID:       e.UserID,
		PredictionID: e.PredictionID,
		Delta:        amount.Format(e.Delta),
		Balance:      amount.Format(e.Balance),
		At:           e.At.UTC().Format(time.RFC3339Nano),
	}

	return json.Marshal(w)
}
