package domain

import "time"

// TradeAction es el tipo de entrada en el histórico de trades.
type TradeAction string

const (
	ActionOpen          TradeAction = "open"
	ActionClose         TradeAction = "close"
	ActionCloseExternal TradeAction = "close_external" // liquidada o cerrada fuera del bot
)

// TradeRecord es una entrada del histórico append-only.
type TradeRecord struct {
	ID         string             `json:"id"`
	RunID      string             `json:"runId"`
	Strategy   string             `json:"strategy"`
	Action     TradeAction        `json:"action"`
	PositionID string             `json:"positionId"`
	Legs       []Leg              `json:"legs"`
	Leverage   float64            `json:"leverage"`
	Collateral float64            `json:"collateral"`
	Prices     map[string]float64 `json:"prices,omitempty"`
	PnLPct     float64            `json:"pnlPct"`
	Reason     string             `json:"reason,omitempty"`
	TxHash     string             `json:"txHash,omitempty"`
	At         time.Time          `json:"at"`
}
