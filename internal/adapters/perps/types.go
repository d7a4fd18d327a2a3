package perps

// Tipos crudos del contrato de perpetuos. Los importes llegan como strings
// decimales; los de colateral en micro-unidades.

type rawMarket struct {
	Denom   string `json:"denom"`
	Display string `json:"display"`
	Enabled *bool  `json:"enabled"`
}

type rawMarketsResponse struct {
	Markets []rawMarket `json:"markets"`
}

type rawPosition struct {
	ID         string   `json:"id"`
	Owner      string   `json:"owner"`
	Denoms     []string `json:"denoms"`
	Collateral string   `json:"collateral"`
}

type rawPositionsResponse struct {
	Positions []rawPosition `json:"positions"`
}

type bankBalanceResponse struct {
	Balance struct {
		Denom  string `json:"denom"`
		Amount string `json:"amount"`
	} `json:"balance"`
}

// executeRequest es el body que se firma y se envía al gateway.
type executeRequest struct {
	Contract  string `json:"contract"`
	Sender    string `json:"sender"`
	Msg       any    `json:"msg"`
	Funds     []coin `json:"funds,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

type coin struct {
	Denom  string `json:"denom"`
	Amount string `json:"amount"`
}

type openLeg struct {
	Denom     string `json:"denom"`
	Direction string `json:"direction"`
	Weight    string `json:"weight"`
}

type openPositionMsg struct {
	OpenPosition struct {
		Legs     []openLeg `json:"legs"`
		Leverage string    `json:"leverage"`
	} `json:"open_position"`
}

type closePositionMsg struct {
	ClosePosition struct {
		ID string `json:"id"`
	} `json:"close_position"`
}

type executeResponse struct {
	TxHash     string `json:"txhash"`
	Code       uint32 `json:"code"`
	RawLog     string `json:"raw_log"`
	PositionID string `json:"position_id"`
}
