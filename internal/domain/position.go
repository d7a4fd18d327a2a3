package domain

import "time"

// OpenRequest es lo que se envía a la plataforma para abrir una posición.
type OpenRequest struct {
	Legs       []Leg
	Leverage   float64
	Collateral float64 // USDC
}

// TxResult es la respuesta de la plataforma a una ejecución.
type TxResult struct {
	TxHash     string
	PositionID string
}

// RemotePosition es una posición abierta según la plataforma.
type RemotePosition struct {
	ID         string
	Denoms     []string
	Collateral float64
}

// Position es una posición abierta por el bot y guardada en el state.
type Position struct {
	ID          string             `json:"id"`
	Strategy    string             `json:"strategy"`
	Legs        []Leg              `json:"legs"`
	Leverage    float64            `json:"leverage"`
	Collateral  float64            `json:"collateral"`
	EntryPrices map[string]float64 `json:"entryPrices"`
	OpenedAt    time.Time          `json:"openedAt"`
	TxHash      string             `json:"txHash,omitempty"`
	Reason      string             `json:"reason,omitempty"`
}

// Holds devuelve true si la posición incluye el denom.
func (p Position) Holds(denom string) bool {
	for _, l := range p.Legs {
		if l.Denom == denom {
			return true
		}
	}
	return false
}

// Denoms devuelve los denoms de la posición.
func (p Position) Denoms() []string {
	out := make([]string, len(p.Legs))
	for i, l := range p.Legs {
		out[i] = l.Denom
	}
	return out
}

// Age devuelve el tiempo que lleva abierta la posición.
func (p Position) Age(now time.Time) time.Duration {
	if p.OpenedAt.IsZero() {
		return 0
	}
	return now.Sub(p.OpenedAt)
}

// PnLPct calcula el PnL sobre el colateral, en fracción, con el apalancamiento aplicado.
//
//	pnl = leverage × Σ wᵢ × dirᵢ × (pᵢ - eᵢ) / eᵢ / Σ wᵢ
//
// Los activos sin precio de entrada o sin precio actual se ignoran. ok es false
// si ningún activo tiene datos suficientes.
func (p Position) PnLPct(prices map[string]float64) (pnl float64, ok bool) {
	var sum, weights float64
	for _, l := range p.Legs {
		entry := p.EntryPrices[l.Denom]
		cur := prices[l.Denom]
		if entry <= 0 || cur <= 0 {
			continue
		}
		w := l.weight()
		sum += w * l.Direction.Sign() * (cur - entry) / entry
		weights += w
	}
	if weights == 0 {
		return 0, false
	}
	lev := p.Leverage
	if lev <= 0 {
		lev = 1
	}
	return lev * sum / weights, true
}
