package domain

import "time"

// PricePoint es una observación de precio guardada en el histórico.
type PricePoint struct {
	Price float64   `json:"price"`
	At    time.Time `json:"at"`
}

// FundingPoint es una observación de funding guardada en el histórico.
type FundingPoint struct {
	Rate    float64   `json:"rate"`
	LongOI  float64   `json:"longOI"`
	ShortOI float64   `json:"shortOI"`
	At      time.Time `json:"at"`
}

// State es el documento persistido por estrategia entre runs.
type State struct {
	Positions      []Position                `json:"positions"`
	PriceHistory   map[string][]PricePoint   `json:"priceHistory"`
	FundingHistory map[string][]FundingPoint `json:"fundingHistory"`
	Blacklist      map[string]time.Time      `json:"assetBlacklist"` // denom → fin del cooldown
	LastRun        time.Time                 `json:"lastRun"`
}

// NewState devuelve un state vacío listo para usar.
func NewState() *State {
	s := &State{}
	s.Normalize()
	return s
}

// Normalize inicializa los campos nil de un documento cargado desde disco.
func (s *State) Normalize() {
	if s.Positions == nil {
		s.Positions = []Position{}
	}
	if s.PriceHistory == nil {
		s.PriceHistory = make(map[string][]PricePoint)
	}
	if s.FundingHistory == nil {
		s.FundingHistory = make(map[string][]FundingPoint)
	}
	if s.Blacklist == nil {
		s.Blacklist = make(map[string]time.Time)
	}
}

// RecordPrices añade un punto por denom y recorta cada serie a max puntos.
// Los precios <= 0 se descartan.
func (s *State) RecordPrices(prices map[string]float64, at time.Time, max int) {
	for denom, p := range prices {
		if p <= 0 {
			continue
		}
		s.PriceHistory[denom] = capTail(append(s.PriceHistory[denom], PricePoint{Price: p, At: at}), max)
	}
}

// RecordFunding añade un punto de funding por denom y recorta a max puntos.
func (s *State) RecordFunding(funding map[string]Funding, at time.Time, max int) {
	for denom, f := range funding {
		pt := FundingPoint{Rate: f.Rate, LongOI: f.LongOI, ShortOI: f.ShortOI, At: at}
		s.FundingHistory[denom] = capTail(append(s.FundingHistory[denom], pt), max)
	}
}

// Prices devuelve la serie de precios de un denom, del más antiguo al más reciente.
func (s *State) Prices(denom string) []float64 {
	pts := s.PriceHistory[denom]
	out := make([]float64, len(pts))
	for i, p := range pts {
		out[i] = p.Price
	}
	return out
}

// FundingRates devuelve la serie de funding rates de un denom.
func (s *State) FundingRates(denom string) []float64 {
	pts := s.FundingHistory[denom]
	out := make([]float64, len(pts))
	for i, p := range pts {
		out[i] = p.Rate
	}
	return out
}

// BlacklistDenom pone un denom en cooldown hasta until. Si ya tenía un
// cooldown más largo se conserva.
func (s *State) BlacklistDenom(denom string, until time.Time) {
	if cur, ok := s.Blacklist[denom]; ok && cur.After(until) {
		return
	}
	s.Blacklist[denom] = until
}

// IsBlacklisted devuelve true si el denom sigue en cooldown en now.
func (s *State) IsBlacklisted(denom string, now time.Time) bool {
	until, ok := s.Blacklist[denom]
	return ok && now.Before(until)
}

// PruneBlacklist elimina los cooldowns vencidos y devuelve cuántos quitó.
func (s *State) PruneBlacklist(now time.Time) int {
	n := 0
	for denom, until := range s.Blacklist {
		if !now.Before(until) {
			delete(s.Blacklist, denom)
			n++
		}
	}
	return n
}

// AddPosition registra una posición abierta.
func (s *State) AddPosition(p Position) {
	s.Positions = append(s.Positions, p)
}

// RemovePosition elimina la posición con el ID dado. Devuelve false si no existía.
func (s *State) RemovePosition(id string) bool {
	for i, p := range s.Positions {
		if p.ID == id {
			s.Positions = append(s.Positions[:i], s.Positions[i+1:]...)
			return true
		}
	}
	return false
}

// HasDenom devuelve true si alguna posición abierta incluye el denom.
func (s *State) HasDenom(denom string) bool {
	for _, p := range s.Positions {
		if p.Holds(denom) {
			return true
		}
	}
	return false
}

func capTail[T any](xs []T, max int) []T {
	if max <= 0 || len(xs) <= max {
		return xs
	}
	return append([]T(nil), xs[len(xs)-max:]...)
}
