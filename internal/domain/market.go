package domain

import (
	"sort"
	"strings"
	"time"
)

// Market es un mercado perpetuo habilitado en la plataforma.
type Market struct {
	Denom   string // identificador del contrato, p.ej. "perps/ubtc"
	Display string // nombre legible, p.ej. "BTC"
}

// Label devuelve el nombre legible, o el ticker derivado del denom si no hay display.
func (m Market) Label() string {
	if m.Display != "" {
		return m.Display
	}
	return Ticker(m.Denom)
}

// Ticker deriva el ticker de un denom: "perps/ubtc" → "BTC".
func Ticker(denom string) string {
	s := denom
	if i := strings.LastIndexByte(s, '/'); i >= 0 {
		s = s[i+1:]
	}
	if len(s) > 1 && s[0] == 'u' {
		s = s[1:]
	}
	return strings.ToUpper(s)
}

// Funding contiene el funding rate y el open interest de un mercado.
type Funding struct {
	Rate    float64 // anualizado, en fracción (0.12 = 12%)
	LongOI  float64 // open interest long en USDC
	ShortOI float64 // open interest short en USDC
}

// TotalOI devuelve el open interest agregado de ambos lados.
func (f Funding) TotalOI() float64 {
	return f.LongOI + f.ShortOI
}

// Imbalance devuelve (long - short) / (long + short), entre -1 y 1.
// Positivo = los longs dominan. Devuelve 0 si no hay open interest.
func (f Funding) Imbalance() float64 {
	total := f.TotalOI()
	if total <= 0 {
		return 0
	}
	return (f.LongOI - f.ShortOI) / total
}

// Snapshot es la foto del mercado obtenida al principio de cada run.
type Snapshot struct {
	Markets     []Market
	Prices      map[string]float64
	Funding     map[string]Funding
	MaxLeverage map[string]float64
	Balance     float64
	FetchedAt   time.Time
}

// Price devuelve el precio de un denom y si está disponible (> 0).
func (s Snapshot) Price(denom string) (float64, bool) {
	p, ok := s.Prices[denom]
	return p, ok && p > 0
}

// LeverageCap devuelve el apalancamiento máximo del mercado, o 0 si no se conoce.
func (s Snapshot) LeverageCap(denom string) float64 {
	return s.MaxLeverage[denom]
}

// Denoms devuelve los denoms de los mercados habilitados, ordenados.
func (s Snapshot) Denoms() []string {
	out := make([]string, 0, len(s.Markets))
	for _, m := range s.Markets {
		out = append(out, m.Denom)
	}
	sort.Strings(out)
	return out
}

// FilterMarkets deja solo los mercados cuyo denom o display está en allowed.
// Si allowed está vacío no filtra nada.
func FilterMarkets(markets []Market, allowed []string) []Market {
	if len(allowed) == 0 {
		return markets
	}
	set := make(map[string]bool, len(allowed))
	for _, a := range allowed {
		set[a] = true
	}
	out := make([]Market, 0, len(markets))
	for _, m := range markets {
		if set[m.Denom] || set[m.Display] {
			out = append(out, m)
		}
	}
	return out
}
