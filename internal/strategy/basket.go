package strategy

import (
	"fmt"
	"sort"
	"strings"

	"github.com/alejandrodnm/perpbot/internal/domain"
)

const basketName = "basket"

// Basket abre un único long multi-activo con los size activos de mayor
// momentum, a pesos iguales.
type Basket struct {
	size      int
	lookback  int
	minChange float64
}

// NewBasket crea la estrategia. Parámetros: size, lookback, min_change.
func NewBasket(p Params) Strategy {
	size := p.Int("size", 3)
	if size < 2 {
		size = 2
	}
	// con min_change negativo la cesta podría tener score negativo
	minChange := p.Get("min_change", 0)
	if minChange < 0 {
		minChange = 0
	}
	return &Basket{
		size:      size,
		lookback:  p.Int("lookback", 5),
		minChange: minChange,
	}
}

func (s *Basket) Name() string { return basketName }

func (s *Basket) Description() string {
	return "open one equal-weight long basket of the strongest assets"
}

// Evaluate implementa Strategy. Devuelve como mucho una señal.
func (s *Basket) Evaluate(in Input) []domain.Signal {
	type ranked struct {
		denom  string
		change float64
	}
	var rs []ranked
	for _, d := range pricedDenoms(in) {
		prices := in.State.Prices(d)
		if len(prices) <= s.lookback {
			continue
		}
		ch := domain.PctChange(prices, s.lookback)
		if ch > s.minChange {
			rs = append(rs, ranked{denom: d, change: ch})
		}
	}
	if len(rs) < s.size {
		return nil
	}
	sort.SliceStable(rs, func(i, j int) bool { return rs[i].change > rs[j].change })
	rs = rs[:s.size]

	legs := make([]domain.Leg, len(rs))
	names := make([]string, len(rs))
	avg := 0.0
	for i, r := range rs {
		legs[i] = domain.Leg{Denom: r.denom, Direction: domain.Long, Weight: 1}
		names[i] = fmt.Sprintf("%s %+.2f%%", r.denom, r.change*100)
		avg += r.change
	}
	avg /= float64(len(rs))

	return []domain.Signal{{
		Strategy: basketName,
		Legs:     legs,
		Score:    avg * 100,
		Reason:   "top momentum: " + strings.Join(names, ", "),
	}}
}

// ShouldExit cierra la cesta cuando el momentum medio de sus activos es negativo.
func (s *Basket) ShouldExit(pos domain.Position, in Input) (bool, string) {
	sum, n := 0.0, 0
	for _, l := range pos.Legs {
		prices := in.State.Prices(l.Denom)
		if len(prices) <= s.lookback {
			continue
		}
		sum += domain.PctChange(prices, s.lookback) * l.Direction.Sign()
		n++
	}
	if n == 0 {
		return false, ""
	}
	if avg := sum / float64(n); avg < 0 {
		return true, fmt.Sprintf("basket momentum %+.2f%%", avg*100)
	}
	return false, ""
}
