package strategy

import (
	"fmt"

	"github.com/alejandrodnm/perpbot/internal/domain"
)

const smaCrossoverName = "sma_crossover"

// SMACrossover abre cuando la SMA rápida cruza la lenta.
type SMACrossover struct {
	fast int
	slow int
}

// NewSMACrossover crea la estrategia. Parámetros: fast, slow.
func NewSMACrossover(p Params) Strategy {
	return &SMACrossover{
		fast: p.Int("fast", 5),
		slow: p.Int("slow", 20),
	}
}

func (s *SMACrossover) Name() string { return smaCrossoverName }

func (s *SMACrossover) Description() string {
	return "follow fast/slow moving average crossovers"
}

// spread devuelve (SMA rápida - SMA lenta) / SMA lenta.
func (s *SMACrossover) spread(prices []float64) float64 {
	slow := domain.SMA(prices, s.slow)
	if slow == 0 {
		return 0
	}
	return (domain.SMA(prices, s.fast) - slow) / slow
}

// Evaluate implementa Strategy. Solo hay señal en el run en que se produce el cruce.
func (s *SMACrossover) Evaluate(in Input) []domain.Signal {
	var out []domain.Signal
	for _, d := range pricedDenoms(in) {
		prices := in.State.Prices(d)
		if len(prices) <= s.slow {
			continue
		}
		cur := s.spread(prices)
		prev := s.spread(prices[:len(prices)-1])

		crossedUp := prev <= 0 && cur > 0
		crossedDown := prev >= 0 && cur < 0
		if !crossedUp && !crossedDown {
			continue
		}
		out = append(out, domain.NewSignal(smaCrossoverName, d, domain.DirectionOf(cur), 1+abs(cur)*100,
			fmt.Sprintf("SMA%d crossed SMA%d (%+.3f%%)", s.fast, s.slow, cur*100)))
	}
	return out
}

// ShouldExit cierra cuando la SMA rápida queda del otro lado de la lenta.
func (s *SMACrossover) ShouldExit(pos domain.Position, in Input) (bool, string) {
	return exitOnAnyLeg(pos, func(l domain.Leg) (bool, string) {
		prices := in.State.Prices(l.Denom)
		if len(prices) < s.slow {
			return false, ""
		}
		if cur := s.spread(prices); cur*l.Direction.Sign() < 0 {
			return true, fmt.Sprintf("SMA%d back across SMA%d", s.fast, s.slow)
		}
		return false, ""
	})
}
