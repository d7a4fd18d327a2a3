package strategy

import (
	"fmt"

	"github.com/alejandrodnm/perpbot/internal/domain"
)

const volatilityBreakoutName = "volatility_breakout"

// VolatilityBreakout entra cuando la volatilidad reciente se dispara respecto
// a la de fondo, en la dirección del movimiento reciente.
type VolatilityBreakout struct {
	short     int
	long      int
	ratio     float64
	exitRatio float64
	minMove   float64
}

// NewVolatilityBreakout crea la estrategia.
// Parámetros: short, long, ratio, exit_ratio, min_move.
func NewVolatilityBreakout(p Params) Strategy {
	return &VolatilityBreakout{
		short:     p.Int("short", 5),
		long:      p.Int("long", 20),
		ratio:     p.Positive("ratio", 1.5),
		exitRatio: p.Get("exit_ratio", 1.0),
		minMove:   p.Get("min_move", 0.005),
	}
}

func (s *VolatilityBreakout) Name() string { return volatilityBreakoutName }

func (s *VolatilityBreakout) Description() string {
	return "follow moves when short-term volatility expands versus long-term"
}

// Evaluate implementa Strategy.
func (s *VolatilityBreakout) Evaluate(in Input) []domain.Signal {
	var out []domain.Signal
	for _, d := range pricedDenoms(in) {
		prices := in.State.Prices(d)
		if len(prices) <= s.long {
			continue
		}
		vr := domain.VolatilityRatio(prices, s.short, s.long)
		move := domain.PctChange(prices, s.short)
		if vr < s.ratio || abs(move) < s.minMove {
			continue
		}
		out = append(out, domain.NewSignal(volatilityBreakoutName, d, domain.DirectionOf(move), vr/s.ratio,
			fmt.Sprintf("vol ratio %.2f, move %+.2f%%", vr, move*100)))
	}
	return out
}

// ShouldExit cierra cuando la volatilidad se calma o el movimiento se da la vuelta.
func (s *VolatilityBreakout) ShouldExit(pos domain.Position, in Input) (bool, string) {
	return exitOnAnyLeg(pos, func(l domain.Leg) (bool, string) {
		prices := in.State.Prices(l.Denom)
		if len(prices) <= s.long {
			return false, ""
		}
		if vr := domain.VolatilityRatio(prices, s.short, s.long); vr < s.exitRatio {
			return true, fmt.Sprintf("volatility contracted (ratio %.2f)", vr)
		}
		if move := domain.PctChange(prices, s.short) * l.Direction.Sign(); move <= -s.minMove {
			return true, fmt.Sprintf("breakout failed (%+.2f%%)", move*100)
		}
		return false, ""
	})
}
