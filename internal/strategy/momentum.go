package strategy

import (
	"fmt"

	"github.com/alejandrodnm/perpbot/internal/domain"
)

const momentumName = "momentum"

// Momentum sigue movimientos de precio fuertes: si el precio cambió más de
// threshold en los últimos lookback puntos, abre en la dirección del movimiento.
type Momentum struct {
	lookback      int
	threshold     float64
	exitThreshold float64
}

// NewMomentum crea la estrategia. Parámetros: lookback, threshold, exit_threshold.
func NewMomentum(p Params) Strategy {
	return &Momentum{
		lookback:      p.Int("lookback", 5),
		threshold:     p.Positive("threshold", 0.02),
		exitThreshold: p.Get("exit_threshold", 0.01),
	}
}

func (s *Momentum) Name() string { return momentumName }

func (s *Momentum) Description() string {
	return "follow price moves larger than a threshold over a lookback window"
}

// Evaluate implementa Strategy.
func (s *Momentum) Evaluate(in Input) []domain.Signal {
	var out []domain.Signal
	for _, d := range pricedDenoms(in) {
		prices := in.State.Prices(d)
		if len(prices) <= s.lookback {
			continue
		}
		ch := domain.PctChange(prices, s.lookback)
		if abs(ch) < s.threshold {
			continue
		}
		out = append(out, domain.NewSignal(momentumName, d, domain.DirectionOf(ch), abs(ch)/s.threshold,
			fmt.Sprintf("price %+.2f%% over %d points", ch*100, s.lookback)))
	}
	return out
}

// ShouldExit cierra cuando el movimiento se da la vuelta más allá de exit_threshold.
func (s *Momentum) ShouldExit(pos domain.Position, in Input) (bool, string) {
	return exitOnAnyLeg(pos, func(l domain.Leg) (bool, string) {
		prices := in.State.Prices(l.Denom)
		if len(prices) <= s.lookback {
			return false, ""
		}
		ch := domain.PctChange(prices, s.lookback) * l.Direction.Sign()
		if ch <= -s.exitThreshold {
			return true, fmt.Sprintf("momentum reversed (%+.2f%%)", ch*100)
		}
		return false, ""
	})
}
