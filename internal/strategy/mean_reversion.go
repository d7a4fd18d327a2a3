package strategy

import (
	"fmt"

	"github.com/alejandrodnm/perpbot/internal/domain"
)

const meanReversionName = "mean_reversion"

// MeanReversion apuesta a que el precio vuelve a su media: cuando se aleja
// más de entry_z desviaciones de la SMA abre en contra del movimiento.
type MeanReversion struct {
	window int
	entryZ float64
	exitZ  float64
}

// NewMeanReversion crea la estrategia. Parámetros: window, entry_z, exit_z.
func NewMeanReversion(p Params) Strategy {
	return &MeanReversion{
		window: p.Int("window", 20),
		entryZ: p.Positive("entry_z", 2.0),
		exitZ:  p.Get("exit_z", 0.5),
	}
}

func (s *MeanReversion) Name() string { return meanReversionName }

func (s *MeanReversion) Description() string {
	return "fade prices that stretch too far from their moving average"
}

// Evaluate implementa Strategy.
func (s *MeanReversion) Evaluate(in Input) []domain.Signal {
	var out []domain.Signal
	for _, d := range pricedDenoms(in) {
		prices := in.State.Prices(d)
		if len(prices) < s.window {
			continue
		}
		z := domain.ZScore(prices, s.window)
		if abs(z) < s.entryZ {
			continue
		}
		out = append(out, domain.NewSignal(meanReversionName, d, domain.DirectionOf(-z), abs(z)/s.entryZ,
			fmt.Sprintf("z=%.2f vs SMA%d", z, s.window)))
	}
	return out
}

// ShouldExit cierra cuando el precio vuelve cerca de la media.
func (s *MeanReversion) ShouldExit(pos domain.Position, in Input) (bool, string) {
	return exitOnAnyLeg(pos, func(l domain.Leg) (bool, string) {
		prices := in.State.Prices(l.Denom)
		if len(prices) < s.window {
			return false, ""
		}
		z := domain.ZScore(prices, s.window)
		if abs(z) <= s.exitZ {
			return true, fmt.Sprintf("reverted to mean (z=%.2f)", z)
		}
		return false, ""
	})
}
