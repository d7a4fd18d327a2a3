package strategy

import (
	"fmt"

	"github.com/alejandrodnm/perpbot/internal/domain"
)

const oiImbalanceName = "oi_imbalance"

// OIImbalance es contrarian respecto al open interest: si un lado está muy
// cargado abre del lado contrario.
type OIImbalance struct {
	threshold     float64
	exitThreshold float64
	minOI         float64
}

// NewOIImbalance crea la estrategia. Parámetros: threshold, exit_threshold, min_oi.
func NewOIImbalance(p Params) Strategy {
	return &OIImbalance{
		threshold:     p.Positive("threshold", 0.30),
		exitThreshold: p.Get("exit_threshold", 0.10),
		minOI:         p.Get("min_oi", 10_000),
	}
}

func (s *OIImbalance) Name() string { return oiImbalanceName }

func (s *OIImbalance) Description() string {
	return "trade against the crowded side of open interest"
}

// Evaluate implementa Strategy.
func (s *OIImbalance) Evaluate(in Input) []domain.Signal {
	var out []domain.Signal
	for _, d := range pricedDenoms(in) {
		f, ok := in.Snapshot.Funding[d]
		if !ok || f.TotalOI() < s.minOI {
			continue
		}
		imb := f.Imbalance()
		if abs(imb) < s.threshold {
			continue
		}
		out = append(out, domain.NewSignal(oiImbalanceName, d, domain.DirectionOf(-imb), abs(imb)/s.threshold,
			fmt.Sprintf("OI imbalance %+.0f%% (long $%.0f / short $%.0f)", imb*100, f.LongOI, f.ShortOI)))
	}
	return out
}

// ShouldExit cierra cuando el lado que estaba cargado deja de estarlo.
func (s *OIImbalance) ShouldExit(pos domain.Position, in Input) (bool, string) {
	return exitOnAnyLeg(pos, func(l domain.Leg) (bool, string) {
		f, ok := in.Snapshot.Funding[l.Denom]
		if !ok {
			return false, ""
		}
		crowding := -f.Imbalance() * l.Direction.Sign()
		if crowding < s.exitThreshold {
			return true, fmt.Sprintf("OI rebalanced (%+.0f%%)", f.Imbalance()*100)
		}
		return false, ""
	})
}
