package strategy

import (
	"fmt"

	"github.com/alejandrodnm/perpbot/internal/domain"
)

const compositeName = "composite"

// Composite combina funding, momentum y open interest en un score con signo.
// Cada componente se normaliza por su escala y se pondera:
//
//	funding  = -rate / funding_scale     (cobrar funding)
//	momentum = change / momentum_scale   (seguir el precio)
//	oi       = -imbalance / oi_scale     (contra el lado cargado)
type Composite struct {
	threshold     float64
	lookback      int
	wFunding      float64
	wMomentum     float64
	wOI           float64
	fundingScale  float64
	momentumScale float64
	oiScale       float64
}

// NewComposite crea la estrategia.
func NewComposite(p Params) Strategy {
	return &Composite{
		threshold:     p.Positive("threshold", 1.0),
		lookback:      p.Int("lookback", 5),
		wFunding:      p.Get("w_funding", 1),
		wMomentum:     p.Get("w_momentum", 1),
		wOI:           p.Get("w_oi", 1),
		fundingScale:  p.Get("funding_scale", 0.10),
		momentumScale: p.Get("momentum_scale", 0.02),
		oiScale:       p.Get("oi_scale", 0.30),
	}
}

func (s *Composite) Name() string { return compositeName }

func (s *Composite) Description() string {
	return "weighted blend of funding, momentum and open-interest scores"
}

// score devuelve el score compuesto de un denom. ok es false si no hay ningún
// componente disponible.
func (s *Composite) score(denom string, in Input) (float64, bool) {
	var sum, weights float64
	if f, ok := in.Snapshot.Funding[denom]; ok {
		if s.fundingScale > 0 {
			sum += s.wFunding * -f.Rate / s.fundingScale
			weights += s.wFunding
		}
		if s.oiScale > 0 && f.TotalOI() > 0 {
			sum += s.wOI * -f.Imbalance() / s.oiScale
			weights += s.wOI
		}
	}
	if prices := in.State.Prices(denom); len(prices) > s.lookback && s.momentumScale > 0 {
		sum += s.wMomentum * domain.PctChange(prices, s.lookback) / s.momentumScale
		weights += s.wMomentum
	}
	if weights <= 0 {
		return 0, false
	}
	return sum / weights, true
}

// Evaluate implementa Strategy.
func (s *Composite) Evaluate(in Input) []domain.Signal {
	var out []domain.Signal
	for _, d := range pricedDenoms(in) {
		sc, ok := s.score(d, in)
		if !ok || abs(sc) < s.threshold {
			continue
		}
		out = append(out, domain.NewSignal(compositeName, d, domain.DirectionOf(sc), abs(sc)/s.threshold,
			fmt.Sprintf("composite %+.2f", sc)))
	}
	return out
}

// ShouldExit cierra cuando el score compuesto cambia de signo.
func (s *Composite) ShouldExit(pos domain.Position, in Input) (bool, string) {
	return exitOnAnyLeg(pos, func(l domain.Leg) (bool, string) {
		sc, ok := s.score(l.Denom, in)
		if ok && sc*l.Direction.Sign() < 0 {
			return true, fmt.Sprintf("composite flipped (%+.2f)", sc)
		}
		return false, ""
	})
}
