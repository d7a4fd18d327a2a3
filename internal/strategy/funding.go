package strategy

import (
	"fmt"

	"github.com/alejandrodnm/perpbot/internal/domain"
)

const (
	fundingHarvestName = "funding_harvest"
	fundingZScoreName  = "funding_zscore"
)

// FundingHarvest se pone del lado que cobra funding cuando el rate es alto.
// Funding positivo = los longs pagan a los shorts → abrir short.
type FundingHarvest struct {
	minRate  float64
	exitRate float64
	minOI    float64
}

// NewFundingHarvest crea la estrategia. Parámetros: min_rate, exit_rate, min_oi.
func NewFundingHarvest(p Params) Strategy {
	return &FundingHarvest{
		minRate:  p.Positive("min_rate", 0.10),
		exitRate: p.Get("exit_rate", 0.03),
		minOI:    p.Get("min_oi", 0),
	}
}

func (s *FundingHarvest) Name() string { return fundingHarvestName }

func (s *FundingHarvest) Description() string {
	return "take the side that receives funding when the rate is large"
}

// Evaluate implementa Strategy.
func (s *FundingHarvest) Evaluate(in Input) []domain.Signal {
	var out []domain.Signal
	for _, d := range pricedDenoms(in) {
		f, ok := in.Snapshot.Funding[d]
		if !ok || f.TotalOI() < s.minOI {
			continue
		}
		if abs(f.Rate) < s.minRate {
			continue
		}
		out = append(out, domain.NewSignal(fundingHarvestName, d, domain.DirectionOf(-f.Rate), abs(f.Rate)/s.minRate,
			fmt.Sprintf("funding %+.2f%% APR", f.Rate*100)))
	}
	return out
}

// ShouldExit cierra cuando el funding que cobramos cae por debajo de exit_rate
// (incluido el caso en que cambia de signo y empezamos a pagar).
func (s *FundingHarvest) ShouldExit(pos domain.Position, in Input) (bool, string) {
	return exitOnAnyLeg(pos, func(l domain.Leg) (bool, string) {
		f, ok := in.Snapshot.Funding[l.Denom]
		if !ok {
			return false, ""
		}
		received := -f.Rate * l.Direction.Sign()
		if received < s.exitRate {
			return true, fmt.Sprintf("funding received %+.2f%% APR below exit", received*100)
		}
		return false, ""
	})
}

// FundingZScore opera contra funding rates extremos respecto a su propio histórico.
type FundingZScore struct {
	window int
	entryZ float64
	exitZ  float64
}

// NewFundingZScore crea la estrategia. Parámetros: window, entry_z, exit_z.
func NewFundingZScore(p Params) Strategy {
	return &FundingZScore{
		window: p.Int("window", 24),
		entryZ: p.Positive("entry_z", 2.0),
		exitZ:  p.Get("exit_z", 0.5),
	}
}

func (s *FundingZScore) Name() string { return fundingZScoreName }

func (s *FundingZScore) Description() string {
	return "fade funding rates that are extreme versus their own history"
}

// Evaluate implementa Strategy.
func (s *FundingZScore) Evaluate(in Input) []domain.Signal {
	var out []domain.Signal
	for _, d := range pricedDenoms(in) {
		rates := in.State.FundingRates(d)
		if len(rates) < s.window {
			continue
		}
		z := domain.ZScore(rates, s.window)
		if abs(z) < s.entryZ {
			continue
		}
		out = append(out, domain.NewSignal(fundingZScoreName, d, domain.DirectionOf(-z), abs(z)/s.entryZ,
			fmt.Sprintf("funding z=%.2f over %d samples", z, s.window)))
	}
	return out
}

// ShouldExit cierra cuando el funding vuelve a su rango normal.
func (s *FundingZScore) ShouldExit(pos domain.Position, in Input) (bool, string) {
	return exitOnAnyLeg(pos, func(l domain.Leg) (bool, string) {
		rates := in.State.FundingRates(l.Denom)
		if len(rates) < s.window {
			return false, ""
		}
		z := domain.ZScore(rates, s.window)
		if abs(z) <= s.exitZ {
			return true, fmt.Sprintf("funding normalised (z=%.2f)", z)
		}
		return false, ""
	})
}
