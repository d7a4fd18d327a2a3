package strategy_test

import (
	"testing"
	"time"

	"github.com/alejandrodnm/perpbot/internal/domain"
	"github.com/alejandrodnm/perpbot/internal/strategy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	btc = "perps/ubtc"
	eth = "perps/ueth"
	sol = "perps/usol"
)

// makeInput construye una foto con las series de precios dadas; el último
// precio de cada serie es el precio actual.
func makeInput(series map[string][]float64, funding map[string]domain.Funding) strategy.Input {
	st := domain.NewState()
	snap := domain.Snapshot{
		Prices:  map[string]float64{},
		Funding: funding,
	}
	if snap.Funding == nil {
		snap.Funding = map[string]domain.Funding{}
	}
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	denoms := map[string]bool{}
	for d := range series {
		denoms[d] = true
	}
	for d := range snap.Funding {
		denoms[d] = true
	}
	for d := range denoms {
		snap.Markets = append(snap.Markets, domain.Market{Denom: d})
		for i, p := range series[d] {
			st.RecordPrices(map[string]float64{d: p}, base.Add(time.Duration(i)*time.Minute), 0)
			snap.Prices[d] = p
		}
		if _, ok := snap.Prices[d]; !ok {
			snap.Prices[d] = 100
		}
	}
	return strategy.Input{Snapshot: snap, State: st}
}

func position(denom string, dir domain.Direction) domain.Position {
	return domain.Position{
		ID:          "p1",
		Legs:        []domain.Leg{{Denom: denom, Direction: dir, Weight: 1}},
		Leverage:    2,
		EntryPrices: map[string]float64{denom: 100},
	}
}

func TestRegistry_DefaultHasAllStrategies(t *testing.T) {
	r := strategy.Default()
	names := r.Names()
	assert.Equal(t, []string{
		"basket", "composite", "funding_harvest", "funding_zscore", "mean_reversion",
		"momentum", "oi_imbalance", "sma_crossover", "volatility_breakout",
	}, names)

	for _, n := range names {
		s, err := r.Build(n, nil)
		require.NoError(t, err)
		assert.Equal(t, n, s.Name())
		assert.NotEmpty(t, s.Description())
	}
}

func TestRegistry_UnknownStrategy(t *testing.T) {
	_, err := strategy.Default().Build("nope", nil)
	assert.ErrorIs(t, err, domain.ErrUnknownStrategy)
}

func TestParams(t *testing.T) {
	p := strategy.Params{"lookback": 7.9, "threshold": 0.05}
	assert.Equal(t, 7, p.Int("lookback", 1))
	assert.Equal(t, 3, p.Int("missing", 3))
	assert.InDelta(t, 0.05, p.Get("threshold", 0.1), 1e-9)
	assert.InDelta(t, 0.1, p.Get("missing", 0.1), 1e-9)
}

func TestParams_Positive(t *testing.T) {
	p := strategy.Params{"zero": 0, "neg": -1, "ok": 0.3}
	assert.InDelta(t, 0.3, p.Positive("ok", 1), 1e-9)
	assert.InDelta(t, 1.0, p.Positive("zero", 1), 1e-9)
	assert.InDelta(t, 1.0, p.Positive("neg", 1), 1e-9)
	assert.InDelta(t, 1.0, p.Positive("missing", 1), 1e-9)
}

func TestStrategies_ZeroThresholdsOnFlatPrices(t *testing.T) {
	flat := make([]float64, 30)
	for i := range flat {
		flat[i] = 100
	}
	in := makeInput(map[string][]float64{btc: flat}, map[string]domain.Funding{
		btc: {Rate: 0, LongOI: 10_000, ShortOI: 10_000},
	})
	zero := strategy.Params{
		"threshold": 0, "min_rate": 0, "entry_z": 0, "ratio": 0, "min_change": -0.5,
	}

	for _, n := range strategy.Default().Names() {
		s, err := strategy.Default().Build(n, zero)
		require.NoError(t, err)
		assert.Empty(t, s.Evaluate(in), n)
	}
}

func TestMomentum_ZeroThresholdUsesDefault(t *testing.T) {
	s, _ := strategy.Default().Build("momentum", strategy.Params{"lookback": 3, "threshold": 0})
	in := makeInput(map[string][]float64{btc: {100, 101, 102, 105}}, nil)

	sigs := s.Evaluate(in)
	require.Len(t, sigs, 1)
	assert.InDelta(t, 2.5, sigs[0].Score, 0.001)
}

func TestBasket_NegativeMinChangeKeepsScorePositive(t *testing.T) {
	s, _ := strategy.Default().Build("basket", strategy.Params{"size": 2, "lookback": 1, "min_change": -0.1})
	in := makeInput(map[string][]float64{btc: {100, 98}, eth: {100, 97}}, nil)
	assert.Empty(t, s.Evaluate(in))
}

func TestStrategies_NoSignalWithoutHistory(t *testing.T) {
	in := makeInput(map[string][]float64{btc: {100}}, nil)
	for _, n := range []string{"momentum", "mean_reversion", "funding_zscore", "volatility_breakout", "sma_crossover", "basket"} {
		s, err := strategy.Default().Build(n, nil)
		require.NoError(t, err)
		assert.Empty(t, s.Evaluate(in), n)
	}
}

func TestMomentum(t *testing.T) {
	s, _ := strategy.Default().Build("momentum", strategy.Params{"lookback": 3, "threshold": 0.02})
	in := makeInput(map[string][]float64{
		btc: {100, 101, 102, 105},    // +5%
		eth: {100, 100, 99.5, 100.5}, // +0.5%
		sol: {100, 99, 97, 95},       // -5%
	}, nil)

	sigs := s.Evaluate(in)
	require.Len(t, sigs, 2)
	byDenom := map[string]domain.Signal{}
	for _, sg := range sigs {
		byDenom[sg.Legs[0].Denom] = sg
	}
	assert.Equal(t, domain.Long, byDenom[btc].Legs[0].Direction)
	assert.InDelta(t, 2.5, byDenom[btc].Score, 0.001)
	assert.Equal(t, domain.Short, byDenom[sol].Legs[0].Direction)
	assert.Equal(t, "momentum", byDenom[sol].Strategy)
}

func TestMomentum_ExitOnReversal(t *testing.T) {
	s, _ := strategy.Default().Build("momentum", strategy.Params{"lookback": 2, "exit_threshold": 0.01})
	in := makeInput(map[string][]float64{btc: {105, 104, 102}}, nil)

	exit, why := s.ShouldExit(position(btc, domain.Long), in)
	assert.True(t, exit)
	assert.Contains(t, why, "reversed")

	exit, _ = s.ShouldExit(position(btc, domain.Short), in)
	assert.False(t, exit)
}

func TestMeanReversion(t *testing.T) {
	s, _ := strategy.Default().Build("mean_reversion", strategy.Params{"window": 5, "entry_z": 1.5, "exit_z": 0.5})
	in := makeInput(map[string][]float64{
		btc: {100, 100, 100, 100, 110}, // z = 2 → short
		eth: {100, 101, 100, 101, 100},
	}, nil)

	sigs := s.Evaluate(in)
	require.Len(t, sigs, 1)
	assert.Equal(t, btc, sigs[0].Legs[0].Denom)
	assert.Equal(t, domain.Short, sigs[0].Legs[0].Direction)

	calm := makeInput(map[string][]float64{btc: {100, 101, 100, 101, 100.5}}, nil)
	exit, _ := s.ShouldExit(position(btc, domain.Short), calm)
	assert.True(t, exit)
}

func TestFundingHarvest(t *testing.T) {
	s, _ := strategy.Default().Build("funding_harvest", strategy.Params{"min_rate": 0.10, "exit_rate": 0.02})
	in := makeInput(nil, map[string]domain.Funding{
		btc: {Rate: 0.25, LongOI: 1000, ShortOI: 500},
		eth: {Rate: -0.15},
		sol: {Rate: 0.05},
	})

	sigs := s.Evaluate(in)
	domain.SortSignals(sigs)
	require.Len(t, sigs, 2)
	assert.Equal(t, btc, sigs[0].Legs[0].Denom)
	assert.Equal(t, domain.Short, sigs[0].Legs[0].Direction, "funding positivo: los shorts cobran")
	assert.InDelta(t, 2.5, sigs[0].Score, 0.001)
	assert.Equal(t, domain.Long, sigs[1].Legs[0].Direction)
}

func TestFundingHarvest_ExitWhenFundingFlips(t *testing.T) {
	s, _ := strategy.Default().Build("funding_harvest", strategy.Params{"exit_rate": 0.02})

	flipped := makeInput(nil, map[string]domain.Funding{btc: {Rate: -0.01}})
	exit, _ := s.ShouldExit(position(btc, domain.Short), flipped)
	assert.True(t, exit)

	still := makeInput(nil, map[string]domain.Funding{btc: {Rate: 0.08}})
	exit, _ = s.ShouldExit(position(btc, domain.Short), still)
	assert.False(t, exit)
}

func TestFundingZScore(t *testing.T) {
	s, _ := strategy.Default().Build("funding_zscore", strategy.Params{"window": 5, "entry_z": 1.5})
	in := makeInput(map[string][]float64{btc: {100}}, nil)
	base := time.Now()
	for i, r := range []float64{0.01, 0.01, 0.01, 0.01, 0.30} {
		in.State.RecordFunding(map[string]domain.Funding{btc: {Rate: r}}, base.Add(time.Duration(i)*time.Hour), 0)
	}

	sigs := s.Evaluate(in)
	require.Len(t, sigs, 1)
	assert.Equal(t, domain.Short, sigs[0].Legs[0].Direction)
	assert.InDelta(t, 2.0/1.5, sigs[0].Score, 0.001)
}

func TestOIImbalance(t *testing.T) {
	s, _ := strategy.Default().Build("oi_imbalance", strategy.Params{"threshold": 0.3, "min_oi": 1000})
	in := makeInput(nil, map[string]domain.Funding{
		btc: {LongOI: 8000, ShortOI: 2000}, // +60% → short
		eth: {LongOI: 100, ShortOI: 800},   // OI insuficiente
		sol: {LongOI: 5000, ShortOI: 4500},
	})

	sigs := s.Evaluate(in)
	require.Len(t, sigs, 1)
	assert.Equal(t, btc, sigs[0].Legs[0].Denom)
	assert.Equal(t, domain.Short, sigs[0].Legs[0].Direction)
	assert.InDelta(t, 2.0, sigs[0].Score, 0.001)

	balanced := makeInput(nil, map[string]domain.Funding{btc: {LongOI: 5000, ShortOI: 5000}})
	exit, _ := s.ShouldExit(position(btc, domain.Short), balanced)
	assert.True(t, exit)
}

func TestVolatilityBreakout(t *testing.T) {
	s, _ := strategy.Default().Build("volatility_breakout", strategy.Params{"short": 3, "long": 10, "ratio": 1.5, "min_move": 0.01})
	calm := []float64{100, 100.1, 100, 100.1, 100, 100.1, 100, 100.1, 100}
	in := makeInput(map[string][]float64{
		btc: append(append([]float64{}, calm[:8]...), 104, 101, 106),
		eth: append(append([]float64{}, calm...), 100.1, 100),
	}, nil)

	sigs := s.Evaluate(in)
	require.Len(t, sigs, 1)
	assert.Equal(t, btc, sigs[0].Legs[0].Denom)
	assert.Equal(t, domain.Long, sigs[0].Legs[0].Direction)
	assert.Greater(t, sigs[0].Score, 1.0)
}

func TestSMACrossover(t *testing.T) {
	s, _ := strategy.Default().Build("sma_crossover", strategy.Params{"fast": 2, "slow": 4})
	in := makeInput(map[string][]float64{
		btc: {100, 100, 100, 99, 98, 103}, // la rápida cruza hacia arriba en el último punto
		eth: {100, 101, 102, 103, 104, 105},
	}, nil)

	sigs := s.Evaluate(in)
	require.Len(t, sigs, 1)
	assert.Equal(t, btc, sigs[0].Legs[0].Denom)
	assert.Equal(t, domain.Long, sigs[0].Legs[0].Direction)

	exit, _ := s.ShouldExit(position(eth, domain.Short), in)
	assert.True(t, exit)
	exit, _ = s.ShouldExit(position(eth, domain.Long), in)
	assert.False(t, exit)
}

func TestBasket(t *testing.T) {
	s, _ := strategy.Default().Build("basket", strategy.Params{"size": 2, "lookback": 1})
	in := makeInput(map[string][]float64{
		btc: {100, 103},
		eth: {100, 105},
		sol: {100, 101},
	}, nil)

	sigs := s.Evaluate(in)
	require.Len(t, sigs, 1)
	assert.ElementsMatch(t, []string{btc, eth}, sigs[0].Denoms())
	for _, l := range sigs[0].Legs {
		assert.Equal(t, domain.Long, l.Direction)
	}
	assert.InDelta(t, 4.0, sigs[0].Score, 0.001)

	down := makeInput(map[string][]float64{btc: {100, 98}, eth: {100, 101}}, nil)
	pos := domain.Position{Legs: sigs[0].Legs}
	exit, _ := s.ShouldExit(pos, down)
	assert.True(t, exit)
}

func TestBasket_NotEnoughCandidates(t *testing.T) {
	s, _ := strategy.Default().Build("basket", strategy.Params{"size": 3, "lookback": 1})
	in := makeInput(map[string][]float64{btc: {100, 103}, eth: {100, 99}}, nil)
	assert.Empty(t, s.Evaluate(in))
}

func TestComposite(t *testing.T) {
	s, _ := strategy.Default().Build("composite", strategy.Params{"threshold": 1.0, "lookback": 1})
	in := makeInput(map[string][]float64{
		btc: {100, 96}, // momentum -2 (escala 0.02)
		eth: {100, 100},
	}, map[string]domain.Funding{
		btc: {Rate: 0.2, LongOI: 700, ShortOI: 300}, // funding -2, oi -1.33
		eth: {Rate: 0.01, LongOI: 500, ShortOI: 500},
	})

	sigs := s.Evaluate(in)
	require.Len(t, sigs, 1)
	assert.Equal(t, btc, sigs[0].Legs[0].Denom)
	assert.Equal(t, domain.Short, sigs[0].Legs[0].Direction)

	exit, _ := s.ShouldExit(position(btc, domain.Long), in)
	assert.True(t, exit)
	exit, _ = s.ShouldExit(position(btc, domain.Short), in)
	assert.False(t, exit)
}
