package storage_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/perpbot/internal/domain"
	"github.com/alejandrodnm/perpbot/internal/ports"
)

// store es lo que implementan los dos backends.
type store interface {
	ports.StateStore
	ports.HistoryStore
	ports.Locker
}

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func sampleState() *domain.State {
	st := domain.NewState()
	st.RecordPrices(map[string]float64{"perps/ubtc": 65000, "perps/ueth": 3200}, t0, 10)
	st.RecordFunding(map[string]domain.Funding{"perps/ubtc": {Rate: 0.12, LongOI: 1000, ShortOI: 400}}, t0, 10)
	st.BlacklistDenom("perps/usol", t0.Add(time.Hour))
	st.AddPosition(domain.Position{
		ID:          "17",
		Strategy:    "momentum",
		Legs:        []domain.Leg{{Denom: "perps/ubtc", Direction: domain.Long, Weight: 1}},
		Leverage:    3,
		Collateral:  12.5,
		EntryPrices: map[string]float64{"perps/ubtc": 65000},
		OpenedAt:    t0,
		TxHash:      "ABC",
	})
	st.LastRun = t0
	return st
}

func sampleTrade(id string, action domain.TradeAction, at time.Time) domain.TradeRecord {
	return domain.TradeRecord{
		ID:         id,
		RunID:      "run-1",
		Strategy:   "momentum",
		Action:     action,
		PositionID: "17",
		Legs:       []domain.Leg{{Denom: "perps/ubtc", Direction: domain.Long, Weight: 1}},
		Leverage:   3,
		Collateral: 12.5,
		Prices:     map[string]float64{"perps/ubtc": 65000},
		Reason:     "momentum +3%",
		TxHash:     "TX" + id,
		At:         at,
	}
}

func testStateRoundTrip(t *testing.T, s store) {
	ctx := context.Background()

	empty, err := s.Load(ctx, "momentum")
	require.NoError(t, err)
	assert.Empty(t, empty.Positions)
	assert.NotNil(t, empty.PriceHistory)

	want := sampleState()
	require.NoError(t, s.Save(ctx, "momentum", want))

	got, err := s.Load(ctx, "momentum")
	require.NoError(t, err)
	assert.Equal(t, want, got)

	// otra estrategia no ve este state
	other, err := s.Load(ctx, "basket")
	require.NoError(t, err)
	assert.Empty(t, other.Positions)
}

func testStateOverwrite(t *testing.T, s store) {
	ctx := context.Background()
	st := sampleState()
	require.NoError(t, s.Save(ctx, "momentum", st))

	st.RemovePosition("17")
	require.NoError(t, s.Save(ctx, "momentum", st))

	got, err := s.Load(ctx, "momentum")
	require.NoError(t, err)
	assert.Empty(t, got.Positions)
}

func testHistoryAppendAndRecent(t *testing.T, s store) {
	ctx := context.Background()

	none, err := s.Recent(ctx, "momentum", 10)
	require.NoError(t, err)
	assert.Empty(t, none)

	require.NoError(t, s.Append(ctx, sampleTrade("a", domain.ActionOpen, t0)))
	require.NoError(t, s.Append(ctx, sampleTrade("b", domain.ActionClose, t0.Add(time.Hour))))
	require.NoError(t, s.Append(ctx, sampleTrade("c", domain.ActionOpen, t0.Add(2*time.Hour))))

	all, err := s.Recent(ctx, "momentum", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "a", all[0].ID)
	assert.Equal(t, "c", all[2].ID)
	assert.Equal(t, domain.ActionClose, all[1].Action)
	assert.True(t, all[1].At.Equal(t0.Add(time.Hour)))
	assert.Equal(t, 65000.0, all[0].Prices["perps/ubtc"])
	assert.Equal(t, domain.Long, all[0].Legs[0].Direction)

	last, err := s.Recent(ctx, "momentum", 2)
	require.NoError(t, err)
	require.Len(t, last, 2)
	assert.Equal(t, "b", last[0].ID)
	assert.Equal(t, "c", last[1].ID)

	other, err := s.Recent(ctx, "basket", 0)
	require.NoError(t, err)
	assert.Empty(t, other)
}

func testLock(t *testing.T, s store) {
	unlock, err := s.Lock("momentum")
	require.NoError(t, err)

	_, err = s.Lock("momentum")
	assert.ErrorIs(t, err, domain.ErrLocked)

	// otra estrategia tiene su propio lock
	unlockOther, err := s.Lock("basket")
	require.NoError(t, err)
	require.NoError(t, unlockOther())

	require.NoError(t, unlock())
	unlock, err = s.Lock("momentum")
	require.NoError(t, err)
	require.NoError(t, unlock())
}

func runStoreSuite(t *testing.T, newStore func(t *testing.T) store) {
	t.Run("StateRoundTrip", func(t *testing.T) { testStateRoundTrip(t, newStore(t)) })
	t.Run("StateOverwrite", func(t *testing.T) { testStateOverwrite(t, newStore(t)) })
	t.Run("HistoryAppendAndRecent", func(t *testing.T) { testHistoryAppendAndRecent(t, newStore(t)) })
	t.Run("Lock", func(t *testing.T) { testLock(t, newStore(t)) })
}
