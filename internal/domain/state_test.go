package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestState_RecordPricesCapsHistory(t *testing.T) {
	s := NewState()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 10; i++ {
		s.RecordPrices(map[string]float64{"perps/ubtc": float64(100 + i), "perps/ueth": 0}, base.Add(time.Duration(i)*time.Minute), 4)
	}

	assert.Equal(t, []float64{106, 107, 108, 109}, s.Prices("perps/ubtc"))
	assert.Empty(t, s.Prices("perps/ueth"), "precios <= 0 no se guardan")
}

func TestState_Blacklist(t *testing.T) {
	s := NewState()
	now := time.Now()

	s.BlacklistDenom("perps/ubtc", now.Add(time.Hour))
	assert.True(t, s.IsBlacklisted("perps/ubtc", now))
	assert.False(t, s.IsBlacklisted("perps/ubtc", now.Add(2*time.Hour)))
	assert.False(t, s.IsBlacklisted("perps/ueth", now))

	// un cooldown más corto no pisa uno más largo
	s.BlacklistDenom("perps/ubtc", now.Add(time.Minute))
	assert.True(t, s.IsBlacklisted("perps/ubtc", now.Add(30*time.Minute)))

	assert.Equal(t, 1, s.PruneBlacklist(now.Add(2*time.Hour)))
	assert.Empty(t, s.Blacklist)
}

func TestState_Positions(t *testing.T) {
	s := NewState()
	s.AddPosition(Position{ID: "1", Legs: []Leg{{Denom: "perps/ubtc", Direction: Long}}})
	s.AddPosition(Position{ID: "2", Legs: []Leg{{Denom: "perps/ueth", Direction: Short}}})

	assert.True(t, s.HasDenom("perps/ueth"))
	assert.True(t, s.RemovePosition("2"))
	assert.False(t, s.RemovePosition("2"))
	assert.False(t, s.HasDenom("perps/ueth"))
	assert.Len(t, s.Positions, 1)
}

func TestState_NormalizeAfterDecode(t *testing.T) {
	var s State
	require.NoError(t, json.Unmarshal([]byte(`{"lastRun":"2026-01-01T00:00:00Z"}`), &s))
	s.Normalize()

	assert.NotNil(t, s.Positions)
	assert.NotNil(t, s.PriceHistory)
	assert.NotNil(t, s.FundingHistory)
	assert.NotNil(t, s.Blacklist)
}

func TestState_JSONRoundTrip(t *testing.T) {
	s := NewState()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.RecordPrices(map[string]float64{"perps/ubtc": 65000}, at, 10)
	s.RecordFunding(map[string]Funding{"perps/ubtc": {Rate: 0.1, LongOI: 10, ShortOI: 5}}, at, 10)
	s.BlacklistDenom("perps/usol", at.Add(time.Hour))
	s.AddPosition(Position{
		ID:          "42",
		Strategy:    "momentum",
		Legs:        []Leg{{Denom: "perps/ubtc", Direction: Long, Weight: 1}},
		Leverage:    3,
		Collateral:  10,
		EntryPrices: map[string]float64{"perps/ubtc": 65000},
		OpenedAt:    at,
	})
	s.LastRun = at

	data, err := json.Marshal(s)
	require.NoError(t, err)

	var back State
	require.NoError(t, json.Unmarshal(data, &back))
	back.Normalize()
	assert.Equal(t, *s, back)
}

func TestIsSequenceMismatch(t *testing.T) {
	assert.True(t, IsSequenceMismatch(ErrSequenceMismatch))
	assert.True(t, IsSequenceMismatch(fmt.Errorf("open: %w", ErrSequenceMismatch)))
	assert.True(t, IsSequenceMismatch(errors.New("rpc error: Account Sequence Mismatch, expected 12, got 11")))
	assert.False(t, IsSequenceMismatch(errors.New("insufficient funds")))
	assert.False(t, IsSequenceMismatch(nil))
}
