package storage_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/perpbot/internal/adapters/storage"
	"github.com/alejandrodnm/perpbot/internal/domain"
)

func newJSONStore(t *testing.T) *storage.JSONStore {
	t.Helper()
	s, err := storage.NewJSONStore(filepath.Join(t.TempDir(), "cache"), time.Hour)
	require.NoError(t, err)
	return s
}

func TestJSONStore(t *testing.T) {
	runStoreSuite(t, func(t *testing.T) store { return newJSONStore(t) })
}

func TestJSONStore_FileLayout(t *testing.T) {
	s := newJSONStore(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, "momentum", sampleState()))
	require.NoError(t, s.Append(ctx, sampleTrade("a", domain.ActionOpen, t0)))

	data, err := os.ReadFile(s.StatePath("momentum"))
	require.NoError(t, err)
	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &raw))
	for _, key := range []string{"positions", "priceHistory", "fundingHistory", "assetBlacklist", "lastRun"} {
		assert.Contains(t, raw, key)
	}

	data, err = os.ReadFile(s.HistoryPath("momentum"))
	require.NoError(t, err)
	var history []map[string]any
	require.NoError(t, json.Unmarshal(data, &history), "history is a JSON array")
	require.Len(t, history, 1)
	assert.Equal(t, "open", history[0]["action"])

	// sin temporales huérfanos
	entries, err := os.ReadDir(filepath.Dir(s.StatePath("momentum")))
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestJSONStore_CorruptStateIsAnError(t *testing.T) {
	s := newJSONStore(t)
	require.NoError(t, os.WriteFile(s.StatePath("momentum"), []byte("{not json"), 0o644))

	_, err := s.Load(context.Background(), "momentum")
	assert.Error(t, err)
}

func TestJSONStore_BreaksStaleLock(t *testing.T) {
	dir := t.TempDir()
	s, err := storage.NewJSONStore(dir, time.Minute)
	require.NoError(t, err)

	lock := filepath.Join(dir, "momentum.lock")
	require.NoError(t, os.WriteFile(lock, []byte("1 old\n"), 0o644))
	old := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(lock, old, old))

	unlock, err := s.Lock("momentum")
	require.NoError(t, err)
	require.NoError(t, unlock())
	_, err = os.Stat(lock)
	assert.True(t, os.IsNotExist(err))
}

func TestJSONStore_FreshLockIsRespected(t *testing.T) {
	dir := t.TempDir()
	s, err := storage.NewJSONStore(dir, time.Hour)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "momentum.lock"), []byte("1\n"), 0o644))

	_, err = s.Lock("momentum")
	assert.ErrorIs(t, err, domain.ErrLocked)
}

func TestJSONStore_RejectsPathNames(t *testing.T) {
	s := newJSONStore(t)
	_, err := s.Load(context.Background(), "../escape")
	assert.Error(t, err)
}
