package persistence

import (
	"testing"

	"astock-strategy-bot-go/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepo(t *testing.T) StateRepository {
	t.Helper()
	repo, err := NewBadgerRepository("") // in-memory
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestAdapterState_SaveAndLoad(t *testing.T) {
	repo := newTestRepo(t)

	state := &models.AdapterState{
		StrategyID:  1,
		CurrentDate: "2024-01-02",
		StrategyState: map[string]interface{}{
			"count":     float64(3),
			"lastClose": 10.5,
		},
		T1Locks: map[string]*models.T1Lock{
			"SH600000": {Amount: 100, LockDate: "2024-01-02"},
		},
	}
	require.NoError(t, repo.SaveAdapterState(1, state))

	loaded, err := repo.LoadAdapterState(1)
	require.NoError(t, err)
	require.NotNil(t, loaded)

	assert.Equal(t, 1, loaded.StrategyID)
	assert.Equal(t, "2024-01-02", loaded.CurrentDate)
	assert.Equal(t, 10.5, loaded.StrategyState["lastClose"])
	require.Contains(t, loaded.T1Locks, "SH600000")
	assert.EqualValues(t, 100, loaded.T1Locks["SH600000"].Amount)
}

func TestAdapterState_MissingReturnsNilNil(t *testing.T) {
	repo := newTestRepo(t)

	loaded, err := repo.LoadAdapterState(99)
	assert.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestTrades_SaveAndLoad(t *testing.T) {
	repo := newTestRepo(t)

	trades := []models.Trade{
		{ID: "t1", Date: "2024-01-02", Action: models.Buy, Symbol: "SH600000", Price: 10.0, Amount: 100, StrategyID: 1},
		{ID: "t2", Date: "2024-01-03", Action: models.Sell, Symbol: "SH600000", Price: 11.0, Amount: 100, StrategyID: 1, Profit: 95},
	}
	require.NoError(t, repo.SaveTrades(1, trades))

	loaded, err := repo.LoadTrades(1)
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.Equal(t, trades, loaded)
}

func TestTrades_MissingReturnsNilNil(t *testing.T) {
	repo := newTestRepo(t)

	loaded, err := repo.LoadTrades(99)
	assert.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestStrategiesAreIsolated(t *testing.T) {
	repo := newTestRepo(t)

	require.NoError(t, repo.SaveTrades(1, []models.Trade{{ID: "a"}}))
	require.NoError(t, repo.SaveTrades(2, []models.Trade{{ID: "b"}, {ID: "c"}}))

	t1, err := repo.LoadTrades(1)
	require.NoError(t, err)
	t2, err := repo.LoadTrades(2)
	require.NoError(t, err)

	assert.Len(t, t1, 1)
	assert.Len(t, t2, 2)
}

func TestSaveOverwrites(t *testing.T) {
	repo := newTestRepo(t)

	require.NoError(t, repo.SaveAdapterState(1, &models.AdapterState{CurrentDate: "2024-01-02"}))
	require.NoError(t, repo.SaveAdapterState(1, &models.AdapterState{CurrentDate: "2024-01-03"}))

	loaded, err := repo.LoadAdapterState(1)
	require.NoError(t, err)
	assert.Equal(t, "2024-01-03", loaded.CurrentDate)
}
