package trading

import (
	"testing"
	"time"

	"astock-strategy-bot-go/internal/models"
	"astock-strategy-bot-go/internal/persistence"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const buyStrategy = `
class SmallBuyer {
    onBar(bar) {
        return {action: "buy", amount: 100, price: bar.close};
    }
}
`

func testTradingConfig() models.TradingConfig {
	return models.TradingConfig{
		RequireApproval:      false,
		AutoApproveThreshold: 3000,
	}
}

func testRiskConfig() models.RiskConfig {
	return models.RiskConfig{
		MaxTotalLossRate:       0.10,
		MaxDailyLossRate:       0.05,
		MaxStrategyCapitalRate: 0.30,
		MaxSingleTradeRate:     0.20,
		MaxTradesPerHour:       20,
		LimitRateTolerance:     0.001,
	}
}

func testSandboxConfig() models.SandboxConfig {
	return models.SandboxConfig{TimeoutMs: 1000, MaxComplexity: 20}
}

func newTestManager(t *testing.T, repo persistence.StateRepository) *Manager {
	t.Helper()
	return NewManager(100000, testTradingConfig(), testRiskConfig(), testSandboxConfig(), repo)
}

func marketBar(date string, close float64) models.Bar {
	return models.Bar{Date: date, Open: close, High: close, Low: close, Close: close, Volume: 1000}
}

func TestStartStop(t *testing.T) {
	m := newTestManager(t, nil)

	assert.False(t, m.IsRunning())
	assert.True(t, m.Start())
	assert.False(t, m.Start()) // already running
	assert.True(t, m.IsRunning())
	assert.True(t, m.Stop())
	assert.False(t, m.Stop()) // already stopped
}

func TestAddStrategy_RejectsUnsafeSource(t *testing.T) {
	m := newTestManager(t, nil)

	err := m.AddStrategy(1, "SH600000", `
class Evil {
    onBar(bar) {
        eval("1");
        return null;
    }
}
`)
	require.Error(t, err)
	assert.Empty(t, m.ListStrategies())
}

func TestAddRemoveListStrategies(t *testing.T) {
	m := newTestManager(t, nil)

	require.NoError(t, m.AddStrategy(2, "SH600000", buyStrategy))
	require.NoError(t, m.AddStrategy(1, "SZ000001", buyStrategy))
	assert.Equal(t, []int{1, 2}, m.ListStrategies())

	assert.True(t, m.RemoveStrategy(2))
	assert.False(t, m.RemoveStrategy(2))
	assert.Equal(t, []int{1}, m.ListStrategies())
}

func TestProcessBar_IgnoredWhenStopped(t *testing.T) {
	m := newTestManager(t, nil)
	require.NoError(t, m.AddStrategy(1, "SH600000", buyStrategy))

	result, err := m.ProcessBar(1, marketBar("2024-01-02", 10.0))
	require.NoError(t, err)
	assert.Nil(t, result)
	assert.Empty(t, m.GetTrades(1))
}

func TestExecuteTrade_AutoApprovedUnderThreshold(t *testing.T) {
	m := newTestManager(t, nil)
	require.NoError(t, m.AddStrategy(1, "SH600000", buyStrategy))
	m.Start()

	// 100 shares at 10 = 1000 yuan, under the 3000 threshold.
	result, err := m.ProcessBar(1, marketBar("2024-01-02", 10.0))
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.True(t, result.PassedRiskCheck)
	assert.True(t, result.Executed)
	assert.NotEmpty(t, result.TradeID)

	trades := m.GetTrades(1)
	require.Len(t, trades, 1)
	assert.Equal(t, models.Buy, trades[0].Action)
	assert.EqualValues(t, 100, trades[0].Amount)
}

func TestExecuteTrade_LargeTradeNeedsApproval(t *testing.T) {
	m := newTestManager(t, nil)

	// 100 shares at 35 = 3500 yuan, above the threshold.
	result := m.ExecuteTrade(&models.Order{
		Action: models.Buy, Symbol: "SH600000", Amount: 100, Price: 35.0,
		StrategyID: 1, Date: "2024-01-02",
	})

	assert.True(t, result.PassedRiskCheck)
	assert.True(t, result.RequireApproval)
	assert.False(t, result.Executed)
	assert.Empty(t, m.GetTrades(1))
}

func TestExecuteTrade_ManualModeAlwaysNeedsApproval(t *testing.T) {
	cfg := testTradingConfig()
	cfg.RequireApproval = true
	m := NewManager(100000, cfg, testRiskConfig(), testSandboxConfig(), nil)

	result := m.ExecuteTrade(&models.Order{
		Action: models.Buy, Symbol: "SH600000", Amount: 100, Price: 10.0,
		StrategyID: 1, Date: "2024-01-02",
	})

	assert.True(t, result.PassedRiskCheck)
	assert.True(t, result.RequireApproval)
	assert.False(t, result.Executed)
}

func TestExecuteTrade_RiskVeto(t *testing.T) {
	m := newTestManager(t, nil)

	result := m.ExecuteTrade(&models.Order{
		Action: models.Buy, Symbol: "ST退市股", Amount: 100, Price: 2.0,
		StrategyID: 1, Date: "2024-01-02",
	})

	assert.False(t, result.PassedRiskCheck)
	assert.False(t, result.Executed)
	assert.Contains(t, result.Reason, "黑名单")
}

func TestRestorePositions(t *testing.T) {
	trades := []models.Trade{
		{Action: models.Buy, Symbol: "SH600000", Amount: 100, Price: 10.0},
		{Action: models.Buy, Symbol: "SH600000", Amount: 100, Price: 12.0},
		{Action: models.Sell, Symbol: "SH600000", Amount: 100, Price: 13.0},
		{Action: models.Buy, Symbol: "SZ000001", Amount: 200, Price: 5.0},
		{Action: models.Sell, Symbol: "SZ000001", Amount: 200, Price: 6.0},
	}

	positions := RestorePositions(trades)

	// SZ000001 is fully closed and filtered out.
	require.Len(t, positions, 1)
	pos := positions["SH600000"]
	require.NotNil(t, pos)
	assert.EqualValues(t, 100, pos.Amount)
	// Average cost over the remaining shares: (1000 + 1200) / 100.
	assert.InDelta(t, 22.0, pos.AvgCost, 1e-9)
}

func TestRehydrateState_AcrossRestart(t *testing.T) {
	repo, err := persistence.NewBadgerRepository("")
	require.NoError(t, err)
	defer repo.Close()

	fixedNow := time.Date(2024, 1, 2, 14, 30, 0, 0, time.UTC)
	today := fixedNow.Format("2006-01-02")

	// First manager: trade once, which persists trades and the snapshot.
	m1 := newTestManager(t, repo)
	m1.now = func() time.Time { return fixedNow }
	require.NoError(t, m1.AddStrategy(1, "SH600000", buyStrategy))
	m1.Start()

	result, err := m1.ProcessBar(1, marketBar(today, 10.0))
	require.NoError(t, err)
	require.NotNil(t, result)
	require.True(t, result.Executed)

	// Second manager simulates a restarted process on the same database.
	m2 := newTestManager(t, repo)
	m2.now = func() time.Time { return fixedNow }
	require.NoError(t, m2.AddStrategy(1, "SH600000", buyStrategy))

	positions, err := m2.RehydrateState(1)
	require.NoError(t, err)

	require.Contains(t, positions, "SH600000")
	assert.EqualValues(t, 100, positions["SH600000"].Amount)
	assert.InDelta(t, 10.0, positions["SH600000"].AvgCost, 1e-9)

	// The replayed trade happened today, so its shares come back T+1 locked.
	trades := m2.GetTrades(1)
	require.Len(t, trades, 1)
	assert.Equal(t, today, trades[0].Date)
}

func TestRehydrateState_UnknownStrategy(t *testing.T) {
	m := newTestManager(t, nil)

	_, err := m.RehydrateState(42)
	require.Error(t, err)
}
