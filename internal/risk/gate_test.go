package risk

import (
	"testing"
	"time"

	"astock-strategy-bot-go/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

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

func buyOrder(symbol string, amount int64, price float64) *models.Order {
	return &models.Order{
		Action: models.Buy, Symbol: symbol, Amount: amount, Price: price,
		StrategyID: 1, Date: "2024-01-02",
	}
}

func sellOrder(symbol string, amount int64, price float64) *models.Order {
	o := buyOrder(symbol, amount, price)
	o.Action = models.Sell
	return o
}

func TestValidate_PassWithZeroScore(t *testing.T) {
	g := NewGate(100000, testRiskConfig())

	decision := g.Validate(buyOrder("SH600000", 100, 10.0))
	require.True(t, decision.Passed)
	assert.Equal(t, "通过", decision.Reason)
	assert.Equal(t, 0, decision.RiskScore)
}

func TestValidate_TotalLossVeto(t *testing.T) {
	g := NewGate(100000, testRiskConfig())
	g.UpdateAccountValue(89000) // 11% total loss

	decision := g.Validate(buyOrder("SH600000", 100, 10.0))
	require.False(t, decision.Passed)
	assert.Equal(t, 100, decision.RiskScore)
	assert.Contains(t, decision.Reason, "总资金止损")
}

func TestValidate_TotalLossSoftScore(t *testing.T) {
	g := NewGate(100000, testRiskConfig())
	g.UpdateAccountValue(94000) // 6% loss: above half the 10% threshold
	g.UpdateDailyStartValue(94000)

	decision := g.Validate(buyOrder("SH600000", 100, 10.0))
	require.True(t, decision.Passed)
	assert.Equal(t, 20, decision.RiskScore)
}

func TestValidate_BlacklistVeto(t *testing.T) {
	cfg := testRiskConfig()
	cfg.Blacklist = []string{"SH600999"}
	g := NewGate(100000, cfg)

	decision := g.Validate(buyOrder("SH600999", 100, 10.0))
	require.False(t, decision.Passed)
	assert.Contains(t, decision.Reason, "黑名单")

	// ST symbols are blacklisted by keyword, without explicit configuration.
	decision = g.Validate(buyOrder("ST康美", 100, 2.0))
	require.False(t, decision.Passed)
	assert.Contains(t, decision.Reason, "黑名单")
}

// The blacklist layer runs before the trade-size layer: a blacklisted
// symbol is reported as blacklisted even when the order is also oversized.
func TestValidate_BlacklistBeforeTradeSize(t *testing.T) {
	g := NewGate(100000, testRiskConfig())

	decision := g.Validate(buyOrder("*ST博元", 10000, 10.0))
	require.False(t, decision.Passed)
	assert.Contains(t, decision.Reason, "黑名单")
}

func TestValidate_DailyLossVeto(t *testing.T) {
	g := NewGate(100000, testRiskConfig())
	g.UpdateDailyStartValue(100000)
	g.UpdateAccountValue(94000) // 6% daily loss

	decision := g.Validate(buyOrder("SH600000", 100, 10.0))
	require.False(t, decision.Passed)
	assert.Contains(t, decision.Reason, "单日亏损")
}

func TestValidate_StrategyCapitalVetoOnBuysOnly(t *testing.T) {
	g := NewGate(100000, testRiskConfig())
	g.UpdateStrategyCapital(1, 25000)

	// 25000 held + 10000 new = 35% > 30%
	decision := g.Validate(buyOrder("SH600000", 1000, 10.0))
	require.False(t, decision.Passed)
	assert.Contains(t, decision.Reason, "单策略资金占用")

	// The same notional on a sell is not capital-constrained.
	decision = g.Validate(sellOrder("SH600000", 1000, 10.0))
	assert.True(t, decision.Passed)
}

func TestValidate_SingleTradeVeto(t *testing.T) {
	g := NewGate(100000, testRiskConfig())

	// 2100 shares * 10 = 21% > 20%
	decision := g.Validate(sellOrder("SH600000", 2100, 10.0))
	require.False(t, decision.Passed)
	assert.Contains(t, decision.Reason, "单笔交易过大")
}

func TestValidate_SingleTradeSoftScore(t *testing.T) {
	g := NewGate(100000, testRiskConfig())

	// 15% of capital: above 70% of the 20% limit, +20
	decision := g.Validate(sellOrder("SH600000", 1500, 10.0))
	require.True(t, decision.Passed)
	assert.Equal(t, 20, decision.RiskScore)

	// 11% of capital: between 50% and 70% of the limit, +10
	decision = g.Validate(sellOrder("SH600000", 1100, 10.0))
	require.True(t, decision.Passed)
	assert.Equal(t, 10, decision.RiskScore)
}

func TestValidate_TradeFrequencyVeto(t *testing.T) {
	cfg := testRiskConfig()
	cfg.MaxTradesPerHour = 3
	g := NewGate(100000, cfg)

	now := time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		g.RecordTrade()
		now = now.Add(time.Minute)
	}

	decision := g.Validate(buyOrder("SH600000", 100, 10.0))
	require.False(t, decision.Passed)
	assert.Contains(t, decision.Reason, "交易频率过高")

	// An hour later the window has drained.
	now = now.Add(time.Hour)
	decision = g.Validate(buyOrder("SH600000", 100, 10.0))
	assert.True(t, decision.Passed)
}

func TestValidate_LimitUpBlocksBuyNotSell(t *testing.T) {
	g := NewGate(100000, testRiskConfig())
	g.UpdatePrevClose("SH600000", 10.0)

	// 10.0 -> 11.0 is a 10% limit-up for a normal stock.
	decision := g.Validate(buyOrder("SH600000", 100, 11.0))
	require.False(t, decision.Passed)
	assert.Contains(t, decision.Reason, "涨停板")

	decision = g.Validate(sellOrder("SH600000", 100, 11.0))
	assert.True(t, decision.Passed)
}

func TestValidate_LimitDownBlocksSellNotBuy(t *testing.T) {
	g := NewGate(100000, testRiskConfig())
	g.UpdatePrevClose("SH600000", 10.0)

	decision := g.Validate(sellOrder("SH600000", 100, 9.0))
	require.False(t, decision.Passed)
	assert.Contains(t, decision.Reason, "跌停板")

	decision = g.Validate(buyOrder("SH600000", 100, 9.0))
	assert.True(t, decision.Passed)
}

// A 20% board stock is not limit-up at +10%.
func TestValidate_WiderLimitForKCB(t *testing.T) {
	g := NewGate(100000, testRiskConfig())
	g.UpdatePrevClose("SH688001", 10.0)

	decision := g.Validate(buyOrder("SH688001", 100, 11.0))
	assert.True(t, decision.Passed)

	decision = g.Validate(buyOrder("SH688001", 100, 12.0))
	require.False(t, decision.Passed)
	assert.Contains(t, decision.Reason, "涨停板")
}

func TestValidate_NoPrevCloseSkipsLimitCheck(t *testing.T) {
	g := NewGate(100000, testRiskConfig())

	decision := g.Validate(buyOrder("SH600000", 100, 11.0))
	assert.True(t, decision.Passed)
}
