package risk

import (
	"fmt"
	"strings"
	"time"

	"astock-strategy-bot-go/internal/logger"
	"astock-strategy-bot-go/internal/models"
)

// Gate 是7层顺序风控验证器。
//
// 各层依次为：总资金止损、黑名单、单日亏损、单策略资金占用（仅买入）、
// 单笔过大、交易频率、涨跌停板。任一层否决立即返回 risk_score=100，
// 不再执行后续层级；全部通过时返回累计的软性风险评分。
//
// 拒绝是数据而不是错误：Validate 永远不返回error。
// Gate 不是并发安全的，外层按单线程事件循环使用。
type Gate struct {
	totalCapital     float64
	cfg              models.RiskConfig
	accountValue     float64
	dailyStartValue  float64
	strategyCapitals map[int]float64
	prevCloses       map[string]float64
	tradeTimes       []time.Time
	blacklist        map[string]bool

	// 可注入时钟，交易频率层测试用
	now func() time.Time
}

// NewGate 创建风控验证器，初始账户价值与当日起始价值都等于总资金
func NewGate(totalCapital float64, cfg models.RiskConfig) *Gate {
	g := &Gate{
		totalCapital:     totalCapital,
		cfg:              cfg,
		accountValue:     totalCapital,
		dailyStartValue:  totalCapital,
		strategyCapitals: make(map[int]float64),
		prevCloses:       make(map[string]float64),
		blacklist:        make(map[string]bool, len(cfg.Blacklist)),
		now:              time.Now,
	}
	for _, sym := range cfg.Blacklist {
		g.blacklist[sym] = true
	}
	return g
}

// Validate 对一笔订单执行7层风控验证
func (g *Gate) Validate(order *models.Order) models.RiskDecision {
	tradeValue := order.Notional()
	riskScore := 0

	// 第1层：总资金止损
	totalLossRate := (g.totalCapital - g.accountValue) / g.totalCapital
	if totalLossRate > g.cfg.MaxTotalLossRate {
		return veto(fmt.Sprintf("总资金止损触发：当前亏损%.1f%%，超过限制%.1f%%",
			totalLossRate*100, g.cfg.MaxTotalLossRate*100))
	}
	if totalLossRate > g.cfg.MaxTotalLossRate*0.5 {
		riskScore += 20
	}

	// 第2层：黑名单股票
	if g.isBlacklisted(order.Symbol) {
		return veto(fmt.Sprintf("黑名单股票：%s", order.Symbol))
	}

	// 第3层：单日亏损限制
	dailyLossRate := (g.dailyStartValue - g.accountValue) / g.dailyStartValue
	if dailyLossRate > g.cfg.MaxDailyLossRate {
		return veto(fmt.Sprintf("单日亏损限制触发：当前亏损%.1f%%，超过限制%.1f%%",
			dailyLossRate*100, g.cfg.MaxDailyLossRate*100))
	}
	if dailyLossRate > g.cfg.MaxDailyLossRate*0.5 {
		riskScore += 15
	}

	// 第4层：单策略资金占用（仅买入）
	if order.Action == models.Buy {
		newCapital := g.strategyCapitals[order.StrategyID] + tradeValue
		capitalRate := newCapital / g.totalCapital
		if capitalRate > g.cfg.MaxStrategyCapitalRate {
			return veto(fmt.Sprintf("单策略资金占用超限：当前%.1f%%，超过限制%.1f%%",
				capitalRate*100, g.cfg.MaxStrategyCapitalRate*100))
		}
		if capitalRate > g.cfg.MaxStrategyCapitalRate*0.7 {
			riskScore += 15
		}
	}

	// 第5层：单笔过大
	tradeRate := tradeValue / g.totalCapital
	if tradeRate > g.cfg.MaxSingleTradeRate {
		return veto(fmt.Sprintf("单笔交易过大：当前%.1f%%，超过限制%.1f%%",
			tradeRate*100, g.cfg.MaxSingleTradeRate*100))
	}
	if tradeRate > g.cfg.MaxSingleTradeRate*0.7 {
		riskScore += 20
	} else if tradeRate > g.cfg.MaxSingleTradeRate*0.5 {
		riskScore += 10
	}

	// 第6层：交易频率
	recentTrades := g.countRecentTrades(time.Hour)
	if recentTrades >= g.cfg.MaxTradesPerHour {
		return veto(fmt.Sprintf("交易频率过高：1小时内%d笔，超过限制%d笔",
			recentTrades, g.cfg.MaxTradesPerHour))
	}
	if float64(recentTrades) > float64(g.cfg.MaxTradesPerHour)*0.7 {
		riskScore += 15
	}

	// 第7层：涨跌停板（没有昨收价时跳过）
	if prevClose, ok := g.prevCloses[order.Symbol]; ok && prevClose > 0 {
		if reason := g.checkPriceLimit(order, prevClose); reason != "" {
			return veto(reason)
		}
	}

	if riskScore > 100 {
		riskScore = 100
	}
	logger.S().Infow("风控验证通过",
		"symbol", order.Symbol, "amount", order.Amount, "risk_score", riskScore)
	return models.RiskDecision{Passed: true, Reason: "通过", RiskScore: riskScore}
}

// UpdateAccountValue 更新账户总价值（第1层输入）
func (g *Gate) UpdateAccountValue(value float64) {
	g.accountValue = value
}

// UpdateDailyStartValue 更新当日起始价值（第3层输入）
func (g *Gate) UpdateDailyStartValue(value float64) {
	g.dailyStartValue = value
}

// UpdateStrategyCapital 更新某策略的资金占用（第4层输入）
func (g *Gate) UpdateStrategyCapital(strategyID int, capital float64) {
	g.strategyCapitals[strategyID] = capital
}

// UpdatePrevClose 更新某只股票的昨收价（第7层输入）
func (g *Gate) UpdatePrevClose(symbol string, price float64) {
	g.prevCloses[symbol] = price
}

// RecordTrade 记录一笔已执行交易的时间，同时清理1小时以外的记录
func (g *Gate) RecordTrade() {
	now := g.now()
	cutoff := now.Add(-time.Hour)
	kept := g.tradeTimes[:0]
	for _, t := range g.tradeTimes {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	g.tradeTimes = append(kept, now)
}

func (g *Gate) countRecentTrades(window time.Duration) int {
	cutoff := g.now().Add(-window)
	count := 0
	for _, t := range g.tradeTimes {
		if t.After(cutoff) {
			count++
		}
	}
	return count
}

// isBlacklisted 检查自定义黑名单和ST类标识
func (g *Gate) isBlacklisted(symbol string) bool {
	if g.blacklist[symbol] {
		return true
	}
	for _, kw := range models.STKeywords {
		if strings.Contains(symbol, kw) {
			return true
		}
	}
	return false
}

// checkPriceLimit 检查涨跌停：涨停拦截买入，跌停拦截卖出。
// 返回空串表示放行。
func (g *Gate) checkPriceLimit(order *models.Order, prevClose float64) string {
	limitRate := models.StockTypeOf(order.Symbol).LimitRate()
	changeRate := (order.Price - prevClose) / prevClose

	if changeRate >= limitRate-g.cfg.LimitRateTolerance && order.Action == models.Buy {
		return fmt.Sprintf("涨停板，不建议买入：当前涨幅%.1f%%", changeRate*100)
	}
	if changeRate <= -limitRate+g.cfg.LimitRateTolerance && order.Action == models.Sell {
		return fmt.Sprintf("跌停板，不建议卖出：当前跌幅%.1f%%", changeRate*100)
	}
	return ""
}

func veto(reason string) models.RiskDecision {
	logger.S().Warnw("风控否决", "reason", reason)
	return models.RiskDecision{Passed: false, Reason: reason, RiskScore: 100}
}
