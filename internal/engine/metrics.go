package engine

import (
	"math"

	"astock-strategy-bot-go/internal/models"
)

// 年化与夏普比率使用的常数：自然日365天折算年化，
// 交易日252天折算无风险利率与波动率。
const (
	calendarDaysPerYear = 365.0
	tradingDaysPerYear  = 252.0
)

// calculateMetrics 根据账户价值序列和交易记录计算全部回测指标。
// days 是行情K线总数（含停牌日）。
func (e *Engine) calculateMetrics(days int) models.Metrics {
	finalValue := e.initialCash
	if len(e.portfolioValues) > 0 {
		finalValue = e.portfolioValues[len(e.portfolioValues)-1]
	}

	totalReturn := (finalValue - e.initialCash) / e.initialCash

	buys := 0
	for _, t := range e.trades {
		if t.Action == models.Buy {
			buys++
		}
	}

	return models.Metrics{
		AnnualReturn: annualReturn(totalReturn, days),
		MaxDrawdown:  maxDrawdown(e.portfolioValues),
		SharpeRatio:  sharpeRatio(dailyReturns(e.portfolioValues), e.cfg.RiskFreeRate),
		WinRate:      winRate(e.trades),
		TotalTrades:  buys,
		FinalValue:   finalValue,
		TotalReturn:  totalReturn,
	}
}

// annualReturn 按自然日复利折算年化收益率
func annualReturn(totalReturn float64, days int) float64 {
	if days == 0 {
		return 0
	}
	return math.Pow(1+totalReturn, calendarDaysPerYear/float64(days)) - 1
}

// maxDrawdown 计算相对滚动峰值的最大回撤
func maxDrawdown(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	maxDD := 0.0
	peak := values[0]
	for _, v := range values {
		if v > peak {
			peak = v
		}
		if peak > 0 {
			if dd := (peak - v) / peak; dd > maxDD {
				maxDD = dd
			}
		}
	}
	return maxDD
}

// dailyReturns 由账户价值序列计算逐日收益率
func dailyReturns(values []float64) []float64 {
	if len(values) < 2 {
		return nil
	}
	returns := make([]float64, 0, len(values)-1)
	for i := 1; i < len(values); i++ {
		returns = append(returns, (values[i]-values[i-1])/values[i-1])
	}
	return returns
}

// sharpeRatio 计算年化夏普比率。收益率无波动时返回0而不是无穷大。
func sharpeRatio(returns []float64, riskFreeRate float64) float64 {
	if len(returns) == 0 {
		return 0
	}

	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	variance := 0.0
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(returns))
	std := math.Sqrt(variance)
	if std == 0 {
		return 0
	}

	dailyRF := riskFreeRate / tradingDaysPerYear
	return (mean - dailyRF) / std * math.Sqrt(tradingDaysPerYear)
}

// winRate 胜率 = 盈利卖出笔数 / 全部卖出笔数
func winRate(trades []models.Trade) float64 {
	sells, wins := 0, 0
	for _, t := range trades {
		if t.Action != models.Sell {
			continue
		}
		sells++
		if t.Profit > 0 {
			wins++
		}
	}
	if sells == 0 {
		return 0
	}
	return float64(wins) / float64(sells)
}
