package config

import (
	"astock-strategy-bot-go/internal/models"
	"encoding/json"
	"os"
)

// 默认配置取自A股实盘常用参数
func defaults() *models.Config {
	return &models.Config{
		InitialCash: 100000,
		Engine: models.EngineConfig{
			EnableMarketRules:   true,
			CommissionRate:      0.0003,
			MinCommission:       5.0,
			StampDutyRate:       0.001,
			SlippageRate:        0.001,
			PriceLimitTolerance: 0.01,
			RiskFreeRate:        0.03,
		},
		Risk: models.RiskConfig{
			MaxTotalLossRate:       0.10,
			MaxDailyLossRate:       0.05,
			MaxStrategyCapitalRate: 0.30,
			MaxSingleTradeRate:     0.20,
			MaxTradesPerHour:       20,
			LimitRateTolerance:     0.001,
		},
		Sandbox: models.SandboxConfig{
			TimeoutMs:     5000,
			MaxComplexity: 20,
		},
		Trading: models.TradingConfig{
			AutoApproveThreshold: 3000,
		},
	}
}

// LoadConfig 从指定路径加载JSON配置文件并解析到Config结构体中。
// 未出现的字段保持默认值；非法配置在这里直接失败，不会进入运行期。
func LoadConfig(path string) (*models.Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	cfg := defaults()
	if err := json.NewDecoder(file).Decode(cfg); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 检查配置的合法性
func Validate(cfg *models.Config) error {
	if cfg.InitialCash <= 0 {
		return &models.ConfigError{Field: "initial_cash", Reason: "必须大于0"}
	}
	if cfg.Engine.CommissionRate < 0 || cfg.Engine.StampDutyRate < 0 ||
		cfg.Engine.SlippageRate < 0 || cfg.Engine.MinCommission < 0 {
		return &models.ConfigError{Field: "engine", Reason: "费率与最低佣金不能为负"}
	}
	for field, rate := range map[string]float64{
		"risk.max_total_loss_rate":       cfg.Risk.MaxTotalLossRate,
		"risk.max_daily_loss_rate":       cfg.Risk.MaxDailyLossRate,
		"risk.max_strategy_capital_rate": cfg.Risk.MaxStrategyCapitalRate,
		"risk.max_single_trade_rate":     cfg.Risk.MaxSingleTradeRate,
	} {
		if rate <= 0 || rate > 1 {
			return &models.ConfigError{Field: field, Reason: "必须在(0,1]区间内"}
		}
	}
	if cfg.Risk.MaxTradesPerHour <= 0 {
		return &models.ConfigError{Field: "risk.max_trades_per_hour", Reason: "必须为正整数"}
	}
	if cfg.Sandbox.TimeoutMs <= 0 {
		return &models.ConfigError{Field: "sandbox.timeout_ms", Reason: "必须为正"}
	}
	if cfg.Sandbox.MaxComplexity <= 0 {
		return &models.ConfigError{Field: "sandbox.max_complexity", Reason: "必须为正"}
	}
	return nil
}
