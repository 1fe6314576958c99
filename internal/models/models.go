package models

// Action 定义了交易动作类型
type Action string

const (
	Buy  Action = "buy"
	Sell Action = "sell"
)

// LotSize 是A股买入的最小交易单位（100股）
const LotSize = 100

// Config 结构体定义了机器人的所有配置参数
type Config struct {
	DBPath      string        `json:"db_path"`      // 状态数据库文件路径
	Symbol      string        `json:"symbol"`       // 股票代码，如 "SH600000"
	InitialCash float64       `json:"initial_cash"` // 初始资金（元）
	LogConfig   LogConfig     `json:"log"`          // 日志配置
	Engine      EngineConfig  `json:"engine"`       // 回测引擎配置
	Risk        RiskConfig    `json:"risk"`         // 风控配置
	Sandbox     SandboxConfig `json:"sandbox"`      // 策略沙箱配置
	Trading     TradingConfig `json:"trading"`      // 模拟盘交易配置
}

// EngineConfig 定义了回测引擎特定配置
type EngineConfig struct {
	EnableMarketRules   bool    `json:"enable_market_rules"`   // 是否启用A股市场规则（停牌/涨跌停/滑点/印花税）
	CommissionRate      float64 `json:"commission_rate"`       // 佣金费率（双边）
	MinCommission       float64 `json:"min_commission"`        // 最低佣金（元）
	StampDutyRate       float64 `json:"stamp_duty_rate"`       // 印花税率（仅卖出）
	SlippageRate        float64 `json:"slippage_rate"`         // 滑点率
	PriceLimitTolerance float64 `json:"price_limit_tolerance"` // 涨跌停判定容差（元）
	RiskFreeRate        float64 `json:"risk_free_rate"`        // 年化无风险利率（夏普比率用）
}

// RiskConfig 定义了7层风控验证器的阈值
type RiskConfig struct {
	MaxTotalLossRate       float64  `json:"max_total_loss_rate"`       // 总资金止损率
	MaxDailyLossRate       float64  `json:"max_daily_loss_rate"`       // 单日亏损率上限
	MaxStrategyCapitalRate float64  `json:"max_strategy_capital_rate"` // 单策略资金占用上限
	MaxSingleTradeRate     float64  `json:"max_single_trade_rate"`     // 单笔交易占比上限
	MaxTradesPerHour       int      `json:"max_trades_per_hour"`       // 每小时最大交易次数
	LimitRateTolerance     float64  `json:"limit_rate_tolerance"`      // 涨跌幅判定容差（比例）
	Blacklist              []string `json:"blacklist"`                 // 自定义黑名单
}

// SandboxConfig 定义了策略沙箱的执行限制
type SandboxConfig struct {
	TimeoutMs     int `json:"timeout_ms"`     // 单次 onBar 调用的墙钟超时（毫秒）
	MaxComplexity int `json:"max_complexity"` // 策略代码圈复杂度上限
}

// TradingConfig 定义了模拟盘交易管理器的配置
type TradingConfig struct {
	RequireApproval      bool    `json:"require_approval"`       // 是否需要人工确认
	AutoApproveThreshold float64 `json:"auto_approve_threshold"` // 自动通过的单笔金额阈值（元）
}

// LogConfig 定义了日志相关的配置
type LogConfig struct {
	Level      string `json:"level"`       // 日志级别, e.g., "debug", "info", "warn", "error"
	Output     string `json:"output"`      // 输出模式: "console", "file", "both"
	File       string `json:"file"`        // 日志文件路径
	MaxSize    int    `json:"max_size"`    // 单个日志文件的最大大小 (MB)
	MaxBackups int    `json:"max_backups"` // 保留的旧日志文件最大数量
	MaxAge     int    `json:"max_age"`     // 旧日志文件的最大保留天数
	Compress   bool   `json:"compress"`    // 是否压缩旧日志文件
}

// Bar 定义了一根日K线。约定: volume == 0 表示当日停牌。
type Bar struct {
	Date   string  `json:"date"` // 交易日, "2006-01-02"
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

// Suspended 判断该K线是否处于停牌状态
func (b Bar) Suspended() bool {
	return b.Volume == 0
}

// Signal 是策略 onBar 的原始输出。可能是订单意图（含 action），
// 也可能是策略自定义的状态信息，不做类型约束。
type Signal map[string]interface{}

// Action 提取信号中的交易动作，没有则返回空串
func (s Signal) Action() Action {
	if s == nil {
		return ""
	}
	if v, ok := s["action"].(string); ok {
		return Action(v)
	}
	return ""
}

// Order 是经过适配器验证、字段齐全的交易请求
type Order struct {
	Action     Action  `json:"action"`
	Symbol     string  `json:"symbol"`
	Amount     int64   `json:"amount"` // 股数
	Price      float64 `json:"price"`
	StrategyID int     `json:"strategy_id"`
	Date       string  `json:"date"`
}

// Notional 返回订单的名义金额
func (o *Order) Notional() float64 {
	return float64(o.Amount) * o.Price
}

// Trade 记录一笔已执行的交易
type Trade struct {
	ID         string  `json:"id,omitempty"`
	Date       string  `json:"date"`
	Action     Action  `json:"action"`
	Symbol     string  `json:"symbol"`
	Price      float64 `json:"price"`
	Amount     int64   `json:"amount"`
	Commission float64 `json:"commission"`
	Tax        float64 `json:"tax,omitempty"`     // 印花税（仅卖出）
	Cost       float64 `json:"cost,omitempty"`    // 买入总支出
	Revenue    float64 `json:"revenue,omitempty"` // 卖出净收入
	Profit     float64 `json:"profit"`            // 已实现盈亏（仅卖出）
	StrategyID int     `json:"strategy_id"`
	Timestamp  string  `json:"timestamp,omitempty"` // 模拟盘成交时间 (RFC3339)
}

// Position 定义了单只股票的持仓
type Position struct {
	Amount  int64   `json:"amount"`   // 持仓股数
	AvgCost float64 `json:"avg_cost"` // 平均持仓成本
}

// Metrics 存储一次回测运行结束后计算出的所有性能指标
type Metrics struct {
	AnnualReturn float64 `json:"annual_return"` // 年化收益率
	MaxDrawdown  float64 `json:"max_drawdown"`  // 最大回撤
	SharpeRatio  float64 `json:"sharpe_ratio"`  // 夏普比率
	WinRate      float64 `json:"win_rate"`      // 胜率（盈利卖出/全部卖出）
	TotalTrades  int     `json:"total_trades"`  // 总交易次数（仅统计买入）
	FinalValue   float64 `json:"final_value"`   // 期末总资产
	TotalReturn  float64 `json:"total_return"`  // 总收益率
}

// RiskDecision 是风控验证器对单笔订单的裁决结果。
// 拒绝是常态输出而不是错误，因此用数据而非 error 表达。
type RiskDecision struct {
	Passed    bool   `json:"passed"`
	Reason    string `json:"reason"`
	RiskScore int    `json:"risk_score"` // 0-100，软性风险评分
}

// ViolationKind 枚举了代码安全检查的违规类型
type ViolationKind string

const (
	ViolationSyntax       ViolationKind = "syntax"
	ViolationImport       ViolationKind = "dangerous_import"
	ViolationCall         ViolationKind = "dangerous_call"
	ViolationMissingEntry ViolationKind = "missing_entry_point"
	ViolationComplexity   ViolationKind = "complexity"
)

// Violation 描述一条安全检查违规
type Violation struct {
	Kind   ViolationKind `json:"kind"`
	Detail string        `json:"detail"`
}

// SafetyReport 是代码安全检查的结果，生成后不可变
type SafetyReport struct {
	Safe       bool        `json:"safe"`
	Violations []Violation `json:"violations,omitempty"`
	Complexity int         `json:"complexity"`
}
