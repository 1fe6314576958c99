package models

import (
	"fmt"
	"time"
)

// ExecutionError 表示沙箱内策略代码抛出的异常。
// 它在适配器边界被捕获，单根K线失败不会中止整个回测。
type ExecutionError struct {
	Reason string
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("策略执行失败: %s", e.Reason)
}

// ExecutionTimeoutError 表示单次沙箱调用超过了墙钟预算。
// 超时的调用不会被自动重试，否则会破坏每根K线只调用一次的约定。
type ExecutionTimeoutError struct {
	Budget time.Duration
}

func (e *ExecutionTimeoutError) Error() string {
	return fmt.Sprintf("策略执行超时: 超过预算 %s", e.Budget)
}

// OrderValidationError 表示策略产出了不合法的订单（如买入数量不是100的倍数）。
// 这是策略逻辑缺陷，参考行为是中止回测。
type OrderValidationError struct {
	Reason string
	Amount int64
}

func (e *OrderValidationError) Error() string {
	return fmt.Sprintf("订单验证失败: %s (amount=%d)", e.Reason, e.Amount)
}

// ConfigError 表示配置不合法，在构造期直接失败
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("配置错误: %s: %s", e.Field, e.Reason)
}
