package adapter

import (
	"time"

	"astock-strategy-bot-go/internal/logger"
	"astock-strategy-bot-go/internal/models"
	"astock-strategy-bot-go/internal/sandbox"
)

// Adapter 将沙箱中的策略实例与交易系统连接起来。
//
// 它负责三件事：把K线喂给策略并接住策略的异常；把策略的原始信号
// 规整为字段齐全的订单并做合法性检查；维护T+1锁定表，当日买入的
// 持仓直到下一交易日才允许卖出。
//
// 日期使用 "2006-01-02" 字符串，字典序即时间序。
type Adapter struct {
	strategyID  int
	symbol      string
	runtime     *sandbox.Runtime
	t1Locks     map[string]*models.T1Lock
	currentDate string
}

// New 用策略源码构建适配器。源码应当先通过safety检查，
// 这里只负责装载与实例化。
func New(strategyID int, symbol, source string, timeout time.Duration) (*Adapter, error) {
	rt, err := sandbox.NewRuntime(source, timeout)
	if err != nil {
		return nil, err
	}
	return &Adapter{
		strategyID: strategyID,
		symbol:     symbol,
		runtime:    rt,
		t1Locks:    make(map[string]*models.T1Lock),
	}, nil
}

// StrategyID 返回该适配器绑定的策略编号
func (a *Adapter) StrategyID() int {
	return a.strategyID
}

// ProcessBar 处理一根K线：推进适配器日期、清理过期锁、调用策略，
// 并将信号转换为订单。
//
// 返回值约定：
//   - order 非nil表示产生了一笔通过验证的交易请求；
//   - signal 原样透传策略输出（可能是纯信息性信号）；
//   - err 为 ExecutionError/ExecutionTimeoutError 时表示本根K线执行失败，
//     调用方可跳过该K线继续；为 OrderValidationError 时表示策略逻辑缺陷。
func (a *Adapter) ProcessBar(bar models.Bar) (*models.Order, models.Signal, error) {
	a.currentDate = bar.Date
	a.purgeExpiredLocks()

	signal, err := a.runtime.OnBar(bar)
	if err != nil {
		return nil, nil, err
	}
	if signal == nil {
		return nil, nil, nil
	}

	action := signal.Action()
	if action != models.Buy && action != models.Sell {
		// 信息性信号，没有交易意图
		return nil, signal, nil
	}

	order := &models.Order{
		Action:     action,
		Symbol:     a.symbol,
		Price:      bar.Close,
		StrategyID: a.strategyID,
		Date:       bar.Date,
	}
	if sym, ok := signal["symbol"].(string); ok && sym != "" {
		order.Symbol = sym
	}
	if price, ok := toFloat(signal["price"]); ok && price > 0 {
		order.Price = price
	}
	amount, ok := toInt(signal["amount"])
	if !ok || amount <= 0 {
		return nil, signal, &models.OrderValidationError{Reason: "交易数量必须为正整数", Amount: amount}
	}
	order.Amount = amount

	switch action {
	case models.Buy:
		if amount%models.LotSize != 0 {
			return nil, signal, &models.OrderValidationError{
				Reason: "买入数量必须是100的整数倍",
				Amount: amount,
			}
		}
		a.lockShares(order.Symbol, amount)
	case models.Sell:
		if lock, exists := a.t1Locks[order.Symbol]; exists && lock.LockDate == a.currentDate {
			// T+1: 当日买入的持仓不可卖出，信号静默丢弃
			logger.S().Warnf("策略 %d 试图卖出当日买入的 %s，T+1规则拦截", a.strategyID, order.Symbol)
			return nil, signal, nil
		}
	}

	return order, signal, nil
}

// IsLocked 判断某只股票当前是否处于T+1锁定中
func (a *Adapter) IsLocked(symbol string) bool {
	lock, exists := a.t1Locks[symbol]
	return exists && lock.LockDate == a.currentDate
}

// LockedAmount 返回某只股票当前被锁定的股数
func (a *Adapter) LockedAmount(symbol string) int64 {
	if lock, exists := a.t1Locks[symbol]; exists {
		return lock.Amount
	}
	return 0
}

// Lock 手工登记一笔T+1锁定，状态恢复时重放当日买入使用
func (a *Adapter) Lock(symbol string, amount int64, date string) {
	if lock, exists := a.t1Locks[symbol]; exists && lock.LockDate == date {
		lock.Amount += amount
		return
	}
	a.t1Locks[symbol] = &models.T1Lock{Amount: amount, LockDate: date}
}

// GetState 导出适配器的完整可持久化状态（深拷贝）
func (a *Adapter) GetState() *models.AdapterState {
	state := &models.AdapterState{
		StrategyID:    a.strategyID,
		StrategyState: a.runtime.ExportState(),
		T1Locks:       make(map[string]*models.T1Lock, len(a.t1Locks)),
		CurrentDate:   a.currentDate,
	}
	for sym, lock := range a.t1Locks {
		l := *lock
		state.T1Locks[sym] = &l
	}
	return state
}

// RestoreState 从持久化状态恢复适配器：策略实例属性、锁定表和日期
func (a *Adapter) RestoreState(state *models.AdapterState) error {
	if state == nil {
		return nil
	}
	if err := a.runtime.RestoreState(state.StrategyState); err != nil {
		return err
	}
	a.currentDate = state.CurrentDate
	a.t1Locks = make(map[string]*models.T1Lock, len(state.T1Locks))
	for sym, lock := range state.T1Locks {
		if lock != nil {
			l := *lock
			a.t1Locks[sym] = &l
		}
	}
	return nil
}

// lockShares 登记或累加当日买入的锁定股数。
// 锁定日不同（隔日残留）时直接覆盖为当日新锁。
func (a *Adapter) lockShares(symbol string, amount int64) {
	if lock, exists := a.t1Locks[symbol]; exists && lock.LockDate == a.currentDate {
		lock.Amount += amount
		return
	}
	a.t1Locks[symbol] = &models.T1Lock{Amount: amount, LockDate: a.currentDate}
}

// purgeExpiredLocks 清除锁定日早于当前日期的锁
func (a *Adapter) purgeExpiredLocks() {
	for sym, lock := range a.t1Locks {
		if lock.LockDate < a.currentDate {
			delete(a.t1Locks, sym)
		}
	}
}

func toInt(v interface{}) (int64, bool) {
	switch x := v.(type) {
	case int64:
		return x, true
	case float64:
		return int64(x), true
	case int:
		return int64(x), true
	}
	return 0, false
}

func toFloat(v interface{}) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int64:
		return float64(x), true
	case int:
		return float64(x), true
	}
	return 0, false
}
