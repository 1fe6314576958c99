package models

// T1Lock 记录单只股票的T+1锁定信息。
// 当日买入的股票在 LockDate 之后的交易日才可卖出。
type T1Lock struct {
	Amount   int64  `json:"amount"`    // 锁定股数
	LockDate string `json:"lock_date"` // 锁定日（买入日）
}

// AdapterState 定义了策略适配器需要持久化的全部状态。
// 这是恢复一个运行中策略所需的唯一数据（回测不需要持久化）。
type AdapterState struct {
	StrategyID    int                    `json:"strategy_id"`
	StrategyState map[string]interface{} `json:"strategy_state"` // 沙箱内策略实例的纯数据属性
	T1Locks       map[string]*T1Lock     `json:"t1_locks"`
	CurrentDate   string                 `json:"current_date"`
}

// Clone 返回状态的深拷贝，避免持久化与后续修改之间的数据竞争
func (s *AdapterState) Clone() *AdapterState {
	if s == nil {
		return nil
	}
	cp := &AdapterState{
		StrategyID:    s.StrategyID,
		CurrentDate:   s.CurrentDate,
		StrategyState: make(map[string]interface{}, len(s.StrategyState)),
		T1Locks:       make(map[string]*T1Lock, len(s.T1Locks)),
	}
	for k, v := range s.StrategyState {
		cp.StrategyState[k] = v
	}
	for sym, lock := range s.T1Locks {
		if lock != nil {
			l := *lock
			cp.T1Locks[sym] = &l
		}
	}
	return cp
}
