package trading

import (
	"fmt"
	"sort"
	"time"

	"astock-strategy-bot-go/internal/adapter"
	"astock-strategy-bot-go/internal/logger"
	"astock-strategy-bot-go/internal/models"
	"astock-strategy-bot-go/internal/persistence"
	"astock-strategy-bot-go/internal/risk"
	"astock-strategy-bot-go/internal/safety"

	"github.com/jxskiss/base62"
)

// ExecutionResult 描述一笔交易请求经过风控与确认流程后的去向
type ExecutionResult struct {
	PassedRiskCheck bool   `json:"passed_risk_check"`
	RequireApproval bool   `json:"require_approval"`
	Executed        bool   `json:"executed"`
	Reason          string `json:"reason,omitempty"`
	TradeID         string `json:"trade_id,omitempty"`
}

// Manager 是模拟盘交易管理器。
//
// 它托管多个策略适配器，把K线分发给策略，对产生的订单依次执行
// 风控验证和确认检查，成交记录和适配器快照写入仓储，
// 容器重启后可以断点续传。
//
// Manager 不是并发安全的，按单线程事件循环使用。
type Manager struct {
	cfg        models.TradingConfig
	timeout    time.Duration
	gate       *risk.Gate
	checker    *safety.Checker
	repo       persistence.StateRepository
	strategies map[int]*adapter.Adapter
	sources    map[int]string
	trades     map[int][]models.Trade
	capitals   map[int]float64
	running    bool

	now func() time.Time
}

// NewManager 创建交易管理器。repo 可以为nil，此时状态只保留在内存中。
func NewManager(
	totalCapital float64,
	tradingCfg models.TradingConfig,
	riskCfg models.RiskConfig,
	sandboxCfg models.SandboxConfig,
	repo persistence.StateRepository,
) *Manager {
	m := &Manager{
		cfg:        tradingCfg,
		timeout:    time.Duration(sandboxCfg.TimeoutMs) * time.Millisecond,
		gate:       risk.NewGate(totalCapital, riskCfg),
		checker:    safety.NewChecker(sandboxCfg.MaxComplexity),
		repo:       repo,
		strategies: make(map[int]*adapter.Adapter),
		sources:    make(map[int]string),
		trades:     make(map[int][]models.Trade),
		capitals:   make(map[int]float64),
		now:        time.Now,
	}
	logger.S().Infow("交易管理器初始化完成",
		"require_approval", tradingCfg.RequireApproval,
		"threshold", tradingCfg.AutoApproveThreshold)
	return m
}

// Start 启动自动交易
func (m *Manager) Start() bool {
	if m.running {
		logger.S().Warn("自动交易已在运行")
		return false
	}
	m.running = true
	logger.S().Info("启动自动交易")
	return true
}

// Stop 停止自动交易
func (m *Manager) Stop() bool {
	if !m.running {
		logger.S().Warn("自动交易未运行")
		return false
	}
	m.running = false
	logger.S().Info("停止自动交易")
	return true
}

// IsRunning 返回自动交易是否在运行中
func (m *Manager) IsRunning() bool {
	return m.running
}

// AddStrategy 托管一个新策略。源码先过安全检查，再装入沙箱。
// symbol 是该策略信号未指定标的时的默认股票代码。
func (m *Manager) AddStrategy(strategyID int, symbol, source string) error {
	report := m.checker.Check(source)
	if !report.Safe {
		return &models.ExecutionError{
			Reason: fmt.Sprintf("策略安全检查未通过: %s", report.Violations[0].Detail),
		}
	}

	a, err := adapter.New(strategyID, symbol, source, m.timeout)
	if err != nil {
		return err
	}

	m.strategies[strategyID] = a
	m.sources[strategyID] = source
	if _, ok := m.trades[strategyID]; !ok {
		m.trades[strategyID] = nil
	}
	logger.S().Infow("策略已添加", "strategy_id", strategyID)
	return nil
}

// RemoveStrategy 移除托管策略，交易记录保留
func (m *Manager) RemoveStrategy(strategyID int) bool {
	if _, ok := m.strategies[strategyID]; !ok {
		return false
	}
	delete(m.strategies, strategyID)
	delete(m.sources, strategyID)
	logger.S().Infow("策略已移除", "strategy_id", strategyID)
	return true
}

// ListStrategies 返回全部托管策略的编号（升序）
func (m *Manager) ListStrategies() []int {
	ids := make([]int, 0, len(m.strategies))
	for id := range m.strategies {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// ProcessBar 将一根K线分发给指定策略并处理其产生的订单。
// 未启动时直接忽略。
func (m *Manager) ProcessBar(strategyID int, bar models.Bar) (*ExecutionResult, error) {
	if !m.running {
		return nil, nil
	}
	a, ok := m.strategies[strategyID]
	if !ok {
		logger.S().Warnw("策略不存在", "strategy_id", strategyID)
		return nil, nil
	}

	order, _, err := a.ProcessBar(bar)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, nil
	}

	result := m.ExecuteTrade(order)
	return &result, nil
}

// ExecuteTrade 对一笔订单执行完整的成交流程：风控 -> 确认 -> 记账。
// 未成交（被拦截或等待确认）不是错误，由返回值表达。
func (m *Manager) ExecuteTrade(order *models.Order) ExecutionResult {
	decision := m.gate.Validate(order)
	if !decision.Passed {
		logger.S().Warnw("风控拦截", "reason", decision.Reason)
		return ExecutionResult{Reason: decision.Reason}
	}

	if !m.approved(order) {
		logger.S().Infow("需要手动确认",
			"symbol", order.Symbol, "value", order.Notional())
		return ExecutionResult{PassedRiskCheck: true, RequireApproval: true}
	}

	now := m.now()
	trade := models.Trade{
		ID:         string(base62.FormatInt(now.UnixNano())),
		Date:       order.Date,
		Action:     order.Action,
		Symbol:     order.Symbol,
		Price:      order.Price,
		Amount:     order.Amount,
		StrategyID: order.StrategyID,
		Timestamp:  now.Format(time.RFC3339),
	}
	m.trades[order.StrategyID] = append(m.trades[order.StrategyID], trade)

	m.gate.RecordTrade()
	m.updateCapital(order)
	m.persist(order.StrategyID)

	logger.S().Infow("交易执行成功",
		"strategy_id", order.StrategyID, "action", order.Action, "symbol", order.Symbol)
	return ExecutionResult{PassedRiskCheck: true, Executed: true, TradeID: trade.ID}
}

// GetTrades 返回某策略的全部成交记录
func (m *Manager) GetTrades(strategyID int) []models.Trade {
	return m.trades[strategyID]
}

// Gate 暴露内部风控验证器，供调用方喂入账户价值与昨收价
func (m *Manager) Gate() *risk.Gate {
	return m.gate
}

// RehydrateState 在进程重启后恢复一个策略：
// 从仓储读回成交记录并重放出持仓，当日买入重新登记T+1锁，
// 最后恢复沙箱内策略实例的属性快照。
func (m *Manager) RehydrateState(strategyID int) (map[string]*models.Position, error) {
	logger.S().Infow("开始恢复策略状态", "strategy_id", strategyID)
	a, ok := m.strategies[strategyID]
	if !ok {
		return nil, &models.ExecutionError{Reason: fmt.Sprintf("策略 %d 未托管", strategyID)}
	}

	if m.repo != nil {
		trades, err := m.repo.LoadTrades(strategyID)
		if err != nil {
			return nil, err
		}
		if trades != nil {
			m.trades[strategyID] = trades
		}
	}

	positions := RestorePositions(m.trades[strategyID])

	// 当日买入重新锁定
	today := m.now().Format("2006-01-02")
	for _, t := range m.trades[strategyID] {
		if t.Action == models.Buy && t.Date == today {
			a.Lock(t.Symbol, t.Amount, today)
		}
	}

	if m.repo != nil {
		state, err := m.repo.LoadAdapterState(strategyID)
		if err != nil {
			return nil, err
		}
		if state != nil {
			if err := a.RestoreState(state); err != nil {
				return nil, err
			}
		}
	}

	logger.S().Infow("策略状态恢复完成",
		"strategy_id", strategyID, "positions", len(positions))
	return positions, nil
}

// RestorePositions 从成交记录重放出当前持仓（均摊成本价），
// 持仓归零的标的被过滤掉。
func RestorePositions(trades []models.Trade) map[string]*models.Position {
	type acc struct {
		amount    int64
		totalCost float64
	}
	accs := make(map[string]*acc)
	for _, t := range trades {
		a := accs[t.Symbol]
		if a == nil {
			a = &acc{}
			accs[t.Symbol] = a
		}
		switch t.Action {
		case models.Buy:
			a.totalCost += float64(t.Amount) * t.Price
			a.amount += t.Amount
		case models.Sell:
			a.amount -= t.Amount
		}
	}

	positions := make(map[string]*models.Position)
	for sym, a := range accs {
		if a.amount <= 0 {
			continue
		}
		positions[sym] = &models.Position{
			Amount:  a.amount,
			AvgCost: a.totalCost / float64(a.amount),
		}
	}
	return positions
}

// approved 检查订单是否免确认：手动模式一律需要确认，
// 免确认模式下超过金额阈值的交易仍需确认。
func (m *Manager) approved(order *models.Order) bool {
	if m.cfg.RequireApproval {
		return false
	}
	return order.Notional() <= m.cfg.AutoApproveThreshold
}

func (m *Manager) updateCapital(order *models.Order) {
	switch order.Action {
	case models.Buy:
		m.capitals[order.StrategyID] += order.Notional()
	case models.Sell:
		m.capitals[order.StrategyID] -= order.Notional()
		if m.capitals[order.StrategyID] < 0 {
			m.capitals[order.StrategyID] = 0
		}
	}
	m.gate.UpdateStrategyCapital(order.StrategyID, m.capitals[order.StrategyID])
}

// persist 把成交记录与适配器快照写入仓储，失败只告警不中断交易
func (m *Manager) persist(strategyID int) {
	if m.repo == nil {
		return
	}
	if err := m.repo.SaveTrades(strategyID, m.trades[strategyID]); err != nil {
		logger.S().Errorw("保存成交记录失败", "strategy_id", strategyID, "err", err)
	}
	if a, ok := m.strategies[strategyID]; ok {
		if err := m.repo.SaveAdapterState(strategyID, a.GetState()); err != nil {
			logger.S().Errorw("保存策略快照失败", "strategy_id", strategyID, "err", err)
		}
	}
}
