package engine

import (
	"errors"
	"math"
	"time"

	"astock-strategy-bot-go/internal/adapter"
	"astock-strategy-bot-go/internal/logger"
	"astock-strategy-bot-go/internal/models"
	"astock-strategy-bot-go/internal/risk"
)

// State 表示引擎的运行阶段
type State string

const (
	StateInitialized State = "initialized"
	StateRunning     State = "running"
	StateCompleted   State = "completed"
)

// Result 是一次回测的完整产出
type Result struct {
	Metrics         models.Metrics `json:"metrics"`
	Trades          []models.Trade `json:"trades"`
	PortfolioValues []float64      `json:"portfolio_values"`
}

// Engine 是逐K线回测引擎，内置A股市场规则。
//
// 启用市场规则时：停牌K线直接跳过、成交价带方向性滑点、
// 卖出收取印花税、涨停拦截买入、跌停拦截卖出。
// 可选组合一个风控验证器，订单先过风控再进账本。
//
// 资金账本满足守恒：任意时刻 cash + Σ(持仓×现价) 的变动
// 完全来自成交价差和税费。
type Engine struct {
	cfg         models.EngineConfig
	initialCash float64
	gate        *risk.Gate

	state           State
	cash            float64
	positions       map[string]*models.Position
	trades          []models.Trade
	portfolioValues []float64
	prevClose       float64
	strategyCapital float64
}

// New 创建回测引擎
func New(initialCash float64, cfg models.EngineConfig) *Engine {
	return &Engine{
		cfg:         cfg,
		initialCash: initialCash,
		state:       StateInitialized,
	}
}

// WithGate 组合一个风控验证器，订单在执行前先经过7层验证
func (e *Engine) WithGate(g *risk.Gate) *Engine {
	e.gate = g
	return e
}

// CurrentState 返回引擎当前阶段
func (e *Engine) CurrentState() State {
	return e.state
}

// RunSource 直接从策略源码启动回测，适配器在内部构造。
// timeout 是沙箱单次调用的墙钟预算。
func (e *Engine) RunSource(source, symbol string, bars []models.Bar, timeout time.Duration) (*Result, error) {
	a, err := adapter.New(1, symbol, source, timeout)
	if err != nil {
		return nil, err
	}
	return e.Run(a, bars, symbol)
}

// Run 对一段行情执行回测。
//
// 单根K线的策略执行失败（异常/超时）只跳过该K线；
// 订单验证失败（如买入数量不是100的整数倍）属于策略逻辑缺陷，
// 中止整个回测并返回错误。
func (e *Engine) Run(a *adapter.Adapter, bars []models.Bar, symbol string) (*Result, error) {
	logger.S().Infow("开始回测", "symbol", symbol, "bars", len(bars))
	e.reset()
	e.state = StateRunning

	for _, bar := range bars {
		// 停牌跳过
		if e.cfg.EnableMarketRules && bar.Suspended() {
			logger.S().Debugw("停牌，跳过", "date", bar.Date)
			continue
		}

		if e.gate != nil {
			// 每根K线是一个交易日：当日起始价值取前一日收盘后的账户价值
			last := e.portfolioValues[len(e.portfolioValues)-1]
			e.gate.UpdateDailyStartValue(last)
			e.gate.UpdateAccountValue(last)
			if e.prevClose > 0 {
				e.gate.UpdatePrevClose(symbol, e.prevClose)
			}
		}

		order, _, err := a.ProcessBar(bar)
		if err != nil {
			var valErr *models.OrderValidationError
			if errors.As(err, &valErr) {
				e.state = StateCompleted
				return nil, err
			}
			// 执行失败不中止回测
			logger.S().Warnw("策略执行失败，跳过本根K线", "date", bar.Date, "err", err)
		}

		if order != nil {
			e.tryExecute(order, bar)
		}

		e.portfolioValues = append(e.portfolioValues, e.portfolioValue(bar.Close))
		e.prevClose = bar.Close
	}

	e.state = StateCompleted
	result := &Result{
		Metrics:         e.calculateMetrics(len(bars)),
		Trades:          e.trades,
		PortfolioValues: e.portfolioValues,
	}
	logger.S().Infow("回测完成",
		"trades", result.Metrics.TotalTrades, "final_value", result.Metrics.FinalValue)
	return result, nil
}

func (e *Engine) reset() {
	e.cash = e.initialCash
	e.positions = make(map[string]*models.Position)
	e.trades = nil
	e.portfolioValues = []float64{e.initialCash}
	e.prevClose = 0
	e.strategyCapital = 0
}

// tryExecute 先过风控（如有），再进入账本
func (e *Engine) tryExecute(order *models.Order, bar models.Bar) {
	if e.gate != nil {
		decision := e.gate.Validate(order)
		if !decision.Passed {
			logger.S().Infow("订单被风控拦截", "date", bar.Date, "reason", decision.Reason)
			return
		}
	}
	if !e.executeOrder(order) {
		return
	}
	if e.gate != nil {
		e.gate.RecordTrade()
		e.gate.UpdateStrategyCapital(order.StrategyID, e.strategyCapital)
		e.gate.UpdateAccountValue(e.portfolioValue(bar.Close))
	}
}

// executeOrder 将订单写入账本，返回是否成交。
// 资金不足、持仓不足、触及涨跌停都只是未成交，不是错误。
func (e *Engine) executeOrder(order *models.Order) bool {
	price := order.Price

	if e.cfg.EnableMarketRules && e.prevClose > 0 {
		limitRate := models.StockTypeOf(order.Symbol).LimitRate()
		if order.Action == models.Buy && e.atLimit(order.Price, e.prevClose*(1+limitRate)) {
			logger.S().Warnw("涨停板，买入未成交", "symbol", order.Symbol, "price", order.Price)
			return false
		}
		if order.Action == models.Sell && e.atLimit(order.Price, e.prevClose*(1-limitRate)) {
			logger.S().Warnw("跌停板，卖出未成交", "symbol", order.Symbol, "price", order.Price)
			return false
		}
	}

	if e.cfg.EnableMarketRules {
		price = e.applySlippage(price, order.Action == models.Buy)
	}

	switch order.Action {
	case models.Buy:
		return e.executeBuy(order, price)
	case models.Sell:
		return e.executeSell(order, price)
	}
	return false
}

func (e *Engine) executeBuy(order *models.Order, price float64) bool {
	cost := price * float64(order.Amount)
	commission := e.commission(cost)
	totalCost := cost + commission

	if totalCost > e.cash {
		logger.S().Warnw("资金不足", "cash", e.cash, "need", totalCost)
		return false
	}

	e.cash -= totalCost
	pos := e.positions[order.Symbol]
	if pos == nil {
		pos = &models.Position{}
		e.positions[order.Symbol] = pos
	}
	// 平均成本含佣金
	newAmount := pos.Amount + order.Amount
	pos.AvgCost = (pos.AvgCost*float64(pos.Amount) + totalCost) / float64(newAmount)
	pos.Amount = newAmount
	e.strategyCapital += totalCost

	e.trades = append(e.trades, models.Trade{
		Date:       order.Date,
		Action:     models.Buy,
		Symbol:     order.Symbol,
		Price:      price,
		Amount:     order.Amount,
		Commission: commission,
		Cost:       totalCost,
		StrategyID: order.StrategyID,
	})
	logger.S().Debugw("买入", "symbol", order.Symbol, "amount", order.Amount, "price", price)
	return true
}

func (e *Engine) executeSell(order *models.Order, price float64) bool {
	pos := e.positions[order.Symbol]
	if pos == nil || pos.Amount < order.Amount {
		held := int64(0)
		if pos != nil {
			held = pos.Amount
		}
		logger.S().Warnw("持仓不足", "position", held, "sell", order.Amount)
		return false
	}

	revenue := price * float64(order.Amount)
	commission := e.commission(revenue)
	tax := 0.0
	if e.cfg.EnableMarketRules {
		tax = revenue * e.cfg.StampDutyRate
	}
	fees := commission + tax
	netRevenue := revenue - fees

	e.cash += netRevenue
	pos.Amount -= order.Amount
	if pos.Amount == 0 {
		delete(e.positions, order.Symbol)
	}
	e.strategyCapital = math.Max(0, e.strategyCapital-netRevenue)

	// 盈亏对照最近一笔同标的买入的成交价
	profit := 0.0
	for i := len(e.trades) - 1; i >= 0; i-- {
		t := e.trades[i]
		if t.Action == models.Buy && t.Symbol == order.Symbol {
			profit = (price-t.Price)*float64(order.Amount) - fees
			break
		}
	}

	e.trades = append(e.trades, models.Trade{
		Date:       order.Date,
		Action:     models.Sell,
		Symbol:     order.Symbol,
		Price:      price,
		Amount:     order.Amount,
		Commission: commission,
		Tax:        tax,
		Revenue:    netRevenue,
		Profit:     profit,
		StrategyID: order.StrategyID,
	})
	logger.S().Debugw("卖出",
		"symbol", order.Symbol, "amount", order.Amount, "price", price, "profit", profit)
	return true
}

// portfolioValue 按当前价格计算账户总价值
func (e *Engine) portfolioValue(currentPrice float64) float64 {
	value := e.cash
	for _, pos := range e.positions {
		value += float64(pos.Amount) * currentPrice
	}
	return value
}

// atLimit 判断价格是否触及涨跌停价（绝对容差，单位元）
func (e *Engine) atLimit(price, limitPrice float64) bool {
	return math.Abs(price-limitPrice) < e.cfg.PriceLimitTolerance
}

// applySlippage 买入上浮、卖出下调
func (e *Engine) applySlippage(price float64, isBuy bool) float64 {
	if isBuy {
		return price * (1 + e.cfg.SlippageRate)
	}
	return price * (1 - e.cfg.SlippageRate)
}

// commission 按费率计算佣金，不低于最低佣金
func (e *Engine) commission(notional float64) float64 {
	return math.Max(notional*e.cfg.CommissionRate, e.cfg.MinCommission)
}
