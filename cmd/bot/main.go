package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"astock-strategy-bot-go/internal/adapter"
	"astock-strategy-bot-go/internal/config"
	"astock-strategy-bot-go/internal/engine"
	"astock-strategy-bot-go/internal/logger"
	"astock-strategy-bot-go/internal/models"
	"astock-strategy-bot-go/internal/persistence"
	"astock-strategy-bot-go/internal/reporter"
	"astock-strategy-bot-go/internal/risk"
	"astock-strategy-bot-go/internal/safety"
	"astock-strategy-bot-go/internal/storage"
	"astock-strategy-bot-go/internal/trading"

	"github.com/joho/godotenv"
)

// extractSymbolFromPath 从数据文件路径中提取股票代码
// 例如: "data/SH600000-2024-01-01-2024-12-31.csv" -> "SH600000"
func extractSymbolFromPath(path string) string {
	name := strings.TrimSuffix(path, ".csv")
	parts := strings.Split(name, "/")
	fileName := parts[len(parts)-1]

	symbolParts := strings.Split(fileName, "-")
	if len(symbolParts) > 0 {
		return symbolParts[0]
	}
	return ""
}

func main() {
	// --- 命令行参数定义 ---
	configPath := flag.String("config", "config.json", "path to the config file")
	mode := flag.String("mode", "backtest", "running mode: backtest or papertrade")
	dataPath := flag.String("data", "", "path to historical data file (CSV)")
	strategyPath := flag.String("strategy", "", "path to the strategy source file (JS)")
	symbol := flag.String("symbol", "", "symbol override (e.g., SH600000)")
	flag.Parse()

	// --- 初始化日志 (提前) ---
	// 加载配置前就可能需要记录日志，先用默认配置初始化一次
	logger.InitLogger(models.LogConfig{Level: "info", Output: "console"})

	// --- 加载 .env 文件 ---
	if err := godotenv.Load(); err != nil {
		logger.S().Info("未找到 .env 文件，将从系统环境变量中读取。")
	} else {
		logger.S().Info("成功从 .env 文件加载配置。")
	}

	// --- 加载 JSON 配置 ---
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.S().Fatalf("无法加载配置文件: %v", err)
	}

	// --- 使用文件中的配置重新初始化日志 ---
	logger.InitLogger(cfg.LogConfig)
	defer logger.S().Sync()

	source, backtestSymbol, err := loadInputs(cfg, *strategyPath, *dataPath, *symbol)
	if err != nil {
		logger.S().Fatal(err)
	}

	// --- 策略代码安全检查 ---
	checker := safety.NewChecker(cfg.Sandbox.MaxComplexity)
	report := checker.Check(source)
	if !report.Safe {
		for _, v := range report.Violations {
			logger.S().Errorw("安全检查违规", "kind", v.Kind, "detail", v.Detail)
		}
		logger.S().Fatal("策略代码未通过安全检查，拒绝运行。")
	}
	logger.S().Infof("安全检查通过，圈复杂度 %d。", report.Complexity)

	// --- 根据模式执行 ---
	switch *mode {
	case "backtest":
		runBacktestMode(cfg, source, backtestSymbol, *dataPath)
	case "papertrade":
		runPaperTradeMode(cfg, source, backtestSymbol, *dataPath)
	default:
		logger.S().Fatalf("未知的运行模式: %s。请选择 'backtest' 或 'papertrade'。", *mode)
	}
}

// loadInputs 读入策略源码并确定股票代码
func loadInputs(cfg *models.Config, strategyPath, dataPath, symbolFlag string) (string, string, error) {
	if strategyPath == "" {
		return "", "", fmt.Errorf("必须通过 --strategy 指定策略文件")
	}
	if dataPath == "" {
		return "", "", fmt.Errorf("必须通过 --data 指定行情数据文件")
	}

	code, err := os.ReadFile(strategyPath)
	if err != nil {
		return "", "", fmt.Errorf("无法读取策略文件: %v", err)
	}

	symbol := symbolFlag
	if symbol == "" {
		symbol = extractSymbolFromPath(dataPath)
	}
	if symbol == "" {
		symbol = cfg.Symbol
	}
	if symbol == "" {
		return "", "", fmt.Errorf("无法确定股票代码，请通过 --symbol 指定")
	}
	return string(code), symbol, nil
}

// runBacktestMode 对历史行情执行一次完整回测并打印报告
func runBacktestMode(cfg *models.Config, source, symbol, dataPath string) {
	logger.S().Info("--- 启动回测模式 ---")

	bars, err := storage.LoadBars(dataPath)
	if err != nil {
		logger.S().Fatalf("加载行情数据失败: %v", err)
	}

	timeout := time.Duration(cfg.Sandbox.TimeoutMs) * time.Millisecond
	a, err := adapter.New(1, symbol, source, timeout)
	if err != nil {
		logger.S().Fatalf("装载策略失败: %v", err)
	}

	gate := risk.NewGate(cfg.InitialCash, cfg.Risk)
	eng := engine.New(cfg.InitialCash, cfg.Engine).WithGate(gate)

	result, err := eng.Run(a, bars, symbol)
	if err != nil {
		logger.S().Fatalf("回测失败: %v", err)
	}

	reporter.PrintReport(symbol, cfg.InitialCash, result)
}

// runPaperTradeMode 以模拟盘方式重放行情：订单过风控与确认流程，
// 成交记录和策略快照持久化，便于中断后续传。
func runPaperTradeMode(cfg *models.Config, source, symbol, dataPath string) {
	logger.S().Info("--- 启动模拟盘模式 ---")

	bars, err := storage.LoadBars(dataPath)
	if err != nil {
		logger.S().Fatalf("加载行情数据失败: %v", err)
	}

	repo, err := persistence.NewBadgerRepository(cfg.DBPath)
	if err != nil {
		logger.S().Fatalf("打开状态数据库失败: %v", err)
	}
	defer repo.Close()

	manager := trading.NewManager(cfg.InitialCash, cfg.Trading, cfg.Risk, cfg.Sandbox, repo)

	const strategyID = 1
	if err := manager.AddStrategy(strategyID, symbol, source); err != nil {
		logger.S().Fatalf("添加策略失败: %v", err)
	}

	// 断点续传：恢复持仓、T+1锁与策略内部状态
	if positions, err := manager.RehydrateState(strategyID); err != nil {
		logger.S().Warnf("恢复策略状态失败: %v，将以全新状态启动。", err)
	} else if len(positions) > 0 {
		for sym, pos := range positions {
			logger.S().Infow("恢复持仓", "symbol", sym, "amount", pos.Amount, "avg_cost", pos.AvgCost)
		}
	}

	manager.Start()
	defer manager.Stop()

	prevClose := 0.0
	for _, bar := range bars {
		if bar.Suspended() {
			continue
		}
		if prevClose > 0 {
			manager.Gate().UpdatePrevClose(symbol, prevClose)
		}
		if _, err := manager.ProcessBar(strategyID, bar); err != nil {
			logger.S().Warnw("策略执行失败，跳过本根K线", "date", bar.Date, "err", err)
		}
		prevClose = bar.Close
	}

	trades := manager.GetTrades(strategyID)
	logger.S().Infof("模拟盘结束，共成交 %d 笔。", len(trades))
}
