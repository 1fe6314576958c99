package reporter

import (
	"fmt"
	"io"
	"os"

	"astock-strategy-bot-go/internal/engine"
	"astock-strategy-bot-go/internal/models"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// PrintReport 将一次回测的指标与成交记录以表格形式输出到标准输出
func PrintReport(symbol string, initialCash float64, result *engine.Result) {
	WriteReport(os.Stdout, symbol, initialCash, result)
}

// WriteReport 输出回测报告到指定Writer
func WriteReport(w io.Writer, symbol string, initialCash float64, result *engine.Result) {
	writeMetrics(w, symbol, initialCash, result.Metrics)
	if len(result.Trades) > 0 {
		writeTrades(w, result.Trades)
	}
}

func writeMetrics(w io.Writer, symbol string, initialCash float64, m models.Metrics) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle("回测结果报告 - %s", symbol)
	t.AppendRows([]table.Row{
		{"初始资金", fmt.Sprintf("%.2f 元", initialCash)},
		{"期末总资产", fmt.Sprintf("%.2f 元", m.FinalValue)},
		{"总收益率", fmt.Sprintf("%.2f%%", m.TotalReturn*100)},
		{"年化收益率", fmt.Sprintf("%.2f%%", m.AnnualReturn*100)},
	})
	t.AppendSeparator()
	t.AppendRows([]table.Row{
		{"最大回撤", fmt.Sprintf("%.2f%%", m.MaxDrawdown*100)},
		{"夏普比率", fmt.Sprintf("%.2f", m.SharpeRatio)},
		{"胜率", fmt.Sprintf("%.2f%%", m.WinRate*100)},
		{"总交易次数", m.TotalTrades},
	})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight},
	})
	t.Render()
}

func writeTrades(w io.Writer, trades []models.Trade) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle("成交明细")
	t.AppendHeader(table.Row{"日期", "方向", "代码", "价格", "数量", "佣金", "印花税", "盈亏"})
	for _, tr := range trades {
		action := "买入"
		if tr.Action == models.Sell {
			action = "卖出"
		}
		t.AppendRow(table.Row{
			tr.Date,
			action,
			tr.Symbol,
			fmt.Sprintf("%.3f", tr.Price),
			tr.Amount,
			fmt.Sprintf("%.2f", tr.Commission),
			fmt.Sprintf("%.2f", tr.Tax),
			fmt.Sprintf("%.2f", tr.Profit),
		})
	}
	t.Render()
}
