package models

import "strings"

// StockType 表示股票所属的板块类别，决定涨跌停幅度
type StockType string

const (
	StockNormal StockType = "normal" // 普通股票 ±10%
	StockST     StockType = "st"     // ST股票 ±5%
	StockCYB    StockType = "cyb"    // 创业板 ±20%
	StockKCB    StockType = "kcb"    // 科创板 ±20%
)

// STKeywords 是ST/退市类股票的标识关键字
var STKeywords = []string{"ST", "*ST", "S*ST", "退市"}

// StockTypeOf 根据代码前缀和关键字判断股票类别
func StockTypeOf(symbol string) StockType {
	for _, kw := range STKeywords {
		if strings.Contains(symbol, kw) {
			return StockST
		}
	}
	if strings.HasPrefix(symbol, "SH688") {
		return StockKCB
	}
	if strings.HasPrefix(symbol, "SZ300") {
		return StockCYB
	}
	return StockNormal
}

// LimitRate 返回该类别股票的单日涨跌幅限制
func (t StockType) LimitRate() float64 {
	switch t {
	case StockST:
		return 0.05
	case StockCYB, StockKCB:
		return 0.20
	default:
		return 0.10
	}
}
