package storage

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"astock-strategy-bot-go/internal/models"
)

// CSV表头: date,open,high,low,close,volume
var barHeader = []string{"date", "open", "high", "low", "close", "volume"}

// LoadBars 从CSV文件加载日K线行情。
// volume为0的行保留（表示停牌），由引擎决定是否跳过。
func LoadBars(filePath string) ([]models.Bar, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("无法打开行情文件 %s: %v", filePath, err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("读取CSV失败: %v", err)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("行情文件为空: %s", filePath)
	}

	bars := make([]models.Bar, 0, len(records)-1)
	for i, rec := range records[1:] {
		if len(rec) < 6 {
			return nil, fmt.Errorf("第%d行字段不足: %v", i+2, rec)
		}
		bar := models.Bar{Date: rec[0]}
		fields := []struct {
			name string
			dst  *float64
		}{
			{"open", &bar.Open},
			{"high", &bar.High},
			{"low", &bar.Low},
			{"close", &bar.Close},
			{"volume", &bar.Volume},
		}
		for j, f := range fields {
			v, err := strconv.ParseFloat(rec[j+1], 64)
			if err != nil {
				return nil, fmt.Errorf("第%d行 %s 解析失败: %v", i+2, f.name, err)
			}
			*f.dst = v
		}
		bars = append(bars, bar)
	}
	return bars, nil
}

// SaveBars 将K线序列写入CSV文件，目录不存在时自动创建
func SaveBars(filePath string, bars []models.Bar) error {
	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return fmt.Errorf("无法创建目录: %v", err)
	}
	file, err := os.Create(filePath)
	if err != nil {
		return fmt.Errorf("无法创建文件 %s: %v", filePath, err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	if err := writer.Write(barHeader); err != nil {
		return err
	}
	for _, bar := range bars {
		record := []string{
			bar.Date,
			strconv.FormatFloat(bar.Open, 'f', -1, 64),
			strconv.FormatFloat(bar.High, 'f', -1, 64),
			strconv.FormatFloat(bar.Low, 'f', -1, 64),
			strconv.FormatFloat(bar.Close, 'f', -1, 64),
			strconv.FormatFloat(bar.Volume, 'f', -1, 64),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	return writer.Error()
}
