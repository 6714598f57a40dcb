package market

import (
	"time"

	"github.com/shopspring/decimal"
)

// NewTestBar 创建测试K线，vwap 默认取 (h+l+c)/3
func NewTestBar(t time.Time, open, high, low, close, volume float64) *Bar {
	return &Bar{
		Time:   t,
		Open:   decimal.NewFromFloat(open),
		High:   decimal.NewFromFloat(high),
		Low:    decimal.NewFromFloat(low),
		Close:  decimal.NewFromFloat(close),
		Volume: decimal.NewFromFloat(volume),
		VWAP:   decimal.NewFromFloat((high + low + close) / 3),
	}
}

// CreateTestSeries 从 start 开始每分钟一根，按收盘价生成小幅阳线
func CreateTestSeries(start time.Time, closes []float64, volume float64) Window {
	w := make(Window, 0, len(closes))
	for i, c := range closes {
		open := c * 0.998
		w = append(w, NewTestBar(start.Add(time.Duration(i)*time.Minute), open, c*1.001, open*0.999, c, volume))
	}
	return w
}
