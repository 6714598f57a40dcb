package market

import (
	"github.com/shopspring/decimal"
)

// Window 按时间升序的K线序列，最后一根为最新（可能仍在形成中）
type Window []*Bar

// Last 最新一根
func (w Window) Last() *Bar {
	if len(w) == 0 {
		return nil
	}
	return w[len(w)-1]
}

// Prev 倒数第二根
func (w Window) Prev() *Bar {
	return w.FromEnd(1)
}

// FromEnd 倒数第 n+1 根，n=0 即 Last
func (w Window) FromEnd(n int) *Bar {
	i := len(w) - 1 - n
	if i < 0 || i >= len(w) {
		return nil
	}
	return w[i]
}

// Tail 最后 n 根，不足时返回全部
func (w Window) Tail(n int) Window {
	if n >= len(w) {
		return w
	}
	if n <= 0 {
		return Window{}
	}
	return w[len(w)-n:]
}

// Completed 去掉正在形成的最后一根
func (w Window) Completed() Window {
	if len(w) == 0 {
		return w
	}
	return w[:len(w)-1]
}

// ClampPeriod 周期超过窗口时截断到 len-1
func (w Window) ClampPeriod(period int) int {
	if period > len(w)-1 {
		period = len(w) - 1
	}
	if period < 0 {
		period = 0
	}
	return period
}

// Closes 收盘价序列，给 talib 使用
func (w Window) Closes() []float64 {
	out := make([]float64, len(w))
	for i, b := range w {
		out[i] = b.Close.InexactFloat64()
	}
	return out
}

// Highs 最高价序列
func (w Window) Highs() []float64 {
	out := make([]float64, len(w))
	for i, b := range w {
		out[i] = b.High.InexactFloat64()
	}
	return out
}

// Lows 最低价序列
func (w Window) Lows() []float64 {
	out := make([]float64, len(w))
	for i, b := range w {
		out[i] = b.Low.InexactFloat64()
	}
	return out
}

// CloseValues 收盘价 decimal 序列
func (w Window) CloseValues() []decimal.Decimal {
	out := make([]decimal.Decimal, len(w))
	for i, b := range w {
		out[i] = b.Close
	}
	return out
}

// AverageVolume 平均成交量，空窗口为0
func (w Window) AverageVolume() decimal.Decimal {
	if len(w) == 0 {
		return decimal.Zero
	}
	sum := decimal.Zero
	for _, b := range w {
		sum = sum.Add(b.Volume)
	}
	return sum.Div(decimal.NewFromInt(int64(len(w))))
}

// AverageRange 平均振幅
func (w Window) AverageRange() decimal.Decimal {
	if len(w) == 0 {
		return decimal.Zero
	}
	sum := decimal.Zero
	for _, b := range w {
		sum = sum.Add(b.Range())
	}
	return sum.Div(decimal.NewFromInt(int64(len(w))))
}

// MaxHigh 最高价
func (w Window) MaxHigh() decimal.Decimal {
	if len(w) == 0 {
		return decimal.Zero
	}
	m := w[0].High
	for _, b := range w[1:] {
		m = decimal.Max(m, b.High)
	}
	return m
}

// MaxClose 最高收盘价
func (w Window) MaxClose() decimal.Decimal {
	if len(w) == 0 {
		return decimal.Zero
	}
	m := w[0].Close
	for _, b := range w[1:] {
		m = decimal.Max(m, b.Close)
	}
	return m
}

// MinLow 最低价
func (w Window) MinLow() decimal.Decimal {
	if len(w) == 0 {
		return decimal.Zero
	}
	m := w[0].Low
	for _, b := range w[1:] {
		m = decimal.Min(m, b.Low)
	}
	return m
}
