package market

import (
	"time"

	"github.com/shopspring/decimal"
)

// BarInterval 基础K线周期
const BarInterval = time.Minute

// ClosedAsOf now 时刻已收盘K线的最晚开盘时间，开盘时间晚于它的K线还在形成
func ClosedAsOf(now time.Time) time.Time {
	return now.Add(-BarInterval)
}

// Bar 标准化的K线，时间为开盘时间，记录后不再修改
type Bar struct {
	Time   time.Time       `json:"time"`   // 开盘时间
	Open   decimal.Decimal `json:"open"`   // 开盘价
	High   decimal.Decimal `json:"high"`   // 最高价
	Low    decimal.Decimal `json:"low"`    // 最低价
	Close  decimal.Decimal `json:"close"`  // 收盘价
	Volume decimal.Decimal `json:"volume"` // 成交量
	VWAP   decimal.Decimal `json:"vwap"`   // 成交量加权均价，由行情源提供
}

// IsGreen 阳线
func (b *Bar) IsGreen() bool {
	return b.Close.GreaterThan(b.Open)
}

// IsRed 阴线
func (b *Bar) IsRed() bool {
	return b.Close.LessThan(b.Open)
}

// IsFlat 一字线 O=H=L=C
func (b *Bar) IsFlat() bool {
	return b.Open.Equal(b.High) && b.High.Equal(b.Low) && b.Low.Equal(b.Close)
}

// Body 实体长度
func (b *Bar) Body() decimal.Decimal {
	return b.Close.Sub(b.Open).Abs()
}

// Range 振幅 high-low
func (b *Bar) Range() decimal.Decimal {
	return b.High.Sub(b.Low)
}

// UpperWick 上影线
func (b *Bar) UpperWick() decimal.Decimal {
	return b.High.Sub(decimal.Max(b.Open, b.Close))
}

// LowerWick 下影线
func (b *Bar) LowerWick() decimal.Decimal {
	return decimal.Min(b.Open, b.Close).Sub(b.Low)
}

// BodyBottom 实体下沿
func (b *Bar) BodyBottom() decimal.Decimal {
	return decimal.Min(b.Open, b.Close)
}

// Amount 成交额近似 volume*close
func (b *Bar) Amount() decimal.Decimal {
	return b.Volume.Mul(b.Close)
}

// Gain 涨幅 (close-open)/open
func (b *Bar) Gain() decimal.Decimal {
	if b.Open.IsZero() {
		return decimal.Zero
	}
	return b.Close.Sub(b.Open).Div(b.Open)
}
