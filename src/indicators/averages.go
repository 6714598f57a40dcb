package indicators

import (
	"equitybot/src/market"

	talib "github.com/markcheno/go-talib"
	"github.com/shopspring/decimal"
)

// EMA 收盘价指数均线的最新值，数据不足 period 时按实际长度计算
func EMA(w market.Window, period int) decimal.Decimal {
	if len(w) == 0 || period <= 0 {
		return decimal.Zero
	}
	if period > len(w) {
		period = len(w)
	}
	out := talib.Ema(w.Closes(), period)
	return decimal.NewFromFloat(out[len(out)-1])
}

// ATR 平均真实波幅的最新值
func ATR(w market.Window, period int) decimal.Decimal {
	period = w.ClampPeriod(period)
	if period <= 0 {
		return decimal.Zero
	}
	out := talib.Atr(w.Highs(), w.Lows(), w.Closes(), period)
	return decimal.NewFromFloat(out[len(out)-1])
}

// HighOfCloses 当前K线之前 period 根的最高收盘价
func HighOfCloses(w market.Window, period int) decimal.Decimal {
	return w.Completed().Tail(w.ClampPeriod(period)).MaxClose()
}

// LowOfLows 当前K线之前 period 根的最低价
func LowOfLows(w market.Window, period int) decimal.Decimal {
	return w.Completed().Tail(w.ClampPeriod(period)).MinLow()
}

// RateOfChange 当前收盘相对 period 根之前收盘的涨跌幅
func RateOfChange(w market.Window, period int) decimal.Decimal {
	period = w.ClampPeriod(period)
	if period <= 0 {
		return decimal.Zero
	}
	base := w.FromEnd(period).Close
	if !base.IsPositive() {
		return decimal.Zero
	}
	return w.Last().Close.Sub(base).Div(base)
}

// RateOfChangeFromHigh 当前收盘相对最近 period 根最高价的涨跌幅，用于加仓
func RateOfChangeFromHigh(w market.Window, period int) decimal.Decimal {
	high := w.Completed().Tail(w.ClampPeriod(period)).MaxHigh()
	if !high.IsPositive() {
		return decimal.Zero
	}
	return w.Last().Close.Sub(high).Div(high)
}
