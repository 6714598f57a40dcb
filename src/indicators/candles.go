package indicators

import (
	"equitybot/src/market"

	"github.com/shopspring/decimal"
)

// Volatility 最近 period 根出现足够多一字线，或不同价位过少，视为无波动
func Volatility(w market.Window, period int, p *Params) bool {
	tail := w.Tail(period)
	if len(tail) == 0 {
		return false
	}

	flat := 0
	levels := make(map[string]struct{})
	for _, b := range tail {
		if b.IsFlat() {
			flat++
		}
		for _, px := range []decimal.Decimal{b.Open, b.High, b.Low, b.Close} {
			levels[px.String()] = struct{}{}
		}
	}

	if flat >= p.FlatBarLimit {
		return false
	}
	return len(levels) >= p.MinPriceLevels
}

// LargestCandleIsGreen 最大阳线实体大于最大阴线实体
func LargestCandleIsGreen(w market.Window, period int) bool {
	maxGreen, maxRed := decimal.Zero, decimal.Zero
	for _, b := range w.Tail(period) {
		switch {
		case b.IsGreen():
			maxGreen = decimal.Max(maxGreen, b.Body())
		case b.IsRed():
			maxRed = decimal.Max(maxRed, b.Body())
		}
	}
	return maxGreen.IsPositive() && maxGreen.GreaterThan(maxRed)
}

func greenFraction(w market.Window, period int) float64 {
	tail := w.Tail(period)
	if len(tail) == 0 {
		return 0
	}
	green := 0
	for _, b := range tail {
		if b.IsGreen() {
			green++
		}
	}
	return float64(green) / float64(len(tail))
}

// MoreGreen 阳线占比不低于 MoreGreenRatio
func MoreGreen(w market.Window, period int, p *Params) bool {
	return greenFraction(w, period) >= p.MoreGreenRatio
}

// MostGreen 阳线占比不低于 MostGreenRatio
func MostGreen(w market.Window, period int, p *Params) bool {
	return greenFraction(w, period) >= p.MostGreenRatio
}

// HasLongWickUp 找到 count 根长上影K线即为真
func HasLongWickUp(w market.Window, period, count int, p *Params) bool {
	period = w.ClampPeriod(period)
	if period <= 0 || count <= 0 {
		return false
	}
	tail := w.Tail(period + 1)
	avgRange := tail[1:].AverageRange()

	found := 0
	for i := 1; i < len(tail); i++ {
		b, prev := tail[i], tail[i-1]
		if !b.Range().GreaterThan(avgRange.Mul(dec(p.RangeAvgScale))) {
			continue
		}
		if !b.Range().GreaterThan(prev.Range().Mul(dec(p.RangePrevScale))) {
			continue
		}
		upper, lower := b.UpperWick(), b.LowerWick()
		if !upper.GreaterThan(b.Body()) {
			continue
		}
		if lower.IsPositive() && upper.Div(lower).LessThan(dec(p.WickUpRatio)) {
			continue
		}
		found++
		if found >= count {
			return true
		}
	}
	return false
}

// BearishCandle 阴线且实体占振幅比例达到阈值
func BearishCandle(b *market.Bar, p *Params) bool {
	if b == nil || !b.IsRed() || !b.Range().IsPositive() {
		return false
	}
	return b.Body().Div(b.Range()).GreaterThanOrEqual(dec(p.BearishBodyRatio))
}

// Reversal 最新阴线收在前一根实体中点之下，且实体明显大于近期平均实体
func Reversal(w market.Window, period int, p *Params) bool {
	last, prev := w.Last(), w.Prev()
	if last == nil || prev == nil || !last.IsRed() {
		return false
	}

	mid := prev.Open.Add(prev.Close).Div(decimal.NewFromInt(2))
	if !last.Close.LessThan(mid) {
		return false
	}

	history := w.Completed().Tail(w.ClampPeriod(period))
	if len(history) == 0 {
		return false
	}
	sum := decimal.Zero
	for _, b := range history {
		sum = sum.Add(b.Body())
	}
	avg := sum.Div(decimal.NewFromInt(int64(len(history))))
	return last.Body().GreaterThanOrEqual(avg.Mul(dec(p.ReversalBodyRate)))
}
