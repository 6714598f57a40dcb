package indicators

import (
	"equitybot/src/market"
	"equitybot/src/timeframes"

	"github.com/shopspring/decimal"
)

// AmountGrinding 不含正在形成的K线，最近 period 根成交额（volume*close）逐根不减
func AmountGrinding(w market.Window, period int) bool {
	done := w.Completed()
	tail := done.Tail(done.ClampPeriod(period) + 1)
	if len(tail) < 2 {
		return false
	}
	for i := 1; i < len(tail); i++ {
		if tail[i].Amount().LessThan(tail[i-1].Amount()) {
			return false
		}
	}
	return true
}

// HasVolume 长短两个重叠窗口的平均量都要达到时段阈值*scale
func HasVolume(w market.Window, scale, period int, class timeframes.HourClass, p *Params) bool {
	period = w.ClampPeriod(period)
	if period <= 0 {
		return false
	}
	minVolume, ok := p.MinVolume.Of(class)
	if !ok {
		return false
	}
	threshold := dec(minVolume * float64(scale))

	long := w.Tail(period).AverageVolume()
	short := w.Tail((period + 1) / 2).AverageVolume()
	if !long.IsPositive() || !short.IsPositive() {
		return false
	}
	return long.GreaterThanOrEqual(threshold) && short.GreaterThanOrEqual(threshold)
}

// RelativeVolume 相邻/三根组量比，任一超过阈值即为放量
func RelativeVolume(w market.Window, p *Params) bool {
	ratio := dec(p.RelativeVolumeRatio)
	exceeds := func(num, den decimal.Decimal) bool {
		if !den.IsPositive() {
			return false
		}
		return num.Div(den).GreaterThan(ratio)
	}

	vol := func(n int) decimal.Decimal {
		b := w.FromEnd(n)
		if b == nil {
			return decimal.Zero
		}
		return b.Volume
	}

	if len(w) >= 2 && exceeds(vol(0), vol(1)) {
		return true
	}
	if len(w) >= 3 && exceeds(vol(1), vol(2)) {
		return true
	}
	if len(w) >= 6 {
		recent := vol(0).Add(vol(1)).Add(vol(2))
		prior := vol(3).Add(vol(4)).Add(vol(5))
		if exceeds(recent, prior) {
			return true
		}
	}
	return false
}

// VolumeForPositionSize 最近 period 根平均量需达到 仓位股数*倍数*时段系数
func VolumeForPositionSize(w market.Window, period int, qty decimal.Decimal, class timeframes.HourClass, p *Params) bool {
	period = w.ClampPeriod(period)
	if period <= 0 {
		return false
	}
	scale, ok := p.VolumePositionScale.Of(class)
	if !ok {
		return false
	}
	required := qty.Mul(dec(p.VolumePositionMultiple * scale))
	return w.Completed().Tail(period).AverageVolume().GreaterThanOrEqual(required)
}
