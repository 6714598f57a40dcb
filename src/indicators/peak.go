package indicators

import (
	"equitybot/src/market"
)

// AtPeak 放量见顶后反转：
// 倒数第二根为阴线；倒数第三根为阳线、是窗口最高、涨幅达到 AtPeakGain；
// 其成交量大于阴线、大于之前 AtPeakShortPeriod 根的均量且大于其中每一根；
// 截至阴线的 AtPeakClimaxPeriod 根均量超过之前同样长度均量的 AtPeakClimaxRatio 倍。
func AtPeak(w market.Window, p *Params) bool {
	n := len(w)
	if n < 4 {
		return false
	}
	red, peak := w[n-2], w[n-3]

	if !red.IsRed() || !peak.IsGreen() {
		return false
	}
	if peak.High.LessThan(w.MaxHigh()) {
		return false
	}
	if peak.Gain().LessThan(dec(p.AtPeakGain)) {
		return false
	}
	if !peak.Volume.GreaterThan(red.Volume) {
		return false
	}

	before := w[:n-3].Tail(p.AtPeakShortPeriod)
	if !peak.Volume.GreaterThan(before.AverageVolume()) {
		return false
	}
	for _, b := range before {
		if !peak.Volume.GreaterThan(b.Volume) {
			return false
		}
	}

	upToRed := w[:n-1]
	recent := upToRed.Tail(p.AtPeakClimaxPeriod)
	prior := upToRed[:len(upToRed)-len(recent)].Tail(p.AtPeakClimaxPeriod)
	if len(prior) == 0 || !prior.AverageVolume().IsPositive() {
		return false
	}
	return recent.AverageVolume().GreaterThan(prior.AverageVolume().Mul(dec(p.AtPeakClimaxRatio)))
}
