package indicators

import (
	"time"

	"equitybot/src/market"
	"equitybot/src/timeframes"
)

// BarsUpdated 最新K线开盘时间距 now 不超过 60*scale 秒
func BarsUpdated(w market.Window, scale int, now time.Time) bool {
	last := w.Last()
	if last == nil {
		return false
	}
	age := now.Sub(last.Time)
	return age >= 0 && age <= time.Duration(60*scale)*time.Second
}

// BarsContinuous 最近 period 根中与最新K线同时段的部分，相邻间隔必须正好 scale 分钟
func BarsContinuous(w market.Window, scale, period int, cal *timeframes.Calendar) bool {
	if len(w) == 0 {
		return false
	}
	period = w.ClampPeriod(period)
	tail := w.Tail(period + 1)

	class := cal.ClassOf(w.Last().Time)
	session := make(market.Window, 0, len(tail))
	for _, b := range tail {
		if cal.ClassOf(b.Time) == class {
			session = append(session, b)
		}
	}

	step := time.Duration(scale) * time.Minute
	for i := 1; i < len(session); i++ {
		if session[i].Time.Sub(session[i-1].Time) != step {
			return false
		}
	}
	return true
}
