package strategy

import (
	"fmt"
	"sort"

	"equitybot/src/indicators"
	"equitybot/src/market"

	"github.com/shopspring/decimal"
)

// 候选榜单
const (
	RankingGainers = "gainers"
	RankingLosers  = "losers"
)

// 风格钩子，都是纯函数，失败时返回原因
type (
	// EntryCheck 风格附加的开仓检查
	EntryCheck func(e *Engine, w market.Window) (bool, string)
	// StopLossRule 由锚定K线和开仓价计算止损和止盈
	StopLossRule func(e *Engine, w market.Window, anchor *market.Bar, entry decimal.Decimal) (stop, target decimal.Decimal)
	// ExitCheck 风格附加的离场检查
	ExitCheck func(e *Engine, w market.Window) (bool, string)
	// ROCRule 涨幅门槛，scaleIn 为加仓时的判断
	ROCRule func(e *Engine, w market.Window, scaleIn bool) (bool, string)
)

var (
	entryChecks = map[string]EntryCheck{}
	stopRules   = map[string]StopLossRule{}
	exitChecks  = map[string]ExitCheck{}
	rocRules    = map[string]ROCRule{}
)

// RegisterEntryCheck 注册开仓检查
func RegisterEntryCheck(name string, fn EntryCheck) { entryChecks[name] = fn }

// RegisterStopLossRule 注册止损规则
func RegisterStopLossRule(name string, fn StopLossRule) { stopRules[name] = fn }

// RegisterExitCheck 注册离场检查
func RegisterExitCheck(name string, fn ExitCheck) { exitChecks[name] = fn }

// RegisterROCRule 注册涨幅规则
func RegisterROCRule(name string, fn ROCRule) { rocRules[name] = fn }

// PolicyNames 已注册的钩子名，按类别
func PolicyNames() map[string][]string {
	return map[string][]string{
		"entry_check":    sortedKeys(entryChecks),
		"stop_loss_rule": sortedKeys(stopRules),
		"exit_check":     sortedKeys(exitChecks),
		"roc_rule":       sortedKeys(rocRules),
	}
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func init() {
	RegisterEntryCheck("none", func(e *Engine, w market.Window) (bool, string) { return true, "" })
	RegisterEntryCheck("momentum", momentumEntry)
	RegisterEntryCheck("not_overextended", func(e *Engine, w market.Window) (bool, string) {
		if indicators.Overextended(w, &e.signals) {
			return false, "above upper bollinger band"
		}
		return true, ""
	})
	RegisterEntryCheck("red_to_green", redToGreenEntry)
	RegisterEntryCheck("amount_grinding", func(e *Engine, w market.Window) (bool, string) {
		if !indicators.AmountGrinding(w, 3) {
			return false, "amount not grinding up"
		}
		return true, ""
	})

	RegisterStopLossRule("bar_low", barLowStop)
	RegisterStopLossRule("atr", atrStop)
	RegisterStopLossRule("ratio", ratioStop)

	RegisterExitCheck("none", func(e *Engine, w market.Window) (bool, string) { return false, "" })
	RegisterExitCheck("bearish_candle", func(e *Engine, w market.Window) (bool, string) {
		if indicators.BearishCandle(w.Last(), &e.signals) {
			return true, "bearish candle"
		}
		return false, ""
	})
	RegisterExitCheck("below_ema", func(e *Engine, w market.Window) (bool, string) {
		if w.Last().Close.LessThan(indicators.EMA(w.Completed(), 9)) {
			return true, "closed below ema9"
		}
		return false, ""
	})
	RegisterExitCheck("below_vwap", func(e *Engine, w market.Window) (bool, string) {
		last := w.Last()
		if last.VWAP.IsPositive() && last.Close.LessThan(last.VWAP) {
			return true, "closed below vwap"
		}
		return false, ""
	})

	RegisterROCRule("none", func(e *Engine, w market.Window, scaleIn bool) (bool, string) { return true, "" })
	RegisterROCRule("window_start", windowStartROC)
	RegisterROCRule("from_high", fromHighROC)
}

// momentumEntry 放量或阳线占优
func momentumEntry(e *Engine, w market.Window) (bool, string) {
	if indicators.RelativeVolume(w, &e.signals) {
		return true, ""
	}
	if indicators.MoreGreen(w, e.params.EntryPeriod, &e.signals) {
		return true, ""
	}
	return false, "no relative volume and not enough green candles"
}

// redToGreenEntry 前一根收阴，当前阳线收复前一根开盘价
func redToGreenEntry(e *Engine, w market.Window) (bool, string) {
	last, prev := w.Last(), w.Prev()
	if prev == nil || !prev.IsRed() {
		return false, "previous bar not red"
	}
	if !last.IsGreen() {
		return false, "current bar not green"
	}
	if !last.Close.GreaterThan(prev.Open) {
		return false, "did not reclaim previous open"
	}
	return true, ""
}

// barLowStop 以锚定K线最低价止损；振幅过大的K线改用实体下沿，避免锚在影线上
func barLowStop(e *Engine, w market.Window, anchor *market.Bar, entry decimal.Decimal) (decimal.Decimal, decimal.Decimal) {
	stop := anchor.Low
	if anchor.Low.IsPositive() && anchor.Range().Div(anchor.Low).GreaterThan(decimal.NewFromFloat(e.params.WickRange)) {
		stop = anchor.BodyBottom()
	}
	return withTarget(e, stop, entry)
}

// atrStop 开仓价减去 ATR 的倍数
func atrStop(e *Engine, w market.Window, anchor *market.Bar, entry decimal.Decimal) (decimal.Decimal, decimal.Decimal) {
	atr := indicators.ATR(w, e.params.ATRPeriod)
	if !atr.IsPositive() {
		return ratioStop(e, w, anchor, entry)
	}
	return withTarget(e, entry.Sub(atr.Mul(decimal.NewFromFloat(e.params.ATRMultiple))), entry)
}

// ratioStop 固定比例
func ratioStop(e *Engine, w market.Window, anchor *market.Bar, entry decimal.Decimal) (decimal.Decimal, decimal.Decimal) {
	return withTarget(e, entry.Mul(decimal.NewFromFloat(1-e.params.StopRatio)), entry)
}

// withTarget 止损不在开仓价下方时退回比例止损，止盈按风险倍数
func withTarget(e *Engine, stop, entry decimal.Decimal) (decimal.Decimal, decimal.Decimal) {
	if !stop.IsPositive() || !stop.LessThan(entry) {
		stop = entry.Mul(decimal.NewFromFloat(1 - e.params.StopRatio))
	}
	risk := entry.Sub(stop)
	target := entry.Add(risk.Mul(decimal.NewFromFloat(e.params.TargetRatio)))
	return stop.Round(4), target.Round(4)
}

// windowStartROC 相对窗口起点的涨幅
func windowStartROC(e *Engine, w market.Window, scaleIn bool) (bool, string) {
	roc := indicators.RateOfChange(w, e.params.ROCPeriod)
	if roc.LessThan(decimal.NewFromFloat(e.params.MinROC)) {
		return false, fmt.Sprintf("rate of change %s below %.4f", roc.StringFixed(4), e.params.MinROC)
	}
	return true, ""
}

// fromHighROC 加仓时看相对近期高点，开仓仍看窗口起点
func fromHighROC(e *Engine, w market.Window, scaleIn bool) (bool, string) {
	if !scaleIn {
		return windowStartROC(e, w, false)
	}
	roc := indicators.RateOfChangeFromHigh(w, e.params.ROCPeriod)
	if roc.LessThan(decimal.NewFromFloat(e.params.MinScaleROC)) {
		return false, fmt.Sprintf("%s below recent high", roc.StringFixed(4))
	}
	return true, ""
}
