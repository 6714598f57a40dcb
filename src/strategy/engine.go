package strategy

import (
	"context"
	"fmt"
	"time"

	"equitybot/src/indicators"
	"equitybot/src/market"
	"equitybot/src/session"
	"equitybot/src/timeframes"
	"equitybot/src/tracking"

	"github.com/shopspring/decimal"
	"github.com/xpwu/go-log/log"
)

// Engine 单一风格的决策引擎
//
// 风格之间的差异只在 Params 和四个钩子：开仓附加检查、止损规则、离场附加检查、涨幅规则。
// 所有检查都是对K线窗口的纯判断，拒绝时记录原因到会话日志，不返回错误。
type Engine struct {
	params  Params
	signals indicators.Params
	cal     *timeframes.Calendar
	sess    *session.Session

	entry      EntryCheck
	stop       StopLossRule
	exit       ExitCheck
	roc        ROCRule
	takeProfit TakeProfit
}

// NewEngine 按参数解析钩子，创建决策引擎
func NewEngine(params Params, signals indicators.Params, cal *timeframes.Calendar, sess *session.Session) (*Engine, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("style %s: %w", params.Style, err)
	}
	if err := signals.Validate(); err != nil {
		return nil, fmt.Errorf("style %s signals: %w", params.Style, err)
	}

	e := &Engine{params: params, signals: signals, cal: cal, sess: sess}

	var ok bool
	if e.entry, ok = entryChecks[params.EntryCheck]; !ok {
		return nil, fmt.Errorf("style %s: unknown entry_check %q", params.Style, params.EntryCheck)
	}
	if e.stop, ok = stopRules[params.StopLossRule]; !ok {
		return nil, fmt.Errorf("style %s: unknown stop_loss_rule %q", params.Style, params.StopLossRule)
	}
	if e.exit, ok = exitChecks[params.ExitCheck]; !ok {
		return nil, fmt.Errorf("style %s: unknown exit_check %q", params.Style, params.ExitCheck)
	}
	if e.roc, ok = rocRules[params.ROCRule]; !ok {
		return nil, fmt.Errorf("style %s: unknown roc_rule %q", params.Style, params.ROCRule)
	}
	if params.TakeProfit != "" {
		overrides, err := ParseTakeProfitParams(params.TakeProfitParams)
		if err != nil {
			return nil, fmt.Errorf("style %s: %w", params.Style, err)
		}
		tp, err := CreateTakeProfitWithParams(params.TakeProfit, overrides)
		if err != nil {
			return nil, fmt.Errorf("style %s: %w", params.Style, err)
		}
		e.takeProfit = tp
	}
	return e, nil
}

// Params 风格参数
func (e *Engine) Params() Params {
	return e.params
}

// Style 风格名
func (e *Engine) Style() string {
	return e.params.Style
}

// TakeProfit 止盈策略，可能为 nil
func (e *Engine) TakeProfit() TakeProfit {
	return e.takeProfit
}

// GetName 获取策略名称
func (e *Engine) GetName() string {
	name := fmt.Sprintf("%s(entry=%s stop=%s exit=%s roc=%s)",
		e.params.Style, e.params.EntryCheck, e.params.StopLossRule, e.params.ExitCheck, e.params.ROCRule)
	if e.takeProfit != nil {
		name += " + " + e.takeProfit.GetName()
	}
	return name
}

func (e *Engine) reject(ctx context.Context, symbol, gate, detail string) bool {
	_, logger := log.WithCtx(ctx)
	logger.Debug("检查未通过", "style", e.params.Style, "symbol", symbol, "gate", gate, "detail", detail)
	e.sess.Logf(symbol, "reject", "%s %s %s", e.params.Style, gate, detail)
	return false
}

// CheckData 窗口新鲜度和连续性，失败返回 *market.DataError
func (e *Engine) CheckData(symbol string, w market.Window, period int) error {
	if len(w) == 0 {
		return market.NewDataError(symbol, market.ErrNoBars)
	}
	if len(w) < 2 {
		return market.NewDataError(symbol, market.ErrShortWindow)
	}
	if !indicators.BarsUpdated(w, e.params.Scale, e.sess.Now()) {
		return market.NewDataError(symbol, market.ErrStaleWindow)
	}
	if !indicators.BarsContinuous(w, e.params.Scale, period, e.cal) {
		return market.NewDataError(symbol, market.ErrGap)
	}
	return nil
}

// CheckEntry 突破开仓检查，逐项短路
func (e *Engine) CheckEntry(ctx context.Context, t *tracking.Ticker, w market.Window) bool {
	ctx, logger := log.WithCtx(ctx)
	logger.PushPrefix(e.params.Style)

	symbol := t.Symbol
	if len(w) < 2 {
		return e.reject(ctx, symbol, "window", fmt.Sprintf("%d bars", len(w)))
	}
	last, prev := w.Last(), w.Prev()
	period := e.params.EntryPeriod

	if !t.LastSellTime.IsZero() && e.sess.Now().Sub(t.LastSellTime) < e.params.Cooldown() {
		return e.reject(ctx, symbol, "cooldown", t.LastSellTime.Format(time.RFC3339))
	}

	class := e.cal.ClassOf(last.Time)
	if class == timeframes.HourClassClosed {
		return e.reject(ctx, symbol, "session", string(class))
	}
	if class.IsExtended() && !e.params.ExtendedHours {
		return e.reject(ctx, symbol, "session", string(class))
	}

	if !last.Close.GreaterThan(last.VWAP) {
		return e.reject(ctx, symbol, "vwap", fmt.Sprintf("close %s <= vwap %s", last.Close, last.VWAP))
	}
	if !e.params.NoBreakout {
		high := indicators.HighOfCloses(w, period)
		if !last.Close.GreaterThan(high) {
			return e.reject(ctx, symbol, "breakout", fmt.Sprintf("close %s <= %d-bar high %s", last.Close, period, high))
		}
	}
	ema := indicators.EMA(w, 9)
	if !last.Close.GreaterThan(ema) {
		return e.reject(ctx, symbol, "ema9", fmt.Sprintf("close %s <= ema9 %s", last.Close, ema.StringFixed(4)))
	}
	if low := indicators.LowOfLows(w, period); last.Low.LessThan(low) {
		return e.reject(ctx, symbol, "period_low", fmt.Sprintf("low %s < %s", last.Low, low))
	}
	if prev.Close.IsPositive() {
		surge := last.Close.Sub(prev.Close).Div(prev.Close)
		if surge.GreaterThan(decimal.NewFromFloat(e.params.MaxSurge)) {
			return e.reject(ctx, symbol, "surge", surge.StringFixed(4))
		}
	}

	if !indicators.HasVolume(w, e.params.Scale, period, class, &e.signals) {
		return e.reject(ctx, symbol, "volume", w.Tail(period).AverageVolume().StringFixed(0))
	}
	if !indicators.Volatility(w, period, &e.signals) {
		return e.reject(ctx, symbol, "volatility", "")
	}
	if !indicators.LargestCandleIsGreen(w, period) {
		return e.reject(ctx, symbol, "green", "largest candle is red")
	}
	if indicators.HasLongWickUp(w, period, 1, &e.signals) {
		return e.reject(ctx, symbol, "wick_up", "")
	}
	if ok, why := e.roc(e, w, false); !ok {
		return e.reject(ctx, symbol, "roc", why)
	}
	if ok, why := e.entry(e, w); !ok {
		return e.reject(ctx, symbol, e.params.EntryCheck, why)
	}

	logger.Info(fmt.Sprintf("%s 满足开仓条件 close=%s vwap=%s ema9=%s", symbol, last.Close, last.VWAP, ema.StringFixed(4)))
	e.sess.Logf(symbol, "entry", "%s close=%s", e.params.Style, last.Close)
	return true
}

// ExitPeriod 离场周期，ticker 可覆盖
func (e *Engine) ExitPeriod(t *tracking.Ticker) int {
	if t.ExitPeriod > 0 {
		return t.ExitPeriod
	}
	return e.params.ExitPeriod
}

// CheckExit 离场检查，按顺序第一个成立的生效
func (e *Engine) CheckExit(ctx context.Context, t *tracking.Ticker, w market.Window) (bool, string) {
	if len(w) < 2 {
		return false, ""
	}
	last := w.Last()
	period := e.ExitPeriod(t)
	class := e.cal.ClassOf(last.Time)

	reason := ""
	switch {
	case last.Low.LessThan(indicators.LowOfLows(w, period)):
		reason = fmt.Sprintf("new %d-bar low", period)
	case indicators.HasLongWickUp(w, period, 1, &e.signals):
		reason = "long wick up"
	case class.IsExtended() && !indicators.Volatility(w, period, &e.signals):
		reason = "lost volatility"
	case class == timeframes.HourClassRegular && indicators.AtPeak(w, &e.signals):
		reason = "at peak"
	case indicators.Reversal(w, period, &e.signals):
		reason = "reversal"
	}
	if reason == "" {
		if ok, why := e.exit(e, w); ok {
			reason = why
		}
	}
	if reason == "" && e.params.MaxHoldMin > 0 && t.Position != nil &&
		e.sess.Now().Sub(t.Position.BuyTime) >= e.params.MaxHold() {
		reason = "period timeout"
	}
	if reason == "" {
		return false, ""
	}

	_, logger := log.WithCtx(ctx)
	logger.Info(fmt.Sprintf("%s %s 离场信号: %s", e.params.Style, t.Symbol, reason))
	e.sess.Logf(t.Symbol, "exit", "%s %s", e.params.Style, reason)
	return true, reason
}

// CheckStops 按最新价刷新浮盈后检查止损、止盈和止盈策略
func (e *Engine) CheckStops(ctx context.Context, t *tracking.Ticker, w market.Window) (bool, string) {
	last := w.Last()
	if last == nil || t.Position == nil {
		return false, ""
	}
	price := last.Close
	t.UpdatePL(price)

	reason := ""
	switch {
	case t.StopLoss.IsPositive() && price.LessThanOrEqual(t.StopLoss):
		reason = fmt.Sprintf("stop loss %s", t.StopLoss)
	case t.TargetProfit.IsPositive() && price.GreaterThanOrEqual(t.TargetProfit):
		reason = fmt.Sprintf("target profit %s", t.TargetProfit)
	case e.takeProfit != nil:
		if sig := e.takeProfit.ShouldSell(NewTradeInfo(t, price, e.sess.Now())); sig.ShouldSell {
			reason = sig.Reason
		}
	}
	if reason == "" {
		return false, ""
	}
	e.sess.Logf(t.Symbol, "stop", "%s %s", e.params.Style, reason)
	return true, reason
}

func (e *Engine) scaleReady(t *tracking.Ticker, p *tracking.Position) bool {
	if p == nil || t.Units >= t.TargetUnits {
		return false
	}
	return e.sess.Now().Sub(t.LastBuyTime) >= e.params.ScaleInterval(t.Units)
}

// CheckScaleIn 顺势加仓：单位未满、间隔足够、有浮盈，再做一次轻量的开仓检查
func (e *Engine) CheckScaleIn(ctx context.Context, t *tracking.Ticker, w market.Window, p *tracking.Position) bool {
	if len(w) < 2 || !e.scaleReady(t, p) {
		return false
	}
	if t.LastPLRate.LessThan(decimal.NewFromFloat(e.params.MinScaleGain)) {
		return e.reject(ctx, t.Symbol, "scale_gain", t.LastPLRate.StringFixed(4))
	}

	last := w.Last()
	class := e.cal.ClassOf(last.Time)
	if !last.Close.GreaterThan(last.VWAP) {
		return e.reject(ctx, t.Symbol, "scale_vwap", "")
	}
	if !last.Close.GreaterThan(indicators.EMA(w, 9)) {
		return e.reject(ctx, t.Symbol, "scale_ema9", "")
	}
	if !indicators.HasVolume(w, e.params.Scale, e.params.EntryPeriod, class, &e.signals) {
		return e.reject(ctx, t.Symbol, "scale_volume", "")
	}
	if indicators.HasLongWickUp(w, e.params.EntryPeriod, 1, &e.signals) {
		return e.reject(ctx, t.Symbol, "scale_wick_up", "")
	}
	if ok, why := e.roc(e, w, true); !ok {
		return e.reject(ctx, t.Symbol, "scale_roc", why)
	}
	e.sess.Logf(t.Symbol, "scale_in", "%s unit %d/%d", e.params.Style, t.Units+1, t.TargetUnits)
	return true
}

// CheckBuyDip 回踩 EMA9 后收阳加仓
func (e *Engine) CheckBuyDip(ctx context.Context, t *tracking.Ticker, w market.Window, p *tracking.Position) bool {
	if len(w) < 2 || !e.scaleReady(t, p) {
		return false
	}
	if t.LastPLRate.IsNegative() {
		return false
	}

	last := w.Last()
	ema := indicators.EMA(w.Completed(), 9)
	touch := ema.Mul(decimal.NewFromFloat(1 + e.params.DipTolerance))
	if last.Low.GreaterThan(touch) {
		return false
	}
	if !last.IsGreen() || !last.Close.GreaterThan(ema) {
		return e.reject(ctx, t.Symbol, "dip_bounce", "")
	}
	if !last.Close.GreaterThan(last.VWAP) {
		return e.reject(ctx, t.Symbol, "dip_vwap", "")
	}
	if !indicators.HasVolume(w, e.params.Scale, e.params.EntryPeriod, e.cal.ClassOf(last.Time), &e.signals) {
		return e.reject(ctx, t.Symbol, "dip_volume", "")
	}
	e.sess.Logf(t.Symbol, "buy_dip", "%s unit %d/%d", e.params.Style, t.Units+1, t.TargetUnits)
	return true
}

// Stops 开仓止损止盈，锚定最新两根中最低的一根
func (e *Engine) Stops(w market.Window, entry decimal.Decimal) (decimal.Decimal, decimal.Decimal) {
	anchor := w.Last()
	if prev := w.Prev(); prev != nil && prev.Low.LessThan(anchor.Low) {
		anchor = prev
	}
	return e.stop(e, w, anchor, entry)
}

// ScaleStops 加仓止损，锚定加仓时的K线，只上移不下移
func (e *Engine) ScaleStops(t *tracking.Ticker, w market.Window, entry decimal.Decimal) {
	stop, target := e.stop(e, w, w.Last(), entry)
	if stop.GreaterThan(t.StopLoss) {
		t.StopLoss = stop
	}
	if target.GreaterThan(t.TargetProfit) {
		t.TargetProfit = target
	}
}

// PositionSize 一个单位的股数，不超过可用现金
func (e *Engine) PositionSize(price, cash decimal.Decimal) decimal.Decimal {
	if !price.IsPositive() {
		return decimal.Zero
	}
	amount := decimal.NewFromFloat(e.params.UnitAmount)
	if cash.LessThan(amount) {
		amount = cash
	}
	if !amount.IsPositive() {
		return decimal.Zero
	}
	return amount.Div(price).Floor()
}

// CheckSize 成交量能承接这个仓位
func (e *Engine) CheckSize(ctx context.Context, t *tracking.Ticker, w market.Window, qty decimal.Decimal) bool {
	class := e.cal.ClassOf(w.Last().Time)
	if !indicators.VolumeForPositionSize(w, e.params.EntryPeriod, qty, class, &e.signals) {
		return e.reject(ctx, t.Symbol, "size_volume", qty.String())
	}
	return true
}

// Idle 空仓超过观察时长
func (e *Engine) Idle(t *tracking.Ticker, now time.Time) bool {
	if !t.IsFlat() || e.params.ObserveTimeout <= 0 {
		return false
	}
	since := t.CreatedAt
	if t.LastSellTime.After(since) {
		since = t.LastSellTime
	}
	return now.Sub(since) >= e.params.ObserveTimeoutDuration()
}
