package engine

import (
	"context"
	"errors"
	"fmt"

	"equitybot/src/broker"
	"equitybot/src/executor"
	"equitybot/src/indicators"
	"equitybot/src/market"
	"equitybot/src/orders"
	"equitybot/src/session"
	"equitybot/src/strategy"
	"equitybot/src/timeframes"
	"equitybot/src/tracking"

	"github.com/shopspring/decimal"
	"github.com/xpwu/go-log/log"
)

// StyleRunner 单一风格的每轮调度：先管理已跟踪的标的，再扫描候选
type StyleRunner struct {
	engine    *strategy.Engine
	lifecycle *orders.Lifecycle
	tracker   *tracking.Tracker
	feed      *BarFeed
	sess      *session.Session
	cal       *timeframes.Calendar
}

// NewStyleRunner 创建风格调度器
func NewStyleRunner(engine *strategy.Engine, lifecycle *orders.Lifecycle, tracker *tracking.Tracker,
	feed *BarFeed, sess *session.Session, cal *timeframes.Calendar) *StyleRunner {
	return &StyleRunner{
		engine:    engine,
		lifecycle: lifecycle,
		tracker:   tracker,
		feed:      feed,
		sess:      sess,
		cal:       cal,
	}
}

// NewRunners 按风格名逐个创建，风格参数取自 strategy.StylesConfigValue
func NewRunners(styles []string, signals indicators.Params, lifecycle *orders.Lifecycle, tracker *tracking.Tracker,
	feed *BarFeed, sess *session.Session, cal *timeframes.Calendar) ([]*StyleRunner, error) {

	runners := make([]*StyleRunner, 0, len(styles))
	for _, style := range styles {
		params, err := strategy.StylesConfigValue.Lookup(style)
		if err != nil {
			return nil, err
		}
		eng, err := strategy.NewEngine(params, signals, cal, sess)
		if err != nil {
			return nil, err
		}
		runners = append(runners, NewStyleRunner(eng, lifecycle, tracker, feed, sess, cal))
	}
	return runners, nil
}

// Style 风格名
func (r *StyleRunner) Style() string {
	return r.engine.Style()
}

// Engine 决策引擎
func (r *StyleRunner) Engine() *strategy.Engine {
	return r.engine
}

// Tickers 本风格跟踪的标的，按标的排序
func (r *StyleRunner) Tickers() []*tracking.Ticker {
	var out []*tracking.Ticker
	for _, t := range r.tracker.Tickers() {
		if t.Style == r.Style() {
			out = append(out, t)
		}
	}
	return out
}

// Update 一轮调度；只有不可恢复的订单错误才返回
func (r *StyleRunner) Update(ctx context.Context) error {
	ctx, logger := log.WithCtx(ctx)
	logger.PushPrefix("StyleRunner." + r.Style())

	for _, t := range r.Tickers() {
		if err := r.manage(ctx, t); err != nil {
			if orders.IsFatal(err) {
				return err
			}
			logger.Error("标的处理失败", "symbol", t.Symbol, "error", err)
		}
	}
	return r.scan(ctx)
}

func (r *StyleRunner) window(ctx context.Context, symbol string) (market.Window, error) {
	p := r.engine.Params()
	w, err := r.feed.Window(ctx, symbol, p.Scale, p.WindowSize)
	if err != nil {
		return nil, err
	}
	if err := r.engine.CheckData(symbol, w, p.EntryPeriod); err != nil {
		return nil, err
	}
	return w, nil
}

func (r *StyleRunner) manage(ctx context.Context, t *tracking.Ticker) error {
	ctx, logger := log.WithCtx(ctx)

	if t.FailedToSell() {
		if !r.lifecycle.FailedSellDue(t) {
			return nil
		}
		return r.retryFailedSell(ctx, t, "failed sell retry")
	}
	if t.HasPending() {
		return nil
	}
	if t.IsFlat() && (t.Dropped || r.engine.Idle(t, r.sess.Now())) {
		r.drop(t, "idle")
		return nil
	}

	w, err := r.window(ctx, t.Symbol)
	if err != nil {
		var dataErr *market.DataError
		if errors.As(err, &dataErr) && t.IsFlat() {
			r.drop(t, dataErr.Error())
			return nil
		}
		logger.Error("K线窗口不可用，本轮跳过", "symbol", t.Symbol, "error", err)
		r.sess.Logf(t.Symbol, "data_error", "%v", err)
		return nil
	}

	if t.Holding() {
		if ok, why := r.engine.CheckStops(ctx, t, w); ok {
			return r.sell(ctx, t, w, why)
		}
		if ok, why := r.engine.CheckExit(ctx, t, w); ok {
			return r.sell(ctx, t, w, why)
		}
		if r.engine.CheckScaleIn(ctx, t, w, t.Position) {
			return r.scaleIn(ctx, t, w, "scale in")
		}
		if r.engine.CheckBuyDip(ctx, t, w, t.Position) {
			return r.scaleIn(ctx, t, w, "buy dip")
		}
		return nil
	}

	_, err = r.enter(ctx, t, w)
	return err
}

// enter 开仓检查通过后按一个单位下买单
func (r *StyleRunner) enter(ctx context.Context, t *tracking.Ticker, w market.Window) (bool, error) {
	if !r.engine.CheckEntry(ctx, t, w) {
		return false, nil
	}

	p := r.engine.Params()
	price := r.limitPrice(ctx, t.Symbol, broker.OrderSideBuy, w.Last().Close)
	qty := r.engine.PositionSize(price, r.lifecycle.Positions().Cash())
	if !qty.IsPositive() {
		r.sess.Logf(t.Symbol, "reject", "%s cash %s", p.Style, r.lifecycle.Positions().Cash().String())
		return false, nil
	}
	if !r.engine.CheckSize(ctx, t, w, qty) {
		return false, nil
	}

	stop, target := r.engine.Stops(w, price)
	t.TargetUnits = p.TargetUnits
	t.StopLoss = stop
	t.TargetProfit = target
	if err := r.lifecycle.SubmitBuy(ctx, t, qty, price, "breakout"); err != nil {
		return false, err
	}
	return true, nil
}

func (r *StyleRunner) scaleIn(ctx context.Context, t *tracking.Ticker, w market.Window, reason string) error {
	price := r.limitPrice(ctx, t.Symbol, broker.OrderSideBuy, w.Last().Close)
	qty := r.engine.PositionSize(price, r.lifecycle.Positions().Cash())
	if !qty.IsPositive() || !r.engine.CheckSize(ctx, t, w, qty) {
		return nil
	}
	if err := r.lifecycle.SubmitBuy(ctx, t, qty, price, reason); err != nil {
		return err
	}
	r.engine.ScaleStops(t, w, price)
	return nil
}

func (r *StyleRunner) sell(ctx context.Context, t *tracking.Ticker, w market.Window, reason string) error {
	price := r.limitPrice(ctx, t.Symbol, broker.OrderSideSell, w.Last().Close)
	return r.lifecycle.SubmitSell(ctx, t, t.Positions, price, reason)
}

// ForceExit 撤掉在途买单，持仓按买一价卖出；转人工的标的不等重试间隔，直接再卖一次
func (r *StyleRunner) ForceExit(ctx context.Context, t *tracking.Ticker, reason string) error {
	if t.PendingBuy() {
		return r.lifecycle.Cancel(ctx, t, reason)
	}
	if t.HasPending() || !t.Holding() {
		return nil
	}
	if t.FailedToSell() {
		return r.retryFailedSell(ctx, t, reason)
	}
	return r.lifecycle.SubmitSell(ctx, t, t.Positions, r.exitPrice(ctx, t), reason)
}

func (r *StyleRunner) retryFailedSell(ctx context.Context, t *tracking.Ticker, reason string) error {
	return r.lifecycle.RetryFailedSell(ctx, t, r.exitPrice(ctx, t), reason)
}

// exitPrice 买一价，拿不到时用最近收盘价或持仓成本
func (r *StyleRunner) exitPrice(ctx context.Context, t *tracking.Ticker) decimal.Decimal {
	fallback := t.InitialCost
	if w, err := r.feed.Window(ctx, t.Symbol, 1, 2); err == nil {
		fallback = w.Last().Close
	}
	return r.limitPrice(ctx, t.Symbol, broker.OrderSideSell, fallback)
}

// scan 拉取榜单，为未被其他风格认领的标的建立跟踪并尝试开仓
func (r *StyleRunner) scan(ctx context.Context) error {
	ctx, logger := log.WithCtx(ctx)

	p := r.engine.Params()
	now := r.sess.Now()
	class := r.cal.ClassOf(now)
	if class == timeframes.HourClassClosed || (class.IsExtended() && !p.ExtendedHours) {
		return nil
	}

	tracked := len(r.Tickers())
	if tracked >= p.MaxTickers {
		return nil
	}

	candidates, err := r.lifecycle.Executor().Candidates(ctx, class, executor.Ranking(p.Ranking))
	if err != nil {
		logger.Error("获取候选失败", "style", p.Style, "error", err)
		return nil
	}

	for i, c := range candidates {
		if i >= p.MaxCandidates || tracked >= p.MaxTickers {
			break
		}
		if _, ok := r.tracker.Get(c.Symbol); ok {
			continue
		}
		if tag, ok := r.sess.Tag(c.Symbol); ok && tag != p.Style {
			continue
		}
		if r.tracker.Stat(c.Symbol).Blacklisted(now) {
			r.sess.Logf(c.Symbol, "reject", "%s blacklisted", p.Style)
			continue
		}

		w, err := r.window(ctx, c.Symbol)
		if err != nil {
			logger.Debug("候选数据不可用", "symbol", c.Symbol, "error", err)
			continue
		}

		t := r.lifecycle.NewTicker(c.Symbol, p.Style)
		r.tracker.Add(t)
		r.sess.SetTag(c.Symbol, p.Style)
		r.sess.Logf(c.Symbol, "track", "%s change=%s%%", p.Style, c.ChangePercent.StringFixed(2))
		tracked++

		if _, err := r.enter(ctx, t, w); err != nil {
			if orders.IsFatal(err) {
				return err
			}
			logger.Error("开仓下单失败", "symbol", c.Symbol, "error", err)
		}
	}
	return nil
}

func (r *StyleRunner) drop(t *tracking.Ticker, why string) {
	r.tracker.Remove(t.Symbol)
	r.sess.Logf(t.Symbol, "drop", "%s %s", r.Style(), why)
}

// limitPrice 买单取卖一，卖单取买一，取不到报价时用 fallback
func (r *StyleRunner) limitPrice(ctx context.Context, symbol string, side broker.OrderSide, fallback decimal.Decimal) decimal.Decimal {
	q, err := r.lifecycle.Executor().Quote(ctx, symbol)
	if err != nil || q == nil {
		return fallback
	}
	if side == broker.OrderSideBuy && q.Ask.IsPositive() {
		return q.Ask
	}
	if side == broker.OrderSideSell && q.Bid.IsPositive() {
		return q.Bid
	}
	return fallback
}

func (r *StyleRunner) String() string {
	return fmt.Sprintf("StyleRunner(%s)", r.engine.GetName())
}
