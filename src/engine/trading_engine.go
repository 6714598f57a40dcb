package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"equitybot/src/database"
	"equitybot/src/notify"
	"equitybot/src/orders"
	"equitybot/src/session"
	"equitybot/src/timeframes"
	"equitybot/src/tracking"

	"github.com/xpwu/go-log/log"
)

// ErrOpenPositions 收盘强平后仍有持仓或在途订单
var ErrOpenPositions = errors.New("positions still open after session end")

// TradingEngine 统一的交易引擎（支持回测和实盘）
//
// 宿主按 Begin → Update... → End → Final 驱动一个交易日。实盘由 RunLive 的轮询
// 循环调用 Update，回测由 backtest.Harness 在虚拟时钟上逐分钟调用。
type TradingEngine struct {
	lifecycle *orders.Lifecycle
	tracker   *tracking.Tracker
	runners   []*StyleRunner
	sess      *session.Session
	store     database.Store
	notifier  notify.Notifier
	cal       *timeframes.Calendar
	config    Config

	// 强平轮次之间的等待，回测中为空操作
	wait func(ctx context.Context, d time.Duration) error

	// 运行状态
	active    bool
	isRunning bool
	stopChan  chan struct{}
}

// NewTradingEngine 创建交易引擎
func NewTradingEngine(lifecycle *orders.Lifecycle, tracker *tracking.Tracker, runners []*StyleRunner,
	sess *session.Session, store database.Store, notifier notify.Notifier, cal *timeframes.Calendar, config Config) *TradingEngine {

	if notifier == nil {
		notifier = notify.LogNotifier{}
	}
	return &TradingEngine{
		lifecycle: lifecycle,
		tracker:   tracker,
		runners:   runners,
		sess:      sess,
		store:     store,
		notifier:  notifier,
		cal:       cal,
		config:    config,
		wait:      sleep,
		stopChan:  make(chan struct{}),
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// SetWait 替换强平轮次之间的等待
func (e *TradingEngine) SetWait(wait func(ctx context.Context, d time.Duration) error) {
	e.wait = wait
}

// Runners 风格调度器
func (e *TradingEngine) Runners() []*StyleRunner {
	return e.runners
}

// Lifecycle 订单生命周期
func (e *TradingEngine) Lifecycle() *orders.Lifecycle {
	return e.lifecycle
}

// Tracker 跟踪集合
func (e *TradingEngine) Tracker() *tracking.Tracker {
	return e.tracker
}

// Session 会话上下文
func (e *TradingEngine) Session() *session.Session {
	return e.sess
}

// Active Begin 之后、End 之前
func (e *TradingEngine) Active() bool {
	return e.active
}

func (e *TradingEngine) runnerFor(style string) *StyleRunner {
	for _, r := range e.runners {
		if r.Style() == style {
			return r
		}
	}
	return nil
}

// Begin 交易日开始：载入统计、恢复持仓、同步账户
func (e *TradingEngine) Begin(ctx context.Context) error {
	ctx, logger := log.WithCtx(ctx)
	logger.PushPrefix("TradingEngine")

	stats, err := e.store.LoadStats(ctx)
	if err != nil {
		logger.Error("载入标的统计失败", "error", err)
	}
	for _, s := range stats {
		e.tracker.SetStat(s)
	}

	restored, err := e.lifecycle.Positions().Restore(ctx, e.sess.Now())
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	for _, t := range e.tracker.Tickers() {
		e.sess.SetTag(t.Symbol, t.Style)
		if e.runnerFor(t.Style) == nil {
			logger.Error("恢复的持仓没有对应风格，只能收盘强平", "symbol", t.Symbol, "style", t.Style)
		}
	}

	if err := e.lifecycle.Positions().Refresh(ctx); err != nil {
		logger.Error("同步账户失败，下一轮重试", "error", err)
	}

	e.active = true
	e.sess.Logf("", "begin", "styles=%d restored=%d cash=%s", len(e.runners), restored,
		e.lifecycle.Positions().Cash().String())
	logger.Info(fmt.Sprintf("交易日开始: session=%s styles=%d restored=%d", e.sess.ID(), len(e.runners), restored))
	return nil
}

// Update 一轮：订单对账、刷新持仓、各风格调度
func (e *TradingEngine) Update(ctx context.Context) error {
	ctx, logger := log.WithCtx(ctx)
	logger.PushPrefix("TradingEngine")

	if err := e.lifecycle.Reconcile(ctx); err != nil {
		return e.fatal(ctx, err)
	}
	if err := e.lifecycle.Positions().Refresh(ctx); err != nil {
		logger.Error("刷新持仓失败，下一轮重试", "error", err)
	}

	for _, r := range e.runners {
		if err := r.Update(ctx); err != nil {
			return e.fatal(ctx, err)
		}
	}
	return nil
}

func (e *TradingEngine) fatal(ctx context.Context, err error) error {
	notify.Alertf(ctx, e.notifier, "🛑 engine stopped: %v", err)
	e.sess.Logf("", "fatal", "%v", err)
	return err
}

// End 交易日结束：撤在途买单，按配置强平；有限轮次后仍未平掉的持仓通知人工并返回错误
func (e *TradingEngine) End(ctx context.Context) error {
	ctx, logger := log.WithCtx(ctx)
	logger.PushPrefix("TradingEngine")

	e.active = false
	for i := 0; i < e.config.EndIterations; i++ {
		if err := e.lifecycle.Reconcile(ctx); err != nil {
			return e.fatal(ctx, err)
		}

		open := e.openTickers()
		if len(open) == 0 {
			break
		}
		for _, t := range open {
			if t.HasPending() && !t.PendingBuy() {
				continue
			}
			r := e.runnerFor(t.Style)
			if r == nil {
				continue
			}
			if err := r.ForceExit(ctx, t, "session end"); err != nil {
				logger.Error("强平下单失败", "symbol", t.Symbol, "error", err)
			}
		}
		if err := e.wait(ctx, e.config.PollInterval()); err != nil {
			return err
		}
	}
	if err := e.lifecycle.Reconcile(ctx); err != nil {
		return e.fatal(ctx, err)
	}

	survivors := e.openTickers()
	if len(survivors) == 0 {
		logger.Info(fmt.Sprintf("交易日结束: open=%d", len(survivors)))
		return nil
	}

	symbols := make([]string, 0, len(survivors))
	for _, t := range survivors {
		symbols = append(symbols, fmt.Sprintf("%s(%s %s)", t.Symbol, t.State(), t.Positions.String()))
	}
	list := strings.Join(symbols, ", ")
	notify.Alertf(ctx, e.notifier, "⚠️ session end: %d positions still open: %s", len(survivors), list)
	e.sess.Logf("", "end_survivors", "%s", list)
	return fmt.Errorf("%w: %s", ErrOpenPositions, list)
}

// openTickers 需要收盘处理的标的；不强平时只看在途订单
func (e *TradingEngine) openTickers() []*tracking.Ticker {
	if e.config.FlattenAtEnd {
		return e.tracker.Open()
	}
	var out []*tracking.Ticker
	for _, t := range e.tracker.Tickers() {
		if t.HasPending() {
			out = append(out, t)
		}
	}
	return out
}

// Final 会话收尾：保存统计、写出会话日志、清理空仓标的和标签缓存
func (e *TradingEngine) Final(ctx context.Context) error {
	ctx, logger := log.WithCtx(ctx)
	logger.PushPrefix("TradingEngine")

	trades := e.lifecycle.Positions().Trades()
	e.sess.Logf("", "final", "trades=%d day_pl=%s", len(trades), e.lifecycle.Positions().DayPL().String())

	if err := e.store.SaveStats(ctx, e.tracker.Stats()); err != nil {
		logger.Error("保存标的统计失败", "error", err)
	}
	if err := e.sess.Flush(ctx, e.store); err != nil {
		logger.Error("写出会话日志失败", "error", err)
	}

	for _, t := range e.tracker.Tickers() {
		if t.IsFlat() {
			e.tracker.Remove(t.Symbol)
		}
	}
	e.sess.Reset()
	for _, t := range e.tracker.Tickers() {
		e.sess.SetTag(t.Symbol, t.Style)
	}

	logger.Info(fmt.Sprintf("会话收尾: trades=%d carried=%d", len(trades), e.tracker.Len()))
	return nil
}

// RunLive 运行实盘交易：按轮询间隔调用 Update，hooks 中的事件在同一个循环里执行
func (e *TradingEngine) RunLive(ctx context.Context, hooks <-chan Hook) error {
	ctx, logger := log.WithCtx(ctx)
	logger.PushPrefix("TradingEngine")

	if err := e.config.Validate(); err != nil {
		return err
	}
	logger.Info(fmt.Sprintf("开始实盘交易: styles=%d interval=%s", len(e.runners), e.config.PollInterval()))

	e.isRunning = true
	defer func() { e.isRunning = false }()

	// 盘中启动时立即开始交易日
	if e.cal.ClassOf(e.sess.Now()) != timeframes.HourClassClosed {
		if err := e.Begin(ctx); err != nil {
			return err
		}
	}

	ticker := time.NewTicker(e.config.PollInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("收到停止信号，退出实盘交易")
			return ctx.Err()

		case <-e.stopChan:
			logger.Info("手动停止实盘交易")
			return nil

		case hook := <-hooks:
			if err := e.RunHook(ctx, hook); err != nil {
				logger.Error("会话事件处理失败", "hook", hook, "error", err)
				if orders.IsFatal(err) {
					return err
				}
			}

		case <-ticker.C:
			if !e.active {
				continue
			}
			if err := e.Update(ctx); err != nil {
				logger.Error("处理轮询失败", "error", err)
				if orders.IsFatal(err) {
					return err
				}
			}
		}
	}
}

// RunHook 执行一个会话事件
func (e *TradingEngine) RunHook(ctx context.Context, hook Hook) error {
	switch hook {
	case HookBegin:
		if e.active {
			return nil
		}
		return e.Begin(ctx)
	case HookEnd:
		if !e.active {
			return nil
		}
		return e.End(ctx)
	case HookFinal:
		return e.Final(ctx)
	default:
		return fmt.Errorf("unknown hook: %s", hook)
	}
}

// Stop 停止交易引擎
func (e *TradingEngine) Stop() {
	if e.isRunning {
		select {
		case <-e.stopChan:
		default:
			close(e.stopChan)
		}
	}
}

// Close 关闭交易引擎
func (e *TradingEngine) Close() error {
	e.Stop()
	return e.lifecycle.Executor().Close()
}
