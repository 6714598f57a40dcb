package orders

import (
	"context"
	"fmt"
	"strings"

	"equitybot/src/broker"
	"equitybot/src/database"
	"equitybot/src/executor"
	"equitybot/src/notify"
	"equitybot/src/session"
	"equitybot/src/tracking"

	"github.com/shopspring/decimal"
	"github.com/xpwu/go-log/log"
)

// Lifecycle 订单生命周期：提交、轮询状态、撤单、重提
//
// 每个标的同一时刻最多一张在途订单。状态回报按 OrderStatus 分发给
// StatusHandlerRegistry 中的处理器，未知状态返回 *OrderStatusError。
type Lifecycle struct {
	exec      executor.Executor
	store     database.OrderStore
	positions *PositionTracker
	tracker   *tracking.Tracker
	sess      *session.Session
	notifier  notify.Notifier
	config    Config
	handlers  *StatusHandlerRegistry
}

// NewLifecycle 创建订单生命周期管理器
func NewLifecycle(exec executor.Executor, store database.OrderStore, tracker *tracking.Tracker,
	sess *session.Session, notifier notify.Notifier, config Config) *Lifecycle {

	if notifier == nil {
		notifier = notify.LogNotifier{}
	}
	l := &Lifecycle{
		exec:      exec,
		store:     store,
		positions: NewPositionTracker(exec, store, tracker, config),
		tracker:   tracker,
		sess:      sess,
		notifier:  notifier,
		config:    config,
		handlers:  NewStatusHandlerRegistry(),
	}
	registerDefaultHandlers(l.handlers)
	return l
}

// Positions 持仓缓存
func (l *Lifecycle) Positions() *PositionTracker {
	return l.positions
}

// Handlers 状态处理器注册表
func (l *Lifecycle) Handlers() *StatusHandlerRegistry {
	return l.handlers
}

// Config 当前配置
func (l *Lifecycle) Config() Config {
	return l.config
}

// Executor 执行器
func (l *Lifecycle) Executor() executor.Executor {
	return l.exec
}

// NewTicker 创建带重试预算的跟踪标的
func (l *Lifecycle) NewTicker(symbol, style string) *tracking.Ticker {
	return tracking.NewTicker(symbol, style, l.sess.Now(), l.config.Retry)
}

// SubmitBuy 提交限价买单
func (l *Lifecycle) SubmitBuy(ctx context.Context, t *tracking.Ticker, qty, price decimal.Decimal, reason string) error {
	return l.submit(ctx, t, broker.OrderSideBuy, qty, price, reason)
}

// SubmitSell 提交限价卖单，数量不超过持仓
func (l *Lifecycle) SubmitSell(ctx context.Context, t *tracking.Ticker, qty, price decimal.Decimal, reason string) error {
	if qty.GreaterThan(t.Positions) {
		qty = t.Positions
	}
	return l.submit(ctx, t, broker.OrderSideSell, qty, price, reason)
}

// Cancel 主动撤销在途订单，确认后走 Cancelled 分支
func (l *Lifecycle) Cancel(ctx context.Context, t *tracking.Ticker, reason string) error {
	if !t.HasPending() || t.Pending.CancelRequested {
		return nil
	}
	return l.requestCancel(ctx, t, reason)
}

func (l *Lifecycle) submit(ctx context.Context, t *tracking.Ticker, side broker.OrderSide, qty, price decimal.Decimal, reason string) error {
	ctx, logger := log.WithCtx(ctx)
	logger.PushPrefix("Lifecycle")

	if t.HasPending() {
		return tracking.ErrPendingOrder
	}
	if !qty.IsPositive() {
		return ErrInvalidQuantity
	}

	now := l.sess.Now()
	id, err := l.exec.Submit(ctx, &executor.Order{
		Symbol:    t.Symbol,
		Side:      side,
		Quantity:  qty,
		Price:     price,
		Timestamp: now,
		Reason:    reason,
	})
	if err != nil {
		l.sess.Logf(t.Symbol, "submit_failed", "%s %s@%s: %v", side, qty.String(), price.String(), err)
		return fmt.Errorf("submit %s %s: %w", side, t.Symbol, err)
	}
	if id == "" {
		logger.Error("券商回执缺少订单号", "symbol", t.Symbol, "side", side)
		l.sess.Logf(t.Symbol, "malformed_ack", "%s %s@%s", side, qty.String(), price.String())
		return ErrMalformedAck
	}

	order := &tracking.Order{
		ID:        id,
		Symbol:    t.Symbol,
		Side:      side,
		Quantity:  qty,
		Price:     price,
		Status:    broker.StatusPending,
		Reason:    reason,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := l.store.SaveOrder(ctx, order); err != nil {
		logger.Error("保存订单失败", "order_id", id, "error", err)
	}

	if err := t.SetPending(&tracking.PendingOrder{
		OrderID:     id,
		Side:        side,
		Quantity:    qty,
		Price:       price,
		SubmittedAt: now,
		Reason:      reason,
	}); err != nil {
		return err
	}

	l.sess.Logf(t.Symbol, "submit_"+strings.ToLower(string(side)), "id=%s qty=%s price=%s reason=%s",
		id, qty.String(), price.String(), reason)
	logger.Info(fmt.Sprintf("%s 提交%s单 %s %s@%s (%s)", t.Symbol, side, id, qty.String(), price.String(), reason))
	return nil
}

// FailedSellDue 转人工的标的是否到了再试一次卖出的时间
func (l *Lifecycle) FailedSellDue(t *tracking.Ticker) bool {
	if !t.FailedToSell() || t.HasPending() || !t.Holding() {
		return false
	}
	interval := l.config.FailedSellRetry()
	return interval > 0 && l.sess.Now().Sub(t.FailedSellAt) >= interval
}

// RetryFailedSell 转人工的标的按完整的重试预算再卖一次，仍失败时不重复通知
func (l *Lifecycle) RetryFailedSell(ctx context.Context, t *tracking.Ticker, price decimal.Decimal, reason string) error {
	if !t.FailedToSell() || t.HasPending() || !t.Holding() {
		return nil
	}
	t.Retry.Reset()
	t.FailedSellAt = l.sess.Now()
	l.sess.Logf(t.Symbol, "retry_failed_sell", "%s@%s %s", t.Positions.String(), price.String(), reason)
	return l.SubmitSell(ctx, t, t.Positions, price, reason)
}

// Reconcile 轮询所有在途订单
//
// 查询失败推迟到下一轮；执行类错误记录后继续；只有未知状态返回错误。
func (l *Lifecycle) Reconcile(ctx context.Context) error {
	ctx, logger := log.WithCtx(ctx)
	logger.PushPrefix("Lifecycle")

	for _, t := range l.tracker.Tickers() {
		if !t.HasPending() {
			continue
		}
		if err := l.ReconcileTicker(ctx, t); err != nil {
			if IsFatal(err) {
				return err
			}
			logger.Error("订单处理失败", "symbol", t.Symbol, "error", err)
		}
	}
	return nil
}

// ReconcileTicker 处理单个标的的在途订单
func (l *Lifecycle) ReconcileTicker(ctx context.Context, t *tracking.Ticker) error {
	ctx, logger := log.WithCtx(ctx)

	if !t.HasPending() {
		return nil
	}
	p := t.Pending

	report, err := l.exec.Status(ctx, t.Symbol, p.OrderID)
	if err != nil {
		logger.Error("查询订单状态失败，下一轮重试", "symbol", t.Symbol, "order_id", p.OrderID, "error", err)
		l.sess.Logf(t.Symbol, "status_deferred", "%s: %v", p.OrderID, err)
		return nil
	}
	if !report.Status.IsKnown() {
		l.sess.Logf(t.Symbol, "unknown_status", "%s: %s", p.OrderID, report.Status)
		return &OrderStatusError{Symbol: t.Symbol, OrderID: p.OrderID, Status: report.Status}
	}

	l.saveReport(ctx, t, p, report)
	return l.handlers.HandleStatus(ctx, l, t, report)
}

func (l *Lifecycle) saveReport(ctx context.Context, t *tracking.Ticker, p *tracking.PendingOrder, report *broker.OrderReport) {
	_, logger := log.WithCtx(ctx)
	order := &tracking.Order{
		ID:        p.OrderID,
		Symbol:    t.Symbol,
		Side:      p.Side,
		Quantity:  p.Quantity,
		Price:     p.Price,
		FilledQty: report.FilledQty,
		AvgPrice:  report.AvgPrice,
		Status:    report.Status,
		Reason:    p.Reason,
		CreatedAt: p.SubmittedAt,
		UpdatedAt: l.sess.Now(),
	}
	if err := l.store.SaveOrder(ctx, order); err != nil {
		logger.Error("更新订单失败", "order_id", p.OrderID, "error", err)
	}
}
