package orders

import (
	"context"
	"errors"
	"fmt"

	"equitybot/src/broker"
	"equitybot/src/notify"
	"equitybot/src/tracking"

	"github.com/shopspring/decimal"
	"github.com/xpwu/go-log/log"
)

var errCancelRejected = errors.New("cancel rejected by broker")

// StatusHandler 订单状态处理器接口
type StatusHandler interface {
	// HandleStatus 处理一次状态回报，调用时 ticker 一定有在途订单
	HandleStatus(ctx context.Context, l *Lifecycle, t *tracking.Ticker, report *broker.OrderReport) error
}

// StatusHandlerFunc 函数形式的状态处理器
type StatusHandlerFunc func(ctx context.Context, l *Lifecycle, t *tracking.Ticker, report *broker.OrderReport) error

// HandleStatus 实现 StatusHandler
func (f StatusHandlerFunc) HandleStatus(ctx context.Context, l *Lifecycle, t *tracking.Ticker, report *broker.OrderReport) error {
	return f(ctx, l, t, report)
}

// StatusHandlerRegistry 订单状态处理器注册表
type StatusHandlerRegistry struct {
	handlers map[broker.OrderStatus]StatusHandler
}

// NewStatusHandlerRegistry 创建注册表
func NewStatusHandlerRegistry() *StatusHandlerRegistry {
	return &StatusHandlerRegistry{
		handlers: make(map[broker.OrderStatus]StatusHandler),
	}
}

// RegisterHandler 注册状态处理器
func (r *StatusHandlerRegistry) RegisterHandler(status broker.OrderStatus, handler StatusHandler) {
	r.handlers[status] = handler
}

// HandleStatus 分发状态，没有处理器的状态按未知状态处理
func (r *StatusHandlerRegistry) HandleStatus(ctx context.Context, l *Lifecycle, t *tracking.Ticker, report *broker.OrderReport) error {
	handler, exists := r.handlers[report.Status]
	if !exists {
		return &OrderStatusError{Symbol: t.Symbol, OrderID: report.OrderID, Status: report.Status}
	}
	return handler.HandleStatus(ctx, l, t, report)
}

func registerDefaultHandlers(r *StatusHandlerRegistry) {
	r.RegisterHandler(broker.StatusPending, StatusHandlerFunc(onWaiting))
	r.RegisterHandler(broker.StatusWorking, StatusHandlerFunc(onWaiting))
	r.RegisterHandler(broker.StatusPartiallyFilled, StatusHandlerFunc(onPartiallyFilled))
	r.RegisterHandler(broker.StatusFilled, StatusHandlerFunc(onFilled))
	r.RegisterHandler(broker.StatusCancelled, StatusHandlerFunc(onClosed))
	r.RegisterHandler(broker.StatusFailed, StatusHandlerFunc(onClosed))
}

// onWaiting 未成交，超时则撤单
func onWaiting(ctx context.Context, l *Lifecycle, t *tracking.Ticker, report *broker.OrderReport) error {
	return l.checkTimeout(ctx, t)
}

// onPartiallyFilled 部分成交：买单继续等，卖单撤掉原单后重提剩余
func onPartiallyFilled(ctx context.Context, l *Lifecycle, t *tracking.Ticker, report *broker.OrderReport) error {
	ctx, logger := log.WithCtx(ctx)
	logger.PushPrefix("Lifecycle")

	p := t.Pending
	l.book(ctx, t, report)

	if p.Side == broker.OrderSideBuy {
		return l.checkTimeout(ctx, t)
	}

	if !t.Holding() {
		t.ClearPending()
		t.Retry.Reset()
		return nil
	}

	if !p.CancelRequested {
		ok, err := l.exec.Cancel(ctx, t.Symbol, p.OrderID)
		if err != nil || !ok {
			// 原单还活着，不能重提
			logger.Error("部分成交卖单撤单失败", "symbol", t.Symbol, "order_id", p.OrderID, "error", err)
			return l.cancelFailed(ctx, t, err)
		}
		p.CancelRequested = true

		// 撤单受理后原单不再成交，再查一次拿到最终成交量
		final, err := l.exec.Status(ctx, t.Symbol, p.OrderID)
		if err != nil {
			logger.Error("撤单后查询失败，等待撤单回报", "symbol", t.Symbol, "order_id", p.OrderID, "error", err)
			l.sess.Logf(t.Symbol, "status_deferred", "%s: %v", p.OrderID, err)
			return nil
		}
		if !final.Status.IsKnown() {
			return &OrderStatusError{Symbol: t.Symbol, OrderID: p.OrderID, Status: final.Status}
		}
		l.saveReport(ctx, t, p, final)
		if final.Status == broker.StatusFilled {
			return onFilled(ctx, l, t, final)
		}
		l.book(ctx, t, final)
		if !t.Holding() {
			t.ClearPending()
			t.Retry.Reset()
			return nil
		}
	}

	t.ClearPending()
	l.sess.Logf(t.Symbol, "partial_sell", "order %s filled %s of %s, resubmit %s",
		p.OrderID, p.Booked.String(), p.Quantity.String(), t.Positions.String())
	return l.resubmit(ctx, t, p, report.Status)
}

// onFilled 全部成交
func onFilled(ctx context.Context, l *Lifecycle, t *tracking.Ticker, report *broker.OrderReport) error {
	p := t.Pending
	l.book(ctx, t, report)
	t.ClearPending()
	t.Retry.Reset()

	if p.Side == broker.OrderSideBuy && p.Booked.IsPositive() {
		l.positions.FinishBuy(ctx, t, l.sess.Now())
	}
	l.sess.Logf(t.Symbol, "filled", "%s %s %s@%s", p.Side, p.OrderID, p.Booked.String(), report.AvgPrice.String())
	return nil
}

// onClosed 撤单或失败：入账已成交部分，然后在预算内重提
func onClosed(ctx context.Context, l *Lifecycle, t *tracking.Ticker, report *broker.OrderReport) error {
	p := t.Pending
	l.book(ctx, t, report)
	t.ClearPending()
	l.sess.Logf(t.Symbol, "closed", "%s %s %s, filled %s", p.Side, p.OrderID, report.Status, p.Booked.String())

	if p.Side == broker.OrderSideBuy && p.Booked.IsPositive() {
		// 部分买入后撤单，保留已成交部分
		l.positions.FinishBuy(ctx, t, l.sess.Now())
		t.Retry.Reset()
		return nil
	}
	return l.resubmit(ctx, t, p, report.Status)
}

// book 把本次回报的新增成交量入账
//
// 回报里的均价是整张订单的累计均价，新增部分的成本 = 累计成交额 - 已入账金额。
func (l *Lifecycle) book(ctx context.Context, t *tracking.Ticker, report *broker.OrderReport) {
	p := t.Pending
	filled := decimal.Min(report.FilledQty, p.Quantity)
	delta := filled.Sub(p.Booked)
	if !delta.IsPositive() {
		return
	}

	price := p.Price
	if report.AvgPrice.IsPositive() {
		price = report.AvgPrice
		if amount := filled.Mul(report.AvgPrice).Sub(p.BookedAmount); amount.IsPositive() {
			price = amount.Div(delta)
		}
	}

	now := l.sess.Now()
	if p.Side == broker.OrderSideBuy {
		l.positions.Accumulate(ctx, t, p.OrderID, delta, price, now)
	} else {
		l.positions.Reduce(ctx, t, p.OrderID, delta, price, now, p.Reason)
	}
	p.Booked = p.Booked.Add(delta)
	p.BookedAmount = p.BookedAmount.Add(delta.Mul(price))
	l.sess.Logf(t.Symbol, "fill", "%s %s %s@%s", p.Side, p.OrderID, delta.String(), price.String())
}

// checkTimeout 在途超时则申请撤单，撤单确认后走 Cancelled 分支
func (l *Lifecycle) checkTimeout(ctx context.Context, t *tracking.Ticker) error {
	p := t.Pending
	if p.CancelRequested {
		return nil
	}
	if l.sess.Now().Sub(p.SubmittedAt) < l.config.Timeout(p.Side == broker.OrderSideSell) {
		return nil
	}
	return l.requestCancel(ctx, t, "timeout")
}

func (l *Lifecycle) requestCancel(ctx context.Context, t *tracking.Ticker, why string) error {
	p := t.Pending
	ok, err := l.exec.Cancel(ctx, t.Symbol, p.OrderID)
	if err == nil && ok {
		p.CancelRequested = true
		l.sess.Logf(t.Symbol, "cancel_requested", "%s %s: %s", p.Side, p.OrderID, why)
		return nil
	}
	return l.cancelFailed(ctx, t, err)
}

// cancelFailed 撤单失败同样消耗重试预算
func (l *Lifecycle) cancelFailed(ctx context.Context, t *tracking.Ticker, err error) error {
	p := t.Pending
	if err == nil {
		err = errCancelRejected
	}
	l.sess.Logf(t.Symbol, "cancel_failed", "%s %s: %v", p.Side, p.OrderID, err)

	if t.Retry.Allow() {
		t.Retry.Consume()
		return nil
	}

	if p.Side == broker.OrderSideSell {
		return l.failedToSell(ctx, t, err)
	}

	// 买单撤不掉：通知人工，放弃这个标的
	notify.Alertf(ctx, l.notifier, "⚠️ %s 买单 %s 无法撤销，请人工处理: %v", t.Symbol, p.OrderID, err)
	attempts := t.Retry.Attempts
	t.ClearPending()
	l.abandonBuy(ctx, t)
	return &ExecutionError{Symbol: t.Symbol, Side: broker.OrderSideBuy, Attempts: attempts, Err: err}
}

// resubmit 在预算内按原方向重提剩余数量
func (l *Lifecycle) resubmit(ctx context.Context, t *tracking.Ticker, p *tracking.PendingOrder, status broker.OrderStatus) error {
	remaining := p.Remaining()
	if p.Side == broker.OrderSideSell {
		remaining = t.Positions
	}
	if !remaining.IsPositive() {
		t.Retry.Reset()
		return nil
	}

	if t.Retry.Exhausted() {
		if p.Side == broker.OrderSideSell {
			return l.failedToSell(ctx, t, fmt.Errorf("order %s %s", p.OrderID, status))
		}
		l.abandonBuy(ctx, t)
		return nil
	}

	t.Retry.Consume()
	price := l.repriceFor(ctx, t.Symbol, p)
	l.sess.Logf(t.Symbol, "resubmit", "%s %s@%s attempt %d/%d",
		p.Side, remaining.String(), price.String(), t.Retry.Attempts, t.Retry.Limit)
	return l.submit(ctx, t, p.Side, remaining, price, p.Reason)
}

// repriceFor 重提价：卖单取买一，买单取卖一，拿不到报价沿用原价
func (l *Lifecycle) repriceFor(ctx context.Context, symbol string, p *tracking.PendingOrder) decimal.Decimal {
	q, err := l.exec.Quote(ctx, symbol)
	if err != nil || q == nil {
		return p.Price
	}
	if p.Side == broker.OrderSideSell && q.Bid.IsPositive() {
		return q.Bid
	}
	if p.Side == broker.OrderSideBuy && q.Ask.IsPositive() {
		return q.Ask
	}
	return p.Price
}

// failedToSell 卖出预算耗尽：标记并通知一次，标的继续跟踪等人工处理
func (l *Lifecycle) failedToSell(ctx context.Context, t *tracking.Ticker, cause error) error {
	execErr := &ExecutionError{Symbol: t.Symbol, Side: broker.OrderSideSell, Attempts: t.Retry.Attempts, Err: cause}
	t.FailedSellAt = l.sess.Now()
	if t.FailedToSell() {
		return execErr
	}

	t.Setup = tracking.SetupFailedToSell
	if t.Position != nil {
		t.Position.Setup = tracking.SetupFailedToSell
		l.positions.savePosition(ctx, t.Position)
	}
	l.sess.Logf(t.Symbol, "failed_to_sell", "%v", cause)
	notify.Alertf(ctx, l.notifier, "⚠️ %s failed to sell after %d attempts, %s shares need manual handling: %v",
		t.Symbol, t.Retry.Attempts, t.Positions.String(), cause)
	return execErr
}

// abandonBuy 买入预算耗尽：空仓则丢弃标的，加仓失败则保留原持仓
func (l *Lifecycle) abandonBuy(ctx context.Context, t *tracking.Ticker) {
	attempts := t.Retry.Attempts
	t.Retry.Reset()
	if t.Holding() {
		l.sess.Logf(t.Symbol, "scale_in_abandoned", "after %d attempts", attempts)
		return
	}
	t.Dropped = true
	l.sess.Logf(t.Symbol, "drop", "buy not filled after %d attempts", attempts)
}
