package tracking

import (
	"errors"
	"time"

	"equitybot/src/broker"

	"github.com/shopspring/decimal"
)

// SetupFailedToSell 卖出重试耗尽，待人工处理
const SetupFailedToSell = "failed to sell"

var (
	// ErrPendingOrder 同一标的只允许一张在途订单
	ErrPendingOrder = errors.New("ticker already has a pending order")
)

// PendingOrder 在途订单
type PendingOrder struct {
	OrderID         string
	Side            broker.OrderSide
	Quantity        decimal.Decimal
	Price           decimal.Decimal
	SubmittedAt     time.Time
	Reason          string
	Booked          decimal.Decimal // 已入账的成交量
	BookedAmount    decimal.Decimal // 已入账的成交额
	CancelRequested bool
}

// Remaining 未成交数量
func (p *PendingOrder) Remaining() decimal.Decimal {
	return p.Quantity.Sub(p.Booked)
}

// Ticker 会话内被跟踪的标的
type Ticker struct {
	Symbol    string
	Style     string
	CreatedAt time.Time

	Pending *PendingOrder
	Retry   RetryPolicy

	Positions    decimal.Decimal // 持股数
	Units        int
	TargetUnits  int
	StopLoss     decimal.Decimal
	TargetProfit decimal.Decimal
	MaxPLRate    decimal.Decimal
	LastPLRate   decimal.Decimal
	LastBuyTime  time.Time
	LastSellTime time.Time
	InitialCost  decimal.Decimal
	Position     *Position
	ExitPeriod   int // 大于0时覆盖策略的持仓周期
	Setup        string
	FailedSellAt time.Time // 最近一次卖出转人工或重试的时间
	Dropped      bool
}

// NewTicker 创建跟踪标的
func NewTicker(symbol, style string, now time.Time, retry RetryPolicy) *Ticker {
	retry.Reset()
	return &Ticker{
		Symbol:    symbol,
		Style:     style,
		CreatedAt: now,
		Retry:     retry,
	}
}

// HasPending 是否有在途订单
func (t *Ticker) HasPending() bool {
	return t.Pending != nil
}

// PendingBuy 在途买单
func (t *Ticker) PendingBuy() bool {
	return t.Pending != nil && t.Pending.Side == broker.OrderSideBuy
}

// PendingSell 在途卖单
func (t *Ticker) PendingSell() bool {
	return t.Pending != nil && t.Pending.Side == broker.OrderSideSell
}

// SetPending 挂上在途订单，已有在途订单时拒绝
func (t *Ticker) SetPending(p *PendingOrder) error {
	if t.Pending != nil {
		return ErrPendingOrder
	}
	t.Pending = p
	return nil
}

// ClearPending 清除在途订单
func (t *Ticker) ClearPending() {
	t.Pending = nil
}

// Holding 是否持仓
func (t *Ticker) Holding() bool {
	return t.Positions.IsPositive()
}

// IsFlat 无持仓且无在途订单
func (t *Ticker) IsFlat() bool {
	return !t.Holding() && !t.HasPending()
}

// FailedToSell 卖出已转人工
func (t *Ticker) FailedToSell() bool {
	return t.Setup == SetupFailedToSell
}

// State 当前状态机节点
func (t *Ticker) State() string {
	switch {
	case t.PendingBuy():
		return "pending_buy"
	case t.PendingSell():
		return "pending_sell"
	case t.Holding():
		return "holding"
	default:
		return "flat"
	}
}

// UpdatePL 按最新价刷新浮动盈亏率
func (t *Ticker) UpdatePL(price decimal.Decimal) {
	if t.Position == nil || !price.IsPositive() {
		return
	}
	avg := t.Position.AvgCost()
	if !avg.IsPositive() {
		return
	}
	t.LastPLRate = price.Sub(avg).Div(avg)
	if t.LastPLRate.GreaterThan(t.MaxPLRate) {
		t.MaxPLRate = t.LastPLRate
	}
}

// Reset 平仓后回到空仓
func (t *Ticker) Reset() {
	t.Positions = decimal.Zero
	t.Units = 0
	t.StopLoss = decimal.Zero
	t.TargetProfit = decimal.Zero
	t.MaxPLRate = decimal.Zero
	t.LastPLRate = decimal.Zero
	t.InitialCost = decimal.Zero
	t.Position = nil
	t.ExitPeriod = 0
	t.Setup = ""
	t.FailedSellAt = time.Time{}
}
