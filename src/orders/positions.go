package orders

import (
	"context"
	"fmt"
	"time"

	"equitybot/src/broker"
	"equitybot/src/database"
	"equitybot/src/executor"
	"equitybot/src/tracking"

	"github.com/shopspring/decimal"
	"github.com/xpwu/go-log/log"
)

// PositionTracker 持仓缓存：成交入账、平仓生成交易记录、与券商对账
type PositionTracker struct {
	exec    executor.Executor
	store   database.OrderStore
	tracker *tracking.Tracker
	config  Config

	cash     decimal.Decimal
	dayPL    decimal.Decimal
	holdings map[string]*broker.Holding
	trades   []*tracking.Trade
}

// NewPositionTracker 创建持仓缓存
func NewPositionTracker(exec executor.Executor, store database.OrderStore, tracker *tracking.Tracker, config Config) *PositionTracker {
	return &PositionTracker{
		exec:     exec,
		store:    store,
		tracker:  tracker,
		config:   config,
		holdings: make(map[string]*broker.Holding),
	}
}

// Accumulate 买入成交：新建或累加持仓，扣减现金
func (pt *PositionTracker) Accumulate(ctx context.Context, t *tracking.Ticker, orderID string, qty, price decimal.Decimal, now time.Time) {
	ctx, logger := log.WithCtx(ctx)
	logger.PushPrefix("PositionTracker")

	if t.Position == nil {
		t.Position = &tracking.Position{
			Symbol:  t.Symbol,
			Style:   t.Style,
			BuyTime: now,
			Setup:   t.Setup,
		}
	}
	p := t.Position
	p.Accumulate(orderID, qty, price)
	p.TargetUnits = t.TargetUnits
	p.StopLossPrice = t.StopLoss

	t.Positions = p.Quantity
	t.InitialCost = p.AvgCost()
	pt.cash = pt.cash.Sub(qty.Mul(price))

	logger.Info(fmt.Sprintf("%s 买入入账 %s@%s，持仓 %s 均价 %s",
		t.Symbol, qty.String(), price.String(), p.Quantity.String(), p.AvgCost().StringFixed(4)))
	pt.savePosition(ctx, p)
}

// FinishBuy 一张买单结束且有成交：计一个单位
func (pt *PositionTracker) FinishBuy(ctx context.Context, t *tracking.Ticker, now time.Time) {
	t.Units++
	t.LastBuyTime = now
	if t.Position != nil {
		t.Position.Units = t.Units
		pt.savePosition(ctx, t.Position)
	}
}

// Reduce 卖出成交：减仓，全部卖出时写交易记录、删持仓、更新连胜连败
func (pt *PositionTracker) Reduce(ctx context.Context, t *tracking.Ticker, orderID string, qty, price decimal.Decimal, now time.Time, reason string) *tracking.Trade {
	ctx, logger := log.WithCtx(ctx)
	logger.PushPrefix("PositionTracker")

	p := t.Position
	if p == nil {
		logger.Error("卖出成交但没有持仓记录", "symbol", t.Symbol, "order_id", orderID)
		return nil
	}

	sold := decimal.Min(qty, p.Quantity)
	pnl := p.Reduce(orderID, sold, price)
	t.Positions = p.Quantity
	pt.cash = pt.cash.Add(sold.Mul(price))
	pt.dayPL = pt.dayPL.Add(pnl)

	if !p.Closed() {
		logger.Info(fmt.Sprintf("%s 部分卖出 %s@%s，剩余 %s", t.Symbol, sold.String(), price.String(), p.Quantity.String()))
		pt.savePosition(ctx, p)
		return nil
	}

	trade := p.Close(now, reason)
	if err := pt.store.SaveTrade(ctx, trade); err != nil {
		logger.Error("保存交易记录失败", "symbol", t.Symbol, "error", err)
	}
	if err := pt.store.DeletePosition(ctx, t.Symbol); err != nil {
		logger.Error("删除持仓失败", "symbol", t.Symbol, "error", err)
	}

	// 连胜连败只在这里变化
	pt.tracker.Stat(t.Symbol).RecordTrade(trade, pt.config.LoseStreakLimit, pt.config.Cooldown())
	pt.trades = append(pt.trades, trade)

	logger.Info(fmt.Sprintf("%s 平仓 pnl=%s rate=%s%% reason=%s",
		t.Symbol, trade.PnL.StringFixed(2), trade.PnLRate.Mul(decimal.NewFromInt(100)).StringFixed(2), reason))

	t.LastSellTime = now
	t.Reset()
	return trade
}

func (pt *PositionTracker) savePosition(ctx context.Context, p *tracking.Position) {
	_, logger := log.WithCtx(ctx)
	if err := pt.store.SavePosition(ctx, p); err != nil {
		logger.Error("保存持仓失败", "symbol", p.Symbol, "error", err)
	}
}

// Refresh 从券商刷新持仓和现金，失败时由调用方推迟到下一轮
func (pt *PositionTracker) Refresh(ctx context.Context) error {
	ctx, logger := log.WithCtx(ctx)
	logger.PushPrefix("PositionTracker")

	holdings, err := pt.exec.Positions(ctx)
	if err != nil {
		return fmt.Errorf("query positions: %w", err)
	}
	account, err := pt.exec.Account(ctx)
	if err != nil {
		return fmt.Errorf("query account: %w", err)
	}

	pt.holdings = make(map[string]*broker.Holding, len(holdings))
	for _, h := range holdings {
		pt.holdings[h.Symbol] = h
	}
	pt.cash = account.Cash
	pt.dayPL = account.DayPL

	for _, t := range pt.tracker.Tickers() {
		if t.HasPending() || t.Position == nil {
			continue
		}
		h := pt.holdings[t.Symbol]
		if h == nil || !h.Quantity.Equal(t.Positions) {
			broker := decimal.Zero
			if h != nil {
				broker = h.Quantity
			}
			logger.Error("持仓与券商不一致", "symbol", t.Symbol, "local", t.Positions.String(), "broker", broker.String())
		}
	}
	return nil
}

// Restore 启动时从存储恢复未平仓持仓
func (pt *PositionTracker) Restore(ctx context.Context, now time.Time) (int, error) {
	ctx, logger := log.WithCtx(ctx)
	logger.PushPrefix("PositionTracker")

	positions, err := pt.store.LoadPositions(ctx)
	if err != nil {
		return 0, fmt.Errorf("load positions: %w", err)
	}

	for _, p := range positions {
		t, ok := pt.tracker.Get(p.Symbol)
		if !ok {
			t = tracking.NewTicker(p.Symbol, p.Style, now, pt.config.Retry)
			pt.tracker.Add(t)
		}
		t.Position = p
		t.Positions = p.Quantity
		t.Units = p.Units
		t.TargetUnits = p.TargetUnits
		t.StopLoss = p.StopLossPrice
		t.InitialCost = p.AvgCost()
		t.LastBuyTime = p.BuyTime
		t.Setup = p.Setup
		logger.Info(fmt.Sprintf("恢复持仓 %s qty=%s style=%s", p.Symbol, p.Quantity.String(), p.Style))
	}
	return len(positions), nil
}

// Cash 现金
func (pt *PositionTracker) Cash() decimal.Decimal {
	return pt.cash
}

// SetCash 初始化现金
func (pt *PositionTracker) SetCash(cash decimal.Decimal) {
	pt.cash = cash
}

// DayPL 当日已实现盈亏
func (pt *PositionTracker) DayPL() decimal.Decimal {
	return pt.dayPL
}

// Holding 券商端持仓
func (pt *PositionTracker) Holding(symbol string) (*broker.Holding, bool) {
	h, ok := pt.holdings[symbol]
	return h, ok
}

// Trades 本会话平仓记录
func (pt *PositionTracker) Trades() []*tracking.Trade {
	return append([]*tracking.Trade(nil), pt.trades...)
}
