package executor

import (
	"context"
	"fmt"
	"sort"
	"time"

	"equitybot/src/broker"
	"equitybot/src/market"
	"equitybot/src/session"
	"equitybot/src/timeframes"

	"github.com/shopspring/decimal"
	"github.com/xpwu/go-log/log"
)

// BarReader 截至某时刻的K线窗口，database.BarManager 和各 BarStore 都满足
type BarReader interface {
	GetBars(ctx context.Context, symbol string, asOf time.Time, count int) (market.Window, error)
}

// BacktestConfig 回测执行器配置
type BacktestConfig struct {
	InitialCapital    decimal.Decimal `json:"initial_capital"`
	Commission        decimal.Decimal `json:"commission"`         // 手续费率
	FillMarkup        decimal.Decimal `json:"fill_markup"`        // 买入高于突破位、卖出低于低点的比例
	Universe          []string        `json:"universe"`           // 候选池
	CandidateLookback int             `json:"candidate_lookback"` // 计算涨跌幅的K线根数
	CandidateLimit    int             `json:"candidate_limit"`    // 榜单长度
}

// DefaultBacktestConfig 默认回测配置
func DefaultBacktestConfig() BacktestConfig {
	return BacktestConfig{
		InitialCapital:    decimal.NewFromInt(100000),
		Commission:        decimal.Zero,
		FillMarkup:        decimal.NewFromFloat(0.01),
		CandidateLookback: 30,
		CandidateLimit:    10,
	}
}

// BacktestExecutor 回测执行器：按K线价格模型立即成交，本地现金账本
type BacktestExecutor struct {
	clock  session.Clock
	bars   BarReader
	config BacktestConfig
	market broker.Broker // 非空时报价和榜单走真实行情（模拟盘）

	cash            decimal.Decimal
	dayPL           decimal.Decimal
	totalCommission decimal.Decimal
	holdings        map[string]*broker.Holding
	orders          map[string]*broker.OrderReport
	seq             int
}

// NewBacktestExecutor 创建回测执行器
func NewBacktestExecutor(clock session.Clock, bars BarReader, config BacktestConfig) *BacktestExecutor {
	return &BacktestExecutor{
		clock:    clock,
		bars:     bars,
		config:   config,
		cash:     config.InitialCapital,
		holdings: make(map[string]*broker.Holding),
		orders:   make(map[string]*broker.OrderReport),
	}
}

// SetMarket 模拟盘：报价和榜单使用真实券商
func (e *BacktestExecutor) SetMarket(b broker.Broker) {
	e.market = b
}

// FillPrice 价格模型：买入取最近一根已收盘K线最高价上浮，卖出取其最低价下浮
//
// 与策略看到的窗口一致，不读取还在形成的K线。
func (e *BacktestExecutor) FillPrice(ctx context.Context, symbol string, side broker.OrderSide) (decimal.Decimal, error) {
	ref, err := e.lastClosed(ctx, symbol)
	if err != nil {
		return decimal.Zero, err
	}
	if ref == nil {
		return decimal.Zero, market.NewDataError(symbol, ErrNoPrice)
	}

	one := decimal.NewFromInt(1)
	if side == broker.OrderSideBuy {
		return ref.High.Mul(one.Add(e.config.FillMarkup)).Round(4), nil
	}
	return ref.Low.Mul(one.Sub(e.config.FillMarkup)).Round(4), nil
}

// Submit 按价格模型立即成交；资金或持仓不足时订单为 Failed
func (e *BacktestExecutor) Submit(ctx context.Context, order *Order) (string, error) {
	ctx, logger := log.WithCtx(ctx)
	logger.PushPrefix("BacktestExecutor")

	if !order.Quantity.IsPositive() {
		return "", fmt.Errorf("invalid quantity %s for %s", order.Quantity, order.Symbol)
	}

	price, err := e.FillPrice(ctx, order.Symbol, order.Side)
	if err != nil {
		return "", err
	}

	e.seq++
	now := e.clock.Now()
	report := &broker.OrderReport{
		OrderID:   fmt.Sprintf("bt-%06d", e.seq),
		Symbol:    order.Symbol,
		Side:      order.Side,
		Status:    broker.StatusFilled,
		Quantity:  order.Quantity,
		FilledQty: order.Quantity,
		AvgPrice:  price,
		UpdatedAt: now,
	}
	e.orders[report.OrderID] = report

	notional := order.Quantity.Mul(price)
	commission := notional.Mul(e.config.Commission)

	if order.Side == broker.OrderSideBuy {
		totalCost := notional.Add(commission)
		if e.cash.LessThan(totalCost) {
			logger.Error("现金不足", "symbol", order.Symbol, "required", totalCost.String(), "available", e.cash.String())
			e.fail(report)
			return report.OrderID, nil
		}
		e.cash = e.cash.Sub(totalCost)

		h, ok := e.holdings[order.Symbol]
		if !ok {
			h = &broker.Holding{Symbol: order.Symbol}
			e.holdings[order.Symbol] = h
		}
		cost := h.AvgCost.Mul(h.Quantity).Add(notional)
		h.Quantity = h.Quantity.Add(order.Quantity)
		h.AvgCost = cost.Div(h.Quantity)
	} else {
		h, ok := e.holdings[order.Symbol]
		if !ok || h.Quantity.LessThan(order.Quantity) {
			logger.Error("持仓不足", "symbol", order.Symbol, "required", order.Quantity.String())
			e.fail(report)
			return report.OrderID, nil
		}
		e.cash = e.cash.Add(notional.Sub(commission))
		e.dayPL = e.dayPL.Add(price.Sub(h.AvgCost).Mul(order.Quantity))
		h.Quantity = h.Quantity.Sub(order.Quantity)
		if !h.Quantity.IsPositive() {
			delete(e.holdings, order.Symbol)
		}
	}
	e.totalCommission = e.totalCommission.Add(commission)
	e.dayPL = e.dayPL.Sub(commission)

	// 打印结构化日志用于数据分析
	logger.Info("TRADE_RECORD",
		"mode", "BACKTEST",
		"action", order.Side,
		"order_id", report.OrderID,
		"symbol", order.Symbol,
		"quantity", order.Quantity.String(),
		"price", price.String(),
		"notional", notional.String(),
		"timestamp", now.Format("2006-01-02T15:04:05Z"),
		"reason", order.Reason)

	return report.OrderID, nil
}

func (e *BacktestExecutor) fail(report *broker.OrderReport) {
	report.Status = broker.StatusFailed
	report.FilledQty = decimal.Zero
	report.AvgPrice = decimal.Zero
}

// Status 回测订单在提交时已有终态
func (e *BacktestExecutor) Status(ctx context.Context, symbol, orderID string) (*broker.OrderReport, error) {
	report, ok := e.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownOrder, orderID)
	}
	r := *report
	return &r, nil
}

// Cancel 终态订单不可撤
func (e *BacktestExecutor) Cancel(ctx context.Context, symbol, orderID string) (bool, error) {
	report, ok := e.orders[orderID]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownOrder, orderID)
	}
	if report.Status.IsTerminal() {
		return false, nil
	}
	report.Status = broker.StatusCancelled
	return true, nil
}

// Positions 本地持仓，按标的排序
func (e *BacktestExecutor) Positions(ctx context.Context) ([]*broker.Holding, error) {
	out := make([]*broker.Holding, 0, len(e.holdings))
	for _, h := range e.holdings {
		c := *h
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

// Account 本地现金账本
func (e *BacktestExecutor) Account(ctx context.Context) (*broker.Account, error) {
	return &broker.Account{Cash: e.cash, DayPL: e.dayPL}, nil
}

// ResetDay 新交易日清零当日盈亏
func (e *BacktestExecutor) ResetDay() {
	e.dayPL = decimal.Zero
}

// lastClosed 此刻最近一根已收盘的K线，没有时返回 nil
func (e *BacktestExecutor) lastClosed(ctx context.Context, symbol string) (*market.Bar, error) {
	w, err := e.bars.GetBars(ctx, symbol, market.ClosedAsOf(e.clock.Now()), 1)
	if err != nil {
		return nil, err
	}
	return w.Last(), nil
}

// Quote 取最近一根已收盘K线的收盘价
func (e *BacktestExecutor) Quote(ctx context.Context, symbol string) (*broker.Quote, error) {
	if e.market != nil {
		return e.market.Quote(ctx, symbol)
	}
	last, err := e.lastClosed(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if last == nil {
		return nil, market.NewDataError(symbol, ErrNoPrice)
	}
	return &broker.Quote{Symbol: symbol, Bid: last.Close, Ask: last.Close, Last: last.Close}, nil
}

// Candidates 候选池按回看期涨跌幅排序，涨跌幅相同按标的排序
func (e *BacktestExecutor) Candidates(ctx context.Context, class timeframes.HourClass, ranking Ranking) ([]*broker.Candidate, error) {
	if e.market != nil {
		if ranking == RankingLosers {
			return e.market.GetTopLosers(ctx, class)
		}
		return e.market.GetTopGainers(ctx, class)
	}

	ctx, logger := log.WithCtx(ctx)
	logger.PushPrefix("BacktestExecutor")

	hundred := decimal.NewFromInt(100)
	var out []*broker.Candidate
	for _, symbol := range e.config.Universe {
		w, err := e.bars.GetBars(ctx, symbol, market.ClosedAsOf(e.clock.Now()), e.config.CandidateLookback+1)
		if err != nil {
			logger.Debug("候选K线不足", "symbol", symbol, "error", err)
			continue
		}
		if len(w) < 2 || !w[0].Close.IsPositive() {
			continue
		}

		change := w.Last().Close.Sub(w[0].Close).Div(w[0].Close).Mul(hundred)
		if ranking == RankingGainers && !change.IsPositive() {
			continue
		}
		if ranking == RankingLosers && !change.IsNegative() {
			continue
		}

		volume, turnover := decimal.Zero, decimal.Zero
		for _, b := range w {
			volume = volume.Add(b.Volume)
			turnover = turnover.Add(b.Amount())
		}
		out = append(out, &broker.Candidate{
			Symbol:        symbol,
			Last:          w.Last().Close,
			ChangePercent: change,
			Volume:        volume,
			Turnover:      turnover,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].ChangePercent.Equal(out[j].ChangePercent) {
			if ranking == RankingLosers {
				return out[i].ChangePercent.LessThan(out[j].ChangePercent)
			}
			return out[i].ChangePercent.GreaterThan(out[j].ChangePercent)
		}
		return out[i].Symbol < out[j].Symbol
	})
	if e.config.CandidateLimit > 0 && len(out) > e.config.CandidateLimit {
		out = out[:e.config.CandidateLimit]
	}
	return out, nil
}

// Equity 现金加持仓市值，持仓按最近收盘价估值
func (e *BacktestExecutor) Equity(ctx context.Context) (decimal.Decimal, error) {
	equity := e.cash
	for symbol, h := range e.holdings {
		last, err := e.lastClosed(ctx, symbol)
		if err != nil {
			return decimal.Zero, err
		}
		price := h.AvgCost
		if last != nil {
			price = last.Close
		}
		equity = equity.Add(h.Quantity.Mul(price))
	}
	return equity, nil
}

// Cash 现金余额
func (e *BacktestExecutor) Cash() decimal.Decimal {
	return e.cash
}

// TotalCommission 累计手续费
func (e *BacktestExecutor) TotalCommission() decimal.Decimal {
	return e.totalCommission
}

// OrderCount 已提交订单数
func (e *BacktestExecutor) OrderCount() int {
	return e.seq
}

// GetName 获取执行器名称
func (e *BacktestExecutor) GetName() string {
	if e.market != nil {
		return "DryRunExecutor"
	}
	return "BacktestExecutor"
}

// Close 回测执行器无需清理资源
func (e *BacktestExecutor) Close() error {
	return nil
}
