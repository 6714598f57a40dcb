package executor

import (
	"context"
	"fmt"

	"equitybot/src/broker"
	"equitybot/src/timeframes"

	"github.com/xpwu/go-log/log"
)

// LiveExecutor 实盘交易执行器
type LiveExecutor struct {
	client broker.Broker
}

// NewLiveExecutor 创建实盘交易执行器
func NewLiveExecutor(client broker.Broker) *LiveExecutor {
	return &LiveExecutor{client: client}
}

// Submit 提交真实限价单
func (e *LiveExecutor) Submit(ctx context.Context, order *Order) (string, error) {
	ctx, logger := log.WithCtx(ctx)
	logger.PushPrefix("LiveExecutor")

	orderID, err := e.client.SubmitLimitOrder(ctx, order.Symbol, order.Side, order.Price, order.Quantity)
	if err != nil {
		logger.Error(fmt.Sprintf("%s 下单失败: %v", e.client.GetName(), err))
		return "", fmt.Errorf("submit %s %s: %w", order.Side, order.Symbol, err)
	}

	// 打印结构化日志用于数据分析
	logger.Info("TRADE_RECORD",
		"mode", "LIVE",
		"action", order.Side,
		"order_id", orderID,
		"symbol", order.Symbol,
		"quantity", order.Quantity.String(),
		"price", order.Price.String(),
		"notional", order.Notional().String(),
		"timestamp", order.Timestamp.Format("2006-01-02T15:04:05Z"),
		"reason", order.Reason)

	return orderID, nil
}

// Status 查询订单
func (e *LiveExecutor) Status(ctx context.Context, symbol, orderID string) (*broker.OrderReport, error) {
	return e.client.GetOrder(ctx, symbol, orderID)
}

// Cancel 撤单
func (e *LiveExecutor) Cancel(ctx context.Context, symbol, orderID string) (bool, error) {
	ctx, logger := log.WithCtx(ctx)
	logger.PushPrefix("LiveExecutor")

	ok, err := e.client.CancelOrder(ctx, symbol, orderID)
	if err != nil {
		return false, fmt.Errorf("cancel %s %s: %w", symbol, orderID, err)
	}
	logger.Info(fmt.Sprintf("撤单 %s %s accepted=%v", symbol, orderID, ok))
	return ok, nil
}

// Positions 券商持仓
func (e *LiveExecutor) Positions(ctx context.Context) ([]*broker.Holding, error) {
	return e.client.GetPositions(ctx)
}

// Account 账户
func (e *LiveExecutor) Account(ctx context.Context) (*broker.Account, error) {
	return e.client.GetAccount(ctx)
}

// Quote 报价
func (e *LiveExecutor) Quote(ctx context.Context, symbol string) (*broker.Quote, error) {
	return e.client.Quote(ctx, symbol)
}

// Candidates 券商涨跌幅榜
func (e *LiveExecutor) Candidates(ctx context.Context, class timeframes.HourClass, ranking Ranking) ([]*broker.Candidate, error) {
	if ranking == RankingLosers {
		return e.client.GetTopLosers(ctx, class)
	}
	return e.client.GetTopGainers(ctx, class)
}

// GetName 获取执行器名称
func (e *LiveExecutor) GetName() string {
	return "LiveExecutor(" + e.client.GetName() + ")"
}

// Close 实盘执行器无需特殊清理
func (e *LiveExecutor) Close() error {
	return nil
}
