package executor

import (
	"context"
	"errors"
	"time"

	"equitybot/src/broker"
	"equitybot/src/timeframes"

	"github.com/shopspring/decimal"
)

var (
	// ErrUnknownOrder 订单号不存在
	ErrUnknownOrder = errors.New("unknown order")

	// ErrNoPrice 无法取得价格
	ErrNoPrice = errors.New("no price available")
)

// Ranking 候选榜单
type Ranking string

const (
	RankingGainers Ranking = "gainers"
	RankingLosers  Ranking = "losers"
)

// Order 下单请求
type Order struct {
	Symbol    string           `json:"symbol"`
	Side      broker.OrderSide `json:"side"`
	Quantity  decimal.Decimal  `json:"quantity"`
	Price     decimal.Decimal  `json:"price"` // 限价
	Timestamp time.Time        `json:"timestamp"`
	Reason    string           `json:"reason"` // 交易原因
}

// Notional 名义金额
func (o *Order) Notional() decimal.Decimal {
	return o.Quantity.Mul(o.Price)
}

// Executor 交易执行器接口，实盘走券商，回测走本地价格模型
type Executor interface {
	// GetName 获取执行器名称
	GetName() string

	// Submit 提交限价单，返回订单号
	Submit(ctx context.Context, order *Order) (string, error)

	// Status 查询订单状态
	Status(ctx context.Context, symbol, orderID string) (*broker.OrderReport, error)

	// Cancel 撤单，返回是否受理
	Cancel(ctx context.Context, symbol, orderID string) (bool, error)

	// Positions 券商端持仓
	Positions(ctx context.Context) ([]*broker.Holding, error)

	// Account 现金与当日盈亏
	Account(ctx context.Context) (*broker.Account, error)

	// Quote 最新报价
	Quote(ctx context.Context, symbol string) (*broker.Quote, error)

	// Candidates 涨跌幅榜
	Candidates(ctx context.Context, class timeframes.HourClass, ranking Ranking) ([]*broker.Candidate, error)

	// Close 关闭执行器，清理资源
	Close() error
}
