package broker

import (
	"context"
	"time"

	"equitybot/src/market"
	"equitybot/src/timeframes"

	"github.com/shopspring/decimal"
)

// OrderSide 订单方向
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// OrderStatus 订单状态，Filled/Cancelled/Failed 为终态
type OrderStatus string

const (
	StatusPending         OrderStatus = "PENDING"
	StatusWorking         OrderStatus = "WORKING"
	StatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	StatusFilled          OrderStatus = "FILLED"
	StatusCancelled       OrderStatus = "CANCELLED"
	StatusFailed          OrderStatus = "FAILED"
)

// IsKnown 是否为已知状态
func (s OrderStatus) IsKnown() bool {
	switch s {
	case StatusPending, StatusWorking, StatusPartiallyFilled, StatusFilled, StatusCancelled, StatusFailed:
		return true
	}
	return false
}

// IsTerminal 是否为终态
func (s OrderStatus) IsTerminal() bool {
	return s == StatusFilled || s == StatusCancelled || s == StatusFailed
}

// Quote 报价
type Quote struct {
	Symbol string          `json:"symbol"`
	Bid    decimal.Decimal `json:"bid"`
	Ask    decimal.Decimal `json:"ask"`
	Last   decimal.Decimal `json:"last"`
}

// OrderReport 订单查询结果，Status 为券商原始状态映射后的值，可能是未知值
type OrderReport struct {
	OrderID   string          `json:"order_id"`
	Symbol    string          `json:"symbol"`
	Side      OrderSide       `json:"side"`
	Status    OrderStatus     `json:"status"`
	Quantity  decimal.Decimal `json:"quantity"`
	FilledQty decimal.Decimal `json:"filled_qty"`
	AvgPrice  decimal.Decimal `json:"avg_price"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Holding 券商端持仓
type Holding struct {
	Symbol   string          `json:"symbol"`
	Quantity decimal.Decimal `json:"quantity"`
	AvgCost  decimal.Decimal `json:"avg_cost"`
}

// Account 账户概况
type Account struct {
	Cash  decimal.Decimal `json:"cash"`
	DayPL decimal.Decimal `json:"day_pl"`
}

// Candidate 涨跌幅榜候选
type Candidate struct {
	Symbol        string          `json:"symbol"`
	Last          decimal.Decimal `json:"last"`
	ChangePercent decimal.Decimal `json:"change_percent"`
	Volume        decimal.Decimal `json:"volume"`
	Turnover      decimal.Decimal `json:"turnover"`
}

// Broker 券商能力接口
type Broker interface {
	// GetName 券商名称
	GetName() string

	// Quote 买一卖一和最新价
	Quote(ctx context.Context, symbol string) (*Quote, error)

	// SubmitLimitOrder 提交限价单，返回订单号；返回空订单号视为回执异常
	SubmitLimitOrder(ctx context.Context, symbol string, side OrderSide, price, qty decimal.Decimal) (string, error)

	// GetOrder 查询订单状态
	GetOrder(ctx context.Context, symbol, orderID string) (*OrderReport, error)

	// CancelOrder 撤单，返回券商是否受理
	CancelOrder(ctx context.Context, symbol, orderID string) (bool, error)

	// GetPositions 持仓列表
	GetPositions(ctx context.Context) ([]*Holding, error)

	// GetAccount 现金与当日盈亏
	GetAccount(ctx context.Context) (*Account, error)

	// GetTopGainers 涨幅榜
	GetTopGainers(ctx context.Context, class timeframes.HourClass) ([]*Candidate, error)

	// GetTopLosers 跌幅榜
	GetTopLosers(ctx context.Context, class timeframes.HourClass) ([]*Candidate, error)

	// GetBars 拉取历史1分钟K线，用于回补本地库
	GetBars(ctx context.Context, symbol string, start, end time.Time, limit int) ([]*market.Bar, error)

	// Ping 连通性测试
	Ping(ctx context.Context) error
}

// TokenSource 需要定期续期会话令牌的券商实现此接口
type TokenSource interface {
	RefreshToken(ctx context.Context) (string, error)
}
