package orders

import (
	"errors"
	"fmt"

	"equitybot/src/broker"
)

var (
	// ErrMalformedAck 券商回执没有订单号，本次操作放弃
	ErrMalformedAck = errors.New("malformed order acknowledgement")

	// ErrInvalidQuantity 下单数量不合法
	ErrInvalidQuantity = errors.New("order quantity must be positive")
)

// OrderStatusError 券商返回了无法识别的订单状态，说明接口契约已变化，致命
type OrderStatusError struct {
	Symbol  string
	OrderID string
	Status  broker.OrderStatus
}

func (e *OrderStatusError) Error() string {
	return fmt.Sprintf("unknown status %q for order %s (%s)", e.Status, e.OrderID, e.Symbol)
}

// ExecutionError 撤单或重提预算耗尽，转人工处理后继续跟踪
type ExecutionError struct {
	Symbol   string
	Side     broker.OrderSide
	Attempts int
	Err      error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("%s %s gave up after %d attempts: %v", e.Side, e.Symbol, e.Attempts, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// IsFatal 只有未知订单状态需要上抛给宿主
func IsFatal(err error) bool {
	var statusErr *OrderStatusError
	return errors.As(err, &statusErr)
}
