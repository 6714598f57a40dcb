package market

import (
	"errors"
	"fmt"
)

var (
	// ErrStaleWindow 最新K线过旧
	ErrStaleWindow = errors.New("stale bar window")

	// ErrShortWindow K线数量不足
	ErrShortWindow = errors.New("short bar window")

	// ErrGap K线不连续
	ErrGap = errors.New("bar window has gaps")

	// ErrNoBars 没有数据
	ErrNoBars = errors.New("no bars")
)

// DataError 行情数据问题，本地恢复：跳过本轮或停止跟踪，不会致命
type DataError struct {
	Symbol string
	Err    error
}

func (e *DataError) Error() string {
	return fmt.Sprintf("data error for %s: %v", e.Symbol, e.Err)
}

func (e *DataError) Unwrap() error {
	return e.Err
}

// NewDataError 包装数据错误
func NewDataError(symbol string, err error) *DataError {
	return &DataError{Symbol: symbol, Err: err}
}
