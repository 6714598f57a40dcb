package indicators

import "errors"

var (
	// ErrInsufficientData 窗口短于计算周期
	ErrInsufficientData = errors.New("indicators: window shorter than period")

	ErrInvalidPeriod     = errors.New("indicators: period must be positive")
	ErrInvalidMultiplier = errors.New("indicators: band multiplier must be positive")
)
