package indicators

import (
	"math"

	"equitybot/src/market"

	"github.com/shopspring/decimal"
)

// BollingerBands 布林带，用于判断价格是否过度偏离
type BollingerBands struct {
	Period     int             // 计算周期，通常为20
	Multiplier decimal.Decimal // 标准差倍数，通常为2
}

// BollingerBandsResult 布林带计算结果
type BollingerBandsResult struct {
	UpperBand  decimal.Decimal // 上轨
	MiddleBand decimal.Decimal // 中轨（移动平均线）
	LowerBand  decimal.Decimal // 下轨
	Price      decimal.Decimal // 当前价格
}

// NewBollingerBands 创建布林带
func NewBollingerBands(period int, multiplier float64) *BollingerBands {
	return &BollingerBands{
		Period:     period,
		Multiplier: decimal.NewFromFloat(multiplier),
	}
}

// Calculate 基于窗口收盘价计算布林带
func (bb *BollingerBands) Calculate(w market.Window) (*BollingerBandsResult, error) {
	if bb.Period <= 0 {
		return nil, ErrInvalidPeriod
	}
	if !bb.Multiplier.IsPositive() {
		return nil, ErrInvalidMultiplier
	}
	if len(w) < bb.Period {
		return nil, ErrInsufficientData
	}

	prices := w.Tail(bb.Period).CloseValues()
	sma := mean(prices)
	std := stdDev(prices, sma)

	return &BollingerBandsResult{
		UpperBand:  sma.Add(bb.Multiplier.Mul(std)),
		MiddleBand: sma,
		LowerBand:  sma.Sub(bb.Multiplier.Mul(std)),
		Price:      w.Last().Close,
	}, nil
}

func mean(prices []decimal.Decimal) decimal.Decimal {
	sum := decimal.Zero
	for _, price := range prices {
		sum = sum.Add(price)
	}
	return sum.Div(decimal.NewFromInt(int64(len(prices))))
}

func stdDev(prices []decimal.Decimal, m decimal.Decimal) decimal.Decimal {
	sum := decimal.Zero
	for _, price := range prices {
		diff := price.Sub(m)
		sum = sum.Add(diff.Mul(diff))
	}
	variance := sum.Div(decimal.NewFromInt(int64(len(prices))))
	// decimal 没有 sqrt
	return decimal.NewFromFloat(math.Sqrt(variance.InexactFloat64()))
}

// IsOverextended 价格高于上轨超过 tolerance 比例
func (r *BollingerBandsResult) IsOverextended(tolerance decimal.Decimal) bool {
	return r.Price.GreaterThan(r.UpperBand.Mul(decimal.NewFromInt(1).Add(tolerance)))
}

// GetPercentB 获取%B指标 (价格-下轨)/(上轨-下轨)
func (r *BollingerBandsResult) GetPercentB() decimal.Decimal {
	denominator := r.UpperBand.Sub(r.LowerBand)
	if denominator.IsZero() {
		return decimal.Zero
	}
	return r.Price.Sub(r.LowerBand).Div(denominator)
}

// Overextended 便捷判断：窗口不足时视为未偏离
func Overextended(w market.Window, p *Params) bool {
	res, err := NewBollingerBands(p.BollingerPeriod, p.BollingerMultiplier).Calculate(w)
	if err != nil {
		return false
	}
	return res.IsOverextended(dec(p.OverextendedPercent))
}
