package indicators

import (
	"fmt"

	"equitybot/src/timeframes"

	"github.com/shopspring/decimal"
	"github.com/xpwu/go-config/configs"
)

// ClassValues 按交易时段区分的阈值
type ClassValues struct {
	PreMarket  float64 `json:"pre_market"`
	Regular    float64 `json:"regular"`
	AfterHours float64 `json:"after_hours"`
}

// Of 取时段对应的值，休市时段没有值
func (v ClassValues) Of(class timeframes.HourClass) (float64, bool) {
	switch class {
	case timeframes.HourClassPreMarket:
		return v.PreMarket, true
	case timeframes.HourClassRegular:
		return v.Regular, true
	case timeframes.HourClassAfterHours:
		return v.AfterHours, true
	default:
		return 0, false
	}
}

// Params 形态信号阈值，策略风格可逐项覆盖
type Params struct {
	// 成交量
	MinVolume              ClassValues `json:"min_volume"`               // 各时段每分钟最低平均成交量
	RelativeVolumeRatio    float64     `json:"relative_volume_ratio"`    // 相对成交量阈值
	VolumePositionMultiple float64     `json:"volume_position_multiple"` // 平均量需达到仓位的倍数
	VolumePositionScale    ClassValues `json:"volume_position_scale"`    // 各时段仓位量要求系数

	// K线形态
	MoreGreenRatio   float64 `json:"more_green_ratio"`   // 阳线占比阈值
	MostGreenRatio   float64 `json:"most_green_ratio"`   // 阳线占比高阈值
	FlatBarLimit     int     `json:"flat_bar_limit"`     // 一字线数量上限（达到即无波动）
	MinPriceLevels   int     `json:"min_price_levels"`   // 最少不同价位数
	RangeAvgScale    float64 `json:"range_avg_scale"`    // 长上影：振幅需超过平均振幅的倍数
	RangePrevScale   float64 `json:"range_prev_scale"`   // 长上影：振幅需超过前一根的倍数
	WickUpRatio      float64 `json:"wick_up_ratio"`      // 长上影：上影/下影比
	BearishBodyRatio float64 `json:"bearish_body_ratio"` // 大阴线实体/振幅
	ReversalBodyRate float64 `json:"reversal_body_rate"` // 反转阴线实体需达到平均实体的倍数

	// 顶部
	AtPeakGain          float64 `json:"at_peak_gain"`           // 放量阳线最小涨幅
	AtPeakShortPeriod   int     `json:"at_peak_short_period"`   // 放量阳线之前的对比窗口
	AtPeakClimaxPeriod  int     `json:"at_peak_climax_period"`  // 近期均量窗口（截至阴线）
	AtPeakClimaxRatio   float64 `json:"at_peak_climax_ratio"`   // 近期均量 / 前期均量
	BollingerPeriod     int     `json:"bollinger_period"`       // 布林带周期
	BollingerMultiplier float64 `json:"bollinger_multiplier"`   // 布林带倍数
	OverextendedPercent float64 `json:"overextended_percent"`   // 高于上轨的容忍比例
}

// SignalsConfigValue 默认阈值
var SignalsConfigValue = Params{
	MinVolume:              ClassValues{PreMarket: 3000, Regular: 20000, AfterHours: 3000},
	RelativeVolumeRatio:    3,
	VolumePositionMultiple: 10,
	VolumePositionScale:    ClassValues{PreMarket: 0.5, Regular: 1, AfterHours: 0.5},

	MoreGreenRatio:   0.6,
	MostGreenRatio:   0.8,
	FlatBarLimit:     3,
	MinPriceLevels:   3,
	RangeAvgScale:    1.5,
	RangePrevScale:   1.2,
	WickUpRatio:      2.5,
	BearishBodyRatio: 0.7,
	ReversalBodyRate: 1.5,

	AtPeakGain:          0.05,
	AtPeakShortPeriod:   5,
	AtPeakClimaxPeriod:  2,
	AtPeakClimaxRatio:   4,
	BollingerPeriod:     20,
	BollingerMultiplier: 2,
	OverextendedPercent: 0.03,
}

func init() {
	configs.Unmarshal(&SignalsConfigValue)
}

// DefaultParams 默认阈值的拷贝
func DefaultParams() Params {
	return SignalsConfigValue
}

// Validate 校验阈值
func (p *Params) Validate() error {
	if p.MoreGreenRatio <= 0 || p.MoreGreenRatio > 1 || p.MostGreenRatio <= 0 || p.MostGreenRatio > 1 {
		return fmt.Errorf("green ratios must be in (0,1], got %v/%v", p.MoreGreenRatio, p.MostGreenRatio)
	}
	if p.AtPeakShortPeriod <= 0 || p.AtPeakClimaxPeriod <= 0 {
		return ErrInvalidPeriod
	}
	if p.WickUpRatio <= 0 || p.RangeAvgScale <= 0 || p.RangePrevScale <= 0 {
		return ErrInvalidMultiplier
	}
	return nil
}

func dec(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}
