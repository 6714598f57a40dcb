package strategy

import (
	"fmt"
	"time"

	"equitybot/src/timeframes"
)

// Params 单一交易风格的参数，四个策略钩子按名字从注册表解析
type Params struct {
	Style          string `json:"style"`
	Scale          int    `json:"scale"`           // K线分钟数
	WindowSize     int    `json:"window_size"`     // 每次取的K线根数
	EntryPeriod    int    `json:"entry_period"`    // 突破周期
	ExitPeriod     int    `json:"exit_period"`     // 离场周期
	ExtendedHours  bool   `json:"extended_hours"`  // 是否在盘前盘后开仓
	NoBreakout     bool   `json:"no_breakout"`     // 不要求突破周期高点
	Ranking        string `json:"ranking"`         // 候选来源 gainers / losers
	MaxCandidates  int    `json:"max_candidates"`  // 每轮最多评估的候选数
	MaxTickers     int    `json:"max_tickers"`     // 同时跟踪的标的上限
	ObserveTimeout int    `json:"observe_timeout"` // 空仓观察超时(分钟)
	CooldownMin    int    `json:"cooldown_min"`    // 卖出后冷却(分钟)
	MaxHoldMin     int    `json:"max_hold_min"`    // 持仓超时(分钟)，0 不限

	// 仓位
	UnitAmount  float64 `json:"unit_amount"`  // 每单位金额
	TargetUnits int     `json:"target_units"` // 目标单位数
	MaxSurge    float64 `json:"max_surge"`    // 相对前收盘的最大涨幅

	// 加仓
	ScaleIntervalMin      int     `json:"scale_interval_min"`       // 两次买入最小间隔
	FirstScaleIntervalMin int     `json:"first_scale_interval_min"` // 首次加仓间隔
	MinScaleGain          float64 `json:"min_scale_gain"`           // 加仓要求的浮盈
	DipTolerance          float64 `json:"dip_tolerance"`            // 回踩 EMA 的容忍比例

	// 涨幅
	ROCPeriod   int     `json:"roc_period"`
	MinROC      float64 `json:"min_roc"`       // 开仓最小涨幅
	MinScaleROC float64 `json:"min_scale_roc"` // 加仓时相对近期高点的最小涨跌幅

	// 止损止盈
	StopRatio   float64 `json:"stop_ratio"`   // 比例止损
	TargetRatio float64 `json:"target_ratio"` // 止盈距离 = 止损距离 * TargetRatio
	ATRPeriod   int     `json:"atr_period"`
	ATRMultiple float64 `json:"atr_multiple"`
	WickRange   float64 `json:"wick_range"` // 振幅超过最低价此比例时改用实体下沿

	// 策略钩子
	EntryCheck   string `json:"entry_check"`
	StopLossRule string `json:"stop_loss_rule"`
	ExitCheck    string `json:"exit_check"`
	ROCRule      string `json:"roc_rule"`
	TakeProfit   string `json:"take_profit"` // 预设名，空为不启用
	// 覆盖预设，如 "take_profit=0.07,trailing_percent=0.04"
	TakeProfitParams string `json:"take_profit_params"`
}

// Validate 验证参数有效性
func (p *Params) Validate() error {
	if p.Style == "" {
		return fmt.Errorf("style must be named")
	}
	if _, err := timeframes.FromScale(p.Scale); err != nil {
		return fmt.Errorf("scale %d must be one of %v", p.Scale, timeframes.GetAllTimeframes())
	}
	if p.EntryPeriod <= 0 || p.ExitPeriod <= 0 {
		return fmt.Errorf("entry/exit period must be positive, got %d/%d", p.EntryPeriod, p.ExitPeriod)
	}
	if p.WindowSize <= p.EntryPeriod {
		return fmt.Errorf("window_size %d must exceed entry_period %d", p.WindowSize, p.EntryPeriod)
	}
	if p.UnitAmount <= 0 {
		return fmt.Errorf("unit_amount must be positive, got %f", p.UnitAmount)
	}
	if p.TargetUnits <= 0 {
		return fmt.Errorf("target_units must be positive, got %d", p.TargetUnits)
	}
	if p.StopRatio <= 0 || p.StopRatio >= 1 {
		return fmt.Errorf("stop_ratio must be between 0 and 1, got %f", p.StopRatio)
	}
	if p.TargetRatio <= 0 {
		return fmt.Errorf("target_ratio must be positive, got %f", p.TargetRatio)
	}
	if p.TakeProfitParams != "" && p.TakeProfit == "" {
		return fmt.Errorf("take_profit_params %q given without take_profit", p.TakeProfitParams)
	}
	if p.Ranking != RankingGainers && p.Ranking != RankingLosers {
		return fmt.Errorf("ranking must be %s or %s, got %q", RankingGainers, RankingLosers, p.Ranking)
	}
	return nil
}

// Timeframe 参数对应的K线刻度，Validate 通过后一定有效
func (p *Params) Timeframe() timeframes.Timeframe {
	tf, _ := timeframes.FromScale(p.Scale)
	return tf
}

// Lookback 取窗口的时间跨度
func (p *Params) Lookback() time.Duration {
	d, err := p.Timeframe().GetDuration()
	if err != nil {
		return 0
	}
	return time.Duration(p.WindowSize) * d
}

// Cooldown 卖出后冷却
func (p *Params) Cooldown() time.Duration {
	return time.Duration(p.CooldownMin) * time.Minute
}

// ObserveTimeoutDuration 空仓观察超时
func (p *Params) ObserveTimeoutDuration() time.Duration {
	return time.Duration(p.ObserveTimeout) * time.Minute
}

// MaxHold 持仓超时
func (p *Params) MaxHold() time.Duration {
	return time.Duration(p.MaxHoldMin) * time.Minute
}

// ScaleInterval 第 units 个单位之后的加仓间隔
func (p *Params) ScaleInterval(units int) time.Duration {
	if units <= 1 && p.FirstScaleIntervalMin > 0 {
		return time.Duration(p.FirstScaleIntervalMin) * time.Minute
	}
	return time.Duration(p.ScaleIntervalMin) * time.Minute
}
