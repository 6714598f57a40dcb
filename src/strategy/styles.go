package strategy

import (
	"fmt"
	"sort"

	"github.com/xpwu/go-config/configs"
)

// StylesConfig 交易风格预设，配置文件中同名风格覆盖默认值
type StylesConfig struct {
	Styles []Params `json:"styles"`
}

// StylesConfigValue 风格配置实例
var StylesConfigValue = StylesConfig{
	Styles: []Params{
		{
			Style: "momentum", Scale: 1, WindowSize: 40, EntryPeriod: 10, ExitPeriod: 5,
			Ranking: RankingGainers, MaxCandidates: 10, MaxTickers: 5, ObserveTimeout: 30, CooldownMin: 30, MaxHoldMin: 60,
			UnitAmount: 2000, TargetUnits: 2, MaxSurge: 0.10,
			ScaleIntervalMin: 5, FirstScaleIntervalMin: 3, MinScaleGain: 0.01, DipTolerance: 0.005,
			ROCPeriod: 10, MinROC: 0.03, MinScaleROC: -0.01,
			StopRatio: 0.03, TargetRatio: 2, ATRPeriod: 14, ATRMultiple: 2, WickRange: 0.10,
			EntryCheck: "momentum", StopLossRule: "bar_low", ExitCheck: "bearish_candle", ROCRule: "window_start",
			TakeProfit: "trailing_3",
		},
		{
			Style: "breakout_20", Scale: 1, WindowSize: 40, EntryPeriod: 20, ExitPeriod: 10,
			Ranking: RankingGainers, MaxCandidates: 10, MaxTickers: 5, ObserveTimeout: 60, CooldownMin: 30, MaxHoldMin: 120,
			UnitAmount: 2000, TargetUnits: 3, MaxSurge: 0.10,
			ScaleIntervalMin: 10, FirstScaleIntervalMin: 5, MinScaleGain: 0.01, DipTolerance: 0.005,
			ROCPeriod: 20, MinROC: 0.02, MinScaleROC: -0.01,
			StopRatio: 0.03, TargetRatio: 2, ATRPeriod: 14, ATRMultiple: 2, WickRange: 0.10,
			EntryCheck: "none", StopLossRule: "bar_low", ExitCheck: "below_ema", ROCRule: "window_start",
		},
		{
			Style: "breakout_30", Scale: 1, WindowSize: 60, EntryPeriod: 30, ExitPeriod: 15,
			Ranking: RankingGainers, MaxCandidates: 10, MaxTickers: 5, ObserveTimeout: 60, CooldownMin: 60, MaxHoldMin: 180,
			UnitAmount: 2000, TargetUnits: 3, MaxSurge: 0.12,
			ScaleIntervalMin: 10, FirstScaleIntervalMin: 5, MinScaleGain: 0.015, DipTolerance: 0.005,
			ROCPeriod: 30, MinROC: 0.02, MinScaleROC: -0.005,
			StopRatio: 0.04, TargetRatio: 2, ATRPeriod: 14, ATRMultiple: 2, WickRange: 0.10,
			EntryCheck: "not_overextended", StopLossRule: "atr", ExitCheck: "below_ema", ROCRule: "from_high",
			TakeProfit: "combo_smart",
		},
		{
			Style: "scalping", Scale: 1, WindowSize: 20, EntryPeriod: 5, ExitPeriod: 3,
			Ranking: RankingGainers, MaxCandidates: 5, MaxTickers: 3, ObserveTimeout: 15, CooldownMin: 10, MaxHoldMin: 15,
			UnitAmount: 1000, TargetUnits: 1, MaxSurge: 0.05,
			ROCPeriod: 5, MinROC: 0.01,
			StopRatio: 0.01, TargetRatio: 1.5, ATRPeriod: 5, ATRMultiple: 1, WickRange: 0.10,
			EntryCheck: "amount_grinding", StopLossRule: "ratio", ExitCheck: "below_vwap", ROCRule: "window_start",
			TakeProfit: "conservative",
		},
		{
			Style: "red_to_green", Scale: 1, WindowSize: 30, EntryPeriod: 10, ExitPeriod: 5, NoBreakout: true,
			Ranking: RankingLosers, MaxCandidates: 10, MaxTickers: 3, ObserveTimeout: 60, CooldownMin: 60, MaxHoldMin: 90,
			UnitAmount: 1500, TargetUnits: 1, MaxSurge: 0.08,
			ROCPeriod: 10, MinROC: 0,
			StopRatio: 0.03, TargetRatio: 2, ATRPeriod: 14, ATRMultiple: 2, WickRange: 0.10,
			EntryCheck: "red_to_green", StopLossRule: "bar_low", ExitCheck: "bearish_candle", ROCRule: "none",
			TakeProfit: "moderate", TakeProfitParams: "take_profit=0.08",
		},
		{
			Style: "turtle", Scale: 5, WindowSize: 60, EntryPeriod: 20, ExitPeriod: 10,
			Ranking: RankingGainers, MaxCandidates: 10, MaxTickers: 4, ObserveTimeout: 240, CooldownMin: 24 * 60,
			UnitAmount: 2500, TargetUnits: 4, MaxSurge: 0.15,
			ScaleIntervalMin: 30, FirstScaleIntervalMin: 30, MinScaleGain: 0.02, DipTolerance: 0.01,
			ROCPeriod: 20, MinROC: 0.01, MinScaleROC: -0.02,
			StopRatio: 0.05, TargetRatio: 3, ATRPeriod: 20, ATRMultiple: 2, WickRange: 0.10,
			EntryCheck: "none", StopLossRule: "atr", ExitCheck: "none", ROCRule: "from_high",
		},
	},
}

func init() {
	configs.Unmarshal(&StylesConfigValue)
}

// Lookup 按名字取风格参数的拷贝
func (c StylesConfig) Lookup(style string) (Params, error) {
	for _, p := range c.Styles {
		if p.Style == style {
			return p, nil
		}
	}
	return Params{}, fmt.Errorf("unknown style: %s", style)
}

// Names 全部风格名
func (c StylesConfig) Names() []string {
	out := make([]string, 0, len(c.Styles))
	for _, p := range c.Styles {
		out = append(out, p.Style)
	}
	sort.Strings(out)
	return out
}
