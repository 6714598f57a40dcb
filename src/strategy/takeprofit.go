package strategy

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"equitybot/src/tracking"

	"github.com/shopspring/decimal"
)

// SellSignal 卖出信号
type SellSignal struct {
	ShouldSell bool
	Reason     string
}

// TradeInfo 持仓信息，盈亏率都相对持仓均价
type TradeInfo struct {
	EntryPrice   decimal.Decimal // 持仓均价
	CurrentPrice decimal.Decimal // 当前价格
	CurrentPnL   decimal.Decimal // 当前盈亏率
	MaxPnL       decimal.Decimal // 持仓期间最高盈亏率
	Holding      time.Duration   // 持仓时长
}

// NewTradeInfo 从跟踪标的生成
func NewTradeInfo(t *tracking.Ticker, price decimal.Decimal, now time.Time) *TradeInfo {
	info := &TradeInfo{
		EntryPrice:   t.InitialCost,
		CurrentPrice: price,
		CurrentPnL:   t.LastPLRate,
		MaxPnL:       t.MaxPLRate,
	}
	if t.Position != nil && !t.Position.BuyTime.IsZero() {
		info.Holding = now.Sub(t.Position.BuyTime)
	}
	return info
}

// HighestPrice 由最高盈亏率反推的最高价
func (i *TradeInfo) HighestPrice() decimal.Decimal {
	return i.EntryPrice.Mul(decimal.NewFromInt(1).Add(i.MaxPnL))
}

// TakeProfit 止盈策略接口
type TakeProfit interface {
	// ShouldSell 判断是否应该止盈
	ShouldSell(info *TradeInfo) *SellSignal

	// GetName 获取策略名称
	GetName() string
}

// TakeProfitType 止盈策略类型
type TakeProfitType string

const (
	TakeProfitFixed    TakeProfitType = "fixed"    // 固定止盈
	TakeProfitTrailing TakeProfitType = "trailing" // 移动止盈
	TakeProfitCombo    TakeProfitType = "combo"    // 组合策略
)

// TakeProfitConfig 止盈策略配置
type TakeProfitConfig struct {
	Type                 TakeProfitType `json:"type"`
	FixedTakeProfit      float64        `json:"fixed_take_profit"`       // 固定止盈比例
	TrailingPercent      float64        `json:"trailing_percent"`        // 移动止盈回撤比例
	MinProfitForTrailing float64        `json:"min_profit_for_trailing"` // 启用移动止盈的最小盈利
	MaxHoldingMin        int            `json:"max_holding_min"`         // 最大持仓分钟
}

// CreateTakeProfit 创建止盈策略
func CreateTakeProfit(config *TakeProfitConfig) (TakeProfit, error) {
	switch config.Type {
	case TakeProfitFixed:
		return NewFixedTakeProfit(config.FixedTakeProfit), nil
	case TakeProfitTrailing:
		return NewTrailingTakeProfit(config.TrailingPercent, config.MinProfitForTrailing), nil
	case TakeProfitCombo:
		return NewComboTakeProfit(config), nil
	default:
		return nil, fmt.Errorf("unknown take profit type: %s", config.Type)
	}
}

// GetDefaultTakeProfitConfigs 预设的止盈配置
func GetDefaultTakeProfitConfigs() map[string]*TakeProfitConfig {
	return map[string]*TakeProfitConfig{
		"conservative": {
			Type:            TakeProfitFixed,
			FixedTakeProfit: 0.05,
		},
		"moderate": {
			Type:            TakeProfitFixed,
			FixedTakeProfit: 0.10,
		},
		"aggressive": {
			Type:            TakeProfitFixed,
			FixedTakeProfit: 0.20,
		},
		"trailing_3": {
			Type:                 TakeProfitTrailing,
			TrailingPercent:      0.03, // 3%回撤
			MinProfitForTrailing: 0.05, // 5%后启用
		},
		"trailing_5": {
			Type:                 TakeProfitTrailing,
			TrailingPercent:      0.05,
			MinProfitForTrailing: 0.10,
		},
		"combo_smart": {
			Type:                 TakeProfitCombo,
			FixedTakeProfit:      0.10, // 兜底，实际按 1.5 倍触发
			TrailingPercent:      0.04,
			MinProfitForTrailing: 0.06,
			MaxHoldingMin:        390, // 一个常规交易日
		},
	}
}

// ParseTakeProfitParams 解析 "key1=value1,key2=value2"
func ParseTakeProfitParams(paramsStr string) (map[string]float64, error) {
	params := make(map[string]float64)
	if paramsStr == "" {
		return params, nil
	}

	for _, pair := range strings.Split(paramsStr, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}

		parts := strings.Split(pair, "=")
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid parameter format: %s (expected key=value)", pair)
		}

		key := strings.TrimSpace(parts[0])
		valueStr := strings.TrimSpace(parts[1])
		value, err := strconv.ParseFloat(valueStr, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid parameter value for %s: %s", key, valueStr)
		}
		params[key] = value
	}
	return params, nil
}

// CreateTakeProfitWithParams 预设名或类型名，用户参数覆盖默认值
func CreateTakeProfitWithParams(name string, userParams map[string]float64) (TakeProfit, error) {
	var config TakeProfitConfig
	if preset, ok := GetDefaultTakeProfitConfigs()[name]; ok {
		config = *preset
	} else {
		switch TakeProfitType(name) {
		case TakeProfitFixed:
			config = TakeProfitConfig{Type: TakeProfitFixed, FixedTakeProfit: 0.10}
		case TakeProfitTrailing:
			config = TakeProfitConfig{Type: TakeProfitTrailing, TrailingPercent: 0.03, MinProfitForTrailing: 0.05}
		case TakeProfitCombo:
			config = TakeProfitConfig{Type: TakeProfitCombo, FixedTakeProfit: 0.10, TrailingPercent: 0.04, MinProfitForTrailing: 0.06, MaxHoldingMin: 390}
		default:
			return nil, fmt.Errorf("unknown take profit: %s", name)
		}
	}

	if v, ok := userParams["take_profit"]; ok {
		config.FixedTakeProfit = v
	}
	if v, ok := userParams["trailing_percent"]; ok {
		config.TrailingPercent = v
	}
	if v, ok := userParams["min_profit"]; ok {
		config.MinProfitForTrailing = v
	}
	if v, ok := userParams["max_holding_min"]; ok {
		config.MaxHoldingMin = int(v)
	}
	return CreateTakeProfit(&config)
}

func percent(d decimal.Decimal) float64 {
	return d.Mul(decimal.NewFromInt(100)).InexactFloat64()
}

// FixedTakeProfit 固定止盈
type FixedTakeProfit struct {
	TakeProfitPercent float64
}

func NewFixedTakeProfit(takeProfitPercent float64) *FixedTakeProfit {
	return &FixedTakeProfit{TakeProfitPercent: takeProfitPercent}
}

func (s *FixedTakeProfit) ShouldSell(info *TradeInfo) *SellSignal {
	if info.CurrentPnL.GreaterThanOrEqual(decimal.NewFromFloat(s.TakeProfitPercent)) {
		return &SellSignal{
			ShouldSell: true,
			Reason:     fmt.Sprintf("fixed take profit: %.2f%%", percent(info.CurrentPnL)),
		}
	}
	return &SellSignal{}
}

func (s *FixedTakeProfit) GetName() string {
	return fmt.Sprintf("Fixed(%.1f%%)", s.TakeProfitPercent*100)
}

// TrailingTakeProfit 移动止盈
type TrailingTakeProfit struct {
	TrailingPercent      float64
	MinProfitForTrailing float64
}

func NewTrailingTakeProfit(trailingPercent, minProfitForTrailing float64) *TrailingTakeProfit {
	return &TrailingTakeProfit{
		TrailingPercent:      trailingPercent,
		MinProfitForTrailing: minProfitForTrailing,
	}
}

func (s *TrailingTakeProfit) ShouldSell(info *TradeInfo) *SellSignal {
	// 最高浮盈达到门槛后才启用
	if info.MaxPnL.LessThan(decimal.NewFromFloat(s.MinProfitForTrailing)) {
		return &SellSignal{}
	}

	highest := info.HighestPrice()
	if !highest.IsPositive() {
		return &SellSignal{}
	}
	drawdown := highest.Sub(info.CurrentPrice).Div(highest)
	if drawdown.GreaterThanOrEqual(decimal.NewFromFloat(s.TrailingPercent)) {
		return &SellSignal{
			ShouldSell: true,
			Reason: fmt.Sprintf("trailing stop: %.2f%% (peak: %.2f%%)",
				percent(info.CurrentPnL), percent(info.MaxPnL)),
		}
	}
	return &SellSignal{}
}

func (s *TrailingTakeProfit) GetName() string {
	return fmt.Sprintf("Trailing(%.1f%% after %.1f%%)", s.TrailingPercent*100, s.MinProfitForTrailing*100)
}

// ComboTakeProfit 持仓超时 + 移动止盈 + 放宽的固定止盈
type ComboTakeProfit struct {
	Fixed         *FixedTakeProfit
	Trailing      *TrailingTakeProfit
	MaxHoldingMin int
}

func NewComboTakeProfit(config *TakeProfitConfig) *ComboTakeProfit {
	return &ComboTakeProfit{
		// 固定止盈放宽 50%，给移动止盈留空间
		Fixed:         NewFixedTakeProfit(config.FixedTakeProfit * 1.5),
		Trailing:      NewTrailingTakeProfit(config.TrailingPercent, config.MinProfitForTrailing),
		MaxHoldingMin: config.MaxHoldingMin,
	}
}

func (s *ComboTakeProfit) ShouldSell(info *TradeInfo) *SellSignal {
	if s.MaxHoldingMin > 0 && info.Holding >= time.Duration(s.MaxHoldingMin)*time.Minute {
		return &SellSignal{
			ShouldSell: true,
			Reason:     fmt.Sprintf("max holding time: %d min", s.MaxHoldingMin),
		}
	}
	if sig := s.Trailing.ShouldSell(info); sig.ShouldSell {
		return sig
	}
	if sig := s.Fixed.ShouldSell(info); sig.ShouldSell {
		sig.Reason = "enhanced " + sig.Reason
		return sig
	}
	return &SellSignal{}
}

func (s *ComboTakeProfit) GetName() string {
	return fmt.Sprintf("Combo(%s + %s)", s.Trailing.GetName(), s.Fixed.GetName())
}
