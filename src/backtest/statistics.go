package backtest

import (
	"fmt"
	"io"
	"math"
	"sort"
	"time"

	"equitybot/src/tracking"

	"github.com/shopspring/decimal"
)

// 美股一年约 252 个交易日
const tradingDaysPerYear = 252

// Statistics 回测统计
type Statistics struct {
	TotalTrades      int               `json:"total_trades"`
	WinningTrades    int               `json:"winning_trades"`
	LosingTrades     int               `json:"losing_trades"`
	WinRate          decimal.Decimal   `json:"win_rate"`
	TotalReturn      decimal.Decimal   `json:"total_return"`
	AnnualizedReturn decimal.Decimal   `json:"annualized_return"`
	MaxDrawdown      decimal.Decimal   `json:"max_drawdown"`
	SharpeRatio      decimal.Decimal   `json:"sharpe_ratio"`
	TotalCommission  decimal.Decimal   `json:"total_commission"`
	TotalPnL         decimal.Decimal   `json:"total_pnl"`
	InitialCapital   decimal.Decimal   `json:"initial_capital"`
	FinalEquity      decimal.Decimal   `json:"final_equity"`
	TradingDays      int               `json:"trading_days"`
	EquityCurve      []EquityPoint     `json:"equity_curve"`
	DailyReturns     []decimal.Decimal `json:"daily_returns"`

	ByStyle map[string]*StyleStats `json:"by_style"`
}

// StyleStats 单一风格的成交汇总
type StyleStats struct {
	Trades int             `json:"trades"`
	Wins   int             `json:"wins"`
	PnL    decimal.Decimal `json:"pnl"`
}

// EquityPoint 权益曲线点
type EquityPoint struct {
	Timestamp time.Time       `json:"timestamp"`
	Portfolio decimal.Decimal `json:"portfolio"`
	Cash      decimal.Decimal `json:"cash"`
	Holdings  int             `json:"holdings"`
	DayClose  bool            `json:"day_close"` // 收盘点，计算日收益率使用
}

// Calculate 按成交记录和权益曲线汇总
func Calculate(trades []*tracking.Trade, curve []EquityPoint, initial, commission decimal.Decimal, tradingDays int) *Statistics {
	stats := &Statistics{
		TotalTrades:     len(trades),
		InitialCapital:  initial,
		FinalEquity:     initial,
		TotalCommission: commission,
		TradingDays:     tradingDays,
		EquityCurve:     curve,
		ByStyle:         make(map[string]*StyleStats),
	}

	for _, trade := range trades {
		stats.TotalPnL = stats.TotalPnL.Add(trade.PnL)
		if trade.IsWin() {
			stats.WinningTrades++
		} else {
			stats.LosingTrades++
		}

		s, ok := stats.ByStyle[trade.Style]
		if !ok {
			s = &StyleStats{}
			stats.ByStyle[trade.Style] = s
		}
		s.Trades++
		s.PnL = s.PnL.Add(trade.PnL)
		if trade.IsWin() {
			s.Wins++
		}
	}

	if stats.TotalTrades > 0 {
		stats.WinRate = decimal.NewFromInt(int64(stats.WinningTrades)).Div(decimal.NewFromInt(int64(stats.TotalTrades)))
	}

	if len(curve) > 0 {
		stats.FinalEquity = curve[len(curve)-1].Portfolio
	}
	if initial.IsPositive() {
		stats.TotalReturn = stats.FinalEquity.Sub(initial).Div(initial)
	}

	if tradingDays > 0 {
		annualFactor := float64(tradingDaysPerYear) / float64(tradingDays)
		totalReturnFloat, _ := stats.TotalReturn.Float64()
		stats.AnnualizedReturn = decimal.NewFromFloat(math.Pow(1+totalReturnFloat, annualFactor) - 1)
	}

	stats.MaxDrawdown = maxDrawdown(curve)
	stats.DailyReturns = dailyReturns(curve)
	stats.SharpeRatio = sharpeRatio(stats.DailyReturns)
	return stats
}

// maxDrawdown 峰值回撤比例的最大值
func maxDrawdown(curve []EquityPoint) decimal.Decimal {
	if len(curve) == 0 {
		return decimal.Zero
	}

	peak := curve[0].Portfolio
	maxDD := decimal.Zero
	for _, point := range curve {
		if point.Portfolio.GreaterThan(peak) {
			peak = point.Portfolio
		}
		if !peak.IsPositive() {
			continue
		}
		drawdown := peak.Sub(point.Portfolio).Div(peak)
		if drawdown.GreaterThan(maxDD) {
			maxDD = drawdown
		}
	}
	return maxDD
}

// dailyReturns 起点和各收盘点之间的收益率
func dailyReturns(curve []EquityPoint) []decimal.Decimal {
	if len(curve) == 0 {
		return nil
	}

	closes := []decimal.Decimal{curve[0].Portfolio}
	for _, point := range curve[1:] {
		if point.DayClose {
			closes = append(closes, point.Portfolio)
		}
	}

	var returns []decimal.Decimal
	for i := 1; i < len(closes); i++ {
		if closes[i-1].IsPositive() {
			returns = append(returns, closes[i].Sub(closes[i-1]).Div(closes[i-1]))
		}
	}
	return returns
}

// sharpeRatio 无风险利率取0，按交易日年化
func sharpeRatio(returns []decimal.Decimal) decimal.Decimal {
	if len(returns) < 2 {
		return decimal.Zero
	}

	sum := decimal.Zero
	for _, ret := range returns {
		sum = sum.Add(ret)
	}
	mean := sum.Div(decimal.NewFromInt(int64(len(returns))))

	varianceSum := decimal.Zero
	for _, ret := range returns {
		diff := ret.Sub(mean)
		varianceSum = varianceSum.Add(diff.Mul(diff))
	}
	variance := varianceSum.Div(decimal.NewFromInt(int64(len(returns) - 1)))
	varianceFloat, _ := variance.Float64()
	std := decimal.NewFromFloat(math.Sqrt(varianceFloat))
	if !std.IsPositive() {
		return decimal.Zero
	}
	return mean.Div(std).Mul(decimal.NewFromFloat(math.Sqrt(tradingDaysPerYear)))
}

// Print 打印回测报告
func (s *Statistics) Print(w io.Writer) {
	fmt.Fprintf(w, "\n📊 ===== Backtest Report =====\n")
	fmt.Fprintf(w, "📅 Trading days:     %d\n", s.TradingDays)
	fmt.Fprintf(w, "💰 Initial capital:  %s\n", s.InitialCapital.StringFixed(2))
	fmt.Fprintf(w, "💼 Final equity:     %s\n", s.FinalEquity.StringFixed(2))
	fmt.Fprintf(w, "📈 Total return:     %s%%\n", s.TotalReturn.Mul(decimal.NewFromInt(100)).StringFixed(2))
	fmt.Fprintf(w, "📆 Annualized:       %s%%\n", s.AnnualizedReturn.Mul(decimal.NewFromInt(100)).StringFixed(2))
	fmt.Fprintf(w, "📉 Max drawdown:     %s%%\n", s.MaxDrawdown.Mul(decimal.NewFromInt(100)).StringFixed(2))
	fmt.Fprintf(w, "⚖️  Sharpe ratio:     %s\n", s.SharpeRatio.StringFixed(2))
	fmt.Fprintf(w, "🔁 Trades:           %d (win %d / loss %d)\n", s.TotalTrades, s.WinningTrades, s.LosingTrades)
	fmt.Fprintf(w, "🎯 Win rate:         %s%%\n", s.WinRate.Mul(decimal.NewFromInt(100)).StringFixed(2))
	fmt.Fprintf(w, "💵 Total PnL:        %s\n", s.TotalPnL.StringFixed(2))
	fmt.Fprintf(w, "🧾 Commission:       %s\n", s.TotalCommission.StringFixed(2))

	styles := make([]string, 0, len(s.ByStyle))
	for style := range s.ByStyle {
		styles = append(styles, style)
	}
	sort.Strings(styles)
	for _, style := range styles {
		ss := s.ByStyle[style]
		fmt.Fprintf(w, "   • %-16s trades=%d wins=%d pnl=%s\n", style, ss.Trades, ss.Wins, ss.PnL.StringFixed(2))
	}
}
