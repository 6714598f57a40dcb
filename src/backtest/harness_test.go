package backtest

import (
	"context"
	"testing"
	"time"

	"equitybot/src/database"
	"equitybot/src/market"
	"equitybot/src/timeframes"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 2024-03-06 周三
var day = time.Date(2024, 3, 6, 0, 0, 0, 0, time.UTC)

// breakoutBars 14:40 起 20 根缓慢上行的1分钟K线，15:00 放量突破
func breakoutBars() []*market.Bar {
	start := day.Add(14*time.Hour + 40*time.Minute)
	bars := make([]*market.Bar, 0, 21)
	for i := 0; i < 20; i++ {
		c := 9.90 + 0.02*float64(i)
		bars = append(bars, market.NewTestBar(start.Add(time.Duration(i)*time.Minute), c-0.01, c+0.005, c-0.02, c, 50000))
	}
	last := market.NewTestBar(start.Add(20*time.Minute), 10.30, 10.55, 10.28, 10.50, 50000)
	last.VWAP = decimal.NewFromFloat(10.00)
	return append(bars, last)
}

func newHarness(t *testing.T) (*Harness, *database.MemoryStore) {
	bars := database.NewMemoryStore()
	require.NoError(t, bars.SaveBars(context.Background(), "ABC", breakoutBars()))

	config := DefaultConfig()
	config.Styles = []string{"breakout_20"}
	config.Universe = []string{"ABC"}
	config.Engine.Styles = config.Styles

	store := database.NewMemoryStore()
	return NewHarness(bars, store, timeframes.MustDefaultCalendar(), config), store
}

func TestHarness_RunDay(t *testing.T) {
	h, store := newHarness(t)

	result, err := h.Run(context.Background(), day, day)
	require.NoError(t, err)

	require.NotEmpty(t, result.Trades)
	first := result.Trades[0]
	assert.Equal(t, "ABC", first.Symbol)
	assert.Equal(t, "breakout_20", first.Style)
	// 买入价按最近一根已收盘K线最高价上浮 1%
	assert.True(t, first.BuyPrice.GreaterThan(decimal.NewFromFloat(10.0)))

	assert.Equal(t, 0, result.Survivors)
	assert.Empty(t, result.Alerts)
	assert.Len(t, result.Sessions, 1)
	assert.Equal(t, len(result.Trades), result.Stats.TotalTrades)
	assert.Equal(t, 1, result.Stats.TradingDays)
	assert.Len(t, store.Trades(), len(result.Trades))
	assert.NotEmpty(t, store.SessionLog(result.Sessions[0]))

	// 收盘已清仓，权益等于现金
	curve := result.Stats.EquityCurve
	require.NotEmpty(t, curve)
	closePoint := curve[len(curve)-1]
	assert.True(t, closePoint.DayClose)
	assert.Equal(t, 0, closePoint.Holdings)
	assert.True(t, closePoint.Portfolio.Equal(result.FinalCash))
	assert.True(t, result.Stats.FinalEquity.Equal(result.FinalCash))
}

func TestHarness_Deterministic(t *testing.T) {
	h1, _ := newHarness(t)
	h2, _ := newHarness(t)

	r1, err := h1.Run(context.Background(), day, day)
	require.NoError(t, err)
	r2, err := h2.Run(context.Background(), day, day)
	require.NoError(t, err)

	require.Equal(t, len(r1.Trades), len(r2.Trades))
	for i := range r1.Trades {
		assert.Equal(t, r1.Trades[i].ID, r2.Trades[i].ID)
		assert.Equal(t, r1.Trades[i].OrderIDs, r2.Trades[i].OrderIDs)
		assert.True(t, r1.Trades[i].PnL.Equal(r2.Trades[i].PnL))
		assert.Equal(t, r1.Trades[i].Reason, r2.Trades[i].Reason)
	}
	assert.Equal(t, r1.Orders, r2.Orders)
	assert.True(t, r1.FinalCash.Equal(r2.FinalCash))
	assert.NotEqual(t, r1.RunID, r2.RunID)
}

func TestHarness_SkipsWeekend(t *testing.T) {
	h, _ := newHarness(t)

	// 周三到下周一，共 4 个交易日
	result, err := h.Run(context.Background(), day, day.AddDate(0, 0, 5))
	require.NoError(t, err)
	assert.Equal(t, 4, result.Stats.TradingDays)
	require.Len(t, result.Sessions, 4)
	assert.NotEqual(t, result.Sessions[0], result.Sessions[1])

	closes := 0
	for _, p := range result.Stats.EquityCurve {
		if p.DayClose {
			closes++
		}
	}
	assert.Equal(t, 4, closes)
	assert.Len(t, result.Stats.DailyReturns, 4)
}

func TestHarness_InvalidInput(t *testing.T) {
	h, _ := newHarness(t)

	_, err := h.Run(context.Background(), day, day.AddDate(0, 0, -1))
	assert.Error(t, err)

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"no styles", func(c *Config) { c.Styles = nil }},
		{"empty universe", func(c *Config) { c.Universe = nil }},
		{"no capital", func(c *Config) { c.InitialCapital = decimal.Zero }},
		{"zero step", func(c *Config) { c.StepSec = 0 }},
		{"unknown style", func(c *Config) { c.Styles = []string{"nope"} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			config.Universe = []string{"ABC"}
			tt.mutate(&config)
			_, err := NewHarness(database.NewMemoryStore(), database.NewMemoryStore(), timeframes.MustDefaultCalendar(), config).
				Run(context.Background(), day, day)
			assert.Error(t, err)
		})
	}
}

func TestHarness_Cancelled(t *testing.T) {
	h, _ := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.Run(ctx, day, day)
	assert.ErrorIs(t, err, context.Canceled)
}
