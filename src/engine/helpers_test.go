package engine

import (
	"context"
	"testing"
	"time"

	"equitybot/src/database"
	"equitybot/src/executor"
	"equitybot/src/indicators"
	"equitybot/src/market"
	"equitybot/src/notify"
	"equitybot/src/orders"
	"equitybot/src/session"
	"equitybot/src/timeframes"
	"equitybot/src/tracking"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// 2024-03-06 周三，UTC 日历下 14:40 起为常规时段
var start = time.Date(2024, 3, 6, 14, 40, 0, 0, time.UTC)

// breakoutBars 20 根缓慢上行的1分钟K线，第21根放量突破收 10.50
func breakoutBars(volume float64) []*market.Bar {
	bars := make([]*market.Bar, 0, 21)
	for i := 0; i < 20; i++ {
		c := 9.90 + 0.02*float64(i)
		bars = append(bars, market.NewTestBar(start.Add(time.Duration(i)*time.Minute), c-0.01, c+0.005, c-0.02, c, volume))
	}
	last := market.NewTestBar(start.Add(20*time.Minute), 10.30, 10.55, 10.28, 10.50, volume)
	last.VWAP = decimal.NewFromFloat(10.00)
	return append(bars, last)
}

type fixture struct {
	clock    *session.VirtualClock
	store    *database.MemoryStore
	exec     executor.Executor
	backtest *executor.BacktestExecutor
	sess     *session.Session
	notifier *notify.Recorder
	tracker  *tracking.Tracker
	engine   *TradingEngine
}

type fixtureOption func(*fixture)

func withExecutor(wrap func(*executor.BacktestExecutor) executor.Executor) fixtureOption {
	return func(f *fixture) { f.exec = wrap(f.backtest) }
}

func newFixture(t *testing.T, universe []string, config Config, opts ...fixtureOption) *fixture {
	f := &fixture{
		// 突破K线 15:00 开盘，15:01 收盘后才可见
		clock:    session.NewVirtualClock(start.Add(21 * time.Minute)),
		store:    database.NewMemoryStore(),
		notifier: &notify.Recorder{},
		tracker:  tracking.NewTracker(),
	}
	f.sess = session.New(f.clock)

	bt := executor.DefaultBacktestConfig()
	bt.Universe = universe
	f.backtest = executor.NewBacktestExecutor(f.clock, f.store, bt)
	f.exec = f.backtest
	for _, opt := range opts {
		opt(f)
	}

	cal := timeframes.MustDefaultCalendar()
	lifecycle := orders.NewLifecycle(f.exec, f.store, f.tracker, f.sess, f.notifier, orders.OrdersConfigValue)
	feed := NewBarFeed(f.store, f.clock)
	runners, err := NewRunners(config.Styles, indicators.DefaultParams(), lifecycle, f.tracker, feed, f.sess, cal)
	require.NoError(t, err)

	f.engine = NewTradingEngine(lifecycle, f.tracker, runners, f.sess, f.store, f.notifier, cal, config)
	f.engine.SetWait(func(ctx context.Context, d time.Duration) error { return nil })
	return f
}

func testConfig() Config {
	c := EngineConfigValue
	c.Styles = []string{"breakout_20"}
	c.EndIterations = 3
	c.FlattenAtEnd = true
	return c
}

func (f *fixture) seed(t *testing.T, symbol string, bars []*market.Bar) {
	require.NoError(t, f.store.SaveBars(context.Background(), symbol, bars))
}
