package trading

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"equitybot/src/broker"
	"equitybot/src/config"
	"equitybot/src/database"
	"equitybot/src/market"
	"equitybot/src/notify"
	"equitybot/src/timeframes"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errPing = errors.New("unreachable")

type mockFactory struct{}

func (mockFactory) CreateClient() (broker.Broker, error) { return &mockBroker{}, nil }

func init() {
	broker.RegisterFactory("mock", mockFactory{})
}

// mockBroker 只实现连通性和K线回补，其他调用计数
type mockBroker struct {
	pingErr   error
	bars      []*market.Bar
	barCalls  int
	otherCall int
}

func (m *mockBroker) GetName() string { return "mock" }

func (m *mockBroker) Quote(ctx context.Context, symbol string) (*broker.Quote, error) {
	m.otherCall++
	return &broker.Quote{Symbol: symbol, Bid: decimal.NewFromInt(10), Ask: decimal.NewFromInt(10), Last: decimal.NewFromInt(10)}, nil
}

func (m *mockBroker) SubmitLimitOrder(ctx context.Context, symbol string, side broker.OrderSide, price, qty decimal.Decimal) (string, error) {
	m.otherCall++
	return "mock-1", nil
}

func (m *mockBroker) GetOrder(ctx context.Context, symbol, orderID string) (*broker.OrderReport, error) {
	m.otherCall++
	return &broker.OrderReport{OrderID: orderID, Symbol: symbol, Status: broker.StatusWorking}, nil
}

func (m *mockBroker) CancelOrder(ctx context.Context, symbol, orderID string) (bool, error) {
	m.otherCall++
	return true, nil
}

func (m *mockBroker) GetPositions(ctx context.Context) ([]*broker.Holding, error) {
	return nil, nil
}

func (m *mockBroker) GetAccount(ctx context.Context) (*broker.Account, error) {
	return &broker.Account{Cash: decimal.NewFromInt(100000)}, nil
}

func (m *mockBroker) GetTopGainers(ctx context.Context, class timeframes.HourClass) ([]*broker.Candidate, error) {
	return nil, nil
}

func (m *mockBroker) GetTopLosers(ctx context.Context, class timeframes.HourClass) ([]*broker.Candidate, error) {
	return nil, nil
}

func (m *mockBroker) GetBars(ctx context.Context, symbol string, start, end time.Time, limit int) ([]*market.Bar, error) {
	m.barCalls++
	var out []*market.Bar
	for _, b := range m.bars {
		if !b.Time.Before(start) && b.Time.Before(end) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (m *mockBroker) Ping(ctx context.Context) error { return m.pingErr }

// 2024-03-06 周三 15:00 放量突破
func breakoutBars() []*market.Bar {
	start := time.Date(2024, 3, 6, 14, 40, 0, 0, time.UTC)
	bars := make([]*market.Bar, 0, 21)
	for i := 0; i < 20; i++ {
		c := 9.90 + 0.02*float64(i)
		bars = append(bars, market.NewTestBar(start.Add(time.Duration(i)*time.Minute), c-0.01, c+0.005, c-0.02, c, 50000))
	}
	last := market.NewTestBar(start.Add(20*time.Minute), 10.30, 10.55, 10.28, 10.50, 50000)
	last.VWAP = decimal.NewFromFloat(10.00)
	return append(bars, last)
}

func testConfig(mode string) *config.Config {
	c := *config.AppConfig
	c.Mode = mode
	c.Broker = "mock"
	c.Backtest.StartDate = "2024-03-06"
	c.Backtest.EndDate = "2024-03-06"
	return &c
}

func newSystem(t *testing.T, cfg *config.Config, client broker.Broker) (*TradingSystem, *database.MemoryStore) {
	ts, err := NewTradingSystem(cfg)
	require.NoError(t, err)
	store := database.NewMemoryStore()
	ts.SetStore(store)
	ts.SetNotifier(&notify.Recorder{})
	if client != nil {
		ts.SetBroker(client)
	}
	t.Cleanup(ts.Stop)
	return ts, store
}

func TestNewTradingSystem(t *testing.T) {
	ts, err := NewTradingSystem(testConfig(config.ModeBacktest))
	require.NoError(t, err)
	assert.NotNil(t, ts.Context())
	assert.NotNil(t, ts.GetConfig())

	t.Run("invalid config", func(t *testing.T) {
		bad := testConfig("paper")
		_, err := NewTradingSystem(bad)
		var cfgErr *config.ConfigError
		assert.ErrorAs(t, err, &cfgErr)
	})
}

func TestTradingSystem_Initialize(t *testing.T) {
	ctx := context.Background()

	t.Run("backtest needs no broker", func(t *testing.T) {
		ts, _ := newSystem(t, testConfig(config.ModeBacktest), nil)
		require.NoError(t, ts.Initialize(ctx))
		assert.NotNil(t, ts.Bars())
	})

	t.Run("ping failure", func(t *testing.T) {
		ts, _ := newSystem(t, testConfig(config.ModeBacktest), &mockBroker{pingErr: errPing})
		err := ts.Initialize(ctx)
		assert.ErrorIs(t, err, errPing)
	})

	t.Run("profiles merged into stats", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "profiles.json")
		require.NoError(t, os.WriteFile(path, []byte(`[{"symbol":"ABC","status":"TRADING","sector":"Biotech"}]`), 0644))

		cfg := testConfig(config.ModeBacktest)
		cfg.Profiles = path
		ts, store := newSystem(t, cfg, nil)
		require.NoError(t, ts.Initialize(ctx))

		stats, err := store.LoadStats(ctx)
		require.NoError(t, err)
		require.Len(t, stats, 1)
		assert.Equal(t, "Biotech", stats[0].Sector)

		universe, err := ts.Universe(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"ABC"}, universe)
	})
}

func TestTradingSystem_Universe(t *testing.T) {
	ctx := context.Background()
	ts, store := newSystem(t, testConfig(config.ModeBacktest), nil)
	require.NoError(t, ts.Initialize(ctx))
	require.NoError(t, store.SaveBars(ctx, "XYZ", breakoutBars()))

	universe, err := ts.Universe(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"XYZ"}, universe)

	ts.config.Universe = []string{"ABC"}
	universe, err = ts.Universe(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"ABC"}, universe)
}

func TestTradingSystem_RunBacktest(t *testing.T) {
	ctx := context.Background()
	ts, store := newSystem(t, testConfig(config.ModeBacktest), nil)
	require.NoError(t, ts.Initialize(ctx))
	require.NoError(t, store.SaveBars(ctx, "ABC", breakoutBars()))

	result, err := ts.RunBacktest(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, result.Trades)
	assert.Equal(t, 1, result.Stats.TradingDays)
	// 默认不把回测成交写入主库
	assert.Empty(t, store.Trades())
}

func TestTradingSystem_BuildEngine(t *testing.T) {
	ctx := context.Background()

	t.Run("dry run uses simulated fills", func(t *testing.T) {
		ts, _ := newSystem(t, testConfig(config.ModeDry), &mockBroker{})
		require.NoError(t, ts.Initialize(ctx))
		eng, err := ts.BuildEngine(ctx)
		require.NoError(t, err)
		assert.Equal(t, "DryRunExecutor", eng.Lifecycle().Executor().GetName())
		assert.Same(t, eng, ts.Engine())
	})

	t.Run("live", func(t *testing.T) {
		ts, _ := newSystem(t, testConfig(config.ModeLive), &mockBroker{})
		require.NoError(t, ts.Initialize(ctx))
		eng, err := ts.BuildEngine(ctx)
		require.NoError(t, err)
		assert.Equal(t, "LiveExecutor(mock)", eng.Lifecycle().Executor().GetName())
	})

	t.Run("backtest mode", func(t *testing.T) {
		ts, _ := newSystem(t, testConfig(config.ModeBacktest), &mockBroker{})
		require.NoError(t, ts.Initialize(ctx))
		_, err := ts.BuildEngine(ctx)
		assert.Error(t, err)
		assert.Error(t, ts.RunLiveTrading(ctx))
	})

	t.Run("not initialized", func(t *testing.T) {
		ts, _ := newSystem(t, testConfig(config.ModeDry), &mockBroker{})
		_, err := ts.BuildEngine(ctx)
		assert.Error(t, err)
	})
}

func TestTradingSystem_SyncBars(t *testing.T) {
	ctx := context.Background()
	client := &mockBroker{bars: breakoutBars()}
	ts, store := newSystem(t, testConfig(config.ModeBacktest), client)
	require.NoError(t, ts.Initialize(ctx))

	start := time.Date(2024, 3, 6, 14, 40, 0, 0, time.UTC)
	n, err := ts.SyncBars(ctx, []string{"ABC"}, start, start.Add(21*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 21, n)
	assert.Greater(t, client.barCalls, 0)

	saved, err := store.GetBarsInRange(ctx, "ABC", start, start.Add(21*time.Minute))
	require.NoError(t, err)
	assert.Len(t, saved, 21)

	// 再次同步没有缺口
	n, err = ts.SyncBars(ctx, []string{"ABC"}, start, start.Add(21*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
